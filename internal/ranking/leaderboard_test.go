package ranking

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/camon/backend/internal/contracts"
)

func TestGroupRankingOrderAndLimit(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()

	// Three groups with distinct win rates: g1 100%, g2 50%, g3 0%
	require.NoError(t, e.RecordCall(ctx, call(addrA, "g1", "u1", 1.00, 1000)))
	require.NoError(t, e.RecordCall(ctx, call(addrA, "g2", "u2", 1.00, 2000)))
	require.NoError(t, e.RecordCall(ctx, call(addrB, "g2", "u2", 1.00, 3000)))
	require.NoError(t, e.RecordCall(ctx, call(addrB, "g3", "u3", 1.00, 4000)))
	require.NoError(t, e.UpdatePrice(ctx, addrA, "bsc", 2.00, contracts.TypeEVM))

	entries, err := e.GroupRanking(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, "g1", entries[0].GroupID)
	assert.Equal(t, "g2", entries[1].GroupID)
	assert.Equal(t, "g3", entries[2].GroupID)
	for i, entry := range entries {
		assert.Equal(t, i+1, entry.Rank)
	}
	assert.Equal(t, "Group g1", entries[0].GroupName)

	// Limit truncates from the top
	top, err := e.GroupRanking(ctx, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "g1", top[0].GroupID)
}

func TestCallRankingJoin(t *testing.T) {
	e, store := newTestEngine()
	ctx := context.Background()

	require.NoError(t, e.RecordCall(ctx, call(addrA, "g1", "u1", 1.00, 1000)))
	require.NoError(t, e.RecordCall(ctx, call(addrB, "g1", "u2", 1.00, 2000)))
	require.NoError(t, e.UpdatePrice(ctx, addrA, "bsc", 3.00, contracts.TypeEVM))

	entries, err := e.CallRanking(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// u1's 3x call ranks above u2's untouched 1x call
	assert.Equal(t, "u1", entries[0].UserID)
	assert.Equal(t, 3.0, entries[0].MaxMultiplier)
	assert.Equal(t, "Nick u1", entries[0].UserNick)
	assert.Equal(t, 1.0, entries[1].MaxMultiplier)

	// A dangling index entry whose hash is gone is skipped, not an error
	require.NoError(t, store.Del(ctx, keyCallStats(callID("u2", addrB))))
	entries, err = e.CallRanking(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
