package ranking

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/wonny/camon/backend/internal/contracts"
	"github.com/wonny/camon/backend/pkg/logger"
)

const winThreshold = 0.5

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func newTestEngine() (*Engine, *memStore) {
	store := newMemStore()
	return NewEngine(store, logger.NewNop(), winThreshold), store
}

func call(addr, group, user string, price float64, ts int64) *contracts.ContractRecord {
	return &contracts.ContractRecord{
		Address:     addr,
		Type:        contracts.DetectAddressType(addr),
		Chain:       "bsc",
		GroupID:     group,
		GroupName:   "Group " + group,
		UserID:      user,
		UserNick:    "Nick " + user,
		TokenSymbol: "TKN",
		TokenPrice:  price,
		CallTimeMs:  ts,
	}
}

const addrA = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
const addrB = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
const addrC = "0xcccccccccccccccccccccccccccccccccccccccc"

func TestWinTransition(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()

	if err := e.RecordCall(ctx, call(addrA, "g1", "u1", 1.00, 1000)); err != nil {
		t.Fatalf("RecordCall: %v", err)
	}

	// +60% crosses the threshold
	if err := e.UpdatePrice(ctx, addrA, "bsc", 1.60, contracts.TypeEVM); err != nil {
		t.Fatalf("UpdatePrice: %v", err)
	}
	stats, err := e.ContractStats(ctx, addrA, contracts.TypeEVM)
	if err != nil || stats == nil {
		t.Fatalf("ContractStats: %v, %v", stats, err)
	}
	if !stats.IsWin {
		t.Error("contract should be a win at +60%")
	}
	if !approx(stats.MaxGain, 0.6) {
		t.Errorf("MaxGain = %v, want 0.6", stats.MaxGain)
	}

	// A pullback keeps the win and the peak
	if err := e.UpdatePrice(ctx, addrA, "bsc", 1.40, contracts.TypeEVM); err != nil {
		t.Fatalf("UpdatePrice: %v", err)
	}
	stats, _ = e.ContractStats(ctx, addrA, contracts.TypeEVM)
	if !stats.IsWin || !approx(stats.MaxGain, 0.6) || stats.MaxPrice != 1.60 {
		t.Errorf("pullback changed peak state: %+v", stats)
	}
	if stats.CurrentPrice != 1.40 {
		t.Errorf("CurrentPrice = %v, want 1.40", stats.CurrentPrice)
	}

	groups, err := e.GroupRanking(ctx, 10)
	if err != nil {
		t.Fatalf("GroupRanking: %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("groups = %d, want 1", len(groups))
	}
	g := groups[0]
	if g.WinRate != 100 || g.Wins != 1 || g.UniqueContracts != 1 || g.TotalCalls != 1 {
		t.Errorf("group entry = %+v, want 100%% win rate on one contract", g)
	}
}

func TestWinCreditedOnce(t *testing.T) {
	e, store := newTestEngine()
	ctx := context.Background()

	e.RecordCall(ctx, call(addrA, "g1", "u1", 1.00, 1000))
	e.UpdatePrice(ctx, addrA, "bsc", 1.60, contracts.TypeEVM)
	// New highs after the flip must not credit again
	e.UpdatePrice(ctx, addrA, "bsc", 2.50, contracts.TypeEVM)
	e.UpdatePrice(ctx, addrA, "bsc", 4.00, contracts.TypeEVM)

	h, _ := store.HGetAll(ctx, keyGroupStats("g1"))
	if h["wins"] != "1" {
		t.Errorf("wins = %s, want 1", h["wins"])
	}
}

func TestCallMultiplier(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()

	e.RecordCall(ctx, call(addrA, "g1", "u1", 2.00, 1000))
	e.UpdatePrice(ctx, addrA, "bsc", 5.00, contracts.TypeEVM)
	e.UpdatePrice(ctx, addrA, "bsc", 3.00, contracts.TypeEVM)

	calls, err := e.CallRanking(ctx, 10)
	if err != nil {
		t.Fatalf("CallRanking: %v", err)
	}
	if len(calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(calls))
	}
	c := calls[0]
	if c.MaxMultiplier != 2.5 {
		t.Errorf("MaxMultiplier = %v, want 2.5", c.MaxMultiplier)
	}
	if c.CurrentMultiplier != 1.5 {
		t.Errorf("CurrentMultiplier = %v, want 1.5", c.CurrentMultiplier)
	}
	if c.UserID != "u1" || c.Address != addrA {
		t.Errorf("call attribution wrong: %+v", c)
	}
}

func TestRepeatCallDedupe(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()

	e.RecordCall(ctx, call(addrA, "g1", "u1", 1.00, 1000))
	e.RecordCall(ctx, call(addrA, "g1", "u1", 1.20, 2000))

	// Two mentions count as two calls against one unique contract
	groups, _ := e.GroupRanking(ctx, 10)
	if groups[0].TotalCalls != 2 || groups[0].UniqueContracts != 1 {
		t.Errorf("group entry = %+v, want 2 calls on 1 contract", groups[0])
	}

	// But only one call entry exists, keeping the first call's baseline
	// and timestamp
	calls, _ := e.CallRanking(ctx, 10)
	if len(calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(calls))
	}
	if calls[0].CallTimeMs != 1000 {
		t.Errorf("CallTimeMs = %d, want the first call's 1000", calls[0].CallTimeMs)
	}

	// And the contract baseline never moves
	stats, _ := e.ContractStats(ctx, addrA, contracts.TypeEVM)
	if stats.InitialPrice != 1.00 {
		t.Errorf("InitialPrice = %v, want 1.00 from first call", stats.InitialPrice)
	}
	if stats.CallCount != 2 {
		t.Errorf("CallCount = %d, want 2", stats.CallCount)
	}
}

func TestMultipleGroupsCredited(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()

	e.RecordCall(ctx, call(addrA, "g1", "u1", 1.00, 1000))
	e.RecordCall(ctx, call(addrA, "g2", "u2", 1.00, 2000))
	// Second contract dilutes only g2's win rate
	e.RecordCall(ctx, call(addrB, "g2", "u2", 1.00, 3000))

	e.UpdatePrice(ctx, addrA, "bsc", 2.00, contracts.TypeEVM)

	groups, _ := e.GroupRanking(ctx, 10)
	if len(groups) != 2 {
		t.Fatalf("groups = %d, want 2", len(groups))
	}
	if groups[0].GroupID != "g1" || groups[0].WinRate != 100 {
		t.Errorf("rank 1 = %+v, want g1 at 100", groups[0])
	}
	if groups[1].GroupID != "g2" || groups[1].WinRate != 50 {
		t.Errorf("rank 2 = %+v, want g2 at 50", groups[1])
	}
	if groups[0].Rank != 1 || groups[1].Rank != 2 {
		t.Errorf("ranks not sequential: %d, %d", groups[0].Rank, groups[1].Rank)
	}
}

func TestRepeatedKnownContractKeepsWinRate(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()

	// g2 surfaces B first; g1 surfaces A, then repeats the known B.
	// Only first-anywhere calls count as unique, so g1 stays at one
	// contract and a win on A means a 100% rate.
	e.RecordCall(ctx, call(addrB, "g2", "u2", 1.00, 1000))
	e.RecordCall(ctx, call(addrA, "g1", "u1", 1.00, 2000))
	e.RecordCall(ctx, call(addrB, "g1", "u1", 1.00, 3000))

	e.UpdatePrice(ctx, addrA, "bsc", 2.00, contracts.TypeEVM)

	groups, err := e.GroupRanking(ctx, 10)
	if err != nil {
		t.Fatalf("GroupRanking: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("groups = %d, want 2", len(groups))
	}
	g1 := groups[0]
	if g1.GroupID != "g1" {
		t.Fatalf("rank 1 = %s, want g1", g1.GroupID)
	}
	if g1.UniqueContracts != 1 {
		t.Errorf("UniqueContracts = %d, want 1", g1.UniqueContracts)
	}
	if g1.WinRate != 100 {
		t.Errorf("WinRate = %v, want 100", g1.WinRate)
	}
	if g1.TotalCalls != 2 {
		t.Errorf("TotalCalls = %d, want 2", g1.TotalCalls)
	}
	g2 := groups[1]
	if g2.GroupID != "g2" || g2.UniqueContracts != 1 || g2.WinRate != 0 {
		t.Errorf("g2 entry = %+v, want one contract at 0%%", g2)
	}
}

func TestUntrackedAddressIgnored(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()

	if err := e.UpdatePrice(ctx, addrA, "bsc", 1.5, contracts.TypeEVM); err != nil {
		t.Fatalf("UpdatePrice on unknown address: %v", err)
	}
	stats, err := e.ContractStats(ctx, addrA, contracts.TypeEVM)
	if err != nil {
		t.Fatalf("ContractStats: %v", err)
	}
	if stats != nil {
		t.Errorf("stats = %+v, want nil for unknown address", stats)
	}
}

func TestMissingBaselineIgnored(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()

	// Mention arrived without a price, so there is no baseline
	e.RecordCall(ctx, call(addrA, "g1", "u1", 0, 1000))

	e.UpdatePrice(ctx, addrA, "bsc", 2.00, contracts.TypeEVM)
	e.UpdatePrice(ctx, addrA, "bsc", 5.00, contracts.TypeEVM)

	stats, _ := e.ContractStats(ctx, addrA, contracts.TypeEVM)
	if stats.InitialPrice != 0 || stats.CurrentPrice != 0 || stats.IsWin {
		t.Errorf("baseline-less contract was updated: %+v", stats)
	}
	groups, _ := e.GroupRanking(ctx, 10)
	if groups[0].Wins != 0 {
		t.Errorf("wins = %d for baseline-less contract, want 0", groups[0].Wins)
	}
}

func TestActiveContracts(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return now }

	e.RecordCall(ctx, call(addrA, "g1", "u1", 1, now.Add(-2*time.Hour).UnixMilli()))
	e.RecordCall(ctx, call(addrB, "g1", "u1", 1, now.Add(-10*time.Minute).UnixMilli()))
	e.RecordCall(ctx, call(addrC, "g1", "u1", 1, now.Add(-5*time.Minute).UnixMilli()))

	active, err := e.ActiveContracts(ctx, 10)
	if err != nil {
		t.Fatalf("ActiveContracts: %v", err)
	}
	if len(active) != 2 || active[0] != addrB || active[1] != addrC {
		t.Errorf("active = %v, want the recent addresses oldest first", active)
	}

	// The limit caps the sweep from the oldest end
	capped, err := e.ActiveContracts(ctx, 1)
	if err != nil {
		t.Fatalf("ActiveContracts: %v", err)
	}
	if len(capped) != 1 || capped[0] != addrB {
		t.Errorf("capped = %v, want just the oldest in-window address", capped)
	}
}

func TestResetDaily(t *testing.T) {
	e, store := newTestEngine()
	ctx := context.Background()

	e.RecordCall(ctx, call(addrA, "g1", "u1", 1.00, 1000))
	e.UpdatePrice(ctx, addrA, "bsc", 2.00, contracts.TypeEVM)

	if err := e.ResetDaily(ctx); err != nil {
		t.Fatalf("ResetDaily: %v", err)
	}

	keys, _ := store.ScanKeys(ctx, "ranking:*")
	if len(keys) != 0 {
		t.Errorf("keys left after reset: %v", keys)
	}
	groups, _ := e.GroupRanking(ctx, 10)
	if len(groups) != 0 {
		t.Errorf("group leaderboard survived reset: %+v", groups)
	}
	stats, _ := e.ContractStats(ctx, addrA, contracts.TypeEVM)
	if stats != nil {
		t.Errorf("contract stats survived reset: %+v", stats)
	}
}

func TestNormalizedAddressConvergence(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()

	mixed := "0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
	e.RecordCall(ctx, call(mixed, "g1", "u1", 1.00, 1000))
	e.UpdatePrice(ctx, addrA, "bsc", 1.60, contracts.TypeEVM)

	// Both casings resolve to the same record
	stats, _ := e.ContractStats(ctx, mixed, contracts.TypeEVM)
	if stats == nil || !stats.IsWin {
		t.Errorf("mixed-case lookup missed the record: %+v", stats)
	}
}
