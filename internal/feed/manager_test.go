package feed

import (
	"testing"

	"github.com/wonny/camon/backend/internal/contracts"
	"github.com/wonny/camon/backend/pkg/config"
	"github.com/wonny/camon/backend/pkg/httputil"
	"github.com/wonny/camon/backend/pkg/logger"
)

func newTestManager(t *testing.T, sink PriceSink) *Manager {
	t.Helper()
	cfg := &config.Config{Feed: testFeedConfig("ws://127.0.0.1:1")}
	return NewManager(cfg, logger.NewNop(), httputil.New(logger.NewNop()).DisableRetry(), sink)
}

func TestManagerMentionFlow(t *testing.T) {
	sink := &captureSink{}
	m := newTestManager(t, sink)

	// Upper-case EVM address normalizes, alias chain maps
	m.OnNewContract("0x55D398326f99059fF775485246999027B3197955", "ethereum", contracts.TypeEVM)

	status := m.Status()
	if status.SubscriptionCount != 1 {
		t.Fatalf("SubscriptionCount = %d, want 1", status.SubscriptionCount)
	}
	sub := status.Subscriptions[0]
	if sub.Key != "0x55d398326f99059ff775485246999027b3197955-eth" {
		t.Errorf("key = %s, not normalized", sub.Key)
	}
	if sub.Tier != "hot" {
		t.Errorf("tier = %s, want hot", sub.Tier)
	}

	// A recall of the same address refreshes instead of duplicating
	m.OnContractRecalled("0x55d398326f99059ff775485246999027b3197955", "eth", contracts.TypeEVM)
	if m.Status().SubscriptionCount != 1 {
		t.Errorf("recall duplicated the subscription")
	}

	// A recalled brand-new address lands at warm
	m.OnContractRecalled("So11111111111111111111111111111111111111112", "", contracts.TypeSOL)
	status = m.Status()
	if status.SubscriptionCount != 2 {
		t.Fatalf("SubscriptionCount = %d, want 2", status.SubscriptionCount)
	}
	for _, s := range status.Subscriptions {
		if s.Chain == "solana" && s.Tier != "warm" {
			t.Errorf("recalled contract tier = %s, want warm", s.Tier)
		}
	}
}

func TestManagerHandlePrices(t *testing.T) {
	sink := &captureSink{}
	m := newTestManager(t, sink)

	m.OnNewContract("0xABC0000000000000000000000000000000000abc", "bsc", contracts.TypeEVM)

	m.handlePrices([]PricePush{
		// Feed reports the raw-cased token of a known subscription
		{Token: "0xABC0000000000000000000000000000000000abc", Chain: "bsc", Price: 2.0, PriceChange: 5.5, Direction: 1},
		// And one the registry has never seen
		{Token: "TUnknown00000000000000000000000000", Chain: "tron", Price: 0.5},
	})

	// Both reach the sink, known or not
	if len(sink.updates) != 2 {
		t.Fatalf("sink got %d updates, want 2", len(sink.updates))
	}
	if sink.updates[0].Address != "0xabc0000000000000000000000000000000000abc" {
		t.Errorf("sink address not normalized: %s", sink.updates[0].Address)
	}
	if sink.updates[1].Type != contracts.TypeTRON {
		t.Errorf("sink type = %s, want TRON", sink.updates[1].Type)
	}

	// Only the known one updates the registry
	for _, s := range m.Status().Subscriptions {
		if s.LastPrice != 2.0 || s.PriceChange != 5.5 || s.Direction != 1 {
			t.Errorf("registry entry not updated by push: %+v", s)
		}
	}
}

func TestManagerUnsubscribe(t *testing.T) {
	m := newTestManager(t, &captureSink{})

	m.OnNewContract("0xabc0000000000000000000000000000000000abc", "bsc", contracts.TypeEVM)
	m.Unsubscribe("0xABC0000000000000000000000000000000000abc", "bsc", contracts.TypeEVM)

	if n := m.Status().SubscriptionCount; n != 0 {
		t.Errorf("SubscriptionCount = %d after unsubscribe, want 0", n)
	}
}
