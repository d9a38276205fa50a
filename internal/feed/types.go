package feed

import (
	"context"
	"time"

	"github.com/wonny/camon/backend/internal/contracts"
)

// Tier classifies how urgently a subscription needs fresh prices.
// Lower values are more urgent; eviction prefers higher values.
type Tier int

const (
	TierHot  Tier = 1 // freshly mentioned, poll every cycle
	TierWarm Tier = 2 // recalled or cooled-down, sampled polling
	TierCold Tier = 3 // kept only for push updates
)

func (t Tier) String() string {
	switch t {
	case TierHot:
		return "hot"
	case TierWarm:
		return "warm"
	case TierCold:
		return "cold"
	}
	return "unknown"
}

// moreUrgent returns the more urgent of two tiers
func moreUrgent(a, b Tier) Tier {
	if a < b {
		return a
	}
	return b
}

// Subscription is a tracked token inside the registry.
// All fields are owned by the Registry and must only be touched
// while its mutex is held.
type Subscription struct {
	Address string
	Chain   string
	Type    contracts.AddressType
	Tier    Tier

	SubscribedAt    time.Time
	LastMentionedAt time.Time
	LastUpdate      time.Time // zero until the first price arrives

	LastPrice   float64
	PriceChange float64
	Direction   int

	// Bounded rolling window used by the stability check
	PriceHistory []float64
	StableCount  int
}

// Key returns the feed token key for this subscription
func (s *Subscription) Key() string {
	return contracts.TokenKey(s.Address, s.Chain)
}

// PriceSink consumes price observations from the feed pipeline.
// Implemented by the ranking engine.
type PriceSink interface {
	UpdatePrice(ctx context.Context, address, chain string, price float64, typ contracts.AddressType) error
}

// SubscriptionStatus is the read-only view of one registry entry
type SubscriptionStatus struct {
	Key         string    `json:"key"`
	Address     string    `json:"address"`
	Chain       string    `json:"chain"`
	Type        string    `json:"type"`
	Tier        string    `json:"tier"`
	LastUpdate  time.Time `json:"lastUpdate,omitzero"`
	LastPrice   float64   `json:"lastPrice,omitempty"`
	PriceChange float64   `json:"priceChange,omitempty"`
	Direction   int       `json:"direction,omitempty"`
	StableCount int       `json:"stableCount"`
}

// ManagerStatus is the read-only view of the whole feed subsystem
type ManagerStatus struct {
	Connected         bool                 `json:"connected"`
	State             string               `json:"state"`
	SubscriptionCount int                  `json:"subscriptionCount"`
	ReconnectAttempts int                  `json:"reconnectAttempts"`
	Subscriptions     []SubscriptionStatus `json:"subscriptions"`
}
