package feed

// Stability detection: once a token's recent prices stop moving it is
// pointless to keep polling it, push updates will cover any revival.
const (
	stableHistorySize   = 3
	StableThreshold     = 0.01 // relative spread below which a window counts as flat
	StableCountLimit    = 3    // consecutive flat windows before polling stops
)

// StabilityTracker decides when a subscription's price has settled.
type StabilityTracker struct {
	Threshold float64
	Limit     int
}

func NewStabilityTracker() *StabilityTracker {
	return &StabilityTracker{Threshold: StableThreshold, Limit: StableCountLimit}
}

// Observe records a price sample on the subscription and updates its
// stable counter. Returns true once the subscription is settled.
func (t *StabilityTracker) Observe(sub *Subscription, price float64) bool {
	sub.PriceHistory = append(sub.PriceHistory, price)
	if len(sub.PriceHistory) > stableHistorySize {
		sub.PriceHistory = sub.PriceHistory[len(sub.PriceHistory)-stableHistorySize:]
	}

	if len(sub.PriceHistory) == stableHistorySize {
		if t.spread(sub.PriceHistory) < t.Threshold {
			sub.StableCount++
		} else {
			sub.StableCount = 0
		}
	}
	return t.Settled(sub)
}

// Settled reports whether polling can be skipped for this subscription
func (t *StabilityTracker) Settled(sub *Subscription) bool {
	return sub.StableCount >= t.Limit
}

// spread returns (max-min)/max over the window
func (t *StabilityTracker) spread(history []float64) float64 {
	min, max := history[0], history[0]
	for _, p := range history[1:] {
		if p < min {
			min = p
		}
		if p > max {
			max = p
		}
	}
	if max == 0 {
		return 0
	}
	return (max - min) / max
}
