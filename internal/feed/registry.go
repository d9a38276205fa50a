package feed

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/wonny/camon/backend/internal/contracts"
	"github.com/wonny/camon/backend/pkg/logger"
)

// Registry lifecycle thresholds
const (
	evictFraction     = 0.2            // share of capacity freed per eviction
	demoteAfter       = 1 * time.Hour  // hot entries unmentioned this long drop to warm
	removeAfter       = 24 * time.Hour // entries unmentioned this long are dropped
	pollSkipAfter     = 4 * time.Hour  // unmentioned entries older than this are not polled
	pollSampleAfter   = 1 * time.Hour  // non-hot entries older than this are sampled
	pollSampleRate    = 0.25           // inclusion probability for sampled entries
	maxStalenessScore = 100            // cap, in minutes, of the update-age penalty
)

// Registry owns the in-memory subscription table. It is safe for
// concurrent use; all map access goes through mu.
type Registry struct {
	mu        sync.Mutex
	subs      map[string]*Subscription
	max       int
	stability *StabilityTracker
	logger    *logger.Logger
	now       func() time.Time
}

func NewRegistry(max int, log *logger.Logger) *Registry {
	return &Registry{
		subs:      make(map[string]*Subscription),
		max:       max,
		stability: NewStabilityTracker(),
		logger:    log,
		now:       time.Now,
	}
}

// Subscribe registers or refreshes a subscription. The address must
// already be normalized and the chain already mapped to a feed chain.
// Returns the token key, whether the entry is new, and any keys that
// were evicted to make room.
func (r *Registry) Subscribe(address, chain string, typ contracts.AddressType, tier Tier) (key string, isNew bool, evicted []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key = contracts.TokenKey(address, chain)
	now := r.now()

	if sub, ok := r.subs[key]; ok {
		// A re-mention revives the entry: fresh timestamps, stability
		// reset, and the tier only ever moves toward more urgent.
		sub.SubscribedAt = now
		sub.LastMentionedAt = now
		sub.StableCount = 0
		sub.PriceHistory = sub.PriceHistory[:0]
		sub.Tier = moreUrgent(sub.Tier, tier)
		return key, false, nil
	}

	if len(r.subs) >= r.max {
		evicted = r.evictLocked()
	}

	r.subs[key] = &Subscription{
		Address:         address,
		Chain:           chain,
		Type:            typ,
		Tier:            tier,
		SubscribedAt:    now,
		LastMentionedAt: now,
	}
	r.logger.WithFields(map[string]interface{}{
		"key":  key,
		"tier": tier.String(),
		"size": len(r.subs),
	}).Debug("subscription added")
	return key, true, evicted
}

// Unsubscribe drops a subscription. Returns the token key and whether
// an entry was actually removed.
func (r *Registry) Unsubscribe(address, chain string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := contracts.TokenKey(address, chain)
	if _, ok := r.subs[key]; !ok {
		return key, false
	}
	delete(r.subs, key)
	return key, true
}

// evictLocked frees a fixed share of capacity by removing the stalest
// entries. Staleness favors less urgent tiers first, then entries whose
// last price update is oldest; never-updated entries count as maximally
// stale within their tier.
func (r *Registry) evictLocked() []string {
	type scored struct {
		key   string
		score float64
	}
	now := r.now()
	candidates := make([]scored, 0, len(r.subs))
	for key, sub := range r.subs {
		age := float64(maxStalenessScore)
		if !sub.LastUpdate.IsZero() {
			age = math.Min(now.Sub(sub.LastUpdate).Minutes(), maxStalenessScore)
		}
		candidates = append(candidates, scored{key: key, score: float64(sub.Tier)*1000 + age})
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	n := int(math.Ceil(float64(r.max) * evictFraction))
	if n > len(candidates) {
		n = len(candidates)
	}
	evicted := make([]string, 0, n)
	for _, c := range candidates[:n] {
		delete(r.subs, c.key)
		evicted = append(evicted, c.key)
	}
	r.logger.WithField("count", len(evicted)).Info("evicted stale subscriptions")
	return evicted
}

// DemoteStale ages out the table: hot entries unmentioned for over an
// hour drop to warm, and entries unmentioned for over a day are removed.
// Returns the keys that were removed so the caller can unsubscribe them
// from the feed.
func (r *Registry) DemoteStale(now time.Time) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []string
	for key, sub := range r.subs {
		idle := now.Sub(sub.LastMentionedAt)
		if idle > removeAfter {
			delete(r.subs, key)
			removed = append(removed, key)
			continue
		}
		if sub.Tier == TierHot && idle > demoteAfter {
			sub.Tier = TierWarm
		}
	}
	if len(removed) > 0 {
		r.logger.WithField("count", len(removed)).Info("removed expired subscriptions")
	}
	return removed
}

// PollCandidates selects the token keys worth polling this cycle.
// Settled entries and entries unmentioned for too long are skipped;
// aging non-hot entries are sampled with probability pollSampleRate
// using rnd, which must return values in [0,1).
func (r *Registry) PollCandidates(now time.Time, rnd func() float64) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys := make([]string, 0, len(r.subs))
	for key, sub := range r.subs {
		if r.stability.Settled(sub) {
			continue
		}
		idle := now.Sub(sub.LastMentionedAt)
		if idle > pollSkipAfter {
			continue
		}
		if idle > pollSampleAfter && sub.Tier != TierHot {
			if rnd() > pollSampleRate {
				continue
			}
		}
		keys = append(keys, key)
	}
	return keys
}

// ApplyPrice records a polled price on the subscription identified by
// key. Returns false if the key is not subscribed.
func (r *Registry) ApplyPrice(key string, price float64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.subs[key]
	if !ok {
		return false
	}
	r.applyLocked(sub, price)
	return true
}

// ApplyPush records a pushed price along with its change metadata.
// Returns false if the key is not subscribed.
func (r *Registry) ApplyPush(key string, price, priceChange float64, direction int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.subs[key]
	if !ok {
		return false
	}
	r.applyLocked(sub, price)
	sub.PriceChange = priceChange
	sub.Direction = direction
	return true
}

func (r *Registry) applyLocked(sub *Subscription, price float64) {
	sub.LastPrice = price
	sub.LastUpdate = r.now()
	if r.stability.Observe(sub, price) {
		r.logger.WithFields(map[string]interface{}{
			"key":   sub.Key(),
			"price": price,
		}).Debug("price settled, polling paused")
	}
}

// Keys returns every subscribed token key, used for bulk resubscribes
// after a reconnect.
func (r *Registry) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys := make([]string, 0, len(r.subs))
	for key := range r.subs {
		keys = append(keys, key)
	}
	return keys
}

// Size returns the number of live subscriptions
func (r *Registry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

// Snapshot returns a copy of the table for status reporting
func (r *Registry) Snapshot() []SubscriptionStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]SubscriptionStatus, 0, len(r.subs))
	for key, sub := range r.subs {
		out = append(out, SubscriptionStatus{
			Key:         key,
			Address:     sub.Address,
			Chain:       sub.Chain,
			Type:        string(sub.Type),
			Tier:        sub.Tier.String(),
			LastUpdate:  sub.LastUpdate,
			LastPrice:   sub.LastPrice,
			PriceChange: sub.PriceChange,
			Direction:   sub.Direction,
			StableCount: sub.StableCount,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
