package ranking

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/wonny/camon/backend/internal/contracts"
	"github.com/wonny/camon/backend/pkg/logger"
)

const (
	activeWindow      = time.Hour // lookback for the active contract set
	activeMaxEntries  = 5000
	percentMultiplier = 100
)

// keyedMutex serializes work per contract address. Concurrent price
// updates for different addresses proceed in parallel; updates for the
// same address never interleave, which keeps the read-modify-write
// cycles on the hashes consistent.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	k.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// Engine maintains the incremental leaderboards: contract baselines,
// per-group win rates and per-call multipliers, all updated in place
// as calls and prices arrive.
//
// ⭐ SSOT: 랭킹 상태 변경은 전부 이 엔진을 거친다
type Engine struct {
	store  Store
	logger *logger.Logger

	winThreshold float64
	locks        keyedMutex
	now          func() time.Time
}

func NewEngine(store Store, log *logger.Logger, winThreshold float64) *Engine {
	return &Engine{
		store:        store,
		logger:       log.WithField("component", "ranking-engine"),
		winThreshold: winThreshold,
		now:          time.Now,
	}
}

// RecordCall ingests one contract mention: it seeds the contract
// baseline on first sight, counts the call against the group, and
// registers the user's call entry. Repeat calls by the same user on
// the same contract only bump counters, they never create a second
// call entry or move the baseline.
func (e *Engine) RecordCall(ctx context.Context, rec *contracts.ContractRecord) error {
	address := contracts.NormalizeAddress(rec.Address, rec.Type)
	unlock := e.locks.lock(address)
	defer unlock()

	firstCall, err := e.recordContract(ctx, address, rec)
	if err != nil {
		return fmt.Errorf("record contract %s: %w", address, err)
	}
	if err := e.recordGroup(ctx, address, rec, firstCall); err != nil {
		return fmt.Errorf("record group %s: %w", rec.GroupID, err)
	}
	if err := e.recordUserCall(ctx, address, rec); err != nil {
		return fmt.Errorf("record call by %s: %w", rec.UserID, err)
	}

	if err := e.store.ZAdd(ctx, keyActiveContracts, address, float64(rec.CallTimeMs)); err != nil {
		return fmt.Errorf("mark contract active: %w", err)
	}
	return e.trimActive(ctx)
}

// recordContract seeds or refreshes the per-address stats hash. The
// returned flag reports whether this was the first call anywhere for
// the address, which drives the group uniqueContracts counter.
func (e *Engine) recordContract(ctx context.Context, address string, rec *contracts.ContractRecord) (bool, error) {
	key := keyContractStats(address)
	existing, err := e.store.HGetAll(ctx, key)
	if err != nil {
		return false, err
	}
	firstCall := len(existing) == 0

	fields := map[string]interface{}{
		"address":      address,
		"lastCallTime": rec.CallTimeMs,
	}
	if firstCall {
		fields["firstCallTime"] = rec.CallTimeMs
		fields["maxGain"] = 0
		fields["isWin"] = 0
	}
	// The baseline is immutable once set. A zero mention price leaves
	// it unset until a later mention carries one; price updates never
	// fill it in.
	if getFloat(existing, "initialPrice") == 0 && rec.TokenPrice > 0 {
		fields["initialPrice"] = rec.TokenPrice
		fields["currentPrice"] = rec.TokenPrice
		fields["maxPrice"] = rec.TokenPrice
	}
	if err := e.store.HSet(ctx, key, fields); err != nil {
		return false, err
	}
	if _, err := e.store.HIncrBy(ctx, key, "callCount", 1); err != nil {
		return false, err
	}
	return firstCall, nil
}

// recordGroup counts the call against the group. uniqueContracts only
// grows when the group is first anywhere to call the address; repeating
// a contract some other group already surfaced does not dilute the win
// rate denominator. Win attribution walks the contract-to-groups index,
// not the counter.
func (e *Engine) recordGroup(ctx context.Context, address string, rec *contracts.ContractRecord, firstCall bool) error {
	if rec.GroupID == "" {
		return nil
	}
	key := keyGroupStats(rec.GroupID)

	exists, err := e.store.Exists(ctx, key)
	if err != nil {
		return err
	}
	if !exists {
		if err := e.store.HSet(ctx, key, map[string]interface{}{
			"groupId":         rec.GroupID,
			"groupName":       rec.GroupName,
			"totalCalls":      1,
			"uniqueContracts": 1,
			"wins":            0,
			"winRate":         0,
		}); err != nil {
			return err
		}
		if err := e.store.ZAdd(ctx, keyGroupRanking, rec.GroupID, 0); err != nil {
			return err
		}
	} else {
		if _, err := e.store.HIncrBy(ctx, key, "totalCalls", 1); err != nil {
			return err
		}
		if firstCall {
			if _, err := e.store.HIncrBy(ctx, key, "uniqueContracts", 1); err != nil {
				return err
			}
		}
	}
	if err := e.store.SAdd(ctx, keyGroupContracts(rec.GroupID), address); err != nil {
		return err
	}
	return e.store.SAdd(ctx, keyContractGroups(address), rec.GroupID)
}

func (e *Engine) recordUserCall(ctx context.Context, address string, rec *contracts.ContractRecord) error {
	if rec.UserID == "" {
		return nil
	}
	id := callID(rec.UserID, address)
	key := keyCallStats(id)

	exists, err := e.store.Exists(ctx, key)
	if err != nil {
		return err
	}
	if exists {
		// Same user calling the same contract again keeps the original
		// entry untouched, callTime included
		return nil
	}

	if err := e.store.HSet(ctx, key, map[string]interface{}{
		"callId":            id,
		"address":           address,
		"tokenSymbol":       rec.TokenSymbol,
		"userId":            rec.UserID,
		"userNick":          rec.UserNick,
		"groupId":           rec.GroupID,
		"groupName":         rec.GroupName,
		"callPrice":         rec.TokenPrice,
		"maxMultiplier":     1,
		"currentMultiplier": 1,
		"callTime":          rec.CallTimeMs,
	}); err != nil {
		return err
	}
	if err := e.store.SAdd(ctx, keyContractCalls(address), id); err != nil {
		return err
	}
	return e.store.ZAdd(ctx, keyCallRanking, id, 1)
}

// UpdatePrice applies one observed price to a tracked contract and
// cascades it into every leaderboard referencing the address. Unknown
// addresses are ignored: a price can arrive for a contract whose
// mention was never recorded.
func (e *Engine) UpdatePrice(ctx context.Context, address, chain string, price float64, typ contracts.AddressType) error {
	if price <= 0 {
		return nil
	}
	address = contracts.NormalizeAddress(address, typ)
	unlock := e.locks.lock(address)
	defer unlock()

	key := keyContractStats(address)
	stats, err := e.store.HGetAll(ctx, key)
	if err != nil {
		return fmt.Errorf("load contract %s: %w", address, err)
	}
	if len(stats) == 0 {
		return nil
	}

	// No baseline, no multipliers: a mention recorded without a price
	// stays out of the leaderboards entirely.
	initial := getFloat(stats, "initialPrice")
	if initial <= 0 {
		return nil
	}
	maxPrice := getFloat(stats, "maxPrice")
	if price > maxPrice {
		maxPrice = price
	}
	maxGain := maxPrice/initial - 1

	fields := map[string]interface{}{
		"currentPrice": price,
		"maxPrice":     maxPrice,
		"maxGain":      maxGain,
	}

	wasWin := getBool(stats, "isWin")
	becameWin := !wasWin && maxGain >= e.winThreshold
	if becameWin {
		fields["isWin"] = 1
	}
	if err := e.store.HSet(ctx, key, fields); err != nil {
		return fmt.Errorf("update contract %s: %w", address, err)
	}

	if becameWin {
		if err := e.creditWin(ctx, address); err != nil {
			return fmt.Errorf("credit win for %s: %w", address, err)
		}
	}
	if err := e.updateCalls(ctx, address, initial, price); err != nil {
		return fmt.Errorf("update calls for %s: %w", address, err)
	}
	return nil
}

// creditWin bumps the win counter of every group that called the
// address. The isWin flag flips exactly once, so each group is
// credited at most once per contract per day.
func (e *Engine) creditWin(ctx context.Context, address string) error {
	groups, err := e.store.SMembers(ctx, keyContractGroups(address))
	if err != nil {
		return err
	}
	for _, groupID := range groups {
		if _, err := e.store.HIncrBy(ctx, keyGroupStats(groupID), "wins", 1); err != nil {
			return err
		}
		if err := e.reindexGroup(ctx, groupID); err != nil {
			return err
		}
	}
	e.logger.WithFields(map[string]interface{}{
		"address": address,
		"groups":  len(groups),
	}).Info("contract crossed the win threshold")
	return nil
}

// reindexGroup recomputes a group's win rate and rescores it on the
// group leaderboard
func (e *Engine) reindexGroup(ctx context.Context, groupID string) error {
	key := keyGroupStats(groupID)
	stats, err := e.store.HGetAll(ctx, key)
	if err != nil {
		return err
	}
	unique := getFloat(stats, "uniqueContracts")
	winRate := 0.0
	if unique > 0 {
		winRate = getFloat(stats, "wins") / unique * percentMultiplier
	}
	if err := e.store.HSet(ctx, key, map[string]interface{}{"winRate": winRate}); err != nil {
		return err
	}
	return e.store.ZAdd(ctx, keyGroupRanking, groupID, winRate)
}

// updateCalls recomputes the multipliers of every call on the address
func (e *Engine) updateCalls(ctx context.Context, address string, initial, price float64) error {
	ids, err := e.store.SMembers(ctx, keyContractCalls(address))
	if err != nil {
		return err
	}
	for _, id := range ids {
		key := keyCallStats(id)
		call, err := e.store.HGetAll(ctx, key)
		if err != nil {
			return err
		}
		if len(call) == 0 {
			continue
		}

		base := getFloat(call, "callPrice")
		if base == 0 {
			base = initial
		}
		if base == 0 {
			continue
		}
		current := price / base
		maxMult := getFloat(call, "maxMultiplier")
		if current > maxMult {
			maxMult = current
		}

		if err := e.store.HSet(ctx, key, map[string]interface{}{
			"callPrice":         base,
			"currentMultiplier": current,
			"maxMultiplier":     maxMult,
		}); err != nil {
			return err
		}
		if err := e.store.ZAdd(ctx, keyCallRanking, id, maxMult); err != nil {
			return err
		}
	}
	return nil
}

// GroupRanking returns the top groups by win rate
func (e *Engine) GroupRanking(ctx context.Context, limit int) ([]GroupRankingEntry, error) {
	members, err := e.store.ZRevRangeWithScores(ctx, keyGroupRanking, 0, int64(limit)-1)
	if err != nil {
		return nil, fmt.Errorf("group leaderboard: %w", err)
	}

	entries := make([]GroupRankingEntry, 0, len(members))
	for i, m := range members {
		stats, err := e.store.HGetAll(ctx, keyGroupStats(m.Member))
		if err != nil {
			return nil, fmt.Errorf("group %s: %w", m.Member, err)
		}
		if len(stats) == 0 {
			continue
		}
		entries = append(entries, GroupRankingEntry{
			Rank:            i + 1,
			GroupID:         m.Member,
			GroupName:       stats["groupName"],
			WinRate:         m.Score,
			TotalCalls:      getInt(stats, "totalCalls"),
			UniqueContracts: getInt(stats, "uniqueContracts"),
			Wins:            getInt(stats, "wins"),
		})
	}
	return entries, nil
}

// CallRanking returns the top calls by peak multiplier
func (e *Engine) CallRanking(ctx context.Context, limit int) ([]CallRankingEntry, error) {
	members, err := e.store.ZRevRangeWithScores(ctx, keyCallRanking, 0, int64(limit)-1)
	if err != nil {
		return nil, fmt.Errorf("call leaderboard: %w", err)
	}

	entries := make([]CallRankingEntry, 0, len(members))
	for i, m := range members {
		call, err := e.store.HGetAll(ctx, keyCallStats(m.Member))
		if err != nil {
			return nil, fmt.Errorf("call %s: %w", m.Member, err)
		}
		if len(call) == 0 {
			continue
		}
		entries = append(entries, CallRankingEntry{
			Rank:              i + 1,
			CallID:            m.Member,
			Address:           call["address"],
			TokenSymbol:       call["tokenSymbol"],
			UserID:            call["userId"],
			UserNick:          call["userNick"],
			GroupID:           call["groupId"],
			GroupName:         call["groupName"],
			MaxMultiplier:     m.Score,
			CurrentMultiplier: getFloat(call, "currentMultiplier"),
			CallTimeMs:        getInt(call, "callTime"),
		})
	}
	return entries, nil
}

// ContractStats returns the tracked stats for one address, or nil if
// the address is unknown
func (e *Engine) ContractStats(ctx context.Context, address string, typ contracts.AddressType) (*ContractStats, error) {
	address = contracts.NormalizeAddress(address, typ)
	stats, err := e.store.HGetAll(ctx, keyContractStats(address))
	if err != nil {
		return nil, fmt.Errorf("load contract %s: %w", address, err)
	}
	if len(stats) == 0 {
		return nil, nil
	}
	return &ContractStats{
		Address:      address,
		InitialPrice: getFloat(stats, "initialPrice"),
		CurrentPrice: getFloat(stats, "currentPrice"),
		MaxPrice:     getFloat(stats, "maxPrice"),
		MaxGain:      getFloat(stats, "maxGain"),
		IsWin:        getBool(stats, "isWin"),
		FirstCallMs:  getInt(stats, "firstCallTime"),
		LastCallMs:   getInt(stats, "lastCallTime"),
		CallCount:    getInt(stats, "callCount"),
	}, nil
}

// ActiveContracts returns addresses called within the last hour,
// oldest first, at most limit entries
func (e *Engine) ActiveContracts(ctx context.Context, limit int) ([]string, error) {
	cutoff := e.now().Add(-activeWindow).UnixMilli()
	addrs, err := e.store.ZRangeByScoreMin(ctx, keyActiveContracts, float64(cutoff))
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(addrs) > limit {
		addrs = addrs[:limit]
	}
	return addrs, nil
}

// ResetDaily wipes every ranking key, starting the day's leaderboards
// from scratch
func (e *Engine) ResetDaily(ctx context.Context) error {
	keys, err := e.store.ScanKeys(ctx, resetScanPattern)
	if err != nil {
		return fmt.Errorf("scan ranking keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := e.store.Del(ctx, keys...); err != nil {
		return fmt.Errorf("delete %d ranking keys: %w", len(keys), err)
	}
	e.logger.WithField("keys", len(keys)).Info("daily ranking reset complete")
	return nil
}

// trimActive keeps the active set bounded by dropping its oldest entries
func (e *Engine) trimActive(ctx context.Context) error {
	card, err := e.store.ZCard(ctx, keyActiveContracts)
	if err != nil {
		return err
	}
	if card <= activeMaxEntries {
		return nil
	}
	return e.store.ZRemRangeByRank(ctx, keyActiveContracts, 0, card-activeMaxEntries-1)
}

func getFloat(m map[string]string, field string) float64 {
	v, err := strconv.ParseFloat(m[field], 64)
	if err != nil {
		return 0
	}
	return v
}

func getInt(m map[string]string, field string) int64 {
	v, err := strconv.ParseInt(m[field], 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func getBool(m map[string]string, field string) bool {
	return m[field] == "1" || m[field] == "true"
}
