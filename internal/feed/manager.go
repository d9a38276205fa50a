package feed

import (
	"context"
	"sync"
	"time"

	"github.com/wonny/camon/backend/internal/contracts"
	"github.com/wonny/camon/backend/pkg/config"
	"github.com/wonny/camon/backend/pkg/httputil"
	"github.com/wonny/camon/backend/pkg/logger"
)

const cleanupInterval = 5 * time.Minute

// Manager ties the feed subsystem together: contract mentions become
// subscriptions, the websocket and the poller feed prices back through
// the registry, and everything forwarded to the price sink.
//
// ⭐ SSOT: 가격 구독 수명주기는 여기서만 관리한다
type Manager struct {
	cfg    *config.Config
	logger *logger.Logger

	registry *Registry
	conn     *Conn
	poller   *Poller
	sink     PriceSink

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewManager(cfg *config.Config, log *logger.Logger, httpClient *httputil.Client, sink PriceSink) *Manager {
	m := &Manager{
		cfg:      cfg,
		logger:   log.WithField("component", "feed-manager"),
		registry: NewRegistry(cfg.Feed.MaxSubscriptions, log),
		sink:     sink,
		stopCh:   make(chan struct{}),
	}
	m.conn = NewConn(cfg.Feed, log, m.registry.Keys, m.handlePrices)
	m.poller = NewPoller(cfg.Feed, log, httpClient, m.registry, sink)
	return m
}

// Start connects the feed and launches the poller and the cleanup loop.
// A failed initial dial is not fatal: the connection retries on its own
// and the poller covers the gap meanwhile.
func (m *Manager) Start(ctx context.Context) {
	if err := m.conn.Connect(ctx); err != nil {
		m.logger.WithError(err).Warn("initial feed connect failed, relying on reconnect")
	}
	m.poller.Start(ctx)

	m.wg.Add(1)
	go m.cleanupLoop(ctx)

	m.logger.Info("feed manager started")
}

// Stop shuts the subsystem down in dependency order
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
		m.poller.Stop()
		m.conn.Stop()
		m.wg.Wait()
		m.logger.Info("feed manager stopped")
	})
}

// OnNewContract subscribes a first-seen contract at the hot tier
func (m *Manager) OnNewContract(address, chain string, typ contracts.AddressType) {
	m.subscribe(address, chain, typ, TierHot)
}

// OnContractRecalled subscribes a re-mentioned contract at the warm tier.
// If it is already subscribed the mention refreshes it instead.
func (m *Manager) OnContractRecalled(address, chain string, typ contracts.AddressType) {
	m.subscribe(address, chain, typ, TierWarm)
}

func (m *Manager) subscribe(address, chain string, typ contracts.AddressType, tier Tier) {
	norm := contracts.NormalizeAddress(address, typ)
	mapped := contracts.MapChain(typ, chain)

	key, isNew, evicted := m.registry.Subscribe(norm, mapped, typ, tier)

	if len(evicted) > 0 && m.conn.IsConnected() {
		if err := m.conn.Unsubscribe(evicted); err != nil {
			m.logger.WithError(err).Warn("unsubscribe of evicted keys failed")
		}
	}
	if isNew && m.conn.IsConnected() {
		if err := m.conn.Subscribe([]string{key}); err != nil {
			m.logger.WithField("key", key).WithError(err).Warn("feed subscribe failed")
		}
	}
}

// Unsubscribe drops a contract from tracking entirely
func (m *Manager) Unsubscribe(address, chain string, typ contracts.AddressType) {
	norm := contracts.NormalizeAddress(address, typ)
	mapped := contracts.MapChain(typ, chain)

	key, removed := m.registry.Unsubscribe(norm, mapped)
	if removed && m.conn.IsConnected() {
		if err := m.conn.Unsubscribe([]string{key}); err != nil {
			m.logger.WithField("key", key).WithError(err).Warn("feed unsubscribe failed")
		}
	}
}

// handlePrices fans pushed prices out to the registry and the sink.
// Prices for unknown keys still reach the sink: the ranking baseline
// may outlive the subscription.
func (m *Manager) handlePrices(prices []PricePush) {
	ctx := context.Background()
	for _, p := range prices {
		typ := contracts.DetectAddressType(p.Token)
		norm := contracts.NormalizeAddress(p.Token, typ)
		key := contracts.TokenKey(norm, p.Chain)

		if !m.registry.ApplyPush(key, p.Price, p.PriceChange, p.Direction) {
			m.logger.WithField("key", key).Debug("push for unsubscribed token")
		}
		if err := m.sink.UpdatePrice(ctx, norm, p.Chain, p.Price, typ); err != nil {
			m.logger.WithField("key", key).WithError(err).Error("ranking update from push failed")
		}
	}
}

func (m *Manager) cleanupLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.cleanup()
		}
	}
}

func (m *Manager) cleanup() {
	removed := m.registry.DemoteStale(time.Now())
	if len(removed) > 0 && m.conn.IsConnected() {
		if err := m.conn.Unsubscribe(removed); err != nil {
			m.logger.WithError(err).Warn("unsubscribe of expired keys failed")
		}
	}
}

// Status reports the feed subsystem state for the API
func (m *Manager) Status() ManagerStatus {
	return ManagerStatus{
		Connected:         m.conn.IsConnected(),
		State:             m.conn.State().String(),
		SubscriptionCount: m.registry.Size(),
		ReconnectAttempts: m.conn.Attempts(),
		Subscriptions:     m.registry.Snapshot(),
	}
}
