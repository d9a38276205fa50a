package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/wonny/camon/backend/internal/contracts"
	"github.com/wonny/camon/backend/pkg/config"
	"github.com/wonny/camon/backend/pkg/httputil"
	"github.com/wonny/camon/backend/pkg/logger"
)

const pricePollPath = "/v2/tokens/price"

// pollRequest is the batched price lookup body
type pollRequest struct {
	TokenIDs []string `json:"token_ids"`
}

type pollEntry struct {
	CurrentPriceUSD json.Number `json:"current_price_usd"`
}

type pollResponse struct {
	Status int                  `json:"status"`
	Data   map[string]pollEntry `json:"data"`
}

// Poller is the REST fallback path: every cycle it batches the
// poll-worthy subscriptions into one request so gaps in push coverage
// still get fresh prices. A failed cycle is logged and skipped, the
// next tick retries naturally.
type Poller struct {
	cfg      config.FeedConfig
	logger   *logger.Logger
	http     *httputil.Client
	registry *Registry
	sink     PriceSink
	limiter  *rate.Limiter
	rnd      func() float64

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewPoller(cfg config.FeedConfig, log *logger.Logger, client *httputil.Client, registry *Registry, sink PriceSink) *Poller {
	return &Poller{
		cfg:      cfg,
		logger:   log.WithField("component", "feed-poller"),
		http:     client,
		registry: registry,
		sink:     sink,
		// One batched call per poll interval. Manual or overlapping
		// triggers wait for the interval to elapse instead of hitting
		// the upstream early.
		limiter: rate.NewLimiter(rate.Every(cfg.PollInterval), 1),
		rnd:     rand.Float64,
		stopCh:  make(chan struct{}),
	}
}

// Start launches the poll loop
func (p *Poller) Start(ctx context.Context) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.cfg.PollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-p.stopCh:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := p.pollOnce(ctx); err != nil {
					p.logger.WithError(err).Warn("poll cycle failed")
				}
			}
		}
	}()
	p.logger.WithField("interval", p.cfg.PollInterval.String()).Info("price poller started")
}

// Stop halts the poll loop
func (p *Poller) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopCh)
		p.wg.Wait()
		p.logger.Info("price poller stopped")
	})
}

// pollOnce runs a single poll cycle: select candidates, fetch their
// prices in one batch, and fan the results out to the registry and the
// price sink.
func (p *Poller) pollOnce(ctx context.Context) error {
	keys := p.registry.PollCandidates(time.Now(), p.rnd)
	if len(keys) == 0 {
		p.logger.Debug("no poll candidates this cycle")
		return nil
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, p.cfg.PollTimeout)
	defer cancel()

	httpResp, err := p.http.PostJSON(callCtx, p.cfg.APIURL+pricePollPath, pollRequest{TokenIDs: keys})
	if err != nil {
		return fmt.Errorf("batch price poll (%d tokens): %w", len(keys), err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return fmt.Errorf("batch price poll: unexpected status %d", httpResp.StatusCode)
	}
	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return fmt.Errorf("read poll response: %w", err)
	}

	var resp pollResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("decode poll response: %w", err)
	}
	if resp.Status != 1 {
		return fmt.Errorf("poll response status %d", resp.Status)
	}

	updated := 0
	for tokenKey, entry := range resp.Data {
		price, err := entry.CurrentPriceUSD.Float64()
		if err != nil {
			p.logger.WithField("token", tokenKey).WithError(err).Warn("unparseable polled price")
			continue
		}
		if price <= 0 {
			continue
		}

		p.registry.ApplyPrice(tokenKey, price)

		address, chain := contracts.SplitTokenKey(tokenKey)
		typ := contracts.DetectAddressType(address)
		if err := p.sink.UpdatePrice(ctx, address, chain, price, typ); err != nil {
			p.logger.WithField("token", tokenKey).WithError(err).Error("ranking update from poll failed")
			continue
		}
		updated++
	}

	p.logger.WithFields(map[string]interface{}{
		"requested": len(keys),
		"updated":   updated,
	}).Debug("poll cycle complete")
	return nil
}
