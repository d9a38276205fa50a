package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wonny/camon/backend/pkg/config"
	"github.com/wonny/camon/backend/pkg/logger"
)

// ConnState is the feed connection lifecycle state
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateFatal // reconnect budget exhausted, operator action required
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateFatal:
		return "fatal"
	}
	return "unknown"
}

const (
	handshakeTimeout    = 10 * time.Second
	writeWait           = 10 * time.Second
	reconnectBackoffCap = 5 // delay multiplier stops growing past this attempt
)

// rpcRequest is the JSON-RPC 2.0 envelope the feed expects
type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      int64         `json:"id"`
}

// PricePush is one pushed price update from the feed
type PricePush struct {
	Token       string  `json:"token"`
	Chain       string  `json:"chain"`
	Price       float64 `json:"uprice"`
	PriceChange float64 `json:"price_change"`
	Direction   int     `json:"direction"`
}

type feedResult struct {
	Topic  string      `json:"topic"`
	Prices []PricePush `json:"prices"`
}

type feedMessage struct {
	ID     int64           `json:"id,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  json.RawMessage `json:"error,omitempty"`
}

// Conn maintains the websocket to the price feed: connect, subscribe,
// read pushed prices, and reconnect with backoff on failure. It never
// gives up silently; exhausting the reconnect budget parks the
// connection in StateFatal where status reporting can surface it.
type Conn struct {
	cfg    config.FeedConfig
	logger *logger.Logger

	onPrices    func([]PricePush)
	resubscribe func() []string // keys to re-subscribe after a reconnect

	connMu   sync.Mutex
	conn     *websocket.Conn
	attempts int

	state atomic.Int32
	msgID atomic.Int64

	reconnectMu  sync.Mutex
	reconnecting bool

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewConn creates a feed connection. resubscribe supplies the token
// keys to restore after a reconnect; onPrices receives validated
// pushed prices.
func NewConn(cfg config.FeedConfig, log *logger.Logger, resubscribe func() []string, onPrices func([]PricePush)) *Conn {
	return &Conn{
		cfg:         cfg,
		logger:      log.WithField("component", "feed-conn"),
		onPrices:    onPrices,
		resubscribe: resubscribe,
		stopCh:      make(chan struct{}),
	}
}

// Connect dials the feed and starts the read and ping loops.
// A dial failure schedules a reconnect before returning the error.
func (c *Conn) Connect(ctx context.Context) error {
	switch c.State() {
	case StateConnecting, StateConnected:
		return nil
	case StateFatal:
		return fmt.Errorf("connection is fatal, restart required")
	}
	c.setState(StateConnecting)

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	header := http.Header{}
	if c.cfg.APIKey != "" {
		header.Set("X-API-KEY", c.cfg.APIKey)
	}

	conn, _, err := dialer.DialContext(ctx, c.cfg.WSURL, header)
	if err != nil {
		c.setState(StateDisconnected)
		c.logger.WithError(err).Error("feed dial failed")
		c.scheduleReconnect(ctx)
		return fmt.Errorf("dial feed: %w", err)
	}

	c.connMu.Lock()
	c.conn = conn
	c.attempts = 0
	c.connMu.Unlock()
	c.setState(StateConnected)
	c.logger.WithField("url", c.cfg.WSURL).Info("feed connected")

	c.wg.Add(2)
	go c.readLoop(ctx)
	go c.pingLoop(ctx)

	if keys := c.resubscribe(); len(keys) > 0 {
		if err := c.Subscribe(keys); err != nil {
			c.logger.WithError(err).Error("resubscribe after connect failed")
		} else {
			c.logger.WithField("count", len(keys)).Info("resubscribed existing tokens")
		}
	}
	return nil
}

// Subscribe asks the feed for push updates on the given token keys
func (c *Conn) Subscribe(keys []string) error {
	return c.send("subscribe", keys)
}

// Unsubscribe stops push updates for the given token keys
func (c *Conn) Unsubscribe(keys []string) error {
	return c.send("unsubscribe", keys)
}

func (c *Conn) send(method string, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil || c.State() != StateConnected {
		return fmt.Errorf("feed not connected")
	}
	req := rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  []interface{}{"price", keys},
		ID:      c.msgID.Add(1),
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(req); err != nil {
		return fmt.Errorf("%s %d keys: %w", method, len(keys), err)
	}
	return nil
}

func (c *Conn) readLoop(ctx context.Context) {
	defer c.wg.Done()

	for {
		select {
		case <-c.stopCh:
			return
		default:
		}

		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()
		if conn == nil {
			return
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.stopCh:
				return
			default:
			}
			c.logger.WithError(err).Warn("feed read failed")
			c.handleDisconnect(ctx)
			return
		}
		c.handleMessage(data)
	}
}

// handleMessage parses one feed frame. Malformed frames are logged and
// dropped, they never tear down the connection.
func (c *Conn) handleMessage(data []byte) {
	var msg feedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.logger.WithError(err).Warn("dropping unparseable feed frame")
		return
	}
	if msg.Error != nil {
		c.logger.WithField("error", string(msg.Error)).Warn("feed reported an error")
		return
	}
	if msg.Result == nil {
		return
	}

	// Acks echo the request id and carry a non-push result shape
	var result feedResult
	if err := json.Unmarshal(msg.Result, &result); err != nil || result.Topic != "price" {
		if msg.ID != 0 {
			c.logger.WithField("id", msg.ID).Debug("feed request acknowledged")
		}
		return
	}

	if prices := validPrices(result.Prices); len(prices) > 0 {
		c.onPrices(prices)
	}
}

// validPrices drops non-positive prices, which the feed occasionally
// emits for delisted or unindexed tokens
func validPrices(prices []PricePush) []PricePush {
	valid := prices[:0]
	for _, p := range prices {
		if p.Price > 0 {
			valid = append(valid, p)
		}
	}
	return valid
}

func (c *Conn) pingLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.connMu.Lock()
			conn := c.conn
			c.connMu.Unlock()
			if conn == nil || c.State() != StateConnected {
				return
			}
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.logger.WithError(err).Warn("feed ping failed")
				c.handleDisconnect(ctx)
				return
			}
		}
	}
}

// handleDisconnect tears down the socket and schedules a reconnect.
// Both loops can observe the same failure; only the first caller acts.
func (c *Conn) handleDisconnect(ctx context.Context) {
	c.reconnectMu.Lock()
	if c.reconnecting {
		c.reconnectMu.Unlock()
		return
	}
	c.reconnecting = true
	c.reconnectMu.Unlock()

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()
	c.setState(StateDisconnected)

	c.scheduleReconnect(ctx)
}

func (c *Conn) scheduleReconnect(ctx context.Context) {
	c.connMu.Lock()
	c.attempts++
	attempts := c.attempts
	c.connMu.Unlock()

	if attempts > c.cfg.MaxReconnectAttempts {
		c.setState(StateFatal)
		c.logger.WithField("attempts", attempts-1).Error("feed reconnect budget exhausted")
		return
	}

	mult := attempts
	if mult > reconnectBackoffCap {
		mult = reconnectBackoffCap
	}
	delay := c.cfg.ReconnectBaseDelay * time.Duration(mult)
	c.logger.WithFields(map[string]interface{}{
		"attempt": attempts,
		"delay":   delay.String(),
	}).Info("feed reconnect scheduled")

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		select {
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		c.reconnectMu.Lock()
		c.reconnecting = false
		c.reconnectMu.Unlock()
		if err := c.Connect(ctx); err != nil {
			c.logger.WithError(err).Warn("feed reconnect failed")
		}
	}()
}

// Stop closes the connection and waits for all loops to exit
func (c *Conn) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
		c.connMu.Lock()
		if c.conn != nil {
			c.conn.Close()
			c.conn = nil
		}
		c.connMu.Unlock()
		c.wg.Wait()
		c.setState(StateDisconnected)
		c.logger.Info("feed connection stopped")
	})
}

// State returns the current connection state
func (c *Conn) State() ConnState {
	return ConnState(c.state.Load())
}

// IsConnected reports whether the socket is up
func (c *Conn) IsConnected() bool {
	return c.State() == StateConnected
}

// Attempts returns the current reconnect attempt counter
func (c *Conn) Attempts() int {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.attempts
}

func (c *Conn) setState(s ConnState) {
	c.state.Store(int32(s))
}
