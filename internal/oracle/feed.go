package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"nomisma-settlement/internal/domain"
)

// Feed wire methods.
const (
	MethodRateSubscribe    = "rateSubscribe"
	MethodRateNotification = "rateNotification"
)

// FeedConfig configures FeedClient behavior.
type FeedConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// MaxAge is how long a received rate stays quotable. Zero disables expiry.
	MaxAge time.Duration
	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time
	// OnUpdate is called for every accepted rate update.
	OnUpdate func(Pair, decimal.Decimal)
}

// DefaultFeedConfig returns default feed configuration.
func DefaultFeedConfig() FeedConfig {
	return FeedConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		MaxAge:            1 * time.Minute,
	}
}

type feedRate struct {
	rate       decimal.Decimal
	receivedAt time.Time
}

// FeedClient implements RateOracle from a websocket stream of rate updates.
// Quote answers from the latest update of each subscribed pair.
type FeedClient struct {
	endpoint string
	config   FeedConfig
	pairs    []Pair

	conn      *websocket.Conn
	connMu    sync.Mutex
	closed    atomic.Bool
	requestID atomic.Uint64

	rates   map[Pair]feedRate
	ratesMu sync.RWMutex

	// done signals shutdown
	done chan struct{}
	wg   sync.WaitGroup
}

// NewFeedClient connects to endpoint and subscribes to pairs.
func NewFeedClient(ctx context.Context, endpoint string, pairs []Pair, config *FeedConfig) (*FeedClient, error) {
	cfg := DefaultFeedConfig()
	if config != nil {
		cfg = *config
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if len(pairs) == 0 {
		return nil, fmt.Errorf("feed: no pairs to subscribe")
	}

	c := &FeedClient{
		endpoint: endpoint,
		config:   cfg,
		pairs:    append([]Pair(nil), pairs...),
		rates:    make(map[Pair]feedRate),
		done:     make(chan struct{}),
	}

	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	c.wg.Add(1)
	go c.readLoop()

	if cfg.PingInterval > 0 {
		c.wg.Add(1)
		go c.pingLoop()
	}

	return c, nil
}

// connect dials the endpoint and sends the subscription.
func (c *FeedClient) connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}
	if c.closed.Load() {
		conn.Close()
		return fmt.Errorf("feed closed")
	}

	params := make([]interface{}, len(c.pairs))
	for i, p := range c.pairs {
		params[i] = p.String()
	}
	req := feedRequest{
		JSONRPC: "2.0",
		ID:      c.requestID.Add(1),
		Method:  MethodRateSubscribe,
		Params:  params,
	}

	conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	if err := conn.WriteJSON(req); err != nil {
		conn.Close()
		return fmt.Errorf("write subscribe: %w", err)
	}

	c.conn = conn
	return nil
}

// Quote returns the latest rate for the pair. Missing or stale rates are
// ErrNoQuote. The amount does not affect a streamed spot rate.
func (c *FeedClient) Quote(_ context.Context, from, to domain.AssetCode, _ decimal.Decimal) (decimal.Decimal, error) {
	pair := Pair{From: from, To: to}
	rate, at, ok := c.Rate(pair)
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s not streamed yet", ErrNoQuote, pair)
	}
	if c.config.MaxAge > 0 && c.config.Clock().Sub(at) > c.config.MaxAge {
		return decimal.Zero, fmt.Errorf("%w: %s stale since %s", ErrNoQuote, pair, at.Format(time.RFC3339))
	}
	return rate, nil
}

// Rate returns the latest update for pair and when it was received.
func (c *FeedClient) Rate(pair Pair) (decimal.Decimal, time.Time, bool) {
	c.ratesMu.RLock()
	defer c.ratesMu.RUnlock()
	r, ok := c.rates[pair]
	return r.rate, r.receivedAt, ok
}

// Close closes the websocket connection.
func (c *FeedClient) Close() error {
	if c.closed.Swap(true) {
		return nil
	}

	close(c.done)

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
	}
	c.connMu.Unlock()

	c.wg.Wait()
	return nil
}

// readLoop reads updates until Close, reconnecting on connection errors.
func (c *FeedClient) readLoop() {
	defer c.wg.Done()

	for !c.closed.Load() {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		if conn == nil {
			if !c.reconnect() {
				return
			}
			continue
		}

		if c.config.ReadTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}
			c.dropConn(conn)
			continue
		}

		c.handleMessage(message)
	}
}

// dropConn discards conn if it is still current.
func (c *FeedClient) dropConn(conn *websocket.Conn) {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == conn {
		c.conn.Close()
		c.conn = nil
	}
}

// reconnect redials with exponential backoff. It returns false on shutdown.
func (c *FeedClient) reconnect() bool {
	delay := c.config.ReconnectDelay
	for {
		select {
		case <-c.done:
			return false
		case <-time.After(delay):
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := c.connect(ctx)
		cancel()
		if err == nil {
			return true
		}

		delay *= 2
		if delay > c.config.MaxReconnectDelay {
			delay = c.config.MaxReconnectDelay
		}
	}
}

// handleMessage stores a rate notification. Other frames are ignored.
func (c *FeedClient) handleMessage(message []byte) {
	var notif feedNotification
	if err := json.Unmarshal(message, &notif); err != nil || notif.Method != MethodRateNotification || notif.Params == nil {
		return
	}

	pair, err := ParsePair(string(notif.Params.From) + "/" + string(notif.Params.To))
	if err != nil || checkRate(pair, notif.Params.Rate) != nil {
		return
	}

	c.ratesMu.Lock()
	c.rates[pair] = feedRate{rate: notif.Params.Rate, receivedAt: c.config.Clock()}
	c.ratesMu.Unlock()

	if c.config.OnUpdate != nil {
		c.config.OnUpdate(pair, notif.Params.Rate)
	}
}

// pingLoop sends periodic ping frames to keep connection alive.
func (c *FeedClient) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.connMu.Lock()
			if c.conn != nil {
				c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
				// A dead connection surfaces as a read error.
				_ = c.conn.WriteMessage(websocket.PingMessage, nil)
			}
			c.connMu.Unlock()
		}
	}
}

// Feed message types

type feedRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type feedNotification struct {
	JSONRPC string                  `json:"jsonrpc"`
	Method  string                  `json:"method"`
	Params  *feedNotificationParams `json:"params"`
}

type feedNotificationParams struct {
	From domain.AssetCode `json:"from"`
	To   domain.AssetCode `json:"to"`
	Rate decimal.Decimal  `json:"rate"`
}
