package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"nomisma-settlement/internal/domain"
)

// MethodGetExchangeRate is the JSON-RPC method quoting one pair.
const MethodGetExchangeRate = "getExchangeRate"

const (
	defaultRPCTimeout    = 10 * time.Second
	defaultRPCRetries    = 3
	defaultRPCRetryDelay = 500 * time.Millisecond
	maxRPCRetryDelay     = 5 * time.Second
)

// HTTPClient quotes rates from an exchange connector over JSON-RPC 2.0.
type HTTPClient struct {
	endpoint   string
	http       *http.Client
	retries    int
	retryDelay time.Duration
	nextID     atomic.Uint64
}

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout bounds each HTTP round trip.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) { c.http.Timeout = d }
}

// WithMaxRetries sets how many times a failed transport call is repeated.
func WithMaxRetries(n int) ClientOption {
	return func(c *HTTPClient) { c.retries = n }
}

// WithRetryDelay sets the first backoff delay; it doubles up to 5s.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) { c.retryDelay = d }
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *HTTPClient) { c.http = hc }
}

// NewHTTPClient creates a client for the connector at endpoint.
func NewHTTPClient(endpoint string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		endpoint:   endpoint,
		http:       &http.Client{Timeout: defaultRPCTimeout},
		retries:    defaultRPCRetries,
		retryDelay: defaultRPCRetryDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

type rpcResponse struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// transientError marks a failure worth another attempt.
type transientError struct{ err error }

func (e transientError) Error() string { return e.err.Error() }
func (e transientError) Unwrap() error { return e.err }

// Quote calls getExchangeRate(from, to, amount). The connector answers with
// a decimal rate as a JSON string or number; null means no quote.
func (c *HTTPClient) Quote(ctx context.Context, from, to domain.AssetCode, amount decimal.Decimal) (decimal.Decimal, error) {
	pair := Pair{From: from, To: to}

	var rate decimal.NullDecimal
	err := c.call(ctx, MethodGetExchangeRate, []any{string(from), string(to), amount.String()}, &rate)
	if err != nil {
		return decimal.Zero, fmt.Errorf("quote %s: %w", pair, err)
	}
	if !rate.Valid {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrNoQuote, pair)
	}
	if err := checkRate(pair, rate.Decimal); err != nil {
		return decimal.Zero, err
	}
	return rate.Decimal, nil
}

// call sends one request, repeating transport failures with doubling delays.
// Errors reported by the connector itself are returned at once.
func (c *HTTPClient) call(ctx context.Context, method string, params []any, out any) error {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: c.nextID.Add(1), Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	delay := c.retryDelay
	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
			delay = min(2*delay, maxRPCRetryDelay)
		}

		result, err := c.post(ctx, body)
		var transient transientError
		switch {
		case err == nil:
			if out == nil || len(result) == 0 {
				return nil
			}
			if err := json.Unmarshal(result, out); err != nil {
				return fmt.Errorf("decode result: %w", err)
			}
			return nil
		case ctx.Err() != nil:
			return ctx.Err()
		case errors.As(err, &transient):
			lastErr = err
		default:
			return err
		}
	}
	return fmt.Errorf("giving up after %d attempts: %w", c.retries+1, lastErr)
}

func (c *HTTPClient) post(ctx context.Context, body []byte) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, transientError{fmt.Errorf("post: %w", err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transientError{fmt.Errorf("read body: %w", err)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, transientError{fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(raw))}
	}

	var rr rpcResponse
	if err := json.Unmarshal(raw, &rr); err != nil {
		return nil, transientError{fmt.Errorf("decode response: %w", err)}
	}
	if rr.Error != nil {
		return nil, rr.Error
	}
	return rr.Result, nil
}
