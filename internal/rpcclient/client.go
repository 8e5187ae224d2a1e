// Package rpcclient implements the scanner's JSON-RPC transport: endpoint
// rotation, rate-limit detection, and the two-class failure taxonomy
// (RateLimited vs Transport) spec.md §4.1 describes. It does not retry —
// retry policy belongs to BatchFetcher, the caller.
package rpcclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/polyarb/scanner/internal/metrics"
)

// rateLimitMarkers are substrings that, found anywhere in a response body,
// are treated as a rate-limit signal even without an HTTP 429 — grounded on
// original_source/ankr_reserves.py's `'rate limit' in error_str or
// 'too many' in error_str or '429' in error_str` check.
var rateLimitMarkers = []string{"rate limit", "too many", "429"}

// RateLimitedError signals the caller should retry, optionally on a new
// endpoint. The client itself never retries.
type RateLimitedError struct {
	Endpoint string
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited by %s", e.Endpoint)
}

// TransportError wraps a network-level or timeout failure.
type TransportError struct {
	Endpoint string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error to %s: %v", e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Request is one JSON-RPC 2.0 request object.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	ID      int    `json:"id"`
}

// RawResponse is returned verbatim after JSON decoding — callers unpack the
// Result field themselves, matching spec.md §4.1 ("responses are returned
// verbatim after JSON parsing").
type RawResponse struct {
	ID     int             `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Client rotates across an ordered list of upstream HTTP URLs.
type Client struct {
	urls []string
	idx  atomic.Int64

	successCount   atomic.Int64
	rotateEvery    int64
	timeout        time.Duration
	httpClient     *http.Client
	mu             sync.Mutex // serializes rotation bookkeeping only
	metrics        *metrics.Metrics
}

// New builds a Client over an ordered endpoint list. rotateEvery is the
// successful-request count after which the endpoint advances (default 20
// per spec.md §4.1); timeout is the per-request transport timeout (default
// 30s). m may be nil.
func New(urls []string, rotateEvery int, timeout time.Duration, m *metrics.Metrics) (*Client, error) {
	if len(urls) == 0 {
		return nil, fmt.Errorf("rpcclient: no endpoints configured")
	}
	if rotateEvery <= 0 {
		rotateEvery = 20
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		urls:        urls,
		rotateEvery: int64(rotateEvery),
		timeout:     timeout,
		httpClient:  &http.Client{Timeout: timeout},
		metrics:     m,
	}, nil
}

// CurrentEndpoint returns the URL the next call will use.
func (c *Client) CurrentEndpoint() string {
	i := c.idx.Load() % int64(len(c.urls))
	if i < 0 {
		i += int64(len(c.urls))
	}
	return c.urls[i]
}

// ForceRotate advances the endpoint index immediately, regardless of the
// success counter. The caller may request this in addition to the
// rate-limit-triggered rotation below (spec.md §4.1: "Rotation is
// advisory; the caller may also request a forced switch").
func (c *Client) ForceRotate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.idx.Add(1)
	c.successCount.Store(0)
}

func (c *Client) recordSuccess() {
	n := c.successCount.Add(1)
	if n >= c.rotateEvery {
		c.mu.Lock()
		if c.successCount.Load() >= c.rotateEvery {
			c.idx.Add(1)
			c.successCount.Store(0)
		}
		c.mu.Unlock()
	}
}

// Post sends one request object or a batch (array) and returns the decoded
// body. payload must already be a json.Marshal-able request or []Request.
func (c *Client) Post(ctx context.Context, payload any) ([]byte, error) {
	endpoint := c.CurrentEndpoint()

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("rpcclient: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{Endpoint: endpoint, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Timeouts are Transport failures, never rotation triggers
		// (spec.md §4.1: "Transport timeouts are treated as failures
		// without rotation").
		return nil, &TransportError{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Endpoint: endpoint, Err: err}
	}

	if resp.StatusCode == http.StatusTooManyRequests || containsRateLimitMarker(respBody) {
		log.Debug().Str("endpoint", endpoint).Msg("rpc rate limit detected, forcing rotation")
		if c.metrics != nil {
			c.metrics.RPCRateLimits.Inc()
		}
		c.ForceRotate()
		return nil, &RateLimitedError{Endpoint: endpoint}
	}

	if resp.StatusCode >= 500 {
		return nil, &TransportError{Endpoint: endpoint, Err: fmt.Errorf("http %d", resp.StatusCode)}
	}

	c.recordSuccess()
	return respBody, nil
}

func containsRateLimitMarker(body []byte) bool {
	lower := strings.ToLower(string(body))
	for _, marker := range rateLimitMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
