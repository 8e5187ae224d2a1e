package rpcclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// CallRequest is one logical eth_call the BatchFetcher will pack into a
// JSON-RPC batch payload.
type CallRequest struct {
	Target common.Address
	Data   []byte
}

// CallResult is the outcome of one CallRequest, keyed by its position in
// the original request slice so callers can zip results back to requests.
type CallResult struct {
	Index  int
	Result []byte // raw ABI return data, nil on failure
	Err    error
}

const maxSplitDepth = 3
const minSplitSize = 2
const maxRetries = 3

// BatchFetcher packs eth_call requests into JSON-RPC array payloads, with
// halving-on-failure and rate-limit/timeout retry per spec.md §4.2.
type BatchFetcher struct {
	client *Client
}

func NewBatchFetcher(client *Client) *BatchFetcher {
	return &BatchFetcher{client: client}
}

// Fetch runs one logical batch of eth_call requests, returning at most one
// CallResult per input element (not necessarily in index order — callers
// index by .Index). Results for requests the halving ladder could not
// recover are omitted, matching spec.md's testable property "count of
// emitted results ≤ count of inputs".
func (f *BatchFetcher) Fetch(ctx context.Context, reqs []CallRequest) []CallResult {
	return f.fetchWithRetry(ctx, reqs, 0, 0)
}

func (f *BatchFetcher) fetchWithRetry(ctx context.Context, reqs []CallRequest, retryCount, splitDepth int) []CallResult {
	if len(reqs) == 0 {
		return nil
	}

	results, batchErr := f.sendOnce(ctx, reqs)
	if batchErr == nil && len(results) > 0 {
		return results
	}

	var rateLimited *RateLimitedError
	isRateLimited := errors.As(batchErr, &rateLimited)
	var transport *TransportError
	isTimeout := errors.As(batchErr, &transport)

	if (isRateLimited || isTimeout) && retryCount < maxRetries {
		backoff := time.Duration(math.Min(2*math.Pow(2, float64(retryCount)), 10)) * time.Second
		log.Debug().
			Int("retry", retryCount+1).
			Dur("backoff", backoff).
			Bool("rate_limited", isRateLimited).
			Msg("batch fetch retrying after backoff")
		if !sleepCtx(ctx, backoff) {
			return nil
		}
		return f.fetchWithRetry(ctx, reqs, retryCount+1, splitDepth)
	}

	// Halving-on-failure: an entire batch with no usable results and more
	// than 2 items is split and the halves are fetched in parallel,
	// recursing up to depth 3 (spec.md §4.2).
	if len(results) == 0 && len(reqs) > minSplitSize && splitDepth < maxSplitDepth {
		mid := len(reqs) / 2
		left := reqs[:mid]
		right := reqs[mid:]

		var leftResults, rightResults []CallResult
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			leftResults = f.fetchWithRetry(gctx, left, 0, splitDepth+1)
			return nil
		})
		g.Go(func() error {
			rightResults = f.fetchWithRetry(gctx, right, 0, splitDepth+1)
			return nil
		})
		_ = g.Wait()

		for i := range rightResults {
			rightResults[i].Index += mid
		}
		return append(leftResults, rightResults...)
	}

	if batchErr != nil {
		log.Warn().Err(batchErr).Int("size", len(reqs)).Msg("batch fetch exhausted retries")
	}
	return results
}

// sendOnce packs reqs into one JSON-RPC array payload and issues it.
func (f *BatchFetcher) sendOnce(ctx context.Context, reqs []CallRequest) ([]CallResult, error) {
	payload := make([]Request, len(reqs))
	for i, r := range reqs {
		payload[i] = Request{
			JSONRPC: "2.0",
			Method:  "eth_call",
			Params: []any{
				map[string]any{
					"to":   r.Target.Hex(),
					"data": "0x" + common.Bytes2Hex(r.Data),
				},
				"latest",
			},
			ID: i + 1,
		}
	}

	body, err := f.client.Post(ctx, payload)
	if err != nil {
		return nil, err
	}

	// A top-level object with an "error" field fails the whole batch
	// (spec.md §4.2).
	var asObject struct {
		Error *RPCError `json:"error"`
	}
	if err := json.Unmarshal(body, &asObject); err == nil && asObject.Error != nil {
		return nil, fmt.Errorf("batch error: %s", asObject.Error.Message)
	}

	var raw []RawResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("batch: unexpected response shape: %w", err)
	}

	byID := make(map[int]RawResponse, len(raw))
	for _, r := range raw {
		byID[r.ID] = r
	}

	results := make([]CallResult, 0, len(reqs))
	for i := range reqs {
		resp, ok := byID[i+1]
		if !ok || resp.Error != nil || len(resp.Result) == 0 {
			continue
		}
		var hexData string
		if err := json.Unmarshal(resp.Result, &hexData); err != nil || hexData == "" || hexData == "0x" {
			continue
		}
		results = append(results, CallResult{Index: i, Result: common.FromHex(hexData)})
	}

	return results, nil
}

// sleepCtx sleeps for d or returns false early if ctx is canceled, so the
// cancellation model in spec.md §5 ("a user-initiated interrupt aborts the
// current sleep") is satisfiable.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
