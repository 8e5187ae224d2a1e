// Package reserves implements ReservesFetcher (spec.md §4.4): batched
// getReserves() calls across many pool addresses, grouped 30 at a time
// with a 1s gap between groups, ported from
// original_source/ankr_reserves.py's BATCH_SIZE/CONCURRENCY/sleep(1.0)
// pacing.
package reserves

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/polyarb/scanner/internal/chain"
	"github.com/polyarb/scanner/internal/rpcclient"
)

const (
	batchSize    = 30
	interGroupGap = time.Second
)

// Reserves is a single pool's reported reserve pair, u112-range values
// held as uint256.Int per spec.md §3.
type Reserves struct {
	Pool     common.Address
	Reserve0 *uint256.Int
	Reserve1 *uint256.Int
}

// Fetcher issues batched getReserves() calls.
type Fetcher struct {
	fetcher *rpcclient.BatchFetcher
	pairABI abi.ABI
}

func New(fetcher *rpcclient.BatchFetcher) (*Fetcher, error) {
	parsed, err := abi.JSON(strings.NewReader(chain.UniswapV2PairABI))
	if err != nil {
		return nil, err
	}
	return &Fetcher{fetcher: fetcher, pairABI: parsed}, nil
}

// FetchAll fetches reserves for every pool in pools, in groups of 30
// with a 1s pause between groups. Pools for which the call failed or
// returned zero reserves are omitted from the result, never zero-filled
// (spec.md §4.4 invariant: "no Reserves value is synthesized").
func (f *Fetcher) FetchAll(ctx context.Context, pools []common.Address) ([]Reserves, error) {
	data, err := f.pairABI.Pack("getReserves")
	if err != nil {
		return nil, err
	}

	var out []Reserves
	for i := 0; i < len(pools); i += batchSize {
		end := i + batchSize
		if end > len(pools) {
			end = len(pools)
		}
		group := pools[i:end]

		reqs := make([]rpcclient.CallRequest, len(group))
		for j, p := range group {
			reqs[j] = rpcclient.CallRequest{Target: p, Data: data}
		}

		results := f.fetcher.Fetch(ctx, reqs)
		for _, res := range results {
			unpacked, err := f.pairABI.Unpack("getReserves", res.Result)
			if err != nil || len(unpacked) < 2 {
				continue
			}
			r0, ok0 := asUint256(unpacked[0])
			r1, ok1 := asUint256(unpacked[1])
			if !ok0 || !ok1 {
				continue
			}
			if r0.IsZero() || r1.IsZero() {
				continue
			}
			out = append(out, Reserves{Pool: group[res.Index], Reserve0: r0, Reserve1: r1})
		}

		if end < len(pools) {
			if !sleepCtx(ctx, interGroupGap) {
				return out, ctx.Err()
			}
		}
	}

	return out, nil
}

func asUint256(v any) (*uint256.Int, bool) {
	bi, ok := v.(*big.Int)
	if !ok {
		return nil, false
	}
	u, overflow := uint256.FromBig(bi)
	if overflow {
		return nil, false
	}
	return u, true
}

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
