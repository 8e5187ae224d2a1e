package reserves

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/polyarb/scanner/internal/chain"
	"github.com/polyarb/scanner/internal/rpcclient"
)

func packReserves(t *testing.T, r0, r1 uint64) string {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(chain.UniswapV2PairABI))
	if err != nil {
		t.Fatal(err)
	}
	packed, err := parsed.Methods["getReserves"].Outputs.Pack(new(big.Int).SetUint64(r0), new(big.Int).SetUint64(r1), uint32(0))
	if err != nil {
		t.Fatal(err)
	}
	return "0x" + common.Bytes2Hex(packed)
}

func newFetcher(t *testing.T, handler http.HandlerFunc) *Fetcher {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := rpcclient.New([]string{srv.URL}, 20, time.Second, nil)
	if err != nil {
		t.Fatal(err)
	}
	f, err := New(rpcclient.NewBatchFetcher(client))
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func TestFetchAllOmitsZeroReserves(t *testing.T) {
	pool := common.HexToAddress("0x0000000000000000000000000000000000000001")

	f := newFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		var reqs []rpcclient.Request
		defer r.Body.Close()
		_ = json.NewDecoder(r.Body).Decode(&reqs)
		out := make([]string, len(reqs))
		for i, req := range reqs {
			// Always respond with zero reserves for this test.
			out[i] = fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"result":%q}`, req.ID, packReserves(t, 0, 0))
		}
		w.Write([]byte("[" + strings.Join(out, ",") + "]"))
	})

	results, err := f.FetchAll(context.Background(), []common.Address{pool})
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected zero-reserve pool to be omitted, got %d results", len(results))
	}
}

func TestFetchAllReturnsNonZeroReserves(t *testing.T) {
	pool := common.HexToAddress("0x0000000000000000000000000000000000000001")

	f := newFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		var reqs []rpcclient.Request
		defer r.Body.Close()
		_ = json.NewDecoder(r.Body).Decode(&reqs)
		out := make([]string, len(reqs))
		for i, req := range reqs {
			out[i] = fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"result":%q}`, req.ID, packReserves(t, 1000, 2000))
		}
		w.Write([]byte("[" + strings.Join(out, ",") + "]"))
	})

	results, err := f.FetchAll(context.Background(), []common.Address{pool})
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].Pool != pool {
		t.Errorf("Pool = %s, want %s", results[0].Pool.Hex(), pool.Hex())
	}
	if results[0].Reserve0.Uint64() != 1000 || results[0].Reserve1.Uint64() != 2000 {
		t.Errorf("reserves = (%s, %s), want (1000, 2000)", results[0].Reserve0, results[0].Reserve1)
	}
}

func TestFetchAllEmptyPools(t *testing.T) {
	f := newFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("server should not be called for an empty pool list")
	})
	results, err := f.FetchAll(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results for empty input, want 0", len(results))
	}
}
