package decimals

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/polyarb/scanner/internal/chain"
	"github.com/polyarb/scanner/internal/metrics"
	"github.com/polyarb/scanner/internal/rpcclient"
)

func TestLoadMissingFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decimals.json")
	c, err := Load(path, nil, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(c.values) != 0 {
		t.Errorf("expected empty cache, got %d entries", len(c.values))
	}
}

func TestLoadExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decimals.json")
	seed := map[string]int{"0x0000000000000000000000000000000000000001": 6}
	data, _ := json.Marshal(seed)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := Load(path, nil, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	addr := common.HexToAddress("0x0000000000000000000000000000000000000001")
	got, ok := c.Get(addr)
	if !ok || got != 6 {
		t.Errorf("Get() = (%d, %v), want (6, true)", got, ok)
	}
}

func TestGetMiss(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "decimals.json"), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := c.Get(common.HexToAddress("0x01")); ok {
		t.Error("expected miss for unknown address")
	}
}

func TestResolveAllNoMissesSkipsFetch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decimals.json")
	addr := common.HexToAddress("0x0000000000000000000000000000000000000001")
	seed := map[string]int{key(addr): 18}
	data, _ := json.Marshal(seed)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := Load(path, nil, nil) // nil fetcher: a network call here would panic
	if err != nil {
		t.Fatal(err)
	}

	out := c.ResolveAll(context.Background(), []common.Address{addr})
	if out[key(addr)] != 18 {
		t.Errorf("ResolveAll()[%s] = %d, want 18", key(addr), out[key(addr)])
	}
}

func TestResolveAllMissIncrementsMetrics(t *testing.T) {
	decimalsABI, err := abi.JSON(strings.NewReader(chain.ERC20DecimalsABI))
	if err != nil {
		t.Fatal(err)
	}
	packed, err := decimalsABI.Methods["decimals"].Outputs.Pack(uint8(18))
	if err != nil {
		t.Fatal(err)
	}
	resultHex := "0x" + common.Bytes2Hex(packed)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var reqs []rpcclient.Request
		defer r.Body.Close()
		_ = json.NewDecoder(r.Body).Decode(&reqs)
		out := make([]string, len(reqs))
		for i, req := range reqs {
			out[i] = `{"jsonrpc":"2.0","id":` + strconv.Itoa(req.ID) + `,"result":"` + resultHex + `"}`
		}
		w.Write([]byte("[" + strings.Join(out, ",") + "]"))
	}))
	defer srv.Close()

	client, err := rpcclient.New([]string{srv.URL}, 20, time.Second, nil)
	if err != nil {
		t.Fatal(err)
	}
	fetcher := rpcclient.NewBatchFetcher(client)

	m := metrics.New()
	path := filepath.Join(t.TempDir(), "decimals.json")
	c, err := Load(path, fetcher, m)
	if err != nil {
		t.Fatal(err)
	}

	addr := common.HexToAddress("0x0000000000000000000000000000000000000001")
	out := c.ResolveAll(context.Background(), []common.Address{addr})
	if out[key(addr)] != 18 {
		t.Errorf("ResolveAll()[%s] = %d, want 18", key(addr), out[key(addr)])
	}
	if got := testutil.ToFloat64(m.DecimalsMisses); got != 1 {
		t.Errorf("DecimalsMisses = %v, want 1", got)
	}
}

func TestFlushRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decimals.json")
	c, err := Load(path, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	c.values[key(common.HexToAddress("0x01"))] = 8
	if err := c.flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	reloaded, err := Load(path, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if v, ok := reloaded.Get(common.HexToAddress("0x01")); !ok || v != 8 {
		t.Errorf("reloaded Get() = (%d, %v), want (8, true)", v, ok)
	}
}
