package pairstore

import (
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pairs.db")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestPutGetRoundTrip(t *testing.T) {
	store := openTestStore(t)
	tokenA := common.HexToAddress("0x0000000000000000000000000000000000000001")
	tokenB := common.HexToAddress("0x0000000000000000000000000000000000000002")
	pair := common.HexToAddress("0x0000000000000000000000000000000000000003")

	if err := store.Put("quickswap", tokenA, tokenB, pair, "create2"); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok := store.Get("quickswap", tokenA, tokenB)
	if !ok || got != pair {
		t.Errorf("Get() = (%s, %v), want (%s, true)", got.Hex(), ok, pair.Hex())
	}
}

func TestGetOrderIndependent(t *testing.T) {
	store := openTestStore(t)
	tokenA := common.HexToAddress("0x0000000000000000000000000000000000000001")
	tokenB := common.HexToAddress("0x0000000000000000000000000000000000000002")
	pair := common.HexToAddress("0x0000000000000000000000000000000000000003")

	if err := store.Put("quickswap", tokenA, tokenB, pair, "factory"); err != nil {
		t.Fatal(err)
	}

	// Reversed argument order should still hit.
	got, ok := store.Get("quickswap", tokenB, tokenA)
	if !ok || got != pair {
		t.Errorf("Get() with reversed tokens = (%s, %v), want (%s, true)", got.Hex(), ok, pair.Hex())
	}
}

func TestGetMiss(t *testing.T) {
	store := openTestStore(t)
	_, ok := store.Get("quickswap", common.HexToAddress("0x01"), common.HexToAddress("0x02"))
	if ok {
		t.Error("expected miss for unseeded pair")
	}
}

func TestSource(t *testing.T) {
	store := openTestStore(t)
	tokenA := common.HexToAddress("0x0000000000000000000000000000000000000001")
	tokenB := common.HexToAddress("0x0000000000000000000000000000000000000002")
	pair := common.HexToAddress("0x0000000000000000000000000000000000000003")

	if err := store.Put("sushiswap", tokenA, tokenB, pair, "create2"); err != nil {
		t.Fatal(err)
	}
	source, ok := store.Source("sushiswap", tokenA, tokenB)
	if !ok || source != "create2" {
		t.Errorf("Source() = (%q, %v), want (\"create2\", true)", source, ok)
	}
}

func TestPutReplacesExisting(t *testing.T) {
	store := openTestStore(t)
	tokenA := common.HexToAddress("0x0000000000000000000000000000000000000001")
	tokenB := common.HexToAddress("0x0000000000000000000000000000000000000002")
	pair1 := common.HexToAddress("0x0000000000000000000000000000000000000003")
	pair2 := common.HexToAddress("0x0000000000000000000000000000000000000004")

	if err := store.Put("quickswap", tokenA, tokenB, pair1, "create2"); err != nil {
		t.Fatal(err)
	}
	if err := store.Put("quickswap", tokenA, tokenB, pair2, "factory"); err != nil {
		t.Fatal(err)
	}

	got, _ := store.Get("quickswap", tokenA, tokenB)
	if got != pair2 {
		t.Errorf("Get() after replace = %s, want %s", got.Hex(), pair2.Hex())
	}
}

func TestStats(t *testing.T) {
	store := openTestStore(t)
	count, err := store.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("Stats() on empty store = %d, want 0", count)
	}

	store.Put("quickswap", common.HexToAddress("0x01"), common.HexToAddress("0x02"), common.HexToAddress("0x03"), "create2")
	count, err = store.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("Stats() after one Put = %d, want 1", count)
	}
}
