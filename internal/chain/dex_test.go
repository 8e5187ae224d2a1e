package chain

import "testing"

func TestDexDescriptorHasInitCode(t *testing.T) {
	withCode := DexDescriptor{InitCodePairHash: hashOne()}
	if !withCode.HasInitCode() {
		t.Error("expected HasInitCode true for non-zero hash")
	}

	without := DexDescriptor{}
	if without.HasInitCode() {
		t.Error("expected HasInitCode false for zero hash")
	}
}

func TestDexDescriptorFeeFraction(t *testing.T) {
	d := DexDescriptor{FeeBps: 30}
	if got := d.FeeFraction(); got != 0.003 {
		t.Errorf("FeeFraction() = %v, want 0.003", got)
	}
}

func TestDexTableGet(t *testing.T) {
	table := NewDexTable(PolygonDefaultDexes())

	if _, ok := table.Get("quickswap"); !ok {
		t.Error("expected quickswap to be registered")
	}
	if _, ok := table.Get("nonexistent"); ok {
		t.Error("expected unregistered dex to report not-found")
	}
	if len(table.All()) != len(PolygonDefaultDexes()) {
		t.Errorf("All() returned %d entries, want %d", len(table.All()), len(PolygonDefaultDexes()))
	}
}

func TestPolygonDefaultDexesApeswapHasNoInitCode(t *testing.T) {
	table := NewDexTable(PolygonDefaultDexes())
	ape, ok := table.Get("apeswap")
	if !ok {
		t.Fatal("apeswap not registered")
	}
	if ape.HasInitCode() {
		t.Error("apeswap should have no init code hash, so the resolver falls through to factory lookup")
	}
}

func hashOne() [32]byte {
	var h [32]byte
	h[31] = 1
	return h
}
