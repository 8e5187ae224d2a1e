package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
rpcEndpoints: ["https://example.invalid/rpc"]
contractAddress: "0x0000000000000000000000000000000000000001"
simulationMode: true
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ScanIntervalSec != 15 {
		t.Errorf("ScanIntervalSec = %d, want default 15", cfg.ScanIntervalSec)
	}
	if cfg.Gas.PriceMultiplier != 1.2 {
		t.Errorf("Gas.PriceMultiplier = %v, want default 1.2", cfg.Gas.PriceMultiplier)
	}
	if len(cfg.DexConfig) == 0 {
		t.Error("expected DexConfig to fall back to PolygonDefaultDexes")
	}
	if cfg.Economics.FlashFeeBps != 9 {
		t.Errorf("Economics.FlashFeeBps = %d, want default 9", cfg.Economics.FlashFeeBps)
	}
	if cfg.Economics.GasCostUsd != 0.05 {
		t.Errorf("Economics.GasCostUsd = %v, want default 0.05", cfg.Economics.GasCostUsd)
	}
}

func TestLoadEconomicsOverrideFromFile(t *testing.T) {
	path := writeConfigFile(t, `
rpcEndpoints: ["https://example.invalid/rpc"]
contractAddress: "0x0000000000000000000000000000000000000001"
simulationMode: true
economics:
  flashFeeBps: 5
  gasCostUsd: 0.10
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Economics.FlashFeeBps != 5 {
		t.Errorf("Economics.FlashFeeBps = %d, want 5", cfg.Economics.FlashFeeBps)
	}
	if cfg.Economics.GasCostUsd != 0.10 {
		t.Errorf("Economics.GasCostUsd = %v, want 0.10", cfg.Economics.GasCostUsd)
	}
}

func TestLoadMissingFileIsNotFatal(t *testing.T) {
	os.Setenv("SCANNER_RPC_ENDPOINTS", "https://example.invalid/rpc")
	os.Setenv("SCANNER_CONTRACT_ADDRESS", "0x0000000000000000000000000000000000000001")
	os.Setenv("SCANNER_SIMULATION_MODE", "true")
	defer os.Unsetenv("SCANNER_RPC_ENDPOINTS")
	defer os.Unsetenv("SCANNER_CONTRACT_ADDRESS")
	defer os.Unsetenv("SCANNER_SIMULATION_MODE")

	cfg, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	if err != nil {
		t.Fatalf("Load with missing file: %v", err)
	}
	if cfg.ContractAddress == "" {
		t.Error("expected env override to populate ContractAddress")
	}
}

func TestValidateRequiresContractAddress(t *testing.T) {
	path := writeConfigFile(t, `
rpcEndpoints: ["https://example.invalid/rpc"]
simulationMode: true
`)
	if _, err := Load(path); err == nil {
		t.Error("expected validation error for missing contractAddress")
	}
}

func TestValidateRequiresPrivateKeyUnlessSimulation(t *testing.T) {
	path := writeConfigFile(t, `
rpcEndpoints: ["https://example.invalid/rpc"]
contractAddress: "0x0000000000000000000000000000000000000001"
simulationMode: false
`)
	if _, err := Load(path); err == nil {
		t.Error("expected validation error for missing privateKey outside simulation mode")
	}
}

func TestValidateAcceptsNegativeMinProfitUsd(t *testing.T) {
	path := writeConfigFile(t, `
rpcEndpoints: ["https://example.invalid/rpc"]
contractAddress: "0x0000000000000000000000000000000000000001"
simulationMode: true
thresholds:
  minProfitUsd: -1
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Thresholds.MinProfitUsd != -1 {
		t.Errorf("MinProfitUsd = %v, want -1 (debugging value must be accepted, not rejected)", cfg.Thresholds.MinProfitUsd)
	}
}

func TestEnabledDexTableFiltersByName(t *testing.T) {
	path := writeConfigFile(t, `
rpcEndpoints: ["https://example.invalid/rpc"]
contractAddress: "0x0000000000000000000000000000000000000001"
simulationMode: true
enabledDexes: ["quickswap"]
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	table := cfg.EnabledDexTable()
	if _, ok := table.Get("quickswap"); !ok {
		t.Error("expected quickswap to be enabled")
	}
	if _, ok := table.Get("sushiswap"); ok {
		t.Error("expected sushiswap to be excluded")
	}
}
