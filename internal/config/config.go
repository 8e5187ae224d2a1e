// Package config loads the scanner's configuration, grounded on
// nirajvora-watcher/internal/config.Config: a struct tree populated by
// defaults, then a YAML file, then environment variable overrides, then
// validated — plus a leading godotenv.Load for local .env files, since
// the teacher's cmd/scan/main.go did the same for its Alchemy URL.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/polyarb/scanner/internal/chain"
)

// Config holds every recognized option from spec.md §6.
type Config struct {
	Chain            ChainConfig            `yaml:"chain"`
	RPCEndpoints     []string               `yaml:"rpcEndpoints"`
	ContractAddress  string                 `yaml:"contractAddress"`
	PrivateKey       string                 `yaml:"privateKey"`
	Thresholds       ThresholdConfig        `yaml:"thresholds"`
	ScanIntervalSec  int                    `yaml:"scanIntervalSec"`
	EnabledDexes     []string               `yaml:"enabledDexes"`
	DexConfig        []chain.DexDescriptor  `yaml:"-"` // always PolygonDefaultDexes; not read from the YAML file; see Load
	BaseTokenUsdPrices map[string]float64   `yaml:"baseTokenUsdPrices"`
	SimulationMode   bool                   `yaml:"simulationMode"`
	DebugMode        bool                   `yaml:"debugMode"`

	CandidateFile  string `yaml:"candidateFile"`
	DecimalsCache  string `yaml:"decimalsCachePath"`
	PairCacheDB    string `yaml:"pairCacheDbPath"`
	SizingGridFile string `yaml:"sizingGridPath"`

	Gas       GasConfig       `yaml:"gas"`
	Economics EconomicsConfig `yaml:"economics"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type ChainConfig struct {
	Name          string `yaml:"name"`
	ID            int64  `yaml:"id"`
	GasPriceFloor int64  `yaml:"gasPriceFloorWei"`
}

// GasConfig exposes the submission-time gas policy (spec.md §9: the
// fixed ×1.2 multiplier and ~1.2M gas cap observed in the source
// material are conservative defaults, not universal constants — some
// chains need more headroom, others less).
type GasConfig struct {
	PriceMultiplier float64 `yaml:"priceMultiplier"`
	LimitMultiplier float64 `yaml:"limitMultiplier"`
	LimitCap        uint64  `yaml:"limitCap"`
}

// EconomicsConfig holds the round-trip cost inputs spec.md §4.7 steps
// 3-5 require (repay fee and gas cost) but treats as external
// collaborators: the flash-loan provider's own fee schedule and the
// network's prevailing gas price. FlashFeeBps defaults to the common
// Aave-style 0.09%; GasCostUsd defaults to a conservative flat estimate
// for a Polygon arbitrage transaction.
type EconomicsConfig struct {
	FlashFeeBps int     `yaml:"flashFeeBps"`
	GasCostUsd  float64 `yaml:"gasCostUsd"`
}

// ThresholdConfig holds the evaluator's filter gates (spec.md §4.8).
type ThresholdConfig struct {
	MinProfitUsd    float64 `yaml:"minProfitUsd"`
	MinLiquidityUsd float64 `yaml:"minLiquidityUsd"`
	MinSpread       float64 `yaml:"minSpread"`
	MaxPriceImpact  float64 `yaml:"maxPriceImpact"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads configuration from a YAML file (missing file is not fatal),
// loads .env from the current working directory, applies environment
// overrides, then validates.
func Load(path string) (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{}
	cfg.setDefaults()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("config: reading file: %w", err)
	}
	if len(data) > 0 {
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("config: parsing file: %w", err)
		}
	}

	if len(cfg.DexConfig) == 0 {
		cfg.DexConfig = chain.PolygonDefaultDexes()
	}

	cfg.applyEnvOverrides()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validating: %w", err)
	}

	return cfg, nil
}

func (c *Config) setDefaults() {
	c.Chain = ChainConfig{Name: "polygon", ID: 137, GasPriceFloor: 30_000_000_000}
	c.Thresholds = ThresholdConfig{
		MinProfitUsd:    1.0,
		MinLiquidityUsd: 500.0,
		MinSpread:       0.0075,
		MaxPriceImpact:  0.03,
	}
	c.Gas = GasConfig{PriceMultiplier: 1.2, LimitMultiplier: 1.2, LimitCap: 1_200_000}
	c.Economics = EconomicsConfig{FlashFeeBps: 9, GasCostUsd: 0.05}
	c.ScanIntervalSec = 15
	c.EnabledDexes = []string{"quickswap", "sushiswap", "apeswap"}
	c.BaseTokenUsdPrices = map[string]float64{}
	c.CandidateFile = "data/v2_combos.jsonl"
	c.DecimalsCache = "cache/decimals.json"
	c.PairCacheDB = "cache/pairs.db"
	c.SizingGridFile = "data/lut_v2.json"
	c.Metrics = MetricsConfig{Enabled: true, Port: 9090, Path: "/metrics"}
	c.Logging = LoggingConfig{Level: "info", Format: "json"}
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("SCANNER_RPC_ENDPOINTS"); v != "" {
		c.RPCEndpoints = strings.Split(v, ",")
	}
	if v := os.Getenv("SCANNER_CONTRACT_ADDRESS"); v != "" {
		c.ContractAddress = v
	}
	if v := os.Getenv("SCANNER_PRIVATE_KEY"); v != "" {
		c.PrivateKey = v
	}
	if v := os.Getenv("SCANNER_MIN_PROFIT_USD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Thresholds.MinProfitUsd = f
		}
	}
	if v := os.Getenv("SCANNER_SCAN_INTERVAL_SEC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.ScanIntervalSec = n
		}
	}
	if v := os.Getenv("SCANNER_SIMULATION_MODE"); v != "" {
		c.SimulationMode = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv("SCANNER_DEBUG"); v != "" {
		c.DebugMode = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("METRICS_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Metrics.Port = n
		}
	}
	if v := os.Getenv("SCANNER_FLASH_FEE_BPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Economics.FlashFeeBps = n
		}
	}
	if v := os.Getenv("SCANNER_GAS_COST_USD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			c.Economics.GasCostUsd = f
		}
	}
}

func (c *Config) validate() error {
	if len(c.RPCEndpoints) == 0 {
		return fmt.Errorf("rpcEndpoints is required (set SCANNER_RPC_ENDPOINTS)")
	}
	if c.ContractAddress == "" {
		return fmt.Errorf("contractAddress is required")
	}
	if c.PrivateKey == "" && !c.SimulationMode {
		return fmt.Errorf("privateKey is required unless simulationMode is set")
	}
	if c.ScanIntervalSec <= 0 {
		return fmt.Errorf("scanIntervalSec must be positive")
	}
	if len(c.EnabledDexes) == 0 {
		return fmt.Errorf("enabledDexes must have at least one entry")
	}
	if c.Metrics.Port <= 0 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be a valid port number")
	}
	// The open question in spec.md §9 about MIN_PROFIT_USD=-1 being a
	// debugging value: accepted either way, but the effective value is
	// always logged at startup by the caller.
	return nil
}

// EnabledDexTable filters DexConfig down to the names in EnabledDexes.
func (c *Config) EnabledDexTable() *chain.DexTable {
	allowed := make(map[string]bool, len(c.EnabledDexes))
	for _, name := range c.EnabledDexes {
		allowed[name] = true
	}

	var descs []chain.DexDescriptor
	for _, d := range c.DexConfig {
		if allowed[d.Name] {
			descs = append(descs, d)
		}
	}
	return chain.NewDexTable(descs)
}
