package chain

import (
	"github.com/ethereum/go-ethereum/common"
)

// DexKind classifies the AMM shape a DexDescriptor describes. Only V2 is
// eligible for the sizing/AMM path — see SizingOracle and Evaluator.
type DexKind string

const (
	KindV2       DexKind = "V2"
	KindV3       DexKind = "V3"
	KindAlgebra  DexKind = "ALGEBRA"
	KindBalancer DexKind = "BALANCER"
	KindUnknown  DexKind = "UNKNOWN"
)

// DefaultDecimals is used whenever a token's decimals cannot be read.
const DefaultDecimals = 18

// MaxDecimals bounds the valid decimals range per the data model invariant.
const MaxDecimals = 36

// DexDescriptor is the process-long, read-only configuration of one venue.
type DexDescriptor struct {
	Name            string
	Kind            DexKind
	Router          common.Address
	Factory         common.Address
	InitCodePairHash common.Hash // zero value means CREATE2 derivation is unavailable
	FeeBps          int         // e.g. 30 == 0.30%
}

// HasInitCode reports whether CREATE2 derivation is possible for this venue.
func (d DexDescriptor) HasInitCode() bool {
	return d.InitCodePairHash != (common.Hash{})
}

// FeeFraction returns the venue's swap fee as a fraction of 1.0.
func (d DexDescriptor) FeeFraction() float64 {
	return float64(d.FeeBps) / 10000.0
}

// DexTable is a process-long registry of DEX descriptors keyed by name, as
// loaded from configuration's dexConfig/enabledDexes (spec.md §6).
type DexTable struct {
	byName map[string]DexDescriptor
}

// NewDexTable builds a registry from a slice of descriptors.
func NewDexTable(descs []DexDescriptor) *DexTable {
	t := &DexTable{byName: make(map[string]DexDescriptor, len(descs))}
	for _, d := range descs {
		t.byName[d.Name] = d
	}
	return t
}

// Get returns the descriptor for a DEX name, or false if it is not
// registered/enabled.
func (t *DexTable) Get(name string) (DexDescriptor, bool) {
	d, ok := t.byName[name]
	return d, ok
}

// All returns every registered descriptor.
func (t *DexTable) All() []DexDescriptor {
	out := make([]DexDescriptor, 0, len(t.byName))
	for _, d := range t.byName {
		out = append(out, d)
	}
	return out
}

// PolygonDefaultDexes is the built-in table for the primary target chain.
// config.Load always uses it for Config.DexConfig; the dex table is not
// read from the YAML file. QuickSwap and SushiSwap are V2
// forks with known init code hashes (CREATE2-derivable); ApeSwap is listed
// without one to exercise the factory-fallback ladder (spec.md §4.5).
func PolygonDefaultDexes() []DexDescriptor {
	return []DexDescriptor{
		{
			Name:    "quickswap",
			Kind:    KindV2,
			Router:  common.HexToAddress("0xa5E0829CaCEd8fFDD4De3c43696c57F7D7A678ff"),
			Factory: common.HexToAddress("0x5757371414417b8C6CAad45bAeF941aBc7d3Ab32"),
			InitCodePairHash: common.HexToHash(
				"0x96e8ac4277198ff8b6f785478aa9a39f403cb768dd02cbee326c3e7da348845f",
			),
			FeeBps: 30,
		},
		{
			Name:    "sushiswap",
			Kind:    KindV2,
			Router:  common.HexToAddress("0x1b02dA8Cb0d097eB8D57A175b88c7D8b47997506"),
			Factory: common.HexToAddress("0xc35DADB65012eC5796536bD9864eD8773aBc74C4"),
			InitCodePairHash: common.HexToHash(
				"0xe18a34eb0e04b04f7a0ac29a6e80748dca96319b42c54d679cb821dca90c6303",
			),
			FeeBps: 30,
		},
		{
			Name:    "apeswap",
			Kind:    KindV2,
			Router:  common.HexToAddress("0xC0788A3aD43d79aa53B09c2EaCc313A787d1d607"),
			Factory: common.HexToAddress("0xCf083Be4164828f00cAE704EC15a36D711d784e2"),
			// No known init code hash: CREATE2 derivation is skipped, the
			// resolver falls through to the factory.getPair ladder directly.
			FeeBps: 20,
		},
		{
			Name:   "quickswap-v3",
			Kind:   KindAlgebra,
			Router: common.HexToAddress("0xf5b509bB0909a69B1c207E495f687a596C168E12"),
			Factory: common.HexToAddress("0x411b0fAcC3489691f28ad58c47006AF5E3Ab3A28"),
			// Algebra pools carry their own dynamic fee; not V2-eligible.
		},
	}
}
