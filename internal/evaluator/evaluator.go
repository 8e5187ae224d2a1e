// Package evaluator implements Evaluator (spec.md §4.8): the per-cycle
// pipeline that turns a candidate plus freshly-fetched reserves into an
// Opportunity, tallying a named drop-reason counter at every gate,
// generalized from the teacher's single-pair DetectOpportunity
// (internal/arbitrage/detector.go).
package evaluator

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/polyarb/scanner/internal/amm"
	"github.com/polyarb/scanner/internal/candidate"
	"github.com/polyarb/scanner/internal/chain"
	"github.com/polyarb/scanner/internal/config"
	"github.com/polyarb/scanner/internal/metrics"
	"github.com/polyarb/scanner/internal/reserves"
	"github.com/polyarb/scanner/internal/sizing"
)

// Drop reasons, named exactly as spec.md §4.8/§7 requires so a test
// harness can assert on them via the metrics counters.
const (
	ReasonBadReserves       = "bad_reserves"
	ReasonAddressMismatch   = "address_mismatch"
	ReasonLowSpread         = "low_spread_onchain"
	ReasonNonV2             = "non_v2"
	ReasonNetSpreadZero     = "net_spread_zero"
	ReasonLowLiquidity      = "low_liquidity"
	ReasonBelowProfit       = "below_profit_threshold"
	ReasonStillUnprofitable = "still_unprofitable_after_flip"
)

// Opportunity is the Evaluator's output (spec.md §3).
type Opportunity struct {
	TradeToken common.Address
	BaseToken  common.Address
	BuyDex     string
	SellDex    string
	BuyPair    common.Address
	SellPair   common.Address

	BuyPriceOnchain  *big.Float
	SellPriceOnchain *big.Float
	Spread           float64
	LiquidityUsd     float64
	OptimalSize      float64
	ExpectedProfit   float64
	Flipped          bool
}

// Evaluator runs the per-candidate pipeline.
type Evaluator struct {
	dexes      *chain.DexTable
	oracle     *sizing.Oracle
	thresholds config.ThresholdConfig
	economics  config.EconomicsConfig
	usdPrices  map[string]float64
	metrics    *metrics.Metrics
}

func New(dexes *chain.DexTable, oracle *sizing.Oracle, thresholds config.ThresholdConfig, economics config.EconomicsConfig, usdPrices map[string]float64, m *metrics.Metrics) *Evaluator {
	return &Evaluator{dexes: dexes, oracle: oracle, thresholds: thresholds, economics: economics, usdPrices: usdPrices, metrics: m}
}

// ReservesByPool is the cycle-local join source: pool address ->
// fetched reserves. Built once per cycle by ScanLoop from
// reserves.Fetcher.FetchAll's output.
type ReservesByPool map[common.Address]reserves.Reserves

// DecimalsByAddr is the cycle-local decimals source.
type DecimalsByAddr map[string]int

// Evaluate runs one candidate through the full filter ladder. A nil
// Opportunity means the candidate was dropped (reason already counted).
func (e *Evaluator) Evaluate(c candidate.Candidate, buyPairAddr, sellPairAddr common.Address, reservesMap ReservesByPool, decimals DecimalsByAddr) *Opportunity {
	buyDex, ok := e.dexes.Get(c.Buy.Dex)
	if !ok {
		e.drop(ReasonNonV2)
		return nil
	}
	sellDex, ok := e.dexes.Get(c.Sell.Dex)
	if !ok {
		e.drop(ReasonNonV2)
		return nil
	}

	// 8. Kind filter — both venues must be V2.
	if buyDex.Kind != chain.KindV2 || sellDex.Kind != chain.KindV2 {
		e.drop(ReasonNonV2)
		return nil
	}

	// 1. Reserve join.
	buyRes, ok := reservesMap[buyPairAddr]
	if !ok {
		e.drop(ReasonBadReserves)
		return nil
	}
	sellRes, ok := reservesMap[sellPairAddr]
	if !ok {
		e.drop(ReasonBadReserves)
		return nil
	}

	// 2. Orientation — token0/token1 sorted lexicographically (V2
	// convention); find which index corresponds to base on each side.
	token0, _ := chain.SortPair(chain.TokenRefFromAddress(c.Base), chain.TokenRefFromAddress(c.Trade))
	baseIsToken0 := token0.Address() == c.Base

	buyBaseReserve, buyTradeReserve, ok := splitReserves(buyRes, baseIsToken0)
	if !ok {
		e.drop(ReasonAddressMismatch)
		return nil
	}
	sellBaseReserve, sellTradeReserve, ok := splitReserves(sellRes, baseIsToken0)
	if !ok {
		e.drop(ReasonAddressMismatch)
		return nil
	}

	if buyBaseReserve.IsZero() || buyTradeReserve.IsZero() || sellBaseReserve.IsZero() || sellTradeReserve.IsZero() {
		e.drop(ReasonBadReserves)
		return nil
	}

	// 3. Decimals.
	baseDec := lookupDecimals(decimals, c.Base)
	tradeDec := lookupDecimals(decimals, c.Trade)

	// 4. Mid-price: base-per-trade on each venue (how much base one
	// trade-token costs there). A profitable round trip buys where this
	// is low and sells where it is high, which is what the sellPrice >
	// buyPrice invariant below assumes.
	buyPrice := amm.MidPrice(buyTradeReserve, buyBaseReserve, tradeDec, baseDec)
	sellPrice := amm.MidPrice(sellTradeReserve, sellBaseReserve, tradeDec, baseDec)

	flipped := false
	finalBuyDex, finalSellDex := buyDex, sellDex
	finalBuyPair, finalSellPair := buyPairAddr, sellPairAddr
	finalBuyPrice, finalSellPrice := buyPrice, sellPrice
	finalBuyBase, finalBuyTrade := buyBaseReserve, buyTradeReserve
	finalSellBase, finalSellTrade := sellBaseReserve, sellTradeReserve

	// 5. Direction fix.
	if finalSellPrice.Cmp(finalBuyPrice) <= 0 {
		flipped = true
		finalBuyDex, finalSellDex = finalSellDex, finalBuyDex
		finalBuyPair, finalSellPair = finalSellPair, finalBuyPair
		finalBuyPrice, finalSellPrice = finalSellPrice, finalBuyPrice
		finalBuyBase, finalBuyTrade, finalSellBase, finalSellTrade = finalSellBase, finalSellTrade, finalBuyBase, finalBuyTrade

		if finalSellPrice.Cmp(finalBuyPrice) <= 0 {
			e.drop(ReasonStillUnprofitable)
			return nil
		}
	}

	// 6. Spread filter.
	spread := amm.SpreadPct(finalSellPrice, finalBuyPrice) / 100.0
	if spread < e.thresholds.MinSpread {
		e.drop(ReasonLowSpread)
		return nil
	}

	// 7. Liquidity filter.
	baseUsd := e.usdPrices[lowerHex(c.Base)]
	buyBaseFloat := new(big.Float).Quo(new(big.Float).SetInt(finalBuyBase.ToBig()), pow10Float(baseDec))
	liquidityUsd, _ := new(big.Float).Mul(big.NewFloat(2), new(big.Float).Mul(buyBaseFloat, big.NewFloat(baseUsd))).Float64()
	if liquidityUsd < e.thresholds.MinLiquidityUsd || liquidityUsd < 500 {
		e.drop(ReasonLowLiquidity)
		return nil
	}

	// 9. Sizing — SizingOracle.Size computes L = min(b1, b2) and
	// r = b2/b1 internally (spec.md §4.6).
	buyBaseUnits, _ := new(big.Float).Quo(new(big.Float).SetInt(finalBuyBase.ToBig()), pow10Float(baseDec)).Float64()
	sellBaseUnits, _ := new(big.Float).Quo(new(big.Float).SetInt(finalSellBase.ToBig()), pow10Float(baseDec)).Float64()

	optimalSize := e.oracle.Size(spread, buyBaseUnits, sellBaseUnits)
	if optimalSize <= 0 {
		e.drop(ReasonNetSpreadZero)
		return nil
	}

	// 10. Profit check — run AMMModel end-to-end (spec.md §4.7 steps
	// 1-5): swap, swap, repay the flash loan, subtract gas, convert to USD.
	amountIn, overflow := uint256.FromBig(scaleToUnits(optimalSize, baseDec))
	if overflow {
		e.drop(ReasonBadReserves)
		return nil
	}

	gasBase := big.NewInt(0)
	if baseUsd > 0 && e.economics.GasCostUsd > 0 {
		gasBase = scaleToUnits(e.economics.GasCostUsd/baseUsd, baseDec)
	}

	netProfit := amm.RoundTripSigned(amountIn, finalBuyBase, finalBuyTrade, finalSellTrade, finalSellBase, finalBuyDex.FeeBps, finalSellDex.FeeBps, e.economics.FlashFeeBps, gasBase)
	netProfitFloat := new(big.Float).Quo(new(big.Float).SetInt(netProfit), pow10Float(baseDec))
	netUsd, _ := new(big.Float).Mul(netProfitFloat, big.NewFloat(baseUsd)).Float64()

	if netUsd < e.thresholds.MinProfitUsd {
		e.drop(ReasonBelowProfit)
		return nil
	}

	if e.metrics != nil {
		e.metrics.OpportunitiesFound.Inc()
	}

	return &Opportunity{
		TradeToken:       c.Trade,
		BaseToken:        c.Base,
		BuyDex:           finalBuyDex.Name,
		SellDex:          finalSellDex.Name,
		BuyPair:          finalBuyPair,
		SellPair:         finalSellPair,
		BuyPriceOnchain:  finalBuyPrice,
		SellPriceOnchain: finalSellPrice,
		Spread:           spread,
		LiquidityUsd:     liquidityUsd,
		OptimalSize:      optimalSize,
		ExpectedProfit:   netUsd,
		Flipped:          flipped,
	}
}

func (e *Evaluator) drop(reason string) {
	if e.metrics != nil {
		e.metrics.DropCandidate(reason)
	}
}

func splitReserves(r reserves.Reserves, baseIsToken0 bool) (base, trade *uint256.Int, ok bool) {
	if baseIsToken0 {
		return r.Reserve0, r.Reserve1, true
	}
	return r.Reserve1, r.Reserve0, true
}

func lookupDecimals(m DecimalsByAddr, addr common.Address) int {
	if d, ok := m[lowerHex(addr)]; ok {
		return d
	}
	return chain.DefaultDecimals
}

func lowerHex(addr common.Address) string {
	h := addr.Hex()
	b := []byte(h)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

func pow10Float(exp int) *big.Float {
	return new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(exp)), nil))
}

func scaleToUnits(amount float64, decimals int) *big.Int {
	scaled := new(big.Float).Mul(big.NewFloat(amount), pow10Float(decimals))
	i, _ := scaled.Int(nil)
	return i
}
