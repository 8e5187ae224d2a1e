// Package amm implements AMMModel (spec.md §4.7): the constant-product
// swap formula generalized from the teacher's hard-coded 997/1000 fee
// (internal/arbitrage/math.go's GetAmountOut) to a per-venue feeBps, plus
// a round-trip profit model grounded on the same file's
// SimulateArbitrage.
package amm

import (
	"math/big"

	"github.com/holiman/uint256"
)

const feeDenominator = 10000

// AmountOut computes the constant-product output for a V2-style swap:
// amountInWithFee = amountIn * (10000 - feeBps)
// amountOut = amountInWithFee * reserveOut / (reserveIn*10000 + amountInWithFee)
func AmountOut(amountIn, reserveIn, reserveOut *uint256.Int, feeBps int) *uint256.Int {
	if amountIn.IsZero() || reserveIn.IsZero() || reserveOut.IsZero() {
		return uint256.NewInt(0)
	}

	feeMultiplier := uint256.NewInt(uint64(feeDenominator - feeBps))
	amountInWithFee := new(uint256.Int).Mul(amountIn, feeMultiplier)

	numerator := new(uint256.Int).Mul(amountInWithFee, reserveOut)

	denominator := new(uint256.Int).Mul(reserveIn, uint256.NewInt(feeDenominator))
	denominator.Add(denominator, amountInWithFee)
	if denominator.IsZero() {
		return uint256.NewInt(0)
	}

	return new(uint256.Int).Div(numerator, denominator)
}

// MidPrice returns reserve1/reserve0 adjusted for decimals — token1
// units per one token0 unit — generalized from the teacher's
// CalculatePrice.
func MidPrice(reserve0, reserve1 *uint256.Int, decimals0, decimals1 int) *big.Float {
	r0 := new(big.Float).SetInt(reserve0.ToBig())
	r1 := new(big.Float).SetInt(reserve1.ToBig())
	if r0.Sign() == 0 {
		return new(big.Float)
	}

	price := new(big.Float).Quo(r1, r0)
	return price.Mul(price, pow10Float(decimals0-decimals1))
}

// pow10Float returns 10^exp as a *big.Float, exp may be negative.
func pow10Float(exp int) *big.Float {
	if exp >= 0 {
		return new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(exp)), nil))
	}
	inv := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(-exp)), nil))
	return new(big.Float).Quo(big.NewFloat(1), inv)
}

// SpreadPct returns the signed percentage difference between two mid
// prices, generalized from the teacher's ComparePrices (which discarded
// sign — this keeps it so direction can be determined without a second
// comparison).
func SpreadPct(priceA, priceB *big.Float) float64 {
	if priceB.Sign() == 0 {
		return 0
	}
	diff := new(big.Float).Sub(priceA, priceB)
	pct := new(big.Float).Quo(diff, priceB)
	pct.Mul(pct, big.NewFloat(100.0))
	f, _ := pct.Float64()
	return f
}

// RoundTripSigned simulates buying on the cheap pool and selling on the
// expensive pool for a given input amount, then repaying the flash loan
// and subtracting gas, returning net profit as a signed *big.Int —
// generalized from the teacher's SimulateArbitrage to arbitrary
// per-venue fees, and signed so a loss doesn't need a separate
// comparison. Implements spec.md §4.7 steps 1-4 (step 5, the USD
// conversion, is the caller's job):
//
//	trade  = swap(amountIn, buyReserveIn, buyReserveOut, buyFeeBps)
//	baseOut = swap(trade, sellReserveIn, sellReserveOut, sellFeeBps)
//	repay  = amountIn·(1 + flashFeeBps/10000)
//	net    = baseOut - repay - gasBase
//
// gasBase may be nil, meaning no gas cost is charged.
func RoundTripSigned(amountIn *uint256.Int, buyReserveIn, buyReserveOut, sellReserveIn, sellReserveOut *uint256.Int, buyFeeBps, sellFeeBps, flashFeeBps int, gasBase *big.Int) *big.Int {
	trade := AmountOut(amountIn, buyReserveIn, buyReserveOut, buyFeeBps)
	baseOut := AmountOut(trade, sellReserveIn, sellReserveOut, sellFeeBps)

	flashFee := new(big.Int).Div(
		new(big.Int).Mul(amountIn.ToBig(), big.NewInt(int64(flashFeeBps))),
		big.NewInt(feeDenominator),
	)
	repay := new(big.Int).Add(amountIn.ToBig(), flashFee)

	net := new(big.Int).Sub(baseOut.ToBig(), repay)
	if gasBase != nil {
		net.Sub(net, gasBase)
	}
	return net
}
