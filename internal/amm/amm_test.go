package amm

import (
	"math/big"
	"testing"

	"github.com/holiman/uint256"
)

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

func TestAmountOutKnownValue(t *testing.T) {
	// 1000 in, reserves 10000/10000, 30bps fee -- hand-checked constant
	// product formula result.
	got := AmountOut(u(1000), u(10000), u(10000), 30)
	want := u(906)
	if got.Cmp(want) != 0 {
		t.Errorf("AmountOut = %s, want %s", got, want)
	}
}

func TestAmountOutZeroInputs(t *testing.T) {
	cases := []struct {
		name                        string
		amountIn, reserveIn, reserveOut *uint256.Int
	}{
		{"zero amountIn", u(0), u(1000), u(1000)},
		{"zero reserveIn", u(100), u(0), u(1000)},
		{"zero reserveOut", u(100), u(1000), u(0)},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := AmountOut(c.amountIn, c.reserveIn, c.reserveOut, 30)
			if !got.IsZero() {
				t.Errorf("AmountOut() = %s, want 0", got)
			}
		})
	}
}

func TestAmountOutHigherFeeLowersOutput(t *testing.T) {
	low := AmountOut(u(1000), u(10000), u(10000), 30)
	high := AmountOut(u(1000), u(10000), u(10000), 300)
	if high.Cmp(low) >= 0 {
		t.Errorf("higher fee should yield lower output: low=%s high=%s", low, high)
	}
}

func TestMidPriceEqualReserves(t *testing.T) {
	price := MidPrice(u(1000), u(1000), 18, 18)
	f, _ := price.Float64()
	if f != 1.0 {
		t.Errorf("MidPrice = %v, want 1.0", f)
	}
}

func TestMidPriceDecimalsAdjustment(t *testing.T) {
	// token0 has 6 decimals (USDC-like), token1 has 18; equal raw
	// reserves of 1000 units should NOT produce a 1:1 mid price once
	// decimals are normalized.
	price := MidPrice(u(1000), u(1000), 6, 18)
	f, _ := price.Float64()
	if f == 1.0 {
		t.Error("expected decimals adjustment to change the mid price")
	}
}

func TestSpreadPctSign(t *testing.T) {
	higher := big.NewFloat(110)
	lower := big.NewFloat(100)

	if got := SpreadPct(higher, lower); got <= 0 {
		t.Errorf("expected positive spread when priceA > priceB, got %v", got)
	}
	if got := SpreadPct(lower, higher); got >= 0 {
		t.Errorf("expected negative spread when priceA < priceB, got %v", got)
	}
}

func TestSpreadPctZeroDenominator(t *testing.T) {
	if got := SpreadPct(big.NewFloat(10), big.NewFloat(0)); got != 0 {
		t.Errorf("SpreadPct with zero priceB = %v, want 0", got)
	}
}

func TestRoundTripSignedProfitable(t *testing.T) {
	// Cheap pool: 1 base buys a lot of trade. Expensive pool: trade
	// sells back for more base than was borrowed. No flash fee or gas
	// charged, so the spread alone must carry the profit.
	profit := RoundTripSigned(
		u(1000),
		u(100000), u(100000), // buy leg reserves
		u(100000), u(110000), // sell leg reserves (trade scarce here, base abundant)
		30, 30, 0, nil,
	)
	if profit.Sign() <= 0 {
		t.Errorf("expected positive profit, got %s", profit)
	}
}

func TestRoundTripSignedLoss(t *testing.T) {
	// Identical reserves and fees both ways: round trip must lose to fees.
	profit := RoundTripSigned(
		u(1000),
		u(100000), u(100000),
		u(100000), u(100000),
		30, 30, 0, nil,
	)
	if profit.Sign() >= 0 {
		t.Errorf("expected a loss from fees on a no-spread round trip, got %s", profit)
	}
}

func TestRoundTripSignedFlashFeeAndGasReducesProfit(t *testing.T) {
	withoutCosts := RoundTripSigned(
		u(1000),
		u(100000), u(100000),
		u(100000), u(110000),
		30, 30, 0, nil,
	)
	withCosts := RoundTripSigned(
		u(1000),
		u(100000), u(100000),
		u(100000), u(110000),
		30, 30, 9, big.NewInt(5),
	)
	if withCosts.Cmp(withoutCosts) >= 0 {
		t.Errorf("flash fee + gas should strictly reduce profit: without=%s with=%s", withoutCosts, withCosts)
	}
}

func TestRoundTripSignedFlashFeeMatchesRepayMath(t *testing.T) {
	// The flash fee and gas are subtracted after both swap legs, so they
	// shift net profit by exactly (flashFee + gas) regardless of the
	// swap amounts themselves: amountIn=10000, flashFeeBps=9 -> flashFee=9.
	amountIn := u(10000)
	buyRin, buyRout := u(1_000_000), u(1_000_000)
	sellRin, sellRout := u(1_000_000), u(1_000_000)

	withoutFlashFee := RoundTripSigned(amountIn, buyRin, buyRout, sellRin, sellRout, 30, 30, 0, nil)
	withFlashFee := RoundTripSigned(amountIn, buyRin, buyRout, sellRin, sellRout, 30, 30, 9, nil)

	diff := new(big.Int).Sub(withoutFlashFee, withFlashFee)
	if diff.Cmp(big.NewInt(9)) != 0 {
		t.Errorf("flash fee of 9bps on amountIn=10000 should shift profit by exactly 9, got %s", diff)
	}
}
