package engine

import (
	"fmt"
	"math/big"

	"cosmossdk.io/math"
)

// maxInt is the exclusive upper bound of math.Int (2^256). All helpers below
// report an error instead of panicking when a result would leave this range.
var maxInt = new(big.Int).Exp(big.NewInt(2), big.NewInt(256), nil)

// SafeAdd adds two math.Int values with overflow checking
func SafeAdd(a, b math.Int) (math.Int, error) {
	result := new(big.Int).Add(a.BigInt(), b.BigInt())
	if result.Cmp(maxInt) >= 0 {
		return math.Int{}, fmt.Errorf("overflow: addition result exceeds maximum value")
	}
	return math.NewIntFromBigInt(result), nil
}

// SafeSub subtracts b from a, failing on underflow below zero
func SafeSub(a, b math.Int) (math.Int, error) {
	if a.LT(b) {
		return math.Int{}, fmt.Errorf("underflow: cannot subtract %s from %s", b.String(), a.String())
	}
	result := new(big.Int).Sub(a.BigInt(), b.BigInt())
	return math.NewIntFromBigInt(result), nil
}

// SafeMul multiplies two math.Int values with overflow checking
func SafeMul(a, b math.Int) (math.Int, error) {
	if a.IsZero() || b.IsZero() {
		return math.ZeroInt(), nil
	}
	result := new(big.Int).Mul(a.BigInt(), b.BigInt())
	if result.Cmp(maxInt) >= 0 {
		return math.Int{}, fmt.Errorf("overflow: multiplication result exceeds maximum value")
	}
	return math.NewIntFromBigInt(result), nil
}

// SafeMulDiv computes (a * b) / c with floor truncation, checking the
// intermediate product. Truncation always rounds toward the pool.
func SafeMulDiv(a, b, c math.Int) (math.Int, error) {
	if c.IsZero() {
		return math.Int{}, fmt.Errorf("division by zero")
	}
	intermediate := new(big.Int).Mul(a.BigInt(), b.BigInt())
	if intermediate.Cmp(maxInt) >= 0 {
		return math.Int{}, fmt.Errorf("overflow in multiplication step")
	}
	result := new(big.Int).Quo(intermediate, c.BigInt())
	return math.NewIntFromBigInt(result), nil
}

// feeBase is the denominator of the integer fee percentage.
var feeBase = math.NewInt(100)

// applyFee returns the effective input after deducting the integer-percent
// fee, floor-truncated: amountIn * (100 - feePercent) / 100. The fee stays
// in the pool.
func applyFee(amountIn math.Int, feePercent uint32) (math.Int, error) {
	keep := math.NewInt(int64(100 - feePercent))
	return SafeMulDiv(amountIn, keep, feeBase)
}

// swapOutput computes the constant-product output for an already
// fee-adjusted input: reserveOut * inputAfterFee / (reserveIn + inputAfterFee),
// floor-truncated so rounding never favors the trader.
func swapOutput(inputAfterFee, reserveIn, reserveOut math.Int) (math.Int, error) {
	denominator, err := SafeAdd(reserveIn, inputAfterFee)
	if err != nil {
		return math.Int{}, err
	}
	return SafeMulDiv(reserveOut, inputAfterFee, denominator)
}

// bootstrapShares computes the initial liquidity mint as the geometric mean
// sqrt(amountA * amountB), truncated. The square root runs on fixed-point
// LegacyDec; no accounting value passes through binary floating point.
func bootstrapShares(amountA, amountB math.Int) (math.Int, error) {
	product, err := SafeMul(amountA, amountB)
	if err != nil {
		return math.Int{}, err
	}
	sqrt, err := math.LegacyNewDecFromInt(product).ApproxSqrt()
	if err != nil {
		return math.Int{}, fmt.Errorf("square root: %w", err)
	}
	return sqrt.TruncateInt(), nil
}

// depositShares computes the steady-state mint, capped by the scarcer asset:
// min(amountA * supply / reserveA, amountB * supply / reserveB), both floors.
func depositShares(amountA, amountB, reserveA, reserveB, supply math.Int) (math.Int, error) {
	sharesA, err := SafeMulDiv(amountA, supply, reserveA)
	if err != nil {
		return math.Int{}, err
	}
	sharesB, err := SafeMulDiv(amountB, supply, reserveB)
	if err != nil {
		return math.Int{}, err
	}
	return math.MinInt(sharesA, sharesB), nil
}

// withdrawAmounts computes the proportional payout for burned shares:
// shares * reserve / supply per asset, floor-truncated (the pool keeps the
// remainder).
func withdrawAmounts(shares, reserveA, reserveB, supply math.Int) (math.Int, math.Int, error) {
	amountA, err := SafeMulDiv(shares, reserveA, supply)
	if err != nil {
		return math.Int{}, math.Int{}, err
	}
	amountB, err := SafeMulDiv(shares, reserveB, supply)
	if err != nil {
		return math.Int{}, math.Int{}, err
	}
	return amountA, amountB, nil
}

// validateConstantProduct checks that the pool product did not decrease.
func validateConstantProduct(oldReserveA, oldReserveB, newReserveA, newReserveB math.Int) error {
	oldK, err := SafeMul(oldReserveA, oldReserveB)
	if err != nil {
		return err
	}
	newK, err := SafeMul(newReserveA, newReserveB)
	if err != nil {
		return err
	}
	if newK.LT(oldK) {
		return fmt.Errorf("constant product decreased: old_k=%s new_k=%s", oldK, newK)
	}
	return nil
}
