package engine

import (
	"math/big"
	"testing"

	"cosmossdk.io/math"
	"github.com/stretchr/testify/require"
)

func nearMax(t *testing.T) math.Int {
	t.Helper()
	return math.NewIntFromBigInt(new(big.Int).Sub(maxInt, big.NewInt(1)))
}

func TestSafeAdd_Overflow(t *testing.T) {
	_, err := SafeAdd(nearMax(t), math.NewInt(2))
	require.Error(t, err)

	sum, err := SafeAdd(math.NewInt(3), math.NewInt(4))
	require.NoError(t, err)
	require.Equal(t, math.NewInt(7), sum)
}

func TestSafeSub_Underflow(t *testing.T) {
	_, err := SafeSub(math.NewInt(3), math.NewInt(4))
	require.Error(t, err)

	diff, err := SafeSub(math.NewInt(4), math.NewInt(3))
	require.NoError(t, err)
	require.Equal(t, math.OneInt(), diff)
}

func TestSafeMulDiv(t *testing.T) {
	// Floor truncation.
	out, err := SafeMulDiv(math.NewInt(10), math.NewInt(10), math.NewInt(3))
	require.NoError(t, err)
	require.Equal(t, math.NewInt(33), out)

	_, err = SafeMulDiv(math.NewInt(1), math.NewInt(1), math.ZeroInt())
	require.Error(t, err)

	// The intermediate product is checked even when the quotient would fit.
	_, err = SafeMulDiv(nearMax(t), math.NewInt(2), math.NewInt(2))
	require.Error(t, err)
}

func TestApplyFee(t *testing.T) {
	// 3% fee on 10,000 leaves 9,700.
	after, err := applyFee(math.NewInt(10_000), 3)
	require.NoError(t, err)
	require.Equal(t, math.NewInt(9_700), after)

	// Floor truncation favors the pool.
	after, err = applyFee(math.NewInt(101), 3)
	require.NoError(t, err)
	require.Equal(t, math.NewInt(97), after)

	// Zero fee passes the input through.
	after, err = applyFee(math.NewInt(101), 0)
	require.NoError(t, err)
	require.Equal(t, math.NewInt(101), after)
}

func TestSwapOutput(t *testing.T) {
	// 2,000,000 * 9,700 / (1,000,000 + 9,700), floored.
	out, err := swapOutput(math.NewInt(9_700), math.NewInt(1_000_000), math.NewInt(2_000_000))
	require.NoError(t, err)
	require.Equal(t, math.NewInt(19_213), out)
	require.True(t, out.LT(math.NewInt(2_000_000)))
}

func TestBootstrapShares(t *testing.T) {
	// Exact square: sqrt(4 * 9) = 6.
	shares, err := bootstrapShares(math.NewInt(4), math.NewInt(9))
	require.NoError(t, err)
	require.Equal(t, math.NewInt(6), shares)

	// sqrt(2e12) truncates to 1,414,213.
	shares, err = bootstrapShares(math.NewInt(1_000_000), math.NewInt(2_000_000))
	require.NoError(t, err)
	require.Equal(t, math.NewInt(1_414_213), shares)
}

func TestDepositShares_MinOfBothSides(t *testing.T) {
	supply := math.NewInt(1_414_213)
	reserveA := math.NewInt(1_000_000)
	reserveB := math.NewInt(2_000_000)

	// Matching ratio: both sides agree.
	shares, err := depositShares(math.NewInt(100_000), math.NewInt(200_000), reserveA, reserveB, supply)
	require.NoError(t, err)
	require.Equal(t, math.NewInt(141_421), shares)

	// Excess B: mint is capped by the A side.
	capped, err := depositShares(math.NewInt(100_000), math.NewInt(900_000), reserveA, reserveB, supply)
	require.NoError(t, err)
	require.Equal(t, shares, capped)
}

func TestWithdrawAmounts_FloorsTowardPool(t *testing.T) {
	amountA, amountB, err := withdrawAmounts(
		math.NewInt(10), math.NewInt(1_000_003), math.NewInt(2_000_007), math.NewInt(1_414_213))
	require.NoError(t, err)
	// 10*1,000,003/1,414,213 = 7.07..., 10*2,000,007/1,414,213 = 14.14...
	require.Equal(t, math.NewInt(7), amountA)
	require.Equal(t, math.NewInt(14), amountB)
}

func TestValidateConstantProduct(t *testing.T) {
	require.NoError(t, validateConstantProduct(
		math.NewInt(100), math.NewInt(100), math.NewInt(110), math.NewInt(91)))
	require.Error(t, validateConstantProduct(
		math.NewInt(100), math.NewInt(100), math.NewInt(110), math.NewInt(90)))
}
