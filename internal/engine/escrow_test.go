package engine

import (
	"context"
	"errors"
	"testing"

	"cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"github.com/paw-chain/poolcore/internal/types"
)

// swapForPending runs a swap so bob ends up with a pending B-asset balance.
func swapForPending(t *testing.T, e *Engine) math.Int {
	t.Helper()
	receipt, err := e.Swap(context.Background(), types.SwapRequest{
		PairID:   testPair,
		Account:  bob,
		AssetIn:  testAssetA,
		AmountIn: math.NewInt(10_000),
	})
	require.NoError(t, err)
	return receipt.AmountOut
}

func TestAuthorizeSettlement_SwapThenSettle(t *testing.T) {
	e := newTestEngine(t, nil)
	seedPool(t, e)
	owed := swapForPending(t, e)

	receipt, err := e.AuthorizeSettlement(context.Background(), types.AuthorizationRequest{
		SettlementID: "settle-1",
		Account:      bob,
		PairID:       testPair,
		Asset:        testAssetB,
		Amount:       owed,
	})
	require.NoError(t, err)
	require.Equal(t, owed, receipt.Amount)
	require.Equal(t, "escrow1pool", receipt.EscrowAddress)

	// The entitlement is consumed.
	require.True(t, e.ledger.Balance(bob, testPair, testAssetB).IsZero())
	require.Contains(t, e.SettlementIDs(), SettlementKey(bob, testPair, "settle-1"))
}

func TestAuthorizeSettlement_ReplayRejected(t *testing.T) {
	e := newTestEngine(t, nil)
	seedPool(t, e)
	owed := swapForPending(t, e)

	half := owed.QuoRaw(2)
	req := types.AuthorizationRequest{
		SettlementID: "settle-1",
		Account:      bob,
		PairID:       testPair,
		Asset:        testAssetB,
		Amount:       half,
	}
	_, err := e.AuthorizeSettlement(context.Background(), req)
	require.NoError(t, err)

	// The id is consumed even though a pending balance remains.
	_, err = e.AuthorizeSettlement(context.Background(), req)
	require.ErrorIs(t, err, types.ErrAlreadySettled)
	require.Equal(t, owed.Sub(half), e.ledger.Balance(bob, testPair, testAssetB))
}

func TestAuthorizeSettlement_PartialSettlements(t *testing.T) {
	e := newTestEngine(t, nil)
	seedPool(t, e)
	owed := swapForPending(t, e)

	first := owed.QuoRaw(3)
	rest := owed.Sub(first)

	_, err := e.AuthorizeSettlement(context.Background(), types.AuthorizationRequest{
		SettlementID: "part-1", Account: bob, PairID: testPair, Asset: testAssetB, Amount: first,
	})
	require.NoError(t, err)

	_, err = e.AuthorizeSettlement(context.Background(), types.AuthorizationRequest{
		SettlementID: "part-2", Account: bob, PairID: testPair, Asset: testAssetB, Amount: rest,
	})
	require.NoError(t, err)
	require.True(t, e.ledger.Balance(bob, testPair, testAssetB).IsZero())
}

func TestAuthorizeSettlement_NoEntitlement(t *testing.T) {
	e := newTestEngine(t, nil)
	seedPool(t, e)

	_, err := e.AuthorizeSettlement(context.Background(), types.AuthorizationRequest{
		SettlementID: "settle-1",
		Account:      bob,
		PairID:       testPair,
		Asset:        testAssetB,
		Amount:       math.NewInt(1),
	})
	require.ErrorIs(t, err, types.ErrNoPendingEntitlement)
}

func TestAuthorizeSettlement_OverClaim(t *testing.T) {
	e := newTestEngine(t, nil)
	seedPool(t, e)
	owed := swapForPending(t, e)

	_, err := e.AuthorizeSettlement(context.Background(), types.AuthorizationRequest{
		SettlementID: "settle-1",
		Account:      bob,
		PairID:       testPair,
		Asset:        testAssetB,
		Amount:       owed.AddRaw(1),
	})
	require.ErrorIs(t, err, types.ErrNoPendingEntitlement)

	// The over-claim consumes nothing: balance and id both survive.
	require.Equal(t, owed, e.ledger.Balance(bob, testPair, testAssetB))
	require.Empty(t, e.SettlementIDs())
}

func TestAuthorizeSettlement_CustodyRejection(t *testing.T) {
	custody := &stubCustody{verifyErr: errors.New("program hash mismatch")}
	e := newTestEngine(t, custody)
	seedPool(t, e)
	owed := swapForPending(t, e)

	_, err := e.AuthorizeSettlement(context.Background(), types.AuthorizationRequest{
		SettlementID: "settle-1",
		Account:      bob,
		PairID:       testPair,
		Asset:        testAssetB,
		Amount:       owed,
	})
	require.ErrorIs(t, err, types.ErrCustodyRejected)

	// A custody veto leaves the entitlement intact and the id unconsumed.
	require.Equal(t, owed, e.ledger.Balance(bob, testPair, testAssetB))
	require.Empty(t, e.SettlementIDs())
}

func TestAuthorizeSettlement_Validation(t *testing.T) {
	e := newTestEngine(t, nil)
	seedPool(t, e)
	ctx := context.Background()

	_, err := e.AuthorizeSettlement(ctx, types.AuthorizationRequest{
		Account: bob, PairID: testPair, Asset: testAssetB, Amount: math.NewInt(1),
	})
	require.ErrorIs(t, err, types.ErrInvalidAmount)

	_, err = e.AuthorizeSettlement(ctx, types.AuthorizationRequest{
		SettlementID: "s", Account: bob, PairID: testPair, Asset: testAssetB, Amount: math.ZeroInt(),
	})
	require.ErrorIs(t, err, types.ErrInvalidAmount)

	_, err = e.AuthorizeSettlement(ctx, types.AuthorizationRequest{
		SettlementID: "s", Account: bob, PairID: testPair, Asset: "uosmo", Amount: math.NewInt(1),
	})
	require.ErrorIs(t, err, types.ErrInvalidAsset)

	_, err = e.AuthorizeSettlement(ctx, types.AuthorizationRequest{
		SettlementID: "s", Account: bob, PairID: "nope", Asset: testAssetB, Amount: math.NewInt(1),
	})
	require.ErrorIs(t, err, types.ErrInvalidPair)
}
