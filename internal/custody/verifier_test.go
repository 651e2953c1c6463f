package custody

import (
	"context"
	"testing"

	"cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"github.com/paw-chain/poolcore/internal/types"
)

type stubHoldings struct {
	amount math.Int
	err    error
}

func (s *stubHoldings) LiquidityHolding(context.Context, string, string) (math.Int, error) {
	if s.err != nil {
		return math.Int{}, s.err
	}
	return s.amount, nil
}

func pairConfig() types.PairConfig {
	return types.PairConfig{
		PairID:           "upaw-uatom",
		AssetA:           "upaw",
		AssetB:           "uatom",
		AssetLiquidity:   "ulp-paw-atom",
		FeePercent:       3,
		EscrowAddress:    "escrow1pool",
		CustodyProgramID: "AiAHAgQDBg==",
	}
}

func TestNewVerifier_RejectsBadProgram(t *testing.T) {
	cfg := pairConfig()
	cfg.CustodyProgramID = "not base64!!"
	_, err := NewVerifier(nil, []types.PairConfig{cfg})
	require.Error(t, err)

	cfg.CustodyProgramID = ""
	_, err = NewVerifier(nil, []types.PairConfig{cfg})
	require.Error(t, err)
}

func TestVerifyRelease(t *testing.T) {
	cfg := pairConfig()
	v, err := NewVerifier(nil, []types.PairConfig{cfg})
	require.NoError(t, err)

	req := types.AuthorizationRequest{
		SettlementID: "s-1",
		Account:      "addr1alice",
		PairID:       cfg.PairID,
		Asset:        cfg.AssetB,
		Amount:       math.NewInt(10),
	}
	require.NoError(t, v.VerifyRelease(context.Background(), req, cfg))

	// Program drift is refused.
	drifted := cfg
	drifted.CustodyProgramID = "AiAHAgQDBw=="
	require.Error(t, v.VerifyRelease(context.Background(), req, drifted))

	// Escrow drift is refused.
	drifted = cfg
	drifted.EscrowAddress = "escrow1other"
	require.Error(t, v.VerifyRelease(context.Background(), req, drifted))

	// Unregistered pair is refused.
	unknown := req
	unknown.PairID = "nope"
	require.Error(t, v.VerifyRelease(context.Background(), unknown, cfg))
}

func TestLiquidityHolding(t *testing.T) {
	cfg := pairConfig()

	// No source: everything reads zero.
	v, err := NewVerifier(nil, []types.PairConfig{cfg})
	require.NoError(t, err)
	holding, err := v.LiquidityHolding(context.Background(), "addr1alice", cfg.PairID)
	require.NoError(t, err)
	require.True(t, holding.IsZero())

	v, err = NewVerifier(&stubHoldings{amount: math.NewInt(500)}, []types.PairConfig{cfg})
	require.NoError(t, err)
	holding, err = v.LiquidityHolding(context.Background(), "addr1alice", cfg.PairID)
	require.NoError(t, err)
	require.Equal(t, math.NewInt(500), holding)
}
