package custody

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"

	"cosmossdk.io/math"

	"github.com/paw-chain/poolcore/internal/types"
)

// HoldingSource reports custody-recorded liquidity-share holdings. The
// database journal implements this; tests use stubs.
type HoldingSource interface {
	LiquidityHolding(ctx context.Context, account, pairID string) (math.Int, error)
}

// Verifier is the config-driven custody boundary. It pins each pair's
// compiled custody program at startup and refuses releases whose pair config
// has drifted from the pinned program.
type Verifier struct {
	holdings HoldingSource
	programs map[string][]byte
	escrows  map[string]string
}

// NewVerifier builds a verifier from the pair registry. Every custody program
// id must be valid base64.
func NewVerifier(holdings HoldingSource, pairs []types.PairConfig) (*Verifier, error) {
	v := &Verifier{
		holdings: holdings,
		programs: make(map[string][]byte, len(pairs)),
		escrows:  make(map[string]string, len(pairs)),
	}
	for _, pair := range pairs {
		program, err := base64.StdEncoding.DecodeString(pair.CustodyProgramID)
		if err != nil {
			return nil, fmt.Errorf("pair %s: invalid custody program id: %w", pair.PairID, err)
		}
		if len(program) == 0 {
			return nil, fmt.Errorf("pair %s: empty custody program", pair.PairID)
		}
		v.programs[pair.PairID] = program
		v.escrows[pair.PairID] = pair.EscrowAddress
	}
	return v, nil
}

// LiquidityHolding returns the account's recorded liquidity-share holding.
// Without a holding source every holding reads as zero, which blocks
// withdrawals rather than allowing unbacked ones.
func (v *Verifier) LiquidityHolding(ctx context.Context, account, pairID string) (math.Int, error) {
	if v.holdings == nil {
		return math.ZeroInt(), nil
	}
	return v.holdings.LiquidityHolding(ctx, account, pairID)
}

// VerifyRelease confirms a proposed release is backed by the pinned custody
// program for the pair.
func (v *Verifier) VerifyRelease(_ context.Context, req types.AuthorizationRequest, cfg types.PairConfig) error {
	pinned, ok := v.programs[req.PairID]
	if !ok {
		return fmt.Errorf("no custody program registered for pair %s", req.PairID)
	}

	current, err := base64.StdEncoding.DecodeString(cfg.CustodyProgramID)
	if err != nil {
		return fmt.Errorf("pair %s: invalid custody program id: %w", req.PairID, err)
	}
	if !bytes.Equal(pinned, current) {
		return fmt.Errorf("pair %s: custody program drifted from pinned program", req.PairID)
	}

	if escrow := v.escrows[req.PairID]; escrow != cfg.EscrowAddress {
		return fmt.Errorf("pair %s: escrow address %s does not match pinned %s",
			req.PairID, cfg.EscrowAddress, escrow)
	}
	return nil
}
