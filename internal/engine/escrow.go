package engine

import (
	"context"

	"github.com/paw-chain/poolcore/internal/types"
)

// SettlementKey namespaces a settlement id by account and pair so two
// accounts can use the same id without colliding. Persistence layers must
// store consumed ids under this key.
func SettlementKey(account, pairID, settlementID string) string {
	return account + "/" + pairID + "/" + settlementID
}

// AuthorizeSettlement is the only path that approves movement of custodied
// funds. It re-checks the requested amount against the pending ledger,
// confirms the custody program backs the transfer, and debits the
// entitlement, exactly once per settlement id.
func (e *Engine) AuthorizeSettlement(ctx context.Context, req types.AuthorizationRequest) (*types.SettlementReceipt, error) {
	receipt, err := e.authorizeSettlement(ctx, req)
	if err != nil {
		e.countOp("settle", req.PairID, "error")
		e.countRejection("settle", err)
		return nil, err
	}
	e.countOp("settle", req.PairID, "ok")
	return receipt, nil
}

func (e *Engine) authorizeSettlement(ctx context.Context, req types.AuthorizationRequest) (*types.SettlementReceipt, error) {
	ent, cfg, err := e.entry(req.PairID)
	if err != nil {
		return nil, err
	}
	if req.SettlementID == "" {
		return nil, types.ErrInvalidAmount.Wrap("settlement id is required")
	}
	if req.Amount.IsNil() || !req.Amount.IsPositive() {
		return nil, types.ErrInvalidAmount.Wrap("settlement amount must be positive")
	}
	if !cfg.KnowsAsset(req.Asset) {
		return nil, types.ErrInvalidAsset.Wrapf("asset %s does not belong to pair %s", req.Asset, req.PairID)
	}

	// Settlements are serialized per pair, like every other mutation.
	ent.mu.Lock()
	defer ent.mu.Unlock()

	key := SettlementKey(req.Account, req.PairID, req.SettlementID)
	e.settleMu.Lock()
	_, replay := e.settled[key]
	e.settleMu.Unlock()
	if replay {
		return nil, types.ErrAlreadySettled.Wrapf("settlement %s already executed", req.SettlementID)
	}

	balance := e.ledger.Balance(req.Account, req.PairID, req.Asset)
	if balance.IsZero() {
		return nil, types.ErrNoPendingEntitlement.Wrapf(
			"no pending %s for account %s on pair %s", req.Asset, req.Account, req.PairID)
	}
	if req.Amount.GT(balance) {
		return nil, types.ErrNoPendingEntitlement.Wrapf(
			"requested %s exceeds pending %s", req.Amount, balance)
	}

	if err := e.custody.VerifyRelease(ctx, req, cfg); err != nil {
		return nil, types.ErrCustodyRejected.Wrapf("pair %s: %v", req.PairID, err)
	}

	// Commit: debit the entitlement and consume the settlement id. The
	// debit cannot fail after the balance check above because every
	// mutation of this ledger key runs under the same pair lock.
	if err := e.ledger.Debit(req.Account, req.PairID, req.Asset, req.Amount); err != nil {
		return nil, err
	}

	receipt := types.SettlementReceipt{
		SettlementID:  req.SettlementID,
		Account:       req.Account,
		PairID:        req.PairID,
		Asset:         req.Asset,
		Amount:        req.Amount,
		EscrowAddress: cfg.EscrowAddress,
	}

	e.settleMu.Lock()
	e.settled[key] = receipt
	e.settleMu.Unlock()
	e.observeLedger()

	e.logger.Info("settlement authorized",
		"settlement_id", req.SettlementID,
		"pair_id", req.PairID,
		"account", req.Account,
		"asset", req.Asset,
		"amount", req.Amount.String(),
	)
	return &receipt, nil
}
