package engine

import (
	"context"
	"fmt"

	"github.com/paw-chain/poolcore/internal/types"
)

// Bootstrap seeds an empty pool with its first reserves and mints the
// geometric-mean share amount. It runs at most once per pair; a second
// attempt fails with ErrAlreadyBootstrapped.
func (e *Engine) Bootstrap(ctx context.Context, req types.BootstrapRequest) (*types.DepositReceipt, error) {
	receipt, err := e.bootstrap(ctx, req)
	if err != nil {
		e.countOp("bootstrap", req.PairID, "error")
		e.countRejection("bootstrap", err)
		return nil, err
	}
	e.countOp("bootstrap", req.PairID, "ok")
	return receipt, nil
}

func (e *Engine) bootstrap(_ context.Context, req types.BootstrapRequest) (*types.DepositReceipt, error) {
	ent, cfg, err := e.entry(req.PairID)
	if err != nil {
		return nil, err
	}
	if req.AmountA.IsNil() || !req.AmountA.IsPositive() || req.AmountB.IsNil() || !req.AmountB.IsPositive() {
		return nil, types.ErrInvalidAmount.Wrap("bootstrap amounts must be positive")
	}
	minOut := minOrZero(req.MinLiquidityOut)

	ent.mu.Lock()
	defer ent.mu.Unlock()

	if ent.pool.IsBootstrapped() {
		return nil, types.ErrAlreadyBootstrapped.Wrapf("pair %s already holds reserves", req.PairID)
	}

	minted, err := bootstrapShares(req.AmountA, req.AmountB)
	if err != nil {
		return nil, types.ErrArithmeticOverflow.Wrapf("bootstrap shares: %v", err)
	}
	if minted.IsZero() {
		return nil, types.ErrInvalidAmount.Wrap("bootstrap amounts too small to mint shares")
	}
	if minted.LT(minOut) {
		return nil, types.ErrSlippageExceeded.Wrapf("minted %s below minimum %s", minted, minOut)
	}

	if err := e.ledger.Credit(req.Account, req.PairID, cfg.AssetLiquidity, minted); err != nil {
		return nil, err
	}
	ent.pool.ReserveA = req.AmountA
	ent.pool.ReserveB = req.AmountB
	ent.pool.LiquiditySupply = minted

	e.observePool(ent.pool)
	e.observeLedger()
	e.logger.Info("pool bootstrapped",
		"pair_id", req.PairID,
		"account", req.Account,
		"reserve_a", req.AmountA.String(),
		"reserve_b", req.AmountB.String(),
		"minted", minted.String(),
	)

	return &types.DepositReceipt{
		PairID:          req.PairID,
		Account:         req.Account,
		AmountA:         req.AmountA,
		AmountB:         req.AmountB,
		MintedLiquidity: minted,
		LiquiditySupply: minted,
		EscrowAddress:   cfg.EscrowAddress,
	}, nil
}

// Deposit adds liquidity to a bootstrapped pool. Minted shares are capped by
// the scarcer asset: min(amountA*supply/reserveA, amountB*supply/reserveB).
// Both amounts are consumed in full; a caller supplying amounts off the pool
// ratio forfeits the surplus of the more plentiful asset. That policy is
// deliberate: refunding the surplus would need a second custody movement.
func (e *Engine) Deposit(ctx context.Context, req types.DepositRequest) (*types.DepositReceipt, error) {
	receipt, err := e.deposit(ctx, req)
	if err != nil {
		e.countOp("deposit", req.PairID, "error")
		e.countRejection("deposit", err)
		return nil, err
	}
	e.countOp("deposit", req.PairID, "ok")
	return receipt, nil
}

func (e *Engine) deposit(_ context.Context, req types.DepositRequest) (*types.DepositReceipt, error) {
	ent, cfg, err := e.entry(req.PairID)
	if err != nil {
		return nil, err
	}
	if req.AmountA.IsNil() || !req.AmountA.IsPositive() || req.AmountB.IsNil() || !req.AmountB.IsPositive() {
		return nil, types.ErrInvalidAmount.Wrap("deposit amounts must be positive")
	}
	minOut := minOrZero(req.MinLiquidityOut)

	ent.mu.Lock()
	defer ent.mu.Unlock()
	pool := ent.pool

	if !pool.IsBootstrapped() {
		return nil, types.ErrInsufficientLiquidity.Wrapf("pair %s not bootstrapped", req.PairID)
	}

	minted, err := depositShares(req.AmountA, req.AmountB, pool.ReserveA, pool.ReserveB, pool.LiquiditySupply)
	if err != nil {
		return nil, types.ErrArithmeticOverflow.Wrapf("deposit shares: %v", err)
	}
	if minted.IsZero() {
		return nil, types.ErrInvalidAmount.Wrap("deposit too small to mint shares")
	}
	if minted.LT(minOut) {
		return nil, types.ErrSlippageExceeded.Wrapf("minted %s below minimum %s", minted, minOut)
	}

	newReserveA, err := SafeAdd(pool.ReserveA, req.AmountA)
	if err != nil {
		return nil, types.ErrArithmeticOverflow.Wrapf("reserve update: %v", err)
	}
	newReserveB, err := SafeAdd(pool.ReserveB, req.AmountB)
	if err != nil {
		return nil, types.ErrArithmeticOverflow.Wrapf("reserve update: %v", err)
	}
	newSupply, err := SafeAdd(pool.LiquiditySupply, minted)
	if err != nil {
		return nil, types.ErrArithmeticOverflow.Wrapf("supply update: %v", err)
	}

	if err := e.ledger.Credit(req.Account, req.PairID, cfg.AssetLiquidity, minted); err != nil {
		return nil, err
	}
	ent.pool.ReserveA = newReserveA
	ent.pool.ReserveB = newReserveB
	ent.pool.LiquiditySupply = newSupply

	e.observePool(ent.pool)
	e.observeLedger()
	e.logger.Info("liquidity deposited",
		"pair_id", req.PairID,
		"account", req.Account,
		"amount_a", req.AmountA.String(),
		"amount_b", req.AmountB.String(),
		"minted", minted.String(),
	)

	return &types.DepositReceipt{
		PairID:          req.PairID,
		Account:         req.Account,
		AmountA:         req.AmountA,
		AmountB:         req.AmountB,
		MintedLiquidity: minted,
		LiquiditySupply: newSupply,
		EscrowAddress:   cfg.EscrowAddress,
	}, nil
}

// Withdraw burns liquidity shares for a proportional, floor-rounded payout
// of both reserves. The payouts are credited to the pending ledger; the
// share burn itself is executed by the custody layer.
func (e *Engine) Withdraw(ctx context.Context, req types.WithdrawRequest) (*types.WithdrawReceipt, error) {
	receipt, err := e.withdraw(ctx, req)
	if err != nil {
		e.countOp("withdraw", req.PairID, "error")
		e.countRejection("withdraw", err)
		return nil, err
	}
	e.countOp("withdraw", req.PairID, "ok")
	return receipt, nil
}

func (e *Engine) withdraw(ctx context.Context, req types.WithdrawRequest) (*types.WithdrawReceipt, error) {
	ent, cfg, err := e.entry(req.PairID)
	if err != nil {
		return nil, err
	}
	if req.LiquidityAmount.IsNil() || !req.LiquidityAmount.IsPositive() {
		return nil, types.ErrInvalidAmount.Wrap("withdraw amount must be positive")
	}
	minA, minB := minOrZero(req.MinAOut), minOrZero(req.MinBOut)

	// The share holding lives with the custody layer; consult it before
	// taking the pair lock so a slow boundary call cannot stall the pool.
	holding, err := e.custody.LiquidityHolding(ctx, req.Account, req.PairID)
	if err != nil {
		return nil, fmt.Errorf("withdraw: query liquidity holding: %w", err)
	}
	if holding.LT(req.LiquidityAmount) {
		return nil, types.ErrInsufficientShares.Wrapf(
			"account %s holds %s of %s, requested %s", req.Account, holding, cfg.AssetLiquidity, req.LiquidityAmount)
	}

	ent.mu.Lock()
	defer ent.mu.Unlock()
	pool := ent.pool

	if !pool.IsBootstrapped() {
		return nil, types.ErrInsufficientLiquidity.Wrapf("pair %s not bootstrapped", req.PairID)
	}
	if req.LiquidityAmount.GT(pool.LiquiditySupply) {
		return nil, types.ErrInsufficientShares.Wrapf(
			"requested %s exceeds total supply %s", req.LiquidityAmount, pool.LiquiditySupply)
	}

	amountA, amountB, err := withdrawAmounts(req.LiquidityAmount, pool.ReserveA, pool.ReserveB, pool.LiquiditySupply)
	if err != nil {
		return nil, types.ErrArithmeticOverflow.Wrapf("withdraw amounts: %v", err)
	}
	if amountA.LT(minA) || amountB.LT(minB) {
		return nil, types.ErrSlippageExceeded.Wrapf(
			"payout %s/%s below minimums %s/%s", amountA, amountB, minA, minB)
	}
	if amountA.IsZero() || amountB.IsZero() {
		return nil, types.ErrInvalidAmount.Wrap("withdraw amount too small for a payout")
	}

	if err := e.ledger.CreditTwo(req.Account, req.PairID, cfg.AssetA, amountA, cfg.AssetB, amountB); err != nil {
		return nil, err
	}
	ent.pool.ReserveA = pool.ReserveA.Sub(amountA)
	ent.pool.ReserveB = pool.ReserveB.Sub(amountB)
	ent.pool.LiquiditySupply = pool.LiquiditySupply.Sub(req.LiquidityAmount)

	e.observePool(ent.pool)
	e.observeLedger()
	e.logger.Info("liquidity withdrawn",
		"pair_id", req.PairID,
		"account", req.Account,
		"burned", req.LiquidityAmount.String(),
		"amount_a", amountA.String(),
		"amount_b", amountB.String(),
	)

	return &types.WithdrawReceipt{
		PairID:          req.PairID,
		Account:         req.Account,
		LiquidityBurned: req.LiquidityAmount,
		AmountA:         amountA,
		AmountB:         amountB,
		EscrowAddress:   cfg.EscrowAddress,
	}, nil
}
