package engine

import (
	"context"

	"cosmossdk.io/math"

	"github.com/paw-chain/poolcore/internal/types"
)

// minOrZero treats an unset slippage bound as zero.
func minOrZero(v math.Int) math.Int {
	if v.IsNil() {
		return math.ZeroInt()
	}
	return v
}

// Swap executes a constant-product trade. The full input (fee included) is
// added to the in-side reserve and the computed output is deducted from the
// out-side reserve and credited to the trader's pending balance; the actual
// asset movement happens later through AuthorizeSettlement.
func (e *Engine) Swap(ctx context.Context, req types.SwapRequest) (*types.SwapReceipt, error) {
	receipt, err := e.swap(ctx, req)
	if err != nil {
		e.countOp("swap", req.PairID, "error")
		e.countRejection("swap", err)
		return nil, err
	}
	e.countOp("swap", req.PairID, "ok")
	return receipt, nil
}

func (e *Engine) swap(_ context.Context, req types.SwapRequest) (*types.SwapReceipt, error) {
	ent, cfg, err := e.entry(req.PairID)
	if err != nil {
		return nil, err
	}

	if req.AmountIn.IsNil() || !req.AmountIn.IsPositive() {
		return nil, types.ErrInvalidAmount.Wrap("swap input must be positive")
	}
	if req.AssetIn != cfg.AssetA && req.AssetIn != cfg.AssetB {
		return nil, types.ErrInvalidAsset.Wrapf("asset %s is not an underlying asset of pair %s", req.AssetIn, req.PairID)
	}
	minOut := minOrZero(req.MinAmountOut)

	ent.mu.Lock()
	defer ent.mu.Unlock()
	pool := ent.pool

	var reserveIn, reserveOut math.Int
	var assetOut string
	if req.AssetIn == cfg.AssetA {
		reserveIn, reserveOut, assetOut = pool.ReserveA, pool.ReserveB, cfg.AssetB
	} else {
		reserveIn, reserveOut, assetOut = pool.ReserveB, pool.ReserveA, cfg.AssetA
	}

	if reserveIn.IsZero() || reserveOut.IsZero() {
		return nil, types.ErrInsufficientLiquidity.Wrapf("pair %s has empty reserves", req.PairID)
	}

	inputAfterFee, err := applyFee(req.AmountIn, cfg.FeePercent)
	if err != nil {
		return nil, types.ErrArithmeticOverflow.Wrapf("fee calculation: %v", err)
	}
	if inputAfterFee.IsZero() {
		return nil, types.ErrInvalidAmount.Wrap("swap input too small after fee")
	}
	feeAmount := req.AmountIn.Sub(inputAfterFee)

	amountOut, err := swapOutput(inputAfterFee, reserveIn, reserveOut)
	if err != nil {
		return nil, types.ErrArithmeticOverflow.Wrapf("swap output: %v", err)
	}
	if amountOut.GTE(reserveOut) {
		return nil, types.ErrInsufficientLiquidity.Wrapf("output %s would drain reserve %s", amountOut, reserveOut)
	}
	if amountOut.LT(minOut) {
		return nil, types.ErrSlippageExceeded.Wrapf("output %s below minimum %s", amountOut, minOut)
	}

	newReserveIn, err := SafeAdd(reserveIn, req.AmountIn)
	if err != nil {
		return nil, types.ErrArithmeticOverflow.Wrapf("reserve update: %v", err)
	}
	newReserveOut := reserveOut.Sub(amountOut)

	if err := validateConstantProduct(reserveIn, reserveOut, newReserveIn, newReserveOut); err != nil {
		return nil, types.ErrArithmeticOverflow.Wrapf("invariant check: %v", err)
	}

	// Commit. The ledger credit runs first so a pending-balance overflow
	// aborts with the pool untouched; everything after is infallible.
	if err := e.ledger.Credit(req.Account, req.PairID, assetOut, amountOut); err != nil {
		return nil, err
	}
	if req.AssetIn == cfg.AssetA {
		ent.pool.ReserveA, ent.pool.ReserveB = newReserveIn, newReserveOut
	} else {
		ent.pool.ReserveB, ent.pool.ReserveA = newReserveIn, newReserveOut
	}

	e.observePool(ent.pool)
	e.observeLedger()
	if e.metrics != nil {
		e.metrics.SwapVolume.WithLabelValues(req.PairID, req.AssetIn).Add(intGauge(req.AmountIn))
		e.metrics.FeesRetained.WithLabelValues(req.PairID, req.AssetIn).Add(intGauge(feeAmount))
	}
	e.logger.Info("swap committed",
		"pair_id", req.PairID,
		"account", req.Account,
		"asset_in", req.AssetIn,
		"amount_in", req.AmountIn.String(),
		"fee", feeAmount.String(),
		"amount_out", amountOut.String(),
	)

	return &types.SwapReceipt{
		PairID:        req.PairID,
		Account:       req.Account,
		AssetIn:       req.AssetIn,
		AssetOut:      assetOut,
		AmountIn:      req.AmountIn,
		FeeAmount:     feeAmount,
		AmountOut:     amountOut,
		ReserveA:      ent.pool.ReserveA,
		ReserveB:      ent.pool.ReserveB,
		EscrowAddress: cfg.EscrowAddress,
	}, nil
}
