package types

import (
	"cosmossdk.io/math"
)

// PairConfig describes one tradable pair. It is loaded once at startup and
// never mutated; every operation validates against it.
type PairConfig struct {
	PairID            string `yaml:"pair_id" json:"pair_id"`
	AssetA            string `yaml:"asset_a" json:"asset_a"`
	AssetB            string `yaml:"asset_b" json:"asset_b"`
	AssetLiquidity    string `yaml:"asset_liquidity" json:"asset_liquidity"`
	DecimalsA         uint32 `yaml:"decimals_a" json:"decimals_a"`
	DecimalsB         uint32 `yaml:"decimals_b" json:"decimals_b"`
	DecimalsLiquidity uint32 `yaml:"decimals_liquidity" json:"decimals_liquidity"`
	// FeePercent is an integer percentage in [0, 100] charged on the swap
	// input and retained by the pool.
	FeePercent       uint32 `yaml:"fee_percent" json:"fee_percent"`
	EscrowAddress    string `yaml:"escrow_address" json:"escrow_address"`
	CustodyProgramID string `yaml:"custody_program_id" json:"custody_program_id"`
}

// Validate checks a pair entry at load time.
func (c PairConfig) Validate() error {
	if c.PairID == "" {
		return ErrInvalidPair.Wrap("pair id cannot be empty")
	}
	if c.AssetA == "" || c.AssetB == "" || c.AssetLiquidity == "" {
		return ErrInvalidPair.Wrapf("pair %s: asset ids cannot be empty", c.PairID)
	}
	if c.AssetA == c.AssetB {
		return ErrInvalidPair.Wrapf("pair %s: identical underlying assets %s", c.PairID, c.AssetA)
	}
	if c.AssetLiquidity == c.AssetA || c.AssetLiquidity == c.AssetB {
		return ErrInvalidPair.Wrapf("pair %s: liquidity asset %s collides with an underlying asset", c.PairID, c.AssetLiquidity)
	}
	if c.FeePercent > 100 {
		return ErrInvalidPair.Wrapf("pair %s: fee percent %d out of range [0, 100]", c.PairID, c.FeePercent)
	}
	if c.EscrowAddress == "" {
		return ErrInvalidPair.Wrapf("pair %s: escrow address cannot be empty", c.PairID)
	}
	if c.CustodyProgramID == "" {
		return ErrInvalidPair.Wrapf("pair %s: custody program id cannot be empty", c.PairID)
	}
	return nil
}

// KnowsAsset reports whether the asset belongs to this pair (including the
// liquidity-share asset).
func (c PairConfig) KnowsAsset(asset string) bool {
	return asset == c.AssetA || asset == c.AssetB || asset == c.AssetLiquidity
}

// Pool holds the mutable per-pair reserves and outstanding liquidity-share
// supply. Invariant: either all three values are zero (pool not yet
// bootstrapped) or all three are positive.
type Pool struct {
	PairID          string   `json:"pair_id"`
	ReserveA        math.Int `json:"reserve_a"`
	ReserveB        math.Int `json:"reserve_b"`
	LiquiditySupply math.Int `json:"liquidity_supply"`
}

// NewPool returns an empty pool for the pair.
func NewPool(pairID string) *Pool {
	return &Pool{
		PairID:          pairID,
		ReserveA:        math.ZeroInt(),
		ReserveB:        math.ZeroInt(),
		LiquiditySupply: math.ZeroInt(),
	}
}

// IsBootstrapped reports whether the pool holds reserves.
func (p *Pool) IsBootstrapped() bool {
	return !p.LiquiditySupply.IsZero()
}

// Validate checks the bootstrapped-or-empty invariant.
func (p *Pool) Validate() error {
	zeros := 0
	for _, v := range []math.Int{p.ReserveA, p.ReserveB, p.LiquiditySupply} {
		if v.IsNil() || v.IsNegative() {
			return ErrInvalidPair.Wrapf("pool %s: negative or unset balance", p.PairID)
		}
		if v.IsZero() {
			zeros++
		}
	}
	if zeros != 0 && zeros != 3 {
		return ErrInvalidPair.Wrapf(
			"pool %s: partial state (reserveA=%s reserveB=%s supply=%s)",
			p.PairID, p.ReserveA, p.ReserveB, p.LiquiditySupply,
		)
	}
	return nil
}

// PendingBalance is a snapshot of one pending-ledger entry: an amount owed to
// the account but not yet released from custody.
type PendingBalance struct {
	Account string   `json:"account"`
	PairID  string   `json:"pair_id"`
	Asset   string   `json:"asset"`
	Amount  math.Int `json:"amount"`
}

// SwapRequest asks to trade AmountIn of AssetIn against the pool.
// MinAmountOut is the caller's slippage bound.
type SwapRequest struct {
	PairID       string   `json:"pair_id"`
	Account      string   `json:"account"`
	AssetIn      string   `json:"asset_in"`
	AmountIn     math.Int `json:"amount_in"`
	MinAmountOut math.Int `json:"min_amount_out"`
}

// BootstrapRequest seeds an empty pool with its first reserves. Runs at most
// once per pair.
type BootstrapRequest struct {
	PairID          string   `json:"pair_id"`
	Account         string   `json:"account"`
	AmountA         math.Int `json:"amount_a"`
	AmountB         math.Int `json:"amount_b"`
	MinLiquidityOut math.Int `json:"min_liquidity_out"`
}

// DepositRequest adds liquidity to a bootstrapped pool. Minted shares are
// capped by the scarcer asset; any surplus of the other asset is consumed by
// the pool, not refunded.
type DepositRequest struct {
	PairID          string   `json:"pair_id"`
	Account         string   `json:"account"`
	AmountA         math.Int `json:"amount_a"`
	AmountB         math.Int `json:"amount_b"`
	MinLiquidityOut math.Int `json:"min_liquidity_out"`
}

// WithdrawRequest burns liquidity shares for a proportional payout of both
// reserves.
type WithdrawRequest struct {
	PairID          string   `json:"pair_id"`
	Account         string   `json:"account"`
	LiquidityAmount math.Int `json:"liquidity_amount"`
	MinAOut         math.Int `json:"min_a_out"`
	MinBOut         math.Int `json:"min_b_out"`
}

// AuthorizationRequest asks the escrow authorizer to release a pending
// entitlement. SettlementID must be unique per release; replaying a consumed
// id fails with ErrAlreadySettled.
type AuthorizationRequest struct {
	SettlementID string   `json:"settlement_id"`
	Account      string   `json:"account"`
	PairID       string   `json:"pair_id"`
	Asset        string   `json:"asset"`
	Amount       math.Int `json:"amount"`
}

// SwapReceipt reports the exact amounts a committed swap computed, for the
// caller to cross-check against the custody-layer transfers.
type SwapReceipt struct {
	PairID        string   `json:"pair_id"`
	Account       string   `json:"account"`
	AssetIn       string   `json:"asset_in"`
	AssetOut      string   `json:"asset_out"`
	AmountIn      math.Int `json:"amount_in"`
	FeeAmount     math.Int `json:"fee_amount"`
	AmountOut     math.Int `json:"amount_out"`
	ReserveA      math.Int `json:"reserve_a"`
	ReserveB      math.Int `json:"reserve_b"`
	EscrowAddress string   `json:"escrow_address"`
}

// DepositReceipt reports the shares minted by a bootstrap or deposit.
type DepositReceipt struct {
	PairID          string   `json:"pair_id"`
	Account         string   `json:"account"`
	AmountA         math.Int `json:"amount_a"`
	AmountB         math.Int `json:"amount_b"`
	MintedLiquidity math.Int `json:"minted_liquidity"`
	LiquiditySupply math.Int `json:"liquidity_supply"`
	EscrowAddress   string   `json:"escrow_address"`
}

// WithdrawReceipt reports the payouts credited by a withdrawal. The shares
// themselves are burned by the custody layer, not by this engine.
type WithdrawReceipt struct {
	PairID          string   `json:"pair_id"`
	Account         string   `json:"account"`
	LiquidityBurned math.Int `json:"liquidity_burned"`
	AmountA         math.Int `json:"amount_a"`
	AmountB         math.Int `json:"amount_b"`
	EscrowAddress   string   `json:"escrow_address"`
}

// SettlementReceipt reports an approved release of custodied funds.
type SettlementReceipt struct {
	SettlementID  string   `json:"settlement_id"`
	Account       string   `json:"account"`
	PairID        string   `json:"pair_id"`
	Asset         string   `json:"asset"`
	Amount        math.Int `json:"amount"`
	EscrowAddress string   `json:"escrow_address"`
}
