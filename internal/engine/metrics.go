package engine

import (
	"sync"

	sdkerrors "cosmossdk.io/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/paw-chain/poolcore/internal/types"
)

// Metrics holds the engine's Prometheus metrics.
type Metrics struct {
	OperationsTotal *prometheus.CounterVec
	RejectionsTotal *prometheus.CounterVec
	SwapVolume      *prometheus.CounterVec
	FeesRetained    *prometheus.CounterVec
	PoolReserves    *prometheus.GaugeVec
	LiquiditySupply *prometheus.GaugeVec
	SettlementsOpen prometheus.Gauge
}

var (
	engineMetricsOnce sync.Once
	engineMetrics     *Metrics
)

// NewMetrics creates and registers the engine metrics (singleton, since
// promauto registration must run once per process).
func NewMetrics() *Metrics {
	engineMetricsOnce.Do(func() {
		engineMetrics = &Metrics{
			OperationsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "poolcore",
					Subsystem: "engine",
					Name:      "operations_total",
					Help:      "Committed and failed operations by type",
				},
				[]string{"op", "pair_id", "status"},
			),
			RejectionsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "poolcore",
					Subsystem: "engine",
					Name:      "rejections_total",
					Help:      "Validation rejections by reason",
				},
				[]string{"op", "reason"},
			),
			SwapVolume: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "poolcore",
					Subsystem: "engine",
					Name:      "swap_volume_total",
					Help:      "Swap input volume in base units",
				},
				[]string{"pair_id", "asset"},
			),
			FeesRetained: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "poolcore",
					Subsystem: "engine",
					Name:      "fees_retained_total",
					Help:      "Swap fees retained by pools in base units",
				},
				[]string{"pair_id", "asset"},
			),
			PoolReserves: promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Namespace: "poolcore",
					Subsystem: "engine",
					Name:      "pool_reserves",
					Help:      "Current pool reserves in base units",
				},
				[]string{"pair_id", "asset"},
			),
			LiquiditySupply: promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Namespace: "poolcore",
					Subsystem: "engine",
					Name:      "liquidity_supply",
					Help:      "Outstanding liquidity-share supply",
				},
				[]string{"pair_id"},
			),
			SettlementsOpen: promauto.NewGauge(
				prometheus.GaugeOpts{
					Namespace: "poolcore",
					Subsystem: "engine",
					Name:      "pending_entries",
					Help:      "Number of nonzero pending-ledger entries",
				},
			),
		}
	})
	return engineMetrics
}

// rejectionReason maps a sentinel error to a bounded label value.
func rejectionReason(err error) string {
	switch {
	case sdkerrors.IsOf(err, types.ErrInvalidPair):
		return "invalid_pair"
	case sdkerrors.IsOf(err, types.ErrInvalidAsset):
		return "invalid_asset"
	case sdkerrors.IsOf(err, types.ErrInvalidAmount):
		return "invalid_amount"
	case sdkerrors.IsOf(err, types.ErrInsufficientLiquidity):
		return "insufficient_liquidity"
	case sdkerrors.IsOf(err, types.ErrSlippageExceeded):
		return "slippage_exceeded"
	case sdkerrors.IsOf(err, types.ErrAlreadyBootstrapped):
		return "already_bootstrapped"
	case sdkerrors.IsOf(err, types.ErrInsufficientShares):
		return "insufficient_shares"
	case sdkerrors.IsOf(err, types.ErrInsufficientPendingBalance):
		return "insufficient_pending_balance"
	case sdkerrors.IsOf(err, types.ErrNoPendingEntitlement):
		return "no_pending_entitlement"
	case sdkerrors.IsOf(err, types.ErrAlreadySettled):
		return "already_settled"
	case sdkerrors.IsOf(err, types.ErrArithmeticOverflow):
		return "arithmetic_overflow"
	case sdkerrors.IsOf(err, types.ErrCustodyRejected):
		return "custody_rejected"
	default:
		return "internal"
	}
}
