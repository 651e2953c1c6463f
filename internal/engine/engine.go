package engine

import (
	"context"
	"sort"
	"sync"

	"cosmossdk.io/log"
	"cosmossdk.io/math"

	"github.com/paw-chain/poolcore/internal/types"
)

// CustodyVerifier is the boundary to the custody layer. The engine only
// computes and checks amounts; whether a transfer instruction is genuinely
// backed by the pair's escrow program is the custody layer's call.
type CustodyVerifier interface {
	// LiquidityHolding reports the account's on-ledger balance of the
	// pair's liquidity-share asset.
	LiquidityHolding(ctx context.Context, account, pairID string) (math.Int, error)

	// VerifyRelease confirms that the proposed settlement transfer is part
	// of a single atomic group authorized by the pair's custody program.
	VerifyRelease(ctx context.Context, req types.AuthorizationRequest, cfg types.PairConfig) error
}

// poolEntry pairs a pool with the mutex that serializes its mutations.
type poolEntry struct {
	mu   sync.Mutex
	pool types.Pool
}

// Engine is the deterministic pool-accounting core. Operations against one
// pair are linearized by that pair's lock; operations against different
// pairs run in parallel. Validation always completes before the first
// mutation, so every operation is all-or-nothing.
type Engine struct {
	logger  log.Logger
	pairs   map[string]types.PairConfig
	custody CustodyVerifier
	metrics *Metrics

	ledger *PendingLedger

	mu    sync.RWMutex
	pools map[string]*poolEntry

	settleMu sync.Mutex
	settled  map[string]types.SettlementReceipt
}

// New builds an engine over an immutable pair registry. The registry must
// already be validated (see config.Load).
func New(logger log.Logger, pairs []types.PairConfig, custody CustodyVerifier, metrics *Metrics) *Engine {
	registry := make(map[string]types.PairConfig, len(pairs))
	for _, cfg := range pairs {
		registry[cfg.PairID] = cfg
	}
	return &Engine{
		logger:  logger.With("module", "engine"),
		pairs:   registry,
		custody: custody,
		metrics: metrics,
		ledger:  NewPendingLedger(),
		pools:   make(map[string]*poolEntry),
		settled: make(map[string]types.SettlementReceipt),
	}
}

// PairConfig returns the immutable config for a pair.
func (e *Engine) PairConfig(pairID string) (types.PairConfig, error) {
	cfg, ok := e.pairs[pairID]
	if !ok {
		return types.PairConfig{}, types.ErrInvalidPair.Wrapf("pair %s not configured", pairID)
	}
	return cfg, nil
}

// Pairs returns all configured pairs, sorted by id.
func (e *Engine) Pairs() []types.PairConfig {
	out := make([]types.PairConfig, 0, len(e.pairs))
	for _, cfg := range e.pairs {
		out = append(out, cfg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PairID < out[j].PairID })
	return out
}

// entry returns the pool entry for a configured pair, creating the zeroed
// pool on first reference.
func (e *Engine) entry(pairID string) (*poolEntry, types.PairConfig, error) {
	cfg, ok := e.pairs[pairID]
	if !ok {
		return nil, types.PairConfig{}, types.ErrInvalidPair.Wrapf("pair %s not configured", pairID)
	}

	e.mu.RLock()
	ent, ok := e.pools[pairID]
	e.mu.RUnlock()
	if ok {
		return ent, cfg, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if ent, ok = e.pools[pairID]; !ok {
		ent = &poolEntry{pool: *types.NewPool(pairID)}
		e.pools[pairID] = ent
	}
	return ent, cfg, nil
}

// PoolSnapshot returns a copy of the pool state, never mid-mutation.
func (e *Engine) PoolSnapshot(pairID string) (types.Pool, error) {
	ent, _, err := e.entry(pairID)
	if err != nil {
		return types.Pool{}, err
	}
	ent.mu.Lock()
	defer ent.mu.Unlock()
	return ent.pool, nil
}

// PoolSnapshots returns copies of all pool states, sorted by pair id.
func (e *Engine) PoolSnapshots() []types.Pool {
	out := make([]types.Pool, 0, len(e.pairs))
	for _, cfg := range e.Pairs() {
		pool, err := e.PoolSnapshot(cfg.PairID)
		if err != nil {
			continue
		}
		out = append(out, pool)
	}
	return out
}

// PendingBalances returns the account's pending entitlements across all
// pairs and assets.
func (e *Engine) PendingBalances(account string) []types.PendingBalance {
	return e.ledger.BalancesFor(account)
}

// PendingEntries returns every pending entitlement, for persistence.
func (e *Engine) PendingEntries() []types.PendingBalance {
	return e.ledger.Entries()
}

// SettlementIDs returns the consumed settlement ids, for persistence.
func (e *Engine) SettlementIDs() []string {
	e.settleMu.Lock()
	defer e.settleMu.Unlock()

	ids := make([]string, 0, len(e.settled))
	for id := range e.settled {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// RestorePool loads a persisted pool at startup. The pair must be
// configured and the pool must satisfy the bootstrapped-or-empty invariant.
func (e *Engine) RestorePool(pool types.Pool) error {
	if err := pool.Validate(); err != nil {
		return err
	}
	ent, _, err := e.entry(pool.PairID)
	if err != nil {
		return err
	}
	ent.mu.Lock()
	defer ent.mu.Unlock()
	ent.pool = pool
	e.observePool(pool)
	return nil
}

// RestorePending loads persisted pending balances at startup.
func (e *Engine) RestorePending(entries []types.PendingBalance) error {
	if err := e.ledger.Restore(entries); err != nil {
		return err
	}
	e.observeLedger()
	return nil
}

// RestoreSettlements loads consumed settlement ids at startup so replays
// keep failing across restarts.
func (e *Engine) RestoreSettlements(keys []string) {
	e.settleMu.Lock()
	defer e.settleMu.Unlock()
	for _, k := range keys {
		if _, ok := e.settled[k]; !ok {
			e.settled[k] = types.SettlementReceipt{SettlementID: k}
		}
	}
}

// observePool publishes pool gauges; callers hold the pair lock.
func (e *Engine) observePool(pool types.Pool) {
	if e.metrics == nil {
		return
	}
	cfg := e.pairs[pool.PairID]
	e.metrics.PoolReserves.WithLabelValues(pool.PairID, cfg.AssetA).Set(intGauge(pool.ReserveA))
	e.metrics.PoolReserves.WithLabelValues(pool.PairID, cfg.AssetB).Set(intGauge(pool.ReserveB))
	e.metrics.LiquiditySupply.WithLabelValues(pool.PairID).Set(intGauge(pool.LiquiditySupply))
}

// observeLedger publishes the pending-entry gauge after a ledger mutation.
func (e *Engine) observeLedger() {
	if e.metrics == nil {
		return
	}
	e.metrics.SettlementsOpen.Set(float64(e.ledger.Len()))
}

func (e *Engine) countOp(op, pairID, status string) {
	if e.metrics == nil {
		return
	}
	e.metrics.OperationsTotal.WithLabelValues(op, pairID, status).Inc()
}

func (e *Engine) countRejection(op string, err error) {
	if e.metrics == nil {
		return
	}
	e.metrics.RejectionsTotal.WithLabelValues(op, rejectionReason(err)).Inc()
}

// intGauge converts an Int for gauge export; precision loss here is
// display-only and never feeds back into accounting.
func intGauge(v math.Int) float64 {
	f, _ := math.LegacyNewDecFromInt(v).Float64()
	return f
}
