package engine

import (
	"sort"
	"sync"

	"cosmossdk.io/math"

	"github.com/paw-chain/poolcore/internal/types"
)

// ledgerKey identifies one pending balance.
type ledgerKey struct {
	account string
	pairID  string
	asset   string
}

// PendingLedger tracks amounts owed to accounts but not yet released from
// custody. Entries are created lazily, incremented by committed operations,
// decremented only by authorized settlements, and never go negative. The
// split between "entitlement recorded" and "funds moved" is what lets an
// accounting operation commit independently of the multi-step custody
// transfer: a crash between the two phases leaves the entitlement intact for
// retry, never duplicated and never lost.
type PendingLedger struct {
	mu       sync.RWMutex
	balances map[ledgerKey]math.Int
}

// NewPendingLedger returns an empty ledger.
func NewPendingLedger() *PendingLedger {
	return &PendingLedger{balances: make(map[ledgerKey]math.Int)}
}

// Balance returns the current pending amount for (account, pair, asset).
// Missing entries read as zero.
func (l *PendingLedger) Balance(account, pairID, asset string) math.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	bal, ok := l.balances[ledgerKey{account, pairID, asset}]
	if !ok {
		return math.ZeroInt()
	}
	return bal
}

// Credit adds amount to the entry, creating it if needed. The addition is
// overflow-checked; on failure the ledger is untouched.
func (l *PendingLedger) Credit(account, pairID, asset string, amount math.Int) error {
	if amount.IsNil() || !amount.IsPositive() {
		return types.ErrInvalidAmount.Wrap("credit amount must be positive")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := ledgerKey{account, pairID, asset}
	bal, ok := l.balances[key]
	if !ok {
		bal = math.ZeroInt()
	}
	newBal, err := SafeAdd(bal, amount)
	if err != nil {
		return types.ErrArithmeticOverflow.Wrapf("credit %s to pending %s/%s/%s: %v", amount, account, pairID, asset, err)
	}
	l.balances[key] = newBal
	return nil
}

// CreditTwo credits two assets of the same (account, pair) atomically:
// either both balances are updated or neither is.
func (l *PendingLedger) CreditTwo(account, pairID, assetA string, amountA math.Int, assetB string, amountB math.Int) error {
	if amountA.IsNil() || !amountA.IsPositive() || amountB.IsNil() || !amountB.IsPositive() {
		return types.ErrInvalidAmount.Wrap("credit amounts must be positive")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	keyA := ledgerKey{account, pairID, assetA}
	keyB := ledgerKey{account, pairID, assetB}

	balA, ok := l.balances[keyA]
	if !ok {
		balA = math.ZeroInt()
	}
	balB, ok := l.balances[keyB]
	if !ok {
		balB = math.ZeroInt()
	}

	newA, err := SafeAdd(balA, amountA)
	if err != nil {
		return types.ErrArithmeticOverflow.Wrapf("credit %s to pending %s/%s/%s: %v", amountA, account, pairID, assetA, err)
	}
	newB, err := SafeAdd(balB, amountB)
	if err != nil {
		return types.ErrArithmeticOverflow.Wrapf("credit %s to pending %s/%s/%s: %v", amountB, account, pairID, assetB, err)
	}

	l.balances[keyA] = newA
	l.balances[keyB] = newB
	return nil
}

// Debit subtracts amount from the entry. Fails without mutation if the
// entry is missing or smaller than amount; a fully drained entry is removed.
func (l *PendingLedger) Debit(account, pairID, asset string, amount math.Int) error {
	if amount.IsNil() || !amount.IsPositive() {
		return types.ErrInvalidAmount.Wrap("debit amount must be positive")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := ledgerKey{account, pairID, asset}
	bal, ok := l.balances[key]
	if !ok || bal.LT(amount) {
		have := math.ZeroInt()
		if ok {
			have = bal
		}
		return types.ErrInsufficientPendingBalance.Wrapf(
			"debit %s from pending %s/%s/%s: have %s", amount, account, pairID, asset, have)
	}

	newBal := bal.Sub(amount)
	if newBal.IsZero() {
		delete(l.balances, key)
	} else {
		l.balances[key] = newBal
	}
	return nil
}

// Len returns the number of nonzero entries.
func (l *PendingLedger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.balances)
}

// BalancesFor returns all nonzero entries for an account, sorted for stable
// output.
func (l *PendingLedger) BalancesFor(account string) []types.PendingBalance {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []types.PendingBalance
	for key, bal := range l.balances {
		if key.account != account {
			continue
		}
		out = append(out, types.PendingBalance{
			Account: key.account,
			PairID:  key.pairID,
			Asset:   key.asset,
			Amount:  bal,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PairID != out[j].PairID {
			return out[i].PairID < out[j].PairID
		}
		return out[i].Asset < out[j].Asset
	})
	return out
}

// Entries returns every nonzero entry in the ledger, sorted.
func (l *PendingLedger) Entries() []types.PendingBalance {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]types.PendingBalance, 0, len(l.balances))
	for key, bal := range l.balances {
		out = append(out, types.PendingBalance{
			Account: key.account,
			PairID:  key.pairID,
			Asset:   key.asset,
			Amount:  bal,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Account != b.Account {
			return a.Account < b.Account
		}
		if a.PairID != b.PairID {
			return a.PairID < b.PairID
		}
		return a.Asset < b.Asset
	})
	return out
}

// Restore loads persisted entries into an empty ledger at startup.
func (l *PendingLedger) Restore(entries []types.PendingBalance) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, e := range entries {
		if e.Amount.IsNil() || e.Amount.IsNegative() {
			return types.ErrInvalidAmount.Wrapf("restore pending %s/%s/%s: invalid amount", e.Account, e.PairID, e.Asset)
		}
		if e.Amount.IsZero() {
			continue
		}
		l.balances[ledgerKey{e.Account, e.PairID, e.Asset}] = e.Amount
	}
	return nil
}
