package database

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cosmossdk.io/math"
	_ "github.com/lib/pq"

	"github.com/paw-chain/poolcore/internal/types"
)

//go:embed schema.sql
var schemaFile embed.FS

// DB wraps the SQL database connection and serves as the durable journal for
// pool snapshots, pending balances, receipts and consumed settlement ids.
type DB struct {
	*sql.DB
}

// Config holds database connection configuration.
type Config struct {
	URL            string
	MaxConnections int
	MaxIdle        int
	ConnMaxLife    time.Duration
}

// New creates a new database connection.
func New(cfg Config) (*DB, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdle)
	db.SetConnMaxLifetime(cfg.ConnMaxLife)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{db}, nil
}

// InitSchema initializes the database schema.
func (db *DB) InitSchema() error {
	schema, err := schemaFile.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read schema file: %w", err)
	}
	if _, err := db.Exec(string(schema)); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

// parseInt converts a NUMERIC column value back into a math.Int.
func parseInt(s string) (math.Int, error) {
	v, ok := math.NewIntFromString(s)
	if !ok {
		return math.Int{}, fmt.Errorf("invalid integer column value %q", s)
	}
	return v, nil
}

// SavePool upserts the snapshot of one pool.
func (db *DB) SavePool(ctx context.Context, pool types.Pool) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO pools (pair_id, reserve_a, reserve_b, liquidity_supply, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (pair_id) DO UPDATE SET
			reserve_a = EXCLUDED.reserve_a,
			reserve_b = EXCLUDED.reserve_b,
			liquidity_supply = EXCLUDED.liquidity_supply,
			updated_at = NOW()
	`, pool.PairID, pool.ReserveA.String(), pool.ReserveB.String(), pool.LiquiditySupply.String())
	return err
}

// LoadPools returns every persisted pool snapshot.
func (db *DB) LoadPools(ctx context.Context) ([]types.Pool, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT pair_id, reserve_a, reserve_b, liquidity_supply FROM pools`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pools []types.Pool
	for rows.Next() {
		var pool types.Pool
		var reserveA, reserveB, supply string
		if err := rows.Scan(&pool.PairID, &reserveA, &reserveB, &supply); err != nil {
			return nil, err
		}
		if pool.ReserveA, err = parseInt(reserveA); err != nil {
			return nil, err
		}
		if pool.ReserveB, err = parseInt(reserveB); err != nil {
			return nil, err
		}
		if pool.LiquiditySupply, err = parseInt(supply); err != nil {
			return nil, err
		}
		pools = append(pools, pool)
	}
	return pools, rows.Err()
}

// SyncPending replaces the persisted pending balances of one account with the
// engine's current view, in a single transaction.
func (db *DB) SyncPending(ctx context.Context, account string, balances []types.PendingBalance) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM pending_balances WHERE account = $1`, account); err != nil {
		return err
	}
	for _, b := range balances {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO pending_balances (account, pair_id, asset, amount, updated_at)
			VALUES ($1, $2, $3, $4, NOW())
		`, b.Account, b.PairID, b.Asset, b.Amount.String()); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// LoadPendingBalances returns every persisted pending-ledger entry.
func (db *DB) LoadPendingBalances(ctx context.Context) ([]types.PendingBalance, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT account, pair_id, asset, amount FROM pending_balances`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var balances []types.PendingBalance
	for rows.Next() {
		var b types.PendingBalance
		var amount string
		if err := rows.Scan(&b.Account, &b.PairID, &b.Asset, &amount); err != nil {
			return nil, err
		}
		if b.Amount, err = parseInt(amount); err != nil {
			return nil, err
		}
		balances = append(balances, b)
	}
	return balances, rows.Err()
}

// InsertSettlement records a consumed settlement id with its receipt.
func (db *DB) InsertSettlement(ctx context.Context, key string, receipt types.SettlementReceipt) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO settlements (settle_key, settlement_id, account, pair_id, asset, amount, escrow_address)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (settle_key) DO NOTHING
	`, key, receipt.SettlementID, receipt.Account, receipt.PairID, receipt.Asset,
		receipt.Amount.String(), receipt.EscrowAddress)
	return err
}

// LoadSettlementKeys returns the keys of every consumed settlement.
func (db *DB) LoadSettlementKeys(ctx context.Context) ([]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT settle_key FROM settlements`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// ReceiptRecord is one journaled operation receipt.
type ReceiptRecord struct {
	ID        int64           `json:"id"`
	Kind      string          `json:"kind"`
	Account   string          `json:"account"`
	PairID    string          `json:"pair_id"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// InsertReceipt journals one committed operation.
func (db *DB) InsertReceipt(ctx context.Context, kind, account, pairID string, payload []byte) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO receipts (kind, account, pair_id, payload)
		VALUES ($1, $2, $3, $4)
	`, kind, account, pairID, payload)
	return err
}

// AccountReceipts returns the most recent receipts for an account.
func (db *DB) AccountReceipts(ctx context.Context, account string, limit int) ([]ReceiptRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, kind, account, pair_id, payload, created_at
		FROM receipts
		WHERE account = $1
		ORDER BY id DESC
		LIMIT $2
	`, account, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []ReceiptRecord
	for rows.Next() {
		var r ReceiptRecord
		if err := rows.Scan(&r.ID, &r.Kind, &r.Account, &r.PairID, &r.Payload, &r.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// LiquidityHolding returns the custody-recorded liquidity-share holding of an
// account on a pair. A missing row means a zero holding.
func (db *DB) LiquidityHolding(ctx context.Context, account, pairID string) (math.Int, error) {
	var amount string
	err := db.QueryRowContext(ctx, `
		SELECT amount FROM liquidity_holdings WHERE account = $1 AND pair_id = $2
	`, account, pairID).Scan(&amount)
	if errors.Is(err, sql.ErrNoRows) {
		return math.ZeroInt(), nil
	}
	if err != nil {
		return math.Int{}, err
	}
	return parseInt(amount)
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.DB.Close()
}
