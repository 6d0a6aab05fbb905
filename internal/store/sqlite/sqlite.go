// Package sqlite is the durable per-user store: holdings, option positions,
// cash balances, and the last-trading-price memo all live in one WAL-mode
// database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"papertrade-backend/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Config configures the SQLite store.
type Config struct {
	DBPath string // path to SQLite database file, e.g. "data/papertrade.db"
}

// Store wraps the SQLite database.
type Store struct {
	db *sql.DB
}

// DB returns the underlying sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// New opens the store, enables WAL mode, and creates the schema.
func New(cfg Config) (*Store, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single writer keeps WAL contention away
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", cfg.DBPath)
	return &Store{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS holdings (
			user_id    TEXT    NOT NULL,
			symbol     TEXT    NOT NULL,
			qty        INTEGER NOT NULL,
			avg_price  REAL    NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (user_id, symbol)
		);

		CREATE TABLE IF NOT EXISTS option_positions (
			user_id     TEXT    NOT NULL,
			symbol      TEXT    NOT NULL,
			lots        INTEGER NOT NULL,
			lot_size    INTEGER NOT NULL,
			entry_price REAL    NOT NULL,
			action      TEXT    NOT NULL,
			updated_at  INTEGER NOT NULL,
			PRIMARY KEY (user_id, symbol, action)
		);

		CREATE TABLE IF NOT EXISTS balances (
			user_id    TEXT PRIMARY KEY,
			funds      REAL NOT NULL,
			updated_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS last_prices (
			user_id    TEXT NOT NULL,
			symbol     TEXT NOT NULL,
			price      REAL NOT NULL,
			ts         INTEGER NOT NULL,
			PRIMARY KEY (user_id, symbol)
		);
	`)
	return err
}

// ---- holdings ----

// UpsertHolding writes a holding row; a zero quantity deletes it.
func (s *Store) UpsertHolding(ctx context.Context, h model.Holding) error {
	if h.Qty == 0 {
		_, err := s.db.ExecContext(ctx,
			`DELETE FROM holdings WHERE user_id = ? AND symbol = ?`, h.UserID, h.Symbol)
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO holdings (user_id, symbol, qty, avg_price, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		h.UserID, h.Symbol, h.Qty, h.AvgPrice, time.Now().Unix())
	return err
}

// Holdings returns all holdings for a user.
func (s *Store) Holdings(ctx context.Context, userID string) ([]model.Holding, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT symbol, qty, avg_price FROM holdings WHERE user_id = ? ORDER BY symbol`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var holdings []model.Holding
	for rows.Next() {
		h := model.Holding{UserID: userID}
		if err := rows.Scan(&h.Symbol, &h.Qty, &h.AvgPrice); err != nil {
			return nil, err
		}
		holdings = append(holdings, h)
	}
	return holdings, rows.Err()
}

// ---- option positions ----

// UpsertOptionPosition writes an option position row; zero lots deletes it.
func (s *Store) UpsertOptionPosition(ctx context.Context, p model.OptionPosition) error {
	if p.Lots == 0 {
		_, err := s.db.ExecContext(ctx,
			`DELETE FROM option_positions WHERE user_id = ? AND symbol = ? AND action = ?`,
			p.UserID, p.Symbol, string(p.Action))
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO option_positions (user_id, symbol, lots, lot_size, entry_price, action, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.UserID, p.Symbol, p.Lots, p.LotSize, p.EntryPrice, string(p.Action), time.Now().Unix())
	return err
}

// OptionPositions returns all open option positions for a user.
func (s *Store) OptionPositions(ctx context.Context, userID string) ([]model.OptionPosition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, lots, lot_size, entry_price, action
		FROM option_positions WHERE user_id = ? ORDER BY symbol`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []model.OptionPosition
	for rows.Next() {
		p := model.OptionPosition{UserID: userID}
		var action string
		if err := rows.Scan(&p.Symbol, &p.Lots, &p.LotSize, &p.EntryPrice, &action); err != nil {
			return nil, err
		}
		p.Action = model.Action(action)
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// ---- balances ----

// Balance returns the user's virtual funds, seeding the row with
// startingFunds on first access.
func (s *Store) Balance(ctx context.Context, userID string, startingFunds float64) (float64, error) {
	var funds float64
	err := s.db.QueryRowContext(ctx,
		`SELECT funds FROM balances WHERE user_id = ?`, userID).Scan(&funds)
	if err == sql.ErrNoRows {
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO balances (user_id, funds, updated_at) VALUES (?, ?, ?)`,
			userID, startingFunds, time.Now().Unix())
		return startingFunds, err
	}
	if err != nil {
		return 0, err
	}
	return funds, nil
}

// SetBalance overwrites the user's virtual funds.
func (s *Store) SetBalance(ctx context.Context, userID string, funds float64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO balances (user_id, funds, updated_at) VALUES (?, ?, ?)`,
		userID, funds, time.Now().Unix())
	return err
}

// ---- last trading prices (price-cache durable store) ----

// SetLastPrice upserts the last observed trading price for (user, symbol).
func (s *Store) SetLastPrice(ctx context.Context, userID, symbol string, price float64, ts time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO last_prices (user_id, symbol, price, ts) VALUES (?, ?, ?, ?)`,
		userID, symbol, price, ts.Unix())
	return err
}

// LastPrice reads the cached price. ok is false when no row exists.
func (s *Store) LastPrice(ctx context.Context, userID, symbol string) (price float64, ok bool, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT price FROM last_prices WHERE user_id = ? AND symbol = ?`,
		userID, symbol).Scan(&price)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return price, true, nil
}

// LastPrices returns every cached price for a user (symbol -> price).
func (s *Store) LastPrices(ctx context.Context, userID string) (map[string]float64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT symbol, price FROM last_prices WHERE user_id = ?`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	prices := make(map[string]float64)
	for rows.Next() {
		var symbol string
		var price float64
		if err := rows.Scan(&symbol, &price); err != nil {
			return nil, err
		}
		prices[symbol] = price
	}
	return prices, rows.Err()
}

// ClearLastPrices removes all cached prices for a user.
func (s *Store) ClearLastPrices(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM last_prices WHERE user_id = ?`, userID)
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
