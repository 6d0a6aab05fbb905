package execution

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"papertrade-backend/internal/model"
)

const journalSchema = `
CREATE TABLE IF NOT EXISTS trades (
	order_id  TEXT NOT NULL,
	user_id   TEXT NOT NULL,
	symbol    TEXT NOT NULL,
	action    TEXT NOT NULL,
	qty       INTEGER NOT NULL,
	lot_size  INTEGER NOT NULL DEFAULT 0,
	price     REAL NOT NULL,
	filled_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trades_user ON trades(user_id, filled_at);
`

// Journal persists every fill to SQLite for the trade history endpoint.
type Journal struct {
	db *sql.DB
}

// NewJournal prepares the trades table on an existing database handle.
func NewJournal(db *sql.DB) (*Journal, error) {
	if _, err := db.Exec(journalSchema); err != nil {
		return nil, fmt.Errorf("create trades table: %w", err)
	}
	return &Journal{db: db}, nil
}

// RecordFill appends one fill.
func (j *Journal) RecordFill(f model.Fill) error {
	_, err := j.db.Exec(
		`INSERT INTO trades (order_id, user_id, symbol, action, qty, lot_size, price, filled_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		f.OrderID, f.UserID, f.Symbol, string(f.Action), f.Qty, f.LotSize, f.Price, f.FilledAt.Unix(),
	)
	return err
}

// Trades returns the user's most recent fills, newest first.
func (j *Journal) Trades(ctx context.Context, userID string, limit int) ([]model.Fill, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT order_id, symbol, action, qty, lot_size, price, filled_at
		 FROM trades WHERE user_id = ? ORDER BY filled_at DESC, rowid DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var fills []model.Fill
	for rows.Next() {
		var f model.Fill
		var action string
		var filledAt int64
		if err := rows.Scan(&f.OrderID, &f.Symbol, &action, &f.Qty, &f.LotSize, &f.Price, &filledAt); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		f.UserID = userID
		f.Action = model.Action(action)
		f.FilledAt = time.Unix(filledAt, 0)
		fills = append(fills, f)
	}
	return fills, rows.Err()
}
