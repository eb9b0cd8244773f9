package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
	applogger "FinCast/pkg/logger"
)

// SQLiteLedger keeps positions and the trade history. Amounts are stored as
// decimal strings so they round-trip exactly.
type SQLiteLedger struct {
	db *sql.DB
	mu sync.Mutex
	l  *applogger.Logger
}

// NewSQLiteLedger opens the ledger at path in WAL mode and migrates its schema.
func NewSQLiteLedger(path string, l *applogger.Logger) (*SQLiteLedger, error) {
	if l == nil {
		l = applogger.Nop()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	s := &SQLiteLedger{db: db, l: l}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	l.Info("ledger opened", applogger.String("path", path))
	return s, nil
}

func (s *SQLiteLedger) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS positions (
			symbol     TEXT PRIMARY KEY,
			quantity   TEXT NOT NULL,
			avg_price  TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS transactions (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol    TEXT NOT NULL,
			side      TEXT NOT NULL,
			quantity  TEXT NOT NULL,
			price     TEXT NOT NULL,
			timestamp INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_ts ON transactions(timestamp)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Buy moves the average cost to (qty*avg + q*p) / (qty+q).
func (s *SQLiteLedger) Buy(ctx context.Context, symbol string, qty, price decimal.Decimal) (*models.Position, error) {
	return s.trade(ctx, models.SideBuy, symbol, qty, price, func(cur *models.Position) (*models.Position, error) {
		if cur == nil {
			return &models.Position{Symbol: symbol, Quantity: qty, AvgPrice: price}, nil
		}
		total := cur.Quantity.Add(qty)
		cost := cur.Quantity.Mul(cur.AvgPrice).Add(qty.Mul(price))
		return &models.Position{Symbol: symbol, Quantity: total, AvgPrice: cost.DivRound(total, 8)}, nil
	})
}

// Sell reduces the position at its current average cost. Selling all of it
// removes the position.
func (s *SQLiteLedger) Sell(ctx context.Context, symbol string, qty, price decimal.Decimal) (*models.Position, error) {
	return s.trade(ctx, models.SideSell, symbol, qty, price, func(cur *models.Position) (*models.Position, error) {
		if cur == nil || cur.Quantity.LessThan(qty) {
			return nil, fmt.Errorf("sell %s %s: %w", qty, symbol, models.ErrInsufficientPosition)
		}
		return &models.Position{Symbol: symbol, Quantity: cur.Quantity.Sub(qty), AvgPrice: cur.AvgPrice}, nil
	})
}

func (s *SQLiteLedger) trade(ctx context.Context, side models.Side, symbol string, qty, price decimal.Decimal,
	apply func(cur *models.Position) (*models.Position, error)) (*models.Position, error) {
	if !qty.IsPositive() || !price.IsPositive() {
		return nil, fmt.Errorf("quantity and price must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	cur, err := loadPosition(ctx, tx, symbol)
	if err != nil {
		return nil, err
	}
	next, err := apply(cur)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	next.UpdatedAt = now
	if next.Quantity.IsZero() {
		_, err = tx.ExecContext(ctx, `DELETE FROM positions WHERE symbol = ?`, symbol)
	} else {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO positions (symbol, quantity, avg_price, updated_at) VALUES (?, ?, ?, ?)
			ON CONFLICT(symbol) DO UPDATE SET quantity = excluded.quantity, avg_price = excluded.avg_price, updated_at = excluded.updated_at`,
			symbol, next.Quantity.String(), next.AvgPrice.String(), now.UnixMilli())
	}
	if err != nil {
		return nil, fmt.Errorf("write position: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO transactions (symbol, side, quantity, price, timestamp) VALUES (?, ?, ?, ?, ?)`,
		symbol, string(side), qty.String(), price.String(), now.UnixMilli()); err != nil {
		return nil, fmt.Errorf("record transaction: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	s.l.Info("trade recorded",
		applogger.String("symbol", symbol),
		applogger.String("side", string(side)),
		applogger.String("quantity", qty.String()),
		applogger.String("price", price.String()))
	return next, nil
}

func loadPosition(ctx context.Context, tx *sql.Tx, symbol string) (*models.Position, error) {
	var qty, avg string
	var updated int64
	err := tx.QueryRowContext(ctx,
		`SELECT quantity, avg_price, updated_at FROM positions WHERE symbol = ?`, symbol).Scan(&qty, &avg, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load position: %w", err)
	}
	return toPosition(symbol, qty, avg, updated)
}

func toPosition(symbol, qty, avg string, updated int64) (*models.Position, error) {
	q, err := decimal.NewFromString(qty)
	if err != nil {
		return nil, fmt.Errorf("position %s quantity: %w", symbol, err)
	}
	a, err := decimal.NewFromString(avg)
	if err != nil {
		return nil, fmt.Errorf("position %s avg_price: %w", symbol, err)
	}
	return &models.Position{Symbol: symbol, Quantity: q, AvgPrice: a, UpdatedAt: time.UnixMilli(updated).UTC()}, nil
}

func (s *SQLiteLedger) Positions(ctx context.Context) ([]models.Position, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT symbol, quantity, avg_price, updated_at FROM positions ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("query positions: %w", err)
	}
	defer rows.Close()

	out := make([]models.Position, 0)
	for rows.Next() {
		var symbol, qty, avg string
		var updated int64
		if err := rows.Scan(&symbol, &qty, &avg, &updated); err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		p, err := toPosition(symbol, qty, avg, updated)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// Transactions returns the newest trades first.
func (s *SQLiteLedger) Transactions(ctx context.Context, limit int) ([]models.Transaction, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, symbol, side, quantity, price, timestamp
		FROM transactions ORDER BY timestamp DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	out := make([]models.Transaction, 0)
	for rows.Next() {
		var t models.Transaction
		var side, qty, price string
		var ts int64
		if err := rows.Scan(&t.ID, &t.Symbol, &side, &qty, &price, &ts); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		t.Side = models.Side(side)
		if t.Quantity, err = decimal.NewFromString(qty); err != nil {
			return nil, fmt.Errorf("transaction %d quantity: %w", t.ID, err)
		}
		if t.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("transaction %d price: %w", t.ID, err)
		}
		t.Timestamp = time.UnixMilli(ts).UTC()
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLiteLedger) Close() error {
	return s.db.Close()
}

var _ domrepo.Ledger = (*SQLiteLedger)(nil)
