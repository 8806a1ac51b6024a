package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"DataHub/internal/model"
)

// PostgresStore keeps every symbol's series in a single daily_bars table.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresStore connects to dsn and creates the daily_bars table if needed.
func NewPostgresStore(ctx context.Context, dsn string, logger *zap.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := &PostgresStore{pool: pool, logger: logger}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS daily_bars (
			symbol TEXT             NOT NULL,
			date   DATE             NOT NULL,
			open   DOUBLE PRECISION NOT NULL,
			high   DOUBLE PRECISION NOT NULL,
			low    DOUBLE PRECISION NOT NULL,
			close  DOUBLE PRECISION NOT NULL,
			volume BIGINT           NOT NULL,
			PRIMARY KEY (symbol, date)
		)`,
		// One row per saved symbol, so an empty series still exists.
		`CREATE TABLE IF NOT EXISTS daily_bar_symbols (
			symbol   TEXT        PRIMARY KEY,
			saved_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`INSERT INTO daily_bar_symbols (symbol)
			SELECT DISTINCT symbol FROM daily_bars
			ON CONFLICT (symbol) DO NOTHING`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStore) Name() string { return "postgres" }

func (s *PostgresStore) Close() { s.pool.Close() }

func (s *PostgresStore) Exists(ctx context.Context, symbol string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM daily_bar_symbols WHERE symbol = $1)", symbol,
	).Scan(&exists)
	if err != nil {
		return false, &ReadError{Symbol: symbol, Location: "daily_bars", Err: err}
	}
	return exists, nil
}

func (s *PostgresStore) Load(ctx context.Context, symbol string) (model.Series, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT date, open, high, low, close, volume FROM daily_bars WHERE symbol = $1 ORDER BY date",
		symbol)
	if err != nil {
		return nil, &ReadError{Symbol: symbol, Location: "daily_bars", Err: err}
	}
	bars, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Bar, error) {
		var (
			b model.Bar
			d time.Time
		)
		err := row.Scan(&d, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume)
		b.Date = model.Day(d)
		return b, err
	})
	if err != nil {
		return nil, &ReadError{Symbol: symbol, Location: "daily_bars", Err: err}
	}
	if len(bars) == 0 {
		exists, err := s.Exists(ctx, symbol)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, &ReadError{Symbol: symbol, Location: "daily_bars", Err: ErrNotFound}
		}
		return model.Series{}, nil
	}
	return model.Series(bars), nil
}

// Save replaces all rows of symbol inside one transaction.
func (s *PostgresStore) Save(ctx context.Context, symbol string, series model.Series) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return &WriteError{Symbol: symbol, Location: "daily_bars", Err: err}
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM daily_bars WHERE symbol = $1", symbol); err != nil {
		return &WriteError{Symbol: symbol, Location: "daily_bars", Err: err}
	}

	n, err := tx.CopyFrom(ctx,
		pgx.Identifier{"daily_bars"},
		barColumns,
		pgx.CopyFromRows(barRows(symbol, series)),
	)
	if err != nil {
		return &WriteError{Symbol: symbol, Location: "daily_bars", Err: err}
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO daily_bar_symbols (symbol) VALUES ($1)
		ON CONFLICT (symbol) DO UPDATE SET saved_at = now()`, symbol); err != nil {
		return &WriteError{Symbol: symbol, Location: "daily_bar_symbols", Err: err}
	}
	if err := tx.Commit(ctx); err != nil {
		return &WriteError{Symbol: symbol, Location: "daily_bars", Err: err}
	}
	s.logger.Debug("series replaced", zap.String("symbol", symbol), zap.Int64("rows", n))
	return nil
}

var barColumns = []string{"symbol", "date", "open", "high", "low", "close", "volume"}

// barRows lays out series for CopyFrom in barColumns order.
func barRows(symbol string, series model.Series) [][]any {
	rows := make([][]any, len(series))
	for i, b := range series {
		rows[i] = []any{symbol, model.Day(b.Date), b.Open, b.High, b.Low, b.Close, b.Volume}
	}
	return rows
}
