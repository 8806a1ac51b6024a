package recorder

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"DataHub/internal/model"
)

// SQLiteRecorder persists the fetch journal to a SQLite database.
type SQLiteRecorder struct {
	db     *sql.DB
	mu     sync.Mutex
	logger *zap.Logger
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string, logger *zap.Logger) (*SQLiteRecorder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL lets the CLI read the journal while the daemon writes it.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db, logger: logger}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	logger.Info("sqlite recorder opened", zap.String("path", dbPath))
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS fetch_events (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			request_id   TEXT    NOT NULL,
			timestamp    INTEGER NOT NULL,
			symbol       TEXT    NOT NULL,
			start_date   TEXT    NOT NULL,
			end_date     TEXT    NOT NULL,
			outcome      TEXT    NOT NULL,
			source       TEXT    NOT NULL,
			provider_err TEXT,
			failure      TEXT,
			rows         INTEGER NOT NULL,
			duration_ms  INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_fetch_symbol_ts ON fetch_events(symbol, timestamp)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}

	// Journals created before failed calls were recorded lack the failure column.
	if _, err := r.db.Exec(`ALTER TABLE fetch_events ADD COLUMN failure TEXT`); err != nil &&
		!strings.Contains(err.Error(), "duplicate column") {
		return fmt.Errorf("add failure column: %w", err)
	}
	return nil
}

func (r *SQLiteRecorder) RecordFetch(evt *FetchEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ts := evt.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := r.db.Exec(`INSERT INTO fetch_events
		(request_id, timestamp, symbol, start_date, end_date, outcome, source, provider_err, failure, rows, duration_ms)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		evt.RequestID, ts.UnixMilli(), evt.Symbol,
		evt.Start.Format(model.DateLayout), evt.End.Format(model.DateLayout),
		string(evt.Outcome), evt.Source, evt.ProviderErr, evt.Err,
		evt.Rows, evt.Duration.Milliseconds(),
	)
	return err
}

// Recent returns up to limit events, newest first. An empty symbol matches all symbols.
func (r *SQLiteRecorder) Recent(symbol string, limit int) ([]FetchEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.Query(`SELECT request_id, timestamp, symbol, start_date, end_date,
			outcome, source, COALESCE(provider_err, ''), COALESCE(failure, ''), rows, duration_ms
		FROM fetch_events
		WHERE ? = '' OR symbol = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?`, symbol, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("query fetch events: %w", err)
	}
	defer rows.Close()

	var out []FetchEvent
	for rows.Next() {
		var (
			evt        FetchEvent
			ts, ms     int64
			start, end string
			outcome    string
		)
		if err := rows.Scan(&evt.RequestID, &ts, &evt.Symbol, &start, &end,
			&outcome, &evt.Source, &evt.ProviderErr, &evt.Err, &evt.Rows, &ms); err != nil {
			return nil, fmt.Errorf("scan fetch event: %w", err)
		}
		evt.Timestamp = time.UnixMilli(ts)
		evt.Start, _ = time.Parse(model.DateLayout, start)
		evt.End, _ = time.Parse(model.DateLayout, end)
		evt.Outcome = Outcome(outcome)
		evt.Duration = time.Duration(ms) * time.Millisecond
		out = append(out, evt)
	}
	return out, rows.Err()
}

func (r *SQLiteRecorder) Close() error {
	r.logger.Info("closing sqlite recorder")
	return r.db.Close()
}
