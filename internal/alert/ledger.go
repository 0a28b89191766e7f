package alert

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Record is an alert as stored in the ledger.
type Record struct {
	ID             string
	Metric         string
	Value          float64
	Integral       bool
	ZScore         float64
	Message        string
	EventTimestamp string
	EventKind      string
	RaisedAt       time.Time
}

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "Alert history",
		SQL: `
CREATE TABLE IF NOT EXISTS alerts (
    id TEXT PRIMARY KEY,
    metric TEXT NOT NULL,
    value REAL NOT NULL,
    integral BOOLEAN NOT NULL DEFAULT 0,
    z_score REAL NOT NULL,
    message TEXT NOT NULL,
    event_timestamp TEXT,
    event_kind TEXT,
    raised_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_alerts_raised_at ON alerts(raised_at DESC);
CREATE INDEX IF NOT EXISTS idx_alerts_metric ON alerts(metric);
`,
	},
}

// Ledger keeps a sqlite history of raised alerts. Window contents are never
// stored; a restart still rebuilds statistics from the telemetry file.
type Ledger struct {
	db     *sql.DB
	dbPath string
}

// OpenLedger opens (creating if needed) the ledger at dbPath. ":memory:"
// gives a private in-memory ledger.
func OpenLedger(dbPath string) (*Ledger, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create ledger directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	if dbPath == ":memory:" {
		// Each connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if err := execWithRetry(db, pragma, 5, 10*time.Millisecond); err != nil {
			db.Close()
			return nil, fmt.Errorf("set %s: %w", pragma, err)
		}
	}

	l := &Ledger{db: db, dbPath: dbPath}
	if err := l.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return l, nil
}

// execWithRetry retries stmt with exponential backoff while sqlite reports
// the database as locked.
func execWithRetry(db *sql.DB, stmt string, maxRetries int, baseDelay time.Duration) error {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		_, err := db.Exec(stmt)
		if err == nil {
			return nil
		}
		if !strings.Contains(err.Error(), "database is locked") {
			return err
		}
		lastErr = err
		time.Sleep(baseDelay * time.Duration(1<<attempt))
	}
	return lastErr
}

func (l *Ledger) migrate(ctx context.Context) error {
	if _, err := l.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    description TEXT,
    applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
)`); err != nil {
		return fmt.Errorf("create schema_version: %w", err)
	}

	var current int
	if err := l.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		tx, err := l.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}
		if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Description, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_version (version, description) VALUES (?, ?)`, m.Version, m.Description); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}
	return nil
}

// SchemaVersion returns the latest applied migration.
func (l *Ledger) SchemaVersion() (int, error) {
	var v int
	err := l.db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&v)
	return v, err
}

// Path returns the database location.
func (l *Ledger) Path() string {
	return l.dbPath
}

// Record stores a and returns its generated id.
func (l *Ledger) Record(ctx context.Context, a Alert) (string, error) {
	id := uuid.NewString()
	raised := a.Timestamp
	if raised.IsZero() {
		raised = time.Now()
	}

	_, err := l.db.ExecContext(ctx, `INSERT INTO alerts
		(id, metric, value, integral, z_score, message, event_timestamp, event_kind, raised_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, a.Metric, a.Value, a.Integral, a.ZScore, a.Message(), a.EventTimestamp, a.EventKind, raised.UTC())
	if err != nil {
		return "", fmt.Errorf("insert alert: %w", err)
	}
	return id, nil
}

// Recent returns up to limit alerts, newest first. A non-positive limit
// returns all of them.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]Record, error) {
	query := `SELECT id, metric, value, integral, z_score, message,
		COALESCE(event_timestamp, ''), COALESCE(event_kind, ''), raised_at
		FROM alerts ORDER BY raised_at DESC, rowid DESC`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.Metric, &r.Value, &r.Integral, &r.ZScore, &r.Message,
			&r.EventTimestamp, &r.EventKind, &r.RaisedAt); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// CountByMetric returns how many alerts each metric has raised.
func (l *Ledger) CountByMetric(ctx context.Context) (map[string]int, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT metric, COUNT(*) FROM alerts GROUP BY metric`)
	if err != nil {
		return nil, fmt.Errorf("count alerts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var metric string
		var n int
		if err := rows.Scan(&metric, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[metric] = n
	}
	return counts, rows.Err()
}

// Close closes the database.
func (l *Ledger) Close() error {
	if l.db != nil {
		return l.db.Close()
	}
	return nil
}
