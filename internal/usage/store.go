// Package usage keeps an append-only ledger of LLM token consumption,
// one row per exchange, split by whether a person or the monitor
// triggered it.
package usage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Roles.
const (
	RoleInteractive = "interactive"
	RoleAutonomous  = "autonomous"
)

// tsLayout is fixed-width so stored timestamps sort as text.
const tsLayout = "2006-01-02T15:04:05.000Z07:00"

// Record is one exchange with the backend.
type Record struct {
	ID           string
	Timestamp    time.Time
	RequestID    string
	Model        string
	InputTokens  int
	OutputTokens int
	Role         string
	StopReason   string
	Elapsed      time.Duration
}

// Summary holds aggregated totals.
type Summary struct {
	TotalRecords      int
	TotalInputTokens  int64
	TotalOutputTokens int64
}

// Store is the SQLite-backed ledger. It is safe for concurrent use.
type Store struct {
	db *sql.DB
}

// NewStore opens (creating if needed) the ledger at dbPath.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open usage database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate usage schema: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS usage_records (
		id            TEXT PRIMARY KEY,
		timestamp     TEXT NOT NULL,
		request_id    TEXT NOT NULL,
		model         TEXT NOT NULL,
		input_tokens  INTEGER NOT NULL,
		output_tokens INTEGER NOT NULL,
		role          TEXT NOT NULL,
		stop_reason   TEXT,
		elapsed_ms    INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_usage_timestamp ON usage_records(timestamp);
	CREATE INDEX IF NOT EXISTS idx_usage_role ON usage_records(role);
	`)
	return err
}

// Record appends rec. An empty ID gets a UUIDv7 and a zero Timestamp
// the current time.
func (s *Store) Record(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("generate usage record ID: %w", err)
		}
		rec.ID = id.String()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO usage_records
			(id, timestamp, request_id, model, input_tokens, output_tokens, role, stop_reason, elapsed_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.Timestamp.UTC().Format(tsLayout),
		rec.RequestID,
		rec.Model,
		rec.InputTokens,
		rec.OutputTokens,
		rec.Role,
		rec.StopReason,
		rec.Elapsed.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("insert usage record: %w", err)
	}
	return nil
}

// Summary returns totals for records within [start, end).
func (s *Store) Summary(ctx context.Context, start, end time.Time) (*Summary, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(input_tokens), 0), COALESCE(SUM(output_tokens), 0)
		 FROM usage_records
		 WHERE timestamp >= ? AND timestamp < ?`,
		start.UTC().Format(tsLayout),
		end.UTC().Format(tsLayout),
	)
	var sum Summary
	if err := row.Scan(&sum.TotalRecords, &sum.TotalInputTokens, &sum.TotalOutputTokens); err != nil {
		return nil, fmt.Errorf("query usage summary: %w", err)
	}
	return &sum, nil
}

// SummaryByRole returns per-role totals for records within [start, end).
func (s *Store) SummaryByRole(ctx context.Context, start, end time.Time) (map[string]*Summary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT role, COUNT(*), COALESCE(SUM(input_tokens), 0), COALESCE(SUM(output_tokens), 0)
		 FROM usage_records
		 WHERE timestamp >= ? AND timestamp < ?
		 GROUP BY role`,
		start.UTC().Format(tsLayout),
		end.UTC().Format(tsLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("query usage by role: %w", err)
	}
	defer rows.Close()

	out := make(map[string]*Summary)
	for rows.Next() {
		var role string
		var sum Summary
		if err := rows.Scan(&role, &sum.TotalRecords, &sum.TotalInputTokens, &sum.TotalOutputTokens); err != nil {
			return nil, fmt.Errorf("scan usage by role: %w", err)
		}
		out[role] = &sum
	}
	return out, rows.Err()
}
