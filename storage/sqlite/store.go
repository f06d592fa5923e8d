// Package sqlite is the durable storage backend. The database file is the
// one the dashboard API reads.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/PipeOpsHQ/airos/storage"
)

//go:embed schema.sql
var schemaSQL string

const (
	defaultBusyTimeout = 5 * time.Second
	defaultLimit       = 100
)

const traceColumns = `id, run_id, node_id, input_state, output_state, status, recovery_attempts,
       saved_cost, token_usage, estimated_cost, diagnosis, duration_ms, timestamp`

type Store struct {
	db          *sql.DB
	busyTimeout time.Duration
	enableWAL   bool
	maxOpenConn int
}

type Option func(*Store)

func WithBusyTimeout(timeout time.Duration) Option {
	return func(s *Store) {
		if timeout >= 0 {
			s.busyTimeout = timeout
		}
	}
}

func WithWAL(enabled bool) Option {
	return func(s *Store) {
		s.enableWAL = enabled
	}
}

func WithMaxOpenConns(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxOpenConn = n
		}
	}
}

func New(path string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	s := &Store{
		busyTimeout: defaultBusyTimeout,
		enableWAL:   true,
		maxOpenConn: 1,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create sqlite directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(s.maxOpenConn)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s.db = db
	if err := s.initialize(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initialize(ctx context.Context) error {
	if s.busyTimeout > 0 {
		ms := int(s.busyTimeout / time.Millisecond)
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout=%d;", ms)); err != nil {
			return fmt.Errorf("failed to set busy_timeout: %w", err)
		}
	}
	if s.enableWAL {
		if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
			return fmt.Errorf("failed to enable wal: %w", err)
		}
	}
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

func (s *Store) LogTrace(ctx context.Context, trace storage.Trace) (storage.Trace, error) {
	prepared, err := storage.Prepare(trace, time.Now().UTC())
	if err != nil {
		return storage.Trace{}, err
	}

	const q = `
INSERT INTO traces (
  run_id, node_id, input_state, output_state, status, recovery_attempts,
  saved_cost, token_usage, estimated_cost, diagnosis, duration_ms, timestamp
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`
	res, err := s.db.ExecContext(
		ctx,
		q,
		prepared.RunID,
		prepared.NodeID,
		string(prepared.InputState),
		string(prepared.OutputState),
		string(prepared.Status),
		prepared.RecoveryAttempts,
		prepared.SavedCost,
		prepared.TokenUsage,
		prepared.EstimatedCost,
		nullIfEmpty(prepared.Diagnosis),
		prepared.DurationMs,
		prepared.Timestamp.Format(time.RFC3339Nano),
	)
	if err != nil {
		return storage.Trace{}, fmt.Errorf("failed to save trace: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return storage.Trace{}, fmt.Errorf("failed to read trace id: %w", err)
	}
	prepared.ID = id
	return prepared, nil
}

func (s *Store) RunHistory(ctx context.Context, runID string) ([]storage.Trace, error) {
	if strings.TrimSpace(runID) == "" {
		return nil, fmt.Errorf("run_id is required")
	}
	q := "SELECT " + traceColumns + " FROM traces WHERE run_id = ? ORDER BY id ASC;"
	rows, err := s.db.QueryContext(ctx, q, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load run history: %w", err)
	}
	return scanTraces(rows)
}

func (s *Store) RunCost(ctx context.Context, runID string) (float64, error) {
	if strings.TrimSpace(runID) == "" {
		return 0, fmt.Errorf("run_id is required")
	}
	var total sql.NullFloat64
	err := s.db.QueryRowContext(ctx, "SELECT SUM(estimated_cost) FROM traces WHERE run_id = ?;", runID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum run cost: %w", err)
	}
	return total.Float64, nil
}

func (s *Store) ListTraces(ctx context.Context, query storage.ListQuery) ([]storage.Trace, error) {
	query = query.Normalize(defaultLimit)

	var (
		where []string
		args  []any
	)
	if query.RunID != "" {
		where = append(where, "run_id = ?")
		args = append(args, query.RunID)
	}
	if query.NodeID != "" {
		where = append(where, "node_id = ?")
		args = append(args, query.NodeID)
	}
	if query.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(query.Status))
	}

	sqlText := "SELECT " + traceColumns + " FROM traces"
	if len(where) > 0 {
		sqlText += " WHERE " + strings.Join(where, " AND ")
	}
	sqlText += " ORDER BY id DESC LIMIT ? OFFSET ?;"
	args = append(args, query.Limit, query.Offset)

	rows, err := s.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list traces: %w", err)
	}
	return scanTraces(rows)
}

func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?;", key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", storage.ErrNotFound
		}
		return "", fmt.Errorf("failed to load setting: %w", err)
	}
	return value, nil
}

func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("setting key is required")
	}
	const q = `
INSERT INTO settings (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value=excluded.value;
`
	if _, err := s.db.ExecContext(ctx, q, key, value); err != nil {
		return fmt.Errorf("failed to save setting: %w", err)
	}
	return nil
}

func (s *Store) ListSettings(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key, value FROM settings;")
	if err != nil {
		return nil, fmt.Errorf("failed to list settings: %w", err)
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("failed to scan setting row: %w", err)
		}
		out[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate settings: %w", err)
	}
	return out, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func scanTraces(rows *sql.Rows) ([]storage.Trace, error) {
	defer rows.Close()
	out := []storage.Trace{}
	for rows.Next() {
		t, err := scanTrace(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate traces: %w", err)
	}
	return out, nil
}

func scanTrace(scanner interface{ Scan(dest ...any) error }) (storage.Trace, error) {
	var (
		t         storage.Trace
		input     sql.NullString
		output    sql.NullString
		status    string
		diagnosis sql.NullString
		tsRaw     string
	)
	if err := scanner.Scan(
		&t.ID,
		&t.RunID,
		&t.NodeID,
		&input,
		&output,
		&status,
		&t.RecoveryAttempts,
		&t.SavedCost,
		&t.TokenUsage,
		&t.EstimatedCost,
		&diagnosis,
		&t.DurationMs,
		&tsRaw,
	); err != nil {
		return storage.Trace{}, fmt.Errorf("failed to scan trace row: %w", err)
	}
	t.Status = storage.Status(status)
	t.InputState = rawOrNull(input)
	t.OutputState = rawOrNull(output)
	t.Diagnosis = diagnosis.String
	if tsRaw != "" {
		if ts, err := time.Parse(time.RFC3339Nano, tsRaw); err == nil {
			t.Timestamp = ts
		}
	}
	return t, nil
}

func rawOrNull(v sql.NullString) []byte {
	if !v.Valid || v.String == "" {
		return []byte("null")
	}
	return []byte(v.String)
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

var _ storage.Store = (*Store)(nil)
