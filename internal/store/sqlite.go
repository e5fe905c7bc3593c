// Package store persists the orchestrator's durable state in SQLite: the
// per-run event log, approvals with their audit history, ledger entities,
// per-tenant sequences and the tool-execution idempotency guard.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/finagent/orchestrator/internal/domain"
)

// SQLiteStore backs every storage interface of the orchestration core.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the database and runs migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across
	// goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return s, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS events (
			event_id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			tenant_id TEXT,
			ts INTEGER NOT NULL,
			seq INTEGER NOT NULL DEFAULT 0,
			dedupe_key TEXT,
			type TEXT NOT NULL,
			payload TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_run ON events(run_id, ts, seq)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_events_dedupe ON events(dedupe_key) WHERE dedupe_key IS NOT NULL AND dedupe_key != ''`,
		`CREATE TABLE IF NOT EXISTS tool_executions (
			idempotency_key TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			tool_name TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'RUNNING',
			error TEXT,
			started_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			finished_at DATETIME
		)`,
		`CREATE TABLE IF NOT EXISTS approvals (
			approval_id TEXT PRIMARY KEY,
			approval_number TEXT NOT NULL,
			tenant_id TEXT NOT NULL,
			entity_code TEXT,
			run_id TEXT,
			linked_type TEXT NOT NULL,
			linked_id TEXT NOT NULL,
			amount REAL,
			currency TEXT,
			requested_by TEXT NOT NULL,
			requested_at DATETIME NOT NULL,
			assigned_to TEXT,
			status TEXT NOT NULL DEFAULT 'PENDING',
			level INTEGER NOT NULL DEFAULT 1,
			decided_by TEXT,
			decided_at DATETIME,
			comments TEXT,
			escalation_reason TEXT,
			escalated_at DATETIME,
			request_payload TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_approvals_status ON approvals(tenant_id, status, requested_at)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_approvals_link ON approvals(run_id, linked_type, linked_id)
			WHERE run_id IS NOT NULL AND run_id != ''`,
		`CREATE TABLE IF NOT EXISTS approval_history (
			entry_id TEXT PRIMARY KEY,
			approval_id TEXT NOT NULL,
			action TEXT NOT NULL,
			actor TEXT NOT NULL,
			ts DATETIME NOT NULL,
			prev_status TEXT NOT NULL,
			new_status TEXT NOT NULL,
			comments TEXT,
			FOREIGN KEY (approval_id) REFERENCES approvals(approval_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_approval_history ON approval_history(approval_id, ts)`,
		`CREATE TABLE IF NOT EXISTS journal_entries (
			entry_id TEXT PRIMARY KEY,
			entry_number TEXT NOT NULL,
			tenant_id TEXT NOT NULL,
			entity_code TEXT NOT NULL,
			description TEXT,
			period_id TEXT,
			status TEXT NOT NULL,
			created_by TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			approved_by TEXT,
			approved_at DATETIME,
			posted_by TEXT,
			posted_at DATETIME,
			reversed_by TEXT,
			reversed_at DATETIME,
			reversal_of_id TEXT,
			reversed_by_id TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_journal_entries_scope ON journal_entries(tenant_id, entity_code, created_at)`,
		`CREATE TABLE IF NOT EXISTS journal_lines (
			line_id TEXT PRIMARY KEY,
			entry_id TEXT NOT NULL,
			account_code TEXT NOT NULL,
			debit REAL NOT NULL DEFAULT 0,
			credit REAL NOT NULL DEFAULT 0,
			memo TEXT,
			position INTEGER NOT NULL DEFAULT 0,
			FOREIGN KEY (entry_id) REFERENCES journal_entries(entry_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_journal_lines_entry ON journal_lines(entry_id, position)`,
		`CREATE TABLE IF NOT EXISTS fiscal_periods (
			period_id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			entity_code TEXT NOT NULL,
			name TEXT NOT NULL,
			start_date DATETIME NOT NULL,
			end_date DATETIME NOT NULL,
			status TEXT NOT NULL,
			closed_by TEXT,
			closed_at DATETIME,
			locked_by TEXT,
			locked_at DATETIME
		)`,
		`CREATE TABLE IF NOT EXISTS close_tasks (
			task_id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			entity_code TEXT NOT NULL,
			period_id TEXT NOT NULL,
			title TEXT NOT NULL,
			assigned_to TEXT,
			status TEXT NOT NULL,
			blocked_reason TEXT,
			created_at DATETIME NOT NULL,
			completed_by TEXT,
			completed_at DATETIME
		)`,
		`CREATE INDEX IF NOT EXISTS idx_close_tasks_period ON close_tasks(period_id, status)`,
		`CREATE TABLE IF NOT EXISTS sequences (
			tenant_id TEXT NOT NULL,
			scope TEXT NOT NULL,
			value INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (tenant_id, scope)
		)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Append appends events for a run in the order given. Events carrying a
// dedupe key that was already appended are skipped silently, which makes a
// redelivered work item's appends a no-op.
func (s *SQLiteStore) Append(ctx context.Context, runID string, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, e := range events {
		if e.RunID == "" {
			e.RunID = runID
		}
		_, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO events (event_id, run_id, tenant_id, ts, seq, dedupe_key, type, payload)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			e.EventID, e.RunID, e.TenantID, e.Ts, e.Seq, e.DedupeKey, string(e.Type), string(e.Payload))
		if err != nil {
			return fmt.Errorf("failed to append event %s: %w", e.EventID, err)
		}
	}

	return tx.Commit()
}

// ListEvents returns a run's events in append order.
func (s *SQLiteStore) ListEvents(ctx context.Context, runID string, limit int) ([]domain.Event, error) {
	query := `SELECT event_id, run_id, tenant_id, ts, seq, dedupe_key, type, payload
		FROM events WHERE run_id = ? ORDER BY ts ASC, seq ASC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var e domain.Event
		var tenantID, dedupeKey, payload sql.NullString
		if err := rows.Scan(&e.EventID, &e.RunID, &tenantID, &e.Ts, &e.Seq, &dedupeKey, &e.Type, &payload); err != nil {
			return nil, err
		}
		e.TenantID = tenantID.String
		e.DedupeKey = dedupeKey.String
		if payload.Valid {
			e.Payload = []byte(payload.String)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// BeginExecution claims an idempotency key. The claim is granted exactly
// once per key; a redelivered work item gets the prior attempt's recorded
// status instead and must not re-run the side effect.
func (s *SQLiteStore) BeginExecution(ctx context.Context, idempotencyKey, runID, toolName string) (domain.ExecutionClaim, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO tool_executions (idempotency_key, run_id, tool_name, status) VALUES (?, ?, ?, ?)`,
		idempotencyKey, runID, toolName, string(domain.ExecutionStatusRunning))
	if err != nil {
		return domain.ExecutionClaim{}, fmt.Errorf("failed to claim idempotency key: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.ExecutionClaim{}, err
	}
	if n > 0 {
		return domain.ExecutionClaim{First: true, Status: domain.ExecutionStatusRunning}, nil
	}

	var status string
	var execErr sql.NullString
	err = s.db.QueryRowContext(ctx,
		`SELECT status, error FROM tool_executions WHERE idempotency_key = ?`,
		idempotencyKey).Scan(&status, &execErr)
	if err == sql.ErrNoRows {
		// The claim was released between the insert and the read; treat
		// the key as still in flight and let the caller retry.
		return domain.ExecutionClaim{Status: domain.ExecutionStatusRunning}, nil
	}
	if err != nil {
		return domain.ExecutionClaim{}, fmt.Errorf("failed to read execution claim: %w", err)
	}
	return domain.ExecutionClaim{Status: domain.ExecutionStatus(status), Error: execErr.String}, nil
}

// FinishExecution records a claimed key's terminal outcome.
func (s *SQLiteStore) FinishExecution(ctx context.Context, idempotencyKey string, status domain.ExecutionStatus, execErr string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE tool_executions SET status = ?, error = ?, finished_at = CURRENT_TIMESTAMP
		 WHERE idempotency_key = ?`,
		string(status), execErr, idempotencyKey)
	if err != nil {
		return fmt.Errorf("failed to record execution outcome: %w", err)
	}
	return nil
}

// ReleaseExecution frees a running claim after a retryable fault so the
// redelivered work item can execute again. Recorded outcomes are never
// released.
func (s *SQLiteStore) ReleaseExecution(ctx context.Context, idempotencyKey string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM tool_executions WHERE idempotency_key = ? AND status = ?`,
		idempotencyKey, string(domain.ExecutionStatusRunning))
	if err != nil {
		return fmt.Errorf("failed to release idempotency key: %w", err)
	}
	return nil
}

// NextSequence atomically increments and returns the per (tenant, scope)
// counter. Numbers survive restarts and are shared across instances through
// the database.
func (s *SQLiteStore) NextSequence(ctx context.Context, tenantID, scope string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sequences (tenant_id, scope, value) VALUES (?, ?, 1)
		 ON CONFLICT(tenant_id, scope) DO UPDATE SET value = value + 1`,
		tenantID, scope); err != nil {
		return 0, fmt.Errorf("failed to advance sequence: %w", err)
	}

	var value int64
	if err := tx.QueryRowContext(ctx,
		`SELECT value FROM sequences WHERE tenant_id = ? AND scope = ?`,
		tenantID, scope).Scan(&value); err != nil {
		return 0, fmt.Errorf("failed to read sequence: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return value, nil
}
