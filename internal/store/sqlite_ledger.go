package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/finagent/orchestrator/internal/domain"
)

// CreateJournalEntry inserts an entry and its lines in one transaction.
func (s *SQLiteStore) CreateJournalEntry(ctx context.Context, e *domain.JournalEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO journal_entries (entry_id, entry_number, tenant_id, entity_code, description,
			period_id, status, created_by, created_at, reversal_of_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.EntryID, e.EntryNumber, e.TenantID, e.EntityCode, e.Description,
		e.PeriodID, string(e.Status), e.CreatedBy, e.CreatedAt, e.ReversalOfID); err != nil {
		return fmt.Errorf("failed to create journal entry: %w", err)
	}

	for i, line := range e.Lines {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO journal_lines (line_id, entry_id, account_code, debit, credit, memo, position)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			line.LineID, e.EntryID, line.AccountCode, line.Debit, line.Credit, line.Memo, i); err != nil {
			return fmt.Errorf("failed to create journal line: %w", err)
		}
	}

	return tx.Commit()
}

// GetJournalEntry retrieves an entry with its lines in creation order.
// Returns nil when absent.
func (s *SQLiteStore) GetJournalEntry(ctx context.Context, entryID string) (*domain.JournalEntry, error) {
	var e domain.JournalEntry
	var description, periodID, approvedBy, postedBy, reversedBy, reversalOfID, reversedByID sql.NullString
	var approvedAt, postedAt, reversedAt sql.NullTime

	err := s.db.QueryRowContext(ctx,
		`SELECT entry_id, entry_number, tenant_id, entity_code, description, period_id, status,
			created_by, created_at, approved_by, approved_at, posted_by, posted_at,
			reversed_by, reversed_at, reversal_of_id, reversed_by_id
		 FROM journal_entries WHERE entry_id = ?`, entryID).Scan(
		&e.EntryID, &e.EntryNumber, &e.TenantID, &e.EntityCode, &description, &periodID, &e.Status,
		&e.CreatedBy, &e.CreatedAt, &approvedBy, &approvedAt, &postedBy, &postedAt,
		&reversedBy, &reversedAt, &reversalOfID, &reversedByID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	e.Description = description.String
	e.PeriodID = periodID.String
	e.ApprovedBy = approvedBy.String
	e.PostedBy = postedBy.String
	e.ReversedBy = reversedBy.String
	e.ReversalOfID = reversalOfID.String
	e.ReversedByID = reversedByID.String
	if approvedAt.Valid {
		t := approvedAt.Time
		e.ApprovedAt = &t
	}
	if postedAt.Valid {
		t := postedAt.Time
		e.PostedAt = &t
	}
	if reversedAt.Valid {
		t := reversedAt.Time
		e.ReversedAt = &t
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT line_id, account_code, debit, credit, memo
		 FROM journal_lines WHERE entry_id = ? ORDER BY position ASC`, entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var line domain.JournalLine
		var memo sql.NullString
		if err := rows.Scan(&line.LineID, &line.AccountCode, &line.Debit, &line.Credit, &memo); err != nil {
			return nil, err
		}
		line.Memo = memo.String
		e.Lines = append(e.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &e, nil
}

// UpdateJournalEntry persists an entry's status, stamps and reversal links.
// Lines are immutable and never updated.
func (s *SQLiteStore) UpdateJournalEntry(ctx context.Context, e *domain.JournalEntry) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE journal_entries SET status = ?, approved_by = ?, approved_at = ?,
			posted_by = ?, posted_at = ?, reversed_by = ?, reversed_at = ?,
			reversal_of_id = ?, reversed_by_id = ?
		 WHERE entry_id = ?`,
		string(e.Status), e.ApprovedBy, e.ApprovedAt, e.PostedBy, e.PostedAt,
		e.ReversedBy, e.ReversedAt, e.ReversalOfID, e.ReversedByID, e.EntryID)
	if err != nil {
		return fmt.Errorf("failed to update journal entry: %w", err)
	}
	return nil
}

// CreateFiscalPeriod inserts a period.
func (s *SQLiteStore) CreateFiscalPeriod(ctx context.Context, p *domain.FiscalPeriod) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO fiscal_periods (period_id, tenant_id, entity_code, name, start_date, end_date, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.PeriodID, p.TenantID, p.EntityCode, p.Name, p.StartDate, p.EndDate, string(p.Status))
	if err != nil {
		return fmt.Errorf("failed to create fiscal period: %w", err)
	}
	return nil
}

// GetFiscalPeriod retrieves a period; nil when absent.
func (s *SQLiteStore) GetFiscalPeriod(ctx context.Context, periodID string) (*domain.FiscalPeriod, error) {
	var p domain.FiscalPeriod
	var closedBy, lockedBy sql.NullString
	var closedAt, lockedAt sql.NullTime

	err := s.db.QueryRowContext(ctx,
		`SELECT period_id, tenant_id, entity_code, name, start_date, end_date, status,
			closed_by, closed_at, locked_by, locked_at
		 FROM fiscal_periods WHERE period_id = ?`, periodID).Scan(
		&p.PeriodID, &p.TenantID, &p.EntityCode, &p.Name, &p.StartDate, &p.EndDate, &p.Status,
		&closedBy, &closedAt, &lockedBy, &lockedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	p.ClosedBy = closedBy.String
	p.LockedBy = lockedBy.String
	if closedAt.Valid {
		t := closedAt.Time
		p.ClosedAt = &t
	}
	if lockedAt.Valid {
		t := lockedAt.Time
		p.LockedAt = &t
	}
	return &p, nil
}

// UpdateFiscalPeriod persists a period's status and stamps.
func (s *SQLiteStore) UpdateFiscalPeriod(ctx context.Context, p *domain.FiscalPeriod) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE fiscal_periods SET status = ?, closed_by = ?, closed_at = ?, locked_by = ?, locked_at = ?
		 WHERE period_id = ?`,
		string(p.Status), p.ClosedBy, p.ClosedAt, p.LockedBy, p.LockedAt, p.PeriodID)
	if err != nil {
		return fmt.Errorf("failed to update fiscal period: %w", err)
	}
	return nil
}

// CreateCloseTask inserts a close task.
func (s *SQLiteStore) CreateCloseTask(ctx context.Context, t *domain.CloseTask) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO close_tasks (task_id, tenant_id, entity_code, period_id, title, assigned_to, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.TaskID, t.TenantID, t.EntityCode, t.PeriodID, t.Title, t.AssignedTo, string(t.Status), t.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create close task: %w", err)
	}
	return nil
}

// GetCloseTask retrieves a close task; nil when absent.
func (s *SQLiteStore) GetCloseTask(ctx context.Context, taskID string) (*domain.CloseTask, error) {
	var t domain.CloseTask
	var assignedTo, blockedReason, completedBy sql.NullString
	var completedAt sql.NullTime

	err := s.db.QueryRowContext(ctx,
		`SELECT task_id, tenant_id, entity_code, period_id, title, assigned_to, status,
			blocked_reason, created_at, completed_by, completed_at
		 FROM close_tasks WHERE task_id = ?`, taskID).Scan(
		&t.TaskID, &t.TenantID, &t.EntityCode, &t.PeriodID, &t.Title, &assignedTo, &t.Status,
		&blockedReason, &t.CreatedAt, &completedBy, &completedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	t.AssignedTo = assignedTo.String
	t.BlockedReason = blockedReason.String
	t.CompletedBy = completedBy.String
	if completedAt.Valid {
		at := completedAt.Time
		t.CompletedAt = &at
	}
	return &t, nil
}

// UpdateCloseTask persists a task's status and stamps.
func (s *SQLiteStore) UpdateCloseTask(ctx context.Context, t *domain.CloseTask) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE close_tasks SET status = ?, assigned_to = ?, blocked_reason = ?, completed_by = ?, completed_at = ?
		 WHERE task_id = ?`,
		string(t.Status), t.AssignedTo, t.BlockedReason, t.CompletedBy, t.CompletedAt, t.TaskID)
	if err != nil {
		return fmt.Errorf("failed to update close task: %w", err)
	}
	return nil
}
