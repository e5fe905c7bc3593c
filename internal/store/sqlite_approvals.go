package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/finagent/orchestrator/internal/domain"
)

// CreateApproval inserts a new approval.
func (s *SQLiteStore) CreateApproval(ctx context.Context, a *domain.Approval) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO approvals (approval_id, approval_number, tenant_id, entity_code, run_id,
			linked_type, linked_id, amount, currency, requested_by, requested_at,
			assigned_to, status, level, comments, request_payload)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ApprovalID, a.ApprovalNumber, a.TenantID, a.EntityCode, a.RunID,
		a.LinkedType, a.LinkedID, a.Amount, a.Currency, a.RequestedBy, a.RequestedAt,
		a.AssignedTo, string(a.Status), a.Level, a.Comments, string(a.RequestPayload))
	if err != nil {
		return fmt.Errorf("failed to create approval: %w", err)
	}
	return nil
}

// GetApprovalByLink retrieves the approval opened for a linked object
// within a run; nil when none exists. The unique link index guarantees at
// most one row matches.
func (s *SQLiteStore) GetApprovalByLink(ctx context.Context, runID, linkedType, linkedID string) (*domain.Approval, error) {
	var approvalID string
	err := s.db.QueryRowContext(ctx,
		`SELECT approval_id FROM approvals WHERE run_id = ? AND linked_type = ? AND linked_id = ?`,
		runID, linkedType, linkedID).Scan(&approvalID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s.GetApproval(ctx, approvalID)
}

// GetApproval retrieves an approval with its ordered history. Returns nil
// when absent.
func (s *SQLiteStore) GetApproval(ctx context.Context, approvalID string) (*domain.Approval, error) {
	var a domain.Approval
	var entityCode, runID, currency, assignedTo, decidedBy, comments, escReason, requestPayload sql.NullString
	var amount sql.NullFloat64
	var decidedAt, escalatedAt sql.NullTime

	err := s.db.QueryRowContext(ctx,
		`SELECT approval_id, approval_number, tenant_id, entity_code, run_id,
			linked_type, linked_id, amount, currency, requested_by, requested_at,
			assigned_to, status, level, decided_by, decided_at, comments,
			escalation_reason, escalated_at, request_payload
		 FROM approvals WHERE approval_id = ?`, approvalID).Scan(
		&a.ApprovalID, &a.ApprovalNumber, &a.TenantID, &entityCode, &runID,
		&a.LinkedType, &a.LinkedID, &amount, &currency, &a.RequestedBy, &a.RequestedAt,
		&assignedTo, &a.Status, &a.Level, &decidedBy, &decidedAt, &comments,
		&escReason, &escalatedAt, &requestPayload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	a.EntityCode = entityCode.String
	a.RunID = runID.String
	a.Currency = currency.String
	a.AssignedTo = assignedTo.String
	a.DecidedBy = decidedBy.String
	a.Comments = comments.String
	a.EscalationReason = escReason.String
	if requestPayload.Valid && requestPayload.String != "" {
		a.RequestPayload = []byte(requestPayload.String)
	}
	if amount.Valid {
		a.Amount = &amount.Float64
	}
	if decidedAt.Valid {
		t := decidedAt.Time
		a.DecidedAt = &t
	}
	if escalatedAt.Valid {
		t := escalatedAt.Time
		a.EscalatedAt = &t
	}

	history, err := s.listApprovalHistory(ctx, approvalID)
	if err != nil {
		return nil, err
	}
	a.History = history
	return &a, nil
}

// UpdateApproval persists the mutable fields of an approval and appends the
// history entry in one transaction, so a history row exists for every
// recorded mutation.
func (s *SQLiteStore) UpdateApproval(ctx context.Context, a *domain.Approval, entry domain.ApprovalHistoryEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE approvals SET status = ?, level = ?, assigned_to = ?, decided_by = ?,
			decided_at = ?, comments = ?, escalation_reason = ?, escalated_at = ?
		 WHERE approval_id = ?`,
		string(a.Status), a.Level, a.AssignedTo, a.DecidedBy,
		a.DecidedAt, a.Comments, a.EscalationReason, a.EscalatedAt,
		a.ApprovalID); err != nil {
		return fmt.Errorf("failed to update approval: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO approval_history (entry_id, approval_id, action, actor, ts, prev_status, new_status, comments)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.EntryID, entry.ApprovalID, string(entry.Action), entry.Actor, entry.Ts,
		string(entry.PrevStatus), string(entry.NewStatus), entry.Comments); err != nil {
		return fmt.Errorf("failed to append approval history: %w", err)
	}

	return tx.Commit()
}

// ListPendingApprovals returns a tenant's approvals awaiting a decision
// (Pending or Escalated), oldest first.
func (s *SQLiteStore) ListPendingApprovals(ctx context.Context, tenantID string, limit int) ([]domain.Approval, error) {
	query := `SELECT approval_id FROM approvals
		WHERE tenant_id = ? AND status IN ('PENDING', 'ESCALATED')
		ORDER BY requested_at ASC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var approvals []domain.Approval
	for _, id := range ids {
		a, err := s.GetApproval(ctx, id)
		if err != nil {
			return nil, err
		}
		if a != nil {
			approvals = append(approvals, *a)
		}
	}
	return approvals, nil
}

func (s *SQLiteStore) listApprovalHistory(ctx context.Context, approvalID string) ([]domain.ApprovalHistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT entry_id, approval_id, action, actor, ts, prev_status, new_status, comments
		 FROM approval_history WHERE approval_id = ? ORDER BY ts ASC, entry_id ASC`, approvalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []domain.ApprovalHistoryEntry
	for rows.Next() {
		var e domain.ApprovalHistoryEntry
		var comments sql.NullString
		var ts time.Time
		if err := rows.Scan(&e.EntryID, &e.ApprovalID, &e.Action, &e.Actor, &ts, &e.PrevStatus, &e.NewStatus, &comments); err != nil {
			return nil, err
		}
		e.Ts = ts
		e.Comments = comments.String
		history = append(history, e)
	}
	return history, rows.Err()
}
