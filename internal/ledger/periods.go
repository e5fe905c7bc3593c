package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/finagent/orchestrator/internal/domain"
)

// PeriodStore is the fiscal period and close task persistence surface.
type PeriodStore interface {
	CreateFiscalPeriod(ctx context.Context, p *domain.FiscalPeriod) error
	GetFiscalPeriod(ctx context.Context, periodID string) (*domain.FiscalPeriod, error)
	UpdateFiscalPeriod(ctx context.Context, p *domain.FiscalPeriod) error

	CreateCloseTask(ctx context.Context, t *domain.CloseTask) error
	GetCloseTask(ctx context.Context, taskID string) (*domain.CloseTask, error)
	UpdateCloseTask(ctx context.Context, t *domain.CloseTask) error
}

// PeriodService manages fiscal periods and their close checklists.
type PeriodService struct {
	store PeriodStore
}

func NewPeriodService(store PeriodStore) *PeriodService {
	return &PeriodService{store: store}
}

// OpenPeriod creates a new Open fiscal period.
func (s *PeriodService) OpenPeriod(ctx context.Context, tenantID, entityCode, name string, start, end time.Time) (*domain.FiscalPeriod, domain.OperationResult) {
	if tenantID == "" || name == "" {
		return nil, domain.Invalid("period validation failed", "tenant_id and name are required")
	}
	if !end.After(start) {
		return nil, domain.Invalid("period validation failed", "end_date must be after start_date")
	}
	period := &domain.FiscalPeriod{
		PeriodID:   "fp_" + uuid.New().String()[:8],
		TenantID:   tenantID,
		EntityCode: entityCode,
		Name:       name,
		StartDate:  start,
		EndDate:    end,
		Status:     domain.FiscalPeriodStatusOpen,
	}
	if err := s.store.CreateFiscalPeriod(ctx, period); err != nil {
		return nil, domain.Fail(fmt.Sprintf("failed to create period: %v", err))
	}
	return period, domain.Ok(fmt.Sprintf("period %s opened", period.Name))
}

// BeginClose moves an Open period into the close process.
func (s *PeriodService) BeginClose(ctx context.Context, periodID string) domain.OperationResult {
	return s.transitionPeriod(ctx, periodID, domain.FiscalPeriodStatusPendingClose, nil)
}

// ClosePeriod finishes the close and stamps who closed it.
func (s *PeriodService) ClosePeriod(ctx context.Context, periodID, actorID string) domain.OperationResult {
	return s.transitionPeriod(ctx, periodID, domain.FiscalPeriodStatusClosed, func(p *domain.FiscalPeriod, now time.Time) {
		p.ClosedBy = actorID
		p.ClosedAt = &now
	})
}

// LockPeriod makes a Closed period permanent.
func (s *PeriodService) LockPeriod(ctx context.Context, periodID, actorID string) domain.OperationResult {
	return s.transitionPeriod(ctx, periodID, domain.FiscalPeriodStatusLocked, func(p *domain.FiscalPeriod, now time.Time) {
		p.LockedBy = actorID
		p.LockedAt = &now
	})
}

// ReopenPeriod returns a Closed (or PendingClose) period to Open, clearing
// the close stamps.
func (s *PeriodService) ReopenPeriod(ctx context.Context, periodID string) domain.OperationResult {
	return s.transitionPeriod(ctx, periodID, domain.FiscalPeriodStatusOpen, func(p *domain.FiscalPeriod, _ time.Time) {
		p.ClosedBy = ""
		p.ClosedAt = nil
	})
}

func (s *PeriodService) transitionPeriod(ctx context.Context, periodID string, next domain.FiscalPeriodStatus, stamp func(*domain.FiscalPeriod, time.Time)) domain.OperationResult {
	period, err := s.store.GetFiscalPeriod(ctx, periodID)
	if err != nil {
		return domain.Fail(fmt.Sprintf("failed to load period: %v", err))
	}
	if period == nil {
		return domain.Fail(fmt.Sprintf("period %s not found", periodID))
	}
	if err := periodMachine.Check(period.Status, next); err != nil {
		return domain.Fail(err.Error())
	}
	period.Status = next
	if stamp != nil {
		stamp(period, time.Now())
	}
	if err := s.store.UpdateFiscalPeriod(ctx, period); err != nil {
		return domain.Fail(fmt.Sprintf("failed to update period: %v", err))
	}
	return domain.Ok(fmt.Sprintf("period %s is now %s", period.Name, period.Status))
}

// CreateCloseTask adds a checklist item to a period's close.
func (s *PeriodService) CreateCloseTask(ctx context.Context, tenantID, entityCode, periodID, title, assignedTo string) (*domain.CloseTask, domain.OperationResult) {
	if periodID == "" || title == "" {
		return nil, domain.Invalid("close task validation failed", "period_id and title are required")
	}
	task := &domain.CloseTask{
		TaskID:     "ct_" + uuid.New().String()[:8],
		TenantID:   tenantID,
		EntityCode: entityCode,
		PeriodID:   periodID,
		Title:      title,
		AssignedTo: assignedTo,
		Status:     domain.CloseTaskStatusPending,
		CreatedAt:  time.Now(),
	}
	if err := s.store.CreateCloseTask(ctx, task); err != nil {
		return nil, domain.Fail(fmt.Sprintf("failed to create close task: %v", err))
	}
	return task, domain.Ok(fmt.Sprintf("close task %q created", task.Title))
}

// StartTask moves a Pending or Blocked task to InProgress, clearing any
// blocked reason.
func (s *PeriodService) StartTask(ctx context.Context, taskID string) domain.OperationResult {
	return s.transitionTask(ctx, taskID, domain.CloseTaskStatusInProgress, func(t *domain.CloseTask, _ time.Time) {
		t.BlockedReason = ""
	})
}

// CompleteTask finishes an InProgress task and stamps who completed it.
func (s *PeriodService) CompleteTask(ctx context.Context, taskID, actorID string) domain.OperationResult {
	return s.transitionTask(ctx, taskID, domain.CloseTaskStatusCompleted, func(t *domain.CloseTask, now time.Time) {
		t.CompletedBy = actorID
		t.CompletedAt = &now
	})
}

// BlockTask parks an InProgress task with a reason.
func (s *PeriodService) BlockTask(ctx context.Context, taskID, reason string) domain.OperationResult {
	return s.transitionTask(ctx, taskID, domain.CloseTaskStatusBlocked, func(t *domain.CloseTask, _ time.Time) {
		t.BlockedReason = reason
	})
}

// CancelTask drops a task that is not yet terminal.
func (s *PeriodService) CancelTask(ctx context.Context, taskID string) domain.OperationResult {
	return s.transitionTask(ctx, taskID, domain.CloseTaskStatusCancelled, nil)
}

func (s *PeriodService) transitionTask(ctx context.Context, taskID string, next domain.CloseTaskStatus, stamp func(*domain.CloseTask, time.Time)) domain.OperationResult {
	task, err := s.store.GetCloseTask(ctx, taskID)
	if err != nil {
		return domain.Fail(fmt.Sprintf("failed to load close task: %v", err))
	}
	if task == nil {
		return domain.Fail(fmt.Sprintf("close task %s not found", taskID))
	}
	if err := taskMachine.Check(task.Status, next); err != nil {
		return domain.Fail(err.Error())
	}
	task.Status = next
	if stamp != nil {
		stamp(task, time.Now())
	}
	if err := s.store.UpdateCloseTask(ctx, task); err != nil {
		return domain.Fail(fmt.Sprintf("failed to update close task: %v", err))
	}
	return domain.Ok(fmt.Sprintf("close task %q is now %s", task.Title, task.Status))
}
