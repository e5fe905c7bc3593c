package ledger

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/finagent/orchestrator/internal/domain"
	"github.com/finagent/orchestrator/internal/sequence"
)

// BalanceTolerance is the largest debit/credit difference still considered
// balanced, covering float rounding on two-decimal amounts.
const BalanceTolerance = 0.01

// JournalStore is the journal persistence surface.
type JournalStore interface {
	CreateJournalEntry(ctx context.Context, e *domain.JournalEntry) error
	GetJournalEntry(ctx context.Context, entryID string) (*domain.JournalEntry, error)
	UpdateJournalEntry(ctx context.Context, e *domain.JournalEntry) error
}

// JournalService creates journal entries and walks them through their
// lifecycle. Lines never change after creation; every status change goes
// through the transition table.
type JournalService struct {
	store JournalStore
	seq   *sequence.Issuer
}

func NewJournalService(store JournalStore, seq *sequence.Issuer) *JournalService {
	return &JournalService{store: store, seq: seq}
}

// CreateEntryInput carries the fields a caller supplies for a new entry.
type CreateEntryInput struct {
	TenantID    string
	EntityCode  string
	Description string
	PeriodID    string
	CreatedBy   string
	Lines       []domain.JournalLine
}

// CreateEntry validates and persists a new Draft entry with a
// sequence-issued entry number.
func (s *JournalService) CreateEntry(ctx context.Context, in CreateEntryInput) (*domain.JournalEntry, domain.OperationResult) {
	var errs []string
	if in.TenantID == "" {
		errs = append(errs, "tenant_id is required")
	}
	if len(in.Lines) < 2 {
		errs = append(errs, "a journal entry needs at least two lines")
	}
	var debits, credits float64
	for i, line := range in.Lines {
		if line.AccountCode == "" {
			errs = append(errs, fmt.Sprintf("line %d: account_code is required", i+1))
		}
		if line.Debit < 0 || line.Credit < 0 {
			errs = append(errs, fmt.Sprintf("line %d: amounts must not be negative", i+1))
		}
		if line.Debit != 0 && line.Credit != 0 {
			errs = append(errs, fmt.Sprintf("line %d: a line is either a debit or a credit, not both", i+1))
		}
		debits += line.Debit
		credits += line.Credit
	}
	if math.Abs(debits-credits) > BalanceTolerance {
		errs = append(errs, fmt.Sprintf("entry is not balanced: debits %.2f, credits %.2f", debits, credits))
	}
	if len(errs) > 0 {
		return nil, domain.Invalid("journal entry validation failed", errs...)
	}

	number, err := s.seq.EntryNumber(ctx, in.TenantID)
	if err != nil {
		return nil, domain.Fail(fmt.Sprintf("failed to issue entry number: %v", err))
	}

	entry := &domain.JournalEntry{
		EntryID:     "je_" + uuid.New().String()[:8],
		EntryNumber: number,
		TenantID:    in.TenantID,
		EntityCode:  in.EntityCode,
		Description: in.Description,
		PeriodID:    in.PeriodID,
		Status:      domain.JournalEntryStatusDraft,
		Lines:       make([]domain.JournalLine, len(in.Lines)),
		CreatedBy:   in.CreatedBy,
		CreatedAt:   time.Now(),
	}
	copy(entry.Lines, in.Lines)
	for i := range entry.Lines {
		if entry.Lines[i].LineID == "" {
			entry.Lines[i].LineID = "jl_" + uuid.New().String()[:8]
		}
	}

	if err := s.store.CreateJournalEntry(ctx, entry); err != nil {
		return nil, domain.Fail(fmt.Sprintf("failed to create journal entry: %v", err))
	}
	return entry, domain.Ok(fmt.Sprintf("journal entry %s created", entry.EntryNumber))
}

// GetEntry loads one entry with its lines.
func (s *JournalService) GetEntry(ctx context.Context, entryID string) (*domain.JournalEntry, error) {
	return s.store.GetJournalEntry(ctx, entryID)
}

// SubmitEntry moves a Draft entry into review.
func (s *JournalService) SubmitEntry(ctx context.Context, entryID string) domain.OperationResult {
	return s.transition(ctx, entryID, domain.JournalEntryStatusPendingApproval, nil)
}

// ApproveEntry marks a reviewed entry Approved and stamps the approver.
func (s *JournalService) ApproveEntry(ctx context.Context, entryID, actorID string) domain.OperationResult {
	return s.transition(ctx, entryID, domain.JournalEntryStatusApproved, func(e *domain.JournalEntry, now time.Time) {
		e.ApprovedBy = actorID
		e.ApprovedAt = &now
	})
}

// PostEntry posts an Approved entry to the ledger and stamps the poster.
func (s *JournalService) PostEntry(ctx context.Context, entryID, actorID string) domain.OperationResult {
	return s.transition(ctx, entryID, domain.JournalEntryStatusPosted, func(e *domain.JournalEntry, now time.Time) {
		e.PostedBy = actorID
		e.PostedAt = &now
	})
}

// CancelEntry cancels an unposted entry.
func (s *JournalService) CancelEntry(ctx context.Context, entryID string) domain.OperationResult {
	return s.transition(ctx, entryID, domain.JournalEntryStatusCancelled, nil)
}

// ReturnToDraft sends an entry back for edits, clearing review stamps.
func (s *JournalService) ReturnToDraft(ctx context.Context, entryID string) domain.OperationResult {
	return s.transition(ctx, entryID, domain.JournalEntryStatusDraft, func(e *domain.JournalEntry, _ time.Time) {
		e.ApprovedBy = ""
		e.ApprovedAt = nil
	})
}

// transition applies one table-guarded status change; stamp runs only
// after the transition is validated and before the single update write.
func (s *JournalService) transition(ctx context.Context, entryID string, next domain.JournalEntryStatus, stamp func(*domain.JournalEntry, time.Time)) domain.OperationResult {
	entry, err := s.store.GetJournalEntry(ctx, entryID)
	if err != nil {
		return domain.Fail(fmt.Sprintf("failed to load journal entry: %v", err))
	}
	if entry == nil {
		return domain.Fail(fmt.Sprintf("journal entry %s not found", entryID))
	}
	if err := journalMachine.Check(entry.Status, next); err != nil {
		return domain.Fail(err.Error())
	}
	entry.Status = next
	if stamp != nil {
		stamp(entry, time.Now())
	}
	if err := s.store.UpdateJournalEntry(ctx, entry); err != nil {
		return domain.Fail(fmt.Sprintf("failed to update journal entry: %v", err))
	}
	return domain.Ok(fmt.Sprintf("journal entry %s is now %s", entry.EntryNumber, entry.Status))
}

// ReverseEntry creates the reversing entry for a Posted original: every
// line's debit and credit swap, the original is marked Reversed and the
// two entries link to each other. The original's lines are untouched.
func (s *JournalService) ReverseEntry(ctx context.Context, entryID, actorID string) (*domain.JournalEntry, domain.OperationResult) {
	original, err := s.store.GetJournalEntry(ctx, entryID)
	if err != nil {
		return nil, domain.Fail(fmt.Sprintf("failed to load journal entry: %v", err))
	}
	if original == nil {
		return nil, domain.Fail(fmt.Sprintf("journal entry %s not found", entryID))
	}
	if err := journalMachine.Check(original.Status, domain.JournalEntryStatusReversed); err != nil {
		return nil, domain.Fail(err.Error())
	}

	number, err := s.seq.EntryNumber(ctx, original.TenantID)
	if err != nil {
		return nil, domain.Fail(fmt.Sprintf("failed to issue entry number: %v", err))
	}

	now := time.Now()
	reversal := &domain.JournalEntry{
		EntryID:      "je_" + uuid.New().String()[:8],
		EntryNumber:  number,
		TenantID:     original.TenantID,
		EntityCode:   original.EntityCode,
		Description:  fmt.Sprintf("Reversal of %s", original.EntryNumber),
		PeriodID:     original.PeriodID,
		Status:       domain.JournalEntryStatusPosted,
		Lines:        make([]domain.JournalLine, len(original.Lines)),
		CreatedBy:    actorID,
		CreatedAt:    now,
		PostedBy:     actorID,
		PostedAt:     &now,
		ReversalOfID: original.EntryID,
	}
	for i, line := range original.Lines {
		reversal.Lines[i] = domain.JournalLine{
			LineID:      "jl_" + uuid.New().String()[:8],
			AccountCode: line.AccountCode,
			Debit:       line.Credit,
			Credit:      line.Debit,
			Memo:        line.Memo,
		}
	}

	if err := s.store.CreateJournalEntry(ctx, reversal); err != nil {
		return nil, domain.Fail(fmt.Sprintf("failed to create reversing entry: %v", err))
	}

	original.Status = domain.JournalEntryStatusReversed
	original.ReversedBy = actorID
	original.ReversedAt = &now
	original.ReversedByID = reversal.EntryID
	if err := s.store.UpdateJournalEntry(ctx, original); err != nil {
		return nil, domain.Fail(fmt.Sprintf("failed to mark original entry reversed: %v", err))
	}

	return reversal, domain.Ok(fmt.Sprintf("entry %s reversed by %s", original.EntryNumber, reversal.EntryNumber))
}
