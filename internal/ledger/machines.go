// Package ledger implements the journal entry, fiscal period and close
// task services backed by the shared status state machine.
package ledger

import (
	"github.com/finagent/orchestrator/internal/domain"
	"github.com/finagent/orchestrator/internal/statemachine"
)

var journalMachine = statemachine.New("journal entry", map[domain.JournalEntryStatus][]domain.JournalEntryStatus{
	domain.JournalEntryStatusDraft:           {domain.JournalEntryStatusPendingApproval, domain.JournalEntryStatusCancelled},
	domain.JournalEntryStatusPendingApproval: {domain.JournalEntryStatusApproved, domain.JournalEntryStatusDraft, domain.JournalEntryStatusCancelled},
	domain.JournalEntryStatusApproved:        {domain.JournalEntryStatusPosted, domain.JournalEntryStatusDraft},
	domain.JournalEntryStatusPosted:          {domain.JournalEntryStatusReversed},
})

var periodMachine = statemachine.New("fiscal period", map[domain.FiscalPeriodStatus][]domain.FiscalPeriodStatus{
	domain.FiscalPeriodStatusOpen:         {domain.FiscalPeriodStatusPendingClose},
	domain.FiscalPeriodStatusPendingClose: {domain.FiscalPeriodStatusClosed, domain.FiscalPeriodStatusOpen},
	domain.FiscalPeriodStatusClosed:       {domain.FiscalPeriodStatusLocked, domain.FiscalPeriodStatusOpen},
})

var taskMachine = statemachine.New("close task", map[domain.CloseTaskStatus][]domain.CloseTaskStatus{
	domain.CloseTaskStatusPending:    {domain.CloseTaskStatusInProgress, domain.CloseTaskStatusCancelled},
	domain.CloseTaskStatusInProgress: {domain.CloseTaskStatusCompleted, domain.CloseTaskStatusBlocked, domain.CloseTaskStatusCancelled},
	domain.CloseTaskStatusBlocked:    {domain.CloseTaskStatusInProgress, domain.CloseTaskStatusCancelled},
})
