// Package sequence issues human-readable document numbers from persisted
// per-tenant counters, so numbering survives restarts and is shared across
// concurrent instances.
package sequence

import (
	"context"
	"fmt"
)

// Scopes used by the core.
const (
	ScopeJournalEntry = "journal_entry"
	ScopeApproval     = "approval"
)

// Source is the persisted counter, one per (tenant, scope).
type Source interface {
	NextSequence(ctx context.Context, tenantID, scope string) (int64, error)
}

// Issuer formats sequence values into document numbers.
type Issuer struct {
	src Source
}

// NewIssuer creates an issuer over the given counter source.
func NewIssuer(src Source) *Issuer {
	return &Issuer{src: src}
}

// EntryNumber issues the next journal entry number for a tenant.
func (i *Issuer) EntryNumber(ctx context.Context, tenantID string) (string, error) {
	n, err := i.src.NextSequence(ctx, tenantID, ScopeJournalEntry)
	if err != nil {
		return "", fmt.Errorf("failed to issue entry number: %w", err)
	}
	return fmt.Sprintf("JE-%06d", n), nil
}

// ApprovalNumber issues the next approval number for a tenant.
func (i *Issuer) ApprovalNumber(ctx context.Context, tenantID string) (string, error) {
	n, err := i.src.NextSequence(ctx, tenantID, ScopeApproval)
	if err != nil {
		return "", fmt.Errorf("failed to issue approval number: %w", err)
	}
	return fmt.Sprintf("APR-%06d", n), nil
}
