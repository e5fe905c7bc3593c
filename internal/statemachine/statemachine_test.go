package statemachine

import (
	"errors"
	"strings"
	"testing"
)

type status string

const (
	draft  status = "DRAFT"
	review status = "REVIEW"
	done   status = "DONE"
)

func testMachine() *Machine[status] {
	return New("widget", map[status][]status{
		draft:  {review},
		review: {done, draft},
	})
}

func TestCanTransition(t *testing.T) {
	m := testMachine()
	if !m.canTransition(draft, review) {
		t.Fatal("draft -> review should be legal")
	}
	if m.canTransition(draft, done) {
		t.Fatal("draft -> done should be illegal")
	}
	if m.canTransition(done, draft) {
		t.Fatal("terminal status should allow nothing")
	}
}

func TestCheckNamesCurrentAndRequiredStatuses(t *testing.T) {
	m := testMachine()
	err := m.Check(draft, done)
	if err == nil {
		t.Fatal("expected error for illegal transition")
	}

	var te *TransitionError[status]
	if !errors.As(err, &te) {
		t.Fatalf("expected TransitionError, got %T", err)
	}
	if te.Current != draft || te.Attempted != done {
		t.Fatalf("unexpected error fields: %+v", te)
	}
	if len(te.Required) != 1 || te.Required[0] != review {
		t.Fatalf("expected REVIEW as the required source, got %v", te.Required)
	}
	msg := err.Error()
	if !strings.Contains(msg, "DRAFT") || !strings.Contains(msg, "DONE") {
		t.Fatalf("error must name both statuses: %s", msg)
	}
	if !strings.Contains(msg, "DONE requires REVIEW") {
		t.Fatalf("error must name the required status: %s", msg)
	}

	if err := m.Check(draft, review); err != nil {
		t.Fatalf("legal transition rejected: %v", err)
	}
}

func TestTerminal(t *testing.T) {
	m := testMachine()
	if m.Terminal(draft) {
		t.Fatal("draft is not terminal")
	}
	if !m.Terminal(done) {
		t.Fatal("done is terminal")
	}
}

func TestSourcesSorted(t *testing.T) {
	m := New("widget", map[status][]status{
		draft:  {done},
		review: {done},
	})
	src := m.sources(done)
	if len(src) != 2 || src[0] != draft || src[1] != review {
		t.Fatalf("expected sorted sources [DRAFT REVIEW], got %v", src)
	}
}
