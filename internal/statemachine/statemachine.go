// Package statemachine implements the transition-table-guarded status
// discipline shared by journal entries, fiscal periods, close tasks and
// approvals.
package statemachine

import (
	"fmt"
	"sort"
	"strings"
)

// Machine validates status transitions against a fixed table. A Machine is
// immutable after construction and safe for concurrent use.
type Machine[S ~string] struct {
	name  string
	table map[S][]S
}

// New builds a machine named for its entity kind; the name appears in
// transition errors.
func New[S ~string](name string, table map[S][]S) *Machine[S] {
	return &Machine[S]{name: name, table: table}
}

// canTransition reports whether current -> next is in the table.
func (m *Machine[S]) canTransition(current, next S) bool {
	for _, legal := range m.table[current] {
		if legal == next {
			return true
		}
	}
	return false
}

// Check returns nil when current -> next is legal, else an error naming
// the current status, the attempted status and the statuses the attempted
// one is reachable from. Callers apply field mutations only after Check
// passes.
func (m *Machine[S]) Check(current, next S) error {
	if !m.canTransition(current, next) {
		return &TransitionError[S]{
			Entity:    m.name,
			Current:   current,
			Attempted: next,
			Required:  m.sources(next),
		}
	}
	return nil
}

// sources returns the statuses from which next is reachable, sorted.
func (m *Machine[S]) sources(next S) []S {
	var out []S
	for from := range m.table {
		if m.canTransition(from, next) {
			out = append(out, from)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Terminal reports whether no transition leaves the status.
func (m *Machine[S]) Terminal(status S) bool {
	return len(m.table[status]) == 0
}

// TransitionError names the entity kind, the current status, the attempted
// status and the statuses the attempted one requires.
type TransitionError[S ~string] struct {
	Entity    string
	Current   S
	Attempted S
	Required  []S
}

func (e *TransitionError[S]) Error() string {
	msg := fmt.Sprintf("%s: illegal transition from %s to %s", e.Entity, e.Current, e.Attempted)
	if len(e.Required) > 0 {
		parts := make([]string, len(e.Required))
		for i, s := range e.Required {
			parts[i] = string(s)
		}
		msg += fmt.Sprintf(" (%s requires %s)", e.Attempted, strings.Join(parts, " or "))
	}
	return msg
}
