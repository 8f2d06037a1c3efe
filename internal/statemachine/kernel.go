// Package statemachine provides a reusable, declarative transition
// validator shared by every lifecycle entity in the ledger (StatementEntry,
// ExternalTransfer, SettlementBatch, Payout, Beneficiary,
// ReconciliationCase, LedgerJournal, ApprovalRequest, ...).
//
// The kernel never auto-transitions anything; callers submit each step
// explicitly and the kernel only validates that the step is declared and
// that the source state is not terminal.
package statemachine

import "fmt"

// Entity names the lifecycle table a transition is validated against.
type Entity string

// InvalidTransitionError is returned for any transition not present in the
// entity's declared table, or originating from a terminal (sink) state.
type InvalidTransitionError struct {
	Entity Entity
	From   string
	To     string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("statemachine: invalid transition for %s: %s -> %s", e.Entity, e.From, e.To)
}

// Table declares the allowed from->to transitions and which states are terminal.
type Table struct {
	// Transitions maps a source state to the set of states it may move to.
	// A source state present as a key with an empty set, or a state
	// present in Terminal, has no outgoing transitions.
	Transitions map[string]map[string]struct{}
	Terminal    map[string]struct{}
}

// Kernel holds one Table per registered Entity.
type Kernel struct {
	tables map[Entity]Table
}

// NewKernel constructs a kernel with the given entity tables pre-registered.
func NewKernel(tables map[Entity]Table) *Kernel {
	k := &Kernel{tables: make(map[Entity]Table, len(tables))}
	for entity, table := range tables {
		k.Register(entity, table)
	}
	return k
}

// Register adds or replaces the transition table for an entity.
func (k *Kernel) Register(entity Entity, table Table) {
	if k.tables == nil {
		k.tables = make(map[Entity]Table)
	}
	k.tables[entity] = table
}

// Validate checks whether from->to is a declared, non-terminal-origin
// transition for entity. It returns *InvalidTransitionError (also usable
// via errors.As) when the transition is not allowed.
func (k *Kernel) Validate(entity Entity, from, to string) error {
	table, ok := k.tables[entity]
	if !ok {
		return fmt.Errorf("statemachine: unknown entity %q", entity)
	}
	if _, terminal := table.Terminal[from]; terminal {
		return &InvalidTransitionError{Entity: entity, From: from, To: to}
	}
	allowed, ok := table.Transitions[from]
	if !ok {
		return &InvalidTransitionError{Entity: entity, From: from, To: to}
	}
	if _, ok := allowed[to]; !ok {
		return &InvalidTransitionError{Entity: entity, From: from, To: to}
	}
	return nil
}

// IsTerminal reports whether state is a sink state for entity.
func (k *Kernel) IsTerminal(entity Entity, state string) bool {
	table, ok := k.tables[entity]
	if !ok {
		return false
	}
	_, terminal := table.Terminal[state]
	return terminal
}

// transitions is a small builder helper for table literals in tables.go.
func transitions(pairs ...[]string) map[string]map[string]struct{} {
	out := make(map[string]map[string]struct{}, len(pairs))
	for _, pair := range pairs {
		from := pair[0]
		set, ok := out[from]
		if !ok {
			set = make(map[string]struct{})
			out[from] = set
		}
		for _, to := range pair[1:] {
			set[to] = struct{}{}
		}
	}
	return out
}

func terminalSet(states ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(states))
	for _, s := range states {
		out[s] = struct{}{}
	}
	return out
}
