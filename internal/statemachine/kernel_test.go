package statemachine

import (
	"errors"
	"testing"
)

func newTestKernel() *Kernel {
	return NewKernel(DefaultTables())
}

func TestValidTransitionsAllowed(t *testing.T) {
	k := newTestKernel()
	cases := []struct {
		entity   Entity
		from, to string
	}{
		{EntityStatementEntry, "NEW", "CANDIDATE_MATCHED"},
		{EntityExternalTransfer, "FAILED", "CREATED"},
		{EntitySettlementBatch, "PROCESSING", "COMPLETED"},
		{EntityPayout, "REQUESTED", "APPROVED"},
		{EntityBeneficiary, "ACTIVE", "UPDATE_PENDING_VERIFICATION"},
		{EntityReconciliationCase, "OPEN", "INVESTIGATING"},
		{EntityLedgerJournal, "POSTED", "VOID_REQUESTED"},
	}
	for _, c := range cases {
		if err := k.Validate(c.entity, c.from, c.to); err != nil {
			t.Errorf("%s %s->%s should be valid: %v", c.entity, c.from, c.to, err)
		}
	}
}

func TestTerminalStatesRejectOutgoing(t *testing.T) {
	k := newTestKernel()
	terminalCases := []struct {
		entity Entity
		state  string
	}{
		{EntityStatementEntry, "SETTLED"},
		{EntityStatementEntry, "RESOLVED"},
		{EntityExternalTransfer, "SETTLED"},
		{EntitySettlementBatch, "COMPLETED"},
		{EntityPayout, "SETTLED"},
		{EntityBeneficiary, "REJECTED"},
		{EntityReconciliationCase, "RESOLVED"},
	}
	for _, c := range terminalCases {
		if !k.IsTerminal(c.entity, c.state) {
			t.Errorf("%s state %s should be terminal", c.entity, c.state)
		}
		err := k.Validate(c.entity, c.state, "ANYTHING")
		var invalid *InvalidTransitionError
		if !errors.As(err, &invalid) {
			t.Errorf("expected InvalidTransitionError out of terminal state %s/%s, got %v", c.entity, c.state, err)
		}
	}
}

func TestUndeclaredTransitionRejected(t *testing.T) {
	k := newTestKernel()
	err := k.Validate(EntityPayout, "REQUESTED", "SETTLED")
	var invalid *InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
}

func TestUnknownEntity(t *testing.T) {
	k := newTestKernel()
	if err := k.Validate("NOT_REGISTERED", "A", "B"); err == nil {
		t.Fatal("expected error for unknown entity")
	}
}
