package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMatchSelectsHighestPriorityMatchingPolicy(t *testing.T) {
	now := time.Date(2026, 7, 29, 12, 0, 0, 0, time.UTC) // Wednesday
	policies := []Policy{
		{
			ID: "low-priority", ApprovalType: "BANK_TRANSFER", State: StateActive, Priority: 10,
			Bindings: []Binding{{Type: BindingAll}},
		},
		{
			ID: "high-priority", ApprovalType: "BANK_TRANSFER", State: StateActive, Priority: 1,
			Bindings: []Binding{{Type: BindingCurrency, Value: "USD"}},
		},
	}
	mctx := MatchContext{ApprovalType: "BANK_TRANSFER", Currency: "USD", Now: now}

	result := NewEngine().Match(policies, mctx)
	require.False(t, result.Implicit)
	require.NotNil(t, result.Policy)
	require.Equal(t, "high-priority", result.Policy.ID)
	require.Len(t, result.Trace, 2)
}

func TestMatchFallsBackToImplicitPolicyWhenNoneMatch(t *testing.T) {
	now := time.Date(2026, 7, 29, 12, 0, 0, 0, time.UTC)
	policies := []Policy{
		{ID: "wrong-type", ApprovalType: "PAYOUT", State: StateActive, Priority: 1},
	}
	mctx := MatchContext{ApprovalType: "BANK_TRANSFER", Now: now}

	result := NewEngine().Match(policies, mctx)
	require.True(t, result.Implicit)
	require.Nil(t, result.Policy)
	require.Equal(t, []Stage{{StageNo: 1, MinApprovals: 1, ExcludeMaker: true}}, result.Stages)
}

func TestMatchSkipsInactivePolicies(t *testing.T) {
	policies := []Policy{
		{ID: "draft", ApprovalType: "PAYOUT", State: StateDraft, Priority: 1},
	}
	result := NewEngine().Match(policies, MatchContext{ApprovalType: "PAYOUT", Now: time.Now()})
	require.True(t, result.Implicit)
}

func TestMatchAppliesWeekdayTimeConstraint(t *testing.T) {
	sunday := time.Date(2026, 8, 2, 12, 0, 0, 0, time.UTC) // Sunday
	policies := []Policy{
		{
			ID: "weekdays-only", ApprovalType: "PAYOUT", State: StateActive, Priority: 1,
			TimeConstraints: &TimeConstraints{Weekdays: []int{1, 2, 3, 4, 5}},
		},
	}
	result := NewEngine().Match(policies, MatchContext{ApprovalType: "PAYOUT", Now: sunday})
	require.True(t, result.Implicit)
	require.False(t, result.Trace[0].Matched)
}

func TestMatchEvaluatesConditionsWithPayloadPath(t *testing.T) {
	policies := []Policy{
		{
			ID: "large-amount", ApprovalType: "PAYOUT", State: StateActive, Priority: 1,
			Conditions: []Condition{{Field: "payload.amount_cents", Operator: OpGte, Value: float64(100000)}},
		},
	}
	mctxMatch := MatchContext{
		ApprovalType: "PAYOUT", Now: time.Now(),
		Payload: map[string]interface{}{"amount_cents": float64(250000)},
	}
	result := NewEngine().Match(policies, mctxMatch)
	require.False(t, result.Implicit)

	mctxNoMatch := MatchContext{
		ApprovalType: "PAYOUT", Now: time.Now(),
		Payload: map[string]interface{}{"amount_cents": float64(500)},
	}
	result = NewEngine().Match(policies, mctxNoMatch)
	require.True(t, result.Implicit)
}

func TestMatchBlackoutDateExcludesPolicy(t *testing.T) {
	today := time.Date(2026, 12, 25, 10, 0, 0, 0, time.UTC)
	policies := []Policy{
		{
			ID: "no-holidays", ApprovalType: "PAYOUT", State: StateActive, Priority: 1,
			TimeConstraints: &TimeConstraints{BlackoutDates: []string{"2026-12-25"}},
		},
	}
	result := NewEngine().Match(policies, MatchContext{ApprovalType: "PAYOUT", Now: today})
	require.True(t, result.Implicit)
}
