package fraud

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fixedScoringProvider struct{ score float64 }

func (f fixedScoringProvider) Score(context.Context, Context) (ScoreResult, error) {
	return ScoreResult{Score: f.score, ModelVersion: "test-v1"}, nil
}

func conditionsJSON(t *testing.T, conditions []Condition) string {
	t.Helper()
	raw, err := json.Marshal(conditions)
	require.NoError(t, err)
	return string(raw)
}

func TestEvaluateAggregatesBlockOverReview(t *testing.T) {
	ctx := context.Background()
	store := setupFraud(t)

	version := RulesVersion{ID: "v-block-review", State: VersionDraft, CreatedBy: "analyst-1"}
	reviewRule := Rule{
		ID: "r-review", AppliesToContext: "TXN", Action: ActionReview, Priority: 1, ReasonCode: "HIGH_VELOCITY",
		ConditionsJSON: conditionsJSON(t, []Condition{{Field: "signal:VELOCITY_BREACH"}}),
	}
	blockRule := Rule{
		ID: "r-block", AppliesToContext: "TXN", Action: ActionBlock, Priority: 2, ReasonCode: "SCORE_TOO_HIGH", CreateCase: true,
		ConditionsJSON: conditionsJSON(t, []Condition{{Field: "score", Operator: OpGte, Value: 0.9}}),
	}
	require.NoError(t, store.CreateVersion(ctx, version, []Rule{reviewRule, blockRule}))
	require.NoError(t, store.ActivateVersion(ctx, "v-block-review", "checker-1", time.Now().UTC()))

	evaluator := NewEvaluator(store, fixedScoringProvider{score: 0.95})
	result, err := evaluator.Evaluate(ctx, Context{
		ContextType: "TXN", ActorType: "CUSTOMER", ActorID: "cust-1",
		AmountCents: 250_000, Currency: "USD", Signals: []string{"VELOCITY_BREACH"},
	})
	require.NoError(t, err)
	require.Equal(t, ActionBlock, result.Decision)
	require.Len(t, result.Matched, 2)
	require.Len(t, result.CasesOpened, 1)
	require.Equal(t, "SCORE_TOO_HIGH", result.CasesOpened[0].ReasonCode)
}

func TestEvaluateAllowsWhenNoRuleMatches(t *testing.T) {
	ctx := context.Background()
	store := setupFraud(t)

	version := RulesVersion{ID: "v-allow", State: VersionDraft, CreatedBy: "analyst-1"}
	rule := Rule{
		ID: "r-allow", AppliesToContext: "TXN", Action: ActionBlock, Priority: 1,
		ConditionsJSON: conditionsJSON(t, []Condition{{Field: "score", Operator: OpGte, Value: 0.99}}),
	}
	require.NoError(t, store.CreateVersion(ctx, version, []Rule{rule}))
	require.NoError(t, store.ActivateVersion(ctx, "v-allow", "checker-1", time.Now().UTC()))

	evaluator := NewEvaluator(store, fixedScoringProvider{score: 0.1})
	result, err := evaluator.Evaluate(ctx, Context{ContextType: "TXN", AmountCents: 1000, Currency: "USD"})
	require.NoError(t, err)
	require.Equal(t, ActionAllow, result.Decision)
	require.Empty(t, result.Matched)
}

func TestEvaluateWithNoActiveVersionAllows(t *testing.T) {
	ctx := context.Background()
	store := setupFraud(t)
	evaluator := NewEvaluator(store, nil)
	result, err := evaluator.Evaluate(ctx, Context{ContextType: "TXN"})
	require.NoError(t, err)
	require.Equal(t, ActionAllow, result.Decision)
}

func TestEvaluateIgnoresRulesForOtherContextType(t *testing.T) {
	ctx := context.Background()
	store := setupFraud(t)
	version := RulesVersion{ID: "v-ctx", State: VersionDraft, CreatedBy: "analyst-1"}
	rule := Rule{
		ID: "r-ctx", AppliesToContext: "PAYOUT", Action: ActionBlock, Priority: 1,
		ConditionsJSON: conditionsJSON(t, []Condition{}),
	}
	require.NoError(t, store.CreateVersion(ctx, version, []Rule{rule}))
	require.NoError(t, store.ActivateVersion(ctx, "v-ctx", "checker-1", time.Now().UTC()))

	evaluator := NewEvaluator(store, nil)
	result, err := evaluator.Evaluate(ctx, Context{ContextType: "TXN"})
	require.NoError(t, err)
	require.Equal(t, ActionAllow, result.Decision)
	require.Empty(t, result.Matched)
}
