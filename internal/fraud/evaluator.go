package fraud

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"caricash/internal/idgen"
)

// Evaluator is the Fraud Rule Evaluator (C13): it loads the currently-ACTIVE
// rules version, scores the context, evaluates matching rules in priority
// order, and aggregates a decision (§4.11).
type Evaluator struct {
	store   *Store
	scoring ScoringProvider
	now     func() time.Time
}

// NewEvaluator wires an Evaluator. scoring may be NoopScoringProvider{}
// when no external scoring endpoint is configured.
func NewEvaluator(store *Store, scoring ScoringProvider) *Evaluator {
	if scoring == nil {
		scoring = NoopScoringProvider{}
	}
	return &Evaluator{store: store, scoring: scoring, now: func() time.Time { return time.Now().UTC() }}
}

// Evaluate runs the ACTIVE rules version against fctx and returns the
// aggregated decision plus every matched rule and fraud case opened. A
// missing ACTIVE version is not an error: it evaluates to ALLOW with no
// matches, since §4.11 describes no rules version as "nothing configured
// yet", not a fail-closed condition.
func (e *Evaluator) Evaluate(ctx context.Context, fctx Context) (Result, error) {
	version, err := e.store.ActiveVersion(ctx)
	if err != nil {
		return Result{Decision: ActionAllow}, nil
	}

	score, err := e.scoring.Score(ctx, fctx)
	if err != nil {
		return Result{}, fmt.Errorf("fraud: score: %w", err)
	}
	fctx.Score = score.Score

	rules, err := e.store.RulesForVersion(ctx, version.ID)
	if err != nil {
		return Result{}, fmt.Errorf("fraud: load rules: %w", err)
	}

	result := Result{Decision: ActionAllow, Score: score}
	for _, rule := range rules {
		if rule.AppliesToContext != "" && rule.AppliesToContext != fctx.ContextType {
			continue
		}
		var conditions []Condition
		if rule.ConditionsJSON != "" {
			if err := json.Unmarshal([]byte(rule.ConditionsJSON), &conditions); err != nil {
				return Result{}, fmt.Errorf("fraud: decode conditions for rule %s: %w", rule.ID, err)
			}
		}
		ok, reason := evaluateConditions(conditions, fctx)
		if !ok {
			continue
		}
		result.Matched = append(result.Matched, MatchedRule{Rule: rule, Reason: reason})
		if rule.Action.rank() > result.Decision.rank() {
			result.Decision = rule.Action
		}
		if rule.CreateCase {
			c := Case{
				ID: idgen.New(), RuleID: rule.ID, ContextType: fctx.ContextType,
				ActorType: fctx.ActorType, ActorID: fctx.ActorID, ReasonCode: rule.ReasonCode,
				CreatedAt: e.now(),
			}
			if err := e.store.RecordCase(ctx, c); err != nil {
				return Result{}, fmt.Errorf("fraud: record case for rule %s: %w", rule.ID, err)
			}
			result.CasesOpened = append(result.CasesOpened, c)
		}
	}
	return result, nil
}
