package policy

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Engine evaluates ApprovalPolicies against a MatchContext, per §4.6.
type Engine struct{}

// NewEngine constructs a stateless policy Engine; policies are supplied by
// the caller (loaded from storage or YAML fixtures) on every call.
func NewEngine() *Engine { return &Engine{} }

// Match loads all ACTIVE policies for ctx.ApprovalType (plus typeless
// policies) ordered by priority ascending then created_at, and returns the
// first match plus the full per-policy evaluation trace. No match yields
// the implicit single-stage policy.
func (e *Engine) Match(policies []Policy, mctx MatchContext) MatchResult {
	candidates := make([]Policy, 0, len(policies))
	for _, p := range policies {
		if p.State != StateActive {
			continue
		}
		if p.ApprovalType != "" && p.ApprovalType != mctx.ApprovalType {
			continue
		}
		candidates = append(candidates, p)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority < candidates[j].Priority
		}
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})

	var trace []EvalTrace
	var matched *Policy
	for i := range candidates {
		p := candidates[i]
		ok, reason := evaluatePolicy(p, mctx)
		trace = append(trace, EvalTrace{PolicyID: p.ID, Matched: ok, Reason: reason})
		if ok && matched == nil {
			matched = &p
		}
	}
	if matched == nil {
		return MatchResult{Stages: implicitPolicy(), Implicit: true, Trace: trace}
	}
	return MatchResult{Policy: matched, Stages: matched.Stages, Trace: trace}
}

// Simulate is Match without side effects -- Match already has none, so
// Simulate is a thin alias kept so callers reading §4.6 find the name
// they expect at the /policies/simulate boundary.
func (e *Engine) Simulate(policies []Policy, mctx MatchContext) MatchResult {
	return e.Match(policies, mctx)
}

// evaluatePolicy runs the four-step match algorithm in order, short
// circuiting at the first failing step.
func evaluatePolicy(p Policy, mctx MatchContext) (bool, string) {
	if p.ApprovalType != "" && p.ApprovalType != mctx.ApprovalType {
		return false, "type mismatch"
	}
	if ok, reason := timeConstraintsSatisfied(p, mctx.Now); !ok {
		return false, reason
	}
	if ok, reason := anyBindingMatches(p.Bindings, mctx); !ok {
		return false, reason
	}
	if ok, reason := allConditionsMatch(p.Conditions, mctx); !ok {
		return false, reason
	}
	return true, "matched"
}

func timeConstraintsSatisfied(p Policy, now time.Time) (bool, string) {
	if p.ValidFrom != nil && now.Before(*p.ValidFrom) {
		return false, "before valid_from"
	}
	if p.ValidTo != nil && now.After(*p.ValidTo) {
		return false, "after valid_to"
	}
	tc := p.TimeConstraints
	if tc == nil {
		return true, ""
	}
	if len(tc.Weekdays) > 0 {
		isoWeekday := int(now.Weekday())
		if isoWeekday == 0 {
			isoWeekday = 7
		}
		if !containsInt(tc.Weekdays, isoWeekday) {
			return false, "weekday not permitted"
		}
	}
	if tc.ActiveFromTime != "" && tc.ActiveToTime != "" {
		nowMinutes := now.UTC().Hour()*60 + now.UTC().Minute()
		from, errF := parseHHMM(tc.ActiveFromTime)
		to, errT := parseHHMM(tc.ActiveToTime)
		if errF == nil && errT == nil {
			if from <= to {
				if nowMinutes < from || nowMinutes > to {
					return false, "outside active time window"
				}
			} else {
				// window wraps midnight
				if nowMinutes < from && nowMinutes > to {
					return false, "outside active time window"
				}
			}
		}
	}
	today := now.UTC().Format("2006-01-02")
	for _, blackout := range tc.BlackoutDates {
		if blackout == today {
			return false, "blackout date"
		}
	}
	return true, ""
}

func parseHHMM(s string) (int, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("policy: invalid HH:MM %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, err
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, err
	}
	return h*60 + m, nil
}

func containsInt(haystack []int, needle int) bool {
	for _, v := range haystack {
		if v == needle {
			return true
		}
	}
	return false
}

func anyBindingMatches(bindings []Binding, mctx MatchContext) (bool, string) {
	if len(bindings) == 0 {
		return true, ""
	}
	for _, b := range bindings {
		switch b.Type {
		case BindingAll:
			return true, ""
		case BindingActor:
			if b.Value == mctx.ActorID {
				return true, ""
			}
		case BindingActorType:
			if b.Value == mctx.ActorType {
				return true, ""
			}
		case BindingRole:
			if b.Value == mctx.StaffRole {
				return true, ""
			}
		case BindingCurrency:
			if b.Value == mctx.Currency {
				return true, ""
			}
		case BindingHierarchy:
			if b.Value == mctx.ParentID {
				return true, ""
			}
		case BindingBusinessUnit:
			if b.Value == mctx.BusinessUnit {
				return true, ""
			}
		}
	}
	return false, "no binding matched"
}

func allConditionsMatch(conditions []Condition, mctx MatchContext) (bool, string) {
	for _, c := range conditions {
		actual, exists := resolveField(c.Field, mctx)
		if c.Operator == OpExists {
			if exists != truthy(c.Value) {
				return false, fmt.Sprintf("condition %s exists mismatch", c.Field)
			}
			continue
		}
		if !exists {
			return false, fmt.Sprintf("condition field %s not found", c.Field)
		}
		if !compare(actual, c.Operator, c.Value) {
			return false, fmt.Sprintf("condition %s %s failed", c.Field, c.Operator)
		}
	}
	return true, ""
}

func truthy(v interface{}) bool {
	b, ok := v.(bool)
	return ok && b
}

func resolveField(field string, mctx MatchContext) (interface{}, bool) {
	switch field {
	case "approval_type":
		return mctx.ApprovalType, true
	case "actor_type":
		return mctx.ActorType, true
	case "actor_id":
		return mctx.ActorID, true
	case "staff_role":
		return mctx.StaffRole, true
	}
	if strings.HasPrefix(field, "payload.") {
		path := strings.TrimPrefix(field, "payload.")
		return lookupPath(mctx.Payload, strings.Split(path, "."))
	}
	return nil, false
}

func lookupPath(m map[string]interface{}, path []string) (interface{}, bool) {
	if m == nil || len(path) == 0 {
		return nil, false
	}
	v, ok := m[path[0]]
	if !ok {
		return nil, false
	}
	if len(path) == 1 {
		return v, true
	}
	next, ok := v.(map[string]interface{})
	if !ok {
		return nil, false
	}
	return lookupPath(next, path[1:])
}

func compare(actual interface{}, op Operator, expected interface{}) bool {
	switch op {
	case OpEq:
		return fmt.Sprint(actual) == fmt.Sprint(expected)
	case OpNeq:
		return fmt.Sprint(actual) != fmt.Sprint(expected)
	case OpGt, OpGte, OpLt, OpLte:
		a, okA := toFloat(actual)
		b, okB := toFloat(expected)
		if !okA || !okB {
			return false
		}
		switch op {
		case OpGt:
			return a > b
		case OpGte:
			return a >= b
		case OpLt:
			return a < b
		default:
			return a <= b
		}
	case OpIn, OpNotIn:
		list, ok := expected.([]interface{})
		found := false
		if ok {
			for _, v := range list {
				if fmt.Sprint(v) == fmt.Sprint(actual) {
					found = true
					break
				}
			}
		}
		if op == OpIn {
			return found
		}
		return !found
	case OpContains:
		return strings.Contains(fmt.Sprint(actual), fmt.Sprint(expected))
	case OpRegex:
		re, err := regexp.Compile(fmt.Sprint(expected))
		if err != nil {
			return false
		}
		return re.MatchString(fmt.Sprint(actual))
	case OpBetween:
		bounds, ok := expected.([]interface{})
		if !ok || len(bounds) != 2 {
			return false
		}
		a, okA := toFloat(actual)
		lo, okLo := toFloat(bounds[0])
		hi, okHi := toFloat(bounds[1])
		return okA && okLo && okHi && a >= lo && a <= hi
	default:
		return false
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
