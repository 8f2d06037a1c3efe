package fraud

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// evaluateConditions reports whether every condition matches ctx; fields
// not recognized resolve as not-found and fail the rule.
func evaluateConditions(conditions []Condition, ctx Context) (bool, string) {
	for _, c := range conditions {
		actual, ok := resolveField(c.Field, ctx)
		if !ok {
			return false, fmt.Sprintf("condition field %s not found", c.Field)
		}
		if !compare(actual, c.Operator, c.Value) {
			return false, fmt.Sprintf("condition %s %s failed", c.Field, c.Operator)
		}
	}
	return true, ""
}

func resolveField(field string, ctx Context) (interface{}, bool) {
	switch field {
	case "context_type":
		return ctx.ContextType, true
	case "actor_type":
		return ctx.ActorType, true
	case "actor_id":
		return ctx.ActorID, true
	case "currency":
		return ctx.Currency, true
	case "amount_cents":
		return ctx.AmountCents, true
	case "score":
		return ctx.Score, true
	}
	if strings.HasPrefix(field, "signal:") {
		name := strings.TrimPrefix(field, "signal:")
		return hasSignal(ctx.Signals, name), true
	}
	return nil, false
}

func hasSignal(signals []string, name string) bool {
	for _, s := range signals {
		if s == name {
			return true
		}
	}
	return false
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
	case "":
		// A bare field (e.g. signal:<name>) matches when it resolves to true.
		b, ok := actual.(bool)
		return ok && b
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
