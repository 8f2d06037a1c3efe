// Package fraud implements the Fraud Rule Evaluator (C13): a declarative
// rule set evaluated over a transaction/actor context, with pluggable
// scoring, decision aggregation, and fraud-case spawning. Rule matching
// mirrors the condition grammar the Approval Policy Engine (internal/policy)
// already evaluates, scoped here to a fraud Context instead of a
// policy.MatchContext.
package fraud

import "time"

// Action is a matched rule's disposition.
type Action string

const (
	ActionAllow  Action = "ALLOW"
	ActionReview Action = "REVIEW"
	ActionBlock  Action = "BLOCK"
)

// rank orders actions for decision aggregation: BLOCK beats REVIEW beats
// ALLOW (§4.11).
func (a Action) rank() int {
	switch a {
	case ActionBlock:
		return 2
	case ActionReview:
		return 1
	default:
		return 0
	}
}

// VersionState is a FraudRulesVersion's lifecycle state.
type VersionState string

const (
	VersionDraft    VersionState = "DRAFT"
	VersionActive   VersionState = "ACTIVE"
	VersionInactive VersionState = "INACTIVE"
)

// Operator is a rule condition's comparison operator: the closed set
// internal/policy.Operator evaluates, minus exists.
type Operator string

const (
	OpEq       Operator = "eq"
	OpNeq      Operator = "neq"
	OpGt       Operator = "gt"
	OpGte      Operator = "gte"
	OpLt       Operator = "lt"
	OpLte      Operator = "lte"
	OpIn       Operator = "in"
	OpNotIn    Operator = "not_in"
	OpContains Operator = "contains"
	OpRegex    Operator = "regex"
	OpBetween  Operator = "between"
)

// Condition is one (field, operator, value) predicate evaluated against a
// Context. Field is one of context_type, actor_type, actor_id, currency,
// amount_cents, score, or "signal:<name>" to test signal membership.
type Condition struct {
	Field    string      `yaml:"field" json:"field"`
	Operator Operator    `yaml:"operator" json:"operator"`
	Value    interface{} `yaml:"value" json:"value"`
}

// RulesVersion is a FraudRulesVersion row (§3): exactly one row is ACTIVE
// at any time, and activation is a governed maker-checker action.
type RulesVersion struct {
	ID          string `gorm:"primaryKey;column:id"`
	State       VersionState
	Label       string
	CreatedBy   string `gorm:"column:created_by"`
	ApprovedBy  string `gorm:"column:approved_by"`
	CreatedAt   time.Time
	ActivatedAt *time.Time `gorm:"column:activated_at"`
}

func (RulesVersion) TableName() string { return "fraud_rules_versions" }

// Rule is a FraudRule row (§3).
type Rule struct {
	ID               string `gorm:"primaryKey;column:id"`
	VersionID        string `gorm:"column:version_id;index"`
	AppliesToContext string `gorm:"column:applies_to_context"` // TXN | BANK_DEPOSIT | PAYOUT | ...
	Severity         string
	Action           Action
	ConditionsJSON   string `gorm:"column:conditions_json"`
	Priority         int
	ReasonCode       string `gorm:"column:reason_code"`
	CreateCase       bool   `gorm:"column:create_case"`
}

func (Rule) TableName() string { return "fraud_rules" }

// Case is a fraud case spawned by a matched create_case=true rule.
type Case struct {
	ID         string `gorm:"primaryKey;column:id"`
	RuleID     string `gorm:"column:rule_id;index"`
	ContextType string `gorm:"column:context_type"`
	ActorType  string `gorm:"column:actor_type"`
	ActorID    string `gorm:"column:actor_id;index"`
	ReasonCode string `gorm:"column:reason_code"`
	CreatedAt  time.Time
}

func (Case) TableName() string { return "fraud_cases" }

// Context is the evaluation input (§4.11): "{context_type, actor_type,
// actor_id, amount, currency, signals[]}" plus the score ScoringProvider
// attaches before rule evaluation.
type Context struct {
	ContextType string
	ActorType   string
	ActorID     string
	AmountCents int64
	Currency    string
	Signals     []string
	CorrelationID string

	Score float64
}

// ScoreResult is what a ScoringProvider returns (§4.11, §6's "optional ML
// scoring provider").
type ScoreResult struct {
	Score           float64
	ModelVersion    string
	ExplanationJSON string
}

// MatchedRule records one rule that matched, for the evaluation trace.
type MatchedRule struct {
	Rule   Rule
	Reason string
}

// Result is the outcome of Evaluator.Evaluate.
type Result struct {
	Decision    Action
	Matched     []MatchedRule
	CasesOpened []Case
	Score       ScoreResult
}
