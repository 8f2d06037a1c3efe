// Package policy implements the Approval Policy & Workflow Engine's
// matching half (C8): policy/stage/binding/condition/delegation types and
// the match + stage-authorization algorithms from §4.6. The workflow
// lifecycle that consumes a matched policy lives in internal/approval.
package policy

import "time"

// State is a policy's lifecycle state.
type State string

const (
	StateDraft    State = "DRAFT"
	StateActive   State = "ACTIVE"
	StateInactive State = "INACTIVE"
	StateArchived State = "ARCHIVED"
)

// Operator is a condition comparison operator.
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
	OpExists   Operator = "exists"
)

// Condition is one (field, operator, value) predicate evaluated against a
// MatchContext. Field is either a top-level key (approval_type, actor_type,
// actor_id, staff_role) or a "payload.<path>" dotted lookup.
type Condition struct {
	Field    string      `yaml:"field" json:"field"`
	Operator Operator    `yaml:"operator" json:"operator"`
	Value    interface{} `yaml:"value" json:"value"`
}

// BindingType is the closed set of binding kinds evaluated OR-wise.
type BindingType string

const (
	BindingAll          BindingType = "all"
	BindingActor        BindingType = "actor"
	BindingActorType    BindingType = "actor_type"
	BindingRole         BindingType = "role"
	BindingCurrency     BindingType = "currency"
	BindingHierarchy    BindingType = "hierarchy"
	BindingBusinessUnit BindingType = "business_unit"
)

// Binding is one policy-applicability rule; a policy matches if ANY of its
// bindings match the request.
type Binding struct {
	Type  BindingType `yaml:"type" json:"type"`
	Value string      `yaml:"value" json:"value"`
}

// Stage is one maker-checker approval stage within a policy.
type Stage struct {
	StageNo                  int      `yaml:"stage_no" json:"stage_no"`
	MinApprovals             int      `yaml:"min_approvals" json:"min_approvals"`
	AllowedRoles             []string `yaml:"allowed_roles" json:"allowed_roles"`
	AllowedActorIDs          []string `yaml:"allowed_actor_ids" json:"allowed_actor_ids"`
	ExcludeMaker             bool     `yaml:"exclude_maker" json:"exclude_maker"`
	ExcludePreviousApprovers bool     `yaml:"exclude_previous_approvers" json:"exclude_previous_approvers"`
	TimeoutMinutes           *int     `yaml:"timeout_minutes,omitempty" json:"timeout_minutes,omitempty"`
	EscalationRoles          []string `yaml:"escalation_roles" json:"escalation_roles"`
	EscalationActorIDs       []string `yaml:"escalation_actor_ids" json:"escalation_actor_ids"`
}

// TimeConstraints is the decoded shape of a policy's time_constraints_json.
type TimeConstraints struct {
	Weekdays       []int    `yaml:"weekdays,omitempty" json:"weekdays,omitempty"` // ISO 1-7
	ActiveFromTime string   `yaml:"active_from_time,omitempty" json:"active_from_time,omitempty"` // HH:MM UTC
	ActiveToTime   string   `yaml:"active_to_time,omitempty" json:"active_to_time,omitempty"`
	BlackoutDates  []string `yaml:"blackout_dates,omitempty" json:"blackout_dates,omitempty"` // YYYY-MM-DD
}

// Policy is an ApprovalPolicy (§3) together with its child sets.
type Policy struct {
	ID                string    `yaml:"id" json:"id" gorm:"primaryKey;column:id"`
	Name              string    `yaml:"name" json:"name"`
	ApprovalType      string    `yaml:"approval_type" json:"approval_type"`
	Priority          int       `yaml:"priority" json:"priority"`
	State             State     `yaml:"state" json:"state"`
	Version           int       `yaml:"version" json:"version"`
	ValidFrom         *time.Time `yaml:"valid_from,omitempty" json:"valid_from,omitempty"`
	ValidTo           *time.Time `yaml:"valid_to,omitempty" json:"valid_to,omitempty"`
	TimeConstraints   *TimeConstraints `yaml:"time_constraints,omitempty" json:"time_constraints,omitempty" gorm:"-"`
	ExpiryMinutes     *int      `yaml:"expiry_minutes,omitempty" json:"expiry_minutes,omitempty"`
	EscalationMinutes *int      `yaml:"escalation_minutes,omitempty" json:"escalation_minutes,omitempty"`
	Conditions        []Condition `yaml:"conditions" json:"conditions" gorm:"-"`
	Stages            []Stage     `yaml:"stages" json:"stages" gorm:"-"`
	Bindings          []Binding   `yaml:"bindings" json:"bindings" gorm:"-"`
	CreatedAt         time.Time   `yaml:"-" json:"created_at"`
}

func (Policy) TableName() string { return "approval_policies" }

// DelegationState is an ApprovalDelegation's lifecycle state.
type DelegationState string

const (
	DelegationActive  DelegationState = "ACTIVE"
	DelegationRevoked DelegationState = "REVOKED"
	DelegationExpired DelegationState = "EXPIRED"
)

// Delegation grants DelegateID the delegator's Role/ActorID authorization
// for an approval_type within a time window (§3's ApprovalDelegation).
type Delegation struct {
	ID           string          `gorm:"primaryKey;column:id"`
	DelegatorID  string          `gorm:"column:delegator_id"`
	DelegateID   string          `gorm:"column:delegate_id;index"`
	Role         string          `gorm:"column:role"`
	ActorID      string          `gorm:"column:actor_id"`
	ApprovalType string          `gorm:"column:approval_type"`
	State        DelegationState `gorm:"column:state"`
	ValidFrom    time.Time       `gorm:"column:valid_from"`
	ValidTo      time.Time       `gorm:"column:valid_to"`
}

func (Delegation) TableName() string { return "delegations" }

// Grants reports whether the delegation is ACTIVE, covers at and
// approvalType, was extended to delegateID, and grants the role or
// actor-id binding a stage requires.
func (d Delegation) Grants(at time.Time, approvalType, delegateID string, requiredRoles, requiredActorIDs []string) bool {
	if d.State != "" && d.State != DelegationActive {
		return false
	}
	if d.DelegateID != delegateID {
		return false
	}
	if d.ApprovalType != "" && d.ApprovalType != approvalType {
		return false
	}
	if at.Before(d.ValidFrom) || at.After(d.ValidTo) {
		return false
	}
	if len(requiredRoles) > 0 && d.Role != "" && containsStr(requiredRoles, d.Role) {
		return true
	}
	if len(requiredActorIDs) > 0 && d.ActorID != "" && containsStr(requiredActorIDs, d.ActorID) {
		return true
	}
	return false
}

func containsStr(haystack []string, needle string) bool {
	for _, v := range haystack {
		if v == needle {
			return true
		}
	}
	return false
}

// MatchContext is the request-time context a policy is evaluated against.
type MatchContext struct {
	ApprovalType string
	ActorType    string
	ActorID      string
	StaffRole    string
	Currency     string
	ParentID     string // hierarchy binding: payload's parent/merchant id
	BusinessUnit string
	Payload      map[string]interface{}
	Now          time.Time
}

// EvalTrace records why one policy did or did not match, for /explain.
type EvalTrace struct {
	PolicyID string `json:"policy_id"`
	Matched  bool   `json:"matched"`
	Reason   string `json:"reason"`
}

// MatchResult is the outcome of Match/Simulate.
type MatchResult struct {
	Policy     *Policy     `json:"policy,omitempty"`
	Stages     []Stage     `json:"stages"`
	Implicit   bool        `json:"implicit"`
	Trace      []EvalTrace `json:"trace"`
}

// implicitPolicy is the fallback used when no configured policy matches:
// a single stage, one checker, maker != checker (§4.6).
func implicitPolicy() []Stage {
	return []Stage{{StageNo: 1, MinApprovals: 1, ExcludeMaker: true}}
}
