// Package approval implements the Approval Workflow Engine (C9): the
// ApprovalRequest lifecycle that consumes a policy.MatchResult from C8 and
// drives stage-by-stage decisions through to a terminal state, invoking a
// registered handler on final approval or rejection.
package approval

import (
	"time"

	"caricash/internal/policy"
)

// State is an ApprovalRequest's lifecycle state (§3, §4.7).
type State string

const (
	StatePending      State = "PENDING"
	StateStagePending State = "STAGE_PENDING"
	StateApproved     State = "APPROVED"
	StateRejected     State = "REJECTED"
	StateExpired      State = "EXPIRED"
)

// Decision is the outcome recorded by a StageDecision.
type Decision string

const (
	DecisionApprove Decision = "APPROVE"
	DecisionReject  Decision = "REJECT"
)

// Request is an ApprovalRequest row (§3).
type Request struct {
	ID            string `gorm:"primaryKey;column:id"`
	ApprovalType  string `gorm:"column:approval_type;index"`
	PayloadJSON   string `gorm:"column:payload_json"`
	MakerID       string `gorm:"column:maker_id"`
	MakerRole     string `gorm:"column:maker_role"`
	State         State  `gorm:"column:state;index"`
	PolicyID      string `gorm:"column:policy_id"`
	CurrentStage  int    `gorm:"column:current_stage"`
	TotalStages   int    `gorm:"column:total_stages"`
	WorkflowState State  `gorm:"column:workflow_state"`
	CorrelationID string `gorm:"column:correlation_id;index"`
	ExpiryMinutes *int   `gorm:"column:expiry_minutes"`
	CreatedAt     time.Time
	DecidedAt     *time.Time `gorm:"column:decided_at"`
}

func (Request) TableName() string { return "approval_requests" }

// RequestStages is stored alongside Request so the approved policy's exact
// stage specs survive policy edits made after the request was created.
type RequestStages struct {
	RequestID string `gorm:"primaryKey;column:request_id"`
	StagesJSON string `gorm:"column:stages_json"`
}

func (RequestStages) TableName() string { return "approval_request_stages" }

// StageDecision is one recorded decision at one stage (§4.7 step 4).
type StageDecision struct {
	ID          string    `gorm:"primaryKey;column:id"`
	RequestID   string    `gorm:"column:request_id;index"`
	StageNo     int       `gorm:"column:stage_no"`
	Decision    Decision  `gorm:"column:decision"`
	DeciderID   string    `gorm:"column:decider_id"`
	DeciderRole string    `gorm:"column:decider_role"`
	Reason      string    `gorm:"column:reason"`
	DecidedAt   time.Time `gorm:"column:decided_at"`
}

func (StageDecision) TableName() string { return "approval_stage_decisions" }

// Handler implements the side effects a given approval_type runs once the
// request reaches a terminal state (§4.7's handler registry). A nil
// OnApprove is "pure approval gate" -- no side effects beyond the state
// transition itself.
type Handler struct {
	Label               string
	AllowedCheckerRoles []string
	OnApprove           func(ctx Context) error
	OnReject            func(ctx Context) error
	EventNames          []string
	AuditActions        []string
}

// Context carries everything a Handler needs to execute its side effect:
// the finalized request plus the raw JSON payload it was opened with.
type Context struct {
	Request     Request
	PayloadJSON string
	Decisions   []StageDecision
}

// Stage is policy.Stage -- the workflow engine consumes stage specs
// exactly as C8 computed them for the matched policy.
type Stage = policy.Stage
