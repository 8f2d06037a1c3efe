package approval

import (
	"context"
	"fmt"
	"sync"
	"time"

	"caricash/internal/audit"
	"caricash/internal/policy"
)

// ErrPolicyViolation wraps the two stage-authorization failure reasons
// §4.7 step 3 names explicitly.
type ErrPolicyViolation struct {
	Code   string // MAKER_CHECKER_REQUIRED | FORBIDDEN
	Reason string
}

func (e *ErrPolicyViolation) Error() string { return fmt.Sprintf("approval: %s: %s", e.Code, e.Reason) }

// Registry holds one Handler per approval_type.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry constructs an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register associates handler with approvalType, per §4.7's Register(approval_type, handler).
func (r *Registry) Register(approvalType string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[approvalType] = handler
}

func (r *Registry) lookup(approvalType string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[approvalType]
	return h, ok
}

// Engine is the Approval Workflow Engine (C9): it loads requests, checks
// stage authorization via C8, records decisions, advances or finalizes the
// workflow, and invokes the registered handler on a terminal outcome.
type Engine struct {
	store    *Store
	registry *Registry
	sink     *audit.Sink
	now      func() time.Time
}

// NewEngine wires the workflow engine. sink may be nil in tests that do
// not care about the audit trail.
func NewEngine(store *Store, registry *Registry, sink *audit.Sink) *Engine {
	return &Engine{store: store, registry: registry, sink: sink, now: func() time.Time { return time.Now().UTC() }}
}

// Open creates a new ApprovalRequest from a C8 match result (§4.7's
// "Request creation").
func (e *Engine) Open(ctx context.Context, approvalType, payloadJSON, makerID, makerRole, correlationID string, match policy.MatchResult, expiryMinutes *int) (Request, error) {
	var policyID string
	if match.Policy != nil {
		policyID = match.Policy.ID
	}
	req, err := e.store.Create(ctx, approvalType, payloadJSON, makerID, makerRole, policyID, correlationID, match.Stages, expiryMinutes)
	if err != nil {
		return Request{}, err
	}
	e.audit(ctx, "APPROVAL_REQUEST_OPENED", makerID, correlationID, map[string]interface{}{"request_id": req.ID, "approval_type": approvalType})
	e.event(ctx, "APPROVAL_REQUEST_OPENED", correlationID, "approval_request:"+req.ID, req)
	return req, nil
}

// Decide records a stage decision, per §4.7's "Approve at stage N" and
// "Reject at stage N" sequences (steps 1-6 combined into one call: the
// caller supplies the decider and the decision, Decide handles loading,
// authorization, recording, and advancing/finalizing).
func (e *Engine) Decide(ctx context.Context, requestID string, decision Decision, deciderID, deciderRole, reason string, previousApprovers []string, delegations []policy.Delegation) (Request, error) {
	req, err := e.store.Get(ctx, requestID)
	if err != nil {
		return Request{}, err
	}
	if req.State != StatePending {
		return Request{}, ErrNotPending
	}

	stages, err := e.store.Stages(ctx, requestID)
	if err != nil {
		return Request{}, err
	}
	stageIdx := req.CurrentStage - 1
	if stageIdx < 0 || stageIdx >= len(stages) {
		return Request{}, ErrWrongStage
	}
	stage := stages[stageIdx]

	if decision == DecisionApprove {
		auth := policy.StageAuthorized(policy.DecisionInput{
			Stage:             stage,
			ApprovalType:      req.ApprovalType,
			MakerID:           req.MakerID,
			PreviousApprovers: previousApprovers,
			DeciderID:         deciderID,
			DeciderRole:       deciderRole,
			Now:               e.now(),
			Delegations:       delegations,
		})
		if !auth.Allowed {
			code := "FORBIDDEN"
			if stage.ExcludeMaker && deciderID == req.MakerID {
				code = "MAKER_CHECKER_REQUIRED"
			}
			return Request{}, &ErrPolicyViolation{Code: code, Reason: auth.Reason}
		}
	}

	if _, err := e.store.RecordDecision(ctx, requestID, req.CurrentStage, decision, deciderID, deciderRole, reason); err != nil {
		return Request{}, err
	}
	e.audit(ctx, "APPROVAL_STAGE_DECISION", deciderID, req.CorrelationID, map[string]interface{}{
		"request_id": requestID, "stage_no": req.CurrentStage, "decision": decision,
	})

	if decision == DecisionReject {
		if err := e.store.Finalize(ctx, requestID, StateRejected); err != nil {
			return Request{}, err
		}
		req.State, req.WorkflowState = StateRejected, StateRejected
		final, err := e.store.Get(ctx, requestID)
		if err != nil {
			return Request{}, err
		}
		req.DecidedAt = final.DecidedAt
		e.runTerminalHandler(ctx, req, false)
		return req, nil
	}

	decisions, err := e.store.DecisionsAtStage(ctx, requestID, req.CurrentStage)
	if err != nil {
		return Request{}, err
	}
	approvals := countApprovals(decisions)
	if approvals < stage.MinApprovals {
		return req, nil
	}

	if req.CurrentStage < req.TotalStages {
		if err := e.store.AdvanceStage(ctx, requestID, req.CurrentStage+1); err != nil {
			return Request{}, err
		}
		req.CurrentStage++
		req.WorkflowState = StateStagePending
		return req, nil
	}

	if err := e.store.Finalize(ctx, requestID, StateApproved); err != nil {
		return Request{}, err
	}
	req.State, req.WorkflowState = StateApproved, StateApproved
	final, err := e.store.Get(ctx, requestID)
	if err != nil {
		return Request{}, err
	}
	req.DecidedAt = final.DecidedAt
	e.runTerminalHandler(ctx, req, true)
	return req, nil
}

// ExpireOverdue finalizes every request whose expiry_minutes window has
// elapsed, per §4.7's "Expiry" rule.
func (e *Engine) ExpireOverdue(ctx context.Context) (int, error) {
	expirable, err := e.store.ListExpirable(ctx, e.now())
	if err != nil {
		return 0, err
	}
	for _, req := range expirable {
		if err := e.store.Finalize(ctx, req.ID, StateExpired); err != nil {
			return 0, err
		}
		e.audit(ctx, "APPROVAL_REQUEST_EXPIRED", "", req.CorrelationID, map[string]interface{}{"request_id": req.ID})
		e.event(ctx, "APPROVAL_REQUEST_EXPIRED", req.CorrelationID, "approval_request:"+req.ID, req)
	}
	return len(expirable), nil
}

func (e *Engine) runTerminalHandler(ctx context.Context, req Request, approved bool) {
	handler, ok := e.registry.lookup(req.ApprovalType)
	decisions, _ := e.store.AllDecisions(ctx, req.ID)
	hctx := Context{Request: req, PayloadJSON: req.PayloadJSON, Decisions: decisions}

	eventType := "APPROVAL_REQUEST_REJECTED"
	if approved {
		eventType = "APPROVAL_REQUEST_APPROVED"
	}
	e.event(ctx, eventType, req.CorrelationID, "approval_request:"+req.ID, req)

	if !ok {
		return
	}
	var handlerErr error
	if approved && handler.OnApprove != nil {
		handlerErr = handler.OnApprove(hctx)
	} else if !approved && handler.OnReject != nil {
		handlerErr = handler.OnReject(hctx)
	}
	if handlerErr != nil {
		e.audit(ctx, "APPROVAL_HANDLER_ERROR", "", req.CorrelationID, map[string]interface{}{
			"request_id": req.ID, "approval_type": req.ApprovalType, "error": handlerErr.Error(),
		})
	}
}

func countApprovals(decisions []StageDecision) int {
	n := 0
	for _, d := range decisions {
		if d.Decision == DecisionApprove {
			n++
		}
	}
	return n
}

func (e *Engine) audit(ctx context.Context, action, actorID, correlationID string, details interface{}) {
	if e.sink == nil {
		return
	}
	_ = e.sink.RecordAudit(ctx, action, "STAFF", actorID, correlationID, details)
}

func (e *Engine) event(ctx context.Context, eventType, correlationID, subject string, payload interface{}) {
	if e.sink == nil {
		return
	}
	_ = e.sink.EmitEvent(ctx, eventType, correlationID, "", subject, payload)
}
