package approval

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"

	"caricash/internal/idgen"
)

// ErrNotPending is returned when a decision is attempted against a request
// that is no longer in a decidable state.
var ErrNotPending = errors.New("approval: request is not PENDING/STAGE_PENDING")

// ErrWrongStage is returned when a decision targets a stage other than the
// request's current_stage.
var ErrWrongStage = errors.New("approval: decision targets a stage other than the current one")

// Store is the gorm-backed persistence layer for ApprovalRequest and its
// StageDecisions.
type Store struct {
	db *gorm.DB
}

// NewStore migrates the schema and returns a Store.
func NewStore(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&Request{}, &RequestStages{}, &StageDecision{}); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Create opens a new ApprovalRequest with the given stage specs. When no
// policy matched, callers pass the implicit single-stage list that
// policy.Match returns; an empty stages still records TotalStages 1 but
// leaves Decide no stage to authorize against.
func (s *Store) Create(ctx context.Context, approvalType, payloadJSON, makerID, makerRole, policyID, correlationID string, stages []Stage, expiryMinutes *int) (Request, error) {
	now := time.Now().UTC()
	req := Request{
		ID:            idgen.New(),
		ApprovalType:  approvalType,
		PayloadJSON:   payloadJSON,
		MakerID:       makerID,
		MakerRole:     makerRole,
		State:         StatePending,
		PolicyID:      policyID,
		CurrentStage:  1,
		TotalStages:   len(stages),
		WorkflowState: StateStagePending,
		CorrelationID: correlationID,
		ExpiryMinutes: expiryMinutes,
		CreatedAt:     now,
	}
	if req.TotalStages == 0 {
		req.TotalStages = 1
	}

	raw, err := json.Marshal(stages)
	if err != nil {
		return Request{}, err
	}

	return req, s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&req).Error; err != nil {
			return err
		}
		return tx.Create(&RequestStages{RequestID: req.ID, StagesJSON: string(raw)}).Error
	})
}

// Get loads a request by id.
func (s *Store) Get(ctx context.Context, id string) (Request, error) {
	var req Request
	err := s.db.WithContext(ctx).First(&req, "id = ?", id).Error
	return req, err
}

// Stages returns the stage specs a request was opened with.
func (s *Store) Stages(ctx context.Context, requestID string) ([]Stage, error) {
	var row RequestStages
	if err := s.db.WithContext(ctx).First(&row, "request_id = ?", requestID).Error; err != nil {
		return nil, err
	}
	var stages []Stage
	if err := json.Unmarshal([]byte(row.StagesJSON), &stages); err != nil {
		return nil, err
	}
	return stages, nil
}

// DecisionsAtStage returns every StageDecision recorded for (requestID, stageNo).
func (s *Store) DecisionsAtStage(ctx context.Context, requestID string, stageNo int) ([]StageDecision, error) {
	var decisions []StageDecision
	err := s.db.WithContext(ctx).
		Where("request_id = ? AND stage_no = ?", requestID, stageNo).
		Order("decided_at ASC").
		Find(&decisions).Error
	return decisions, err
}

// AllDecisions returns every StageDecision recorded across the request's
// lifetime, in decision order.
func (s *Store) AllDecisions(ctx context.Context, requestID string) ([]StageDecision, error) {
	var decisions []StageDecision
	err := s.db.WithContext(ctx).
		Where("request_id = ?", requestID).
		Order("decided_at ASC").
		Find(&decisions).Error
	return decisions, err
}

// RecordDecision appends a StageDecision row.
func (s *Store) RecordDecision(ctx context.Context, requestID string, stageNo int, decision Decision, deciderID, deciderRole, reason string) (StageDecision, error) {
	sd := StageDecision{
		ID:          idgen.New(),
		RequestID:   requestID,
		StageNo:     stageNo,
		Decision:    decision,
		DeciderID:   deciderID,
		DeciderRole: deciderRole,
		Reason:      reason,
		DecidedAt:   time.Now().UTC(),
	}
	return sd, s.db.WithContext(ctx).Create(&sd).Error
}

// AdvanceStage moves the request to stage+1, remaining STAGE_PENDING.
func (s *Store) AdvanceStage(ctx context.Context, requestID string, nextStage int) error {
	return s.db.WithContext(ctx).Model(&Request{}).Where("id = ?", requestID).
		Updates(map[string]interface{}{"current_stage": nextStage, "workflow_state": StateStagePending}).Error
}

// Finalize sets the request's terminal state and decided_at.
func (s *Store) Finalize(ctx context.Context, requestID string, state State) error {
	now := time.Now().UTC()
	return s.db.WithContext(ctx).Model(&Request{}).Where("id = ?", requestID).
		Updates(map[string]interface{}{"state": state, "workflow_state": state, "decided_at": &now}).Error
}

// ListExpirable returns every PENDING/STAGE_PENDING request whose
// expiry_minutes window has elapsed as of now, for the expiry sweep.
func (s *Store) ListExpirable(ctx context.Context, now time.Time) ([]Request, error) {
	var requests []Request
	err := s.db.WithContext(ctx).
		Where("state = ? AND expiry_minutes IS NOT NULL", StatePending).
		Find(&requests).Error
	if err != nil {
		return nil, err
	}
	var expired []Request
	for _, r := range requests {
		if r.ExpiryMinutes == nil {
			continue
		}
		deadline := r.CreatedAt.Add(time.Duration(*r.ExpiryMinutes) * time.Minute)
		if now.After(deadline) {
			expired = append(expired, r)
		}
	}
	return expired, nil
}
