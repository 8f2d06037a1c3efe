package approval

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"caricash/internal/policy"
)

func setupEngine(t *testing.T) (*Engine, *Store) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	store, err := NewStore(db)
	require.NoError(t, err)
	engine := NewEngine(store, NewRegistry(), nil)
	return engine, store
}

func twoStagePolicy() policy.MatchResult {
	return policy.MatchResult{
		Stages: []policy.Stage{
			{StageNo: 1, MinApprovals: 1, ExcludeMaker: true},
			{StageNo: 2, MinApprovals: 1, AllowedRoles: []string{"COMPLIANCE_OFFICER"}},
		},
	}
}

func TestOpenCreatesPendingRequest(t *testing.T) {
	ctx := context.Background()
	engine, _ := setupEngine(t)

	req, err := engine.Open(ctx, "BANK_TRANSFER", `{"amount_cents":500000}`, "maker-1", "AGENT", "corr-1", twoStagePolicy(), nil)
	require.NoError(t, err)
	require.Equal(t, StatePending, req.State)
	require.Equal(t, 1, req.CurrentStage)
	require.Equal(t, 2, req.TotalStages)
}

func TestDecideAdvancesAcrossStagesThenApproves(t *testing.T) {
	ctx := context.Background()
	engine, _ := setupEngine(t)
	req, err := engine.Open(ctx, "BANK_TRANSFER", `{}`, "maker-1", "AGENT", "corr-2", twoStagePolicy(), nil)
	require.NoError(t, err)

	req, err = engine.Decide(ctx, req.ID, DecisionApprove, "checker-1", "SUPPORT_AGENT", "", nil, nil)
	require.NoError(t, err)
	require.Equal(t, StatePending, req.State)
	require.Equal(t, 2, req.CurrentStage)

	req, err = engine.Decide(ctx, req.ID, DecisionApprove, "checker-2", "COMPLIANCE_OFFICER", "", nil, nil)
	require.NoError(t, err)
	require.Equal(t, StateApproved, req.State)
	require.NotNil(t, req.DecidedAt)
}

func TestDecideDeniesMakerAtExcludeMakerStage(t *testing.T) {
	ctx := context.Background()
	engine, _ := setupEngine(t)
	req, err := engine.Open(ctx, "BANK_TRANSFER", `{}`, "maker-1", "AGENT", "corr-3", twoStagePolicy(), nil)
	require.NoError(t, err)

	_, err = engine.Decide(ctx, req.ID, DecisionApprove, "maker-1", "AGENT", "", nil, nil)
	require.Error(t, err)
	var violation *ErrPolicyViolation
	require.ErrorAs(t, err, &violation)
	require.Equal(t, "MAKER_CHECKER_REQUIRED", violation.Code)
}

func TestDecideRejectTerminatesImmediately(t *testing.T) {
	ctx := context.Background()
	engine, _ := setupEngine(t)
	req, err := engine.Open(ctx, "BANK_TRANSFER", `{}`, "maker-1", "AGENT", "corr-4", twoStagePolicy(), nil)
	require.NoError(t, err)

	req, err = engine.Decide(ctx, req.ID, DecisionReject, "checker-1", "SUPPORT_AGENT", "suspicious", nil, nil)
	require.NoError(t, err)
	require.Equal(t, StateRejected, req.State)
}

func TestDecideRejectsAlreadyTerminalRequest(t *testing.T) {
	ctx := context.Background()
	engine, _ := setupEngine(t)
	req, err := engine.Open(ctx, "BANK_TRANSFER", `{}`, "maker-1", "AGENT", "corr-5", twoStagePolicy(), nil)
	require.NoError(t, err)
	_, err = engine.Decide(ctx, req.ID, DecisionReject, "checker-1", "SUPPORT_AGENT", "", nil, nil)
	require.NoError(t, err)

	_, err = engine.Decide(ctx, req.ID, DecisionApprove, "checker-2", "SUPPORT_AGENT", "", nil, nil)
	require.ErrorIs(t, err, ErrNotPending)
}

func TestOnApproveHandlerInvokedOnFinalStage(t *testing.T) {
	ctx := context.Background()
	engine, _ := setupEngine(t)
	invoked := false
	engine.registry.Register("BANK_TRANSFER", Handler{
		OnApprove: func(hctx Context) error {
			invoked = true
			return nil
		},
	})
	req, err := engine.Open(ctx, "BANK_TRANSFER", `{}`, "maker-1", "AGENT", "corr-6", policy.MatchResult{
		Stages: []policy.Stage{{StageNo: 1, MinApprovals: 1, ExcludeMaker: true}},
	}, nil)
	require.NoError(t, err)

	_, err = engine.Decide(ctx, req.ID, DecisionApprove, "checker-1", "SUPPORT_AGENT", "", nil, nil)
	require.NoError(t, err)
	require.True(t, invoked)
}

func TestDelegationAuthorizesStageDecision(t *testing.T) {
	ctx := context.Background()
	engine, _ := setupEngine(t)
	req, err := engine.Open(ctx, "BANK_TRANSFER", `{}`, "maker-1", "AGENT", "corr-7", twoStagePolicy(), nil)
	require.NoError(t, err)
	_, err = engine.Decide(ctx, req.ID, DecisionApprove, "checker-1", "SUPPORT_AGENT", "", nil, nil)
	require.NoError(t, err)

	now := engine.now()
	delegation := policy.Delegation{
		Role:         "COMPLIANCE_OFFICER",
		DelegateID:   "checker-2",
		ApprovalType: "BANK_TRANSFER",
		State:        policy.DelegationActive,
		ValidFrom:    now.Add(-time.Hour),
		ValidTo:      now.Add(time.Hour),
	}

	req, err = engine.Decide(ctx, req.ID, DecisionApprove, "checker-2", "SUPPORT_AGENT", "", nil, []policy.Delegation{delegation})
	require.NoError(t, err)
	require.Equal(t, StateApproved, req.State)
}
