package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStageAuthorizedDeniesMaker(t *testing.T) {
	decision := StageAuthorized(DecisionInput{
		Stage:     Stage{ExcludeMaker: true},
		MakerID:   "actor-1",
		DeciderID: "actor-1",
	})
	require.False(t, decision.Allowed)
}

func TestStageAuthorizedDeniesPreviousApprover(t *testing.T) {
	decision := StageAuthorized(DecisionInput{
		Stage:             Stage{ExcludePreviousApprovers: true},
		PreviousApprovers: []string{"actor-2"},
		DeciderID:         "actor-2",
	})
	require.False(t, decision.Allowed)
}

func TestStageAuthorizedAllowsMatchingRole(t *testing.T) {
	decision := StageAuthorized(DecisionInput{
		Stage:       Stage{AllowedRoles: []string{"COMPLIANCE_OFFICER"}},
		DeciderRole: "COMPLIANCE_OFFICER",
		DeciderID:   "staff-9",
	})
	require.True(t, decision.Allowed)
}

func TestStageAuthorizedDeniesWithoutRoleActorOrDelegation(t *testing.T) {
	decision := StageAuthorized(DecisionInput{
		Stage:       Stage{AllowedRoles: []string{"COMPLIANCE_OFFICER"}, AllowedActorIDs: []string{"staff-1"}},
		DeciderRole: "SUPPORT_AGENT",
		DeciderID:   "staff-5",
	})
	require.False(t, decision.Allowed)
}

func TestStageAuthorizedAllowsDelegatedRole(t *testing.T) {
	now := time.Date(2026, 7, 29, 12, 0, 0, 0, time.UTC)
	decision := StageAuthorized(DecisionInput{
		Stage:        Stage{AllowedRoles: []string{"COMPLIANCE_OFFICER"}},
		ApprovalType: "BANK_TRANSFER",
		DeciderRole:  "SUPPORT_AGENT",
		DeciderID:    "staff-5",
		Now:          now,
		Delegations: []Delegation{
			{
				Role:         "COMPLIANCE_OFFICER",
				DelegateID:   "staff-5",
				ApprovalType: "BANK_TRANSFER",
				State:        DelegationActive,
				ValidFrom:    now.Add(-time.Hour),
				ValidTo:      now.Add(time.Hour),
			},
		},
	})
	require.True(t, decision.Allowed)
}

func TestStageAuthorizedDeniesDelegationToDifferentDelegate(t *testing.T) {
	now := time.Date(2026, 7, 29, 12, 0, 0, 0, time.UTC)
	decision := StageAuthorized(DecisionInput{
		Stage:        Stage{AllowedRoles: []string{"COMPLIANCE_OFFICER"}},
		ApprovalType: "BANK_TRANSFER",
		DeciderRole:  "SUPPORT_AGENT",
		DeciderID:    "staff-5",
		Now:          now,
		Delegations: []Delegation{
			{
				Role:         "COMPLIANCE_OFFICER",
				DelegateID:   "staff-9",
				ApprovalType: "BANK_TRANSFER",
				State:        DelegationActive,
				ValidFrom:    now.Add(-time.Hour),
				ValidTo:      now.Add(time.Hour),
			},
		},
	})
	require.False(t, decision.Allowed)
}

func TestStageAuthorizedDeniesExpiredDelegation(t *testing.T) {
	now := time.Date(2026, 7, 29, 12, 0, 0, 0, time.UTC)
	decision := StageAuthorized(DecisionInput{
		Stage:        Stage{AllowedActorIDs: []string{"staff-1"}},
		ApprovalType: "BANK_TRANSFER",
		DeciderRole:  "SUPPORT_AGENT",
		DeciderID:    "staff-5",
		Now:          now,
		Delegations: []Delegation{
			{
				ActorID:      "staff-1",
				DelegateID:   "staff-5",
				ApprovalType: "BANK_TRANSFER",
				State:        DelegationActive,
				ValidFrom:    now.Add(-2 * time.Hour),
				ValidTo:      now.Add(-time.Hour),
			},
		},
	})
	require.False(t, decision.Allowed)
}

func TestStageAuthorizedDeniesRevokedDelegation(t *testing.T) {
	now := time.Date(2026, 7, 29, 12, 0, 0, 0, time.UTC)
	decision := StageAuthorized(DecisionInput{
		Stage:        Stage{AllowedActorIDs: []string{"staff-1"}},
		ApprovalType: "BANK_TRANSFER",
		DeciderRole:  "SUPPORT_AGENT",
		DeciderID:    "staff-5",
		Now:          now,
		Delegations: []Delegation{
			{
				ActorID:      "staff-1",
				DelegateID:   "staff-5",
				ApprovalType: "BANK_TRANSFER",
				State:        DelegationRevoked,
				ValidFrom:    now.Add(-time.Hour),
				ValidTo:      now.Add(time.Hour),
			},
		},
	})
	require.False(t, decision.Allowed)
}

func TestStageAuthorizedAllowsDelegatedActorID(t *testing.T) {
	now := time.Date(2026, 7, 29, 12, 0, 0, 0, time.UTC)
	decision := StageAuthorized(DecisionInput{
		Stage:        Stage{AllowedActorIDs: []string{"staff-1"}},
		ApprovalType: "BANK_TRANSFER",
		DeciderRole:  "SUPPORT_AGENT",
		DeciderID:    "staff-5",
		Now:          now,
		Delegations: []Delegation{
			{
				ActorID:      "staff-1",
				DelegateID:   "staff-5",
				ApprovalType: "BANK_TRANSFER",
				State:        DelegationActive,
				ValidFrom:    now.Add(-time.Hour),
				ValidTo:      now.Add(time.Hour),
			},
		},
	})
	require.True(t, decision.Allowed)
}
