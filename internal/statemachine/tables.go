package statemachine

// Entity identifiers for every lifecycle tracked by the kernel.
const (
	EntityStatementEntry       Entity = "STATEMENT_ENTRY"
	EntityExternalTransfer     Entity = "EXTERNAL_TRANSFER"
	EntitySettlementBatch      Entity = "SETTLEMENT_BATCH"
	EntityPayout               Entity = "PAYOUT"
	EntityBeneficiary          Entity = "BENEFICIARY"
	EntityReconciliationCase   Entity = "RECONCILIATION_CASE"
	EntityLedgerJournal        Entity = "LEDGER_JOURNAL"
	EntityApprovalRequest      Entity = "APPROVAL_REQUEST"
	EntityOverdraftFacility    Entity = "OVERDRAFT_FACILITY"
	EntityFraudRulesVersion    Entity = "FRAUD_RULES_VERSION"
)

// DefaultTables returns the transition tables declared in §3 of the spec,
// ready to hand to NewKernel. Every entity lifecycle in the system is
// registered here so no caller improvises its own ad-hoc transition check.
func DefaultTables() map[Entity]Table {
	return map[Entity]Table{
		EntityStatementEntry: {
			Transitions: transitions(
				[]string{"NEW", "CANDIDATE_MATCHED", "UNMATCHED", "ESCALATED"},
				[]string{"CANDIDATE_MATCHED", "MATCHED", "PARTIAL_MATCHED", "UNMATCHED"},
				[]string{"UNMATCHED", "DISPUTED", "ESCALATED"},
				[]string{"DISPUTED", "RESOLVED"},
				[]string{"MATCHED", "SETTLED"},
			),
			Terminal: terminalSet("SETTLED", "RESOLVED"),
		},
		EntityExternalTransfer: {
			Transitions: transitions(
				[]string{"CREATED", "PENDING"},
				[]string{"PENDING", "SETTLED", "FAILED", "ANOMALY_CURRENCY"},
				[]string{"FAILED", "CREATED"},
			),
			Terminal: terminalSet("SETTLED", "ANOMALY_CURRENCY"),
		},
		EntitySettlementBatch: {
			Transitions: transitions(
				[]string{"CREATED", "READY", "FAILED"},
				[]string{"READY", "REQUESTED", "FAILED"},
				[]string{"REQUESTED", "PROCESSING", "FAILED"},
				[]string{"PROCESSING", "COMPLETED", "FAILED"},
			),
			Terminal: terminalSet("COMPLETED", "FAILED"),
		},
		EntityPayout: {
			Transitions: transitions(
				[]string{"REQUESTED", "APPROVED", "REJECTED", "FAILED"},
				[]string{"APPROVED", "PENDING", "REJECTED", "FAILED"},
				[]string{"PENDING", "SETTLED", "REJECTED", "FAILED"},
			),
			Terminal: terminalSet("SETTLED", "REJECTED", "FAILED"),
		},
		EntityBeneficiary: {
			Transitions: transitions(
				[]string{"DRAFT", "PENDING_VERIFICATION", "REJECTED"},
				[]string{"PENDING_VERIFICATION", "PENDING_APPROVAL", "REJECTED"},
				[]string{"PENDING_APPROVAL", "ACTIVE", "REJECTED"},
				[]string{"ACTIVE", "UPDATE_PENDING_VERIFICATION"},
				[]string{"UPDATE_PENDING_VERIFICATION", "UPDATE_PENDING_APPROVAL", "REJECTED"},
				[]string{"UPDATE_PENDING_APPROVAL", "ACTIVE", "REJECTED"},
			),
			Terminal: terminalSet("REJECTED"),
		},
		EntityReconciliationCase: {
			Transitions: transitions(
				[]string{"OPEN", "INVESTIGATING"},
				[]string{"INVESTIGATING", "RESOLVED"},
			),
			Terminal: terminalSet("RESOLVED"),
		},
		EntityLedgerJournal: {
			Transitions: transitions(
				[]string{"POSTED", "VOID_REQUESTED"},
				[]string{"VOID_REQUESTED", "REVERSED"},
			),
			Terminal: terminalSet("REVERSED"),
		},
		EntityApprovalRequest: {
			Transitions: transitions(
				[]string{"PENDING", "STAGE_PENDING", "APPROVED", "REJECTED", "EXPIRED"},
				[]string{"STAGE_PENDING", "STAGE_PENDING", "APPROVED", "REJECTED", "EXPIRED"},
			),
			Terminal: terminalSet("APPROVED", "REJECTED", "EXPIRED"),
		},
		EntityOverdraftFacility: {
			Transitions: transitions(
				[]string{"PENDING", "APPROVED", "REJECTED"},
				[]string{"APPROVED", "ACTIVE", "CLOSED"},
				[]string{"ACTIVE", "CLOSED"},
			),
			Terminal: terminalSet("REJECTED", "CLOSED"),
		},
		EntityFraudRulesVersion: {
			Transitions: transitions(
				[]string{"DRAFT", "ACTIVE"},
				[]string{"ACTIVE", "INACTIVE"},
			),
			Terminal: terminalSet("INACTIVE"),
		},
	}
}
