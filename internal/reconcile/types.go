// Package reconcile implements the Reconciliation & Integrity engine
// (C12): ledger-vs-materialized balance checks, suspense sweeps,
// hash-chain verification, and bank-statement/external-transfer matching.
package reconcile

import "time"

// Severity classifies a Finding's absolute discrepancy, per §4.10 step 3.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// ClassifySeverity buckets an absolute cent discrepancy per §4.10 step 3's
// thresholds.
func ClassifySeverity(absDiscrepancyCents int64) Severity {
	switch {
	case absDiscrepancyCents >= 100_000:
		return SeverityCritical
	case absDiscrepancyCents >= 10_000:
		return SeverityHigh
	case absDiscrepancyCents >= 100:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Run is the ReconciliationRun row (§3).
type Run struct {
	ID            string `gorm:"primaryKey;column:id"`
	From          time.Time
	To            time.Time
	Status        string
	FindingsCount int `gorm:"column:findings_count"`
	ArchivePath   string
	CreatedAt     time.Time
}

func (Run) TableName() string { return "reconciliation_runs" }

// Finding is a ReconciliationFinding row (§3).
type Finding struct {
	ID                  string `gorm:"primaryKey;column:id"`
	RunID               string `gorm:"column:run_id;index"`
	Kind                string `gorm:"column:kind"` // BALANCE | SUSPENSE | INTEGRITY
	AccountID           string `gorm:"column:account_id"`
	ComputedBalance     int64  `gorm:"column:computed_balance"`
	MaterializedBalance int64  `gorm:"column:materialized_balance"`
	DiscrepancyCents    int64  `gorm:"column:discrepancy_cents"`
	Severity            Severity
	Detail              string
	CreatedAt           time.Time
}

func (Finding) TableName() string { return "reconciliation_findings" }

// CaseStatus is the ReconciliationCase lifecycle (§3's state machine table).
type CaseStatus string

const (
	CaseOpen          CaseStatus = "OPEN"
	CaseInvestigating CaseStatus = "INVESTIGATING"
	CaseResolved      CaseStatus = "RESOLVED"
)

// Case is a ReconciliationCase row, opened or updated by a Finding.
type Case struct {
	ID          string `gorm:"primaryKey;column:id"`
	FindingID   string `gorm:"column:finding_id;index"`
	Kind        string `gorm:"column:kind"`
	Status      CaseStatus
	MatchMethod string `gorm:"column:match_method"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (Case) TableName() string { return "reconciliation_cases" }

// StatementEntryState is the §3 StatementEntry lifecycle.
type StatementEntryState string

const (
	StatementNew              StatementEntryState = "NEW"
	StatementCandidateMatched StatementEntryState = "CANDIDATE_MATCHED"
	StatementMatched          StatementEntryState = "MATCHED"
	StatementPartialMatched   StatementEntryState = "PARTIAL_MATCHED"
	StatementUnmatched        StatementEntryState = "UNMATCHED"
	StatementDisputed         StatementEntryState = "DISPUTED"
	StatementEscalated        StatementEntryState = "ESCALATED"
	StatementResolved         StatementEntryState = "RESOLVED"
	StatementSettled          StatementEntryState = "SETTLED"
)

// StatementEntry is one ingested bank-statement line (§6's "bank-statement
// ingestion source").
type StatementEntry struct {
	ID          string `gorm:"primaryKey;column:id"`
	Reference   string `gorm:"column:reference"`
	Description string `gorm:"column:description"`
	AmountCents int64  `gorm:"column:amount_cents"`
	Currency    string `gorm:"column:currency"`
	PostedAt    time.Time
	State       StatementEntryState
	CreatedAt   time.Time
}

func (StatementEntry) TableName() string { return "reconciliation_statement_entries" }

// ExternalTransferState is the §3 ExternalTransfer lifecycle.
type ExternalTransferState string

const (
	TransferCreated         ExternalTransferState = "CREATED"
	TransferPending         ExternalTransferState = "PENDING"
	TransferSettled         ExternalTransferState = "SETTLED"
	TransferFailed          ExternalTransferState = "FAILED"
	TransferAnomalyCurrency ExternalTransferState = "ANOMALY_CURRENCY"
)

// ExternalTransfer is the system's own record of a transfer sent to (or
// received from) an external bank rail, the counterpart matched against
// StatementEntry rows.
type ExternalTransfer struct {
	ID                string `gorm:"primaryKey;column:id"`
	ProviderTransferID string `gorm:"column:provider_transfer_id"`
	ClientReference    string `gorm:"column:client_reference"`
	AmountCents        int64  `gorm:"column:amount_cents"`
	Currency           string `gorm:"column:currency"`
	InitiatedAt        time.Time
	State              ExternalTransferState
	CreatedAt          time.Time
}

func (ExternalTransfer) TableName() string { return "reconciliation_external_transfers" }

// MatchMethod names which §4.10 priority matched a StatementEntry.
type MatchMethod string

const (
	MatchProviderID MatchMethod = "PROVIDER_ID"
	MatchClientRef  MatchMethod = "CLIENT_REF"
	MatchAmountTime MatchMethod = "AMOUNT_TIME"
	MatchBatch      MatchMethod = "BATCH"
)

// MatchConfidence is the confidence band reported alongside MatchMethod.
type MatchConfidence string

const (
	ConfidenceHigh       MatchConfidence = "HIGH"
	ConfidenceMediumHigh MatchConfidence = "MEDIUM_HIGH"
	ConfidenceMedium     MatchConfidence = "MEDIUM"
)

// MatchResult is the outcome of matching one StatementEntry against the
// ExternalTransfer population.
type MatchResult struct {
	Entry          StatementEntry
	Transfers      []ExternalTransfer
	Method         MatchMethod
	Confidence     MatchConfidence
	ResultingState StatementEntryState
}
