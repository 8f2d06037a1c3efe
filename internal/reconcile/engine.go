package reconcile

import (
	"context"
	"fmt"
	"time"

	"caricash/internal/idgen"
	"caricash/internal/ledger"
	"caricash/internal/statemachine"
)

// Engine is the Reconciliation Engine (C12): it never modifies balances,
// only ever opening or updating ReconciliationCases from Findings (§4.10
// step 6).
type Engine struct {
	store            *Store
	ledger           *ledger.Store
	kernel           *statemachine.Kernel
	suspenseThreshold int64
	archiver         *Archiver
	now              func() time.Time
}

// NewEngine wires the reconciliation engine. suspenseThresholdCents is the
// absolute balance beyond which a suspense account finding is raised;
// archiver may be nil to skip parquet export (tests, dry runs).
func NewEngine(store *Store, ledgerStore *ledger.Store, kernel *statemachine.Kernel, suspenseThresholdCents int64, archiver *Archiver) *Engine {
	return &Engine{
		store:             store,
		ledger:            ledgerStore,
		kernel:            kernel,
		suspenseThreshold: suspenseThresholdCents,
		archiver:          archiver,
		now:               func() time.Time { return time.Now().UTC() },
	}
}

// Run executes one reconciliation pass over [from, to], per §4.10 steps
// 1-6 plus the statement/transfer matching sweep.
func (e *Engine) Run(ctx context.Context, from, to time.Time) (*Run, error) {
	run := Run{ID: idgen.New(), From: from, To: to, Status: "RUNNING", CreatedAt: e.now()}
	if err := e.store.createRun(ctx, run); err != nil {
		return nil, fmt.Errorf("reconcile: create run: %w", err)
	}

	var findings []Finding

	balanceFindings, err := e.checkBalances(ctx, run.ID, from, to)
	if err != nil {
		return nil, err
	}
	findings = append(findings, balanceFindings...)

	suspenseFindings, err := e.checkSuspense(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	findings = append(findings, suspenseFindings...)

	integrityFindings, err := e.checkChainIntegrity(ctx, run.ID, from, to)
	if err != nil {
		return nil, err
	}
	findings = append(findings, integrityFindings...)

	if err := e.matchStatements(ctx); err != nil {
		return nil, err
	}

	run.Status = "COMPLETED"
	run.FindingsCount = len(findings)
	if e.archiver != nil {
		path, err := e.archiver.Archive(run, findings)
		if err != nil {
			return nil, fmt.Errorf("reconcile: archive: %w", err)
		}
		run.ArchivePath = path
	}
	if err := e.store.updateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("reconcile: finalize run: %w", err)
	}
	return &run, nil
}

// checkBalances implements §4.10 steps 1-3: recompute every touched
// account's authoritative balance from ledger_lines and compare against
// the materialized view.
func (e *Engine) checkBalances(ctx context.Context, runID string, from, to time.Time) ([]Finding, error) {
	accounts, err := e.ledger.ListAccounts(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("reconcile: list touched accounts: %w", err)
	}
	var findings []Finding
	for _, account := range accounts {
		computed, err := e.ledger.AuthoritativeBalance(ctx, account.ID)
		if err != nil {
			return nil, fmt.Errorf("reconcile: authoritative balance for %s: %w", account.ID, err)
		}
		bal, err := e.ledger.GetBalance(ctx, account.ID, account.Currency)
		if err != nil {
			return nil, fmt.Errorf("reconcile: materialized balance for %s: %w", account.ID, err)
		}
		discrepancy := computed - bal.ActualCents
		if discrepancy == 0 {
			continue
		}
		f := e.newFinding(runID, "BALANCE", account.ID, computed, bal.ActualCents, discrepancy,
			fmt.Sprintf("ledger-computed %d cents vs materialized %d cents", computed, bal.ActualCents))
		if err := e.recordAndCase(ctx, f, "BALANCE_MISMATCH", ""); err != nil {
			return nil, err
		}
		findings = append(findings, f)
	}
	return findings, nil
}

// checkSuspense implements §4.10 step 4: any suspense account whose
// actual balance exceeds the configured threshold is a CRITICAL finding
// regardless of whether it reconciles against the materialized view.
func (e *Engine) checkSuspense(ctx context.Context, runID string) ([]Finding, error) {
	accounts, err := e.ledger.ListAccountsByType(ctx, ledger.AccountSuspense)
	if err != nil {
		return nil, fmt.Errorf("reconcile: list suspense accounts: %w", err)
	}
	var findings []Finding
	for _, account := range accounts {
		bal, err := e.ledger.GetBalance(ctx, account.ID, account.Currency)
		if err != nil {
			return nil, fmt.Errorf("reconcile: suspense balance for %s: %w", account.ID, err)
		}
		abs := bal.ActualCents
		if abs < 0 {
			abs = -abs
		}
		if abs <= e.suspenseThreshold {
			continue
		}
		f := Finding{
			ID: idgen.New(), RunID: runID, Kind: "SUSPENSE", AccountID: account.ID,
			ComputedBalance: bal.ActualCents, MaterializedBalance: bal.ActualCents, DiscrepancyCents: bal.ActualCents,
			Severity: SeverityCritical, Detail: fmt.Sprintf("suspense balance %d cents exceeds threshold %d", bal.ActualCents, e.suspenseThreshold),
			CreatedAt: e.now(),
		}
		if err := e.recordAndCase(ctx, f, "SUSPENSE_BALANCE", ""); err != nil {
			return nil, err
		}
		findings = append(findings, f)
	}
	return findings, nil
}

// checkChainIntegrity implements §4.10 step 5: any hash-chain defect in
// the window is an unconditional CRITICAL INTEGRITY finding.
func (e *Engine) checkChainIntegrity(ctx context.Context, runID string, from, to time.Time) ([]Finding, error) {
	ok, faults, err := e.ledger.VerifyChain(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("reconcile: verify chain: %w", err)
	}
	if ok {
		return nil, nil
	}
	var findings []Finding
	for _, fault := range faults {
		f := Finding{
			ID: idgen.New(), RunID: runID, Kind: "INTEGRITY", AccountID: "", Severity: SeverityCritical,
			Detail:    fmt.Sprintf("journal %s: %s", fault.JournalID, fault.Kind),
			CreatedAt: e.now(),
		}
		if err := e.recordAndCase(ctx, f, "CHAIN_INTEGRITY", ""); err != nil {
			return nil, err
		}
		findings = append(findings, f)
	}
	return findings, nil
}

// matchStatements sweeps every pending StatementEntry against candidate
// ExternalTransfers per §4.10's matching priorities, transitioning both
// sides' state machines through the shared kernel.
func (e *Engine) matchStatements(ctx context.Context) error {
	entries, err := e.store.PendingStatementEntries(ctx)
	if err != nil {
		return fmt.Errorf("reconcile: list pending statement entries: %w", err)
	}
	if len(entries) == 0 {
		return nil
	}
	transfers, err := e.store.CandidateTransfers(ctx)
	if err != nil {
		return fmt.Errorf("reconcile: list candidate transfers: %w", err)
	}

	now := e.now()
	for _, entry := range entries {
		result := MatchEntry(entry, transfers, now)
		if e.kernel.IsTerminal(statemachine.EntityStatementEntry, string(entry.State)) {
			continue
		}
		current := entry.State
		// NEW only transitions straight to CANDIDATE_MATCHED, UNMATCHED, or
		// ESCALATED; a MATCHED/PARTIAL_MATCHED verdict passes through
		// CANDIDATE_MATCHED first, mirroring the journal reversal's
		// POSTED -> VOID_REQUESTED -> REVERSED two-step.
		if current == StatementNew && (result.ResultingState == StatementMatched || result.ResultingState == StatementPartialMatched) {
			if err := e.kernel.Validate(statemachine.EntityStatementEntry, string(current), string(StatementCandidateMatched)); err != nil {
				continue
			}
			if err := e.store.updateStatementState(ctx, entry.ID, StatementCandidateMatched); err != nil {
				return fmt.Errorf("reconcile: update statement %s: %w", entry.ID, err)
			}
			current = StatementCandidateMatched
		}
		// An over-sum batch match is only reachable via UNMATCHED ->
		// DISPUTED (there is no declared NEW -> DISPUTED edge), so an
		// over-sum verdict on a fresh entry passes through UNMATCHED first.
		if current == StatementNew && result.ResultingState == StatementDisputed {
			if err := e.kernel.Validate(statemachine.EntityStatementEntry, string(current), string(StatementUnmatched)); err != nil {
				continue
			}
			if err := e.store.updateStatementState(ctx, entry.ID, StatementUnmatched); err != nil {
				return fmt.Errorf("reconcile: update statement %s: %w", entry.ID, err)
			}
			current = StatementUnmatched
		}
		if err := e.kernel.Validate(statemachine.EntityStatementEntry, string(current), string(result.ResultingState)); err != nil {
			continue // no valid transition for this entry's current state; leave it for the next run.
		}
		if err := e.store.updateStatementState(ctx, entry.ID, result.ResultingState); err != nil {
			return fmt.Errorf("reconcile: update statement %s: %w", entry.ID, err)
		}
		for _, t := range result.Transfers {
			if e.kernel.IsTerminal(statemachine.EntityExternalTransfer, string(t.State)) {
				continue
			}
			if err := e.kernel.Validate(statemachine.EntityExternalTransfer, string(t.State), string(TransferSettled)); err != nil {
				continue
			}
			if err := e.store.updateTransferState(ctx, t.ID, TransferSettled); err != nil {
				return fmt.Errorf("reconcile: update transfer %s: %w", t.ID, err)
			}
		}
	}
	return nil
}

func (e *Engine) newFinding(runID, kind, accountID string, computed, materialized, discrepancy int64, detail string) Finding {
	abs := discrepancy
	if abs < 0 {
		abs = -abs
	}
	return Finding{
		ID: idgen.New(), RunID: runID, Kind: kind, AccountID: accountID,
		ComputedBalance: computed, MaterializedBalance: materialized, DiscrepancyCents: discrepancy,
		Severity: ClassifySeverity(abs), Detail: detail, CreatedAt: e.now(),
	}
}

func (e *Engine) recordAndCase(ctx context.Context, f Finding, kind, matchMethod string) error {
	if err := e.store.recordFinding(ctx, f); err != nil {
		return fmt.Errorf("reconcile: record finding: %w", err)
	}
	c := Case{ID: idgen.New(), FindingID: f.ID, Kind: kind, Status: CaseOpen, MatchMethod: matchMethod, CreatedAt: e.now(), UpdatedAt: e.now()}
	if err := e.store.openCase(ctx, c); err != nil {
		return fmt.Errorf("reconcile: open case: %w", err)
	}
	return nil
}
