package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"caricash/internal/idempotency"
	"caricash/internal/idgen"
	"caricash/internal/ledger"
	"caricash/internal/money"
	"caricash/internal/statemachine"
)

func setupReconcile(t *testing.T) (*Engine, *Store, *ledger.Store, *ledger.Engine) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	ledgerStore, err := ledger.NewStore(db)
	require.NoError(t, err)
	idem, err := idempotency.NewStore(db)
	require.NoError(t, err)
	postEngine := ledger.NewEngine(ledgerStore, idem, nil, nil, nil)
	store, err := NewStore(db)
	require.NoError(t, err)
	kernel := statemachine.NewKernel(statemachine.DefaultTables())
	engine := NewEngine(store, ledgerStore, kernel, 50_000, nil)
	return engine, store, ledgerStore, postEngine
}

func TestRunDetectsBalanceMismatch(t *testing.T) {
	ctx := context.Background()
	engine, _, ledgerStore, postEngine := setupReconcile(t)

	res, err := postEngine.Post(ctx, ledger.Command{
		DomainKey: "CUSTOMER:cust-1", TxnType: "DEPOSIT", Currency: money.BBD,
		ActorType: "CUSTOMER", ActorID: "cust-1", IdempotencyKey: "dep-1",
		Lines: []ledger.CommandLine{
			{Account: ledger.AccountKey{OwnerType: ledger.OwnerTreasury, OwnerID: "bank_pool", AccountType: ledger.AccountBankPool, Currency: money.BBD}, EntryType: ledger.Debit, Amount: money.MustFromCents(10_000)},
			{Account: ledger.AccountKey{OwnerType: ledger.OwnerCustomer, OwnerID: "cust-1", AccountType: ledger.AccountWallet, Currency: money.BBD}, EntryType: ledger.Credit, Amount: money.MustFromCents(10_000)},
		},
	})
	require.NoError(t, err)
	_ = res

	walletID := ledger.AccountKey{OwnerType: ledger.OwnerCustomer, OwnerID: "cust-1", AccountType: ledger.AccountWallet, Currency: money.BBD}.ID()
	require.NoError(t, corruptBalance(t, ledgerStore, walletID, 1_500))

	from := time.Now().UTC().Add(-time.Hour)
	to := time.Now().UTC().Add(time.Hour)
	run, err := engine.Run(ctx, from, to)
	require.NoError(t, err)
	require.Equal(t, "COMPLETED", run.Status)
	require.GreaterOrEqual(t, run.FindingsCount, 1)
}

// corruptBalance is a test-only helper simulating a materialized-view
// drift: it mutates actual_cents directly, bypassing the posting engine,
// which the reconciliation sweep is specifically designed to catch.
func corruptBalance(t *testing.T, store *ledger.Store, accountID string, deltaCents int64) error {
	t.Helper()
	bal, err := store.GetBalance(context.Background(), accountID, money.BBD)
	require.NoError(t, err)
	return store.TestOnlySetActualCents(context.Background(), accountID, bal.ActualCents+deltaCents)
}

func TestClassifySeverityThresholds(t *testing.T) {
	require.Equal(t, SeverityLow, ClassifySeverity(50))
	require.Equal(t, SeverityMedium, ClassifySeverity(100))
	require.Equal(t, SeverityHigh, ClassifySeverity(10_000))
	require.Equal(t, SeverityCritical, ClassifySeverity(100_000))
}

func TestMatchStatementsUpdatesStateViaKernel(t *testing.T) {
	ctx := context.Background()
	engine, store, _, _ := setupReconcile(t)

	now := time.Now().UTC()
	entry := StatementEntry{ID: idgen.New(), Reference: "PTX-1", AmountCents: 4200, Currency: "USD", PostedAt: now, State: StatementNew, CreatedAt: now}
	transfer := ExternalTransfer{ID: idgen.New(), ProviderTransferID: "PTX-1", AmountCents: 4200, Currency: "USD", InitiatedAt: now, State: TransferPending, CreatedAt: now}
	require.NoError(t, store.db.Create(&entry).Error)
	require.NoError(t, store.db.Create(&transfer).Error)

	require.NoError(t, engine.matchStatements(ctx))

	var reloaded StatementEntry
	require.NoError(t, store.db.First(&reloaded, "id = ?", entry.ID).Error)
	require.Equal(t, StatementMatched, reloaded.State)
}

// An over-sum batch verdict has no declared NEW -> DISPUTED edge; the
// engine must drive the entry through UNMATCHED first rather than leave
// it stuck in NEW.
func TestMatchStatementsDrivesOverSumBatchThroughUnmatchedToDisputed(t *testing.T) {
	ctx := context.Background()
	engine, store, _, _ := setupReconcile(t)

	now := time.Now().UTC()
	entry := StatementEntry{
		ID: idgen.New(), Reference: "BATCH-OVER", Description: "batch ref BATCH3 payout",
		AmountCents: 1000, Currency: "USD", PostedAt: now, State: StatementNew, CreatedAt: now,
	}
	transferA := ExternalTransfer{ID: idgen.New(), ClientReference: "BATCH3", AmountCents: 3000, Currency: "USD", InitiatedAt: now, State: TransferPending, CreatedAt: now}
	transferB := ExternalTransfer{ID: idgen.New(), ClientReference: "BATCH3", AmountCents: 3000, Currency: "USD", InitiatedAt: now, State: TransferPending, CreatedAt: now}
	require.NoError(t, store.db.Create(&entry).Error)
	require.NoError(t, store.db.Create(&transferA).Error)
	require.NoError(t, store.db.Create(&transferB).Error)

	require.NoError(t, engine.matchStatements(ctx))

	var reloaded StatementEntry
	require.NoError(t, store.db.First(&reloaded, "id = ?", entry.ID).Error)
	require.Equal(t, StatementDisputed, reloaded.State)
}
