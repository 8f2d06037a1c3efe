package reversal

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"caricash/internal/approval"
	"caricash/internal/idempotency"
	"caricash/internal/ledger"
	"caricash/internal/money"
	"caricash/internal/statemachine"
)

func setup(t *testing.T) (*ledger.Store, *ledger.Engine, *statemachine.Kernel) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	store, err := ledger.NewStore(db)
	require.NoError(t, err)
	idem, err := idempotency.NewStore(db)
	require.NoError(t, err)
	engine := ledger.NewEngine(store, idem, nil, nil, nil)
	kernel := statemachine.NewKernel(statemachine.DefaultTables())
	return store, engine, kernel
}

func postOriginal(t *testing.T, store *ledger.Store, engine *ledger.Engine) ledger.Result {
	t.Helper()
	lines, err := ledger.DepositWithFee("cust-1", money.USD, mustAmount(t, 10000), mustAmount(t, 100), money.Zero)
	require.NoError(t, err)
	res, err := engine.Post(context.Background(), ledger.Command{
		DomainKey:      "CUSTOMER:cust-1",
		TxnType:        "DEPOSIT_WITH_FEE",
		Currency:       money.USD,
		ActorType:      "AGENT",
		ActorID:        "agent-1",
		IdempotencyKey: "deposit-1",
		Lines:          lines,
	})
	require.NoError(t, err)
	return res
}

func mustAmount(t *testing.T, cents int64) money.Amount {
	t.Helper()
	a, err := money.FromCents(cents)
	require.NoError(t, err)
	return a
}

func TestReversePostsCompensatingJournalAndTransitionsState(t *testing.T) {
	store, engine, kernel := setup(t)
	original := postOriginal(t, store, engine)

	handlers := NewHandlers(store, engine, kernel)
	ctx := approval.Context{
		Request: approval.Request{
			ID: "req-1", MakerID: "maker-1", MakerRole: "AGENT", CorrelationID: "corr-1",
		},
		PayloadJSON: `{"original_journal_id":"` + original.JournalID + `","reason":"customer dispute"}`,
	}

	require.NoError(t, handlers.Reverse(ctx))

	state, err := store.JournalState(context.Background(), original.JournalID)
	require.NoError(t, err)
	require.Equal(t, ledger.JournalReversed, state)

	walletBal, err := store.GetBalance(context.Background(), ledger.AccountKey{
		OwnerType: ledger.OwnerCustomer, OwnerID: "cust-1", AccountType: ledger.AccountWallet, Currency: money.USD,
	}.ID(), money.USD)
	require.NoError(t, err)
	require.True(t, walletBal.Actual().IsZero())
}

func TestReverseIsIdempotent(t *testing.T) {
	store, engine, kernel := setup(t)
	original := postOriginal(t, store, engine)
	handlers := NewHandlers(store, engine, kernel)
	ctx := approval.Context{
		Request:     approval.Request{ID: "req-2", MakerID: "maker-1", MakerRole: "AGENT"},
		PayloadJSON: `{"original_journal_id":"` + original.JournalID + `"}`,
	}
	require.NoError(t, handlers.Reverse(ctx))
	require.ErrorIs(t, handlers.Reverse(ctx), ErrAlreadyReversed)
}

func TestFundSuspensePostsBalancedPair(t *testing.T) {
	store, engine, kernel := setup(t)
	handlers := NewHandlers(store, engine, kernel)
	ctx := approval.Context{
		Request:     approval.Request{ID: "req-3", MakerID: "controller-1", MakerRole: "FINANCE_CONTROLLER"},
		PayloadJSON: `{"currency":"USD","amount_cents":5000,"reason":"manual top-up"}`,
	}
	require.NoError(t, handlers.FundSuspense(ctx))

	bal, err := store.GetBalance(context.Background(), ledger.AccountKey{
		OwnerType: ledger.OwnerTreasury, OwnerID: "treasury_suspense", AccountType: ledger.AccountSuspense, Currency: money.USD,
	}.ID(), money.USD)
	require.NoError(t, err)
	require.Equal(t, int64(-5000), bal.ActualCents)
}
