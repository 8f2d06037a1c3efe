package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"caricash/internal/money"
)

func mustPastTime() time.Time   { return time.Now().Add(-time.Hour) }
func mustFutureTime() time.Time { return time.Now().Add(time.Hour) }

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	store, err := NewStore(db)
	require.NoError(t, err)
	return store
}

func TestAppendJournalChainsHashes(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	wallet := AccountKey{OwnerType: OwnerCustomer, OwnerID: "cust-1", AccountType: AccountWallet, Currency: money.BBD}
	pool := AccountKey{OwnerType: OwnerTreasury, OwnerID: "bank_pool", AccountType: AccountBankPool, Currency: money.BBD}
	acctWallet, err := store.EnsureAccount(ctx, wallet)
	require.NoError(t, err)
	acctPool, err := store.EnsureAccount(ctx, pool)
	require.NoError(t, err)

	first, err := store.AppendJournal(ctx, Journal{
		ID: "j1", TxnType: "DEPOSIT", Currency: money.BBD, DomainKey: "cust-1",
	}, []Line{
		{ID: "l1", AccountID: acctPool.ID, EntryType: Debit, AmountCents: 1000},
		{ID: "l2", AccountID: acctWallet.ID, EntryType: Credit, AmountCents: 1000},
	})
	require.NoError(t, err)
	require.Equal(t, "", first.PrevHash)
	require.NotEmpty(t, first.JournalHash)

	last, err := store.GetLastHash(ctx, "cust-1")
	require.NoError(t, err)
	require.Equal(t, first.JournalHash, last)

	second, err := store.AppendJournal(ctx, Journal{
		ID: "j2", TxnType: "DEPOSIT", Currency: money.BBD, DomainKey: "cust-1", PrevHash: last,
	}, []Line{
		{ID: "l3", AccountID: acctPool.ID, EntryType: Debit, AmountCents: 500},
		{ID: "l4", AccountID: acctWallet.ID, EntryType: Credit, AmountCents: 500},
	})
	require.NoError(t, err)
	require.Equal(t, first.JournalHash, second.PrevHash)

	bal, err := store.GetBalance(ctx, acctWallet.ID, money.BBD)
	require.NoError(t, err)
	require.Equal(t, int64(1500), bal.ActualCents)
}

func TestVerifyChainDetectsTamper(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	wallet := AccountKey{OwnerType: OwnerCustomer, OwnerID: "cust-2", AccountType: AccountWallet, Currency: money.USD}
	pool := AccountKey{OwnerType: OwnerTreasury, OwnerID: "bank_pool", AccountType: AccountBankPool, Currency: money.USD}
	acctWallet, err := store.EnsureAccount(ctx, wallet)
	require.NoError(t, err)
	acctPool, err := store.EnsureAccount(ctx, pool)
	require.NoError(t, err)

	_, err = store.AppendJournal(ctx, Journal{ID: "j10", TxnType: "DEPOSIT", Currency: money.USD, DomainKey: "cust-2"}, []Line{
		{ID: "l10", AccountID: acctPool.ID, EntryType: Debit, AmountCents: 2000},
		{ID: "l11", AccountID: acctWallet.ID, EntryType: Credit, AmountCents: 2000},
	})
	require.NoError(t, err)

	from := mustPastTime()
	to := mustFutureTime()
	ok, faults, err := store.VerifyChain(ctx, from, to)
	require.NoError(t, err)
	require.True(t, ok)
	require.Empty(t, faults)

	// Tamper directly at the storage layer (bypassing the guard via raw SQL
	// is out of scope here); instead simulate drift by corrupting a line's
	// amount through a second connection-level write to prove VerifyChain
	// would catch a content mismatch if one existed.
	err = store.db.Exec("UPDATE ledger_lines SET amount_cents = ? WHERE id = ?", 9999, "l10").Error
	require.NoError(t, err)

	ok, faults, err = store.VerifyChain(ctx, from, to)
	require.NoError(t, err)
	require.False(t, ok)
	require.Len(t, faults, 1)
	require.Equal(t, "content_mismatch", faults[0].Kind)
}

func TestWriteGuardRejectsUpdateViaModel(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	wallet := AccountKey{OwnerType: OwnerCustomer, OwnerID: "cust-3", AccountType: AccountWallet, Currency: money.BBD}
	pool := AccountKey{OwnerType: OwnerTreasury, OwnerID: "bank_pool", AccountType: AccountBankPool, Currency: money.BBD}
	acctWallet, err := store.EnsureAccount(ctx, wallet)
	require.NoError(t, err)
	acctPool, err := store.EnsureAccount(ctx, pool)
	require.NoError(t, err)
	_, err = store.AppendJournal(ctx, Journal{ID: "j20", TxnType: "DEPOSIT", Currency: money.BBD, DomainKey: "cust-3"}, []Line{
		{ID: "l20", AccountID: acctPool.ID, EntryType: Debit, AmountCents: 300},
		{ID: "l21", AccountID: acctWallet.ID, EntryType: Credit, AmountCents: 300},
	})
	require.NoError(t, err)

	err = store.db.WithContext(ctx).Model(&Journal{}).Where("id = ?", "j20").Update("description", "nope").Error
	require.ErrorIs(t, err, ErrWriteGuard)
}
