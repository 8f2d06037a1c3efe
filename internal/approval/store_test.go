package approval

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestListExpirableReturnsOnlyElapsedRequests(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	store, err := NewStore(db)
	require.NoError(t, err)

	short := 1
	long := 1000
	ctx := context.Background()
	expired, err := store.Create(ctx, "PAYOUT", "{}", "maker-1", "AGENT", "", "corr-1",
		[]Stage{{StageNo: 1, MinApprovals: 1}}, &short)
	require.NoError(t, err)
	_, err = store.Create(ctx, "PAYOUT", "{}", "maker-1", "AGENT", "", "corr-2",
		[]Stage{{StageNo: 1, MinApprovals: 1}}, &long)
	require.NoError(t, err)

	future := time.Now().UTC().Add(5 * time.Minute)
	overdue, err := store.ListExpirable(ctx, future)
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	require.Equal(t, expired.ID, overdue[0].ID)
}
