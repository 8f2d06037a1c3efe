package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPostRejectsOverLimitDomainKeyWithBackpressure(t *testing.T) {
	ctx := context.Background()
	engine, _ := setupEngine(t)
	engine.SetDomainKeyRateLimit(0, 1)

	_, err := engine.Post(ctx, depositCommand("rate-1", "rate-1", "idem-rate-1"))
	require.NoError(t, err)

	_, err = engine.Post(ctx, depositCommand("rate-1", "rate-1", "idem-rate-2"))
	require.ErrorIs(t, err, ErrBackpressure)
}

func TestPostIsUnlimitedByDefault(t *testing.T) {
	ctx := context.Background()
	engine, _ := setupEngine(t)

	for i := 0; i < 5; i++ {
		_, err := engine.Post(ctx, depositCommand("rate-2", "rate-2", "idem-unlimited-"+string(rune('a'+i))))
		require.NoError(t, err)
	}
}
