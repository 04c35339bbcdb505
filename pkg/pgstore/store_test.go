package pgstore_test

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/advomarket/entitlement/pkg/entitlement"
	"github.com/advomarket/entitlement/pkg/pg"
	"github.com/advomarket/entitlement/pkg/pgstore"
)

// Integration tests need a migrated database; set TEST_PG_CONN_URL to run.
func newTestStore(t *testing.T) *pgstore.Store {
	t.Helper()

	connURL := os.Getenv("TEST_PG_CONN_URL")
	if connURL == "" {
		t.Skip("TEST_PG_CONN_URL not set, skipping postgres integration tests")
	}

	cfg := pg.Config{
		ConnectionString: connURL,
		MaxOpenConns:     4,
		MaxIdleConns:     1,
		RetryAttempts:    1,
	}
	pool, err := pg.Connect(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return pgstore.New(pool)
}

func TestStore_Usage(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	userID := uuid.New()
	day := entitlement.Day("2025-06-15")

	t.Run("missing record reports ErrUsageNotFound", func(t *testing.T) {
		_, err := store.GetUsage(ctx, userID, entitlement.FeatureAIQueries, day)
		require.ErrorIs(t, err, entitlement.ErrUsageNotFound)
	})

	t.Run("upsert then read", func(t *testing.T) {
		require.NoError(t, store.UpsertUsage(ctx, userID, entitlement.FeatureAIQueries, day, 2))

		count, err := store.GetUsage(ctx, userID, entitlement.FeatureAIQueries, day)
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)
	})

	t.Run("conditional increment stops at the limit", func(t *testing.T) {
		count, applied, err := store.IncrementUsageBelow(ctx, userID, entitlement.FeatureAIQueries, day, 3)
		require.NoError(t, err)
		assert.True(t, applied)
		assert.Equal(t, int64(3), count)

		count, applied, err = store.IncrementUsageBelow(ctx, userID, entitlement.FeatureAIQueries, day, 3)
		require.NoError(t, err)
		assert.False(t, applied)
		assert.Equal(t, int64(3), count)
	})

	t.Run("first increment of the day creates the record", func(t *testing.T) {
		freshUser := uuid.New()

		count, applied, err := store.IncrementUsageBelow(ctx, freshUser, entitlement.FeatureAIQueries, day, 5)
		require.NoError(t, err)
		assert.True(t, applied)
		assert.Equal(t, int64(1), count)
	})

	t.Run("zero limit never increments", func(t *testing.T) {
		freshUser := uuid.New()

		count, applied, err := store.IncrementUsageBelow(ctx, freshUser, entitlement.FeatureAIQueries, day, 0)
		require.NoError(t, err)
		assert.False(t, applied)
		assert.Zero(t, count)
	})
}

func TestStore_SubscriptionStatus(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	t.Run("unknown user reports ErrUserNotFound", func(t *testing.T) {
		_, err := store.FetchUserSubscriptionStatus(ctx, uuid.New())
		require.ErrorIs(t, err, entitlement.ErrUserNotFound)
	})

	t.Run("set then fetch then overwrite", func(t *testing.T) {
		userID := uuid.New()

		require.NoError(t, store.SetUserSubscriptionStatus(ctx, userID, "price_pro_monthly"))
		status, err := store.FetchUserSubscriptionStatus(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, "price_pro_monthly", status)

		require.NoError(t, store.SetUserSubscriptionStatus(ctx, userID, ""))
		status, err = store.FetchUserSubscriptionStatus(ctx, userID)
		require.NoError(t, err)
		assert.Empty(t, status)
	})
}
