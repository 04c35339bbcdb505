package mongostore_test

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/advomarket/entitlement/pkg/entitlement"
	"github.com/advomarket/entitlement/pkg/mongo"
	"github.com/advomarket/entitlement/pkg/mongostore"
)

// Integration tests need a MongoDB server; set TEST_MONGODB_URL to run.
func newTestStore(t *testing.T) *mongostore.Store {
	t.Helper()

	mongoURL := os.Getenv("TEST_MONGODB_URL")
	if mongoURL == "" {
		t.Skip("TEST_MONGODB_URL not set, skipping mongo integration tests")
	}

	cfg := mongo.Config{
		ConnectionURL:  mongoURL,
		ConnectTimeout: 5 * time.Second,
		MaxPoolSize:    10,
		MinPoolSize:    1,
		RetryWrites:    true,
		RetryReads:     true,
		RetryAttempts:  1,
		RetryInterval:  time.Second,
	}

	// A database per run keeps parallel CI jobs from clashing.
	dbName := fmt.Sprintf("entitlement_test_%d", time.Now().UnixNano())
	db, err := mongo.NewWithDatabase(context.Background(), cfg, dbName)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Drop(context.Background())
		_ = db.Client().Disconnect(context.Background())
	})

	store := mongostore.New(db)
	require.NoError(t, store.EnsureIndexes(context.Background()))
	return store
}

func TestStore_Usage(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	userID := uuid.New()
	day := entitlement.Day("2025-06-15")

	t.Run("missing document reports ErrUsageNotFound", func(t *testing.T) {
		_, err := store.GetUsage(ctx, userID, entitlement.FeatureAIQueries, day)
		require.ErrorIs(t, err, entitlement.ErrUsageNotFound)
	})

	t.Run("upsert then read", func(t *testing.T) {
		require.NoError(t, store.UpsertUsage(ctx, userID, entitlement.FeatureAIQueries, day, 2))

		count, err := store.GetUsage(ctx, userID, entitlement.FeatureAIQueries, day)
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)
	})

	t.Run("filtered increment stops at the limit", func(t *testing.T) {
		count, applied, err := store.IncrementUsageBelow(ctx, userID, entitlement.FeatureAIQueries, day, 3)
		require.NoError(t, err)
		assert.True(t, applied)
		assert.Equal(t, int64(3), count)

		count, applied, err = store.IncrementUsageBelow(ctx, userID, entitlement.FeatureAIQueries, day, 3)
		require.NoError(t, err)
		assert.False(t, applied)
		assert.Equal(t, int64(3), count)
	})

	t.Run("first increment of the day creates the document", func(t *testing.T) {
		freshUser := uuid.New()

		count, applied, err := store.IncrementUsageBelow(ctx, freshUser, entitlement.FeatureAIQueries, day, 5)
		require.NoError(t, err)
		assert.True(t, applied)
		assert.Equal(t, int64(1), count)
	})

	t.Run("concurrent increments never overrun the limit", func(t *testing.T) {
		freshUser := uuid.New()
		const limit = 10
		const workers = 25

		var wg sync.WaitGroup
		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _, _ = store.IncrementUsageBelow(ctx, freshUser, entitlement.FeatureAIQueries, day, limit)
			}()
		}
		wg.Wait()

		count, err := store.GetUsage(ctx, freshUser, entitlement.FeatureAIQueries, day)
		require.NoError(t, err)
		assert.Equal(t, int64(limit), count)
	})
}
