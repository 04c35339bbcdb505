package entitlement_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/advomarket/entitlement/pkg/entitlement"
)

// fakeClock lets tests move the catalog's wall clock forward.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestCatalogCaching(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("serves from cache within the freshness window", func(t *testing.T) {
		t.Parallel()
		clock := &fakeClock{now: testTime}
		store := &mockPlanStore{}
		store.On("FetchAllPlans", mock.Anything).Return(testPlans(), nil)

		catalog := entitlement.NewCatalog(store, entitlement.WithCatalogClock(clock.Now))

		for range 3 {
			plans, err := catalog.Plans(ctx)
			require.NoError(t, err)
			assert.Len(t, plans, 3)
			clock.Advance(time.Minute)
		}
		store.AssertNumberOfCalls(t, "FetchAllPlans", 1)

		// Past the five-minute window the next call refetches.
		clock.Advance(5 * time.Minute)
		_, err := catalog.Plans(ctx)
		require.NoError(t, err)
		store.AssertNumberOfCalls(t, "FetchAllPlans", 2)
	})

	t.Run("fails closed on refresh errors", func(t *testing.T) {
		t.Parallel()
		clock := &fakeClock{now: testTime}
		store := &mockPlanStore{}
		store.On("FetchAllPlans", mock.Anything).Return(testPlans(), nil).Once()
		store.On("FetchAllPlans", mock.Anything).Return(nil, errors.New("connection refused"))

		catalog := entitlement.NewCatalog(store, entitlement.WithCatalogClock(clock.Now))

		_, err := catalog.Plans(ctx)
		require.NoError(t, err)

		// The stale cache is not served once the window has passed.
		clock.Advance(entitlement.DefaultCatalogTTL + time.Second)
		_, err = catalog.Plans(ctx)
		require.Error(t, err)
		assert.ErrorIs(t, err, entitlement.ErrStoreUnavailable)
	})

	t.Run("invalidate forces a refetch", func(t *testing.T) {
		t.Parallel()
		clock := &fakeClock{now: testTime}
		store := &mockPlanStore{}
		store.On("FetchAllPlans", mock.Anything).Return(testPlans(), nil)

		catalog := entitlement.NewCatalog(store, entitlement.WithCatalogClock(clock.Now))

		_, err := catalog.Plans(ctx)
		require.NoError(t, err)
		catalog.Invalidate()
		_, err = catalog.Plans(ctx)
		require.NoError(t, err)
		store.AssertNumberOfCalls(t, "FetchAllPlans", 2)
	})

	t.Run("custom TTL", func(t *testing.T) {
		t.Parallel()
		clock := &fakeClock{now: testTime}
		store := &mockPlanStore{}
		store.On("FetchAllPlans", mock.Anything).Return(testPlans(), nil)

		catalog := entitlement.NewCatalog(store,
			entitlement.WithCatalogClock(clock.Now),
			entitlement.WithCatalogTTL(10*time.Second))

		_, err := catalog.Plans(ctx)
		require.NoError(t, err)
		clock.Advance(11 * time.Second)
		_, err = catalog.Plans(ctx)
		require.NoError(t, err)
		store.AssertNumberOfCalls(t, "FetchAllPlans", 2)
	})
}

func TestCatalogUserPlan(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("status store failure wraps ErrStoreUnavailable", func(t *testing.T) {
		t.Parallel()
		store := &mockPlanStore{}
		store.On("FetchUserSubscriptionStatus", mock.Anything, mock.Anything).
			Return("", errors.New("network down"))

		catalog := entitlement.NewCatalog(store)
		_, err := catalog.UserPlan(ctx, uuid.New())
		assert.ErrorIs(t, err, entitlement.ErrStoreUnavailable)
	})

	t.Run("user not found passes through unwrapped", func(t *testing.T) {
		t.Parallel()
		store := &mockPlanStore{}
		store.On("FetchUserSubscriptionStatus", mock.Anything, mock.Anything).
			Return("", entitlement.ErrUserNotFound)

		catalog := entitlement.NewCatalog(store)
		_, err := catalog.UserPlan(ctx, uuid.New())
		assert.ErrorIs(t, err, entitlement.ErrUserNotFound)
		assert.NotErrorIs(t, err, entitlement.ErrStoreUnavailable)
	})
}
