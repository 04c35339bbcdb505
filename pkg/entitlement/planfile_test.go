package entitlement_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/advomarket/entitlement/pkg/entitlement"
)

type staticStatusSource map[uuid.UUID]string

func (s staticStatusSource) FetchUserSubscriptionStatus(_ context.Context, userID uuid.UUID) (string, error) {
	status, ok := s[userID]
	if !ok {
		return "", entitlement.ErrUserNotFound
	}
	return status, nil
}

func writePlanFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plans.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNewFilePlanStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("loads catalog in file order", func(t *testing.T) {
		t.Parallel()
		path := writePlanFile(t, `
plans:
  - name: Free
    features:
      ai_queries: 3
      lawyer_chats: 1
  - name: Pro
    price_ref: price_pro_monthly
    features:
      ai_queries: unlimited
      lawyer_chats: 10
`)
		store, err := entitlement.NewFilePlanStore(path, staticStatusSource{})
		require.NoError(t, err)

		plans, err := store.FetchAllPlans(ctx)
		require.NoError(t, err)
		require.Len(t, plans, 2)
		assert.Equal(t, "Free", plans[0].Name)
		assert.Equal(t, "Pro", plans[1].Name)
		assert.True(t, plans[0].CreatedAt.Before(plans[1].CreatedAt))

		assert.Equal(t, entitlement.LimitOf(3), plans[0].Features[entitlement.FeatureAIQueries])
		assert.Equal(t, entitlement.Unlimited, plans[1].Features[entitlement.FeatureAIQueries])
	})

	t.Run("delegates user status lookups", func(t *testing.T) {
		t.Parallel()
		userID := uuid.New()
		path := writePlanFile(t, "plans:\n  - name: Free\n")
		store, err := entitlement.NewFilePlanStore(path, staticStatusSource{userID: "price_pro_monthly"})
		require.NoError(t, err)

		status, err := store.FetchUserSubscriptionStatus(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, "price_pro_monthly", status)

		_, err = store.FetchUserSubscriptionStatus(ctx, uuid.New())
		assert.ErrorIs(t, err, entitlement.ErrUserNotFound)
	})

	t.Run("rejects a catalog without a Free plan", func(t *testing.T) {
		t.Parallel()
		path := writePlanFile(t, `
plans:
  - name: Pro
    price_ref: price_pro_monthly
`)
		_, err := entitlement.NewFilePlanStore(path, staticStatusSource{})
		assert.ErrorIs(t, err, entitlement.ErrNoFreePlanConfigured)
	})

	t.Run("rejects malformed limits", func(t *testing.T) {
		t.Parallel()
		path := writePlanFile(t, `
plans:
  - name: Free
    features:
      ai_queries: whenever
`)
		_, err := entitlement.NewFilePlanStore(path, staticStatusSource{})
		assert.ErrorIs(t, err, entitlement.ErrInvalidPlanConfig)
	})

	t.Run("rejects an empty catalog", func(t *testing.T) {
		t.Parallel()
		path := writePlanFile(t, "plans: []\n")
		_, err := entitlement.NewFilePlanStore(path, staticStatusSource{})
		assert.ErrorIs(t, err, entitlement.ErrInvalidPlanConfig)
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()
		_, err := entitlement.NewFilePlanStore(filepath.Join(t.TempDir(), "absent.yaml"), staticStatusSource{})
		assert.ErrorIs(t, err, entitlement.ErrStoreUnavailable)
	})
}
