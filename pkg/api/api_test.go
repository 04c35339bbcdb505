package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/advomarket/entitlement/pkg/api"
	"github.com/advomarket/entitlement/pkg/entitlement"
)

type fixture struct {
	server *httptest.Server
	plans  *entitlement.MemoryPlanStore
	rels   *entitlement.MemoryRelationshipStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	plans := entitlement.NewMemoryPlanStore(
		entitlement.Plan{
			ID:   uuid.New(),
			Name: entitlement.FreePlanName,
			Features: map[entitlement.FeatureKey]entitlement.Limit{
				entitlement.FeatureAIQueries:   entitlement.LimitOf(3),
				entitlement.FeatureLawyerChats: entitlement.LimitOf(1),
			},
			CreatedAt: base,
		},
		entitlement.Plan{
			ID:       uuid.New(),
			Name:     "Pro",
			PriceRef: "price_pro_monthly",
			Features: map[entitlement.FeatureKey]entitlement.Limit{
				entitlement.FeatureAIQueries:   entitlement.Unlimited,
				entitlement.FeatureLawyerChats: entitlement.LimitOf(10),
			},
			CreatedAt: base.Add(time.Hour),
		},
	)
	rels := entitlement.NewMemoryRelationshipStore()

	svc := entitlement.NewService(
		entitlement.NewCatalog(plans),
		entitlement.NewMemoryUsageStore(),
		rels,
	)

	server := httptest.NewServer(api.NewRouter(api.RouterOptions{Service: svc}))
	t.Cleanup(server.Close)

	return &fixture{server: server, plans: plans, rels: rels}
}

func (f *fixture) do(t *testing.T, method, path string, out any) int {
	t.Helper()

	req, err := http.NewRequest(method, f.server.URL+path, nil)
	require.NoError(t, err)

	resp, err := f.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestGetPlan(t *testing.T) {
	t.Parallel()

	t.Run("returns the resolved plan", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		userID := uuid.New()
		f.plans.SetUserStatus(userID, "price_pro_monthly")

		var body struct {
			Name     string                     `json:"name"`
			PriceRef string                     `json:"price_ref"`
			Features map[string]json.RawMessage `json:"features"`
		}
		status := f.do(t, http.MethodGet, "/v1/users/"+userID.String()+"/plan", &body)

		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, "Pro", body.Name)
		assert.Equal(t, "price_pro_monthly", body.PriceRef)
		assert.JSONEq(t, `"unlimited"`, string(body.Features["ai_queries"]))
		assert.JSONEq(t, `10`, string(body.Features["lawyer_chats"]))
	})

	t.Run("unknown user is 404", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)

		var body struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		status := f.do(t, http.MethodGet, "/v1/users/"+uuid.NewString()+"/plan", &body)

		assert.Equal(t, http.StatusNotFound, status)
		assert.Equal(t, "user_not_found", body.Error.Code)
	})

	t.Run("malformed user ID is 400", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		status := f.do(t, http.MethodGet, "/v1/users/not-a-uuid/plan", nil)
		assert.Equal(t, http.StatusBadRequest, status)
	})
}

func TestFeatureAccess(t *testing.T) {
	t.Parallel()

	t.Run("allowed within the limit", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		userID := uuid.New()
		f.plans.SetUserStatus(userID, "")

		var body struct {
			Allowed bool            `json:"allowed"`
			Limit   json.RawMessage `json:"limit"`
		}
		status := f.do(t, http.MethodGet, "/v1/users/"+userID.String()+"/features/ai_queries/access", &body)

		require.Equal(t, http.StatusOK, status)
		assert.True(t, body.Allowed)
		assert.JSONEq(t, `3`, string(body.Limit))
	})

	t.Run("denial is 200 with allowed=false", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		userID := uuid.New()
		f.plans.SetUserStatus(userID, "")

		var body struct {
			Allowed bool `json:"allowed"`
		}
		status := f.do(t, http.MethodGet, "/v1/users/"+userID.String()+"/features/video_calls/access", &body)

		require.Equal(t, http.StatusOK, status)
		assert.False(t, body.Allowed)
	})
}

func TestFeatureUsage(t *testing.T) {
	t.Parallel()

	t.Run("increments until the quota is gone", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		userID := uuid.New()
		f.plans.SetUserStatus(userID, "")
		path := "/v1/users/" + userID.String() + "/features/ai_queries/usage"

		var body struct {
			Allowed   bool  `json:"allowed"`
			Remaining int64 `json:"remaining"`
		}
		for _, wantRemaining := range []int64{2, 1, 0} {
			status := f.do(t, http.MethodPost, path, &body)
			require.Equal(t, http.StatusOK, status)
			assert.True(t, body.Allowed)
			assert.Equal(t, wantRemaining, body.Remaining)
		}

		status := f.do(t, http.MethodPost, path, &body)
		require.Equal(t, http.StatusOK, status)
		assert.False(t, body.Allowed)
		assert.Zero(t, body.Remaining)
	})

	t.Run("unlimited usage reports -1 remaining", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		userID := uuid.New()
		f.plans.SetUserStatus(userID, "price_pro_monthly")

		var body struct {
			Allowed   bool  `json:"allowed"`
			Remaining int64 `json:"remaining"`
		}
		status := f.do(t, http.MethodPost, "/v1/users/"+userID.String()+"/features/ai_queries/usage", &body)

		require.Equal(t, http.StatusOK, status)
		assert.True(t, body.Allowed)
		assert.Equal(t, int64(-1), body.Remaining)
	})
}

func TestLawyerChatAccess(t *testing.T) {
	t.Parallel()

	t.Run("existing conversation is always allowed", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		userID := uuid.New()
		lawyerID := uuid.New()
		f.plans.SetUserStatus(userID, "")
		f.rels.Add(entitlement.Relationship{
			ID: uuid.New(), UserID: userID, LawyerID: lawyerID, InitiatedBy: userID,
		})

		var body struct {
			Allowed  bool `json:"allowed"`
			Existing bool `json:"existing"`
		}
		status := f.do(t, http.MethodGet,
			"/v1/users/"+userID.String()+"/lawyer-chats/"+lawyerID.String()+"/access", &body)

		require.Equal(t, http.StatusOK, status)
		assert.True(t, body.Allowed)
		assert.True(t, body.Existing)
	})

	t.Run("cap reached denies a new lawyer", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		userID := uuid.New()
		f.plans.SetUserStatus(userID, "")
		f.rels.Add(entitlement.Relationship{
			ID: uuid.New(), UserID: userID, LawyerID: uuid.New(), InitiatedBy: userID,
		})

		var body struct {
			Allowed bool  `json:"allowed"`
			Limit   int64 `json:"limit"`
		}
		status := f.do(t, http.MethodGet,
			"/v1/users/"+userID.String()+"/lawyer-chats/"+uuid.NewString()+"/access", &body)

		require.Equal(t, http.StatusOK, status)
		assert.False(t, body.Allowed)
		assert.Equal(t, int64(1), body.Limit)
	})
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	newServer := func(t *testing.T, health map[string]api.HealthCheck) *httptest.Server {
		t.Helper()

		plans := entitlement.NewMemoryPlanStore(entitlement.Plan{
			ID: uuid.New(), Name: entitlement.FreePlanName,
			Features: map[entitlement.FeatureKey]entitlement.Limit{},
		})
		svc := entitlement.NewService(
			entitlement.NewCatalog(plans),
			entitlement.NewMemoryUsageStore(),
			entitlement.NewMemoryRelationshipStore(),
		)
		server := httptest.NewServer(api.NewRouter(api.RouterOptions{Service: svc, Health: health}))
		t.Cleanup(server.Close)
		return server
	}

	t.Run("healthy dependencies report ok", func(t *testing.T) {
		t.Parallel()

		server := newServer(t, map[string]api.HealthCheck{
			"postgres": func(context.Context) error { return nil },
		})

		resp, err := server.Client().Get(server.URL + "/healthz")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("failing dependency degrades the report", func(t *testing.T) {
		t.Parallel()

		server := newServer(t, map[string]api.HealthCheck{
			"postgres": func(context.Context) error { return nil },
			"redis":    func(context.Context) error { return errors.New("connection refused") },
		})

		resp, err := server.Client().Get(server.URL + "/healthz")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

		var body struct {
			Status string `json:"status"`
			Checks map[string]struct {
				Status string `json:"status"`
			} `json:"checks"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "degraded", body.Status)
		assert.Equal(t, "up", body.Checks["postgres"].Status)
		assert.Equal(t, "down", body.Checks["redis"].Status)
	})
}
