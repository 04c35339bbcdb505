package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/advomarket/entitlement/pkg/billing"
	"github.com/advomarket/entitlement/pkg/entitlement"
)

type handler struct {
	svc     entitlement.Service
	webhook *billing.PaddleWebhook
	health  map[string]HealthCheck
	log     *slog.Logger
}

// planResponse is the wire form of a resolved plan. Internal fields like the
// catalog timestamps stay off the wire.
type planResponse struct {
	ID       uuid.UUID                                    `json:"id"`
	Name     string                                       `json:"name"`
	PriceRef string                                       `json:"price_ref,omitempty"`
	Features map[entitlement.FeatureKey]entitlement.Limit `json:"features"`
}

func pathUUID(r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	return id, err == nil && id != uuid.Nil
}

func (h *handler) getPlan(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUUID(r, "userID")
	if !ok {
		badRequest(w, "userID must be a valid UUID")
		return
	}

	plan, err := h.svc.GetUserSubscriptionPlan(r.Context(), userID)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, planResponse{
		ID:       plan.ID,
		Name:     plan.Name,
		PriceRef: plan.PriceRef,
		Features: plan.Features,
	})
}

func (h *handler) getFeatureAccess(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUUID(r, "userID")
	if !ok {
		badRequest(w, "userID must be a valid UUID")
		return
	}
	feature := entitlement.FeatureKey(chi.URLParam(r, "feature"))
	if feature == "" {
		badRequest(w, "feature key is required")
		return
	}

	access, err := h.svc.CheckFeatureAccess(r.Context(), userID, feature)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, access)
}

func (h *handler) postFeatureUsage(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUUID(r, "userID")
	if !ok {
		badRequest(w, "userID must be a valid UUID")
		return
	}
	feature := entitlement.FeatureKey(chi.URLParam(r, "feature"))
	if feature == "" {
		badRequest(w, "feature key is required")
		return
	}

	usage, err := h.svc.IncrementFeatureUsage(r.Context(), userID, feature)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, usage)
}

func (h *handler) getLawyerChatAccess(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUUID(r, "userID")
	if !ok {
		badRequest(w, "userID must be a valid UUID")
		return
	}
	lawyerID, ok := pathUUID(r, "lawyerID")
	if !ok {
		badRequest(w, "lawyerID must be a valid UUID")
		return
	}

	result, err := h.svc.CheckLawyerChatInitiation(r.Context(), userID, lawyerID)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handler) postPaddleWebhook(w http.ResponseWriter, r *http.Request) {
	if err := h.webhook.HandleRequest(r); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *handler) healthz(w http.ResponseWriter, r *http.Request) {
	type checkResult struct {
		Status string `json:"status"`
		Error  string `json:"error,omitempty"`
	}

	results := make(map[string]checkResult, len(h.health))
	healthy := true
	for name, check := range h.health {
		if err := check(r.Context()); err != nil {
			healthy = false
			results[name] = checkResult{Status: "down", Error: err.Error()}
			continue
		}
		results[name] = checkResult{Status: "up"}
	}

	status := http.StatusOK
	overall := "ok"
	if !healthy {
		status = http.StatusServiceUnavailable
		overall = "degraded"
	}
	writeJSON(w, status, map[string]any{"status": overall, "checks": results})
}
