package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/advomarket/entitlement/pkg/billing"
	"github.com/advomarket/entitlement/pkg/entitlement"
)

// errorBody is the standard JSON error envelope.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func badRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, errorBody{errorDetail{Code: "invalid_argument", Message: message}})
}

// writeError maps domain errors to HTTP statuses. Entitlement denials are not
// errors and never reach this path; they render as 200 with allowed=false.
func writeError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	var status int
	var code string

	switch {
	case errors.Is(err, entitlement.ErrUserNotFound):
		status, code = http.StatusNotFound, "user_not_found"
	case errors.Is(err, entitlement.ErrStoreUnavailable):
		status, code = http.StatusBadGateway, "store_unavailable"
	case errors.Is(err, entitlement.ErrNoFreePlanConfigured),
		errors.Is(err, entitlement.ErrInvalidPlanConfig):
		status, code = http.StatusInternalServerError, "plan_misconfigured"
	case errors.Is(err, billing.ErrWebhookVerificationFailed):
		status, code = http.StatusForbidden, "webhook_verification_failed"
	case errors.Is(err, billing.ErrInvalidWebhookPayload),
		errors.Is(err, billing.ErrMissingUserID):
		status, code = http.StatusBadRequest, "invalid_webhook_payload"
	default:
		status, code = http.StatusInternalServerError, "internal_error"
	}

	if status >= http.StatusInternalServerError {
		log.ErrorContext(r.Context(), "request failed",
			slog.String("path", r.URL.Path), slog.String("error", err.Error()))
	} else {
		log.DebugContext(r.Context(), "request rejected",
			slog.String("path", r.URL.Path), slog.String("error", err.Error()))
	}

	writeJSON(w, status, errorBody{errorDetail{Code: code, Message: http.StatusText(status)}})
}
