// Package api exposes the entitlement service over HTTP. All check and
// increment endpoints answer denials with 200 and allowed=false; error
// statuses are reserved for unknown users, bad input and infrastructure
// failures.
package api

import (
	"context"
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/advomarket/entitlement/pkg/billing"
	"github.com/advomarket/entitlement/pkg/entitlement"
)

// HealthCheck probes one dependency. A nil error means healthy.
type HealthCheck func(ctx context.Context) error

// RouterOptions configures the HTTP router. Service is required; the webhook
// route is mounted only when Webhook is set.
type RouterOptions struct {
	Service entitlement.Service
	Webhook *billing.PaddleWebhook
	Health  map[string]HealthCheck
	Logger  *slog.Logger
}

// NewRouter builds the service's HTTP routes.
func NewRouter(opts RouterOptions) chi.Router {
	if opts.Service == nil {
		panic("api: entitlement service is required")
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	h := &handler{svc: opts.Service, webhook: opts.Webhook, health: opts.Health, log: log}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.healthz)

	r.Route("/v1/users/{userID}", func(r chi.Router) {
		r.Get("/plan", h.getPlan)
		r.Get("/features/{feature}/access", h.getFeatureAccess)
		r.Post("/features/{feature}/usage", h.postFeatureUsage)
		r.Get("/lawyer-chats/{lawyerID}/access", h.getLawyerChatAccess)
	})

	if opts.Webhook != nil {
		r.Post("/webhooks/paddle", h.postPaddleWebhook)
	}

	return r
}
