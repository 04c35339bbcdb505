// Package billing keeps users' subscription status in sync with the payment
// platform. It consumes verified Paddle webhooks and writes the subscribed
// price reference into the user's subscription status, which is what the
// entitlement plan resolver matches plans against. Checkout and customer
// portal flows are hosted by Paddle and out of scope here.
package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"
	"github.com/google/uuid"
)

// Config holds the Paddle webhook configuration.
type Config struct {
	WebhookSecret string `env:"PADDLE_WEBHOOK_SECRET,required"`
}

// StatusWriter persists a user's plan reference after a billing event.
// An empty status clears the paid subscription, so the user falls back to the
// Free plan on the next entitlement check.
type StatusWriter interface {
	SetUserSubscriptionStatus(ctx context.Context, userID uuid.UUID, status string) error
}

// EventType is the normalized billing event type.
type EventType string

const (
	EventSubscriptionCreated   EventType = "subscription_created"
	EventSubscriptionUpdated   EventType = "subscription_updated"
	EventSubscriptionCancelled EventType = "subscription_cancelled"
	EventSubscriptionResumed   EventType = "subscription_resumed"
	EventPaymentFailed         EventType = "payment_failed"
)

// WebhookEvent is a normalized Paddle webhook event.
type WebhookEvent struct {
	Type           EventType
	ProviderEvent  string
	SubscriptionID string
	UserID         uuid.UUID
	Status         string
	PriceRef       string
	Raw            map[string]any
}

// PaddleWebhook verifies, parses and applies Paddle webhook events.
type PaddleWebhook struct {
	verifier *paddle.WebhookVerifier
	statuses StatusWriter
	log      *slog.Logger
}

// Option configures a PaddleWebhook.
type Option func(*PaddleWebhook)

// WithLogger attaches a structured logger. Without it the handler is silent.
func WithLogger(log *slog.Logger) Option {
	return func(w *PaddleWebhook) {
		if log != nil {
			w.log = log
		}
	}
}

// NewPaddleWebhook creates the webhook handler.
func NewPaddleWebhook(cfg Config, statuses StatusWriter, opts ...Option) (*PaddleWebhook, error) {
	if cfg.WebhookSecret == "" {
		return nil, ErrMissingWebhookSecret
	}
	if statuses == nil {
		panic("billing: StatusWriter is required")
	}

	w := &PaddleWebhook{
		verifier: paddle.NewWebhookVerifier(cfg.WebhookSecret),
		statuses: statuses,
		log:      slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// HandleRequest verifies the request signature, parses the event and applies
// the resulting status change. Intended to back an HTTP webhook route.
func (w *PaddleWebhook) HandleRequest(req *http.Request) error {
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return errors.Join(ErrInvalidWebhookPayload, err)
	}
	req.Body = io.NopCloser(bytes.NewReader(body))

	event, err := w.ParseWebhook(req.Context(), body, req.Header.Get("Paddle-Signature"))
	if err != nil {
		return err
	}
	return w.Process(req.Context(), event)
}

// ParseWebhook validates the signature and normalizes the payload.
func (w *PaddleWebhook) ParseWebhook(ctx context.Context, payload []byte, signature string) (*WebhookEvent, error) {
	// The SDK verifier works on an http.Request, so wrap the raw payload.
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "/webhook", bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Join(ErrInvalidWebhookPayload, err)
	}
	req.Header.Set("Paddle-Signature", signature)

	valid, err := w.verifier.Verify(req)
	if err != nil {
		return nil, errors.Join(ErrWebhookVerificationFailed, err)
	}
	if !valid {
		return nil, ErrWebhookVerificationFailed
	}

	return decodeEvent(payload)
}

// Process applies the status change an event implies.
// Unmapped event types are logged and ignored so new Paddle events never
// break the webhook endpoint.
func (w *PaddleWebhook) Process(ctx context.Context, event *WebhookEvent) error {
	switch event.Type {
	case EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionResumed:
		if event.UserID == uuid.Nil {
			return errors.Join(ErrMissingUserID, fmt.Errorf("event %s", event.ProviderEvent))
		}
		if event.PriceRef == "" {
			return errors.Join(ErrInvalidWebhookPayload,
				fmt.Errorf("event %s carries no price reference", event.ProviderEvent))
		}
		if err := w.statuses.SetUserSubscriptionStatus(ctx, event.UserID, event.PriceRef); err != nil {
			return fmt.Errorf("failed to update subscription status: %w", err)
		}
		w.log.InfoContext(ctx, "subscription status updated",
			slog.Any("user_id", event.UserID), slog.String("price_ref", event.PriceRef))

	case EventSubscriptionCancelled:
		if event.UserID == uuid.Nil {
			return errors.Join(ErrMissingUserID, fmt.Errorf("event %s", event.ProviderEvent))
		}
		if err := w.statuses.SetUserSubscriptionStatus(ctx, event.UserID, ""); err != nil {
			return fmt.Errorf("failed to clear subscription status: %w", err)
		}
		w.log.InfoContext(ctx, "subscription cancelled", slog.Any("user_id", event.UserID))

	case EventPaymentFailed:
		// The plan reference stays until the subscription is actually
		// cancelled; dunning is Paddle's job.
		w.log.WarnContext(ctx, "payment failed",
			slog.Any("user_id", event.UserID), slog.String("subscription_id", event.SubscriptionID))

	default:
		w.log.DebugContext(ctx, "ignoring unmapped webhook event",
			slog.String("event", event.ProviderEvent))
	}

	return nil
}

func decodeEvent(payload []byte) (*WebhookEvent, error) {
	var paddleEvent struct {
		EventID   string         `json:"event_id"`
		EventType string         `json:"event_type"`
		Data      map[string]any `json:"data"`
	}
	if err := json.Unmarshal(payload, &paddleEvent); err != nil {
		return nil, errors.Join(ErrInvalidWebhookPayload, err)
	}

	event := &WebhookEvent{
		Type:          mapEventType(paddleEvent.EventType),
		ProviderEvent: paddleEvent.EventType,
		Raw:           paddleEvent.Data,
	}

	if subID, ok := paddleEvent.Data["id"].(string); ok {
		event.SubscriptionID = subID
	}
	if status, ok := paddleEvent.Data["status"].(string); ok {
		event.Status = status
	}

	// The marketplace stores its user ID in the subscription's custom data.
	if customData, ok := paddleEvent.Data["custom_data"].(map[string]any); ok {
		if raw, ok := customData["user_id"].(string); ok {
			if userID, err := uuid.Parse(raw); err == nil {
				event.UserID = userID
			}
		}
	}

	// The first line item's price ID is the plan's price reference.
	if items, ok := paddleEvent.Data["items"].([]any); ok && len(items) > 0 {
		if item, ok := items[0].(map[string]any); ok {
			if price, ok := item["price"].(map[string]any); ok {
				if priceID, ok := price["id"].(string); ok {
					event.PriceRef = priceID
				}
			}
			if priceID, ok := item["price_id"].(string); ok {
				event.PriceRef = priceID
			}
		}
	}

	return event, nil
}

func mapEventType(providerEvent string) EventType {
	switch strings.ToLower(providerEvent) {
	case "subscription.created", "subscription.activated":
		return EventSubscriptionCreated
	case "subscription.updated":
		return EventSubscriptionUpdated
	case "subscription.canceled", "subscription.cancelled":
		return EventSubscriptionCancelled
	case "subscription.resumed":
		return EventSubscriptionResumed
	case "transaction.payment_failed":
		return EventPaymentFailed
	default:
		return EventType(providerEvent)
	}
}
