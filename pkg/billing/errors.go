package billing

import "errors"

var (
	ErrMissingWebhookSecret      = errors.New("billing webhook secret is required")
	ErrWebhookVerificationFailed = errors.New("webhook signature verification failed")
	ErrInvalidWebhookPayload     = errors.New("invalid webhook payload")
	ErrMissingUserID             = errors.New("webhook event carries no user ID")
)
