package entitlement

import "errors"

var (
	ErrStoreUnavailable     = errors.New("entitlement store unavailable")
	ErrUserNotFound         = errors.New("user not found")
	ErrNoFreePlanConfigured = errors.New("no fallback plan named Free is configured")
	ErrInvalidPlanConfig    = errors.New("invalid plan feature limit")

	ErrUsageNotFound        = errors.New("usage record not found")
	ErrRelationshipNotFound = errors.New("chat relationship not found")
)
