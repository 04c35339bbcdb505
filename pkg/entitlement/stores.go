package entitlement

import (
	"context"

	"github.com/google/uuid"
)

// PlanStore provides the plan catalog and a user's current plan reference.
type PlanStore interface {
	// FetchAllPlans returns every plan ordered by creation time ascending.
	FetchAllPlans(ctx context.Context) ([]Plan, error)

	// FetchUserSubscriptionStatus returns the user's plan reference, or the
	// empty string when the user has no active paid subscription.
	// Returns ErrUserNotFound when the user record does not exist.
	FetchUserSubscriptionStatus(ctx context.Context, userID uuid.UUID) (string, error)
}

// UsageStore persists per-user, per-feature, per-day counters.
type UsageStore interface {
	// GetUsage returns the counter for the key, or ErrUsageNotFound when no
	// record exists yet for that day.
	GetUsage(ctx context.Context, userID uuid.UUID, feature FeatureKey, day Day) (int64, error)

	// UpsertUsage writes the counter, updating in place when a record for the
	// (user, feature, day) key already exists.
	UpsertUsage(ctx context.Context, userID uuid.UUID, feature FeatureKey, day Day, count int64) error
}

// ConditionalUsageStore is an optional UsageStore extension for backends that
// can increment a counter and enforce the limit in a single store-side
// operation. The service prefers it over the portable read-then-upsert
// sequence because it closes the check-then-act window between concurrent
// increments.
type ConditionalUsageStore interface {
	UsageStore

	// IncrementUsageBelow atomically increments the counter only while its
	// current value is below limit. It returns the post-increment count and
	// whether the increment was applied.
	IncrementUsageBelow(ctx context.Context, userID uuid.UUID, feature FeatureKey, day Day, limit int64) (int64, bool, error)
}

// RelationshipStore exposes existing client-lawyer conversations.
// The entitlement service only reads relationships; conversation creation
// belongs to the chat layer.
type RelationshipStore interface {
	// FindRelationship looks up a conversation between the two participants
	// in either direction. Returns ErrRelationshipNotFound when none exists.
	FindRelationship(ctx context.Context, userID, lawyerID uuid.UUID) (*Relationship, error)

	// CountInitiatedRelationships counts the distinct conversations the user
	// opened. Lawyer-initiated conversations are excluded.
	CountInitiatedRelationships(ctx context.Context, userID uuid.UUID) (int64, error)
}
