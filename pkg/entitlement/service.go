package entitlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Service is the entitlement facade consumed by the application's metered
// routes. Callers are expected to check before acting and increment after the
// action succeeds; the two calls are independent operations with no isolation
// guarantee between them (see IncrementFeatureUsage for how the window is
// closed when the usage store supports it).
type Service interface {
	// GetUserSubscriptionPlan resolves the caller's current plan.
	GetUserSubscriptionPlan(ctx context.Context, userID uuid.UUID) (Plan, error)

	// CheckFeatureAccess reports whether one more unit of feature may be
	// consumed right now, without mutating any state.
	CheckFeatureAccess(ctx context.Context, userID uuid.UUID, feature FeatureKey) (Access, error)

	// IncrementFeatureUsage records one consumed unit, subject to the same
	// limit as CheckFeatureAccess, and reports the remaining quota.
	IncrementFeatureUsage(ctx context.Context, userID uuid.UUID, feature FeatureKey) (Usage, error)

	// CheckLawyerChatInitiation reports whether the user may open a
	// conversation with lawyerID under their plan's distinct-lawyer cap.
	CheckLawyerChatInitiation(ctx context.Context, userID, lawyerID uuid.UUID) (ChatInitiation, error)
}

type service struct {
	catalog       *Catalog
	usage         UsageStore
	relationships RelationshipStore
	now           func() time.Time
	log           *slog.Logger
}

// Option configures the service.
type Option func(*service)

// WithClock injects the wall clock used to derive the usage day.
func WithClock(now func() time.Time) Option {
	if now == nil {
		panic("WithClock: clock must not be nil")
	}
	return func(s *service) { s.now = now }
}

// WithLogger attaches a structured logger. Without it the service is silent.
func WithLogger(log *slog.Logger) Option {
	return func(s *service) {
		if log != nil {
			s.log = log
		}
	}
}

// NewService creates the entitlement service.
// Panics on nil dependencies to fail fast during wiring.
func NewService(catalog *Catalog, usage UsageStore, relationships RelationshipStore, opts ...Option) Service {
	if catalog == nil {
		panic("entitlement: Catalog is required")
	}
	if usage == nil {
		panic("entitlement: UsageStore is required")
	}
	if relationships == nil {
		panic("entitlement: RelationshipStore is required")
	}

	s := &service{
		catalog:       catalog,
		usage:         usage,
		relationships: relationships,
		now:           time.Now,
		log:           slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *service) GetUserSubscriptionPlan(ctx context.Context, userID uuid.UUID) (Plan, error) {
	return s.catalog.UserPlan(ctx, userID)
}

func (s *service) CheckFeatureAccess(ctx context.Context, userID uuid.UUID, feature FeatureKey) (Access, error) {
	plan, err := s.catalog.UserPlan(ctx, userID)
	if err != nil {
		return Access{}, err
	}

	limit, ok := plan.FeatureLimit(feature)
	if !ok {
		// An absent feature entry means "not entitled", not an error.
		return Access{Allowed: false, Limit: LimitOf(0)}, nil
	}

	if limit.Unlimited {
		// No usage lookup needed; the answer cannot depend on it.
		return Access{Allowed: true, Limit: limit}, nil
	}

	if limit.Count < 0 {
		return Access{}, errors.Join(ErrInvalidPlanConfig,
			fmt.Errorf("plan %s: feature %s has negative limit %d", plan.Name, feature, limit.Count))
	}

	current, err := s.currentUsage(ctx, userID, feature, DayOf(s.now()))
	if err != nil {
		return Access{}, err
	}

	// Strict comparison: a limit of N admits exactly N increments per day.
	return Access{Allowed: limit.Count > current, Limit: limit}, nil
}

func (s *service) IncrementFeatureUsage(ctx context.Context, userID uuid.UUID, feature FeatureKey) (Usage, error) {
	day := DayOf(s.now())

	plan, err := s.catalog.UserPlan(ctx, userID)
	if err != nil {
		return Usage{}, err
	}

	limit, ok := plan.FeatureLimit(feature)
	if !ok {
		return Usage{Allowed: false, Remaining: 0}, nil
	}

	if limit.Unlimited {
		// Unlimited plans still get their consumption recorded for reporting.
		current, err := s.currentUsage(ctx, userID, feature, day)
		if err != nil {
			return Usage{}, err
		}
		if err := s.upsertUsage(ctx, userID, feature, day, current+1); err != nil {
			return Usage{}, err
		}
		return Usage{Allowed: true, Remaining: UnlimitedRemaining}, nil
	}

	if limit.Count < 0 {
		return Usage{}, errors.Join(ErrInvalidPlanConfig,
			fmt.Errorf("plan %s: feature %s has negative limit %d", plan.Name, feature, limit.Count))
	}

	// A single store-side conditional increment closes the check-then-act
	// window between concurrent callers when the backend supports it.
	if cond, ok := s.usage.(ConditionalUsageStore); ok {
		newCount, allowed, err := cond.IncrementUsageBelow(ctx, userID, feature, day, limit.Count)
		if err != nil {
			return Usage{}, errors.Join(ErrStoreUnavailable, err)
		}
		if !allowed {
			return Usage{Allowed: false, Remaining: 0}, nil
		}
		s.log.DebugContext(ctx, "feature usage incremented",
			slog.Any("user_id", userID), slog.String("feature", string(feature)), slog.Int64("count", newCount))
		return Usage{Allowed: true, Remaining: limit.Count - newCount}, nil
	}

	// Portable read-then-write path. Not atomic: concurrent increments for the
	// same key can both observe the same count and overshoot the limit.
	current, err := s.currentUsage(ctx, userID, feature, day)
	if err != nil {
		return Usage{}, err
	}

	access, err := s.CheckFeatureAccess(ctx, userID, feature)
	if err != nil {
		return Usage{}, err
	}

	// The count guard repeats the access check on purpose: the two reads are
	// independent and either may be the one that observes the limit reached.
	if !access.Allowed || current >= limit.Count {
		return Usage{Allowed: false, Remaining: 0}, nil
	}

	if err := s.upsertUsage(ctx, userID, feature, day, current+1); err != nil {
		return Usage{}, err
	}

	return Usage{Allowed: true, Remaining: limit.Count - (current + 1)}, nil
}

func (s *service) CheckLawyerChatInitiation(ctx context.Context, userID, lawyerID uuid.UUID) (ChatInitiation, error) {
	if userID == uuid.Nil || lawyerID == uuid.Nil {
		return ChatInitiation{}, nil
	}

	plan, err := s.catalog.UserPlan(ctx, userID)
	if err != nil {
		return ChatInitiation{}, err
	}

	limit, ok := plan.FeatureLimit(FeatureLawyerChats)
	if !ok {
		return ChatInitiation{}, nil
	}

	maxLawyers := limit.Count
	if limit.Unlimited {
		maxLawyers = UnlimitedRemaining
	}

	// Grandfather clause: an existing conversation may always continue, even
	// on a plan that no longer permits new ones. Checked before the zero-cap
	// exit so a downgrade never locks users out of open conversations.
	rel, err := s.relationships.FindRelationship(ctx, userID, lawyerID)
	switch {
	case err == nil && rel != nil:
		return ChatInitiation{Allowed: true, Limit: maxLawyers, Existing: true}, nil
	case err != nil && !errors.Is(err, ErrRelationshipNotFound):
		return ChatInitiation{}, errors.Join(ErrStoreUnavailable, err)
	}

	if limit.Unlimited {
		return ChatInitiation{Allowed: true, Limit: maxLawyers}, nil
	}
	if maxLawyers == 0 {
		// Zero-cap plans never need the count query.
		return ChatInitiation{}, nil
	}

	// Only client-initiated conversations count toward the cap;
	// lawyer-initiated outreach does not consume the client's allowance.
	current, err := s.relationships.CountInitiatedRelationships(ctx, userID)
	if err != nil {
		return ChatInitiation{}, errors.Join(ErrStoreUnavailable, err)
	}

	return ChatInitiation{
		Allowed:   current < maxLawyers,
		Limit:     maxLawyers,
		Current:   current,
		Remaining: maxLawyers - current,
	}, nil
}

func (s *service) currentUsage(ctx context.Context, userID uuid.UUID, feature FeatureKey, day Day) (int64, error) {
	current, err := s.usage.GetUsage(ctx, userID, feature, day)
	if err != nil {
		if errors.Is(err, ErrUsageNotFound) {
			return 0, nil
		}
		return 0, errors.Join(ErrStoreUnavailable, err)
	}
	return current, nil
}

func (s *service) upsertUsage(ctx context.Context, userID uuid.UUID, feature FeatureKey, day Day, count int64) error {
	if err := s.usage.UpsertUsage(ctx, userID, feature, day, count); err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	return nil
}
