package entitlement

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultCatalogTTL is the freshness window of the in-process plan cache.
const DefaultCatalogTTL = 5 * time.Minute

// Catalog resolves subscription plans through a process-wide cache so the
// catalog is fetched at most once per freshness window. Refresh is lazy: the
// cache is only refetched on the next call after expiry, never in the
// background. A fetch failure is returned as is and the stale cache is not
// served (fail-closed) — plans are admin-configured reference data, so a
// failed refresh signals a real outage rather than something to paper over.
type Catalog struct {
	store PlanStore
	ttl   time.Duration
	now   func() time.Time

	mu        sync.RWMutex
	plans     []Plan
	expiresAt time.Time
}

// CatalogOption configures a Catalog.
type CatalogOption func(*Catalog)

// WithCatalogTTL overrides the cache freshness window.
func WithCatalogTTL(d time.Duration) CatalogOption {
	if d <= 0 {
		panic("WithCatalogTTL: duration must be > 0")
	}
	return func(c *Catalog) { c.ttl = d }
}

// WithCatalogClock injects the wall clock, letting tests drive cache expiry
// deterministically.
func WithCatalogClock(now func() time.Time) CatalogOption {
	if now == nil {
		panic("WithCatalogClock: clock must not be nil")
	}
	return func(c *Catalog) { c.now = now }
}

// NewCatalog creates a Catalog backed by store.
// Panics on a nil store to fail fast during wiring.
func NewCatalog(store PlanStore, opts ...CatalogOption) *Catalog {
	if store == nil {
		panic("entitlement: PlanStore is required")
	}
	c := &Catalog{
		store: store,
		ttl:   DefaultCatalogTTL,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Plans returns the cached plan list, refreshing it from the store once the
// freshness window has passed. Two callers hitting an expired cache may both
// fetch and both write; the last write wins, which is harmless since both
// carry consistent reads of the same catalog. The returned slice is a copy,
// but the plans inside share their feature maps and must not be mutated.
func (c *Catalog) Plans(ctx context.Context) ([]Plan, error) {
	c.mu.RLock()
	if !c.expiresAt.IsZero() && c.now().Before(c.expiresAt) {
		plans := slices.Clone(c.plans)
		c.mu.RUnlock()
		return plans, nil
	}
	c.mu.RUnlock()

	plans, err := c.store.FetchAllPlans(ctx)
	if err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}

	c.mu.Lock()
	c.plans = plans
	c.expiresAt = c.now().Add(c.ttl)
	c.mu.Unlock()

	return slices.Clone(plans), nil
}

// Invalidate drops the cached catalog so the next Plans call refetches.
// Intended for admin tooling that just changed plan data.
func (c *Catalog) Invalidate() {
	c.mu.Lock()
	c.plans = nil
	c.expiresAt = time.Time{}
	c.mu.Unlock()
}

// UserPlan resolves the current plan for userID: the user's subscription
// status is matched against each plan's PriceRef, and an empty or unmatched
// status falls back to the plan named Free.
func (c *Catalog) UserPlan(ctx context.Context, userID uuid.UUID) (Plan, error) {
	status, err := c.store.FetchUserSubscriptionStatus(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return Plan{}, err
		}
		return Plan{}, errors.Join(ErrStoreUnavailable, err)
	}

	plans, err := c.Plans(ctx)
	if err != nil {
		return Plan{}, err
	}

	return matchPlan(plans, status)
}
