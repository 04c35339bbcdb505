package entitlement

import (
	"time"

	"github.com/google/uuid"
)

// FreePlanName is the name of the mandatory fallback plan. A plan with this
// name must always exist in the catalog; users with an empty or unmatched
// subscription status resolve to it.
const FreePlanName = "Free"

// Plan describes a subscription tier and its feature entitlements.
// PriceRef ties the plan to the billing provider's price identifier; a user's
// subscription status holds the PriceRef of their active paid plan. Plans are
// administrator-managed reference data and read-mostly from this package's
// point of view.
type Plan struct {
	ID        uuid.UUID
	Name      string
	PriceRef  string
	Features  map[FeatureKey]Limit
	CreatedAt time.Time
}

// FeatureLimit returns the limit for key and whether the plan defines it.
// An absent entry means the plan does not entitle the feature at all.
func (p Plan) FeatureLimit(key FeatureKey) (Limit, bool) {
	l, ok := p.Features[key]
	return l, ok
}

// IsFree reports whether this is the fallback plan.
func (p Plan) IsFree() bool {
	return p.Name == FreePlanName
}

// matchPlan selects the plan whose PriceRef equals status. An empty or
// unmatched status falls back to the plan named Free.
func matchPlan(plans []Plan, status string) (Plan, error) {
	if status != "" {
		for _, p := range plans {
			if p.PriceRef == status {
				return p, nil
			}
		}
	}
	for _, p := range plans {
		if p.IsFree() {
			return p, nil
		}
	}
	return Plan{}, ErrNoFreePlanConfigured
}
