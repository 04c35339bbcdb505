package entitlement

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// UserStatusSource supplies the user half of PlanStore for deployments where
// the plan catalog itself is file-defined rather than stored.
type UserStatusSource interface {
	FetchUserSubscriptionStatus(ctx context.Context, userID uuid.UUID) (string, error)
}

type planFile struct {
	Plans []planFileEntry `yaml:"plans"`
}

type planFileEntry struct {
	ID        string               `yaml:"id"`
	Name      string               `yaml:"name"`
	PriceRef  string               `yaml:"price_ref"`
	Features  map[FeatureKey]Limit `yaml:"features"`
	CreatedAt time.Time            `yaml:"created_at"`
}

type filePlanStore struct {
	plans []Plan
	users UserStatusSource
}

// NewFilePlanStore loads a static plan catalog from a YAML file. File order
// defines catalog order; entries without a created_at get synthetic ascending
// timestamps so ordering survives the CreatedAt-based contract. The file must
// contain a plan named Free — a misconfigured catalog should fail at startup,
// not on the first unmatched user.
//
// Example file:
//
//	plans:
//	  - name: Free
//	    features:
//	      ai_queries: 3
//	      lawyer_chats: 1
//	  - name: Pro
//	    price_ref: price_pro_monthly
//	    features:
//	      ai_queries: unlimited
//	      lawyer_chats: 10
func NewFilePlanStore(path string, users UserStatusSource) (PlanStore, error) {
	if users == nil {
		panic("entitlement: UserStatusSource is required")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}

	var f planFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, errors.Join(ErrInvalidPlanConfig, err)
	}
	if len(f.Plans) == 0 {
		return nil, errors.Join(ErrInvalidPlanConfig, fmt.Errorf("plan file %s defines no plans", path))
	}

	base := time.Unix(0, 0).UTC()
	plans := make([]Plan, 0, len(f.Plans))
	hasFree := false
	for i, e := range f.Plans {
		if e.Name == "" {
			return nil, errors.Join(ErrInvalidPlanConfig, fmt.Errorf("plan %d has no name", i))
		}

		id := uuid.New()
		if e.ID != "" {
			id, err = uuid.Parse(e.ID)
			if err != nil {
				return nil, errors.Join(ErrInvalidPlanConfig,
					fmt.Errorf("plan %q has invalid id %q: %w", e.Name, e.ID, err))
			}
		}

		createdAt := e.CreatedAt
		if createdAt.IsZero() {
			createdAt = base.Add(time.Duration(i) * time.Second)
		}

		if e.Name == FreePlanName {
			hasFree = true
		}

		plans = append(plans, Plan{
			ID:        id,
			Name:      e.Name,
			PriceRef:  e.PriceRef,
			Features:  e.Features,
			CreatedAt: createdAt,
		})
	}

	if !hasFree {
		return nil, ErrNoFreePlanConfigured
	}

	return &filePlanStore{plans: plans, users: users}, nil
}

func (s *filePlanStore) FetchAllPlans(_ context.Context) ([]Plan, error) {
	return clonePlans(s.plans), nil
}

func (s *filePlanStore) FetchUserSubscriptionStatus(ctx context.Context, userID uuid.UUID) (string, error) {
	return s.users.FetchUserSubscriptionStatus(ctx, userID)
}
