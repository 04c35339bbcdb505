package entitlement

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// MemoryPlanStore is an in-memory PlanStore for tests and local development.
type MemoryPlanStore struct {
	mu       sync.RWMutex
	plans    []Plan
	statuses map[uuid.UUID]string
}

// NewMemoryPlanStore creates a store holding a copy of the given plans,
// ordered by creation time ascending.
func NewMemoryPlanStore(plans ...Plan) *MemoryPlanStore {
	sorted := clonePlans(plans)
	slices.SortFunc(sorted, func(a, b Plan) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return &MemoryPlanStore{
		plans:    sorted,
		statuses: make(map[uuid.UUID]string),
	}
}

// SetUserStatus creates or updates a user record with the given subscription
// status. An empty status is a valid record meaning "no paid subscription".
func (s *MemoryPlanStore) SetUserStatus(userID uuid.UUID, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[userID] = status
}

func (s *MemoryPlanStore) FetchAllPlans(_ context.Context) ([]Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clonePlans(s.plans), nil
}

func (s *MemoryPlanStore) FetchUserSubscriptionStatus(_ context.Context, userID uuid.UUID) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status, ok := s.statuses[userID]
	if !ok {
		return "", ErrUserNotFound
	}
	return status, nil
}

func clonePlans(plans []Plan) []Plan {
	out := make([]Plan, len(plans))
	for i, p := range plans {
		p.Features = maps.Clone(p.Features)
		out[i] = p
	}
	return out
}

type usageKey struct {
	userID  uuid.UUID
	feature FeatureKey
	day     Day
}

// MemoryUsageStore is an in-memory UsageStore. It implements
// ConditionalUsageStore, so increments through the service are atomic.
type MemoryUsageStore struct {
	mu     sync.Mutex
	counts map[usageKey]int64
}

func NewMemoryUsageStore() *MemoryUsageStore {
	return &MemoryUsageStore{counts: make(map[usageKey]int64)}
}

func (s *MemoryUsageStore) GetUsage(_ context.Context, userID uuid.UUID, feature FeatureKey, day Day) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count, ok := s.counts[usageKey{userID, feature, day}]
	if !ok {
		return 0, ErrUsageNotFound
	}
	return count, nil
}

func (s *MemoryUsageStore) UpsertUsage(_ context.Context, userID uuid.UUID, feature FeatureKey, day Day, count int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[usageKey{userID, feature, day}] = count
	return nil
}

func (s *MemoryUsageStore) IncrementUsageBelow(_ context.Context, userID uuid.UUID, feature FeatureKey, day Day, limit int64) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := usageKey{userID, feature, day}
	current := s.counts[key]
	if current >= limit {
		return current, false, nil
	}
	s.counts[key] = current + 1
	return current + 1, true, nil
}

// MemoryRelationshipStore is an in-memory RelationshipStore.
type MemoryRelationshipStore struct {
	mu   sync.RWMutex
	rels []Relationship
}

func NewMemoryRelationshipStore(rels ...Relationship) *MemoryRelationshipStore {
	return &MemoryRelationshipStore{rels: slices.Clone(rels)}
}

// Add records a conversation between a client and a lawyer.
func (s *MemoryRelationshipStore) Add(rel Relationship) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rels = append(s.rels, rel)
}

func (s *MemoryRelationshipStore) FindRelationship(_ context.Context, userID, lawyerID uuid.UUID) (*Relationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.rels {
		if (r.UserID == userID && r.LawyerID == lawyerID) ||
			(r.UserID == lawyerID && r.LawyerID == userID) {
			rel := r
			return &rel, nil
		}
	}
	return nil, ErrRelationshipNotFound
}

func (s *MemoryRelationshipStore) CountInitiatedRelationships(_ context.Context, userID uuid.UUID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, r := range s.rels {
		if r.UserID == userID && r.InitiatedBy == userID {
			count++
		}
	}
	return count, nil
}
