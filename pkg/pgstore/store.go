// Package pgstore implements the entitlement plan, usage and relationship
// stores on PostgreSQL. Feature limits are stored as jsonb in their loose wire
// form ("unlimited" or a number) and decoded once on read.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/advomarket/entitlement/pkg/entitlement"
	"github.com/advomarket/entitlement/pkg/pg"
)

// Store bundles all three entitlement store implementations over one pool.
// It also implements billing.StatusWriter via SetUserSubscriptionStatus.
type Store struct {
	db *pgxpool.Pool
}

// New creates a Store. Panics on a nil pool to fail fast during wiring.
func New(db *pgxpool.Pool) *Store {
	if db == nil {
		panic("pgstore: pgxpool.Pool is required")
	}
	return &Store{db: db}
}

func (s *Store) FetchAllPlans(ctx context.Context) ([]entitlement.Plan, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, name, price_ref, features, created_at FROM plans ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plans []entitlement.Plan
	for rows.Next() {
		var (
			p   entitlement.Plan
			raw []byte
		)
		if err := rows.Scan(&p.ID, &p.Name, &p.PriceRef, &raw, &p.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &p.Features); err != nil {
			return nil, errors.Join(entitlement.ErrInvalidPlanConfig,
				fmt.Errorf("plan %s: %w", p.Name, err))
		}
		plans = append(plans, p)
	}
	return plans, rows.Err()
}

func (s *Store) FetchUserSubscriptionStatus(ctx context.Context, userID uuid.UUID) (string, error) {
	var status string
	err := s.db.QueryRow(ctx,
		`SELECT subscription_status FROM user_subscriptions WHERE user_id = $1`, userID).
		Scan(&status)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return "", entitlement.ErrUserNotFound
		}
		return "", err
	}
	return status, nil
}

// SetUserSubscriptionStatus creates or updates a user's plan reference.
// An empty status means "no paid subscription" and resolves to the Free plan.
func (s *Store) SetUserSubscriptionStatus(ctx context.Context, userID uuid.UUID, status string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO user_subscriptions (user_id, subscription_status, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (user_id)
		DO UPDATE SET subscription_status = EXCLUDED.subscription_status, updated_at = now()`,
		userID, status)
	return err
}

func (s *Store) GetUsage(ctx context.Context, userID uuid.UUID, feature entitlement.FeatureKey, day entitlement.Day) (int64, error) {
	var count int64
	err := s.db.QueryRow(ctx,
		`SELECT count FROM feature_usage WHERE user_id = $1 AND feature_key = $2 AND day = $3`,
		userID, string(feature), string(day)).
		Scan(&count)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return 0, entitlement.ErrUsageNotFound
		}
		return 0, err
	}
	return count, nil
}

func (s *Store) UpsertUsage(ctx context.Context, userID uuid.UUID, feature entitlement.FeatureKey, day entitlement.Day, count int64) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO feature_usage (user_id, feature_key, day, count)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, feature_key, day)
		DO UPDATE SET count = EXCLUDED.count`,
		userID, string(feature), string(day), count)
	return err
}

// IncrementUsageBelow runs the limit check and the increment in one statement,
// so concurrent callers cannot both pass the check and overrun the limit.
func (s *Store) IncrementUsageBelow(ctx context.Context, userID uuid.UUID, feature entitlement.FeatureKey, day entitlement.Day, limit int64) (int64, bool, error) {
	if limit <= 0 {
		current, err := s.GetUsage(ctx, userID, feature, day)
		if errors.Is(err, entitlement.ErrUsageNotFound) {
			return 0, false, nil
		}
		return current, false, err
	}

	var count int64
	err := s.db.QueryRow(ctx, `
		INSERT INTO feature_usage (user_id, feature_key, day, count)
		VALUES ($1, $2, $3, 1)
		ON CONFLICT (user_id, feature_key, day)
		DO UPDATE SET count = feature_usage.count + 1
		WHERE feature_usage.count < $4
		RETURNING count`,
		userID, string(feature), string(day), limit).
		Scan(&count)
	if err != nil {
		if pg.IsNotFoundError(err) {
			// The conditional update matched nothing: the counter is at the limit.
			current, err := s.GetUsage(ctx, userID, feature, day)
			if err != nil {
				return 0, false, err
			}
			return current, false, nil
		}
		return 0, false, err
	}
	return count, true, nil
}

func (s *Store) FindRelationship(ctx context.Context, userID, lawyerID uuid.UUID) (*entitlement.Relationship, error) {
	var rel entitlement.Relationship
	err := s.db.QueryRow(ctx, `
		SELECT id, user_id, lawyer_id, initiated_by, created_at
		FROM chat_relationships
		WHERE (user_id = $1 AND lawyer_id = $2) OR (user_id = $2 AND lawyer_id = $1)
		LIMIT 1`,
		userID, lawyerID).
		Scan(&rel.ID, &rel.UserID, &rel.LawyerID, &rel.InitiatedBy, &rel.CreatedAt)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, entitlement.ErrRelationshipNotFound
		}
		return nil, err
	}
	return &rel, nil
}

func (s *Store) CountInitiatedRelationships(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := s.db.QueryRow(ctx,
		`SELECT count(*) FROM chat_relationships WHERE user_id = $1 AND initiated_by = $1`,
		userID).
		Scan(&count)
	return count, err
}
