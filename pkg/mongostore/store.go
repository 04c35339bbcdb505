// Package mongostore implements the entitlement usage store on MongoDB.
// One document per (user, feature, day) triple; the limit-guarded increment
// uses a filtered $inc, so concurrent callers cannot overrun the limit.
package mongostore

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/advomarket/entitlement/pkg/entitlement"
)

// CollectionName is the collection holding usage documents.
const CollectionName = "feature_usage"

type usageDoc struct {
	UserID  string `bson:"user_id"`
	Feature string `bson:"feature_key"`
	Day     string `bson:"day"`
	Count   int64  `bson:"count"`
}

// Store implements entitlement.ConditionalUsageStore.
type Store struct {
	coll *mongo.Collection
}

// New creates a Store over db's feature_usage collection.
// Panics on a nil database to fail fast during wiring.
func New(db *mongo.Database) *Store {
	if db == nil {
		panic("mongostore: mongo database is required")
	}
	return &Store{coll: db.Collection(CollectionName)}
}

// EnsureIndexes creates the unique compound index the upsert semantics rely
// on. Call once at startup.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "user_id", Value: 1},
			{Key: "feature_key", Value: 1},
			{Key: "day", Value: 1},
		},
		Options: options.Index().SetUnique(true),
	})
	return err
}

func keyFilter(userID uuid.UUID, feature entitlement.FeatureKey, day entitlement.Day) bson.D {
	return bson.D{
		{Key: "user_id", Value: userID.String()},
		{Key: "feature_key", Value: string(feature)},
		{Key: "day", Value: string(day)},
	}
}

func (s *Store) GetUsage(ctx context.Context, userID uuid.UUID, feature entitlement.FeatureKey, day entitlement.Day) (int64, error) {
	var doc usageDoc
	err := s.coll.FindOne(ctx, keyFilter(userID, feature, day)).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, entitlement.ErrUsageNotFound
		}
		return 0, err
	}
	return doc.Count, nil
}

func (s *Store) UpsertUsage(ctx context.Context, userID uuid.UUID, feature entitlement.FeatureKey, day entitlement.Day, count int64) error {
	_, err := s.coll.UpdateOne(ctx,
		keyFilter(userID, feature, day),
		bson.D{{Key: "$set", Value: bson.D{{Key: "count", Value: count}}}},
		options.UpdateOne().SetUpsert(true))
	return err
}

func (s *Store) IncrementUsageBelow(ctx context.Context, userID uuid.UUID, feature entitlement.FeatureKey, day entitlement.Day, limit int64) (int64, bool, error) {
	if limit <= 0 {
		current, err := s.GetUsage(ctx, userID, feature, day)
		if errors.Is(err, entitlement.ErrUsageNotFound) {
			return 0, false, nil
		}
		return current, false, err
	}

	count, applied, err := s.tryIncrement(ctx, userID, feature, day, limit)
	if err != nil || applied {
		return count, applied, err
	}

	// No document matched: either none exists yet, or the counter is at the
	// limit. Try to create the first record of the day; a duplicate-key error
	// means another caller got there first, so retry the increment once.
	_, err = s.coll.InsertOne(ctx, usageDoc{
		UserID:  userID.String(),
		Feature: string(feature),
		Day:     string(day),
		Count:   1,
	})
	if err == nil {
		return 1, true, nil
	}
	if !mongo.IsDuplicateKeyError(err) {
		return 0, false, err
	}

	count, applied, err = s.tryIncrement(ctx, userID, feature, day, limit)
	if err != nil || applied {
		return count, applied, err
	}

	current, err := s.GetUsage(ctx, userID, feature, day)
	if err != nil {
		return 0, false, err
	}
	return current, false, nil
}

func (s *Store) tryIncrement(ctx context.Context, userID uuid.UUID, feature entitlement.FeatureKey, day entitlement.Day, limit int64) (int64, bool, error) {
	filter := append(keyFilter(userID, feature, day),
		bson.E{Key: "count", Value: bson.D{{Key: "$lt", Value: limit}}})

	var doc usageDoc
	err := s.coll.FindOneAndUpdate(ctx,
		filter,
		bson.D{{Key: "$inc", Value: bson.D{{Key: "count", Value: 1}}}},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).
		Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return doc.Count, true, nil
}
