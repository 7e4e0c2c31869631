// Package mongo provides a MongoDB-backed UsageLedger for imgguard.
//
// Each bucket is one document keyed by (provider, period, period_key) with a
// unique index. Increments are $inc upserts, so concurrent writers never
// lose updates.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/ineyio/imgguard"
)

// DefaultCollection is the collection used when none is configured.
const DefaultCollection = "service_usage"

// Store is a MongoDB-backed UsageLedger.
type Store struct {
	coll *mongo.Collection
}

var _ imgguard.UsageLedger = (*Store)(nil)

// New creates a Store on the given collection.
func New(coll *mongo.Collection) *Store {
	return &Store{coll: coll}
}

// NewFromDatabase creates a Store on db's DefaultCollection.
func NewFromDatabase(db *mongo.Database) *Store {
	return New(db.Collection(DefaultCollection))
}

type counterDoc struct {
	Provider  string    `bson:"provider"`
	Period    string    `bson:"period"`
	PeriodKey string    `bson:"period_key"`
	Count     int64     `bson:"count"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func bucketFilter(provider string, period imgguard.Period, key string) bson.D {
	return bson.D{
		{Key: "provider", Value: provider},
		{Key: "period", Value: string(period)},
		{Key: "period_key", Value: key},
	}
}

// EnsureIndexes creates the unique bucket index.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "provider", Value: 1},
			{Key: "period", Value: 1},
			{Key: "period_key", Value: 1},
		},
		Options: options.Index().SetUnique(true).SetName("provider_period_key"),
	})
	if err != nil {
		return fmt.Errorf("imgguard/mongo: ensure indexes: %w", err)
	}
	return nil
}

// Increment adds one to the daily and monthly buckets of at.
func (s *Store) Increment(ctx context.Context, provider string, at time.Time) error {
	update := bson.D{
		{Key: "$inc", Value: bson.D{{Key: "count", Value: int64(1)}}},
		{Key: "$set", Value: bson.D{{Key: "updated_at", Value: at.UTC()}}},
	}
	models := []mongo.WriteModel{
		mongo.NewUpdateOneModel().
			SetFilter(bucketFilter(provider, imgguard.PeriodDay, imgguard.DayKey(at))).
			SetUpdate(update).
			SetUpsert(true),
		mongo.NewUpdateOneModel().
			SetFilter(bucketFilter(provider, imgguard.PeriodMonth, imgguard.MonthKey(at))).
			SetUpdate(update).
			SetUpsert(true),
	}
	if _, err := s.coll.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false)); err != nil {
		return fmt.Errorf("imgguard/mongo: increment: %w", err)
	}
	return nil
}

// Count returns the current count of a bucket, or 0.
func (s *Store) Count(ctx context.Context, provider string, period imgguard.Period, key string) (int64, error) {
	var doc counterDoc
	err := s.coll.FindOne(ctx, bucketFilter(provider, period, key)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("imgguard/mongo: count: %w", err)
	}
	return doc.Count, nil
}

// Reset zeroes the monthly bucket.
func (s *Store) Reset(ctx context.Context, provider, monthKey string) error {
	res, err := s.coll.UpdateOne(ctx,
		bucketFilter(provider, imgguard.PeriodMonth, monthKey),
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "count", Value: int64(0)},
			{Key: "updated_at", Value: time.Now().UTC()},
		}}},
	)
	if err != nil {
		return fmt.Errorf("imgguard/mongo: reset: %w", err)
	}
	if res.MatchedCount == 0 {
		return imgguard.ErrUsageNotFound
	}
	return nil
}
