package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoCollection is where the mongo-backed store keeps its records.
const MongoCollection = "idempotency_keys"

// MongoStore reserves keys by inserting on a unique _id. A TTL index on expiresAt lets the
// server drop stale records.
type MongoStore struct {
	coll *mongo.Collection
}

func NewMongoStore(coll *mongo.Collection) *MongoStore {
	return &MongoStore{coll: coll}
}

// MongoIndexes lists the indexes the store relies on.
func MongoIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{Keys: bson.D{{Key: "expiresAt", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(0)},
	}
}

func (s *MongoStore) Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	rec := pendingRecord(key, fingerprint, now, ttl)
	_, err := s.coll.InsertOne(ctx, rec)
	if err == nil {
		return Reservation{State: StateNew}, nil
	}
	if !mongo.IsDuplicateKeyError(err) {
		return Reservation{}, fmt.Errorf("idempotency: reserve: %w", err)
	}

	var existing record
	if err := s.coll.FindOne(ctx, bson.M{"_id": rec.ID}).Decode(&existing); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			// Removed between the insert and the read; the holder released it.
			return Reservation{State: StateInFlight}, nil
		}
		return Reservation{}, fmt.Errorf("idempotency: reserve: %w", err)
	}
	res, live, err := classify(existing, fingerprint, now)
	if err != nil || live {
		return res, err
	}

	// Expired but not yet swept. Only one caller wins the swap.
	result, err := s.coll.ReplaceOne(ctx, bson.M{"_id": rec.ID, "expiresAt": existing.ExpiresAt}, rec)
	if err != nil {
		return Reservation{}, fmt.Errorf("idempotency: reserve: %w", err)
	}
	if result.MatchedCount == 0 {
		return Reservation{State: StateInFlight}, nil
	}
	return Reservation{State: StateNew}, nil
}

func (s *MongoStore) Complete(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	rec := completedRecord(key, fingerprint, resp, now, ttl)
	_, err := s.coll.ReplaceOne(ctx,
		bson.M{"_id": rec.ID, "fingerprint": fingerprint},
		rec,
		options.Replace().SetUpsert(true),
	)
	if mongo.IsDuplicateKeyError(err) {
		return ErrKeyReused
	}
	if err != nil {
		return fmt.Errorf("idempotency: complete: %w", err)
	}
	return nil
}

func (s *MongoStore) Release(ctx context.Context, key string) error {
	if _, err := s.coll.DeleteOne(ctx, bson.M{"_id": documentID(key)}); err != nil {
		return fmt.Errorf("idempotency: release: %w", err)
	}
	return nil
}

var _ Store = (*MongoStore)(nil)
