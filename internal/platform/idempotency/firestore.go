package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultFirestoreCollection = "idempotencyKeys"
	defaultMaxAttempts         = 5
)

// ClientSource hands out the shared Firestore client.
type ClientSource interface {
	Client(ctx context.Context) (*firestore.Client, error)
}

// FirestoreOption customises the FirestoreStore.
type FirestoreOption func(*FirestoreStore)

// WithCollection overrides the collection records are written to.
func WithCollection(name string) FirestoreOption {
	return func(s *FirestoreStore) {
		if name != "" {
			s.collection = name
		}
	}
}

// FirestoreStore reserves keys inside a transaction so concurrent attempts serialize on the
// key document.
type FirestoreStore struct {
	clients    ClientSource
	collection string
}

func NewFirestoreStore(clients ClientSource, opts ...FirestoreOption) *FirestoreStore {
	s := &FirestoreStore{clients: clients, collection: defaultFirestoreCollection}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *FirestoreStore) doc(ctx context.Context, key string) (*firestore.Client, *firestore.DocumentRef, error) {
	client, err := s.clients.Client(ctx)
	if err != nil {
		return nil, nil, err
	}
	return client, client.Collection(s.collection).Doc(documentID(key)), nil
}

func (s *FirestoreStore) Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	client, ref, err := s.doc(ctx, key)
	if err != nil {
		return Reservation{}, err
	}
	var result Reservation
	err = client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		result = Reservation{State: StateNew}
		snap, err := tx.Get(ref)
		if status.Code(err) == codes.NotFound {
			return tx.Create(ref, pendingRecord(key, fingerprint, now, ttl))
		}
		if err != nil {
			return err
		}
		var existing record
		if err := snap.DataTo(&existing); err != nil {
			return err
		}
		res, live, err := classify(existing, fingerprint, now)
		if err != nil {
			return err
		}
		if live {
			result = res
			return nil
		}
		return tx.Set(ref, pendingRecord(key, fingerprint, now, ttl))
	}, firestore.MaxAttempts(defaultMaxAttempts))
	if err != nil {
		if errors.Is(err, ErrKeyReused) {
			return Reservation{}, ErrKeyReused
		}
		return Reservation{}, fmt.Errorf("idempotency: reserve: %w", err)
	}
	return result, nil
}

func (s *FirestoreStore) Complete(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	client, ref, err := s.doc(ctx, key)
	if err != nil {
		return err
	}
	err = client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		switch {
		case status.Code(err) == codes.NotFound:
		case err != nil:
			return err
		default:
			fp, err := snap.DataAt("fingerprint")
			if err != nil {
				return err
			}
			if fp != fingerprint {
				return ErrKeyReused
			}
		}
		return tx.Set(ref, completedRecord(key, fingerprint, resp, now, ttl))
	}, firestore.MaxAttempts(defaultMaxAttempts))
	if errors.Is(err, ErrKeyReused) {
		return ErrKeyReused
	}
	if err != nil {
		return fmt.Errorf("idempotency: complete: %w", err)
	}
	return nil
}

func (s *FirestoreStore) Release(ctx context.Context, key string) error {
	_, ref, err := s.doc(ctx, key)
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx); err != nil && status.Code(err) != codes.NotFound {
		return fmt.Errorf("idempotency: release: %w", err)
	}
	return nil
}

var _ Store = (*FirestoreStore)(nil)
