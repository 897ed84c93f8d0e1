package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps reservations in process. Expired entries are replaced on reuse.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]record)}
}

func (s *MemoryStore) Reserve(_ context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := documentID(key)
	if existing, ok := s.records[id]; ok {
		res, live, err := classify(existing, fingerprint, now)
		if err != nil || live {
			return res, err
		}
	}
	s.records[id] = pendingRecord(key, fingerprint, now, ttl)
	return Reservation{State: StateNew}, nil
}

func (s *MemoryStore) Complete(_ context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := documentID(key)
	if existing, ok := s.records[id]; ok && existing.Fingerprint != fingerprint {
		return ErrKeyReused
	}
	s.records[id] = completedRecord(key, fingerprint, resp, now, ttl)
	return nil
}

func (s *MemoryStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, documentID(key))
	return nil
}

var _ Store = (*MemoryStore)(nil)
