package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"
)

// DefaultTTL is how long a key keeps replaying its first response.
const DefaultTTL = 24 * time.Hour

// State classifies a reservation attempt.
type State int

const (
	// StateNew means the caller holds the key and must run the request.
	StateNew State = iota
	// StateReplay means the request already completed and Response holds its result.
	StateReplay
	// StateInFlight means another request holds the key and has not finished.
	StateInFlight
)

// Reservation is the outcome of Store.Reserve.
type Reservation struct {
	State    State
	Response Response
}

// Response is the part of an HTTP response kept for replays.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Store persists key reservations and the responses they produced.
type Store interface {
	Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error)
	Complete(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error
	Release(ctx context.Context, key string) error
}

// ErrKeyReused is returned when a key arrives with a different request than the one it was
// first used for.
var ErrKeyReused = errors.New("idempotency: key reused for a different request")

// record is the stored shape shared by every backend.
type record struct {
	ID          string              `bson:"_id" firestore:"-"`
	Key         string              `bson:"key" firestore:"key"`
	Fingerprint string              `bson:"fingerprint" firestore:"fingerprint"`
	Completed   bool                `bson:"completed" firestore:"completed"`
	Status      int                 `bson:"status" firestore:"status"`
	Header      map[string][]string `bson:"header,omitempty" firestore:"header,omitempty"`
	Body        []byte              `bson:"body,omitempty" firestore:"body,omitempty"`
	CreatedAt   time.Time           `bson:"createdAt" firestore:"createdAt"`
	ExpiresAt   time.Time           `bson:"expiresAt" firestore:"expiresAt"`
}

func pendingRecord(key, fingerprint string, now time.Time, ttl time.Duration) record {
	return record{
		ID:          documentID(key),
		Key:         key,
		Fingerprint: fingerprint,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttlOrDefault(ttl)),
	}
}

func completedRecord(key, fingerprint string, resp Response, now time.Time, ttl time.Duration) record {
	rec := pendingRecord(key, fingerprint, now, ttl)
	rec.Completed = true
	rec.Status = resp.Status
	rec.Header = replayableHeader(resp.Header)
	if len(resp.Body) > 0 {
		rec.Body = append([]byte(nil), resp.Body...)
	}
	return rec
}

// classify reports what an existing record means for a new attempt. live is false when the
// record has expired and may be overwritten.
func classify(rec record, fingerprint string, now time.Time) (res Reservation, live bool, err error) {
	if !rec.ExpiresAt.IsZero() && !now.Before(rec.ExpiresAt) {
		return Reservation{}, false, nil
	}
	if rec.Fingerprint != fingerprint {
		return Reservation{}, true, ErrKeyReused
	}
	if !rec.Completed {
		return Reservation{State: StateInFlight}, true, nil
	}
	header := make(http.Header, len(rec.Header))
	for name, values := range rec.Header {
		header[name] = append([]string(nil), values...)
	}
	return Reservation{
		State:    StateReplay,
		Response: Response{Status: rec.Status, Header: header, Body: rec.Body},
	}, true, nil
}

func ttlOrDefault(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return DefaultTTL
	}
	return ttl
}

func documentID(key string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(key)))
	return hex.EncodeToString(sum[:])
}

// replayableHeader keeps the headers a client needs to interpret a replayed body.
func replayableHeader(header http.Header) map[string][]string {
	out := make(map[string][]string, 2)
	for _, name := range []string{"Content-Type", "Location"} {
		if values := header.Values(name); len(values) > 0 {
			out[name] = append([]string(nil), values...)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
