// Package idempotency defines the store behind the Idempotency-Key
// middleware and an in-process implementation of it.
package idempotency

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"stockledger/internal/core/apperror"
)

// Replay is a stored HTTP response.
type Replay struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// Store records the outcome of requests by key.
type Store interface {
	// Acquire claims key for a request. It returns (nil, nil) when the caller
	// should run the request, a Replay when the key already completed, an
	// idempotency-conflict error while another request holds the key and an
	// idempotency-mismatch error when key was used for a different request.
	Acquire(ctx context.Context, key, actorID, operation, requestHash string) (*Replay, error)

	// Complete stores the response of a finished request.
	Complete(ctx context.Context, key string, statusCode int, contentType string, response any) error

	// Fail stores the error response of a request. Server errors release the
	// key instead so the client may retry.
	Fail(ctx context.Context, key string, statusCode int, contentType string, response any) error
}

// StaleAfter is how long a pending key may stay claimed before another
// request can reclaim it.
const StaleAfter = time.Minute

// Marshal encodes a response body for storage.
func Marshal(response any) ([]byte, error) {
	if response == nil {
		return nil, nil
	}
	return json.Marshal(response)
}

// NormalizeReplay fills defaults of records stored without status or type.
func NormalizeReplay(r *Replay) *Replay {
	if r.StatusCode == 0 {
		r.StatusCode = http.StatusOK
	}
	if r.ContentType == "" {
		r.ContentType = "application/json"
	}
	return r
}

type memoryRecord struct {
	actorID     string
	operation   string
	requestHash string
	done        bool
	replay      Replay
	updatedAt   time.Time
	expiresAt   time.Time
}

// Memory is an in-process Store.
type Memory struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	records map[string]*memoryRecord
}

var _ Store = (*Memory)(nil)

// NewMemory creates a store keeping keys for ttl.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{ttl: ttl, now: time.Now, records: make(map[string]*memoryRecord)}
}

func (m *Memory) Acquire(_ context.Context, key, actorID, operation, requestHash string) (*Replay, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	rec, ok := m.records[key]
	if !ok || now.After(rec.expiresAt) {
		m.records[key] = &memoryRecord{
			actorID:     actorID,
			operation:   operation,
			requestHash: requestHash,
			updatedAt:   now,
			expiresAt:   now.Add(m.ttl),
		}
		return nil, nil
	}

	if rec.actorID != actorID || rec.operation != operation || rec.requestHash != requestHash {
		return nil, apperror.NewIdempotencyMismatch(key).
			WithDetail("stored_operation", rec.operation).
			WithDetail("request_operation", operation)
	}
	if rec.done {
		replay := rec.replay
		return NormalizeReplay(&replay), nil
	}
	if now.Sub(rec.updatedAt) > StaleAfter {
		rec.updatedAt = now
		return nil, nil
	}
	return nil, apperror.NewIdempotencyConflict(key)
}

func (m *Memory) Complete(_ context.Context, key string, statusCode int, contentType string, response any) error {
	body, err := Marshal(response)
	if err != nil {
		return err
	}
	m.finish(key, Replay{StatusCode: statusCode, ContentType: contentType, Body: body})
	return nil
}

func (m *Memory) Fail(_ context.Context, key string, statusCode int, contentType string, response any) error {
	if statusCode >= http.StatusInternalServerError {
		m.mu.Lock()
		delete(m.records, key)
		m.mu.Unlock()
		return nil
	}
	body, err := Marshal(response)
	if err != nil {
		return err
	}
	m.finish(key, Replay{StatusCode: statusCode, ContentType: contentType, Body: body})
	return nil
}

func (m *Memory) finish(key string, replay Replay) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[key]
	if !ok {
		return
	}
	rec.done = true
	rec.replay = replay
	rec.updatedAt = m.now()
}

// CleanupExpired drops expired keys and returns how many were removed.
func (m *Memory) CleanupExpired(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	var n int64
	for key, rec := range m.records {
		if now.After(rec.expiresAt) {
			delete(m.records, key)
			n++
		}
	}
	return n, nil
}
