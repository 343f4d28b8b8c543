package postgres

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/infrastructure/idempotency"
)

// IdempotencyStatus represents the state of an idempotent operation.
type IdempotencyStatus string

const (
	IdempotencyStatusPending IdempotencyStatus = "pending"
	IdempotencyStatusSuccess IdempotencyStatus = "success"
	IdempotencyStatusFailed  IdempotencyStatus = "failed"
)

// IdempotencyRecord stores the result of an idempotent operation.
type IdempotencyRecord struct {
	Key         string            `db:"idempotency_key"`
	ActorID     string            `db:"actor_id"`
	Operation   string            `db:"operation"`
	Status      IdempotencyStatus `db:"status"`
	RequestHash string            `db:"request_hash"`
	Response    []byte            `db:"response"`
	StatusCode  *int              `db:"response_status"`
	ContentType *string           `db:"response_content_type"`
	CreatedAt   time.Time         `db:"created_at"`
	UpdatedAt   time.Time         `db:"updated_at"`
	ExpiresAt   time.Time         `db:"expires_at"`
}

// IdempotencyStore keeps idempotency keys in sys_idempotency. It runs
// outside the request's business transaction, so a rolled-back posting does
// not lose the key claim.
type IdempotencyStore struct {
	txManager *TxManager
	ttl       time.Duration
}

var _ idempotency.Store = (*IdempotencyStore)(nil)

// NewIdempotencyStore creates a new idempotency store.
func NewIdempotencyStore(txManager *TxManager, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{txManager: txManager, ttl: ttl}
}

// Acquire implements idempotency.Store.
func (s *IdempotencyStore) Acquire(ctx context.Context, key, actorID, operation, requestHash string) (*idempotency.Replay, error) {
	now := time.Now().UTC()
	q := s.txManager.GetQuerier(ctx)

	// An expired row is taken over as if it did not exist.
	var record IdempotencyRecord
	var inserted bool
	err := q.QueryRow(ctx, `
		INSERT INTO sys_idempotency (idempotency_key, actor_id, operation, status, request_hash, created_at, updated_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6, $7)
		ON CONFLICT (idempotency_key) DO UPDATE SET
			actor_id     = CASE WHEN sys_idempotency.expires_at < $6 THEN EXCLUDED.actor_id ELSE sys_idempotency.actor_id END,
			operation    = CASE WHEN sys_idempotency.expires_at < $6 THEN EXCLUDED.operation ELSE sys_idempotency.operation END,
			request_hash = CASE WHEN sys_idempotency.expires_at < $6 THEN EXCLUDED.request_hash ELSE sys_idempotency.request_hash END,
			status       = CASE WHEN sys_idempotency.expires_at < $6 THEN EXCLUDED.status ELSE sys_idempotency.status END,
			created_at   = CASE WHEN sys_idempotency.expires_at < $6 THEN EXCLUDED.created_at ELSE sys_idempotency.created_at END,
			expires_at   = CASE WHEN sys_idempotency.expires_at < $6 THEN EXCLUDED.expires_at ELSE sys_idempotency.expires_at END
		RETURNING idempotency_key, actor_id, operation, status, request_hash, response,
		          response_status, response_content_type, created_at, updated_at, expires_at,
		          (xmax = 0 OR created_at = $6) AS inserted
	`, key, actorID, operation, IdempotencyStatusPending, requestHash, now, now.Add(s.ttl)).Scan(
		&record.Key, &record.ActorID, &record.Operation, &record.Status,
		&record.RequestHash, &record.Response, &record.StatusCode, &record.ContentType,
		&record.CreatedAt, &record.UpdatedAt, &record.ExpiresAt, &inserted,
	)
	if err != nil {
		return nil, fmt.Errorf("acquire idempotency key: %w", err)
	}
	if inserted {
		return nil, nil
	}

	if record.ActorID != actorID || record.Operation != operation || record.RequestHash != requestHash {
		return nil, apperror.NewIdempotencyMismatch(key).
			WithDetail("stored_operation", record.Operation).
			WithDetail("request_operation", operation)
	}

	switch record.Status {
	case IdempotencyStatusSuccess, IdempotencyStatusFailed:
		replay := &idempotency.Replay{Body: record.Response}
		if record.StatusCode != nil {
			replay.StatusCode = *record.StatusCode
		}
		if record.ContentType != nil {
			replay.ContentType = *record.ContentType
		}
		return idempotency.NormalizeReplay(replay), nil
	}

	if now.Sub(record.UpdatedAt) <= idempotency.StaleAfter {
		return nil, apperror.NewIdempotencyConflict(key)
	}
	// The holder most likely crashed.
	tag, err := q.Exec(ctx, `
		UPDATE sys_idempotency SET updated_at = $1
		WHERE idempotency_key = $2 AND status = $3 AND updated_at = $4
	`, now, key, IdempotencyStatusPending, record.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("reclaim stale key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, apperror.NewIdempotencyConflict(key)
	}
	return nil, nil
}

// Complete implements idempotency.Store.
func (s *IdempotencyStore) Complete(ctx context.Context, key string, statusCode int, contentType string, response any) error {
	return s.finish(ctx, key, IdempotencyStatusSuccess, statusCode, contentType, response)
}

// Fail implements idempotency.Store.
func (s *IdempotencyStore) Fail(ctx context.Context, key string, statusCode int, contentType string, response any) error {
	if statusCode >= http.StatusInternalServerError {
		_, err := s.txManager.GetQuerier(ctx).Exec(ctx,
			`DELETE FROM sys_idempotency WHERE idempotency_key = $1 AND status = $2`,
			key, IdempotencyStatusPending)
		return err
	}
	return s.finish(ctx, key, IdempotencyStatusFailed, statusCode, contentType, response)
}

func (s *IdempotencyStore) finish(ctx context.Context, key string, status IdempotencyStatus, statusCode int, contentType string, response any) error {
	body, err := idempotency.Marshal(response)
	if err != nil {
		return fmt.Errorf("marshal response: %w", err)
	}
	_, err = s.txManager.GetQuerier(ctx).Exec(ctx, `
		UPDATE sys_idempotency
		SET status = $1,
		    response = $2,
		    response_status = $3,
		    response_content_type = $4,
		    updated_at = $5
		WHERE idempotency_key = $6
	`, status, body, statusCode, contentType, time.Now().UTC(), key)
	return err
}

// CleanupExpired removes expired idempotency records.
func (s *IdempotencyStore) CleanupExpired(ctx context.Context) (int64, error) {
	result, err := s.txManager.GetQuerier(ctx).Exec(ctx,
		`DELETE FROM sys_idempotency WHERE expires_at < $1`, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
