package idempotency

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/apperror"
)

func TestMemoryReplaysCompletedRequest(t *testing.T) {
	ctx := context.Background()
	s := NewMemory(time.Hour)

	replay, err := s.Acquire(ctx, "k1", "actor", "POST /x", "h1")
	require.NoError(t, err)
	assert.Nil(t, replay)

	_, err = s.Acquire(ctx, "k1", "actor", "POST /x", "h1")
	assert.True(t, apperror.HasCode(err, apperror.CodeIdempotency))

	require.NoError(t, s.Complete(ctx, "k1", http.StatusCreated, "application/json", map[string]string{"id": "1"}))
	replay, err = s.Acquire(ctx, "k1", "actor", "POST /x", "h1")
	require.NoError(t, err)
	require.NotNil(t, replay)
	assert.Equal(t, http.StatusCreated, replay.StatusCode)
	assert.JSONEq(t, `{"id":"1"}`, string(replay.Body))
}

func TestMemoryRejectsDifferentRequest(t *testing.T) {
	ctx := context.Background()
	s := NewMemory(time.Hour)

	_, err := s.Acquire(ctx, "k1", "actor", "POST /x", "h1")
	require.NoError(t, err)
	_, err = s.Acquire(ctx, "k1", "actor", "POST /x", "h2")
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeIdempotency, appErr.Code)
	assert.Equal(t, "Idempotency key mismatch", appErr.Message)
}

func TestMemoryServerErrorReleasesKey(t *testing.T) {
	ctx := context.Background()
	s := NewMemory(time.Hour)

	_, err := s.Acquire(ctx, "k1", "", "POST /x", "h")
	require.NoError(t, err)
	require.NoError(t, s.Fail(ctx, "k1", http.StatusInternalServerError, "application/json", nil))

	replay, err := s.Acquire(ctx, "k1", "", "POST /x", "h")
	require.NoError(t, err)
	assert.Nil(t, replay)

	require.NoError(t, s.Fail(ctx, "k1", http.StatusUnprocessableEntity, "application/json", map[string]string{"code": "INSUFFICIENT_STOCK"}))
	replay, err = s.Acquire(ctx, "k1", "", "POST /x", "h")
	require.NoError(t, err)
	require.NotNil(t, replay)
	assert.Equal(t, http.StatusUnprocessableEntity, replay.StatusCode)
}

func TestMemoryExpiryAndStaleReclaim(t *testing.T) {
	ctx := context.Background()
	s := NewMemory(10 * time.Minute)
	now := time.Now()
	s.now = func() time.Time { return now }

	_, err := s.Acquire(ctx, "k1", "", "POST /x", "h")
	require.NoError(t, err)

	now = now.Add(2 * StaleAfter)
	replay, err := s.Acquire(ctx, "k1", "", "POST /x", "h")
	require.NoError(t, err, "stale pending key is reclaimed")
	assert.Nil(t, replay)

	now = now.Add(time.Hour)
	n, err := s.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
