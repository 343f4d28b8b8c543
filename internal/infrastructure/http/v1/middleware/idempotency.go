package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"stockledger/internal/core/apperror"
	appctx "stockledger/internal/core/context"
	"stockledger/internal/infrastructure/idempotency"
)

const (
	HeaderIdempotencyKey       = "Idempotency-Key"
	HeaderLegacyIdempotencyKey = "X-Idempotency-Key"
)

const maxIdempotencyBodyBytes = 1 << 20 // 1 MiB

const (
	ctxIdempotencyKey   = "idempotency_key"
	ctxIdempotencyStore = "idempotency_store"
)

// Idempotency middleware protects against duplicate requests.
// Used for POST/PUT/PATCH operations that should be idempotent.
func Idempotency(store idempotency.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodPost &&
			c.Request.Method != http.MethodPut &&
			c.Request.Method != http.MethodPatch {
			c.Next()
			return
		}

		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			key = c.GetHeader(HeaderLegacyIdempotencyKey)
		}
		if key == "" {
			c.Next()
			return
		}

		// Hash request body
		limited := io.LimitReader(c.Request.Body, maxIdempotencyBodyBytes+1)
		body, _ := io.ReadAll(limited)
		if len(body) > maxIdempotencyBodyBytes {
			appErr := apperror.NewValidation("request body too large for idempotency")
			appErr.HTTPStatus = http.StatusRequestEntityTooLarge
			_ = c.Error(appErr.WithDetail("max_bytes", maxIdempotencyBodyBytes))
			c.Abort()
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		hash := sha256.Sum256(body)
		requestHash := hex.EncodeToString(hash[:])

		// The concrete path scopes the key to one document.
		operation := c.Request.Method + " " + c.Request.URL.Path

		replay, err := store.Acquire(c.Request.Context(), key, appctx.GetActorID(c.Request.Context()), operation, requestHash)
		if err != nil {
			if appErr, ok := apperror.AsAppError(err); ok {
				_ = c.Error(appErr)
				c.Abort()
				return
			}
			_ = c.Error(apperror.NewInternal(err).WithDetail("component", "idempotency"))
			c.Abort()
			return
		}

		// Return cached response if exists
		if replay != nil {
			if len(replay.Body) == 0 {
				c.Status(replay.StatusCode)
			} else {
				c.Data(replay.StatusCode, replay.ContentType, replay.Body)
			}
			c.Abort()
			return
		}

		// Store key for completion
		c.Set(ctxIdempotencyKey, key)
		c.Set(ctxIdempotencyStore, store)

		c.Next()
	}
}

// IdempotencyFrom returns the key and store the middleware attached to the
// request, or a nil store when the request is not idempotent.
func IdempotencyFrom(c *gin.Context) (string, idempotency.Store) {
	key := c.GetString(ctxIdempotencyKey)
	if key == "" {
		return "", nil
	}
	v, ok := c.Get(ctxIdempotencyStore)
	if !ok {
		return "", nil
	}
	store, ok := v.(idempotency.Store)
	if !ok || store == nil {
		return "", nil
	}
	return key, store
}
