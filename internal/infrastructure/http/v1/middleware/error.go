package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"stockledger/internal/core/apperror"
	"stockledger/pkg/logger"
)

// ErrorHandler middleware transforms errors into consistent JSON responses.
// Hides internal errors from clients while logging full details.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err

		// If response already written by handler, do not override it.
		if c.Writer.Written() {
			return
		}

		if appErr, ok := apperror.AsAppError(err); ok {
			if appErr.Err != nil {
				logger.Error(c.Request.Context(), "request error",
					"code", appErr.Code,
					"cause", appErr.Err,
				)
			}

			body := gin.H{
				"code":    appErr.Code,
				"message": appErr.Message,
				"details": appErr.Details,
			}
			failIdempotency(c, appErr.HTTPStatus, body)
			c.JSON(appErr.HTTPStatus, body)
			return
		}

		// Unknown error - log and return generic message
		logger.Error(c.Request.Context(), "unhandled error",
			"error", err,
		)
		writeInternal(c)
	}
}

// writeInternal responds with the generic 500 body.
func writeInternal(c *gin.Context) {
	body := gin.H{
		"code":    apperror.CodeInternal,
		"message": "Internal server error",
		"details": map[string]any{
			"request_id": c.GetString("request_id"),
		},
	}
	failIdempotency(c, http.StatusInternalServerError, body)
	c.AbortWithStatusJSON(http.StatusInternalServerError, body)
}

// failIdempotency records the error response for the request's key (best-effort).
func failIdempotency(c *gin.Context, status int, body any) {
	key, store := IdempotencyFrom(c)
	if store == nil {
		return
	}
	if err := store.Fail(c.Request.Context(), key, status, "application/json", body); err != nil {
		logger.Warn(c.Request.Context(), "idempotency fail not recorded", "key", key, "error", err)
	}
}
