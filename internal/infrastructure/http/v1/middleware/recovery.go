// Package middleware provides HTTP middleware components.
package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"stockledger/internal/core/apperror"
	"stockledger/pkg/logger"
)

// Recovery turns a panic into a 500 response. The stack is logged, never
// returned. It runs outside ErrorHandler, so it writes the body itself.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			logger.Error(c.Request.Context(), "panic recovered",
				"route", c.FullPath(),
				"panic", rec,
				"stack", string(debug.Stack()),
			)
			_ = c.Error(apperror.NewInternal(fmt.Errorf("panic: %v", rec)))
			if !c.Writer.Written() {
				writeInternal(c)
			}
		}()
		c.Next()
	}
}
