package middleware

import (
	"github.com/gin-gonic/gin"

	appctx "stockledger/internal/core/context"
)

const (
	HeaderActorID     = "X-Actor-ID"
	HeaderActorSource = "X-Actor-Source"
)

// Actor adds the caller identity forwarded by the gateway to the request
// context, where audit and logging pick it up. Requests without the header
// run anonymously.
//
// Usage in router:
//
//	api.Use(middleware.Actor())
func Actor() gin.HandlerFunc {
	return func(c *gin.Context) {
		actorID := c.GetHeader(HeaderActorID)
		if actorID != "" {
			source := c.GetHeader(HeaderActorSource)
			if source == "" {
				source = "api"
			}
			ctx := appctx.WithActor(c.Request.Context(), &appctx.Actor{ID: actorID, Source: source})
			c.Request = c.Request.WithContext(ctx)
			c.Set("actor_id", actorID)
		}
		c.Next()
	}
}
