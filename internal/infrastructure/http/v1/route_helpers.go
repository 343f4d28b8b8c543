package v1

import (
	"github.com/gin-gonic/gin"
)

// DocumentRouteHandler defines the interface for document handlers.
// All document handlers must implement these methods.
type DocumentRouteHandler interface {
	Create(c *gin.Context)
	Get(c *gin.Context)
	Delete(c *gin.Context)
	Post(c *gin.Context)
	Preview(c *gin.Context)
}

// DocumentUpdateHandler is implemented by handlers whose drafts can be edited.
type DocumentUpdateHandler interface {
	Update(c *gin.Context)
	Updatable() bool
}

// RegisterDocumentRoutes registers standard CRUD + posting routes for a document.
// The PUT route is registered only when the handler reports it is updatable.
//
// Usage:
//
//	handler := handlers.NewStockInHandler(baseHandler, services.StockIn)
//	RegisterDocumentRoutes(api.Group("/stock-in"), handler)
func RegisterDocumentRoutes(group *gin.RouterGroup, handler DocumentRouteHandler) {
	group.POST("", handler.Create)
	group.GET("/:id", handler.Get)
	group.DELETE("/:id", handler.Delete)
	group.POST("/:id/post", handler.Post)
	group.GET("/:id/preview", handler.Preview)

	if u, ok := handler.(DocumentUpdateHandler); ok && u.Updatable() {
		group.PUT("/:id", u.Update)
	}
}
