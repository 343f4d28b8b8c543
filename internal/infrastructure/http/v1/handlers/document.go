package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"stockledger/internal/core/id"
	"stockledger/internal/domain/ledger"
)

// DocumentService defines the interface that services must implement for BaseDocumentHandler.
type DocumentService[T any] interface {
	GetByID(ctx context.Context, id id.ID) (T, error)
	Create(ctx context.Context, doc T) error
	Delete(ctx context.Context, id id.ID) error
	Post(ctx context.Context, id id.ID) (T, error)
	CreateAndPost(ctx context.Context, doc T) error
	Preview(ctx context.Context, id id.ID) (*ledger.Preview, error)
}

// UpdatableService is a DocumentService whose drafts can be replaced.
type UpdatableService[T any] interface {
	DocumentService[T]
	Update(ctx context.Context, doc T) error
}

// BaseDocumentHandler provides generic HTTP handlers for ledger documents.
type BaseDocumentHandler[T any, CreateDTO any, UpdateDTO any] struct {
	*BaseHandler
	service DocumentService[T]
	updater UpdatableService[T]

	mapCreateDTO      func(dto *CreateDTO) T
	applyUpdateDTO    func(dto *UpdateDTO, existing T)
	isPostImmediately func(dto *CreateDTO) bool
}

// BaseDocumentHandlerConfig configures the document handler. ApplyUpdateDTO
// is only used when Service also implements UpdatableService.
type BaseDocumentHandlerConfig[T any, CreateDTO any, UpdateDTO any] struct {
	Service           DocumentService[T]
	MapCreateDTO      func(dto *CreateDTO) T
	ApplyUpdateDTO    func(dto *UpdateDTO, existing T)
	IsPostImmediately func(dto *CreateDTO) bool
}

// NewBaseDocumentHandler creates a new base document handler.
func NewBaseDocumentHandler[T any, CreateDTO any, UpdateDTO any](
	base *BaseHandler,
	cfg BaseDocumentHandlerConfig[T, CreateDTO, UpdateDTO],
) *BaseDocumentHandler[T, CreateDTO, UpdateDTO] {
	h := &BaseDocumentHandler[T, CreateDTO, UpdateDTO]{
		BaseHandler:       base,
		service:           cfg.Service,
		mapCreateDTO:      cfg.MapCreateDTO,
		applyUpdateDTO:    cfg.ApplyUpdateDTO,
		isPostImmediately: cfg.IsPostImmediately,
	}
	if u, ok := cfg.Service.(UpdatableService[T]); ok && cfg.ApplyUpdateDTO != nil {
		h.updater = u
	}
	return h
}

// Get handles GET /{entity}/:id
func (h *BaseDocumentHandler[T, CreateDTO, UpdateDTO]) Get(c *gin.Context) {
	docID, ok := h.ParamID(c)
	if !ok {
		return
	}

	doc, err := h.service.GetByID(c.Request.Context(), docID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, doc)
}

// Create handles POST /{entity}. With "post": true the document is created
// and posted in one transaction.
func (h *BaseDocumentHandler[T, CreateDTO, UpdateDTO]) Create(c *gin.Context) {
	ctx := c.Request.Context()

	var req CreateDTO
	if !h.BindJSON(c, &req) {
		return
	}
	doc := h.mapCreateDTO(&req)

	var err error
	if h.isPostImmediately != nil && h.isPostImmediately(&req) {
		err = h.service.CreateAndPost(ctx, doc)
	} else {
		err = h.service.Create(ctx, doc)
	}
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, doc)
}

// Update handles PUT /{entity}/:id
func (h *BaseDocumentHandler[T, CreateDTO, UpdateDTO]) Update(c *gin.Context) {
	ctx := c.Request.Context()

	docID, ok := h.ParamID(c)
	if !ok {
		return
	}

	var req UpdateDTO
	if !h.BindJSON(c, &req) {
		return
	}

	doc, err := h.updater.GetByID(ctx, docID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.applyUpdateDTO(&req, doc)

	if err := h.updater.Update(ctx, doc); err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, doc)
}

// Delete handles DELETE /{entity}/:id
func (h *BaseDocumentHandler[T, CreateDTO, UpdateDTO]) Delete(c *gin.Context) {
	docID, ok := h.ParamID(c)
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), docID); err != nil {
		h.Error(c, err)
		return
	}
	h.NoContent(c)
}

// Post handles POST /{entity}/:id/post
func (h *BaseDocumentHandler[T, CreateDTO, UpdateDTO]) Post(c *gin.Context) {
	docID, ok := h.ParamID(c)
	if !ok {
		return
	}

	doc, err := h.service.Post(c.Request.Context(), docID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, doc)
}

// Preview handles GET /{entity}/:id/preview
func (h *BaseDocumentHandler[T, CreateDTO, UpdateDTO]) Preview(c *gin.Context) {
	docID, ok := h.ParamID(c)
	if !ok {
		return
	}

	preview, err := h.service.Preview(c.Request.Context(), docID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, preview)
}

// Updatable reports whether Update may be routed.
func (h *BaseDocumentHandler[T, CreateDTO, UpdateDTO]) Updatable() bool {
	return h.updater != nil
}
