package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"stockledger/internal/core/id"
	"stockledger/internal/domain/documents/inventory_count"
	"stockledger/internal/infrastructure/http/v1/dto"
)

type statusFunc func(ctx context.Context, docID id.ID) (*inventory_count.InventoryCount, error)

// InventoryCountHandler handles stocktake requests.
type InventoryCountHandler struct {
	*BaseHandler
	service *inventory_count.Service
}

// NewInventoryCountHandler creates a new inventory count handler.
func NewInventoryCountHandler(base *BaseHandler, service *inventory_count.Service) *InventoryCountHandler {
	return &InventoryCountHandler{BaseHandler: base, service: service}
}

// LoadBatches handles GET /inventory-counts/batches?warehouseId=
// It lists every open batch of the warehouse for a count sheet.
func (h *InventoryCountHandler) LoadBatches(c *gin.Context) {
	var q dto.BatchesQuery
	if !h.BindQuery(c, &q) {
		return
	}
	warehouseID, ok := h.ParseID(c, q.WarehouseID)
	if !ok {
		return
	}

	entries, err := h.service.LoadBatches(c.Request.Context(), warehouseID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(dto.FromEntries(entries)))
}

// Create handles POST /inventory-counts
func (h *InventoryCountHandler) Create(c *gin.Context) {
	var req dto.InventoryCountRequest
	if !h.BindJSON(c, &req) {
		return
	}

	doc := req.ToEntity()
	if err := h.service.Create(c.Request.Context(), doc); err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, doc)
}

// Get handles GET /inventory-counts/:id
func (h *InventoryCountHandler) Get(c *gin.Context) {
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

// Update handles PUT /inventory-counts/:id
func (h *InventoryCountHandler) Update(c *gin.Context) {
	ctx := c.Request.Context()

	docID, ok := h.ParamID(c)
	if !ok {
		return
	}

	var req dto.InventoryCountRequest
	if !h.BindJSON(c, &req) {
		return
	}

	doc, err := h.service.GetByID(ctx, docID)
	if err != nil {
		h.Error(c, err)
		return
	}
	req.ApplyTo(doc)

	if err := h.service.Update(ctx, doc); err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, doc)
}

// Delete handles DELETE /inventory-counts/:id
func (h *InventoryCountHandler) Delete(c *gin.Context) {
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

// Start handles POST /inventory-counts/:id/start
func (h *InventoryCountHandler) Start(c *gin.Context) {
	h.transition(c, h.service.Start)
}

// Cancel handles POST /inventory-counts/:id/cancel
func (h *InventoryCountHandler) Cancel(c *gin.Context) {
	h.transition(c, h.service.Cancel)
}

// Complete handles POST /inventory-counts/:id/complete. Lines that could
// not be reconciled carry their error; the count still completes.
func (h *InventoryCountHandler) Complete(c *gin.Context) {
	h.transition(c, h.service.Complete)
}

func (h *InventoryCountHandler) transition(c *gin.Context, fn statusFunc) {
	docID, ok := h.ParamID(c)
	if !ok {
		return
	}

	doc, err := fn(c.Request.Context(), docID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, doc)
}
