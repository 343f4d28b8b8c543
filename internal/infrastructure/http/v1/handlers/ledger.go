package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"stockledger/internal/core/tx"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/infrastructure/http/v1/dto"
)

// LedgerHandler serves batch queries and the ad-hoc allocation preview.
type LedgerHandler struct {
	*BaseHandler
	store     ledger.Store
	policies  ledger.PolicyResolver
	previewer *ledger.Previewer
	txm       tx.ReadOnlyManager
}

// NewLedgerHandler creates a new ledger handler.
func NewLedgerHandler(base *BaseHandler, store ledger.Store, policies ledger.PolicyResolver, previewer *ledger.Previewer, txm tx.ReadOnlyManager) *LedgerHandler {
	return &LedgerHandler{
		BaseHandler: base,
		store:       store,
		policies:    policies,
		previewer:   previewer,
		txm:         txm,
	}
}

// Preview handles POST /ledger/preview
func (h *LedgerHandler) Preview(c *gin.Context) {
	var req dto.PreviewRequest
	if !h.BindJSON(c, &req) {
		return
	}
	warehouseID, ok := h.ParseID(c, req.WarehouseID)
	if !ok {
		return
	}

	preview, err := h.previewer.Preview(c.Request.Context(), warehouseID, req.PreviewItems())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, preview)
}

// ListBatches handles GET /ledger/batches?warehouseId&materialId
// Open batches are returned in the order the pair's policy consumes them.
func (h *LedgerHandler) ListBatches(c *gin.Context) {
	var q dto.PairQuery
	if !h.BindQuery(c, &q) {
		return
	}
	warehouseID, materialID := q.IDs()
	pair := ledger.Pair{WarehouseID: warehouseID, MaterialID: materialID}

	var entries []ledger.Entry
	err := h.txm.ReadOnly(c.Request.Context(), func(ctx context.Context) error {
		policy, err := h.policies.PolicyFor(ctx, pair)
		if err != nil {
			return err
		}
		entries, err = h.store.ListOrdered(ctx, pair, policy)
		return err
	})
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(entries))
}

// GetBatch handles GET /ledger/batches/:id with the batch's consumptions.
func (h *LedgerHandler) GetBatch(c *gin.Context) {
	entryID, ok := h.ParamID(c)
	if !ok {
		return
	}

	var resp *dto.BatchResponse
	err := h.txm.ReadOnly(c.Request.Context(), func(ctx context.Context) error {
		entry, err := h.store.GetByID(ctx, entryID)
		if err != nil {
			return err
		}
		mappings, err := h.store.ListMappingsByEntry(ctx, entryID)
		if err != nil {
			return err
		}
		resp = dto.FromEntry(entry, mappings)
		return nil
	})
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, resp)
}

// Balance handles GET /ledger/balance?warehouseId&materialId
func (h *LedgerHandler) Balance(c *gin.Context) {
	var q dto.PairQuery
	if !h.BindQuery(c, &q) {
		return
	}
	warehouseID, materialID := q.IDs()

	sum, err := h.store.SumRemaining(c.Request.Context(), ledger.Pair{WarehouseID: warehouseID, MaterialID: materialID})
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.BalanceResponse{
		WarehouseID:  warehouseID.String(),
		MaterialID:   materialID.String(),
		SumRemaining: sum,
	})
}
