package handlers

import (
	"stockledger/internal/domain/documents/adjustment"
	"stockledger/internal/infrastructure/http/v1/dto"
)

// AdjustmentHandler handles adjustment document requests. Adjustments are
// not edited; a wrong draft is deleted and entered again.
type AdjustmentHandler struct {
	*BaseDocumentHandler[*adjustment.Adjustment, dto.CreateAdjustmentRequest, struct{}]
}

// NewAdjustmentHandler creates a new adjustment handler.
func NewAdjustmentHandler(base *BaseHandler, service *adjustment.Service) *AdjustmentHandler {
	return &AdjustmentHandler{
		BaseDocumentHandler: NewBaseDocumentHandler(base, BaseDocumentHandlerConfig[*adjustment.Adjustment, dto.CreateAdjustmentRequest, struct{}]{
			Service: service,
			MapCreateDTO: func(req *dto.CreateAdjustmentRequest) *adjustment.Adjustment {
				return req.ToEntity()
			},
			IsPostImmediately: func(req *dto.CreateAdjustmentRequest) bool {
				return req.Post
			},
		}),
	}
}
