package handlers

import (
	"stockledger/internal/domain/documents/stock_out"
	"stockledger/internal/infrastructure/http/v1/dto"
)

// StockOutHandler handles stock-out document requests.
type StockOutHandler struct {
	*BaseDocumentHandler[*stock_out.StockOut, dto.CreateStockOutRequest, dto.StockOutRequest]
}

// NewStockOutHandler creates a new stock-out handler.
func NewStockOutHandler(base *BaseHandler, service *stock_out.Service) *StockOutHandler {
	return &StockOutHandler{
		BaseDocumentHandler: NewBaseDocumentHandler(base, BaseDocumentHandlerConfig[*stock_out.StockOut, dto.CreateStockOutRequest, dto.StockOutRequest]{
			Service: service,
			MapCreateDTO: func(req *dto.CreateStockOutRequest) *stock_out.StockOut {
				return req.ToEntity()
			},
			ApplyUpdateDTO: func(req *dto.StockOutRequest, doc *stock_out.StockOut) {
				req.ApplyTo(doc)
			},
			IsPostImmediately: func(req *dto.CreateStockOutRequest) bool {
				return req.Post
			},
		}),
	}
}
