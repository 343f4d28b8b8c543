package handlers

import (
	"stockledger/internal/domain/documents/stock_in"
	"stockledger/internal/infrastructure/http/v1/dto"
)

// StockInHandler handles stock-in document requests.
type StockInHandler struct {
	*BaseDocumentHandler[*stock_in.StockIn, dto.CreateStockInRequest, dto.StockInRequest]
}

// NewStockInHandler creates a new stock-in handler.
func NewStockInHandler(base *BaseHandler, service *stock_in.Service) *StockInHandler {
	return &StockInHandler{
		BaseDocumentHandler: NewBaseDocumentHandler(base, BaseDocumentHandlerConfig[*stock_in.StockIn, dto.CreateStockInRequest, dto.StockInRequest]{
			Service: service,
			MapCreateDTO: func(req *dto.CreateStockInRequest) *stock_in.StockIn {
				return req.ToEntity()
			},
			ApplyUpdateDTO: func(req *dto.StockInRequest, doc *stock_in.StockIn) {
				req.ApplyTo(doc)
			},
			IsPostImmediately: func(req *dto.CreateStockInRequest) bool {
				return req.Post
			},
		}),
	}
}
