// Package dto provides Data Transfer Objects for API requests/responses.
package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"stockledger/internal/core/id"
)

// --- Common Responses ---

// IDResponse contains just an ID.
type IDResponse struct {
	ID string `json:"id"`
}

// SuccessResponse for operations without data.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// ErrorResponse is the body the error middleware writes.
type ErrorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// ListResponse wraps list results.
type ListResponse[T any] struct {
	Items      []T `json:"items"`
	TotalCount int `json:"totalCount"`
}

// NewListResponse wraps items, never returning a null array.
func NewListResponse[T any](items []T) ListResponse[T] {
	if items == nil {
		items = make([]T, 0)
	}
	return ListResponse[T]{Items: items, TotalCount: len(items)}
}

// --- Common Request Parts ---

// DocumentHeader is shared by every document create/update request.
type DocumentHeader struct {
	Number          string    `json:"number,omitempty" binding:"max=64"`
	TransactionDate time.Time `json:"transactionDate" binding:"required"`
	WarehouseID     string    `json:"warehouseId" binding:"required,uuid"`
	Notes           string    `json:"notes,omitempty" binding:"max=2000"`
}

// PostFlag lets a create request post the document in the same call.
type PostFlag struct {
	Post bool `json:"post,omitempty"`
}

// PairQuery addresses one (warehouse, material) pair.
type PairQuery struct {
	WarehouseID string `form:"warehouseId" binding:"required,uuid"`
	MaterialID  string `form:"materialId" binding:"required,uuid"`
}

// IDs returns the parsed ids.
func (q PairQuery) IDs() (warehouseID, materialID id.ID) {
	return mustID(q.WarehouseID), mustID(q.MaterialID)
}

// BalanceResponse is the total remaining quantity of a pair in base units.
type BalanceResponse struct {
	WarehouseID  string          `json:"warehouseId"`
	MaterialID   string          `json:"materialId"`
	SumRemaining decimal.Decimal `json:"sumRemaining"`
}

// mustID parses an id already checked by the uuid binding rule.
func mustID(s string) id.ID {
	v, _ := id.Parse(s)
	return v
}

// optionalID parses an optional id already checked by the uuid binding rule.
func optionalID(s *string) *id.ID {
	if s == nil || *s == "" {
		return nil
	}
	v := mustID(*s)
	return &v
}
