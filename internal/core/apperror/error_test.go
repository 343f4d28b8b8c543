package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPredicatesSeeThroughWrapping(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"invalid argument", NewInvalidArgument("quantity must be positive"), IsInvalidArgument},
		{"unit conversion", NewUnitConversion("kg", "flour"), IsUnitConversion},
		{"insufficient stock", NewInsufficientStock("flour", "15", "10"), IsInsufficientStock},
		{"insufficient batch", NewInsufficientBatchQuantity("b1", "4", "3"), IsInsufficientBatchQuantity},
		{"locked", NewLockedTransaction("stock-out", "x"), IsLockedTransaction},
		{"concurrent", NewConcurrentModification("ledger entry", "b1"), IsConcurrentModification},
		{"not found", NewNotFound("stock-in", "x"), IsNotFound},
		{"invalid status", NewInvalidStatus("inventory count", "DRAFT", "COMPLETED"), IsInvalidStatus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("post line 2: %w", tt.err)
			assert.True(t, tt.check(wrapped))
			assert.False(t, tt.check(errors.New("plain")))
		})
	}
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusUnprocessableEntity, GetHTTPStatus(NewInsufficientStock("m", "2", "1")))
	assert.Equal(t, http.StatusConflict, GetHTTPStatus(NewLockedTransaction("stock-in", "x")))
	assert.Equal(t, http.StatusBadRequest, GetHTTPStatus(NewInvalidArgument("bad")))
	assert.Equal(t, http.StatusUnprocessableEntity, GetHTTPStatus(NewInvalidStatus("inventory count", "CANCELLED", "IN_PROGRESS")))
	assert.Equal(t, http.StatusInternalServerError, GetHTTPStatus(errors.New("boom")))
}

func TestWithDetailAndCause(t *testing.T) {
	cause := errors.New("driver failure")
	err := NewInternal(cause).WithDetail("table", "ledger_entries")

	appErr, ok := AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, "ledger_entries", appErr.Details["table"])
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "caused by: driver failure")
}
