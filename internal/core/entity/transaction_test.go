package entity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
)

func TestTransaction_Validate(t *testing.T) {
	ctx := context.Background()

	tx := NewTransaction(id.New(), time.Now())
	require.NoError(t, tx.Validate(ctx))

	noWarehouse := NewTransaction(id.Nil(), time.Now())
	err := noWarehouse.Validate(ctx)
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, "warehouseId", appErr.Details["field"])

	noDate := NewTransaction(id.New(), time.Time{})
	assert.Error(t, noDate.Validate(ctx))
}

func TestTransaction_Lock(t *testing.T) {
	tx := NewTransaction(id.New(), time.Now())
	require.NoError(t, tx.CanModify("stock-in"))

	tx.MarkLocked()
	assert.True(t, tx.IsLocked())
	assert.NotNil(t, tx.LockedAt)
	assert.Equal(t, 1, tx.Version)
	assert.True(t, apperror.IsLockedTransaction(tx.CanModify("stock-in")))
}
