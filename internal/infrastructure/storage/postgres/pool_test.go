package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPool_RejectsMalformedURL(t *testing.T) {
	pool, err := NewPool(context.Background(), DefaultPoolConfig("postgres://localhost:notaport/stockledger"))
	require.Error(t, err)
	assert.Nil(t, pool)
	assert.Contains(t, err.Error(), "parse database url")
}

func TestPool_CloseOnZeroValue(t *testing.T) {
	assert.NotPanics(t, func() { (&Pool{}).Close() })
}
