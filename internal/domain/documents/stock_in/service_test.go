package stock_in_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/app/apptest"
	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/audit"
	"stockledger/internal/domain/documents/stock_in"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/workflow"
)

func TestCreateAndPost_CreatesBatchPerLine(t *testing.T) {
	f := apptest.New(t)
	ctx := context.Background()
	wh := id.New()
	bolts := f.Material("12")
	nuts := f.Material("100")

	doc := stock_in.New(wh, stock_in.TypeExternal, apptest.Day(3))
	doc.AddLine(bolts.ID, bolts.Box, apptest.D("2"), apptest.D("24"), "two boxes")
	doc.AddLine(nuts.ID, nuts.BaseUnit, apptest.D("50"), apptest.D("0.1"), "")
	require.NoError(t, f.Services.StockIn.CreateAndPost(ctx, doc))

	assert.True(t, doc.Locked)
	assert.NotEmpty(t, doc.Number)
	apptest.DecEqual(t, "53", doc.TotalAmount)

	got, err := f.Services.StockIn.GetByID(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, got.Lines, 2)
	assert.True(t, got.Locked)
	require.NotNil(t, got.Lines[0].LedgerEntryID)

	batch := f.Entry(t, *got.Lines[0].LedgerEntryID)
	assert.Equal(t, ledger.SourceStockIn, batch.SourceKind)
	assert.Equal(t, doc.ID, batch.SourceTransactionID)
	assert.Equal(t, got.Lines[0].LineID, batch.SourceLineID)
	assert.Equal(t, doc.Number+"-1", batch.BatchNumber)
	assert.Equal(t, ledger.PolicyFIFO, batch.Policy)
	apptest.DecEqual(t, "24", batch.Quantity)
	apptest.DecEqual(t, "24", batch.RemainingQuantity)
	apptest.DecEqual(t, "2", batch.UnitPrice)
	apptest.DecEqual(t, "2", batch.OriginalQuantity)
	apptest.DecEqual(t, "12", batch.ConversionFactor)
	assert.Equal(t, bolts.Box, batch.OriginalUnitID)

	apptest.DecEqual(t, "24", f.Remaining(t, bolts.Pair(wh)))
	apptest.DecEqual(t, "50", f.Remaining(t, nuts.Pair(wh)))

	assert.Equal(t, []string{workflow.EventStockInPosted}, f.EventTypes())
	history := f.Audit.History(ctx, doc.ID)
	require.Len(t, history, 2)
	assert.Equal(t, audit.ActionCreate, history[0].Action)
	assert.Equal(t, audit.ActionPost, history[1].Action)
}

func TestPost_LocksDocument(t *testing.T) {
	f := apptest.New(t)
	ctx := context.Background()
	wh := id.New()
	m := f.Material("10")

	doc := stock_in.New(wh, stock_in.TypeExternal, apptest.Day(1))
	doc.AddLine(m.ID, m.BaseUnit, apptest.D("5"), apptest.D("3"), "")
	require.NoError(t, f.Services.StockIn.Create(ctx, doc))
	apptest.DecEqual(t, "0", f.Remaining(t, m.Pair(wh)))

	posted, err := f.Services.StockIn.Post(ctx, doc.ID)
	require.NoError(t, err)
	assert.True(t, posted.Locked)
	assert.NotNil(t, posted.LockedAt)
	apptest.DecEqual(t, "5", f.Remaining(t, m.Pair(wh)))

	_, err = f.Services.StockIn.Post(ctx, doc.ID)
	assert.True(t, apperror.IsLockedTransaction(err), "second post: %v", err)
	apptest.DecEqual(t, "5", f.Remaining(t, m.Pair(wh)))

	posted.Lines[0].Quantity = apptest.D("6")
	assert.True(t, apperror.IsLockedTransaction(f.Services.StockIn.Update(ctx, posted)))
	assert.True(t, apperror.IsLockedTransaction(f.Services.StockIn.Delete(ctx, doc.ID)))
}

func TestUpdateAndDelete_Draft(t *testing.T) {
	f := apptest.New(t)
	ctx := context.Background()
	m := f.Material("10")

	doc := stock_in.New(id.New(), stock_in.TypeExternal, apptest.Day(1))
	doc.AddLine(m.ID, m.BaseUnit, apptest.D("5"), apptest.D("3"), "")
	require.NoError(t, f.Services.StockIn.Create(ctx, doc))
	number := doc.Number

	edit, err := f.Services.StockIn.GetByID(ctx, doc.ID)
	require.NoError(t, err)
	edit.Number = "ignored"
	edit.AddLine(m.ID, m.Box, apptest.D("1"), apptest.D("20"), "")
	require.NoError(t, f.Services.StockIn.Update(ctx, edit))

	got, err := f.Services.StockIn.GetByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, number, got.Number)
	require.Len(t, got.Lines, 2)
	apptest.DecEqual(t, "35", got.TotalAmount)

	stale := *doc
	stale.Notes = "stale copy"
	require.NoError(t, f.Services.StockIn.Update(ctx, &stale), "update re-reads the stored version")

	require.NoError(t, f.Services.StockIn.Delete(ctx, doc.ID))
	_, err = f.Services.StockIn.GetByID(ctx, doc.ID)
	assert.True(t, apperror.IsNotFound(err))
}

func TestValidation(t *testing.T) {
	f := apptest.New(t)
	ctx := context.Background()
	m := f.Material("10")
	wh := id.New()

	tests := []struct {
		name  string
		build func() *stock_in.StockIn
		code  string
	}{
		{
			name: "no lines",
			build: func() *stock_in.StockIn {
				return stock_in.New(wh, stock_in.TypeExternal, apptest.Day(1))
			},
			code: apperror.CodeValidation,
		},
		{
			name: "zero quantity",
			build: func() *stock_in.StockIn {
				doc := stock_in.New(wh, stock_in.TypeExternal, apptest.Day(1))
				doc.AddLine(m.ID, m.BaseUnit, apptest.D("0"), apptest.D("1"), "")
				return doc
			},
			code: apperror.CodeInvalidArgument,
		},
		{
			name: "external receipt without price",
			build: func() *stock_in.StockIn {
				doc := stock_in.New(wh, stock_in.TypeExternal, apptest.Day(1))
				doc.AddLine(m.ID, m.BaseUnit, apptest.D("1"), apptest.D("0"), "")
				return doc
			},
			code: apperror.CodeInvalidArgument,
		},
		{
			name: "transfer receipt without source",
			build: func() *stock_in.StockIn {
				doc := stock_in.New(wh, stock_in.TypeInternalTransfer, apptest.Day(1))
				doc.AddLine(m.ID, m.BaseUnit, apptest.D("1"), apptest.D("0"), "")
				return doc
			},
			code: apperror.CodeValidation,
		},
		{
			name: "missing warehouse",
			build: func() *stock_in.StockIn {
				doc := stock_in.New(id.Nil(), stock_in.TypeExternal, apptest.Day(1))
				doc.AddLine(m.ID, m.BaseUnit, apptest.D("1"), apptest.D("1"), "")
				return doc
			},
			code: apperror.CodeValidation,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.Services.StockIn.CreateAndPost(ctx, tt.build())
			require.Error(t, err)
			assert.True(t, apperror.HasCode(err, tt.code), "got %v", err)
		})
	}
	apptest.DecEqual(t, "0", f.Remaining(t, m.Pair(wh)))
	assert.Empty(t, f.EventTypes())
}

func TestPost_UnknownUnitLeavesLedgerUnchanged(t *testing.T) {
	f := apptest.New(t)
	ctx := context.Background()
	wh := id.New()
	m := f.Material("10")

	doc := stock_in.New(wh, stock_in.TypeExternal, apptest.Day(1))
	doc.AddLine(m.ID, m.BaseUnit, apptest.D("5"), apptest.D("1"), "")
	doc.AddLine(m.ID, id.New(), apptest.D("1"), apptest.D("1"), "")

	err := f.Services.StockIn.CreateAndPost(ctx, doc)
	assert.True(t, apperror.IsUnitConversion(err), "got %v", err)
	apptest.DecEqual(t, "0", f.Remaining(t, m.Pair(wh)))

	_, err = f.Services.StockIn.GetByID(ctx, doc.ID)
	assert.True(t, apperror.IsNotFound(err), "the document rolls back with its batches")
}

func TestPost_WorkflowLock(t *testing.T) {
	f := apptest.New(t)
	ctx := context.Background()
	m := f.Material("10")

	doc := stock_in.New(id.New(), stock_in.TypeExternal, apptest.Day(1))
	doc.AddLine(m.ID, m.BaseUnit, apptest.D("5"), apptest.D("1"), "")
	require.NoError(t, f.Services.StockIn.Create(ctx, doc))

	require.NoError(t, f.Locks.Lock(ctx, doc.ID))
	_, err := f.Services.StockIn.Post(ctx, doc.ID)
	assert.True(t, apperror.IsLockedTransaction(err), "got %v", err)
	_, err = f.Services.StockIn.Preview(ctx, doc.ID)
	assert.True(t, apperror.IsLockedTransaction(err))

	require.NoError(t, f.Locks.Unlock(ctx, doc.ID))
	_, err = f.Services.StockIn.Post(ctx, doc.ID)
	require.NoError(t, err)
}

func TestPreview(t *testing.T) {
	f := apptest.New(t)
	ctx := context.Background()
	m := f.Material("12")

	doc := stock_in.New(id.New(), stock_in.TypeExternal, apptest.Day(1))
	doc.AddLine(m.ID, m.Box, apptest.D("3"), apptest.D("6"), "")
	require.NoError(t, f.Services.StockIn.Create(ctx, doc))

	preview, err := f.Services.StockIn.Preview(ctx, doc.ID)
	require.NoError(t, err)
	assert.True(t, preview.Sufficient)
	require.Len(t, preview.Lines, 1)
	line := preview.Lines[0]
	apptest.DecEqual(t, "36", line.BaseQuantity)
	require.Len(t, line.Batches, 1)
	apptest.DecEqual(t, "0.5", line.Batches[0].UnitPrice)
	apptest.DecEqual(t, "18", preview.GrandTotal)

	// Preview does not post.
	apptest.DecEqual(t, "0", f.Remaining(t, m.Pair(doc.WarehouseID)))

	_, err = f.Services.StockIn.Post(ctx, doc.ID)
	require.NoError(t, err)
	_, err = f.Services.StockIn.Preview(ctx, doc.ID)
	assert.True(t, apperror.IsLockedTransaction(err))
}
