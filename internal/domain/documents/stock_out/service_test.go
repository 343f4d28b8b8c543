package stock_out_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/app/apptest"
	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/documents/stock_in"
	"stockledger/internal/domain/documents/stock_out"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/workflow"
)

// twoBatches receives 10 @ 1 on day 1 and 10 @ 2 on day 2.
func twoBatches(t *testing.T, f *apptest.Fixture, wh id.ID, m apptest.Material) (older, newer ledger.Entry) {
	t.Helper()
	// Received out of date order; allocation follows the transaction date.
	newer = f.Receive(t, wh, m, apptest.Day(2), "10", "2")
	older = f.Receive(t, wh, m, apptest.Day(1), "10", "1")
	return older, newer
}

func sale(wh id.ID, m apptest.Material, unitID id.ID, qty string) *stock_out.StockOut {
	doc := stock_out.New(wh, stock_out.TypeSale, apptest.Day(5))
	doc.AddLine(m.ID, unitID, apptest.D(qty), "")
	return doc
}

func TestPost_FIFO(t *testing.T) {
	f := apptest.New(t)
	ctx := context.Background()
	wh := id.New()
	m := f.Material("12")
	older, newer := twoBatches(t, f, wh, m)

	doc := sale(wh, m, m.BaseUnit, "15")
	require.NoError(t, f.Services.StockOut.CreateAndPost(ctx, doc))

	apptest.DecEqual(t, "0", f.Entry(t, older.ID).RemainingQuantity)
	apptest.DecEqual(t, "5", f.Entry(t, newer.ID).RemainingQuantity)
	apptest.DecEqual(t, "5", f.Remaining(t, m.Pair(wh)))

	apptest.DecEqual(t, "20", doc.TotalAmount)
	line := doc.Lines[0]
	apptest.DecEqual(t, "15", line.BaseQuantity)
	apptest.DecEqual(t, "1.3333", line.AverageUnitCost)
	require.Len(t, line.BatchMappings, 2)
	assert.Equal(t, older.ID, line.BatchMappings[0].LedgerEntryID)
	apptest.DecEqual(t, "10", line.BatchMappings[0].QuantityUsed)
	apptest.DecEqual(t, "1", line.BatchMappings[0].UnitPrice)
	assert.Equal(t, newer.ID, line.BatchMappings[1].LedgerEntryID)
	apptest.DecEqual(t, "5", line.BatchMappings[1].QuantityUsed)
	apptest.DecEqual(t, "2", line.BatchMappings[1].UnitPrice)

	got, err := f.Services.StockOut.GetByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.True(t, got.Locked)
	require.Len(t, got.Lines[0].BatchMappings, 2)
	used, amount := ledger.SumMappings(got.Lines[0].BatchMappings)
	apptest.DecEqual(t, "15", used)
	apptest.DecEqual(t, "20", amount)
	assert.Equal(t, doc.ID, got.Lines[0].BatchMappings[0].TransactionID)
	assert.Equal(t, ledger.SourceStockOut, got.Lines[0].BatchMappings[0].Kind)

	types := f.EventTypes()
	assert.Equal(t, workflow.EventStockOutPosted, types[len(types)-1])
}

func TestPost_LIFO(t *testing.T) {
	f := apptest.New(t, apptest.WithPolicies(ledger.NewStaticPolicies(ledger.PolicyLIFO, nil)))
	ctx := context.Background()
	wh := id.New()
	m := f.Material("12")
	older, newer := twoBatches(t, f, wh, m)

	doc := sale(wh, m, m.BaseUnit, "15")
	require.NoError(t, f.Services.StockOut.CreateAndPost(ctx, doc))

	apptest.DecEqual(t, "5", f.Entry(t, older.ID).RemainingQuantity)
	apptest.DecEqual(t, "0", f.Entry(t, newer.ID).RemainingQuantity)
	apptest.DecEqual(t, "25", doc.TotalAmount)
	assert.Equal(t, newer.ID, doc.Lines[0].BatchMappings[0].LedgerEntryID)
}

func TestPost_PolicyOverride(t *testing.T) {
	wh := id.New()
	var fifoMat, lifoMat apptest.Material
	policies := &switchingPolicies{}
	f := apptest.New(t, apptest.WithPolicies(policies))
	ctx := context.Background()
	fifoMat = f.Material("1")
	lifoMat = f.Material("1")
	policies.resolver = ledger.NewStaticPolicies(ledger.PolicyFIFO, map[ledger.Pair]ledger.Policy{
		lifoMat.Pair(wh): ledger.PolicyLIFO,
	})

	fifoOld, _ := twoBatches(t, f, wh, fifoMat)
	_, lifoNew := twoBatches(t, f, wh, lifoMat)

	doc := stock_out.New(wh, stock_out.TypeSale, apptest.Day(5))
	doc.AddLine(fifoMat.ID, fifoMat.BaseUnit, apptest.D("4"), "")
	doc.AddLine(lifoMat.ID, lifoMat.BaseUnit, apptest.D("4"), "")
	require.NoError(t, f.Services.StockOut.CreateAndPost(ctx, doc))

	apptest.DecEqual(t, "6", f.Entry(t, fifoOld.ID).RemainingQuantity)
	apptest.DecEqual(t, "6", f.Entry(t, lifoNew.ID).RemainingQuantity)
}

type switchingPolicies struct {
	resolver ledger.PolicyResolver
}

func (p *switchingPolicies) PolicyFor(ctx context.Context, pair ledger.Pair) (ledger.Policy, error) {
	return p.resolver.PolicyFor(ctx, pair)
}

func TestPost_ConvertsUnits(t *testing.T) {
	f := apptest.New(t)
	ctx := context.Background()
	wh := id.New()
	m := f.Material("12")
	f.Receive(t, wh, m, apptest.Day(1), "30", "0.5")

	doc := sale(wh, m, m.Box, "2")
	require.NoError(t, f.Services.StockOut.CreateAndPost(ctx, doc))

	apptest.DecEqual(t, "24", doc.Lines[0].BaseQuantity)
	apptest.DecEqual(t, "12", doc.Lines[0].ConversionFactor)
	apptest.DecEqual(t, "12", doc.TotalAmount)
	apptest.DecEqual(t, "6", f.Remaining(t, m.Pair(wh)))
}

func TestPost_AllOrNothing(t *testing.T) {
	f := apptest.New(t)
	ctx := context.Background()
	wh := id.New()
	plenty := f.Material("1")
	scarce := f.Material("1")
	f.Receive(t, wh, plenty, apptest.Day(1), "100", "1")
	f.Receive(t, wh, scarce, apptest.Day(1), "3", "1")
	events := len(f.EventTypes())

	doc := stock_out.New(wh, stock_out.TypeSale, apptest.Day(2))
	doc.AddLine(plenty.ID, plenty.BaseUnit, apptest.D("40"), "")
	doc.AddLine(scarce.ID, scarce.BaseUnit, apptest.D("5"), "")
	require.NoError(t, f.Services.StockOut.Create(ctx, doc))

	_, err := f.Services.StockOut.Post(ctx, doc.ID)
	require.Error(t, err)
	assert.True(t, apperror.IsInsufficientStock(err), "got %v", err)
	appErr, _ := apperror.AsAppError(err)
	assert.Equal(t, 2, appErr.Details["lineNo"])

	apptest.DecEqual(t, "100", f.Remaining(t, plenty.Pair(wh)))
	apptest.DecEqual(t, "3", f.Remaining(t, scarce.Pair(wh)))
	mappings, err := f.Services.Ledger.ListMappingsByTransaction(ctx, ledger.SourceStockOut, doc.ID)
	require.NoError(t, err)
	assert.Empty(t, mappings)
	assert.Len(t, f.EventTypes(), events)

	got, err := f.Services.StockOut.GetByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.False(t, got.Locked, "a failed post leaves the document editable")

	got.Lines[1].Quantity = apptest.D("3")
	require.NoError(t, f.Services.StockOut.Update(ctx, got))
	_, err = f.Services.StockOut.Post(ctx, doc.ID)
	require.NoError(t, err)
	apptest.DecEqual(t, "60", f.Remaining(t, plenty.Pair(wh)))
	apptest.DecEqual(t, "0", f.Remaining(t, scarce.Pair(wh)))
}

func TestPost_Locked(t *testing.T) {
	f := apptest.New(t)
	ctx := context.Background()
	wh := id.New()
	m := f.Material("1")
	f.Receive(t, wh, m, apptest.Day(1), "10", "1")

	doc := sale(wh, m, m.BaseUnit, "4")
	require.NoError(t, f.Services.StockOut.CreateAndPost(ctx, doc))

	_, err := f.Services.StockOut.Post(ctx, doc.ID)
	assert.True(t, apperror.IsLockedTransaction(err))
	assert.True(t, apperror.IsLockedTransaction(f.Services.StockOut.Delete(ctx, doc.ID)))
	apptest.DecEqual(t, "6", f.Remaining(t, m.Pair(wh)))

	draft := sale(wh, m, m.BaseUnit, "1")
	require.NoError(t, f.Services.StockOut.Create(ctx, draft))
	require.NoError(t, f.Locks.Lock(ctx, draft.ID))
	_, err = f.Services.StockOut.Post(ctx, draft.ID)
	assert.True(t, apperror.IsLockedTransaction(err))
	apptest.DecEqual(t, "6", f.Remaining(t, m.Pair(wh)))
}

func TestTransfer_ReceivesAtDestination(t *testing.T) {
	f := apptest.New(t)
	ctx := context.Background()
	src, dst := id.New(), id.New()
	m := f.Material("12")
	twoBatches(t, f, src, m)

	doc := stock_out.New(src, stock_out.TypeTransfer, apptest.Day(6))
	doc.DestinationWarehouseID = &dst
	doc.AddLine(m.ID, m.Box, apptest.D("1.25"), "to branch")
	require.NoError(t, f.Services.StockOut.CreateAndPost(ctx, doc))

	// Conservation across both warehouses.
	apptest.DecEqual(t, "5", f.Remaining(t, m.Pair(src)))
	apptest.DecEqual(t, "15", f.Remaining(t, m.Pair(dst)))

	require.NotNil(t, doc.RelatedTransactionID)
	receipt, err := f.Services.StockIn.GetByID(ctx, *doc.RelatedTransactionID)
	require.NoError(t, err)
	assert.Equal(t, stock_in.TypeInternalTransfer, receipt.Type)
	assert.Equal(t, dst, receipt.WarehouseID)
	assert.True(t, receipt.Locked)
	require.NotNil(t, receipt.RelatedTransactionID)
	assert.Equal(t, doc.ID, *receipt.RelatedTransactionID)
	assert.Equal(t, doc.Number, receipt.ReferenceNumber)
	assert.Equal(t, doc.TransactionDate, receipt.TransactionDate)

	require.Len(t, receipt.Lines, 1)
	line := receipt.Lines[0]
	assert.Equal(t, m.BaseUnit, line.UnitID)
	apptest.DecEqual(t, "15", line.Quantity)
	apptest.DecEqual(t, "1.3333", line.UnitPrice)

	batch := f.Entry(t, *line.LedgerEntryID)
	assert.Equal(t, dst, batch.WarehouseID)
	apptest.DecEqual(t, "1.3333", batch.UnitPrice)

	types := f.EventTypes()
	assert.Equal(t, []string{workflow.EventStockInPosted, workflow.EventStockOutPosted}, types[len(types)-2:])
}

func TestTransfer_InsufficientStockCreatesNoReceipt(t *testing.T) {
	f := apptest.New(t)
	ctx := context.Background()
	src, dst := id.New(), id.New()
	m := f.Material("1")
	f.Receive(t, src, m, apptest.Day(1), "2", "1")

	doc := stock_out.New(src, stock_out.TypeTransfer, apptest.Day(2))
	doc.DestinationWarehouseID = &dst
	doc.AddLine(m.ID, m.BaseUnit, apptest.D("3"), "")
	err := f.Services.StockOut.CreateAndPost(ctx, doc)
	assert.True(t, apperror.IsInsufficientStock(err))

	apptest.DecEqual(t, "2", f.Remaining(t, m.Pair(src)))
	apptest.DecEqual(t, "0", f.Remaining(t, m.Pair(dst)))
	open, err := f.Services.Ledger.ListOpenByWarehouse(ctx, dst)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestValidation(t *testing.T) {
	f := apptest.New(t)
	ctx := context.Background()
	wh := id.New()
	m := f.Material("1")

	transfer := stock_out.New(wh, stock_out.TypeTransfer, apptest.Day(1))
	transfer.AddLine(m.ID, m.BaseUnit, apptest.D("1"), "")
	assert.True(t, apperror.HasCode(f.Services.StockOut.Create(ctx, transfer), apperror.CodeValidation))

	transfer.DestinationWarehouseID = &wh
	assert.True(t, apperror.HasCode(f.Services.StockOut.Create(ctx, transfer), apperror.CodeValidation))

	disposal := stock_out.New(wh, stock_out.TypeDisposal, apptest.Day(1))
	disposal.AddLine(m.ID, m.BaseUnit, apptest.D("1"), "")
	assert.True(t, apperror.HasCode(f.Services.StockOut.Create(ctx, disposal), apperror.CodeValidation))
	disposal.DisposalReason = "water damage"
	require.NoError(t, f.Services.StockOut.Create(ctx, disposal))

	negative := sale(wh, m, m.BaseUnit, "-1")
	assert.True(t, apperror.IsInvalidArgument(f.Services.StockOut.Create(ctx, negative)))
}

func TestPreview(t *testing.T) {
	f := apptest.New(t)
	ctx := context.Background()
	wh := id.New()
	m := f.Material("1")
	older, newer := twoBatches(t, f, wh, m)

	doc := sale(wh, m, m.BaseUnit, "12")
	require.NoError(t, f.Services.StockOut.Create(ctx, doc))

	preview, err := f.Services.StockOut.Preview(ctx, doc.ID)
	require.NoError(t, err)
	assert.True(t, preview.Sufficient)
	require.Len(t, preview.Lines, 1)
	batches := preview.Lines[0].Batches
	require.Len(t, batches, 2)
	assert.Equal(t, older.ID, batches[0].BatchID)
	assert.Equal(t, newer.ID, batches[1].BatchID)
	apptest.DecEqual(t, "8", batches[1].RemainingAfter)
	apptest.DecEqual(t, "14", preview.Lines[0].TotalAmount)
	apptest.DecEqual(t, "20", f.Remaining(t, m.Pair(wh)))

	big := sale(wh, m, m.BaseUnit, "25")
	require.NoError(t, f.Services.StockOut.Create(ctx, big))
	preview, err = f.Services.StockOut.Preview(ctx, big.ID)
	require.NoError(t, err)
	assert.False(t, preview.Sufficient)
	apptest.DecEqual(t, "5", preview.Lines[0].Shortage)
}

func TestPost_ConcurrentSalesNeverOversell(t *testing.T) {
	f := apptest.New(t)
	ctx := context.Background()
	wh := id.New()
	m := f.Material("1")
	f.Receive(t, wh, m, apptest.Day(1), "10", "1")

	const workers = 8
	var ok, short atomic.Int32
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := f.Services.StockOut.CreateAndPost(ctx, sale(wh, m, m.BaseUnit, "3"))
			switch {
			case err == nil:
				ok.Add(1)
			case apperror.IsInsufficientStock(err):
				short.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(3), ok.Load())
	assert.Equal(t, int32(workers-3), short.Load())
	apptest.DecEqual(t, "1", f.Remaining(t, m.Pair(wh)))
}
