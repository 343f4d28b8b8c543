// Package apptest builds the ledger services on the memory driver for tests.
package apptest

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"stockledger/internal/app"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/documents/stock_in"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/infrastructure/lock"
	"stockledger/internal/infrastructure/storage/memory"
	"stockledger/internal/infrastructure/workflow"
)

// Fixture is a fully wired in-memory ledger.
type Fixture struct {
	Store    *memory.Store
	Catalog  *memory.UnitCatalog
	Outbox   *memory.Outbox
	Audit    *memory.AuditLog
	Locks    *workflow.MemoryRegistry
	Services *app.Services
}

// Option adjusts the service options before the services are built.
type Option func(*app.Options)

// WithPolicies sets the allocation policy resolver.
func WithPolicies(p ledger.PolicyResolver) Option {
	return func(o *app.Options) { o.Policies = p }
}

// New creates a fixture.
func New(t testing.TB, opts ...Option) *Fixture {
	t.Helper()

	d, store, catalog := app.NewMemoryDriver(time.Hour)
	outbox, ok := d.Events.(*memory.Outbox)
	require.True(t, ok)
	auditLog, ok := d.Options.Audit.(*memory.AuditLog)
	require.True(t, ok)

	registry := workflow.NewMemoryRegistry()
	o := d.Options
	o.Catalog = catalog
	o.Locker = lock.NewKeyedMutex(time.Second)
	o.Workflow = workflow.NewGateway(d.Events, registry)
	o.DisplayScale = 4
	o.PriceScale = 4
	for _, opt := range opts {
		opt(&o)
	}

	return &Fixture{
		Store:    store,
		Catalog:  catalog,
		Outbox:   outbox,
		Audit:    auditLog,
		Locks:    registry,
		Services: app.NewServices(d.Storage, o),
	}
}

// Material is a material with a base unit and a box of BoxFactor base units.
type Material struct {
	ID        id.ID
	BaseUnit  id.ID
	Box       id.ID
	BoxFactor decimal.Decimal
}

// Pair returns the ledger pair of the material in warehouseID.
func (m Material) Pair(warehouseID id.ID) ledger.Pair {
	return ledger.Pair{WarehouseID: warehouseID, MaterialID: m.ID}
}

// Material registers a new material whose box holds boxFactor base units.
func (f *Fixture) Material(boxFactor string) Material {
	m := Material{ID: id.New(), BaseUnit: id.New(), Box: id.New(), BoxFactor: D(boxFactor)}
	f.Catalog.SetBaseUnit(m.ID, m.BaseUnit)
	f.Catalog.SetConversion(m.ID, m.Box, m.BoxFactor)
	return m
}

// Receive posts an external stock-in of qty base units at price and returns
// the created batch.
func (f *Fixture) Receive(t testing.TB, warehouseID id.ID, m Material, date time.Time, qty, price string) ledger.Entry {
	t.Helper()
	doc := stock_in.New(warehouseID, stock_in.TypeExternal, date)
	doc.AddLine(m.ID, m.BaseUnit, D(qty), D(price), "")
	require.NoError(t, f.Services.StockIn.CreateAndPost(context.Background(), doc))
	require.NotNil(t, doc.Lines[0].LedgerEntryID)
	return f.Entry(t, *doc.Lines[0].LedgerEntryID)
}

// Entry reads a committed batch.
func (f *Fixture) Entry(t testing.TB, entryID id.ID) ledger.Entry {
	t.Helper()
	e, err := f.Services.Ledger.GetByID(context.Background(), entryID)
	require.NoError(t, err)
	return *e
}

// Remaining is the stock left on a pair.
func (f *Fixture) Remaining(t testing.TB, pair ledger.Pair) decimal.Decimal {
	t.Helper()
	sum, err := f.Services.Ledger.SumRemaining(context.Background(), pair)
	require.NoError(t, err)
	return sum
}

// EventTypes lists the committed workflow event types in order.
func (f *Fixture) EventTypes() []string {
	events := f.Outbox.Events(context.Background())
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.Type)
	}
	return out
}

// D parses a decimal literal.
func D(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// Day returns midnight UTC of the given day in January 2025.
func Day(n int) time.Time {
	return time.Date(2025, time.January, n, 0, 0, 0, 0, time.UTC)
}

// DecEqual asserts two decimals are numerically equal.
func DecEqual(t testing.TB, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	require.Truef(t, D(want).Equal(got), "want %s, got %s %v", want, got.String(), msgAndArgs)
}
