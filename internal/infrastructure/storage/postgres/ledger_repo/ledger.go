// Package ledger_repo provides the PostgreSQL batch ledger.
package ledger_repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/infrastructure/storage/postgres"
)

const (
	entriesTable  = "inventory_ledger"
	mappingsTable = "ledger_mappings"
)

var _ ledger.Store = (*LedgerRepo)(nil)

// LedgerRepo implements ledger.Store.
type LedgerRepo struct {
	txm         *postgres.TxManager
	builder     squirrel.StatementBuilderType
	entryCols   []string
	mappingCols []string
}

// NewLedgerRepo creates a new ledger repository.
func NewLedgerRepo(txm *postgres.TxManager) *LedgerRepo {
	return &LedgerRepo{
		txm:         txm,
		builder:     squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		entryCols:   postgres.ExtractDBColumns[ledger.Entry](),
		mappingCols: postgres.ExtractDBColumns[ledger.Mapping](),
	}
}

func (r *LedgerRepo) selectEntries() squirrel.SelectBuilder {
	return r.builder.Select(r.entryCols...).From(entriesTable)
}

func (r *LedgerRepo) listEntries(ctx context.Context, q squirrel.SelectBuilder) ([]ledger.Entry, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	entries := make([]ledger.Entry, 0)
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &entries, sql, args...); err != nil {
		return nil, fmt.Errorf("select ledger entries: %w", err)
	}
	return entries, nil
}

// orderBy returns the consumption order of policy.
func orderBy(policy ledger.Policy) []string {
	if policy == ledger.PolicyLIFO {
		return []string{"transaction_date DESC", "created_at DESC", "id DESC"}
	}
	return []string{"transaction_date", "created_at", "id"}
}

func (r *LedgerRepo) ListOrdered(ctx context.Context, pair ledger.Pair, policy ledger.Policy) ([]ledger.Entry, error) {
	return r.listEntries(ctx, r.selectEntries().
		Where(squirrel.Eq{"warehouse_id": pair.WarehouseID, "material_id": pair.MaterialID}).
		Where(squirrel.Gt{"remaining_quantity": 0}).
		OrderBy(orderBy(policy)...))
}

func (r *LedgerRepo) SumRemaining(ctx context.Context, pair ledger.Pair) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.txm.GetQuerier(ctx).QueryRow(ctx, `
		SELECT COALESCE(SUM(remaining_quantity), 0)
		FROM `+entriesTable+`
		WHERE warehouse_id = $1 AND material_id = $2
	`, pair.WarehouseID, pair.MaterialID).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum remaining: %w", err)
	}
	return total, nil
}

func (r *LedgerRepo) GetByID(ctx context.Context, entryID id.ID) (*ledger.Entry, error) {
	sql, args, err := r.selectEntries().Where(squirrel.Eq{"id": entryID}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var entry ledger.Entry
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &entry, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("ledger entry", entryID.String())
		}
		return nil, fmt.Errorf("get ledger entry: %w", err)
	}
	return &entry, nil
}

func (r *LedgerRepo) Insert(ctx context.Context, entry *ledger.Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	data := postgres.StructToMap(entry)
	sql, args, err := r.builder.Insert(entriesTable).SetMap(data).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperror.NewConflict("ledger entry already exists").WithDetail("ledgerEntryId", entry.ID.String())
		}
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

// Decrement applies remaining >= amount in the UPDATE itself, so two
// writers can never drive a batch negative.
func (r *LedgerRepo) Decrement(ctx context.Context, entryID id.ID, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return apperror.NewInvalidArgument("decrement must be positive").WithDetail("quantity", amount.String())
	}
	q := r.txm.GetQuerier(ctx)
	tag, err := q.Exec(ctx, `
		UPDATE `+entriesTable+`
		SET remaining_quantity = remaining_quantity - $1
		WHERE id = $2 AND remaining_quantity >= $1
	`, amount, entryID)
	if err != nil {
		return fmt.Errorf("decrement ledger entry: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var remaining decimal.Decimal
	err = q.QueryRow(ctx, `SELECT remaining_quantity FROM `+entriesTable+` WHERE id = $1`, entryID).Scan(&remaining)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperror.NewNotFound("ledger entry", entryID.String())
	}
	if err != nil {
		return fmt.Errorf("read remaining quantity: %w", err)
	}
	return apperror.NewInsufficientBatchQuantity(entryID.String(), amount.String(), remaining.String())
}

func (r *LedgerRepo) ListBySource(ctx context.Context, kind ledger.SourceKind, transactionID id.ID) ([]ledger.Entry, error) {
	return r.listEntries(ctx, r.selectEntries().
		Where(squirrel.Eq{"source_kind": kind, "source_transaction_id": transactionID}).
		OrderBy(orderBy(ledger.PolicyFIFO)...))
}

func (r *LedgerRepo) ListOpenByWarehouse(ctx context.Context, warehouseID id.ID) ([]ledger.Entry, error) {
	return r.listEntries(ctx, r.selectEntries().
		Where(squirrel.Eq{"warehouse_id": warehouseID}).
		Where(squirrel.Gt{"remaining_quantity": 0}).
		OrderBy(append([]string{"material_id"}, orderBy(ledger.PolicyFIFO)...)...))
}

// SaveMappings copies mappings in one round trip. The seq column keeps their
// write order.
func (r *LedgerRepo) SaveMappings(ctx context.Context, mappings []ledger.Mapping) error {
	if len(mappings) == 0 {
		return nil
	}
	rows := make([][]any, 0, len(mappings))
	for i := range mappings {
		m := &mappings[i]
		if id.IsNil(m.ID) {
			m.ID = id.New()
		}
		data := postgres.StructToMap(m)
		row := make([]any, 0, len(r.mappingCols))
		for _, col := range r.mappingCols {
			row = append(row, data[col])
		}
		rows = append(rows, row)
	}
	if _, err := r.txm.CopyFrom(ctx, pgx.Identifier{mappingsTable}, r.mappingCols, pgx.CopyFromRows(rows)); err != nil {
		return fmt.Errorf("copy mappings: %w", err)
	}
	return nil
}

func (r *LedgerRepo) listMappings(ctx context.Context, where squirrel.Eq) ([]ledger.Mapping, error) {
	sql, args, err := r.builder.Select(r.mappingCols...).From(mappingsTable).
		Where(where).OrderBy("seq").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	mappings := make([]ledger.Mapping, 0)
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &mappings, sql, args...); err != nil {
		return nil, fmt.Errorf("select mappings: %w", err)
	}
	return mappings, nil
}

func (r *LedgerRepo) ListMappingsByTransaction(ctx context.Context, kind ledger.SourceKind, transactionID id.ID) ([]ledger.Mapping, error) {
	return r.listMappings(ctx, squirrel.Eq{"kind": kind, "transaction_id": transactionID})
}

func (r *LedgerRepo) ListMappingsByEntry(ctx context.Context, entryID id.ID) ([]ledger.Mapping, error) {
	return r.listMappings(ctx, squirrel.Eq{"ledger_entry_id": entryID})
}
