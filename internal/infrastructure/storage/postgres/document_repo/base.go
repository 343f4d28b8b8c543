// Package document_repo provides PostgreSQL implementations for document repositories.
package document_repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/infrastructure/storage/postgres"
)

// uniqueViolation is the SQLSTATE of a unique constraint failure.
const uniqueViolation = "23505"

// BaseDocumentRepo stores a document header in table and its lines in
// linesTable keyed by document_id. Columns come from the db tags of D and L.
type BaseDocumentRepo[D any, L any] struct {
	txm        *postgres.TxManager
	entityName string
	table      string
	linesTable string
	cols       []string
	lineCols   []string
	header     func(*D) *entity.Transaction
}

// NewBaseDocumentRepo creates a new base document repository.
func NewBaseDocumentRepo[D any, L any](
	txm *postgres.TxManager,
	entityName, table, linesTable string,
	header func(*D) *entity.Transaction,
) *BaseDocumentRepo[D, L] {
	return &BaseDocumentRepo[D, L]{
		txm:        txm,
		entityName: entityName,
		table:      table,
		linesTable: linesTable,
		cols:       postgres.ExtractDBColumns[D](),
		lineCols:   postgres.ExtractDBColumns[L](),
		header:     header,
	}
}

// Builder returns a new squirrel builder.
func (r *BaseDocumentRepo[D, L]) Builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

func (r *BaseDocumentRepo[D, L]) values(doc *D) map[string]any {
	data := postgres.StructToMap(doc)
	out := make(map[string]any, len(r.cols))
	for _, col := range r.cols {
		if v, ok := data[col]; ok {
			out[col] = v
		}
	}
	return out
}

// Create inserts a new document header.
func (r *BaseDocumentRepo[D, L]) Create(ctx context.Context, doc *D) error {
	sql, args, err := r.Builder().Insert(r.table).SetMap(r.values(doc)).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return apperror.NewConflict(r.entityName + " already exists").
				WithDetail("constraint", pgErr.ConstraintName)
		}
		return fmt.Errorf("insert %s: %w", r.table, err)
	}
	return nil
}

// GetByID retrieves a document header by ID.
func (r *BaseDocumentRepo[D, L]) GetByID(ctx context.Context, docID id.ID) (*D, error) {
	sql, args, err := r.Builder().Select(r.cols...).From(r.table).
		Where(squirrel.Eq{"id": docID}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	doc := new(D)
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), doc, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound(r.entityName, docID.String())
		}
		return nil, fmt.Errorf("get %s: %w", r.table, err)
	}
	return doc, nil
}

// Update saves the header when the stored version still matches and
// advances the version of doc.
func (r *BaseDocumentRepo[D, L]) Update(ctx context.Context, doc *D) error {
	h := r.header(doc)
	data := r.values(doc)
	for _, col := range []string{"id", "created_at", "created_by", "version"} {
		delete(data, col)
	}

	sql, args, err := r.Builder().Update(r.table).
		SetMap(data).
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{"id": h.ID, "version": h.Version}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update %s: %w", r.table, err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewConcurrentModification(r.entityName, h.ID.String())
	}
	h.Version++
	return nil
}

// Delete removes an unlocked document and its lines.
func (r *BaseDocumentRepo[D, L]) Delete(ctx context.Context, docID id.ID) error {
	q := r.txm.GetQuerier(ctx)
	if _, err := q.Exec(ctx, "DELETE FROM "+r.linesTable+" WHERE document_id = $1", docID); err != nil {
		return fmt.Errorf("delete lines: %w", err)
	}
	tag, err := q.Exec(ctx, "DELETE FROM "+r.table+" WHERE id = $1 AND NOT locked", docID)
	if err != nil {
		return fmt.Errorf("delete %s: %w", r.table, err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound(r.entityName, docID.String())
	}
	return nil
}

// GetLines returns the lines of a document in line order.
func (r *BaseDocumentRepo[D, L]) GetLines(ctx context.Context, docID id.ID) ([]L, error) {
	sql, args, err := r.Builder().Select(r.lineCols...).From(r.linesTable).
		Where(squirrel.Eq{"document_id": docID}).
		OrderBy("line_no").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	lines := make([]L, 0)
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &lines, sql, args...); err != nil {
		return nil, fmt.Errorf("get lines: %w", err)
	}
	return lines, nil
}

// SaveLines replaces the lines of a document (delete existing + copy new).
func (r *BaseDocumentRepo[D, L]) SaveLines(ctx context.Context, docID id.ID, lines []L) error {
	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, "DELETE FROM "+r.linesTable+" WHERE document_id = $1", docID); err != nil {
		return fmt.Errorf("delete existing lines: %w", err)
	}
	if len(lines) == 0 {
		return nil
	}

	columns := append([]string{"document_id"}, r.lineCols...)
	rows := make([][]any, 0, len(lines))
	for i := range lines {
		data := postgres.StructToMap(&lines[i])
		row := make([]any, 0, len(columns))
		row = append(row, docID)
		for _, col := range r.lineCols {
			row = append(row, data[col])
		}
		rows = append(rows, row)
	}
	if _, err := r.txm.CopyFrom(ctx, pgx.Identifier{r.linesTable}, columns, pgx.CopyFromRows(rows)); err != nil {
		return fmt.Errorf("copy lines: %w", err)
	}
	return nil
}
