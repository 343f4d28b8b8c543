// Package catalog_repo provides the PostgreSQL unit-of-measure catalog.
package catalog_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/shopspring/decimal"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/infrastructure/storage/postgres"
)

const (
	materialUnitsTable   = "cat_material_units"
	unitConversionsTable = "cat_unit_conversions"
)

var _ ledger.UnitCatalog = (*UnitRepo)(nil)

// UnitRepo reads base units and conversion factors of materials.
type UnitRepo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

// NewUnitRepo creates a new unit catalog repository.
func NewUnitRepo(txm *postgres.TxManager) *UnitRepo {
	return &UnitRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// GetConversionFactor returns how many base units one unitID is. The base
// unit itself always converts with factor 1.
func (r *UnitRepo) GetConversionFactor(ctx context.Context, unitID, materialID id.ID) (decimal.Decimal, error) {
	var factors []decimal.Decimal
	err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &factors, `
		SELECT factor FROM `+unitConversionsTable+`
		WHERE unit_id = $1 AND material_id = $2
		UNION ALL
		SELECT 1::numeric FROM `+materialUnitsTable+`
		WHERE base_unit_id = $1 AND material_id = $2
		LIMIT 1
	`, unitID, materialID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("get conversion factor: %w", err)
	}
	if len(factors) == 0 {
		return decimal.Zero, apperror.NewNotFound("unit conversion", unitID.String()).
			WithDetail("materialId", materialID.String())
	}
	return factors[0], nil
}

// GetBaseUnit returns the base unit of a material.
func (r *UnitRepo) GetBaseUnit(ctx context.Context, materialID id.ID) (id.ID, error) {
	sql, args, err := r.builder.Select("base_unit_id").From(materialUnitsTable).
		Where(squirrel.Eq{"material_id": materialID}).ToSql()
	if err != nil {
		return id.Nil(), fmt.Errorf("build query: %w", err)
	}
	var unitID id.ID
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &unitID, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return id.Nil(), apperror.NewNotFound("base unit", materialID.String())
		}
		return id.Nil(), fmt.Errorf("get base unit: %w", err)
	}
	return unitID, nil
}
