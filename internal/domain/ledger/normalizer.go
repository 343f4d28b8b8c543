package ledger

import (
	"context"

	"github.com/shopspring/decimal"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
)

// UnitCatalog is the unit-of-measure collaborator. GetConversionFactor returns
// how many base units one unit of unitID is for the material, or a not-found
// error when no conversion is registered.
type UnitCatalog interface {
	GetConversionFactor(ctx context.Context, unitID, materialID id.ID) (decimal.Decimal, error)
	GetBaseUnit(ctx context.Context, materialID id.ID) (id.ID, error)
}

// divisionScale bounds fromBase division. Any quantity with fewer fractional
// digits survives toBase followed by fromBase exactly.
const divisionScale = 24

// Normalizer converts quantities between any unit of a material and its base unit.
type Normalizer struct {
	catalog UnitCatalog
	display types.Rounder
}

// NewNormalizer creates a normalizer; displayScale applies to Display only.
func NewNormalizer(catalog UnitCatalog, displayScale int32) *Normalizer {
	return &Normalizer{catalog: catalog, display: types.NewRounder(displayScale)}
}

func (n *Normalizer) factor(ctx context.Context, unitID, materialID id.ID) (decimal.Decimal, error) {
	f, err := n.catalog.GetConversionFactor(ctx, unitID, materialID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return decimal.Zero, apperror.NewUnitConversion(unitID, materialID).WithCause(err)
		}
		return decimal.Zero, err
	}
	if !f.IsPositive() {
		return decimal.Zero, apperror.NewUnitConversion(unitID, materialID).
			WithDetail("factor", f.String())
	}
	return f, nil
}

// ToBase converts quantity in unitID to the material's base unit and returns
// the factor used. The result is not rounded.
func (n *Normalizer) ToBase(ctx context.Context, quantity decimal.Decimal, unitID, materialID id.ID) (decimal.Decimal, decimal.Decimal, error) {
	f, err := n.factor(ctx, unitID, materialID)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return quantity.Mul(f), f, nil
}

// FromBase converts a base-unit quantity to targetUnitID.
func (n *Normalizer) FromBase(ctx context.Context, baseQuantity decimal.Decimal, targetUnitID, materialID id.ID) (decimal.Decimal, error) {
	f, err := n.factor(ctx, targetUnitID, materialID)
	if err != nil {
		return decimal.Zero, err
	}
	return baseQuantity.DivRound(f, divisionScale), nil
}

// BaseUnit returns the unit ledger quantities of the material are kept in.
func (n *Normalizer) BaseUnit(ctx context.Context, materialID id.ID) (id.ID, error) {
	unitID, err := n.catalog.GetBaseUnit(ctx, materialID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return id.Nil(), apperror.NewUnitConversion(nil, materialID).WithCause(err)
		}
		return id.Nil(), err
	}
	return unitID, nil
}

// Display rounds a quantity half-up at the configured display scale.
func (n *Normalizer) Display(q decimal.Decimal) decimal.Decimal {
	return n.display.Round(q)
}

// PricePerBase converts a price per unit into a price per base unit.
func PricePerBase(price, factor decimal.Decimal) decimal.Decimal {
	if factor.Equal(decimal.NewFromInt(1)) {
		return price
	}
	return price.DivRound(factor, divisionScale)
}
