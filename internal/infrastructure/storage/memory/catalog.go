package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/shopspring/decimal"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/ledger"
)

var _ ledger.UnitCatalog = (*UnitCatalog)(nil)

type conversionKey struct {
	unitID     id.ID
	materialID id.ID
}

// UnitCatalog is an in-process unit-of-measure catalog.
type UnitCatalog struct {
	mu      sync.RWMutex
	base    map[id.ID]id.ID
	factors map[conversionKey]decimal.Decimal
}

// NewUnitCatalog creates an empty catalog.
func NewUnitCatalog() *UnitCatalog {
	return &UnitCatalog{
		base:    make(map[id.ID]id.ID),
		factors: make(map[conversionKey]decimal.Decimal),
	}
}

// SetBaseUnit registers the base unit of a material with factor 1.
func (c *UnitCatalog) SetBaseUnit(materialID, unitID id.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.base[materialID] = unitID
	c.factors[conversionKey{unitID: unitID, materialID: materialID}] = decimal.NewFromInt(1)
}

// SetConversion registers how many base units one unitID is for the material.
func (c *UnitCatalog) SetConversion(materialID, unitID id.ID, factor decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.factors[conversionKey{unitID: unitID, materialID: materialID}] = factor
}

func (c *UnitCatalog) GetConversionFactor(_ context.Context, unitID, materialID id.ID) (decimal.Decimal, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.factors[conversionKey{unitID: unitID, materialID: materialID}]
	if !ok {
		return decimal.Zero, apperror.NewNotFound("unit conversion", unitID.String()).
			WithDetail("materialId", materialID.String())
	}
	return f, nil
}

func (c *UnitCatalog) GetBaseUnit(_ context.Context, materialID id.ID) (id.ID, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	unitID, ok := c.base[materialID]
	if !ok {
		return id.Nil(), apperror.NewNotFound("base unit", materialID.String())
	}
	return unitID, nil
}

// MaterialUnits is the file form of one material's units.
type MaterialUnits struct {
	MaterialID  id.ID `json:"materialId"`
	BaseUnitID  id.ID `json:"baseUnitId"`
	Conversions []struct {
		UnitID id.ID           `json:"unitId"`
		Factor decimal.Decimal `json:"factor"`
	} `json:"conversions"`
}

// LoadFile seeds the catalog from a JSON array of MaterialUnits.
func (c *UnitCatalog) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read units file: %w", err)
	}
	var materials []MaterialUnits
	if err := json.Unmarshal(data, &materials); err != nil {
		return fmt.Errorf("parse units file: %w", err)
	}
	for _, m := range materials {
		c.SetBaseUnit(m.MaterialID, m.BaseUnitID)
		for _, conv := range m.Conversions {
			if !conv.Factor.IsPositive() {
				return fmt.Errorf("material %s unit %s: factor must be positive", m.MaterialID, conv.UnitID)
			}
			c.SetConversion(m.MaterialID, conv.UnitID, conv.Factor)
		}
	}
	return nil
}
