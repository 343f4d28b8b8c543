package inventory_count

import "stockledger/internal/core/numerator"

const (
	NumeratorPrefix = "IC"

	// Counts are working documents; gaps in their numbering are acceptable.
	NumeratorStrategy = numerator.StrategyCached

	entityName = "inventory-count"
)
