package stock_out

import "stockledger/internal/core/numerator"

const (
	NumeratorPrefix = "SO"

	// NumeratorStrategy defines the numbering strategy for this document type.
	// Issues are primary accounting documents, so we use Strict strategy.
	NumeratorStrategy = numerator.StrategyStrict

	entityName = "stock-out"
)
