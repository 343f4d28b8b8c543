package stock_in

import "stockledger/internal/core/numerator"

const (
	// NumeratorPrefix starts every stock-in number.
	NumeratorPrefix = "SI"

	// NumeratorStrategy defines the numbering strategy for this document type.
	// Receipts are primary accounting documents, so we use Strict strategy.
	NumeratorStrategy = numerator.StrategyStrict

	entityName = "stock-in"
)
