package adjustment

import "stockledger/internal/core/numerator"

const (
	NumeratorPrefix   = "ADJ"
	NumeratorStrategy = numerator.StrategyStrict

	entityName = "adjustment"
)
