// Package numerator defines how documents get human-readable numbers
// such as SI-2026-00042. Implementations live in pkg/numerator.
package numerator

// Strategy is how a generator reserves sequence values.
type Strategy int

const (
	// StrategyStrict takes one value per call inside the caller's
	// transaction, so numbers are gapless. Receipts, stock-outs and
	// adjustments use it.
	StrategyStrict Strategy = iota

	// StrategyCached reserves RangeSize values at once and hands them out
	// from memory. A restart skips the unused rest of the range.
	StrategyCached
)

// Options tune one GetNextNumber call. RangeSize applies to
// StrategyCached; zero means 50.
type Options struct {
	Strategy  Strategy
	RangeSize int64
}

func DefaultOptions() *Options {
	return &Options{Strategy: StrategyStrict}
}

// Config is the number format of one document kind: Prefix, the optional
// year, and the counter zero-padded to PadWidth. ResetPeriod ("year",
// "month" or "never") picks when the counter starts over.
type Config struct {
	Prefix      string
	IncludeYear bool
	PadWidth    int
	ResetPeriod string
}

// DefaultConfig is PREFIX-YYYY-NNNNN, restarting every year.
func DefaultConfig(prefix string) Config {
	return Config{
		Prefix:      prefix,
		IncludeYear: true,
		PadWidth:    5,
		ResetPeriod: "year",
	}
}
