// Package indicators computes technical indicators over period closes.
package indicators

import (
	"errors"
	"fmt"

	"eveBot/internal/candles"
)

// ErrNotEnoughData is returned when fewer periods than required are given.
var ErrNotEnoughData = errors.New("not enough periods")

// Indicator represents a technical indicator calculated from periods,
// oldest first.
type Indicator interface {
	// Calculate computes the indicator value as of the last period.
	Calculate(periods []candles.Period) (float64, error)

	// RequiredPeriods returns the minimum number of periods needed.
	RequiredPeriods() int

	// Name returns the name of the indicator
	Name() string
}

// Config holds common configuration for indicators
type Config struct {
	Length int
}

func notEnough(name string, got, need int) error {
	return fmt.Errorf("%w: %s needs %d, got %d", ErrNotEnoughData, name, need, got)
}

// Series evaluates ind at every period. Positions without enough history
// are reported as not ok.
func Series(ind Indicator, periods []candles.Period) (values []float64, ok []bool) {
	values = make([]float64, len(periods))
	ok = make([]bool, len(periods))
	for i := ind.RequiredPeriods() - 1; i < len(periods); i++ {
		if i < 0 {
			continue
		}
		v, err := ind.Calculate(periods[:i+1])
		if err != nil {
			continue
		}
		values[i], ok[i] = v, true
	}
	return values, ok
}
