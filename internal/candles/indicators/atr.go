package indicators

import (
	"fmt"
	"math"

	"eveBot/internal/candles"
)

// ATR implements the Average True Range.
type ATR struct {
	length int
}

// NewATR creates an Average True Range indicator.
func NewATR(cfg Config) *ATR {
	return &ATR{length: cfg.Length}
}

func (a *ATR) Name() string { return fmt.Sprintf("ATR%d", a.length) }

func (a *ATR) RequiredPeriods() int { return a.length + 1 }

func (a *ATR) Calculate(periods []candles.Period) (float64, error) {
	if a.length <= 0 {
		return 0, fmt.Errorf("ATR: length must be positive")
	}
	if len(periods) < a.RequiredPeriods() {
		return 0, notEnough(a.Name(), len(periods), a.RequiredPeriods())
	}

	trueRanges := make([]float64, len(periods))
	trueRanges[0] = periods[0].High - periods[0].Low
	for i := 1; i < len(periods); i++ {
		p, prevClose := periods[i], periods[i-1].Close
		trueRanges[i] = math.Max(p.High-p.Low, math.Max(math.Abs(p.High-prevClose), math.Abs(p.Low-prevClose)))
	}

	// Simple average first, then Wilder's smoothing.
	atr := 0.0
	for i := 0; i < a.length; i++ {
		atr += trueRanges[i]
	}
	atr /= float64(a.length)
	for i := a.length; i < len(periods); i++ {
		atr = (atr*float64(a.length-1) + trueRanges[i]) / float64(a.length)
	}
	return atr, nil
}
