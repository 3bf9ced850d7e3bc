package indicators

import (
	"fmt"

	"eveBot/internal/candles"
)

// MovingAverageType defines the type of moving average
type MovingAverageType string

const (
	SimpleMovingAverage      MovingAverageType = "SMA"
	ExponentialMovingAverage MovingAverageType = "EMA"
)

// MovingAverage implements both SMA and EMA over period closes.
type MovingAverage struct {
	length int
	kind   MovingAverageType
}

// NewMovingAverage creates a moving average of the given type.
func NewMovingAverage(kind MovingAverageType, cfg Config) *MovingAverage {
	return &MovingAverage{length: cfg.Length, kind: kind}
}

func (m *MovingAverage) Name() string {
	return fmt.Sprintf("%s%d", m.kind, m.length)
}

func (m *MovingAverage) RequiredPeriods() int { return m.length }

// Calculate computes the moving average value based on the configured type
func (m *MovingAverage) Calculate(periods []candles.Period) (float64, error) {
	if m.length <= 0 {
		return 0, fmt.Errorf("%s: length must be positive", m.kind)
	}
	if len(periods) < m.length {
		return 0, notEnough(m.Name(), len(periods), m.length)
	}
	switch m.kind {
	case SimpleMovingAverage:
		return sma(periods[len(periods)-m.length:]), nil
	case ExponentialMovingAverage:
		// Seeded with the SMA of the first length closes.
		multiplier := 2.0 / float64(m.length+1)
		ema := sma(periods[:m.length])
		for _, p := range periods[m.length:] {
			ema = (p.Close-ema)*multiplier + ema
		}
		return ema, nil
	default:
		return 0, fmt.Errorf("unsupported moving average type: %s", m.kind)
	}
}

func sma(periods []candles.Period) float64 {
	total := 0.0
	for _, p := range periods {
		total += p.Close
	}
	return total / float64(len(periods))
}
