package indicators

import (
	"fmt"

	"eveBot/internal/candles"
)

// RSI implements the Relative Strength Index with Wilder's smoothing.
type RSI struct {
	length     int
	overbought float64
	oversold   float64
}

// NewRSI creates an RSI. Thresholds default to 70 and 30.
func NewRSI(cfg Config, overbought, oversold float64) *RSI {
	if overbought == 0 {
		overbought = 70
	}
	if oversold == 0 {
		oversold = 30
	}
	return &RSI{length: cfg.Length, overbought: overbought, oversold: oversold}
}

func (r *RSI) Name() string { return fmt.Sprintf("RSI%d", r.length) }

// RequiredPeriods is one more than the length: the first period only
// provides the opening close.
func (r *RSI) RequiredPeriods() int { return r.length + 1 }

func (r *RSI) Calculate(periods []candles.Period) (float64, error) {
	if r.length <= 0 {
		return 0, fmt.Errorf("RSI: length must be positive")
	}
	if len(periods) < r.RequiredPeriods() {
		return 0, notEnough(r.Name(), len(periods), r.RequiredPeriods())
	}

	n := float64(r.length)
	var avgGain, avgLoss float64
	for i := 1; i < len(periods); i++ {
		change := periods[i].Close - periods[i-1].Close
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		if i <= r.length {
			avgGain += gain / n
			avgLoss += loss / n
			continue
		}
		avgGain = (avgGain*(n-1) + gain) / n
		avgLoss = (avgLoss*(n-1) + loss) / n
	}

	if avgLoss == 0 {
		if avgGain == 0 {
			return 50, nil
		}
		return 100, nil
	}
	return 100 - 100/(1+avgGain/avgLoss), nil
}

// IsOverbought checks if the RSI value indicates an overbought condition
func (r *RSI) IsOverbought(value float64) bool {
	return value >= r.overbought
}

// IsOversold checks if the RSI value indicates an oversold condition
func (r *RSI) IsOversold(value float64) bool {
	return value <= r.oversold
}
