package candles

import (
	"errors"

	"eveBot/internal/domain"
)

var (
	// ErrEmptySecond is returned when finalizing a Second that received no ticks.
	ErrEmptySecond = errors.New("can not finalize an empty second")
	// ErrSecondFinalized is returned when adding a tick to a finalized Second.
	ErrSecondFinalized = errors.New("second has already been finalized")
	// ErrSecondNotFinalized is returned when reading the summary of an open Second.
	ErrSecondNotFinalized = errors.New("second is not finalized")
)

// SecondSummary is the aggregate of every tick observed within one second.
type SecondSummary struct {
	Second           int64   `json:"second"`
	OpenPrice        float64 `json:"openPrice"`
	HighPrice        float64 `json:"highPrice"`
	LowPrice         float64 `json:"lowPrice"`
	ClosePrice       float64 `json:"closePrice"`
	AverageBuyPrice  float64 `json:"averageBuyPrice"`
	AverageSellPrice float64 `json:"averageSellPrice"`
	AveragePrice     float64 `json:"averagePrice"`
	Size             float64 `json:"size"`
	BuySize          float64 `json:"buySize"`
	BuyTotalPrice    float64 `json:"buyTotalPrice"`
	SellSize         float64 `json:"sellSize"`
	SellTotalPrice   float64 `json:"sellTotalPrice"`
}

// Second buckets the ticks of one integer unix second.
// Product serializes access; Second has no lock of its own.
type Second struct {
	second    int64
	openPrice float64
	ticks     []domain.Tick
	finalized bool
	summary   SecondSummary
}

func newSecond(second int64, openPrice float64) *Second {
	return &Second{second: second, openPrice: openPrice}
}

// Time returns the unix second this bucket covers.
func (s *Second) Time() int64 { return s.second }

// OpenPrice returns the previous bucket's close, or the first price seen.
func (s *Second) OpenPrice() float64 { return s.openPrice }

// Finalized reports whether the bucket is closed.
func (s *Second) Finalized() bool { return s.finalized }

// AddTick appends a tick.
func (s *Second) AddTick(tick domain.Tick) error {
	if s.finalized {
		return ErrSecondFinalized
	}
	s.ticks = append(s.ticks, tick)
	return nil
}

// Finalize computes the summary, clears the ticks and locks the bucket.
func (s *Second) Finalize() error {
	if s.finalized {
		return ErrSecondFinalized
	}
	if len(s.ticks) == 0 {
		return ErrEmptySecond
	}

	sum := SecondSummary{Second: s.second, OpenPrice: s.openPrice}
	for i, tick := range s.ticks {
		if i == 0 || tick.Price > sum.HighPrice {
			sum.HighPrice = tick.Price
		}
		if i == 0 || tick.Price < sum.LowPrice {
			sum.LowPrice = tick.Price
		}
		sum.Size += tick.Size
		switch tick.Side {
		case domain.Sell:
			sum.SellSize += tick.Size
			sum.SellTotalPrice += tick.Size * tick.Price
		case domain.Buy:
			sum.BuySize += tick.Size
			sum.BuyTotalPrice += tick.Size * tick.Price
		}
	}

	// Sides with no volume keep a zero average.
	if sum.BuySize > 0 {
		sum.AverageBuyPrice = sum.BuyTotalPrice / sum.BuySize
	}
	if sum.SellSize > 0 {
		sum.AverageSellPrice = sum.SellTotalPrice / sum.SellSize
	}
	if total := sum.BuySize + sum.SellSize; total > 0 {
		sum.AveragePrice = (sum.BuyTotalPrice + sum.SellTotalPrice) / total
	}
	sum.ClosePrice = s.ticks[len(s.ticks)-1].Price

	s.summary = sum
	s.finalized = true
	s.ticks = nil
	return nil
}

// Summary returns the finalized aggregate.
func (s *Second) Summary() (SecondSummary, error) {
	if !s.finalized {
		return SecondSummary{}, ErrSecondNotFinalized
	}
	return s.summary, nil
}
