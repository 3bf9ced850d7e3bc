package candles

// Period is a read-only OHLCV rollup of the Seconds within
// [StartTime, StartTime+Length).
type Period struct {
	StartTime int64   `json:"startTime"`
	Length    int64   `json:"periodLengthInSeconds"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Size      float64 `json:"size"`
}

// EndTime returns the first second after the period.
func (p Period) EndTime() int64 { return p.StartTime + p.Length }

// Empty reports whether no trades fell within the period.
func (p Period) Empty() bool { return p.Size == 0 }

func newPeriod(start, length int64, open float64, seconds []SecondSummary) Period {
	p := Period{
		StartTime: start,
		Length:    length,
		Open:      open,
		High:      open,
		Low:       open,
		Close:     open,
	}
	for _, s := range seconds {
		if s.HighPrice > p.High {
			p.High = s.HighPrice
		}
		if s.LowPrice < p.Low {
			p.Low = s.LowPrice
		}
		p.Size += s.Size
	}
	if len(seconds) > 0 {
		p.Close = seconds[len(seconds)-1].ClosePrice
	}
	return p
}
