package lots

import (
	"sort"
	"time"

	"eveBot/internal/domain"
)

// Performance summarizes realized results over closed lots.
type Performance struct {
	ClosedLots           int                `json:"closedLots"`
	WinningLots          int                `json:"winningLots"`
	LosingLots           int                `json:"losingLots"`
	WinRate              float64            `json:"winRate"`
	TotalProfit          float64            `json:"totalProfit"`
	AverageWin           float64            `json:"averageWin"`
	AverageLoss          float64            `json:"averageLoss"`
	ProfitFactor         float64            `json:"profitFactor"`
	Expectancy           float64            `json:"expectancy"`
	MaxDrawdown          float64            `json:"maxDrawdown"` // Largest drop of cumulative profit, in quote currency
	MaxConsecutiveWins   int                `json:"maxConsecutiveWins"`
	MaxConsecutiveLosses int                `json:"maxConsecutiveLosses"`
	AverageHoldSeconds   int64              `json:"averageHoldSeconds"`
	MonthlyProfit        map[string]float64 `json:"monthlyProfit"`
}

// AnalyzePerformance computes Performance from lot summaries. Lots that are
// not closed are ignored.
func AnalyzePerformance(lots []LotSummary) Performance {
	perf := Performance{MonthlyProfit: make(map[string]float64)}

	closed := make([]LotSummary, 0, len(lots))
	for _, l := range lots {
		if l.State == domain.LotClosed && l.ClosedAt != nil {
			closed = append(closed, l)
		}
	}
	if len(closed) == 0 {
		return perf
	}
	sort.SliceStable(closed, func(i, j int) bool { return *closed[i].ClosedAt < *closed[j].ClosedAt })

	var grossWin, grossLoss, cumulative, peak float64
	var wins, losses int
	var held int64
	for _, l := range closed {
		perf.ClosedLots++
		if l.Profit > 0 {
			perf.WinningLots++
			grossWin += l.Profit
			wins++
			losses = 0
		} else {
			perf.LosingLots++
			grossLoss -= l.Profit
			losses++
			wins = 0
		}
		perf.MaxConsecutiveWins = max(perf.MaxConsecutiveWins, wins)
		perf.MaxConsecutiveLosses = max(perf.MaxConsecutiveLosses, losses)

		cumulative += l.Profit
		peak = max(peak, cumulative)
		perf.MaxDrawdown = max(perf.MaxDrawdown, peak-cumulative)

		perf.MonthlyProfit[time.Unix(*l.ClosedAt, 0).UTC().Format("2006-01")] += l.Profit
		if l.Duration != nil {
			held += *l.Duration
		}
	}

	perf.TotalProfit = cumulative
	perf.WinRate = float64(perf.WinningLots) / float64(perf.ClosedLots)
	if perf.WinningLots > 0 {
		perf.AverageWin = grossWin / float64(perf.WinningLots)
	}
	if perf.LosingLots > 0 {
		perf.AverageLoss = -grossLoss / float64(perf.LosingLots)
	}
	if grossLoss > 0 {
		perf.ProfitFactor = grossWin / grossLoss
	}
	perf.Expectancy = perf.WinRate*perf.AverageWin + (1-perf.WinRate)*perf.AverageLoss
	perf.AverageHoldSeconds = held / int64(perf.ClosedLots)
	return perf
}
