package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"eveBot/internal/candles"
	"eveBot/internal/candles/indicators"
)

func newCandlesCmd(opts *rootOptions) *cobra.Command {
	var (
		period time.Duration
		maxAge time.Duration
		sma    int
		ema    int
		rsi    int
	)

	cmd := &cobra.Command{
		Use:   "candles",
		Short: "Aggregate recent trades into candles and print CSV with indicators",
		RunE: func(cmd *cobra.Command, args []string) error {
			if period < time.Second || period%time.Second != 0 {
				return fmt.Errorf("--period must be a whole number of seconds")
			}
			cfg, log, err := opts.load(false)
			if err != nil {
				return err
			}
			if maxAge <= 0 {
				maxAge = cfg.TradeBackfillMaxAge
			}
			exchange, err := newExchange(cfg, log)
			if err != nil {
				return err
			}

			product := candles.NewProduct(candles.Config{Logger: log, MaxAge: maxAge, PriceIncrement: cfg.PriceIncrement, FlushLag: cfg.CandleFlushLag})
			if _, err := product.Backfill(cmd.Context(), exchange); err != nil {
				return err
			}
			periods, err := product.Periods(int64(period / time.Second))
			if err != nil {
				return err
			}

			var inds []indicators.Indicator
			if sma > 0 {
				inds = append(inds, indicators.NewMovingAverage(indicators.SimpleMovingAverage, indicators.Config{Length: sma}))
			}
			if ema > 0 {
				inds = append(inds, indicators.NewMovingAverage(indicators.ExponentialMovingAverage, indicators.Config{Length: ema}))
			}
			if rsi > 0 {
				inds = append(inds, indicators.NewRSI(indicators.Config{Length: rsi}, 0, 0))
			}
			return writePeriods(cmd.OutOrStdout(), periods, inds)
		},
	}

	cmd.Flags().DurationVar(&period, "period", time.Minute, "candle length")
	cmd.Flags().DurationVar(&maxAge, "max-age", 0, "how far back to aggregate (default TRADE_BACKFILL_MAX_AGE_SECONDS)")
	cmd.Flags().IntVar(&sma, "sma", 20, "SMA length, 0 to disable")
	cmd.Flags().IntVar(&ema, "ema", 9, "EMA length, 0 to disable")
	cmd.Flags().IntVar(&rsi, "rsi", 14, "RSI length, 0 to disable")
	return cmd
}

// writePeriods writes one CSV row per period. Indicator cells stay empty
// until enough periods have elapsed.
func writePeriods(w io.Writer, periods []candles.Period, inds []indicators.Indicator) error {
	header := []string{"start", "open", "high", "low", "close", "size"}
	series := make([][]float64, len(inds))
	ready := make([][]bool, len(inds))
	for i, ind := range inds {
		header = append(header, ind.Name())
		series[i], ready[i] = indicators.Series(ind, periods)
	}

	writer := csv.NewWriter(w)
	if err := writer.Write(header); err != nil {
		return err
	}
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	for row, p := range periods {
		rec := []string{time.Unix(p.StartTime, 0).UTC().Format(time.RFC3339), f(p.Open), f(p.High), f(p.Low), f(p.Close), f(p.Size)}
		for i := range inds {
			cell := ""
			if ready[i][row] {
				cell = strconv.FormatFloat(series[i][row], 'f', 4, 64)
			}
			rec = append(rec, cell)
		}
		if err := writer.Write(rec); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
