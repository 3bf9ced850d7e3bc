package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"eveBot/internal/app"
	"eveBot/internal/utils"
)

func newFetchTradesCmd(opts *rootOptions) *cobra.Command {
	var (
		maxAge  time.Duration
		outPath string
	)

	cmd := &cobra.Command{
		Use:   "fetch-trades",
		Short: "Download recent public trades and write CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
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

			end := time.Now()
			start := end.Add(-maxAge)
			trades, err := app.FetchTrades(cmd.Context(), exchange, start.Unix())
			if err != nil {
				return fmt.Errorf("fetch trades: %w", err)
			}

			if outPath == "" {
				outPath = fmt.Sprintf("data/%s_trades_%s_to_%s.csv", cfg.Symbol, start.Format("20060102T1504"), end.Format("20060102T1504"))
			}
			if err := utils.WriteTradesToCSV(trades, outPath); err != nil {
				return fmt.Errorf("write csv: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d trades to %s\n", len(trades), outPath)
			return nil
		},
	}

	cmd.Flags().DurationVar(&maxAge, "max-age", 0, "how far back to fetch (default TRADE_BACKFILL_MAX_AGE_SECONDS)")
	cmd.Flags().StringVar(&outPath, "out", "", "output CSV path (default data/<symbol>_trades_<from>_to_<to>.csv)")
	return cmd
}
