package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"eveBot/config"
	"eveBot/internal/adapters/binanceclient"
	"eveBot/internal/adapters/logger"
	"eveBot/internal/ports"
)

// rootOptions are the persistent flags shared by every subcommand.
type rootOptions struct {
	logLevel string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "evectl",
		Short: "Inspect trades, fills and candles of the configured market",
		Long: `evectl reads the same .env configuration as the bot.

It provides tools for:
  - Exporting recent public trades to CSV
  - Rebuilding lots and profit from our fill history
  - Printing candles with moving averages and RSI`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override LOG_LEVEL (debug, info, warn, error)")

	cmd.AddCommand(
		newFetchTradesCmd(opts),
		newReplayFillsCmd(opts),
		newCandlesCmd(opts),
	)
	return cmd
}

// load reads the configuration and builds the logger. Logs go to stderr so
// command output can be piped.
func (o *rootOptions) load(requireKeys bool) (*config.Config, ports.Logger, error) {
	load := config.LoadPublicConfig
	if requireKeys {
		load = config.LoadConfig
	}
	cfg, err := load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if o.logLevel != "" {
		cfg.LogLevel = logger.ParseLevel(o.logLevel)
	}
	return cfg, logger.New(cfg.LogFormat, cfg.LogLevel, os.Stderr), nil
}

func newExchange(cfg *config.Config, log ports.Logger) (*binanceclient.Client, error) {
	return binanceclient.New(binanceclient.Config{
		APIKey:               cfg.APIKey,
		SecretKey:            cfg.SecretKey,
		UseTestnet:           cfg.IsTestnet,
		Logger:               log,
		Symbol:               cfg.Symbol,
		BaseAsset:            cfg.BaseAsset,
		QuoteAsset:           cfg.QuoteAsset,
		FillsSince:           cfg.FirstLotAt,
		ReconnectDelay:       cfg.ReconnectDelay,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
	})
}
