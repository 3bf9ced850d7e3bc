package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"os"

	"eveBot/config"
	"eveBot/internal/adapters/binanceclient"
	"eveBot/internal/adapters/logger"
	"eveBot/internal/adapters/sqlite"
	"eveBot/internal/app"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.New(cfg.LogFormat, cfg.LogLevel, os.Stderr)
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String(), "format": string(cfg.LogFormat)})

	// 3. Initialize Journal (Database Adapter)
	journal, err := sqlite.NewJournal(sqlite.Config{
		DBPath: cfg.JournalPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize snapshot journal")
		log.Fatalf("FATAL: Failed to initialize snapshot journal: %v", err)
	}
	defer func() {
		if err := journal.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing snapshot journal")
		}
	}()
	appLogger.Info(context.Background(), "Snapshot journal initialized")

	// 4. Initialize Exchange Client (Binance Adapter)
	binanceClient, err := binanceclient.New(binanceclient.Config{
		APIKey:               cfg.APIKey,
		SecretKey:            cfg.SecretKey,
		UseTestnet:           cfg.IsTestnet,
		Logger:               appLogger,
		Symbol:               cfg.Symbol,
		BaseAsset:            cfg.BaseAsset,
		QuoteAsset:           cfg.QuoteAsset,
		FillsSince:           cfg.FirstLotAt,
		ReconnectDelay:       cfg.ReconnectDelay,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize Binance client")
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}
	appLogger.Info(context.Background(), "Binance client initialized", map[string]interface{}{"symbol": cfg.Symbol, "testnet": cfg.IsTestnet})

	// 5. Initialize Application Service
	service, err := app.NewService(cfg, appLogger, binanceClient, journal)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize service")
		log.Fatalf("FATAL: Failed to initialize service: %v", err)
	}

	// 6. Operator console on stdin
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	console := app.NewConsole(service, os.Stdout, appLogger)
	go func() {
		if err := console.Run(ctx, os.Stdin); err != nil {
			appLogger.Error(ctx, err, "Console stopped")
		}
	}()

	// 7. Start the Service
	if err := service.Start(ctx); err != nil {
		appLogger.Error(context.Background(), err, "Service exited with error")
		cancel()
		log.Fatalf("FATAL: Service exited with error: %v", err)
	}

	appLogger.Info(context.Background(), "Application finished gracefully.")
}
