package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"eveBot/internal/adapters/logger" // Import the logger package for LogLevel
)

// knownQuoteAssets is used to split SYMBOL when BASE_ASSET and QUOTE_ASSET are unset.
var knownQuoteAssets = []string{"FDUSD", "USDT", "USDC", "BUSD", "TUSD", "EUR", "BTC", "ETH", "BNB"}

// Config holds all application configuration.
type Config struct {
	// Binance API
	APIKey    string
	SecretKey string
	IsTestnet bool

	// Market
	Symbol         string
	BaseAsset      string
	QuoteAsset     string
	PriceIncrement float64
	SizeIncrement  float64
	MinOrderSize   float64

	// Backfill
	TradeBackfillMaxAge time.Duration
	// FirstLotAt skips historical fills before this time when rebuilding lots. Zero keeps all.
	FirstLotAt time.Time
	// CandleFlushLag keeps the current second open for delayed trades.
	CandleFlushLag time.Duration

	// Strategy
	FixedSize float64 // Replaces balance based sizing when positive

	// Journal
	JournalPath string

	// Logging
	LogLevel  logger.LogLevel
	LogFormat logger.Format

	// Connection Settings
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
	EventBufferSize      int
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	return load(true)
}

// LoadPublicConfig loads configuration without requiring API keys, for
// tooling that only reads public market data.
func LoadPublicConfig() (*Config, error) {
	return load(false)
}

func load(requireKeys bool) (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// Binance API
	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", true) // Default to testnet for safety

	if requireKeys {
		if cfg.APIKey == "" {
			errs = append(errs, "BINANCE_API_KEY must be set")
		}
		if cfg.SecretKey == "" {
			errs = append(errs, "BINANCE_API_SECRET must be set")
		}
	}

	// Market
	cfg.Symbol = strings.ToUpper(getEnv("SYMBOL", "ETHUSDT"))
	base, quote := splitSymbol(cfg.Symbol)
	cfg.BaseAsset = strings.ToUpper(getEnv("BASE_ASSET", base))
	cfg.QuoteAsset = strings.ToUpper(getEnv("QUOTE_ASSET", quote))
	if cfg.BaseAsset == "" || cfg.QuoteAsset == "" {
		errs = append(errs, fmt.Sprintf("BASE_ASSET and QUOTE_ASSET must be set for symbol %s", cfg.Symbol))
	} else if cfg.BaseAsset+cfg.QuoteAsset != cfg.Symbol {
		errs = append(errs, fmt.Sprintf("BASE_ASSET+QUOTE_ASSET (%s%s) must equal SYMBOL (%s)", cfg.BaseAsset, cfg.QuoteAsset, cfg.Symbol))
	}

	cfg.PriceIncrement, err = getEnvAsFloatRequired("PRICE_INCREMENT", 0.01)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid PRICE_INCREMENT: %v", err))
	} else if cfg.PriceIncrement <= 0 {
		errs = append(errs, "PRICE_INCREMENT must be positive")
	}

	cfg.SizeIncrement, err = getEnvAsFloatRequired("SIZE_INCREMENT", 0.001)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid SIZE_INCREMENT: %v", err))
	} else if cfg.SizeIncrement <= 0 {
		errs = append(errs, "SIZE_INCREMENT must be positive")
	}

	cfg.MinOrderSize, err = getEnvAsFloatRequired("MIN_ORDER_SIZE", 0.001)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MIN_ORDER_SIZE: %v", err))
	} else if cfg.MinOrderSize <= 0 {
		errs = append(errs, "MIN_ORDER_SIZE must be positive")
	}

	// Backfill
	maxAge, err := getEnvAsIntRequired("TRADE_BACKFILL_MAX_AGE_SECONDS", 10800)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid TRADE_BACKFILL_MAX_AGE_SECONDS: %v", err))
	} else if maxAge <= 0 {
		errs = append(errs, "TRADE_BACKFILL_MAX_AGE_SECONDS must be positive")
	}
	cfg.TradeBackfillMaxAge = time.Duration(maxAge) * time.Second

	firstLotAt, err := getEnvAsIntRequired("FIRST_LOT_AT", 0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid FIRST_LOT_AT: %v", err))
	} else if firstLotAt < 0 {
		errs = append(errs, "FIRST_LOT_AT cannot be negative")
	} else if firstLotAt > 0 {
		cfg.FirstLotAt = time.Unix(int64(firstLotAt), 0)
	}

	flushLag, err := getEnvAsIntRequired("CANDLE_FLUSH_LAG_SECONDS", 3)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid CANDLE_FLUSH_LAG_SECONDS: %v", err))
	} else if flushLag <= 0 {
		errs = append(errs, "CANDLE_FLUSH_LAG_SECONDS must be positive")
	}
	cfg.CandleFlushLag = time.Duration(flushLag) * time.Second

	// Strategy
	cfg.FixedSize, err = getEnvAsFloatRequired("STRATEGY_FIXED_SIZE", 0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid STRATEGY_FIXED_SIZE: %v", err))
	} else if cfg.FixedSize < 0 {
		errs = append(errs, "STRATEGY_FIXED_SIZE cannot be negative")
	}

	// Journal
	cfg.JournalPath = getEnv("JOURNAL_PATH", "./data/eve_journal.db")

	// Logging
	cfg.LogLevel = logger.ParseLevel(getEnv("LOG_LEVEL", "INFO"))
	cfg.LogFormat = logger.Format(strings.ToLower(getEnv("LOG_FORMAT", string(logger.FormatText))))
	if cfg.LogFormat != logger.FormatText && cfg.LogFormat != logger.FormatJSON {
		errs = append(errs, "LOG_FORMAT must be text or json")
	}

	// Connection Settings
	reconnectDelaySeconds := getEnvAsInt("RECONNECT_DELAY_SECONDS", 5)
	if reconnectDelaySeconds <= 0 {
		errs = append(errs, "RECONNECT_DELAY_SECONDS must be positive")
	}
	cfg.ReconnectDelay = time.Duration(reconnectDelaySeconds) * time.Second

	cfg.MaxReconnectAttempts = getEnvAsInt("MAX_RECONNECT_ATTEMPTS", 10)
	if cfg.MaxReconnectAttempts < 0 {
		errs = append(errs, "MAX_RECONNECT_ATTEMPTS cannot be negative")
	}

	cfg.EventBufferSize = getEnvAsInt("EVENT_BUFFER_SIZE", 1024)
	if cfg.EventBufferSize <= 0 {
		errs = append(errs, "EVENT_BUFFER_SIZE must be positive")
	}

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// splitSymbol splits a symbol such as ETHUSDT on a known quote asset suffix.
func splitSymbol(symbol string) (base, quote string) {
	for _, q := range knownQuoteAssets {
		if len(symbol) > len(q) && strings.HasSuffix(symbol, q) {
			return strings.TrimSuffix(symbol, q), q
		}
	}
	return "", ""
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		// Use default if env var is not set at all
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		// Return error if env var is set but invalid
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
