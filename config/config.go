package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"cryptoAlgoBot/internal/adapters/logger" // Import the logger package for LogLevel
	"cryptoAlgoBot/internal/adapters/paper"
	"cryptoAlgoBot/internal/domain"
	"cryptoAlgoBot/internal/positions"
)

// Trading modes.
const (
	ModeLive  = "live"
	ModePaper = "paper"
)

// Config holds all application configuration.
type Config struct {
	// Binance API
	APIKey            string
	SecretKey         string
	IsTestnet         bool
	RequestsPerSecond float64

	// Mode and symbols
	TradingMode string
	Symbols     []string

	// Tick scheduling
	TickDueTime         time.Duration
	TickPeriod          time.Duration
	SymbolRefreshPeriod time.Duration
	ProfitReportPeriod  time.Duration

	// Algorithm Parameters
	AlgoStartTime        time.Time // Orders and trades before it are ignored by the resolver
	AlgoLotNotional      decimal.Decimal
	AlgoPullback         decimal.Decimal
	AlgoTakeProfit       decimal.Decimal
	AlgoMaxPositionValue decimal.Decimal
	AlgoMaxDailyLoss     decimal.Decimal
	LotTruncation        positions.Truncation

	// Redemption
	AllowSavingsRedemption  bool
	AllowSwapPoolRedemption bool
	SavingsRedemptionType   domain.SavingsRedemptionType

	// Paper trading seeds
	PaperBalances  map[string]decimal.Decimal
	PaperSavings   []paper.SavingsSeed
	PaperSwapPools []paper.PoolSeed
	PaperFeeRate   decimal.Decimal

	// Database
	DBPath string

	// Logging
	LogLevel  logger.LogLevel // Use the LogLevel type from the logger adapter
	LogFormat logger.Format
}

// IsPaper reports whether orders go to the simulated exchange.
func (c *Config) IsPaper() bool {
	return c.TradingMode == ModePaper
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// Trading mode first: API keys are only mandatory for live trading
	cfg.TradingMode = strings.ToLower(getEnv("TRADING_MODE", ModePaper))
	if cfg.TradingMode != ModeLive && cfg.TradingMode != ModePaper {
		errs = append(errs, fmt.Sprintf("TRADING_MODE must be %q or %q", ModeLive, ModePaper))
	}

	// Binance API
	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", true) // Default to testnet for safety
	if cfg.TradingMode == ModeLive {
		if cfg.APIKey == "" {
			errs = append(errs, "BINANCE_API_KEY must be set")
		}
		if cfg.SecretKey == "" {
			errs = append(errs, "BINANCE_API_SECRET must be set")
		}
	}

	cfg.RequestsPerSecond, err = getEnvAsFloatRequired("REQUESTS_PER_SECOND", 10)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid REQUESTS_PER_SECOND: %v", err))
	} else if cfg.RequestsPerSecond <= 0 {
		errs = append(errs, "REQUESTS_PER_SECOND must be positive")
	}

	cfg.Symbols = getEnvAsList("SYMBOLS", "BTCUSDT")
	if len(cfg.Symbols) == 0 {
		errs = append(errs, "SYMBOLS must be set")
	}

	// Tick scheduling
	dueTime := getEnvAsInt("TICK_DUE_TIME_SECONDS", 1)
	if dueTime < 0 {
		errs = append(errs, "TICK_DUE_TIME_SECONDS cannot be negative")
	}
	cfg.TickDueTime = time.Duration(dueTime) * time.Second

	period := getEnvAsInt("TICK_PERIOD_SECONDS", 10)
	if period <= 0 {
		errs = append(errs, "TICK_PERIOD_SECONDS must be positive")
	}
	cfg.TickPeriod = time.Duration(period) * time.Second

	refresh := getEnvAsInt("SYMBOL_REFRESH_SECONDS", 3600)
	if refresh < 0 {
		errs = append(errs, "SYMBOL_REFRESH_SECONDS cannot be negative")
	}
	cfg.SymbolRefreshPeriod = time.Duration(refresh) * time.Second

	report := getEnvAsInt("PROFIT_REPORT_SECONDS", 900)
	if report < 0 {
		errs = append(errs, "PROFIT_REPORT_SECONDS cannot be negative")
	}
	cfg.ProfitReportPeriod = time.Duration(report) * time.Second

	// Algorithm Parameters
	if v := getEnv("ALGO_START_TIME", ""); v != "" {
		cfg.AlgoStartTime, err = time.Parse(time.RFC3339, v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("invalid ALGO_START_TIME (want RFC3339): %v", err))
		}
	}

	cfg.AlgoLotNotional, err = getEnvAsDecimalRequired("ALGO_LOT_NOTIONAL", "20")
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid ALGO_LOT_NOTIONAL: %v", err))
	} else if !cfg.AlgoLotNotional.IsPositive() {
		errs = append(errs, "ALGO_LOT_NOTIONAL must be positive")
	}

	cfg.AlgoPullback, err = getEnvAsDecimalRequired("ALGO_PULLBACK", "0.01")
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid ALGO_PULLBACK: %v", err))
	} else if cfg.AlgoPullback.IsNegative() || cfg.AlgoPullback.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		errs = append(errs, "ALGO_PULLBACK must be between 0.0 (inclusive) and 1.0 (exclusive)")
	}

	cfg.AlgoTakeProfit, err = getEnvAsDecimalRequired("ALGO_TAKE_PROFIT", "0.02")
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid ALGO_TAKE_PROFIT: %v", err))
	} else if !cfg.AlgoTakeProfit.IsPositive() {
		errs = append(errs, "ALGO_TAKE_PROFIT must be positive")
	}

	cfg.AlgoMaxPositionValue, err = getEnvAsDecimalRequired("ALGO_MAX_POSITION_VALUE", "0")
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid ALGO_MAX_POSITION_VALUE: %v", err))
	} else if cfg.AlgoMaxPositionValue.IsNegative() {
		errs = append(errs, "ALGO_MAX_POSITION_VALUE cannot be negative")
	}

	cfg.AlgoMaxDailyLoss, err = getEnvAsDecimalRequired("ALGO_MAX_DAILY_LOSS", "0")
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid ALGO_MAX_DAILY_LOSS: %v", err))
	} else if cfg.AlgoMaxDailyLoss.IsNegative() {
		errs = append(errs, "ALGO_MAX_DAILY_LOSS cannot be negative")
	}

	truncation := strings.ToLower(getEnv("LOT_TRUNCATION", positions.DropPartialLot.String()))
	if truncation != positions.DropPartialLot.String() && truncation != positions.EmitPartialLot.String() {
		errs = append(errs, "LOT_TRUNCATION must be \"drop\" or \"emit\"")
	}
	cfg.LotTruncation = positions.ParseTruncation(truncation)

	// Redemption
	cfg.AllowSavingsRedemption = getEnvAsBool("ALLOW_SAVINGS_REDEMPTION", false)
	cfg.AllowSwapPoolRedemption = getEnvAsBool("ALLOW_SWAP_POOL_REDEMPTION", false)
	cfg.SavingsRedemptionType = domain.SavingsRedemptionType(strings.ToUpper(getEnv("SAVINGS_REDEMPTION_TYPE", string(domain.RedemptionFast))))
	if cfg.SavingsRedemptionType != domain.RedemptionFast && cfg.SavingsRedemptionType != domain.RedemptionNormal {
		errs = append(errs, "SAVINGS_REDEMPTION_TYPE must be FAST or NORMAL")
	}

	// Paper trading seeds
	cfg.PaperBalances, err = paper.ParseBalances(getEnv("PAPER_BALANCES", "USDT:1000"))
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid PAPER_BALANCES: %v", err))
	}
	cfg.PaperSavings, err = paper.ParseSavings(getEnv("PAPER_SAVINGS", ""))
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid PAPER_SAVINGS: %v", err))
	}
	cfg.PaperSwapPools, err = paper.ParsePools(getEnv("PAPER_SWAP_POOLS", ""))
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid PAPER_SWAP_POOLS: %v", err))
	}
	cfg.PaperFeeRate, err = getEnvAsDecimalRequired("PAPER_FEE_RATE", "0.001")
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid PAPER_FEE_RATE: %v", err))
	} else if cfg.PaperFeeRate.IsNegative() || cfg.PaperFeeRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		errs = append(errs, "PAPER_FEE_RATE must be between 0.0 (inclusive) and 1.0 (exclusive)")
	}

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/algo_bot.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	// Logging
	cfg.LogLevel = logger.ParseLevel(getEnv("LOG_LEVEL", "INFO"))
	cfg.LogFormat = logger.ParseFormat(getEnv("LOG_FORMAT", string(logger.FormatText)))

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
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

// getEnvAsDecimalRequired parses money values without going through float64.
func getEnvAsDecimalRequired(key, defaultValue string) (decimal.Decimal, error) {
	valueStr := getEnv(key, defaultValue)
	value, err := decimal.NewFromString(valueStr)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal value '%s' for key %s: %w", valueStr, key, err)
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

func getEnvAsList(key, defaultValue string) []string {
	var out []string
	for _, item := range strings.Split(getEnv(key, defaultValue), ",") {
		if item = strings.ToUpper(strings.TrimSpace(item)); item != "" {
			out = append(out, item)
		}
	}
	return out
}
