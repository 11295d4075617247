package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"cryptoAlgoBot/config"
	"cryptoAlgoBot/internal/adapters/logger"
	"cryptoAlgoBot/internal/adapters/sqlite"
	"cryptoAlgoBot/internal/domain"
	"cryptoAlgoBot/internal/positions"
	"cryptoAlgoBot/internal/profit"
	"cryptoAlgoBot/internal/utils"
)

func main() {
	output := flag.String("out", "", "CSV file to write (default data/profit_<date>.csv)")
	flag.Parse()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	// 2. Initialize Logger
	appLogger := logger.NewStdLogger(cfg.LogLevel)
	ctx := context.Background()

	// 3. Initialize Repository (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{DBPath: cfg.DBPath, Logger: appLogger})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err)
	}
	defer repo.Close()

	trades, err := repo.GetAllTrades(ctx)
	if err != nil {
		log.Fatalf("Error loading trades: %v", err)
	}
	appLogger.Info(ctx, "Loaded trades", map[string]interface{}{"count": len(trades), "dbPath": cfg.DBPath})

	bySymbol, err := profit.NewCalculator(profit.SystemClock{}).CalculateBySymbol(trades)
	if err != nil {
		log.Fatalf("Error calculating profit: %v", err)
	}

	grouped := make(map[string][]domain.Trade)
	for _, t := range trades {
		grouped[t.Symbol] = append(grouped[t.Symbol], t)
	}

	rows := make([]utils.ProfitRow, 0, len(bySymbol))
	for symbol, p := range bySymbol {
		orders, err := repo.GetOrders(ctx, symbol, cfg.AlgoStartTime)
		if err != nil {
			log.Fatalf("Error loading orders of %s: %v", symbol, err)
		}
		auto, err := positions.Resolve(symbol, orders, grouped[symbol], cfg.AlgoStartTime)
		if err != nil {
			appLogger.Error(ctx, err, "Cannot resolve open positions", map[string]interface{}{"symbol": symbol})
			rows = append(rows, utils.ProfitRow{Profit: p})
			continue
		}
		perf := profit.AnalyzePerformance(auto.ProfitEvents, profit.OpenTimes(grouped[symbol]))
		appLogger.Info(ctx, "Closed position statistics", map[string]interface{}{
			"symbol":         symbol,
			"closed":         perf.TotalEvents,
			"winRate":        perf.WinRate.StringFixed(4),
			"totalProfit":    perf.TotalProfit.String(),
			"profitFactor":   perf.ProfitFactor.StringFixed(4),
			"maxDrawdown":    perf.MaxDrawdown.String(),
			"averageHolding": perf.AverageHolding.String(),
		})
		rows = append(rows, utils.ProfitRow{Profit: p, Open: auto.Positions, Performance: perf})
	}

	filename := *output
	if filename == "" {
		filename = fmt.Sprintf("data/profit_%s.csv", time.Now().Format("20060102"))
	}
	if err := utils.WriteProfitReportToCSV(rows, filename); err != nil {
		appLogger.Error(ctx, err, "Error writing CSV")
		log.Fatalf("Error writing CSV: %v", err)
	}
	appLogger.Info(ctx, "Saved to", map[string]interface{}{"filename": filename, "symbols": len(rows)})
}
