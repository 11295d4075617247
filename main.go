package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"os"

	"cryptoAlgoBot/config"
	"cryptoAlgoBot/internal/adapters/binanceclient"
	"cryptoAlgoBot/internal/adapters/logger"
	"cryptoAlgoBot/internal/adapters/paper"
	"cryptoAlgoBot/internal/adapters/sqlite"
	"cryptoAlgoBot/internal/algos/accumulator"
	"cryptoAlgoBot/internal/app"
	"cryptoAlgoBot/internal/commands"
	"cryptoAlgoBot/internal/ports"
	"cryptoAlgoBot/internal/profit"
	"cryptoAlgoBot/internal/redemption"
	"cryptoAlgoBot/internal/risk"
	"cryptoAlgoBot/internal/symbolcache"
)

func main() {
	ctx := context.Background()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	appLogger.Info(ctx, "Logger initialized", map[string]interface{}{
		"level":  cfg.LogLevel.String(),
		"format": string(cfg.LogFormat),
		"mode":   cfg.TradingMode,
	})

	// 3. Initialize Repository (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize database repository")
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err) // Also log to stderr
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(ctx, err, "Error closing database repository")
		}
	}()
	appLogger.Info(ctx, "Database repository initialized")

	// 4. Initialize Exchange Client (Binance Adapter)
	binanceClient, err := binanceclient.New(binanceclient.Config{
		APIKey:            cfg.APIKey,
		SecretKey:         cfg.SecretKey,
		UseTestnet:        cfg.IsTestnet,
		Logger:            appLogger,
		RequestsPerSecond: cfg.RequestsPerSecond,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize Binance client")
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}
	appLogger.Info(ctx, "Binance client initialized")

	// 5. Pick the venue. Paper mode trades against an in-memory book fed with live prices.
	var (
		exchange ports.Exchange = binanceClient
		savings  ports.SavingsProvider
		pools    ports.SwapPoolProvider
	)
	if cfg.IsPaper() {
		paperExchange, err := paper.NewExchange(paper.Config{
			Logger:   appLogger,
			Market:   binanceClient,
			Balances: cfg.PaperBalances,
			FeeRate:  cfg.PaperFeeRate,
		})
		if err != nil {
			appLogger.Error(ctx, err, "FATAL: Failed to initialize paper exchange")
			log.Fatalf("FATAL: Failed to initialize paper exchange: %v", err)
		}
		earn, err := paper.NewEarnAccount(appLogger, paperExchange, cfg.PaperSavings, cfg.PaperSwapPools)
		if err != nil {
			appLogger.Error(ctx, err, "FATAL: Failed to initialize paper earn account")
			log.Fatalf("FATAL: Failed to initialize paper earn account: %v", err)
		}
		exchange, savings, pools = paperExchange, earn, earn.Pools()
		appLogger.Info(ctx, "Paper trading enabled", map[string]interface{}{
			"savings":   len(cfg.PaperSavings),
			"swapPools": len(cfg.PaperSwapPools),
		})
	}

	// 6. Initialize Command Pipeline
	symbols, err := symbolcache.New(exchange, appLogger, cfg.Symbols...)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize symbol cache: %v", err)
	}
	orchestrator, err := redemption.NewOrchestrator(appLogger, repo, savings, pools,
		redemption.WithRedemptionType(cfg.SavingsRedemptionType))
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize redemption orchestrator: %v", err)
	}
	pipeline, err := commands.NewPipeline(appLogger, exchange, repo, repo, orchestrator)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize command pipeline: %v", err)
	}

	// 7. Initialize Algorithm
	riskManager, err := risk.NewRiskManager(risk.RiskConfig{
		LotNotional:      cfg.AlgoLotNotional,
		MaxPositionValue: cfg.AlgoMaxPositionValue,
		MaxDailyLoss:     cfg.AlgoMaxDailyLoss,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize risk manager: %v", err)
	}
	algo, err := accumulator.New(accumulator.Config{
		LotNotional:    cfg.AlgoLotNotional,
		Pullback:       cfg.AlgoPullback,
		TakeProfit:     cfg.AlgoTakeProfit,
		RedeemSavings:  cfg.AllowSavingsRedemption,
		RedeemSwapPool: cfg.AllowSwapPoolRedemption,
		Truncation:     cfg.LotTruncation,
	}, riskManager, appLogger)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize algorithm")
		log.Fatalf("FATAL: Failed to initialize algorithm: %v", err)
	}

	// 8. Initialize Application Service
	algoService, err := app.NewAlgoService(cfg, app.Dependencies{
		Logger:   appLogger,
		Exchange: exchange,
		Orders:   repo,
		Trades:   repo,
		Balances: repo,
		Savings:  savings,
		Pools:    pools,
		Symbols:  symbols,
		Pipeline: pipeline,
		Profit:   profit.NewCalculator(profit.SystemClock{}),
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize algo service")
		log.Fatalf("FATAL: Failed to initialize algo service: %v", err)
	}
	if err := algoService.Register(algo, cfg.Symbols...); err != nil {
		log.Fatalf("FATAL: Failed to register algorithm: %v", err)
	}
	appLogger.Info(ctx, "Algo service initialized", map[string]interface{}{
		"algo":    algo.Name(),
		"symbols": cfg.Symbols,
	})

	// 9. Start the Service
	if err := algoService.Start(ctx); err != nil {
		appLogger.Error(ctx, err, "Algo service exited with error")
		log.Fatalf("FATAL: Algo service exited with error: %v", err)
	}

	appLogger.Info(ctx, "Application finished gracefully.")
}
