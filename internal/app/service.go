package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"cryptoAlgoBot/config"
	"cryptoAlgoBot/internal/commands"
	"cryptoAlgoBot/internal/domain"
	"cryptoAlgoBot/internal/ports"
	"cryptoAlgoBot/internal/positions"
	"cryptoAlgoBot/internal/profit"
)

// Algo is the decision logic of one trading algorithm. Go is called once per tick and
// symbol and returns the command tree to execute; it must not talk to the exchange itself.
type Algo interface {
	Name() string
	Go(ctx context.Context, actx *commands.AlgoContext) (commands.Command, error)
}

// SymbolSource serves cached symbol metadata.
type SymbolSource interface {
	Get(symbol string) (domain.Symbol, error)
	Refresh(ctx context.Context) (bool, error)
	Run(ctx context.Context, period time.Duration)
}

// Dependencies groups the collaborators of the AlgoService. Savings and Pools are optional.
type Dependencies struct {
	Logger   ports.Logger
	Exchange ports.Exchange
	Orders   ports.OrderProvider
	Trades   ports.TradeProvider
	Balances ports.BalanceProvider
	Savings  ports.SavingsProvider
	Pools    ports.SwapPoolProvider
	Symbols  SymbolSource
	Pipeline *commands.Pipeline
	Profit   *profit.Calculator
}

type registration struct {
	algo   Algo
	symbol string
}

// AlgoService drives the registered algorithms. Every (algorithm, symbol) pair runs in its own
// loop, so ticks of one pair never overlap while different pairs tick in parallel.
type AlgoService struct {
	cfg    *config.Config
	deps   Dependencies
	logger ports.Logger

	mu    sync.Mutex // Protects algos
	algos []registration
}

// NewAlgoService creates a new application service instance.
func NewAlgoService(cfg *config.Config, deps Dependencies) (*AlgoService, error) {
	if cfg == nil || deps.Logger == nil || deps.Exchange == nil || deps.Orders == nil || deps.Trades == nil ||
		deps.Balances == nil || deps.Symbols == nil || deps.Pipeline == nil || deps.Profit == nil {
		return nil, fmt.Errorf("missing required dependencies for AlgoService: %w", ports.ErrInvalidArgument)
	}
	if cfg.TickPeriod <= 0 {
		return nil, fmt.Errorf("configuration TickPeriod must be positive: %w", ports.ErrConfigurationError)
	}
	if cfg.TickDueTime < 0 {
		return nil, fmt.Errorf("configuration TickDueTime cannot be negative: %w", ports.ErrConfigurationError)
	}
	return &AlgoService{cfg: cfg, deps: deps, logger: deps.Logger}, nil
}

// Register adds an algorithm for the given symbols.
func (s *AlgoService) Register(algo Algo, symbols ...string) error {
	if algo == nil || len(symbols) == 0 {
		return fmt.Errorf("register algo: %w", ports.ErrInvalidArgument)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, symbol := range symbols {
		s.algos = append(s.algos, registration{algo: algo, symbol: symbol})
	}
	return nil
}

// Start runs the tick loops until ctx is cancelled or a shutdown signal arrives.
// In-flight ticks are allowed to finish.
func (s *AlgoService) Start(ctx context.Context) error {
	s.logger.Info(ctx, "Starting Algo Service...")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			s.logger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := s.deps.Exchange.SetServerTime(ctx); err != nil {
		s.logger.Error(ctx, err, "Failed to synchronize server time")
		return fmt.Errorf("failed to set server time: %w", err)
	}
	if err := s.deps.Exchange.Ping(ctx); err != nil {
		s.logger.Error(ctx, err, "Exchange is not reachable")
		return fmt.Errorf("failed to ping exchange: %w", err)
	}
	if _, err := s.deps.Symbols.Refresh(ctx); err != nil {
		s.logger.Error(ctx, err, "Failed to load symbol metadata")
		return fmt.Errorf("failed to load symbols: %w", err)
	}

	s.mu.Lock()
	algos := make([]registration, len(s.algos))
	copy(algos, s.algos)
	s.mu.Unlock()
	if len(algos) == 0 {
		return fmt.Errorf("no algorithms registered: %w", ports.ErrConfigurationError)
	}

	var wg sync.WaitGroup
	if s.cfg.SymbolRefreshPeriod > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.deps.Symbols.Run(ctx, s.cfg.SymbolRefreshPeriod)
		}()
	}
	if s.cfg.ProfitReportPeriod > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.runProfitReports(ctx)
		}()
	}
	for _, r := range algos {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.runLoop(ctx, r.algo, r.symbol)
		}()
	}
	s.logger.Info(ctx, "Algo loops started", map[string]interface{}{
		"loops":   len(algos),
		"dueTime": s.cfg.TickDueTime.String(),
		"period":  s.cfg.TickPeriod.String(),
	})

	<-ctx.Done()
	s.logger.Info(ctx, "Main context cancelled, waiting for in-flight ticks...")
	wg.Wait()
	s.logger.Info(ctx, "Algo Service stopped.")
	return nil
}

// runLoop ticks one algorithm on one symbol after the due time and then every period.
// The period is measured from the end of a tick, so ticks of the loop never overlap.
func (s *AlgoService) runLoop(ctx context.Context, algo Algo, symbol string) {
	fields := map[string]interface{}{"algo": algo.Name(), "symbol": symbol}
	timer := time.NewTimer(s.cfg.TickDueTime)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "Algo loop stopped", fields)
			return
		case <-timer.C:
		}

		if _, err := s.Tick(ctx, algo, symbol); err != nil {
			if errors.Is(err, ports.ErrInvalidHistory) {
				s.logger.Error(ctx, err, "Trade history is inconsistent, stopping algo loop for investigation", fields)
				return
			}
			if ctx.Err() == nil {
				s.logger.Error(ctx, err, "Tick failed", fields)
			}
		}
		timer.Reset(s.cfg.TickPeriod)
	}
}

// Tick runs one full decision cycle: sync exchange state, resolve the inventory, ask the
// algorithm for commands and execute them.
func (s *AlgoService) Tick(ctx context.Context, algo Algo, symbol string) (commands.Result, error) {
	started := time.Now()

	actx, err := s.buildContext(ctx, algo.Name(), symbol)
	if err != nil {
		return nil, err
	}

	cmd, err := algo.Go(ctx, actx)
	if err != nil {
		return nil, fmt.Errorf("algo %s on %s: %w", algo.Name(), symbol, err)
	}
	if cmd == nil {
		cmd = commands.Noop{}
	}

	result, err := s.deps.Pipeline.Execute(ctx, actx, cmd)
	fields := map[string]interface{}{
		"algo":      algo.Name(),
		"symbol":    symbol,
		"command":   string(cmd.Kind()),
		"positions": actx.AutoPosition.Positions.Len(),
		"elapsed":   time.Since(started).String(),
	}
	if result != nil {
		fields["success"] = result.Succeeded()
	}
	if err != nil {
		return result, fmt.Errorf("execute %s for %s on %s: %w", cmd.Kind(), algo.Name(), symbol, err)
	}
	s.logger.Debug(ctx, "Tick executed", fields)
	return result, nil
}

func (s *AlgoService) buildContext(ctx context.Context, name, symbol string) (*commands.AlgoContext, error) {
	sym, err := s.deps.Symbols.Get(symbol)
	if err != nil {
		return nil, err
	}

	if err := s.syncBalances(ctx, sym); err != nil {
		return nil, err
	}
	if err := s.syncOrders(ctx, symbol); err != nil {
		return nil, err
	}
	if err := s.syncTrades(ctx, symbol); err != nil {
		return nil, err
	}

	ticker, err := s.deps.Exchange.GetSymbolPriceTicker(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("get ticker of %s: %w", symbol, err)
	}

	start := s.cfg.AlgoStartTime
	orders, err := s.deps.Orders.GetOrders(ctx, symbol, start)
	if err != nil {
		return nil, fmt.Errorf("load orders of %s: %w", symbol, err)
	}
	trades, err := s.deps.Trades.GetTrades(ctx, symbol, start)
	if err != nil {
		return nil, fmt.Errorf("load trades of %s: %w", symbol, err)
	}
	auto, err := positions.Resolve(symbol, orders, trades, start)
	if err != nil {
		return nil, fmt.Errorf("resolve positions of %s: %w", symbol, err)
	}

	actx := &commands.AlgoContext{
		Name:         name,
		Symbol:       sym,
		Ticker:       ticker,
		AutoPosition: auto,
	}
	if actx.BaseBalance, err = s.deps.Balances.GetBalanceOrZero(ctx, sym.BaseAsset); err != nil {
		return nil, err
	}
	if actx.QuoteBalance, err = s.deps.Balances.GetBalanceOrZero(ctx, sym.QuoteAsset); err != nil {
		return nil, err
	}
	if s.deps.Savings != nil {
		if actx.BaseSavings, err = s.deps.Savings.GetPositionOrZero(ctx, sym.BaseAsset); err != nil {
			return nil, err
		}
		if actx.QuoteSavings, err = s.deps.Savings.GetPositionOrZero(ctx, sym.QuoteAsset); err != nil {
			return nil, err
		}
	}
	if s.deps.Pools != nil {
		if actx.BaseSwapPool, err = s.deps.Pools.GetBalance(ctx, sym.BaseAsset); err != nil {
			return nil, err
		}
		if actx.QuoteSwapPool, err = s.deps.Pools.GetBalance(ctx, sym.QuoteAsset); err != nil {
			return nil, err
		}
	}
	return actx, nil
}

// syncBalances copies the exchange balances into the local provider. The exchange omits
// empty balances, so the assets of the symbol are zeroed when missing.
func (s *AlgoService) syncBalances(ctx context.Context, sym domain.Symbol) error {
	balances, err := s.deps.Exchange.GetBalances(ctx)
	if err != nil {
		return fmt.Errorf("sync balances: %w", err)
	}

	seen := make(map[string]bool, len(balances))
	for _, b := range balances {
		seen[b.Asset] = true
	}
	now := time.Now()
	for _, asset := range []string{sym.BaseAsset, sym.QuoteAsset} {
		if !seen[asset] {
			balances = append(balances, domain.Balance{Asset: asset, UpdatedTime: now})
		}
	}

	if err := s.deps.Balances.SetBalances(ctx, balances); err != nil {
		return fmt.Errorf("store balances: %w", err)
	}
	return nil
}

// syncOrders refreshes every order that may still change plus all newer ones.
func (s *AlgoService) syncOrders(ctx context.Context, symbol string) error {
	from, err := s.deps.Orders.GetOldestOpenOrderID(ctx, symbol)
	if err != nil {
		return fmt.Errorf("sync orders of %s: %w", symbol, err)
	}
	if from == 0 {
		last, err := s.deps.Orders.GetLastOrderID(ctx, symbol)
		if err != nil {
			return fmt.Errorf("sync orders of %s: %w", symbol, err)
		}
		if last > 0 {
			from = last + 1
		}
	}

	orders, err := s.deps.Exchange.ListOrders(ctx, symbol, from)
	if err != nil {
		return fmt.Errorf("sync orders of %s: %w", symbol, err)
	}
	for _, o := range orders {
		if err := s.deps.Orders.SetOrder(ctx, o); err != nil {
			return fmt.Errorf("store order %d of %s: %w", o.OrderID, symbol, err)
		}
	}
	if len(orders) > 0 {
		s.logger.Debug(ctx, "Orders synchronized", map[string]interface{}{"symbol": symbol, "fromId": from, "count": len(orders)})
	}
	return nil
}

func (s *AlgoService) syncTrades(ctx context.Context, symbol string) error {
	last, err := s.deps.Trades.GetLastTradeID(ctx, symbol)
	if err != nil {
		return fmt.Errorf("sync trades of %s: %w", symbol, err)
	}
	var from int64
	if last > 0 {
		from = last + 1
	}

	trades, err := s.deps.Exchange.ListTrades(ctx, symbol, from)
	if err != nil {
		return fmt.Errorf("sync trades of %s: %w", symbol, err)
	}
	if len(trades) == 0 {
		return nil
	}
	if err := s.deps.Trades.SetTrades(ctx, trades); err != nil {
		return fmt.Errorf("store trades of %s: %w", symbol, err)
	}
	s.logger.Debug(ctx, "Trades synchronized", map[string]interface{}{"symbol": symbol, "fromId": from, "count": len(trades)})
	return nil
}

// ReportProfit computes the realized profit of every symbol and logs it. Trades of the
// registered symbols and of the local ledger are synchronized first; trades before the
// algorithm start time are ignored. A symbol whose history cannot be resolved is logged
// and left out of the report.
func (s *AlgoService) ReportProfit(ctx context.Context) (map[string]domain.Profit, error) {
	trades, err := s.deps.Trades.GetAllTrades(ctx)
	if err != nil {
		return nil, fmt.Errorf("load trades: %w", err)
	}

	s.mu.Lock()
	names := make(map[string]bool, len(s.algos))
	for _, r := range s.algos {
		names[r.symbol] = true
	}
	s.mu.Unlock()
	for _, t := range trades {
		names[t.Symbol] = true
	}
	symbols := make([]string, 0, len(names))
	for name := range names {
		symbols = append(symbols, name)
	}
	sort.Strings(symbols)

	start := s.cfg.AlgoStartTime
	bySymbol := make(map[string]domain.Profit, len(symbols))
	for _, symbol := range symbols {
		fields := map[string]interface{}{"symbol": symbol}
		if err := s.syncTrades(ctx, symbol); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.logger.Warn(ctx, "Failed to synchronize trades for profit report", fields)
		}

		fills, err := s.deps.Trades.GetTrades(ctx, symbol, start)
		if err != nil {
			return nil, fmt.Errorf("load trades of %s: %w", symbol, err)
		}
		if len(fills) == 0 {
			continue
		}
		result, err := s.deps.Profit.CalculateBySymbol(fills)
		if err != nil {
			s.logger.Error(ctx, err, "Failed to calculate profit", fields)
			continue
		}
		p, ok := result[symbol]
		if !ok {
			continue
		}
		bySymbol[symbol] = p

		fields["today"] = p.Today.String()
		fields["yesterday"] = p.Yesterday.String()
		fields["thisWeek"] = p.ThisWeek.String()
		fields["thisMonth"] = p.ThisMonth.String()
		fields["thisYear"] = p.ThisYear.String()
		s.logger.Info(ctx, "Realized profit", fields)
	}
	return bySymbol, nil
}

func (s *AlgoService) runProfitReports(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.ProfitReportPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.ReportProfit(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error(ctx, err, "Failed to report profit")
			}
		}
	}
}
