package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptoAlgoBot/config"
	"cryptoAlgoBot/internal/adapters/paper"
	"cryptoAlgoBot/internal/adapters/sqlite"
	"cryptoAlgoBot/internal/algos/accumulator"
	"cryptoAlgoBot/internal/commands"
	"cryptoAlgoBot/internal/domain"
	"cryptoAlgoBot/internal/ports"
	"cryptoAlgoBot/internal/positions"
	"cryptoAlgoBot/internal/profit"
	"cryptoAlgoBot/internal/redemption"
	"cryptoAlgoBot/internal/risk"
	"cryptoAlgoBot/internal/symbolcache"
)

// Mock implementations
type mockLogger struct {
	mu        sync.Mutex
	infoMsgs  []string
	warnMsgs  []string
	errorMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}

func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infoMsgs = append(m.infoMsgs, msg)
}

func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warnMsgs = append(m.warnMsgs, msg)
}

func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorMsgs = append(m.errorMsgs, msg)
}

func (m *mockLogger) errors() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.errorMsgs...)
}

// mockAlgo returns a fixed command or error and counts its calls.
type mockAlgo struct {
	calls atomic.Int32
	cmd   commands.Command
	err   error
}

func (m *mockAlgo) Name() string { return "mock" }

func (m *mockAlgo) Go(ctx context.Context, actx *commands.AlgoContext) (commands.Command, error) {
	m.calls.Add(1)
	return m.cmd, m.err
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

var btcusdt = domain.Symbol{
	Name:       "BTCUSDT",
	BaseAsset:  "BTC",
	QuoteAsset: "USDT",
	Filters: domain.SymbolFilters{
		LotSize:     domain.LotSizeFilter{MinQuantity: d("0.001"), StepSize: d("0.001")},
		Price:       domain.PriceFilter{TickSize: d("0.01")},
		MinNotional: d("10"),
	},
}

type fixture struct {
	service  *AlgoService
	exchange *paper.Exchange
	repo     *sqlite.Repository
	logger   *mockLogger
	algo     *accumulator.Algo
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	log := &mockLogger{}

	exchange, err := paper.NewExchange(paper.Config{
		Logger:   log,
		Symbols:  []domain.Symbol{btcusdt},
		Balances: map[string]decimal.Decimal{"USDT": d("1000")},
	})
	require.NoError(t, err)

	repo, err := sqlite.NewRepository(sqlite.Config{DBPath: filepath.Join(t.TempDir(), "algo.db"), Logger: log})
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	symbols, err := symbolcache.New(exchange, log, btcusdt.Name)
	require.NoError(t, err)
	_, err = symbols.Refresh(ctx)
	require.NoError(t, err)

	orchestrator, err := redemption.NewOrchestrator(log, repo, nil, nil)
	require.NoError(t, err)
	pipeline, err := commands.NewPipeline(log, exchange, repo, repo, orchestrator)
	require.NoError(t, err)

	rm, err := risk.NewRiskManager(risk.RiskConfig{LotNotional: d("100"), MaxPositionValue: d("1000")})
	require.NoError(t, err)
	algo, err := accumulator.New(accumulator.Config{
		LotNotional: d("100"),
		Pullback:    d("0.01"),
		TakeProfit:  d("0.02"),
		Truncation:  positions.DropPartialLot,
	}, rm, log)
	require.NoError(t, err)

	cfg := &config.Config{TickPeriod: 10 * time.Millisecond}
	service, err := NewAlgoService(cfg, Dependencies{
		Logger:   log,
		Exchange: exchange,
		Orders:   repo,
		Trades:   repo,
		Balances: repo,
		Symbols:  symbols,
		Pipeline: pipeline,
		Profit:   profit.NewCalculator(profit.SystemClock{}),
	})
	require.NoError(t, err)

	return &fixture{service: service, exchange: exchange, repo: repo, logger: log, algo: algo}
}

func (f *fixture) setTicker(bid, ask string) {
	f.exchange.SetTicker(domain.Ticker{Symbol: btcusdt.Name, BidPrice: d(bid), AskPrice: d(ask), LastPrice: d(bid)})
}

func (f *fixture) freeBalance(t *testing.T, asset string) decimal.Decimal {
	t.Helper()
	balances, err := f.exchange.GetBalances(context.Background())
	require.NoError(t, err)
	for _, b := range balances {
		if b.Asset == asset {
			return b.Free
		}
	}
	return decimal.Zero
}

func TestNewAlgoService_Validation(t *testing.T) {
	f := newFixture(t)

	_, err := NewAlgoService(&config.Config{TickPeriod: time.Second}, Dependencies{})
	assert.ErrorIs(t, err, ports.ErrInvalidArgument)

	deps := f.service.deps
	_, err = NewAlgoService(&config.Config{}, deps)
	assert.ErrorIs(t, err, ports.ErrConfigurationError)

	_, err = NewAlgoService(&config.Config{TickPeriod: time.Second, TickDueTime: -time.Second}, deps)
	assert.ErrorIs(t, err, ports.ErrConfigurationError)

	assert.ErrorIs(t, f.service.Register(nil, "BTCUSDT"), ports.ErrInvalidArgument)
	assert.ErrorIs(t, f.service.Register(f.algo), ports.ErrInvalidArgument)
}

func TestAlgoService_TickBuysDipsAndTakesProfit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// First tick bids one lot below the bid.
	f.setTicker("50000", "50001")
	res, err := f.service.Tick(ctx, f.algo, btcusdt.Name)
	require.NoError(t, err)
	placed, ok := res.(commands.OrderResult)
	require.True(t, ok, "got %T", res)
	assert.True(t, placed.Placed)
	assert.True(t, d("49500").Equal(placed.Order.Price))
	assert.True(t, d("0.002").Equal(placed.Order.OriginalQuantity))

	// The price dips through the bid and fills it.
	f.setTicker("49400", "49450")
	assert.True(t, d("901").Equal(f.freeBalance(t, "USDT")))

	// Next bid goes below the current bid, which is under the filled position.
	res, err = f.service.Tick(ctx, f.algo, btcusdt.Name)
	require.NoError(t, err)
	placed, ok = res.(commands.OrderResult)
	require.True(t, ok, "got %T", res)
	assert.True(t, d("48906").Equal(placed.Order.Price))

	trades, err := f.repo.GetAllTrades(ctx)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	btc, err := f.repo.GetBalanceOrZero(ctx, "BTC")
	require.NoError(t, err)
	assert.True(t, d("0.002").Equal(btc.Free))

	// The lot is now 2% in profit: the open bid is cancelled and the lot sold.
	f.setTicker("50500", "50510")
	res, err = f.service.Tick(ctx, f.algo, btcusdt.Name)
	require.NoError(t, err)
	assert.True(t, res.Succeeded())

	assert.True(t, d("1002").Equal(f.freeBalance(t, "USDT")), "got %s", f.freeBalance(t, "USDT"))
	assert.True(t, f.freeBalance(t, "BTC").IsZero())

	open, err := f.exchange.ListOrders(ctx, btcusdt.Name, 0)
	require.NoError(t, err)
	require.Len(t, open, 3)
	assert.Equal(t, domain.OrderStatusCanceled, open[1].Status)
	assert.Equal(t, domain.OrderStatusFilled, open[2].Status)

	// The sell fill reaches the ledger only through the report's own sync.
	trades, err = f.repo.GetAllTrades(ctx)
	require.NoError(t, err)
	require.Len(t, trades, 1)

	report, err := f.service.ReportProfit(ctx)
	require.NoError(t, err)
	require.Contains(t, report, btcusdt.Name)
	assert.True(t, d("2").Equal(report[btcusdt.Name].Today), "got %s", report[btcusdt.Name].Today)

	trades, err = f.repo.GetAllTrades(ctx)
	require.NoError(t, err)
	assert.Len(t, trades, 2)
}

func ethTrade(id int64, buy bool, price string, at time.Time) domain.Trade {
	return domain.Trade{
		Symbol: "ETHUSDT", ID: id, OrderID: id, Price: d(price), Quantity: d("1"),
		QuoteQuantity: d(price), Time: at, IsBuyer: buy,
	}
}

func TestAlgoService_ReportProfit(t *testing.T) {
	now := time.Now()
	ledger := []domain.Trade{
		ethTrade(1, false, "90", now.Add(-3*time.Second)),
		ethTrade(2, true, "100", now.Add(-2*time.Second)),
		ethTrade(3, false, "110", now.Add(-time.Second)),
	}

	t.Run("history before the start time is ignored", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		require.NoError(t, f.repo.SetTrades(ctx, ledger))
		f.service.cfg.AlgoStartTime = now.Add(-2500 * time.Millisecond)

		report, err := f.service.ReportProfit(ctx)
		require.NoError(t, err)
		require.Contains(t, report, "ETHUSDT")
		assert.True(t, d("10").Equal(report["ETHUSDT"].Today), "got %s", report["ETHUSDT"].Today)
		assert.Empty(t, f.logger.errors())
	})

	t.Run("unresolvable symbol is skipped", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		require.NoError(t, f.repo.SetTrades(ctx, ledger))
		require.NoError(t, f.repo.SetTrades(ctx, []domain.Trade{{
			Symbol: btcusdt.Name, ID: 1, OrderID: 1, Price: d("50000"), Quantity: d("0.002"),
			QuoteQuantity: d("100"), Time: now.Add(-time.Second), IsBuyer: true,
		}}))

		report, err := f.service.ReportProfit(ctx)
		require.NoError(t, err)
		assert.NotContains(t, report, "ETHUSDT")
		require.Contains(t, report, btcusdt.Name)
		assert.True(t, report[btcusdt.Name].Today.IsZero())
		assert.Len(t, f.logger.errors(), 1)
	})
}

func TestAlgoService_TickErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.Tick(ctx, &mockAlgo{}, "ETHUSDT")
	assert.ErrorIs(t, err, ports.ErrSymbolNotFound)

	// No ticker has been published yet.
	_, err = f.service.Tick(ctx, &mockAlgo{}, btcusdt.Name)
	assert.ErrorIs(t, err, ports.ErrNoPriceAvailable)

	f.setTicker("50000", "50001")
	res, err := f.service.Tick(ctx, &mockAlgo{}, btcusdt.Name)
	require.NoError(t, err)
	assert.True(t, res.Succeeded())

	boom := errors.New("boom")
	_, err = f.service.Tick(ctx, &mockAlgo{err: boom}, btcusdt.Name)
	assert.ErrorIs(t, err, boom)
}

func TestAlgoService_RunLoop(t *testing.T) {
	t.Run("stops on invalid history", func(t *testing.T) {
		f := newFixture(t)
		f.setTicker("50000", "50001")
		algo := &mockAlgo{err: fmt.Errorf("replay: %w", ports.ErrInvalidHistory)}

		done := make(chan struct{})
		go func() {
			f.service.runLoop(context.Background(), algo, btcusdt.Name)
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("loop did not stop")
		}
		assert.Equal(t, int32(1), algo.calls.Load())
		assert.Len(t, f.logger.errors(), 1)
	})

	t.Run("keeps going on other errors", func(t *testing.T) {
		f := newFixture(t)
		f.setTicker("50000", "50001")
		algo := &mockAlgo{err: errors.New("transient")}

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			f.service.runLoop(ctx, algo, btcusdt.Name)
			close(done)
		}()

		require.Eventually(t, func() bool { return algo.calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
		cancel()
		<-done
		assert.GreaterOrEqual(t, len(f.logger.errors()), 2)
	})
}

func TestAlgoService_Start(t *testing.T) {
	f := newFixture(t)
	f.setTicker("50000", "50001")

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, f.service.Start(ctx), ports.ErrConfigurationError)

	require.NoError(t, f.service.Register(f.algo, btcusdt.Name))
	require.NoError(t, f.service.Start(ctx))

	orders, err := f.exchange.ListOrders(context.Background(), btcusdt.Name, 0)
	require.NoError(t, err)
	require.NotEmpty(t, orders)
	assert.Equal(t, domain.Buy, orders[0].Side)
}
