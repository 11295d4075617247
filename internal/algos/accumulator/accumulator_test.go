package accumulator

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptoAlgoBot/internal/commands"
	"cryptoAlgoBot/internal/domain"
	"cryptoAlgoBot/internal/ports"
	"cryptoAlgoBot/internal/positions"
	"cryptoAlgoBot/internal/risk"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newAlgo(t *testing.T, maxPositionValue string, redeemSavings bool) *Algo {
	t.Helper()
	rm, err := risk.NewRiskManager(risk.RiskConfig{LotNotional: d("100"), MaxPositionValue: d(maxPositionValue)})
	require.NoError(t, err)
	a, err := New(Config{
		LotNotional:   d("100"),
		Pullback:      d("0.01"),
		TakeProfit:    d("0.02"),
		RedeemSavings: redeemSavings,
		Truncation:    positions.DropPartialLot,
	}, rm, &mockLogger{})
	require.NoError(t, err)
	a.now = func() time.Time { return time.Date(2024, 7, 10, 15, 0, 0, 0, time.UTC) }
	return a
}

func algoContext(bid, quoteFree string, held ...domain.Position) *commands.AlgoContext {
	return &commands.AlgoContext{
		Name: Name,
		Symbol: domain.Symbol{
			Name: "BTCUSDT", BaseAsset: "BTC", QuoteAsset: "USDT",
			Filters: domain.SymbolFilters{
				LotSize:     domain.LotSizeFilter{MinQuantity: d("0.001"), StepSize: d("0.001")},
				Price:       domain.PriceFilter{TickSize: d("0.01")},
				MinNotional: d("10"),
			},
		},
		Ticker:       domain.Ticker{Symbol: "BTCUSDT", BidPrice: d(bid), AskPrice: d(bid).Add(d("1")), LastPrice: d(bid)},
		AutoPosition: domain.AutoPosition{Symbol: "BTCUSDT", Positions: domain.NewPositionCollection(held...)},
		QuoteBalance: domain.Balance{Asset: "USDT", Free: d(quoteFree)},
	}
}

func held() []domain.Position {
	return []domain.Position{
		{Symbol: "BTCUSDT", OrderID: 1, Price: d("50000"), Quantity: d("0.002")},
		{Symbol: "BTCUSDT", OrderID: 2, Price: d("49000"), Quantity: d("0.002")},
	}
}

func assertBuy(t *testing.T, cmd commands.Command, qty, price string) commands.EnsureSingleOrder {
	t.Helper()
	order, ok := cmd.(commands.EnsureSingleOrder)
	require.True(t, ok, "expected EnsureSingleOrder, got %T", cmd)
	assert.Equal(t, domain.Buy, order.Side)
	assert.Equal(t, domain.OrderTypeLimit, order.Type)
	assert.Equal(t, domain.TimeInForceGTC, order.TimeInForce)
	assert.True(t, d(qty).Equal(order.Quantity), "quantity: want %s, got %s", qty, order.Quantity)
	assert.True(t, d(price).Equal(order.Price), "price: want %s, got %s", price, order.Price)
	return order
}

func assertCancelBuys(t *testing.T, cmd commands.Command) {
	t.Helper()
	cancel, ok := cmd.(commands.CancelOpenOrders)
	require.True(t, ok, "expected CancelOpenOrders, got %T", cmd)
	require.NotNil(t, cancel.Side)
	assert.Equal(t, domain.Buy, *cancel.Side)
}

func TestNew(t *testing.T) {
	rm, err := risk.NewRiskManager(risk.RiskConfig{LotNotional: d("100")})
	require.NoError(t, err)

	tests := []struct {
		name   string
		config Config
	}{
		{"no lot notional", Config{Pullback: d("0.01"), TakeProfit: d("0.02")}},
		{"pullback of one", Config{LotNotional: d("100"), Pullback: d("1"), TakeProfit: d("0.02")}},
		{"no take profit", Config{LotNotional: d("100"), Pullback: d("0.01")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.config, rm, &mockLogger{})
			assert.ErrorIs(t, err, ports.ErrInvalidArgument)
		})
	}

	_, err = New(Config{LotNotional: d("100"), TakeProfit: d("0.02")}, nil, &mockLogger{})
	assert.ErrorIs(t, err, ports.ErrInvalidArgument)
}

func TestAlgo_FirstBuyBelowBid(t *testing.T) {
	a := newAlgo(t, "1000", false)
	assert.Equal(t, Name, a.Name())

	cmd, err := a.Go(context.Background(), algoContext("50000", "1000"))
	require.NoError(t, err)
	order := assertBuy(t, cmd, "0.002", "49500")
	assert.False(t, order.RedeemSavings)
}

func TestAlgo_SellsProfitableLots(t *testing.T) {
	a := newAlgo(t, "1000", false)

	cmd, err := a.Go(context.Background(), algoContext("51000", "1000", held()...))
	require.NoError(t, err)

	seq, ok := cmd.(commands.Sequence)
	require.True(t, ok, "expected Sequence, got %T", cmd)
	require.Len(t, seq.Commands, 2)
	assertCancelBuys(t, seq.Commands[0])

	sell, ok := seq.Commands[1].(commands.MarketSell)
	require.True(t, ok)
	assert.Equal(t, "BTCUSDT", sell.Symbol)
	assert.True(t, d("0.004").Equal(sell.Quantity), "got %s", sell.Quantity)
}

func TestAlgo_OldestLotNotInProfitBlocksSells(t *testing.T) {
	a := newAlgo(t, "1000", false)

	// The newest lot would be in profit, but the oldest is not.
	cmd, err := a.Go(context.Background(), algoContext("50500", "1000", held()...))
	require.NoError(t, err)
	assertBuy(t, cmd, "0.002", "48510")
}

func TestAlgo_ClearsBidsWhenBuyNotPossible(t *testing.T) {
	t.Run("risk limit", func(t *testing.T) {
		a := newAlgo(t, "250", false)
		cmd, err := a.Go(context.Background(), algoContext("50500", "1000", held()...))
		require.NoError(t, err)
		assertCancelBuys(t, cmd)
	})

	t.Run("not enough funds", func(t *testing.T) {
		a := newAlgo(t, "1000", false)
		cmd, err := a.Go(context.Background(), algoContext("50000", "5"))
		require.NoError(t, err)
		assertCancelBuys(t, cmd)
	})
}

func TestAlgo_CountsRedeemableSavings(t *testing.T) {
	a := newAlgo(t, "1000", true)
	actx := algoContext("50000", "0")
	actx.QuoteSavings = domain.SavingsPosition{Asset: "USDT", FreeAmount: d("500"), CanRedeem: true}

	cmd, err := a.Go(context.Background(), actx)
	require.NoError(t, err)
	order := assertBuy(t, cmd, "0.002", "49500")
	assert.True(t, order.RedeemSavings)
}

func TestAlgo_NilContext(t *testing.T) {
	a := newAlgo(t, "1000", false)
	_, err := a.Go(context.Background(), nil)
	assert.ErrorIs(t, err, ports.ErrInvalidArgument)
}
