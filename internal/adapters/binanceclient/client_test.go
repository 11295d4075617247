package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptoAlgoBot/internal/domain"
	"cryptoAlgoBot/internal/ports"
)

type mockLogger struct {
	errors int
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.errors++
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestNew(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, ports.ErrInvalidArgument)

	c, err := New(Config{Logger: &mockLogger{}, UseTestnet: true})
	require.NoError(t, err)
	assert.Equal(t, baseURLTestnet, c.spotClient.BaseURL)
	assert.NotNil(t, c.limiter)
}

func TestParseFilters(t *testing.T) {
	raw := []map[string]interface{}{
		{"filterType": "PRICE_FILTER", "minPrice": "0.01000000", "maxPrice": "1000000.00000000", "tickSize": "0.01000000"},
		{"filterType": "LOT_SIZE", "minQty": "0.00001000", "maxQty": "9000.00000000", "stepSize": "0.00001000"},
		{"filterType": "ICEBERG_PARTS", "limit": float64(10)},
		{"filterType": "NOTIONAL", "minNotional": "5.00000000", "applyMinToMarket": true},
	}

	f, err := parseFilters(raw)
	require.NoError(t, err)
	assert.True(t, d("0.01").Equal(f.Price.TickSize))
	assert.True(t, d("0.01").Equal(f.Price.MinPrice))
	assert.True(t, d("1000000").Equal(f.Price.MaxPrice))
	assert.True(t, d("0.00001").Equal(f.LotSize.StepSize))
	assert.True(t, d("0.00001").Equal(f.LotSize.MinQuantity))
	assert.True(t, d("9000").Equal(f.LotSize.MaxQuantity))
	assert.True(t, d("5").Equal(f.MinNotional))

	legacy, err := parseFilters([]map[string]interface{}{{"filterType": "MIN_NOTIONAL", "minNotional": float64(10)}})
	require.NoError(t, err)
	assert.True(t, d("10").Equal(legacy.MinNotional))

	_, err = parseFilters([]map[string]interface{}{{"filterType": "LOT_SIZE", "stepSize": "abc"}})
	assert.Error(t, err)

	_, err = parseFilters([]map[string]interface{}{{"filterType": "LOT_SIZE", "stepSize": true}})
	assert.Error(t, err)
}

func TestMapAPIError(t *testing.T) {
	tests := []struct {
		code int64
		want error
	}{
		{-1003, ports.ErrRateLimited},
		{-1021, ports.ErrTimeout},
		{-1022, ports.ErrAuthenticationFailed},
		{-1013, ports.ErrInvalidRequest},
		{-1121, ports.ErrInvalidRequest},
		{-2010, ports.ErrOrderPlacementFailed},
		{-2011, ports.ErrOrderCancelFailed},
		{-2013, ports.ErrOrderNotFound},
		{-2015, ports.ErrInvalidAPIKeys},
		{-2018, ports.ErrInsufficientFunds},
		{-9999, ports.ErrUnknown},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, mapAPIError(tt.code))
		})
	}
}

func TestHandleError(t *testing.T) {
	log := &mockLogger{}
	c := &Client{logger: log}
	ctx := context.Background()

	assert.NoError(t, c.handleError(ctx, nil, "Noop"))

	apiErr := &common.APIError{Code: -2010, Message: "Account has insufficient balance"}
	err := c.handleError(ctx, fmt.Errorf("wrapped: %w", apiErr), "CreateOrder")
	assert.ErrorIs(t, err, ports.ErrOrderPlacementFailed)
	assert.ErrorAs(t, err, &apiErr)

	err = c.handleError(ctx, context.DeadlineExceeded, "GetBalances")
	assert.ErrorIs(t, err, ports.ErrTimeout)

	err = c.handleError(ctx, context.Canceled, "ListTrades")
	assert.ErrorIs(t, err, ports.ErrContextCanceled)

	err = c.handleError(ctx, errors.New("dial tcp: connection refused"), "Ping")
	assert.ErrorIs(t, err, ports.ErrConnectionFailed)

	err = c.handleError(ctx, errors.New("boom"), "Ping")
	assert.ErrorIs(t, err, ports.ErrUnknown)

	assert.Equal(t, 5, log.errors)
}

func TestTranslateOrder(t *testing.T) {
	o := &binance.Order{
		Symbol:                   "BTCUSDT",
		OrderID:                  42,
		ClientOrderID:            "abc",
		Price:                    "50000.01000000",
		OrigQuantity:             "0.00100000",
		ExecutedQuantity:         "0.00050000",
		CummulativeQuoteQuantity: "25.00000500",
		Status:                   binance.OrderStatusTypePartiallyFilled,
		TimeInForce:              binance.TimeInForceTypeGTC,
		Type:                     binance.OrderTypeLimit,
		Side:                     binance.SideTypeBuy,
		Time:                     1714557600000,
		UpdateTime:               1714557660000,
	}

	got, err := translateOrder(o)
	require.NoError(t, err)
	assert.Equal(t, int64(42), got.OrderID)
	assert.Equal(t, domain.OrderStatusPartiallyFilled, got.Status)
	assert.Equal(t, domain.TimeInForceGTC, got.TimeInForce)
	assert.Equal(t, domain.OrderTypeLimit, got.Type)
	assert.Equal(t, domain.Buy, got.Side)
	assert.True(t, d("50000.01").Equal(got.Price))
	assert.True(t, d("0.0005").Equal(got.RemainingQuantity()))
	assert.True(t, got.IsTransient())
	assert.True(t, got.IsSignificant())
	assert.True(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC).Equal(got.Time))
	assert.True(t, time.Date(2024, 5, 1, 10, 1, 0, 0, time.UTC).Equal(got.UpdateTime))

	_, err = translateOrder(nil)
	assert.Error(t, err)

	o.Price = "not-a-number"
	_, err = translateOrder(o)
	assert.Error(t, err)
}

func TestTranslateTrade(t *testing.T) {
	tr := &binance.TradeV3{
		ID:              7,
		Symbol:          "BTCUSDT",
		OrderID:         42,
		Price:           "50000.00000000",
		Quantity:        "0.00050000",
		QuoteQuantity:   "25.00000000",
		Commission:      "0.00000050",
		CommissionAsset: "BTC",
		Time:            1714557600000,
		IsBuyer:         true,
		IsMaker:         true,
	}

	got, err := translateTrade(tr)
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.ID)
	assert.Equal(t, int64(42), got.OrderID)
	assert.Equal(t, domain.Buy, got.Side())
	assert.True(t, d("0.0000005").Equal(got.Commission))
	assert.Equal(t, "BTC", got.CommissionAsset)
	assert.True(t, got.IsMaker)

	_, err = translateTrade(nil)
	assert.Error(t, err)
}
