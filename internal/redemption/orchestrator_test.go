package redemption

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptoAlgoBot/internal/domain"
	"cryptoAlgoBot/internal/ports"
)

type mockLogger struct {
	mu       sync.Mutex
	infoMsgs []string
	warnMsgs []string
	errMsgs  []string
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
	m.errMsgs = append(m.errMsgs, msg)
}

type fakeBalances struct {
	mu       sync.Mutex
	balances map[string]domain.Balance
	setCalls int
	getErr   error
}

func newFakeBalances(free map[string]string) *fakeBalances {
	f := &fakeBalances{balances: make(map[string]domain.Balance)}
	for asset, amount := range free {
		f.balances[asset] = domain.Balance{Asset: asset, Free: decimal.RequireFromString(amount)}
	}
	return f
}

func (f *fakeBalances) TryGetBalance(ctx context.Context, asset string) (domain.Balance, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.balances[asset]
	return b, ok, f.getErr
}

func (f *fakeBalances) GetBalanceOrZero(ctx context.Context, asset string) (domain.Balance, error) {
	b, ok, err := f.TryGetBalance(ctx, asset)
	if !ok {
		b = domain.Balance{Asset: asset}
	}
	return b, err
}

func (f *fakeBalances) SetBalances(ctx context.Context, balances []domain.Balance) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setCalls++
	for _, b := range balances {
		f.balances[b.Asset] = b
	}
	return nil
}

func (f *fakeBalances) free(asset string) decimal.Decimal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances[asset].Free
}

type fakeSavings struct {
	position  domain.SavingsPosition
	quota     *domain.SavingsQuota
	redeemErr error
	onRedeem  func()
	redeemed  []decimal.Decimal
}

func (f *fakeSavings) GetPositionOrZero(ctx context.Context, asset string) (domain.SavingsPosition, error) {
	return f.position, nil
}

func (f *fakeSavings) TryGetQuota(ctx context.Context, asset, productID string, kind domain.SavingsRedemptionType) (domain.SavingsQuota, bool, error) {
	if f.quota == nil {
		return domain.SavingsQuota{}, false, nil
	}
	return *f.quota, true, nil
}

func (f *fakeSavings) Redeem(ctx context.Context, asset, productID string, amount decimal.Decimal, kind domain.SavingsRedemptionType) error {
	if f.onRedeem != nil {
		f.onRedeem()
	}
	if f.redeemErr != nil {
		return f.redeemErr
	}
	f.redeemed = append(f.redeemed, amount)
	f.position.FreeAmount = f.position.FreeAmount.Sub(amount)
	return nil
}

type fakePools struct {
	total    decimal.Decimal
	reject   bool
	onRedeem func()
	redeemed []decimal.Decimal
}

func (f *fakePools) GetBalance(ctx context.Context, asset string) (domain.SwapPoolBalance, error) {
	return domain.SwapPoolBalance{Asset: asset, Total: f.total}, nil
}

func (f *fakePools) Redeem(ctx context.Context, asset string, amount decimal.Decimal) (domain.SwapPoolRedemption, error) {
	if f.onRedeem != nil {
		f.onRedeem()
	}
	if f.reject {
		return domain.SwapPoolRedemption{}, nil
	}
	f.redeemed = append(f.redeemed, amount)
	f.total = f.total.Sub(amount)
	return domain.SwapPoolRedemption{Success: true, PoolID: 2, QuoteAsset: "BUSD", QuoteAmount: amount}, nil
}

func (f *fakePools) GetSwapPools(ctx context.Context) ([]domain.SwapPool, error) {
	return []domain.SwapPool{{PoolID: 2, PoolName: "USDT/BUSD", Assets: []string{"USDT", "BUSD"}}}, nil
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func redeemableSavings(free string) *fakeSavings {
	return &fakeSavings{
		position: domain.SavingsPosition{Asset: "USDT", ProductID: "USDT001", FreeAmount: dec(free), CanRedeem: true},
		quota:    &domain.SavingsQuota{Asset: "USDT", LeftQuota: dec("1000000"), MinRedemptionAmount: dec("0")},
	}
}

func TestNewOrchestrator(t *testing.T) {
	_, err := NewOrchestrator(nil, newFakeBalances(nil), nil, nil)
	assert.ErrorIs(t, err, ports.ErrInvalidArgument)

	_, err = NewOrchestrator(&mockLogger{}, nil, nil, nil)
	assert.ErrorIs(t, err, ports.ErrInvalidArgument)

	o, err := NewOrchestrator(&mockLogger{}, newFakeBalances(nil), nil, nil, WithRedemptionType(domain.RedemptionNormal))
	require.NoError(t, err)
	assert.Equal(t, domain.RedemptionNormal, o.kind)
}

func TestEnsureSpotBalance_SufficientFree(t *testing.T) {
	for _, flags := range [][2]bool{{false, false}, {true, false}, {false, true}, {true, true}} {
		balances := newFakeBalances(map[string]string{"USDT": "150"})
		savings := redeemableSavings("500")
		pools := &fakePools{total: dec("500")}
		o, err := NewOrchestrator(&mockLogger{}, balances, savings, pools)
		require.NoError(t, err)

		event, err := o.EnsureSpotBalance(context.Background(), "USDT", dec("100"), flags[0], flags[1])
		require.NoError(t, err)
		assert.True(t, event.Success)
		assert.True(t, event.RedeemedAmount.IsZero())
		assert.Empty(t, savings.redeemed)
		assert.Empty(t, pools.redeemed)
	}
}

func TestEnsureSpotBalance_Cascade(t *testing.T) {
	balances := newFakeBalances(map[string]string{"USDT": "0"})
	savings := redeemableSavings("40")
	pools := &fakePools{total: dec("100")}
	o, err := NewOrchestrator(&mockLogger{}, balances, savings, pools)
	require.NoError(t, err)

	event, err := o.EnsureSpotBalance(context.Background(), "USDT", dec("100"), true, true)
	require.NoError(t, err)

	assert.True(t, event.Success)
	assert.True(t, dec("100").Equal(event.RedeemedAmount), event.RedeemedAmount.String())
	require.Len(t, savings.redeemed, 1)
	assert.True(t, dec("40").Equal(savings.redeemed[0]))
	require.Len(t, pools.redeemed, 1)
	assert.True(t, dec("60").Equal(pools.redeemed[0]))
	assert.True(t, dec("100").Equal(balances.free("USDT")))
	assert.True(t, dec("60").Equal(balances.free("BUSD")))
}

func TestEnsureSpotBalance_SavingsCoversTarget(t *testing.T) {
	balances := newFakeBalances(map[string]string{"USDT": "30"})
	savings := redeemableSavings("500")
	pools := &fakePools{total: dec("100")}
	o, err := NewOrchestrator(&mockLogger{}, balances, savings, pools)
	require.NoError(t, err)

	event, err := o.EnsureSpotBalance(context.Background(), "USDT", dec("100"), true, true)
	require.NoError(t, err)
	assert.True(t, event.Success)
	assert.True(t, dec("70").Equal(event.RedeemedAmount))
	assert.Empty(t, pools.redeemed)
}

func TestEnsureSpotBalance_PartialIsReported(t *testing.T) {
	balances := newFakeBalances(map[string]string{"USDT": "10"})
	savings := redeemableSavings("20")
	pools := &fakePools{total: dec("30")}
	logger := &mockLogger{}
	o, err := NewOrchestrator(logger, balances, savings, pools)
	require.NoError(t, err)

	event, err := o.EnsureSpotBalance(context.Background(), "USDT", dec("100"), true, true)
	require.NoError(t, err)
	assert.False(t, event.Success)
	assert.True(t, dec("50").Equal(event.RedeemedAmount))
	assert.Contains(t, logger.warnMsgs, "Could not redeem enough to reach spot target")
}

func TestEnsureSpotBalance_SourcesDisallowed(t *testing.T) {
	balances := newFakeBalances(map[string]string{"USDT": "10"})
	savings := redeemableSavings("500")
	pools := &fakePools{total: dec("500")}
	o, err := NewOrchestrator(&mockLogger{}, balances, savings, pools)
	require.NoError(t, err)

	event, err := o.EnsureSpotBalance(context.Background(), "USDT", dec("100"), false, false)
	require.NoError(t, err)
	assert.False(t, event.Success)
	assert.True(t, event.RedeemedAmount.IsZero())
	assert.Empty(t, savings.redeemed)
	assert.Empty(t, pools.redeemed)
}

func TestEnsureSpotBalance_ProviderErrorPropagates(t *testing.T) {
	boom := errors.New("exchange down")
	savings := redeemableSavings("500")
	savings.redeemErr = boom
	o, err := NewOrchestrator(&mockLogger{}, newFakeBalances(nil), savings, &fakePools{})
	require.NoError(t, err)

	_, err = o.EnsureSpotBalance(context.Background(), "USDT", dec("100"), true, true)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, ports.ErrRedemptionFailed)
}

func TestRedeemSavings(t *testing.T) {
	tests := []struct {
		name     string
		position domain.SavingsPosition
		quota    *domain.SavingsQuota
		amount   string
		success  bool
		redeemed string
	}{
		{
			name:     "bumped to minimum redemption",
			position: domain.SavingsPosition{ProductID: "P", FreeAmount: dec("50"), CanRedeem: true},
			quota:    &domain.SavingsQuota{LeftQuota: dec("100"), MinRedemptionAmount: dec("10")},
			amount:   "3",
			success:  true,
			redeemed: "10",
		},
		{
			name:     "minimum capped by free savings",
			position: domain.SavingsPosition{ProductID: "P", FreeAmount: dec("5"), CanRedeem: true},
			quota:    &domain.SavingsQuota{LeftQuota: dec("100"), MinRedemptionAmount: dec("10")},
			amount:   "3",
			success:  false,
			redeemed: "0",
		},
		{
			name:     "capped by left quota",
			position: domain.SavingsPosition{ProductID: "P", FreeAmount: dec("500"), CanRedeem: true},
			quota:    &domain.SavingsQuota{LeftQuota: dec("25"), MinRedemptionAmount: dec("1")},
			amount:   "100",
			success:  true,
			redeemed: "25",
		},
		{
			name:     "zero quota",
			position: domain.SavingsPosition{ProductID: "P", FreeAmount: dec("500"), CanRedeem: true},
			quota:    &domain.SavingsQuota{LeftQuota: dec("0")},
			amount:   "100",
			redeemed: "0",
		},
		{
			name:     "unknown quota",
			position: domain.SavingsPosition{ProductID: "P", FreeAmount: dec("500"), CanRedeem: true},
			amount:   "100",
			redeemed: "0",
		},
		{
			name:     "blackout window",
			position: domain.SavingsPosition{ProductID: "P", FreeAmount: dec("500"), CanRedeem: false},
			quota:    &domain.SavingsQuota{LeftQuota: dec("1000")},
			amount:   "100",
			redeemed: "0",
		},
		{
			name:     "redemption in flight",
			position: domain.SavingsPosition{ProductID: "P", FreeAmount: dec("500"), RedeemingAmount: dec("1"), CanRedeem: true},
			quota:    &domain.SavingsQuota{LeftQuota: dec("1000")},
			amount:   "100",
			redeemed: "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			balances := newFakeBalances(nil)
			savings := &fakeSavings{position: tt.position, quota: tt.quota}
			o, err := NewOrchestrator(&mockLogger{}, balances, savings, nil)
			require.NoError(t, err)

			event, err := o.RedeemSavings(context.Background(), "BNB", dec(tt.amount))
			require.NoError(t, err)
			assert.Equal(t, tt.success, event.Success)
			assert.True(t, dec(tt.redeemed).Equal(event.RedeemedAmount), event.RedeemedAmount.String())
			assert.True(t, dec(tt.redeemed).Equal(balances.free("BNB")))
			if !tt.success {
				assert.Zero(t, balances.setCalls)
			}
		})
	}
}

func TestRedeemSavings_CanceledBeforeStart(t *testing.T) {
	savings := redeemableSavings("500")
	o, err := NewOrchestrator(&mockLogger{}, newFakeBalances(nil), savings, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = o.RedeemSavings(ctx, "USDT", dec("10"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, savings.redeemed)
}

func TestRedeem_CanceledDuringProviderCall(t *testing.T) {
	t.Run("savings", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		balances := newFakeBalances(map[string]string{"USDT": "5"})
		savings := redeemableSavings("500")
		savings.onRedeem = cancel
		o, err := NewOrchestrator(&mockLogger{}, balances, savings, nil)
		require.NoError(t, err)

		event, err := o.RedeemSavings(ctx, "USDT", dec("20"))
		require.NoError(t, err)
		assert.True(t, event.Success)
		assert.Error(t, ctx.Err())
		assert.True(t, dec("25").Equal(balances.free("USDT")), "got %s", balances.free("USDT"))
	})

	t.Run("swap pool", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		balances := newFakeBalances(nil)
		pools := &fakePools{total: dec("30"), onRedeem: cancel}
		o, err := NewOrchestrator(&mockLogger{}, balances, nil, pools)
		require.NoError(t, err)

		event, err := o.RedeemSwapPool(ctx, "USDT", dec("10"))
		require.NoError(t, err)
		assert.True(t, event.Success)
		assert.Error(t, ctx.Err())
		assert.True(t, dec("10").Equal(balances.free("USDT")))
		assert.True(t, dec("10").Equal(balances.free("BUSD")))
	})

	t.Run("pool failure is a redemption failure", func(t *testing.T) {
		o, err := NewOrchestrator(&mockLogger{}, newFakeBalances(nil), nil, &erroringPools{fakePools{total: dec("30")}})
		require.NoError(t, err)

		_, err = o.RedeemSwapPool(context.Background(), "USDT", dec("10"))
		assert.ErrorIs(t, err, ports.ErrRedemptionFailed)
		assert.ErrorIs(t, err, ports.ErrQuotaExceeded)
	})
}

type erroringPools struct {
	fakePools
}

func (f *erroringPools) Redeem(ctx context.Context, asset string, amount decimal.Decimal) (domain.SwapPoolRedemption, error) {
	return domain.SwapPoolRedemption{}, ports.ErrQuotaExceeded
}

func TestRedeemSwapPool(t *testing.T) {
	t.Run("limited by pool balance", func(t *testing.T) {
		balances := newFakeBalances(map[string]string{"USDT": "5"})
		pools := &fakePools{total: dec("30")}
		o, err := NewOrchestrator(&mockLogger{}, balances, nil, pools)
		require.NoError(t, err)

		event, err := o.RedeemSwapPool(context.Background(), "USDT", dec("100"))
		require.NoError(t, err)
		assert.True(t, event.Success)
		assert.True(t, dec("30").Equal(event.RedeemedAmount))
		assert.Equal(t, "BUSD", event.QuoteAsset)
		assert.True(t, dec("35").Equal(balances.free("USDT")))
		assert.Equal(t, 1, balances.setCalls)
	})

	t.Run("empty pool", func(t *testing.T) {
		o, err := NewOrchestrator(&mockLogger{}, newFakeBalances(nil), nil, &fakePools{total: dec("0")})
		require.NoError(t, err)

		event, err := o.RedeemSwapPool(context.Background(), "USDT", dec("100"))
		require.NoError(t, err)
		assert.False(t, event.Success)
	})

	t.Run("rejected", func(t *testing.T) {
		balances := newFakeBalances(nil)
		o, err := NewOrchestrator(&mockLogger{}, balances, nil, &fakePools{total: dec("50"), reject: true})
		require.NoError(t, err)

		event, err := o.RedeemSwapPool(context.Background(), "USDT", dec("10"))
		require.NoError(t, err)
		assert.False(t, event.Success)
		assert.Zero(t, balances.setCalls)
	})
}

func TestAvailable(t *testing.T) {
	balances := newFakeBalances(map[string]string{"BTC": "0.5"})
	savings := &fakeSavings{position: domain.SavingsPosition{FreeAmount: dec("0.25"), CanRedeem: true}}
	pools := &fakePools{total: dec("0.1")}
	o, err := NewOrchestrator(&mockLogger{}, balances, savings, pools)
	require.NoError(t, err)

	total, err := o.Available(context.Background(), "BTC", true, true)
	require.NoError(t, err)
	assert.True(t, dec("0.85").Equal(total))

	total, err = o.Available(context.Background(), "BTC", false, true)
	require.NoError(t, err)
	assert.True(t, dec("0.6").Equal(total))

	savings.position.CanRedeem = false
	total, err = o.Available(context.Background(), "BTC", true, false)
	require.NoError(t, err)
	assert.True(t, dec("0.5").Equal(total))
}
