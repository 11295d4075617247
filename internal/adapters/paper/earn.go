package paper

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"cryptoAlgoBot/internal/domain"
	"cryptoAlgoBot/internal/ports"
)

// Depositor receives redeemed funds.
type Depositor interface {
	Deposit(asset string, amount decimal.Decimal)
}

// SavingsSeed is the initial flexible savings holding of an asset.
type SavingsSeed struct {
	Asset         string
	Amount        decimal.Decimal
	DailyQuota    decimal.Decimal
	MinRedemption decimal.Decimal
}

// PoolSeed is the initial liquidity of a two-asset pool.
type PoolSeed struct {
	PoolID  int64
	Name    string
	Assets  [2]string
	Amounts [2]decimal.Decimal
}

type savingsEntry struct {
	position domain.SavingsPosition
	quota    domain.SavingsQuota
}

type poolEntry struct {
	pool     domain.SwapPool
	holdings map[string]decimal.Decimal
}

// EarnAccount simulates flexible savings products and liquidity pool shares.
// Redemptions settle immediately into the spot wallet of the depositor.
// It implements ports.SavingsProvider; Pools returns the ports.SwapPoolProvider view.
type EarnAccount struct {
	mu      sync.Mutex
	logger  ports.Logger
	spot    Depositor
	savings map[string]*savingsEntry
	pools   []*poolEntry
}

// NewEarnAccount creates a new EarnAccount.
func NewEarnAccount(logger ports.Logger, spot Depositor, savings []SavingsSeed, pools []PoolSeed) (*EarnAccount, error) {
	if logger == nil || spot == nil {
		return nil, fmt.Errorf("missing required dependencies for EarnAccount: %w", ports.ErrInvalidArgument)
	}

	a := &EarnAccount{
		logger:  logger,
		spot:    spot,
		savings: make(map[string]*savingsEntry, len(savings)),
	}
	for _, s := range savings {
		a.savings[s.Asset] = &savingsEntry{
			position: domain.SavingsPosition{
				Asset:           s.Asset,
				ProductID:       s.Asset + "001",
				FreeAmount:      s.Amount,
				RedeemingAmount: decimal.Zero,
				CanRedeem:       true,
			},
			quota: domain.SavingsQuota{
				Asset:               s.Asset,
				LeftQuota:           s.DailyQuota,
				MinRedemptionAmount: s.MinRedemption,
			},
		}
	}
	for _, p := range pools {
		if p.Assets[0] == "" || p.Assets[1] == "" || p.Assets[0] == p.Assets[1] {
			return nil, fmt.Errorf("pool %d needs two distinct assets: %w", p.PoolID, ports.ErrInvalidArgument)
		}
		a.pools = append(a.pools, &poolEntry{
			pool: domain.SwapPool{PoolID: p.PoolID, PoolName: p.Name, Assets: []string{p.Assets[0], p.Assets[1]}},
			holdings: map[string]decimal.Decimal{
				p.Assets[0]: p.Amounts[0],
				p.Assets[1]: p.Amounts[1],
			},
		})
	}
	sort.Slice(a.pools, func(i, j int) bool { return a.pools[i].pool.PoolID < a.pools[j].pool.PoolID })
	return a, nil
}

// GetPositionOrZero returns the savings position of an asset or an empty one.
func (a *EarnAccount) GetPositionOrZero(ctx context.Context, asset string) (domain.SavingsPosition, error) {
	if err := ctx.Err(); err != nil {
		return domain.SavingsPosition{}, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	entry, ok := a.savings[asset]
	if !ok {
		return domain.SavingsPosition{Asset: asset, FreeAmount: decimal.Zero, RedeemingAmount: decimal.Zero}, nil
	}
	return entry.position, nil
}

// TryGetQuota returns the remaining redemption quota of a product.
func (a *EarnAccount) TryGetQuota(ctx context.Context, asset, productID string, kind domain.SavingsRedemptionType) (domain.SavingsQuota, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.SavingsQuota{}, false, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	entry, ok := a.savings[asset]
	if !ok || entry.position.ProductID != productID {
		return domain.SavingsQuota{}, false, nil
	}
	return entry.quota, true, nil
}

// Redeem moves savings into the spot wallet.
func (a *EarnAccount) Redeem(ctx context.Context, asset, productID string, amount decimal.Decimal, kind domain.SavingsRedemptionType) error {
	op := "RedeemSavings"
	if err := ctx.Err(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	entry, ok := a.savings[asset]
	if !ok || entry.position.ProductID != productID {
		return fmt.Errorf("%s failed for %s/%s: %w", op, asset, productID, ports.ErrNotFound)
	}
	switch {
	case !amount.IsPositive() || amount.LessThan(entry.quota.MinRedemptionAmount):
		return fmt.Errorf("%s failed: amount %s below minimum %s: %w", op, amount, entry.quota.MinRedemptionAmount, ports.ErrInvalidRequest)
	case amount.GreaterThan(entry.position.FreeAmount):
		return fmt.Errorf("%s failed: amount %s exceeds %s: %w", op, amount, entry.position.FreeAmount, ports.ErrInsufficientFunds)
	case amount.GreaterThan(entry.quota.LeftQuota):
		return fmt.Errorf("%s failed: amount %s exceeds %s: %w", op, amount, entry.quota.LeftQuota, ports.ErrQuotaExceeded)
	}

	entry.position.FreeAmount = entry.position.FreeAmount.Sub(amount)
	entry.quota.LeftQuota = entry.quota.LeftQuota.Sub(amount)
	a.spot.Deposit(asset, amount)

	a.logger.Info(ctx, "Paper savings redeemed", map[string]interface{}{
		"asset":     asset,
		"productId": productID,
		"amount":    amount.String(),
		"kind":      kind,
	})
	return nil
}

// GetBalance returns the pooled holding of an asset across all pools.
func (a *EarnAccount) GetBalance(ctx context.Context, asset string) (domain.SwapPoolBalance, error) {
	if err := ctx.Err(); err != nil {
		return domain.SwapPoolBalance{}, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	total := decimal.Zero
	for _, p := range a.pools {
		total = total.Add(p.holdings[asset])
	}
	return domain.SwapPoolBalance{Asset: asset, Total: total}, nil
}

// GetSwapPools lists the known pools.
func (a *EarnAccount) GetSwapPools(ctx context.Context) ([]domain.SwapPool, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]domain.SwapPool, 0, len(a.pools))
	for _, p := range a.pools {
		out = append(out, p.pool)
	}
	return out, nil
}

// redeemPool removes liquidity until amount of asset is released, draining pools in ID order.
// Each pool gives up the same share of both its assets. The counter asset of the first pool
// touched is reported as the quote side of the redemption.
func (a *EarnAccount) redeemPool(ctx context.Context, asset string, amount decimal.Decimal) (domain.SwapPoolRedemption, error) {
	out := domain.SwapPoolRedemption{QuoteAmount: decimal.Zero}
	if !amount.IsPositive() {
		return out, fmt.Errorf("RedeemSwapPool failed: amount %s: %w", amount, ports.ErrInvalidRequest)
	}

	total := decimal.Zero
	for _, p := range a.pools {
		total = total.Add(p.holdings[asset])
	}
	if total.LessThan(amount) {
		return out, nil
	}

	left := amount
	for _, p := range a.pools {
		held := p.holdings[asset]
		if !held.IsPositive() || !left.IsPositive() {
			continue
		}
		take := decimal.Min(left, held)
		share := take.Div(held)

		other := p.pool.Assets[0]
		if other == asset {
			other = p.pool.Assets[1]
		}
		otherAmount := p.holdings[other].Mul(share)

		p.holdings[asset] = held.Sub(take)
		p.holdings[other] = p.holdings[other].Sub(otherAmount)
		a.spot.Deposit(asset, take)
		a.spot.Deposit(other, otherAmount)

		if out.QuoteAsset == "" {
			out.PoolID = p.pool.PoolID
			out.QuoteAsset = other
		}
		if other == out.QuoteAsset {
			out.QuoteAmount = out.QuoteAmount.Add(otherAmount)
		}
		left = left.Sub(take)
	}

	out.Success = true
	a.logger.Info(ctx, "Paper liquidity removed", map[string]interface{}{
		"asset":       asset,
		"amount":      amount.String(),
		"poolId":      out.PoolID,
		"quoteAsset":  out.QuoteAsset,
		"quoteAmount": out.QuoteAmount.String(),
	})
	return out, nil
}

// SwapPools adapts the pool side of the account to ports.SwapPoolProvider, whose
// Redeem has a different shape from the savings one.
type SwapPools struct {
	*EarnAccount
}

// Pools returns the liquidity pool view of the account.
func (a *EarnAccount) Pools() SwapPools {
	return SwapPools{EarnAccount: a}
}

// Redeem removes liquidity worth amount of asset back into spot balance.
// A request larger than the pooled holding is not executed and reports no success.
func (p SwapPools) Redeem(ctx context.Context, asset string, amount decimal.Decimal) (domain.SwapPoolRedemption, error) {
	if err := ctx.Err(); err != nil {
		return domain.SwapPoolRedemption{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.redeemPool(ctx, asset, amount)
}
