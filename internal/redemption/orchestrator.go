// Package redemption tops up spot balances from flexible savings and liquidity pools.
package redemption

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"cryptoAlgoBot/internal/domain"
	"cryptoAlgoBot/internal/ports"
)

// Orchestrator moves funds into the spot wallet. Savings and pool providers are optional;
// a nil provider behaves as if redemption from that source were disallowed.
type Orchestrator struct {
	logger   ports.Logger
	balances ports.BalanceProvider
	savings  ports.SavingsProvider
	pools    ports.SwapPoolProvider
	kind     domain.SavingsRedemptionType
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRedemptionType selects the savings redemption speed. The default is FAST.
func WithRedemptionType(kind domain.SavingsRedemptionType) Option {
	return func(o *Orchestrator) {
		o.kind = kind
	}
}

// NewOrchestrator creates a new Orchestrator.
func NewOrchestrator(
	logger ports.Logger,
	balances ports.BalanceProvider,
	savings ports.SavingsProvider,
	pools ports.SwapPoolProvider,
	opts ...Option,
) (*Orchestrator, error) {
	if logger == nil || balances == nil {
		return nil, fmt.Errorf("missing required dependencies for Orchestrator: %w", ports.ErrInvalidArgument)
	}
	o := &Orchestrator{
		logger:   logger,
		balances: balances,
		savings:  savings,
		pools:    pools,
		kind:     domain.RedemptionFast,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// EnsureSpotBalance makes the free spot balance of asset reach target, redeeming savings
// first and liquidity pools second. Running out of sources is reported through the
// event, not as an error; the redeemed amount is reported even when the target was missed.
func (o *Orchestrator) EnsureSpotBalance(ctx context.Context, asset string, target decimal.Decimal, allowSavings, allowSwapPool bool) (domain.EnsureSpotBalanceEvent, error) {
	event := domain.EnsureSpotBalanceEvent{Asset: asset, RedeemedAmount: decimal.Zero}

	balance, err := o.balances.GetBalanceOrZero(ctx, asset)
	if err != nil {
		return event, fmt.Errorf("get spot balance of %s: %w", asset, err)
	}
	if balance.Free.GreaterThanOrEqual(target) {
		event.Success = true
		return event, nil
	}

	required := target.Sub(balance.Free)
	fields := map[string]interface{}{
		"asset":    asset,
		"target":   target.String(),
		"free":     balance.Free.String(),
		"required": required.String(),
	}
	o.logger.Info(ctx, "Spot balance below target, redeeming", fields)

	if allowSavings && o.savings != nil {
		savings, err := o.RedeemSavings(ctx, asset, required)
		if err != nil {
			return event, err
		}
		event.RedeemedAmount = event.RedeemedAmount.Add(savings.RedeemedAmount)
		required = required.Sub(savings.RedeemedAmount)
	}

	if !required.IsPositive() {
		event.Success = true
		return event, nil
	}

	if allowSwapPool && o.pools != nil {
		pool, err := o.RedeemSwapPool(ctx, asset, required)
		if err != nil {
			return event, err
		}
		event.RedeemedAmount = event.RedeemedAmount.Add(pool.RedeemedAmount)
		required = required.Sub(pool.RedeemedAmount)
	}

	event.Success = !required.IsPositive()
	if !event.Success {
		o.logger.Warn(ctx, "Could not redeem enough to reach spot target", map[string]interface{}{
			"asset":    asset,
			"target":   target.String(),
			"redeemed": event.RedeemedAmount.String(),
			"missing":  required.String(),
		})
	}
	return event, nil
}

// RedeemSavings performs a single savings redemption of up to amount.
// The request is raised to the product's minimum redemption amount and limited by the
// free savings and the remaining daily quota.
func (o *Orchestrator) RedeemSavings(ctx context.Context, asset string, amount decimal.Decimal) (domain.RedeemSavingsEvent, error) {
	event := domain.RedeemSavingsEvent{Asset: asset, RedeemedAmount: decimal.Zero}
	if o.savings == nil || !amount.IsPositive() {
		return event, nil
	}

	position, err := o.savings.GetPositionOrZero(ctx, asset)
	if err != nil {
		return event, fmt.Errorf("get savings position of %s: %w", asset, err)
	}

	fields := map[string]interface{}{
		"asset":     asset,
		"productId": position.ProductID,
		"required":  amount.String(),
		"available": position.FreeAmount.String(),
	}

	if !position.CanRedeem || position.RedeemingAmount.IsPositive() {
		o.logger.Info(ctx, "Savings redemption not permitted right now", fields)
		return event, nil
	}
	if !position.FreeAmount.IsPositive() {
		o.logger.Debug(ctx, "No free savings to redeem", fields)
		return event, nil
	}

	quota, ok, err := o.savings.TryGetQuota(ctx, asset, position.ProductID, o.kind)
	if err != nil {
		return event, fmt.Errorf("get savings quota of %s: %w", asset, err)
	}
	if !ok || !quota.LeftQuota.IsPositive() {
		o.logger.Info(ctx, "Savings redemption quota exhausted", fields)
		return event, nil
	}

	redeem := decimal.Min(amount, position.FreeAmount)
	if redeem.LessThan(quota.MinRedemptionAmount) {
		redeem = decimal.Min(quota.MinRedemptionAmount, position.FreeAmount)
	}
	redeem = decimal.Min(redeem, quota.LeftQuota)
	if redeem.LessThan(quota.MinRedemptionAmount) {
		fields["minRedemption"] = quota.MinRedemptionAmount.String()
		fields["leftQuota"] = quota.LeftQuota.String()
		o.logger.Info(ctx, "Savings redemption below product minimum", fields)
		return event, nil
	}

	if err := ctx.Err(); err != nil {
		return event, err
	}
	ctx = context.WithoutCancel(ctx)

	if err := o.savings.Redeem(ctx, asset, position.ProductID, redeem, o.kind); err != nil {
		o.logger.Error(ctx, err, "Savings redemption failed", fields)
		return event, fmt.Errorf("redeem %s %s from savings: %w: %w", redeem.String(), asset, ports.ErrRedemptionFailed, err)
	}

	if err := o.credit(ctx, map[string]decimal.Decimal{asset: redeem}); err != nil {
		return event, err
	}

	fields["redeemed"] = redeem.String()
	o.logger.Info(ctx, "Redeemed from savings", fields)

	event.Success = true
	event.RedeemedAmount = redeem
	return event, nil
}

// RedeemSwapPool performs a single liquidity pool redemption of up to amount.
func (o *Orchestrator) RedeemSwapPool(ctx context.Context, asset string, amount decimal.Decimal) (domain.RedeemSwapPoolEvent, error) {
	event := domain.RedeemSwapPoolEvent{Asset: asset, RedeemedAmount: decimal.Zero, QuoteAmount: decimal.Zero}
	if o.pools == nil || !amount.IsPositive() {
		return event, nil
	}

	pooled, err := o.pools.GetBalance(ctx, asset)
	if err != nil {
		return event, fmt.Errorf("get swap pool balance of %s: %w", asset, err)
	}

	fields := map[string]interface{}{
		"asset":     asset,
		"required":  amount.String(),
		"available": pooled.Total.String(),
	}
	if !pooled.Total.IsPositive() {
		o.logger.Debug(ctx, "No swap pool liquidity to redeem", fields)
		return event, nil
	}

	redeem := decimal.Min(amount, pooled.Total)

	if err := ctx.Err(); err != nil {
		return event, err
	}
	ctx = context.WithoutCancel(ctx)

	res, err := o.pools.Redeem(ctx, asset, redeem)
	if err != nil {
		o.logger.Error(ctx, err, "Swap pool redemption failed", fields)
		return event, fmt.Errorf("redeem %s %s from swap pool: %w: %w", redeem.String(), asset, ports.ErrRedemptionFailed, err)
	}
	if !res.Success {
		o.logger.Warn(ctx, "Swap pool rejected redemption", fields)
		return event, nil
	}

	credits := map[string]decimal.Decimal{asset: redeem}
	if res.QuoteAsset != "" && res.QuoteAmount.IsPositive() {
		credits[res.QuoteAsset] = credits[res.QuoteAsset].Add(res.QuoteAmount)
	}
	if err := o.credit(ctx, credits); err != nil {
		return event, err
	}

	fields["redeemed"] = redeem.String()
	fields["poolId"] = res.PoolID
	o.logger.Info(ctx, "Redeemed from swap pool", fields)

	event.Success = true
	event.RedeemedAmount = redeem
	event.QuoteAsset = res.QuoteAsset
	event.QuoteAmount = res.QuoteAmount
	return event, nil
}

// Available sums the spot, savings and pool holdings of asset that could be sold right now.
func (o *Orchestrator) Available(ctx context.Context, asset string, allowSavings, allowSwapPool bool) (decimal.Decimal, error) {
	balance, err := o.balances.GetBalanceOrZero(ctx, asset)
	if err != nil {
		return decimal.Zero, fmt.Errorf("get spot balance of %s: %w", asset, err)
	}
	total := balance.Free

	if allowSavings && o.savings != nil {
		position, err := o.savings.GetPositionOrZero(ctx, asset)
		if err != nil {
			return decimal.Zero, fmt.Errorf("get savings position of %s: %w", asset, err)
		}
		if position.CanRedeem && !position.RedeemingAmount.IsPositive() {
			total = total.Add(position.FreeAmount)
		}
	}

	if allowSwapPool && o.pools != nil {
		pooled, err := o.pools.GetBalance(ctx, asset)
		if err != nil {
			return decimal.Zero, fmt.Errorf("get swap pool balance of %s: %w", asset, err)
		}
		total = total.Add(pooled.Total)
	}
	return total, nil
}

// credit adds redeemed amounts to the local free balances in a single write.
func (o *Orchestrator) credit(ctx context.Context, amounts map[string]decimal.Decimal) error {
	updated := make([]domain.Balance, 0, len(amounts))
	for asset, amount := range amounts {
		balance, err := o.balances.GetBalanceOrZero(ctx, asset)
		if err != nil {
			return fmt.Errorf("get spot balance of %s: %w", asset, err)
		}
		balance.Asset = asset
		balance.Free = balance.Free.Add(amount)
		updated = append(updated, balance)
	}
	if err := o.balances.SetBalances(ctx, updated); err != nil {
		return fmt.Errorf("record redeemed balance: %w", err)
	}
	return nil
}
