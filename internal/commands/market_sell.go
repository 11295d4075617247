package commands

import (
	"context"
	"fmt"

	"cryptoAlgoBot/internal/domain"
	"cryptoAlgoBot/internal/ports"
)

type marketSellExecutor struct {
	pipeline *Pipeline
	logger   ports.Logger
	balances ports.BalanceProvider
	redeemer Redeemer
}

// Execute sells at market when the spot balance covers the quantity. Otherwise it issues a
// single redemption step and leaves the sell to a later tick, so that the order is never
// placed against a balance that has not settled yet.
func (e *marketSellExecutor) Execute(ctx context.Context, actx *AlgoContext, cmd Command) (Result, error) {
	c, err := as[MarketSell](cmd)
	if err != nil {
		return nil, err
	}
	if actx.Symbol.Name != c.Symbol {
		return nil, fmt.Errorf("market sell %s: %w", c.Symbol, ports.ErrSymbolNotFound)
	}

	quantity := actx.Symbol.AdjustQuantity(c.Quantity)
	price := actx.ReferencePrice(domain.Sell)
	base := actx.Symbol.BaseAsset

	fields := map[string]interface{}{
		"algo":      actx.Name,
		"symbol":    c.Symbol,
		"requested": c.Quantity.String(),
		"quantity":  quantity.String(),
		"price":     price.String(),
	}

	if !actx.Symbol.MeetsMinimums(quantity, price) {
		e.logger.Info(ctx, "Market sell below symbol minimums", fields)
		return MarketSellResult{Reason: "below symbol minimums"}, nil
	}

	available, err := e.redeemer.Available(ctx, base, c.RedeemSavings, c.RedeemSwapPool)
	if err != nil {
		return nil, err
	}
	fields["available"] = available.String()
	if available.LessThan(quantity) {
		e.logger.Warn(ctx, "Not enough base asset to market sell", fields)
		return MarketSellResult{Reason: "insufficient balance"}, nil
	}

	spot, err := e.balances.GetBalanceOrZero(ctx, base)
	if err != nil {
		return nil, fmt.Errorf("get spot balance of %s: %w", base, err)
	}

	if spot.Free.LessThan(quantity) {
		missing := quantity.Sub(spot.Free)
		fields["free"] = spot.Free.String()
		fields["required"] = missing.String()

		if c.RedeemSavings {
			event, err := e.redeemer.RedeemSavings(ctx, base, missing)
			if err != nil {
				return MarketSellResult{Reason: err.Error()}, err
			}
			if event.Success {
				e.logger.Info(ctx, "Redeemed savings for market sell, deferring order", fields)
				return MarketSellResult{Deferred: true, Redemption: event}, nil
			}
		}
		if c.RedeemSwapPool {
			event, err := e.redeemer.RedeemSwapPool(ctx, base, missing)
			if err != nil {
				return MarketSellResult{Reason: err.Error()}, err
			}
			if event.Success {
				e.logger.Info(ctx, "Redeemed swap pool for market sell, deferring order", fields)
				return MarketSellResult{Deferred: true, Redemption: event}, nil
			}
		}

		e.logger.Warn(ctx, "Spot balance short and no redemption possible", fields)
		return MarketSellResult{Reason: "redemption not possible"}, nil
	}

	res, err := e.pipeline.Execute(ctx, actx, CreateOrder{
		Symbol:   c.Symbol,
		Side:     domain.Sell,
		Type:     domain.OrderTypeMarket,
		Quantity: quantity,
	})
	out := MarketSellResult{}
	if placed, ok := res.(OrderResult); ok {
		out.Success = placed.Success
		out.Order = placed.Order
		out.Reason = placed.Reason
	}
	if err != nil {
		out.Success = false
		return out, err
	}
	return out, nil
}
