// Package accumulator implements a dip-buying spot algorithm. It keeps one buy limit order
// below the newest position and sells the oldest lots at market once they are far enough
// in profit.
package accumulator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"cryptoAlgoBot/internal/commands"
	"cryptoAlgoBot/internal/domain"
	"cryptoAlgoBot/internal/ports"
	"cryptoAlgoBot/internal/positions"
	"cryptoAlgoBot/internal/risk"
)

// Name is the registration name of the algorithm.
const Name = "accumulator"

// Config holds the algorithm parameters.
type Config struct {
	LotNotional    decimal.Decimal // Quote value of one lot
	Pullback       decimal.Decimal // Fraction below the reference price to bid at, e.g. 0.01
	TakeProfit     decimal.Decimal // Fraction above a lot's average price to sell at, e.g. 0.02
	RedeemSavings  bool
	RedeemSwapPool bool
	Truncation     positions.Truncation
}

// Algo is the accumulator algorithm.
type Algo struct {
	config Config
	risk   *risk.RiskManager
	logger ports.Logger
	now    func() time.Time
}

// New creates the algorithm.
func New(config Config, riskManager *risk.RiskManager, logger ports.Logger) (*Algo, error) {
	if riskManager == nil || logger == nil {
		return nil, fmt.Errorf("missing required dependencies for %s: %w", Name, ports.ErrInvalidArgument)
	}
	if !config.LotNotional.IsPositive() {
		return nil, fmt.Errorf("lot notional %s: %w", config.LotNotional, ports.ErrInvalidArgument)
	}
	if config.Pullback.IsNegative() || config.Pullback.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("pullback %s must be in [0, 1): %w", config.Pullback, ports.ErrInvalidArgument)
	}
	if !config.TakeProfit.IsPositive() {
		return nil, fmt.Errorf("take profit %s: %w", config.TakeProfit, ports.ErrInvalidArgument)
	}
	return &Algo{
		config: config,
		risk:   riskManager,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// Name returns the registration name.
func (a *Algo) Name() string {
	return Name
}

// Go decides the commands for one tick.
func (a *Algo) Go(ctx context.Context, actx *commands.AlgoContext) (commands.Command, error) {
	if actx == nil {
		return nil, fmt.Errorf("%s: nil context: %w", Name, ports.ErrInvalidArgument)
	}

	sellQty, err := a.profitableQuantity(actx)
	if err != nil {
		return nil, err
	}
	if sellQty.IsPositive() {
		buy := domain.Buy
		a.logger.Info(ctx, "Taking profit on oldest lots", map[string]interface{}{
			"symbol":   actx.Symbol.Name,
			"quantity": sellQty.String(),
			"bid":      actx.Ticker.BidPrice.String(),
		})
		return commands.Seq(
			commands.CancelOpenOrders{Symbol: actx.Symbol.Name, Side: &buy},
			commands.MarketSell{
				Symbol:         actx.Symbol.Name,
				Quantity:       sellQty,
				RedeemSavings:  a.config.RedeemSavings,
				RedeemSwapPool: a.config.RedeemSwapPool,
			},
		), nil
	}

	return a.buyCommand(ctx, actx), nil
}

// profitableQuantity sums the oldest lots whose take profit price is at or below the bid.
// It stops at the first lot that is not there yet.
func (a *Algo) profitableQuantity(actx *commands.AlgoContext) (decimal.Decimal, error) {
	held := actx.AutoPosition.Positions
	bid := actx.ReferencePrice(domain.Sell)
	if held.IsEmpty() || !bid.IsPositive() {
		return decimal.Zero, nil
	}

	size := actx.Symbol.AdjustQuantity(a.config.LotNotional.Div(held.AvgPrice()))
	if !size.IsPositive() {
		return decimal.Zero, nil
	}
	lots, err := positions.NewLotIterator(held, size, positions.WithTruncation(a.config.Truncation))
	if err != nil {
		return decimal.Zero, err
	}

	target := decimal.NewFromInt(1).Add(a.config.TakeProfit)
	total := decimal.Zero
	for lot, err := range lots.All() {
		if err != nil {
			return decimal.Zero, err
		}
		if lot.AvgPrice.Mul(target).GreaterThan(bid) {
			break
		}
		total = total.Add(lot.Quantity)
	}

	total = actx.Symbol.AdjustQuantity(total)
	if !actx.Symbol.MeetsMinimums(total, bid) {
		return decimal.Zero, nil
	}
	return total, nil
}

func (a *Algo) buyCommand(ctx context.Context, actx *commands.AlgoContext) commands.Command {
	buy := domain.Buy
	cancelBuys := commands.CancelOpenOrders{Symbol: actx.Symbol.Name, Side: &buy}

	bid := actx.Ticker.BidPrice
	reference := bid
	if last, ok := actx.AutoPosition.Positions.Last(); ok && last.Price.LessThan(bid) {
		reference = last.Price
	}
	price := actx.Symbol.AdjustPrice(reference.Mul(decimal.NewFromInt(1).Sub(a.config.Pullback)))
	if !price.IsPositive() {
		return commands.Noop{}
	}

	funds := actx.QuoteBalance.Free
	if a.config.RedeemSavings && actx.QuoteSavings.CanRedeem {
		funds = funds.Add(actx.QuoteSavings.FreeAmount)
	}
	if a.config.RedeemSwapPool {
		funds = funds.Add(actx.QuoteSwapPool.Total)
	}
	quantity := actx.Symbol.AdjustQuantity(a.risk.PositionSize(ctx, funds, price))

	fields := map[string]interface{}{
		"symbol":   actx.Symbol.Name,
		"price":    price.String(),
		"quantity": quantity.String(),
		"funds":    funds.String(),
	}
	if !actx.Symbol.MeetsMinimums(quantity, price) {
		a.logger.Debug(ctx, "Buy below symbol minimums, clearing bids", fields)
		return cancelBuys
	}

	if err := a.risk.ValidateBuy(ctx, actx.AutoPosition, price, quantity, a.now()); err != nil {
		if errors.Is(err, risk.ErrLimitExceeded) {
			fields["reason"] = err.Error()
			a.logger.Info(ctx, "Buy blocked by risk limits, clearing bids", fields)
		}
		return cancelBuys
	}

	return commands.EnsureSingleOrder{
		Symbol:         actx.Symbol.Name,
		Side:           domain.Buy,
		Type:           domain.OrderTypeLimit,
		TimeInForce:    domain.TimeInForceGTC,
		Quantity:       quantity,
		Price:          price,
		RedeemSavings:  a.config.RedeemSavings,
		RedeemSwapPool: a.config.RedeemSwapPool,
	}
}
