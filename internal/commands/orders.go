package commands

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"cryptoAlgoBot/internal/domain"
	"cryptoAlgoBot/internal/ports"
)

// as extracts the concrete command an executor was registered for.
func as[T Command](cmd Command) (T, error) {
	switch c := any(cmd).(type) {
	case T:
		return c, nil
	case *T:
		if c != nil {
			return *c, nil
		}
	}
	var zero T
	return zero, fmt.Errorf("unexpected command %T for %s: %w", cmd, zero.Kind(), ports.ErrInvalidArgument)
}

// newClientOrderID returns an ID accepted by the newClientOrderId parameter (at most 36 characters).
func newClientOrderID() string {
	return uuid.NewString()
}

type createOrderExecutor struct {
	logger  ports.Logger
	gateway ports.TradingGateway
	orders  ports.OrderProvider
}

func (e *createOrderExecutor) Execute(ctx context.Context, actx *AlgoContext, cmd Command) (Result, error) {
	c, err := as[CreateOrder](cmd)
	if err != nil {
		return nil, err
	}
	if !c.Quantity.IsPositive() {
		return nil, fmt.Errorf("create order for %s: quantity %s: %w", c.Symbol, c.Quantity.String(), ports.ErrInvalidArgument)
	}

	req := domain.OrderRequest{
		Symbol:        c.Symbol,
		Side:          c.Side,
		Type:          c.Type,
		TimeInForce:   c.TimeInForce,
		Quantity:      c.Quantity,
		Price:         c.Price,
		ClientOrderID: newClientOrderID(),
	}
	if req.Type == domain.OrderTypeLimit && req.TimeInForce == "" {
		req.TimeInForce = domain.TimeInForceGTC
	}

	fields := map[string]interface{}{
		"algo":          actx.Name,
		"symbol":        req.Symbol,
		"side":          string(req.Side),
		"type":          string(req.Type),
		"quantity":      req.Quantity.String(),
		"price":         req.Price.String(),
		"clientOrderId": req.ClientOrderID,
	}

	// Once submitted, the order must be recorded even if the tick is being cancelled.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ctx = context.WithoutCancel(ctx)

	order, err := e.gateway.CreateOrder(ctx, req)
	if err != nil {
		e.logger.Error(ctx, err, "Failed to place order", fields)
		return OrderResult{Reason: err.Error()}, fmt.Errorf("create order for %s: %w", req.Symbol, err)
	}
	if order.Symbol == "" {
		order.Symbol = req.Symbol
	}

	if err := e.orders.SetOrder(ctx, order); err != nil {
		fields["orderId"] = order.OrderID
		e.logger.Error(ctx, err, "Failed to record placed order", fields)
		return OrderResult{Placed: true, Order: order, Reason: err.Error()}, fmt.Errorf("record order %d: %w", order.OrderID, err)
	}

	fields["orderId"] = order.OrderID
	fields["status"] = string(order.Status)
	e.logger.Info(ctx, "Order placed", fields)

	success := order.Status != domain.OrderStatusRejected && order.Status != domain.OrderStatusExpired
	return OrderResult{Success: success, Placed: true, Order: order}, nil
}

type cancelOrderExecutor struct {
	logger   ports.Logger
	gateway  ports.TradingGateway
	orders   ports.OrderProvider
	balances ports.BalanceProvider
}

func (e *cancelOrderExecutor) Execute(ctx context.Context, actx *AlgoContext, cmd Command) (Result, error) {
	c, err := as[CancelOrder](cmd)
	if err != nil {
		return nil, err
	}

	fields := map[string]interface{}{
		"algo":    actx.Name,
		"symbol":  c.Symbol,
		"orderId": c.OrderID,
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ctx = context.WithoutCancel(ctx)

	order, err := e.gateway.CancelOrder(ctx, c.Symbol, c.OrderID)
	if err != nil {
		e.logger.Error(ctx, err, "Failed to cancel order", fields)
		return OrderResult{Reason: err.Error()}, fmt.Errorf("cancel order %d of %s: %w", c.OrderID, c.Symbol, err)
	}
	if order.Symbol == "" {
		order.Symbol = c.Symbol
	}
	if order.OrderID == 0 {
		order.OrderID = c.OrderID
	}

	if err := e.orders.SetOrder(ctx, order); err != nil {
		e.logger.Error(ctx, err, "Failed to record cancelled order", fields)
		return OrderResult{Order: order, Reason: err.Error()}, fmt.Errorf("record order %d: %w", order.OrderID, err)
	}

	if err := e.release(ctx, actx.Symbol, order); err != nil {
		e.logger.Error(ctx, err, "Failed to release funds of cancelled order", fields)
		return OrderResult{Order: order, Reason: err.Error()}, err
	}

	fields["status"] = string(order.Status)
	e.logger.Info(ctx, "Order cancelled", fields)
	return OrderResult{Success: true, Order: order}, nil
}

// release moves the funds the cancelled order held from locked to free in the local view,
// so a replacement placed in the same tick sees them. The next balance sync overwrites it.
func (e *cancelOrderExecutor) release(ctx context.Context, sym domain.Symbol, order domain.OrderQueryResult) error {
	if sym.Name != order.Symbol || order.Type == domain.OrderTypeMarket || order.Side == "" {
		return nil
	}

	asset, amount := sym.BaseAsset, order.RemainingQuantity()
	if order.Side == domain.Buy {
		asset, amount = sym.QuoteAsset, amount.Mul(order.Price)
	}
	if !amount.IsPositive() {
		return nil
	}

	balance, err := e.balances.GetBalanceOrZero(ctx, asset)
	if err != nil {
		return fmt.Errorf("get spot balance of %s: %w", asset, err)
	}
	released := decimal.Min(amount, balance.Locked)
	if !released.IsPositive() {
		return nil
	}
	balance.Asset = asset
	balance.Free = balance.Free.Add(released)
	balance.Locked = balance.Locked.Sub(released)
	if err := e.balances.SetBalances(ctx, []domain.Balance{balance}); err != nil {
		return fmt.Errorf("record released balance of %s: %w", asset, err)
	}
	return nil
}

type cancelOpenOrdersExecutor struct {
	pipeline *Pipeline
	orders   ports.OrderProvider
}

func (e *cancelOpenOrdersExecutor) Execute(ctx context.Context, actx *AlgoContext, cmd Command) (Result, error) {
	c, err := as[CancelOpenOrders](cmd)
	if err != nil {
		return nil, err
	}

	open, err := e.orders.GetOrdersByFilter(ctx, c.Symbol, c.Side, true, nil)
	if err != nil {
		return nil, fmt.Errorf("list open orders of %s: %w", c.Symbol, err)
	}

	ref := actx.Ticker.LastPrice
	result := CompositeResult{Success: true}
	for _, o := range open {
		if c.MinDistance.IsPositive() && ref.IsPositive() {
			if o.Price.Sub(ref).Abs().Div(ref).LessThan(c.MinDistance) {
				continue
			}
		}

		res, err := e.pipeline.Execute(ctx, actx, CancelOrder{Symbol: c.Symbol, OrderID: o.OrderID})
		if res != nil {
			result.Results = append(result.Results, res)
			result.Success = result.Success && res.Succeeded()
		}
		if err != nil {
			result.Success = false
			return result, err
		}
	}
	return result, nil
}

type ensureSingleOrderExecutor struct {
	pipeline *Pipeline
	logger   ports.Logger
	orders   ports.OrderProvider
	redeemer Redeemer
}

func (e *ensureSingleOrderExecutor) Execute(ctx context.Context, actx *AlgoContext, cmd Command) (Result, error) {
	c, err := as[EnsureSingleOrder](cmd)
	if err != nil {
		return nil, err
	}
	if actx.Symbol.Name != c.Symbol {
		return nil, fmt.Errorf("ensure single order for %s: %w", c.Symbol, ports.ErrSymbolNotFound)
	}

	quantity := actx.Symbol.AdjustQuantity(c.Quantity)
	price := c.Price
	checkPrice := price
	if c.Type == domain.OrderTypeMarket {
		checkPrice = actx.ReferencePrice(c.Side)
	} else {
		price = actx.Symbol.AdjustPrice(price)
		checkPrice = price
	}

	fields := map[string]interface{}{
		"algo":     actx.Name,
		"symbol":   c.Symbol,
		"side":     string(c.Side),
		"quantity": quantity.String(),
		"price":    price.String(),
	}

	if !actx.Symbol.MeetsMinimums(quantity, checkPrice) {
		e.logger.Debug(ctx, "Desired order below symbol minimums", fields)
		return OrderResult{Reason: "below symbol minimums"}, nil
	}

	side := c.Side
	open, err := e.orders.GetOrdersByFilter(ctx, c.Symbol, &side, true, nil)
	if err != nil {
		return nil, fmt.Errorf("list open orders of %s: %w", c.Symbol, err)
	}

	var kept *domain.OrderQueryResult
	for _, o := range open {
		if kept == nil && o.Type == c.Type && o.Price.Equal(price) && o.OriginalQuantity.Equal(quantity) {
			kept = &o
			continue
		}
		if _, err := e.pipeline.Execute(ctx, actx, CancelOrder{Symbol: c.Symbol, OrderID: o.OrderID}); err != nil {
			return OrderResult{Reason: err.Error()}, err
		}
	}
	if kept != nil {
		return OrderResult{Success: true, Order: *kept}, nil
	}

	asset, amount := actx.Symbol.QuoteAsset, quantity.Mul(checkPrice)
	if c.Side == domain.Sell {
		asset, amount = actx.Symbol.BaseAsset, quantity
	}
	funded, err := e.redeemer.EnsureSpotBalance(ctx, asset, amount, c.RedeemSavings, c.RedeemSwapPool)
	if err != nil {
		return OrderResult{Reason: err.Error()}, err
	}
	if !funded.Success {
		fields["asset"] = asset
		fields["required"] = amount.String()
		fields["redeemed"] = funded.RedeemedAmount.String()
		e.logger.Warn(ctx, "Insufficient balance for order", fields)
		return OrderResult{Reason: "insufficient balance"}, nil
	}

	return e.pipeline.Execute(ctx, actx, CreateOrder{
		Symbol:      c.Symbol,
		Side:        c.Side,
		Type:        c.Type,
		TimeInForce: c.TimeInForce,
		Quantity:    quantity,
		Price:       price,
	})
}
