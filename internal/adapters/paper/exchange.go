// Package paper simulates a spot exchange and an earn account in memory.
package paper

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"cryptoAlgoBot/internal/domain"
	"cryptoAlgoBot/internal/ports"
)

// MarketData supplies real prices and trading rules to the simulation.
type MarketData interface {
	GetSymbolPriceTicker(ctx context.Context, symbol string) (domain.Ticker, error)
	GetSymbols(ctx context.Context, symbols ...string) ([]domain.Symbol, error)
}

// Config holds configuration for the simulated exchange.
type Config struct {
	Logger   ports.Logger
	Market   MarketData                 // Optional; without it prices come from SetTicker only
	Symbols  []domain.Symbol            // Known symbols when no market data source is set
	Balances map[string]decimal.Decimal // Initial free spot balances
	FeeRate  decimal.Decimal            // Commission per fill, charged in the received asset
	Clock    func() time.Time
}

// Exchange is an in-memory spot exchange. Market orders fill at the touch price,
// limit orders rest on a virtual book until a ticker update crosses them.
// It implements ports.Exchange.
type Exchange struct {
	mu       sync.Mutex
	logger   ports.Logger
	market   MarketData
	feeRate  decimal.Decimal
	clock    func() time.Time
	symbols  map[string]domain.Symbol
	tickers  map[string]domain.Ticker
	balances map[string]domain.Balance
	orders   map[string][]*domain.OrderQueryResult
	trades   map[string][]domain.Trade

	nextOrderID int64
	nextTradeID int64
}

// NewExchange creates a new simulated exchange.
func NewExchange(cfg Config) (*Exchange, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for paper exchange: %w", ports.ErrInvalidArgument)
	}
	if cfg.FeeRate.IsNegative() {
		return nil, fmt.Errorf("fee rate %s: %w", cfg.FeeRate, ports.ErrInvalidArgument)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}

	e := &Exchange{
		logger:      cfg.Logger,
		market:      cfg.Market,
		feeRate:     cfg.FeeRate,
		clock:       clock,
		symbols:     make(map[string]domain.Symbol),
		tickers:     make(map[string]domain.Ticker),
		balances:    make(map[string]domain.Balance),
		orders:      make(map[string][]*domain.OrderQueryResult),
		trades:      make(map[string][]domain.Trade),
		nextOrderID: 1,
		nextTradeID: 1,
	}
	for _, s := range cfg.Symbols {
		e.symbols[s.Name] = s
	}
	for asset, amount := range cfg.Balances {
		e.balances[asset] = domain.Balance{Asset: asset, Free: amount, Locked: decimal.Zero}
	}
	return e, nil
}

// Deposit credits free spot balance. The earn account uses it to settle redemptions.
func (e *Exchange) Deposit(asset string, amount decimal.Decimal) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.adjust(asset, amount, decimal.Zero)
}

// SetTicker records a price update and fills resting orders it crosses.
func (e *Exchange) SetTicker(ticker domain.Ticker) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.setTickerLocked(ticker)
}

func (e *Exchange) setTickerLocked(ticker domain.Ticker) {
	e.tickers[ticker.Symbol] = ticker
	for _, o := range e.orders[ticker.Symbol] {
		if !o.IsTransient() || o.Type == domain.OrderTypeMarket {
			continue
		}
		crossed := (o.Side == domain.Buy && ticker.AskPrice.IsPositive() && ticker.AskPrice.LessThanOrEqual(o.Price)) ||
			(o.Side == domain.Sell && ticker.BidPrice.IsPositive() && ticker.BidPrice.GreaterThanOrEqual(o.Price))
		if crossed {
			e.fill(o, o.Price, true)
		}
	}
}

// Ping checks the connectivity to the exchange API.
func (e *Exchange) Ping(ctx context.Context) error {
	return ctx.Err()
}

// SetServerTime is a no-op; the simulation runs on the local clock.
func (e *Exchange) SetServerTime(ctx context.Context) error {
	return ctx.Err()
}

// GetSymbols returns the trading rules of the given symbols, or of all known symbols.
func (e *Exchange) GetSymbols(ctx context.Context, symbols ...string) ([]domain.Symbol, error) {
	if e.market != nil {
		fetched, err := e.market.GetSymbols(ctx, symbols...)
		if err != nil {
			return nil, err
		}
		e.mu.Lock()
		for _, s := range fetched {
			e.symbols[s.Name] = s
		}
		e.mu.Unlock()
		return fetched, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if len(symbols) == 0 {
		out := make([]domain.Symbol, 0, len(e.symbols))
		for _, s := range e.symbols {
			out = append(out, s)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
		return out, nil
	}

	out := make([]domain.Symbol, 0, len(symbols))
	for _, name := range symbols {
		s, ok := e.symbols[name]
		if !ok {
			return nil, fmt.Errorf("GetSymbols failed for %s: %w", name, ports.ErrSymbolNotFound)
		}
		out = append(out, s)
	}
	return out, nil
}

// GetBalances returns all non-empty spot balances.
func (e *Exchange) GetBalances(ctx context.Context) ([]domain.Balance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock()
	out := make([]domain.Balance, 0, len(e.balances))
	for _, b := range e.balances {
		if b.Free.IsZero() && b.Locked.IsZero() {
			continue
		}
		b.UpdatedTime = now
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Asset < out[j].Asset })
	return out, nil
}

// GetSymbolPriceTicker returns the latest ticker. With a market data source the ticker
// is fetched first, which also matches resting orders against it.
func (e *Exchange) GetSymbolPriceTicker(ctx context.Context, symbol string) (domain.Ticker, error) {
	if e.market != nil {
		ticker, err := e.market.GetSymbolPriceTicker(ctx, symbol)
		if err != nil {
			return domain.Ticker{}, err
		}
		e.SetTicker(ticker)
		return ticker, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	ticker, ok := e.tickers[symbol]
	if !ok {
		return domain.Ticker{}, fmt.Errorf("GetSymbolPriceTicker failed for %s: %w", symbol, ports.ErrNoPriceAvailable)
	}
	return ticker, nil
}

// CreateOrder places a simulated order.
func (e *Exchange) CreateOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderQueryResult, error) {
	op := "CreateOrder"
	if err := ctx.Err(); err != nil {
		return domain.OrderQueryResult{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	sym, ok := e.symbols[req.Symbol]
	if !ok {
		return domain.OrderQueryResult{}, fmt.Errorf("%s failed for %s: %w", op, req.Symbol, ports.ErrSymbolNotFound)
	}
	if !req.Quantity.IsPositive() {
		return domain.OrderQueryResult{}, fmt.Errorf("%s failed: quantity %s: %w", op, req.Quantity, ports.ErrInvalidRequest)
	}
	if req.Type != domain.OrderTypeMarket && !req.Price.IsPositive() {
		return domain.OrderQueryResult{}, fmt.Errorf("%s failed: price %s: %w", op, req.Price, ports.ErrInvalidRequest)
	}

	ticker, hasTicker := e.tickers[req.Symbol]
	now := e.clock()
	order := &domain.OrderQueryResult{
		Symbol:                   req.Symbol,
		OrderID:                  e.nextOrderID,
		ClientOrderID:            req.ClientOrderID,
		Price:                    req.Price,
		OriginalQuantity:         req.Quantity,
		ExecutedQuantity:         decimal.Zero,
		CummulativeQuoteQuantity: decimal.Zero,
		Status:                   domain.OrderStatusNew,
		TimeInForce:              req.TimeInForce,
		Type:                     req.Type,
		Side:                     req.Side,
		Time:                     now,
		UpdateTime:               now,
	}

	switch req.Type {
	case domain.OrderTypeMarket:
		if !hasTicker {
			return domain.OrderQueryResult{}, fmt.Errorf("%s failed for %s: %w", op, req.Symbol, ports.ErrNoPriceAvailable)
		}
		price := ticker.AskPrice
		if req.Side == domain.Sell {
			price = ticker.BidPrice
		}
		if !price.IsPositive() {
			price = ticker.LastPrice
		}
		if err := e.checkFree(op, sym, req.Side, req.Quantity, price); err != nil {
			return domain.OrderQueryResult{}, err
		}
		order.Price = decimal.Zero
		e.accept(order)
		e.fill(order, price, false)

	case domain.OrderTypeLimit, domain.OrderTypeLimitMaker:
		crosses := hasTicker && ((req.Side == domain.Buy && ticker.AskPrice.IsPositive() && ticker.AskPrice.LessThanOrEqual(req.Price)) ||
			(req.Side == domain.Sell && ticker.BidPrice.IsPositive() && ticker.BidPrice.GreaterThanOrEqual(req.Price)))
		if crosses && req.Type == domain.OrderTypeLimitMaker {
			return domain.OrderQueryResult{}, fmt.Errorf("%s failed: limit maker order would cross: %w", op, ports.ErrOrderPlacementFailed)
		}
		if err := e.checkFree(op, sym, req.Side, req.Quantity, req.Price); err != nil {
			return domain.OrderQueryResult{}, err
		}
		e.lock(sym, order)
		e.accept(order)
		if crosses {
			touch := ticker.AskPrice
			if req.Side == domain.Sell {
				touch = ticker.BidPrice
			}
			e.fill(order, touch, false)
		}

	default:
		return domain.OrderQueryResult{}, fmt.Errorf("%s failed: order type %s: %w", op, req.Type, ports.ErrInvalidRequest)
	}

	e.logger.Info(ctx, "Paper order accepted", map[string]interface{}{
		"symbol":   order.Symbol,
		"orderID":  order.OrderID,
		"side":     order.Side,
		"type":     order.Type,
		"quantity": order.OriginalQuantity.String(),
		"price":    order.Price.String(),
		"status":   order.Status,
	})
	return *order, nil
}

// CancelOrder cancels a resting order and releases its locked funds.
func (e *Exchange) CancelOrder(ctx context.Context, symbol string, orderID int64) (domain.OrderQueryResult, error) {
	op := "CancelOrder"
	if err := ctx.Err(); err != nil {
		return domain.OrderQueryResult{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	order := e.find(symbol, orderID)
	if order == nil {
		return domain.OrderQueryResult{}, fmt.Errorf("%s failed for %s/%d: %w", op, symbol, orderID, ports.ErrOrderNotFound)
	}
	if !order.IsTransient() {
		return domain.OrderQueryResult{}, fmt.Errorf("%s failed: order %d is %s: %w", op, orderID, order.Status, ports.ErrOrderCancelFailed)
	}

	e.unlock(e.symbols[symbol], order)
	order.Status = domain.OrderStatusCanceled
	order.UpdateTime = e.clock()

	e.logger.Info(ctx, "Paper order canceled", map[string]interface{}{"symbol": symbol, "orderID": orderID})
	return *order, nil
}

// ListOrders returns the orders of a symbol with an ID of at least fromID.
func (e *Exchange) ListOrders(ctx context.Context, symbol string, fromID int64) ([]domain.OrderQueryResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []domain.OrderQueryResult
	for _, o := range e.orders[symbol] {
		if o.OrderID >= fromID {
			out = append(out, *o)
		}
	}
	return out, nil
}

// ListTrades returns the fills of a symbol with an ID of at least fromID.
func (e *Exchange) ListTrades(ctx context.Context, symbol string, fromID int64) ([]domain.Trade, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []domain.Trade
	for _, t := range e.trades[symbol] {
		if t.ID >= fromID {
			out = append(out, t)
		}
	}
	return out, nil
}

// --- book keeping, callers hold e.mu ---

func (e *Exchange) accept(order *domain.OrderQueryResult) {
	e.nextOrderID++
	e.orders[order.Symbol] = append(e.orders[order.Symbol], order)
}

func (e *Exchange) find(symbol string, orderID int64) *domain.OrderQueryResult {
	for _, o := range e.orders[symbol] {
		if o.OrderID == orderID {
			return o
		}
	}
	return nil
}

func (e *Exchange) adjust(asset string, free, locked decimal.Decimal) {
	b, ok := e.balances[asset]
	if !ok {
		b = domain.Balance{Asset: asset, Free: decimal.Zero, Locked: decimal.Zero}
	}
	b.Free = b.Free.Add(free)
	b.Locked = b.Locked.Add(locked)
	e.balances[asset] = b
}

func (e *Exchange) checkFree(op string, sym domain.Symbol, side domain.OrderSide, quantity, price decimal.Decimal) error {
	asset, need := sym.BaseAsset, quantity
	if side == domain.Buy {
		asset, need = sym.QuoteAsset, quantity.Mul(price)
	}
	if e.balances[asset].Free.LessThan(need) {
		return fmt.Errorf("%s failed: need %s %s, have %s: %w: %w",
			op, need, asset, e.balances[asset].Free, ports.ErrOrderPlacementFailed, ports.ErrInsufficientFunds)
	}
	return nil
}

// lockedFor is what a resting order holds: quote at the limit price for buys, base for sells.
func lockedFor(sym domain.Symbol, o *domain.OrderQueryResult) (string, decimal.Decimal) {
	remaining := o.RemainingQuantity()
	if o.Side == domain.Buy {
		return sym.QuoteAsset, remaining.Mul(o.Price)
	}
	return sym.BaseAsset, remaining
}

func (e *Exchange) lock(sym domain.Symbol, o *domain.OrderQueryResult) {
	asset, amount := lockedFor(sym, o)
	e.adjust(asset, amount.Neg(), amount)
}

func (e *Exchange) unlock(sym domain.Symbol, o *domain.OrderQueryResult) {
	asset, amount := lockedFor(sym, o)
	e.adjust(asset, amount, amount.Neg())
}

// fill executes the remaining quantity of an order at price and records the trade.
func (e *Exchange) fill(o *domain.OrderQueryResult, price decimal.Decimal, maker bool) {
	sym := e.symbols[o.Symbol]
	if o.Type != domain.OrderTypeMarket {
		e.unlock(sym, o)
	}

	qty := o.RemainingQuantity()
	quote := qty.Mul(price)

	var commission decimal.Decimal
	var commissionAsset string
	if o.Side == domain.Buy {
		commission, commissionAsset = qty.Mul(e.feeRate), sym.BaseAsset
		e.adjust(sym.QuoteAsset, quote.Neg(), decimal.Zero)
		e.adjust(sym.BaseAsset, qty.Sub(commission), decimal.Zero)
	} else {
		commission, commissionAsset = quote.Mul(e.feeRate), sym.QuoteAsset
		e.adjust(sym.BaseAsset, qty.Neg(), decimal.Zero)
		e.adjust(sym.QuoteAsset, quote.Sub(commission), decimal.Zero)
	}

	now := e.clock()
	o.ExecutedQuantity = o.OriginalQuantity
	o.CummulativeQuoteQuantity = o.CummulativeQuoteQuantity.Add(quote)
	o.Status = domain.OrderStatusFilled
	o.UpdateTime = now

	e.trades[o.Symbol] = append(e.trades[o.Symbol], domain.Trade{
		Symbol:          o.Symbol,
		ID:              e.nextTradeID,
		OrderID:         o.OrderID,
		Price:           price,
		Quantity:        qty,
		QuoteQuantity:   quote,
		Commission:      commission,
		CommissionAsset: commissionAsset,
		Time:            now,
		IsBuyer:         o.Side == domain.Buy,
		IsMaker:         maker,
	})
	e.nextTradeID++
}
