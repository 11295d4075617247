package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"golang.org/x/time/rate"

	"cryptoAlgoBot/internal/domain"
	"cryptoAlgoBot/internal/ports"
)

const (
	// Base URLs
	baseURLProduction = "https://api.binance.com"
	baseURLTestnet    = "https://testnet.binance.vision"

	// Page size of the history endpoints.
	pageLimit = 1000
)

// Client implements ports.Exchange on top of the Binance spot API.
type Client struct {
	spotClient *binance.Client
	logger     ports.Logger
	limiter    *rate.Limiter
}

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	APIKey            string
	SecretKey         string
	UseTestnet        bool
	Logger            ports.Logger
	RequestsPerSecond float64 // Client side throttle, 0 selects the default of 10
}

// New creates a new Binance client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client: %w", ports.ErrInvalidArgument)
	}
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		cfg.Logger.Warn(context.Background(), "APIKey or SecretKey is empty. Client will only work for public endpoints.")
	}

	client := binance.NewClient(cfg.APIKey, cfg.SecretKey)
	if cfg.UseTestnet {
		client.BaseURL = baseURLTestnet
		cfg.Logger.Info(context.Background(), "Binance client configured for Testnet", map[string]interface{}{"baseURL": client.BaseURL})
	} else {
		client.BaseURL = baseURLProduction
		cfg.Logger.Info(context.Background(), "Binance client configured for Production", map[string]interface{}{"baseURL": client.BaseURL})
	}

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}

	return &Client{
		spotClient: client,
		logger:     cfg.Logger,
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
	}, nil
}

// wait blocks until the limiter admits one more request.
func (c *Client) wait(ctx context.Context, operation string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return c.handleError(ctx, err, operation)
	}
	return nil
}

// mapAPIError translates a Binance spot API error code into a standard ports error.
func mapAPIError(code int64) error {
	switch code {
	case -1003, -1015: // Too many requests / too many new orders
		return ports.ErrRateLimited
	case -1021: // Timestamp for this request is outside of the recvWindow
		return ports.ErrTimeout
	case -1022: // Signature for this request is not valid
		return ports.ErrAuthenticationFailed
	case -1100, -1101, -1102, -1103, -1104, -1105, -1106, -1111, -1112, -1114, -1115, -1116, -1117, -1120, -1121, -1125, -1127, -1128, -1130:
		return ports.ErrInvalidRequest
	case -1013: // Filter failure (LOT_SIZE, PRICE_FILTER, NOTIONAL)
		return ports.ErrInvalidRequest
	case -2010: // New order rejected
		return ports.ErrOrderPlacementFailed
	case -2011: // Cancel order rejected
		return ports.ErrOrderCancelFailed
	case -2013: // Order does not exist
		return ports.ErrOrderNotFound
	case -2014, -2015: // API-key format invalid / invalid key, IP or permissions
		return ports.ErrInvalidAPIKeys
	case -2018, -2019, -3005: // Balance is insufficient
		return ports.ErrInsufficientFunds
	default:
		return ports.ErrUnknown
	}
}

// handleError translates common Binance API errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		finalErr := fmt.Errorf("%s failed: %w: %w", operation, mapAPIError(apiErr.Code), err)
		c.logger.Error(ctx, err, fmt.Sprintf("%s failed with API error", operation), fields)
		return finalErr
	}

	// Handle non-API errors (network, context cancellation, etc.)
	var finalErr error
	if errors.Is(err, context.DeadlineExceeded) {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	} else if errors.Is(err, context.Canceled) {
		finalErr = fmt.Errorf("%s operation canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	} else if strings.Contains(err.Error(), "use of closed network connection") ||
		strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "connection reset by peer") {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrConnectionFailed, err)
	} else {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUnknown, err)
	}

	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

// SetServerTime synchronizes the client's time with the server's time.
func (c *Client) SetServerTime(ctx context.Context) error {
	op := "SetServerTime"
	if err := c.wait(ctx, op); err != nil {
		return err
	}
	offset, err := c.spotClient.NewSetServerTimeService().Do(ctx)
	if err != nil {
		return c.handleError(ctx, err, op)
	}
	c.logger.Debug(ctx, op+" successful", map[string]interface{}{"offsetMs": offset})
	return nil
}

// Ping checks the connectivity to the exchange API.
func (c *Client) Ping(ctx context.Context) error {
	op := "Ping"
	if err := c.wait(ctx, op); err != nil {
		return err
	}
	if err := c.spotClient.NewPingService().Do(ctx); err != nil {
		return c.handleError(ctx, fmt.Errorf("ping failed: %w", err), op)
	}
	c.logger.Debug(ctx, op+" successful")
	return nil
}

// GetSymbols retrieves the trading rules of the given symbols.
func (c *Client) GetSymbols(ctx context.Context, symbols ...string) ([]domain.Symbol, error) {
	op := "GetSymbols"
	if err := c.wait(ctx, op); err != nil {
		return nil, err
	}

	svc := c.spotClient.NewExchangeInfoService()
	if len(symbols) > 0 {
		svc = svc.Symbols(symbols...)
	}
	info, err := svc.Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	out := make([]domain.Symbol, 0, len(info.Symbols))
	for _, s := range info.Symbols {
		filters, err := parseFilters(s.Filters)
		if err != nil {
			return nil, c.handleError(ctx, fmt.Errorf("parse filters of %s: %w", s.Symbol, err), op)
		}
		out = append(out, domain.Symbol{
			Name:       s.Symbol,
			Status:     s.Status,
			BaseAsset:  s.BaseAsset,
			QuoteAsset: s.QuoteAsset,
			Filters:    filters,
		})
	}
	return out, nil
}

// GetBalances retrieves all non-empty spot balances.
func (c *Client) GetBalances(ctx context.Context) ([]domain.Balance, error) {
	op := "GetBalances"
	if err := c.wait(ctx, op); err != nil {
		return nil, err
	}
	account, err := c.spotClient.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	now := time.Now()
	out := make([]domain.Balance, 0, len(account.Balances))
	for _, bal := range account.Balances {
		free, err := parseDecimal(bal.Free)
		if err != nil {
			return nil, c.handleError(ctx, fmt.Errorf("free balance of %s: %w", bal.Asset, err), op)
		}
		locked, err := parseDecimal(bal.Locked)
		if err != nil {
			return nil, c.handleError(ctx, fmt.Errorf("locked balance of %s: %w", bal.Asset, err), op)
		}
		if free.IsZero() && locked.IsZero() {
			continue
		}
		out = append(out, domain.Balance{Asset: bal.Asset, Free: free, Locked: locked, UpdatedTime: now})
	}
	return out, nil
}

// GetSymbolPriceTicker retrieves the best bid, best ask and last price of a symbol.
func (c *Client) GetSymbolPriceTicker(ctx context.Context, symbol string) (domain.Ticker, error) {
	op := "GetSymbolPriceTicker"
	if err := c.wait(ctx, op); err != nil {
		return domain.Ticker{}, err
	}
	books, err := c.spotClient.NewListBookTickersService().Symbol(symbol).Do(ctx)
	if err != nil {
		return domain.Ticker{}, c.handleError(ctx, err, op)
	}
	if len(books) == 0 {
		return domain.Ticker{}, fmt.Errorf("%s failed for %s: %w", op, symbol, ports.ErrNoPriceAvailable)
	}

	if err := c.wait(ctx, op); err != nil {
		return domain.Ticker{}, err
	}
	prices, err := c.spotClient.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return domain.Ticker{}, c.handleError(ctx, err, op)
	}
	if len(prices) == 0 {
		return domain.Ticker{}, fmt.Errorf("%s failed for %s: %w", op, symbol, ports.ErrNoPriceAvailable)
	}

	ticker := domain.Ticker{Symbol: symbol, Time: time.Now()}
	if ticker.BidPrice, err = parseDecimal(books[0].BidPrice); err != nil {
		return domain.Ticker{}, c.handleError(ctx, err, op)
	}
	if ticker.AskPrice, err = parseDecimal(books[0].AskPrice); err != nil {
		return domain.Ticker{}, c.handleError(ctx, err, op)
	}
	if ticker.LastPrice, err = parseDecimal(prices[0].Price); err != nil {
		return domain.Ticker{}, c.handleError(ctx, err, op)
	}
	return ticker, nil
}

// CreateOrder places a new spot order.
func (c *Client) CreateOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderQueryResult, error) {
	op := "CreateOrder"
	fields := map[string]interface{}{
		"symbol":        req.Symbol,
		"side":          req.Side,
		"type":          req.Type,
		"quantity":      req.Quantity.String(),
		"clientOrderID": req.ClientOrderID,
	}
	if err := c.wait(ctx, op); err != nil {
		return domain.OrderQueryResult{}, err
	}

	svc := c.spotClient.NewCreateOrderService().
		Symbol(req.Symbol).
		Side(binance.SideType(req.Side)).
		Type(binance.OrderType(req.Type)).
		Quantity(req.Quantity.String())
	if req.Type != domain.OrderTypeMarket {
		svc = svc.Price(req.Price.String())
		fields["price"] = req.Price.String()
	}
	if req.Type == domain.OrderTypeLimit {
		svc = svc.TimeInForce(binance.TimeInForceType(req.TimeInForce))
	}
	if req.ClientOrderID != "" {
		svc = svc.NewClientOrderID(req.ClientOrderID)
	}

	res, err := svc.Do(ctx)
	if err != nil {
		return domain.OrderQueryResult{}, c.handleError(ctx, err, op)
	}

	order, err := translateCreateOrderResponse(res)
	if err != nil {
		return domain.OrderQueryResult{}, c.handleError(ctx, err, op)
	}
	fields["orderID"] = order.OrderID
	fields["status"] = order.Status
	c.logger.Info(ctx, op+" successful", fields)
	return order, nil
}

// CancelOrder cancels an open order and returns its final state.
func (c *Client) CancelOrder(ctx context.Context, symbol string, orderID int64) (domain.OrderQueryResult, error) {
	op := "CancelOrder"
	c.logger.Debug(ctx, "Attempting to cancel order", map[string]interface{}{"symbol": symbol, "orderID": orderID})
	if err := c.wait(ctx, op); err != nil {
		return domain.OrderQueryResult{}, err
	}

	res, err := c.spotClient.NewCancelOrderService().
		Symbol(symbol).
		OrderID(orderID).
		Do(ctx)
	if err != nil {
		return domain.OrderQueryResult{}, c.handleError(ctx, err, op)
	}

	order, err := translateCancelOrderResponse(res)
	if err != nil {
		return domain.OrderQueryResult{}, c.handleError(ctx, err, op)
	}
	c.logger.Info(ctx, op+" successful", map[string]interface{}{"symbol": symbol, "orderID": orderID, "status": order.Status})
	return order, nil
}

// ListOrders pages through the orders of a symbol starting at fromID.
func (c *Client) ListOrders(ctx context.Context, symbol string, fromID int64) ([]domain.OrderQueryResult, error) {
	op := "ListOrders"
	var out []domain.OrderQueryResult
	for {
		if err := c.wait(ctx, op); err != nil {
			return nil, err
		}
		svc := c.spotClient.NewListOrdersService().Symbol(symbol).Limit(pageLimit)
		if fromID > 0 {
			svc = svc.OrderID(fromID)
		}
		page, err := svc.Do(ctx)
		if err != nil {
			return nil, c.handleError(ctx, err, op)
		}
		for _, o := range page {
			order, err := translateOrder(o)
			if err != nil {
				return nil, c.handleError(ctx, err, op)
			}
			out = append(out, order)
		}
		if len(page) < pageLimit {
			return out, nil
		}
		fromID = page[len(page)-1].OrderID + 1
	}
}

// ListTrades pages through the fills of a symbol starting at fromID.
func (c *Client) ListTrades(ctx context.Context, symbol string, fromID int64) ([]domain.Trade, error) {
	op := "ListTrades"
	var out []domain.Trade
	for {
		if err := c.wait(ctx, op); err != nil {
			return nil, err
		}
		page, err := c.spotClient.NewListTradesService().
			Symbol(symbol).
			FromID(fromID).
			Limit(pageLimit).
			Do(ctx)
		if err != nil {
			return nil, c.handleError(ctx, err, op)
		}
		for _, t := range page {
			trade, err := translateTrade(t)
			if err != nil {
				return nil, c.handleError(ctx, err, op)
			}
			out = append(out, trade)
		}
		if len(page) < pageLimit {
			return out, nil
		}
		fromID = page[len(page)-1].ID + 1
	}
}
