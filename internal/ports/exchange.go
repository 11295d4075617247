package ports

import (
	"context"

	"cryptoAlgoBot/internal/domain"
)

// TradingGateway defines the exchange-facing actions the command executors perform.
// Implementations own signing, rate limiting and timeouts.
type TradingGateway interface {
	// CreateOrder places a new order and returns the exchange's view of it.
	CreateOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderQueryResult, error)

	// CancelOrder cancels an open order by its ID and returns the order's final state.
	CancelOrder(ctx context.Context, symbol string, orderID int64) (domain.OrderQueryResult, error)

	// GetSymbolPriceTicker retrieves the current top of book and last price for a symbol.
	GetSymbolPriceTicker(ctx context.Context, symbol string) (domain.Ticker, error)
}

// AccountSource defines the read side of the exchange used by the tick driver to keep
// the local providers in sync.
type AccountSource interface {
	// Ping checks the connectivity to the exchange API.
	Ping(ctx context.Context) error

	// SetServerTime synchronizes the client's time with the server's time.
	SetServerTime(ctx context.Context) error

	// GetSymbols retrieves trading rules for the given symbols.
	GetSymbols(ctx context.Context, symbols ...string) ([]domain.Symbol, error)

	// GetBalances retrieves all non-empty spot balances.
	GetBalances(ctx context.Context) ([]domain.Balance, error)

	// ListOrders retrieves orders of a symbol with an ID greater than or equal to fromID.
	ListOrders(ctx context.Context, symbol string, fromID int64) ([]domain.OrderQueryResult, error)

	// ListTrades retrieves fills of a symbol with an ID greater than or equal to fromID.
	ListTrades(ctx context.Context, symbol string, fromID int64) ([]domain.Trade, error)
}

// Exchange is a full exchange adapter.
type Exchange interface {
	TradingGateway
	AccountSource
}
