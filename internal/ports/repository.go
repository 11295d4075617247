package ports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"cryptoAlgoBot/internal/domain"
)

// OrderProvider keeps the local view of exchange orders.
// Implementations must be safe for concurrent use.
type OrderProvider interface {
	// GetOrdersByFilter returns the orders of a symbol, optionally restricted to a side,
	// to transient (open) orders and to significant (at least partially filled) orders.
	// A nil side or significantOnly means no restriction.
	GetOrdersByFilter(ctx context.Context, symbol string, side *domain.OrderSide, transientOnly bool, significantOnly *bool) ([]domain.OrderQueryResult, error)

	// GetOrders returns all orders of a symbol created at or after since, ordered by ID.
	GetOrders(ctx context.Context, symbol string, since time.Time) ([]domain.OrderQueryResult, error)

	// SetOrder inserts or replaces an order keyed by symbol and order ID.
	SetOrder(ctx context.Context, order domain.OrderQueryResult) error

	// GetLastOrderID returns the highest known order ID of a symbol, zero if none.
	GetLastOrderID(ctx context.Context, symbol string) (int64, error)

	// GetOldestOpenOrderID returns the lowest ID among the transient orders of a symbol, zero if none.
	// Syncing from there refreshes every order that may still change.
	GetOldestOpenOrderID(ctx context.Context, symbol string) (int64, error)
}

// TradeProvider keeps the local ledger of fills.
type TradeProvider interface {
	// SetTrades inserts or replaces trades keyed by symbol and trade ID.
	SetTrades(ctx context.Context, trades []domain.Trade) error

	// GetTrades returns the trades of a symbol executed at or after since, ordered by ID.
	GetTrades(ctx context.Context, symbol string, since time.Time) ([]domain.Trade, error)

	// GetAllTrades returns every known trade ordered by symbol and ID.
	GetAllTrades(ctx context.Context) ([]domain.Trade, error)

	// GetLastTradeID returns the highest known trade ID of a symbol, zero if none.
	GetLastTradeID(ctx context.Context, symbol string) (int64, error)
}

// BalanceProvider keeps the local view of spot balances.
type BalanceProvider interface {
	// TryGetBalance returns the balance of an asset and whether it is known.
	TryGetBalance(ctx context.Context, asset string) (domain.Balance, bool, error)

	// GetBalanceOrZero returns the balance of an asset or a zero balance.
	GetBalanceOrZero(ctx context.Context, asset string) (domain.Balance, error)

	// SetBalances inserts or replaces balances keyed by asset.
	SetBalances(ctx context.Context, balances []domain.Balance) error
}

// SavingsProvider exposes flexible interest products.
type SavingsProvider interface {
	// GetPositionOrZero returns the savings position of an asset or an empty one.
	GetPositionOrZero(ctx context.Context, asset string) (domain.SavingsPosition, error)

	// TryGetQuota returns the remaining redemption quota of a product and whether it is known.
	TryGetQuota(ctx context.Context, asset, productID string, kind domain.SavingsRedemptionType) (domain.SavingsQuota, bool, error)

	// Redeem converts savings back into spot balance.
	Redeem(ctx context.Context, asset, productID string, amount decimal.Decimal, kind domain.SavingsRedemptionType) error
}

// SwapPoolProvider exposes liquidity pool holdings.
type SwapPoolProvider interface {
	// GetBalance returns the pooled holding of an asset.
	GetBalance(ctx context.Context, asset string) (domain.SwapPoolBalance, error)

	// Redeem removes liquidity worth amount of the asset back into spot balance.
	Redeem(ctx context.Context, asset string, amount decimal.Decimal) (domain.SwapPoolRedemption, error)

	// GetSwapPools lists the known pools.
	GetSwapPools(ctx context.Context) ([]domain.SwapPool, error)
}
