package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade represents a single exchange fill of an order.
type Trade struct {
	Symbol          string          // Trading symbol (e.g., "BTCUSDT")
	ID              int64           // Exchange-assigned, monotonically increasing per symbol
	OrderID         int64           // Order that produced the fill
	Price           decimal.Decimal // Fill price
	Quantity        decimal.Decimal // Base asset quantity filled
	QuoteQuantity   decimal.Decimal // Quote asset amount of the fill
	Commission      decimal.Decimal // Fee charged for the fill
	CommissionAsset string          // Asset the fee was charged in
	Time            time.Time       // Fill time
	IsBuyer         bool            // Whether the account was the buyer
	IsMaker         bool            // Whether the fill was on the maker side
}

// Side returns the fill side from the account's perspective.
func (t Trade) Side() OrderSide {
	if t.IsBuyer {
		return Buy
	}
	return Sell
}
