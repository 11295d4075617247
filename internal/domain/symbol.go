package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// LotSizeFilter bounds the order quantity.
type LotSizeFilter struct {
	MinQuantity decimal.Decimal
	MaxQuantity decimal.Decimal
	StepSize    decimal.Decimal
}

// PriceFilter bounds the order price.
type PriceFilter struct {
	MinPrice decimal.Decimal
	MaxPrice decimal.Decimal
	TickSize decimal.Decimal
}

// SymbolFilters groups the trading rules of a symbol.
type SymbolFilters struct {
	LotSize     LotSizeFilter
	Price       PriceFilter
	MinNotional decimal.Decimal
}

// Symbol is the exchange metadata of a tradable pair.
type Symbol struct {
	Name       string
	Status     string
	BaseAsset  string
	QuoteAsset string
	Filters    SymbolFilters
}

// AdjustQuantity rounds the quantity down to the lot step size.
func (s Symbol) AdjustQuantity(quantity decimal.Decimal) decimal.Decimal {
	return floorToStep(quantity, s.Filters.LotSize.StepSize)
}

// AdjustPrice rounds the price down to the tick size.
func (s Symbol) AdjustPrice(price decimal.Decimal) decimal.Decimal {
	return floorToStep(price, s.Filters.Price.TickSize)
}

// MeetsMinimums reports whether an order of the given quantity at the given price passes
// the minimum quantity and minimum notional filters.
func (s Symbol) MeetsMinimums(quantity, price decimal.Decimal) bool {
	if quantity.LessThan(s.Filters.LotSize.MinQuantity) || !quantity.IsPositive() {
		return false
	}
	return quantity.Mul(price).GreaterThanOrEqual(s.Filters.MinNotional)
}

func floorToStep(value, step decimal.Decimal) decimal.Decimal {
	if !step.IsPositive() {
		return value
	}
	return value.Div(step).Floor().Mul(step)
}

// Ticker is the current top of book and last price of a symbol.
type Ticker struct {
	Symbol    string
	BidPrice  decimal.Decimal
	AskPrice  decimal.Decimal
	LastPrice decimal.Decimal
	Time      time.Time
}
