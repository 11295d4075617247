package commands

import (
	"github.com/shopspring/decimal"

	"cryptoAlgoBot/internal/domain"
)

// AlgoContext is the read-only snapshot an algorithm decides on for one symbol and tick.
// Balances are taken at the start of the tick; executors that need current values read the
// providers instead.
type AlgoContext struct {
	Name         string
	Symbol       domain.Symbol
	Ticker       domain.Ticker
	AutoPosition domain.AutoPosition

	BaseBalance  domain.Balance
	QuoteBalance domain.Balance

	BaseSavings  domain.SavingsPosition
	QuoteSavings domain.SavingsPosition

	BaseSwapPool  domain.SwapPoolBalance
	QuoteSwapPool domain.SwapPoolBalance
}

// ReferencePrice is the price an order on the given side would trade at right now:
// the bid for sells and the ask for buys, falling back to the last price.
func (c *AlgoContext) ReferencePrice(side domain.OrderSide) decimal.Decimal {
	price := c.Ticker.AskPrice
	if side == domain.Sell {
		price = c.Ticker.BidPrice
	}
	if price.IsPositive() {
		return price
	}
	return c.Ticker.LastPrice
}
