package domain

import "github.com/shopspring/decimal"

// EnsureSpotBalanceEvent is the outcome of topping up a spot balance from savings and liquidity pools.
// RedeemedAmount reflects what was actually moved, also when Success is false.
type EnsureSpotBalanceEvent struct {
	Asset          string
	Success        bool
	RedeemedAmount decimal.Decimal
}

// Succeeded reports whether the spot balance reached the target.
func (e EnsureSpotBalanceEvent) Succeeded() bool { return e.Success }

// RedeemSavingsEvent is the outcome of a single savings redemption.
type RedeemSavingsEvent struct {
	Asset          string
	Success        bool
	RedeemedAmount decimal.Decimal
}

// Succeeded reports whether anything was redeemed.
func (e RedeemSavingsEvent) Succeeded() bool { return e.Success }

// RedeemSwapPoolEvent is the outcome of a single liquidity pool redemption.
type RedeemSwapPoolEvent struct {
	Asset          string
	Success        bool
	RedeemedAmount decimal.Decimal
	QuoteAsset     string
	QuoteAmount    decimal.Decimal
}

// Succeeded reports whether anything was redeemed.
func (e RedeemSwapPoolEvent) Succeeded() bool { return e.Success }
