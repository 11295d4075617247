package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Balance is the spot wallet balance of one asset.
type Balance struct {
	Asset       string
	Free        decimal.Decimal
	Locked      decimal.Decimal
	UpdatedTime time.Time
}

// Total is free plus locked.
func (b Balance) Total() decimal.Decimal {
	return b.Free.Add(b.Locked)
}

// SavingsPosition is the holding of an asset in a flexible interest product.
type SavingsPosition struct {
	Asset           string
	ProductID       string
	FreeAmount      decimal.Decimal // Amount that can be redeemed
	RedeemingAmount decimal.Decimal // Amount with a redemption in flight
	CanRedeem       bool            // False during product blackout windows
}

// SavingsQuota is the remaining daily redemption allowance of a product.
type SavingsQuota struct {
	Asset               string
	LeftQuota           decimal.Decimal
	MinRedemptionAmount decimal.Decimal
}

// SwapPool describes a liquidity pool.
type SwapPool struct {
	PoolID   int64
	PoolName string
	Assets   []string
}

// SwapPoolBalance is the share of an asset the account holds across liquidity pools.
type SwapPoolBalance struct {
	Asset string
	Total decimal.Decimal
}

// SwapPoolRedemption is the outcome of removing liquidity from a pool.
type SwapPoolRedemption struct {
	Success     bool
	PoolID      int64
	QuoteAsset  string
	QuoteAmount decimal.Decimal
}
