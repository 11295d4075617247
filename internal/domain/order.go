package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderRequest carries the parameters of a new exchange order.
type OrderRequest struct {
	Symbol        string
	Side          OrderSide
	Type          OrderType
	TimeInForce   TimeInForce     // Ignored for market orders
	Quantity      decimal.Decimal // Base asset quantity
	Price         decimal.Decimal // Zero for market orders
	ClientOrderID string
}

// OrderQueryResult is the local view of an exchange order.
type OrderQueryResult struct {
	Symbol                   string
	OrderID                  int64
	ClientOrderID            string
	Price                    decimal.Decimal
	OriginalQuantity         decimal.Decimal
	ExecutedQuantity         decimal.Decimal
	CummulativeQuoteQuantity decimal.Decimal
	Status                   OrderStatus
	TimeInForce              TimeInForce
	Type                     OrderType
	Side                     OrderSide
	Time                     time.Time
	UpdateTime               time.Time
}

// IsTransient reports whether the order is still open on the book.
func (o OrderQueryResult) IsTransient() bool {
	return o.Status.IsTransient()
}

// IsSignificant reports whether the order has affected the inventory, i.e. it was at least partially filled.
func (o OrderQueryResult) IsSignificant() bool {
	return o.ExecutedQuantity.IsPositive()
}

// RemainingQuantity is the part of the order still waiting on the book.
func (o OrderQueryResult) RemainingQuantity() decimal.Decimal {
	return o.OriginalQuantity.Sub(o.ExecutedQuantity)
}
