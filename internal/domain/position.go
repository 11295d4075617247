package domain

import (
	"iter"
	"time"

	"github.com/shopspring/decimal"
)

// Position is an open (or partially closed) unit of inventory created by a buy fill.
// Positions are never mutated; closing part of one produces a smaller copy.
type Position struct {
	Symbol   string
	OrderID  int64
	Price    decimal.Decimal
	Quantity decimal.Decimal
	Time     time.Time
}

// Cost is the quote value paid for the position.
func (p Position) Cost() decimal.Decimal {
	return p.Price.Mul(p.Quantity)
}

// WithQuantity returns a copy of the position holding the given quantity.
func (p Position) WithQuantity(quantity decimal.Decimal) Position {
	p.Quantity = quantity
	return p
}

// PositionCollection is an immutable, insertion-ordered sequence of positions.
// The oldest position comes first.
type PositionCollection struct {
	items []Position
}

// EmptyPositions is the collection with no positions.
var EmptyPositions = PositionCollection{}

// NewPositionCollection copies the given positions into a new collection.
func NewPositionCollection(positions ...Position) PositionCollection {
	if len(positions) == 0 {
		return EmptyPositions
	}
	items := make([]Position, len(positions))
	copy(items, positions)
	return PositionCollection{items: items}
}

// Len returns the number of positions.
func (c PositionCollection) Len() int {
	return len(c.items)
}

// IsEmpty reports whether the collection has no positions.
func (c PositionCollection) IsEmpty() bool {
	return len(c.items) == 0
}

// First returns the oldest position.
func (c PositionCollection) First() (Position, bool) {
	if len(c.items) == 0 {
		return Position{}, false
	}
	return c.items[0], true
}

// Last returns the newest position.
func (c PositionCollection) Last() (Position, bool) {
	if len(c.items) == 0 {
		return Position{}, false
	}
	return c.items[len(c.items)-1], true
}

// All iterates the positions oldest first.
func (c PositionCollection) All() iter.Seq[Position] {
	return func(yield func(Position) bool) {
		for _, p := range c.items {
			if !yield(p) {
				return
			}
		}
	}
}

// Slice returns a copy of the positions.
func (c PositionCollection) Slice() []Position {
	out := make([]Position, len(c.items))
	copy(out, c.items)
	return out
}

// Quantity is the total open quantity.
func (c PositionCollection) Quantity() decimal.Decimal {
	total := decimal.Zero
	for _, p := range c.items {
		total = total.Add(p.Quantity)
	}
	return total
}

// Cost is the total quote value paid for the open quantity.
func (c PositionCollection) Cost() decimal.Decimal {
	total := decimal.Zero
	for _, p := range c.items {
		total = total.Add(p.Cost())
	}
	return total
}

// AvgPrice is the quantity-weighted average entry price, zero when empty.
func (c PositionCollection) AvgPrice() decimal.Decimal {
	qty := c.Quantity()
	if qty.IsZero() {
		return decimal.Zero
	}
	return c.Cost().Div(qty)
}

// PositionLot is a synthetic unit of exactly one lot size merged from one or more positions.
type PositionLot struct {
	Quantity decimal.Decimal
	AvgPrice decimal.Decimal
	Time     time.Time // Time of the most recent contributing position
}

// ProfitEvent records the realization of a sell against one buy position.
type ProfitEvent struct {
	Symbol      string
	BuyOrderID  int64
	SellOrderID int64
	SellTradeID int64
	Quantity    decimal.Decimal
	BuyPrice    decimal.Decimal
	SellPrice   decimal.Decimal
	Profit      decimal.Decimal
	Time        time.Time
}

// CommissionEvent records a fee charged on a fill.
type CommissionEvent struct {
	Symbol     string
	OrderID    int64
	TradeID    int64
	Asset      string
	Commission decimal.Decimal
	Time       time.Time
}

// AutoPosition is the resolved inventory of one symbol at a point in time.
type AutoPosition struct {
	Symbol           string
	Positions        PositionCollection
	ProfitEvents     []ProfitEvent
	CommissionEvents []CommissionEvent
}

// TotalProfit sums the realized profit of all events.
func (a AutoPosition) TotalProfit() decimal.Decimal {
	total := decimal.Zero
	for _, e := range a.ProfitEvents {
		total = total.Add(e.Profit)
	}
	return total
}
