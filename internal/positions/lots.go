package positions

import (
	"fmt"
	"iter"
	"time"

	"github.com/shopspring/decimal"

	"cryptoAlgoBot/internal/domain"
	"cryptoAlgoBot/internal/ports"
)

// Truncation decides what happens to quantity left over when the source runs out mid-lot.
type Truncation int

const (
	// DropPartialLot discards the final incomplete lot.
	DropPartialLot Truncation = iota
	// EmitPartialLot emits the final incomplete lot with its own quantity and average price.
	EmitPartialLot
)

// String returns the configuration name of the policy.
func (t Truncation) String() string {
	switch t {
	case DropPartialLot:
		return "drop"
	case EmitPartialLot:
		return "emit"
	default:
		return "unknown"
	}
}

// ParseTruncation converts a configuration value into a policy. Unknown values select DropPartialLot.
func ParseTruncation(s string) Truncation {
	if s == "emit" {
		return EmitPartialLot
	}
	return DropPartialLot
}

// LotOption configures a LotIterator.
type LotOption func(*LotIterator)

// WithTruncation sets the policy for the final incomplete lot.
func WithTruncation(t Truncation) LotOption {
	return func(it *LotIterator) {
		it.truncation = t
	}
}

// LotIterator re-chunks a position sequence into lots of a fixed size.
// It holds no traversal state, so it may be ranged over repeatedly and concurrently.
type LotIterator struct {
	positions  domain.PositionCollection
	size       decimal.Decimal
	truncation Truncation
}

// NewLotIterator creates an iterator over lots of the given size. A non-positive size is rejected.
func NewLotIterator(positions domain.PositionCollection, size decimal.Decimal, opts ...LotOption) (*LotIterator, error) {
	if !size.IsPositive() {
		return nil, fmt.Errorf("lot size must be positive, got %s: %w", size.String(), ports.ErrInvalidArgument)
	}
	it := &LotIterator{positions: positions, size: size}
	for _, opt := range opts {
		opt(it)
	}
	return it, nil
}

// Size returns the lot size.
func (it *LotIterator) Size() decimal.Decimal {
	return it.size
}

// All yields lots oldest first. A position with non-positive quantity yields an error
// wrapping ports.ErrInvalidHistory and ends the traversal.
func (it *LotIterator) All() iter.Seq2[domain.PositionLot, error] {
	return func(yield func(domain.PositionLot, error) bool) {
		var (
			accumulated = decimal.Zero
			notional    = decimal.Zero
			lastTime    time.Time
		)

		for p := range it.positions.All() {
			if !p.Quantity.IsPositive() {
				yield(domain.PositionLot{}, fmt.Errorf("position of order %d has non-positive quantity %s: %w",
					p.OrderID, p.Quantity.String(), ports.ErrInvalidHistory))
				return
			}

			remaining := p.Quantity
			for remaining.IsPositive() {
				taken := decimal.Min(remaining, it.size.Sub(accumulated))
				accumulated = accumulated.Add(taken)
				notional = notional.Add(taken.Mul(p.Price))
				remaining = remaining.Sub(taken)
				lastTime = p.Time

				if accumulated.Equal(it.size) {
					lot := domain.PositionLot{
						Quantity: it.size,
						AvgPrice: notional.Div(it.size),
						Time:     lastTime,
					}
					if !yield(lot, nil) {
						return
					}
					accumulated = decimal.Zero
					notional = decimal.Zero
				}
			}
		}

		if accumulated.IsPositive() && it.truncation == EmitPartialLot {
			yield(domain.PositionLot{
				Quantity: accumulated,
				AvgPrice: notional.Div(accumulated),
				Time:     lastTime,
			}, nil)
		}
	}
}

// Lots collects one full traversal.
func (it *LotIterator) Lots() ([]domain.PositionLot, error) {
	var lots []domain.PositionLot
	for lot, err := range it.All() {
		if err != nil {
			return nil, err
		}
		lots = append(lots, lot)
	}
	return lots, nil
}
