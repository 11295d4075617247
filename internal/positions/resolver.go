// Package positions turns a fill history into FIFO-matched open positions and realized profit,
// and re-chunks open positions into fixed-size lots.
package positions

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"cryptoAlgoBot/internal/domain"
	"cryptoAlgoBot/internal/ports"
)

// Resolve replays the fills of a symbol in exchange ID order and returns its open positions
// together with the realized profit and commission events.
//
// Orders and trades before startTime are ignored. Each buy fill opens a position; each sell
// fill closes the oldest open positions first. A sell that exceeds the open quantity, or any
// negative quantity, means the history is corrupted and is reported as ports.ErrInvalidHistory.
func Resolve(symbol string, orders []domain.OrderQueryResult, trades []domain.Trade, startTime time.Time) (domain.AutoPosition, error) {
	sides := make(map[int64]domain.OrderSide, len(orders))
	for _, o := range orders {
		if o.Symbol != symbol || o.Time.Before(startTime) {
			continue
		}
		sides[o.OrderID] = o.Side
	}

	fills := make([]domain.Trade, 0, len(trades))
	for _, t := range trades {
		if t.Symbol != symbol || t.Time.Before(startTime) {
			continue
		}
		fills = append(fills, t)
	}
	sort.SliceStable(fills, func(i, j int) bool { return fills[i].ID < fills[j].ID })

	var (
		open        []domain.Position
		profits     []domain.ProfitEvent
		commissions []domain.CommissionEvent
	)

	for _, fill := range fills {
		if fill.Quantity.IsNegative() || fill.Price.IsNegative() {
			return domain.AutoPosition{}, fmt.Errorf("trade %d of %s has negative quantity or price: %w", fill.ID, symbol, ports.ErrInvalidHistory)
		}

		if !fill.Commission.IsZero() {
			commissions = append(commissions, domain.CommissionEvent{
				Symbol:     symbol,
				OrderID:    fill.OrderID,
				TradeID:    fill.ID,
				Asset:      fill.CommissionAsset,
				Commission: fill.Commission,
				Time:       fill.Time,
			})
		}

		side, ok := sides[fill.OrderID]
		if !ok {
			side = fill.Side()
		}

		if side == domain.Buy {
			if fill.Quantity.IsZero() {
				continue
			}
			open = append(open, domain.Position{
				Symbol:   symbol,
				OrderID:  fill.OrderID,
				Price:    fill.Price,
				Quantity: fill.Quantity,
				Time:     fill.Time,
			})
			continue
		}

		var events []domain.ProfitEvent
		var err error
		open, events, err = closeFIFO(open, fill)
		if err != nil {
			return domain.AutoPosition{}, err
		}
		profits = append(profits, events...)
	}

	remaining := make([]domain.Position, 0, len(open))
	for _, p := range open {
		if p.Quantity.IsPositive() {
			remaining = append(remaining, p)
		}
	}

	return domain.AutoPosition{
		Symbol:           symbol,
		Positions:        domain.NewPositionCollection(remaining...),
		ProfitEvents:     profits,
		CommissionEvents: commissions,
	}, nil
}

// closeFIFO matches a sell fill against the oldest open positions.
// Closed positions are replaced by smaller copies; the input slice is not modified.
func closeFIFO(open []domain.Position, sell domain.Trade) ([]domain.Position, []domain.ProfitEvent, error) {
	remaining := sell.Quantity
	out := make([]domain.Position, 0, len(open))
	var events []domain.ProfitEvent

	for _, p := range open {
		if !remaining.IsPositive() || !p.Quantity.IsPositive() {
			out = append(out, p)
			continue
		}

		taken := decimal.Min(remaining, p.Quantity)
		events = append(events, domain.ProfitEvent{
			Symbol:      sell.Symbol,
			BuyOrderID:  p.OrderID,
			SellOrderID: sell.OrderID,
			SellTradeID: sell.ID,
			Quantity:    taken,
			BuyPrice:    p.Price,
			SellPrice:   sell.Price,
			Profit:      sell.Price.Sub(p.Price).Mul(taken),
			Time:        sell.Time,
		})

		remaining = remaining.Sub(taken)
		if left := p.Quantity.Sub(taken); left.IsPositive() {
			out = append(out, p.WithQuantity(left))
		}
	}

	if remaining.IsPositive() {
		return nil, nil, fmt.Errorf("sell trade %d of %s exceeds open quantity by %s: %w",
			sell.ID, sell.Symbol, remaining.String(), ports.ErrInvalidHistory)
	}
	return out, events, nil
}
