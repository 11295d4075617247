// Package profit buckets realized profit of a trade ledger into calendar windows.
package profit

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"cryptoAlgoBot/internal/domain"
	"cryptoAlgoBot/internal/positions"
)

// Clock provides the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time {
	return time.Now()
}

// Calculator computes profit buckets relative to the time of its clock.
type Calculator struct {
	clock Clock
}

// NewCalculator creates a Calculator. A nil clock selects SystemClock.
func NewCalculator(clock Clock) *Calculator {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Calculator{clock: clock}
}

// Calculate returns the realized profit of all symbols in the ledger summed together.
func (c *Calculator) Calculate(trades []domain.Trade) (domain.Profit, error) {
	bySymbol, err := c.calculate(c.clock.Now(), trades)
	if err != nil {
		return domain.Profit{}, err
	}

	total := zeroProfit("")
	for _, p := range bySymbol {
		total = total.Add(p)
	}
	return total, nil
}

// CalculateBySymbol returns the realized profit of each symbol in the ledger.
func (c *Calculator) CalculateBySymbol(trades []domain.Trade) (map[string]domain.Profit, error) {
	return c.calculate(c.clock.Now(), trades)
}

func (c *Calculator) calculate(now time.Time, trades []domain.Trade) (map[string]domain.Profit, error) {
	w := newWindows(now)

	ordered := make([]domain.Trade, len(trades))
	copy(ordered, trades)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	grouped := make(map[string][]domain.Trade)
	for _, t := range ordered {
		grouped[t.Symbol] = append(grouped[t.Symbol], t)
	}

	result := make(map[string]domain.Profit, len(grouped))
	for symbol, fills := range grouped {
		auto, err := positions.Resolve(symbol, nil, fills, time.Time{})
		if err != nil {
			return nil, fmt.Errorf("calculate profit of %s: %w", symbol, err)
		}

		p := zeroProfit(symbol)
		for _, e := range auto.ProfitEvents {
			p = w.add(p, e.Time, e.Profit)
		}
		result[symbol] = p
	}
	return result, nil
}

// windows holds the start of each bucket in the location of the captured now.
type windows struct {
	loc       *time.Location
	today     time.Time
	yesterday time.Time
	week      time.Time
	month     time.Time
	year      time.Time
}

func newWindows(now time.Time) windows {
	loc := now.Location()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	return windows{
		loc:       loc,
		today:     today,
		yesterday: today.AddDate(0, 0, -1),
		week:      today.AddDate(0, 0, -int(today.Weekday())),
		month:     time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc),
		year:      time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, loc),
	}
}

// add credits amount to every bucket containing at. Buckets overlap.
func (w windows) add(p domain.Profit, at time.Time, amount decimal.Decimal) domain.Profit {
	at = at.In(w.loc)
	if !at.Before(w.today) {
		p.Today = p.Today.Add(amount)
	}
	if !at.Before(w.yesterday) && at.Before(w.today) {
		p.Yesterday = p.Yesterday.Add(amount)
	}
	if !at.Before(w.week) {
		p.ThisWeek = p.ThisWeek.Add(amount)
	}
	if !at.Before(w.month) {
		p.ThisMonth = p.ThisMonth.Add(amount)
	}
	if !at.Before(w.year) {
		p.ThisYear = p.ThisYear.Add(amount)
	}
	return p
}

func zeroProfit(symbol string) domain.Profit {
	return domain.Profit{
		Symbol:    symbol,
		Today:     decimal.Zero,
		Yesterday: decimal.Zero,
		ThisWeek:  decimal.Zero,
		ThisMonth: decimal.Zero,
		ThisYear:  decimal.Zero,
	}
}
