package profit

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"cryptoAlgoBot/internal/domain"
)

// PerformanceMetrics summarizes the realized results of closed positions.
// Drawdown is measured in quote currency on the cumulative realized profit.
type PerformanceMetrics struct {
	// Basic Metrics
	TotalEvents  int
	Wins         int
	Losses       int
	WinRate      decimal.Decimal
	TotalProfit  decimal.Decimal
	AverageWin   decimal.Decimal
	AverageLoss  decimal.Decimal
	ProfitFactor decimal.Decimal // Gross profit over gross loss, zero without losses
	MaxDrawdown  decimal.Decimal

	// Streaks
	MaxConsecutiveWins   int
	MaxConsecutiveLosses int

	AverageHolding time.Duration // Mean time between the closed buy and the sell
	MonthlyReturns []MonthlyReturn
}

// MonthlyReturn is the realized profit of one calendar month.
type MonthlyReturn struct {
	Month  time.Time
	Return decimal.Decimal
}

// AnalyzePerformance computes metrics from profit events. Buy times are looked up in opened,
// keyed by buy order ID; events without one do not count towards AverageHolding.
func AnalyzePerformance(events []domain.ProfitEvent, opened map[int64]time.Time) PerformanceMetrics {
	metrics := PerformanceMetrics{}
	if len(events) == 0 {
		return metrics
	}

	sorted := make([]domain.ProfitEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Time.Before(sorted[j].Time) })

	var (
		grossWin, grossLoss                decimal.Decimal
		cumulative, peak                   decimal.Decimal
		consecutiveWins, consecutiveLosses int
		holding                            time.Duration
		held                               int
	)
	monthly := make(map[time.Time]decimal.Decimal)

	for _, e := range sorted {
		metrics.TotalEvents++
		if e.Profit.IsPositive() {
			metrics.Wins++
			grossWin = grossWin.Add(e.Profit)
			consecutiveWins++
			consecutiveLosses = 0
		} else {
			metrics.Losses++
			grossLoss = grossLoss.Add(e.Profit.Neg())
			consecutiveLosses++
			consecutiveWins = 0
		}
		metrics.MaxConsecutiveWins = max(metrics.MaxConsecutiveWins, consecutiveWins)
		metrics.MaxConsecutiveLosses = max(metrics.MaxConsecutiveLosses, consecutiveLosses)

		cumulative = cumulative.Add(e.Profit)
		if cumulative.GreaterThan(peak) {
			peak = cumulative
		}
		metrics.MaxDrawdown = decimal.Max(metrics.MaxDrawdown, peak.Sub(cumulative))

		t := e.Time.UTC()
		month := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
		monthly[month] = monthly[month].Add(e.Profit)

		if boughtAt, ok := opened[e.BuyOrderID]; ok && !boughtAt.After(e.Time) {
			holding += e.Time.Sub(boughtAt)
			held++
		}
	}

	metrics.TotalProfit = cumulative
	metrics.WinRate = decimal.NewFromInt(int64(metrics.Wins)).Div(decimal.NewFromInt(int64(metrics.TotalEvents)))
	if metrics.Wins > 0 {
		metrics.AverageWin = grossWin.Div(decimal.NewFromInt(int64(metrics.Wins)))
	}
	if metrics.Losses > 0 {
		metrics.AverageLoss = grossLoss.Neg().Div(decimal.NewFromInt(int64(metrics.Losses)))
	}
	if grossLoss.IsPositive() {
		metrics.ProfitFactor = grossWin.Div(grossLoss)
	}
	if held > 0 {
		metrics.AverageHolding = holding / time.Duration(held)
	}

	metrics.MonthlyReturns = make([]MonthlyReturn, 0, len(monthly))
	for month, profit := range monthly {
		metrics.MonthlyReturns = append(metrics.MonthlyReturns, MonthlyReturn{Month: month, Return: profit})
	}
	sort.Slice(metrics.MonthlyReturns, func(i, j int) bool {
		return metrics.MonthlyReturns[i].Month.Before(metrics.MonthlyReturns[j].Month)
	})
	return metrics
}

// OpenTimes maps buy order IDs to the time of their first fill.
func OpenTimes(trades []domain.Trade) map[int64]time.Time {
	out := make(map[int64]time.Time)
	for _, t := range trades {
		if !t.IsBuyer {
			continue
		}
		if first, ok := out[t.OrderID]; !ok || t.Time.Before(first) {
			out[t.OrderID] = t.Time
		}
	}
	return out
}
