package domain

import "github.com/shopspring/decimal"

// Profit holds realized profit bucketed into overlapping calendar windows.
// A trade realized today counts in Today, ThisWeek, ThisMonth and ThisYear at once.
type Profit struct {
	Symbol    string
	Today     decimal.Decimal
	Yesterday decimal.Decimal
	ThisWeek  decimal.Decimal
	ThisMonth decimal.Decimal
	ThisYear  decimal.Decimal
}

// Add returns the bucket-wise sum of two profits. The symbol of p is kept.
func (p Profit) Add(other Profit) Profit {
	return Profit{
		Symbol:    p.Symbol,
		Today:     p.Today.Add(other.Today),
		Yesterday: p.Yesterday.Add(other.Yesterday),
		ThisWeek:  p.ThisWeek.Add(other.ThisWeek),
		ThisMonth: p.ThisMonth.Add(other.ThisMonth),
		ThisYear:  p.ThisYear.Add(other.ThisYear),
	}
}
