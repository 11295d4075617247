package utils

import (
	"encoding/csv"
	"io"
	"os"
	"sort"
	"strconv"

	"cryptoAlgoBot/internal/domain"
	"cryptoAlgoBot/internal/profit"
)

// ProfitRow is one symbol of a profit report: realized profit, the inventory still open
// and the statistics of closed positions.
type ProfitRow struct {
	Profit      domain.Profit
	Open        domain.PositionCollection
	Performance profit.PerformanceMetrics
}

var profitHeader = []string{
	"symbol", "today", "yesterday", "this_week", "this_month", "this_year",
	"open_positions", "open_quantity", "open_cost", "avg_price",
	"closed", "win_rate", "max_drawdown",
}

// WriteProfitReportToCSV writes the rows sorted by symbol to filename.
func WriteProfitReportToCSV(rows []ProfitRow, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return WriteProfitReport(file, rows)
}

// WriteProfitReport writes the rows sorted by symbol as CSV.
func WriteProfitReport(w io.Writer, rows []ProfitRow) error {
	sorted := make([]ProfitRow, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Profit.Symbol < sorted[j].Profit.Symbol })

	writer := csv.NewWriter(w)
	if err := writer.Write(profitHeader); err != nil {
		return err
	}

	for _, r := range sorted {
		p := r.Profit
		err := writer.Write([]string{
			p.Symbol,
			p.Today.String(),
			p.Yesterday.String(),
			p.ThisWeek.String(),
			p.ThisMonth.String(),
			p.ThisYear.String(),
			strconv.Itoa(r.Open.Len()),
			r.Open.Quantity().String(),
			r.Open.Cost().String(),
			r.Open.AvgPrice().String(),
			strconv.Itoa(r.Performance.TotalEvents),
			r.Performance.WinRate.String(),
			r.Performance.MaxDrawdown.String(),
		})
		if err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

