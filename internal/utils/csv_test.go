package utils

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptoAlgoBot/internal/domain"
	"cryptoAlgoBot/internal/profit"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestWriteProfitReport(t *testing.T) {
	rows := []ProfitRow{
		{Profit: domain.Profit{Symbol: "ETHUSDT", Today: d("1.5"), ThisWeek: d("1.5"), ThisMonth: d("3"), ThisYear: d("3")}},
		{
			Profit: domain.Profit{Symbol: "BTCUSDT", Yesterday: d("2"), ThisMonth: d("2"), ThisYear: d("2")},
			Open: domain.NewPositionCollection(
				domain.Position{Symbol: "BTCUSDT", OrderID: 1, Price: d("50000"), Quantity: d("0.002")},
				domain.Position{Symbol: "BTCUSDT", OrderID: 2, Price: d("48000"), Quantity: d("0.002")},
			),
			Performance: profit.PerformanceMetrics{TotalEvents: 3, WinRate: d("0.5"), MaxDrawdown: d("1.2")},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteProfitReport(&buf, rows))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, profitHeader, records[0])
	assert.Equal(t, []string{"BTCUSDT", "0", "2", "0", "2", "2", "2", "0.004", "196", "49000", "3", "0.5", "1.2"}, records[1])
	assert.Equal(t, []string{"ETHUSDT", "1.5", "0", "1.5", "3", "3", "0", "0", "0", "0", "0", "0", "0"}, records[2])

	// Input order is left untouched.
	assert.Equal(t, "ETHUSDT", rows[0].Profit.Symbol)
}

func TestWriteProfitReportToCSV(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "profit.csv")
	require.NoError(t, WriteProfitReportToCSV(nil, filename))

	content, err := os.ReadFile(filename)
	require.NoError(t, err)
	assert.Equal(t, "symbol,today,yesterday,this_week,this_month,this_year,open_positions,open_quantity,open_cost,avg_price,closed,win_rate,max_drawdown\n", string(content))

	assert.Error(t, WriteProfitReportToCSV(nil, filepath.Join(t.TempDir(), "missing", "profit.csv")))
}
