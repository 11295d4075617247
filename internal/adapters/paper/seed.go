package paper

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseBalances reads "ASSET:AMOUNT" pairs separated by commas, e.g. "USDT:1000,BTC:0.05".
func ParseBalances(s string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal)
	for _, item := range splitList(s) {
		parts := strings.Split(item, ":")
		if len(parts) != 2 {
			return nil, fmt.Errorf("balance %q: want ASSET:AMOUNT", item)
		}
		amount, err := parseAmount(parts[1])
		if err != nil {
			return nil, fmt.Errorf("balance %q: %w", item, err)
		}
		out[strings.ToUpper(parts[0])] = amount
	}
	return out, nil
}

// ParseSavings reads "ASSET:AMOUNT[:DAILY_QUOTA[:MIN_REDEMPTION]]" entries separated by commas.
// The daily quota defaults to the amount and the minimum redemption to zero.
func ParseSavings(s string) ([]SavingsSeed, error) {
	var out []SavingsSeed
	for _, item := range splitList(s) {
		parts := strings.Split(item, ":")
		if len(parts) < 2 || len(parts) > 4 {
			return nil, fmt.Errorf("savings %q: want ASSET:AMOUNT[:DAILY_QUOTA[:MIN_REDEMPTION]]", item)
		}
		seed := SavingsSeed{Asset: strings.ToUpper(parts[0]), MinRedemption: decimal.Zero}

		var err error
		if seed.Amount, err = parseAmount(parts[1]); err != nil {
			return nil, fmt.Errorf("savings %q: %w", item, err)
		}
		seed.DailyQuota = seed.Amount
		if len(parts) > 2 {
			if seed.DailyQuota, err = parseAmount(parts[2]); err != nil {
				return nil, fmt.Errorf("savings %q: %w", item, err)
			}
		}
		if len(parts) > 3 {
			if seed.MinRedemption, err = parseAmount(parts[3]); err != nil {
				return nil, fmt.Errorf("savings %q: %w", item, err)
			}
		}
		out = append(out, seed)
	}
	return out, nil
}

// ParsePools reads "POOL_ID:ASSET_A/ASSET_B:AMOUNT_A:AMOUNT_B" entries separated by commas.
func ParsePools(s string) ([]PoolSeed, error) {
	var out []PoolSeed
	for _, item := range splitList(s) {
		parts := strings.Split(item, ":")
		if len(parts) != 4 {
			return nil, fmt.Errorf("pool %q: want POOL_ID:ASSET_A/ASSET_B:AMOUNT_A:AMOUNT_B", item)
		}
		id, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("pool %q: invalid id: %w", item, err)
		}
		assets := strings.Split(strings.ToUpper(parts[1]), "/")
		if len(assets) != 2 || assets[0] == "" || assets[1] == "" {
			return nil, fmt.Errorf("pool %q: want two assets separated by '/'", item)
		}

		seed := PoolSeed{PoolID: id, Name: assets[0] + "/" + assets[1], Assets: [2]string{assets[0], assets[1]}}
		for i := 0; i < 2; i++ {
			if seed.Amounts[i], err = parseAmount(parts[2+i]); err != nil {
				return nil, fmt.Errorf("pool %q: %w", item, err)
			}
		}
		out = append(out, seed)
	}
	return out, nil
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("negative amount %q", s)
	}
	return d, nil
}
