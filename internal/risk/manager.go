package risk

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"cryptoAlgoBot/internal/domain"
)

// ErrLimitExceeded is returned when a buy would break a configured limit.
var ErrLimitExceeded = errors.New("risk limit exceeded")

// RiskConfig holds configuration for risk management
type RiskConfig struct {
	LotNotional      decimal.Decimal // Quote value spent per buy
	MaxPositionValue decimal.Decimal // Cap on the cost of the open inventory, zero disables
	MaxDailyLoss     decimal.Decimal // Realized loss per day that stops new buys, zero disables
}

// RiskStats holds risk management statistics of the last evaluation
type RiskStats struct {
	Exposure      decimal.Decimal
	DailyProfit   decimal.Decimal
	OpenPositions int
	EvaluatedAt   time.Time
}

// RiskManager sizes and validates spot buys against the resolved inventory of a symbol.
type RiskManager struct {
	config RiskConfig
	mu     sync.Mutex
	stats  RiskStats
}

// NewRiskManager creates a new risk manager instance
func NewRiskManager(config RiskConfig) (*RiskManager, error) {
	if !config.LotNotional.IsPositive() {
		return nil, fmt.Errorf("lot notional must be positive, got %s", config.LotNotional)
	}
	if config.MaxPositionValue.IsNegative() || config.MaxDailyLoss.IsNegative() {
		return nil, errors.New("risk limits cannot be negative")
	}
	return &RiskManager{config: config}, nil
}

// PositionSize returns the base quantity to buy at price: one lot notional, capped by the
// free quote balance. The caller rounds it to the symbol's step size.
func (r *RiskManager) PositionSize(ctx context.Context, quoteFree, price decimal.Decimal) decimal.Decimal {
	if !price.IsPositive() || !quoteFree.IsPositive() {
		return decimal.Zero
	}
	return decimal.Min(r.config.LotNotional, quoteFree).Div(price)
}

// ValidateBuy checks a buy of quantity at price against the open inventory and today's
// realized result. It also refreshes the statistics.
func (r *RiskManager) ValidateBuy(ctx context.Context, auto domain.AutoPosition, price, quantity decimal.Decimal, now time.Time) error {
	stats := r.evaluate(auto, now)

	if r.config.MaxDailyLoss.IsPositive() && stats.DailyProfit.LessThanOrEqual(r.config.MaxDailyLoss.Neg()) {
		return fmt.Errorf("daily profit %s at or below -%s: %w", stats.DailyProfit, r.config.MaxDailyLoss, ErrLimitExceeded)
	}

	if r.config.MaxPositionValue.IsPositive() {
		next := stats.Exposure.Add(price.Mul(quantity))
		if next.GreaterThan(r.config.MaxPositionValue) {
			return fmt.Errorf("position value %s would exceed maximum %s: %w", next, r.config.MaxPositionValue, ErrLimitExceeded)
		}
	}
	return nil
}

// evaluate recomputes the statistics from the resolved inventory.
func (r *RiskManager) evaluate(auto domain.AutoPosition, now time.Time) RiskStats {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	daily := decimal.Zero
	for _, e := range auto.ProfitEvents {
		if !e.Time.Before(midnight) {
			daily = daily.Add(e.Profit)
		}
	}

	stats := RiskStats{
		Exposure:      auto.Positions.Cost(),
		DailyProfit:   daily,
		OpenPositions: auto.Positions.Len(),
		EvaluatedAt:   now,
	}

	r.mu.Lock()
	r.stats = stats
	r.mu.Unlock()
	return stats
}

// GetStats returns the statistics of the last evaluation
func (r *RiskManager) GetStats() RiskStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}
