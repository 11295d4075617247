package binanceclient

import (
	"errors"
	"fmt"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"

	"cryptoAlgoBot/internal/domain"
)

// --- Translation Helpers ---

func parseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("could not parse decimal '%s': %w", s, err)
	}
	return d, nil
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// parseFilters reads the raw exchange filter list. Unknown filter types are ignored.
func parseFilters(raw []map[string]interface{}) (domain.SymbolFilters, error) {
	var out domain.SymbolFilters
	for _, f := range raw {
		kind, _ := f["filterType"].(string)

		var err error
		switch kind {
		case "LOT_SIZE":
			if out.LotSize.MinQuantity, err = filterValue(f, "minQty"); err != nil {
				return out, err
			}
			if out.LotSize.MaxQuantity, err = filterValue(f, "maxQty"); err != nil {
				return out, err
			}
			if out.LotSize.StepSize, err = filterValue(f, "stepSize"); err != nil {
				return out, err
			}
		case "PRICE_FILTER":
			if out.Price.MinPrice, err = filterValue(f, "minPrice"); err != nil {
				return out, err
			}
			if out.Price.MaxPrice, err = filterValue(f, "maxPrice"); err != nil {
				return out, err
			}
			if out.Price.TickSize, err = filterValue(f, "tickSize"); err != nil {
				return out, err
			}
		case "NOTIONAL", "MIN_NOTIONAL":
			if out.MinNotional, err = filterValue(f, "minNotional"); err != nil {
				return out, err
			}
		}
	}
	return out, nil
}

func filterValue(f map[string]interface{}, key string) (decimal.Decimal, error) {
	v, ok := f[key]
	if !ok {
		return decimal.Zero, nil
	}
	switch x := v.(type) {
	case string:
		return parseDecimal(x)
	case float64:
		return decimal.NewFromFloat(x), nil
	default:
		return decimal.Zero, fmt.Errorf("unexpected type %T for filter field %s", v, key)
	}
}

type orderFields struct {
	symbol, clientOrderID                      string
	orderID                                    int64
	price, origQty, executedQty, cumulativeQty string
	status, timeInForce, orderType, side       string
	created, updated                           int64
}

func buildOrder(f orderFields) (domain.OrderQueryResult, error) {
	order := domain.OrderQueryResult{
		Symbol:        f.symbol,
		OrderID:       f.orderID,
		ClientOrderID: f.clientOrderID,
		Status:        domain.OrderStatus(f.status),
		TimeInForce:   domain.TimeInForce(f.timeInForce),
		Type:          domain.OrderType(f.orderType),
		Side:          domain.OrderSide(f.side),
		Time:          fromMillis(f.created),
		UpdateTime:    fromMillis(f.updated),
	}

	var err error
	if order.Price, err = parseDecimal(f.price); err != nil {
		return order, err
	}
	if order.OriginalQuantity, err = parseDecimal(f.origQty); err != nil {
		return order, err
	}
	if order.ExecutedQuantity, err = parseDecimal(f.executedQty); err != nil {
		return order, err
	}
	if order.CummulativeQuoteQuantity, err = parseDecimal(f.cumulativeQty); err != nil {
		return order, err
	}
	return order, nil
}

func translateOrder(o *binance.Order) (domain.OrderQueryResult, error) {
	if o == nil {
		return domain.OrderQueryResult{}, errors.New("received nil order")
	}
	return buildOrder(orderFields{
		symbol:        o.Symbol,
		clientOrderID: o.ClientOrderID,
		orderID:       o.OrderID,
		price:         o.Price,
		origQty:       o.OrigQuantity,
		executedQty:   o.ExecutedQuantity,
		cumulativeQty: o.CummulativeQuoteQuantity,
		status:        string(o.Status),
		timeInForce:   string(o.TimeInForce),
		orderType:     string(o.Type),
		side:          string(o.Side),
		created:       o.Time,
		updated:       o.UpdateTime,
	})
}

func translateCreateOrderResponse(o *binance.CreateOrderResponse) (domain.OrderQueryResult, error) {
	if o == nil {
		return domain.OrderQueryResult{}, errors.New("received nil create order response")
	}
	return buildOrder(orderFields{
		symbol:        o.Symbol,
		clientOrderID: o.ClientOrderID,
		orderID:       o.OrderID,
		price:         o.Price,
		origQty:       o.OrigQuantity,
		executedQty:   o.ExecutedQuantity,
		cumulativeQty: o.CummulativeQuoteQuantity,
		status:        string(o.Status),
		timeInForce:   string(o.TimeInForce),
		orderType:     string(o.Type),
		side:          string(o.Side),
		created:       o.TransactTime,
		updated:       o.TransactTime,
	})
}

// Cancel responses carry no creation time; the stored order keeps its own.
func translateCancelOrderResponse(o *binance.CancelOrderResponse) (domain.OrderQueryResult, error) {
	if o == nil {
		return domain.OrderQueryResult{}, errors.New("received nil cancel order response")
	}
	return buildOrder(orderFields{
		symbol:        o.Symbol,
		clientOrderID: o.OrigClientOrderID,
		orderID:       o.OrderID,
		price:         o.Price,
		origQty:       o.OrigQuantity,
		executedQty:   o.ExecutedQuantity,
		cumulativeQty: o.CummulativeQuoteQuantity,
		status:        string(o.Status),
		timeInForce:   string(o.TimeInForce),
		orderType:     string(o.Type),
		side:          string(o.Side),
		updated:       o.TransactTime,
	})
}

func translateTrade(t *binance.TradeV3) (domain.Trade, error) {
	if t == nil {
		return domain.Trade{}, errors.New("received nil trade")
	}
	trade := domain.Trade{
		Symbol:          t.Symbol,
		ID:              t.ID,
		OrderID:         t.OrderID,
		CommissionAsset: t.CommissionAsset,
		Time:            fromMillis(t.Time),
		IsBuyer:         t.IsBuyer,
		IsMaker:         t.IsMaker,
	}

	var err error
	if trade.Price, err = parseDecimal(t.Price); err != nil {
		return trade, err
	}
	if trade.Quantity, err = parseDecimal(t.Quantity); err != nil {
		return trade, err
	}
	if trade.QuoteQuantity, err = parseDecimal(t.QuoteQuantity); err != nil {
		return trade, err
	}
	if trade.Commission, err = parseDecimal(t.Commission); err != nil {
		return trade, err
	}
	return trade, nil
}
