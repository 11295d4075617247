// Package commands defines the instructions an algorithm returns each tick and the
// pipeline that executes them against the exchange and the local providers.
package commands

import (
	"github.com/shopspring/decimal"

	"cryptoAlgoBot/internal/domain"
)

// Kind identifies a command type in the executor table.
type Kind string

const (
	KindCreateOrder       Kind = "CreateOrder"
	KindCancelOrder       Kind = "CancelOrder"
	KindCancelOpenOrders  Kind = "CancelOpenOrders"
	KindEnsureSingleOrder Kind = "EnsureSingleOrder"
	KindMarketSell        Kind = "MarketSell"
	KindEnsureSpotBalance Kind = "EnsureSpotBalance"
	KindRedeemSavings     Kind = "RedeemSavings"
	KindRedeemSwapPool    Kind = "RedeemSwapPool"
	KindSequence          Kind = "Sequence"
	KindMany              Kind = "Many"
	KindNoop              Kind = "Noop"
)

// Command is an immutable instruction. Building one has no side effects.
type Command interface {
	Kind() Kind
}

// CreateOrder places one order as given.
type CreateOrder struct {
	Symbol      string
	Side        domain.OrderSide
	Type        domain.OrderType
	TimeInForce domain.TimeInForce
	Quantity    decimal.Decimal
	Price       decimal.Decimal
}

func (CreateOrder) Kind() Kind { return KindCreateOrder }

// CancelOrder cancels one order by ID.
type CancelOrder struct {
	Symbol  string
	OrderID int64
}

func (CancelOrder) Kind() Kind { return KindCancelOrder }

// CancelOpenOrders cancels the open orders of a symbol.
// Side restricts the cancellation to one side when set. A positive MinDistance keeps
// orders priced within that fraction of the last price.
type CancelOpenOrders struct {
	Symbol      string
	Side        *domain.OrderSide
	MinDistance decimal.Decimal
}

func (CancelOpenOrders) Kind() Kind { return KindCancelOpenOrders }

// EnsureSingleOrder keeps exactly one open order with the given parameters on one side of a
// symbol. Mismatching open orders are cancelled and the spot balance needed for the order is
// redeemed first when allowed.
type EnsureSingleOrder struct {
	Symbol         string
	Side           domain.OrderSide
	Type           domain.OrderType
	TimeInForce    domain.TimeInForce
	Quantity       decimal.Decimal
	Price          decimal.Decimal
	RedeemSavings  bool
	RedeemSwapPool bool
}

func (EnsureSingleOrder) Kind() Kind { return KindEnsureSingleOrder }

// MarketSell sells a base quantity at market, redeeming the base asset from savings or
// liquidity pools over subsequent ticks when the spot balance is short.
type MarketSell struct {
	Symbol         string
	Quantity       decimal.Decimal
	RedeemSavings  bool
	RedeemSwapPool bool
}

func (MarketSell) Kind() Kind { return KindMarketSell }

// EnsureSpotBalance tops up the free spot balance of an asset to Target.
type EnsureSpotBalance struct {
	Asset          string
	Target         decimal.Decimal
	RedeemSavings  bool
	RedeemSwapPool bool
}

func (EnsureSpotBalance) Kind() Kind { return KindEnsureSpotBalance }

// RedeemSavings redeems up to Amount of an asset from flexible savings.
type RedeemSavings struct {
	Asset  string
	Amount decimal.Decimal
}

func (RedeemSavings) Kind() Kind { return KindRedeemSavings }

// RedeemSwapPool removes up to Amount of an asset from liquidity pools.
type RedeemSwapPool struct {
	Asset  string
	Amount decimal.Decimal
}

func (RedeemSwapPool) Kind() Kind { return KindRedeemSwapPool }

// Sequence runs its commands one after another. The first error stops the sequence;
// steps already executed are not undone.
type Sequence struct {
	Commands []Command
}

func (Sequence) Kind() Kind { return KindSequence }

// Many runs its commands concurrently. Use it only for commands that touch unrelated state.
type Many struct {
	Commands []Command
}

func (Many) Kind() Kind { return KindMany }

// Noop does nothing.
type Noop struct{}

func (Noop) Kind() Kind { return KindNoop }

// Seq builds a Sequence.
func Seq(cmds ...Command) Sequence {
	return Sequence{Commands: cmds}
}

// All builds a Many.
func All(cmds ...Command) Many {
	return Many{Commands: cmds}
}
