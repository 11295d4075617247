package commands

import "cryptoAlgoBot/internal/domain"

// Result is the structured outcome of a command. A failed result is a business outcome
// such as insufficient funds; infrastructure failures are returned as errors instead.
type Result interface {
	Succeeded() bool
}

// Completed is the result of commands without a payload.
type Completed struct {
	Success bool
}

func (r Completed) Succeeded() bool { return r.Success }

// OrderResult carries the exchange view of a placed, kept or cancelled order.
// Placed is false when an existing order already satisfied the command.
type OrderResult struct {
	Success bool
	Placed  bool
	Order   domain.OrderQueryResult
	Reason  string
}

func (r OrderResult) Succeeded() bool { return r.Success }

// MarketSellResult reports a market sell. Deferred means a redemption was issued instead of
// the order and the sell should be retried on a later tick.
type MarketSellResult struct {
	Success    bool
	Deferred   bool
	Order      domain.OrderQueryResult
	Redemption Result
	Reason     string
}

func (r MarketSellResult) Succeeded() bool { return r.Success }

// CompositeResult collects the results of a Sequence, Many or multi-cancel in command order.
// It succeeds only when every child succeeded.
type CompositeResult struct {
	Success bool
	Results []Result
}

func (r CompositeResult) Succeeded() bool { return r.Success }

type (
	EnsureSpotBalanceEvent = domain.EnsureSpotBalanceEvent
	RedeemSavingsEvent     = domain.RedeemSavingsEvent
	RedeemSwapPoolEvent    = domain.RedeemSwapPoolEvent
)
