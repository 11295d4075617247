package commands

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"cryptoAlgoBot/internal/domain"
	"cryptoAlgoBot/internal/ports"
)

// Executor runs one kind of command.
type Executor interface {
	Execute(ctx context.Context, actx *AlgoContext, cmd Command) (Result, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, actx *AlgoContext, cmd Command) (Result, error)

func (f ExecutorFunc) Execute(ctx context.Context, actx *AlgoContext, cmd Command) (Result, error) {
	return f(ctx, actx, cmd)
}

// Redeemer moves funds into the spot wallet. *redemption.Orchestrator implements it.
type Redeemer interface {
	EnsureSpotBalance(ctx context.Context, asset string, target decimal.Decimal, allowSavings, allowSwapPool bool) (domain.EnsureSpotBalanceEvent, error)
	RedeemSavings(ctx context.Context, asset string, amount decimal.Decimal) (domain.RedeemSavingsEvent, error)
	RedeemSwapPool(ctx context.Context, asset string, amount decimal.Decimal) (domain.RedeemSwapPoolEvent, error)
	Available(ctx context.Context, asset string, allowSavings, allowSwapPool bool) (decimal.Decimal, error)
}

// Pipeline dispatches commands to the executor registered for their kind.
type Pipeline struct {
	logger ports.Logger

	mu        sync.RWMutex
	executors map[Kind]Executor
}

// NewPipeline creates a pipeline with executors for every built-in command kind.
func NewPipeline(
	logger ports.Logger,
	gateway ports.TradingGateway,
	orders ports.OrderProvider,
	balances ports.BalanceProvider,
	redeemer Redeemer,
) (*Pipeline, error) {
	if logger == nil || gateway == nil || orders == nil || balances == nil || redeemer == nil {
		return nil, fmt.Errorf("missing required dependencies for Pipeline: %w", ports.ErrInvalidArgument)
	}

	p := &Pipeline{
		logger:    logger,
		executors: make(map[Kind]Executor),
	}

	p.Register(KindCreateOrder, &createOrderExecutor{logger: logger, gateway: gateway, orders: orders})
	p.Register(KindCancelOrder, &cancelOrderExecutor{logger: logger, gateway: gateway, orders: orders, balances: balances})
	p.Register(KindCancelOpenOrders, &cancelOpenOrdersExecutor{pipeline: p, orders: orders})
	p.Register(KindEnsureSingleOrder, &ensureSingleOrderExecutor{pipeline: p, logger: logger, orders: orders, redeemer: redeemer})
	p.Register(KindMarketSell, &marketSellExecutor{pipeline: p, logger: logger, balances: balances, redeemer: redeemer})
	p.Register(KindEnsureSpotBalance, ExecutorFunc(func(ctx context.Context, _ *AlgoContext, cmd Command) (Result, error) {
		c, err := as[EnsureSpotBalance](cmd)
		if err != nil {
			return nil, err
		}
		return redeemer.EnsureSpotBalance(ctx, c.Asset, c.Target, c.RedeemSavings, c.RedeemSwapPool)
	}))
	p.Register(KindRedeemSavings, ExecutorFunc(func(ctx context.Context, _ *AlgoContext, cmd Command) (Result, error) {
		c, err := as[RedeemSavings](cmd)
		if err != nil {
			return nil, err
		}
		return redeemer.RedeemSavings(ctx, c.Asset, c.Amount)
	}))
	p.Register(KindRedeemSwapPool, ExecutorFunc(func(ctx context.Context, _ *AlgoContext, cmd Command) (Result, error) {
		c, err := as[RedeemSwapPool](cmd)
		if err != nil {
			return nil, err
		}
		return redeemer.RedeemSwapPool(ctx, c.Asset, c.Amount)
	}))
	p.Register(KindSequence, &sequenceExecutor{pipeline: p})
	p.Register(KindMany, &manyExecutor{pipeline: p})
	p.Register(KindNoop, ExecutorFunc(func(context.Context, *AlgoContext, Command) (Result, error) {
		return Completed{Success: true}, nil
	}))

	return p, nil
}

// Register installs or replaces the executor of a kind.
func (p *Pipeline) Register(kind Kind, executor Executor) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.executors[kind] = executor
}

// Execute runs a command tree.
func (p *Pipeline) Execute(ctx context.Context, actx *AlgoContext, cmd Command) (Result, error) {
	if cmd == nil || actx == nil {
		return nil, fmt.Errorf("execute: nil command or context: %w", ports.ErrInvalidArgument)
	}

	p.mu.RLock()
	executor, ok := p.executors[cmd.Kind()]
	p.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("execute %s: %w", cmd.Kind(), ports.ErrNoExecutor)
	}

	p.logger.Debug(ctx, "Executing command", map[string]interface{}{
		"algo":    actx.Name,
		"symbol":  actx.Symbol.Name,
		"command": string(cmd.Kind()),
	})
	return executor.Execute(ctx, actx, cmd)
}
