package commands

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

type sequenceExecutor struct {
	pipeline *Pipeline
}

// Execute runs the steps in order. A step that fails with an error stops the sequence;
// a step that merely reports failure does not, but the sequence then reports failure too.
func (e *sequenceExecutor) Execute(ctx context.Context, actx *AlgoContext, cmd Command) (Result, error) {
	c, err := as[Sequence](cmd)
	if err != nil {
		return nil, err
	}

	result := CompositeResult{Success: true, Results: make([]Result, 0, len(c.Commands))}
	for i, step := range c.Commands {
		if err := ctx.Err(); err != nil {
			result.Success = false
			return result, err
		}

		res, err := e.pipeline.Execute(ctx, actx, step)
		if res != nil {
			result.Results = append(result.Results, res)
			result.Success = result.Success && res.Succeeded()
		}
		if err != nil {
			result.Success = false
			return result, fmt.Errorf("sequence step %d (%s): %w", i, kindOf(step), err)
		}
	}
	return result, nil
}

type manyExecutor struct {
	pipeline *Pipeline
}

// Execute runs all commands concurrently and waits for every one of them.
// The first error is returned; the other commands still run to completion.
func (e *manyExecutor) Execute(ctx context.Context, actx *AlgoContext, cmd Command) (Result, error) {
	c, err := as[Many](cmd)
	if err != nil {
		return nil, err
	}

	results := make([]Result, len(c.Commands))
	var g errgroup.Group
	for i, child := range c.Commands {
		g.Go(func() error {
			res, err := e.pipeline.Execute(ctx, actx, child)
			results[i] = res
			if err != nil {
				return fmt.Errorf("many command %d (%s): %w", i, kindOf(child), err)
			}
			return nil
		})
	}
	err = g.Wait()

	result := CompositeResult{Success: err == nil, Results: make([]Result, 0, len(results))}
	for _, res := range results {
		if res == nil {
			continue
		}
		result.Results = append(result.Results, res)
		result.Success = result.Success && res.Succeeded()
	}
	return result, err
}

func kindOf(cmd Command) Kind {
	if cmd == nil {
		return "nil"
	}
	return cmd.Kind()
}
