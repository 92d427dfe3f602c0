// File: internal/engine/engine.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/ringsim/internal/config"
)

// -- Interfaces for Dependency Inversion --

// Recorder persists finished runs. The Postgres store and the file exporter both satisfy it.
type Recorder interface {
	Record(ctx context.Context, result *RunResult) error
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(ctx context.Context, result *RunResult) error

func (f RecorderFunc) Record(ctx context.Context, result *RunResult) error { return f(ctx, result) }

// NopRecorder drops every result.
var NopRecorder Recorder = RecorderFunc(func(context.Context, *RunResult) error { return nil })

// MultiRecorder fans a result out to several recorders in order, stopping at the first error.
func MultiRecorder(recorders ...Recorder) Recorder {
	return RecorderFunc(func(ctx context.Context, result *RunResult) error {
		for _, r := range recorders {
			if err := r.Record(ctx, result); err != nil {
				return err
			}
		}
		return nil
	})
}

// Runner renders batches of independent simulation runs on a bounded worker pool.
// Runs share nothing but the recorder, which is called serially.
type Runner struct {
	cfg      config.Interface
	logger   *zap.Logger
	recorder Recorder

	recordMu sync.Mutex
}

// New creates a Runner. Every dependency is required; use NopRecorder to discard results.
func New(cfg config.Interface, logger *zap.Logger, recorder Recorder) (*Runner, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if recorder == nil {
		return nil, errors.New("recorder cannot be nil")
	}
	return &Runner{
		cfg:      cfg,
		logger:   logger.With(zap.String("component", "batch_runner")),
		recorder: recorder,
	}, nil
}

// Seeds returns n consecutive seeds starting at base.
func Seeds(base int64, n int) []int64 {
	out := make([]int64, n)
	for i := range out {
		out[i] = base + int64(i)
	}
	return out
}

// Run executes one simulation per seed with at most engine.worker_concurrency in flight,
// launching no faster than engine.launch_rate when it is set. Each run gets its own
// engine.run_timeout; a run that times out is recorded as partial and does not fail the
// batch. Results come back in seed order. The first build or record error cancels the rest.
func (e *Runner) Run(ctx context.Context, seeds []int64) ([]*RunResult, error) {
	engineCfg := e.cfg.Engine()
	concurrency := engineCfg.WorkerConcurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	var limiter *rate.Limiter
	if engineCfg.LaunchRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(engineCfg.LaunchRate), max(engineCfg.LaunchBurst, 1))
	}

	e.logger.Info("Starting batch",
		zap.Int("runs", len(seeds)),
		zap.Int("concurrency", concurrency),
		zap.Float64("launch_rate", engineCfg.LaunchRate))

	results := make([]*RunResult, len(seeds))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, seed := range seeds {
		if limiter != nil {
			if err := limiter.Wait(gctx); err != nil {
				break
			}
		}
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			res, err := e.process(gctx, seed)
			results[i] = res
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return results, fmt.Errorf("batch aborted: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return results, fmt.Errorf("batch cancelled: %w", err)
	}

	e.logger.Info("Batch finished", zap.Int("runs", len(seeds)))
	return results, nil
}

// process runs and records a single seed.
func (e *Runner) process(ctx context.Context, seed int64) (*RunResult, error) {
	runCtx := ctx
	if timeout := e.cfg.Engine().RunTimeout; timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	result, err := e.RunOne(runCtx, seed)
	if result == nil {
		return nil, err
	}

	if err != nil {
		// The parent going away ends the batch; a run's own deadline does not.
		if ctx.Err() != nil {
			e.logger.Warn("Run cancelled, recording partial result", zap.Int64("seed", seed), zap.Error(err))
		} else {
			e.logger.Warn("Run timed out, recording partial result", zap.Int64("seed", seed), zap.Error(err))
			err = nil
		}
	}

	// Recording uses its own context so a cancelled batch still keeps what it produced.
	e.recordMu.Lock()
	recErr := e.recorder.Record(context.WithoutCancel(ctx), result)
	e.recordMu.Unlock()
	if recErr != nil {
		return result, fmt.Errorf("failed to record run %s: %w", result.RunID, recErr)
	}
	return result, err
}
