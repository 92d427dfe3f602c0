// internal/engine/engine_test.go
package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/ringsim/internal/config"
	"github.com/xkilldash9x/ringsim/internal/events"
)

// -- Test Helpers --

// openGapConfig returns a configuration whose barriers are fully open, so every run
// escapes within a few simulated seconds.
func openGapConfig() *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.SimulationCfg.GapAngle = 360
	cfg.SimulationCfg.InitialBarrierCount = 3
	cfg.SimulationCfg.MaxTotalBarriers = 3
	cfg.SimulationCfg.EscapeThreshold = 3
	cfg.SimulationCfg.BoundaryRadius = 1e9
	cfg.RenderCfg.Duration = 60 * time.Second
	cfg.RenderCfg.StopOnEscape = true
	cfg.RenderCfg.EscapeTail = 500 * time.Millisecond
	cfg.EngineCfg.WorkerConcurrency = 3
	cfg.EngineCfg.RunTimeout = time.Minute
	return cfg
}

// collector records every result it is handed.
type collector struct {
	mu      sync.Mutex
	results []*RunResult
	err     error
}

func (c *collector) Record(_ context.Context, r *RunResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.results = append(c.results, r)
	return nil
}

func (c *collector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.results)
}

// -- Test Suite --

func TestNew(t *testing.T) {
	cfg := config.NewDefaultConfig()
	logger := zap.NewNop()

	_, err := New(nil, logger, NopRecorder)
	assert.EqualError(t, err, "config cannot be nil")
	_, err = New(cfg, nil, NopRecorder)
	assert.EqualError(t, err, "logger cannot be nil")
	_, err = New(cfg, logger, nil)
	assert.EqualError(t, err, "recorder cannot be nil")

	r, err := New(cfg, logger, NopRecorder)
	require.NoError(t, err)
	assert.NotNil(t, r)
}

func TestSeeds(t *testing.T) {
	assert.Equal(t, []int64{7, 8, 9}, Seeds(7, 3))
	assert.Empty(t, Seeds(7, 0))
}

func TestRunOne(t *testing.T) {
	t.Run("should stop a short tail after escape", func(t *testing.T) {
		r, err := New(openGapConfig(), zap.NewNop(), NopRecorder)
		require.NoError(t, err)

		res, err := r.RunOne(context.Background(), 3)
		require.NoError(t, err)

		assert.Equal(t, EndEscape, res.End)
		assert.True(t, res.Escaped)
		assert.Equal(t, 3, res.Cleared)
		assert.Equal(t, 1, res.Count(events.Escape))
		assert.Equal(t, 3, res.Count(events.GapPass))
		assert.GreaterOrEqual(t, res.SimTime-res.EscapeTime, 0.5-1e-9)
		assert.Less(t, res.SimTime, 60.0)
		assert.False(t, res.Partial())
		assert.Equal(t, int64(3), res.Seed)
		assert.Positive(t, res.Stats.Substeps)
	})

	t.Run("should run the full duration when escape does not stop it", func(t *testing.T) {
		cfg := openGapConfig()
		cfg.RenderCfg.StopOnEscape = false
		cfg.RenderCfg.Duration = 2 * time.Second
		r, err := New(cfg, zap.NewNop(), NopRecorder)
		require.NoError(t, err)

		res, err := r.RunOne(context.Background(), 1)
		require.NoError(t, err)
		assert.Equal(t, EndDuration, res.End)
		assert.Equal(t, 120, res.Frames)
		assert.InDelta(t, 2.0, res.SimTime, 1e-9)
	})

	t.Run("should end when the bodies leave the arena", func(t *testing.T) {
		cfg := openGapConfig()
		cfg.SimulationCfg.InitialBarrierCount = 2
		cfg.SimulationCfg.MaxTotalBarriers = 2
		cfg.SimulationCfg.EscapeThreshold = 2
		cfg.SimulationCfg.BoundaryRadius = 400
		cfg.RenderCfg.StopOnEscape = false
		r, err := New(cfg, zap.NewNop(), NopRecorder)
		require.NoError(t, err)

		res, err := r.RunOne(context.Background(), 17)
		require.NoError(t, err)
		assert.Equal(t, EndArena, res.End)
		assert.Equal(t, 2, res.Cleared, "progress is taken from before the reset")
		assert.True(t, res.Escaped)
		assert.Equal(t, events.Reset, res.Events[len(res.Events)-1].Kind)
	})

	t.Run("should be deterministic per seed", func(t *testing.T) {
		r, err := New(openGapConfig(), zap.NewNop(), NopRecorder)
		require.NoError(t, err)

		a, err := r.RunOne(context.Background(), 42)
		require.NoError(t, err)
		b, err := r.RunOne(context.Background(), 42)
		require.NoError(t, err)

		assert.NotEqual(t, a.RunID, b.RunID)
		if diff := cmp.Diff(a.Events, b.Events); diff != "" {
			t.Errorf("events differ for the same seed (-first +second):\n%s", diff)
		}
		assert.Equal(t, a.Stats, b.Stats)
	})

	t.Run("should return a partial result on timeout", func(t *testing.T) {
		r, err := New(openGapConfig(), zap.NewNop(), NopRecorder)
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
		defer cancel()
		<-ctx.Done()

		res, err := r.RunOne(ctx, 5)
		require.ErrorIs(t, err, context.DeadlineExceeded)
		require.NotNil(t, res)
		assert.Equal(t, EndTimeout, res.End)
		assert.True(t, res.Partial())
		assert.Zero(t, res.Frames)
	})

	t.Run("should reject an invalid simulation config", func(t *testing.T) {
		cfg := openGapConfig()
		cfg.SimulationCfg.BarrierThickness = 0
		r, err := New(cfg, zap.NewNop(), NopRecorder)
		require.NoError(t, err)

		res, err := r.RunOne(context.Background(), 1)
		assert.Nil(t, res)
		assert.ErrorContains(t, err, "failed to build simulation for seed 1")
	})
}

func TestRun(t *testing.T) {
	t.Run("should run and record every seed in order", func(t *testing.T) {
		defer goleak.VerifyNone(t)

		rec := &collector{}
		r, err := New(openGapConfig(), zap.NewNop(), rec)
		require.NoError(t, err)

		seeds := Seeds(100, 6)
		results, err := r.Run(context.Background(), seeds)
		require.NoError(t, err)

		require.Len(t, results, len(seeds))
		for i, res := range results {
			require.NotNil(t, res)
			assert.Equal(t, seeds[i], res.Seed)
			assert.True(t, res.Escaped)
		}
		assert.Equal(t, len(seeds), rec.len())
	})

	t.Run("should throttle launches", func(t *testing.T) {
		defer goleak.VerifyNone(t)

		cfg := openGapConfig()
		cfg.EngineCfg.LaunchRate = 1000
		cfg.EngineCfg.LaunchBurst = 1
		r, err := New(cfg, zap.NewNop(), NopRecorder)
		require.NoError(t, err)

		results, err := r.Run(context.Background(), Seeds(1, 3))
		require.NoError(t, err)
		assert.Len(t, results, 3)
	})

	t.Run("should record timed out runs as partial without failing", func(t *testing.T) {
		defer goleak.VerifyNone(t)

		core, logs := observer.New(zapcore.WarnLevel)
		cfg := openGapConfig()
		cfg.EngineCfg.RunTimeout = time.Nanosecond
		rec := &collector{}
		r, err := New(cfg, zap.New(core), rec)
		require.NoError(t, err)

		results, err := r.Run(context.Background(), Seeds(1, 2))
		require.NoError(t, err)
		for _, res := range results {
			assert.True(t, res.Partial())
		}
		assert.Equal(t, 2, rec.len())
		assert.Equal(t, 2, logs.FilterMessage("Run timed out, recording partial result").Len())
	})

	t.Run("should abort on a recorder error", func(t *testing.T) {
		defer goleak.VerifyNone(t)

		boom := errors.New("disk full")
		r, err := New(openGapConfig(), zap.NewNop(), &collector{err: boom})
		require.NoError(t, err)

		_, err = r.Run(context.Background(), Seeds(1, 4))
		require.ErrorIs(t, err, boom)
		assert.Contains(t, err.Error(), "batch aborted")
	})

	t.Run("should stop when the parent context is cancelled", func(t *testing.T) {
		defer goleak.VerifyNone(t)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		rec := &collector{}
		r, err := New(openGapConfig(), zap.NewNop(), rec)
		require.NoError(t, err)

		_, err = r.Run(ctx, Seeds(1, 4))
		require.ErrorIs(t, err, context.Canceled)
		assert.Zero(t, rec.len())
	})
}

func TestMultiRecorder(t *testing.T) {
	var order []string
	first := RecorderFunc(func(context.Context, *RunResult) error {
		order = append(order, "first")
		return nil
	})
	failing := RecorderFunc(func(context.Context, *RunResult) error {
		order = append(order, "failing")
		return errors.New("nope")
	})
	never := RecorderFunc(func(context.Context, *RunResult) error {
		order = append(order, "never")
		return nil
	})

	err := MultiRecorder(first, failing, never).Record(context.Background(), &RunResult{})
	assert.EqualError(t, err, "nope")
	assert.Equal(t, []string{"first", "failing"}, order)
}
