// File: internal/engine/run.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/ringsim/internal/events"
	"github.com/xkilldash9x/ringsim/internal/observability"
	"github.com/xkilldash9x/ringsim/internal/simulation"
)

// ctxCheckInterval is how many frames run between context checks.
const ctxCheckInterval = 64

// EndReason records why a run stopped stepping.
type EndReason string

const (
	EndDuration EndReason = "duration"
	EndEscape   EndReason = "escape"
	EndArena    EndReason = "left_arena"
	EndTimeout  EndReason = "timeout"
	EndCanceled EndReason = "canceled"
)

// RunResult is the outcome of one headless run.
type RunResult struct {
	RunID uuid.UUID `json:"run_id"`
	Seed  int64     `json:"seed"`

	Frames  int     `json:"frames"`
	SimTime float64 `json:"sim_time"`
	Cleared int     `json:"cleared"`
	Escaped bool    `json:"escaped"`
	// EscapeTime is the simulated time of the Escape event, or -1.
	EscapeTime float64          `json:"escape_time"`
	End        EndReason        `json:"end"`
	Stats      simulation.Stats `json:"stats"`

	StartedAt time.Time       `json:"started_at"`
	Wall      time.Duration   `json:"wall"`
	Events    []events.Record `json:"-"`
}

// Partial reports whether the run was cut short by its context.
func (r *RunResult) Partial() bool {
	return r.End == EndTimeout || r.End == EndCanceled
}

// Count returns the number of recorded events of the given kind.
func (r *RunResult) Count(kind events.Kind) int {
	n := 0
	for _, e := range r.Events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// RunOne steps a fresh simulation seeded with seed at the configured frame rate until the
// duration elapses, the escape tail runs out, the bodies leave the arena or ctx is done.
// A run interrupted by ctx still returns its partial result together with the context error.
func (e *Runner) RunOne(ctx context.Context, seed int64) (*RunResult, error) {
	render := e.cfg.Render()
	simCfg := e.cfg.Simulation()
	simCfg.Seed = seed

	result := &RunResult{
		RunID:      uuid.New(),
		Seed:       seed,
		EscapeTime: -1,
		End:        EndDuration,
		StartedAt:  time.Now().UTC(),
	}
	logger := observability.ForRun(e.logger, result.RunID.String(), seed)

	sim, err := simulation.New(simCfg, rand.New(rand.NewSource(seed)), simulation.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to build simulation for seed %d: %w", seed, err)
	}

	dt := render.FrameDT()
	frames := render.Frames()
	tail := render.EscapeTail.Seconds()
	logger.Debug("Run started", zap.Int("frames", frames), zap.Float64("dt", dt))

	var runErr error
loop:
	for frame := 0; frame < frames; frame++ {
		if frame%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				runErr = err
				result.End = EndCanceled
				if errors.Is(err, context.DeadlineExceeded) {
					result.End = EndTimeout
				}
				break
			}
		}

		sim.Tick(dt)
		result.Frames++
		for _, rec := range sim.Drain() {
			result.Events = append(result.Events, rec)
			switch rec.Kind {
			case events.Escape:
				if result.EscapeTime < 0 {
					result.EscapeTime = rec.Time
				}
			case events.Reset:
				// The next seed would start an unrelated run.
				result.End = EndArena
				break loop
			}
		}

		if render.StopOnEscape && result.EscapeTime >= 0 && sim.Elapsed()-result.EscapeTime >= tail {
			result.End = EndEscape
			break
		}
	}

	result.SimTime = float64(result.Frames) * dt
	result.Cleared = cleared(result.Events, sim)
	result.Escaped = result.EscapeTime >= 0
	result.Stats = sim.Stats()
	result.Wall = time.Since(result.StartedAt)

	logger.Info("Run finished",
		zap.String("end", string(result.End)),
		zap.Int("cleared", result.Cleared),
		zap.Bool("escaped", result.Escaped),
		zap.Int("events", len(result.Events)),
		zap.Duration("wall", result.Wall))
	return result, runErr
}

// cleared is the progress reached before the run ended. A boundary reset has already
// rebuilt the simulation, so the Reset record carries the final count.
func cleared(recs []events.Record, sim *simulation.Simulation) int {
	if n := len(recs); n > 0 && recs[n-1].Kind == events.Reset {
		return recs[n-1].Cleared
	}
	return sim.Cleared()
}
