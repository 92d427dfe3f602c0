// File: internal/viewer/viewer.go
package viewer

import (
	"context"
	"errors"
	"time"

	"github.com/gdamore/tcell/v2"
	"go.uber.org/zap"

	"github.com/xkilldash9x/ringsim/internal/events"
	"github.com/xkilldash9x/ringsim/internal/simulation"
)

// Viewer runs a simulation in real time on a terminal.
//
// Keys: q, Esc or Ctrl-C quit; space pauses; '.' steps one frame while paused;
// r restarts with the next seed.
type Viewer struct {
	screen   tcell.Screen
	sim      *simulation.Simulation
	renderer *Renderer
	logger   *zap.Logger
	dt       float64
	paused   bool
	onEvents func([]events.Record)
}

// Option configures a Viewer.
type Option func(*Viewer)

// WithEventHandler receives every batch of events drained after a frame.
func WithEventHandler(fn func([]events.Record)) Option {
	return func(v *Viewer) { v.onEvents = fn }
}

// New creates a viewer stepping sim at fps frames per second. The caller owns the screen
// and must have initialized it.
func New(screen tcell.Screen, sim *simulation.Simulation, fps int, logger *zap.Logger, opts ...Option) (*Viewer, error) {
	if screen == nil {
		return nil, errors.New("screen cannot be nil")
	}
	if sim == nil {
		return nil, errors.New("simulation cannot be nil")
	}
	if fps <= 0 {
		return nil, errors.New("fps must be positive")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	v := &Viewer{
		screen:   screen,
		sim:      sim,
		renderer: NewRenderer(screen),
		logger:   logger.Named("viewer"),
		dt:       1 / float64(fps),
		onEvents: func([]events.Record) {},
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Run steps and draws until the user quits or ctx is done. Quitting returns nil.
func (v *Viewer) Run(ctx context.Context) error {
	eventChan := make(chan tcell.Event, 16)
	quit := make(chan struct{})
	defer close(quit)

	go func() {
		for {
			ev := v.screen.PollEvent()
			if ev == nil {
				return
			}
			select {
			case eventChan <- ev:
			case <-quit:
				return
			}
		}
	}()

	ticker := time.NewTicker(time.Duration(v.dt * float64(time.Second)))
	defer ticker.Stop()

	v.Frame()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-eventChan:
			if v.HandleEvent(ev) {
				v.logger.Debug("Viewer closed by user")
				return nil
			}
		case <-ticker.C:
			v.Frame()
		}
	}
}

// HandleEvent applies a terminal event and reports whether the viewer should exit.
func (v *Viewer) HandleEvent(ev tcell.Event) bool {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		switch ev.Key() {
		case tcell.KeyEscape, tcell.KeyCtrlC:
			return true
		case tcell.KeyRune:
			switch ev.Rune() {
			case 'q':
				return true
			case ' ':
				v.paused = !v.paused
				v.draw()
			case '.':
				if v.paused {
					v.step()
					v.draw()
				}
			case 'r':
				next := v.sim.Seed() + 1
				if err := v.sim.Reset(next); err != nil {
					v.logger.Error("Failed to restart simulation", zap.Int64("seed", next), zap.Error(err))
					return false
				}
				v.logger.Info("Simulation restarted", zap.Int64("seed", next))
				v.draw()
			}
		}
	case *tcell.EventResize:
		v.screen.Sync()
		v.draw()
	}
	return false
}

// Paused reports whether stepping is suspended.
func (v *Viewer) Paused() bool { return v.paused }

// Frame advances one frame unless paused and redraws.
func (v *Viewer) Frame() {
	if !v.paused {
		v.step()
	}
	v.draw()
}

func (v *Viewer) step() {
	v.sim.Tick(v.dt)
	if recs := v.sim.Drain(); len(recs) > 0 {
		v.onEvents(recs)
	}
}

func (v *Viewer) draw() {
	v.renderer.Draw(v.sim.Snapshot(), v.paused)
	v.screen.Show()
}
