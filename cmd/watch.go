// File: cmd/watch.go
package cmd

import (
	"errors"
	"fmt"
	"io"
	"math/rand"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/ringsim/internal/events"
	"github.com/xkilldash9x/ringsim/internal/export"
	"github.com/xkilldash9x/ringsim/internal/observability"
	"github.com/xkilldash9x/ringsim/internal/simulation"
	"github.com/xkilldash9x/ringsim/internal/viewer"
)

// newScreen opens the terminal. Tests replace it with a simulation screen.
var newScreen = tcell.NewScreen

func newWatchCmd() *cobra.Command {
	var (
		seed       int64
		fps        int
		eventsPath string
		wavPath    string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch a simulation live in the terminal",
		Long: `Steps a simulation in real time and draws it in the terminal.

Keys: q or Esc quits, space pauses, '.' steps one frame while paused, r restarts with the next seed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("seed") {
				cfg.SetSimulationSeed(seed)
			}
			if cmd.Flags().Changed("fps") {
				cfg.SetRenderFPS(fps)
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid flags: %w", err)
			}

			// The screen owns the console, so only the log file hears from the viewer.
			logger := observability.FileOnly(cfg.Logger())
			simCfg := cfg.Simulation()
			sim, err := simulation.New(simCfg, rand.New(rand.NewSource(simCfg.Seed)), simulation.WithLogger(logger))
			if err != nil {
				return err
			}

			screen, err := newScreen()
			if err != nil {
				return fmt.Errorf("failed to open terminal: %w", err)
			}
			if err := screen.Init(); err != nil {
				return fmt.Errorf("failed to initialize terminal: %w", err)
			}

			var recorded []events.Record
			v, err := viewer.New(screen, sim, cfg.Render().FPS, logger,
				viewer.WithEventHandler(func(recs []events.Record) {
					recorded = append(recorded, recs...)
				}))
			if err != nil {
				screen.Fini()
				return err
			}

			runErr := v.Run(cmd.Context())
			screen.Fini()
			if runErr != nil && !errors.Is(runErr, cmd.Context().Err()) {
				return runErr
			}

			if err := writeOutput(cmd.OutOrStdout(), eventsPath, func(w io.Writer) error {
				return export.WriteEvents(w, recorded)
			}); err != nil {
				return err
			}
			if wavPath != "" {
				length := time.Duration(sim.Elapsed() * float64(time.Second))
				if err := writeWAV(wavPath, recorded, length, cfg.Audio()); err != nil {
					return err
				}
			}
			return runErr
		},
	}

	cmd.Flags().Int64Var(&seed, "seed", 0, "random seed (default from simulation.rng_seed)")
	cmd.Flags().IntVar(&fps, "fps", 0, "frames per second (default from render.fps)")
	cmd.Flags().StringVar(&eventsPath, "events", "", "write the session's events as JSONL on exit")
	cmd.Flags().StringVar(&wavPath, "wav", "", "render the session's sound track to this WAV file on exit")
	return cmd
}
