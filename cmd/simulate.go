// File: cmd/simulate.go
package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/ringsim/internal/config"
	"github.com/xkilldash9x/ringsim/internal/engine"
	"github.com/xkilldash9x/ringsim/internal/events"
	"github.com/xkilldash9x/ringsim/internal/export"
	"github.com/xkilldash9x/ringsim/internal/observability"
	"github.com/xkilldash9x/ringsim/internal/sonify"
)

type simulateOptions struct {
	seed        int64
	duration    time.Duration
	fps         int
	eventsPath  string
	summaryPath string
	wavPath     string
}

func newSimulateCmd() *cobra.Command {
	opts := &simulateOptions{}

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run one headless simulation and write its event stream",
		Long: `Runs a single simulation at the configured frame rate and writes every event as one JSON
object per line. Use --summary for a run summary and --wav for an audio track of the run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			applySimulateFlags(cmd, cfg, opts)
			return runSimulate(cmd, cfg, opts)
		},
	}

	cmd.Flags().Int64Var(&opts.seed, "seed", 0, "random seed (default from simulation.rng_seed)")
	cmd.Flags().DurationVar(&opts.duration, "duration", 0, "simulated time to run (default from render.duration)")
	cmd.Flags().IntVar(&opts.fps, "fps", 0, "frames per simulated second (default from render.fps)")
	cmd.Flags().StringVar(&opts.eventsPath, "events", "-", "JSONL event output, '-' for stdout, empty to skip")
	cmd.Flags().StringVar(&opts.summaryPath, "summary", "", "write a JSON run summary to this file")
	cmd.Flags().StringVar(&opts.wavPath, "wav", "", "render the run's sound track to this WAV file")
	return cmd
}

func applySimulateFlags(cmd *cobra.Command, cfg *config.Config, opts *simulateOptions) {
	if cmd.Flags().Changed("seed") {
		cfg.SetSimulationSeed(opts.seed)
	}
	if cmd.Flags().Changed("duration") {
		cfg.SetRenderDuration(opts.duration)
	}
	if cmd.Flags().Changed("fps") {
		cfg.SetRenderFPS(opts.fps)
	}
}

func runSimulate(cmd *cobra.Command, cfg *config.Config, opts *simulateOptions) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	logger := observability.GetLogger()

	runner, err := engine.New(cfg, logger, engine.NopRecorder)
	if err != nil {
		return fmt.Errorf("failed to create runner: %w", err)
	}

	result, runErr := runner.RunOne(cmd.Context(), cfg.Simulation().Seed)
	if result == nil {
		return runErr
	}
	if runErr != nil {
		logger.Warn("Run interrupted, writing partial output", zap.Error(runErr))
	}

	if err := writeOutput(cmd.OutOrStdout(), opts.eventsPath, func(w io.Writer) error {
		return export.WriteEvents(w, result.Events)
	}); err != nil {
		return err
	}
	if err := writeOutput(cmd.OutOrStdout(), opts.summaryPath, func(w io.Writer) error {
		return export.WriteSummary(w, result)
	}); err != nil {
		return err
	}
	if opts.wavPath != "" {
		if err := writeWAV(opts.wavPath, result.Events, time.Duration(result.SimTime*float64(time.Second)), cfg.Audio()); err != nil {
			return err
		}
	}
	return runErr
}

// writeOutput writes to stdout for "-", to the named file otherwise, and nowhere for "".
func writeOutput(stdout io.Writer, path string, write func(io.Writer) error) error {
	if path == "" {
		return nil
	}
	if path == "-" {
		return write(stdout)
	}
	path, err := expandPath(path)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

func writeWAV(path string, recs []events.Record, length time.Duration, audio config.AudioConfig) error {
	path, err := expandPath(path)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := sonify.WriteWAV(f, recs, length, audio); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
