// File: cmd/batch.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/ringsim/internal/config"
	"github.com/xkilldash9x/ringsim/internal/engine"
	"github.com/xkilldash9x/ringsim/internal/export"
	"github.com/xkilldash9x/ringsim/internal/observability"
	"github.com/xkilldash9x/ringsim/internal/store"
)

// runStore is what the commands need from the run database.
type runStore interface {
	engine.Recorder
	RecentRuns(ctx context.Context, limit int) ([]store.RunSummary, error)
}

// storeProvider creates a runStore. Tests inject one that never touches a database.
type storeProvider interface {
	// Create returns the store and a cleanup function that releases its connections.
	Create(ctx context.Context, cfg config.Interface) (runStore, func(), error)
}

// defaultStoreProvider connects to PostgreSQL.
type defaultStoreProvider struct{}

// NewStoreProvider returns the production store provider.
func NewStoreProvider() storeProvider {
	return &defaultStoreProvider{}
}

func (p *defaultStoreProvider) Create(ctx context.Context, cfg config.Interface) (runStore, func(), error) {
	logger := observability.GetLogger()
	dbCfg := cfg.Database()
	if dbCfg.URL == "" {
		return nil, nil, fmt.Errorf("database URL is not configured (RINGSIM_DATABASE_URL)")
	}

	s, err := store.Open(ctx, dbCfg.URL, logger)
	if err != nil {
		return nil, nil, err
	}
	if dbCfg.EnsureSchema {
		if err := s.EnsureSchema(ctx); err != nil {
			s.Close()
			return nil, nil, err
		}
	}

	cleanup := func() {
		s.Close()
		logger.Debug("Database connection pool closed.")
	}
	return s, cleanup, nil
}

type batchOptions struct {
	runs    int
	seed    int64
	workers int
	outDir  string
	useDB   bool
}

func newBatchCmd(provider storeProvider) *cobra.Command {
	opts := &batchOptions{}

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Run many seeds headless on a worker pool and record the results",
		Long: `Runs engine.runs simulations with consecutive seeds on a bounded worker pool. Each run's
summary, and optionally its event stream, is written under output.dir. With --db the runs are
also stored in PostgreSQL.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			applyBatchFlags(cmd, cfg, opts)
			return runBatch(cmd, cfg, provider, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.runs, "runs", "n", 0, "number of runs (default from engine.runs)")
	cmd.Flags().Int64Var(&opts.seed, "seed", 0, "first seed; run i uses seed+i (default from simulation.rng_seed)")
	cmd.Flags().IntVarP(&opts.workers, "workers", "w", 0, "runs in flight at once (default from engine.worker_concurrency)")
	cmd.Flags().StringVarP(&opts.outDir, "out", "o", "", "output directory (default from output.dir)")
	cmd.Flags().BoolVar(&opts.useDB, "db", false, "also store runs in PostgreSQL at database.url")
	return cmd
}

func applyBatchFlags(cmd *cobra.Command, cfg *config.Config, opts *batchOptions) {
	if cmd.Flags().Changed("runs") {
		cfg.SetEngineRuns(opts.runs)
	}
	if cmd.Flags().Changed("seed") {
		cfg.SetSimulationSeed(opts.seed)
	}
	if cmd.Flags().Changed("workers") {
		cfg.SetEngineWorkerConcurrency(opts.workers)
	}
	if cmd.Flags().Changed("out") {
		cfg.SetOutputDir(opts.outDir)
	}
}

func runBatch(cmd *cobra.Command, cfg *config.Config, provider storeProvider, opts *batchOptions) error {
	ctx := cmd.Context()
	logger := observability.GetLogger()

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	outDir, err := expandPath(cfg.Output().Dir)
	if err != nil {
		return err
	}

	exporter, err := export.NewExporter(outDir, cfg.Output().WriteEvents, logger)
	if err != nil {
		return err
	}
	var recorder engine.Recorder = exporter

	if opts.useDB {
		s, cleanup, err := provider.Create(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to open run store: %w", err)
		}
		defer cleanup()
		recorder = engine.MultiRecorder(exporter, s)
	}

	runner, err := engine.New(cfg, logger, recorder)
	if err != nil {
		return fmt.Errorf("failed to create runner: %w", err)
	}

	seeds := engine.Seeds(cfg.Simulation().Seed, cfg.Engine().Runs)
	results, runErr := runner.Run(ctx, seeds)
	if err := printResults(cmd.OutOrStdout(), results); err != nil {
		logger.Warn("Failed to print batch results", zap.Error(err))
	}
	if runErr != nil {
		return runErr
	}

	logger.Info("Batch written", zap.String("dir", outDir), zap.Int("runs", len(results)))
	return nil
}

// printResults writes one row per finished run. Runs that never started are skipped.
func printResults(w io.Writer, results []*engine.RunResult) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEED\tRUN\tEND\tCLEARED\tESCAPED\tSIM TIME\tEVENTS")
	for _, r := range results {
		if r == nil {
			continue
		}
		escaped := "-"
		if r.Escaped {
			escaped = fmt.Sprintf("%.2fs", r.EscapeTime)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%.2fs\t%d\n",
			r.Seed, r.RunID.String()[:8], r.End, r.Cleared, escaped, r.SimTime, len(r.Events))
	}
	return tw.Flush()
}

func newHistoryCmd(provider storeProvider) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List the most recent runs stored in PostgreSQL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive")
			}

			s, cleanup, err := provider.Create(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("failed to open run store: %w", err)
			}
			defer cleanup()

			runs, err := s.RecentRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "STARTED\tSEED\tEND\tCLEARED\tESCAPED\tID")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%d\t%s\t%d\t%t\t%s\n",
					r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.Seed, r.End, r.Cleared, r.Escaped, r.ID)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to list")
	return cmd
}
