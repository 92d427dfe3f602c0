// File: cmd/diff.go
package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/ringsim/internal/events"
	"github.com/xkilldash9x/ringsim/internal/observability"
	"github.com/xkilldash9x/ringsim/internal/replay"
)

// errStreamsDiffer is returned when two recorded runs are not equivalent.
var errStreamsDiffer = errors.New("event streams differ")

func newDiffCmd() *cobra.Command {
	opts := replay.DefaultOptions()
	var ignoreDiagnostics bool

	cmd := &cobra.Command{
		Use:   "diff <a.jsonl> <b.jsonl>",
		Short: "Check that two recorded event streams describe the same run",
		Long: `Compares two JSONL event streams record by record and reports the first divergence.
Use it to confirm that a seed replays identically across builds or machines.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if ignoreDiagnostics {
				opts.IgnoreKinds = append(opts.IgnoreKinds, events.Diagnostic)
			}
			pathA, err := expandPath(args[0])
			if err != nil {
				return err
			}
			pathB, err := expandPath(args[1])
			if err != nil {
				return err
			}

			res, err := replay.NewComparer(observability.GetLogger()).CompareFiles(pathA, pathB, opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if res.Equivalent {
				fmt.Fprintf(out, "equivalent: %d records\n", res.LenA)
				return nil
			}
			fmt.Fprintf(out, "diverged at record %d (%d vs %d records)\n%s\n", res.Divergence, res.LenA, res.LenB, res.Diff)
			return errStreamsDiffer
		},
	}

	cmd.Flags().Float64Var(&opts.Tolerance, "tolerance", opts.Tolerance, "absolute slack on float fields, 0 for exact")
	cmd.Flags().BoolVar(&opts.IgnoreMessages, "ignore-messages", opts.IgnoreMessages, "ignore diagnostic message text")
	cmd.Flags().BoolVar(&ignoreDiagnostics, "ignore-diagnostics", false, "drop diagnostic records before comparing")
	return cmd
}
