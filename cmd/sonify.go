// File: cmd/sonify.go
package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/ringsim/internal/export"
	"github.com/xkilldash9x/ringsim/internal/observability"
)

func newSonifyCmd() *cobra.Command {
	var (
		outPath   string
		minLength time.Duration
	)

	cmd := &cobra.Command{
		Use:   "sonify <events.jsonl>",
		Short: "Render a recorded event stream to a WAV file",
		Long: `Turns the collision, gap pass, escape and shrink events of a recorded run into notes and
writes them as 16-bit stereo PCM. The track lasts at least --min-length.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			if outPath == "" {
				return fmt.Errorf("--out is required")
			}

			in, err := expandPath(args[0])
			if err != nil {
				return err
			}
			recs, err := export.LoadEvents(in)
			if err != nil {
				return err
			}

			if err := writeWAV(outPath, recs, minLength, cfg.Audio()); err != nil {
				return err
			}
			observability.GetLogger().Info("Sound track written",
				zap.String("input", in),
				zap.String("output", outPath),
				zap.Int("events", len(recs)))
			return nil
		},
	}

	cmd.Flags().StringVarP(&outPath, "out", "o", "", "output WAV file")
	cmd.Flags().DurationVar(&minLength, "min-length", 0, "minimum track length")
	return cmd
}
