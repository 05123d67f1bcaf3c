package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"voiceloom/internal/deps"
	"voiceloom/internal/merge"
	"voiceloom/internal/metrics"
	"voiceloom/internal/pipeline"
)

func newProcessCommand(ctx *commandContext) *cobra.Command {
	var (
		timestamps bool
		rawLabels  bool
		coalesce   bool
		keepFiles  bool
	)

	cmd := &cobra.Command{
		Use:   "process <media-file>",
		Short: "Transcribe, diarize, and merge a media file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			if cmd.Flags().Changed("coalesce") {
				cfg.Merge.Coalesce = coalesce
			}
			if cmd.Flags().Changed("keep-intermediates") {
				cfg.Pipeline.KeepIntermediates = keepFiles
			}

			statuses := deps.Check(deps.Requirements(cfg))
			if missing := deps.MissingRequired(statuses); len(missing) > 0 {
				return fmt.Errorf("missing required tools: %v (run `voiceloom status` for details)", missing)
			}

			store, err := metrics.Open(cfg)
			if err != nil {
				return fmt.Errorf("open run history: %w", err)
			}
			defer store.Close()

			orch := pipeline.New(cfg, logger,
				pipeline.WithMetricsStore(store),
				pipeline.WithFormatOptions(merge.FormatOptions{
					Timestamps: timestamps,
					RawLabels:  rawLabels,
				}),
			)

			run, err := orch.Process(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Transcript written to %s\n", run.Artifacts.Transcript)
			return nil
		},
	}

	cmd.Flags().BoolVar(&timestamps, "timestamps", false, "Render one timestamped line per record")
	cmd.Flags().BoolVar(&rawLabels, "raw-labels", false, "Show humanized raw speaker ids instead of mapped names")
	cmd.Flags().BoolVar(&coalesce, "coalesce", false, "Join adjacent same-speaker records")
	cmd.Flags().BoolVar(&keepFiles, "keep-intermediates", false, "Keep the .vtt and .rttm files next to the transcript")
	return cmd
}
