package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"voiceloom/internal/merge"
	"voiceloom/internal/metrics"
	"voiceloom/internal/pipeline"
)

func newMergeCommand(ctx *commandContext) *cobra.Command {
	var (
		timestamps bool
		rawLabels  bool
		coalesce   bool
	)

	cmd := &cobra.Command{
		Use:   "merge <captions.vtt> <speakers.rttm>",
		Short: "Merge existing caption and speaker files into a transcript",
		Args:  cobra.ExactArgs(2),
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

			run, err := orch.MergeFiles(cmd.Context(), args[0], args[1])
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
	return cmd
}
