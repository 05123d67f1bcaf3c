package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"voiceloom/internal/metrics"
	"voiceloom/internal/pipeline"
)

func newRunsCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var showStages bool

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show recent run history",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := metrics.Open(cfg)
			if err != nil {
				return fmt.Errorf("open run history: %w", err)
			}
			defer store.Close()

			runs, err := store.RecentRuns(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("load run history: %w", err)
			}
			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded yet")
				return nil
			}

			rows := make([][]string, 0, len(runs))
			for _, run := range runs {
				rows = append(rows, []string{
					shortID(run.ID),
					run.CreatedAt.Local().Format("2006-01-02 15:04"),
					filepath.Base(run.Source),
					run.Status,
					totalDuration(run),
					run.ErrorKind,
				})
			}
			fmt.Fprintln(out, renderTable(
				[]tableColumn{
					{Name: "ID"}, {Name: "Started"}, {Name: "Source"},
					{Name: "Status"}, {Name: "Duration", Right: true}, {Name: "Error"},
				},
				rows,
			))

			printSummary(cmd, runs)

			if showStages {
				for _, run := range runs {
					printStages(cmd, run)
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to show")
	cmd.Flags().BoolVar(&showStages, "stages", false, "Also show per-stage results")
	return cmd
}

// printSummary aggregates the listed runs: completion rate plus average wall
// time per stage, skipped stages excluded.
func printSummary(cmd *cobra.Command, runs []metrics.RunRecord) {
	completed := 0
	stageTotals := make(map[string]time.Duration)
	stageCounts := make(map[string]int)
	stageOrder := make([]string, 0, 8)
	for _, run := range runs {
		if run.Status == string(pipeline.StateDone) {
			completed++
		}
		for _, stage := range run.Stages {
			if stage.Duration <= 0 {
				continue
			}
			if _, seen := stageCounts[stage.Stage]; !seen {
				stageOrder = append(stageOrder, stage.Stage)
			}
			stageTotals[stage.Stage] += stage.Duration
			stageCounts[stage.Stage]++
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%d of %d runs completed (%.0f%%)\n",
		completed, len(runs), float64(completed)/float64(len(runs))*100)
	for _, stage := range stageOrder {
		avg := stageTotals[stage] / time.Duration(stageCounts[stage])
		fmt.Fprintf(out, "  avg %-11s %s\n", stage, formatDuration(avg))
	}
}

func printStages(cmd *cobra.Command, run metrics.RunRecord) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\nRun %s:\n", shortID(run.ID))

	rows := make([][]string, 0, len(run.Stages))
	for _, stage := range run.Stages {
		rows = append(rows, []string{
			stage.Stage,
			string(stage.Status),
			formatDuration(stage.Duration),
			formatRSS(stage.Resources.MaxRSSKiB),
			formatDuration(stage.Resources.UserCPU + stage.Resources.SystemCPU),
			stage.ErrorKind,
		})
	}
	fmt.Fprintln(out, renderTable(
		[]tableColumn{
			{Name: "Stage"}, {Name: "Status"}, {Name: "Wall", Right: true},
			{Name: "Peak RSS", Right: true}, {Name: "CPU", Right: true}, {Name: "Error"},
		},
		rows,
	))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func totalDuration(run metrics.RunRecord) string {
	var total time.Duration
	for _, stage := range run.Stages {
		total += stage.Duration
	}
	return formatDuration(total)
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return d.Round(10 * time.Millisecond).String()
}

func formatRSS(kib int64) string {
	if kib <= 0 {
		return "-"
	}
	return fmt.Sprintf("%d MiB", kib/1024)
}
