package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"voiceloom/internal/deps"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check external tool availability",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			statuses := deps.Check(deps.Requirements(cfg))
			rows := make([][]string, 0, len(statuses))
			for _, status := range statuses {
				rows = append(rows, []string{
					status.Name,
					status.Command,
					availability(status.Available),
					status.Detail,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]tableColumn{
					{Name: "Dependency"}, {Name: "Command"},
					{Name: "Available"}, {Name: "Detail"},
				},
				rows,
			))

			if missing := deps.MissingRequired(statuses); len(missing) > 0 {
				return fmt.Errorf("missing required tools: %v", missing)
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return err
			}
			return deps.CheckWritableDir(cfg.Paths.OutputDir)
		},
	}
}

func availability(ok bool) string {
	if ok {
		return "yes"
	}
	return "no"
}
