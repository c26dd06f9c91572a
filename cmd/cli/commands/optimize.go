package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jakechorley/clinic-planner/internal/config"
	"github.com/jakechorley/clinic-planner/pkg/core/services"
)

// OptimizeCmd creates the optimize command
func OptimizeCmd(app *AppContext) *cobra.Command {
	var mode string
	var maxNodes int

	cmd := &cobra.Command{
		Use:   "optimize <date> [date...]",
		Short: "Assign staff to the half-days of the given dates and write the result",
		Long: `Builds and solves one assignment model per date (daily mode) or per week
(weekly mode) and writes the assignments back to the slots. Dates use YYYY-MM-DD.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := *app.Cfg
			if mode != "" {
				if mode != config.ModeDaily && mode != config.ModeWeekly {
					return fmt.Errorf("mode must be %q or %q, got: %s", config.ModeDaily, config.ModeWeekly, mode)
				}
				cfg.Mode = mode
			}
			if maxNodes > 0 {
				cfg.Solver.MaxNodes = maxNodes
			}

			app.Logger.Debug("optimize command", zap.Strings("dates", args), zap.String("mode", cfg.Mode))

			result, err := services.Optimize(app.Ctx, app.Database, app.Locker, app.Notifier, &cfg, app.Logger, args)
			if err != nil {
				return err
			}

			fmt.Printf("\nOptimization results (%s mode)\n\n", result.Mode)
			fmt.Print(formatReports(result.Reports))
			fmt.Println()

			if failed := countFailed(result.Reports); failed > 0 {
				return fmt.Errorf("%d of %d dates were not optimized", failed, len(result.Reports))
			}

			fmt.Printf("✓ %d dates optimized\n\n", len(result.Reports))
			return nil
		},
	}

	cmd.Flags().StringVarP(&mode, "mode", "m", "", "Override the configured mode (daily or weekly)")
	cmd.Flags().IntVar(&maxNodes, "max-nodes", 0, "Override the solver node budget")

	return cmd
}

func countFailed(reports []services.DateReport) int {
	failed := 0
	for _, r := range reports {
		if !r.Feasible || r.Outcome == services.OutcomeFailed {
			failed++
		}
	}
	return failed
}
