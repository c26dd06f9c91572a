package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jakechorley/clinic-planner/pkg/core/services"
)

// PreviewCmd creates the preview command
func PreviewCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "preview <date>",
		Short: "Propose assignments for a date without changing the schedule",
		Long: `Re-optimizes a single date, favouring the current assignments, and prints how
the proposal compares with the schedule. Proposed changes are staged as drafts.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			date := args[0]
			app.Logger.Debug("preview command", zap.String("date", date))

			result, err := services.Preview(app.Ctx, app.Database, app.Cfg, app.Logger, date)
			if err != nil {
				return err
			}

			fmt.Printf("\nPreview for %s (%s)\n\n", result.Date, result.Outcome)
			fmt.Print(formatComparison(result.Comparison))
			fmt.Println()

			switch {
			case result.Outcome == services.OutcomeSolverError:
				fmt.Printf("Solver failed, schedule left unchanged: %s\n\n", result.Error)
			case !result.Feasible:
				fmt.Printf("No feasible assignment, schedule left unchanged\n\n")
			case result.AlreadyStaged > 0:
				fmt.Printf("✓ The %d staged drafts already match the proposal\n\n", result.AlreadyStaged)
			case len(result.Drafts) == 0:
				fmt.Printf("✓ The proposal matches the current schedule\n\n")
			default:
				fmt.Printf("✓ %d draft changes staged (unmet needs %d → %d)\n\n",
					len(result.Drafts), result.Comparison.UnmetBefore, result.Comparison.UnmetAfter)
			}

			return nil
		},
	}
}
