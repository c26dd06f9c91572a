package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// DraftsCmd creates the drafts command
func DraftsCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "drafts <date>",
		Short: "List the draft changes staged by the last preview of a date",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			drafts, err := app.Database.GetDrafts(app.Ctx, args[0])
			if err != nil {
				return err
			}

			if len(drafts) == 0 {
				fmt.Printf("\nNo drafts staged for %s\n\n", args[0])
				return nil
			}

			fmt.Printf("\nDrafts for %s (staged %s)\n\n", args[0], drafts[0].CreatedAt.Local().Format("Jan 02 15:04"))
			fmt.Print(formatDrafts(drafts))
			fmt.Println()
			return nil
		},
	}
}
