package root

import (
	"fmt"

	"github.com/spf13/cobra"

	"repsync/internal/application/orchestrators"
)

func newDraftsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "drafts",
		Short: "List unfinished workout drafts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			store, cleanup, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			drafts, err := orchestrators.ExecuteListUnfinishedDrafts(cmd.Context(), store)
			if err != nil {
				return err
			}
			if len(drafts) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no unfinished drafts")
				return nil
			}

			for _, d := range drafts {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %d exercises, %d pending changes, modified %s\n",
					d.DayID, d.ExerciseCount, d.PendingCount, formatAge(d.LastModified))
			}
			return nil
		},
	}
}
