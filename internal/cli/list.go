package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"vidscribe/internal/model"
)

func newListCmd(app *App) *cobra.Command {
	var statusFilter string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all tasks, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := app.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			tasks, err := st.ListTasks()
			if err != nil {
				return err
			}
			if statusFilter != "" {
				filtered := tasks[:0]
				for _, t := range tasks {
					if t.Status == statusFilter {
						filtered = append(filtered, t)
					}
				}
				tasks = filtered
			}
			if len(tasks) == 0 {
				fmt.Println("No tasks.")
				return nil
			}

			fmt.Printf("%-36s %-10s %8s %9s  %s\n", "TASK", "STATUS", "PROGRESS", "OK/FAIL", "TARGET")
			for _, t := range tasks {
				progress := fmt.Sprintf("%d%%", t.Progress)
				if t.Status == model.TaskPending {
					progress = "-"
				}
				fmt.Printf("%-36s %-10s %8s %4d/%-4d  %s\n",
					t.ID, t.Status, progress, t.Succeeded, t.Failed, t.TargetURL)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&statusFilter, "status", "", "only show tasks with this status")
	return cmd
}
