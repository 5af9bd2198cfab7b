package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"vidscribe/internal/model"
)

func newCancelCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <task-id>",
		Short: "Request cancellation of a task",
		Long: "Pending tasks are cancelled immediately. A running task stops at the\n" +
			"next video boundary; work already checkpointed is kept.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := app.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			task, err := st.GetTask(args[0])
			if err != nil {
				return err
			}
			if model.IsTerminalTaskStatus(task.Status) {
				fmt.Printf("Task %s is already %s.\n", task.ID, task.Status)
				return nil
			}
			if err := st.RequestCancel(task.ID); err != nil {
				return err
			}

			task, err = st.GetTask(task.ID)
			if err != nil {
				return err
			}
			if task.Status == model.TaskCancelled {
				fmt.Printf("Task %s cancelled.\n", task.ID)
			} else {
				fmt.Printf("Cancellation requested, task %s will stop at the next video boundary.\n", task.ID)
			}
			return nil
		},
	}
}
