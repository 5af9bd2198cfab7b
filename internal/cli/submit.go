package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"vidscribe/internal/scheduler"
)

func newSubmitCmd(app *App) *cobra.Command {
	var (
		maxVideos int
		language  string
		model     string
		owner     string
	)

	cmd := &cobra.Command{
		Use:   "submit <target-url>",
		Short: "Queue a new transcription task for a creator feed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := app.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			s := scheduler.New(st, nil, app.log, app.cfg.SchedulerOptions())
			task, err := s.Submit(scheduler.SubmitRequest{
				TargetURL:    args[0],
				Owner:        owner,
				MaxVideos:    maxVideos,
				Language:     language,
				WhisperModel: model,
			})
			if err != nil {
				return err
			}

			fmt.Printf("Task %s queued.\n", task.ID)
			fmt.Printf("  target:  %s\n", task.TargetURL)
			fmt.Printf("  videos:  up to %d\n", task.MaxVideos)
			fmt.Printf("  model:   %s (%s)\n", task.WhisperModel, task.Language)
			fmt.Printf("Run 'vidscribe worker' to process it, or 'vidscribe status %s' to inspect.\n", task.ID)
			return nil
		},
	}

	cmd.Flags().IntVar(&maxVideos, "max-videos", 0, "video limit for this task (default from config)")
	cmd.Flags().StringVar(&language, "language", "", "transcription language (default from config)")
	cmd.Flags().StringVar(&model, "model", "", "transcription model size (default from config)")
	cmd.Flags().StringVar(&owner, "owner", "", "optional owner label for this task")
	return cmd
}
