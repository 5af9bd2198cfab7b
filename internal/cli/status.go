package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"vidscribe/internal/model"
)

func newStatusCmd(app *App) *cobra.Command {
	var (
		asJSON     bool
		showVideos bool
	)

	cmd := &cobra.Command{
		Use:   "status <task-id>",
		Short: "Show one task's progress and outcome",
		Args:  cobra.ExactArgs(1),
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

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				if showVideos {
					videos, err := st.ListVideos(task.ID)
					if err != nil {
						return err
					}
					return enc.Encode(struct {
						Task   *model.Task         `json:"task"`
						Videos []model.VideoRecord `json:"videos"`
					}{task, videos})
				}
				return enc.Encode(task)
			}

			printTask(task)
			if showVideos {
				videos, err := st.ListVideos(task.ID)
				if err != nil {
					return err
				}
				printVideos(videos)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print machine-readable JSON")
	cmd.Flags().BoolVar(&showVideos, "videos", false, "include per-video details")
	return cmd
}

func printTask(task *model.Task) {
	fmt.Printf("Task    %s\n", task.ID)
	fmt.Printf("Target  %s\n", task.TargetURL)
	status := task.Status
	if task.Reason != "" {
		status += " (" + task.Reason + ")"
	}
	fmt.Printf("Status  %s\n", status)
	if task.CurrentStage != "" {
		fmt.Printf("Stage   %s\n", task.CurrentStage)
	}
	fmt.Printf("Videos  %d/%d processed, %d ok, %d failed (%d%%)\n",
		task.Processed, task.TotalDiscovered, task.Succeeded, task.Failed, task.Progress)
	if task.EstimatedRemaining > 0 && !model.IsTerminalTaskStatus(task.Status) {
		fmt.Printf("ETA     ~%s\n", time.Duration(task.EstimatedRemaining)*time.Second)
	}
	if task.LastError != "" {
		fmt.Printf("Error   %s\n", task.LastError)
	}
	if task.ResultFile != "" {
		fmt.Printf("Result  %s\n", task.ResultFile)
	}
}

func printVideos(videos []model.VideoRecord) {
	if len(videos) == 0 {
		fmt.Println("\n(no videos discovered)")
		return
	}
	fmt.Printf("\n%-16s %-13s %3s  %s\n", "VIDEO", "STATUS", "TRY", "TITLE")
	for _, v := range videos {
		title := v.Title
		if len(title) > 50 {
			title = title[:47] + "..."
		}
		fmt.Printf("%-16s %-13s %3d  %s\n", v.VideoID, v.Status, v.RetryCount, title)
		if v.Status == model.VideoFailed && v.ErrorMessage != "" {
			fmt.Printf("%-16s   %s\n", "", strings.SplitN(v.ErrorMessage, "\n", 2)[0])
		}
	}
}
