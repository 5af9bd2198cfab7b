// Package cli wires the command tree: submit, worker, status, list,
// cancel and watch all share one loaded configuration and one store.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"vidscribe/internal/config"
	"vidscribe/internal/logging"
	"vidscribe/internal/store"
)

// App carries the state shared by every subcommand.
type App struct {
	cfgPath string
	verbose bool
	noColor bool

	cfg config.Config
	log *logging.Logger
}

// Execute runs the command tree and returns the process exit code.
func Execute() int {
	app := &App{}

	root := &cobra.Command{
		Use:   "vidscribe",
		Short: "Transcribe a creator's videos end to end",
		Long: "vidscribe enumerates a creator's public video feed, downloads the audio\n" +
			"of each video and transcribes it, tracking durable per-task progress so\n" +
			"interrupted work resumes where it left off.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.setup()
		},
	}
	root.PersistentFlags().StringVar(&app.cfgPath, "config", "config.json", "path to JSON config file")
	root.PersistentFlags().BoolVarP(&app.verbose, "verbose", "v", false, "enable debug logging")
	root.PersistentFlags().BoolVar(&app.noColor, "no-color", false, "disable colored output")

	root.AddCommand(
		newSubmitCmd(app),
		newWorkerCmd(app),
		newStatusCmd(app),
		newListCmd(app),
		newCancelCmd(app),
		newWatchCmd(app),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

func (a *App) setup() error {
	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	log, err := logging.New(logging.Options{
		Color:   !a.noColor,
		Verbose: a.verbose,
		LogFile: cfg.LogFile,
	})
	if err != nil {
		return err
	}
	a.log = log
	return nil
}

func (a *App) openStore() (store.Store, error) {
	if err := a.cfg.EnsureDirs(); err != nil {
		return nil, err
	}
	return store.OpenSQLite(a.cfg.DatabasePath)
}
