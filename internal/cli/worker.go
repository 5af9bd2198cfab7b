package cli

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"vidscribe/internal/feed"
	"vidscribe/internal/media"
	"vidscribe/internal/pipeline"
	"vidscribe/internal/scheduler"
	"vidscribe/internal/transcribe"
)

func newWorkerCmd(app *App) *cobra.Command {
	var workers int

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Process queued tasks until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			enum := &feed.Client{
				Binary:      app.cfg.YtDlpPath,
				CookiesPath: app.cfg.CookiesFile,
			}
			trans := &transcribe.WhisperCLI{
				Binary:   app.cfg.WhisperPath,
				Model:    app.cfg.WhisperModel,
				Language: app.cfg.Language,
			}
			if err := enum.Check(); err != nil {
				return err
			}
			if err := trans.Check(); err != nil {
				return err
			}

			st, err := app.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			collab := pipeline.Collaborators{
				Enumerator: enum,
				Acquirer: media.NewChain(
					&media.Extractor{
						Binary:      app.cfg.YtDlpPath,
						OutputDir:   app.cfg.AudioDir,
						CookiesPath: app.cfg.CookiesFile,
					},
					&media.HTTPFetcher{
						OutputDir: app.cfg.AudioDir,
						UserAgent: app.cfg.UserAgent,
					},
				),
				Transcriber: trans,
			}
			p := pipeline.New(st, collab, app.cfg.Policy(), app.log, app.cfg.ResultsDir)

			opts := app.cfg.SchedulerOptions()
			if workers > 0 {
				opts.Workers = workers
			}
			s := scheduler.New(st, p, app.log, opts)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			app.log.Info("worker started with %d slot(s), press Ctrl+C to stop", opts.Workers)
			err = s.Run(ctx)
			if errors.Is(err, context.Canceled) {
				app.log.Info("worker stopped")
				return nil
			}
			return err
		},
	}

	cmd.Flags().IntVar(&workers, "workers", 0, "concurrent task limit (default from config)")
	return cmd
}
