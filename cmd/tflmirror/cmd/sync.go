package cmd

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dalenewman/tflmirror/internal/pipeline"
	"github.com/dalenewman/tflmirror/internal/schema"
	"github.com/dalenewman/tflmirror/internal/ui"
)

func newSyncCmd() *cobra.Command {
	var (
		mode        string
		watch       bool
		lockRetries int
		plain       bool
		quiet       bool
	)

	cmd := &cobra.Command{
		Use:   "sync [entity...]",
		Short: "Mirror entities into the output index",
		Long: `Read each entity from its input and upsert it into the output index.

Modes:
  default  probe the index by primary key; update matches, insert the rest,
           and flag rows that left the input (entities with delete: true)
  init     reset each entity's index and insert every row

With --watch, tflmirror keeps running and re-syncs an entity whenever its
input changes.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadProcess()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("mode") {
				cfg.Mode = mode
			}
			if cmd.Flags().Changed("lock-retries") {
				cfg.Performance.LockRetries = lockRetries
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			renderer := ui.NewRenderer(ui.NewConfig(cmd.OutOrStdout(),
				ui.WithForcePlain(plain),
				ui.WithNoColor(noColor),
				ui.WithQuiet(quiet),
			))
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if err := renderer.Start(ctx); err != nil {
				return err
			}
			defer func() { _ = renderer.Stop() }()

			runner, err := pipeline.NewRunner(pipeline.Dependencies{
				Config:   cfg,
				Renderer: renderer,
				Logger:   slog.Default(),
			})
			if err != nil {
				return err
			}
			defer func() { _ = runner.Close() }()

			return runSync(ctx, runner, args, watch)
		},
	}

	cmd.Flags().StringVarP(&mode, "mode", "m", string(schema.ModeIncremental), "Sync mode: default or init")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Keep running and sync on input changes")
	cmd.Flags().IntVar(&lockRetries, "lock-retries", 0, "Retries when another writer holds an index")
	cmd.Flags().BoolVar(&plain, "plain", false, "Plain text output")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Only print the summary")

	return cmd
}

func runSync(ctx context.Context, runner *pipeline.Runner, entities []string, watch bool) error {
	_, err := runner.Run(ctx, pipeline.RunOptions{Entities: entities})
	if !watch {
		return err
	}
	if err != nil {
		slog.Warn("initial sync failed, watching anyway", slog.String("error", err.Error()))
	}
	return runner.Watch(ctx)
}
