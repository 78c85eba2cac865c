package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/drydock-sh/shakedown/internal/config"
	"github.com/drydock-sh/shakedown/internal/events"
	"github.com/drydock-sh/shakedown/internal/history"
	"github.com/drydock-sh/shakedown/internal/pipeline"
	"github.com/drydock-sh/shakedown/internal/webhook"
)

// serveStopTimeout bounds graceful shutdown. It has to outlast a full
// pipeline run including cleanup.
const serveStopTimeout = 10 * time.Minute

// ServeOptions holds the serve command's flag values.
type ServeOptions struct {
	Addr string // Listen address override
}

// NewServeCmd builds the serve subcommand.
func NewServeCmd(app *App) *cobra.Command {
	opts := ServeOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Listen for repository webhooks and run the pipeline on pushes",
		Long: `Serve starts an HTTP listener that accepts GitHub-style webhook
deliveries and dispatches a pipeline run for each push to the watched
branch. One run executes at a time; deliveries that arrive while a run
is in flight are answered 409 and dropped.

Endpoints: POST /hooks/push, GET /healthz, GET /api/runs, GET /api/events.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.loadConfig()
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
				os.Exit(2)
			}
			if opts.Addr != "" {
				cfg.Trigger.Addr = opts.Addr
			}

			return app.Serve(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "Listen address (overrides trigger.addr)")

	return cmd
}

// Serve runs the webhook server until interrupted, then shuts it down,
// letting an in-flight run finish its cleanup first.
func (a *App) Serve(ctx context.Context, cfg *config.Config) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	handler := NewSignalHandler(cancel)
	handler.OnShutdown(func() {
		fmt.Fprintln(os.Stderr, "\nShutting down; waiting for the current run to finish (interrupt again to abort)...")
	})
	handler.Start()
	defer handler.Stop()

	bus := events.NewBus(1000)
	defer bus.Close()
	bus.Subscribe(events.LogHandler(events.LogConfig{Writer: os.Stderr, TimeFormat: time.RFC3339}))

	var store *history.Store
	if cfg.History.Enabled() {
		s, err := history.Open(cfg.History.Path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: run history disabled: %v\n", err)
		} else {
			store = s
			defer store.Close()
		}
	}

	eng, err := pipeline.New(cfg, pipeline.Dependencies{
		Bus: bus,
		Env: os.Getenv,
	})
	if err != nil {
		return err
	}

	// The webhook secret only ever travels through the environment; it
	// is read once here and never logged or persisted.
	var secret []byte
	if cfg.Trigger.SecretEnv != "" {
		if v := os.Getenv(cfg.Trigger.SecretEnv); v != "" {
			secret = []byte(v)
		} else {
			fmt.Fprintf(os.Stderr, "warning: %s is not set; webhook signatures will not be verified\n",
				cfg.Trigger.SecretEnv)
		}
	}

	srv, err := webhook.New(webhook.Config{
		Addr:      cfg.Trigger.Addr,
		Branch:    cfg.Trigger.Branch,
		Secret:    secret,
		SourceDir: cfg.Source.Dir,
		Update:    cfg.Trigger.Update,
		Runner:    eng,
		Store:     store,
		Bus:       bus,
	})
	if err != nil {
		return err
	}
	if err := srv.Start(); err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "shakedown: listening on %s (branch %s)\n", srv.Addr(), cfg.Trigger.Branch)

	<-ctx.Done()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), serveStopTimeout)
	defer stopCancel()
	return srv.Stop(stopCtx)
}
