package cli

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/drydock-sh/shakedown/internal/cli/tui"
	"github.com/drydock-sh/shakedown/internal/config"
	"github.com/drydock-sh/shakedown/internal/events"
	"github.com/drydock-sh/shakedown/internal/history"
	"github.com/drydock-sh/shakedown/internal/pipeline"
)

// RunOptions selects the run command's output mode.
type RunOptions struct {
	NoTUI bool // Disable TUI even when stdout is a TTY
	JSON  bool // Emit NDJSON events instead of human output
}

// NewRunCmd builds the run subcommand.
func NewRunCmd(app *App) *cobra.Command {
	opts := RunOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute the verification pipeline once",
		Long: `Run executes the pipeline against the configured source tree:
snapshot, setup, auth, build, push, run, verify, cleanup.

Cleanup always executes, even when an earlier step fails or the run is
interrupted. The process exits 0 only when every gating step passed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.loadConfig()
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
				os.Exit(2)
			}

			return app.RunPipeline(cmd.Context(), cfg, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.NoTUI, "no-tui", false, "Disable interactive TUI (plain step output)")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "Emit NDJSON events on stdout")

	return cmd
}

// RunPipeline wires the event bus, display, and history store, then
// executes one pipeline run.
func (a *App) RunPipeline(ctx context.Context, cfg *config.Config, opts RunOptions) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Signals cancel the run; cleanup still executes on its own detached
	// context.
	handler := NewSignalHandler(cancel)
	handler.OnShutdown(func() {
		fmt.Fprintln(os.Stderr, "\nInterrupted; cleaning up (interrupt again to abort)...")
	})
	handler.Start()
	defer handler.Stop()

	bus := events.NewBus(1000)
	defer bus.Close()

	// Determine output mode. JSON wins over the TUI; the TUI needs a TTY.
	jsonMode := events.IsJSONMode(opts.JSON)
	useTUI := !opts.NoTUI && !jsonMode && term.IsTerminal(int(os.Stdout.Fd()))

	var tuiProgram *tea.Program
	var tuiBridge *tui.Bridge
	switch {
	case useTUI:
		model := tui.NewModel(pipeline.StepNames())
		tuiProgram = tea.NewProgram(model, tea.WithAltScreen())
		tuiBridge = tui.NewBridge(tuiProgram)
		bus.Subscribe(tuiBridge.Handler())

		// Run TUI in background. Quitting it abandons the run; the
		// engine's cleanup still executes before Run returns.
		go func() {
			m, err := tuiProgram.Run()
			if err != nil {
				fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
			}
			if final, ok := m.(*tui.Model); ok && final.Quitting {
				cancel()
			}
		}()
	case jsonMode:
		emitter := events.NewJSONEmitter(os.Stdout)
		bus.Subscribe(events.JSONEmitterHandler(emitter))
	default:
		bus.Subscribe(StepReporter(os.Stdout))
	}

	// Open the history store. Recording is best-effort: a broken store
	// warns but never blocks the run.
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

	res, runErr := eng.Run(ctx, "manual")

	if store != nil && res != nil {
		if err := history.Record(store, res); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to record run history: %v\n", err)
		}
	}

	// Tear the TUI down before printing the summary so the terminal is
	// back on the main screen.
	if tuiProgram != nil {
		tuiBridge.SendDone()
		tuiProgram.Wait()
	}

	// The summary prints after every run: styled on a TTY, plain
	// otherwise. In JSON mode it goes to stderr so stdout stays pure
	// NDJSON.
	if res != nil {
		if jsonMode {
			fmt.Fprint(os.Stderr, RenderSummary(res, false))
		} else {
			fmt.Print(RenderSummary(res, term.IsTerminal(int(os.Stdout.Fd()))))
		}
	}

	return runErr
}
