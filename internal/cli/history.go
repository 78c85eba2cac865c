package cli

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/drydock-sh/shakedown/internal/history"
)

// HistoryOptions holds the history command's flag values.
type HistoryOptions struct {
	Limit int // Maximum runs to list
}

// NewHistoryCmd builds the history subcommand.
func NewHistoryCmd(app *App) *cobra.Command {
	opts := HistoryOptions{Limit: 20}

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List recorded pipeline runs",
		Long: `History lists past runs from the local SQLite store, newest first.
Passing a run ID prints that run's per-step breakdown instead.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.loadConfig()
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
				os.Exit(2)
			}
			if !cfg.History.Enabled() {
				return fmt.Errorf("run history is disabled (history.path is empty)")
			}

			store, err := history.Open(cfg.History.Path)
			if err != nil {
				return fmt.Errorf("failed to open history: %w", err)
			}
			defer store.Close()

			if len(args) == 1 {
				return printRunDetail(cmd.OutOrStdout(), store, args[0])
			}
			return printRunList(cmd.OutOrStdout(), store, opts.Limit)
		},
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "Maximum runs to list")

	return cmd
}

// printRunList renders the run table, newest first.
func printRunList(w io.Writer, store *history.Store, limit int) error {
	runs, err := store.ListRuns(limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTATUS\tTRIGGER\tCOMMIT\tSTARTED\tDURATION")
	for _, run := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			run.ID,
			run.Status,
			orDash(run.TriggeredBy),
			commitLabel(run),
			run.StartedAt.Local().Format("2006-01-02 15:04:05"),
			durationLabel(run),
		)
	}
	return tw.Flush()
}

// printRunDetail renders one run's header and per-step breakdown.
func printRunDetail(w io.Writer, store *history.Store, id string) error {
	run, err := store.GetRun(id)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Run:       %s\n", run.ID)
	fmt.Fprintf(w, "Status:    %s\n", run.Status)
	fmt.Fprintf(w, "Image:     %s\n", run.Image)
	fmt.Fprintf(w, "Container: %s\n", run.Container)
	fmt.Fprintf(w, "Commit:    %s\n", commitLabel(run))
	fmt.Fprintf(w, "Trigger:   %s\n", orDash(run.TriggeredBy))
	fmt.Fprintf(w, "Started:   %s\n", run.StartedAt.Local().Format(time.RFC3339))
	fmt.Fprintf(w, "Duration:  %s\n", durationLabel(run))
	if run.Error != "" {
		fmt.Fprintf(w, "Error:     %s\n", run.Error)
	}

	if len(run.Steps) == 0 {
		return nil
	}

	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STEP\tSTATUS\tDURATION\tERROR")
	for _, step := range run.Steps {
		duration := "-"
		if step.Status != "skipped" {
			duration = (time.Duration(step.DurationMS) * time.Millisecond).String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			step.Name, step.Status, duration, orDash(step.Error))
	}
	return tw.Flush()
}

func commitLabel(run *history.Run) string {
	if run.CommitSHA == "" {
		return "-"
	}
	sha := run.CommitSHA
	if len(sha) > 7 {
		sha = sha[:7]
	}
	if run.Dirty {
		sha += "*"
	}
	if run.Branch != "" {
		sha += " (" + run.Branch + ")"
	}
	return sha
}

func durationLabel(run *history.Run) string {
	if run.CompletedAt == nil {
		return "-"
	}
	return run.CompletedAt.Sub(run.StartedAt).Round(time.Millisecond).String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
