package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewVersionCmd builds the version subcommand.
func NewVersionCmd(app *App) *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version and build metadata",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			version := fallback(app.version, "dev")
			if short {
				fmt.Fprintln(cmd.OutOrStdout(), version)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "shakedown %s (commit %s, built %s)\n",
				version, fallback(app.commit, "unknown"), fallback(app.date, "unknown"))
			return nil
		},
	}

	cmd.Flags().BoolVar(&short, "short", false, "Print only the version number")

	return cmd
}

func fallback(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
