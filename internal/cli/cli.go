package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/drydock-sh/shakedown/internal/config"
)

// App owns the root command and the build metadata shared by the
// subcommands.
type App struct {
	rootCmd *cobra.Command

	// dir holds .shakedown.yaml and is the default build context
	dir string

	version string
	commit  string
	date    string
}

// New assembles the root command with all subcommands attached.
func New() *App {
	app := &App{}
	app.rootCmd = &cobra.Command{
		Use:   "shakedown",
		Short: "Build, publish, and shake down a container deployment",
		Long: `Shakedown runs a deployment-verification pipeline against a source
tree: build the container image, push it to the registry, run it, inspect
what actually came up, and tear everything down whether or not a step
failed along the way.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	app.rootCmd.PersistentFlags().StringVarP(&app.dir, "dir", "C", "",
		"Directory containing .shakedown.yaml and the source tree (default: cwd)")

	app.rootCmd.AddCommand(
		NewRunCmd(app),
		NewServeCmd(app),
		NewHistoryCmd(app),
		NewVersionCmd(app),
	)
	return app
}

// Execute dispatches to the selected subcommand.
func (a *App) Execute() error {
	return a.rootCmd.Execute()
}

// SetVersion records build metadata for the version command.
func (a *App) SetVersion(version, commit, date string) {
	a.version = version
	a.commit = commit
	a.date = date
}

// loadConfig resolves the working directory and loads configuration
// from it. Relative paths inside the config resolve against that
// directory, not the process cwd.
func (a *App) loadConfig() (*config.Config, error) {
	dir := a.dir
	if dir == "" {
		dir = "."
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve directory %q: %w", dir, err)
	}

	cfg, err := config.LoadConfig(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}
