package main

import (
	"fmt"
	"os"

	"github.com/drydock-sh/shakedown/internal/cli"
)

// Overridden at release time via -ldflags.
var version, commit, date = "dev", "unknown", "unknown"

func main() {
	app := cli.New()
	app.SetVersion(version, commit, date)

	if err := app.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
