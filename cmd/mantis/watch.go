package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mantis/internal/config"
	"mantis/internal/diagfmt"
	"mantis/internal/driver"
)

var watchCmd = &cobra.Command{
	Use:   "watch [directory]",
	Short: "Re-analyze on file changes",
	Long:  "Run analysis, then watch the project tree and re-run whenever a source file or the manifest changes.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	fe, ok := driver.RegisteredFrontend()
	if !ok {
		return fmt.Errorf("no language frontend registered in this build")
	}

	startDir := "."
	if len(args) == 1 {
		startDir = args[0]
	}
	cfg, err := config.Discover(startDir)
	if err != nil {
		return err
	}
	jobs, err := cmd.Root().PersistentFlags().GetInt("jobs")
	if err != nil {
		return err
	}
	maxIssues, err := cmd.Root().PersistentFlags().GetInt("max-diagnostics")
	if err != nil {
		return err
	}

	opts := driver.Options{Config: cfg, Jobs: jobs}
	if cache, err := driver.OpenDiskCache("mantis"); err == nil {
		opts.Cache = cache
	}

	useColor := colorEnabled(cmd)
	return driver.Watch(cmd.Context(), fe, opts, func(res *driver.Result, err error) {
		// Clear between runs so the terminal shows only the latest state.
		if useColor {
			fmt.Fprint(os.Stdout, "\033[2J\033[H")
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "watch: %v\n", err)
			return
		}
		issues := collectIssues(res, maxIssues)
		diagfmt.Pretty(os.Stdout, issues, res.FileSet, diagfmt.PrettyOpts{
			Color:     useColor,
			PathMode:  diagfmt.PathModeRelative,
			ShowNotes: true,
			ShowFixes: true,
		})
		fmt.Fprintf(os.Stdout, "%d file(s), %d issue(s); watching for changes\n", len(res.Files), len(issues))
	})
}
