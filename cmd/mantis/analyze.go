package main

import (
	"context"
	"fmt"
	"os"
	"sort"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"mantis/internal/config"
	"mantis/internal/diag"
	"mantis/internal/diagfmt"
	"mantis/internal/driver"
	"mantis/internal/observ"
	"mantis/internal/ui"
	"mantis/internal/version"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [directory]",
	Short: "Analyze a project and report issues",
	Long:  "Discover mantis.toml, analyze the configured paths, and print issues.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAnalyze,
}

func init() {
	analyzeCmd.Flags().Bool("json", false, "emit issues as JSON")
	analyzeCmd.Flags().Bool("sarif", false, "emit issues as SARIF")
	analyzeCmd.Flags().Bool("no-cache", false, "disable the artifact cache")
	analyzeCmd.Flags().String("ui", "auto", "progress UI (auto|on|off)")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cleanup, err := setupProfiling(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	res, _, err := analyzeProject(cmd, args)
	if err != nil {
		return err
	}

	asJSON, _ := cmd.Flags().GetBool("json")
	asSARIF, _ := cmd.Flags().GetBool("sarif")
	if asJSON && asSARIF {
		return fmt.Errorf("--json and --sarif are mutually exclusive")
	}
	maxIssues, err := cmd.Root().PersistentFlags().GetInt("max-diagnostics")
	if err != nil {
		return err
	}

	issues := collectIssues(res, maxIssues)
	switch {
	case asJSON:
		err = diagfmt.JSON(os.Stdout, issues, res.FileSet, diagfmt.JSONOpts{
			PathMode:         diagfmt.PathModeRelative,
			IncludePositions: true,
			IncludeNotes:     true,
			IncludeFixes:     true,
		})
	case asSARIF:
		err = diagfmt.SARIF(os.Stdout, issues, res.FileSet, diagfmt.SarifMeta{
			ToolName:    "mantis",
			ToolVersion: version.Plain,
		})
	default:
		diagfmt.Pretty(os.Stdout, issues, res.FileSet, diagfmt.PrettyOpts{
			Color:     colorEnabled(cmd),
			PathMode:  diagfmt.PathModeAuto,
			ShowNotes: true,
			ShowFixes: true,
		})
		fmt.Fprintf(os.Stdout, "%d file(s) analyzed, %d issue(s)\n", len(res.Files), len(issues))
	}
	if err != nil {
		return err
	}
	if showTimings, _ := cmd.Root().PersistentFlags().GetBool("timings"); showTimings {
		printTimings(res.Timings)
	}
	if res.HasErrors() {
		os.Exit(1)
	}
	return nil
}

// analyzeProject runs the pipeline for the directory argument (default ".").
func analyzeProject(cmd *cobra.Command, args []string) (*driver.Result, *config.Config, error) {
	fe, ok := driver.RegisteredFrontend()
	if !ok {
		return nil, nil, fmt.Errorf("no language frontend registered in this build")
	}

	startDir := "."
	if len(args) == 1 {
		startDir = args[0]
	}
	cfg, err := config.Discover(startDir)
	if err != nil {
		return nil, nil, err
	}

	jobs, err := cmd.Root().PersistentFlags().GetInt("jobs")
	if err != nil {
		return nil, nil, err
	}

	opts := driver.Options{Config: cfg, Jobs: jobs}
	if noCache, _ := cmd.Flags().GetBool("no-cache"); !noCache {
		if cache, err := driver.OpenDiskCache("mantis"); err == nil {
			opts.Cache = cache
		}
	}

	uiFlag, _ := cmd.Flags().GetString("ui")
	if useProgressUI(uiFlag) {
		return analyzeWithProgress(cmd.Context(), fe, opts, cfg)
	}

	res, err := driver.Analyze(cmd.Context(), fe, opts)
	return res, cfg, err
}

func useProgressUI(mode string) bool {
	switch mode {
	case "on":
		return true
	case "off":
		return false
	}
	return isTerminal(os.Stdout)
}

func analyzeWithProgress(ctx context.Context, fe driver.Frontend, opts driver.Options, cfg *config.Config) (*driver.Result, *config.Config, error) {
	files, err := cfg.SourceFiles()
	if err != nil {
		return nil, nil, err
	}
	sort.Strings(files)

	events := make(chan driver.Event, len(files)*4)
	opts.Events = events

	type outcome struct {
		res *driver.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := driver.Analyze(ctx, fe, opts)
		done <- outcome{res, err}
	}()

	model := ui.NewProgressModel("analyzing", files, events)
	if _, err := tea.NewProgram(model, tea.WithContext(ctx)).Run(); err != nil {
		// Drain so the pipeline can finish even when the UI dies.
		go func() {
			for range events {
			}
		}()
	}
	out := <-done
	return out.res, cfg, out.err
}

func printTimings(report observ.Report) {
	fmt.Fprintln(os.Stdout, "timings:")
	for _, p := range report.Phases {
		line := fmt.Sprintf("  %-20s %7.2f ms", p.Name, p.DurationMS)
		if p.Note != "" {
			line += "  // " + p.Note
		}
		fmt.Fprintln(os.Stdout, line)
	}
	fmt.Fprintf(os.Stdout, "  %-20s %7.2f ms\n", "total", report.TotalMS)
}

// collectIssues flattens, sorts, and truncates per-file issue lists.
func collectIssues(res *driver.Result, max int) []diag.Issue {
	bag := diag.NewBag(max)
	for _, f := range res.Files {
		for _, issue := range f.Issues {
			bag.Add(issue)
		}
	}
	bag.Sort()
	bag.Dedup()
	return bag.Items()
}
