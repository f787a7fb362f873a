package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mantis/internal/diag"
	"mantis/internal/fix"
)

var fixCmd = &cobra.Command{
	Use:   "fix [directory]",
	Short: "Apply available fixes",
	Long:  "Run analysis, surface recorded fix plans, and apply them according to the chosen strategy.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runFix,
}

func init() {
	fixCmd.Flags().Bool("all", false, "apply all safe fixes")
	fixCmd.Flags().Bool("once", false, "apply the first available fix (default)")
	fixCmd.Flags().String("id", "", "apply the fix with a specific identifier")
	fixCmd.Flags().Bool("unsafe", false, "with --all, also apply potentially-unsafe fixes")
}

func runFix(cmd *cobra.Command, args []string) error {
	applyAll, _ := cmd.Flags().GetBool("all")
	applyOnce, _ := cmd.Flags().GetBool("once")
	targetID, _ := cmd.Flags().GetString("id")
	unsafeFlag, _ := cmd.Flags().GetBool("unsafe")

	if targetID != "" && (applyAll || applyOnce) {
		return fmt.Errorf("--id cannot be combined with --all or --once")
	}
	if applyAll && applyOnce {
		return fmt.Errorf("--all and --once are mutually exclusive")
	}

	mode := fix.ModeOnce
	switch {
	case targetID != "":
		mode = fix.ModeID
	case applyAll:
		mode = fix.ModeAll
	}

	res, _, err := analyzeProject(cmd, args)
	if err != nil {
		return err
	}

	var issues []diag.Issue
	for _, f := range res.Files {
		issues = append(issues, f.Issues...)
	}

	applied, err := fix.Apply(res.FileSet, issues, fix.Options{
		Mode:     mode,
		TargetID: targetID,
		Unsafe:   unsafeFlag,
	})
	if err != nil {
		if errors.Is(err, fix.ErrNoFixes) {
			fmt.Fprintln(os.Stdout, "no applicable fixes")
			return nil
		}
		return err
	}

	for _, a := range applied.Applied {
		fmt.Fprintf(os.Stdout, "applied %s: %s (%s)\n", a.ID, a.Title, a.Safety)
	}
	for _, s := range applied.Skipped {
		fmt.Fprintf(os.Stdout, "skipped %s: %s\n", s.Title, s.Reason)
	}
	for _, c := range applied.FileChanges {
		fmt.Fprintf(os.Stdout, "%s: %d edit(s)\n", c.Path, c.EditCount)
	}
	return nil
}
