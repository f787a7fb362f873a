package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"mantis/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Initialize a mantis project",
	Long: `Create a mantis.toml manifest in the target directory (default: the
current directory). The directory is created when it does not exist.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

const starterManifest = `paths = ["src"]
ignore = ["vendor/**"]

[analysis]
loop-passes = 4
taint = false
threads = 0
`

func runInit(cmd *cobra.Command, args []string) error {
	target := "."
	if len(args) == 1 {
		target = args[0]
	}
	abs, err := filepath.Abs(target)
	if err != nil {
		return err
	}

	if st, err := os.Stat(abs); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		if err := os.MkdirAll(abs, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %q: %w", abs, err)
		}
	} else if !st.IsDir() {
		return fmt.Errorf("%q is not a directory", abs)
	}

	manifestPath := filepath.Join(abs, config.ManifestName)
	if _, err := os.Stat(manifestPath); err == nil {
		return fmt.Errorf("project already initialized: %s exists", manifestPath)
	}
	if err := os.WriteFile(manifestPath, []byte(starterManifest), 0o644); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Join(abs, "src"), 0o755); err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "created %s\n", manifestPath)
	return nil
}
