package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"mantis/internal/version"
)

var (
	versionFormat   string
	versionShowFull bool
)

type versionPayload struct {
	Tool      string `json:"tool"`
	Version   string `json:"version"`
	GitCommit string `json:"git_commit,omitempty"`
	BuildDate string `json:"build_date,omitempty"`
}

func init() {
	versionCmd.Flags().StringVar(&versionFormat, "format", "pretty", "output format (pretty|json)")
	versionCmd.Flags().BoolVar(&versionShowFull, "full", false, "show every recorded bit of build metadata")
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show mantis build fingerprints",
	RunE: func(cmd *cobra.Command, args []string) error {
		switch strings.ToLower(versionFormat) {
		case "json":
			payload := versionPayload{
				Tool:      "mantis",
				Version:   version.Plain,
				GitCommit: version.GitCommit,
				BuildDate: version.BuildDate,
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(payload)
		case "pretty", "":
			fmt.Fprintf(os.Stdout, "mantis %s\n", version.Version)
			if versionShowFull {
				if version.GitCommit != "" {
					fmt.Fprintf(os.Stdout, "commit: %s\n", version.GitCommit)
				}
				if version.BuildDate != "" {
					fmt.Fprintf(os.Stdout, "built:  %s\n", version.BuildDate)
				}
			}
			return nil
		}
		return fmt.Errorf("invalid --format value %q (expected pretty|json)", versionFormat)
	},
}
