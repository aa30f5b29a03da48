package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/dshills/docindex-mcp/internal/storage"
)

// versionInfo describes the running binary
type versionInfo struct {
	Version   string `json:"version"`
	BuildTime string `json:"build_time"`
	BuildMode string `json:"build_mode"`
	Driver    string `json:"sqlite_driver"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

func currentVersionInfo() versionInfo {
	return versionInfo{
		Version:   version,
		BuildTime: buildTime,
		BuildMode: storage.BuildMode,
		Driver:    storage.DriverName,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// newVersionCmd creates the version command
func newVersionCmd() *cobra.Command {
	var jsonOutput bool
	var shortOutput bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long:  `Print version information including build time, SQLite build mode and Go version.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := currentVersionInfo()

			// Short output takes precedence
			if shortOutput {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), info.Version)
				return err
			}

			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), info)
			}

			out := cmd.OutOrStdout()
			_, err := fmt.Fprintf(out, "docindex %s\nBuild Time: %s\nBuild Mode: %s\nSQLite Driver: %s\nGo: %s (%s)\n",
				info.Version, info.BuildTime, info.BuildMode, info.Driver, info.GoVersion, info.Platform)
			return err
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")
	cmd.Flags().BoolVar(&shortOutput, "short", false, "Output only the version number")

	return cmd
}
