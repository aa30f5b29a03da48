// Package cmd provides the CLI commands for docindex.
package cmd

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/dshills/docindex-mcp/internal/config"
	"github.com/dshills/docindex-mcp/internal/logging"
)

// Set at build time with -ldflags "-X ...cmd.version=..."
var (
	version   = "dev"
	buildTime = "unknown"
)

// ErrRunFailed is returned when an index run finished with status failed.
// The result has already been printed.
var ErrRunFailed = errors.New("indexing failed")

// rootOptions carries the persistent flags and, once loaded, the resolved
// configuration and logger
type rootOptions struct {
	configPath string
	logLevel   string
	logFormat  string

	cfg    *config.Config
	logger *log.Logger
}

// load resolves the configuration and builds the logger. Logs always go to
// stderr; stdout carries MCP traffic or command output.
func (o *rootOptions) load(cmd *cobra.Command) error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Log.Format = o.logFormat
	}

	o.cfg = cfg
	o.logger = logging.New(cfg.Log, cmd.ErrOrStderr())
	return nil
}

// NewRootCmd creates the root command for the docindex CLI
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "docindex",
		Short: "Concurrent document indexing for RAG knowledge stores",
		Long: `docindex sends documents to an indexing engine (a LightRAG-compatible
server or a local command), several at a time, and reports one structured
result per file, folder or uploaded batch.

Run 'docindex serve' for the HTTP API, add --mcp to expose the MCP tools on
stdio, or use 'docindex index <path>' for a one-off run.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("docindex version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Config file (default: ./"+config.DefaultFileName+" if present)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "Log format: text, json, logfmt")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newIndexCmd(opts))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command and returns the process exit code
func Execute() int {
	root := NewRootCmd()
	if err := root.Execute(); err != nil {
		if !errors.Is(err, ErrRunFailed) {
			_, _ = fmt.Fprintln(root.ErrOrStderr(), "Error:", err)
		}
		return 1
	}
	return 0
}
