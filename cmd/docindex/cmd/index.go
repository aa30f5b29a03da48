package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"github.com/dshills/docindex-mcp/internal/app"
	"github.com/dshills/docindex-mcp/internal/indexer"
	"github.com/dshills/docindex-mcp/pkg/types"
)

type indexOptions struct {
	recursive  bool
	extensions []string
	workers    int
	delegate   bool
	outputDir  string
}

// newIndexCmd creates the index command
func newIndexCmd(opts *rootOptions) *cobra.Command {
	flags := indexOptions{}

	cmd := &cobra.Command{
		Use:   "index <path>",
		Short: "Index a file or folder and print the result as JSON",
		Long: `Index a single file or every supported document in a folder and print the
result as JSON on stdout. The command exits with status 1 when the result
status is "failed"; a partial result exits with status 0.

Interrupting the run lets documents already sent to the engine finish; files
that have not started are reported as failed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.load(cmd); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runIndex(ctx, opts, flags, args[0], cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVarP(&flags.recursive, "recursive", "r", true, "Include files in subdirectories")
	cmd.Flags().StringSliceVar(&flags.extensions, "ext", nil, "Only index these extensions, e.g. --ext .pdf,.docx")
	cmd.Flags().IntVarP(&flags.workers, "workers", "w", 0, "Files indexed at once (default: indexing.max_workers)")
	cmd.Flags().BoolVar(&flags.delegate, "delegate", false, "Hand the whole folder to the engine in one call")
	cmd.Flags().StringVarP(&flags.outputDir, "output", "o", "", "Output directory (default: output_dir)")

	return cmd
}

func runIndex(ctx context.Context, opts *rootOptions, flags indexOptions, target string, out io.Writer) error {
	cfg := opts.cfg
	if flags.workers < 0 {
		return fmt.Errorf("--workers must be at least 1, got %d", flags.workers)
	}
	if flags.workers > 0 {
		cfg.Indexing.MaxWorkers = flags.workers
	}
	// One-off runs do not record jobs
	cfg.Jobs.Persist = false

	a, err := app.Build(cfg, opts.logger)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	path, err := filepath.Abs(target)
	if err != nil {
		return fmt.Errorf("invalid path %s: %w", target, err)
	}

	var (
		status types.Status
		result interface{}
	)
	if info, statErr := os.Stat(path); statErr == nil && info.Mode().IsRegular() {
		fr := a.Indexer.IndexSingle(ctx, path, "", flags.outputDir)
		status, result = fr.Status, fr
	} else {
		req := indexer.FolderRequest{
			RootPath:   path,
			OutputDir:  flags.outputDir,
			Recursive:  flags.recursive,
			Extensions: flags.extensions,
		}
		var agg *types.AggregateResult
		if flags.delegate {
			agg, err = a.Indexer.IndexFolderDelegated(ctx, req)
			if err != nil {
				return err
			}
		} else {
			agg = a.Indexer.IndexFolder(ctx, req)
		}
		status, result = agg.Status, agg
	}

	if err := printJSON(out, result); err != nil {
		return err
	}
	if status == types.StatusFailed {
		return ErrRunFailed
	}
	return nil
}

func printJSON(w io.Writer, v interface{}) error {
	data, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
