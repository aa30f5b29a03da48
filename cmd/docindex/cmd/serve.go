package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/docindex-mcp/internal/api"
	"github.com/dshills/docindex-mcp/internal/app"
	"github.com/dshills/docindex-mcp/internal/mcp"
)

// PruneInterval is how often serve deletes jobs past their retention
const PruneInterval = time.Hour

// ErrAlreadyRunning is returned when another server holds the working
// directory lock
var ErrAlreadyRunning = errors.New("another docindex server is using this working directory")

type serveOptions struct {
	http bool
	mcp  bool
	in   io.Reader
	out  io.Writer
}

// newServeCmd creates the serve command
func newServeCmd(opts *rootOptions) *cobra.Command {
	so := serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, and optionally the MCP server on stdio",
		Long: `Run the HTTP API on server.host:server.port. With --mcp the MCP tools are
also served on stdin/stdout; combine with --http=false for an MCP-only server.

Only one server may use a working directory at a time.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !so.http && !so.mcp {
				return errors.New("nothing to serve: enable --http or --mcp")
			}
			if err := opts.load(cmd); err != nil {
				return err
			}
			so.in = cmd.InOrStdin()
			so.out = cmd.OutOrStdout()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runServe(ctx, opts, so)
		},
	}

	cmd.Flags().BoolVar(&so.http, "http", true, "Serve the HTTP API")
	cmd.Flags().BoolVar(&so.mcp, "mcp", false, "Serve MCP tools on stdio")

	return cmd
}

func runServe(ctx context.Context, opts *rootOptions, so serveOptions) (err error) {
	cfg, logger := opts.cfg, opts.logger

	if err := os.MkdirAll(cfg.WorkingDir, 0755); err != nil {
		return fmt.Errorf("failed to create working directory: %w", err)
	}
	lock := flock.New(cfg.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, cfg.WorkingDir)
	}
	defer func() { _ = lock.Unlock() }()

	a, err := app.Build(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		logger.Info("waiting for running jobs", "active", a.Jobs.Active())
		err = errors.Join(err, a.Close())
	}()

	pruneCtx, stopPrune := context.WithCancel(ctx)
	pruneDone := make(chan struct{})
	go func() {
		defer close(pruneDone)
		prunePeriodically(pruneCtx, a, PruneInterval)
	}()
	defer func() {
		stopPrune()
		<-pruneDone
	}()

	logger.Info("docindex starting",
		"version", version,
		"engine", cfg.Engine.Kind,
		"workers", cfg.Indexing.MaxWorkers,
		"working_dir", cfg.WorkingDir,
	)

	g, gctx := errgroup.WithContext(ctx)
	if so.http {
		srv := api.NewServer(a.Indexer, a.Jobs, api.Options{
			Addr:           cfg.Addr(),
			MaxUploadBytes: cfg.MaxUploadBytes(),
			Health:         a.EngineHealth,
		}, logger.WithPrefix("api"))
		g.Go(func() error { return srv.Run(gctx) })
	}
	if so.mcp {
		srv := mcp.NewServer(a.Indexer, a.Jobs, logger.WithPrefix("mcp"))
		g.Go(func() error {
			err := srv.Serve(gctx, so.in, so.out)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	return g.Wait()
}

// prunePeriodically prunes at start and then every interval until ctx ends
func prunePeriodically(ctx context.Context, a *app.App, interval time.Duration) {
	a.PruneJobs(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.PruneJobs(ctx)
		}
	}
}
