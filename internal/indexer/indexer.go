package indexer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/docindex-mcp/internal/engine"
	"github.com/dshills/docindex-mcp/internal/logging"
	"github.com/dshills/docindex-mcp/internal/staging"
	"github.com/dshills/docindex-mcp/pkg/types"
)

// DefaultMaxWorkers is the number of files indexed at once when Config does
// not say otherwise
const DefaultMaxWorkers = 3

// Indexer coordinates document indexing: discover -> fan out -> aggregate
type Indexer struct {
	engine  engine.Engine
	staging *staging.Manager
	config  Config
	logger  *log.Logger
}

// Config contains configuration for the indexer
type Config struct {
	MaxWorkers  int      // Concurrent file tasks per run (default: 3)
	OutputDir   string   // Default output directory handed to the engine
	Extensions  []string // Default extension filter (default: DefaultExtensions)
	MaxErrorLen int      // Maximum error text per outcome (default: 512)
}

// FolderRequest describes a folder run
type FolderRequest struct {
	RootPath   string
	OutputDir  string // Empty uses Config.OutputDir
	Recursive  bool
	Extensions []string // Empty uses Config.Extensions
}

// Upload is one uploaded document. Content is read once while staging.
type Upload struct {
	Name    string
	Content io.Reader
}

// New creates a new Indexer instance
func New(eng engine.Engine, stage *staging.Manager, config Config, logger *log.Logger) *Indexer {
	if config.MaxWorkers <= 0 {
		config.MaxWorkers = DefaultMaxWorkers
	}
	if config.MaxErrorLen <= 0 {
		config.MaxErrorLen = DefaultMaxErrorLen
	}
	config.Extensions = NormalizeExtensions(config.Extensions)

	logger = logging.OrDiscard(logger)
	if stage == nil {
		stage = staging.NewManager("", logger)
	}

	return &Indexer{
		engine:  eng,
		staging: stage,
		config:  config,
		logger:  logger,
	}
}

// Config returns the effective configuration
func (idx *Indexer) Config() Config {
	return idx.config
}

// Engine returns the engine documents are sent to
func (idx *Indexer) Engine() engine.Engine {
	return idx.engine
}

// IndexSingle indexes one file. The result is either success or failed.
func (idx *Indexer) IndexSingle(ctx context.Context, path, name, outputDir string) *types.FileResult {
	if name == "" {
		name = filepath.Base(path)
	}
	outputDir = idx.outputDir(outputDir)

	if err := ensureDir(outputDir); err != nil {
		idx.logger.Error("failed to prepare output directory", "dir", outputDir, "err", err)
		return &types.FileResult{
			Status:  types.StatusFailed,
			Message: fmt.Sprintf("Failed to index document: %s", name),
			Path:    path,
			Name:    name,
			Error:   SanitizeError(err.Error(), idx.config.MaxErrorLen),
		}
	}

	task := FileTask{
		Engine:      idx.engine,
		Path:        path,
		Name:        name,
		OutputDir:   outputDir,
		MaxErrorLen: idx.config.MaxErrorLen,
	}
	outcome := task.Run(ctx)

	result := &types.FileResult{
		Status:   outcome.Status,
		Path:     outcome.Path,
		Name:     outcome.Name,
		Duration: outcome.Duration,
		Error:    outcome.Error,
	}
	if outcome.Succeeded() {
		result.Message = fmt.Sprintf("Document indexed successfully: %s", name)
		idx.logger.Info("document indexed", "path", path, "duration", outcome.Duration.Std())
	} else {
		result.Message = fmt.Sprintf("Failed to index document: %s", name)
		idx.logger.Warn("document failed", "path", path, "err", outcome.Error)
	}
	return result
}

// IndexFolder discovers the files under req.RootPath and indexes them
// concurrently, at most Config.MaxWorkers at a time. Outcomes are kept in
// discovery order. Per-file failures never abort the run.
func (idx *Indexer) IndexFolder(ctx context.Context, req FolderRequest) *types.AggregateResult {
	start := time.Now()
	root := req.RootPath

	extensions := NormalizeExtensions(req.Extensions)
	if len(extensions) == 0 {
		extensions = idx.config.Extensions
	}

	// Discover files
	files, err := Discover(root, req.Recursive, extensions)
	if err != nil {
		idx.logger.Warn("folder discovery failed", "root", root, "err", err)
		return failedResult(root, req.Recursive, err, time.Since(start))
	}

	if len(files) == 0 {
		result := Aggregate(root, req.Recursive, nil, time.Since(start))
		if len(req.Extensions) > 0 {
			result.Message += fmt.Sprintf(" (extensions: %s)", strings.Join(extensions, ", "))
		}
		idx.logger.Info("no files to index", "root", root, "recursive", req.Recursive)
		return result
	}

	outputDir := idx.outputDir(req.OutputDir)
	if err := ensureDir(outputDir); err != nil {
		idx.logger.Error("failed to prepare output directory", "dir", outputDir, "err", err)
		return failedResult(root, req.Recursive, err, time.Since(start))
	}

	idx.logger.Info("indexing folder", "root", root, "files", len(files), "workers", idx.config.MaxWorkers)

	outcomes := idx.indexFiles(ctx, root, files, outputDir)

	result := Aggregate(root, req.Recursive, outcomes, time.Since(start))
	idx.logResult(result)
	return result
}

// indexFiles starts one task per file and waits for all of them. Tasks only
// run while holding a limiter slot. Each file's output goes to the
// subdirectory of outputDir that mirrors its place under root.
func (idx *Indexer) indexFiles(ctx context.Context, root string, files []string, outputDir string) []types.Outcome {
	limiter := NewLimiter(idx.config.MaxWorkers)
	outcomes := make([]types.Outcome, len(files))

	var g errgroup.Group
	for i, path := range files {
		g.Go(func() error {
			task := FileTask{
				Engine:      idx.engine,
				Path:        path,
				OutputDir:   mirrorDir(outputDir, root, path),
				MaxErrorLen: idx.config.MaxErrorLen,
			}
			err := limiter.WithSlot(ctx, func() {
				if err := ensureDir(task.OutputDir); err != nil {
					outcomes[i] = types.Outcome{
						Path:   path,
						Name:   filepath.Base(path),
						Status: types.StatusFailed,
						Error:  SanitizeError(err.Error(), idx.config.MaxErrorLen),
					}
					return
				}
				outcomes[i] = task.Run(ctx)
			})
			if err != nil {
				outcomes[i] = types.Outcome{
					Path:   path,
					Name:   filepath.Base(path),
					Status: types.StatusFailed,
					Error:  SanitizeError("not started: "+err.Error(), idx.config.MaxErrorLen),
				}
			}
			return nil
		})
	}

	// Tasks never return errors
	_ = g.Wait()

	return outcomes
}

// IndexBatch stages uploads in a fresh directory, indexes that directory
// non-recursively and removes it again. Items without a usable name or
// without content are skipped. An empty upload list returns types.ErrNoInputs and does nothing.
func (idx *Indexer) IndexBatch(ctx context.Context, uploads []Upload) (*types.AggregateResult, error) {
	if len(uploads) == 0 {
		return nil, types.ErrNoInputs
	}

	start := time.Now()
	var result *types.AggregateResult

	err := idx.staging.With(func(area *staging.Area) error {
		for _, u := range uploads {
			if _, err := area.Write(u.Name, u.Content); err != nil {
				if errors.Is(err, staging.ErrUnusableName) || errors.Is(err, staging.ErrNoContent) {
					idx.logger.Warn("skipping unusable upload", "name", u.Name, "batch", area.OwnerBatchID, "err", err)
					continue
				}
				return err
			}
		}

		result = idx.IndexFolder(ctx, FolderRequest{RootPath: area.Root})
		return nil
	})
	if err != nil {
		idx.logger.Error("failed to stage batch", "err", err)
		return failedResult(idx.staging.BaseDir(), false, err, time.Since(start)), nil
	}

	return result, nil
}

// IndexUpload stages a single upload, indexes it and removes the staged copy
func (idx *Indexer) IndexUpload(ctx context.Context, upload Upload) (*types.FileResult, error) {
	name, err := staging.CleanName(upload.Name)
	if err != nil {
		return nil, err
	}

	var result *types.FileResult
	err = idx.staging.With(func(area *staging.Area) error {
		path, err := area.Write(name, upload.Content)
		if err != nil {
			return err
		}
		result = idx.IndexSingle(ctx, path, name, "")
		return nil
	})
	if err != nil {
		idx.logger.Error("failed to stage upload", "name", name, "err", err)
		return &types.FileResult{
			Status:  types.StatusFailed,
			Message: fmt.Sprintf("Failed to index document: %s", name),
			Name:    name,
			Error:   SanitizeError(err.Error(), idx.config.MaxErrorLen),
		}, nil
	}

	return result, nil
}

// IndexFolderDelegated hands the whole folder to the engine in one call. It
// is only available when the engine implements engine.FolderIndexer. The
// result carries counts but no per-file outcomes.
func (idx *Indexer) IndexFolderDelegated(ctx context.Context, req FolderRequest) (*types.AggregateResult, error) {
	folderIndexer, ok := idx.engine.(engine.FolderIndexer)
	if !ok {
		return nil, engine.ErrDelegationUnsupported
	}

	start := time.Now()
	root := req.RootPath

	if err := CheckRoot(root); err != nil {
		idx.logger.Warn("folder discovery failed", "root", root, "err", err)
		return failedResult(root, req.Recursive, err, time.Since(start)), nil
	}

	extensions := NormalizeExtensions(req.Extensions)
	if len(extensions) == 0 {
		extensions = idx.config.Extensions
	}
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	outputDir := idx.outputDir(req.OutputDir)
	if err := ensureDir(outputDir); err != nil {
		return failedResult(root, req.Recursive, err, time.Since(start)), nil
	}

	summary, err := folderIndexer.IndexFolder(ctx, engine.FolderRequest{
		RootPath:   root,
		OutputDir:  outputDir,
		Recursive:  req.Recursive,
		Extensions: extensions,
	})
	if err != nil {
		if errors.Is(err, engine.ErrDelegationUnsupported) {
			return nil, err
		}
		idx.logger.Warn("delegated folder run failed", "root", root, "err", err)
		return failedResult(root, req.Recursive, err, time.Since(start)), nil
	}

	counts := normalizeSummary(summary)
	status := Classify(counts.Total, counts.Processed, counts.Failed)
	result := &types.AggregateResult{
		Status:    status,
		Message:   BuildMessage(status, root, counts),
		RootPath:  root,
		Recursive: req.Recursive,
		Counts:    counts,
		Duration:  types.Millis(time.Since(start)),
	}
	idx.logResult(result)
	return result, nil
}

// normalizeSummary maps an engine summary onto counts that add up. Files the
// engine counted but neither processed nor failed are reported as skipped.
func normalizeSummary(s *engine.FolderSummary) types.Counts {
	processed := max(s.Processed, 0)
	failed := max(s.Failed, 0)
	total := max(s.Total, processed+failed)
	return types.Counts{
		Total:     total,
		Processed: processed,
		Failed:    failed,
		Skipped:   total - processed - failed,
	}
}

func (idx *Indexer) outputDir(dir string) string {
	if dir != "" {
		return dir
	}
	return idx.config.OutputDir
}

func (idx *Indexer) logResult(result *types.AggregateResult) {
	for _, o := range result.Outcomes {
		if !o.Succeeded() {
			idx.logger.Warn("file failed", "path", o.Path, "err", o.Error)
		}
	}

	keyvals := []interface{}{
		"root", result.RootPath,
		"status", result.Status,
		"total", result.Counts.Total,
		"processed", result.Counts.Processed,
		"failed", result.Counts.Failed,
		"duration", result.Duration.Std(),
	}
	if result.Status == types.StatusSuccess {
		idx.logger.Info("folder indexed", keyvals...)
		return
	}
	idx.logger.Warn("folder indexed with failures", keyvals...)
}

// mirrorDir returns the directory under outputDir matching path's parent
// relative to root. Files directly under root, and paths that cannot be made
// relative, use outputDir itself.
func mirrorDir(outputDir, root, path string) string {
	if outputDir == "" {
		return ""
	}
	rel, err := filepath.Rel(root, filepath.Dir(path))
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return outputDir
	}
	return filepath.Join(outputDir, rel)
}

// ensureDir creates dir if needed. An empty dir means the engine chooses.
func ensureDir(dir string) error {
	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	return nil
}
