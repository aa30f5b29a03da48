// Package engine contains adapters for the external document indexing
// engine. The orchestrator only depends on the Engine interface; the engine
// itself (parsing, chunking, knowledge-store writes) lives elsewhere.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
)

// Engine kinds accepted by New
const (
	KindHTTP    = "http"
	KindCommand = "command"
)

var (
	// ErrUnknownKind is returned by New for an unsupported engine kind
	ErrUnknownKind = errors.New("unknown engine kind")
	// ErrDelegationUnsupported is returned when the engine cannot index a
	// whole folder on its own
	ErrDelegationUnsupported = errors.New("engine does not support folder delegation")
)

// Response is the engine's answer for one document
type Response struct {
	Success bool
	Error   string
	TrackID string
}

// Engine indexes one document into the knowledge store
type Engine interface {
	IndexDocument(ctx context.Context, path, name, outputDir string) (*Response, error)
}

// FolderRequest describes a whole-folder delegation
type FolderRequest struct {
	RootPath   string
	OutputDir  string
	Recursive  bool
	Extensions []string
}

// FolderSummary is the engine's own summary of a delegated folder run
type FolderSummary struct {
	Total     int    `json:"total_files"`
	Processed int    `json:"files_processed"`
	Failed    int    `json:"files_failed"`
	Message   string `json:"message,omitempty"`
}

// FolderIndexer is implemented by engines that can index a whole folder
// themselves. It is only used by the delegated folder path.
type FolderIndexer interface {
	IndexFolder(ctx context.Context, req FolderRequest) (*FolderSummary, error)
}

// HealthChecker is implemented by engines that can report reachability
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Options configures the engine built by New
type Options struct {
	Kind              string
	URL               string
	APIKey            string
	Timeout           time.Duration
	RequestsPerSecond float64
	MaxRetries        int
	Command           []string
	FolderCommand     []string
}

// New creates the engine selected by opts.Kind
func New(opts Options, logger *log.Logger) (Engine, error) {
	switch opts.Kind {
	case "", KindHTTP:
		return NewHTTPEngine(opts, logger)
	case KindCommand:
		return NewCommandEngine(opts.Command, opts.FolderCommand, logger)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, opts.Kind)
	}
}
