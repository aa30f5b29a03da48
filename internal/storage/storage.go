package storage

import (
	"context"
	"time"

	"github.com/dshills/docindex-mcp/pkg/types"
)

// JobStore persists indexing jobs and their results
type JobStore interface {
	// SaveJob inserts or replaces a job together with its outcomes
	SaveJob(ctx context.Context, job *types.Job) error
	// GetJob returns ErrNotFound for an unknown id
	GetJob(ctx context.Context, id string) (*types.Job, error)
	// ListJobs returns the most recently submitted jobs first
	ListJobs(ctx context.Context, limit int) ([]*types.Job, error)
	// DeleteJobsBefore removes jobs submitted before cutoff
	DeleteJobsBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// Storage defines the interface for persisting job state
type Storage interface {
	JobStore

	Close() error
}

// resultKind records which result a job row carries
type resultKind string

const (
	resultNone      resultKind = ""
	resultFile      resultKind = "file"
	resultAggregate resultKind = "aggregate"
)
