// Package jobs tracks asynchronously dispatched indexing operations.
//
// Dispatch starts the work in the background and returns a job id at once.
// Status reports the job as pending, running or completed, and carries the
// indexing result once it is available. Recent jobs live in an expiring LRU
// cache; when a store is configured every state change is also persisted so
// results survive eviction and restarts.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/dshills/docindex-mcp/internal/logging"
	"github.com/dshills/docindex-mcp/internal/storage"
	"github.com/dshills/docindex-mcp/pkg/types"
)

const (
	// DefaultCacheSize is the number of finished jobs kept in memory
	DefaultCacheSize = 1024
	// DefaultTTL is how long a finished job stays in memory
	DefaultTTL = 24 * time.Hour
)

// ErrJobNotFound is returned for an unknown job id
var ErrJobNotFound = errors.New("job not found")

// Result is what a job produces. Exactly one field is set.
type Result struct {
	File      *types.FileResult
	Aggregate *types.AggregateResult
}

// RunFunc performs the work of a job
type RunFunc func(ctx context.Context) (Result, error)

// Config configures a Registry
type Config struct {
	CacheSize int
	TTL       time.Duration
}

// Registry dispatches jobs and answers status queries. It is safe for
// concurrent use.
type Registry struct {
	store  storage.JobStore
	cache  *expirable.LRU[string, *types.Job]
	logger *log.Logger

	mu     sync.Mutex
	active map[string]*types.Job
	wg     sync.WaitGroup
	now    func() time.Time
}

// NewRegistry creates a Registry. store may be nil, in which case jobs are
// only kept in memory.
func NewRegistry(store storage.JobStore, cfg Config, logger *log.Logger) *Registry {
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultCacheSize
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	return &Registry{
		store:  store,
		cache:  expirable.NewLRU[string, *types.Job](cfg.CacheSize, nil, cfg.TTL),
		logger: logging.OrDiscard(logger),
		active: make(map[string]*types.Job),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Dispatch registers a job and runs fn in the background. The job keeps
// running after ctx is cancelled; only ctx's values are passed on.
func (r *Registry) Dispatch(ctx context.Context, kind types.JobKind, target string, fn RunFunc) string {
	job := &types.Job{
		ID:          uuid.NewString(),
		Kind:        kind,
		State:       types.JobPending,
		Target:      target,
		SubmittedAt: r.now(),
	}

	r.mu.Lock()
	r.active[job.ID] = job
	snapshot := job.Clone()
	r.mu.Unlock()

	r.persist(ctx, snapshot)
	r.logger.Info("job dispatched", "job", job.ID, "kind", kind, "target", target)

	r.wg.Add(1)
	go r.run(context.WithoutCancel(ctx), job, fn)

	return job.ID
}

// run executes one job and records its result
func (r *Registry) run(ctx context.Context, job *types.Job, fn RunFunc) {
	defer r.wg.Done()

	r.mu.Lock()
	started := r.now()
	job.State = types.JobRunning
	job.StartedAt = &started
	snapshot := job.Clone()
	r.mu.Unlock()
	r.persist(ctx, snapshot)

	result, err := r.call(ctx, fn)

	r.mu.Lock()
	finished := r.now()
	job.State = types.JobCompleted
	job.FinishedAt = &finished
	job.File = result.File
	job.Aggregate = result.Aggregate
	if err != nil {
		job.Error = err.Error()
	}
	snapshot = job.Clone()
	r.cache.Add(job.ID, snapshot)
	delete(r.active, job.ID)
	r.mu.Unlock()

	r.persist(ctx, snapshot)
	r.logger.Info("job completed", "job", job.ID, "kind", job.Kind, "duration", finished.Sub(started), "err", job.Error)
}

// call runs fn, converting a panic into an error
func (r *Registry) call(ctx context.Context, fn RunFunc) (result Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("job panicked: %v", p)
			result = Result{}
		}
	}()
	return fn(ctx)
}

func (r *Registry) persist(ctx context.Context, job *types.Job) {
	if r.store == nil {
		return
	}
	if err := r.store.SaveJob(ctx, job); err != nil {
		r.logger.Error("failed to persist job", "job", job.ID, "state", job.State, "err", err)
	}
}

// Status returns a snapshot of the job with the given id
func (r *Registry) Status(ctx context.Context, id string) (*types.Job, error) {
	r.mu.Lock()
	if job, ok := r.active[id]; ok {
		snapshot := job.Clone()
		r.mu.Unlock()
		return snapshot, nil
	}
	r.mu.Unlock()

	if job, ok := r.cache.Get(id); ok {
		return job.Clone(), nil
	}

	if r.store == nil {
		return nil, ErrJobNotFound
	}
	job, err := r.store.GetJob(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load job: %w", err)
	}
	return job, nil
}

// Recent returns up to limit jobs, newest first. Per-file outcomes are not
// included when jobs come from the store.
func (r *Registry) Recent(ctx context.Context, limit int) ([]*types.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	if r.store != nil {
		return r.store.ListJobs(ctx, limit)
	}

	r.mu.Lock()
	seen := make(map[string]struct{}, len(r.active))
	jobs := make([]*types.Job, 0, len(r.active)+r.cache.Len())
	for id, job := range r.active {
		seen[id] = struct{}{}
		jobs = append(jobs, job.Clone())
	}
	r.mu.Unlock()
	for _, job := range r.cache.Values() {
		if _, dup := seen[job.ID]; dup {
			continue
		}
		jobs = append(jobs, job.Clone())
	}

	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].SubmittedAt.After(jobs[j].SubmittedAt)
	})
	if len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

// Prune deletes persisted jobs submitted more than olderThan ago
func (r *Registry) Prune(ctx context.Context, olderThan time.Duration) (int, error) {
	if r.store == nil {
		return 0, nil
	}
	return r.store.DeleteJobsBefore(ctx, r.now().Add(-olderThan))
}

// Active returns the number of jobs that have not completed
func (r *Registry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

// Wait blocks until every dispatched job has completed
func (r *Registry) Wait() {
	r.wg.Wait()
}
