package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/docindex-mcp/internal/storage"
	"github.com/dshills/docindex-mcp/pkg/types"
)

func setupTestStorage(t *testing.T) *storage.SQLiteStorage {
	t.Helper()
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func successResult(root string) Result {
	return Result{Aggregate: &types.AggregateResult{
		Status:   types.StatusSuccess,
		RootPath: root,
		Counts:   types.Counts{Total: 1, Processed: 1},
		Outcomes: []types.Outcome{{Path: root + "/a.pdf", Name: "a.pdf", Status: types.StatusSuccess}},
	}}
}

func TestDispatch_PendingThenCompleted(t *testing.T) {
	reg := NewRegistry(nil, Config{}, nil)
	release := make(chan struct{})

	id := reg.Dispatch(context.Background(), types.JobKindFolder, "/docs", func(ctx context.Context) (Result, error) {
		<-release
		return successResult("/docs"), nil
	})
	require.NotEmpty(t, id)

	job, err := reg.Status(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, job.Done())
	assert.Nil(t, job.Aggregate)
	assert.Equal(t, 1, reg.Active())

	close(release)
	reg.Wait()

	job, err = reg.Status(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, types.JobCompleted, job.State)
	require.NotNil(t, job.Aggregate)
	assert.Equal(t, types.StatusSuccess, job.Aggregate.Status)
	require.NotNil(t, job.StartedAt)
	require.NotNil(t, job.FinishedAt)
	assert.False(t, job.FinishedAt.Before(*job.StartedAt))
	assert.Equal(t, 0, reg.Active())
}

// TestDispatch_OutlivesCallerContext verifies cancelling the dispatching
// request does not cancel the job
func TestDispatch_OutlivesCallerContext(t *testing.T) {
	reg := NewRegistry(nil, Config{}, nil)
	ctx, cancel := context.WithCancel(context.Background())

	started := make(chan struct{})
	var jobCtxErr error
	id := reg.Dispatch(ctx, types.JobKindBatch, "2 file(s)", func(jobCtx context.Context) (Result, error) {
		close(started)
		time.Sleep(10 * time.Millisecond)
		jobCtxErr = jobCtx.Err()
		return successResult("/tmp"), nil
	})

	<-started
	cancel()
	reg.Wait()

	assert.NoError(t, jobCtxErr)
	job, err := reg.Status(context.Background(), id)
	require.NoError(t, err)
	assert.Empty(t, job.Error)
}

func TestDispatch_ErrorAndPanic(t *testing.T) {
	reg := NewRegistry(nil, Config{}, nil)

	errID := reg.Dispatch(context.Background(), types.JobKindBatch, "0 file(s)", func(ctx context.Context) (Result, error) {
		return Result{}, types.ErrNoInputs
	})
	panicID := reg.Dispatch(context.Background(), types.JobKindFile, "/a.pdf", func(ctx context.Context) (Result, error) {
		panic("boom")
	})
	reg.Wait()

	job, err := reg.Status(context.Background(), errID)
	require.NoError(t, err)
	assert.Equal(t, types.JobCompleted, job.State)
	assert.Equal(t, types.ErrNoInputs.Error(), job.Error)

	job, err = reg.Status(context.Background(), panicID)
	require.NoError(t, err)
	assert.Contains(t, job.Error, "job panicked: boom")
}

func TestStatus_Unknown(t *testing.T) {
	reg := NewRegistry(nil, Config{}, nil)
	_, err := reg.Status(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)

	persisted := NewRegistry(setupTestStorage(t), Config{}, nil)
	_, err = persisted.Status(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

// TestStatus_FallsBackToStore verifies results survive cache expiry
func TestStatus_FallsBackToStore(t *testing.T) {
	store := setupTestStorage(t)
	reg := NewRegistry(store, Config{CacheSize: 1}, nil)

	first := reg.Dispatch(context.Background(), types.JobKindFolder, "/one", func(ctx context.Context) (Result, error) {
		return successResult("/one"), nil
	})
	reg.Wait()
	second := reg.Dispatch(context.Background(), types.JobKindFolder, "/two", func(ctx context.Context) (Result, error) {
		return successResult("/two"), nil
	})
	reg.Wait()

	// The first job was evicted from the single-entry cache
	_, cached := reg.cache.Get(first)
	assert.False(t, cached)

	job, err := reg.Status(context.Background(), first)
	require.NoError(t, err)
	assert.Equal(t, types.JobCompleted, job.State)
	require.NotNil(t, job.Aggregate)
	assert.Equal(t, "/one", job.Aggregate.RootPath)
	assert.Len(t, job.Aggregate.Outcomes, 1)

	// A fresh registry over the same store still knows both jobs
	restarted := NewRegistry(store, Config{}, nil)
	job, err = restarted.Status(context.Background(), second)
	require.NoError(t, err)
	assert.Equal(t, "/two", job.Target)
}

// TestStatus_ReturnsCopies verifies callers cannot mutate registry state
func TestStatus_ReturnsCopies(t *testing.T) {
	reg := NewRegistry(nil, Config{}, nil)
	id := reg.Dispatch(context.Background(), types.JobKindFolder, "/docs", func(ctx context.Context) (Result, error) {
		return successResult("/docs"), nil
	})
	reg.Wait()

	job, err := reg.Status(context.Background(), id)
	require.NoError(t, err)
	job.Aggregate.Outcomes[0].Name = "changed"
	job.State = types.JobPending

	again, err := reg.Status(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "a.pdf", again.Aggregate.Outcomes[0].Name)
	assert.Equal(t, types.JobCompleted, again.State)
}

func TestRecent(t *testing.T) {
	reg := NewRegistry(nil, Config{}, nil)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	tick := 0
	reg.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	ids := make([]string, 3)
	for i := range ids {
		ids[i] = reg.Dispatch(context.Background(), types.JobKindFile, "f", func(ctx context.Context) (Result, error) {
			return Result{File: &types.FileResult{Status: types.StatusSuccess}}, nil
		})
		reg.Wait()
	}

	jobs, err := reg.Recent(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, ids[2], jobs[0].ID)
	assert.Equal(t, ids[1], jobs[1].ID)
}

func TestRecent_FromStore(t *testing.T) {
	reg := NewRegistry(setupTestStorage(t), Config{}, nil)
	reg.Dispatch(context.Background(), types.JobKindFolder, "/docs", func(ctx context.Context) (Result, error) {
		return successResult("/docs"), nil
	})
	reg.Wait()

	jobs, err := reg.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, types.JobCompleted, jobs[0].State)
}

func TestPrune(t *testing.T) {
	store := setupTestStorage(t)
	reg := NewRegistry(store, Config{}, nil)

	old := &types.Job{ID: "old", Kind: types.JobKindFile, State: types.JobCompleted, SubmittedAt: time.Now().UTC().Add(-72 * time.Hour)}
	require.NoError(t, store.SaveJob(context.Background(), old))

	n, err := reg.Prune(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	memOnly := NewRegistry(nil, Config{}, nil)
	n, err = memOnly.Prune(context.Background(), time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n)
}

// failingStore rejects every write
type failingStore struct {
	storage.JobStore
}

func (failingStore) SaveJob(ctx context.Context, job *types.Job) error {
	return errors.New("disk full")
}

// TestDispatch_StoreFailureDoesNotLoseResult verifies persistence errors are
// logged while the in-memory result stays available
func TestDispatch_StoreFailureDoesNotLoseResult(t *testing.T) {
	reg := NewRegistry(failingStore{}, Config{}, nil)
	id := reg.Dispatch(context.Background(), types.JobKindFolder, "/docs", func(ctx context.Context) (Result, error) {
		return successResult("/docs"), nil
	})
	reg.Wait()

	job, err := reg.Status(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, types.JobCompleted, job.State)
}
