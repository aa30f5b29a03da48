package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dshills/docindex-mcp/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrInvalidJob is returned when a job cannot be stored
	ErrInvalidJob = errors.New("invalid job")
)

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite benefits from single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Apply migrations
	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// querier returns the DB querier
func (s *SQLiteStorage) querier() querier {
	return s.db
}

// Job operations

// SaveJob writes the job and its outcomes in a single transaction
func (s *SQLiteStorage) SaveJob(ctx context.Context, job *types.Job) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.saveJobWithQuerier(ctx, tx, job); err != nil {
		return err
	}
	return tx.Commit()
}

// saveJobWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) saveJobWithQuerier(ctx context.Context, q querier, job *types.Job) error {
	if job == nil || job.ID == "" {
		return ErrInvalidJob
	}

	row := jobRow{
		id:          job.ID,
		kind:        string(job.Kind),
		state:       string(job.State),
		target:      job.Target,
		submittedAt: job.SubmittedAt.UTC(),
		err:         nullString(job.Error),
	}
	if job.StartedAt != nil {
		row.startedAt = sql.NullTime{Time: *job.StartedAt, Valid: true}
	}
	if job.FinishedAt != nil {
		row.finishedAt = sql.NullTime{Time: *job.FinishedAt, Valid: true}
	}

	var outcomes []types.Outcome
	switch {
	case job.Aggregate != nil:
		a := job.Aggregate
		row.resultKind = resultAggregate
		row.status = nullString(string(a.Status))
		row.message = nullString(a.Message)
		row.path = nullString(a.RootPath)
		row.recursive = a.Recursive
		row.counts = a.Counts
		row.duration = int64(a.Duration)
		row.resultError = nullString(a.Error)
		row.hasOutcomes = a.Outcomes != nil
		outcomes = a.Outcomes
	case job.File != nil:
		f := job.File
		row.resultKind = resultFile
		row.status = nullString(string(f.Status))
		row.message = nullString(f.Message)
		row.path = nullString(f.Path)
		row.name = nullString(f.Name)
		row.duration = int64(f.Duration)
		row.resultError = nullString(f.Error)
	}

	query := `
		INSERT INTO jobs (id, kind, state, target, submitted_at, started_at, finished_at,
		                  result_kind, status, message, path, name, recursive,
		                  total_files, files_processed, files_failed, files_skipped,
		                  duration_ns, result_error, has_outcomes, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state = excluded.state,
			started_at = excluded.started_at,
			finished_at = excluded.finished_at,
			result_kind = excluded.result_kind,
			status = excluded.status,
			message = excluded.message,
			path = excluded.path,
			name = excluded.name,
			recursive = excluded.recursive,
			total_files = excluded.total_files,
			files_processed = excluded.files_processed,
			files_failed = excluded.files_failed,
			files_skipped = excluded.files_skipped,
			duration_ns = excluded.duration_ns,
			result_error = excluded.result_error,
			has_outcomes = excluded.has_outcomes,
			error = excluded.error
	`
	_, err := q.ExecContext(ctx, query,
		row.id, row.kind, row.state, row.target, row.submittedAt, row.startedAt, row.finishedAt,
		string(row.resultKind), row.status, row.message, row.path, row.name, row.recursive,
		row.counts.Total, row.counts.Processed, row.counts.Failed, row.counts.Skipped,
		row.duration, row.resultError, row.hasOutcomes, row.err)
	if err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}

	// Replace outcomes
	if _, err := q.ExecContext(ctx, "DELETE FROM job_outcomes WHERE job_id = ?", job.ID); err != nil {
		return fmt.Errorf("failed to clear job outcomes: %w", err)
	}
	for i, o := range outcomes {
		_, err := q.ExecContext(ctx, `
			INSERT INTO job_outcomes (job_id, seq, file_path, file_name, status, error, duration_ns)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, job.ID, i, o.Path, o.Name, string(o.Status), nullString(o.Error), int64(o.Duration))
		if err != nil {
			return fmt.Errorf("failed to save job outcome: %w", err)
		}
	}

	return nil
}

func (s *SQLiteStorage) GetJob(ctx context.Context, id string) (*types.Job, error) {
	return s.getJobWithQuerier(ctx, s.querier(), id)
}

const selectJobColumns = `
	SELECT id, kind, state, target, submitted_at, started_at, finished_at,
	       result_kind, status, message, path, name, recursive,
	       total_files, files_processed, files_failed, files_skipped,
	       duration_ns, result_error, has_outcomes, error
	FROM jobs
`

// getJobWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) getJobWithQuerier(ctx context.Context, q querier, id string) (*types.Job, error) {
	row, err := scanJob(q.QueryRowContext(ctx, selectJobColumns+" WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	job := row.toJob()
	if job.Aggregate != nil && row.hasOutcomes {
		outcomes, err := s.listOutcomesWithQuerier(ctx, q, id)
		if err != nil {
			return nil, err
		}
		job.Aggregate.Outcomes = outcomes
	}
	return job, nil
}

func (s *SQLiteStorage) listOutcomesWithQuerier(ctx context.Context, q querier, jobID string) ([]types.Outcome, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT file_path, file_name, status, error, duration_ns
		FROM job_outcomes
		WHERE job_id = ?
		ORDER BY seq
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list job outcomes: %w", err)
	}
	defer rows.Close()

	outcomes := make([]types.Outcome, 0)
	for rows.Next() {
		var o types.Outcome
		var status string
		var errText sql.NullString
		var duration int64
		if err := rows.Scan(&o.Path, &o.Name, &status, &errText, &duration); err != nil {
			return nil, err
		}
		o.Status = types.Status(status)
		o.Error = errText.String
		o.Duration = types.Millis(duration)
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}

func (s *SQLiteStorage) ListJobs(ctx context.Context, limit int) ([]*types.Job, error) {
	return s.listJobsWithQuerier(ctx, s.querier(), limit)
}

// listJobsWithQuerier returns job summaries without per-file outcomes
func (s *SQLiteStorage) listJobsWithQuerier(ctx context.Context, q querier, limit int) ([]*types.Job, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := q.QueryContext(ctx, selectJobColumns+" ORDER BY submitted_at DESC, id LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*types.Job
	for rows.Next() {
		row, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, row.toJob())
	}
	return jobs, rows.Err()
}

func (s *SQLiteStorage) DeleteJobsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	return s.deleteJobsBeforeWithQuerier(ctx, s.querier(), cutoff)
}

// deleteJobsBeforeWithQuerier removes old jobs; outcomes cascade
func (s *SQLiteStorage) deleteJobsBeforeWithQuerier(ctx context.Context, q querier, cutoff time.Time) (int, error) {
	result, err := q.ExecContext(ctx, "DELETE FROM jobs WHERE submitted_at < ?", cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete jobs: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// jobRow mirrors one row of the jobs table
type jobRow struct {
	id          string
	kind        string
	state       string
	target      string
	submittedAt time.Time
	startedAt   sql.NullTime
	finishedAt  sql.NullTime
	resultKind  resultKind
	status      sql.NullString
	message     sql.NullString
	path        sql.NullString
	name        sql.NullString
	recursive   bool
	counts      types.Counts
	duration    int64
	resultError sql.NullString
	hasOutcomes bool
	err         sql.NullString
}

// scanner is implemented by *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(sc scanner) (*jobRow, error) {
	var row jobRow
	var kind string
	err := sc.Scan(
		&row.id, &row.kind, &row.state, &row.target, &row.submittedAt, &row.startedAt, &row.finishedAt,
		&kind, &row.status, &row.message, &row.path, &row.name, &row.recursive,
		&row.counts.Total, &row.counts.Processed, &row.counts.Failed, &row.counts.Skipped,
		&row.duration, &row.resultError, &row.hasOutcomes, &row.err,
	)
	if err != nil {
		return nil, err
	}
	row.resultKind = resultKind(kind)
	return &row, nil
}

func (r *jobRow) toJob() *types.Job {
	job := &types.Job{
		ID:          r.id,
		Kind:        types.JobKind(r.kind),
		State:       types.JobState(r.state),
		Target:      r.target,
		SubmittedAt: r.submittedAt,
		Error:       r.err.String,
	}
	if r.startedAt.Valid {
		t := r.startedAt.Time
		job.StartedAt = &t
	}
	if r.finishedAt.Valid {
		t := r.finishedAt.Time
		job.FinishedAt = &t
	}

	switch r.resultKind {
	case resultAggregate:
		job.Aggregate = &types.AggregateResult{
			Status:    types.Status(r.status.String),
			Message:   r.message.String,
			RootPath:  r.path.String,
			Recursive: r.recursive,
			Counts:    r.counts,
			Duration:  types.Millis(r.duration),
			Error:     r.resultError.String,
		}
	case resultFile:
		job.File = &types.FileResult{
			Status:   types.Status(r.status.String),
			Message:  r.message.String,
			Path:     r.path.String,
			Name:     r.name.String,
			Duration: types.Millis(r.duration),
			Error:    r.resultError.String,
		}
	case resultNone:
	}
	return job
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
