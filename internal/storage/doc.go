// Package storage provides SQLite-based persistence for indexing jobs.
//
// The storage layer manages:
//   - Job metadata (kind, state, target, timestamps)
//   - Job results (status, counts, message, error)
//   - Per-file outcomes of folder and batch jobs
//
// # Database Schema
//
// Tables:
//   - schema_version: Applied migrations
//   - jobs: One row per dispatched job, including its summary result
//   - job_outcomes: Per-file outcomes, ordered by seq (discovery order)
//
// # Basic Usage
//
//	db, err := storage.NewSQLiteStorage("/var/lib/docindex/jobs.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.SaveJob(ctx, job); err != nil {
//	    return err
//	}
//	job, err = db.GetJob(ctx, job.ID)
//
// # Transactions
//
// SaveJob writes the job row and its outcomes in one transaction, so a
// reader never sees a job without its outcomes. Deleting a job removes its
// outcomes through the foreign key cascade.
//
// # Build Modes
//
// The default build uses modernc.org/sqlite (pure Go). Building with
// -tags sqlite_cgo switches to github.com/mattn/go-sqlite3.
//
// # Migrations
//
// Schema versions are semantic versions applied in order by ApplyMigrations
// and recorded in schema_version. ":memory:" databases are migrated on open,
// which keeps tests self-contained.
package storage
