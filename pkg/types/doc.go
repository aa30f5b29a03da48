// Package types provides shared type definitions for the docindex server.
//
// This package defines the result values produced by the indexing
// orchestrator and consumed by every outer surface (HTTP, MCP, CLI, job
// tickets).
//
// # Core Types
//
// Outcome is the per-file record produced by a single indexing task. It is
// created once and never mutated:
//
//	outcome := types.Outcome{
//	    Path:     "/data/docs/report.pdf",
//	    Name:     "report.pdf",
//	    Status:   types.StatusSuccess,
//	    Duration: 1200 * time.Millisecond,
//	}
//
// AggregateResult summarises a folder or batch run. Counts always satisfy
// Processed + Failed + Skipped == Total, and Status is derived from the
// counts:
//
//	success  no failures and at least one processed file, or nothing to do
//	partial  at least one processed file and at least one failure
//	failed   nothing processed, or discovery/setup failed before any work
//
// FileResult is the two-state result of indexing exactly one document.
//
// # Validation
//
// AggregateResult.Validate checks the counting and status rules above and is
// used by tests and by the job registry before persisting a result.
//
// # Errors
//
// DiscoveryError reports a folder root that cannot be enumerated. It wraps one
// of ErrPathNotFound, ErrNotDirectory or ErrPathNotReadable so callers can use
// errors.Is. ErrNoInputs is returned for an empty batch before any work is
// done.
package types
