// Package indexer coordinates concurrent document indexing.
//
// The indexer takes a single file, a folder, or a batch of uploads, hands
// each file to an engine.Engine, and folds the per-file outcomes into one
// types.AggregateResult.
//
// # Basic Usage
//
//	eng, _ := engine.New(engine.Options{URL: "http://localhost:9621"}, logger)
//	idx := indexer.New(eng, staging.NewManager("", logger), indexer.Config{
//	    MaxWorkers: 3,
//	    OutputDir:  "/var/lib/docindex/output",
//	}, logger)
//
//	result := idx.IndexFolder(ctx, indexer.FolderRequest{
//	    RootPath:  "/data/contracts",
//	    Recursive: true,
//	})
//	fmt.Printf("%s: %d/%d indexed\n", result.Status, result.Counts.Processed, result.Counts.Total)
//
// # Pipeline
//
//  1. Discovery: list matching files under the root, sorted (Discover)
//  2. Fan-out: one goroutine per file, gated by a Limiter of MaxWorkers slots
//  3. Task: FileTask calls the engine and turns every failure, including
//     panics, into a failed types.Outcome
//  4. Aggregate: count outcomes and classify the run (Aggregate, Classify)
//
// Outcomes are stored by discovery index, so result order never depends on
// completion order.
//
// # Failure Isolation
//
// A failing file never stops its siblings. The run status follows the counts:
//
//	success  nothing failed and something was processed, or no files matched
//	partial  some processed, some failed
//	failed   nothing processed, or discovery/setup failed
//
// Discovery and output-directory errors produce a failed result with Error
// set and no outcomes.
//
// # Batches
//
// IndexBatch writes uploads into a fresh staging directory, indexes it
// non-recursively and always removes the directory afterwards:
//
//	result, err := idx.IndexBatch(ctx, []indexer.Upload{
//	    {Name: "a.pdf", Content: fileA},
//	    {Name: "b.docx", Content: fileB},
//	})
//	if errors.Is(err, types.ErrNoInputs) {
//	    // nothing uploaded
//	}
//
// # Concurrency
//
// Each folder or batch run creates its own Limiter, so concurrent runs do not
// share slots. The indexer itself holds no mutable state and is safe for
// concurrent use.
package indexer
