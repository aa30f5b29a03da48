package indexer

import (
	"fmt"
	"time"

	"github.com/dshills/docindex-mcp/pkg/types"
)

// Classify derives the run status from its counts
func Classify(total, processed, failed int) types.Status {
	switch {
	case total == 0:
		return types.StatusSuccess
	case processed > 0 && failed > 0:
		return types.StatusPartial
	case processed > 0:
		return types.StatusSuccess
	default:
		return types.StatusFailed
	}
}

// BuildMessage returns the human readable summary for a run
func BuildMessage(status types.Status, rootPath string, counts types.Counts) string {
	if counts.Total == 0 && status != types.StatusFailed {
		return fmt.Sprintf("No files found in folder: %s", rootPath)
	}
	switch status {
	case types.StatusSuccess:
		return fmt.Sprintf("Successfully indexed %d file(s) from %s", counts.Processed, rootPath)
	case types.StatusPartial:
		return fmt.Sprintf("Indexed %d of %d file(s) from %s; %d failed",
			counts.Processed, counts.Total, rootPath, counts.Failed)
	default:
		if counts.Total == 0 {
			return fmt.Sprintf("Failed to index folder: %s", rootPath)
		}
		return fmt.Sprintf("Failed to index all %d file(s) from %s", counts.Total, rootPath)
	}
}

// Aggregate counts outcomes and builds the run result
func Aggregate(rootPath string, recursive bool, outcomes []types.Outcome, elapsed time.Duration) *types.AggregateResult {
	counts := types.Counts{Total: len(outcomes)}
	for _, o := range outcomes {
		if o.Succeeded() {
			counts.Processed++
		} else {
			counts.Failed++
		}
	}

	status := Classify(counts.Total, counts.Processed, counts.Failed)
	return &types.AggregateResult{
		Status:    status,
		Message:   BuildMessage(status, rootPath, counts),
		RootPath:  rootPath,
		Recursive: recursive,
		Counts:    counts,
		Outcomes:  outcomes,
		Duration:  types.Millis(elapsed),
	}
}

// failedResult builds the result for a run that failed before any file task
// was started
func failedResult(rootPath string, recursive bool, err error, elapsed time.Duration) *types.AggregateResult {
	return &types.AggregateResult{
		Status:    types.StatusFailed,
		Message:   BuildMessage(types.StatusFailed, rootPath, types.Counts{}),
		RootPath:  rootPath,
		Recursive: recursive,
		Duration:  types.Millis(elapsed),
		Error:     err.Error(),
	}
}
