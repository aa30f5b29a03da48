package types

import (
	"math"
	"strconv"
	"time"
)

// Status classifies the result of an indexing operation
type Status string

const (
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
)

// Valid reports whether s is one of the known statuses
func (s Status) Valid() bool {
	switch s {
	case StatusSuccess, StatusPartial, StatusFailed:
		return true
	}
	return false
}

// Millis is a duration that encodes as fractional milliseconds in JSON
type Millis time.Duration

// Std returns the value as a time.Duration
func (m Millis) Std() time.Duration {
	return time.Duration(m)
}

func (m Millis) MarshalJSON() ([]byte, error) {
	ms := float64(m) / float64(time.Millisecond)
	ms = math.Round(ms*100) / 100
	return strconv.AppendFloat(nil, ms, 'f', -1, 64), nil
}

func (m *Millis) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	ms, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return err
	}
	*m = Millis(ms * float64(time.Millisecond))
	return nil
}

// Outcome is the result of indexing one file. Status is either
// StatusSuccess or StatusFailed.
type Outcome struct {
	Path     string `json:"file_path"`
	Name     string `json:"file_name"`
	Status   Status `json:"status"`
	Error    string `json:"error,omitempty"`
	Duration Millis `json:"processing_time_ms"`
}

// Succeeded reports whether the file was indexed
func (o Outcome) Succeeded() bool {
	return o.Status == StatusSuccess
}

// Counts tallies outcomes of a folder or batch run
type Counts struct {
	Total     int `json:"total_files"`
	Processed int `json:"files_processed"`
	Failed    int `json:"files_failed"`
	Skipped   int `json:"files_skipped"`
}

// AggregateResult summarises a folder or batch run
type AggregateResult struct {
	Status    Status    `json:"status"`
	Message   string    `json:"message"`
	RootPath  string    `json:"folder_path"`
	Recursive bool      `json:"recursive"`
	Counts    Counts    `json:"stats"`
	Outcomes  []Outcome `json:"file_results,omitempty"`
	Duration  Millis    `json:"processing_time_ms"`
	Error     string    `json:"error,omitempty"`
}

// Validate checks the counting and status rules of the result
func (r *AggregateResult) Validate() error {
	if !r.Status.Valid() {
		return ErrInvalidStatus
	}

	c := r.Counts
	if c.Total < 0 || c.Processed < 0 || c.Failed < 0 || c.Skipped < 0 {
		return ErrInvalidCounts
	}
	if c.Processed+c.Failed+c.Skipped != c.Total {
		return ErrInvalidCounts
	}

	// Discovery or setup failure: no outcomes, an error, failed status
	if r.Error != "" {
		if r.Status != StatusFailed {
			return ErrStatusMismatch
		}
		return nil
	}

	if r.Outcomes != nil && len(r.Outcomes) != c.Total {
		return ErrOutcomeMismatch
	}

	var want Status
	switch {
	case c.Total == 0:
		want = StatusSuccess
	case c.Processed > 0 && c.Failed > 0:
		want = StatusPartial
	case c.Processed > 0:
		want = StatusSuccess
	default:
		want = StatusFailed
	}
	if r.Status != want {
		return ErrStatusMismatch
	}

	return nil
}

// FileResult is the two-state result of indexing a single document
type FileResult struct {
	Status   Status `json:"status"`
	Message  string `json:"message"`
	Path     string `json:"file_path"`
	Name     string `json:"file_name"`
	Duration Millis `json:"processing_time_ms"`
	Error    string `json:"error,omitempty"`
}

// Validate checks that the result uses one of the two single-file statuses
func (r *FileResult) Validate() error {
	switch r.Status {
	case StatusSuccess:
		return nil
	case StatusFailed:
		if r.Error == "" {
			return ErrMissingError
		}
		return nil
	}
	return ErrInvalidStatus
}
