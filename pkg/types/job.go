package types

import "time"

// JobKind identifies which indexing operation a job runs
type JobKind string

const (
	JobKindFile   JobKind = "file"
	JobKindUpload JobKind = "upload"
	JobKindFolder JobKind = "folder"
	JobKindBatch  JobKind = "batch"
)

// JobState is the lifecycle state of a job
type JobState string

const (
	JobPending   JobState = "pending"
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
)

// Job tracks one asynchronously dispatched indexing operation. Exactly one of
// File or Aggregate is set once the job has completed, unless Error is set.
type Job struct {
	ID          string           `json:"job_id"`
	Kind        JobKind          `json:"kind"`
	State       JobState         `json:"state"`
	Target      string           `json:"target"`
	SubmittedAt time.Time        `json:"submitted_at"`
	StartedAt   *time.Time       `json:"started_at,omitempty"`
	FinishedAt  *time.Time       `json:"finished_at,omitempty"`
	File        *FileResult      `json:"file_result,omitempty"`
	Aggregate   *AggregateResult `json:"result,omitempty"`
	Error       string           `json:"error,omitempty"`
}

// Done reports whether the job has finished
func (j *Job) Done() bool {
	return j.State == JobCompleted
}

// Clone returns a deep copy safe to hand to another goroutine
func (j *Job) Clone() *Job {
	c := *j
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.FinishedAt != nil {
		t := *j.FinishedAt
		c.FinishedAt = &t
	}
	if j.File != nil {
		f := *j.File
		c.File = &f
	}
	if j.Aggregate != nil {
		a := *j.Aggregate
		if j.Aggregate.Outcomes != nil {
			a.Outcomes = append([]Outcome(nil), j.Aggregate.Outcomes...)
		}
		c.Aggregate = &a
	}
	return &c
}
