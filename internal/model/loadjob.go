package model

import "time"

// TerminalState is the outcome of a warehouse load job once it has
// stopped running.
type TerminalState string

const (
	JobDone  TerminalState = "done"
	JobError TerminalState = "error"
)

// Priority mirrors the vendor's job priority hint. It is a direct
// analogue of BigQuery's BATCH/INTERACTIVE job priorities.
type Priority string

const (
	PriorityBatch       Priority = "batch"
	PriorityInteractive Priority = "interactive"
)

// LoadJobError is one structured error entry reported by a load job.
type LoadJobError struct {
	Reason  string
	Message string
	Row     int // -1 when not attributable to a specific row
}

// LoadJob is one warehouse ingest task against a single blob.
type LoadJob struct {
	JobID           string
	BlobURI         string
	DestinationTable string
	SubmittedAt     time.Time
	CompletedAt     time.Time
	RowsLoaded      int64
	BytesProcessed  int64
	TerminalState   TerminalState
	Errors          []LoadJobError
}

// Successful implements the caller-side success rule:
// terminal state done, no errors, and at least one row loaded.
func (j LoadJob) Successful() bool {
	return j.TerminalState == JobDone && len(j.Errors) == 0 && j.RowsLoaded > 0
}

// LoadOptions carries the parameters a caller passes to StartLoad.
type LoadOptions struct {
	Region        string
	MaxBadRecords int
	Priority      Priority
	JobTimeout    time.Duration
}
