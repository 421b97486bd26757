package model

import "time"

// Batch is the result of one AtomicDrainer call: every record removed
// from a family's queue in a single observable step, oldest-first.
// An empty Batch is a normal outcome, not an error.
type Batch struct {
	Family        Family
	Records       []Record
	DrainedAt     time.Time
	ProcessingID  string
	RejectedCount int // records dropped by the validator during drain
}
