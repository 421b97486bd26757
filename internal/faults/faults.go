// Package faults names the error kinds that cross a stage boundary in
// the drain-and-ship pipeline. These are sentinel markers,
// not concrete error types — callers attach context with fmt.Errorf's
// %w and test membership with errors.Is.
package faults

import "errors"

var (
	// ErrTransientIO marks a network/timeout/5xx failure from the
	// queue store, blob store, or warehouse. The stage fails, the
	// batch is routed to backup, and the next cycle retries it.
	ErrTransientIO = errors.New("transient I/O error")

	// ErrPermanentConfig marks a failure that retrying will not fix:
	// missing credentials, an unknown bucket or table, auth denied.
	// The stage fails and routes to backup, but the condition needs
	// operator action, so callers should also raise an alertable metric.
	ErrPermanentConfig = errors.New("permanent configuration error")

	// ErrPermanentIO marks the local filesystem being unusable for
	// LocalBackupStore writes. Unlike the other kinds, this is fatal to
	// the cycle — there is no remaining durable place to put the batch.
	ErrPermanentIO = errors.New("permanent local I/O error")

	// ErrCycleOverlap marks a tick that arrived while a previous cycle's
	// mutex was still held. The tick is dropped; only a metric is recorded.
	ErrCycleOverlap = errors.New("cycle already running")

	// ErrRetryExhausted marks a backup entry whose retry count has
	// reached its configured maximum after a failed replay attempt.
	ErrRetryExhausted = errors.New("backup retries exhausted")
)
