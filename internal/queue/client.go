// Package queue implements an ordered list per family with an atomic
// read-all-and-delete primitive that is the foundation of
// drain-and-ship safety.
package queue

import "context"

// Client is the capability the drainer consumes. Implementations must
// guarantee that ReadAllAndDeleteAtomically returns, in a single
// observable action, everything present at the time of the call, and
// leaves the key empty immediately afterward — any record a producer
// appends after that instant belongs strictly to the next call.
type Client interface {
	// Length reports the number of entries currently queued under key.
	Length(ctx context.Context, key string) (int64, error)

	// AppendMany appends entries to the tail of the list at key,
	// preserving the given order. Used by producers and by tests.
	AppendMany(ctx context.Context, key string, entries [][]byte) error

	// ReadAll returns every entry currently queued under key without
	// removing them, oldest first.
	ReadAll(ctx context.Context, key string) ([][]byte, error)

	// DeleteAll removes every entry under key.
	DeleteAll(ctx context.Context, key string) error

	// ReadAllAndDeleteAtomically is the drain primitive: it returns
	// every entry present at call time, oldest first, and the key is
	// empty by the time the call returns, as a single observable step.
	ReadAllAndDeleteAtomically(ctx context.Context, key string) ([][]byte, error)
}
