package backupstore

import "errors"

// ErrNotFound is returned when an operation references a backupId that
// has no pending entry on disk, including one already moved to
// quarantine.
var ErrNotFound = errors.New("backupstore: entry not found")
