// Package warehouse defines the capability to start a load job against
// one blob and poll it until terminal.
package warehouse

import (
	"context"
	"time"

	"github.com/fleetmetra/geoingest/internal/model"
)

// Client is the capability BatchShipper consumes.
type Client interface {
	// StartLoad submits a load job ingesting blobURI into table and
	// returns its jobId without waiting for completion.
	StartLoad(ctx context.Context, blobURI, table string, opts model.LoadOptions) (jobID string, err error)

	// AwaitLoad blocks until the job reaches a terminal state or
	// timeout elapses, whichever comes first. A timeout is reported as
	// a failed LoadJob (TerminalState: error), not as a Go error — the
	// caller's success check (LoadJob.Successful) already treats it as
	// a failure, and callers need the partial job info either way.
	AwaitLoad(ctx context.Context, jobID string, timeout time.Duration) (model.LoadJob, error)
}
