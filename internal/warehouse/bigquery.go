package warehouse

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"

	"github.com/fleetmetra/geoingest/internal/faults"
	"github.com/fleetmetra/geoingest/internal/model"
	"github.com/fleetmetra/geoingest/internal/resilience"
)

// BigQuery is the production Client. Each family's destination table
// is a bare table name inside the configured project and dataset;
// StartLoad submits a GCS-source load job into it with append
// semantics, mapping the interface's options directly onto BigQuery's
// own load-job vocabulary.
type BigQuery struct {
	client  *bigquery.Client
	project string
	dataset string
	breaker *resilience.Breaker

	mu               sync.Mutex
	submittedAtByJob map[string]time.Time
}

// NewBigQuery wraps an existing *bigquery.Client scoped to project and
// dataset. The caller owns the client's lifecycle.
func NewBigQuery(client *bigquery.Client, project, dataset string, breaker *resilience.Breaker) *BigQuery {
	return &BigQuery{
		client:           client,
		project:          project,
		dataset:          dataset,
		breaker:          breaker,
		submittedAtByJob: make(map[string]time.Time),
	}
}

func (b *BigQuery) StartLoad(ctx context.Context, blobURI, table string, opts model.LoadOptions) (string, error) {
	gcsRef := bigquery.NewGCSReference(blobURI)
	gcsRef.SourceFormat = bigquery.JSON
	gcsRef.MaxBadRecords = opts.MaxBadRecords

	loader := b.client.DatasetInProject(b.project, b.dataset).Table(table).LoaderFrom(gcsRef)
	loader.WriteDisposition = bigquery.WriteAppend
	loader.JobTimeout = opts.JobTimeout
	if opts.Priority == model.PriorityInteractive {
		loader.JobPriority = string(bigquery.InteractivePriority)
	} else {
		loader.JobPriority = string(bigquery.BatchPriority)
	}
	if opts.Region != "" {
		loader.Location = opts.Region
	}

	submittedAt := time.Now().UTC()
	var jobID string
	err := b.breaker.Do(ctx, func() error {
		job, runErr := loader.Run(ctx)
		if runErr != nil {
			return runErr
		}
		jobID = job.ID()
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("warehouse(bigquery): start load %s: %w", table, classify(err))
	}

	b.mu.Lock()
	b.submittedAtByJob[jobID] = submittedAt
	b.mu.Unlock()

	return jobID, nil
}

func (b *BigQuery) AwaitLoad(ctx context.Context, jobID string, timeout time.Duration) (model.LoadJob, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	b.mu.Lock()
	submittedAt, ok := b.submittedAtByJob[jobID]
	delete(b.submittedAtByJob, jobID)
	b.mu.Unlock()
	if !ok {
		// AwaitLoad called for a jobID this client didn't submit (e.g.
		// across a process restart); fall back to call time rather
		// than leaving SubmittedAt zero.
		submittedAt = time.Now().UTC()
	}

	job, err := b.client.JobFromID(ctx, jobID)
	if err != nil {
		return model.LoadJob{}, fmt.Errorf("warehouse(bigquery): load job %s: %w", jobID, classify(err))
	}

	var status *bigquery.JobStatus
	err = b.breaker.Do(ctx, func() error {
		s, waitErr := job.Wait(ctx)
		status = s
		return waitErr
	})

	result := model.LoadJob{
		JobID:         jobID,
		SubmittedAt:   submittedAt,
		CompletedAt:   time.Now().UTC(),
		TerminalState: model.JobDone,
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		result.TerminalState = model.JobError
		result.Errors = append(result.Errors, model.LoadJobError{Reason: "timeout", Message: "job did not complete within the configured timeout", Row: -1})
		return result, nil
	}
	if err != nil {
		return model.LoadJob{}, fmt.Errorf("warehouse(bigquery): await load %s: %w", jobID, classify(err))
	}

	if status.Err() != nil {
		result.TerminalState = model.JobError
		result.Errors = append(result.Errors, model.LoadJobError{Reason: "job_error", Message: status.Err().Error(), Row: -1})
	}
	for _, e := range status.Errors {
		result.Errors = append(result.Errors, model.LoadJobError{Reason: e.Reason, Message: e.Message, Row: -1})
	}

	if stats, ok := status.Statistics.Details.(*bigquery.LoadStatistics); ok {
		result.RowsLoaded = stats.OutputRows
		result.BytesProcessed = stats.OutputBytes
	}
	if len(result.Errors) > 0 {
		result.TerminalState = model.JobError
	}

	return result, nil
}

func classify(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		if gerr.Code >= 400 && gerr.Code < 500 && gerr.Code != 429 {
			return fmt.Errorf("%w: %v", faults.ErrPermanentConfig, err)
		}
	}
	if strings.Contains(err.Error(), "notFound") {
		return fmt.Errorf("%w: %v", faults.ErrPermanentConfig, err)
	}
	return fmt.Errorf("%w: %v", faults.ErrTransientIO, err)
}
