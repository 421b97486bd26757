package warehouse

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fleetmetra/geoingest/internal/model"
)

// BlobReader is the minimal capability Simulate needs from a blob
// store: reading back the content it is asked to "load". It is
// satisfied by blobstore.Client.
type BlobReader interface {
	Read(ctx context.Context, name string) ([]byte, error)
}

// Simulate is the offline-development Client: it does not submit
// anything to a real warehouse. It reads the NDJSON body back from the
// paired blob store, counts lines as rows, and fabricates an
// immediately-terminal LoadJob. Useful for local development and tests
// without any cloud credentials.
type Simulate struct {
	blobs BlobReader

	mu   sync.Mutex
	jobs map[string]model.LoadJob
}

// NewSimulate returns a Simulate client backed by blobs for reading
// uploaded content back.
func NewSimulate(blobs BlobReader) *Simulate {
	return &Simulate{blobs: blobs, jobs: make(map[string]model.LoadJob)}
}

func (s *Simulate) StartLoad(ctx context.Context, blobURI, table string, opts model.LoadOptions) (string, error) {
	name := strings.TrimPrefix(blobURI, "sim://")
	data, err := s.blobs.Read(ctx, name)
	if err != nil {
		return "", fmt.Errorf("warehouse(simulate): read blob %q: %w", blobURI, err)
	}

	rows, badRows := countRows(data)
	jobID := uuid.NewString()

	job := model.LoadJob{
		JobID:            jobID,
		BlobURI:          blobURI,
		DestinationTable: table,
		SubmittedAt:      time.Now().UTC(),
		CompletedAt:      time.Now().UTC(),
		RowsLoaded:       int64(rows),
		BytesProcessed:   int64(len(data)),
		TerminalState:    model.JobDone,
	}
	if badRows > opts.MaxBadRecords {
		job.TerminalState = model.JobError
		job.Errors = append(job.Errors, model.LoadJobError{
			Reason:  "invalid",
			Message: fmt.Sprintf("%d malformed row(s) exceed max_bad_records=%d", badRows, opts.MaxBadRecords),
			Row:     -1,
		})
	}

	s.mu.Lock()
	s.jobs[jobID] = job
	s.mu.Unlock()
	return jobID, nil
}

func (s *Simulate) AwaitLoad(_ context.Context, jobID string, _ time.Duration) (model.LoadJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return model.LoadJob{}, fmt.Errorf("warehouse(simulate): unknown job %q", jobID)
	}
	return job, nil
}

// countRows counts non-empty NDJSON lines and how many fail to parse as
// a JSON object, mirroring the warehouse's own bad-record accounting.
func countRows(data []byte) (rows, bad int) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		rows++
		if len(line) < 2 || line[0] != '{' || line[len(line)-1] != '}' {
			bad++
		}
	}
	return rows, bad
}
