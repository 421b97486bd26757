// Package ship implements the batch shipper: it turns
// a drained Batch into an uploaded NDJSON blob and a completed
// warehouse load job, falling back to LocalBackupStore when either
// step fails so no batch is ever silently dropped.
package ship

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fleetmetra/geoingest/internal/backupstore"
	"github.com/fleetmetra/geoingest/internal/blobstore"
	"github.com/fleetmetra/geoingest/internal/metrics"
	"github.com/fleetmetra/geoingest/internal/model"
	"github.com/fleetmetra/geoingest/internal/warehouse"
)

// Outcome classifies how a Ship call ended.
type Outcome string

const (
	// Ok means the blob was uploaded and the warehouse load completed
	// successfully.
	Ok Outcome = "ok"
	// SkippedEmpty means the batch had no accepted records; nothing was
	// uploaded or shipped, by design.
	SkippedEmpty Outcome = "skipped_empty"
	// RecoverableFail means shipping failed but the batch was safely
	// persisted to the local backup store for a later replay attempt.
	RecoverableFail Outcome = "recoverable_fail"
	// FatalFail means shipping failed and the batch is not in the local
	// backup store: either the fallback write to the backup store also
	// failed, or the records could not be encoded as NDJSON (in which
	// case no backup write is attempted). The batch's records are at
	// risk of loss and this must be surfaced loudly.
	FatalFail Outcome = "fatal_fail"
)

// Result is the outcome of one Ship call.
type Result struct {
	Family       model.Family
	ProcessingID string
	Outcome      Outcome
	BlobURI      string
	LoadJob      model.LoadJob
	BackupID     string
	Err          error
}

// Config parameterizes a Shipper by family: destination table, blob
// name prefix, and per-family load options.
type Config struct {
	TableFor        func(model.Family) string
	BlobPrefixFor   func(model.Family) string
	LoadOptionsFor  func(model.Family) model.LoadOptions
	AwaitLoadWithin time.Duration
	MaxBackupRetries int
}

// Shipper wires a blob store, a warehouse client, and a backup store
// together to implement the ship-or-fall-back contract.
type Shipper struct {
	blobs    blobstore.Client
	wh       warehouse.Client
	backups  *backupstore.Store
	cfg      Config
	log      *zap.Logger
}

// New returns a Shipper. cfg's function fields must be non-nil.
func New(blobs blobstore.Client, wh warehouse.Client, backups *backupstore.Store, cfg Config, log *zap.Logger) *Shipper {
	return &Shipper{blobs: blobs, wh: wh, backups: backups, cfg: cfg, log: log}
}

// Ship uploads batch as an NDJSON blob, starts and awaits a warehouse
// load job against it, and on any failure along that path persists the
// batch to the local backup store instead of returning an error to the
// caller — only a failure to even perform that fallback write, or a
// failure to encode the records, is returned as FatalFail.
func (s *Shipper) Ship(ctx context.Context, batch model.Batch) (result Result) {
	var shipErr error
	result, shipErr = s.attempt(ctx, batch)
	defer func() {
		metrics.ShipOutcomesTotal.WithLabelValues(batch.Family.String(), string(result.Outcome)).Inc()
		if result.Outcome == Ok {
			metrics.RecordsShippedTotal.WithLabelValues(batch.Family.String()).Add(float64(len(batch.Records)))
		}
	}()

	if shipErr == nil {
		return result
	}
	if result.Outcome == FatalFail {
		// Encode failure: the validated records themselves are
		// malformed, which should never happen. There is nothing a
		// backup-and-retry can fix, so this is reported directly
		// without ever touching the backup store.
		return result
	}
	result = s.fallback(ctx, batch, result, shipErr)
	return result
}

// ShipNoBackup performs the same upload-and-load attempt as Ship, but
// never writes a new backup-store entry on failure. The replayer calls
// this instead of Ship when retrying an entry it already owns: Ship's
// usual fallback would otherwise create a fresh backupId with
// retryCount 0 for every failed replay attempt, leaving the original
// entry's own retry count to climb toward exhaustion in parallel and
// doubling the on-disk backlog each cycle. Here, an upload or load
// failure is reported as RecoverableFail with no BackupID set — the
// caller is expected to call MarkAttempt on its own entry. An encode
// failure is reported as FatalFail.
func (s *Shipper) ShipNoBackup(ctx context.Context, batch model.Batch) Result {
	result, shipErr := s.attempt(ctx, batch)
	if shipErr != nil && result.Outcome != FatalFail {
		result.Outcome = RecoverableFail
		result.Err = shipErr
	}
	metrics.ShipOutcomesTotal.WithLabelValues(batch.Family.String(), string(result.Outcome)).Inc()
	if result.Outcome == Ok {
		metrics.RecordsShippedTotal.WithLabelValues(batch.Family.String()).Add(float64(len(batch.Records)))
	}
	return result
}

// attempt runs the upload-and-load sequence with no backup-store
// interaction at all. A non-nil error always pairs with a non-Ok,
// non-SkippedEmpty result; FatalFail marks the encode failure, every
// other failure leaves Outcome unset for the caller to classify.
func (s *Shipper) attempt(ctx context.Context, batch model.Batch) (Result, error) {
	result := Result{Family: batch.Family, ProcessingID: batch.ProcessingID}

	if len(batch.Records) == 0 {
		result.Outcome = SkippedEmpty
		return result, nil
	}

	data, err := encodeNDJSON(batch.Records)
	if err != nil {
		result.Outcome = FatalFail
		err = fmt.Errorf("ship: encode ndjson: %w", err)
		result.Err = err
		return result, err
	}

	// Name: {prefix}/{YYYY-MM-DDTHH-mm-ss.sssZ}_{processingId}.json
	blobName := fmt.Sprintf("%s/%s_%s.json", s.cfg.BlobPrefixFor(batch.Family), batch.DrainedAt.UTC().Format("2006-01-02T15-04-05.000Z"), batch.ProcessingID)
	meta := model.BlobMetadata{
		Family:       batch.Family,
		ProcessingID: batch.ProcessingID,
		RecordCount:  len(batch.Records),
		UploadedAt:   time.Now().UTC(),
		Format:       model.BlobFormat,
	}

	upload, err := s.blobs.Upload(ctx, blobName, bytes.NewReader(data), meta)
	if err != nil {
		return result, fmt.Errorf("ship: upload blob: %w", err)
	}
	result.BlobURI = upload.URI

	jobID, err := s.wh.StartLoad(ctx, upload.URI, s.cfg.TableFor(batch.Family), s.cfg.LoadOptionsFor(batch.Family))
	if err != nil {
		return result, fmt.Errorf("ship: start load: %w", err)
	}

	job, err := s.wh.AwaitLoad(ctx, jobID, s.cfg.AwaitLoadWithin)
	if err != nil {
		return result, fmt.Errorf("ship: await load: %w", err)
	}
	result.LoadJob = job

	if !job.Successful() {
		return result, fmt.Errorf("ship: load job %s did not succeed: %v", job.JobID, job.Errors)
	}

	result.Outcome = Ok
	if s.log != nil {
		s.log.Info("shipped batch",
			zap.String("family", batch.Family.String()),
			zap.String("processing_id", batch.ProcessingID),
			zap.String("blob_uri", upload.URI),
			zap.Int64("rows_loaded", job.RowsLoaded),
		)
	}
	return result, nil
}

func (s *Shipper) fallback(ctx context.Context, batch model.Batch, result Result, shipErr error) Result {
	entry, err := s.backups.Create(ctx, batch.Family, batch.Records, s.cfg.MaxBackupRetries, shipErr)
	if err != nil {
		result.Outcome = FatalFail
		result.Err = fmt.Errorf("ship: %w; backup write also failed: %v", shipErr, err)
		if s.log != nil {
			s.log.Error("ship failed and backup write also failed",
				zap.String("family", batch.Family.String()),
				zap.String("processing_id", batch.ProcessingID),
				zap.Error(result.Err),
			)
		}
		return result
	}

	result.Outcome = RecoverableFail
	result.BackupID = entry.BackupID
	result.Err = shipErr
	if s.log != nil {
		s.log.Warn("ship failed, batch persisted to local backup",
			zap.String("family", batch.Family.String()),
			zap.String("processing_id", batch.ProcessingID),
			zap.String("backup_id", entry.BackupID),
			zap.Error(shipErr),
		)
	}
	return result
}

func encodeNDJSON(records []model.Record) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}
