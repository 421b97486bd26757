// Package replay implements the backup replayer: it
// retries every pending local backup entry, oldest first, re-running
// each through the same BatchShipper used for the live drain path.
package replay

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fleetmetra/geoingest/internal/metrics"
	"github.com/fleetmetra/geoingest/internal/model"
	"github.com/fleetmetra/geoingest/internal/ship"
)

// Shipper is the capability Replayer consumes to retry a backed-up
// batch. It is satisfied by *ship.Shipper. ShipNoBackup is used
// instead of Ship because Replayer already owns the retry bookkeeping
// for the entry being retried via MarkAttempt; routing a retry through
// Ship's own fallback would create a second, fresh backup entry for
// every failed attempt.
type Shipper interface {
	ShipNoBackup(ctx context.Context, batch model.Batch) ship.Result
}

// Store is the capability Replayer consumes to list and update
// pending backup entries. It is satisfied by *backupstore.Store.
type Store interface {
	ListPending(ctx context.Context) ([]model.BackupEntry, error)
	MarkAttempt(ctx context.Context, backupID string, attemptErr error) (model.BackupEntry, error)
	Remove(ctx context.Context, backupID string) error
}

// Summary tallies the outcome of one replay pass.
type Summary struct {
	Attempted int
	Succeeded int
	Requeued  int
	Exhausted int
	Fatal     int
}

// Replayer drives a replay pass over a backupstore.Store using a
// ship.Shipper.
type Replayer struct {
	store   Store
	shipper Shipper
	log     *zap.Logger
}

// New returns a Replayer.
func New(store Store, shipper Shipper, log *zap.Logger) *Replayer {
	return &Replayer{store: store, shipper: shipper, log: log}
}

// Run retries every pending backup entry in oldest-first order. A
// recoverable failure just re-marks the attempt and continues to the
// next entry; a fatal failure (the shipper reporting FatalFail, or the
// backup store failing to remove or re-mark an entry) stops the pass
// immediately.
func (r *Replayer) Run(ctx context.Context) (Summary, error) {
	var summary Summary
	start := time.Now()
	defer func() { metrics.ReplayDuration.Observe(time.Since(start).Seconds()) }()

	entries, err := r.store.ListPending(ctx)
	if err != nil {
		return summary, fmt.Errorf("replay: list pending: %w", err)
	}

	pendingByFamily := make(map[model.Family]int)
	for _, entry := range entries {
		pendingByFamily[entry.Family]++
	}
	for _, f := range []model.Family{model.FamilyGPS, model.FamilyMobile} {
		metrics.BackupPendingGauge.WithLabelValues(f.String()).Set(float64(pendingByFamily[f]))
	}

	for _, entry := range entries {
		summary.Attempted++

		// A fresh processingId per attempt so each retry uploads its
		// own blob instead of repeatedly overwriting the name from the
		// first attempt.
		batch := model.Batch{
			Family:       entry.Family,
			Records:      entry.Records,
			DrainedAt:    entry.CreatedAt,
			ProcessingID: uuid.NewString(),
		}

		result := r.shipper.ShipNoBackup(ctx, batch)
		switch result.Outcome {
		case ship.Ok, ship.SkippedEmpty:
			if err := r.store.Remove(ctx, entry.BackupID); err != nil {
				return summary, fmt.Errorf("replay: remove %s after successful ship: %w", entry.BackupID, err)
			}
			summary.Succeeded++
			if r.log != nil {
				r.log.Info("replayed backup entry", zap.String("backup_id", entry.BackupID), zap.String("family", entry.Family.String()))
			}

		case ship.RecoverableFail:
			updated, markErr := r.store.MarkAttempt(ctx, entry.BackupID, result.Err)
			if markErr != nil {
				return summary, fmt.Errorf("replay: mark attempt %s: %w", entry.BackupID, markErr)
			}
			if updated.Status == model.BackupExhausted {
				summary.Exhausted++
				metrics.BackupExhaustedTotal.WithLabelValues(entry.Family.String()).Inc()
				if r.log != nil {
					r.log.Warn("backup entry exhausted its retry budget", zap.String("backup_id", entry.BackupID), zap.String("family", entry.Family.String()))
				}
			} else {
				summary.Requeued++
			}

		case ship.FatalFail:
			summary.Fatal++
			if r.log != nil {
				r.log.Error("replay stopped on fatal ship failure", zap.String("backup_id", entry.BackupID), zap.Error(result.Err))
			}
			return summary, fmt.Errorf("replay: fatal failure on %s: %w", entry.BackupID, result.Err)
		}
	}

	return summary, nil
}
