// Package drain implements the atomic drain-and-validate step: it
// empties one family's queue in a single atomic step and validates
// each entry it finds, producing a Batch ready for shipping.
package drain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fleetmetra/geoingest/internal/faults"
	"github.com/fleetmetra/geoingest/internal/metrics"
	"github.com/fleetmetra/geoingest/internal/model"
	"github.com/fleetmetra/geoingest/internal/queue"
	"github.com/fleetmetra/geoingest/internal/validate"
)

// Drainer pulls every queued entry for a family off its queue key,
// atomically, and validates each one.
type Drainer struct {
	queue  queue.Client
	log    *zap.Logger
	keyFor func(model.Family) string
}

// New returns a Drainer reading from q. keyFor maps a family to its
// queue key; callers typically close over a fixed pair of keys, e.g.
// "events:gps" and "events:mobile".
func New(q queue.Client, keyFor func(model.Family) string, log *zap.Logger) *Drainer {
	return &Drainer{queue: q, keyFor: keyFor, log: log}
}

// Drain empties family's queue key in a single atomic step, validates
// every entry, and returns the resulting Batch. A Batch with zero
// Records after a non-empty drain is valid and expected — it means
// every entry was rejected by validation, not that the drain failed.
func (d *Drainer) Drain(ctx context.Context, family model.Family) (model.Batch, error) {
	key := d.keyFor(family)

	raw, err := d.queue.ReadAllAndDeleteAtomically(ctx, key)
	if err != nil {
		return model.Batch{}, fmt.Errorf("drain: %s: %w", family, err)
	}

	batch := model.Batch{
		Family:       family,
		DrainedAt:    time.Now().UTC(),
		ProcessingID: uuid.NewString(),
		Records:      make([]model.Record, 0, len(raw)),
	}

	for _, entry := range raw {
		rec, err := validate.Validate(family, entry)
		if err != nil {
			var rejected validate.Rejected
			if errors.As(err, &rejected) {
				batch.RejectedCount++
				if d.log != nil {
					d.log.Debug("rejected queue entry",
						zap.String("family", family.String()),
						zap.String("processing_id", batch.ProcessingID),
						zap.String("reason", rejected.Reason),
					)
				}
				continue
			}
			return model.Batch{}, fmt.Errorf("drain: %s: validate: %w: %v", family, faults.ErrPermanentConfig, err)
		}
		batch.Records = append(batch.Records, rec)
	}

	metrics.RecordsDrainedTotal.WithLabelValues(family.String()).Add(float64(len(batch.Records)))
	metrics.RecordsRejectedTotal.WithLabelValues(family.String()).Add(float64(batch.RejectedCount))

	if d.log != nil {
		d.log.Info("drained queue",
			zap.String("family", family.String()),
			zap.String("processing_id", batch.ProcessingID),
			zap.Int("accepted", len(batch.Records)),
			zap.Int("rejected", batch.RejectedCount),
		)
	}
	return batch, nil
}
