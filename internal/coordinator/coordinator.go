// Package coordinator implements the per-tick state machine that serializes cycles with a
// single mutex, runs the backup replayer, then drains and ships both
// families concurrently, and always returns a structured result
// instead of propagating an error to the scheduler.
package coordinator

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fleetmetra/geoingest/internal/metrics"
	"github.com/fleetmetra/geoingest/internal/model"
	"github.com/fleetmetra/geoingest/internal/replay"
	"github.com/fleetmetra/geoingest/internal/ship"
)

// FamilyOutcome is the per-family result of one cycle's drain+ship
// pipeline.
type FamilyOutcome struct {
	Family   model.Family
	Drained  int
	Rejected int
	Shipped  int
	Outcome  ship.Outcome
	BlobURI  string
	BackupID string
	Err      error
}

// CycleResult is the structured, always-returned outcome of one
// RunCycle call: replay summary plus a per-family breakdown.
type CycleResult struct {
	StartedAt     time.Time
	Duration      time.Duration
	Skipped       bool // cycle mutex was held; CycleOverlapSkip
	ReplaySummary replay.Summary
	ReplayErr     error // fatal replay error; halts the cycle before draining
	Families      []FamilyOutcome
}

// Drainer is the capability RunCycle consumes for one family.
type Drainer interface {
	Drain(ctx context.Context, family model.Family) (model.Batch, error)
}

// Shipper is the capability RunCycle consumes for one family.
type Shipper interface {
	Ship(ctx context.Context, batch model.Batch) ship.Result
}

// Replayer is the capability RunCycle runs before every drain+ship
// pass.
type Replayer interface {
	Run(ctx context.Context) (replay.Summary, error)
}

// Config wires one Drainer and one Shipper per family, plus the
// shared Replayer, into a Coordinator.
type Config struct {
	Families    []model.Family
	Drainers    map[model.Family]Drainer
	Shippers    map[model.Family]Shipper
	Replayer    Replayer
	HistorySize int // number of past CycleResults retained in memory; default 20
}

// Coordinator drives one cycle per scheduler tick. It is safe for
// concurrent use: RunCycle may be called from multiple goroutines (a
// scheduler tick and a manual trigger, say) and overlapping calls are
// resolved by the cycle mutex, never by blocking the caller.
type Coordinator struct {
	families []model.Family
	drainers map[model.Family]Drainer
	shippers map[model.Family]Shipper
	replayer Replayer
	log      *zap.Logger

	cycleMu sync.Mutex

	histMu     sync.Mutex
	history    []CycleResult
	historyMax int
}

// New returns a Coordinator. cfg.Drainers and cfg.Shippers must have
// an entry for every family in cfg.Families.
func New(cfg Config, log *zap.Logger) *Coordinator {
	max := cfg.HistorySize
	if max <= 0 {
		max = 20
	}
	return &Coordinator{
		families:   cfg.Families,
		drainers:   cfg.Drainers,
		shippers:   cfg.Shippers,
		replayer:   cfg.Replayer,
		log:        log,
		historyMax: max,
	}
}

// RunCycle executes one tick: try-acquire the cycle mutex, replay
// pending backups, then drain and ship every family concurrently. It
// never returns an error — every failure mode is folded into the
// returned CycleResult rather than propagating an error to the caller.
func (c *Coordinator) RunCycle(ctx context.Context) CycleResult {
	if !c.cycleMu.TryLock() {
		metrics.CyclesTotal.WithLabelValues("skipped_busy").Inc()
		if c.log != nil {
			c.log.Warn("cycle skipped: previous cycle still running")
		}
		return CycleResult{Skipped: true}
	}
	defer c.cycleMu.Unlock()

	start := time.Now()
	result := CycleResult{StartedAt: start.UTC()}

	// Stage: replaying. Sequential over pending backups, oldest-first,
	// before any new batch is shipped.
	summary, err := c.replayer.Run(ctx)
	result.ReplaySummary = summary
	if err != nil {
		result.ReplayErr = err
		if c.log != nil {
			c.log.Error("replay pass halted with a fatal error; skipping drain+ship this cycle", zap.Error(err))
		}
		result.Duration = time.Since(start)
		c.finish(result)
		return result
	}

	if ctx.Err() != nil {
		// Shutdown requested between stages; no new stage is entered.
		result.Duration = time.Since(start)
		c.finish(result)
		return result
	}

	// Stage: draining + shipping. Both families run concurrently with
	// no shared mutable state; a failure in one never blocks the
	// other's completion.
	result.Families = c.runFamilies(ctx)
	result.Duration = time.Since(start)
	c.finish(result)
	return result
}

func (c *Coordinator) runFamilies(ctx context.Context) []FamilyOutcome {
	outcomes := make([]FamilyOutcome, len(c.families))

	g, gctx := errgroup.WithContext(ctx)
	for i, family := range c.families {
		i, family := i, family
		g.Go(func() error {
			outcomes[i] = c.runFamily(gctx, family)
			return nil // never fail the group: per-family isolation
		})
	}
	_ = g.Wait() // inner funcs never return a non-nil error

	return outcomes
}

func (c *Coordinator) runFamily(ctx context.Context, family model.Family) FamilyOutcome {
	outcome := FamilyOutcome{Family: family}

	if ctx.Err() != nil {
		outcome.Err = ctx.Err()
		return outcome
	}

	batch, err := c.drainers[family].Drain(ctx, family)
	if err != nil {
		outcome.Err = err
		if c.log != nil {
			c.log.Error("drain failed", zap.String("family", family.String()), zap.Error(err))
		}
		return outcome
	}
	outcome.Drained = len(batch.Records)
	outcome.Rejected = batch.RejectedCount

	// A drained batch is always handed to the shipper, even if ctx was
	// cancelled after the drain: the records are no longer in the queue,
	// so Ship either delivers them or persists them to the backup store.

	shipResult := c.shippers[family].Ship(ctx, batch)
	outcome.Outcome = shipResult.Outcome
	outcome.BlobURI = shipResult.BlobURI
	outcome.BackupID = shipResult.BackupID
	outcome.Err = shipResult.Err
	if shipResult.Outcome == ship.Ok {
		outcome.Shipped = len(batch.Records)
	}
	return outcome
}

func (c *Coordinator) finish(result CycleResult) {
	metrics.CyclesTotal.WithLabelValues("completed").Inc()
	metrics.CycleDuration.Observe(result.Duration.Seconds())

	c.histMu.Lock()
	c.history = append(c.history, result)
	if len(c.history) > c.historyMax {
		c.history = c.history[len(c.history)-c.historyMax:]
	}
	c.histMu.Unlock()

	if c.log != nil {
		fields := []zap.Field{zap.Duration("duration", result.Duration)}
		for _, fo := range result.Families {
			fields = append(fields,
				zap.String(fo.Family.String()+"_outcome", string(fo.Outcome)),
				zap.Int(fo.Family.String()+"_shipped", fo.Shipped),
			)
		}
		c.log.Info("cycle completed", fields...)
	}
}

// History returns a copy of the most recently completed cycle results,
// oldest-first, up to the configured HistorySize. It backs the
// /healthz "last cycle status" view main.go exposes.
func (c *Coordinator) History() []CycleResult {
	c.histMu.Lock()
	defer c.histMu.Unlock()
	out := make([]CycleResult, len(c.history))
	copy(out, c.history)
	return out
}

// LastCycle returns the most recently completed cycle result and true,
// or a zero value and false if no cycle has completed yet.
func (c *Coordinator) LastCycle() (CycleResult, bool) {
	c.histMu.Lock()
	defer c.histMu.Unlock()
	if len(c.history) == 0 {
		return CycleResult{}, false
	}
	return c.history[len(c.history)-1], true
}
