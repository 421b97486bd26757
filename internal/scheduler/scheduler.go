// Package scheduler wraps gocron to drive CycleCoordinator.RunCycle on
// a fixed interval — the concrete form of an external tick source. It
// also runs the slower quarantine-janitor job. Neither job ever
// overlaps itself: gocron's singleton mode guarantees a slow tick is
// never joined by a second one, and Coordinator's own cycle mutex is
// the second line of defense.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"github.com/fleetmetra/geoingest/internal/coordinator"
)

// BackupJanitor is the capability the quarantine-janitor job consumes.
// It is satisfied by *backupstore.Store.
type BackupJanitor interface {
	PurgeExpired(ctx context.Context, olderThan time.Duration) (int, error)
}

// Scheduler owns the gocron instance driving the ingest cycle and the
// backup-quarantine janitor.
type Scheduler struct {
	cron  gocron.Scheduler
	coord *coordinator.Coordinator
	log   *zap.Logger
}

// Config parameterizes the two jobs Scheduler registers.
type Config struct {
	TickInterval        time.Duration
	JanitorInterval     time.Duration
	QuarantineRetention time.Duration

	// ShutdownGracePeriod bounds how long Stop waits for an in-flight
	// ingest cycle or janitor run to return before giving up. It does
	// not interrupt the running job function itself — runCycle's own
	// 10-minute context still governs that — it only bounds how long
	// the caller's shutdown path blocks on gocron.Shutdown.
	ShutdownGracePeriod time.Duration
}

// New creates a Scheduler. Call Start to begin ticking.
func New(coord *coordinator.Coordinator, janitor BackupJanitor, cfg Config, log *zap.Logger) (*Scheduler, error) {
	grace := cfg.ShutdownGracePeriod
	if grace <= 0 {
		grace = 10 * time.Second
	}
	cron, err := gocron.NewScheduler(gocron.WithStopTimeout(grace))
	if err != nil {
		return nil, fmt.Errorf("scheduler: create gocron scheduler: %w", err)
	}

	s := &Scheduler{cron: cron, coord: coord, log: log.Named("scheduler")}

	if _, err := cron.NewJob(
		gocron.DurationJob(cfg.TickInterval),
		gocron.NewTask(s.runCycle),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithTags("ingest-cycle"),
	); err != nil {
		return nil, fmt.Errorf("scheduler: schedule ingest cycle: %w", err)
	}

	if _, err := cron.NewJob(
		gocron.DurationJob(cfg.JanitorInterval),
		gocron.NewTask(func() { s.runJanitor(janitor, cfg.QuarantineRetention) }),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithTags("backup-janitor"),
	); err != nil {
		return nil, fmt.Errorf("scheduler: schedule backup janitor: %w", err)
	}

	return s, nil
}

// Start begins ticking. It does not block.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started")
}

// Stop shuts the scheduler down, waiting up to the configured
// ShutdownGracePeriod for any currently running job function to
// return before giving up.
func (s *Scheduler) Stop() error {
	if err := s.cron.Shutdown(); err != nil {
		return fmt.Errorf("scheduler: shutdown: %w", err)
	}
	s.log.Info("scheduler stopped")
	return nil
}

// TriggerNow runs one ingest cycle immediately, bypassing the tick
// interval. Exposed for a manual-trigger HTTP endpoint or for tests.
func (s *Scheduler) TriggerNow(ctx context.Context) coordinator.CycleResult {
	return s.coord.RunCycle(ctx)
}

func (s *Scheduler) runCycle() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	result := s.coord.RunCycle(ctx)
	if result.Skipped {
		return
	}
	if result.ReplayErr != nil {
		s.log.Error("cycle halted during replay", zap.Error(result.ReplayErr))
		return
	}
	for _, fo := range result.Families {
		if fo.Err != nil {
			s.log.Warn("family outcome reported an error",
				zap.String("family", fo.Family.String()),
				zap.String("outcome", string(fo.Outcome)),
				zap.Error(fo.Err),
			)
		}
	}
}

func (s *Scheduler) runJanitor(janitor BackupJanitor, retention time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	removed, err := janitor.PurgeExpired(ctx, retention)
	if err != nil {
		s.log.Error("backup janitor run failed", zap.Error(err))
		return
	}
	if removed > 0 {
		s.log.Info("backup janitor purged expired quarantine entries", zap.Int("removed", removed))
	}
}
