package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"cloud.google.com/go/bigquery"
	gcs "cloud.google.com/go/storage"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fleetmetra/geoingest/internal/backupstore"
	"github.com/fleetmetra/geoingest/internal/blobstore"
	"github.com/fleetmetra/geoingest/internal/coordinator"
	"github.com/fleetmetra/geoingest/internal/drain"
	"github.com/fleetmetra/geoingest/internal/metrics"
	"github.com/fleetmetra/geoingest/internal/model"
	"github.com/fleetmetra/geoingest/internal/queue"
	"github.com/fleetmetra/geoingest/internal/replay"
	"github.com/fleetmetra/geoingest/internal/resilience"
	"github.com/fleetmetra/geoingest/internal/scheduler"
	"github.com/fleetmetra/geoingest/internal/ship"
	"github.com/fleetmetra/geoingest/internal/warehouse"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// config mirrors the enumerated environment variables, bound to both
// flags and env so either can set them.
type config struct {
	httpAddr string
	logLevel string
	simulate bool

	tickIntervalMinutes int

	queueGPSKey    string
	queueMobileKey string
	redisAddr      string

	blobBucket      string
	blobGPSPrefix   string
	blobMobilePrefix string
	blobSimulateDir string

	warehouseProject     string
	warehouseDataset     string
	warehouseRegion      string
	warehouseGPSTable    string
	warehouseMobileTable string
	warehouseJobTimeoutMS int
	warehouseMaxBadRecords int
	warehousePriority      string

	backupRoot                     string
	backupMaxRetries               int
	backupQuarantineRetentionHours int
	janitorIntervalMinutes         int

	shutdownGracePeriodSeconds int
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := &config{}

	root := &cobra.Command{
		Use:   "geoingest",
		Short: "geoingest — scheduled GPS/mobile location ETL pipeline",
		Long: `geoingest drains vehicle GPS telemetry and mobile-inspector
location reports from a queue store on a fixed cadence, ships each
batch to a blob store as newline-delimited JSON, and triggers a
warehouse load job against it. Failures are preserved in a durable
local backup and retried on later cycles.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg)
		},
	}

	root.AddCommand(newVersionCmd())

	root.PersistentFlags().StringVar(&cfg.httpAddr, "http-addr", envOrDefault("HTTP_ADDR", ":8080"), "health/metrics HTTP listen address")
	root.PersistentFlags().StringVar(&cfg.logLevel, "log-level", envOrDefault("LOG_LEVEL", "info"), "log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&cfg.simulate, "simulate", envOrDefault("SIMULATE", "false") == "true", "use local filesystem/in-memory clients instead of GCS/BigQuery/Redis (development only)")

	root.PersistentFlags().IntVar(&cfg.tickIntervalMinutes, "tick-interval-minutes", envOrDefaultInt("TICK_INTERVAL_MINUTES", 5), "scheduler cadence in minutes")

	root.PersistentFlags().StringVar(&cfg.queueGPSKey, "queue-gps-key", envOrDefault("QUEUE_GPS_KEY", "gps:history:global"), "queue-store key for GPS records")
	root.PersistentFlags().StringVar(&cfg.queueMobileKey, "queue-mobile-key", envOrDefault("QUEUE_MOBILE_KEY", "mobile:history:global"), "queue-store key for mobile records")
	root.PersistentFlags().StringVar(&cfg.redisAddr, "redis-addr", envOrDefault("REDIS_ADDR", "localhost:6379"), "Redis address backing the queue store (ignored with --simulate)")

	root.PersistentFlags().StringVar(&cfg.blobBucket, "blob-bucket", envOrDefault("BLOB_BUCKET", ""), "GCS bucket for uploaded NDJSON blobs (ignored with --simulate)")
	root.PersistentFlags().StringVar(&cfg.blobGPSPrefix, "blob-gps-prefix", envOrDefault("BLOB_GPS_PREFIX", "gps-data"), "blob name prefix for GPS batches")
	root.PersistentFlags().StringVar(&cfg.blobMobilePrefix, "blob-mobile-prefix", envOrDefault("BLOB_MOBILE_PREFIX", "mobile-data"), "blob name prefix for mobile batches")
	root.PersistentFlags().StringVar(&cfg.blobSimulateDir, "blob-simulate-dir", envOrDefault("BLOB_SIMULATE_DIR", "./data/blobs"), "local directory used when --simulate is set")

	root.PersistentFlags().StringVar(&cfg.warehouseProject, "warehouse-project", envOrDefault("WAREHOUSE_PROJECT", ""), "BigQuery project (ignored with --simulate)")
	root.PersistentFlags().StringVar(&cfg.warehouseDataset, "warehouse-dataset", envOrDefault("WAREHOUSE_DATASET", ""), "BigQuery dataset (ignored with --simulate)")
	root.PersistentFlags().StringVar(&cfg.warehouseRegion, "warehouse-region", envOrDefault("WAREHOUSE_REGION", ""), "BigQuery dataset location/region")
	root.PersistentFlags().StringVar(&cfg.warehouseGPSTable, "warehouse-gps-table", envOrDefault("WAREHOUSE_GPS_TABLE", "gps_events"), "destination table for GPS batches")
	root.PersistentFlags().StringVar(&cfg.warehouseMobileTable, "warehouse-mobile-table", envOrDefault("WAREHOUSE_MOBILE_TABLE", "mobile_events"), "destination table for mobile batches")
	root.PersistentFlags().IntVar(&cfg.warehouseJobTimeoutMS, "warehouse-job-timeout-ms", envOrDefaultInt("WAREHOUSE_JOB_TIMEOUT_MS", 300_000), "per-job load timeout in milliseconds")
	root.PersistentFlags().IntVar(&cfg.warehouseMaxBadRecords, "warehouse-max-bad-records", envOrDefaultInt("WAREHOUSE_MAX_BAD_RECORDS", 0), "tolerated malformed rows per load job")
	root.PersistentFlags().StringVar(&cfg.warehousePriority, "warehouse-priority", envOrDefault("WAREHOUSE_PRIORITY", "BATCH"), "load job priority hint (BATCH or INTERACTIVE)")

	root.PersistentFlags().StringVar(&cfg.backupRoot, "backup-root", envOrDefault("BACKUP_ROOT", "./data/backups"), "local backup store root directory")
	root.PersistentFlags().IntVar(&cfg.backupMaxRetries, "backup-max-retries", envOrDefaultInt("BACKUP_MAX_RETRIES", 3), "max replay attempts before a backup entry is quarantined")
	root.PersistentFlags().IntVar(&cfg.backupQuarantineRetentionHours, "backup-quarantine-retention-hours", envOrDefaultInt("BACKUP_QUARANTINE_RETENTION_HOURS", 24), "hours a quarantined backup is kept before the janitor purges it")
	root.PersistentFlags().IntVar(&cfg.janitorIntervalMinutes, "janitor-interval-minutes", envOrDefaultInt("JANITOR_INTERVAL_MINUTES", 60), "how often the quarantine janitor runs")

	root.PersistentFlags().IntVar(&cfg.shutdownGracePeriodSeconds, "shutdown-grace-period-seconds", envOrDefaultInt("SHUTDOWN_GRACE_PERIOD_SECONDS", 90), "how long to wait for an in-flight cycle and the http server to drain on shutdown")

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("geoingest %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func run(ctx context.Context, cfg *config) error {
	logger, err := buildLogger(cfg.logLevel)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	logger.Info("starting geoingest",
		zap.String("version", version),
		zap.Bool("simulate", cfg.simulate),
		zap.Int("tick_interval_minutes", cfg.tickIntervalMinutes),
	)

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// --- 1. Blob store ---
	blobs, blobCloser, err := buildBlobStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to build blob store: %w", err)
	}
	defer blobCloser()

	// --- 2. Warehouse client ---
	wh, whCloser, err := buildWarehouse(ctx, cfg, blobs, logger)
	if err != nil {
		return fmt.Errorf("failed to build warehouse client: %w", err)
	}
	defer whCloser()

	// --- 3. Queue client ---
	q, queueCloser, err := buildQueue(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to build queue client: %w", err)
	}
	defer queueCloser()

	// --- 4. Local backup store ---
	backups, err := backupstore.NewStore(cfg.backupRoot)
	if err != nil {
		return fmt.Errorf("failed to build local backup store: %w", err)
	}

	// --- 5. Drain + ship per family ---
	keyFor := func(f model.Family) string {
		if f == model.FamilyGPS {
			return cfg.queueGPSKey
		}
		return cfg.queueMobileKey
	}
	drainer := drain.New(q, keyFor, logger)

	shipCfg := ship.Config{
		TableFor: func(f model.Family) string {
			if f == model.FamilyGPS {
				return cfg.warehouseGPSTable
			}
			return cfg.warehouseMobileTable
		},
		BlobPrefixFor: func(f model.Family) string {
			if f == model.FamilyGPS {
				return cfg.blobGPSPrefix
			}
			return cfg.blobMobilePrefix
		},
		LoadOptionsFor: func(f model.Family) model.LoadOptions {
			return model.LoadOptions{
				Region:        cfg.warehouseRegion,
				MaxBadRecords: cfg.warehouseMaxBadRecords,
				Priority:      priorityFrom(cfg.warehousePriority),
				JobTimeout:    time.Duration(cfg.warehouseJobTimeoutMS) * time.Millisecond,
			}
		},
		AwaitLoadWithin:  time.Duration(cfg.warehouseJobTimeoutMS) * time.Millisecond,
		MaxBackupRetries: cfg.backupMaxRetries,
	}
	shipper := ship.New(blobs, wh, backups, shipCfg, logger)
	replayer := replay.New(backups, shipper, logger)

	families := []model.Family{model.FamilyGPS, model.FamilyMobile}
	drainers := map[model.Family]coordinator.Drainer{model.FamilyGPS: drainer, model.FamilyMobile: drainer}
	shippers := map[model.Family]coordinator.Shipper{model.FamilyGPS: shipper, model.FamilyMobile: shipper}

	coord := coordinator.New(coordinator.Config{
		Families: families,
		Drainers: drainers,
		Shippers: shippers,
		Replayer: replayer,
	}, logger)

	shutdownGracePeriod := time.Duration(cfg.shutdownGracePeriodSeconds) * time.Second

	// --- 6. Scheduler ---
	sched, err := scheduler.New(coord, backups, scheduler.Config{
		TickInterval:        time.Duration(cfg.tickIntervalMinutes) * time.Minute,
		JanitorInterval:     time.Duration(cfg.janitorIntervalMinutes) * time.Minute,
		QuarantineRetention: time.Duration(cfg.backupQuarantineRetentionHours) * time.Hour,
		ShutdownGracePeriod: shutdownGracePeriod,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to build scheduler: %w", err)
	}
	sched.Start()
	defer func() {
		if err := sched.Stop(); err != nil {
			logger.Warn("scheduler shutdown error", zap.Error(err))
		}
	}()

	// --- 7. HTTP server: /healthz, /metrics and /trigger ---
	router := newRouter(coord, sched)
	httpSrv := &http.Server{
		Addr:         cfg.httpAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.httpAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down geoingest", zap.Duration("grace_period", shutdownGracePeriod))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server graceful shutdown error", zap.Error(err))
	}

	logger.Info("geoingest stopped")
	return nil
}

// newRouter exposes the operational surface: liveness, Prometheus
// scraping, and a manual trigger for an out-of-band cycle run.
func newRouter(coord *coordinator.Coordinator, sched *scheduler.Scheduler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		last, ok := coord.LastCycle()
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if !ok {
			w.WriteHeader(http.StatusOK)
			fmt.Fprintln(w, "ok: no cycle has run yet")
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok: last cycle started_at=%s duration=%s families=%d\n", last.StartedAt.Format(time.RFC3339), last.Duration, len(last.Families))
	})

	r.Handle("/metrics", metrics.Handler())

	r.Post("/trigger", func(w http.ResponseWriter, req *http.Request) {
		result := sched.TriggerNow(req.Context())
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if result.Skipped {
			w.WriteHeader(http.StatusConflict)
			fmt.Fprintln(w, "cycle already running")
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "cycle completed in %s\n", result.Duration)
	})

	return r
}

func buildBlobStore(ctx context.Context, cfg *config, logger *zap.Logger) (blobstore.Client, func(), error) {
	if cfg.simulate {
		logger.Warn("blob store running in simulation mode — do not use in production", zap.String("dir", cfg.blobSimulateDir))
		local, err := blobstore.NewLocal(cfg.blobSimulateDir)
		if err != nil {
			return nil, nil, err
		}
		return local, func() {}, nil
	}

	if cfg.blobBucket == "" {
		return nil, nil, fmt.Errorf("--blob-bucket is required outside --simulate mode")
	}
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("gcs client: %w", err)
	}
	breaker := resilience.New("blobstore", 5, 30*time.Second)
	return blobstore.NewGCS(client, cfg.blobBucket, breaker), func() { client.Close() }, nil
}

func buildWarehouse(ctx context.Context, cfg *config, blobs blobstore.Client, logger *zap.Logger) (warehouse.Client, func(), error) {
	if cfg.simulate {
		logger.Warn("warehouse running in simulation mode — do not use in production")
		return warehouse.NewSimulate(blobs), func() {}, nil
	}

	if cfg.warehouseProject == "" || cfg.warehouseDataset == "" {
		return nil, nil, fmt.Errorf("--warehouse-project and --warehouse-dataset are required outside --simulate mode")
	}
	client, err := bigquery.NewClient(ctx, cfg.warehouseProject)
	if err != nil {
		return nil, nil, fmt.Errorf("bigquery client: %w", err)
	}
	breaker := resilience.New("warehouse", 5, 30*time.Second)
	return warehouse.NewBigQuery(client, cfg.warehouseProject, cfg.warehouseDataset, breaker), func() { client.Close() }, nil
}

func buildQueue(cfg *config, logger *zap.Logger) (queue.Client, func(), error) {
	if cfg.simulate {
		logger.Warn("queue store running in simulation mode — do not use in production")
		return queue.NewMemory(), func() {}, nil
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.redisAddr})
	return queue.NewRedis(rdb), func() { rdb.Close() }, nil
}

func priorityFrom(s string) model.Priority {
	switch s {
	case "INTERACTIVE", "interactive":
		return model.PriorityInteractive
	default:
		return model.PriorityBatch
	}
}

func buildLogger(level string) (*zap.Logger, error) {
	var cfg zap.Config

	switch level {
	case "debug":
		cfg = zap.NewDevelopmentConfig()
	default:
		cfg = zap.NewProductionConfig()
	}

	switch level {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	return cfg.Build()
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return n
}
