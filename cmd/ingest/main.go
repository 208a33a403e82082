// Package main provides the ingest pipeline command line entry point.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kikokikok/fps-genie/internal/api"
	"github.com/kikokikok/fps-genie/internal/config"
	"github.com/kikokikok/fps-genie/internal/coordinator"
	"github.com/kikokikok/fps-genie/internal/logging"
	"github.com/kikokikok/fps-genie/internal/storage"
	"github.com/kikokikok/fps-genie/internal/types"
)

const usage = `Usage: ingest <command> [flags]

Commands:
  init       initialize store schemas (--migrations <dir> for versioned files)
  discover   register demo files under DEMO_DIR as pending matches
  process    claim and process pending matches once
  run        discover + process, optionally in a loop (--watch-interval)
  retry      move failed matches back to pending (--max-attempts)
  stats      print ingest counters
  serve-api  serve the read-only ops HTTP endpoint
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	command := os.Args[1]
	args := os.Args[2:]

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(
		logging.ParseLogLevel(cfg.Logging.Level),
		logging.ParseLogFormat(cfg.Logging.Format),
	)

	var run func(context.Context, *config.Config, *logging.Logger, []string) error
	switch command {
	case "init":
		run = runInit
	case "discover":
		run = runDiscover
	case "process":
		run = runProcess
	case "run":
		run = runLoop
	case "retry":
		run = runRetry
	case "stats":
		run = runStats
	case "serve-api":
		run = runServeAPI
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", command, usage)
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger, args); err != nil {
		logger.WithError(err).Errorf("Command %s failed", command)
		os.Exit(1)
	}
}

// stores bundles the pipeline's storage handles
type stores struct {
	postgres  *storage.PostgresDB
	matches   *storage.MatchRepository
	snapshots storage.SnapshotStore
	vectors   *storage.QdrantClient
	cache     *storage.RedisCache
}

func (s *stores) close() {
	if s.cache != nil {
		_ = s.cache.Close()
	}
	if s.snapshots != nil {
		_ = s.snapshots.Close()
	}
	if s.postgres != nil {
		s.postgres.Close()
	}
}

// openStores connects the relational and time-series stores plus the
// optional vector and cache backends. A missing Redis is downgraded to a
// warning; everything else is fatal.
func openStores(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*stores, error) {
	postgres, err := storage.NewPostgresDB(ctx, cfg.Database.PostgresURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}

	s := &stores{
		postgres: postgres,
		matches:  storage.NewMatchRepository(postgres),
	}

	switch cfg.Database.Backend {
	case types.BackendClickHouse:
		s.snapshots, err = storage.NewClickHouseStore(ctx, &cfg.Database.ClickHouse)
	default:
		s.snapshots, err = storage.NewTimescaleStore(ctx, cfg.Database.TimescaleURL)
	}
	if err != nil {
		s.close()
		return nil, fmt.Errorf("failed to connect to the time-series store: %w", err)
	}

	s.vectors = storage.NewQdrantClient(
		cfg.Vector.QdrantURL,
		cfg.Vector.Collection,
		cfg.Vector.Dimension,
		cfg.Vector.UpsertsPerSecond,
	)

	cache, err := storage.NewRedisCache(&cfg.Database.Redis)
	if err != nil {
		logger.WithError(err).Warn("Redis unavailable, continuing without cache")
	} else {
		s.cache = cache
	}

	return s, nil
}

func newCoordinator(cfg *config.Config, s *stores, logger *logging.Logger) (*coordinator.Coordinator, error) {
	return coordinator.New(coordinator.Config{
		Matches:   s.matches,
		Snapshots: s.snapshots,
		Vectors:   s.vectors,
		Cache:     s.cache,
		Preset:    cfg.Ingest.FeaturePreset,
		OutputDir: cfg.Ingest.OutputDir,
		MaxJobs:   cfg.Ingest.MaxJobs,
		BatchSize: cfg.Ingest.BatchSize,
		Timeout:   cfg.Database.Timeout,
		Logger:    logger,
	})
}

func runInit(ctx context.Context, cfg *config.Config, logger *logging.Logger, args []string) error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	migrationsDir := fs.String("migrations", "", "directory of versioned migration files (optional)")
	rollback := fs.Bool("rollback", false, "roll back the last applied migration instead of migrating up")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *rollback {
		if *migrationsDir == "" {
			return fmt.Errorf("--rollback requires --migrations")
		}
		if err := storage.RollbackMigrations(cfg.Database.PostgresURL, *migrationsDir); err != nil {
			return err
		}
		version, dirty, err := storage.MigrationVersion(cfg.Database.PostgresURL, *migrationsDir)
		if err != nil {
			return err
		}
		logger.WithFields(map[string]interface{}{
			"version": version,
			"dirty":   dirty,
		}).Info("Rolled back last migration")
		return nil
	}

	s, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer s.close()

	if *migrationsDir != "" {
		if err := storage.RunMigrations(cfg.Database.PostgresURL, *migrationsDir); err != nil {
			return err
		}
		version, dirty, err := storage.MigrationVersion(cfg.Database.PostgresURL, *migrationsDir)
		if err != nil {
			return err
		}
		logger.WithFields(map[string]interface{}{
			"dir":     *migrationsDir,
			"version": version,
			"dirty":   dirty,
		}).Info("Versioned migrations applied")
	} else if err := s.matches.InitializeSchema(ctx); err != nil {
		return err
	}

	if err := s.snapshots.InitializeSchema(ctx); err != nil {
		return err
	}
	if err := s.vectors.InitializeSchema(ctx); err != nil {
		return err
	}

	logger.Info("Store schemas initialized")
	return nil
}

func runDiscover(ctx context.Context, cfg *config.Config, logger *logging.Logger, args []string) error {
	fs := flag.NewFlagSet("discover", flag.ExitOnError)
	root := fs.String("dir", cfg.Ingest.DemoDir, "directory to scan for demo files")
	recursive := fs.Bool("recursive", true, "descend into subdirectories")
	if err := fs.Parse(args); err != nil {
		return err
	}

	s, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer s.close()

	coord, err := newCoordinator(cfg, s, logger)
	if err != nil {
		return err
	}

	result, err := coord.Discover(ctx, *root, *recursive)
	if err != nil {
		return err
	}
	fmt.Printf("scanned %d, inserted %d, skipped %d\n", result.Scanned, result.Inserted, result.Skipped)
	return nil
}

func runProcess(ctx context.Context, cfg *config.Config, logger *logging.Logger, args []string) error {
	fs := flag.NewFlagSet("process", flag.ExitOnError)
	limit := fs.Int("limit", 100, "maximum matches to claim in this pass")
	if err := fs.Parse(args); err != nil {
		return err
	}

	s, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer s.close()

	coord, err := newCoordinator(cfg, s, logger)
	if err != nil {
		return err
	}

	result, err := coord.ProcessPending(ctx, *limit)
	if err != nil {
		return err
	}
	fmt.Printf("claimed %d, completed %d, failed %d\n", result.Claimed, result.Completed, result.Failed)
	if result.Failed > 0 {
		return fmt.Errorf("%d matches failed", result.Failed)
	}
	return nil
}

func runLoop(ctx context.Context, cfg *config.Config, logger *logging.Logger, args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	root := fs.String("dir", cfg.Ingest.DemoDir, "directory to scan for demo files")
	recursive := fs.Bool("recursive", true, "descend into subdirectories")
	watchInterval := fs.Duration("watch-interval", cfg.Ingest.WatchInterval, "rescan interval, 0 for a single pass")
	if err := fs.Parse(args); err != nil {
		return err
	}

	s, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer s.close()

	coord, err := newCoordinator(cfg, s, logger)
	if err != nil {
		return err
	}

	return coord.Run(ctx, *root, *recursive, *watchInterval)
}

func runRetry(ctx context.Context, cfg *config.Config, logger *logging.Logger, args []string) error {
	fs := flag.NewFlagSet("retry", flag.ExitOnError)
	maxAttempts := fs.Int("max-attempts", cfg.Ingest.MaxAttempts, "retry matches with fewer attempts than this")
	if err := fs.Parse(args); err != nil {
		return err
	}

	s, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer s.close()

	coord, err := newCoordinator(cfg, s, logger)
	if err != nil {
		return err
	}

	reset, err := coord.Retry(ctx, *maxAttempts)
	if err != nil {
		return err
	}
	fmt.Printf("reset %d matches to pending\n", reset)
	return nil
}

func runStats(ctx context.Context, cfg *config.Config, logger *logging.Logger, args []string) error {
	s, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer s.close()

	coord, err := newCoordinator(cfg, s, logger)
	if err != nil {
		return err
	}

	stats, err := coord.Stats(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("pending:    %d\n", stats.Pending)
	fmt.Printf("processing: %d\n", stats.Processing)
	fmt.Printf("completed:  %d\n", stats.Completed)
	fmt.Printf("failed:     %d\n", stats.Failed)
	fmt.Printf("bytes:      %d\n", stats.ProcessedBytes)
	fmt.Printf("snapshots:  %d\n", stats.SnapshotRows)
	return nil
}

func runServeAPI(ctx context.Context, cfg *config.Config, logger *logging.Logger, args []string) error {
	fs := flag.NewFlagSet("serve-api", flag.ExitOnError)
	addr := fs.String("addr", cfg.API.Addr, "listen address")
	if err := fs.Parse(args); err != nil {
		return err
	}

	s, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer s.close()

	coord, err := newCoordinator(cfg, s, logger)
	if err != nil {
		return err
	}

	checks := map[string]api.HealthChecker{
		"postgres":   s.matches,
		"timeseries": s.snapshots,
		"qdrant":     s.vectors,
	}

	server := api.NewServer(&api.ServerConfig{
		Addr:    *addr,
		Stats:   coord,
		Matches: s.matches,
		Checks:  checks,
		Logger:  logger,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
