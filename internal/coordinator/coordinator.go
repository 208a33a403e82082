// Package coordinator drives the ingest pipeline: demo discovery, match
// claiming, decode/extract/persist, retry and stats. Workers coordinate
// through the relational store's claim-by-update, so multiple ingest
// processes can share one queue safely.
package coordinator

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kikokikok/fps-genie/internal/columnar"
	"github.com/kikokikok/fps-genie/internal/demo"
	"github.com/kikokikok/fps-genie/internal/extract"
	"github.com/kikokikok/fps-genie/internal/features"
	"github.com/kikokikok/fps-genie/internal/logging"
	"github.com/kikokikok/fps-genie/internal/models"
	"github.com/kikokikok/fps-genie/internal/pipeerr"
	"github.com/kikokikok/fps-genie/internal/retry"
	"github.com/kikokikok/fps-genie/internal/storage"
	"github.com/kikokikok/fps-genie/internal/types"
)

// upsertChunkSize bounds one vector store upsert request
const upsertChunkSize = 256

// fallbackTickRate is used when a demo header carries no usable playback
// timing
const fallbackTickRate = 64.0

// Coordinator owns one ingest worker pool
type Coordinator struct {
	matches   *storage.MatchRepository
	snapshots storage.SnapshotStore
	vectors   *storage.QdrantClient
	cache     *storage.RedisCache
	wanted    *features.WantedSet
	outputDir string
	maxJobs   int
	batchSize int
	timeout   time.Duration
	owner     string
	retryCfg  *retry.Config
	logger    *logging.Logger
}

// Config configures a coordinator. Vectors and Cache are optional;
// everything else is required.
type Config struct {
	Matches   *storage.MatchRepository
	Snapshots storage.SnapshotStore
	Vectors   *storage.QdrantClient
	Cache     *storage.RedisCache
	Preset    types.FeaturePreset
	OutputDir string
	MaxJobs   int
	BatchSize int
	Timeout   time.Duration
	Retry     *retry.Config
	Logger    *logging.Logger
}

// New creates a coordinator
func New(cfg Config) (*Coordinator, error) {
	if cfg.Matches == nil {
		return nil, fmt.Errorf("match repository cannot be nil")
	}
	if cfg.Snapshots == nil {
		return nil, fmt.Errorf("snapshot store cannot be nil")
	}

	mask, err := features.FromPreset(cfg.Preset)
	if err != nil {
		return nil, err
	}

	maxJobs := cfg.MaxJobs
	if maxJobs <= 0 {
		maxJobs = 4
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 5000
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	retryCfg := cfg.Retry
	if retryCfg == nil {
		retryCfg = retry.DefaultConfig()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewLogger(logging.LevelInfo, logging.FormatJSON)
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	return &Coordinator{
		matches:   cfg.Matches,
		snapshots: cfg.Snapshots,
		vectors:   cfg.Vectors,
		cache:     cfg.Cache,
		wanted:    mask.Compile(),
		outputDir: cfg.OutputDir,
		maxJobs:   maxJobs,
		batchSize: batchSize,
		timeout:   timeout,
		owner:     fmt.Sprintf("%s-%d", hostname, os.Getpid()),
		retryCfg:  retryCfg,
		logger:    logger,
	}, nil
}

// ProcessResult summarizes one ProcessPending pass
type ProcessResult struct {
	Claimed   int
	Completed int
	Failed    int
}

// ProcessPending claims up to limit pending matches and processes each
// end to end on a pool of MaxJobs workers. A lost claim race is not an
// error; the row simply belongs to another worker.
func (c *Coordinator) ProcessPending(ctx context.Context, limit int) (*ProcessResult, error) {
	pending, err := c.matches.SelectByStatus(ctx, types.StatusPending, limit, 0)
	if err != nil {
		return nil, err
	}

	result := &ProcessResult{}
	var mu sync.Mutex

	jobs := make(chan *models.MatchMetadata)
	var wg sync.WaitGroup
	for i := 0; i < c.maxJobs; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for m := range jobs {
				claimed, err := c.claim(ctx, m.ID)
				if err != nil {
					c.logger.WithMatch(m.ID.String()).WithError(err).Error("Failed to claim match")
					continue
				}
				if !claimed {
					continue
				}

				mu.Lock()
				result.Claimed++
				mu.Unlock()

				if err := c.processMatch(ctx, m); err != nil {
					c.logger.WithMatch(m.ID.String()).WithError(err).Error("Match processing failed")
					c.fail(ctx, m.ID, err)
					mu.Lock()
					result.Failed++
					mu.Unlock()
					continue
				}
				mu.Lock()
				result.Completed++
				mu.Unlock()
			}
		}()
	}

	for _, m := range pending {
		select {
		case jobs <- m:
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return result, ctx.Err()
		}
	}
	close(jobs)
	wg.Wait()

	if c.cache != nil && result.Claimed > 0 {
		_ = c.cache.InvalidateStats(ctx)
	}
	return result, nil
}

// Run performs discover+process passes. With a zero watch interval it
// runs a single pass; otherwise it repeats until the context ends.
func (c *Coordinator) Run(ctx context.Context, demoDir string, recursive bool, watchInterval time.Duration) error {
	if watchInterval <= 0 {
		return c.runPass(ctx, demoDir, recursive)
	}

	ticker := time.NewTicker(watchInterval)
	defer ticker.Stop()

	if err := c.runPass(ctx, demoDir, recursive); err != nil {
		c.logger.WithError(err).Error("Ingest pass failed")
	}
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Ingest loop stopping")
			return nil
		case <-ticker.C:
			if err := c.runPass(ctx, demoDir, recursive); err != nil {
				c.logger.WithError(err).Error("Ingest pass failed")
			}
		}
	}
}

func (c *Coordinator) runPass(ctx context.Context, demoDir string, recursive bool) error {
	if _, err := c.Discover(ctx, demoDir, recursive); err != nil {
		return err
	}
	// Drain the pending queue in pool-sized pages until it is empty
	for {
		result, err := c.ProcessPending(ctx, c.maxJobs*4)
		if err != nil {
			return err
		}
		if result.Claimed == 0 {
			return nil
		}
	}
}

// Retry moves failed matches with fewer than maxAttempts attempts back
// to pending and returns how many were reset.
func (c *Coordinator) Retry(ctx context.Context, maxAttempts int) (int64, error) {
	reset, err := c.matches.ResetForRetry(ctx, maxAttempts)
	if err != nil {
		return 0, err
	}
	if c.cache != nil && reset > 0 {
		_ = c.cache.InvalidateStats(ctx)
	}
	return reset, nil
}

// Stats returns ingest counters, served from the cache when fresh
func (c *Coordinator) Stats(ctx context.Context) (*models.IngestStats, error) {
	if c.cache != nil {
		if cached, err := c.cache.GetCachedStats(ctx); err == nil && cached != nil {
			return cached, nil
		}
	}

	stats, err := c.matches.CountsByStatus(ctx)
	if err != nil {
		return nil, err
	}
	if rows, err := c.snapshots.CountRows(ctx); err == nil {
		stats.SnapshotRows = rows
	}

	if c.cache != nil {
		_ = c.cache.SetCachedStats(ctx, stats)
	}
	return stats, nil
}

// processMatch runs one claimed match end to end: decode, extract,
// persist, columnar write, moment vectors, completion.
func (c *Coordinator) processMatch(ctx context.Context, m *models.MatchMetadata) error {
	logger := c.logger.WithMatch(m.ID.String()).WithField("path", m.FilePath)
	ctx = logging.WithLogger(ctx, logger)

	outPath := columnar.OutputPath(c.outputDir, m.FilePath)
	removed, err := columnar.RemoveIfPartial(outPath)
	if err != nil {
		return err
	}
	if removed {
		logger.WithField("output", outPath).Warn("Removed partial columnar file from a previous attempt")
	}

	f, err := os.Open(m.FilePath)
	if err != nil {
		return pipeerr.NewInputError(m.FilePath, err)
	}
	defer func() { _ = f.Close() }()

	dec := demo.NewDecoder(f)
	header, err := dec.ParseHeader()
	if err != nil {
		return err
	}

	tickRate := header.TickRate()
	if tickRate <= 0 {
		tickRate = fallbackTickRate
	}

	writer, err := columnar.NewWriter(outPath)
	if err != nil {
		return err
	}

	var moments *MomentBuilder
	if c.vectors != nil {
		moments = NewMomentBuilder(m.ID, header.MapName, c.vectors.Dimension())
	}

	known := make(map[uint64]struct{})
	batch := make([]*models.BehavioralSnapshot, 0, c.batchSize)

	// Participation rows are written before the snapshot rows that
	// reference their players, per flush.
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		var newPlayers []uint64
		for _, snap := range batch {
			if _, ok := known[snap.SteamID]; !ok {
				known[snap.SteamID] = struct{}{}
				newPlayers = append(newPlayers, snap.SteamID)
			}
		}
		if len(newPlayers) > 0 {
			if err := c.withStore(ctx, func(opCtx context.Context) error {
				return c.matches.UpsertParticipants(opCtx, m.ID, newPlayers)
			}); err != nil {
				return err
			}
		}
		if err := c.withStore(ctx, func(opCtx context.Context) error {
			return c.snapshots.InsertBatch(opCtx, batch)
		}); err != nil {
			return err
		}
		if err := writer.WriteBatch(batch); err != nil {
			return err
		}
		batch = batch[:0]
		return nil
	}

	ext := extract.NewExtractor(extract.Config{
		MatchID:  m.ID,
		Wanted:   c.wanted,
		BaseTime: m.CreatedAt,
		TickRate: tickRate,
		Logger:   logger,
		Emit: func(snap *models.BehavioralSnapshot) error {
			if moments != nil {
				moments.Add(snap)
			}
			batch = append(batch, snap)
			if len(batch) >= c.batchSize {
				return flush()
			}
			return nil
		},
	})

	if err := dec.Drain(ext.ProcessFrame); err != nil {
		_ = writer.Abort()
		return err
	}
	if err := ext.Flush(); err != nil {
		_ = writer.Abort()
		return err
	}
	if ext.ExceededErrorBudget() {
		_ = writer.Abort()
		return fmt.Errorf("frame error rate %.1f%% exceeds the failure threshold", ext.ErrorRate()*100)
	}
	if err := flush(); err != nil {
		_ = writer.Abort()
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}

	if moments != nil {
		if err := c.upsertMoments(ctx, moments.Finalize()); err != nil {
			return err
		}
	}

	if err := c.withStore(ctx, func(opCtx context.Context) error {
		return c.matches.Complete(opCtx, m.ID, tickRate, float64(header.PlaybackTime))
	}); err != nil {
		return err
	}

	telemetry := dec.Telemetry()
	logger.WithFields(map[string]interface{}{
		"rows":       writer.Rows(),
		"players":    len(known),
		"frames":     telemetry.FramesEmitted,
		"throughput": fmt.Sprintf("%.1f MB/s", telemetry.ThroughputMBps()),
	}).Info("Match processed")
	return nil
}

func (c *Coordinator) upsertMoments(ctx context.Context, vectors []*models.MomentVector) error {
	for start := 0; start < len(vectors); start += upsertChunkSize {
		end := start + upsertChunkSize
		if end > len(vectors) {
			end = len(vectors)
		}
		chunk := vectors[start:end]
		if err := c.withStore(ctx, func(opCtx context.Context) error {
			return c.vectors.UpsertPoints(opCtx, chunk)
		}); err != nil {
			return err
		}
	}
	return nil
}

func (c *Coordinator) claim(ctx context.Context, id uuid.UUID) (bool, error) {
	var claimed bool
	err := c.withStore(ctx, func(opCtx context.Context) error {
		var err error
		claimed, err = c.matches.Claim(opCtx, id, c.owner)
		return err
	})
	return claimed, err
}

// fail marks the match failed. Best effort: if the store is down the row
// stays in processing and a later retry pass picks it up.
func (c *Coordinator) fail(ctx context.Context, id uuid.UUID, cause error) {
	if err := c.withStore(ctx, func(opCtx context.Context) error {
		return c.matches.Fail(opCtx, id, cause.Error())
	}); err != nil {
		c.logger.WithMatch(id.String()).WithError(err).Error("Failed to record match failure")
	}
}

// withStore runs one storage operation with the per-call timeout inside
// the retry loop, so each attempt gets a fresh deadline.
func (c *Coordinator) withStore(ctx context.Context, fn func(context.Context) error) error {
	return retry.Do(ctx, c.retryCfg, func(ctx context.Context, _ int) error {
		opCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		return fn(opCtx)
	})
}
