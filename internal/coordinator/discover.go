package coordinator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kikokikok/fps-genie/internal/models"
	"github.com/kikokikok/fps-genie/internal/pipeerr"
	"github.com/kikokikok/fps-genie/internal/types"
)

// demoExtension identifies demo files during discovery
const demoExtension = ".dem"

// DiscoverResult summarizes one discovery pass
type DiscoverResult struct {
	Scanned  int
	Inserted int
	Skipped  int
}

// Discover enumerates demo files under root and registers the unknown
// ones as pending matches. Known files are recognized by content hash:
// Redis answers first, the relational unique constraints stay
// authoritative. Idempotent across repeated passes.
func (c *Coordinator) Discover(ctx context.Context, root string, recursive bool) (*DiscoverResult, error) {
	result := &DiscoverResult{}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if !recursive && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.EqualFold(filepath.Ext(path), demoExtension) {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		result.Scanned++
		inserted, err := c.register(ctx, path)
		if err != nil {
			return err
		}
		if inserted {
			result.Inserted++
		} else {
			result.Skipped++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if c.cache != nil && result.Inserted > 0 {
		_ = c.cache.InvalidateStats(ctx)
	}

	c.logger.WithFields(map[string]interface{}{
		"root":     root,
		"scanned":  result.Scanned,
		"inserted": result.Inserted,
		"skipped":  result.Skipped,
	}).Info("Discovery pass finished")
	return result, nil
}

func (c *Coordinator) register(ctx context.Context, path string) (bool, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false, pipeerr.NewInputError(path, err)
	}

	hash, size, err := hashFile(absPath)
	if err != nil {
		return false, err
	}

	if c.cache != nil {
		if seen, err := c.cache.SeenHash(ctx, hash); err == nil && seen {
			return false, nil
		}
	}

	m := &models.MatchMetadata{
		ID:          uuid.New(),
		MatchID:     strings.TrimSuffix(filepath.Base(absPath), filepath.Ext(absPath)),
		FilePath:    absPath,
		FileSize:    size,
		ContentHash: hash,
		Status:      types.StatusPending,
		CreatedAt:   time.Now().UTC(),
	}

	var inserted bool
	if err := c.withStore(ctx, func(opCtx context.Context) error {
		var err error
		inserted, err = c.matches.Insert(opCtx, m)
		return err
	}); err != nil {
		return false, err
	}

	if c.cache != nil {
		_ = c.cache.RegisterHash(ctx, hash)
	}
	return inserted, nil
}

// hashFile streams the file through SHA-256 and returns the hex digest
// and the byte count actually hashed.
func hashFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, pipeerr.NewInputError(path, err)
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	size, err := io.Copy(h, f)
	if err != nil {
		return "", 0, pipeerr.NewInputError(path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), size, nil
}
