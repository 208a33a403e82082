package storage

import (
	"context"

	"github.com/kikokikok/fps-genie/internal/models"
)

// SnapshotStore is the time-series storage contract. Batches are bounded
// by the configured batch size to keep insert memory flat.
type SnapshotStore interface {
	// InitializeSchema declares the snapshot table, its time partitioning
	// and the covering index on (match_id, player_id, tick). Idempotent.
	InitializeSchema(ctx context.Context) error
	// InsertBatch appends one batch of snapshots
	InsertBatch(ctx context.Context, batch []*models.BehavioralSnapshot) error
	// CountRows returns the total number of persisted snapshot rows
	CountRows(ctx context.Context) (int64, error)
	// HealthCheck reports whether the store is reachable
	HealthCheck(ctx context.Context) error
	// Close releases the underlying connection
	Close() error
}
