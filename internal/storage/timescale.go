package storage

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/kikokikok/fps-genie/internal/models"
	"github.com/kikokikok/fps-genie/internal/pipeerr"
)

// timescaleSchema declares the snapshot hypertable. The hypertable call
// is tolerated to fail when the timescaledb extension is unavailable, in
// which case the plain table still satisfies the storage contract.
const timescaleSchema = `
CREATE TABLE IF NOT EXISTS behavioral_snapshots (
	match_id UUID NOT NULL,
	tick BIGINT NOT NULL,
	steam_id BIGINT NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL,
	health REAL NOT NULL,
	armor REAL NOT NULL,
	pos_x REAL NOT NULL,
	pos_y REAL NOT NULL,
	pos_z REAL NOT NULL,
	vel_x REAL NOT NULL,
	vel_y REAL NOT NULL,
	vel_z REAL NOT NULL,
	yaw REAL NOT NULL,
	pitch REAL NOT NULL,
	weapon_id SMALLINT NOT NULL,
	clip_ammo SMALLINT NOT NULL,
	is_airborne BOOLEAN NOT NULL,
	is_scoped BOOLEAN NOT NULL,
	is_walking BOOLEAN NOT NULL,
	flash_duration REAL NOT NULL,
	money INT NOT NULL,
	equipment_value INT NOT NULL,
	delta_yaw REAL NOT NULL,
	delta_pitch REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_snapshots_match_player_tick
	ON behavioral_snapshots (match_id, steam_id, tick);
`

// TimescaleStore persists behavioral snapshots in a TimescaleDB
// hypertable, batched through the binary copy protocol
type TimescaleStore struct {
	db *PostgresDB
}

// NewTimescaleStore creates the default time-series backend
func NewTimescaleStore(ctx context.Context, connString string) (*TimescaleStore, error) {
	db, err := NewPostgresDB(ctx, connString)
	if err != nil {
		return nil, pipeerr.NewStorageError("timescale", "connect", err)
	}
	return &TimescaleStore{db: db}, nil
}

// InitializeSchema declares the snapshot table, partitioning and index.
// Idempotent.
func (s *TimescaleStore) InitializeSchema(ctx context.Context) error {
	if _, err := s.db.Pool().Exec(ctx, timescaleSchema); err != nil {
		return pipeerr.NewStorageError("timescale", "initialize_schema", err)
	}

	// Partition by the time column. if_not_exists makes the call
	// idempotent; without the timescaledb extension the plain table
	// above still satisfies the contract.
	_, _ = s.db.Pool().Exec(ctx,
		`SELECT create_hypertable('behavioral_snapshots', 'recorded_at', if_not_exists => TRUE)`)
	return nil
}

// InsertBatch appends one batch of snapshots via COPY
func (s *TimescaleStore) InsertBatch(ctx context.Context, batch []*models.BehavioralSnapshot) error {
	if len(batch) == 0 {
		return nil
	}

	columns := []string{
		"match_id", "tick", "steam_id", "recorded_at",
		"health", "armor", "pos_x", "pos_y", "pos_z",
		"vel_x", "vel_y", "vel_z", "yaw", "pitch",
		"weapon_id", "clip_ammo", "is_airborne", "is_scoped", "is_walking",
		"flash_duration", "money", "equipment_value",
		"delta_yaw", "delta_pitch",
	}

	_, err := s.db.Pool().CopyFrom(ctx,
		pgx.Identifier{"behavioral_snapshots"},
		columns,
		pgx.CopyFromSlice(len(batch), func(i int) ([]interface{}, error) {
			r := batch[i]
			return []interface{}{
				r.MatchID, int64(r.Tick), int64(r.SteamID), r.RecordedAt,
				r.Health, r.Armor, r.PosX, r.PosY, r.PosZ,
				r.VelX, r.VelY, r.VelZ, r.Yaw, r.Pitch,
				int16(r.WeaponID), int16(r.ClipAmmo), r.IsAirborne, r.IsScoped, r.IsWalking,
				r.FlashDuration, int32(r.Money), int32(r.EquipmentValue),
				r.DeltaYaw, r.DeltaPitch,
			}, nil
		}),
	)
	if err != nil {
		return pipeerr.NewStorageError("timescale", "insert_batch", err)
	}
	return nil
}

// CountRows returns the total number of persisted snapshot rows
func (s *TimescaleStore) CountRows(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.Pool().QueryRow(ctx, `SELECT COUNT(*) FROM behavioral_snapshots`).Scan(&count)
	if err != nil {
		return 0, pipeerr.NewStorageError("timescale", "count_rows", err)
	}
	return count, nil
}

// HealthCheck reports whether the store is reachable
func (s *TimescaleStore) HealthCheck(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return pipeerr.NewStorageError("timescale", "health_check", err)
	}
	return nil
}

// Close releases the connection pool
func (s *TimescaleStore) Close() error {
	s.db.Close()
	return nil
}
