package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/kikokikok/fps-genie/internal/config"
	"github.com/kikokikok/fps-genie/internal/models"
	"github.com/kikokikok/fps-genie/internal/pipeerr"
)

// clickhouseSchema declares the snapshot table partitioned by month of
// the time column and ordered for the (match, player, tick) access path
const clickhouseSchema = `
CREATE TABLE IF NOT EXISTS behavioral_snapshots (
	match_id UUID,
	tick UInt32,
	steam_id UInt64,
	recorded_at DateTime64(3),
	health Float32,
	armor Float32,
	pos_x Float32,
	pos_y Float32,
	pos_z Float32,
	vel_x Float32,
	vel_y Float32,
	vel_z Float32,
	yaw Float32,
	pitch Float32,
	weapon_id UInt16,
	clip_ammo UInt16,
	is_airborne Bool,
	is_scoped Bool,
	is_walking Bool,
	flash_duration Float32,
	money UInt32,
	equipment_value UInt32,
	delta_yaw Float32,
	delta_pitch Float32
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(recorded_at)
ORDER BY (match_id, steam_id, tick)
`

// ClickHouseStore persists behavioral snapshots in ClickHouse, selected
// with TIMESERIES_BACKEND=clickhouse
type ClickHouseStore struct {
	conn driver.Conn
}

// NewClickHouseStore creates the ClickHouse time-series backend
func NewClickHouseStore(ctx context.Context, cfg *config.ClickHouseConfig) (*ClickHouseStore, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout:      10 * time.Second,
		MaxOpenConns:     10,
		MaxIdleConns:     5,
		ConnMaxLifetime:  time.Hour,
		ConnOpenStrategy: clickhouse.ConnOpenInOrder,
	})
	if err != nil {
		return nil, pipeerr.NewStorageError("clickhouse", "connect", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.Ping(pingCtx); err != nil {
		return nil, pipeerr.NewStorageError("clickhouse", "connect", fmt.Errorf("failed to ping ClickHouse: %w", err))
	}

	return &ClickHouseStore{conn: conn}, nil
}

// InitializeSchema creates the snapshot table. Idempotent.
func (s *ClickHouseStore) InitializeSchema(ctx context.Context) error {
	if err := s.conn.Exec(ctx, clickhouseSchema); err != nil {
		return pipeerr.NewStorageError("clickhouse", "initialize_schema", err)
	}
	return nil
}

// InsertBatch appends one batch of snapshots through a prepared batch
func (s *ClickHouseStore) InsertBatch(ctx context.Context, batch []*models.BehavioralSnapshot) error {
	if len(batch) == 0 {
		return nil
	}

	prepared, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO behavioral_snapshots (
			match_id, tick, steam_id, recorded_at,
			health, armor, pos_x, pos_y, pos_z,
			vel_x, vel_y, vel_z, yaw, pitch,
			weapon_id, clip_ammo, is_airborne, is_scoped, is_walking,
			flash_duration, money, equipment_value,
			delta_yaw, delta_pitch
		)
	`)
	if err != nil {
		return pipeerr.NewStorageError("clickhouse", "prepare_batch", err)
	}

	for _, r := range batch {
		if err := prepared.Append(
			r.MatchID, r.Tick, r.SteamID, r.RecordedAt,
			r.Health, r.Armor, r.PosX, r.PosY, r.PosZ,
			r.VelX, r.VelY, r.VelZ, r.Yaw, r.Pitch,
			r.WeaponID, r.ClipAmmo, r.IsAirborne, r.IsScoped, r.IsWalking,
			r.FlashDuration, r.Money, r.EquipmentValue,
			r.DeltaYaw, r.DeltaPitch,
		); err != nil {
			return pipeerr.NewStorageError("clickhouse", "append_batch", err)
		}
	}

	if err := prepared.Send(); err != nil {
		return pipeerr.NewStorageError("clickhouse", "insert_batch", err)
	}
	return nil
}

// CountRows returns the total number of persisted snapshot rows
func (s *ClickHouseStore) CountRows(ctx context.Context) (int64, error) {
	var count uint64
	if err := s.conn.QueryRow(ctx, `SELECT count() FROM behavioral_snapshots`).Scan(&count); err != nil {
		return 0, pipeerr.NewStorageError("clickhouse", "count_rows", err)
	}
	return int64(count), nil // #nosec G115 - row counts stay far below int64 range
}

// HealthCheck reports whether the store is reachable
func (s *ClickHouseStore) HealthCheck(ctx context.Context) error {
	if err := s.conn.Ping(ctx); err != nil {
		return pipeerr.NewStorageError("clickhouse", "health_check", err)
	}
	return nil
}

// Close closes the ClickHouse connection
func (s *ClickHouseStore) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
