package models

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// BehavioralSnapshot is one (tick, player) row of extracted state plus the
// action labels observed over the next tick boundary. Rows are append-only;
// once emitted they are never revised.
type BehavioralSnapshot struct {
	MatchID    uuid.UUID `json:"matchId" parquet:"match_id"`
	Tick       uint32    `json:"tick" parquet:"tick"`
	SteamID    uint64    `json:"steamId" parquet:"steam_id"`
	RecordedAt time.Time `json:"recordedAt" parquet:"recorded_at"`

	Health float32 `json:"health" parquet:"health"`
	Armor  float32 `json:"armor" parquet:"armor"`
	PosX   float32 `json:"posX" parquet:"pos_x"`
	PosY   float32 `json:"posY" parquet:"pos_y"`
	PosZ   float32 `json:"posZ" parquet:"pos_z"`
	VelX   float32 `json:"velX" parquet:"vel_x"`
	VelY   float32 `json:"velY" parquet:"vel_y"`
	VelZ   float32 `json:"velZ" parquet:"vel_z"`
	Yaw    float32 `json:"yaw" parquet:"yaw"`
	Pitch  float32 `json:"pitch" parquet:"pitch"`

	WeaponID       uint16  `json:"weaponId" parquet:"weapon_id"`
	ClipAmmo       uint16  `json:"clipAmmo" parquet:"clip_ammo"`
	IsAirborne     bool    `json:"isAirborne" parquet:"is_airborne"`
	IsScoped       bool    `json:"isScoped" parquet:"is_scoped"`
	IsWalking      bool    `json:"isWalking" parquet:"is_walking"`
	FlashDuration  float32 `json:"flashDuration" parquet:"flash_duration"`
	Money          uint32  `json:"money" parquet:"money"`
	EquipmentValue uint32  `json:"equipmentValue" parquet:"equipment_value"`

	DeltaYaw   float32 `json:"deltaYaw" parquet:"delta_yaw"`
	DeltaPitch float32 `json:"deltaPitch" parquet:"delta_pitch"`
}

// DistanceTo returns the Euclidean distance between two snapshot positions
func (s *BehavioralSnapshot) DistanceTo(other *BehavioralSnapshot) float64 {
	dx := float64(s.PosX - other.PosX)
	dy := float64(s.PosY - other.PosY)
	dz := float64(s.PosZ - other.PosZ)
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// MomentVector is a fixed-dimension summary of a window of snapshots,
// stored in the vector collection for tactical similarity search
type MomentVector struct {
	MatchID   uuid.UUID         `json:"matchId"`
	MomentID  uint32            `json:"momentId"`
	SteamID   uint64            `json:"steamId"`
	Vector    []float32         `json:"vector"`
	StartTick uint32            `json:"startTick"`
	EndTick   uint32            `json:"endTick"`
	Payload   map[string]string `json:"payload,omitempty"`
}
