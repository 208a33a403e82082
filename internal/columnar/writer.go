// Package columnar persists behavioral snapshot batches to parquet files
// for downstream training. One writer owns one match's output file from
// open to close.
package columnar

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/parquet-go/parquet-go"

	"github.com/kikokikok/fps-genie/internal/models"
)

// FileExtension is the suffix of all columnar output files
const FileExtension = ".parquet"

// snapshotRow is the on-disk layout of a snapshot. Parquet has no 16-bit
// physical type and parquet-go rejects uint16 struct fields, so weapon_id
// and clip_ammo widen to 32 bits in the file.
type snapshotRow struct {
	MatchID    uuid.UUID `parquet:"match_id"`
	Tick       uint32    `parquet:"tick"`
	SteamID    uint64    `parquet:"steam_id"`
	RecordedAt time.Time `parquet:"recorded_at"`

	Health float32 `parquet:"health"`
	Armor  float32 `parquet:"armor"`
	PosX   float32 `parquet:"pos_x"`
	PosY   float32 `parquet:"pos_y"`
	PosZ   float32 `parquet:"pos_z"`
	VelX   float32 `parquet:"vel_x"`
	VelY   float32 `parquet:"vel_y"`
	VelZ   float32 `parquet:"vel_z"`
	Yaw    float32 `parquet:"yaw"`
	Pitch  float32 `parquet:"pitch"`

	WeaponID       uint32  `parquet:"weapon_id"`
	ClipAmmo       uint32  `parquet:"clip_ammo"`
	IsAirborne     bool    `parquet:"is_airborne"`
	IsScoped       bool    `parquet:"is_scoped"`
	IsWalking      bool    `parquet:"is_walking"`
	FlashDuration  float32 `parquet:"flash_duration"`
	Money          uint32  `parquet:"money"`
	EquipmentValue uint32  `parquet:"equipment_value"`

	DeltaYaw   float32 `parquet:"delta_yaw"`
	DeltaPitch float32 `parquet:"delta_pitch"`
}

func toRow(s *models.BehavioralSnapshot) snapshotRow {
	return snapshotRow{
		MatchID:        s.MatchID,
		Tick:           s.Tick,
		SteamID:        s.SteamID,
		RecordedAt:     s.RecordedAt,
		Health:         s.Health,
		Armor:          s.Armor,
		PosX:           s.PosX,
		PosY:           s.PosY,
		PosZ:           s.PosZ,
		VelX:           s.VelX,
		VelY:           s.VelY,
		VelZ:           s.VelZ,
		Yaw:            s.Yaw,
		Pitch:          s.Pitch,
		WeaponID:       uint32(s.WeaponID),
		ClipAmmo:       uint32(s.ClipAmmo),
		IsAirborne:     s.IsAirborne,
		IsScoped:       s.IsScoped,
		IsWalking:      s.IsWalking,
		FlashDuration:  s.FlashDuration,
		Money:          s.Money,
		EquipmentValue: s.EquipmentValue,
		DeltaYaw:       s.DeltaYaw,
		DeltaPitch:     s.DeltaPitch,
	}
}

func fromRow(r *snapshotRow) *models.BehavioralSnapshot {
	return &models.BehavioralSnapshot{
		MatchID:        r.MatchID,
		Tick:           r.Tick,
		SteamID:        r.SteamID,
		RecordedAt:     r.RecordedAt,
		Health:         r.Health,
		Armor:          r.Armor,
		PosX:           r.PosX,
		PosY:           r.PosY,
		PosZ:           r.PosZ,
		VelX:           r.VelX,
		VelY:           r.VelY,
		VelZ:           r.VelZ,
		Yaw:            r.Yaw,
		Pitch:          r.Pitch,
		WeaponID:       uint16(r.WeaponID),
		ClipAmmo:       uint16(r.ClipAmmo),
		IsAirborne:     r.IsAirborne,
		IsScoped:       r.IsScoped,
		IsWalking:      r.IsWalking,
		FlashDuration:  r.FlashDuration,
		Money:          r.Money,
		EquipmentValue: r.EquipmentValue,
		DeltaYaw:       r.DeltaYaw,
		DeltaPitch:     r.DeltaPitch,
	}
}

// Writer appends snapshot batches to a single parquet file
type Writer struct {
	path   string
	file   *os.File
	writer *parquet.GenericWriter[snapshotRow]
	rows   int64
	closed bool
}

// OutputPath returns the columnar file path for a demo file stem inside
// the output directory
func OutputPath(outputDir, demoPath string) string {
	stem := strings.TrimSuffix(filepath.Base(demoPath), filepath.Ext(demoPath))
	return filepath.Join(outputDir, stem+FileExtension)
}

// NewWriter creates the output file, truncating any previous content.
// The caller owns the writer for the duration of one match.
func NewWriter(path string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	file, err := os.Create(path) // #nosec G304 - path is derived from the configured output directory
	if err != nil {
		return nil, fmt.Errorf("failed to create columnar file: %w", err)
	}

	return &Writer{
		path:   path,
		file:   file,
		writer: parquet.NewGenericWriter[snapshotRow](file),
	}, nil
}

// WriteBatch appends one batch of snapshots
func (w *Writer) WriteBatch(batch []*models.BehavioralSnapshot) error {
	if w.closed {
		return fmt.Errorf("columnar writer for %s is closed", w.path)
	}
	if len(batch) == 0 {
		return nil
	}

	rows := make([]snapshotRow, len(batch))
	for i, s := range batch {
		rows[i] = toRow(s)
	}

	n, err := w.writer.Write(rows)
	w.rows += int64(n)
	if err != nil {
		return fmt.Errorf("failed to write snapshot batch: %w", err)
	}
	return nil
}

// Rows returns the number of rows written so far
func (w *Writer) Rows() int64 {
	return w.rows
}

// Path returns the output file path
func (w *Writer) Path() string {
	return w.path
}

// Close flushes the parquet footer and closes the file. A file without a
// footer is a partial left by a crash; see Validate.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.writer.Close(); err != nil {
		_ = w.file.Close()
		return fmt.Errorf("failed to finalize columnar file: %w", err)
	}
	return w.file.Close()
}

// Abort closes and removes a partially written file
func (w *Writer) Abort() error {
	if !w.closed {
		w.closed = true
		_ = w.file.Close()
	}
	return os.Remove(w.path)
}

// Validate reports whether path holds a complete columnar file. Partial
// files lack the parquet footer and fail to open; the ingest coordinator
// removes them before reprocessing a match.
func Validate(path string) error {
	file, err := os.Open(path) // #nosec G304 - path is derived from the configured output directory
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	info, err := file.Stat()
	if err != nil {
		return err
	}

	if _, err := parquet.OpenFile(file, info.Size()); err != nil {
		return fmt.Errorf("invalid columnar file %s: %w", path, err)
	}
	return nil
}

// ReadAll loads every snapshot row from a complete columnar file. Used by
// training tooling and tests; match-scale files fit in memory.
func ReadAll(path string) ([]*models.BehavioralSnapshot, error) {
	rows, err := parquet.ReadFile[snapshotRow](path)
	if err != nil {
		return nil, fmt.Errorf("failed to read columnar file %s: %w", path, err)
	}

	out := make([]*models.BehavioralSnapshot, len(rows))
	for i := range rows {
		out[i] = fromRow(&rows[i])
	}
	return out, nil
}

// RemoveIfPartial deletes path when it exists but fails validation.
// Returns true when a partial file was removed.
func RemoveIfPartial(path string) (bool, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return false, nil
	}
	if Validate(path) == nil {
		return false, nil
	}
	if err := os.Remove(path); err != nil {
		return false, err
	}
	return true, nil
}
