// Package models provides data structures for matches, players and snapshots.
package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/kikokikok/fps-genie/internal/types"
)

// MatchMetadata is the persistent identity of a processed demo file.
// The status column is the coordination primitive between discovery and
// worker stages; transitions pending -> processing -> completed|failed are
// monotonic.
type MatchMetadata struct {
	ID          uuid.UUID              `json:"id"`
	MatchID     string                 `json:"matchId"`
	Tournament  string                 `json:"tournament,omitempty"`
	MapName     string                 `json:"mapName,omitempty"`
	TeamA       string                 `json:"teamA,omitempty"`
	TeamB       string                 `json:"teamB,omitempty"`
	ScoreA      int                    `json:"scoreA"`
	ScoreB      int                    `json:"scoreB"`
	FilePath    string                 `json:"filePath"`
	FileSize    int64                  `json:"fileSize"`
	ContentHash string                 `json:"contentHash"`
	TickRate    float64                `json:"tickRate"`
	Duration    float64                `json:"duration"`
	Status      types.ProcessingStatus `json:"status"`
	Owner       string                 `json:"owner,omitempty"`
	Attempts    int                    `json:"attempts"`
	LastError   string                 `json:"lastError,omitempty"`
	CreatedAt   time.Time              `json:"createdAt"`
	ProcessedAt *time.Time             `json:"processedAt,omitempty"`
}

// Player is one observed participant across matches
type Player struct {
	SteamID   uint64    `json:"steamId"`
	Name      string    `json:"name"`
	FirstSeen time.Time `json:"firstSeen"`
	LastSeen  time.Time `json:"lastSeen"`
}

// MatchParticipation links a player to a match. A snapshot for
// (match, player) may only be persisted after its participation row exists.
type MatchParticipation struct {
	MatchID  uuid.UUID `json:"matchId"`
	SteamID  uint64    `json:"steamId"`
	Team     string    `json:"team,omitempty"`
	JoinedAt time.Time `json:"joinedAt"`
}

// IngestStats aggregates pipeline progress across all matches
type IngestStats struct {
	Pending        int64 `json:"pending"`
	Processing     int64 `json:"processing"`
	Completed      int64 `json:"completed"`
	Failed         int64 `json:"failed"`
	ProcessedBytes int64 `json:"processedBytes"`
	SnapshotRows   int64 `json:"snapshotRows"`
}
