package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kikokikok/fps-genie/internal/models"
	"github.com/kikokikok/fps-genie/internal/pipeerr"
	"github.com/kikokikok/fps-genie/internal/types"
)

// ErrNotFound is returned when a requested row does not exist
var ErrNotFound = errors.New("not found")

// relationalSchema is the idempotent DDL for the relational store
const relationalSchema = `
CREATE TABLE IF NOT EXISTS matches (
	id UUID PRIMARY KEY,
	match_id TEXT NOT NULL,
	tournament TEXT NOT NULL DEFAULT '',
	map_name TEXT NOT NULL DEFAULT '',
	team_a TEXT NOT NULL DEFAULT '',
	team_b TEXT NOT NULL DEFAULT '',
	score_a INT NOT NULL DEFAULT 0,
	score_b INT NOT NULL DEFAULT 0,
	file_path TEXT NOT NULL UNIQUE,
	file_size BIGINT NOT NULL DEFAULT 0,
	content_hash TEXT NOT NULL UNIQUE,
	tick_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
	duration DOUBLE PRECISION NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'pending',
	owner TEXT NOT NULL DEFAULT '',
	attempts INT NOT NULL DEFAULT 0,
	last_error TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	processed_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_matches_status ON matches (status, created_at);

CREATE TABLE IF NOT EXISTS players (
	steam_id BIGINT PRIMARY KEY,
	name TEXT NOT NULL DEFAULT '',
	first_seen TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_seen TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS match_participation (
	match_id UUID NOT NULL REFERENCES matches(id),
	steam_id BIGINT NOT NULL REFERENCES players(steam_id),
	team TEXT NOT NULL DEFAULT '',
	joined_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (match_id, steam_id)
);
`

// MatchRepository handles match, player and participation persistence in
// the relational store
type MatchRepository struct {
	db *PostgresDB
}

// NewMatchRepository creates a new match repository
func NewMatchRepository(db *PostgresDB) *MatchRepository {
	return &MatchRepository{db: db}
}

// InitializeSchema creates the relational tables. Idempotent.
func (r *MatchRepository) InitializeSchema(ctx context.Context) error {
	if _, err := r.db.Pool().Exec(ctx, relationalSchema); err != nil {
		return pipeerr.NewStorageError("postgres", "initialize_schema", err)
	}
	return nil
}

// HealthCheck reports whether the store is reachable
func (r *MatchRepository) HealthCheck(ctx context.Context) error {
	if err := r.db.Ping(ctx); err != nil {
		return pipeerr.NewStorageError("postgres", "health_check", err)
	}
	return nil
}

// Insert inserts a discovered match in pending status. Duplicate paths or
// content hashes are ignored and reported via the returned bool.
func (r *MatchRepository) Insert(ctx context.Context, m *models.MatchMetadata) (bool, error) {
	tag, err := r.db.Pool().Exec(ctx, `
		INSERT INTO matches (
			id, match_id, tournament, map_name, team_a, team_b, score_a, score_b,
			file_path, file_size, content_hash, tick_rate, duration, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT DO NOTHING
	`,
		m.ID, m.MatchID, m.Tournament, m.MapName, m.TeamA, m.TeamB, m.ScoreA, m.ScoreB,
		m.FilePath, m.FileSize, m.ContentHash, m.TickRate, m.Duration, string(m.Status), m.CreatedAt,
	)
	if err != nil {
		return false, pipeerr.NewStorageError("postgres", "insert_match", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Claim atomically transitions a pending match to processing for one
// owner. A false return means another worker took it first.
func (r *MatchRepository) Claim(ctx context.Context, id uuid.UUID, owner string) (bool, error) {
	tag, err := r.db.Pool().Exec(ctx, `
		UPDATE matches
		SET status = $1, owner = $2, attempts = attempts + 1
		WHERE id = $3 AND status = $4
	`, string(types.StatusProcessing), owner, id, string(types.StatusPending))
	if err != nil {
		return false, pipeerr.NewStorageError("postgres", "claim_match", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Complete transitions a processing match to completed and stamps
// processed_at
func (r *MatchRepository) Complete(ctx context.Context, id uuid.UUID, tickRate, duration float64) error {
	_, err := r.db.Pool().Exec(ctx, `
		UPDATE matches
		SET status = $1, tick_rate = $2, duration = $3, last_error = '', processed_at = now()
		WHERE id = $4 AND status = $5
	`, string(types.StatusCompleted), tickRate, duration, id, string(types.StatusProcessing))
	if err != nil {
		return pipeerr.NewStorageError("postgres", "complete_match", err)
	}
	return nil
}

// Fail transitions a processing match to failed with a reason string
func (r *MatchRepository) Fail(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := r.db.Pool().Exec(ctx, `
		UPDATE matches
		SET status = $1, last_error = $2, processed_at = now()
		WHERE id = $3
	`, string(types.StatusFailed), reason, id)
	if err != nil {
		return pipeerr.NewStorageError("postgres", "fail_match", err)
	}
	return nil
}

// ResetForRetry moves failed matches with fewer than maxAttempts claims
// back to pending. Returns the number of matches reset.
func (r *MatchRepository) ResetForRetry(ctx context.Context, maxAttempts int) (int64, error) {
	tag, err := r.db.Pool().Exec(ctx, `
		UPDATE matches
		SET status = $1, owner = '', last_error = ''
		WHERE status = $2 AND attempts < $3
	`, string(types.StatusPending), string(types.StatusFailed), maxAttempts)
	if err != nil {
		return 0, pipeerr.NewStorageError("postgres", "reset_for_retry", err)
	}
	return tag.RowsAffected(), nil
}

// SelectByStatus returns a page of matches in the given status, oldest
// first
func (r *MatchRepository) SelectByStatus(ctx context.Context, status types.ProcessingStatus, limit, offset int) ([]*models.MatchMetadata, error) {
	rows, err := r.db.Pool().Query(ctx, `
		SELECT id, match_id, tournament, map_name, team_a, team_b, score_a, score_b,
			file_path, file_size, content_hash, tick_rate, duration, status, owner,
			attempts, last_error, created_at, processed_at
		FROM matches
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2 OFFSET $3
	`, string(status), limit, offset)
	if err != nil {
		return nil, pipeerr.NewStorageError("postgres", "select_by_status", err)
	}
	defer rows.Close()

	var matches []*models.MatchMetadata
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, pipeerr.NewStorageError("postgres", "select_by_status", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, pipeerr.NewStorageError("postgres", "select_by_status", err)
	}
	return matches, nil
}

// GetByID returns one match by its identifier
func (r *MatchRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.MatchMetadata, error) {
	row := r.db.Pool().QueryRow(ctx, `
		SELECT id, match_id, tournament, map_name, team_a, team_b, score_a, score_b,
			file_path, file_size, content_hash, tick_rate, duration, status, owner,
			attempts, last_error, created_at, processed_at
		FROM matches WHERE id = $1
	`, id)

	m, err := scanMatch(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, pipeerr.NewStorageError("postgres", "get_by_id", err)
	}
	return m, nil
}

// ExistsByHash reports whether a match with the content hash is already
// known
func (r *MatchRepository) ExistsByHash(ctx context.Context, hash string) (bool, error) {
	var exists bool
	err := r.db.Pool().QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM matches WHERE content_hash = $1)`, hash,
	).Scan(&exists)
	if err != nil {
		return false, pipeerr.NewStorageError("postgres", "exists_by_hash", err)
	}
	return exists, nil
}

// UpsertParticipants records players and their participation in one
// transaction. Participation rows must exist before snapshots are
// persisted for the match.
func (r *MatchRepository) UpsertParticipants(ctx context.Context, matchID uuid.UUID, steamIDs []uint64) error {
	if len(steamIDs) == 0 {
		return nil
	}

	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return pipeerr.NewStorageError("postgres", "upsert_participants", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := time.Now().UTC()
	for _, id := range steamIDs {
		if _, err := tx.Exec(ctx, `
			INSERT INTO players (steam_id, first_seen, last_seen)
			VALUES ($1, $2, $2)
			ON CONFLICT (steam_id) DO UPDATE SET last_seen = EXCLUDED.last_seen
		`, int64(id), now); err != nil {
			return pipeerr.NewStorageError("postgres", "upsert_players", err)
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO match_participation (match_id, steam_id, joined_at)
			VALUES ($1, $2, $3)
			ON CONFLICT DO NOTHING
		`, matchID, int64(id), now); err != nil {
			return pipeerr.NewStorageError("postgres", "upsert_participation", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return pipeerr.NewStorageError("postgres", "upsert_participants", err)
	}
	return nil
}

// CountsByStatus returns the number of matches per status plus total
// processed bytes of completed matches
func (r *MatchRepository) CountsByStatus(ctx context.Context) (*models.IngestStats, error) {
	rows, err := r.db.Pool().Query(ctx, `
		SELECT status, COUNT(*), COALESCE(SUM(CASE WHEN status = 'completed' THEN file_size ELSE 0 END), 0)
		FROM matches GROUP BY status
	`)
	if err != nil {
		return nil, pipeerr.NewStorageError("postgres", "counts_by_status", err)
	}
	defer rows.Close()

	stats := &models.IngestStats{}
	for rows.Next() {
		var status string
		var count, bytes int64
		if err := rows.Scan(&status, &count, &bytes); err != nil {
			return nil, pipeerr.NewStorageError("postgres", "counts_by_status", err)
		}
		switch types.ProcessingStatus(status) {
		case types.StatusPending:
			stats.Pending = count
		case types.StatusProcessing:
			stats.Processing = count
		case types.StatusCompleted:
			stats.Completed = count
			stats.ProcessedBytes = bytes
		case types.StatusFailed:
			stats.Failed = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, pipeerr.NewStorageError("postgres", "counts_by_status", err)
	}
	return stats, nil
}

func scanMatch(row pgx.Row) (*models.MatchMetadata, error) {
	m := &models.MatchMetadata{}
	var status string
	err := row.Scan(
		&m.ID, &m.MatchID, &m.Tournament, &m.MapName, &m.TeamA, &m.TeamB,
		&m.ScoreA, &m.ScoreB, &m.FilePath, &m.FileSize, &m.ContentHash,
		&m.TickRate, &m.Duration, &status, &m.Owner, &m.Attempts,
		&m.LastError, &m.CreatedAt, &m.ProcessedAt,
	)
	if err != nil {
		return nil, err
	}
	m.Status = types.ProcessingStatus(status)
	if !m.Status.Valid() {
		return nil, fmt.Errorf("invalid status %q in matches row", status)
	}
	return m, nil
}
