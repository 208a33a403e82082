package coordinator

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kikokikok/fps-genie/internal/models"
)

func snap(tick uint32, steamID uint64, deltaYaw, velX float32) *models.BehavioralSnapshot {
	return &models.BehavioralSnapshot{
		Tick:     tick,
		SteamID:  steamID,
		DeltaYaw: deltaYaw,
		VelX:     velX,
	}
}

func TestMomentBuilder_WindowBoundaries(t *testing.T) {
	matchID := uuid.New()
	b := NewMomentBuilder(matchID, "de_dust2", 64)

	// Ticks 0..63 fall in moment 0, tick 64 opens moment 1
	for tick := uint32(0); tick < 64; tick++ {
		b.Add(snap(tick, 7, 1.0, 0))
	}
	b.Add(snap(64, 7, 1.0, 0))

	vectors := b.Finalize()
	require.Len(t, vectors, 2)

	first, second := vectors[0], vectors[1]
	assert.Equal(t, uint32(0), first.MomentID)
	assert.Equal(t, uint32(0), first.StartTick)
	assert.Equal(t, uint32(63), first.EndTick)
	assert.Equal(t, uint32(1), second.MomentID)
	assert.Equal(t, uint32(64), second.StartTick)
	assert.Equal(t, uint32(64), second.EndTick)

	for _, v := range vectors {
		assert.Equal(t, matchID, v.MatchID)
		assert.Equal(t, uint64(7), v.SteamID)
		assert.Equal(t, "de_dust2", v.Payload["map"])
	}
}

func TestMomentBuilder_MeanAndVariance(t *testing.T) {
	b := NewMomentBuilder(uuid.New(), "de_inferno", 64)

	// deltaYaw alternates 1 and 3: mean 2, variance 1
	for tick := uint32(0); tick < 10; tick++ {
		dy := float32(1)
		if tick%2 == 1 {
			dy = 3
		}
		b.Add(snap(tick, 42, dy, 0))
	}

	vectors := b.Finalize()
	require.Len(t, vectors, 1)

	v := vectors[0]
	require.Len(t, v.Vector, 64)
	assert.InDelta(t, 2.0, float64(v.Vector[0]), 1e-5, "deltaYaw mean")
	assert.InDelta(t, 1.0, float64(v.Vector[1]), 1e-5, "deltaYaw variance")

	// Untouched channels and padding stay zero
	for i := 2 * momentChannels; i < len(v.Vector); i++ {
		assert.Zero(t, v.Vector[i], "padding at index %d", i)
	}
}

func TestMomentBuilder_PerPlayerWindows(t *testing.T) {
	b := NewMomentBuilder(uuid.New(), "de_mirage", 64)

	b.Add(snap(0, 1, 0, 1.5))
	b.Add(snap(0, 2, 0, -1.5))
	b.Add(snap(1, 1, 0, 1.5))

	vectors := b.Finalize()
	require.Len(t, vectors, 2)

	bySteamID := map[uint64]*models.MomentVector{}
	for _, v := range vectors {
		bySteamID[v.SteamID] = v
	}
	require.Contains(t, bySteamID, uint64(1))
	require.Contains(t, bySteamID, uint64(2))

	// Channel 4 is velX: index 8 mean, index 9 variance
	assert.InDelta(t, 1.5, float64(bySteamID[1].Vector[8]), 1e-5)
	assert.InDelta(t, -1.5, float64(bySteamID[2].Vector[8]), 1e-5)
	assert.Zero(t, bySteamID[2].Vector[9], "single sample has zero variance")
}

func TestMomentBuilder_FinalizeDrains(t *testing.T) {
	b := NewMomentBuilder(uuid.New(), "de_nuke", 64)
	b.Add(snap(5, 9, 0, 0))

	require.Len(t, b.Finalize(), 1)
	assert.Empty(t, b.Finalize(), "second finalize has nothing left")
}
