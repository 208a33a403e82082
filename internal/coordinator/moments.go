package coordinator

import (
	"math"

	"github.com/google/uuid"

	"github.com/kikokikok/fps-genie/internal/models"
)

// momentWindowTicks is the width of one moment window
const momentWindowTicks = 64

// momentChannels are the per-snapshot signals summarized by mean and
// variance in each window, in vector order
const momentChannels = 8

// MomentBuilder folds snapshots into fixed-dimension window summaries for
// the vector store. One window covers 64 ticks of one player; the vector
// holds mean and variance per channel, zero-padded to the declared
// dimension.
type MomentBuilder struct {
	matchID   uuid.UUID
	mapName   string
	dimension int

	windows map[uint64]*momentWindow
	done    []*models.MomentVector
}

type momentWindow struct {
	momentID  uint32
	startTick uint32
	endTick   uint32
	count     int
	sum       [momentChannels]float64
	sumSq     [momentChannels]float64
}

// NewMomentBuilder creates a builder for one match. The dimension must be
// at least 2*momentChannels; smaller vectors cannot carry the summary.
func NewMomentBuilder(matchID uuid.UUID, mapName string, dimension int) *MomentBuilder {
	return &MomentBuilder{
		matchID:   matchID,
		mapName:   mapName,
		dimension: dimension,
		windows:   make(map[uint64]*momentWindow),
	}
}

// Add accumulates one snapshot. Snapshots arrive in tick order per
// player, so a window is complete once a later window for the same player
// is opened.
func (b *MomentBuilder) Add(snap *models.BehavioralSnapshot) {
	momentID := snap.Tick / momentWindowTicks

	w, ok := b.windows[snap.SteamID]
	if ok && w.momentID != momentID {
		b.done = append(b.done, b.finalize(snap.SteamID, w))
		ok = false
	}
	if !ok {
		w = &momentWindow{momentID: momentID, startTick: snap.Tick, endTick: snap.Tick}
		b.windows[snap.SteamID] = w
	}

	channels := [momentChannels]float64{
		float64(snap.DeltaYaw),
		float64(snap.DeltaPitch),
		float64(snap.Yaw),
		float64(snap.Pitch),
		float64(snap.VelX),
		float64(snap.VelY),
		float64(snap.VelZ),
		math.Sqrt(float64(snap.VelX*snap.VelX + snap.VelY*snap.VelY + snap.VelZ*snap.VelZ)),
	}
	for i, v := range channels {
		w.sum[i] += v
		w.sumSq[i] += v * v
	}
	w.count++
	if snap.Tick > w.endTick {
		w.endTick = snap.Tick
	}
}

// Finalize closes all open windows and returns every completed moment
// vector in completion order.
func (b *MomentBuilder) Finalize() []*models.MomentVector {
	for steamID, w := range b.windows {
		b.done = append(b.done, b.finalize(steamID, w))
		delete(b.windows, steamID)
	}
	out := b.done
	b.done = nil
	return out
}

func (b *MomentBuilder) finalize(steamID uint64, w *momentWindow) *models.MomentVector {
	vector := make([]float32, b.dimension)
	n := float64(w.count)
	for i := 0; i < momentChannels; i++ {
		mean := w.sum[i] / n
		variance := w.sumSq[i]/n - mean*mean
		if variance < 0 {
			variance = 0
		}
		vector[2*i] = float32(mean)
		vector[2*i+1] = float32(variance)
	}

	return &models.MomentVector{
		MatchID:   b.matchID,
		MomentID:  w.momentID,
		SteamID:   steamID,
		Vector:    vector,
		StartTick: w.startTick,
		EndTick:   w.endTick,
		Payload:   map[string]string{"map": b.mapName},
	}
}
