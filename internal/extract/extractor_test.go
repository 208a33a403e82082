package extract

import (
	"bytes"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kikokikok/fps-genie/internal/demo"
	"github.com/kikokikok/fps-genie/internal/features"
	"github.com/kikokikok/fps-genie/internal/models"
	"github.com/kikokikok/fps-genie/internal/types"
)

func richWanted(t *testing.T) *features.WantedSet {
	t.Helper()
	mask, err := features.FromPreset(types.PresetRich)
	require.NoError(t, err)
	return mask.Compile()
}

func collectorExtractor(t *testing.T, out *[]*models.BehavioralSnapshot) *Extractor {
	t.Helper()
	return NewExtractor(Config{
		MatchID:  uuid.New(),
		Wanted:   richWanted(t),
		TickRate: 64,
		Emit: func(s *models.BehavioralSnapshot) error {
			*out = append(*out, s)
			return nil
		},
	})
}

func packetFrame(tick uint32, entries ...[]byte) *demo.Frame {
	return &demo.Frame{Cmd: types.CmdPacket, Tick: tick, Payload: bytes.Join(entries, nil)}
}

func update(id uint64, yaw, pitch float32) *PlayerUpdate {
	return &PlayerUpdate{
		ID:     id,
		Health: 100, Armor: 50,
		PosX: 10, PosY: 20, PosZ: 30,
		Yaw: yaw, Pitch: pitch,
		WeaponID: 7, ClipAmmo: 30,
	}
}

func TestPacketRoundTrip(t *testing.T) {
	u := update(76561198000000001, 90, 45)
	u.Flags = flagScoped | flagWalking
	u.Money = 4500
	ev := &GameEvent{Name: "weapon_fire", Subject: u.ID, Value: 1}

	payload := bytes.Join([][]byte{EncodePlayerUpdate(u), EncodeGameEvent(ev)}, nil)
	updates, events, err := DecodePacket(payload)

	require.NoError(t, err)
	require.Len(t, updates, 1)
	require.Len(t, events, 1)
	assert.Equal(t, *u, *updates[0])
	assert.Equal(t, *ev, *events[0])
}

func TestDecodePacketCorrupt(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{name: "unknown entry kind", payload: []byte{0x7f, 0, 0}},
		{name: "truncated player update", payload: EncodePlayerUpdate(update(1, 0, 0))[:20]},
		{name: "truncated event", payload: EncodeGameEvent(&GameEvent{Name: "player_hurt"})[:5]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := DecodePacket(tt.payload)
			assert.Error(t, err)
		})
	}
}

func TestForwardDifferenceLabels(t *testing.T) {
	var out []*models.BehavioralSnapshot
	e := collectorExtractor(t, &out)

	const id = uint64(42)
	require.NoError(t, e.ProcessFrame(packetFrame(0, EncodePlayerUpdate(update(id, 90, 10)))))
	require.NoError(t, e.ProcessFrame(packetFrame(1, EncodePlayerUpdate(update(id, 92.5, 8)))))
	require.NoError(t, e.ProcessFrame(packetFrame(2, EncodePlayerUpdate(update(id, 95, 8)))))
	require.NoError(t, e.Flush())

	require.Len(t, out, 3)

	// Tick 0: delta is state[1] - state[0]
	assert.Equal(t, uint32(0), out[0].Tick)
	assert.InDelta(t, 2.5, out[0].DeltaYaw, 1e-6)
	assert.InDelta(t, -2.0, out[0].DeltaPitch, 1e-6)

	// Tick 1: delta is state[2] - state[1]
	assert.InDelta(t, 2.5, out[1].DeltaYaw, 1e-6)
	assert.InDelta(t, 0.0, out[1].DeltaPitch, 1e-6)

	// Final tick: no following tick, zero deltas
	assert.Equal(t, uint32(2), out[2].Tick)
	assert.Zero(t, out[2].DeltaYaw)
	assert.Zero(t, out[2].DeltaPitch)
}

func TestTicksStrictlyIncreasingPerPlayer(t *testing.T) {
	var out []*models.BehavioralSnapshot
	e := collectorExtractor(t, &out)

	for tick := uint32(0); tick < 5; tick++ {
		frame := packetFrame(tick,
			EncodePlayerUpdate(update(1, float32(tick), 0)),
			EncodePlayerUpdate(update(2, float32(tick), 0)),
		)
		require.NoError(t, e.ProcessFrame(frame))
	}
	require.NoError(t, e.Flush())

	lastTick := make(map[uint64]int64)
	var globalLast int64 = -1
	for _, rec := range out {
		assert.GreaterOrEqual(t, int64(rec.Tick), globalLast, "ticks must be non-decreasing globally")
		globalLast = int64(rec.Tick)

		if prev, ok := lastTick[rec.SteamID]; ok {
			assert.Greater(t, int64(rec.Tick), prev, "ticks must be strictly increasing per player")
		}
		lastTick[rec.SteamID] = int64(rec.Tick)
	}
	assert.Len(t, out, 10)
}

func TestPlayerDeathSuppressesSnapshotsUntilRoundStart(t *testing.T) {
	var out []*models.BehavioralSnapshot
	e := collectorExtractor(t, &out)

	const id = uint64(7)
	require.NoError(t, e.ProcessFrame(packetFrame(0, EncodePlayerUpdate(update(id, 0, 0)))))
	require.NoError(t, e.ProcessFrame(packetFrame(1,
		EncodePlayerUpdate(update(id, 1, 0)),
		EncodeGameEvent(&GameEvent{Name: "player_death", Subject: id}),
	)))
	require.NoError(t, e.ProcessFrame(packetFrame(2, EncodePlayerUpdate(update(id, 2, 0)))))
	require.NoError(t, e.ProcessFrame(packetFrame(3,
		EncodeGameEvent(&GameEvent{Name: "round_prestart"}),
	)))
	require.NoError(t, e.ProcessFrame(packetFrame(4, EncodePlayerUpdate(update(id, 4, 0)))))
	require.NoError(t, e.Flush())

	var ticks []uint32
	for _, rec := range out {
		ticks = append(ticks, rec.Tick)
	}
	// Tick 0 emitted before death; ticks 1-2 suppressed while dead;
	// round_prestart revives at tick 3.
	assert.Equal(t, []uint32{0, 3, 4}, ticks)
}

func TestPlayerBlindSetsFlashDuration(t *testing.T) {
	var out []*models.BehavioralSnapshot
	e := collectorExtractor(t, &out)

	const id = uint64(9)
	require.NoError(t, e.ProcessFrame(packetFrame(0,
		EncodePlayerUpdate(update(id, 0, 0)),
		EncodeGameEvent(&GameEvent{Name: "player_blind", Subject: id, Value: 2.75}),
	)))
	require.NoError(t, e.ProcessFrame(packetFrame(1, EncodePlayerUpdate(update(id, 0, 0)))))
	require.NoError(t, e.Flush())

	require.NotEmpty(t, out)
	assert.InDelta(t, 2.75, out[0].FlashDuration, 1e-6)
}

func TestUnknownEventsIgnored(t *testing.T) {
	var out []*models.BehavioralSnapshot
	e := collectorExtractor(t, &out)

	require.NoError(t, e.ProcessFrame(packetFrame(0,
		EncodePlayerUpdate(update(1, 0, 0)),
		EncodeGameEvent(&GameEvent{Name: "achievement_earned", Subject: 1}),
	)))
	require.NoError(t, e.Flush())

	assert.Len(t, out, 1)
	assert.Zero(t, e.ErrorRate())
}

func TestMalformedPacketCountsTowardBudget(t *testing.T) {
	var out []*models.BehavioralSnapshot
	e := collectorExtractor(t, &out)

	for i := 0; i < 30; i++ {
		frame := &demo.Frame{Cmd: types.CmdPacket, Tick: uint32(i), Payload: []byte{0x7f}}
		require.NoError(t, e.ProcessFrame(frame))
	}

	assert.InDelta(t, 1.0, e.ErrorRate(), 1e-9)
	assert.True(t, e.ExceededErrorBudget())
}

func TestFewErrorsStayWithinBudget(t *testing.T) {
	var out []*models.BehavioralSnapshot
	e := collectorExtractor(t, &out)

	for i := 0; i < 99; i++ {
		require.NoError(t, e.ProcessFrame(packetFrame(uint32(i), EncodePlayerUpdate(update(1, 0, 0)))))
	}
	require.NoError(t, e.ProcessFrame(&demo.Frame{Cmd: types.CmdPacket, Tick: 99, Payload: []byte{0x7f}}))

	assert.False(t, e.ExceededErrorBudget())
}

// sparseSource serves a reduced property vocabulary, standing in for a
// demo-format adapter that decodes less than the dense packet block
type sparseSource struct {
	id    uint64
	props map[string]float32
}

func (s *sparseSource) SteamID() uint64 { return s.id }

func (s *sparseSource) Prop(name string) (float32, bool) {
	v, ok := s.props[name]
	return v, ok
}

func (s *sparseSource) ActiveWeapon() uint16 { return 7 }

func (s *sparseSource) Clip() uint16 { return 30 }

func fullProps(yaw float32) map[string]float32 {
	return map[string]float32{
		"health": 87, "armor": 42,
		"pos_x": 1, "pos_y": 2, "pos_z": 3,
		"vel_x": 0, "vel_y": 0, "vel_z": 0,
		"yaw": yaw, "pitch": 0,
		"airborne": 0, "scoped": 1, "walking": 0,
		"flash_duration": 0,
		"account": 800, "current_equipment_value": 3700,
	}
}

func TestProcessStateAcceptsAnySource(t *testing.T) {
	var out []*models.BehavioralSnapshot
	e := collectorExtractor(t, &out)

	for tick := uint32(0); tick < 3; tick++ {
		src := &sparseSource{id: 5, props: fullProps(float32(tick) * 4)}
		require.NoError(t, e.ProcessState(tick, []PlayerLike{src}, nil))
	}
	require.NoError(t, e.Flush())

	require.Len(t, out, 3)
	assert.InDelta(t, 87, out[0].Health, 1e-6)
	assert.InDelta(t, 42, out[0].Armor, 1e-6)
	assert.True(t, out[0].IsScoped)
	assert.Equal(t, uint32(800), out[0].Money)
	assert.Equal(t, uint16(7), out[0].WeaponID)
	assert.InDelta(t, 4.0, out[0].DeltaYaw, 1e-6)
	assert.Zero(t, e.ErrorRate())
}

func TestMissingWantedPropertyCountsTowardBudget(t *testing.T) {
	var out []*models.BehavioralSnapshot
	e := collectorExtractor(t, &out)

	for tick := uint32(0); tick < 25; tick++ {
		props := fullProps(0)
		delete(props, "armor")
		delete(props, "flash_duration")
		src := &sparseSource{id: 5, props: props}
		require.NoError(t, e.ProcessState(tick, []PlayerLike{src}, nil))
	}
	require.NoError(t, e.Flush())

	// Snapshots still materialize; the unserved columns stay zero and
	// every miss counts against the match.
	require.NotEmpty(t, out)
	assert.Zero(t, out[0].Armor)
	assert.InDelta(t, 87, out[0].Health, 1e-6)
	assert.Greater(t, e.ErrorRate(), 0.0)
	assert.True(t, e.ExceededErrorBudget())
}

func TestDistanceInvariant(t *testing.T) {
	a := &models.BehavioralSnapshot{PosX: 0, PosY: 0, PosZ: 0}
	b := &models.BehavioralSnapshot{PosX: 3, PosY: 4, PosZ: 0}

	assert.InDelta(t, 5.0, a.DistanceTo(b), 0.001)
}

func TestNonPacketFramesAreStateNeutral(t *testing.T) {
	var out []*models.BehavioralSnapshot
	e := collectorExtractor(t, &out)

	require.NoError(t, e.ProcessFrame(&demo.Frame{Cmd: types.CmdConsoleCmd, Tick: 0, Payload: []byte("say hi")}))
	require.NoError(t, e.ProcessFrame(&demo.Frame{Cmd: types.CmdSyncTick, Tick: 0}))
	require.NoError(t, e.Flush())

	assert.Empty(t, out)
	assert.Empty(t, e.Players())
}
