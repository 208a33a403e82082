package extract

import (
	"time"

	"github.com/google/uuid"

	"github.com/kikokikok/fps-genie/internal/demo"
	"github.com/kikokikok/fps-genie/internal/features"
	"github.com/kikokikok/fps-genie/internal/logging"
	"github.com/kikokikok/fps-genie/internal/models"
	"github.com/kikokikok/fps-genie/internal/pipeerr"
	"github.com/kikokikok/fps-genie/internal/types"
)

// failureThreshold is the fraction of frames that may carry extraction
// errors before the match is failed
const failureThreshold = 0.10

// minFramesForThreshold avoids failing a match on its first few frames
const minFramesForThreshold = 20

// EmitFunc receives finalized snapshots in tick order
type EmitFunc func(*models.BehavioralSnapshot) error

// playerState is the running last-observed state for one player
type playerState struct {
	update PlayerLike
	alive  bool
	// tick the state was last touched at; players never updated are not
	// snapshotted
	initialized bool
	// flash duration forced by a game event; superseded by the next
	// state observation for the player
	flash         float32
	flashOverride bool
}

// Extractor folds a demo frame stream into behavioral snapshots. It
// buffers at most one tick: tick T's batch is emitted only after tick T+1
// has been observed, so the action labels are the forward difference of
// the view angles across the tick boundary.
type Extractor struct {
	matchID  uuid.UUID
	wanted   *features.WantedSet
	baseTime time.Time
	tickRate float64
	emit     EmitFunc
	logger   *logging.Logger

	states      map[uint64]*playerState
	currentTick uint32
	tickSeen    bool
	pending     []*models.BehavioralSnapshot

	framesSeen int64
	errorCount int64
	emitted    int64
}

// Config configures an extractor for one match
type Config struct {
	MatchID  uuid.UUID
	Wanted   *features.WantedSet
	BaseTime time.Time
	TickRate float64
	Emit     EmitFunc
	Logger   *logging.Logger
}

// NewExtractor creates an extractor for one match
func NewExtractor(cfg Config) *Extractor {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewLogger(logging.LevelInfo, logging.FormatJSON)
	}
	baseTime := cfg.BaseTime
	if baseTime.IsZero() {
		baseTime = time.Now().UTC()
	}
	return &Extractor{
		matchID:  cfg.MatchID,
		wanted:   cfg.Wanted,
		baseTime: baseTime,
		tickRate: cfg.TickRate,
		emit:     cfg.Emit,
		logger:   logger,
		states:   make(map[uint64]*playerState),
	}
}

// ProcessFrame consumes one decoded frame. Extraction errors are recorded
// against the match and do not terminate the fold; the caller checks
// ExceededErrorBudget after the stream ends.
func (e *Extractor) ProcessFrame(frame *demo.Frame) error {
	if frame.Cmd != types.CmdPacket {
		e.framesSeen++
		return nil
	}

	updates, events, err := DecodePacket(frame.Payload)
	if err != nil {
		e.framesSeen++
		e.errorCount++
		e.logger.WithError(err).WithField("tick", frame.Tick).Warn("Dropping malformed packet")
		return nil
	}

	players := make([]PlayerLike, len(updates))
	for i, u := range updates {
		players[i] = u
	}
	return e.ProcessState(frame.Tick, players, events)
}

// ProcessState folds one tick's worth of already-decoded player states
// and events. ProcessFrame feeds it from packet payloads; demo-format
// adapters that decode elsewhere call it directly with their own
// PlayerLike implementations.
func (e *Extractor) ProcessState(tick uint32, players []PlayerLike, events []*GameEvent) error {
	e.framesSeen++

	if e.tickSeen && tick > e.currentTick {
		if err := e.rollTick(tick); err != nil {
			return err
		}
	}
	if !e.tickSeen {
		e.tickSeen = true
		e.currentTick = tick
	}

	for _, p := range players {
		e.applyPlayer(p)
	}
	for _, ev := range events {
		e.applyEvent(ev)
	}

	return nil
}

// Flush emits the buffered batches at end-of-stream. The final tick's
// deltas are zero because no following tick exists.
func (e *Extractor) Flush() error {
	if !e.tickSeen {
		return nil
	}

	// Finalize the buffered batch against the final tick's state,
	// then emit the final tick with zero deltas.
	if err := e.rollTick(e.currentTick + 1); err != nil {
		return err
	}
	for _, rec := range e.pending {
		if err := e.emit(rec); err != nil {
			return err
		}
		e.emitted++
	}
	e.pending = nil
	return nil
}

// Emitted returns the number of snapshots emitted so far
func (e *Extractor) Emitted() int64 {
	return e.emitted
}

// ErrorRate returns the fraction of frames with extraction errors
func (e *Extractor) ErrorRate() float64 {
	if e.framesSeen == 0 {
		return 0
	}
	return float64(e.errorCount) / float64(e.framesSeen)
}

// ExceededErrorBudget reports whether the match should fail due to its
// extraction error rate
func (e *Extractor) ExceededErrorBudget() bool {
	return e.framesSeen >= minFramesForThreshold && e.ErrorRate() > failureThreshold
}

// rollTick finalizes the pending batch against the now-complete current
// tick state, snapshots the current tick, and advances.
func (e *Extractor) rollTick(newTick uint32) error {
	for _, rec := range e.pending {
		if st, ok := e.states[rec.SteamID]; ok && st.initialized {
			if yaw, ok := st.update.Prop("yaw"); ok {
				rec.DeltaYaw = yaw - rec.Yaw
			}
			if pitch, ok := st.update.Prop("pitch"); ok {
				rec.DeltaPitch = pitch - rec.Pitch
			}
		}
		if err := e.emit(rec); err != nil {
			return err
		}
		e.emitted++
	}

	e.pending = e.snapshotTick(e.currentTick)
	e.currentTick = newTick
	return nil
}

// snapshotTick materializes one record per initialized, alive player,
// gated by the wanted set; unlisted fields keep default-zero values.
func (e *Extractor) snapshotTick(tick uint32) []*models.BehavioralSnapshot {
	var batch []*models.BehavioralSnapshot
	for id, st := range e.states {
		if !st.initialized || !st.alive {
			continue
		}

		rec := &models.BehavioralSnapshot{
			MatchID:    e.matchID,
			Tick:       tick,
			SteamID:    id,
			RecordedAt: e.tickTime(tick),
		}
		e.materialize(rec, st)
		batch = append(batch, rec)
	}
	return batch
}

// materialize fills the record's wanted columns from the player's state
// source. Each column a snapshot carries names the properties backing
// it; a wanted column the source cannot serve raises MissingData against
// the match and leaves the column zero.
func (e *Extractor) materialize(rec *models.BehavioralSnapshot, st *playerState) {
	p := st.update
	w := e.wanted

	if w.WantsPlayerProp("health") {
		rec.Health = e.prop(p, "health")
	}
	if w.WantsPlayerProp("armor") {
		rec.Armor = e.prop(p, "armor")
	}
	if w.WantsPlayerProp("position") {
		rec.PosX = e.prop(p, "pos_x")
		rec.PosY = e.prop(p, "pos_y")
		rec.PosZ = e.prop(p, "pos_z")
	}
	if w.WantsPlayerProp("velocity") {
		rec.VelX = e.prop(p, "vel_x")
		rec.VelY = e.prop(p, "vel_y")
		rec.VelZ = e.prop(p, "vel_z")
	}
	if w.WantsPlayerProp("view_angles") {
		rec.Yaw = e.prop(p, "yaw")
		rec.Pitch = e.prop(p, "pitch")
	}
	if w.WantsPlayerProp("active_weapon") {
		rec.WeaponID = p.ActiveWeapon()
	}
	if w.WantsPlayerProp("clip") {
		rec.ClipAmmo = p.Clip()
	}
	if w.WantsPlayerProp("airborne") {
		rec.IsAirborne = e.prop(p, "airborne") != 0
	}
	if w.WantsPlayerProp("scoped") {
		rec.IsScoped = e.prop(p, "scoped") != 0
	}
	if w.WantsPlayerProp("walking") {
		rec.IsWalking = e.prop(p, "walking") != 0
	}
	if w.WantsPlayerProp("flash_duration") {
		if st.flashOverride {
			rec.FlashDuration = st.flash
		} else {
			rec.FlashDuration = e.prop(p, "flash_duration")
		}
	}
	if w.WantsPlayerProp("account") {
		rec.Money = uint32(e.prop(p, "account"))
	}
	if w.WantsPlayerProp("current_equipment_value") {
		rec.EquipmentValue = uint32(e.prop(p, "current_equipment_value"))
	}
}

// prop resolves one named property, recording MissingData when the state
// source cannot serve it
func (e *Extractor) prop(p PlayerLike, name string) float32 {
	v, ok := p.Prop(name)
	if !ok {
		e.errorCount++
		e.logger.WithError(pipeerr.NewMissingData(name)).
			WithField("steamID", p.SteamID()).
			Warn("State source cannot serve wanted property")
	}
	return v
}

func (e *Extractor) applyPlayer(p PlayerLike) {
	st, ok := e.states[p.SteamID()]
	if !ok {
		st = &playerState{alive: true}
		e.states[p.SteamID()] = st
	}
	st.update = p
	st.initialized = true
	st.flashOverride = false
}

// applyEvent mutates player state side-effects for events selected by the
// wanted set. Unknown event names are ignored silently.
func (e *Extractor) applyEvent(ev *GameEvent) {
	if !e.wanted.WantsEvent(ev.Name) {
		return
	}

	switch ev.Name {
	case "player_death":
		if st, ok := e.states[ev.Subject]; ok {
			st.alive = false
		}
	case "player_blind":
		if st, ok := e.states[ev.Subject]; ok && st.initialized {
			st.flash = ev.Value
			st.flashOverride = true
		}
	case "round_prestart", "round_start":
		for _, st := range e.states {
			st.alive = true
			if st.initialized {
				st.flash = 0
				st.flashOverride = true
			}
		}
	}
}

// Players returns the identifiers of every initialized player
func (e *Extractor) Players() []uint64 {
	var ids []uint64
	for id, st := range e.states {
		if st.initialized {
			ids = append(ids, id)
		}
	}
	return ids
}

func (e *Extractor) tickTime(tick uint32) time.Time {
	if e.tickRate <= 0 {
		return e.baseTime
	}
	offset := time.Duration(float64(tick) / e.tickRate * float64(time.Second))
	return e.baseTime.Add(offset)
}
