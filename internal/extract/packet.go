// Package extract folds decoded demo frames into per-tick per-player
// behavioral snapshots. The extractor is polymorphic over a PlayerLike
// capability; this file provides the concrete packet-payload adapter.
package extract

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/kikokikok/fps-genie/internal/pipeerr"
)

// Packet payload entry kinds. A packet payload is a concatenation of
// entries, each starting with a kind byte.
const (
	entryPlayerUpdate = 0x01
	entryGameEvent    = 0x02
)

const playerUpdateSize = 1 + 8 + 10*4 + 2 + 2 + 1 + 4 + 4 + 4

// Player state flag bits carried in a player update
const (
	flagAirborne = 1 << 0
	flagScoped   = 1 << 1
	flagWalking  = 1 << 2
)

// PlayerLike is the capability set the extractor requires from any
// player-state source: an identity, named scalar properties, and the
// active weapon with its clip.
type PlayerLike interface {
	SteamID() uint64
	Prop(name string) (float32, bool)
	ActiveWeapon() uint16
	Clip() uint16
}

// PlayerUpdate is one player's dense state block from a packet frame
type PlayerUpdate struct {
	ID             uint64
	Health         float32
	Armor          float32
	PosX           float32
	PosY           float32
	PosZ           float32
	VelX           float32
	VelY           float32
	VelZ           float32
	Yaw            float32
	Pitch          float32
	WeaponID       uint16
	ClipAmmo       uint16
	Flags          uint8
	FlashDuration  float32
	Money          uint32
	EquipmentValue uint32
}

// SteamID implements PlayerLike
func (p *PlayerUpdate) SteamID() uint64 { return p.ID }

// ActiveWeapon implements PlayerLike
func (p *PlayerUpdate) ActiveWeapon() uint16 { return p.WeaponID }

// Clip implements PlayerLike
func (p *PlayerUpdate) Clip() uint16 { return p.ClipAmmo }

// Prop implements PlayerLike over the dense block's named channels
func (p *PlayerUpdate) Prop(name string) (float32, bool) {
	switch name {
	case "health":
		return p.Health, true
	case "armor":
		return p.Armor, true
	case "pos_x":
		return p.PosX, true
	case "pos_y":
		return p.PosY, true
	case "pos_z":
		return p.PosZ, true
	case "vel_x":
		return p.VelX, true
	case "vel_y":
		return p.VelY, true
	case "vel_z":
		return p.VelZ, true
	case "yaw":
		return p.Yaw, true
	case "pitch":
		return p.Pitch, true
	case "flash_duration":
		return p.FlashDuration, true
	case "account":
		return float32(p.Money), true
	case "current_equipment_value":
		return float32(p.EquipmentValue), true
	case "airborne":
		return boolProp(p.Flags&flagAirborne != 0), true
	case "scoped":
		return boolProp(p.Flags&flagScoped != 0), true
	case "walking":
		return boolProp(p.Flags&flagWalking != 0), true
	}
	return 0, false
}

func boolProp(b bool) float32 {
	if b {
		return 1
	}
	return 0
}

// GameEvent is one named event with an optional subject and scalar value
type GameEvent struct {
	Name    string
	Subject uint64
	Value   float32
}

// DecodePacket parses a packet frame payload into player updates and
// events. A corrupt payload fails the whole packet with MalformedPacket.
func DecodePacket(payload []byte) ([]*PlayerUpdate, []*GameEvent, error) {
	var updates []*PlayerUpdate
	var events []*GameEvent

	pos := 0
	for pos < len(payload) {
		switch payload[pos] {
		case entryPlayerUpdate:
			if len(payload)-pos < playerUpdateSize {
				return nil, nil, pipeerr.NewMalformedPacket("player_update",
					fmt.Sprintf("need %d bytes, have %d", playerUpdateSize, len(payload)-pos))
			}
			updates = append(updates, decodePlayerUpdate(payload[pos+1:]))
			pos += playerUpdateSize

		case entryGameEvent:
			event, n, err := decodeGameEvent(payload[pos+1:])
			if err != nil {
				return nil, nil, err
			}
			events = append(events, event)
			pos += 1 + n

		default:
			return nil, nil, pipeerr.NewMalformedPacket("packet",
				fmt.Sprintf("unknown entry kind 0x%02x at offset %d", payload[pos], pos))
		}
	}

	return updates, events, nil
}

func decodePlayerUpdate(b []byte) *PlayerUpdate {
	u := &PlayerUpdate{ID: binary.LittleEndian.Uint64(b)}
	off := 8

	floats := []*float32{
		&u.Health, &u.Armor,
		&u.PosX, &u.PosY, &u.PosZ,
		&u.VelX, &u.VelY, &u.VelZ,
		&u.Yaw, &u.Pitch,
	}
	for _, f := range floats {
		*f = math.Float32frombits(binary.LittleEndian.Uint32(b[off:]))
		off += 4
	}

	u.WeaponID = binary.LittleEndian.Uint16(b[off:])
	off += 2
	u.ClipAmmo = binary.LittleEndian.Uint16(b[off:])
	off += 2
	u.Flags = b[off]
	off++
	u.FlashDuration = math.Float32frombits(binary.LittleEndian.Uint32(b[off:]))
	off += 4
	u.Money = binary.LittleEndian.Uint32(b[off:])
	off += 4
	u.EquipmentValue = binary.LittleEndian.Uint32(b[off:])

	return u
}

func decodeGameEvent(b []byte) (*GameEvent, int, error) {
	if len(b) < 1 {
		return nil, 0, pipeerr.NewMalformedPacket("game_event", "missing name length")
	}
	nameLen := int(b[0])
	need := 1 + nameLen + 8 + 4
	if len(b) < need {
		return nil, 0, pipeerr.NewMalformedPacket("game_event",
			fmt.Sprintf("need %d bytes, have %d", need, len(b)))
	}

	return &GameEvent{
		Name:    string(b[1 : 1+nameLen]),
		Subject: binary.LittleEndian.Uint64(b[1+nameLen:]),
		Value:   math.Float32frombits(binary.LittleEndian.Uint32(b[1+nameLen+8:])),
	}, need, nil
}

// EncodePlayerUpdate serializes an update entry. Used by fixtures and by
// tools that synthesize packet payloads.
func EncodePlayerUpdate(u *PlayerUpdate) []byte {
	b := make([]byte, playerUpdateSize)
	b[0] = entryPlayerUpdate
	binary.LittleEndian.PutUint64(b[1:], u.ID)
	off := 9

	for _, f := range []float32{
		u.Health, u.Armor,
		u.PosX, u.PosY, u.PosZ,
		u.VelX, u.VelY, u.VelZ,
		u.Yaw, u.Pitch,
	} {
		binary.LittleEndian.PutUint32(b[off:], math.Float32bits(f))
		off += 4
	}

	binary.LittleEndian.PutUint16(b[off:], u.WeaponID)
	off += 2
	binary.LittleEndian.PutUint16(b[off:], u.ClipAmmo)
	off += 2
	b[off] = u.Flags
	off++
	binary.LittleEndian.PutUint32(b[off:], math.Float32bits(u.FlashDuration))
	off += 4
	binary.LittleEndian.PutUint32(b[off:], u.Money)
	off += 4
	binary.LittleEndian.PutUint32(b[off:], u.EquipmentValue)

	return b
}

// EncodeGameEvent serializes an event entry
func EncodeGameEvent(e *GameEvent) []byte {
	b := make([]byte, 1+1+len(e.Name)+8+4)
	b[0] = entryGameEvent
	b[1] = byte(len(e.Name))
	copy(b[2:], e.Name)
	binary.LittleEndian.PutUint64(b[2+len(e.Name):], e.Subject)
	binary.LittleEndian.PutUint32(b[2+len(e.Name)+8:], math.Float32bits(e.Value))
	return b
}
