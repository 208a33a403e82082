// Package wire implements the fixed-layout binary protocol between policy
// clients and the policy server. The layout is part of the external
// contract: an InputRecord is exactly 14 packed little-endian float32
// values (56 bytes) and an OutputRecord is exactly 2 (8 bytes).
package wire

import (
	"encoding/binary"
	"math"
	"unsafe"

	"github.com/kikokikok/fps-genie/internal/pipeerr"
)

const (
	// InputRecordSize is the exact wire size of an InputRecord
	InputRecordSize = 56
	// OutputRecordSize is the exact wire size of an OutputRecord
	OutputRecordSize = 8
)

// InputRecord is one live player state sent to the policy server.
// Field order is the wire order; Pad keeps the record at 14 floats.
type InputRecord struct {
	Health   float32
	Armor    float32
	PosX     float32
	PosY     float32
	PosZ     float32
	VelX     float32
	VelY     float32
	VelZ     float32
	Yaw      float32
	Pitch    float32
	WeaponID float32
	Ammo     float32
	Airborne float32
	Pad      float32
}

// OutputRecord is the two-scalar aim correction returned per request
type OutputRecord struct {
	DeltaYaw   float32
	DeltaPitch float32
}

// hostLittleEndian reports whether the native byte order matches the wire
// order, enabling the zero-copy paths.
var hostLittleEndian = func() bool {
	var x uint16 = 1
	return *(*byte)(unsafe.Pointer(&x)) == 1
}()

// InputFromBytes reinterprets a 56-byte buffer as an InputRecord. On
// little-endian hosts no bytes are copied; the caller must not mutate b
// while the returned record is in use.
func InputFromBytes(b []byte) (*InputRecord, error) {
	if len(b) != InputRecordSize {
		return nil, pipeerr.NewMalformedFrame(InputRecordSize, len(b))
	}

	if hostLittleEndian {
		return (*InputRecord)(unsafe.Pointer(&b[0])), nil
	}

	var r InputRecord
	dst := (*[14]float32)(unsafe.Pointer(&r))
	for i := range dst {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return &r, nil
}

// Bytes projects the record to its exact wire size. On little-endian hosts
// the returned slice aliases the record's memory.
func (r *InputRecord) Bytes() []byte {
	if hostLittleEndian {
		return unsafe.Slice((*byte)(unsafe.Pointer(r)), InputRecordSize)
	}

	buf := make([]byte, InputRecordSize)
	src := (*[14]float32)(unsafe.Pointer(r))
	for i, v := range src {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// OutputFromBytes reinterprets an 8-byte buffer as an OutputRecord
func OutputFromBytes(b []byte) (*OutputRecord, error) {
	if len(b) != OutputRecordSize {
		return nil, pipeerr.NewMalformedFrame(OutputRecordSize, len(b))
	}

	if hostLittleEndian {
		return (*OutputRecord)(unsafe.Pointer(&b[0])), nil
	}

	return &OutputRecord{
		DeltaYaw:   math.Float32frombits(binary.LittleEndian.Uint32(b[0:4])),
		DeltaPitch: math.Float32frombits(binary.LittleEndian.Uint32(b[4:8])),
	}, nil
}

// Bytes projects the record to its exact wire size. On little-endian hosts
// the returned slice aliases the record's memory.
func (r *OutputRecord) Bytes() []byte {
	if hostLittleEndian {
		return unsafe.Slice((*byte)(unsafe.Pointer(r)), OutputRecordSize)
	}

	buf := make([]byte, OutputRecordSize)
	binary.LittleEndian.PutUint32(buf[0:4], math.Float32bits(r.DeltaYaw))
	binary.LittleEndian.PutUint32(buf[4:8], math.Float32bits(r.DeltaPitch))
	return buf
}

// EncodeInput copies the record into a fresh wire buffer
func EncodeInput(r *InputRecord) []byte {
	buf := make([]byte, InputRecordSize)
	copy(buf, r.Bytes())
	return buf
}

// EncodeOutput copies the record into a fresh wire buffer
func EncodeOutput(r *OutputRecord) []byte {
	buf := make([]byte, OutputRecordSize)
	copy(buf, r.Bytes())
	return buf
}
