package demo

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/kikokikok/fps-genie/internal/types"
)

// EncodeHeader serializes a header in wire order. Used by test fixtures
// and by tools that synthesize demo files.
func EncodeHeader(h *Header) []byte {
	var buf bytes.Buffer
	buf.Write(Magic[:])

	writeUint32(&buf, h.DemoProtocol)
	writeUint32(&buf, h.NetworkProtocol)

	writeString(&buf, h.ServerName)
	writeString(&buf, h.ClientName)
	writeString(&buf, h.MapName)
	writeString(&buf, h.GameDirectory)

	writeUint32(&buf, math.Float32bits(h.PlaybackTime))
	writeUint32(&buf, h.PlaybackTicks)
	writeUint32(&buf, h.PlaybackFrames)
	writeUint32(&buf, h.SignonLength)

	return buf.Bytes()
}

// EncodeFrame serializes one frame in wire order
func EncodeFrame(f *Frame) []byte {
	var buf bytes.Buffer
	buf.WriteByte(byte(f.Cmd))
	writeUint32(&buf, f.Tick)

	if f.Cmd == types.CmdUserCmd {
		buf.WriteByte(f.PlayerSlot)
	}

	writeUint32(&buf, uint32(len(f.Payload)))
	buf.Write(f.Payload)

	return buf.Bytes()
}

// StopFrame returns the terminal frame at the given tick
func StopFrame(tick uint32) *Frame {
	return &Frame{Cmd: types.CmdStop, Tick: tick}
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeString(buf *bytes.Buffer, s string) {
	buf.WriteString(s)
	buf.WriteByte(0)
}
