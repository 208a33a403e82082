// Package demo implements a forward-only streaming decoder for recorded
// match files. The on-disk format is an 8-byte signature, a fixed header
// prefix, then a sequence of framed commands terminated by a stop tag.
package demo

import (
	"github.com/kikokikok/fps-genie/internal/types"
)

// Magic is the 8-byte signature every supported demo file starts with
var Magic = [8]byte{'H', 'L', '2', 'D', 'E', 'M', 'O', 0}

// Supported protocol range. Demos outside it fail with UnsupportedVersion
// before any frame is read.
const (
	DemoProtocolMin = 4
	DemoProtocolMax = 4

	NetworkProtocolMin = 13000
	NetworkProtocolMax = 14099
)

// Header is the fixed-prefix metadata of a demo file. Immutable once
// parsed.
type Header struct {
	DemoProtocol    uint32
	NetworkProtocol uint32
	ServerName      string
	ClientName      string
	MapName         string
	GameDirectory   string
	PlaybackTime    float32
	PlaybackTicks   uint32
	PlaybackFrames  uint32
	SignonLength    uint32
}

// TickRate returns ticks per second, or 0 for a zero-duration demo
func (h *Header) TickRate() float64 {
	if h.PlaybackTime <= 0 {
		return 0
	}
	return float64(h.PlaybackTicks) / float64(h.PlaybackTime)
}

// Frame is one framed command from the demo stream. PlayerSlot is only
// meaningful when HasPlayerSlot is set (usercmd frames).
type Frame struct {
	Cmd           types.DemoCommand
	Tick          uint32
	PlayerSlot    uint8
	HasPlayerSlot bool
	Payload       []byte
}
