package demo

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"time"

	"github.com/kikokikok/fps-genie/internal/pipeerr"
	"github.com/kikokikok/fps-genie/internal/types"
)

// maxPayloadLength rejects absurd declared lengths before allocating.
// The largest legitimate frames are string table snapshots well under this.
const maxPayloadLength = 64 << 20

// Decoder pulls typed frames out of a read-once byte source. The byte
// position advances monotonically and the decoder never retains references
// into the source beyond the current call.
type Decoder struct {
	r       *bufio.Reader
	pos     int64
	stopped bool

	bytesProcessed int64
	framesEmitted  int64
	parseTime      time.Duration
}

// NewDecoder creates a decoder over r
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReaderSize(r, 64*1024)}
}

// Position returns the number of bytes consumed so far
func (d *Decoder) Position() int64 {
	return d.pos
}

// ParseHeader consumes and validates the fixed header prefix. It must be
// called exactly once, before the first NextFrame.
func (d *Decoder) ParseHeader() (*Header, error) {
	start := time.Now()
	defer func() { d.parseTime += time.Since(start) }()

	var magic [8]byte
	if err := d.readFull(magic[:]); err != nil {
		return nil, err
	}
	if !bytes.Equal(magic[:], Magic[:]) {
		return nil, pipeerr.NewInvalidFormat("demo signature mismatch")
	}

	h := &Header{}
	var err error
	if h.DemoProtocol, err = d.readUint32(); err != nil {
		return nil, err
	}
	if h.NetworkProtocol, err = d.readUint32(); err != nil {
		return nil, err
	}
	if h.DemoProtocol < DemoProtocolMin || h.DemoProtocol > DemoProtocolMax {
		return nil, pipeerr.NewUnsupportedVersion("demo protocol", h.DemoProtocol, DemoProtocolMin, DemoProtocolMax)
	}
	if h.NetworkProtocol < NetworkProtocolMin || h.NetworkProtocol > NetworkProtocolMax {
		return nil, pipeerr.NewUnsupportedVersion("network protocol", h.NetworkProtocol, NetworkProtocolMin, NetworkProtocolMax)
	}

	if h.ServerName, err = d.readString(); err != nil {
		return nil, err
	}
	if h.ClientName, err = d.readString(); err != nil {
		return nil, err
	}
	if h.MapName, err = d.readString(); err != nil {
		return nil, err
	}
	if h.GameDirectory, err = d.readString(); err != nil {
		return nil, err
	}

	var bits uint32
	if bits, err = d.readUint32(); err != nil {
		return nil, err
	}
	h.PlaybackTime = math.Float32frombits(bits)

	if h.PlaybackTicks, err = d.readUint32(); err != nil {
		return nil, err
	}
	if h.PlaybackFrames, err = d.readUint32(); err != nil {
		return nil, err
	}
	if h.SignonLength, err = d.readUint32(); err != nil {
		return nil, err
	}

	return h, nil
}

// NextFrame pulls one frame. It returns (nil, nil) on a stop tag or a
// clean end-of-stream; truncation mid-frame surfaces as BufferUnderrun.
func (d *Decoder) NextFrame() (*Frame, error) {
	if d.stopped {
		return nil, nil
	}

	start := time.Now()
	defer func() { d.parseTime += time.Since(start) }()

	cmdByte, err := d.r.ReadByte()
	if err != nil {
		if errors.Is(err, io.EOF) {
			// Clean end-of-stream between frames
			d.stopped = true
			return nil, nil
		}
		return nil, err
	}
	d.advance(1)

	cmd := types.DemoCommand(cmdByte)
	if !cmd.Valid() {
		return nil, pipeerr.NewInvalidFormat("unknown command tag " + cmd.String())
	}

	frame := &Frame{Cmd: cmd}
	if frame.Tick, err = d.readUint32(); err != nil {
		return nil, err
	}

	if cmd == types.CmdUserCmd {
		slot, err := d.r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, pipeerr.NewBufferUnderrun(1, 0)
			}
			return nil, err
		}
		d.advance(1)
		frame.PlayerSlot = slot
		frame.HasPlayerSlot = true
	}

	length, err := d.readUint32()
	if err != nil {
		return nil, err
	}
	if length > maxPayloadLength {
		return nil, pipeerr.NewInvalidFormat("declared payload length exceeds limit")
	}

	if length > 0 {
		frame.Payload = make([]byte, length)
		if err := d.readFull(frame.Payload); err != nil {
			return nil, err
		}
	}

	if cmd == types.CmdStop {
		d.stopped = true
		return nil, nil
	}

	d.framesEmitted++
	return frame, nil
}

// Drain consumes the remaining stream, calling fn for each frame, until
// stop or error. A nil fn just counts frames.
func (d *Decoder) Drain(fn func(*Frame) error) error {
	for {
		frame, err := d.NextFrame()
		if err != nil {
			return err
		}
		if frame == nil {
			return nil
		}
		if fn != nil {
			if err := fn(frame); err != nil {
				return err
			}
		}
	}
}

func (d *Decoder) advance(n int) {
	d.pos += int64(n)
	d.bytesProcessed += int64(n)
}

func (d *Decoder) readFull(buf []byte) error {
	n, err := io.ReadFull(d.r, buf)
	d.advance(n)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return pipeerr.NewBufferUnderrun(len(buf), n)
		}
		return err
	}
	return nil
}

func (d *Decoder) readUint32() (uint32, error) {
	var buf [4]byte
	if err := d.readFull(buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

// readString reads a NUL-terminated string
func (d *Decoder) readString() (string, error) {
	s, err := d.r.ReadBytes(0)
	d.advance(len(s))
	if err != nil {
		if errors.Is(err, io.EOF) {
			return "", pipeerr.NewBufferUnderrun(len(s)+1, len(s))
		}
		return "", err
	}
	return string(s[:len(s)-1]), nil
}
