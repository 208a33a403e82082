package demo

import (
	"bytes"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kikokikok/fps-genie/internal/pipeerr"
	"github.com/kikokikok/fps-genie/internal/types"
)

func sampleHeader() *Header {
	return &Header{
		DemoProtocol:    4,
		NetworkProtocol: 13871,
		ServerName:      "match server",
		ClientName:      "GOTV Demo",
		MapName:         "de_dust2",
		GameDirectory:   "csgo",
		PlaybackTime:    1.5,
		PlaybackTicks:   192,
		PlaybackFrames:  96,
		SignonLength:    0,
	}
}

func TestParseHeaderRoundTrip(t *testing.T) {
	raw := EncodeHeader(sampleHeader())

	d := NewDecoder(bytes.NewReader(raw))
	h, err := d.ParseHeader()
	require.NoError(t, err)

	assert.Equal(t, *sampleHeader(), *h)
	assert.Equal(t, int64(len(raw)), d.Position())
	assert.InDelta(t, 128.0, h.TickRate(), 0.001)
}

func TestParseHeaderSignatureMismatch(t *testing.T) {
	raw := append([]byte("NOTADEMO"), make([]byte, 100)...)

	d := NewDecoder(bytes.NewReader(raw))
	_, err := d.ParseHeader()

	require.Error(t, err)
	assert.Equal(t, "INVALID_FORMAT", pipeerr.CodeOf(err))
}

func TestParseHeaderUnsupportedVersion(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Header)
	}{
		{name: "demo protocol too old", mutate: func(h *Header) { h.DemoProtocol = 3 }},
		{name: "demo protocol too new", mutate: func(h *Header) { h.DemoProtocol = 5 }},
		{name: "network protocol below range", mutate: func(h *Header) { h.NetworkProtocol = 12999 }},
		{name: "network protocol above range", mutate: func(h *Header) { h.NetworkProtocol = 14100 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := sampleHeader()
			tt.mutate(h)

			d := NewDecoder(bytes.NewReader(EncodeHeader(h)))
			_, err := d.ParseHeader()

			require.Error(t, err)
			assert.Equal(t, "UNSUPPORTED_VERSION", pipeerr.CodeOf(err))
		})
	}
}

func TestParseHeaderTruncated(t *testing.T) {
	raw := EncodeHeader(sampleHeader())

	d := NewDecoder(bytes.NewReader(raw[:10]))
	_, err := d.ParseHeader()

	require.Error(t, err)
	assert.Equal(t, "BUFFER_UNDERRUN", pipeerr.CodeOf(err))
}

func TestNextFrameSequence(t *testing.T) {
	var stream bytes.Buffer
	stream.Write(EncodeFrame(&Frame{Cmd: types.CmdSignOn, Tick: 0, Payload: []byte{1, 2, 3}}))
	stream.Write(EncodeFrame(&Frame{Cmd: types.CmdPacket, Tick: 1, Payload: []byte{9}}))
	stream.Write(EncodeFrame(&Frame{Cmd: types.CmdUserCmd, Tick: 1, PlayerSlot: 4, HasPlayerSlot: true, Payload: []byte{7, 7}}))
	stream.Write(EncodeFrame(StopFrame(2)))

	d := NewDecoder(&stream)

	f1, err := d.NextFrame()
	require.NoError(t, err)
	require.NotNil(t, f1)
	assert.Equal(t, types.CmdSignOn, f1.Cmd)
	assert.Equal(t, []byte{1, 2, 3}, f1.Payload)
	assert.False(t, f1.HasPlayerSlot)

	f2, err := d.NextFrame()
	require.NoError(t, err)
	assert.Equal(t, types.CmdPacket, f2.Cmd)
	assert.Equal(t, uint32(1), f2.Tick)

	f3, err := d.NextFrame()
	require.NoError(t, err)
	require.True(t, f3.HasPlayerSlot)
	assert.Equal(t, uint8(4), f3.PlayerSlot)

	// Stop tag is terminal
	f4, err := d.NextFrame()
	require.NoError(t, err)
	assert.Nil(t, f4)

	// Repeated calls after stop stay nil
	f5, err := d.NextFrame()
	require.NoError(t, err)
	assert.Nil(t, f5)

	assert.Equal(t, int64(3), d.Telemetry().FramesEmitted)
}

func TestNextFrameCleanEOF(t *testing.T) {
	d := NewDecoder(bytes.NewReader(nil))

	f, err := d.NextFrame()
	require.NoError(t, err)
	assert.Nil(t, f)
}

func TestNextFrameUnknownCommand(t *testing.T) {
	d := NewDecoder(bytes.NewReader([]byte{42, 0, 0, 0, 0, 0, 0, 0, 0}))

	_, err := d.NextFrame()
	require.Error(t, err)
	assert.Equal(t, "INVALID_FORMAT", pipeerr.CodeOf(err))
}

func TestNextFramePayloadBeyondEOF(t *testing.T) {
	raw := EncodeFrame(&Frame{Cmd: types.CmdPacket, Tick: 0, Payload: []byte{1, 2, 3, 4}})
	// Drop the last two payload bytes
	d := NewDecoder(bytes.NewReader(raw[:len(raw)-2]))

	_, err := d.NextFrame()
	require.Error(t, err)
	assert.Equal(t, "BUFFER_UNDERRUN", pipeerr.CodeOf(err))
}

func TestSingleStopFrameDemo(t *testing.T) {
	h := sampleHeader()
	h.PlaybackTicks = 1
	h.PlaybackFrames = 1

	var stream bytes.Buffer
	stream.Write(EncodeHeader(h))
	stream.Write(EncodeFrame(StopFrame(0)))

	d := NewDecoder(&stream)
	_, err := d.ParseHeader()
	require.NoError(t, err)

	frames := 0
	require.NoError(t, d.Drain(func(*Frame) error {
		frames++
		return nil
	}))
	assert.Zero(t, frames)
}

func TestWholeStreamConsumed(t *testing.T) {
	var stream bytes.Buffer
	stream.Write(EncodeHeader(sampleHeader()))
	stream.Write(EncodeFrame(&Frame{Cmd: types.CmdPacket, Tick: 0, Payload: []byte{1}}))
	stream.Write(EncodeFrame(StopFrame(1)))
	total := int64(stream.Len())

	d := NewDecoder(&stream)
	_, err := d.ParseHeader()
	require.NoError(t, err)
	require.NoError(t, d.Drain(nil))

	assert.Equal(t, total, d.Position())
}

func TestFrameRoundTripProperty(t *testing.T) {
	properties := gopter.NewProperties(nil)

	genCmd := gen.OneConstOf(
		types.CmdSignOn, types.CmdPacket, types.CmdSyncTick,
		types.CmdConsoleCmd, types.CmdUserCmd, types.CmdDataTables,
		types.CmdCustomData, types.CmdStringTables,
	)

	properties.Property("decode(encode(frame)) preserves frame", prop.ForAll(
		func(cmd types.DemoCommand, tick uint32, slot uint8, payload []byte) bool {
			in := &Frame{Cmd: cmd, Tick: tick, Payload: payload}
			if cmd == types.CmdUserCmd {
				in.PlayerSlot = slot
				in.HasPlayerSlot = true
			}

			d := NewDecoder(bytes.NewReader(EncodeFrame(in)))
			out, err := d.NextFrame()
			if err != nil || out == nil {
				return false
			}

			if out.Cmd != in.Cmd || out.Tick != in.Tick ||
				out.HasPlayerSlot != in.HasPlayerSlot || out.PlayerSlot != in.PlayerSlot {
				return false
			}
			return bytes.Equal(out.Payload, in.Payload)
		},
		genCmd,
		gen.UInt32(),
		gen.UInt8(),
		gen.SliceOf(gen.UInt8()),
	))

	properties.TestingRun(t)
}
