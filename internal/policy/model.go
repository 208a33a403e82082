// Package policy loads a trained feed-forward network from a parameter
// blob and serves aim corrections over the fixed-layout wire protocol.
package policy

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/kikokikok/fps-genie/internal/pipeerr"
	"github.com/kikokikok/fps-genie/internal/wire"
)

// Network dimensions fixed by the wire contract: 13 meaningful input
// floats (the record's pad is not fed to the network) and 2 outputs.
const (
	InputWidth  = 13
	OutputWidth = 2
)

// maxLayerWidth guards blob parsing against absurd allocations
const maxLayerWidth = 1 << 16

// Policy maps one live player state to one aim correction. Evaluate must
// be safe for concurrent use; loaded models are immutable.
type Policy interface {
	Evaluate(in *wire.InputRecord) (*wire.OutputRecord, error)
}

// Constant is a fixed-answer policy used in tests and smoke checks
type Constant struct {
	DeltaYaw   float32
	DeltaPitch float32
}

// Evaluate returns the fixed correction
func (c *Constant) Evaluate(_ *wire.InputRecord) (*wire.OutputRecord, error) {
	return &wire.OutputRecord{DeltaYaw: c.DeltaYaw, DeltaPitch: c.DeltaPitch}, nil
}

// layer is one dense layer: out = act(weights * in + biases), weights in
// row-major order (out rows of in columns)
type layer struct {
	in      int
	out     int
	weights []float32
	biases  []float32
}

// Network is a feed-forward network with ReLU on hidden layers and a
// linear output layer
type Network struct {
	layers []layer
}

// LoadModel reads a parameter blob from disk
func LoadModel(path string) (*Network, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, pipeerr.NewInputError(path, err)
	}
	return ParseModel(bytes.NewReader(data))
}

// ParseModel decodes a parameter blob. Layout, all little-endian:
// layer count (u32), then layerCount+1 layer widths (u32), then per
// layer the row-major weight matrix followed by the bias vector, all
// float32. The first width must be 13 and the last must be 2.
func ParseModel(r io.Reader) (*Network, error) {
	var layerCount uint32
	if err := binary.Read(r, binary.LittleEndian, &layerCount); err != nil {
		return nil, pipeerr.NewConfigError(fmt.Sprintf("model blob truncated: %v", err))
	}
	if layerCount == 0 || layerCount > 16 {
		return nil, pipeerr.NewConfigError(fmt.Sprintf("model has %d layers, want 1-16", layerCount))
	}

	widths := make([]uint32, layerCount+1)
	if err := binary.Read(r, binary.LittleEndian, widths); err != nil {
		return nil, pipeerr.NewConfigError(fmt.Sprintf("model blob truncated: %v", err))
	}
	for _, w := range widths {
		if w == 0 || w > maxLayerWidth {
			return nil, pipeerr.NewConfigError(fmt.Sprintf("layer width %d out of range", w))
		}
	}
	if widths[0] != InputWidth {
		return nil, pipeerr.NewConfigError(fmt.Sprintf("model input width %d, want %d", widths[0], InputWidth))
	}
	if widths[layerCount] != OutputWidth {
		return nil, pipeerr.NewConfigError(fmt.Sprintf("model output width %d, want %d", widths[layerCount], OutputWidth))
	}

	n := &Network{layers: make([]layer, layerCount)}
	for i := range n.layers {
		in, out := int(widths[i]), int(widths[i+1])
		l := layer{
			in:      in,
			out:     out,
			weights: make([]float32, in*out),
			biases:  make([]float32, out),
		}
		if err := binary.Read(r, binary.LittleEndian, l.weights); err != nil {
			return nil, pipeerr.NewConfigError(fmt.Sprintf("model blob truncated in layer %d weights: %v", i, err))
		}
		if err := binary.Read(r, binary.LittleEndian, l.biases); err != nil {
			return nil, pipeerr.NewConfigError(fmt.Sprintf("model blob truncated in layer %d biases: %v", i, err))
		}
		n.layers[i] = l
	}

	return n, nil
}

// EncodeModel writes a parameter blob for the given layer widths and
// parameters, the inverse of ParseModel. Used by tooling and tests.
func EncodeModel(w io.Writer, widths []uint32, weights [][]float32, biases [][]float32) error {
	if len(widths) < 2 || len(weights) != len(widths)-1 || len(biases) != len(widths)-1 {
		return fmt.Errorf("inconsistent layer shapes")
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(widths)-1)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, widths); err != nil {
		return err
	}
	for i := range weights {
		if err := binary.Write(w, binary.LittleEndian, weights[i]); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, biases[i]); err != nil {
			return err
		}
	}
	return nil
}

// Evaluate runs the forward pass
func (n *Network) Evaluate(in *wire.InputRecord) (*wire.OutputRecord, error) {
	activations := []float32{
		in.Health, in.Armor,
		in.PosX, in.PosY, in.PosZ,
		in.VelX, in.VelY, in.VelZ,
		in.Yaw, in.Pitch,
		in.WeaponID, in.Ammo, in.Airborne,
	}

	for i, l := range n.layers {
		next := make([]float32, l.out)
		for row := 0; row < l.out; row++ {
			sum := l.biases[row]
			base := row * l.in
			for col := 0; col < l.in; col++ {
				sum += l.weights[base+col] * activations[col]
			}
			// ReLU on hidden layers only
			if i < len(n.layers)-1 && sum < 0 {
				sum = 0
			}
			next[row] = sum
		}
		activations = next
	}

	out := &wire.OutputRecord{DeltaYaw: activations[0], DeltaPitch: activations[1]}
	if math.IsNaN(float64(out.DeltaYaw)) || math.IsNaN(float64(out.DeltaPitch)) {
		return nil, fmt.Errorf("policy produced NaN correction")
	}
	return out, nil
}
