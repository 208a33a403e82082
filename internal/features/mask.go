// Package features implements the feature mask that gates which player
// properties and events the behavioral extractor materializes. The mask is
// pure data: compiling it performs no I/O and is deterministic.
package features

import (
	"fmt"

	"github.com/kikokikok/fps-genie/internal/pipeerr"
	"github.com/kikokikok/fps-genie/internal/types"
)

// Bit is one feature flag in the mask
type Bit uint8

const (
	BitAim Bit = iota
	BitMovement
	BitInfo
	BitUtility
	BitObjective
	BitEconomy
	BitRules
	BitValidation
	numBits
)

// String returns the bit's declared name
func (b Bit) String() string {
	switch b {
	case BitAim:
		return "aim"
	case BitMovement:
		return "movement"
	case BitInfo:
		return "info"
	case BitUtility:
		return "utility"
	case BitObjective:
		return "objective"
	case BitEconomy:
		return "economy"
	case BitRules:
		return "rules"
	case BitValidation:
		return "validation"
	}
	return "unknown"
}

// Mask is a bitset over the feature bits
type Mask uint8

// NewMask builds a mask from individual bits
func NewMask(bits ...Bit) Mask {
	var m Mask
	for _, b := range bits {
		m |= 1 << b
	}
	return m
}

// Has reports whether the bit is enabled
func (m Mask) Has(b Bit) bool {
	return m&(1<<b) != 0
}

// Bits returns the enabled bits in declaration order
func (m Mask) Bits() []Bit {
	var out []Bit
	for b := Bit(0); b < numBits; b++ {
		if m.Has(b) {
			out = append(out, b)
		}
	}
	return out
}

// FromPreset maps a named preset to its fixed mask:
// minimal = {aim, utility, objective}
// standard = minimal + {movement, info, rules}
// rich = standard + {economy, validation}
func FromPreset(preset types.FeaturePreset) (Mask, error) {
	minimal := NewMask(BitAim, BitUtility, BitObjective)
	standard := minimal | NewMask(BitMovement, BitInfo, BitRules)
	rich := standard | NewMask(BitEconomy, BitValidation)

	switch preset {
	case types.PresetMinimal:
		return minimal, nil
	case types.PresetStandard:
		return standard, nil
	case types.PresetRich:
		return rich, nil
	}
	return 0, pipeerr.NewConfigError(fmt.Sprintf("unknown feature preset %q", preset))
}

// WantedSet is the compiled output of a mask: the ordered property and
// event names the extractor must materialize. The identifier strings are
// part of the external contract with the upstream demo naming scheme.
type WantedSet struct {
	PlayerProps []string
	OtherProps  []string
	Events      []string
}

// WantsEvent reports whether the event name is in the set
func (w *WantedSet) WantsEvent(name string) bool {
	for _, e := range w.Events {
		if e == name {
			return true
		}
	}
	return false
}

// WantsPlayerProp reports whether the player property name is in the set
func (w *WantedSet) WantsPlayerProp(name string) bool {
	for _, p := range w.PlayerProps {
		if p == name {
			return true
		}
	}
	return false
}

// Compile concatenates each enabled bit's declared lists in bit order,
// dropping duplicates while preserving first occurrence.
func (m Mask) Compile() *WantedSet {
	w := &WantedSet{}
	seenProps := make(map[string]bool)
	seenOther := make(map[string]bool)
	seenEvents := make(map[string]bool)

	for _, b := range m.Bits() {
		c := contributions[b]
		for _, p := range c.playerProps {
			if !seenProps[p] {
				seenProps[p] = true
				w.PlayerProps = append(w.PlayerProps, p)
			}
		}
		for _, p := range c.otherProps {
			if !seenOther[p] {
				seenOther[p] = true
				w.OtherProps = append(w.OtherProps, p)
			}
		}
		for _, e := range c.events {
			if !seenEvents[e] {
				seenEvents[e] = true
				w.Events = append(w.Events, e)
			}
		}
	}

	return w
}
