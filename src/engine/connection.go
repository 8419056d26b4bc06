package engine

import (
	"fmt"
	"strings"

	"github.com/jinjor/desktop-synth/src/component"
	"github.com/jinjor/desktop-synth/src/params"
)

// SocketType is one end of a connection.
type SocketType uint8

const (
	AudioOutput SocketType = iota
	AudioInput
	MidiOutput
	MidiInput
	ModulationOutput
	ModulationInput
	numSocketTypes
)

var socketNames = [numSocketTypes]string{"audio_out", "audio_in", "midi_out", "midi_in", "mod_out", "mod_in"}

func (s SocketType) String() string {
	if s < numSocketTypes {
		return socketNames[s]
	}
	return fmt.Sprintf("SocketType(%d)", s)
}

func ParseSocketType(s string) (SocketType, error) {
	for i, n := range socketNames {
		if n == strings.ToLower(s) {
			return SocketType(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown socket %q", ErrInvalidConnection, s)
}

func (s SocketType) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *SocketType) UnmarshalText(b []byte) error {
	v, err := ParseSocketType(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ConnectionKind is what a socket pair routes to.
type ConnectionKind uint8

const (
	SignalConnection ConnectionKind = iota
	MidiConnection
	ModulationConnection
)

// ConnectionRequest describes one edge. A zero OutboundID on a MIDI
// connection means the device; a zero InboundID on a signal connection
// means the hardware sink.
type ConnectionRequest struct {
	Outbound      SocketType   `yaml:"outbound" json:"outbound"`
	Inbound       SocketType   `yaml:"inbound" json:"inbound"`
	OutboundID    component.ID `yaml:"from,omitempty" json:"from,omitempty"`
	InboundID     component.ID `yaml:"to,omitempty" json:"to,omitempty"`
	OutboundIndex int          `yaml:"from_index,omitempty" json:"from_index,omitempty"`
	InboundIndex  int          `yaml:"to_index,omitempty" json:"to_index,omitempty"`
	Parameter     params.Type  `yaml:"parameter,omitempty" json:"parameter,omitempty"`
	Level         int          `yaml:"level,omitempty" json:"level,omitempty"`
	Remove        bool         `yaml:"remove,omitempty" json:"remove,omitempty"`
}

// Signal connects from's output to to's input. A zero to means the sink.
func Signal(from, to component.ID) ConnectionRequest {
	return ConnectionRequest{Outbound: AudioOutput, Inbound: AudioInput, OutboundID: from, InboundID: to}
}

// Midi connects a handler to a listener. A zero from means the device.
func Midi(from, to component.ID) ConnectionRequest {
	return ConnectionRequest{Outbound: MidiOutput, Inbound: MidiInput, OutboundID: from, InboundID: to}
}

// Modulation drives parameter t of to, or its depth at level, by from.
func Modulation(from, to component.ID, t params.Type, level int) ConnectionRequest {
	return ConnectionRequest{
		Outbound: ModulationOutput, Inbound: ModulationInput,
		OutboundID: from, InboundID: to, Parameter: t, Level: level,
	}
}

// Kind checks the socket pair.
func (r ConnectionRequest) Kind() (ConnectionKind, error) {
	switch {
	case r.Outbound == AudioOutput && r.Inbound == AudioInput:
		return SignalConnection, nil
	case r.Outbound == MidiOutput && r.Inbound == MidiInput:
		return MidiConnection, nil
	case r.Outbound == ModulationOutput && r.Inbound == ModulationInput:
		if r.Parameter == params.Depth || r.Parameter >= params.NumTypes {
			return 0, fmt.Errorf("%w: modulation needs a target parameter", ErrInvalidConnection)
		}
		if r.InboundID == 0 || r.OutboundID == 0 {
			return 0, fmt.Errorf("%w: modulation needs both ends", ErrInvalidConnection)
		}
		return ModulationConnection, nil
	}
	return 0, fmt.Errorf("%w: %v cannot connect to %v", ErrInvalidConnection, r.Outbound, r.Inbound)
}

func (r ConnectionRequest) String() string {
	s := fmt.Sprintf("%v %v -> %v %v", r.OutboundID, r.Outbound, r.InboundID, r.Inbound)
	if r.Outbound == ModulationOutput {
		s += fmt.Sprintf(" %v/%d", r.Parameter, r.Level)
	}
	return s
}
