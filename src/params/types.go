package params

import (
	"fmt"
	"math"
	"strings"
)

// Type identifies a parameter. Every Type has compiled-in traits.
type Type uint8

const (
	Depth Type = iota
	Status
	Waveform
	Frequency
	Amplitude
	Gain
	DBGain
	Phase
	Pan
	Detune
	Attack
	Decay
	Sustain
	Release
	FilterType
	Cutoff
	QFactor
	Bandwidth
	Shelf
	BPM
	Duration
	MinValue
	MaxValue
	Scalar
	MidiValue
	Velocity
	StartPosition
	NumTypes
)

// Kind is the value type a parameter stores.
type Kind uint8

const (
	KindBool Kind = iota
	KindUint8
	KindInt
	KindFloat
	KindDouble
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindUint8:
		return "uint8"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindDouble:
		return "double"
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// Traits is the immutable metadata of a Type.
type Traits struct {
	Name     string
	Kind     Kind
	Min      float64
	Max      float64
	Default  float64
	Strategy Strategy
	Step     float64
}

const maxValue = math.MaxFloat64

var traits = [NumTypes]Traits{
	Depth:         {"DEPTH", KindFloat, -5, 5, 1, Additive, 0.01},
	Status:        {"STATUS", KindBool, 0, 1, 0, None, 1},
	Waveform:      {"WAVEFORM", KindUint8, 0, 4, 0, None, 1},
	Frequency:     {"FREQUENCY", KindDouble, 0, maxValue, 440, Exponential, 0.01},
	Amplitude:     {"AMPLITUDE", KindFloat, 0, 1, 1, Logarithmic, 0.001},
	Gain:          {"GAIN", KindFloat, 0, 1, 1, Logarithmic, 0.001},
	DBGain:        {"DBGAIN", KindFloat, -24, 24, 0, Additive, 0.1},
	Phase:         {"PHASE", KindFloat, 0, 1, 0, Additive, 0.001},
	Pan:           {"PAN", KindFloat, -1, 1, 0, Additive, 0.01},
	Detune:        {"DETUNE", KindFloat, -1250, 1250, 0, Exponential, 1},
	Attack:        {"ATTACK", KindFloat, 0.001, 4, 0.01, Exponential, 0.001},
	Decay:         {"DECAY", KindFloat, 0.001, 4, 0.05, Exponential, 0.001},
	Sustain:       {"SUSTAIN", KindFloat, 0, 1, 0.8, Additive, 0.01},
	Release:       {"RELEASE", KindFloat, 0.001, 4, 0.2, Exponential, 0.001},
	FilterType:    {"FILTER_TYPE", KindUint8, 0, 7, 0, None, 1},
	Cutoff:        {"CUTOFF", KindDouble, 0, 20000, 1000, Exponential, 1},
	QFactor:       {"Q_FACTOR", KindFloat, 0.5, 10, 0.707, Exponential, 0.01},
	Bandwidth:     {"BANDWIDTH", KindFloat, 0.1, 4, 1, Exponential, 0.01},
	Shelf:         {"SHELF", KindFloat, 0.1, 1, 1, Additive, 0.01},
	BPM:           {"BPM", KindInt, 20, 300, 120, None, 1},
	Duration:      {"DURATION", KindDouble, 0, 64, 0.5, Additive, 0.001},
	MinValue:      {"MIN_VALUE", KindUint8, 0, 127, 0, None, 1},
	MaxValue:      {"MAX_VALUE", KindUint8, 0, 127, 127, None, 1},
	Scalar:        {"SCALAR", KindDouble, -10, 10, 1, Multiplicative, 0.01},
	MidiValue:     {"MIDI_VALUE", KindUint8, 0, 127, 60, None, 1},
	Velocity:      {"VELOCITY", KindUint8, 0, 127, 100, None, 1},
	StartPosition: {"START_POSITION", KindDouble, 0, maxValue, 0, Additive, 0.001},
}

// TraitsOf returns the traits of t.
func TraitsOf(t Type) Traits {
	if t >= NumTypes {
		return Traits{}
	}
	return traits[t]
}

func (t Type) String() string {
	if t >= NumTypes {
		return fmt.Sprintf("Type(%d)", t)
	}
	return traits[t].Name
}

// ParseType accepts the upper-case trait name in any case.
func ParseType(name string) (Type, error) {
	upper := strings.ToUpper(name)
	for t := Type(0); t < NumTypes; t++ {
		if traits[t].Name == upper {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownParameter, name)
}

func (t Type) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *Type) UnmarshalText(b []byte) error {
	v, err := ParseType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Set is a bitset over Type.
type Set uint32

// SetOf builds a Set.
func SetOf(types ...Type) Set {
	var s Set
	for _, t := range types {
		s = s.With(t)
	}
	return s
}

func (s Set) Has(t Type) bool { return s&(1<<t) != 0 }
func (s Set) With(t Type) Set { return s | 1<<t }
func (s Set) Without(t Type) Set { return s &^ (1 << t) }

// Types lists members in enum order.
func (s Set) Types() []Type {
	var out []Type
	for t := Type(0); t < NumTypes; t++ {
		if s.Has(t) {
			out = append(out, t)
		}
	}
	return out
}
