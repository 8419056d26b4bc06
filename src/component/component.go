// Package component defines the engine's building blocks: oscillators,
// filters, envelopes and MIDI processors, plus the registry that creates
// them by type.
package component

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/jinjor/desktop-synth/src/config"
	"github.com/jinjor/desktop-synth/src/dsp"
	"github.com/jinjor/desktop-synth/src/midi"
	"github.com/jinjor/desktop-synth/src/params"
	"github.com/jinjor/desktop-synth/src/pool"
)

// ID is a generation-checked handle issued by the engine. The zero ID
// never names a component.
type ID uint32

// IDFromHandle converts an arena handle.
func IDFromHandle(h pool.Handle) ID { return ID(h) }

func (id ID) Handle() pool.Handle { return pool.Handle(id) }

func (id ID) Valid() bool { return id != 0 }

func (id ID) String() string {
	return fmt.Sprintf("#%d.%d", uint32(id)&0xffff, uint32(id)>>16)
}

// ParseID accepts the String form, with or without the leading '#', or the
// raw number.
func ParseID(s string) (ID, error) {
	s = strings.TrimPrefix(s, "#")
	if i := strings.IndexByte(s, '.'); i >= 0 {
		index, err := strconv.ParseUint(s[:i], 10, 16)
		if err != nil {
			return 0, fmt.Errorf("invalid id %q", s)
		}
		gen, err := strconv.ParseUint(s[i+1:], 10, 16)
		if err != nil {
			return 0, fmt.Errorf("invalid id %q", s)
		}
		return ID(gen<<16 | index), nil
	}
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return ID(v), nil
}

// Type is the closed set of component kinds.
type Type uint8

const (
	TypeOscillator Type = iota
	TypePolyOscillator
	TypeBiquadFilter
	TypeLinearFader
	TypeADSREnvelope
	TypeMidiFilter
	TypeMonophonicFilter
	TypeSequencer
	TypeDelay
	TypeGain
	TypeMultiply
	NumTypes
)

var typeNames = [NumTypes]string{
	"OSCILLATOR",
	"POLY_OSCILLATOR",
	"BIQUAD_FILTER",
	"LINEAR_FADER",
	"ADSR_ENVELOPE",
	"MIDI_FILTER",
	"MONOPHONIC_FILTER",
	"SEQUENCER",
	"DELAY",
	"GAIN",
	"MULTIPLY",
}

func (t Type) String() string {
	if t < NumTypes {
		return typeNames[t]
	}
	return fmt.Sprintf("Type(%d)", t)
}

func ParseType(s string) (Type, error) {
	upper := strings.ToUpper(s)
	for i, n := range typeNames {
		if n == upper {
			return Type(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownType, s)
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

// Capability is a bitset of the roles a component plays.
type Capability uint8

const (
	CapModule Capability = 1 << iota
	CapModulator
	CapMidiHandler
	CapMidiListener
)

var capabilityNames = []string{"module", "modulator", "midi_handler", "midi_listener"}

func (c Capability) Has(x Capability) bool { return c&x == x }

func (c Capability) String() string {
	var names []string
	for i, n := range capabilityNames {
		if c&(1<<i) != 0 {
			names = append(names, n)
		}
	}
	return strings.Join(names, "|")
}

// Component is what every engine object implements. Capabilities beyond
// this (signal.Module, params.Modulator, midi.Handler, midi.Listener) are
// discovered once at creation.
type Component interface {
	ID() ID
	Type() Type
	Name() string
	SetName(name string)
	Parameters() *params.Map
	// UpdateParameters refreshes instantaneous values once per sample.
	UpdateParameters()
	SetParameterModulation(t params.Type, level int, m params.Modulator) error
	RemoveParameterModulation(t params.Type, level int)
}

// core is embedded by every component.
type core struct {
	id     ID
	typ    Type
	name   string
	params *params.Map
}

func newCore(id ID, typ Type, name string, env Env) core {
	return core{id: id, typ: typ, name: name, params: params.NewMap(env.MaxDepth)}
}

func (c *core) ID() ID { return c.id }
func (c *core) Type() Type { return c.typ }
func (c *core) Name() string { return c.name }
func (c *core) SetName(name string) { c.name = name }
func (c *core) Parameters() *params.Map { return c.params }

func (c *core) UpdateParameters() {
	c.params.Modulate()
}

// SetParameterModulation links m to parameter t, or to its nested depth at
// level.
func (c *core) SetParameterModulation(t params.Type, level int, m params.Modulator) error {
	p, err := c.params.Resolve(t, level)
	if err != nil {
		return err
	}
	return p.SetModulation(m, params.ModulationData{})
}

func (c *core) RemoveParameterModulation(t params.Type, level int) {
	if p, err := c.params.Resolve(t, level); err == nil {
		p.RemoveModulation()
	}
}

// Env is the configuration snapshot components are built with. The render
// goroutine never reads config.Config directly.
type Env struct {
	SampleRate     float64
	BufferSize     int
	MaxDepth       int
	QueueSize      int
	MaxVoices      int
	ExpectedVoices int
	AutoGain       [dsp.NumWaveforms]float64
	Wavetables     *dsp.Wavetables
	Pitchbend      *midi.PitchbendTable
}

// NewEnv reads everything components need from cfg.
func NewEnv(cfg *config.Config) (Env, error) {
	env := Env{
		SampleRate:     cfg.Float("audio.sample_rate", 48000),
		BufferSize:     cfg.Int("audio.buffer_size", 512),
		MaxDepth:       cfg.Int("parameters.max_modulation_depth", params.DefaultMaxDepth),
		QueueSize:      cfg.Int("midi.queue_size", midi.DefaultQueueSize),
		MaxVoices:      cfg.Int("oscillator.max_voices", 32),
		ExpectedVoices: cfg.Int("oscillator.expected_voices", 4),
		Pitchbend:      midi.NewPitchbendTable(cfg.Float("midi.pitchbend_range", 2)),
	}
	if env.SampleRate <= 0 {
		return Env{}, fmt.Errorf("invalid sample rate %v", env.SampleRate)
	}
	if env.BufferSize <= 0 {
		return Env{}, fmt.Errorf("invalid buffer size %v", env.BufferSize)
	}
	if env.MaxVoices <= 0 || env.MaxVoices > pool.MaxCapacity {
		return Env{}, fmt.Errorf("%w: max_voices %d", pool.ErrCapacity, env.MaxVoices)
	}
	if env.ExpectedVoices <= 0 {
		env.ExpectedVoices = 1
	}
	if env.QueueSize <= 0 {
		env.QueueSize = midi.DefaultQueueSize
	}
	for w := dsp.Waveform(0); w < dsp.NumWaveforms; w++ {
		env.AutoGain[w] = cfg.Float("oscillator.auto_gain."+strings.ToLower(w.String()), 1)
	}
	wts, err := dsp.NewWavetables(cfg.Int("oscillator.wavetable_size", 2048), 1)
	if err != nil {
		return Env{}, err
	}
	env.Wavetables = wts
	return env, nil
}

// VoiceGain is the auto gain for w spread over the expected voice count.
func (env Env) VoiceGain(w dsp.Waveform) float64 {
	g := 1.0
	if w < dsp.NumWaveforms {
		g = env.AutoGain[w]
	}
	return g / math.Sqrt(float64(env.ExpectedVoices))
}
