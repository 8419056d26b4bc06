package component

import (
	"errors"
	"fmt"
	"log"

	"gopkg.in/yaml.v3"

	"github.com/jinjor/desktop-synth/src/midi"
	"github.com/jinjor/desktop-synth/src/params"
	"github.com/jinjor/desktop-synth/src/signal"
)

var (
	ErrUnknownType   = errors.New("unknown component type")
	ErrInvalidConfig = errors.New("invalid component config")
	ErrDuplicateNote = errors.New("sequence note already present")
	ErrNoteNotFound  = errors.New("sequence note not found")
)

// Descriptor is the static description of a component type. It is enough
// to validate connections without touching an instance.
type Descriptor struct {
	Type         Type           `yaml:"-"`
	Name         string         `yaml:"name"`
	Modulatable  []params.Type  `yaml:"-"`
	Controllable []params.Type  `yaml:"-"`
	AudioInputs  int            `yaml:"audio_inputs"`
	AudioOutputs int            `yaml:"audio_outputs"`
	MidiInputs   int            `yaml:"midi_inputs"`
	MidiOutputs  int            `yaml:"midi_outputs"`
	Polyphonic   bool           `yaml:"polyphonic"`
	Capabilities Capability     `yaml:"-"`
	defaults     func() any
	build        func(c core, env Env, cfg any) (Component, error)
}

// CanModulate reports whether t is listed as modulatable.
func (d Descriptor) CanModulate(t params.Type) bool {
	for _, x := range d.Modulatable {
		if x == t {
			return true
		}
	}
	return false
}

// DefaultConfig returns a fresh config struct for the type.
func (d Descriptor) DefaultConfig() any {
	return d.defaults()
}

var registry = [NumTypes]Descriptor{
	TypeOscillator: {
		Modulatable:  []params.Type{params.Amplitude, params.Frequency},
		Controllable: []params.Type{params.Waveform, params.Amplitude, params.Frequency, params.Gain, params.Detune},
		AudioOutputs: 1,
		Capabilities: CapModule | CapModulator,
		defaults: func() any {
			return &OscillatorConfig{Waveform: "SINE", Frequency: 440, Amplitude: 1, Gain: 1}
		},
		build: func(c core, env Env, cfg any) (Component, error) {
			return newOscillator(c, env, cfg.(*OscillatorConfig))
		},
	},
	TypePolyOscillator: {
		Modulatable:  []params.Type{params.Amplitude, params.Frequency, params.Gain},
		Controllable: []params.Type{params.Waveform, params.Gain, params.Detune},
		AudioOutputs: 1,
		MidiInputs:   1,
		Polyphonic:   true,
		Capabilities: CapModule | CapMidiListener,
		defaults: func() any {
			return &PolyOscillatorConfig{Waveform: "SINE"}
		},
		build: func(c core, env Env, cfg any) (Component, error) {
			return newPolyOscillator(c, env, cfg.(*PolyOscillatorConfig))
		},
	},
	TypeBiquadFilter: {
		Modulatable:  []params.Type{params.Cutoff, params.QFactor, params.Bandwidth, params.Shelf, params.DBGain},
		Controllable: []params.Type{params.FilterType, params.Cutoff, params.QFactor, params.Bandwidth, params.Shelf, params.DBGain},
		AudioInputs:  1,
		AudioOutputs: 1,
		Capabilities: CapModule | CapModulator,
		defaults: func() any {
			return &BiquadFilterConfig{FilterType: "LOWPASS", Cutoff: 1000, QFactor: 0.707, Bandwidth: 1, ShelfSlope: 1}
		},
		build: func(c core, env Env, cfg any) (Component, error) {
			return newBiquadFilter(c, env, cfg.(*BiquadFilterConfig))
		},
	},
	TypeLinearFader: {
		Modulatable:  []params.Type{params.Attack, params.Release},
		Controllable: []params.Type{params.Attack, params.Release},
		MidiInputs:   1,
		MidiOutputs:  1,
		Capabilities: CapModulator | CapMidiHandler | CapMidiListener,
		defaults: func() any {
			return &LinearFaderConfig{Attack: 0.01, Release: 0.1}
		},
		build: func(c core, env Env, cfg any) (Component, error) {
			return newLinearFader(c, env, cfg.(*LinearFaderConfig)), nil
		},
	},
	TypeADSREnvelope: {
		Modulatable:  []params.Type{params.Attack, params.Decay, params.Sustain, params.Release},
		Controllable: []params.Type{params.Attack, params.Decay, params.Sustain, params.Release},
		MidiInputs:   1,
		MidiOutputs:  1,
		Capabilities: CapModulator | CapMidiHandler | CapMidiListener,
		defaults: func() any {
			return &ADSREnvelopeConfig{Attack: 0.01, Decay: 0.1, Sustain: 0.8, Release: 0.2}
		},
		build: func(c core, env Env, cfg any) (Component, error) {
			return newADSREnvelope(c, env, cfg.(*ADSREnvelopeConfig)), nil
		},
	},
	TypeMidiFilter: {
		Controllable: []params.Type{params.MinValue, params.MaxValue},
		MidiInputs:   1,
		MidiOutputs:  1,
		Capabilities: CapMidiHandler | CapMidiListener,
		defaults: func() any {
			return &MidiFilterConfig{MinValue: 0, MaxValue: 127}
		},
		build: func(c core, env Env, cfg any) (Component, error) {
			return newMidiFilter(c, env, cfg.(*MidiFilterConfig)), nil
		},
	},
	TypeMonophonicFilter: {
		MidiInputs:   1,
		MidiOutputs:  1,
		Capabilities: CapMidiHandler | CapMidiListener,
		defaults: func() any {
			return &MonophonicFilterConfig{}
		},
		build: func(c core, env Env, cfg any) (Component, error) {
			return newMonophonicFilter(c, env, cfg.(*MonophonicFilterConfig)), nil
		},
	},
	TypeSequencer: {
		Modulatable:  []params.Type{params.Amplitude},
		Controllable: []params.Type{params.Status, params.BPM, params.Amplitude, params.MaxValue},
		MidiInputs:   1,
		MidiOutputs:  1,
		Capabilities: CapMidiHandler | CapMidiListener,
		defaults: func() any {
			return &SequencerConfig{BPM: 120, Velocity: 100, Length: 16, MaxLength: 64}
		},
		build: func(c core, env Env, cfg any) (Component, error) {
			return newSequencer(c, env, cfg.(*SequencerConfig)), nil
		},
	},
	TypeDelay: {
		Modulatable:  []params.Type{params.Duration, params.Gain},
		Controllable: []params.Type{params.Duration, params.Gain},
		AudioInputs:  1,
		AudioOutputs: 1,
		Capabilities: CapModule,
		defaults: func() any {
			return &DelayConfig{DelayTime: 0.5, MaxDelaySec: 4, Gain: 0.7}
		},
		build: func(c core, env Env, cfg any) (Component, error) {
			return newDelay(c, env, cfg.(*DelayConfig)), nil
		},
	},
	TypeGain: {
		Modulatable:  []params.Type{params.Gain},
		Controllable: []params.Type{params.Gain},
		AudioInputs:  1,
		AudioOutputs: 1,
		Capabilities: CapModule,
		defaults: func() any {
			return &GainConfig{Gain: 1}
		},
		build: func(c core, env Env, cfg any) (Component, error) {
			return newGain(c, env, cfg.(*GainConfig)), nil
		},
	},
	TypeMultiply: {
		Modulatable:  []params.Type{params.Scalar},
		Controllable: []params.Type{params.Scalar},
		AudioInputs:  1,
		AudioOutputs: 1,
		Capabilities: CapModule,
		defaults: func() any {
			return &MultiplyConfig{Scalar: 1}
		},
		build: func(c core, env Env, cfg any) (Component, error) {
			return newMultiply(c, env, cfg.(*MultiplyConfig)), nil
		},
	},
}

func init() {
	for t := range registry {
		registry[t].Type = Type(t)
		registry[t].Name = Type(t).String()
		if registry[t].build == nil {
			log.Panicf("no factory registered for %v", Type(t))
		}
	}
}

// Lookup returns the descriptor of t.
func Lookup(t Type) (Descriptor, error) {
	if t >= NumTypes {
		return Descriptor{}, fmt.Errorf("%w: %d", ErrUnknownType, t)
	}
	return registry[t], nil
}

// Descriptors lists every type in enum order.
func Descriptors() []Descriptor {
	return append([]Descriptor(nil), registry[:]...)
}

// Create builds a component of type t. doc overrides fields of the default
// config and may be empty.
func Create(t Type, id ID, name string, env Env, doc []byte) (Component, error) {
	d, err := Lookup(t)
	if err != nil {
		return nil, err
	}
	cfg := d.defaults()
	if len(doc) > 0 {
		if err := yaml.Unmarshal(doc, cfg); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}
	if name == "" {
		name = fmt.Sprintf("%s %v", t, id)
	}
	c, err := d.build(newCore(id, t, name, env), env, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if got := CapabilitiesOf(c); got != d.Capabilities {
		log.Panicf("%v declares %v but implements %v", t, d.Capabilities, got)
	}
	return c, nil
}

// CapabilitiesOf probes c. It is meant to run once per instance.
func CapabilitiesOf(c Component) Capability {
	var caps Capability
	if _, ok := c.(signal.Module); ok {
		caps |= CapModule
	}
	if _, ok := c.(params.Modulator); ok {
		caps |= CapModulator
	}
	if _, ok := c.(midi.Handler); ok {
		caps |= CapMidiHandler
	}
	if _, ok := c.(midi.Listener); ok {
		caps |= CapMidiListener
	}
	return caps
}
