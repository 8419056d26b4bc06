package component

import (
	"math"

	"github.com/jinjor/desktop-synth/src/dsp"
	"github.com/jinjor/desktop-synth/src/midi"
	"github.com/jinjor/desktop-synth/src/params"
	"github.com/jinjor/desktop-synth/src/signal"
)

// ----- Oscillator ----- //

// Oscillator reads a wavetable at FREQUENCY. As a modulator it hands out
// its current sample, which makes it an LFO.
type Oscillator struct {
	core
	signal.Base
	tables     *dsp.Wavetables
	sampleRate float64
	phase      float64
	noiseIndex int
	bend       float64

	waveform  *params.Parameter
	amplitude *params.Parameter
	frequency *params.Parameter
	gain      *params.Parameter
	detune    *params.Parameter
}

func newOscillator(c core, env Env, cfg *OscillatorConfig) (*Oscillator, error) {
	w, err := dsp.ParseWaveform(cfg.Waveform)
	if err != nil {
		return nil, err
	}
	o := &Oscillator{core: c}
	o.init(env)
	m := o.params
	o.waveform = m.Add(params.Waveform, float64(w), false)
	o.amplitude = m.Add(params.Amplitude, cfg.Amplitude, true)
	o.frequency = m.AddRange(params.Frequency, cfg.Frequency, true, 0, env.SampleRate/2)
	o.gain = m.Add(params.Gain, cfg.Gain, false)
	o.detune = m.Add(params.Detune, cfg.Detune, false)
	return o, nil
}

func (o *Oscillator) init(env Env) {
	o.Base.Init(o, env.BufferSize)
	o.tables = env.Wavetables
	o.sampleRate = env.SampleRate
	o.bend = 1
}

// initVoice prepares a pooled voice that shares WAVEFORM, GAIN and DETUNE
// with its parent.
func (o *Oscillator) initVoice(parent *params.Map, env Env) {
	o.core = newCore(0, TypeOscillator, "voice", env)
	o.init(env)
	m := o.params
	o.amplitude = m.Add(params.Amplitude, 1, true)
	o.frequency = m.AddRange(params.Frequency, 440, true, 0, env.SampleRate/2)
	m.AddReferences(parent)
	o.waveform = m.Get(params.Waveform)
	o.gain = m.Get(params.Gain)
	o.detune = m.Get(params.Detune)
}

func (o *Oscillator) IsGenerative() bool { return true }

func (o *Oscillator) Tick() {
	o.Base.Tick()
	freq := o.frequency.Instantaneous() * dsp.DetuneScale(o.detune.Instantaneous()) * o.bend
	o.phase += freq / o.sampleRate
	if o.phase >= 1 || o.phase < 0 {
		o.phase -= math.Floor(o.phase)
	}
}

func (o *Oscillator) CalculateSample() {
	w := dsp.Waveform(o.waveform.Value())
	table := o.tables.Get(w)
	var sample float64
	if w == dsp.Noise {
		sample = table.Index(o.noiseIndex)
		o.noiseIndex++
		if o.noiseIndex >= table.Len() {
			o.noiseIndex = 0
		}
	} else {
		sample = table.At(o.phase)
	}
	sample *= o.amplitude.Instantaneous() * o.gain.Instantaneous()
	o.SetSample(sample)
}

// Modulate returns the current sample.
func (o *Oscillator) Modulate(value float64, data *params.ModulationData) float64 {
	return o.CurrentSample()
}

func (o *Oscillator) RequiredKeys() params.KeySet { return 0 }

// retune keeps the phase running.
func (o *Oscillator) retune(note midi.Note) {
	o.frequency.SetValue(note.Frequency())
	o.amplitude.SetValue(note.Gain())
}

func (o *Oscillator) reset() {
	o.phase = 0
	o.noiseIndex = 0
	o.bend = 1
	o.ClearBuffer()
}

// Phase is in [0, 1).
func (o *Oscillator) Phase() float64 { return o.phase }
