package component

import (
	"errors"
	"math"
	"testing"

	"github.com/jinjor/desktop-synth/src/config"
	"github.com/jinjor/desktop-synth/src/dsp"
	"github.com/jinjor/desktop-synth/src/params"
	"github.com/jinjor/desktop-synth/src/signal"
)

func expectEqual(t *testing.T, actual, expected interface{}) {
	t.Helper()
	if actual != expected {
		t.Errorf("expected %v, but got: %v", expected, actual)
	}
}

func expectNearlyEqual(t *testing.T, actual, expected float64) {
	t.Helper()
	if math.Abs(actual-expected) > 0.0001 {
		t.Errorf("expected %v, but got: %v", expected, actual)
	}
}

func expectNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}

func testEnv(t *testing.T, sampleRate float64) Env {
	t.Helper()
	cfg := config.Default()
	cfg.Set("audio.sample_rate", sampleRate)
	cfg.Set("audio.buffer_size", 16)
	cfg.Set("oscillator.wavetable_size", 1024)
	env, err := NewEnv(cfg)
	expectNoError(t, err)
	return env
}

func create(t *testing.T, env Env, typ Type, doc string) Component {
	t.Helper()
	c, err := Create(typ, ID(1<<16|1), "", env, []byte(doc))
	expectNoError(t, err)
	return c
}

// impulse plays back a fixed list of samples, then silence.
type impulse struct {
	signal.Base
	values []float64
	n      int
}

func newImpulse(size int, values ...float64) *impulse {
	m := &impulse{values: values}
	m.Init(m, size)
	return m
}

func (m *impulse) CalculateSample() {
	v := 0.0
	if m.n < len(m.values) {
		v = m.values[m.n]
	}
	m.n++
	m.SetSample(v)
}

// step renders one sample of src followed by c.
func step(src signal.Module, c Component) {
	if src != nil {
		src.Tick()
		src.CalculateSample()
	}
	c.UpdateParameters()
	m := c.(signal.Module)
	m.Tick()
	m.CalculateSample()
}

func TestRegistryMatchesInstances(t *testing.T) {
	env := testEnv(t, 8000)
	for _, d := range Descriptors() {
		t.Run(d.Name, func(t *testing.T) {
			c := create(t, env, d.Type, "")
			expectEqual(t, c.Type(), d.Type)
			expectEqual(t, CapabilitiesOf(c), d.Capabilities)
			for _, p := range d.Controllable {
				expectEqual(t, c.Parameters().Has(p), true)
			}
			for _, p := range d.Modulatable {
				owned := c.Parameters().Modulatable().Has(p)
				expectEqual(t, owned || (d.Polyphonic && voiceParams.Has(p)), true)
			}
		})
	}
}

func TestCreateErrors(t *testing.T) {
	env := testEnv(t, 8000)
	_, err := Create(NumTypes, 1, "", env, nil)
	expectEqual(t, errors.Is(err, ErrUnknownType), true)
	_, err = Create(TypeOscillator, 1, "", env, []byte(`{"waveform": "WOBBLE"}`))
	expectEqual(t, errors.Is(err, ErrInvalidConfig), true)
	_, err = Create(TypeGain, 1, "", env, []byte(`gain: [1, 2]`))
	expectEqual(t, errors.Is(err, ErrInvalidConfig), true)

	typ, err := ParseType("poly_oscillator")
	expectNoError(t, err)
	expectEqual(t, typ, TypePolyOscillator)
	_, err = ParseType("theremin")
	expectEqual(t, errors.Is(err, ErrUnknownType), true)
}

func TestCreateWithConfig(t *testing.T) {
	env := testEnv(t, 8000)
	c := create(t, env, TypeOscillator, `{"waveform": "SAW", "frequency": 220}`)
	expectEqual(t, c.Parameters().Value(params.Waveform), float64(dsp.Saw))
	expectEqual(t, c.Parameters().Value(params.Frequency), 220.0)
	expectEqual(t, c.Parameters().Get(params.Frequency).Max(), 4000.0)

	f := create(t, env, TypeBiquadFilter, "filter_type: highpass\ncutoff: 300\n")
	expectEqual(t, f.Parameters().Value(params.FilterType), float64(dsp.HighPass))
	expectEqual(t, f.Name() != "", true)
}

func TestOscillatorPhase(t *testing.T) {
	env := testEnv(t, 8000)
	o := create(t, env, TypeOscillator, `frequency: 1000`).(*Oscillator)
	step(nil, o)
	step(nil, o)
	expectNearlyEqual(t, o.Phase(), 0.25)
	expectNearlyEqual(t, o.CurrentSample(), 1)
	expectNearlyEqual(t, o.Modulate(0, nil), 1)
	for i := 0; i < 6; i++ {
		step(nil, o)
	}
	expectNearlyEqual(t, o.Phase(), 0)

	o.Parameters().Get(params.Detune).SetValue(1200)
	step(nil, o)
	expectNearlyEqual(t, o.Phase(), 0.25)
}

func TestOscillatorNoise(t *testing.T) {
	env := testEnv(t, 8000)
	o := create(t, env, TypeOscillator, `waveform: NOISE`).(*Oscillator)
	distinct := map[float64]bool{}
	for i := 0; i < 32; i++ {
		step(nil, o)
		distinct[o.CurrentSample()] = true
	}
	expectEqual(t, len(distinct) > 16, true)
}
