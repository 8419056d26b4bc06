package component

import (
	"github.com/jinjor/desktop-synth/src/dsp"
	"github.com/jinjor/desktop-synth/src/params"
	"github.com/jinjor/desktop-synth/src/signal"
)

// ----- Delay ----- //

type Delay struct {
	core
	signal.Base
	sampleRate float64
	buffer     *dsp.DelayBuffer
	duration   *params.Parameter
	gain       *params.Parameter
}

func newDelay(c core, env Env, cfg *DelayConfig) *Delay {
	maxSec := cfg.MaxDelaySec
	if maxSec <= 0 {
		maxSec = 1
	}
	d := &Delay{
		core:       c,
		sampleRate: env.SampleRate,
		buffer:     dsp.NewDelayBuffer(int(maxSec*env.SampleRate) + 4),
	}
	d.Base.Init(d, env.BufferSize)
	d.duration = d.params.AddRange(params.Duration, cfg.DelayTime, true, 0, maxSec)
	d.gain = d.params.Add(params.Gain, cfg.Gain, true)
	return d
}

func (d *Delay) CalculateSample() {
	d.buffer.Write(d.SumInputs())
	y := d.buffer.Read(d.duration.Instantaneous()*d.sampleRate) * d.gain.Instantaneous()
	d.SetSample(y)
}

// ----- Gain ----- //

type Gain struct {
	core
	signal.Base
	gain *params.Parameter
}

func newGain(c core, env Env, cfg *GainConfig) *Gain {
	g := &Gain{core: c}
	g.Base.Init(g, env.BufferSize)
	g.gain = g.params.Add(params.Gain, cfg.Gain, true)
	return g
}

func (g *Gain) CalculateSample() {
	g.SetSample(g.SumInputs() * g.gain.Instantaneous())
}

// ----- Multiply ----- //

type Multiply struct {
	core
	signal.Base
	scalar *params.Parameter
}

func newMultiply(c core, env Env, cfg *MultiplyConfig) *Multiply {
	m := &Multiply{core: c}
	m.Base.Init(m, env.BufferSize)
	m.scalar = m.params.Add(params.Scalar, cfg.Scalar, true)
	return m
}

func (m *Multiply) CalculateSample() {
	m.SetSample(m.SumInputs() * m.scalar.Instantaneous())
}
