package component

import (
	"github.com/jinjor/desktop-synth/src/dsp"
	"github.com/jinjor/desktop-synth/src/midi"
	"github.com/jinjor/desktop-synth/src/params"
	"github.com/jinjor/desktop-synth/src/pool"
	"github.com/jinjor/desktop-synth/src/signal"
)

// ----- PolyOscillator ----- //

// voiceParams are owned by each voice. Modulation requested for them on the
// parent is replayed onto every voice with per-voice data.
var voiceParams = params.SetOf(params.Amplitude, params.Frequency)

type voiceLink struct {
	typ   params.Type
	level int
	m     params.Modulator
}

// PolyOscillator plays one pooled Oscillator per sounding note.
type PolyOscillator struct {
	core
	signal.Base
	env      Env
	voices   *pool.Pool[Oscillator]
	children [midi.NumNotes]pool.Handle
	links    []voiceLink
	bend     float64

	waveform *params.Parameter
	gain     *params.Parameter
	detune   *params.Parameter
}

func newPolyOscillator(c core, env Env, cfg *PolyOscillatorConfig) (*PolyOscillator, error) {
	w, err := dsp.ParseWaveform(cfg.Waveform)
	if err != nil {
		return nil, err
	}
	p := &PolyOscillator{core: c, env: env, bend: 1}
	p.Base.Init(p, env.BufferSize)
	p.waveform = p.params.Add(params.Waveform, float64(w), false)
	p.gain = p.params.Add(params.Gain, env.VoiceGain(w), true)
	p.detune = p.params.Add(params.Detune, cfg.Detune, false)
	p.waveform.OnChange(p.updateGain)
	p.links = make([]voiceLink, 0, 16)

	parent := p.params
	p.voices, err = pool.New(env.MaxVoices, func(i int, o *Oscillator) {
		o.initVoice(parent, env)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (p *PolyOscillator) updateGain() {
	p.gain.SetValue(p.env.VoiceGain(dsp.Waveform(p.waveform.Value())))
}

func (p *PolyOscillator) IsGenerative() bool { return true }

func (p *PolyOscillator) Tick() {
	p.Base.Tick()
	p.voices.ForEachActive(func(_ pool.Handle, o *Oscillator) {
		o.Tick()
	})
}

func (p *PolyOscillator) CalculateSample() {
	sum := 0.0
	p.voices.ForEachActive(func(_ pool.Handle, o *Oscillator) {
		o.CalculateSample()
		sum += o.CurrentSample()
	})
	p.AddSample(sum)
}

func (p *PolyOscillator) ClearBuffer() {
	p.Base.ClearBuffer()
	p.voices.ForEachActive(func(_ pool.Handle, o *Oscillator) {
		o.ClearBuffer()
	})
}

// UpdateParameters modulates the shared parameters once, then every voice's
// own parameters.
func (p *PolyOscillator) UpdateParameters() {
	p.params.Modulate()
	p.voices.ForEachActive(func(_ pool.Handle, o *Oscillator) {
		o.params.Modulate()
	})
}

// ActiveVoices is the number of sounding voices.
func (p *PolyOscillator) ActiveVoices() int { return p.voices.Len() }

// Voice returns the voice playing note n, or nil.
func (p *PolyOscillator) Voice(n uint8) *Oscillator {
	return p.voices.Get(p.children[n&0x7f])
}

// ----- modulation ----- //

func (p *PolyOscillator) SetParameterModulation(t params.Type, level int, m params.Modulator) error {
	if !voiceParams.Has(t) {
		return p.core.SetParameterModulation(t, level, m)
	}
	if level < 0 || (level > 0 && level >= p.env.MaxDepth) {
		return params.ErrDepthLevel
	}
	p.removeLink(t, level)
	p.links = append(p.links, voiceLink{typ: t, level: level, m: m})
	for n := range p.children {
		if o := p.voices.Get(p.children[n]); o != nil {
			p.attach(o, voiceLink{typ: t, level: level, m: m}, uint8(n))
		}
	}
	return nil
}

func (p *PolyOscillator) RemoveParameterModulation(t params.Type, level int) {
	if !voiceParams.Has(t) {
		p.core.RemoveParameterModulation(t, level)
		return
	}
	p.removeLink(t, level)
	p.voices.ForEachActive(func(_ pool.Handle, o *Oscillator) {
		if q, err := o.params.Resolve(t, level); err == nil {
			q.RemoveModulation()
		}
	})
}

func (p *PolyOscillator) removeLink(t params.Type, level int) {
	for i, l := range p.links {
		if l.typ == t && l.level == level {
			p.links = append(p.links[:i], p.links[i+1:]...)
			return
		}
	}
}

// attach gives the voice its own copy of the link data, seeded with the
// note so MIDI driven modulators can find it.
func (p *PolyOscillator) attach(o *Oscillator, l voiceLink, note uint8) {
	q, err := o.params.Resolve(l.typ, l.level)
	if err != nil {
		return
	}
	var data params.ModulationData
	if l.m.RequiredKeys().Has(params.MidiNote) {
		data.Set(params.MidiNote, float64(note))
	}
	q.SetModulation(l.m, data)
}

func (p *PolyOscillator) detach(o *Oscillator) {
	for _, t := range voiceParams.Types() {
		for level := 0; ; level++ {
			q, err := o.params.Resolve(t, level)
			if err != nil {
				break
			}
			q.RemoveModulation()
		}
	}
}

func (p *PolyOscillator) carryOver(o *Oscillator) {
	for _, l := range p.links {
		if q, err := o.params.Resolve(l.typ, l.level); err == nil {
			q.ModulationData().CarryOver()
		}
	}
}

// ----- midi.Listener ----- //

func (p *PolyOscillator) OnKeyPressed(note *midi.ActiveNote, rePressed bool) {
	n := note.Number & 0x7f
	if o := p.voices.Get(p.children[n]); o != nil {
		o.retune(note.Note)
		p.carryOver(o)
		return
	}
	h, o := p.voices.Allocate()
	if o == nil {
		return
	}
	o.reset()
	o.SetBufferIndex(p.BufferIndex())
	o.bend = p.bend
	o.retune(note.Note)
	for _, l := range p.links {
		p.attach(o, l, n)
	}
	p.children[n] = h
}

func (p *PolyOscillator) OnKeyReleased(note midi.ActiveNote) {
	if o := p.voices.Get(p.children[note.Number&0x7f]); o != nil {
		p.carryOver(o)
	}
}

func (p *PolyOscillator) OnKeyOff(note midi.ActiveNote) {
	n := note.Number & 0x7f
	h := p.children[n]
	if o := p.voices.Get(h); o != nil {
		p.detach(o)
		p.voices.Release(h)
	}
	p.children[n] = 0
}

func (p *PolyOscillator) OnPitchbend(value uint16) {
	p.bend = p.env.Pitchbend.Scale(value)
	p.voices.ForEachActive(func(_ pool.Handle, o *Oscillator) {
		o.bend = p.bend
	})
}
