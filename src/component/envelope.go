package component

import (
	"github.com/jinjor/desktop-synth/src/midi"
	"github.com/jinjor/desktop-synth/src/params"
)

// envelopeKeys are read and written by every envelope. INITIAL_VALUE is the
// level a stage starts from, OUTPUT the last value produced.
var envelopeKeys = params.KeysOf(params.MidiNote, params.InitialValue, params.Output)

// noteOf finds the tracked note a link refers to.
func noteOf(h *midi.HandlerBase, data *params.ModulationData) (midi.ActiveNote, bool) {
	if data == nil || !data.Has(params.MidiNote) {
		return midi.ActiveNote{}, false
	}
	n := uint8(data.Get(params.MidiNote))
	if !h.IsNoteActive(n) {
		return midi.ActiveNote{}, false
	}
	return h.ActiveNote(n), true
}

func releaseLevel(start, time, release float64) float64 {
	if time >= release {
		return 0
	}
	return start * (1 - time/release)
}

// ----- LinearFader ----- //

// LinearFader ramps from the starting level to 1 over ATTACK and back to 0
// over RELEASE.
type LinearFader struct {
	core
	midi.HandlerBase
	attack  *params.Parameter
	release *params.Parameter
}

func newLinearFader(c core, env Env, cfg *LinearFaderConfig) *LinearFader {
	f := &LinearFader{core: c}
	f.HandlerBase.Bind(f, env.QueueSize)
	f.attack = f.params.Add(params.Attack, cfg.Attack, true)
	f.release = f.params.Add(params.Release, cfg.Release, true)
	return f
}

func (f *LinearFader) RequiredKeys() params.KeySet { return envelopeKeys }

func (f *LinearFader) Modulate(value float64, data *params.ModulationData) float64 {
	note, ok := noteOf(&f.HandlerBase, data)
	if !ok {
		return 0
	}
	start := data.Get(params.InitialValue)
	var out float64
	if note.Status {
		attack := f.attack.Instantaneous()
		if note.Time <= attack {
			out = start + (1-start)*(note.Time/attack)
		} else {
			out = 1
		}
	} else {
		out = releaseLevel(start, note.Time, f.release.Instantaneous())
	}
	data.Set(params.Output, out)
	return out
}

// ShouldKillNote keeps a released note until its release has run out.
func (f *LinearFader) ShouldKillNote(note midi.ActiveNote) bool {
	return !note.Status && note.Time > f.release.Instantaneous()
}

// ----- ADSREnvelope ----- //

type ADSREnvelope struct {
	core
	midi.HandlerBase
	attack  *params.Parameter
	decay   *params.Parameter
	sustain *params.Parameter
	release *params.Parameter
}

func newADSREnvelope(c core, env Env, cfg *ADSREnvelopeConfig) *ADSREnvelope {
	e := &ADSREnvelope{core: c}
	e.HandlerBase.Bind(e, env.QueueSize)
	e.attack = e.params.Add(params.Attack, cfg.Attack, true)
	e.decay = e.params.Add(params.Decay, cfg.Decay, true)
	e.sustain = e.params.Add(params.Sustain, cfg.Sustain, true)
	e.release = e.params.Add(params.Release, cfg.Release, true)
	return e
}

func (e *ADSREnvelope) RequiredKeys() params.KeySet { return envelopeKeys }

func (e *ADSREnvelope) Modulate(value float64, data *params.ModulationData) float64 {
	note, ok := noteOf(&e.HandlerBase, data)
	if !ok {
		return 0
	}
	start := data.Get(params.InitialValue)
	var out float64
	if note.Status {
		attack := e.attack.Instantaneous()
		decay := e.decay.Instantaneous()
		sustain := e.sustain.Instantaneous()
		switch {
		case note.Time <= attack:
			out = start + (1-start)*(note.Time/attack)
		case note.Time <= attack+decay:
			out = 1 - (1-sustain)*((note.Time-attack)/decay)
		default:
			out = sustain
		}
	} else {
		out = releaseLevel(start, note.Time, e.release.Instantaneous())
	}
	data.Set(params.Output, out)
	return out
}

func (e *ADSREnvelope) ShouldKillNote(note midi.ActiveNote) bool {
	return !note.Status && note.Time > e.release.Instantaneous()
}
