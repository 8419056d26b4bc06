package component

import (
	"github.com/jinjor/desktop-synth/src/midi"
	"github.com/jinjor/desktop-synth/src/params"
)

// ----- MidiFilter ----- //

// MidiFilter passes notes within [MIN_VALUE, MAX_VALUE].
type MidiFilter struct {
	core
	midi.HandlerBase
	min *params.Parameter
	max *params.Parameter
}

func newMidiFilter(c core, env Env, cfg *MidiFilterConfig) *MidiFilter {
	f := &MidiFilter{core: c}
	f.HandlerBase.Bind(f, env.QueueSize)
	f.min = f.params.Add(params.MinValue, float64(cfg.MinValue), false)
	f.max = f.params.Add(params.MaxValue, float64(cfg.MaxValue), false)
	return f
}

func (f *MidiFilter) accepts(n uint8) bool {
	v := float64(n)
	return v >= f.min.Value() && v <= f.max.Value()
}

func (f *MidiFilter) OnKeyPressed(note *midi.ActiveNote, rePressed bool) {
	if note != nil && f.accepts(note.Number) {
		f.HandlerBase.OnKeyPressed(note, rePressed)
	}
}

func (f *MidiFilter) OnKeyReleased(note midi.ActiveNote) {
	if f.accepts(note.Number) {
		f.HandlerBase.OnKeyReleased(note)
	}
}

// ----- MonophonicFilter ----- //

// MonophonicFilter lets only the most recent held note sound. Releasing it
// brings back the one held before.
type MonophonicFilter struct {
	core
	midi.HandlerBase
	stack []uint8
}

func newMonophonicFilter(c core, env Env, cfg *MonophonicFilterConfig) *MonophonicFilter {
	f := &MonophonicFilter{core: c, stack: make([]uint8, 0, midi.NumNotes)}
	f.HandlerBase.Bind(f, env.QueueSize)
	return f
}

func (f *MonophonicFilter) remove(n uint8) (found, top bool) {
	for i, x := range f.stack {
		if x == n {
			top = i == len(f.stack)-1
			f.stack = append(f.stack[:i], f.stack[i+1:]...)
			return true, top
		}
	}
	return false, false
}

func (f *MonophonicFilter) OnKeyPressed(note *midi.ActiveNote, rePressed bool) {
	n := note.Number & 0x7f
	f.remove(n)
	f.stack = append(f.stack, n)
	if len(f.stack) > 1 {
		pn := f.stack[len(f.stack)-2]
		prev := f.ActiveNote(pn)
		prev.Number = pn
		prev.Status = false
		f.HandlerBase.OnKeyReleased(prev)
	}
	f.HandlerBase.OnKeyPressed(note, rePressed)
}

func (f *MonophonicFilter) OnKeyReleased(note midi.ActiveNote) {
	found, top := f.remove(note.Number & 0x7f)
	if !found || !top {
		return
	}
	f.HandlerBase.OnKeyReleased(note)
	if len(f.stack) > 0 {
		nn := f.stack[len(f.stack)-1]
		next := f.ActiveNote(nn)
		next.Number = nn
		next.Status = true
		next.Time = 0
		f.HandlerBase.OnKeyPressed(&next, false)
	}
}

// Held lists held notes, most recent last.
func (f *MonophonicFilter) Held() []uint8 {
	return append([]uint8(nil), f.stack...)
}
