package component

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/jinjor/desktop-synth/src/midi"
	"github.com/jinjor/desktop-synth/src/params"
)

// SequenceNote is one note of a looping pattern. Positions are in beats.
type SequenceNote struct {
	Pitch    uint8   `yaml:"pitch" json:"pitch"`
	Velocity uint8   `yaml:"velocity" json:"velocity"`
	Start    float64 `yaml:"start" json:"start"`
	Duration float64 `yaml:"duration" json:"duration"`
}

func (n SequenceNote) End() float64 { return n.Start + n.Duration }

func (n SequenceNote) String() string {
	return fmt.Sprintf("%d@%g+%g", n.Pitch, n.Start, n.Duration)
}

// ----- Sequencer ----- //

// Sequencer plays its pattern as MIDI events into its own queue. Notes are
// replaced as a whole slice, so the render goroutine reads them without
// locking.
type Sequencer struct {
	core
	midi.HandlerBase
	mu       sync.Mutex
	notes    atomic.Pointer[[]SequenceNote]
	time     float64
	last     float64
	sounding [midi.NumNotes]bool

	status    *params.Parameter
	bpm       *params.Parameter
	amplitude *params.Parameter
	length    *params.Parameter
}

func newSequencer(c core, env Env, cfg *SequencerConfig) *Sequencer {
	s := &Sequencer{core: c, last: -1}
	s.HandlerBase.Bind(s, env.QueueSize)
	s.status = s.params.Add(params.Status, 1, false)
	s.bpm = s.params.Add(params.BPM, float64(cfg.BPM), false)
	s.amplitude = s.params.Add(params.Amplitude, float64(cfg.Velocity)/127, true)
	maxLength := cfg.MaxLength
	if maxLength <= 0 {
		maxLength = params.TraitsOf(params.MaxValue).Max
	}
	s.length = s.params.AddRange(params.MaxValue, cfg.Length, false, 1, maxLength)
	empty := []SequenceNote{}
	s.notes.Store(&empty)
	return s
}

// AddNote rejects an exact duplicate.
func (s *Sequencer) AddNote(n SequenceNote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := *s.notes.Load()
	for _, x := range cur {
		if x == n {
			return fmt.Errorf("%w: %v", ErrDuplicateNote, n)
		}
	}
	next := make([]SequenceNote, len(cur), len(cur)+1)
	copy(next, cur)
	next = append(next, n)
	s.notes.Store(&next)
	return nil
}

func (s *Sequencer) RemoveNote(n SequenceNote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := *s.notes.Load()
	for i, x := range cur {
		if x == n {
			next := make([]SequenceNote, 0, len(cur)-1)
			next = append(next, cur[:i]...)
			next = append(next, cur[i+1:]...)
			s.notes.Store(&next)
			return nil
		}
	}
	return fmt.Errorf("%w: %v", ErrNoteNotFound, n)
}

func (s *Sequencer) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	empty := []SequenceNote{}
	s.notes.Store(&empty)
}

// Notes returns the pattern. The slice must not be modified.
func (s *Sequencer) Notes() []SequenceNote {
	return *s.notes.Load()
}

// ShouldKillNote ends every note the pattern is not currently holding.
func (s *Sequencer) ShouldKillNote(note midi.ActiveNote) bool {
	return !s.sounding[note.Number&0x7f]
}

// OnTick advances the beat clock by dt and queues the note boundaries it
// crossed.
func (s *Sequencer) OnTick(dt float64) {
	if s.status.Value() == 0 {
		s.releaseAll()
		return
	}
	loop := s.length.Value()
	beat := math.Mod(s.time*s.bpm.Value()/60, loop)
	gain := s.amplitude.Instantaneous()
	notes := *s.notes.Load()
	// ends first, so a note starting where another of the same pitch ends
	// is pressed whatever the insertion order
	for _, n := range notes {
		p := n.Pitch & 0x7f
		if s.crossed(math.Mod(n.End(), loop), beat) && s.sounding[p] {
			s.sounding[p] = false
			s.HandlerBase.OnKeyReleased(midi.ActiveNote{Note: midi.Note{Number: p}})
		}
	}
	for _, n := range notes {
		p := n.Pitch & 0x7f
		if s.crossed(math.Mod(n.Start, loop), beat) && !s.sounding[p] {
			s.sounding[p] = true
			vel := uint8(math.Round(float64(n.Velocity) * gain))
			s.HandlerBase.OnKeyPressed(&midi.ActiveNote{Note: midi.Note{Number: p, Velocity: vel, Status: true}}, false)
		}
	}
	s.last = beat
	s.time += dt
}

// crossed reports whether x lies in (last, cur], wrapping at the loop end.
// The first query covers [0, cur].
func (s *Sequencer) crossed(x, cur float64) bool {
	if cur >= s.last {
		return x > s.last && x <= cur
	}
	return x > s.last || x <= cur
}

func (s *Sequencer) releaseAll() {
	for p := range s.sounding {
		if s.sounding[p] {
			s.sounding[p] = false
			s.HandlerBase.OnKeyReleased(midi.ActiveNote{Note: midi.Note{Number: uint8(p)}})
		}
	}
	s.time = 0
	s.last = -1
}

// Beat is the position of the clock within the loop.
func (s *Sequencer) Beat() float64 {
	loop := s.length.Value()
	return math.Mod(s.time*s.bpm.Value()/60, loop)
}
