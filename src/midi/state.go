package midi

// State is the root of MIDI routing. Decoded device messages are dispatched
// to every root handler.
type State struct {
	handlers []Handler
	bend     uint16
}

func NewState() *State {
	return &State{bend: PitchbendCenter}
}

// AddHandler registers h once.
func (s *State) AddHandler(h Handler) {
	for _, x := range s.handlers {
		if x == h {
			return
		}
	}
	s.handlers = append(s.handlers, h)
}

func (s *State) RemoveHandler(h Handler) bool {
	for i, x := range s.handlers {
		if x == h {
			s.handlers = append(s.handlers[:i], s.handlers[i+1:]...)
			return true
		}
	}
	return false
}

func (s *State) Handlers() []Handler {
	return append([]Handler(nil), s.handlers...)
}

// Pitchbend is the last wheel value seen.
func (s *State) Pitchbend() uint16 {
	return s.bend
}

// Dispatch routes m. Messages other than notes and pitchbend are ignored.
func (s *State) Dispatch(m Message) {
	switch m.Kind {
	case NoteOn:
		n := Note{Number: m.Data1, Velocity: m.Data2, Status: true}
		for _, h := range s.handlers {
			h.HandleKeyPressed(n)
		}
	case NoteOff:
		n := Note{Number: m.Data1, Velocity: m.Data2}
		for _, h := range s.handlers {
			h.HandleKeyReleased(n)
		}
	case Pitchbend:
		s.bend = m.Pitchbend()
		for _, h := range s.handlers {
			h.HandlePitchbend(s.bend)
		}
	}
}
