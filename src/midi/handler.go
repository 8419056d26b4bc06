package midi

// Listener receives note events from a Handler.
type Listener interface {
	OnKeyPressed(note *ActiveNote, rePressed bool)
	OnKeyReleased(note ActiveNote)
	OnKeyOff(note ActiveNote)
	OnPitchbend(value uint16)
}

// Handler tracks active notes, queues events and forwards them to its
// listeners once per Tick.
type Handler interface {
	Listener
	HandleKeyPressed(note Note)
	HandleKeyReleased(note Note)
	HandlePitchbend(value uint16)
	Tick(dt float64)
	AddListener(l Listener)
	RemoveListener(l Listener) bool
	IsNoteActive(n uint8) bool
}

// Behavior is what a concrete handler may override. HandlerBase routes its
// own calls through the bound Behavior so overrides take effect.
type Behavior interface {
	Listener
	ShouldKillNote(note ActiveNote) bool
	OnTick(dt float64)
}

// EventType is the kind of a queued handler event.
type EventType uint8

const (
	NotePressed EventType = iota
	NoteReleased
	NoteKilled
)

type Event struct {
	Type      EventType
	Note      ActiveNote
	RePressed bool
}

type listenerEntry struct {
	l Listener
	h Handler
}

// HandlerBase implements Handler. Embed it and call Bind from the
// constructor:
//
//	f := &Fader{}
//	f.HandlerBase.Bind(f, midi.DefaultQueueSize)
type HandlerBase struct {
	self      Behavior
	queue     *Queue[Event]
	notes     [NumNotes]ActiveNote
	active    [NumNotes]uint8
	pos       [NumNotes]uint8 // index+1 in active, 0 when inactive
	count     int
	last      uint8
	listeners []listenerEntry
}

var _ Handler = (*HandlerBase)(nil)

// Bind sets the receiver of overridable calls and allocates the event queue.
func (b *HandlerBase) Bind(self Behavior, queueSize int) {
	b.self = self
	b.queue = NewQueue[Event](queueSize, DropNewest)
}

func (b *HandlerBase) behavior() Behavior {
	if b.self == nil {
		b.Bind(b, DefaultQueueSize)
	}
	return b.self
}

// ----- routing ----- //

// AddListener registers l once. Whether l is itself a Handler is decided
// here, not per event.
func (b *HandlerBase) AddListener(l Listener) {
	for _, e := range b.listeners {
		if e.l == l {
			return
		}
	}
	h, _ := l.(Handler)
	b.listeners = append(b.listeners, listenerEntry{l: l, h: h})
}

func (b *HandlerBase) RemoveListener(l Listener) bool {
	for i, e := range b.listeners {
		if e.l == l {
			b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
			return true
		}
	}
	return false
}

func (b *HandlerBase) Listeners() []Listener {
	out := make([]Listener, len(b.listeners))
	for i, e := range b.listeners {
		out[i] = e.l
	}
	return out
}

// ----- root entry points ----- //

func (b *HandlerBase) HandleKeyPressed(note Note) {
	an := ActiveNote{Note: note}
	b.behavior().OnKeyPressed(&an, b.IsNoteActive(note.Number))
}

func (b *HandlerBase) HandleKeyReleased(note Note) {
	an := b.notes[note.Number&0x7f]
	an.Note = note
	b.behavior().OnKeyReleased(an)
}

func (b *HandlerBase) HandlePitchbend(value uint16) {
	b.behavior().OnPitchbend(value)
}

// ----- default Behavior ----- //

func (b *HandlerBase) OnKeyPressed(note *ActiveNote, rePressed bool) {
	b.Push(Event{Type: NotePressed, Note: *note, RePressed: rePressed})
}

func (b *HandlerBase) OnKeyReleased(note ActiveNote) {
	note.Time = 0
	b.Push(Event{Type: NoteReleased, Note: note})
}

func (b *HandlerBase) OnKeyOff(note ActiveNote) {
	b.Push(Event{Type: NoteKilled, Note: note})
}

func (b *HandlerBase) OnPitchbend(value uint16) {
	for _, e := range b.listeners {
		if e.h != nil {
			e.h.HandlePitchbend(value)
		} else {
			e.l.OnPitchbend(value)
		}
	}
}

// ShouldKillNote ends a note as soon as it is released.
func (b *HandlerBase) ShouldKillNote(note ActiveNote) bool {
	return !note.Status
}

func (b *HandlerBase) OnTick(dt float64) {}

// ----- queue ----- //

// Push queues e. A full queue drops e.
func (b *HandlerBase) Push(e Event) bool {
	b.behavior()
	return b.queue.Push(e)
}

// Dropped counts events lost to a full queue.
func (b *HandlerBase) Dropped() uint64 {
	if b.queue == nil {
		return 0
	}
	return b.queue.Dropped()
}

// Tick drains the queue, then kills or ages every active note.
func (b *HandlerBase) Tick(dt float64) {
	self := b.behavior()
	b.ProcessEvents()
	self.OnTick(dt)
	for k := 0; k < b.count; k++ {
		an := &b.notes[b.active[k]]
		if self.ShouldKillNote(*an) {
			b.queue.Push(Event{Type: NoteKilled, Note: *an})
		} else {
			an.Time += dt
		}
	}
}

func (b *HandlerBase) ProcessEvents() {
	b.behavior()
	for {
		e, ok := b.queue.Pop()
		if !ok {
			return
		}
		n := e.Note.Number & 0x7f
		switch e.Type {
		case NotePressed:
			b.activate(e.Note)
			b.notifyKeyPressed(&b.notes[n], e.RePressed)
		case NoteReleased:
			b.notes[n] = e.Note
			b.notifyKeyReleased(e.Note)
		case NoteKilled:
			b.notifyKeyOff(e.Note)
			b.deactivate(n)
		}
	}
}

func (b *HandlerBase) notifyKeyPressed(note *ActiveNote, rePressed bool) {
	for _, e := range b.listeners {
		if e.h != nil {
			e.h.HandleKeyPressed(note.Note)
		} else {
			e.l.OnKeyPressed(note, rePressed)
		}
	}
}

func (b *HandlerBase) notifyKeyReleased(note ActiveNote) {
	for _, e := range b.listeners {
		if e.h == nil {
			e.l.OnKeyReleased(note)
		}
	}
}

func (b *HandlerBase) notifyKeyOff(note ActiveNote) {
	for _, e := range b.listeners {
		if e.h != nil {
			e.h.HandleKeyReleased(note.Note)
		} else {
			e.l.OnKeyOff(note)
		}
	}
}

// ----- active notes ----- //

func (b *HandlerBase) activate(note ActiveNote) {
	n := note.Number & 0x7f
	note.Time = 0
	b.notes[n] = note
	b.last = n
	if b.pos[n] == 0 {
		b.active[b.count] = n
		b.count++
		b.pos[n] = uint8(b.count)
	}
}

func (b *HandlerBase) deactivate(n uint8) {
	p := b.pos[n]
	if p == 0 {
		return
	}
	i := int(p) - 1
	last := b.active[b.count-1]
	b.active[i] = last
	b.pos[last] = uint8(i + 1)
	b.count--
	b.pos[n] = 0
}

func (b *HandlerBase) IsNoteActive(n uint8) bool {
	return b.pos[n&0x7f] != 0
}

// ActiveNote returns the tracked state of n.
func (b *HandlerBase) ActiveNote(n uint8) ActiveNote {
	return b.notes[n&0x7f]
}

// ActiveCount is the number of active notes.
func (b *HandlerBase) ActiveCount() int {
	return b.count
}

// ActiveNumbers lists active note numbers in activation order, except that
// deactivation swaps the last entry into the freed slot.
func (b *HandlerBase) ActiveNumbers() []uint8 {
	return append([]uint8(nil), b.active[:b.count]...)
}

// LastPressed is the most recently activated note number.
func (b *HandlerBase) LastPressed() uint8 {
	return b.last
}

// SetNoteStatus changes the status of a tracked note in place.
func (b *HandlerBase) SetNoteStatus(n uint8, status bool) {
	b.notes[n&0x7f].Status = status
}
