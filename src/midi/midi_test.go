package midi

import (
	"fmt"
	"math"
	"testing"
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

type recorder struct {
	events []string
}

func (r *recorder) OnKeyPressed(note *ActiveNote, rePressed bool) {
	r.events = append(r.events, fmt.Sprintf("press %d %v", note.Number, rePressed))
}
func (r *recorder) OnKeyReleased(note ActiveNote) {
	r.events = append(r.events, fmt.Sprintf("release %d", note.Number))
}
func (r *recorder) OnKeyOff(note ActiveNote) {
	r.events = append(r.events, fmt.Sprintf("off %d", note.Number))
}
func (r *recorder) OnPitchbend(value uint16) {
	r.events = append(r.events, fmt.Sprintf("bend %d", value))
}

func expectEvents(t *testing.T, r *recorder, expected ...string) {
	t.Helper()
	if len(r.events) != len(expected) {
		t.Fatalf("expected %v, but got: %v", expected, r.events)
	}
	for i := range expected {
		expectEqual(t, r.events[i], expected[i])
	}
	r.events = nil
}

func TestFrequencyTable(t *testing.T) {
	expectNearlyEqual(t, Frequency(69), 440)
	expectNearlyEqual(t, Frequency(81), 880)
	expectNearlyEqual(t, Note{Number: 60}.Frequency(), 261.6255653)
}

func TestPitchbendTable(t *testing.T) {
	table := NewPitchbendTable(2)
	expectNearlyEqual(t, table.Scale(PitchbendCenter), 1)
	expectEqual(t, table.Scale(16383) > 1.12, true)
	expectEqual(t, table.Scale(0) < 0.9, true)
	expectEqual(t, table.Scale(60000), table.Scale(16383))
}

func TestDecode(t *testing.T) {
	tests := []struct {
		data []byte
		ok   bool
		kind MessageKind
	}{
		{[]byte{0x90, 60, 100}, true, NoteOn},
		{[]byte{0x91, 60, 0}, true, NoteOff},
		{[]byte{0x80, 60, 64}, true, NoteOff},
		{[]byte{0xb0, 1, 127}, true, ControlChange},
		{[]byte{0xc0, 5}, true, ProgramChange},
		{[]byte{0xe0, 0, 64}, true, Pitchbend},
		{[]byte{0x90, 60}, false, Unknown},
		{[]byte{0xf8}, false, Unknown},
		{nil, false, Unknown},
	}
	for _, tc := range tests {
		m, ok := Decode(tc.data)
		expectEqual(t, ok, tc.ok)
		expectEqual(t, m.Kind, tc.kind)
	}
	m, _ := Decode([]byte{0xe3, 0x00, 0x40})
	expectEqual(t, m.Channel, uint8(3))
	expectEqual(t, m.Pitchbend(), uint16(PitchbendCenter))

	back, ok := Decode(PitchbendMessage(1234).Bytes())
	expectEqual(t, ok, true)
	expectEqual(t, back.Pitchbend(), uint16(1234))
}

func TestQueueOverflowPolicies(t *testing.T) {
	newest := NewQueue[int](2, DropNewest)
	expectEqual(t, newest.Push(1), true)
	expectEqual(t, newest.Push(2), true)
	expectEqual(t, newest.Push(3), false)
	expectEqual(t, newest.Dropped(), uint64(1))
	v, _ := newest.Pop()
	expectEqual(t, v, 1)
	v, _ = newest.Pop()
	expectEqual(t, v, 2)
	_, ok := newest.Pop()
	expectEqual(t, ok, false)

	oldest := NewQueue[int](2, DropOldest)
	oldest.Push(1)
	oldest.Push(2)
	expectEqual(t, oldest.Push(3), true)
	expectEqual(t, oldest.Dropped(), uint64(1))
	v, _ = oldest.Pop()
	expectEqual(t, v, 2)
	v, _ = oldest.Pop()
	expectEqual(t, v, 3)
}

func TestHandlerPressReleaseOff(t *testing.T) {
	h := &HandlerBase{}
	r := &recorder{}
	h.AddListener(r)
	h.AddListener(r)

	h.HandleKeyPressed(Note{Number: 60, Velocity: 100, Status: true})
	expectEvents(t, r)
	h.Tick(0.001)
	expectEvents(t, r, "press 60 false")
	expectEqual(t, h.IsNoteActive(60), true)

	h.HandleKeyPressed(Note{Number: 60, Velocity: 90, Status: true})
	h.Tick(0.001)
	expectEvents(t, r, "press 60 true")
	expectEqual(t, h.ActiveCount(), 1)

	h.HandleKeyReleased(Note{Number: 60})
	h.Tick(0.001)
	// released this tick, killed by the default policy in the same tick,
	// delivered as off on the next one
	expectEvents(t, r, "release 60")
	h.Tick(0.001)
	expectEvents(t, r, "off 60")
	expectEqual(t, h.IsNoteActive(60), false)
}

func TestHandlerChainSemantics(t *testing.T) {
	root := &HandlerBase{}
	inner := &HandlerBase{}
	end := &recorder{}
	root.AddListener(inner)
	inner.AddListener(end)

	root.HandleKeyPressed(Note{Number: 64, Velocity: 1, Status: true})
	root.Tick(0.01)
	inner.Tick(0.01)
	expectEvents(t, end, "press 64 false")

	root.HandleKeyReleased(Note{Number: 64})
	root.Tick(0.01)
	// inner handlers do not see a plain release
	inner.Tick(0.01)
	expectEvents(t, end)
	expectEqual(t, inner.IsNoteActive(64), true)

	// root kills the note; inner receives it as a release
	root.Tick(0.01)
	expectEqual(t, root.IsNoteActive(64), false)
	inner.Tick(0.01)
	expectEvents(t, end, "release 64")
	inner.Tick(0.01)
	expectEvents(t, end, "off 64")
}

type slowKill struct {
	HandlerBase
	release float64
}

func (s *slowKill) ShouldKillNote(note ActiveNote) bool {
	return !note.Status && note.Time > s.release
}

func TestShouldKillNoteOverride(t *testing.T) {
	s := &slowKill{release: 0.05}
	s.HandlerBase.Bind(s, DefaultQueueSize)
	r := &recorder{}
	s.AddListener(r)
	s.HandleKeyPressed(Note{Number: 10, Status: true})
	s.Tick(0.01)
	s.HandleKeyReleased(Note{Number: 10})
	ticks := 0
	for s.IsNoteActive(10) && ticks < 100 {
		s.Tick(0.01)
		ticks++
	}
	expectEqual(t, ticks > 5, true)
	expectEqual(t, r.events[len(r.events)-1], "off 10")
}

func TestNoteTimeAdvances(t *testing.T) {
	h := &HandlerBase{}
	h.HandleKeyPressed(Note{Number: 1, Status: true})
	h.Tick(0.5)
	h.Tick(0.5)
	expectNearlyEqual(t, h.ActiveNote(1).Time, 1.0)
}

func TestHandlerQueueOverflow(t *testing.T) {
	h := &HandlerBase{}
	h.Bind(h, 4)
	for i := 0; i < 6; i++ {
		h.HandleKeyPressed(Note{Number: uint8(i), Status: true})
	}
	expectEqual(t, h.Dropped(), uint64(2))
	h.Tick(0)
	expectEqual(t, h.ActiveCount(), 4)
}

func TestDeactivateSwapRemove(t *testing.T) {
	h := &HandlerBase{}
	for _, n := range []uint8{10, 20, 30} {
		h.HandleKeyPressed(Note{Number: n, Status: true})
	}
	h.Tick(0)
	h.HandleKeyReleased(Note{Number: 10})
	h.Tick(0)
	h.Tick(0)
	active := h.ActiveNumbers()
	expectEqual(t, len(active), 2)
	expectEqual(t, active[0], uint8(30))
	expectEqual(t, active[1], uint8(20))
	expectEqual(t, h.IsNoteActive(20), true)
	expectEqual(t, h.IsNoteActive(30), true)
}

func TestStateDispatch(t *testing.T) {
	s := NewState()
	h := &HandlerBase{}
	r := &recorder{}
	h.AddListener(r)
	s.AddHandler(h)
	s.AddHandler(h)
	expectEqual(t, len(s.Handlers()), 1)

	m, _ := Decode([]byte{0x90, 72, 80})
	s.Dispatch(m)
	s.Dispatch(PitchbendMessage(9000))
	h.Tick(0)
	expectEvents(t, r, "bend 9000", "press 72 false")
	expectEqual(t, s.Pitchbend(), uint16(9000))

	s.Dispatch(NoteOffMessage(72))
	h.Tick(0)
	expectEvents(t, r, "release 72")
	expectEqual(t, s.RemoveHandler(h), true)
}
