package midi

import "fmt"

// MessageKind classifies a channel voice message.
type MessageKind uint8

const (
	Unknown MessageKind = iota
	NoteOff
	NoteOn
	PolyPressure
	ControlChange
	ProgramChange
	ChannelPressure
	Pitchbend
)

var kindNames = [...]string{"unknown", "note_off", "note_on", "poly_pressure", "control_change", "program_change", "channel_pressure", "pitchbend"}

func (k MessageKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("MessageKind(%d)", k)
}

// Message is a decoded channel voice message. It is small enough to pass
// through queues by value.
type Message struct {
	Kind    MessageKind
	Channel uint8
	Data1   uint8
	Data2   uint8
}

// Decode parses raw bytes from a driver. A note-on with zero velocity is
// reported as NoteOff.
func Decode(data []byte) (Message, bool) {
	if len(data) == 0 {
		return Message{}, false
	}
	m := Message{Channel: data[0] & 0x0f}
	need := 3
	switch data[0] & 0xf0 {
	case 0x80:
		m.Kind = NoteOff
	case 0x90:
		m.Kind = NoteOn
	case 0xa0:
		m.Kind = PolyPressure
	case 0xb0:
		m.Kind = ControlChange
	case 0xc0:
		m.Kind = ProgramChange
		need = 2
	case 0xd0:
		m.Kind = ChannelPressure
		need = 2
	case 0xe0:
		m.Kind = Pitchbend
	default:
		return Message{}, false
	}
	if len(data) < need {
		return Message{}, false
	}
	m.Data1 = data[1] & 0x7f
	if need == 3 {
		m.Data2 = data[2] & 0x7f
	}
	if m.Kind == NoteOn && m.Data2 == 0 {
		m.Kind = NoteOff
	}
	return m, true
}

// Pitchbend returns the 14-bit wheel value.
func (m Message) Pitchbend() uint16 {
	return uint16(m.Data2)<<7 | uint16(m.Data1)
}

// Bytes encodes m back into its wire form.
func (m Message) Bytes() []byte {
	status := m.Channel & 0x0f
	switch m.Kind {
	case NoteOff:
		return []byte{0x80 | status, m.Data1, m.Data2}
	case NoteOn:
		return []byte{0x90 | status, m.Data1, m.Data2}
	case PolyPressure:
		return []byte{0xa0 | status, m.Data1, m.Data2}
	case ControlChange:
		return []byte{0xb0 | status, m.Data1, m.Data2}
	case ProgramChange:
		return []byte{0xc0 | status, m.Data1}
	case ChannelPressure:
		return []byte{0xd0 | status, m.Data1}
	case Pitchbend:
		return []byte{0xe0 | status, m.Data1, m.Data2}
	}
	return nil
}

func NoteOnMessage(note, velocity uint8) Message {
	return Message{Kind: NoteOn, Data1: note & 0x7f, Data2: velocity & 0x7f}
}

func NoteOffMessage(note uint8) Message {
	return Message{Kind: NoteOff, Data1: note & 0x7f}
}

func PitchbendMessage(value uint16) Message {
	return Message{Kind: Pitchbend, Data1: uint8(value & 0x7f), Data2: uint8(value>>7) & 0x7f}
}
