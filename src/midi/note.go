package midi

import "math"

// NumNotes is the size of the MIDI note space.
const NumNotes = 128

// Note is a key event as it arrives from a device or another handler.
type Note struct {
	Number   uint8
	Velocity uint8
	Status   bool
}

// ActiveNote is a Note tracked by a handler, with the time in seconds since
// its last transition.
type ActiveNote struct {
	Note
	Time float64
}

func (n Note) Frequency() float64 {
	return frequencies[n.Number&0x7f]
}

// Gain maps velocity to [0, 1].
func (n Note) Gain() float64 {
	return float64(n.Velocity) / 127
}

var frequencies = func() [NumNotes]float64 {
	var t [NumNotes]float64
	for i := range t {
		t[i] = 440 * math.Pow(2, float64(i-69)/12)
	}
	return t
}()

// Frequency returns the equal-tempered frequency of note n (A4 = 440Hz).
func Frequency(n uint8) float64 {
	return frequencies[n&0x7f]
}

// PitchbendCenter is the 14-bit value of an untouched wheel.
const PitchbendCenter = 8192

const pitchbendSteps = 16384

// PitchbendTable maps a 14-bit pitchbend value to a frequency ratio.
type PitchbendTable [pitchbendSteps]float64

// NewPitchbendTable spans +-semitones over the wheel range.
func NewPitchbendTable(semitones float64) *PitchbendTable {
	var t PitchbendTable
	for i := range t {
		shift := float64(i-PitchbendCenter) / (pitchbendSteps - 1) * semitones * 2
		t[i] = math.Exp2(shift / 12)
	}
	return &t
}

func (t *PitchbendTable) Scale(value uint16) float64 {
	if int(value) >= pitchbendSteps {
		value = pitchbendSteps - 1
	}
	return t[value]
}
