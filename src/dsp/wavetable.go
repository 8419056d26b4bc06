package dsp

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"math/rand"
	"strings"
)

// Waveform selects one of the oscillator tables.
type Waveform uint8

const (
	Sine Waveform = iota
	Square
	Triangle
	Saw
	Noise
	NumWaveforms
)

var waveformNames = [NumWaveforms]string{"SINE", "SQUARE", "TRIANGLE", "SAW", "NOISE"}

func (w Waveform) String() string {
	if w < NumWaveforms {
		return waveformNames[w]
	}
	return fmt.Sprintf("Waveform(%d)", w)
}

// WaveformNames lists waveform names in enum order.
func WaveformNames() []string {
	return append([]string(nil), waveformNames[:]...)
}

func ParseWaveform(s string) (Waveform, error) {
	upper := strings.ToUpper(s)
	for i, n := range waveformNames {
		if n == upper {
			return Waveform(i), nil
		}
	}
	return 0, fmt.Errorf("unknown waveform %q", s)
}

// Wavetable is one cycle of a waveform.
type Wavetable struct {
	values []float64
}

func newWavetable(samples int) *Wavetable {
	return &Wavetable{values: make([]float64, samples)}
}

func (wt *Wavetable) generate(phaseToValue func(phase float64) float64) {
	n := len(wt.values)
	for i := 0; i < n; i++ {
		wt.values[i] = phaseToValue(float64(i) / float64(n))
	}
}

func (wt *Wavetable) Len() int { return len(wt.values) }

// At reads the table at phase in [0, 1) with linear interpolation.
func (wt *Wavetable) At(phase float64) float64 {
	length := len(wt.values)
	pos := phase * float64(length)
	if pos < 0 || pos >= float64(length) {
		pos = math.Mod(pos, float64(length))
		if pos < 0 {
			pos += float64(length)
		}
	}
	index := int(pos)
	nextIndex := index + 1
	if nextIndex >= length {
		nextIndex = 0
	}
	frac := pos - float64(index)
	return wt.values[index]*(1-frac) + wt.values[nextIndex]*frac
}

// Index reads a raw entry, wrapping i into range.
func (wt *Wavetable) Index(i int) float64 {
	return wt.values[i&(len(wt.values)-1)]
}

// Wavetables holds one table per Waveform, all of the same size.
type Wavetables struct {
	tables [NumWaveforms]*Wavetable
}

// NewWavetables builds every table. size must be a power of two.
func NewWavetables(size int, seed int64) (*Wavetables, error) {
	if size < 4 || size&(size-1) != 0 {
		return nil, fmt.Errorf("wavetable size should be a power of two: %d", size)
	}
	wts := &Wavetables{}
	for i := range wts.tables {
		wts.tables[i] = newWavetable(size)
	}
	dt := 1.0 / float64(size)
	wts.tables[Sine].generate(func(phase float64) float64 {
		return math.Sin(2 * math.Pi * phase)
	})
	wts.tables[Square].generate(func(phase float64) float64 {
		v := -1.0
		if phase < 0.5 {
			v = 1.0
		}
		v += polyBlep(phase, dt)
		v -= polyBlep(math.Mod(phase+0.5, 1), dt)
		return v
	})
	square := wts.tables[Square].values
	integral := -1.0
	for i := range wts.tables[Triangle].values {
		integral += square[i] * dt * 4
		wts.tables[Triangle].values[i] = integral
	}
	wts.tables[Saw].generate(func(phase float64) float64 {
		return -1 + 2*phase - polyBlep(phase, dt)
	})
	r := rand.New(rand.NewSource(seed))
	wts.tables[Noise].generate(func(float64) float64 {
		return r.Float64()*2 - 1
	})
	return wts, nil
}

func polyBlep(t, dt float64) float64 {
	if t < dt {
		t /= dt
		return t + t - t*t - 1
	}
	if t > 1-dt {
		t = (t - 1) / dt
		return t*t + t + t + 1
	}
	return 0
}

// Get returns the table for w, falling back to sine for unknown values.
func (wts *Wavetables) Get(w Waveform) *Wavetable {
	if w >= NumWaveforms {
		return wts.tables[Sine]
	}
	return wts.tables[w]
}

// IO
//   all = { number_of_tables int32, tables []table }
//   table = { number_of_samples int32, samples []float64 }

// Save writes every table big-endian.
func (wts *Wavetables) Save(w io.Writer) error {
	if err := binary.Write(w, binary.BigEndian, int32(len(wts.tables))); err != nil {
		return err
	}
	for _, wt := range wts.tables {
		if err := binary.Write(w, binary.BigEndian, int32(len(wt.values))); err != nil {
			return err
		}
		if err := binary.Write(w, binary.BigEndian, wt.values); err != nil {
			return err
		}
	}
	return nil
}

// LoadWavetables reads tables written by Save.
func LoadWavetables(r io.Reader) (*Wavetables, error) {
	var numTables int32
	if err := binary.Read(r, binary.BigEndian, &numTables); err != nil {
		return nil, err
	}
	if numTables != int32(NumWaveforms) {
		return nil, fmt.Errorf("expected %d tables, got %d", NumWaveforms, numTables)
	}
	wts := &Wavetables{}
	for i := range wts.tables {
		var numSamples int32
		if err := binary.Read(r, binary.BigEndian, &numSamples); err != nil {
			return nil, err
		}
		if numSamples < 4 || numSamples&(numSamples-1) != 0 || numSamples > 1<<20 {
			return nil, fmt.Errorf("invalid table size %d", numSamples)
		}
		wts.tables[i] = newWavetable(int(numSamples))
		if err := binary.Read(r, binary.BigEndian, wts.tables[i].values); err != nil {
			return nil, err
		}
	}
	return wts, nil
}

// ----- detune ----- //

const maxDetuneCents = 1250

var detuneTable = func() [2*maxDetuneCents + 1]float64 {
	var t [2*maxDetuneCents + 1]float64
	for i := range t {
		t[i] = math.Exp2(float64(i-maxDetuneCents) / 1200)
	}
	return t
}()

// DetuneScale is the frequency ratio for a shift in cents, clamped to
// +-1250 and interpolated between whole cents.
func DetuneScale(cents float64) float64 {
	if cents <= -maxDetuneCents {
		return detuneTable[0]
	}
	if cents >= maxDetuneCents {
		return detuneTable[len(detuneTable)-1]
	}
	pos := cents + maxDetuneCents
	i := int(pos)
	frac := pos - float64(i)
	return detuneTable[i]*(1-frac) + detuneTable[i+1]*frac
}
