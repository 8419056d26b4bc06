package dsp

import (
	"fmt"
	"math"
	"strings"
)

// FilterType selects a biquad response.
type FilterType uint8

const (
	LowPass FilterType = iota
	HighPass
	BandPass
	BandStop
	Peaking
	LowShelf
	HighShelf
	AllPass
	NumFilterTypes
)

var filterTypeNames = [NumFilterTypes]string{"LOWPASS", "HIGHPASS", "BANDPASS", "BANDSTOP", "PEAKING", "LOWSHELF", "HIGHSHELF", "ALLPASS"}

func (f FilterType) String() string {
	if f < NumFilterTypes {
		return filterTypeNames[f]
	}
	return fmt.Sprintf("FilterType(%d)", f)
}

func FilterTypeNames() []string {
	return append([]string(nil), filterTypeNames[:]...)
}

func ParseFilterType(s string) (FilterType, error) {
	upper := strings.ToUpper(s)
	for i, n := range filterTypeNames {
		if n == upper {
			return FilterType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown filter type %q", s)
}

// BiquadParams are the user-facing inputs of the cookbook formulas.
type BiquadParams struct {
	Type      FilterType
	Freq      float64 // Hz
	Q         float64
	Bandwidth float64 // octaves
	Shelf     float64 // slope, (0, 1]
	DBGain    float64
}

// Coefficients are normalized so that A0 is always 1.
type Coefficients struct {
	B0, B1, B2 float64
	A0, A1, A2 float64
}

// Passthrough leaves the signal untouched.
var Passthrough = Coefficients{B0: 1, A0: 1}

// NewCoefficients computes normalized coefficients for sampleRate.
func NewCoefficients(p BiquadParams, sampleRate float64) Coefficients {
	b, a := rawCoefficients(p, sampleRate)
	if a[0] == 0 || math.IsNaN(a[0]) {
		return Passthrough
	}
	return Coefficients{
		B0: b[0] / a[0], B1: b[1] / a[0], B2: b[2] / a[0],
		A0: 1, A1: a[1] / a[0], A2: a[2] / a[0],
	}
}

func rawCoefficients(p BiquadParams, sampleRate float64) ([3]float64, [3]float64) {
	fc := p.Freq / sampleRate
	if fc < 1e-5 {
		fc = 1e-5
	}
	if fc > 0.49 {
		fc = 0.49
	}
	w0 := 2 * math.Pi * fc
	q := math.Max(p.Q, 1e-3)
	switch p.Type {
	case HighPass:
		return biquadHighpass(w0, qAlpha(w0, q))
	case BandPass:
		return biquadBandpass(w0, bandwidthAlpha(w0, p.Bandwidth))
	case BandStop:
		return biquadNotch(w0, bandwidthAlpha(w0, p.Bandwidth))
	case Peaking:
		return biquadPeakingEQ(w0, qAlpha(w0, q), p.DBGain)
	case LowShelf:
		return biquadLowShelf(w0, p.Shelf, p.DBGain)
	case HighShelf:
		return biquadHighShelf(w0, p.Shelf, p.DBGain)
	case AllPass:
		return biquadAllpass(w0, qAlpha(w0, q))
	}
	return biquadLowpass(w0, qAlpha(w0, q))
}

func qAlpha(w0, q float64) float64 {
	return math.Sin(w0) / (2 * q)
}

func bandwidthAlpha(w0, bw float64) float64 {
	if bw <= 0 {
		bw = 1
	}
	return math.Sin(w0) * math.Sinh(math.Ln2/2*bw*w0/math.Sin(w0))
}

func shelfAlpha(w0, slope, A float64) float64 {
	if slope <= 0 {
		slope = 1
	}
	x := (A+1/A)*(1/slope-1) + 2
	if x < 0 {
		x = 0
	}
	return math.Sin(w0) / 2 * math.Sqrt(x)
}

func biquadLowpass(w0, alpha float64) ([3]float64, [3]float64) {
	// from RBJ's cookbook
	cos := math.Cos(w0)
	return [3]float64{(1 - cos) / 2, 1 - cos, (1 - cos) / 2},
		[3]float64{1 + alpha, -2 * cos, 1 - alpha}
}

func biquadHighpass(w0, alpha float64) ([3]float64, [3]float64) {
	// from RBJ's cookbook
	cos := math.Cos(w0)
	return [3]float64{(1 + cos) / 2, -(1 + cos), (1 + cos) / 2},
		[3]float64{1 + alpha, -2 * cos, 1 - alpha}
}

func biquadBandpass(w0, alpha float64) ([3]float64, [3]float64) {
	// from RBJ's cookbook, constant 0 dB peak gain
	cos := math.Cos(w0)
	return [3]float64{alpha, 0, -alpha},
		[3]float64{1 + alpha, -2 * cos, 1 - alpha}
}

func biquadNotch(w0, alpha float64) ([3]float64, [3]float64) {
	// from RBJ's cookbook
	cos := math.Cos(w0)
	return [3]float64{1, -2 * cos, 1},
		[3]float64{1 + alpha, -2 * cos, 1 - alpha}
}

func biquadAllpass(w0, alpha float64) ([3]float64, [3]float64) {
	// from RBJ's cookbook
	cos := math.Cos(w0)
	return [3]float64{1 - alpha, -2 * cos, 1 + alpha},
		[3]float64{1 + alpha, -2 * cos, 1 - alpha}
}

func biquadPeakingEQ(w0, alpha, dBgain float64) ([3]float64, [3]float64) {
	// from RBJ's cookbook
	A := math.Pow(10, dBgain/40)
	cos := math.Cos(w0)
	return [3]float64{1 + alpha*A, -2 * cos, 1 - alpha*A},
		[3]float64{1 + alpha/A, -2 * cos, 1 - alpha/A}
}

func biquadLowShelf(w0, slope, dBgain float64) ([3]float64, [3]float64) {
	// from RBJ's cookbook
	A := math.Pow(10, dBgain/40)
	alpha := shelfAlpha(w0, slope, A)
	cos := math.Cos(w0)
	sq := 2 * math.Sqrt(A) * alpha
	var b, a [3]float64
	b[0] = A * ((A + 1) - (A-1)*cos + sq)
	b[1] = 2 * A * ((A - 1) - (A+1)*cos)
	b[2] = A * ((A + 1) - (A-1)*cos - sq)
	a[0] = (A + 1) + (A-1)*cos + sq
	a[1] = -2 * ((A - 1) + (A+1)*cos)
	a[2] = (A + 1) + (A-1)*cos - sq
	return b, a
}

func biquadHighShelf(w0, slope, dBgain float64) ([3]float64, [3]float64) {
	// from RBJ's cookbook
	A := math.Pow(10, dBgain/40)
	alpha := shelfAlpha(w0, slope, A)
	cos := math.Cos(w0)
	sq := 2 * math.Sqrt(A) * alpha
	var b, a [3]float64
	b[0] = A * ((A + 1) + (A-1)*cos + sq)
	b[1] = -2 * A * ((A - 1) + (A+1)*cos)
	b[2] = A * ((A + 1) + (A-1)*cos - sq)
	a[0] = (A + 1) - (A-1)*cos + sq
	a[1] = 2 * ((A - 1) - (A+1)*cos)
	a[2] = (A + 1) - (A-1)*cos - sq
	return b, a
}

// Step runs one sample through the transposed direct form II recurrence.
// z holds the two state variables and may live outside the filter.
func (c *Coefficients) Step(x float64, z *[2]float64) float64 {
	y := c.B0*x + z[0]
	z[0] = c.B1*x - c.A1*y + z[1]
	z[1] = c.B2*x - c.A2*y
	return y
}

// ImpulseResponse feeds a unit impulse through c.
func ImpulseResponse(c Coefficients, n int) []float64 {
	out := make([]float64, n)
	var z [2]float64
	for i := range out {
		x := 0.0
		if i == 0 {
			x = 1
		}
		out[i] = c.Step(x, &z)
	}
	return out
}

// FrequencyResponse returns the magnitude of the first size/2 bins.
func FrequencyResponse(c Coefficients, size int) []float64 {
	h := ImpulseResponse(c, size)
	NewFFT(size, false).CalcAbs(h)
	return h[:size/2]
}
