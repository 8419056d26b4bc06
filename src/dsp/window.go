package dsp

import (
	"math"
)

// Hann ...
func Hann(data []float64) {
	n := len(data)
	for i := 0; i < n; i++ {
		x := float64(i) / float64(n)
		w := 0.5 - 0.5*math.Cos(2.0*math.Pi*x)
		data[i] = data[i] * w
	}
}

// Blackman ...
func Blackman(data []float64) {
	n := len(data)
	for i := 0; i < n; i++ {
		x := float64(i) / float64(n)
		w := 0.42 - 0.5*math.Cos(2.0*math.Pi*x) + 0.08*math.Cos(4.0*math.Pi*x)
		data[i] = data[i] * w
	}
}

// HannTable returns the Hann weights for n points as float32.
func HannTable(n int) []float32 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1
	}
	Hann(w)
	out := make([]float32, n)
	for i, v := range w {
		out[i] = float32(v)
	}
	return out
}
