package dsp

import (
	"bytes"
	"math"
	"testing"
)

func TestDelayIntegerRead(t *testing.T) {
	d := NewDelayBuffer(16)
	for i := 1; i <= 10; i++ {
		d.Write(float64(i))
	}
	expectNearlyEqual(t, d.Read(0), 10)
	expectNearlyEqual(t, d.Read(1), 9)
	expectNearlyEqual(t, d.Read(4), 6)
	// linear data is reproduced exactly by the cubic
	expectNearlyEqual(t, d.Read(2.5), 7.5)
	expectNearlyEqual(t, d.Read(-3), 10)
	expectNearlyEqual(t, d.Read(1000), d.Read(d.MaxDelay()))
}

func TestDelayWrapsAround(t *testing.T) {
	d := NewDelayBuffer(4)
	for i := 1; i <= 9; i++ {
		d.Write(float64(i))
	}
	expectNearlyEqual(t, d.Read(0), 9)
	expectNearlyEqual(t, d.Read(1), 8)
	d.Clear()
	expectNearlyEqual(t, d.Read(0), 0)
}

func TestDelaySubSampleReadIgnoresOldest(t *testing.T) {
	d := NewDelayBuffer(8)
	d.Write(100)
	for i := 1; i <= 7; i++ {
		d.Write(float64(i))
	}
	// the next write slot still holds 100
	expectNearlyEqual(t, d.Read(0.5), 6.5)
	expectNearlyEqual(t, d.Read(0.25), 6.75)
	expectNearlyEqual(t, d.Read(1.5), 5.5)
}

func TestWavetables(t *testing.T) {
	wts, err := NewWavetables(1024, 1)
	expectEqual(t, err, nil)
	expectNearlyEqual(t, wts.Get(Sine).At(0.25), 1)
	expectNearlyEqual(t, wts.Get(Sine).At(0.75), -1)
	expectNearlyEqual(t, wts.Get(Sine).At(1.25), 1)
	expectNearlyEqual(t, wts.Get(Square).At(0.25), 1)
	expectNearlyEqual(t, wts.Get(Square).At(0.75), -1)
	expectNearlyEqual(t, wts.Get(Saw).At(0.5), 0)
	expectEqual(t, wts.Get(Waveform(99)), wts.Get(Sine))
	for w := Waveform(0); w < NumWaveforms; w++ {
		t.Run(w.String(), func(t *testing.T) {
			wt := wts.Get(w)
			for i := 0; i < wt.Len(); i++ {
				if v := wt.Index(i); math.Abs(v) > 1.01 {
					t.Errorf("value out of range at %d: %v", i, v)
				}
			}
		})
	}

	_, err = NewWavetables(1000, 1)
	expectEqual(t, err != nil, true)
}

func TestWavetablesSaveLoad(t *testing.T) {
	wts, _ := NewWavetables(64, 7)
	var buf bytes.Buffer
	expectEqual(t, wts.Save(&buf), nil)
	loaded, err := LoadWavetables(&buf)
	expectEqual(t, err, nil)
	expectEqual(t, loaded.Get(Noise).Index(5), wts.Get(Noise).Index(5))
}

func TestDetuneScale(t *testing.T) {
	expectNearlyEqual(t, DetuneScale(0), 1)
	expectNearlyEqual(t, DetuneScale(1200), 2)
	expectNearlyEqual(t, DetuneScale(-1200), 0.5)
	expectNearlyEqual(t, DetuneScale(50.5), math.Exp2(50.5/1200))
	expectEqual(t, DetuneScale(5000), DetuneScale(1250))
}

func TestAnalyzerDropsWhenFull(t *testing.T) {
	a := NewAnalyzer(64, 2, 32)
	block := make([]float64, 32)
	expectEqual(t, a.Feed(block), true)
	expectEqual(t, a.Feed(block), true)
	expectEqual(t, a.Feed(block), false)
	expectEqual(t, a.Dropped(), uint64(1))
}

func TestAnalyzerFindsPeak(t *testing.T) {
	size := 256
	a := NewAnalyzer(size, 1, size)
	block := make([]float32, size)
	bin := 16
	for i := range block {
		block[i] = float32(math.Sin(2 * math.Pi * float64(bin) * float64(i) / float64(size)))
	}
	a.consume(block)
	spec := a.Spectrum()
	expectEqual(t, len(spec), size/2)
	peak := 0
	for i := range spec {
		if spec[i] > spec[peak] {
			peak = i
		}
	}
	expectEqual(t, peak, bin)
	expectNearlyEqual(t, float64(a.Level()), math.Sqrt(0.5))
}
