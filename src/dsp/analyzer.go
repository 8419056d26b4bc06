package dsp

import (
	"context"
	"math"
	"sync"
	"sync/atomic"

	"github.com/viterin/vek/vek32"
)

const magnitudeFloor = 1e-10

// Analyzer turns rendered blocks into a dB spectrum and an RMS level.
// Frames are Hann windowed and overlap by half.
//
// Feed is called by the render goroutine and never blocks. Blocks move to
// Run through a pair of bounded channels; when Run lags, the newest block is
// dropped and counted.
type Analyzer struct {
	size    int
	hop     int
	fft     *FFT
	window  []float32
	free    chan []float32
	full    chan []float32
	dropped atomic.Uint64

	// owned by Run
	frame   []float32
	pending int
	tmp     []float32
	cx      []float64

	mu       sync.Mutex
	spectrum []float32
	level    float32
}

// NewAnalyzer creates an analyzer with FFT size (a power of two), room for
// blocks queued blocks of at most blockSize samples.
func NewAnalyzer(size, blocks, blockSize int) *Analyzer {
	if blocks < 1 {
		blocks = 1
	}
	a := &Analyzer{
		size:     size,
		hop:      size / 2,
		fft:      NewFFT(size, false),
		window:   HannTable(size),
		free:     make(chan []float32, blocks),
		full:     make(chan []float32, blocks),
		frame:    make([]float32, size),
		tmp:      make([]float32, size),
		cx:       make([]float64, size),
		spectrum: make([]float32, size/2),
	}
	for i := 0; i < blocks; i++ {
		a.free <- make([]float32, 0, blockSize)
	}
	for i := range a.spectrum {
		a.spectrum[i] = 20 * float32(math.Log10(magnitudeFloor))
	}
	return a
}

func (a *Analyzer) Size() int { return a.size }

// Feed copies samples into a free block and queues it.
func (a *Analyzer) Feed(samples []float64) bool {
	var block []float32
	select {
	case block = <-a.free:
	default:
		a.dropped.Add(1)
		return false
	}
	n := len(samples)
	if n > cap(block) {
		n = cap(block)
	}
	block = block[:n]
	for i := 0; i < n; i++ {
		block[i] = float32(samples[i])
	}
	a.full <- block
	return true
}

// Dropped counts blocks Feed could not queue.
func (a *Analyzer) Dropped() uint64 {
	return a.dropped.Load()
}

// Run consumes queued blocks until ctx is done.
func (a *Analyzer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case block := <-a.full:
			a.consume(block)
			a.free <- block[:0]
		}
	}
}

func (a *Analyzer) consume(block []float32) {
	if len(block) >= a.size {
		copy(a.frame, block[len(block)-a.size:])
	} else {
		copy(a.frame, a.frame[len(block):])
		copy(a.frame[a.size-len(block):], block)
	}
	a.pending += len(block)
	if a.pending >= a.hop {
		a.pending = 0
		a.analyze()
	}
}

func (a *Analyzer) analyze() {
	vek32.Mul_Into(a.tmp, a.frame, a.frame)
	level := float32(math.Sqrt(float64(vek32.Mean(a.tmp))))

	vek32.Mul_Into(a.tmp, a.frame, a.window)
	for i, v := range a.tmp {
		a.cx[i] = float64(v)
	}
	a.fft.CalcAbs(a.cx)
	half := a.size / 2
	mags := a.tmp[:half]
	norm := 2 / float64(a.size)
	for i := range mags {
		m := a.cx[i] * norm
		if m < magnitudeFloor || m != m {
			m = magnitudeFloor
		}
		mags[i] = float32(m)
	}
	vek32.Log10_Inplace(mags)
	vek32.MulNumber_Inplace(mags, 20)

	a.mu.Lock()
	copy(a.spectrum, mags)
	a.level = level
	a.mu.Unlock()
}

// Spectrum returns a copy of the latest dB magnitudes, size/2 bins.
func (a *Analyzer) Spectrum() []float32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]float32(nil), a.spectrum...)
}

// Level is the RMS of the latest frame.
func (a *Analyzer) Level() float32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.level
}
