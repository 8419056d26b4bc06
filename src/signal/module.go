// Package signal defines audio-rate modules and the order they render in.
package signal

import "errors"

var (
	ErrSelfInput = errors.New("a module cannot be its own input")
	ErrCycle     = errors.New("signal graph has a cycle")
)

// Module produces one sample per Tick/CalculateSample pair.
type Module interface {
	// Tick advances phase and the buffer index.
	Tick()
	// CalculateSample writes the sample at the current index.
	CalculateSample()
	CurrentSample() float64
	ClearBuffer()
	// IsGenerative modules accumulate into their buffer and need it zeroed
	// at the start of every block.
	IsGenerative() bool
	Inputs() []Module
	AddInput(m Module) error
	RemoveInput(m Module) bool
}

// Base is a ring-indexed output buffer plus an input list. Concrete modules
// embed it and implement CalculateSample.
type Base struct {
	buffer []float64
	index  int
	inputs []Module
	self   Module
}

// Init sizes the buffer. self is the embedding module, used to reject self
// inputs.
func (b *Base) Init(self Module, size int) {
	if size <= 0 {
		size = 1
	}
	b.self = self
	b.buffer = make([]float64, size)
	b.index = size - 1
	b.inputs = make([]Module, 0, 16)
}

func (b *Base) Tick() {
	b.index++
	if b.index >= len(b.buffer) {
		b.index = 0
	}
}

func (b *Base) CurrentSample() float64 { return b.buffer[b.index] }

// SetSample writes the sample at the current index.
func (b *Base) SetSample(v float64) { b.buffer[b.index] = v }

// AddSample accumulates into the sample at the current index.
func (b *Base) AddSample(v float64) { b.buffer[b.index] += v }

func (b *Base) ClearBuffer() {
	for i := range b.buffer {
		b.buffer[i] = 0
	}
}

func (b *Base) IsGenerative() bool { return false }

func (b *Base) BufferIndex() int { return b.index }

// SetBufferIndex keeps a voice aligned with its parent.
func (b *Base) SetBufferIndex(i int) {
	if i >= 0 && i < len(b.buffer) {
		b.index = i
	}
}

func (b *Base) BufferSize() int { return len(b.buffer) }

func (b *Base) Inputs() []Module { return b.inputs }

func (b *Base) AddInput(m Module) error {
	if m == nil {
		return errors.New("nil input")
	}
	if m == b.self {
		return ErrSelfInput
	}
	for _, x := range b.inputs {
		if x == m {
			return nil
		}
	}
	b.inputs = append(b.inputs, m)
	return nil
}

func (b *Base) RemoveInput(m Module) bool {
	for i, x := range b.inputs {
		if x == m {
			b.inputs = append(b.inputs[:i], b.inputs[i+1:]...)
			return true
		}
	}
	return false
}

// SumInputs adds the current samples of every input.
func (b *Base) SumInputs() float64 {
	sum := 0.0
	for _, m := range b.inputs {
		sum += m.CurrentSample()
	}
	return sum
}
