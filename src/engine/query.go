package engine

import (
	"errors"
	"fmt"

	"github.com/jinjor/desktop-synth/src/component"
	"github.com/jinjor/desktop-synth/src/dsp"
	"github.com/jinjor/desktop-synth/src/midi"
)

var ErrNotSupported = errors.New("operation not supported by component")

// DeviceLister is implemented by drivers that can enumerate their ports.
type DeviceLister interface {
	Devices() ([]string, error)
}

// Devices collects the port names of every driver that can list them.
func (e *Engine) Devices() ([]string, error) {
	var out []string
	for _, d := range e.drivers {
		l, ok := d.(DeviceLister)
		if !ok {
			continue
		}
		names, err := l.Devices()
		if err != nil {
			return nil, err
		}
		out = append(out, names...)
	}
	return out, nil
}

func (e *Engine) Waveforms() []string { return dsp.WaveformNames() }

func (e *Engine) FilterTypes() []string { return dsp.FilterTypeNames() }

func (e *Engine) Descriptors() []component.Descriptor { return component.Descriptors() }

// filterResponseSize is the impulse length behind FilterResponse.
const filterResponseSize = 2048

// FilterResponse is the magnitude response of a biquad filter at its base
// settings, filterResponseSize/2 bins from DC to Nyquist.
func (e *Engine) FilterResponse(id component.ID) ([]float64, error) {
	c, err := e.Component(id)
	if err != nil {
		return nil, err
	}
	f, ok := c.(*component.BiquadFilter)
	if !ok {
		return nil, fmt.Errorf("%w: %v is a %v", ErrNotSupported, id, c.Type())
	}
	coeffs := dsp.NewCoefficients(f.BiquadParams(false), e.env.SampleRate)
	return dsp.FrequencyResponse(coeffs, filterResponseSize), nil
}

// ----- Sequencer ----- //

func (e *Engine) sequencer(id component.ID) (*component.Sequencer, error) {
	c, err := e.Component(id)
	if err != nil {
		return nil, err
	}
	s, ok := c.(*component.Sequencer)
	if !ok {
		return nil, fmt.Errorf("%w: %v is a %v", ErrNotSupported, id, c.Type())
	}
	return s, nil
}

func (e *Engine) AddSequenceNote(id component.ID, n component.SequenceNote) error {
	s, err := e.sequencer(id)
	if err != nil {
		return err
	}
	return s.AddNote(n)
}

func (e *Engine) RemoveSequenceNote(id component.ID, n component.SequenceNote) error {
	s, err := e.sequencer(id)
	if err != nil {
		return err
	}
	return s.RemoveNote(n)
}

func (e *Engine) ClearSequence(id component.ID) error {
	s, err := e.sequencer(id)
	if err != nil {
		return err
	}
	s.Clear()
	return nil
}

func (e *Engine) SequenceNotes(id component.ID) ([]component.SequenceNote, error) {
	s, err := e.sequencer(id)
	if err != nil {
		return nil, err
	}
	return append([]component.SequenceNote(nil), s.Notes()...), nil
}

// ----- analysis ----- //

// Spectrum is nil when analysis is disabled.
func (e *Engine) Spectrum() []float32 {
	if e.analyzer == nil {
		return nil
	}
	return e.analyzer.Spectrum()
}

func (e *Engine) Level() float32 {
	if e.analyzer == nil {
		return 0
	}
	return e.analyzer.Level()
}

// ----- notes ----- //

// NoteOn queues a note as if it came from the device.
func (e *Engine) NoteOn(note, velocity uint8) bool {
	return e.midiIn.Push(midi.NoteOnMessage(note, velocity))
}

func (e *Engine) NoteOff(note uint8) bool {
	return e.midiIn.Push(midi.NoteOffMessage(note))
}
