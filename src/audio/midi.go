package audio

import (
	"context"
	"fmt"
	"log"

	"gitlab.com/gomidi/midi"
	"gitlab.com/gomidi/rtmididrv"

	"github.com/jinjor/desktop-synth/src/engine"
)

// ----- MidiInput ----- //

// MidiInput forwards raw messages of one input port to Engine.PushMidi.
// Having no port at all is not an error.
type MidiInput struct {
	Port int
	open func() (midi.Driver, error)
}

func NewMidiInput(port int) *MidiInput {
	return &MidiInput{Port: port, open: openRtmidi}
}

func openRtmidi() (midi.Driver, error) {
	return rtmididrv.New()
}

func (m *MidiInput) Devices() ([]string, error) {
	drv, err := m.open()
	if err != nil {
		return nil, err
	}
	defer closeDriver(drv)
	return MidiDevices(drv)
}

// MidiDevices lists input and output ports of drv.
func MidiDevices(drv midi.Driver) ([]string, error) {
	ins, err := drv.Ins()
	if err != nil {
		return nil, err
	}
	outs, err := drv.Outs()
	if err != nil {
		return nil, err
	}
	var names []string
	for _, in := range ins {
		names = append(names, fmt.Sprintf("midi_in %d: %s", in.Number(), in.String()))
	}
	for _, out := range outs {
		names = append(names, fmt.Sprintf("midi_out %d: %s", out.Number(), out.String()))
	}
	return names, nil
}

func closeDriver(drv midi.Driver) {
	if err := drv.Close(); err != nil {
		log.Printf("failed to close MIDI driver: %v\n", err)
	}
}

// selectIn picks the port numbered port, or the first one.
func selectIn(ins []midi.In, port int) (midi.In, bool) {
	for _, in := range ins {
		if in.Number() == port {
			return in, true
		}
	}
	if len(ins) > 0 {
		log.Printf("WARN: MIDI IN %d not found, using %s\n", port, ins[0].String())
		return ins[0], true
	}
	return nil, false
}

// Run listens until ctx is done.
func (m *MidiInput) Run(ctx context.Context, e *engine.Engine) error {
	drv, err := m.open()
	if err != nil {
		log.Printf("failed to initialize MIDI driver: %v\n", err)
		<-ctx.Done()
		return nil
	}
	defer closeDriver(drv)
	ins, err := drv.Ins()
	if err != nil {
		return fmt.Errorf("failed to get MIDI IN: %w", err)
	}
	log.Printf("MIDI IN: %v\n", ins)
	in, ok := selectIn(ins, m.Port)
	if !ok {
		log.Println("WARN: MIDI IN not found")
		<-ctx.Done()
		return nil
	}
	if err := in.Open(); err != nil {
		return fmt.Errorf("failed to open MIDI IN: %w", err)
	}
	log.Println("opened " + in.String())
	defer func() {
		if err := in.Close(); err != nil {
			log.Printf("failed to close MIDI IN: %v\n", err)
		}
	}()
	if err := in.SetListener(func(data []byte, deltaMicroseconds int64) {
		e.PushMidi(data)
	}); err != nil {
		return fmt.Errorf("failed to set listener: %w", err)
	}
	defer func() {
		log.Println("stop listening MIDI IN...")
		if err := in.StopListening(); err != nil {
			log.Printf("failed to stop listening: %v\n", err)
		}
		if n := e.MidiDropped(); n > 0 {
			log.Printf("WARN: dropped %d MIDI messages\n", n)
		}
	}()
	<-ctx.Done()
	return nil
}
