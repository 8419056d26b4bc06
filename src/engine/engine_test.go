package engine

import (
	"bytes"
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jinjor/desktop-synth/src/component"
	"github.com/jinjor/desktop-synth/src/config"
	"github.com/jinjor/desktop-synth/src/dsp"
	"github.com/jinjor/desktop-synth/src/params"
)

func expectEqual(t *testing.T, actual, expected interface{}) {
	t.Helper()
	if actual != expected {
		t.Errorf("expected %v, but got: %v", expected, actual)
	}
}

func expectNearlyEqual(t *testing.T, actual, expected float64) {
	t.Helper()
	if math.Abs(actual-expected) > 0.0001 {
		t.Errorf("expected %v, but got: %v", expected, actual)
	}
}

func expectNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}

func expectError(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Errorf("expected %v, but got: %v", target, err)
	}
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Set("audio.sample_rate", 1000)
	cfg.Set("audio.buffer_size", 16)
	cfg.Set("oscillator.wavetable_size", 1024)
	cfg.Set("analysis.fft_size", 64)
	cfg.Set("analysis.blocks", 4)
	return cfg
}

func newTestEngine(t *testing.T, cfg *config.Config, drivers ...Driver) *Engine {
	t.Helper()
	if cfg == nil {
		cfg = testConfig()
	}
	e, err := New(cfg, drivers...)
	expectNoError(t, err)
	return e
}

func mustCreate(t *testing.T, e *Engine, typ component.Type, doc string) component.ID {
	t.Helper()
	id, err := e.CreateComponent(typ, "", []byte(doc))
	expectNoError(t, err)
	return id
}

func render(e *Engine, seconds float64) []float64 {
	out := make([]float64, int(math.Round(seconds*e.SampleRate())))
	e.Render(out)
	return out
}

func poly(t *testing.T, e *Engine, id component.ID) *component.PolyOscillator {
	t.Helper()
	c, err := e.Component(id)
	expectNoError(t, err)
	return c.(*component.PolyOscillator)
}

// fadedPoly builds device -> fader -> poly -> sink, with the fader driving
// the voice amplitude.
func fadedPoly(t *testing.T, e *Engine) (component.ID, component.ID) {
	t.Helper()
	p := mustCreate(t, e, component.TypePolyOscillator, "waveform: SINE")
	f := mustCreate(t, e, component.TypeLinearFader, "attack: 0.01\nrelease: 0.1")
	expectNoError(t, e.Connect(Midi(0, f)))
	expectNoError(t, e.Connect(Midi(f, p)))
	expectNoError(t, e.Connect(Modulation(f, p, params.Amplitude, 0)))
	expectNoError(t, e.Connect(Signal(p, 0)))
	return p, f
}

func TestFadedVoiceLifetime(t *testing.T) {
	e := newTestEngine(t, nil)
	p, _ := fadedPoly(t, e)

	e.NoteOn(60, 100)
	out := render(e, 0.032)
	voice := poly(t, e, p).Voice(60)
	if voice == nil {
		t.Fatal("no voice for note 60")
	}
	amp := voice.Parameters().Get(params.Amplitude)
	if math.Abs(amp.Instantaneous()-amp.Value()) > 0.01*amp.Value() {
		t.Errorf("expected amplitude near %v, but got: %v", amp.Value(), amp.Instantaneous())
	}
	var peak float64
	for _, v := range out {
		peak = math.Max(peak, math.Abs(v))
	}
	expectEqual(t, peak > 0, true)

	e.NoteOff(60)
	render(e, 0.2)
	expectEqual(t, poly(t, e, p).ActiveVoices(), 0)
	for i, v := range render(e, 0.032) {
		if v != 0 {
			t.Fatalf("expected silence, but sample %d is %v", i, v)
		}
	}
}

func TestFadedVoiceRisesDuringAttack(t *testing.T) {
	e := newTestEngine(t, nil)
	p, _ := fadedPoly(t, e)

	e.NoteOn(60, 100)
	render(e, 0.005)
	amp := poly(t, e, p).Voice(60).Parameters().Get(params.Amplitude)
	mid := amp.Instantaneous()
	expectEqual(t, mid > 0 && mid < amp.Value(), true)
	render(e, 0.01)
	expectEqual(t, amp.Instantaneous() > mid, true)
}

func TestConnectionValidation(t *testing.T) {
	e := newTestEngine(t, nil)
	osc := mustCreate(t, e, component.TypeOscillator, "")
	osc2 := mustCreate(t, e, component.TypeOscillator, "")
	g1 := mustCreate(t, e, component.TypeGain, "")
	g2 := mustCreate(t, e, component.TypeGain, "")
	p := mustCreate(t, e, component.TypePolyOscillator, "")
	f := mustCreate(t, e, component.TypeLinearFader, "")
	m1 := mustCreate(t, e, component.TypeMidiFilter, "")
	m2 := mustCreate(t, e, component.TypeMidiFilter, "")
	gone := mustCreate(t, e, component.TypeGain, "")
	expectNoError(t, e.RemoveComponent(gone))

	expectNoError(t, e.Connect(Signal(g1, g2)))
	expectNoError(t, e.Connect(Modulation(osc, osc2, params.Frequency, 0)))
	expectNoError(t, e.Connect(Midi(m1, m2)))

	cases := []struct {
		name string
		req  ConnectionRequest
		err  error
	}{
		{"self signal", Signal(g1, g1), ErrInvalidConnection},
		{"self modulation", Modulation(osc, osc, params.Amplitude, 0), ErrInvalidConnection},
		{"signal cycle", Signal(g2, g1), ErrCycle},
		{"modulation cycle", Modulation(osc2, osc, params.Frequency, 0), ErrCycle},
		{"midi cycle", Midi(m2, m1), ErrCycle},
		{"not modulatable", Modulation(f, osc, params.Waveform, 0), ErrInvalidConnection},
		{"depth out of range", Modulation(f, p, params.Amplitude, 2), ErrInvalidConnection},
		{"depth below zero", Modulation(f, osc, params.Amplitude, -1), ErrInvalidConnection},
		{"not a module", Signal(f, g1), ErrInvalidConnection},
		{"not a modulator", Modulation(g1, osc, params.Amplitude, 0), ErrInvalidConnection},
		{"not a handler", Midi(p, f), ErrInvalidConnection},
		{"not a listener", Midi(f, osc), ErrInvalidConnection},
		{"no such input", Signal(g1, osc), ErrInvalidConnection},
		{"stale source", Signal(gone, g1), ErrUnknownComponent},
		{"stale target", Modulation(f, gone, params.Gain, 0), ErrUnknownComponent},
		{"mismatched sockets", ConnectionRequest{Outbound: AudioOutput, Inbound: MidiInput, OutboundID: g1, InboundID: p}, ErrInvalidConnection},
		{"modulation without parameter", ConnectionRequest{Outbound: ModulationOutput, Inbound: ModulationInput, OutboundID: f, InboundID: p}, ErrInvalidConnection},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			expectError(t, e.Connect(c.req), c.err)
		})
	}

	// rejected edges leave no trace
	for _, s := range e.Snapshot().Components {
		switch s.ID {
		case g1:
			expectEqual(t, len(s.Inputs), 0)
		case osc:
			expectEqual(t, len(s.Modulations), 0)
		case m2:
			expectEqual(t, len(s.Listeners), 0)
		}
	}
}

func TestConnectIsIdempotent(t *testing.T) {
	e := newTestEngine(t, nil)
	a := mustCreate(t, e, component.TypeGain, "")
	b := mustCreate(t, e, component.TypeGain, "")
	expectNoError(t, e.Connect(Signal(a, b)))
	expectNoError(t, e.Connect(Signal(a, b)))
	expectEqual(t, len(e.Snapshot().Components[1].Inputs), 1)

	expectNoError(t, e.Disconnect(Signal(a, b)))
	expectError(t, e.Disconnect(Signal(a, b)), ErrInvalidConnection)
	expectError(t, e.Disconnect(Signal(a, 0)), ErrInvalidConnection)

	r := Signal(a, 0)
	expectNoError(t, e.Connect(r))
	r.Remove = true
	expectNoError(t, e.Connect(r))
	expectEqual(t, e.Snapshot().Components[0].Sink, false)
}

func TestModulationReplacesLink(t *testing.T) {
	e := newTestEngine(t, nil)
	osc := mustCreate(t, e, component.TypeOscillator, "")
	lfo1 := mustCreate(t, e, component.TypeOscillator, "")
	lfo2 := mustCreate(t, e, component.TypeOscillator, "")
	expectNoError(t, e.Connect(Modulation(lfo1, osc, params.Frequency, 0)))
	expectNoError(t, e.Connect(Modulation(lfo2, osc, params.Frequency, 0)))
	expectNoError(t, e.Connect(Modulation(lfo1, osc, params.Frequency, 1)))

	s := e.Snapshot().Components[0]
	expectEqual(t, len(s.Modulations), 2)
	for _, ps := range s.Parameters {
		if ps.Type != params.Frequency {
			continue
		}
		expectEqual(t, ps.Modulator, lfo2)
		expectEqual(t, ps.Depths[0].Modulator, lfo1)
	}
	expectError(t, e.Disconnect(Modulation(lfo1, osc, params.Frequency, 0)), ErrInvalidConnection)
	expectNoError(t, e.Disconnect(Modulation(lfo2, osc, params.Frequency, 0)))
}

func TestRemoveComponent(t *testing.T) {
	e := newTestEngine(t, nil)
	osc := mustCreate(t, e, component.TypeOscillator, "")
	g := mustCreate(t, e, component.TypeGain, "")
	lfo := mustCreate(t, e, component.TypeOscillator, "")
	p := mustCreate(t, e, component.TypePolyOscillator, "")
	f := mustCreate(t, e, component.TypeLinearFader, "")
	expectNoError(t, e.Connect(Signal(osc, g)))
	expectNoError(t, e.Connect(Signal(g, 0)))
	expectNoError(t, e.Connect(Modulation(lfo, g, params.Gain, 0)))
	expectNoError(t, e.Connect(Modulation(lfo, osc, params.Frequency, 0)))
	expectNoError(t, e.Connect(Midi(0, f)))
	expectNoError(t, e.Connect(Midi(f, p)))
	expectNoError(t, e.Connect(Modulation(f, p, params.Amplitude, 0)))

	expectNoError(t, e.RemoveComponent(lfo))
	expectNoError(t, e.RemoveComponent(f))
	expectError(t, e.RemoveComponent(f), ErrUnknownComponent)
	_, err := e.Component(lfo)
	expectError(t, err, ErrUnknownComponent)

	c, err := e.Component(osc)
	expectNoError(t, err)
	expectEqual(t, c.Parameters().Get(params.Frequency).Modulator() == nil, true)
	for _, s := range e.Snapshot().Components {
		expectEqual(t, len(s.Modulations), 0)
		expectEqual(t, len(s.Listeners), 0)
	}

	// the freed slot is reused under a new generation
	again := mustCreate(t, e, component.TypeGain, "")
	expectEqual(t, again != lfo && again != f, true)
	expectError(t, e.Connect(Signal(osc, lfo)), ErrUnknownComponent)

	e.NoteOn(60, 100)
	render(e, 0.016)
	expectEqual(t, poly(t, e, p).ActiveVoices(), 0)
	expectEqual(t, len(e.Components()), 4)
}

func TestReset(t *testing.T) {
	e := newTestEngine(t, nil)
	fadedPoly(t, e)
	e.NoteOn(60, 100)
	render(e, 0.016)
	expectNoError(t, e.Reset())
	expectEqual(t, len(e.Components()), 0)
	for _, v := range render(e, 0.016) {
		expectEqual(t, v, 0.0)
	}
}

func TestParameters(t *testing.T) {
	e := newTestEngine(t, nil)
	osc := mustCreate(t, e, component.TypeOscillator, "frequency: 220")

	v, err := e.Parameter(osc, params.Frequency)
	expectNoError(t, err)
	expectNearlyEqual(t, v.Float64(), 220)

	expectNoError(t, e.SetParameter(osc, params.Amplitude, params.Double(3)))
	v, err = e.Parameter(osc, params.Amplitude)
	expectNoError(t, err)
	expectNearlyEqual(t, v.Float64(), 1)
	expectEqual(t, v.Kind, params.KindFloat)

	expectNoError(t, e.SetParameterAt(osc, params.Amplitude, 1, params.Double(0.5)))
	v, err = e.ParameterAt(osc, params.Amplitude, 1)
	expectNoError(t, err)
	expectNearlyEqual(t, v.Float64(), 0.5)

	_, err = e.Parameter(osc, params.Cutoff)
	expectError(t, err, params.ErrUnknownParameter)
	_, err = e.ParameterAt(osc, params.Amplitude, 5)
	expectError(t, err, params.ErrDepthLevel)
	expectError(t, e.SetParameter(0, params.Amplitude, params.Double(1)), ErrUnknownComponent)
}

func TestUseWavetables(t *testing.T) {
	generated, err := dsp.NewWavetables(256, 7)
	expectNoError(t, err)
	var buf bytes.Buffer
	expectNoError(t, generated.Save(&buf))
	wts, err := dsp.LoadWavetables(&buf)
	expectNoError(t, err)

	e := newTestEngine(t, nil)
	expectNoError(t, e.UseWavetables(wts))
	expectEqual(t, e.Env().Wavetables, wts)
	mustCreate(t, e, component.TypeOscillator, "")
	expectEqual(t, e.UseWavetables(generated) != nil, true)
	expectEqual(t, e.Env().Wavetables, wts)
}

func TestFilterResponse(t *testing.T) {
	e := newTestEngine(t, nil)
	f := mustCreate(t, e, component.TypeBiquadFilter, "filter_type: LOWPASS\ncutoff: 100")
	res, err := e.FilterResponse(f)
	expectNoError(t, err)
	expectEqual(t, len(res), filterResponseSize/2)
	expectEqual(t, res[0] > res[len(res)-1], true)

	osc := mustCreate(t, e, component.TypeOscillator, "")
	_, err = e.FilterResponse(osc)
	expectError(t, err, ErrNotSupported)
}

func TestSequenceNotes(t *testing.T) {
	e := newTestEngine(t, nil)
	s := mustCreate(t, e, component.TypeSequencer, "")
	n := component.SequenceNote{Pitch: 60, Velocity: 100, Start: 0, Duration: 1}
	expectNoError(t, e.AddSequenceNote(s, n))
	expectError(t, e.AddSequenceNote(s, n), component.ErrDuplicateNote)
	notes, err := e.SequenceNotes(s)
	expectNoError(t, err)
	expectEqual(t, len(notes), 1)
	expectNoError(t, e.RemoveSequenceNote(s, n))
	expectError(t, e.RemoveSequenceNote(s, n), component.ErrNoteNotFound)
	expectNoError(t, e.ClearSequence(s))

	osc := mustCreate(t, e, component.TypeOscillator, "")
	expectError(t, e.AddSequenceNote(osc, n), ErrNotSupported)
}

func TestSnapshotRestore(t *testing.T) {
	e := newTestEngine(t, nil)
	p, f := fadedPoly(t, e)
	bq := mustCreate(t, e, component.TypeBiquadFilter, "")
	seq := mustCreate(t, e, component.TypeSequencer, "")
	expectNoError(t, e.Disconnect(Signal(p, 0)))
	expectNoError(t, e.Connect(Signal(p, bq)))
	expectNoError(t, e.Connect(Signal(bq, 0)))
	expectNoError(t, e.SetParameter(bq, params.Cutoff, params.Double(300)))
	expectNoError(t, e.SetParameterAt(p, params.Gain, 1, params.Double(0.5)))
	expectNoError(t, e.AddSequenceNote(seq, component.SequenceNote{Pitch: 64, Velocity: 90, Start: 1, Duration: 2}))

	b, err := yaml.Marshal(e.Snapshot())
	expectNoError(t, err)
	var patch Patch
	expectNoError(t, yaml.Unmarshal(b, &patch))
	expectEqual(t, len(patch.Components), 4)
	expectEqual(t, patch.Components[0].Type, component.TypePolyOscillator)

	restored := newTestEngine(t, nil)
	mustCreate(t, restored, component.TypeGain, "")
	ids, err := restored.Restore(patch)
	expectNoError(t, err)
	expectEqual(t, len(restored.Components()), 4)

	v, err := restored.Parameter(ids[bq], params.Cutoff)
	expectNoError(t, err)
	expectNearlyEqual(t, v.Float64(), 300)
	v, err = restored.ParameterAt(ids[p], params.Gain, 1)
	expectNoError(t, err)
	expectNearlyEqual(t, v.Float64(), 0.5)
	notes, err := restored.SequenceNotes(ids[seq])
	expectNoError(t, err)
	expectEqual(t, len(notes), 1)

	for _, s := range restored.Snapshot().Components {
		switch s.ID {
		case ids[p]:
			expectEqual(t, len(s.Modulations), 1)
			expectEqual(t, s.Modulations[0].From, ids[f])
			expectEqual(t, s.Listeners == nil, true)
		case ids[f]:
			expectEqual(t, s.Device, true)
			expectEqual(t, s.Listeners[0], ids[p])
		case ids[bq]:
			expectEqual(t, s.Sink, true)
			expectEqual(t, s.Inputs[0], ids[p])
		}
	}

	e.NoteOn(60, 100)
	restored.NoteOn(60, 100)
	want, got := render(e, 0.064), render(restored, 0.064)
	for i := range want {
		expectNearlyEqual(t, got[i], want[i])
	}
}

func TestRestoreRejectsDanglingIDs(t *testing.T) {
	e := newTestEngine(t, nil)
	patch := Patch{Components: []ComponentState{
		{ID: 7, Type: component.TypeGain, Inputs: []component.ID{9}},
	}}
	_, err := e.Restore(patch)
	expectError(t, err, ErrUnknownComponent)
}

func TestMidiQueueOverflow(t *testing.T) {
	cfg := testConfig()
	cfg.Set("midi.queue_size", 4)
	e := newTestEngine(t, cfg)
	for i := 0; i < 4; i++ {
		expectEqual(t, e.NoteOn(uint8(60+i), 100), true)
	}
	expectEqual(t, e.NoteOn(70, 100), false)
	expectEqual(t, e.MidiDropped(), uint64(1))
	expectEqual(t, e.PushMidi([]byte{0x90}), false)

	render(e, 0.016)
	expectEqual(t, e.NoteOff(60), true)
}

// ----- running sessions ----- //

// renderLoop is a headless audio driver.
type renderLoop struct {
	blocks atomic.Int64
}

func (d *renderLoop) Run(ctx context.Context, e *Engine) error {
	buf := make([]float64, e.BufferSize())
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		e.Render(buf)
		d.blocks.Add(1)
		time.Sleep(100 * time.Microsecond)
	}
}

// stalled never renders.
type stalled struct{}

func (stalled) Run(ctx context.Context, e *Engine) error {
	<-ctx.Done()
	return nil
}

type failing struct{ err error }

func (d failing) Run(ctx context.Context, e *Engine) error { return d.err }

func TestRunningEngineAppliesCommands(t *testing.T) {
	d := &renderLoop{}
	e := newTestEngine(t, nil, d)
	expectNoError(t, e.SetState(context.Background(), Running))
	expectEqual(t, e.State(), Running)
	expectNoError(t, e.SetState(context.Background(), Running))

	p, f := fadedPoly(t, e)
	expectNoError(t, e.RemoveComponent(f))
	expectNoError(t, e.Connect(Signal(p, 0)))
	expectEqual(t, len(e.Components()), 1)
	expectNoError(t, e.SetState(context.Background(), Stopped))
	expectEqual(t, e.State(), Stopped)
	expectEqual(t, d.blocks.Load() > 0, true)
}

func TestCommandQueueOverflow(t *testing.T) {
	cfg := testConfig()
	cfg.Set("engine.command_queue_size", 1)
	cfg.Set("engine.command_timeout", "20ms")
	e := newTestEngine(t, cfg, stalled{})
	expectNoError(t, e.SetState(context.Background(), Running))

	first, err := e.CreateComponent(component.TypeGain, "", nil)
	expectError(t, err, ErrTimeout)
	expectEqual(t, first.Valid(), true)
	_, err = e.CreateComponent(component.TypeGain, "", nil)
	expectError(t, err, ErrBusy)
	expectEqual(t, len(e.Components()), 1)

	// stopping applies what is still queued
	expectNoError(t, e.SetState(context.Background(), Stopped))
	expectNoError(t, e.Connect(Signal(first, 0)))
	render(e, 0.016)
}

func TestDriverErrorEndsSession(t *testing.T) {
	lost := errors.New("device lost")
	e := newTestEngine(t, nil, failing{lost}, &renderLoop{})
	expectNoError(t, e.SetState(context.Background(), Running))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	expectError(t, e.Wait(ctx), lost)
	expectEqual(t, e.State(), Stopped)
	expectError(t, e.Wait(ctx), ErrStopped)
}

func TestDriverErrorStopsEngine(t *testing.T) {
	lost := errors.New("port busy")
	e := newTestEngine(t, nil, &renderLoop{}, failing{lost})
	expectNoError(t, e.SetState(context.Background(), Running))

	select {
	case err := <-e.Failures():
		expectError(t, err, lost)
	case <-time.After(time.Second):
		t.Fatal("session did not end")
	}
	expectEqual(t, e.State(), Stopped)

	// mutations apply inline again
	id, err := e.CreateComponent(component.TypeGain, "", nil)
	expectNoError(t, err)
	expectNoError(t, e.Connect(Signal(id, 0)))
	expectEqual(t, len(e.Components()), 1)

	expectNoError(t, e.SetState(context.Background(), Running))
	expectEqual(t, e.State(), Running)
	expectError(t, e.Wait(context.Background()), lost)
}

// ordered records when it was told to stop.
type ordered struct {
	name string
	mu   *sync.Mutex
	log  *[]string
}

func (d ordered) Run(ctx context.Context, e *Engine) error {
	<-ctx.Done()
	d.mu.Lock()
	*d.log = append(*d.log, d.name)
	d.mu.Unlock()
	return nil
}

func TestStopEndsDriversInOrder(t *testing.T) {
	var mu sync.Mutex
	var stopped []string
	e := newTestEngine(t, nil,
		ordered{"audio", &mu, &stopped},
		ordered{"midi", &mu, &stopped},
	)
	for i := 0; i < 3; i++ {
		expectNoError(t, e.SetState(context.Background(), Running))
		expectNoError(t, e.SetState(context.Background(), Stopped))
		expectEqual(t, len(stopped), 2*(i+1))
		expectEqual(t, stopped[2*i], "audio")
		expectEqual(t, stopped[2*i+1], "midi")
	}
}

func TestParseState(t *testing.T) {
	s, err := ParseState("run")
	expectNoError(t, err)
	expectEqual(t, s, Running)
	s, err = ParseState("stop")
	expectNoError(t, err)
	expectEqual(t, s, Stopped)
	_, err = ParseState("pause")
	expectEqual(t, err != nil, true)
}
