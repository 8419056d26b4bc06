package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jinjor/desktop-synth/src/component"
	"github.com/jinjor/desktop-synth/src/config"
	"github.com/jinjor/desktop-synth/src/dsp"
	"github.com/jinjor/desktop-synth/src/midi"
	"github.com/jinjor/desktop-synth/src/pool"
)

var (
	ErrBusy    = errors.New("command queue is full")
	ErrTimeout = errors.New("command was not applied in time")
	ErrStopped = errors.New("engine is stopped")
)

// State is the run state of the engine.
type State uint8

const (
	Stopped State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "run"
	}
	return "stop"
}

func ParseState(s string) (State, error) {
	switch s {
	case "run", "start":
		return Running, nil
	case "stop":
		return Stopped, nil
	}
	return Stopped, fmt.Errorf("unknown state %q", s)
}

// Driver is an audio or MIDI backend that runs for one session. Audio
// drivers pull blocks with Render; MIDI drivers push with PushMidi.
type Driver interface {
	Run(ctx context.Context, e *Engine) error
}

type command struct {
	fn   func()
	done chan struct{}
}

// session is one run of the drivers. done is closed once every driver has
// returned; err is valid after that.
type session struct {
	cancel  context.CancelFunc
	drivers []context.CancelFunc
	exited  []chan struct{}
	done    chan struct{}
	err     error
}

// ----- Engine ----- //

type Engine struct {
	mu       sync.Mutex
	env      component.Env
	manager  *Manager
	drivers  []Driver
	timeout  time.Duration
	commands chan command
	plan     atomic.Pointer[plan]
	running  atomic.Bool
	session  *session
	autoRun  bool
	failures chan error

	// render side
	dt       float64
	midiIn   *midi.Queue[midi.Message]
	routing  *midi.State
	device   *midi.HandlerBase
	analyzer *dsp.Analyzer
}

// New builds a stopped engine from cfg.
func New(cfg *config.Config, drivers ...Driver) (*Engine, error) {
	env, err := component.NewEnv(cfg)
	if err != nil {
		return nil, err
	}
	manager, err := NewManager(pool.MaxCapacity)
	if err != nil {
		return nil, err
	}
	policy, err := midi.ParseOverflowPolicy(cfg.String("midi.overflow", "drop_newest"))
	if err != nil {
		log.Printf("failed to parse overflow policy: %v\n", err)
	}
	e := &Engine{
		env:      env,
		manager:  manager,
		drivers:  drivers,
		timeout:  cfg.Duration("engine.command_timeout", time.Second),
		commands: make(chan command, cfg.Int("engine.command_queue_size", 256)),
		autoRun:  cfg.Bool("engine.autostart", true),
		failures: make(chan error, 1),
		dt:       1 / env.SampleRate,
		midiIn:   midi.NewQueue[midi.Message](cfg.Int("midi.queue_size", midi.DefaultQueueSize), policy),
		routing:  midi.NewState(),
		device:   &midi.HandlerBase{},
	}
	e.device.Bind(e.device, env.QueueSize)
	e.routing.AddHandler(e.device)
	if size := cfg.Int("analysis.fft_size", 2048); size > 0 {
		e.analyzer = dsp.NewAnalyzer(size, cfg.Int("analysis.blocks", 16), env.BufferSize)
	}
	e.plan.Store(emptyPlan)
	return e, nil
}

func (e *Engine) Env() component.Env { return e.env }

func (e *Engine) SampleRate() float64 { return e.env.SampleRate }

func (e *Engine) BufferSize() int { return e.env.BufferSize }

// AutoRun reports whether the daemon should start the engine right away.
func (e *Engine) AutoRun() bool { return e.autoRun }

// UseWavetables replaces the generated oscillator tables, e.g. with tables
// loaded from a file. Components created earlier keep the old ones, so it
// is only allowed on an empty engine.
func (e *Engine) UseWavetables(wts *dsp.Wavetables) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.manager.Len() > 0 {
		return fmt.Errorf("wavetables must be set before components are created")
	}
	e.env.Wavetables = wts
	return nil
}

// Analyzer is nil when analysis is disabled.
func (e *Engine) Analyzer() *dsp.Analyzer { return e.analyzer }

// ----- render goroutine ----- //

// Render fills out with the next len(out) samples. While the engine is
// stopped it must be called from the control goroutine.
func (e *Engine) Render(out []float64) {
	e.drainCommands()
	p := e.plan.Load()
	for {
		m, ok := e.midiIn.Pop()
		if !ok {
			break
		}
		e.routing.Dispatch(m)
	}
	size := e.env.BufferSize
	for start := 0; start < len(out); start += size {
		end := min(start+size, len(out))
		p.render(out[start:end], e.dt, e.device)
		if e.analyzer != nil {
			e.analyzer.Feed(out[start:end])
		}
	}
}

func (e *Engine) drainCommands() {
	for {
		select {
		case c := <-e.commands:
			c.fn()
			close(c.done)
		default:
			return
		}
	}
}

// PushMidi queues a raw message from a driver. It never blocks.
func (e *Engine) PushMidi(data []byte) bool {
	m, ok := midi.Decode(data)
	if !ok {
		return false
	}
	return e.midiIn.Push(m)
}

// MidiDropped counts device messages lost to a full queue.
func (e *Engine) MidiDropped() uint64 { return e.midiIn.Dropped() }

// ----- control goroutine ----- //

// exec applies fn to the live graph. While running, fn runs on the render
// goroutine at the next block boundary. Callers hold e.mu.
func (e *Engine) exec(fn func()) error {
	if !e.running.Load() {
		fn()
		return nil
	}
	c := command{fn: fn, done: make(chan struct{})}
	timer := time.NewTimer(e.timeout)
	defer timer.Stop()
	select {
	case e.commands <- c:
	case <-timer.C:
		return ErrBusy
	}
	select {
	case <-c.done:
		return nil
	case <-timer.C:
		return ErrTimeout
	}
}

// publish rebuilds the plan after bookkeeping changed. undo restores the
// bookkeeping when the new graph is rejected or the change never reached
// the render goroutine.
func (e *Engine) publish(apply func(), undo func()) error {
	p, err := buildPlan(e.manager)
	if err != nil {
		undo()
		return err
	}
	err = e.exec(func() {
		apply()
		e.plan.Store(p)
	})
	if errors.Is(err, ErrBusy) {
		undo()
	}
	return err
}

// State reports whether a session is running.
func (e *Engine) State() State {
	if e.running.Load() {
		return Running
	}
	return Stopped
}

// SetState starts or stops a session. A session runs every driver under
// one errgroup; the first driver error ends the session. Drivers are
// stopped one by one in the order they were given to New.
func (e *Engine) SetState(ctx context.Context, s State) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch s {
	case Running:
		if e.session != nil {
			return nil
		}
		e.start(ctx)
		return nil
	case Stopped:
		return e.stop()
	}
	return fmt.Errorf("unknown state %v", s)
}

func (e *Engine) start(ctx context.Context) {
	sctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(sctx)
	s := &session{cancel: cancel, done: make(chan struct{})}
	for _, d := range e.drivers {
		dctx, dcancel := context.WithCancel(gctx)
		exited := make(chan struct{})
		s.drivers = append(s.drivers, dcancel)
		s.exited = append(s.exited, exited)
		g.Go(func() error {
			defer close(exited)
			return d.Run(dctx, e)
		})
	}
	if e.analyzer != nil {
		g.Go(func() error {
			return e.analyzer.Run(gctx)
		})
	}
	e.session = s
	e.running.Store(true)
	log.Println("engine started")
	go e.watch(s, g)
}

// watch ends a session whose drivers returned on their own.
func (e *Engine) watch(s *session, g *errgroup.Group) {
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	s.err = err
	close(s.done)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session != s {
		return
	}
	e.session = nil
	s.cancel()
	e.running.Store(false)
	e.drainCommands()
	if err == nil {
		log.Println("engine stopped: drivers ended")
		return
	}
	log.Printf("engine stopped: %v\n", err)
	select {
	case e.failures <- err:
	default:
	}
}

func (e *Engine) stop() error {
	if e.session == nil {
		return nil
	}
	s := e.session
	e.session = nil
	for i, cancel := range s.drivers {
		cancel()
		<-s.exited[i]
	}
	s.cancel()
	<-s.done
	e.running.Store(false)
	e.drainCommands()
	log.Println("engine stopped")
	return s.err
}

// Failures delivers the error of a session that ended on its own. An error
// arriving while another is still unread is dropped.
func (e *Engine) Failures() <-chan error { return e.failures }

// Wait blocks until the running session ends on its own or ctx is done,
// then stops it.
func (e *Engine) Wait(ctx context.Context) error {
	e.mu.Lock()
	s := e.session
	e.mu.Unlock()
	if s == nil {
		return ErrStopped
	}
	select {
	case <-ctx.Done():
	case <-s.done:
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == s {
		return e.stop()
	}
	<-s.done
	return s.err
}
