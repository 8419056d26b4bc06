// Package engine owns the component graph and renders it. Graph changes are
// made on the control goroutine, which publishes a new render plan; the
// render goroutine only follows the current plan.
package engine

import (
	"errors"
	"fmt"
	"sort"

	"github.com/jinjor/desktop-synth/src/component"
	"github.com/jinjor/desktop-synth/src/midi"
	"github.com/jinjor/desktop-synth/src/params"
	"github.com/jinjor/desktop-synth/src/pool"
	"github.com/jinjor/desktop-synth/src/signal"
)

var (
	ErrUnknownComponent  = errors.New("unknown component")
	ErrInvalidConnection = errors.New("invalid connection")
	ErrCycle             = errors.New("connection would create a cycle")
	ErrFull              = errors.New("too many components")
)

// link is a modulation edge into one of the entry's parameters.
type link struct {
	Param params.Type
	Level int
	From  component.ID
}

// entry is the bookkeeping for one component. Edges are stored as ids and
// resolved through the arena, so removing a component never leaves a
// dangling reference behind.
type entry struct {
	comp      component.Component
	caps      component.Capability
	inputs    []component.ID
	sink      bool
	listeners []component.ID
	root      bool // handler registered on the device
	device    bool // listener attached to the device handler
	links     []link
	removed   bool
}

func (e *entry) findLink(t params.Type, level int) int {
	for i, l := range e.links {
		if l.Param == t && l.Level == level {
			return i
		}
	}
	return -1
}

// Manager is the component arena. It is only touched by the control
// goroutine.
type Manager struct {
	arena      *pool.Pool[entry]
	modules    []signal.Module
	modulators []params.Modulator
	handlers   []midi.Handler
	listeners  []midi.Listener
}

func NewManager(capacity int) (*Manager, error) {
	arena, err := pool.New[entry](capacity, nil)
	if err != nil {
		return nil, err
	}
	return &Manager{
		arena:      arena,
		modules:    make([]signal.Module, capacity),
		modulators: make([]params.Modulator, capacity),
		handlers:   make([]midi.Handler, capacity),
		listeners:  make([]midi.Listener, capacity),
	}, nil
}

func slot(id component.ID) int {
	return int(uint32(id) & 0xffff)
}

// Add creates a component and fills its capability tables.
func (m *Manager) Add(t component.Type, name string, env component.Env, doc []byte) (component.Component, error) {
	h, e := m.arena.Allocate()
	if e == nil {
		return nil, fmt.Errorf("%w: capacity %d", ErrFull, m.arena.Cap())
	}
	id := component.IDFromHandle(h)
	c, err := component.Create(t, id, name, env, doc)
	if err != nil {
		m.arena.Release(h)
		return nil, err
	}
	d, _ := component.Lookup(t)
	*e = entry{comp: c, caps: d.Capabilities}
	i := slot(id)
	if d.Capabilities.Has(component.CapModule) {
		m.modules[i] = c.(signal.Module)
	}
	if d.Capabilities.Has(component.CapModulator) {
		m.modulators[i] = c.(params.Modulator)
	}
	if d.Capabilities.Has(component.CapMidiHandler) {
		m.handlers[i] = c.(midi.Handler)
	}
	if d.Capabilities.Has(component.CapMidiListener) {
		m.listeners[i] = c.(midi.Listener)
	}
	return c, nil
}

func (m *Manager) get(id component.ID) (*entry, error) {
	e := m.arena.Get(id.Handle())
	if e == nil || e.removed {
		return nil, fmt.Errorf("%w: %v", ErrUnknownComponent, id)
	}
	return e, nil
}

// Get resolves id, failing for ids that were never issued or are stale.
func (m *Manager) Get(id component.ID) (component.Component, error) {
	e, err := m.get(id)
	if err != nil {
		return nil, err
	}
	return e.comp, nil
}

// Release forgets id. Edges pointing at it must already be gone.
func (m *Manager) Release(id component.ID) {
	if !m.arena.Release(id.Handle()) {
		return
	}
	i := slot(id)
	m.modules[i] = nil
	m.modulators[i] = nil
	m.handlers[i] = nil
	m.listeners[i] = nil
}

func (m *Manager) Module(id component.ID) signal.Module { return m.modules[slot(id)] }
func (m *Manager) Modulator(id component.ID) params.Modulator { return m.modulators[slot(id)] }
func (m *Manager) Handler(id component.ID) midi.Handler { return m.handlers[slot(id)] }
func (m *Manager) Listener(id component.ID) midi.Listener { return m.listeners[slot(id)] }

func (m *Manager) Len() int { return m.arena.Len() }

// IDs lists live components in slot order.
func (m *Manager) IDs() []component.ID {
	ids := make([]component.ID, 0, m.arena.Len())
	m.arena.ForEachActive(func(h pool.Handle, e *entry) {
		if !e.removed {
			ids = append(ids, component.IDFromHandle(h))
		}
	})
	sort.Slice(ids, func(i, j int) bool { return slot(ids[i]) < slot(ids[j]) })
	return ids
}

// ----- signal.Graph ----- //

// moduleGraph is the render graph. Modulation inputs are modulators that
// are also modules.
type moduleGraph struct{ m *Manager }

func (g moduleGraph) SignalInputs(id component.ID) []component.ID {
	e := g.m.arena.Get(id.Handle())
	if e == nil {
		return nil
	}
	return e.inputs
}

func (g moduleGraph) ModulationInputs(id component.ID) []component.ID {
	e := g.m.arena.Get(id.Handle())
	if e == nil {
		return nil
	}
	var out []component.ID
	for _, l := range e.links {
		if g.m.Module(l.From) != nil {
			out = append(out, l.From)
		}
	}
	return out
}

// midiGraph orders handlers upstream first.
type midiGraph struct {
	m        *Manager
	upstream map[component.ID][]component.ID
}

func newMidiGraph(m *Manager) midiGraph {
	g := midiGraph{m: m, upstream: map[component.ID][]component.ID{}}
	m.arena.ForEachActive(func(h pool.Handle, e *entry) {
		from := component.IDFromHandle(h)
		for _, to := range e.listeners {
			g.upstream[to] = append(g.upstream[to], from)
		}
	})
	return g
}

func (g midiGraph) SignalInputs(id component.ID) []component.ID { return g.upstream[id] }

func (g midiGraph) ModulationInputs(component.ID) []component.ID { return nil }

// save copies the edges of every entry and returns a func that puts them
// back.
func (m *Manager) save() func() {
	type edges struct {
		inputs, listeners []component.ID
		links             []link
		sink, root, dev   bool
	}
	saved := map[pool.Handle]edges{}
	m.arena.ForEachActive(func(h pool.Handle, e *entry) {
		saved[h] = edges{
			inputs:    append([]component.ID(nil), e.inputs...),
			listeners: append([]component.ID(nil), e.listeners...),
			links:     append([]link(nil), e.links...),
			sink:      e.sink,
			root:      e.root,
			dev:       e.device,
		}
	})
	return func() {
		for h, s := range saved {
			if e := m.arena.Get(h); e != nil {
				e.inputs, e.listeners, e.links = s.inputs, s.listeners, s.links
				e.sink, e.root, e.device = s.sink, s.root, s.dev
			}
		}
	}
}

func removeID(ids []component.ID, id component.ID) ([]component.ID, bool) {
	for i, x := range ids {
		if x == id {
			return append(ids[:i], ids[i+1:]...), true
		}
	}
	return ids, false
}

func containsID(ids []component.ID, id component.ID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}
