package engine

import (
	"fmt"

	"github.com/jinjor/desktop-synth/src/component"
	"github.com/jinjor/desktop-synth/src/midi"
	"github.com/jinjor/desktop-synth/src/params"
)

// ----- components ----- //

// CreateComponent builds a component of type t. doc is a YAML or JSON
// document overriding the type's default config, and may be empty. On
// ErrTimeout the id is valid and the component goes live once the render
// goroutine catches up.
func (e *Engine) CreateComponent(t component.Type, name string, doc []byte) (component.ID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.create(t, name, doc)
}

func (e *Engine) create(t component.Type, name string, doc []byte) (component.ID, error) {
	c, err := e.manager.Add(t, name, e.env, doc)
	if err != nil {
		return 0, err
	}
	id := c.ID()
	err = e.publish(func() {}, func() { e.manager.Release(id) })
	if err != nil && err != ErrTimeout {
		return 0, err
	}
	return id, err
}

// RemoveComponent disconnects id from everything and forgets it.
func (e *Engine) RemoveComponent(id component.ID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.remove(id)
}

func (e *Engine) remove(id component.ID) error {
	m := e.manager
	target, err := m.get(id)
	if err != nil {
		return err
	}
	restore := m.save()
	var detach []func()
	if target.root {
		h := m.Handler(id)
		detach = append(detach, func() { e.routing.RemoveHandler(h) })
	}
	if target.device {
		l := m.Listener(id)
		detach = append(detach, func() { e.device.RemoveListener(l) })
	}
	for _, other := range m.IDs() {
		if other == id {
			continue
		}
		o, _ := m.get(other)
		var found bool
		if o.inputs, found = removeID(o.inputs, id); found {
			mod, src := m.Module(other), m.Module(id)
			detach = append(detach, func() { mod.RemoveInput(src) })
		}
		if o.listeners, found = removeID(o.listeners, id); found {
			h, l := m.Handler(other), m.Listener(id)
			detach = append(detach, func() { h.RemoveListener(l) })
		}
		kept := o.links[:0]
		for _, l := range o.links {
			if l.From != id {
				kept = append(kept, l)
				continue
			}
			c, t, level := o.comp, l.Param, l.Level
			detach = append(detach, func() { c.RemoveParameterModulation(t, level) })
		}
		o.links = kept
	}
	target.inputs, target.listeners, target.links = nil, nil, nil
	target.sink, target.root, target.device = false, false, false
	target.removed = true
	err = e.publish(func() {
		for _, fn := range detach {
			fn()
		}
	}, func() {
		restore()
		target.removed = false
	})
	if err != nil && err != ErrTimeout {
		return err
	}
	m.Release(id)
	return err
}

// Reset removes every component.
func (e *Engine) Reset() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reset()
}

func (e *Engine) reset() error {
	ids := e.manager.IDs()
	for i := len(ids) - 1; i >= 0; i-- {
		if err := e.remove(ids[i]); err != nil {
			return err
		}
	}
	return nil
}

// ----- connections ----- //

// Connect adds the edge described by r, or removes it when r.Remove is set.
// Connecting an edge that already exists succeeds without change.
func (e *Engine) Connect(r ConnectionRequest) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if r.Remove {
		return e.disconnect(r)
	}
	return e.connect(r)
}

func (e *Engine) connect(r ConnectionRequest) error {
	kind, err := r.Kind()
	if err != nil {
		return err
	}
	if r.OutboundID != 0 && r.OutboundID == r.InboundID {
		return fmt.Errorf("%w: %v connects to itself", ErrInvalidConnection, r.OutboundID)
	}
	switch kind {
	case SignalConnection:
		return e.connectSignal(r)
	case MidiConnection:
		return e.connectMidi(r)
	}
	return e.connectModulation(r)
}

// Disconnect removes the edge described by r.
func (e *Engine) Disconnect(r ConnectionRequest) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.disconnect(r)
}

func (e *Engine) disconnect(r ConnectionRequest) error {
	kind, err := r.Kind()
	if err != nil {
		return err
	}
	switch kind {
	case SignalConnection:
		return e.disconnectSignal(r)
	case MidiConnection:
		return e.disconnectMidi(r)
	}
	return e.disconnectModulation(r)
}

func (e *Engine) require(id component.ID, c component.Capability) (*entry, error) {
	en, err := e.manager.get(id)
	if err != nil {
		return nil, err
	}
	if !en.caps.Has(c) {
		return nil, fmt.Errorf("%w: %v %v is not a %v", ErrInvalidConnection, en.comp.Type(), id, c)
	}
	return en, nil
}

func notConnected(r ConnectionRequest) error {
	return fmt.Errorf("%w: %v is not connected", ErrInvalidConnection, r)
}

func (e *Engine) connectSignal(r ConnectionRequest) error {
	m := e.manager
	from, err := e.require(r.OutboundID, component.CapModule)
	if err != nil {
		return err
	}
	fd, _ := component.Lookup(from.comp.Type())
	if r.OutboundIndex < 0 || r.OutboundIndex >= fd.AudioOutputs {
		return fmt.Errorf("%w: %v has no output %d", ErrInvalidConnection, r.OutboundID, r.OutboundIndex)
	}
	restore := m.save()
	if r.InboundID == 0 {
		if from.sink {
			return nil
		}
		from.sink = true
		return e.publish(func() {}, restore)
	}
	to, err := e.require(r.InboundID, component.CapModule)
	if err != nil {
		return err
	}
	td, _ := component.Lookup(to.comp.Type())
	if r.InboundIndex < 0 || r.InboundIndex >= td.AudioInputs {
		return fmt.Errorf("%w: %v has no input %d", ErrInvalidConnection, r.InboundID, r.InboundIndex)
	}
	if containsID(to.inputs, r.OutboundID) {
		return nil
	}
	to.inputs = append(to.inputs, r.OutboundID)
	dst, src := m.Module(r.InboundID), m.Module(r.OutboundID)
	return e.publish(func() { dst.AddInput(src) }, restore)
}

func (e *Engine) disconnectSignal(r ConnectionRequest) error {
	m := e.manager
	from, err := m.get(r.OutboundID)
	if err != nil {
		return err
	}
	restore := m.save()
	if r.InboundID == 0 {
		if !from.sink {
			return notConnected(r)
		}
		from.sink = false
		return e.publish(func() {}, restore)
	}
	to, err := m.get(r.InboundID)
	if err != nil {
		return err
	}
	var found bool
	if to.inputs, found = removeID(to.inputs, r.OutboundID); !found {
		return notConnected(r)
	}
	dst, src := m.Module(r.InboundID), m.Module(r.OutboundID)
	return e.publish(func() { dst.RemoveInput(src) }, restore)
}

func (e *Engine) connectMidi(r ConnectionRequest) error {
	m := e.manager
	to, err := e.require(r.InboundID, component.CapMidiListener)
	if err != nil {
		return err
	}
	restore := m.save()
	if r.OutboundID == 0 {
		if h := m.Handler(r.InboundID); h != nil {
			if to.root {
				return nil
			}
			to.root = true
			return e.publish(func() { e.routing.AddHandler(h) }, restore)
		}
		if to.device {
			return nil
		}
		to.device = true
		l := m.Listener(r.InboundID)
		return e.publish(func() { e.device.AddListener(l) }, restore)
	}
	from, err := e.require(r.OutboundID, component.CapMidiHandler)
	if err != nil {
		return err
	}
	if containsID(from.listeners, r.InboundID) {
		return nil
	}
	from.listeners = append(from.listeners, r.InboundID)
	h, l := m.Handler(r.OutboundID), m.Listener(r.InboundID)
	return e.publish(func() { h.AddListener(l) }, restore)
}

func (e *Engine) disconnectMidi(r ConnectionRequest) error {
	m := e.manager
	to, err := m.get(r.InboundID)
	if err != nil {
		return err
	}
	restore := m.save()
	if r.OutboundID == 0 {
		switch {
		case to.root:
			to.root = false
			h := m.Handler(r.InboundID)
			return e.publish(func() { e.routing.RemoveHandler(h) }, restore)
		case to.device:
			to.device = false
			l := m.Listener(r.InboundID)
			return e.publish(func() { e.device.RemoveListener(l) }, restore)
		}
		return notConnected(r)
	}
	from, err := m.get(r.OutboundID)
	if err != nil {
		return err
	}
	var found bool
	if from.listeners, found = removeID(from.listeners, r.InboundID); !found {
		return notConnected(r)
	}
	h, l := m.Handler(r.OutboundID), m.Listener(r.InboundID)
	return e.publish(func() { h.RemoveListener(l) }, restore)
}

func (e *Engine) connectModulation(r ConnectionRequest) error {
	m := e.manager
	if _, err := e.require(r.OutboundID, component.CapModulator); err != nil {
		return err
	}
	to, err := m.get(r.InboundID)
	if err != nil {
		return err
	}
	if err := e.checkModulationTarget(to.comp, r.Parameter, r.Level); err != nil {
		return err
	}
	restore := m.save()
	l := link{Param: r.Parameter, Level: r.Level, From: r.OutboundID}
	if i := to.findLink(r.Parameter, r.Level); i >= 0 {
		if to.links[i].From == r.OutboundID {
			return nil
		}
		to.links[i] = l
	} else {
		to.links = append(to.links, l)
	}
	c, mod := to.comp, m.Modulator(r.OutboundID)
	return e.publish(func() { c.SetParameterModulation(l.Param, l.Level, mod) }, restore)
}

// checkModulationTarget validates on the control goroutine what
// SetParameterModulation would reject on the render goroutine.
func (e *Engine) checkModulationTarget(c component.Component, t params.Type, level int) error {
	d, _ := component.Lookup(c.Type())
	if !d.CanModulate(t) {
		return fmt.Errorf("%w: %v of %v is not modulatable", ErrInvalidConnection, t, c.Type())
	}
	if level < 0 || (level > 0 && level >= e.env.MaxDepth) {
		return fmt.Errorf("%w: %w: %d", ErrInvalidConnection, params.ErrDepthLevel, level)
	}
	if !c.Parameters().Has(t) {
		// per-voice parameter, resolved when a voice starts
		return nil
	}
	p, err := c.Parameters().Resolve(t, level)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConnection, err)
	}
	if !p.Modulatable() {
		return fmt.Errorf("%w: %w: %v/%d", ErrInvalidConnection, params.ErrNotModulatable, t, level)
	}
	return nil
}

func (e *Engine) disconnectModulation(r ConnectionRequest) error {
	m := e.manager
	to, err := m.get(r.InboundID)
	if err != nil {
		return err
	}
	i := to.findLink(r.Parameter, r.Level)
	if i < 0 || to.links[i].From != r.OutboundID {
		return notConnected(r)
	}
	restore := m.save()
	to.links = append(to.links[:i], to.links[i+1:]...)
	c, t, level := to.comp, r.Parameter, r.Level
	return e.publish(func() { c.RemoveParameterModulation(t, level) }, restore)
}

// ----- parameters ----- //

func (e *Engine) parameter(id component.ID, t params.Type, level int) (*params.Parameter, error) {
	e.mu.Lock()
	c, err := e.manager.Get(id)
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return c.Parameters().Resolve(t, level)
}

// SetParameter sets the base value of t, converted to the parameter's kind
// and clamped into range. Base values are atomic, so this never waits for
// the render goroutine.
func (e *Engine) SetParameter(id component.ID, t params.Type, v params.Value) error {
	return e.SetParameterAt(id, t, 0, v)
}

// SetParameterAt sets t itself for level 0, or its nested depth at level.
func (e *Engine) SetParameterAt(id component.ID, t params.Type, level int, v params.Value) error {
	p, err := e.parameter(id, t, level)
	if err != nil {
		return err
	}
	p.Set(v)
	return nil
}

func (e *Engine) Parameter(id component.ID, t params.Type) (params.Value, error) {
	return e.ParameterAt(id, t, 0)
}

func (e *Engine) ParameterAt(id component.ID, t params.Type, level int) (params.Value, error) {
	p, err := e.parameter(id, t, level)
	if err != nil {
		return params.Value{}, err
	}
	return p.Get(), nil
}

// ----- listing ----- //

// ComponentInfo is a summary line of a live component.
type ComponentInfo struct {
	ID           component.ID         `yaml:"id" json:"id"`
	Type         component.Type       `yaml:"type" json:"type"`
	Name         string               `yaml:"name" json:"name"`
	Capabilities component.Capability `yaml:"-" json:"-"`
}

func (i ComponentInfo) String() string {
	return fmt.Sprintf("%v %v %q %v", i.ID, i.Type, i.Name, i.Capabilities)
}

// Components lists live components in slot order.
func (e *Engine) Components() []ComponentInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []ComponentInfo
	for _, id := range e.manager.IDs() {
		en, _ := e.manager.get(id)
		out = append(out, ComponentInfo{ID: id, Type: en.comp.Type(), Name: en.comp.Name(), Capabilities: en.caps})
	}
	return out
}

// Component resolves id. The component must only be inspected through its
// parameters while the engine runs.
func (e *Engine) Component(id component.ID) (component.Component, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.manager.Get(id)
}

// DeviceHandler is the default root handler plain listeners attach to.
func (e *Engine) DeviceHandler() midi.Handler { return e.device }
