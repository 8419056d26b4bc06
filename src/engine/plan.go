package engine

import (
	"errors"
	"fmt"

	"github.com/jinjor/desktop-synth/src/component"
	"github.com/jinjor/desktop-synth/src/midi"
	"github.com/jinjor/desktop-synth/src/signal"
)

// plan is an immutable snapshot of what the render goroutine runs. A new
// plan is built for every graph change and swapped in whole.
type plan struct {
	handlers   []midi.Handler
	components []component.Component
	modules    []signal.Module
	generative []signal.Module
	sinks      []signal.Module
	order      []component.ID
}

var emptyPlan = &plan{}

// buildPlan sorts the graph. Modules are ordered from the sinks, and from
// every non-module whose parameters are driven by a module.
func buildPlan(m *Manager) (*plan, error) {
	p := &plan{}
	ids := m.IDs()
	var roots, all []component.ID
	for _, id := range ids {
		e, _ := m.get(id)
		if e.sink {
			roots = append(roots, id)
		}
	}
	for _, id := range ids {
		e, _ := m.get(id)
		if e.caps.Has(component.CapModule) {
			all = append(all, id)
		} else if len(e.links) > 0 {
			roots = append(roots, id)
		}
	}
	// modules nothing listens to are not rendered but must not form a cycle
	if _, err := signal.TopologicalOrder(all, moduleGraph{m}); err != nil {
		return nil, wrapCycle(err)
	}
	order, err := signal.TopologicalOrder(roots, moduleGraph{m})
	if err != nil {
		return nil, wrapCycle(err)
	}
	for _, id := range order {
		mod := m.Module(id)
		if mod == nil {
			continue
		}
		p.order = append(p.order, id)
		p.modules = append(p.modules, mod)
		if mod.IsGenerative() {
			p.generative = append(p.generative, mod)
		}
	}
	for _, id := range ids {
		e, _ := m.get(id)
		p.components = append(p.components, e.comp)
		if e.sink {
			p.sinks = append(p.sinks, m.Module(id))
		}
	}

	var handlerIDs []component.ID
	for _, id := range ids {
		if m.Handler(id) != nil {
			handlerIDs = append(handlerIDs, id)
		}
	}
	horder, err := signal.TopologicalOrder(handlerIDs, newMidiGraph(m))
	if err != nil {
		return nil, wrapCycle(err)
	}
	for _, id := range horder {
		if h := m.Handler(id); h != nil {
			p.handlers = append(p.handlers, h)
		}
	}
	return p, nil
}

func wrapCycle(err error) error {
	if errors.Is(err, signal.ErrCycle) || errors.Is(err, signal.ErrSelfInput) {
		return fmt.Errorf("%w: %v", ErrCycle, err)
	}
	return err
}

// render fills out, which is at most one buffer long.
func (p *plan) render(out []float64, dt float64, device midi.Handler) {
	for _, m := range p.generative {
		m.ClearBuffer()
	}
	for i := range out {
		device.Tick(dt)
		for _, h := range p.handlers {
			h.Tick(dt)
		}
		for _, c := range p.components {
			c.UpdateParameters()
		}
		for _, m := range p.modules {
			m.Tick()
			m.CalculateSample()
		}
		sum := 0.0
		for _, m := range p.sinks {
			sum += m.CurrentSample()
		}
		out[i] = sum
	}
}
