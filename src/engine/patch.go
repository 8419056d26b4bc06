package engine

import (
	"fmt"

	"github.com/jinjor/desktop-synth/src/component"
	"github.com/jinjor/desktop-synth/src/params"
)

// Patch is the serializable state of the whole graph.
type Patch struct {
	Components []ComponentState `yaml:"components" json:"components"`
}

type ComponentState struct {
	ID          component.ID             `yaml:"id" json:"id"`
	Type        component.Type           `yaml:"type" json:"type"`
	Name        string                   `yaml:"name,omitempty" json:"name,omitempty"`
	Parameters  []ParameterState         `yaml:"parameters,omitempty" json:"parameters,omitempty"`
	Inputs      []component.ID           `yaml:"inputs,omitempty" json:"inputs,omitempty"`
	Sink        bool                     `yaml:"sink,omitempty" json:"sink,omitempty"`
	Listeners   []component.ID           `yaml:"listeners,omitempty" json:"listeners,omitempty"`
	Device      bool                     `yaml:"device,omitempty" json:"device,omitempty"`
	Modulations []ModulationState        `yaml:"modulations,omitempty" json:"modulations,omitempty"`
	Sequence    []component.SequenceNote `yaml:"sequence,omitempty" json:"sequence,omitempty"`
}

type ParameterState struct {
	Type        params.Type  `yaml:"type" json:"type"`
	Value       float64      `yaml:"value" json:"value"`
	Default     float64      `yaml:"default" json:"default"`
	Min         float64      `yaml:"min" json:"min"`
	Max         float64      `yaml:"max" json:"max"`
	Modulatable bool         `yaml:"modulatable" json:"modulatable"`
	Modulator   component.ID `yaml:"modulator,omitempty" json:"modulator,omitempty"`
	Depths      []DepthState `yaml:"depths,omitempty" json:"depths,omitempty"`
}

// DepthState is the nested depth parameter at Level.
type DepthState struct {
	Level     int          `yaml:"level" json:"level"`
	Value     float64      `yaml:"value" json:"value"`
	Modulator component.ID `yaml:"modulator,omitempty" json:"modulator,omitempty"`
}

// ModulationState is one modulation link into the component. It also covers
// per-voice parameters that have no ParameterState.
type ModulationState struct {
	Parameter params.Type  `yaml:"parameter" json:"parameter"`
	Level     int          `yaml:"level,omitempty" json:"level,omitempty"`
	From      component.ID `yaml:"from" json:"from"`
}

// Snapshot captures every live component and edge.
func (e *Engine) Snapshot() Patch {
	e.mu.Lock()
	defer e.mu.Unlock()
	var patch Patch
	for _, id := range e.manager.IDs() {
		en, _ := e.manager.get(id)
		c := en.comp
		s := ComponentState{
			ID:        id,
			Type:      c.Type(),
			Name:      c.Name(),
			Inputs:    append([]component.ID(nil), en.inputs...),
			Sink:      en.sink,
			Listeners: append([]component.ID(nil), en.listeners...),
			Device:    en.root || en.device,
		}
		m := c.Parameters()
		for _, t := range m.Types() {
			if m.IsReference(t) {
				continue
			}
			s.Parameters = append(s.Parameters, parameterState(m.Get(t), en))
		}
		for _, l := range en.links {
			s.Modulations = append(s.Modulations, ModulationState{Parameter: l.Param, Level: l.Level, From: l.From})
		}
		if seq, ok := c.(*component.Sequencer); ok {
			s.Sequence = append([]component.SequenceNote(nil), seq.Notes()...)
		}
		patch.Components = append(patch.Components, s)
	}
	return patch
}

func parameterState(p *params.Parameter, en *entry) ParameterState {
	modulator := func(level int) component.ID {
		if i := en.findLink(p.Type(), level); i >= 0 {
			return en.links[i].From
		}
		return 0
	}
	s := ParameterState{
		Type:        p.Type(),
		Value:       p.Value(),
		Default:     p.Default(),
		Min:         p.Min(),
		Max:         p.Max(),
		Modulatable: p.Modulatable(),
		Modulator:   modulator(0),
	}
	for d := p.Depth(); d != nil; d = d.Depth() {
		s.Depths = append(s.Depths, DepthState{Level: d.Level(), Value: d.Value(), Modulator: modulator(d.Level())})
	}
	return s
}

// Restore replaces the graph with patch. Component ids are reissued; the
// returned map translates the ids of the patch to the new ones.
func (e *Engine) Restore(patch Patch) (map[component.ID]component.ID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.reset(); err != nil {
		return nil, err
	}
	ids := make(map[component.ID]component.ID, len(patch.Components))
	for _, s := range patch.Components {
		id, err := e.create(s.Type, s.Name, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to restore %v: %w", s.ID, err)
		}
		ids[s.ID] = id
		c, _ := e.manager.Get(id)
		for _, ps := range s.Parameters {
			p, err := c.Parameters().Lookup(ps.Type)
			if err != nil {
				return nil, fmt.Errorf("failed to restore %v: %w", s.ID, err)
			}
			p.SetValue(ps.Value)
			for _, ds := range ps.Depths {
				if d, err := p.Resolve(ds.Level); err == nil {
					d.SetValue(ds.Value)
				}
			}
		}
		if seq, ok := c.(*component.Sequencer); ok {
			for _, n := range s.Sequence {
				if err := seq.AddNote(n); err != nil {
					return nil, fmt.Errorf("failed to restore %v: %w", s.ID, err)
				}
			}
		}
	}
	resolve := func(old component.ID) (component.ID, error) {
		if old == 0 {
			return 0, nil
		}
		id, ok := ids[old]
		if !ok {
			return 0, fmt.Errorf("%w: %v is not in the patch", ErrUnknownComponent, old)
		}
		return id, nil
	}
	for _, s := range patch.Components {
		to := ids[s.ID]
		var reqs []ConnectionRequest
		for _, in := range s.Inputs {
			from, err := resolve(in)
			if err != nil {
				return nil, err
			}
			reqs = append(reqs, Signal(from, to))
		}
		if s.Sink {
			reqs = append(reqs, Signal(to, 0))
		}
		if s.Device {
			reqs = append(reqs, Midi(0, to))
		}
		for _, l := range s.Listeners {
			id, err := resolve(l)
			if err != nil {
				return nil, err
			}
			reqs = append(reqs, Midi(to, id))
		}
		for _, ms := range s.Modulations {
			from, err := resolve(ms.From)
			if err != nil {
				return nil, err
			}
			reqs = append(reqs, Modulation(from, to, ms.Parameter, ms.Level))
		}
		for _, r := range reqs {
			if err := e.connect(r); err != nil {
				return nil, fmt.Errorf("failed to restore %v: %w", r, err)
			}
		}
	}
	return ids, nil
}
