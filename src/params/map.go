package params

import (
	"fmt"
	"log"
)

// Map holds one slot per Type. A slot is either owned by this map or a
// reference to a parameter owned elsewhere (a voice sharing its parent's
// waveform, say). Only owned parameters are modulated by this map.
type Map struct {
	slots    [NumTypes]*Parameter
	owned    Set
	refs     Set
	order    []Type
	maxDepth int
}

// NewMap creates an empty map. maxDepth bounds the nested depth chain of
// every modulatable parameter added to it.
func NewMap(maxDepth int) *Map {
	if maxDepth < 0 {
		maxDepth = 0
	}
	return &Map{maxDepth: maxDepth}
}

// Add creates an owned parameter with the traits range of t.
func (m *Map) Add(t Type, def float64, modulatable bool) *Parameter {
	tr := TraitsOf(t)
	return m.AddRange(t, def, modulatable, tr.Min, tr.Max)
}

// AddRange creates an owned parameter with an explicit range.
func (m *Map) AddRange(t Type, def float64, modulatable bool, min, max float64) *Parameter {
	if t >= NumTypes {
		log.Panicf("invalid parameter type %d", t)
	}
	if m.slots[t] != nil {
		log.Panicf("parameter %v added twice", t)
	}
	p := newParameter(t, def, modulatable, min, max, 0, m.maxDepth)
	m.slots[t] = p
	m.owned = m.owned.With(t)
	m.order = append(m.order, t)
	return p
}

// AddReference shares p without taking ownership.
func (m *Map) AddReference(p *Parameter) {
	t := p.Type()
	if m.slots[t] != nil {
		log.Panicf("parameter %v added twice", t)
	}
	m.slots[t] = p
	m.refs = m.refs.With(t)
}

// AddReferences shares every parameter of other this map does not hold.
func (m *Map) AddReferences(other *Map) {
	for t := Type(0); t < NumTypes; t++ {
		if other.slots[t] != nil && m.slots[t] == nil {
			m.AddReference(other.slots[t])
		}
	}
}

func (m *Map) Has(t Type) bool {
	return t < NumTypes && m.slots[t] != nil
}

func (m *Map) IsReference(t Type) bool {
	return m.refs.Has(t)
}

// Lookup is the checked accessor for control-plane requests.
func (m *Map) Lookup(t Type) (*Parameter, error) {
	if !m.Has(t) {
		return nil, fmt.Errorf("%w: %v", ErrUnknownParameter, t)
	}
	return m.slots[t], nil
}

// Get panics when t is missing. Components only ask for what they added.
func (m *Map) Get(t Type) *Parameter {
	if !m.Has(t) {
		log.Panicf("parameter %v not present", t)
	}
	return m.slots[t]
}

// Value returns the base value of t.
func (m *Map) Value(t Type) float64 {
	return m.Get(t).Value()
}

// Instant returns the instantaneous value of t.
func (m *Map) Instant(t Type) float64 {
	return m.Get(t).Instantaneous()
}

// Types returns owned types in insertion order followed by references.
func (m *Map) Types() []Type {
	out := append([]Type(nil), m.order...)
	for t := Type(0); t < NumTypes; t++ {
		if m.refs.Has(t) {
			out = append(out, t)
		}
	}
	return out
}

// Modulatable lists owned modulatable types.
func (m *Map) Modulatable() Set {
	var s Set
	for _, t := range m.order {
		if m.slots[t].Modulatable() {
			s = s.With(t)
		}
	}
	return s
}

// Modulate refreshes the instantaneous value of every owned parameter.
// References are left to their owner.
func (m *Map) Modulate() {
	for _, t := range m.order {
		m.slots[t].Modulate()
	}
}

// Resolve finds the parameter or one of its nested depths.
func (m *Map) Resolve(t Type, level int) (*Parameter, error) {
	p, err := m.Lookup(t)
	if err != nil {
		return nil, err
	}
	return p.Resolve(level)
}
