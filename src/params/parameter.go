package params

import (
	"errors"
	"math"
	"sync/atomic"
)

var (
	ErrUnknownParameter = errors.New("unknown parameter")
	ErrNotModulatable   = errors.New("parameter is not modulatable")
	ErrDepthLevel       = errors.New("depth level out of range")
)

// DefaultMaxDepth is how many nested depth parameters a modulatable
// parameter carries when the owner does not say otherwise.
const DefaultMaxDepth = 2

// Parameter holds a base value that only explicit sets change, and an
// instantaneous value that Modulate derives from it once per tick.
//
// The base value may be written from any goroutine. Everything else belongs
// to the render goroutine once the owning component is live.
type Parameter struct {
	typ         Type
	base        atomic.Uint64
	instant     float64
	min, max    float64
	def         float64
	modulatable bool
	strategy    Strategy
	level       int

	modulator Modulator
	data      ModulationData
	depth     *Parameter

	listeners []func()
}

func newParameter(t Type, def float64, modulatable bool, min, max float64, level, maxDepth int) *Parameter {
	tr := TraitsOf(t)
	p := &Parameter{
		typ:         t,
		min:         min,
		max:         max,
		modulatable: modulatable,
		strategy:    tr.Strategy,
		level:       level,
	}
	p.def = p.clamp(def)
	p.base.Store(math.Float64bits(p.def))
	p.instant = p.def
	if modulatable && level < maxDepth {
		d := TraitsOf(Depth)
		p.depth = newParameter(Depth, d.Default, level+1 < maxDepth, d.Min, d.Max, level+1, maxDepth)
	}
	return p
}

// New creates a standalone parameter with the traits of t.
func New(t Type, modulatable bool) *Parameter {
	tr := TraitsOf(t)
	return newParameter(t, tr.Default, modulatable, tr.Min, tr.Max, 0, DefaultMaxDepth)
}

func (p *Parameter) Type() Type { return p.typ }
func (p *Parameter) Kind() Kind { return TraitsOf(p.typ).Kind }
func (p *Parameter) Min() float64 { return p.min }
func (p *Parameter) Max() float64 { return p.max }
func (p *Parameter) Default() float64 { return p.def }
func (p *Parameter) Modulatable() bool { return p.modulatable }
func (p *Parameter) Strategy() Strategy { return p.strategy }
func (p *Parameter) Depth() *Parameter { return p.depth }
func (p *Parameter) Modulator() Modulator { return p.modulator }

// Level is 0 for a component parameter and n for its n-th nested depth.
func (p *Parameter) Level() int { return p.level }

func (p *Parameter) SetStrategy(s Strategy) { p.strategy = s }

func (p *Parameter) clamp(v float64) float64 {
	if math.IsNaN(v) {
		return p.min
	}
	if v < p.min {
		return p.min
	}
	if v > p.max {
		return p.max
	}
	return v
}

// Value is the base value.
func (p *Parameter) Value() float64 {
	return math.Float64frombits(p.base.Load())
}

// SetValue clamps v into range, rounds it for integer kinds and notifies
// change listeners.
func (p *Parameter) SetValue(v float64) {
	v = p.clamp(v)
	if k := p.Kind(); k != KindDouble && k != KindFloat {
		v = p.clamp(Double(v).As(k).Float64())
	}
	p.base.Store(math.Float64bits(v))
	for _, fn := range p.listeners {
		fn()
	}
}

// Get returns the base value as a Value of the parameter's kind.
func (p *Parameter) Get() Value {
	return Double(p.Value()).As(p.Kind())
}

// Set converts v to the parameter's kind before clamping.
func (p *Parameter) Set(v Value) {
	p.SetValue(v.As(p.Kind()).Float64())
}

// Reset restores the default value.
func (p *Parameter) Reset() {
	p.SetValue(p.def)
}

// Instantaneous is the value to use for audio-rate behaviour.
func (p *Parameter) Instantaneous() float64 {
	return p.instant
}

// OnChange registers fn to run after every SetValue. Listeners must be
// registered before the parameter is shared with other goroutines.
func (p *Parameter) OnChange(fn func()) {
	p.listeners = append(p.listeners, fn)
}

// SetModulation attaches m. Keys m requires that data lacks are seeded with
// zero.
func (p *Parameter) SetModulation(m Modulator, data ModulationData) error {
	if !p.modulatable {
		return ErrNotModulatable
	}
	p.modulator = m
	data.Seed(m.RequiredKeys())
	p.data = data
	return nil
}

func (p *Parameter) RemoveModulation() {
	p.modulator = nil
	p.data = ModulationData{}
	p.instant = p.Value()
}

// ModulationData exposes the data of the current link.
func (p *Parameter) ModulationData() *ModulationData {
	return &p.data
}

// Modulate recomputes the instantaneous value.
func (p *Parameter) Modulate() {
	depth := 1.0
	if p.depth != nil {
		p.depth.Modulate()
		depth = p.depth.instant
	}
	base := p.Value()
	if !p.modulatable || p.modulator == nil || p.strategy == None {
		p.instant = base
		return
	}
	out := p.modulator.Modulate(base, &p.data)
	v := p.strategy.Combine(base, depth, out)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		v = base
	}
	p.instant = p.clamp(v)
}

// Resolve returns p for level 0 and the nested depth parameter for level n.
func (p *Parameter) Resolve(level int) (*Parameter, error) {
	q := p
	for i := 0; i < level; i++ {
		if q.depth == nil {
			return nil, ErrDepthLevel
		}
		q = q.depth
	}
	return q, nil
}
