package component

import (
	"sync/atomic"

	"github.com/jinjor/desktop-synth/src/dsp"
	"github.com/jinjor/desktop-synth/src/params"
	"github.com/jinjor/desktop-synth/src/signal"
)

// ----- BiquadFilter ----- //

// BiquadFilter is an insert effect over the sum of its inputs, and a
// modulator whose two state variables live in each link's data.
type BiquadFilter struct {
	core
	signal.Base
	sampleRate float64
	coeffs     dsp.Coefficients
	z          [2]float64
	dirty      atomic.Bool

	filterType *params.Parameter
	cutoff     *params.Parameter
	q          *params.Parameter
	bandwidth  *params.Parameter
	shelf      *params.Parameter
	dbGain     *params.Parameter
	shape      []*params.Parameter
}

func newBiquadFilter(c core, env Env, cfg *BiquadFilterConfig) (*BiquadFilter, error) {
	ft, err := dsp.ParseFilterType(cfg.FilterType)
	if err != nil {
		return nil, err
	}
	f := &BiquadFilter{core: c, sampleRate: env.SampleRate}
	f.Base.Init(f, env.BufferSize)
	m := f.params
	f.filterType = m.Add(params.FilterType, float64(ft), false)
	f.cutoff = m.AddRange(params.Cutoff, cfg.Cutoff, true, 0, env.SampleRate/2)
	f.q = m.Add(params.QFactor, cfg.QFactor, true)
	f.bandwidth = m.Add(params.Bandwidth, cfg.Bandwidth, true)
	f.shelf = m.Add(params.Shelf, cfg.ShelfSlope, true)
	f.dbGain = m.Add(params.DBGain, cfg.DBGain, true)
	f.shape = []*params.Parameter{f.cutoff, f.q, f.bandwidth, f.shelf, f.dbGain}
	markDirty := func() { f.dirty.Store(true) }
	f.filterType.OnChange(markDirty)
	for _, p := range f.shape {
		p.OnChange(markDirty)
	}
	f.recalculate()
	return f, nil
}

// BiquadParams returns the settings from base values, or instantaneous
// values when instant is set.
func (f *BiquadFilter) BiquadParams(instant bool) dsp.BiquadParams {
	get := (*params.Parameter).Value
	if instant {
		get = (*params.Parameter).Instantaneous
	}
	return dsp.BiquadParams{
		Type:      dsp.FilterType(f.filterType.Value()),
		Freq:      get(f.cutoff),
		Q:         get(f.q),
		Bandwidth: get(f.bandwidth),
		Shelf:     get(f.shelf),
		DBGain:    get(f.dbGain),
	}
}

func (f *BiquadFilter) recalculate() {
	f.coeffs = dsp.NewCoefficients(f.BiquadParams(true), f.sampleRate)
}

func (f *BiquadFilter) modulated() bool {
	for _, p := range f.shape {
		if p.Modulator() != nil {
			return true
		}
	}
	return false
}

// refresh recomputes coefficients after a set, or every sample while a
// shape parameter is modulated.
func (f *BiquadFilter) refresh() {
	if f.dirty.Swap(false) || f.modulated() {
		f.recalculate()
	}
}

func (f *BiquadFilter) Tick() {
	f.Base.Tick()
	f.refresh()
}

func (f *BiquadFilter) CalculateSample() {
	f.SetSample(f.coeffs.Step(f.SumInputs(), &f.z))
}

func (f *BiquadFilter) RequiredKeys() params.KeySet {
	return params.KeysOf(params.State1, params.State2, params.Output)
}

// Modulate filters the parameter's base value.
func (f *BiquadFilter) Modulate(value float64, data *params.ModulationData) float64 {
	if f.dirty.Load() {
		f.refresh()
	}
	z := [2]float64{data.Get(params.State1), data.Get(params.State2)}
	y := f.coeffs.Step(value, &z)
	data.Set(params.State1, z[0])
	data.Set(params.State2, z[1])
	data.Set(params.Output, y)
	return y
}

// Coefficients are the ones in use by the render goroutine.
func (f *BiquadFilter) Coefficients() dsp.Coefficients { return f.coeffs }
