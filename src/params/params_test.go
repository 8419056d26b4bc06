package params

import (
	"errors"
	"math"
	"testing"
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

type constModulator struct {
	out   float64
	calls int
}

func (c *constModulator) Modulate(value float64, data *ModulationData) float64 {
	c.calls++
	data.Set(Output, c.out)
	return c.out
}

func (c *constModulator) RequiredKeys() KeySet { return KeysOf(Output) }

func TestSetValueClamps(t *testing.T) {
	for ty := Type(0); ty < NumTypes; ty++ {
		tr := TraitsOf(ty)
		p := New(ty, false)
		for _, v := range []float64{tr.Min - 10, tr.Min, tr.Default, tr.Max, -1e300, 1e300} {
			p.SetValue(v)
			want := math.Max(tr.Min, math.Min(tr.Max, v))
			if p.Value() != want {
				t.Errorf("%v: set %v, expected %v, but got: %v", ty, v, want, p.Value())
			}
		}
	}
}

func TestSetValueRoundsIntegerKinds(t *testing.T) {
	cases := []struct {
		ty       Type
		set      float64
		expected float64
	}{
		{Waveform, 2.6, 3},
		{FilterType, 1.4, 1},
		{BPM, 120.5, 121},
		{Frequency, 440.25, 440.25},
	}
	for _, c := range cases {
		t.Run(TraitsOf(c.ty).Name, func(t *testing.T) {
			p := New(c.ty, false)
			p.SetValue(c.set)
			expectEqual(t, p.Value(), c.expected)
			expectEqual(t, p.Get().Float64(), p.Value())
		})
	}
}

func TestSetTypedValue(t *testing.T) {
	p := New(MidiValue, false)
	p.Set(Double(300))
	expectEqual(t, p.Get().Int(), 127)
	p.Set(Double(60.4))
	expectEqual(t, p.Get().Int(), 60)

	s := New(Status, false)
	s.Set(Int(5))
	expectEqual(t, s.Get().Bool(), true)
	expectEqual(t, s.Get().Kind, KindBool)
}

func TestUnmodulatedInstantFollowsValue(t *testing.T) {
	tests := []struct {
		name        string
		modulatable bool
		modulator   Modulator
		strategy    Strategy
	}{
		{"not modulatable", false, nil, Additive},
		{"no modulator", true, nil, Exponential},
		{"strategy none", true, &constModulator{out: 3}, None},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := New(Frequency, tc.modulatable)
			p.SetValue(220)
			if tc.modulator != nil {
				if err := p.SetModulation(tc.modulator, ModulationData{}); err != nil {
					t.Fatalf("SetModulation: %v", err)
				}
			}
			p.SetStrategy(tc.strategy)
			p.Modulate()
			expectEqual(t, p.Instantaneous(), 220.0)
			expectEqual(t, p.Value(), 220.0)
		})
	}
}

func TestStrategies(t *testing.T) {
	tests := []struct {
		strategy Strategy
		value    float64
		depth    float64
		out      float64
		expected float64
	}{
		{Additive, 0.2, 0.5, 0.4, 0.4},
		{Multiplicative, 2, 0.5, 3, 3},
		{Exponential, 440, 1, 0, 440},
		{Exponential, 440, 1, 1, 880},
		{Exponential, 440, 0.5, -2, 220},
		{Logarithmic, 0.8, 1, 0, 0},
		{Logarithmic, 0.8, 1, -1, 0},
		{Logarithmic, 0.8, 1, 1, 0.8},
		{Logarithmic, 1, 1, 0.5, math.Pow(10, -30.0/20)},
		{Replace, 5, 2, 0.25, 0.5},
		{None, 5, 2, 0.25, 5},
	}
	for _, tc := range tests {
		t.Run(tc.strategy.String(), func(t *testing.T) {
			expectNearlyEqual(t, tc.strategy.Combine(tc.value, tc.depth, tc.out), tc.expected)
		})
	}
}

func TestExponentialZeroModulationIsIdentity(t *testing.T) {
	p := New(Frequency, true)
	p.SetValue(1234.5)
	expectEqual(t, p.SetModulation(&constModulator{out: 0}, ModulationData{}), nil)
	p.Modulate()
	expectEqual(t, p.Instantaneous(), 1234.5)
}

func TestModulationNeverChangesBase(t *testing.T) {
	p := New(Pan, true)
	p.SetValue(0.1)
	m := &constModulator{out: 0.5}
	expectEqual(t, p.SetModulation(m, ModulationData{}), nil)
	p.Modulate()
	expectNearlyEqual(t, p.Instantaneous(), 0.6)
	expectEqual(t, p.Value(), 0.1)
	expectNearlyEqual(t, p.ModulationData().Get(Output), 0.5)
}

func TestModulatedValueIsClamped(t *testing.T) {
	p := New(Pan, true)
	p.SetValue(0.8)
	expectEqual(t, p.SetModulation(&constModulator{out: 4}, ModulationData{}), nil)
	p.Modulate()
	expectEqual(t, p.Instantaneous(), 1.0)
}

func TestNestedDepth(t *testing.T) {
	p := New(Pan, true)
	d1 := p.Depth()
	if d1 == nil || !d1.Modulatable() {
		t.Fatalf("expected a modulatable first depth")
	}
	d2 := d1.Depth()
	if d2 == nil || d2.Modulatable() {
		t.Fatalf("expected a fixed second depth")
	}
	expectEqual(t, d2.Depth() == nil, true)

	expectEqual(t, p.SetModulation(&constModulator{out: 0.25}, ModulationData{}), nil)
	expectEqual(t, d1.SetModulation(&constModulator{out: 1}, ModulationData{}), nil)
	p.Modulate()
	// depth = 1 + 1*1 = 2, pan = 0 + 2*0.25
	expectNearlyEqual(t, d1.Instantaneous(), 2)
	expectNearlyEqual(t, p.Instantaneous(), 0.5)

	q, err := p.Resolve(2)
	expectEqual(t, err, nil)
	expectEqual(t, q, d2)
	_, err = p.Resolve(3)
	expectEqual(t, errors.Is(err, ErrDepthLevel), true)
}

func TestSetModulationSeedsRequiredKeys(t *testing.T) {
	p := New(Amplitude, true)
	expectEqual(t, p.SetModulation(&constModulator{}, ModulationData{}), nil)
	expectEqual(t, p.ModulationData().Has(Output), true)
	expectEqual(t, p.ModulationData().Has(MidiNote), false)

	var d ModulationData
	d.Set(MidiNote, 64)
	expectEqual(t, p.SetModulation(&constModulator{}, d), nil)
	expectEqual(t, p.ModulationData().Get(MidiNote), 64.0)

	fixed := New(Waveform, false)
	expectEqual(t, errors.Is(fixed.SetModulation(&constModulator{}, d), ErrNotModulatable), true)
}

func TestCarryOver(t *testing.T) {
	var d ModulationData
	d.Set(Output, 0.7)
	d.CarryOver()
	expectEqual(t, d.Has(InitialValue), false)
	d.Set(InitialValue, 0)
	d.CarryOver()
	expectEqual(t, d.Get(InitialValue), 0.7)
}

func TestChangeListener(t *testing.T) {
	p := New(Cutoff, true)
	count := 0
	p.OnChange(func() { count++ })
	p.SetValue(100)
	p.Reset()
	expectEqual(t, count, 2)
	expectEqual(t, p.Value(), TraitsOf(Cutoff).Default)
}

func TestMapReferencesAreNotModulated(t *testing.T) {
	parent := NewMap(DefaultMaxDepth)
	gain := parent.Add(Gain, 1, true)
	gm := &constModulator{out: 0.5}
	expectEqual(t, gain.SetModulation(gm, ModulationData{}), nil)

	child := NewMap(DefaultMaxDepth)
	child.Add(Frequency, 440, true)
	child.AddReferences(parent)
	expectEqual(t, child.IsReference(Gain), true)
	expectEqual(t, child.Get(Gain), gain)

	child.Modulate()
	expectEqual(t, gm.calls, 0)
	parent.Modulate()
	expectEqual(t, gm.calls, 1)
	expectEqual(t, child.Modulatable().Has(Gain), false)
	expectEqual(t, child.Modulatable().Has(Frequency), true)
}

func TestMapLookup(t *testing.T) {
	m := NewMap(DefaultMaxDepth)
	m.AddRange(MaxValue, 16, false, 1, 64)
	p, err := m.Lookup(MaxValue)
	expectEqual(t, err, nil)
	p.SetValue(100)
	expectEqual(t, m.Value(MaxValue), 64.0)
	_, err = m.Lookup(Attack)
	expectEqual(t, errors.Is(err, ErrUnknownParameter), true)
}

func TestParseType(t *testing.T) {
	ty, err := ParseType("q_factor")
	expectEqual(t, err, nil)
	expectEqual(t, ty, QFactor)
	_, err = ParseType("nope")
	expectEqual(t, errors.Is(err, ErrUnknownParameter), true)
}

func TestParseValue(t *testing.T) {
	v, err := ParseValue(KindBool, "on")
	expectEqual(t, err, nil)
	expectEqual(t, v.Bool(), true)
	v, err = ParseValue(KindUint8, "61.6")
	expectEqual(t, err, nil)
	expectEqual(t, v.Int(), 62)
	v, err = ParseValue(KindDouble, "0.25")
	expectEqual(t, err, nil)
	expectEqual(t, v.Float64(), 0.25)
	_, err = ParseValue(KindFloat, "x")
	expectEqual(t, err != nil, true)
}
