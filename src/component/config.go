package component

// Per-type configuration accepted by Create. Documents are YAML, so JSON
// works too. Missing fields keep the defaults below.

type OscillatorConfig struct {
	Waveform  string  `yaml:"waveform"`
	Frequency float64 `yaml:"frequency"`
	Amplitude float64 `yaml:"amplitude"`
	Gain      float64 `yaml:"gain"`
	Detune    float64 `yaml:"detune"`
}

type PolyOscillatorConfig struct {
	Waveform string  `yaml:"waveform"`
	Detune   float64 `yaml:"detune"`
}

type BiquadFilterConfig struct {
	FilterType string  `yaml:"filter_type"`
	Cutoff     float64 `yaml:"cutoff"`
	QFactor    float64 `yaml:"q_factor"`
	Bandwidth  float64 `yaml:"bandwidth"`
	ShelfSlope float64 `yaml:"shelf_slope"`
	DBGain     float64 `yaml:"db_gain"`
}

type LinearFaderConfig struct {
	Attack  float64 `yaml:"attack"`
	Release float64 `yaml:"release"`
}

type ADSREnvelopeConfig struct {
	Attack  float64 `yaml:"attack"`
	Decay   float64 `yaml:"decay"`
	Sustain float64 `yaml:"sustain"`
	Release float64 `yaml:"release"`
}

type MidiFilterConfig struct {
	MinValue uint8 `yaml:"min_value"`
	MaxValue uint8 `yaml:"max_value"`
}

type MonophonicFilterConfig struct{}

type SequencerConfig struct {
	BPM       int     `yaml:"bpm"`
	Velocity  uint8   `yaml:"velocity"`
	Length    float64 `yaml:"length"`
	MaxLength float64 `yaml:"max_length"`
}

type DelayConfig struct {
	DelayTime   float64 `yaml:"delay_time"`
	MaxDelaySec float64 `yaml:"max_delay_sec"`
	Gain        float64 `yaml:"gain"`
}

type GainConfig struct {
	Gain float64 `yaml:"gain"`
}

type MultiplyConfig struct {
	Scalar float64 `yaml:"scalar"`
}
