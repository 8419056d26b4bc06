package params

import "fmt"

// Key names a slot in ModulationData.
//
// Modulators write their latest output to Output. Owners copy Output into
// InitialValue on every note transition (retrigger or release), so a stage
// always starts from the level the previous one left behind.
type Key uint8

const (
	MidiNote Key = iota
	InitialValue
	Output
	State1
	State2
	numKeys
)

var keyNames = [numKeys]string{"MIDI_NOTE", "INITIAL_VALUE", "OUTPUT", "STATE_1", "STATE_2"}

func (k Key) String() string {
	if k < numKeys {
		return keyNames[k]
	}
	return fmt.Sprintf("Key(%d)", k)
}

// KeySet is a bitset over Key.
type KeySet uint8

func KeysOf(keys ...Key) KeySet {
	var s KeySet
	for _, k := range keys {
		s |= 1 << k
	}
	return s
}

func (s KeySet) Has(k Key) bool { return s&(1<<k) != 0 }

// ModulationData is the per-link scratch space handed to a modulator on
// every evaluation. The zero value is empty.
type ModulationData struct {
	values  [numKeys]float64
	present KeySet
}

// NewModulationData seeds every key in required with zero.
func NewModulationData(required KeySet) ModulationData {
	var d ModulationData
	d.Seed(required)
	return d
}

func (d *ModulationData) Has(k Key) bool { return d.present.Has(k) }

// Get returns 0 for a missing key.
func (d *ModulationData) Get(k Key) float64 { return d.values[k] }

func (d *ModulationData) Set(k Key, v float64) {
	d.values[k] = v
	d.present |= 1 << k
}

func (d *ModulationData) Delete(k Key) {
	d.values[k] = 0
	d.present &^= 1 << k
}

func (d *ModulationData) Empty() bool { return d.present == 0 }

// Seed adds the keys of required that are not present yet, set to zero.
func (d *ModulationData) Seed(required KeySet) {
	for k := Key(0); k < numKeys; k++ {
		if required.Has(k) && !d.Has(k) {
			d.Set(k, 0)
		}
	}
}

// CarryOver moves the last output into InitialValue when both exist.
func (d *ModulationData) CarryOver() {
	if d.Has(InitialValue) && d.Has(Output) {
		d.values[InitialValue] = d.values[Output]
	}
}

// Modulator drives the instantaneous value of a parameter.
type Modulator interface {
	// Modulate may read and update data, which is owned by the caller.
	Modulate(value float64, data *ModulationData) float64
	RequiredKeys() KeySet
}
