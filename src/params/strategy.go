package params

import (
	"fmt"
	"math"
	"strings"
)

// Strategy decides how a modulator output combines with a base value.
type Strategy uint8

const (
	None Strategy = iota
	Additive
	Multiplicative
	Exponential
	Logarithmic
	Replace
)

var strategyNames = [...]string{"NONE", "ADDITIVE", "MULTIPLICATIVE", "EXPONENTIAL", "LOGARITHMIC", "REPLACE"}

func (s Strategy) String() string {
	if int(s) < len(strategyNames) {
		return strategyNames[s]
	}
	return fmt.Sprintf("Strategy(%d)", s)
}

// ParseStrategy is the inverse of String.
func ParseStrategy(name string) (Strategy, error) {
	upper := strings.ToUpper(name)
	for i, n := range strategyNames {
		if n == upper {
			return Strategy(i), nil
		}
	}
	return None, fmt.Errorf("unknown modulation strategy %q", name)
}

const logarithmicFloorDB = -60.0

// Combine applies s to a base value, the depth and a modulator output.
func (s Strategy) Combine(value, depth, modOut float64) float64 {
	switch s {
	case Additive:
		return value + depth*modOut
	case Multiplicative:
		return value * depth * modOut
	case Exponential:
		return value * math.Exp2(depth*modOut)
	case Logarithmic:
		if modOut <= 0 {
			return 0
		}
		m := depth * modOut
		if m > 1 {
			m = 1
		}
		dB := logarithmicFloorDB + -logarithmicFloorDB*m
		return value * math.Pow(10, dB/20)
	case Replace:
		return depth * modOut
	}
	return value
}
