package params

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Value is the closed variant exchanged with the control plane.
type Value struct {
	Kind Kind
	num  float64
}

func Bool(b bool) Value {
	if b {
		return Value{Kind: KindBool, num: 1}
	}
	return Value{Kind: KindBool}
}
func Uint8(v uint8) Value { return Value{Kind: KindUint8, num: float64(v)} }
func Int(v int) Value { return Value{Kind: KindInt, num: float64(v)} }
func Float(v float32) Value { return Value{Kind: KindFloat, num: float64(v)} }
func Double(v float64) Value { return Value{Kind: KindDouble, num: v} }

// Float64 returns the numeric value regardless of kind.
func (v Value) Float64() float64 { return v.num }

func (v Value) Bool() bool { return v.num != 0 }

func (v Value) Int() int { return int(math.Round(v.num)) }

// As converts v into the representation of kind k.
func (v Value) As(k Kind) Value {
	switch k {
	case KindBool:
		return Bool(v.num != 0)
	case KindUint8:
		n := math.Round(v.num)
		if n < 0 {
			n = 0
		}
		if n > math.MaxUint8 {
			n = math.MaxUint8
		}
		return Uint8(uint8(n))
	case KindInt:
		return Int(int(math.Round(v.num)))
	case KindFloat:
		return Value{Kind: KindFloat, num: v.num}
	}
	return Double(v.num)
}

func (v Value) String() string {
	switch v.Kind {
	case KindBool:
		return strconv.FormatBool(v.Bool())
	case KindUint8, KindInt:
		return strconv.Itoa(v.Int())
	}
	return strconv.FormatFloat(v.num, 'g', -1, 64)
}

// ParseValue reads s as a value of kind k.
func ParseValue(k Kind, s string) (Value, error) {
	switch k {
	case KindBool:
		switch strings.ToLower(s) {
		case "true", "on", "1":
			return Bool(true), nil
		case "false", "off", "0":
			return Bool(false), nil
		}
		return Value{}, fmt.Errorf("invalid bool %q", s)
	case KindUint8, KindInt:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			f, ferr := strconv.ParseFloat(s, 64)
			if ferr != nil {
				return Value{}, err
			}
			return Double(f).As(k), nil
		}
		return Double(float64(n)).As(k), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Value{}, err
	}
	return Double(f).As(k), nil
}
