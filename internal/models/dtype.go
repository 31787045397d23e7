package models

import (
	"fmt"
	"math"
	"strings"
)

// DType is the sample type of an acquisition. Planes are held as float64 in
// memory; DType decides how values are narrowed when a result is produced.
// The zero value is not a valid dtype.
type DType int

const (
	Uint8 DType = iota + 1
	Uint16
	Uint32
	Float32
	Float64
)

var dtypeNames = map[DType]string{
	Uint8:   "uint8",
	Uint16:  "uint16",
	Uint32:  "uint32",
	Float32: "float32",
	Float64: "float64",
}

func (d DType) String() string {
	if name, ok := dtypeNames[d]; ok {
		return name
	}
	return fmt.Sprintf("DType(%d)", int(d))
}

// ParseDType resolves a dtype name such as "uint16".
func ParseDType(name string) (DType, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for d, n := range dtypeNames {
		if n == name {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unsupported dtype %q", name)
}

// Size returns the number of bytes per sample.
func (d DType) Size() int {
	switch d {
	case Uint8:
		return 1
	case Uint16:
		return 2
	case Uint32, Float32:
		return 4
	default:
		return 8
	}
}

// IsInteger reports whether d is one of the unsigned integer types.
func (d DType) IsInteger() bool {
	return d == Uint8 || d == Uint16 || d == Uint32
}

// Cast narrows v to d the way an array astype does: integer targets truncate
// toward zero and wrap modulo 2^bits, float32 rounds to single precision.
// Non-finite values become 0 for integer targets.
func (d DType) Cast(v float64) float64 {
	switch d {
	case Float64:
		return v
	case Float32:
		return float64(float32(v))
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	mod := math.Ldexp(1, 8*d.Size())
	t := math.Mod(math.Trunc(v), mod)
	if t < 0 {
		t += mod
	}
	return t
}
