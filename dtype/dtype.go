// Package dtype defines the closed set of element types a tensor can hold.
package dtype

import (
	"github.com/pkg/errors"
)

// T identifies one of the supported fixed-width element types.
type T uint8

const (
	// Unknown is the zero value. A tensor whose dtype is Unknown has not had
	// its dtype fixed yet; most engine operations require a fixed dtype.
	Unknown T = iota
	Bool
	Int8
	Int16
	Int32
	Int64
	Uint8
	Uint16
	Uint32
	Uint64
	Float32
	Float64
)

var names = map[T]string{
	Bool:    "bool",
	Int8:    "int8",
	Int16:   "int16",
	Int32:   "int32",
	Int64:   "int64",
	Uint8:   "uint8",
	Uint16:  "uint16",
	Uint32:  "uint32",
	Uint64:  "uint64",
	Float32: "float32",
	Float64: "float64",
}

var sizes = map[T]int{
	Bool:    1,
	Int8:    1,
	Int16:   2,
	Int32:   4,
	Int64:   8,
	Uint8:   1,
	Uint16:  2,
	Uint32:  4,
	Uint64:  8,
	Float32: 4,
	Float64: 8,
}

// All lists every supported dtype, in declaration order.
func All() []T {
	return []T{Bool, Int8, Int16, Int32, Int64, Uint8, Uint16, Uint32, Uint64, Float32, Float64}
}

// Parse resolves a dtype by name.
func Parse(s string) (T, error) {
	for t, name := range names {
		if name == s {
			return t, nil
		}
	}
	return Unknown, errors.Errorf("unsupported dtype %q", s)
}

func (t T) String() string {
	if s, ok := names[t]; ok {
		return s
	}
	return "unknown"
}

// Size returns the element width in bytes, or 0 for Unknown.
func (t T) Size() int {
	return sizes[t]
}

// Valid reports whether t is a member of the supported set.
func (t T) Valid() bool {
	_, ok := sizes[t]
	return ok
}
