// Package tensor provides the minimal typed, shaped value container exchanged
// between schema declaration and tuple generation.
//
// A Spec describes what a position in a flat tuple will hold (dtype plus a
// shape whose dimensions may be Unknown). A Tensor is a concrete row-major
// value. Spec.Accepts decides whether a concrete tensor may occupy a declared
// position.
package tensor

import (
	"fmt"
	"strings"
)

// DType is the element type of a tensor.
type DType int

const (
	Invalid DType = iota
	Int64
	Float32
	String
	Int32
)

func (d DType) String() string {
	switch d {
	case Int64:
		return "int64"
	case Float32:
		return "float32"
	case String:
		return "string"
	case Int32:
		return "int32"
	default:
		return "invalid"
	}
}

// ParseDType is the inverse of DType.String.
func ParseDType(s string) (DType, error) {
	switch strings.ToLower(s) {
	case "int64":
		return Int64, nil
	case "float32":
		return Float32, nil
	case "string":
		return String, nil
	case "int32":
		return Int32, nil
	}
	return Invalid, fmt.Errorf("tensor: unknown dtype %q", s)
}

// Unknown marks a dimension whose size is only known once data exists.
const Unknown = -1

// Shape lists dimension sizes. A declared shape may contain Unknown; a
// concrete tensor shape never does.
type Shape []int

func (s Shape) String() string {
	parts := make([]string, len(s))
	for i, d := range s {
		if d == Unknown {
			parts[i] = "?"
		} else {
			parts[i] = fmt.Sprint(d)
		}
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Rank returns the number of dimensions.
func (s Shape) Rank() int { return len(s) }

// NumElements returns the product of all dimensions. It returns Unknown if any
// dimension is unbound.
func (s Shape) NumElements() int {
	n := 1
	for _, d := range s {
		if d == Unknown {
			return Unknown
		}
		n *= d
	}
	return n
}

// Compatible reports whether concrete matches s: equal rank, and equal sizes
// on every dimension bound in s.
func (s Shape) Compatible(concrete Shape) bool {
	if len(s) != len(concrete) {
		return false
	}
	for i, d := range s {
		if d != Unknown && d != concrete[i] {
			return false
		}
	}
	return true
}

// Equal reports exact equality.
func (s Shape) Equal(o Shape) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if s[i] != o[i] {
			return false
		}
	}
	return true
}

// Spec is a declared (dtype, shape) pair for one tuple position.
type Spec struct {
	DType DType
	Shape Shape
}

func (s Spec) String() string { return s.DType.String() + s.Shape.String() }

// Accepts reports whether t may occupy a position declared as s.
func (s Spec) Accepts(t Tensor) bool {
	return t.dtype == s.DType && s.Shape.Compatible(t.shape)
}

// Tensor is a dense row-major value. The zero Tensor has dtype Invalid.
type Tensor struct {
	dtype DType
	shape Shape
	data  any // []int64 | []float32 | []string | []int32
}

func inferShape(n int, shape []int) Shape {
	if len(shape) == 0 {
		return Shape{n}
	}
	s := Shape(append([]int(nil), shape...))
	if got := s.NumElements(); got != n {
		panic(fmt.Sprintf("tensor: shape %s holds %d elements, got %d values", s, got, n))
	}
	return s
}

// FromInt64 wraps vals. With no shape the tensor is one-dimensional.
func FromInt64(vals []int64, shape ...int) Tensor {
	return Tensor{dtype: Int64, shape: inferShape(len(vals), shape), data: vals}
}

// FromFloat32 wraps vals. With no shape the tensor is one-dimensional.
func FromFloat32(vals []float32, shape ...int) Tensor {
	return Tensor{dtype: Float32, shape: inferShape(len(vals), shape), data: vals}
}

// FromString wraps vals. With no shape the tensor is one-dimensional.
func FromString(vals []string, shape ...int) Tensor {
	return Tensor{dtype: String, shape: inferShape(len(vals), shape), data: vals}
}

// FromInt32 wraps vals. With no shape the tensor is one-dimensional.
func FromInt32(vals []int32, shape ...int) Tensor {
	return Tensor{dtype: Int32, shape: inferShape(len(vals), shape), data: vals}
}

// Empty returns a tensor satisfying spec with every Unknown dimension set to
// zero.
func Empty(spec Spec) Tensor {
	shape := make([]int, len(spec.Shape))
	for i, d := range spec.Shape {
		if d == Unknown {
			d = 0
		}
		shape[i] = d
	}
	n := Shape(shape).NumElements()
	switch spec.DType {
	case Int64:
		return FromInt64(make([]int64, n), shape...)
	case Float32:
		return FromFloat32(make([]float32, n), shape...)
	case String:
		return FromString(make([]string, n), shape...)
	case Int32:
		return FromInt32(make([]int32, n), shape...)
	}
	panic("tensor: empty of invalid dtype")
}

func (t Tensor) DType() DType { return t.dtype }

// Shape returns a copy of the tensor shape.
func (t Tensor) Shape() Shape { return append(Shape(nil), t.shape...) }

// IsZero reports whether t is the zero Tensor (no value).
func (t Tensor) IsZero() bool { return t.dtype == Invalid }

// Dim returns the size of dimension i.
func (t Tensor) Dim(i int) int { return t.shape[i] }

// Len returns the number of elements.
func (t Tensor) Len() int {
	switch v := t.data.(type) {
	case []int64:
		return len(v)
	case []float32:
		return len(v)
	case []string:
		return len(v)
	case []int32:
		return len(v)
	}
	return 0
}

// Int64s returns the backing values, or nil for another dtype.
func (t Tensor) Int64s() []int64 { v, _ := t.data.([]int64); return v }

// Float32s returns the backing values, or nil for another dtype.
func (t Tensor) Float32s() []float32 { v, _ := t.data.([]float32); return v }

// Strings returns the backing values, or nil for another dtype.
func (t Tensor) Strings() []string { v, _ := t.data.([]string); return v }

// Int32s returns the backing values, or nil for another dtype.
func (t Tensor) Int32s() []int32 { v, _ := t.data.([]int32); return v }

// Rows returns the size of the leading dimension.
func (t Tensor) Rows() int {
	if len(t.shape) == 0 {
		return 0
	}
	return t.shape[0]
}

func (t Tensor) rowWidth() int {
	w := 1
	for _, d := range t.shape[1:] {
		w *= d
	}
	return w
}

// SliceRows returns rows [start, end) along the leading dimension. The result
// shares no memory with t.
func (t Tensor) SliceRows(start, end int) Tensor {
	if start < 0 || end > t.Rows() || start > end {
		panic(fmt.Sprintf("tensor: rows [%d:%d] out of range for %s", start, end, t.shape))
	}
	w := t.rowWidth()
	shape := append(Shape{end - start}, t.shape[1:]...)
	lo, hi := start*w, end*w
	switch v := t.data.(type) {
	case []int64:
		return Tensor{dtype: t.dtype, shape: shape, data: append([]int64(nil), v[lo:hi]...)}
	case []float32:
		return Tensor{dtype: t.dtype, shape: shape, data: append([]float32(nil), v[lo:hi]...)}
	case []string:
		return Tensor{dtype: t.dtype, shape: shape, data: append([]string(nil), v[lo:hi]...)}
	case []int32:
		return Tensor{dtype: t.dtype, shape: shape, data: append([]int32(nil), v[lo:hi]...)}
	}
	return Tensor{}
}

// GatherRows returns the rows at the given indices, in order.
func (t Tensor) GatherRows(idx []int) Tensor {
	parts := make([]Tensor, len(idx))
	for i, r := range idx {
		parts[i] = t.SliceRows(r, r+1)
	}
	if len(parts) == 0 {
		return t.SliceRows(0, 0)
	}
	out, err := ConcatRows(parts...)
	if err != nil {
		panic(err)
	}
	return out
}

// ConcatRows concatenates tensors along the leading dimension. All inputs must
// share dtype and trailing dimensions. Zero tensors are skipped; if every
// input is zero the result is zero too.
func ConcatRows(ts ...Tensor) (Tensor, error) {
	var first *Tensor
	rows := 0
	for i := range ts {
		if ts[i].IsZero() {
			continue
		}
		if first == nil {
			first = &ts[i]
		} else if ts[i].dtype != first.dtype || !ts[i].shape[1:].Equal(first.shape[1:]) {
			return Tensor{}, fmt.Errorf("tensor: cannot concat %s%s with %s%s",
				first.dtype, first.shape, ts[i].dtype, ts[i].shape)
		}
		rows += ts[i].Rows()
	}
	if first == nil {
		return Tensor{}, nil
	}
	shape := append(Shape{rows}, first.shape[1:]...)
	switch first.dtype {
	case Int64:
		out := make([]int64, 0, shape.NumElements())
		for _, t := range ts {
			out = append(out, t.Int64s()...)
		}
		return Tensor{dtype: Int64, shape: shape, data: out}, nil
	case Float32:
		out := make([]float32, 0, shape.NumElements())
		for _, t := range ts {
			out = append(out, t.Float32s()...)
		}
		return Tensor{dtype: Float32, shape: shape, data: out}, nil
	case String:
		out := make([]string, 0, shape.NumElements())
		for _, t := range ts {
			out = append(out, t.Strings()...)
		}
		return Tensor{dtype: String, shape: shape, data: out}, nil
	case Int32:
		out := make([]int32, 0, shape.NumElements())
		for _, t := range ts {
			out = append(out, t.Int32s()...)
		}
		return Tensor{dtype: Int32, shape: shape, data: out}, nil
	}
	return Tensor{}, fmt.Errorf("tensor: cannot concat dtype %s", first.dtype)
}

func (t Tensor) String() string {
	if t.IsZero() {
		return "<nil>"
	}
	return fmt.Sprintf("%s%s", t.dtype, t.shape)
}
