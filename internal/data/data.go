// Package data holds the per-alias tensor bundle produced for one node or
// edge role in a single pull.
package data

import (
	"errors"
	"fmt"

	"github.com/hanpama/graphtensor/internal/mask"
	"github.com/hanpama/graphtensor/internal/tensor"
)

// ErrMissingField is returned when a field selected by a mask has no value.
var ErrMissingField = errors.New("data: selected field has no value")

// ErrRagged is returned by Concat when inputs disagree on their fields.
var ErrRagged = errors.New("data: inputs disagree on fields")

// Data is the set of tensors describing a batch of nodes or edges of one
// type. Fields not selected by the role's mask stay zero.
//
// Dense attributes have one row per entity. For sparse roles (variable
// neighbor counts) Offsets holds the per-source neighbor count, Indices the
// [row, col] coordinates and DenseShape the dense [rows, max_cols] extent.
type Data struct {
	IntAttrs    tensor.Tensor
	FloatAttrs  tensor.Tensor
	StringAttrs tensor.Tensor
	Labels      tensor.Tensor
	Weights     tensor.Tensor
	IDs         tensor.Tensor
	DstIDs      tensor.Tensor
	Offsets     tensor.Tensor
	Indices     tensor.Tensor
	DenseShape  tensor.Tensor
}

func (d *Data) ptr(f mask.Field) *tensor.Tensor {
	switch f {
	case mask.IntAttrs:
		return &d.IntAttrs
	case mask.FloatAttrs:
		return &d.FloatAttrs
	case mask.StringAttrs:
		return &d.StringAttrs
	case mask.Labels:
		return &d.Labels
	case mask.Weights:
		return &d.Weights
	case mask.IDs:
		return &d.IDs
	case mask.DstIDs:
		return &d.DstIDs
	case mask.Offsets:
		return &d.Offsets
	case mask.Indices:
		return &d.Indices
	case mask.DenseShape:
		return &d.DenseShape
	}
	panic("data: unknown field " + f.String())
}

// Get returns the tensor stored for f.
func (d *Data) Get(f mask.Field) tensor.Tensor { return *d.ptr(f) }

// Set stores t for f.
func (d *Data) Set(f mask.Field, t tensor.Tensor) { *d.ptr(f) = t }

// Len returns the number of entities, taken from IDs.
func (d *Data) Len() int {
	if d == nil {
		return 0
	}
	return d.IDs.Rows()
}

// Sparse reports whether the bundle carries sparse neighbor coordinates.
func (d *Data) Sparse() bool { return d != nil && !d.Offsets.IsZero() }

// AppendFlat appends the fields selected by m to dst, in m.Fields order.
func (d *Data) AppendFlat(dst []tensor.Tensor, m mask.FieldMask) ([]tensor.Tensor, error) {
	for _, f := range m.Fields() {
		t := d.Get(f)
		if t.IsZero() {
			return nil, fmt.Errorf("%w: %s", ErrMissingField, f)
		}
		dst = append(dst, t)
	}
	return dst, nil
}

// Flatten returns the fields selected by m, in m.Fields order.
func (d *Data) Flatten(m mask.FieldMask) ([]tensor.Tensor, error) {
	return d.AppendFlat(make([]tensor.Tensor, 0, m.Len()), m)
}

// FromFlat is the inverse of Flatten: it consumes one tensor per field
// selected by m from the front of values and returns the unconsumed rest.
func FromFlat(m mask.FieldMask, values []tensor.Tensor) (*Data, []tensor.Tensor, error) {
	fields := m.Fields()
	if len(values) < len(fields) {
		return nil, nil, fmt.Errorf("data: mask selects %d fields, only %d values left", len(fields), len(values))
	}
	d := &Data{}
	for i, f := range fields {
		d.Set(f, values[i])
	}
	return d, values[len(fields):], nil
}

// SliceRows returns entities [start, end). Sparse bundles cannot be sliced.
func (d *Data) SliceRows(start, end int) (*Data, error) {
	if d.Sparse() {
		return nil, errors.New("data: cannot slice sparse bundle")
	}
	out := &Data{}
	for _, f := range mask.AllFields() {
		if t := d.Get(f); !t.IsZero() {
			out.Set(f, t.SliceRows(start, end))
		}
	}
	return out, nil
}

// GatherRows returns the entities at idx, in order.
func (d *Data) GatherRows(idx []int) *Data {
	out := &Data{}
	for _, f := range mask.AllFields() {
		if t := d.Get(f); !t.IsZero() {
			out.Set(f, t.GatherRows(idx))
		}
	}
	return out
}

// Concat stacks bundles row-wise. Inputs without entities are skipped. A
// field present in one non-empty input must be present in all of them, and
// dense fields must have one row per entity.
func Concat(ds ...*Data) (*Data, error) {
	parts := make([]*Data, 0, len(ds))
	for _, d := range ds {
		if d.Len() > 0 {
			parts = append(parts, d)
		}
	}
	out := &Data{}
	for _, f := range mask.AllFields() {
		ts := make([]tensor.Tensor, len(parts))
		have := 0
		for i, d := range parts {
			ts[i] = d.Get(f)
			if ts[i].IsZero() {
				continue
			}
			have++
			if f < mask.Offsets && ts[i].Rows() != d.Len() {
				return nil, fmt.Errorf("%w: input %d field %s has %d rows for %d entities",
					ErrRagged, i, f, ts[i].Rows(), d.Len())
			}
		}
		if have > 0 && have < len(parts) {
			return nil, fmt.Errorf("%w: field %s present in %d of %d inputs", ErrRagged, f, have, len(parts))
		}
		t, err := tensor.ConcatRows(ts...)
		if err != nil {
			return nil, fmt.Errorf("data: concat %s: %w", f, err)
		}
		out.Set(f, t)
	}
	return out, nil
}
