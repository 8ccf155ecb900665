// Package mask decides which optional tensor fields a node or edge role
// produces, and in which order.
//
// FieldMask.Fields is the only routine that enumerates fields. Spec
// declaration (Specs) and value flattening (data.Data.Flatten) both iterate
// it, so declared and produced tuples cannot disagree on field order.
package mask

import (
	"github.com/hanpama/graphtensor/internal/graphschema"
	"github.com/hanpama/graphtensor/internal/tensor"
)

// Field identifies one optional tensor of a Data bundle.
type Field int

const (
	IntAttrs Field = iota
	FloatAttrs
	StringAttrs
	Labels
	Weights
	IDs
	DstIDs
	Offsets
	Indices
	DenseShape

	numFields
)

var fieldNames = [numFields]string{
	"int_attrs", "float_attrs", "string_attrs", "labels", "weights",
	"ids", "dst_ids", "offsets", "indices", "dense_shape",
}

func (f Field) String() string {
	if f < 0 || f >= numFields {
		return "unknown"
	}
	return fieldNames[f]
}

// AllFields lists every field in canonical order.
func AllFields() []Field {
	out := make([]Field, numFields)
	for i := range out {
		out[i] = Field(i)
	}
	return out
}

// FieldMask selects the fields a role produces. Feature covers int attrs,
// float attrs, string attrs, labels and weights; ID covers ids and dst ids;
// Sparse covers offsets, indices and dense shape.
type FieldMask struct {
	Feature [5]bool
	ID      [2]bool
	Sparse  [3]bool
}

// Resolve derives the mask of a role from its decoder. A nil decoder behaves
// like a decoder without attributes.
func Resolve(dec *graphschema.Decoder, isEdge, isSparse bool) FieldMask {
	return FieldMask{
		Feature: [5]bool{
			dec.IntAttrNum() > 0,
			dec.FloatAttrNum() > 0,
			dec.StringAttrNum() > 0,
			dec.Labeled(),
			dec.Weighted(),
		},
		ID:     [2]bool{true, isEdge},
		Sparse: [3]bool{isSparse, isSparse, isSparse},
	}
}

// Has reports whether f is selected.
func (m FieldMask) Has(f Field) bool {
	switch {
	case f < IDs:
		return m.Feature[f]
	case f < Offsets:
		return m.ID[f-IDs]
	case f < numFields:
		return m.Sparse[f-Offsets]
	}
	return false
}

// Fields returns the selected fields in canonical order.
func (m FieldMask) Fields() []Field {
	out := make([]Field, 0, numFields)
	for f := Field(0); f < numFields; f++ {
		if m.Has(f) {
			out = append(out, f)
		}
	}
	return out
}

// Len returns the number of selected fields.
func (m FieldMask) Len() int { return len(m.Fields()) }

// Spec returns the declared (dtype, shape) of field f for a role decoded by
// dec. Attribute widths are bound by the decoder; every other size is
// unknown until data exists.
func Spec(dec *graphschema.Decoder, f Field) tensor.Spec {
	u := tensor.Unknown
	switch f {
	case IntAttrs:
		return tensor.Spec{DType: tensor.Int64, Shape: tensor.Shape{u, dec.IntAttrNum()}}
	case FloatAttrs:
		return tensor.Spec{DType: tensor.Float32, Shape: tensor.Shape{u, dec.FloatAttrNum()}}
	case StringAttrs:
		return tensor.Spec{DType: tensor.String, Shape: tensor.Shape{u, dec.StringAttrNum()}}
	case Labels:
		return tensor.Spec{DType: tensor.Int32, Shape: tensor.Shape{u}}
	case Weights:
		return tensor.Spec{DType: tensor.Float32, Shape: tensor.Shape{u}}
	case IDs, DstIDs, Offsets, DenseShape:
		return tensor.Spec{DType: tensor.Int64, Shape: tensor.Shape{u}}
	case Indices:
		return tensor.Spec{DType: tensor.Int64, Shape: tensor.Shape{u, 2}}
	}
	panic("mask: unknown field " + f.String())
}

// Specs returns the declared specs of every selected field, in Fields order.
func Specs(dec *graphschema.Decoder, m FieldMask) []tensor.Spec {
	fields := m.Fields()
	out := make([]tensor.Spec, len(fields))
	for i, f := range fields {
		out[i] = Spec(dec, f)
	}
	return out
}
