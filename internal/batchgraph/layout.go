// Package batchgraph batches induced subgraphs into one graph and converts
// it to and from a flat tensor tuple.
//
// A Layout fixes the tuple order: one edge index per edge type, then for
// each node type its masked attribute fields followed by its node offsets,
// then the additional fields in declaration order. Layout.Specs, Flatten and
// FromTensors all walk the same slot list.
package batchgraph

import (
	"errors"
	"fmt"

	"github.com/hanpama/graphtensor/internal/graphschema"
	"github.com/hanpama/graphtensor/internal/mask"
	"github.com/hanpama/graphtensor/internal/tensor"
)

var (
	ErrUnknownType       = errors.New("batchgraph: type not in layout")
	ErrMissingAdditional = errors.New("batchgraph: missing additional field")
	ErrLayout            = errors.New("batchgraph: invalid layout")
	ErrKind              = errors.New("batchgraph: subgraph kinds differ")
)

// Field is a caller-declared additional tensor carried by every batch.
type Field struct {
	Name string
	Spec tensor.Spec
}

type slotKind int

const (
	edgeSlot slotKind = iota
	nodeSlot
	offsetSlot
	additionalSlot
)

type slot struct {
	kind  slotKind
	typ   string // edge or node type
	field mask.Field
	name  string // additional field name
	spec  tensor.Spec
}

type nodeLayout struct {
	typ  string
	dec  *graphschema.Decoder
	mask mask.FieldMask
}

// Layout is the immutable tuple layout of a batch graph.
type Layout struct {
	edgeTypes  []string
	nodes      []nodeLayout
	additional []Field
	slots      []slot
}

var edgeIndexSpec = tensor.Spec{DType: tensor.Int32, Shape: tensor.Shape{2, tensor.Unknown}}
var offsetSpec = tensor.Spec{DType: tensor.Int64, Shape: tensor.Shape{tensor.Unknown}}

// NewLayout builds a layout. Node attributes are masked as dense vertices.
// Type names and additional field names must be unique.
func NewLayout(edgeTypes []string, nodeTypes []graphschema.NodeType, additional []Field) (*Layout, error) {
	l := &Layout{}
	seen := map[string]bool{}
	for _, et := range edgeTypes {
		if seen["e:"+et] {
			return nil, fmt.Errorf("%w: duplicate edge type %q", ErrLayout, et)
		}
		seen["e:"+et] = true
		l.edgeTypes = append(l.edgeTypes, et)
		l.slots = append(l.slots, slot{kind: edgeSlot, typ: et, spec: edgeIndexSpec})
	}
	for _, nt := range nodeTypes {
		if seen["n:"+nt.Name] {
			return nil, fmt.Errorf("%w: duplicate node type %q", ErrLayout, nt.Name)
		}
		seen["n:"+nt.Name] = true
		m := mask.Resolve(nt.Decoder, false, false)
		l.nodes = append(l.nodes, nodeLayout{typ: nt.Name, dec: nt.Decoder, mask: m})
		for _, f := range m.Fields() {
			l.slots = append(l.slots, slot{kind: nodeSlot, typ: nt.Name, field: f, spec: mask.Spec(nt.Decoder, f)})
		}
		l.slots = append(l.slots, slot{kind: offsetSlot, typ: nt.Name, spec: offsetSpec})
	}
	for _, f := range additional {
		if seen["a:"+f.Name] {
			return nil, fmt.Errorf("%w: duplicate additional field %q", ErrLayout, f.Name)
		}
		seen["a:"+f.Name] = true
		l.additional = append(l.additional, f)
		l.slots = append(l.slots, slot{kind: additionalSlot, name: f.Name, spec: f.Spec})
	}
	return l, nil
}

// Heterogeneous reports whether batches under this layout are type-keyed:
// more than one node type or more than one edge type.
func (l *Layout) Heterogeneous() bool { return len(l.nodes) > 1 || len(l.edgeTypes) > 1 }

func (l *Layout) EdgeTypes() []string { return append([]string(nil), l.edgeTypes...) }

func (l *Layout) NodeTypes() []string {
	out := make([]string, len(l.nodes))
	for i, n := range l.nodes {
		out[i] = n.typ
	}
	return out
}

// NodeMask returns the attribute mask of a node type.
func (l *Layout) NodeMask(nodeType string) (mask.FieldMask, bool) {
	for _, n := range l.nodes {
		if n.typ == nodeType {
			return n.mask, true
		}
	}
	return mask.FieldMask{}, false
}

// Additional returns the additional fields in declaration order.
func (l *Layout) Additional() []Field { return append([]Field(nil), l.additional...) }

// Len returns the tuple length of one batch.
func (l *Layout) Len() int { return len(l.slots) }

// Names returns a descriptive name for every tuple position: the edge type
// followed by "edge_index", the node type followed by a field name or
// "offsets", or the additional field name.
func (l *Layout) Names() []string {
	out := make([]string, len(l.slots))
	for i, s := range l.slots {
		switch s.kind {
		case edgeSlot:
			out[i] = s.typ + "_edge_index"
		case nodeSlot:
			out[i] = s.typ + "_" + s.field.String()
		case offsetSlot:
			out[i] = s.typ + "_offsets"
		default:
			out[i] = s.name
		}
	}
	return out
}

// Specs returns the declared spec of every tuple position.
func (l *Layout) Specs() []tensor.Spec {
	out := make([]tensor.Spec, len(l.slots))
	for i, s := range l.slots {
		out[i] = s.spec
	}
	return out
}

func (l *Layout) hasEdgeType(et string) bool {
	for _, t := range l.edgeTypes {
		if t == et {
			return true
		}
	}
	return false
}

// homogeneousTypes returns the single edge and node type of a homogeneous
// layout.
func (l *Layout) homogeneousTypes() (string, string, error) {
	if len(l.edgeTypes) != 1 || len(l.nodes) != 1 {
		return "", "", fmt.Errorf("%w: homogeneous batch needs one edge type and one node type, have %d and %d",
			ErrLayout, len(l.edgeTypes), len(l.nodes))
	}
	return l.edgeTypes[0], l.nodes[0].typ, nil
}
