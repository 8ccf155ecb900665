// Package subgraph defines the induced subgraphs a producer builds from one
// sample of raw traversal results, and the inducer callbacks that build them.
//
// An Induced value is a tagged union over the homogeneous SubGraph and the
// type-keyed HeteroSubGraph. Consumers dispatch once on Kind.
package subgraph

import (
	"fmt"

	"github.com/hanpama/graphtensor/internal/data"
	"github.com/hanpama/graphtensor/internal/tensor"
)

// Kind tags the variant held by an Induced value.
type Kind int

const (
	Homogeneous Kind = iota + 1
	Heterogeneous
)

func (k Kind) String() string {
	switch k {
	case Homogeneous:
		return "homogeneous"
	case Heterogeneous:
		return "heterogeneous"
	}
	return "invalid"
}

// SubGraph is a subgraph over a single node type and a single edge type.
//
// EdgeIndex is an int32 [2, E] tensor: row 0 holds source positions and row 1
// destination positions, both indexing rows of Nodes.
type SubGraph struct {
	EdgeIndex  tensor.Tensor
	Nodes      *data.Data
	Additional map[string]tensor.Tensor
}

// NumNodes returns the number of node rows.
func (g *SubGraph) NumNodes() int { return g.Nodes.Len() }

// Edges is the edge index of one edge type in a heterogeneous subgraph.
// Source positions index rows of the SrcType nodes, destination positions
// rows of the DstType nodes.
type Edges struct {
	SrcType string
	DstType string
	Index   tensor.Tensor
}

// HeteroSubGraph is a subgraph keyed by node and edge type names.
type HeteroSubGraph struct {
	Edges      map[string]Edges
	Nodes      map[string]*data.Data
	Additional map[string]tensor.Tensor
}

// Induced is either a *SubGraph or a *HeteroSubGraph.
type Induced struct {
	kind   Kind
	homo   *SubGraph
	hetero *HeteroSubGraph
}

// Homo wraps a homogeneous subgraph.
func Homo(g *SubGraph) Induced { return Induced{kind: Homogeneous, homo: g} }

// Hetero wraps a heterogeneous subgraph.
func Hetero(g *HeteroSubGraph) Induced { return Induced{kind: Heterogeneous, hetero: g} }

func (i Induced) Kind() Kind { return i.kind }

// SubGraph returns the homogeneous variant, or nil.
func (i Induced) SubGraph() *SubGraph { return i.homo }

// HeteroSubGraph returns the heterogeneous variant, or nil.
func (i Induced) HeteroSubGraph() *HeteroSubGraph { return i.hetero }

// EdgeFunc induces a subgraph from one positive pair and the sampled
// neighbors of both endpoints.
type EdgeFunc func(src, dst, srcNbrs, dstNbrs *data.Data) (Induced, error)

// NodeFunc induces a subgraph from one source and its sampled neighbors.
type NodeFunc func(src, srcNbrs *data.Data) (Induced, error)

// Inducer is a closed variant over EdgeFunc and NodeFunc. The zero Inducer
// induces nothing.
type Inducer struct {
	edge EdgeFunc
	node NodeFunc
}

func InduceWithEdge(f EdgeFunc) Inducer { return Inducer{edge: f} }

func InduceWithNode(f NodeFunc) Inducer { return Inducer{node: f} }

// IsZero reports whether no function was supplied.
func (in Inducer) IsZero() bool { return in.edge == nil && in.node == nil }

// Arity returns the number of data arguments the function expects: 4 for
// edge induction, 2 for node induction, 0 for the zero Inducer.
func (in Inducer) Arity() int {
	switch {
	case in.edge != nil:
		return 4
	case in.node != nil:
		return 2
	}
	return 0
}

// Induce calls the wrapped function. args must hold Arity values, in
// (src, dst, srcNbrs, dstNbrs) or (src, srcNbrs) order.
func (in Inducer) Induce(args ...*data.Data) (Induced, error) {
	if len(args) != in.Arity() {
		return Induced{}, fmt.Errorf("subgraph: inducer takes %d arguments, got %d", in.Arity(), len(args))
	}
	var (
		out Induced
		err error
	)
	if in.edge != nil {
		out, err = in.edge(args[0], args[1], args[2], args[3])
	} else {
		out, err = in.node(args[0], args[1])
	}
	if err != nil {
		return Induced{}, err
	}
	if out.kind != Homogeneous && out.kind != Heterogeneous {
		return Induced{}, fmt.Errorf("subgraph: inducer returned an untagged subgraph")
	}
	return out, nil
}
