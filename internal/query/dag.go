// Package query is an in-memory graph traversal query: a DAG of aliased
// vertex and edge steps rooted at batch lookups.
//
// Steps are added through a small fluent builder:
//
//	q := query.NewDAG(g)
//	src := q.V(query.PosSrc, "User", 64)
//	hop1 := src.OutV("hop1", "Buy", 10)
//	hop1.OutV("hop2", "Similar", 5)
//	src.OutNeg(query.NegDst, "Buy", 5)
//
// Builder misuse does not panic: the first error is kept and reported by
// DAG.Err, and later steps keep being added so callers can check once.
package query

import (
	"errors"
	"fmt"

	"github.com/hanpama/graphtensor/internal/graphschema"
	"github.com/hanpama/graphtensor/internal/tensor"
)

// Role aliases recognised by batch-mode reconstruction.
const (
	PosSrc = "pos_src"
	PosDst = "pos_dst"
	NegDst = "neg_dst"
)

var (
	ErrDuplicateAlias = errors.New("query: duplicate alias")
	ErrUnknownType    = errors.New("query: unknown type")
	ErrWrongKind      = errors.New("query: step not allowed on this node kind")
)

// Kind distinguishes vertex steps from edge steps.
type Kind int

const (
	Vertex Kind = iota
	Edge
)

func (k Kind) String() string {
	if k == Edge {
		return "edge"
	}
	return "vertex"
}

// Node is one aliased step of the query.
type Node struct {
	dag     *DAG
	alias   string
	kind    Kind
	typ     string
	decoder *graphschema.Decoder
	shape   tensor.Shape
	sparse  bool
	pos     []*Node
	neg     []*Node
}

func (n *Node) Alias() string                 { return n.alias }
func (n *Node) Kind() Kind                    { return n.kind }
func (n *Node) IsEdge() bool                  { return n.kind == Edge }
func (n *Node) Type() string                  { return n.typ }
func (n *Node) Decoder() *graphschema.Decoder { return n.decoder }
func (n *Node) Sparse() bool                  { return n.sparse }

// Shape returns the logical shape of the step: [batch] for roots, with one
// trailing dimension per neighbor hop.
func (n *Node) Shape() tensor.Shape { return append(tensor.Shape(nil), n.shape...) }

// NumNeighbors returns the last dimension of Shape. It is tensor.Unknown
// for sparse steps.
func (n *Node) NumNeighbors() int {
	if len(n.shape) == 0 {
		return tensor.Unknown
	}
	return n.shape[len(n.shape)-1]
}

// PosDownstreams returns positive downstream steps in insertion order.
func (n *Node) PosDownstreams() []*Node { return append([]*Node(nil), n.pos...) }

// NegDownstreams returns negative-sampling downstream steps in insertion order.
func (n *Node) NegDownstreams() []*Node { return append([]*Node(nil), n.neg...) }

// IsDownstream reports whether d is a positive or negative downstream of n.
func (n *Node) IsDownstream(d *Node) bool {
	for _, c := range n.pos {
		if c == d {
			return true
		}
	}
	for _, c := range n.neg {
		if c == d {
			return true
		}
	}
	return false
}

// DAG is an ordered query. It implements dataset.Query.
type DAG struct {
	graph     *graphschema.Schema
	nodes     []*Node
	byAlias   map[string]*Node
	nodeTypes []string
	edgeTypes []string
	err       error
}

func NewDAG(g *graphschema.Schema) *DAG {
	return &DAG{graph: g, byAlias: map[string]*Node{}}
}

// Err returns the first builder error.
func (q *DAG) Err() error { return q.err }

func (q *DAG) fail(err error) {
	if q.err == nil {
		q.err = err
	}
}

// Graph returns the graph schema the query runs against.
func (q *DAG) Graph() *graphschema.Schema { return q.graph }

// Node resolves an alias.
func (q *DAG) Node(alias string) (*Node, bool) {
	n, ok := q.byAlias[alias]
	return n, ok
}

// Aliases returns aliases in insertion order.
func (q *DAG) Aliases() []string {
	out := make([]string, len(q.nodes))
	for i, n := range q.nodes {
		out[i] = n.alias
	}
	return out
}

// HasAlias reports whether alias names a step.
func (q *DAG) HasAlias(alias string) bool {
	_, ok := q.byAlias[alias]
	return ok
}

// NodeTypes returns the distinct vertex types touched, in first-use order.
func (q *DAG) NodeTypes() []string { return append([]string(nil), q.nodeTypes...) }

// EdgeTypes returns the distinct edge types of explicit edge steps, in
// first-use order. Edge types traversed only implicitly (OutV, InV and
// negative sampling) are not included.
func (q *DAG) EdgeTypes() []string { return append([]string(nil), q.edgeTypes...) }

// NodeDecoder returns the decoder of a vertex type.
func (q *DAG) NodeDecoder(nodeType string) *graphschema.Decoder {
	return q.graph.NodeDecoder(nodeType)
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}

func (q *DAG) add(alias string, kind Kind, typ string, shape tensor.Shape, sparse bool) *Node {
	n := &Node{dag: q, alias: alias, kind: kind, typ: typ, shape: shape, sparse: sparse}
	if _, ok := q.byAlias[alias]; ok {
		q.fail(fmt.Errorf("%w: %q", ErrDuplicateAlias, alias))
		return n
	}
	switch kind {
	case Vertex:
		nt, ok := q.graph.Node(typ)
		if !ok {
			q.fail(fmt.Errorf("%w: vertex %q for alias %q", ErrUnknownType, typ, alias))
			return n
		}
		n.decoder = nt.Decoder
		q.nodeTypes = appendUnique(q.nodeTypes, typ)
	case Edge:
		et, ok := q.graph.Edge(typ)
		if !ok {
			q.fail(fmt.Errorf("%w: edge %q for alias %q", ErrUnknownType, typ, alias))
			return n
		}
		n.decoder = et.Decoder
		q.edgeTypes = appendUnique(q.edgeTypes, typ)
	}
	q.nodes = append(q.nodes, n)
	q.byAlias[alias] = n
	return n
}

// V adds a root vertex lookup of batch vertices of nodeType.
func (q *DAG) V(alias, nodeType string, batch int) *Node {
	return q.add(alias, Vertex, nodeType, tensor.Shape{batch}, false)
}

// E adds a root edge lookup of batch edges of edgeType.
func (q *DAG) E(alias, edgeType string, batch int) *Node {
	return q.add(alias, Edge, edgeType, tensor.Shape{batch}, false)
}

// StepOption tweaks a neighbor step.
type StepOption func(*stepOptions)

type stepOptions struct{ sparse bool }

// Sparse marks a step that fetches every neighbor; its neighbor count is
// unknown and its values carry sparse coordinates.
func Sparse() StepOption { return func(o *stepOptions) { o.sparse = true } }

func (n *Node) hop(alias string, kind Kind, typ string, count int, neg bool, opts []StepOption) *Node {
	var o stepOptions
	for _, f := range opts {
		f(&o)
	}
	shape := append(n.Shape(), count)
	if o.sparse {
		shape[len(shape)-1] = tensor.Unknown
	}
	child := n.dag.add(alias, kind, typ, shape, o.sparse)
	if neg {
		n.neg = append(n.neg, child)
	} else {
		n.pos = append(n.pos, child)
	}
	return child
}

func (n *Node) endpoint(edgeType string, out bool) string {
	et, ok := n.dag.graph.Edge(edgeType)
	if !ok {
		n.dag.fail(fmt.Errorf("%w: edge %q", ErrUnknownType, edgeType))
		return ""
	}
	if out {
		return et.Dst
	}
	return et.Src
}

func (n *Node) requireKind(k Kind, step string) bool {
	if n.kind != k {
		n.dag.fail(fmt.Errorf("%w: %s on %s %q", ErrWrongKind, step, n.kind, n.alias))
		return false
	}
	return true
}

// OutV samples count destination neighbors along edgeType. The edge itself
// is not materialized.
func (n *Node) OutV(alias, edgeType string, count int, opts ...StepOption) *Node {
	n.requireKind(Vertex, "OutV")
	return n.hop(alias, Vertex, n.endpoint(edgeType, true), count, false, opts)
}

// InV samples count source neighbors along edgeType.
func (n *Node) InV(alias, edgeType string, count int, opts ...StepOption) *Node {
	n.requireKind(Vertex, "InV")
	return n.hop(alias, Vertex, n.endpoint(edgeType, false), count, false, opts)
}

// OutE samples count outgoing edges of edgeType.
func (n *Node) OutE(alias, edgeType string, count int, opts ...StepOption) *Node {
	n.requireKind(Vertex, "OutE")
	return n.hop(alias, Edge, edgeType, count, false, opts)
}

// InE samples count incoming edges of edgeType.
func (n *Node) InE(alias, edgeType string, count int, opts ...StepOption) *Node {
	n.requireKind(Vertex, "InE")
	return n.hop(alias, Edge, edgeType, count, false, opts)
}

// OutNeg draws count negative destination vertices for edgeType.
func (n *Node) OutNeg(alias, edgeType string, count int) *Node {
	n.requireKind(Vertex, "OutNeg")
	return n.hop(alias, Vertex, n.endpoint(edgeType, true), count, true, nil)
}

// InNeg draws count negative source vertices for edgeType.
func (n *Node) InNeg(alias, edgeType string, count int) *Node {
	n.requireKind(Vertex, "InNeg")
	return n.hop(alias, Vertex, n.endpoint(edgeType, false), count, true, nil)
}

// SrcV follows an edge step to its source vertices.
func (n *Node) SrcV(alias string) *Node {
	n.requireKind(Edge, "SrcV")
	return n.follow(alias, false)
}

// DstV follows an edge step to its destination vertices.
func (n *Node) DstV(alias string) *Node {
	n.requireKind(Edge, "DstV")
	return n.follow(alias, true)
}

func (n *Node) follow(alias string, dst bool) *Node {
	typ := ""
	if et, ok := n.dag.graph.Edge(n.typ); ok {
		typ = et.Src
		if dst {
			typ = et.Dst
		}
	}
	child := n.dag.add(alias, Vertex, typ, n.Shape(), n.sparse)
	n.pos = append(n.pos, child)
	return child
}
