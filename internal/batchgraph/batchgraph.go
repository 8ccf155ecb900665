package batchgraph

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/hanpama/graphtensor/internal/data"
	"github.com/hanpama/graphtensor/internal/subgraph"
	"github.com/hanpama/graphtensor/internal/tensor"
)

// ErrEmpty is returned when building a batch from no subgraphs.
var ErrEmpty = errors.New("batchgraph: no subgraphs")

// ErrOverflow is returned when stacked node positions no longer fit the
// int32 edge index.
var ErrOverflow = errors.New("batchgraph: node position exceeds int32")

// Graph is implemented by *BatchGraph and *HeteroBatchGraph.
type Graph interface {
	Kind() subgraph.Kind
	// NumGraphs returns the number of subgraphs in the batch.
	NumGraphs() int
	// Additional returns a named additional tensor.
	Additional(name string) (tensor.Tensor, bool)
	// Flatten returns the batch as a tuple ordered by l.
	Flatten(l *Layout) ([]tensor.Tensor, error)
}

// BatchGraph is a batch of homogeneous subgraphs. Node rows of all
// subgraphs are stacked; EdgeIndex positions address the stacked rows.
// GraphNodeOffsets holds, for every node row, the index of the subgraph it
// came from.
type BatchGraph struct {
	EdgeIndex        tensor.Tensor
	Nodes            *data.Data
	GraphNodeOffsets tensor.Tensor

	additional map[string]tensor.Tensor
	numGraphs  int
}

// HeteroBatchGraph is a batch of heterogeneous subgraphs, keyed by type.
type HeteroBatchGraph struct {
	EdgeIndex        map[string]tensor.Tensor
	Nodes            map[string]*data.Data
	GraphNodeOffsets map[string]tensor.Tensor

	nodeTypes  []string
	edgeTypes  []string
	additional map[string]tensor.Tensor
	numGraphs  int
}

func (g *BatchGraph) Kind() subgraph.Kind       { return subgraph.Homogeneous }
func (g *HeteroBatchGraph) Kind() subgraph.Kind { return subgraph.Heterogeneous }

func (g *BatchGraph) NumGraphs() int       { return g.numGraphs }
func (g *HeteroBatchGraph) NumGraphs() int { return g.numGraphs }

func (g *BatchGraph) Additional(name string) (tensor.Tensor, bool) {
	t, ok := g.additional[name]
	return t, ok
}

func (g *HeteroBatchGraph) Additional(name string) (tensor.Tensor, bool) {
	t, ok := g.additional[name]
	return t, ok
}

// NumNodes returns the number of stacked node rows.
func (g *BatchGraph) NumNodes() int { return g.Nodes.Len() }

// NumEdges returns the number of batched edges.
func (g *BatchGraph) NumEdges() int { return edgeCount(g.EdgeIndex) }

// NodeTypes returns the node type keys in layout or first-seen order.
func (g *HeteroBatchGraph) NodeTypes() []string { return append([]string(nil), g.nodeTypes...) }

// EdgeTypes returns the edge type keys in layout or first-seen order.
func (g *HeteroBatchGraph) EdgeTypes() []string { return append([]string(nil), g.edgeTypes...) }

func edgeCount(t tensor.Tensor) int {
	if t.IsZero() {
		return 0
	}
	return t.Dim(1)
}

func emptyEdges() tensor.Tensor { return tensor.FromInt32(nil, 2, 0) }

// Build batches gs, dispatching once on the kind of the first subgraph.
func Build(gs []subgraph.Induced, additional []string) (Graph, error) {
	if len(gs) == 0 {
		return nil, ErrEmpty
	}
	switch gs[0].Kind() {
	case subgraph.Homogeneous:
		homo := make([]*subgraph.SubGraph, len(gs))
		for i, g := range gs {
			if g.Kind() != subgraph.Homogeneous {
				return nil, fmt.Errorf("%w: subgraph %d is %s", ErrKind, i, g.Kind())
			}
			homo[i] = g.SubGraph()
		}
		g, err := FromGraphs(homo, additional)
		if err != nil {
			return nil, err
		}
		return g, nil
	case subgraph.Heterogeneous:
		hetero := make([]*subgraph.HeteroSubGraph, len(gs))
		for i, g := range gs {
			if g.Kind() != subgraph.Heterogeneous {
				return nil, fmt.Errorf("%w: subgraph %d is %s", ErrKind, i, g.Kind())
			}
			hetero[i] = g.HeteroSubGraph()
		}
		g, err := FromHeteroGraphs(hetero, additional)
		if err != nil {
			return nil, err
		}
		return g, nil
	}
	return nil, fmt.Errorf("%w: subgraph 0 is %s", ErrKind, gs[0].Kind())
}

// edgeAccum stacks [2, E] edge indices, shifting source and destination
// positions.
type edgeAccum struct{ src, dst []int32 }

func (a *edgeAccum) add(index tensor.Tensor, srcBase, dstBase int) error {
	if index.IsZero() {
		return nil
	}
	if index.DType() != tensor.Int32 || index.Shape().Rank() != 2 || index.Dim(0) != 2 {
		return fmt.Errorf("batchgraph: edge index must be int32 [2, E], got %s", index)
	}
	vals := index.Int32s()
	n := index.Dim(1)
	for i := 0; i < n; i++ {
		s, d := int64(vals[i])+int64(srcBase), int64(vals[n+i])+int64(dstBase)
		if s > math.MaxInt32 || d > math.MaxInt32 {
			return fmt.Errorf("%w: edge %d shifted to (%d, %d)", ErrOverflow, i, s, d)
		}
		a.src = append(a.src, int32(s))
		a.dst = append(a.dst, int32(d))
	}
	return nil
}

func (a *edgeAccum) index() tensor.Tensor {
	return tensor.FromInt32(append(append([]int32(nil), a.src...), a.dst...), 2, len(a.src))
}

func graphIDs(ids []int64, graph, n int) []int64 {
	for i := 0; i < n; i++ {
		ids = append(ids, int64(graph))
	}
	return ids
}

func concatAdditional(names []string, get func(i int) map[string]tensor.Tensor, n int) (map[string]tensor.Tensor, error) {
	out := make(map[string]tensor.Tensor, len(names))
	for _, name := range names {
		parts := make([]tensor.Tensor, n)
		for i := 0; i < n; i++ {
			t, ok := get(i)[name]
			if !ok {
				return nil, fmt.Errorf("%w: %q in subgraph %d", ErrMissingAdditional, name, i)
			}
			parts[i] = t
		}
		t, err := tensor.ConcatRows(parts...)
		if err != nil {
			return nil, fmt.Errorf("batchgraph: additional %q: %w", name, err)
		}
		out[name] = t
	}
	return out, nil
}

// FromGraphs batches homogeneous subgraphs. Each subgraph must carry every
// named additional tensor; they are concatenated row-wise.
func FromGraphs(gs []*subgraph.SubGraph, additional []string) (*BatchGraph, error) {
	if len(gs) == 0 {
		return nil, ErrEmpty
	}
	var (
		edges   edgeAccum
		offsets []int64
		parts   = make([]*data.Data, len(gs))
		base    int
	)
	for i, g := range gs {
		if err := edges.add(g.EdgeIndex, base, base); err != nil {
			return nil, fmt.Errorf("subgraph %d: %w", i, err)
		}
		n := g.NumNodes()
		offsets = graphIDs(offsets, i, n)
		parts[i] = g.Nodes
		base += n
	}
	nodes, err := data.Concat(parts...)
	if err != nil {
		return nil, err
	}
	add, err := concatAdditional(additional, func(i int) map[string]tensor.Tensor { return gs[i].Additional }, len(gs))
	if err != nil {
		return nil, err
	}
	return &BatchGraph{
		EdgeIndex:        edges.index(),
		Nodes:            nodes,
		GraphNodeOffsets: tensor.FromInt64(offsets),
		additional:       add,
		numGraphs:        len(gs),
	}, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func appendNew(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}

// FromHeteroGraphs batches heterogeneous subgraphs per type. Edge positions
// are shifted by the rows already stacked for their source and destination
// node types.
func FromHeteroGraphs(gs []*subgraph.HeteroSubGraph, additional []string) (*HeteroBatchGraph, error) {
	if len(gs) == 0 {
		return nil, ErrEmpty
	}
	var nodeTypes, edgeTypes []string
	for _, g := range gs {
		for _, nt := range sortedKeys(g.Nodes) {
			nodeTypes = appendNew(nodeTypes, nt)
		}
		for _, et := range sortedKeys(g.Edges) {
			edgeTypes = appendNew(edgeTypes, et)
		}
	}

	base := map[string]int{}
	parts := map[string][]*data.Data{}
	offsets := map[string][]int64{}
	edges := map[string]*edgeAccum{}
	for _, et := range edgeTypes {
		edges[et] = &edgeAccum{}
	}
	for i, g := range gs {
		for _, et := range sortedKeys(g.Edges) {
			e := g.Edges[et]
			if _, ok := g.Nodes[e.SrcType]; !ok {
				return nil, fmt.Errorf("batchgraph: subgraph %d: edge %q source type %q has no nodes", i, et, e.SrcType)
			}
			if _, ok := g.Nodes[e.DstType]; !ok {
				return nil, fmt.Errorf("batchgraph: subgraph %d: edge %q destination type %q has no nodes", i, et, e.DstType)
			}
			if err := edges[et].add(e.Index, base[e.SrcType], base[e.DstType]); err != nil {
				return nil, fmt.Errorf("subgraph %d: %w", i, err)
			}
		}
		for _, nt := range sortedKeys(g.Nodes) {
			n := g.Nodes[nt].Len()
			parts[nt] = append(parts[nt], g.Nodes[nt])
			offsets[nt] = graphIDs(offsets[nt], i, n)
			base[nt] += n
		}
	}

	out := &HeteroBatchGraph{
		EdgeIndex:        map[string]tensor.Tensor{},
		Nodes:            map[string]*data.Data{},
		GraphNodeOffsets: map[string]tensor.Tensor{},
		nodeTypes:        nodeTypes,
		edgeTypes:        edgeTypes,
		numGraphs:        len(gs),
	}
	for _, et := range edgeTypes {
		out.EdgeIndex[et] = edges[et].index()
	}
	for _, nt := range nodeTypes {
		nodes, err := data.Concat(parts[nt]...)
		if err != nil {
			return nil, fmt.Errorf("batchgraph: node type %q: %w", nt, err)
		}
		out.Nodes[nt] = nodes
		out.GraphNodeOffsets[nt] = tensor.FromInt64(offsets[nt])
	}
	add, err := concatAdditional(additional, func(i int) map[string]tensor.Tensor { return gs[i].Additional }, len(gs))
	if err != nil {
		return nil, err
	}
	out.additional = add
	return out, nil
}

func additionalValue(s slot, add map[string]tensor.Tensor) (tensor.Tensor, error) {
	t, ok := add[s.name]
	if !ok {
		return tensor.Tensor{}, fmt.Errorf("%w: %q", ErrMissingAdditional, s.name)
	}
	return t, nil
}

func nodeValue(s slot, nodes *data.Data) (tensor.Tensor, error) {
	t := nodes.Get(s.field)
	if t.IsZero() {
		return tensor.Tensor{}, fmt.Errorf("%w: node type %q field %s", data.ErrMissingField, s.typ, s.field)
	}
	return t, nil
}

// Flatten returns the batch as a tuple ordered by l, which must have exactly
// one edge type and one node type.
func (g *BatchGraph) Flatten(l *Layout) ([]tensor.Tensor, error) {
	if _, _, err := l.homogeneousTypes(); err != nil {
		return nil, err
	}
	out := make([]tensor.Tensor, 0, len(l.slots))
	for _, s := range l.slots {
		var (
			t   tensor.Tensor
			err error
		)
		switch s.kind {
		case edgeSlot:
			t = g.EdgeIndex
			if t.IsZero() {
				t = emptyEdges()
			}
		case nodeSlot:
			t, err = nodeValue(s, g.Nodes)
		case offsetSlot:
			t = g.GraphNodeOffsets
		case additionalSlot:
			t, err = additionalValue(s, g.additional)
		}
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// Flatten returns the batch as a tuple ordered by l. Types declared in l but
// absent from the batch are emitted empty; types present in the batch but
// not declared in l fail with ErrUnknownType.
func (g *HeteroBatchGraph) Flatten(l *Layout) ([]tensor.Tensor, error) {
	for _, et := range g.edgeTypes {
		if !l.hasEdgeType(et) {
			return nil, fmt.Errorf("%w: edge type %q", ErrUnknownType, et)
		}
	}
	for _, nt := range g.nodeTypes {
		if _, ok := l.NodeMask(nt); !ok {
			return nil, fmt.Errorf("%w: node type %q", ErrUnknownType, nt)
		}
	}
	out := make([]tensor.Tensor, 0, len(l.slots))
	for _, s := range l.slots {
		var (
			t   tensor.Tensor
			err error
		)
		switch s.kind {
		case edgeSlot:
			t = g.EdgeIndex[s.typ]
			if t.IsZero() {
				t = emptyEdges()
			}
		case nodeSlot:
			if nodes, ok := g.Nodes[s.typ]; ok {
				t, err = nodeValue(s, nodes)
			} else {
				t = tensor.Empty(s.spec)
			}
		case offsetSlot:
			t = g.GraphNodeOffsets[s.typ]
			if t.IsZero() {
				t = tensor.Empty(s.spec)
			}
		case additionalSlot:
			t, err = additionalValue(s, g.additional)
		}
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// countGraphs derives the number of subgraphs from node offsets.
func countGraphs(offsets ...tensor.Tensor) int {
	n := 0
	for _, t := range offsets {
		for _, id := range t.Int64s() {
			if int(id)+1 > n {
				n = int(id) + 1
			}
		}
	}
	return n
}

func checkTuple(l *Layout, values []tensor.Tensor) error {
	if len(values) != len(l.slots) {
		return fmt.Errorf("%w: layout has %d positions, got %d values", ErrLayout, len(l.slots), len(values))
	}
	for i, s := range l.slots {
		if !s.spec.Accepts(values[i]) {
			return fmt.Errorf("%w: position %d holds %s, declared %s", ErrLayout, i, values[i], s.spec)
		}
	}
	return nil
}

// FromTensors rebuilds a homogeneous batch from a tuple produced by Flatten
// with the same layout. Subgraphs without nodes after the last non-empty
// one are not counted by NumGraphs.
func FromTensors(l *Layout, values []tensor.Tensor) (*BatchGraph, error) {
	if _, _, err := l.homogeneousTypes(); err != nil {
		return nil, err
	}
	if err := checkTuple(l, values); err != nil {
		return nil, err
	}
	g := &BatchGraph{Nodes: &data.Data{}, additional: map[string]tensor.Tensor{}}
	for i, s := range l.slots {
		switch s.kind {
		case edgeSlot:
			g.EdgeIndex = values[i]
		case nodeSlot:
			g.Nodes.Set(s.field, values[i])
		case offsetSlot:
			g.GraphNodeOffsets = values[i]
		case additionalSlot:
			g.additional[s.name] = values[i]
		}
	}
	g.numGraphs = countGraphs(g.GraphNodeOffsets)
	return g, nil
}

// HeteroFromTensors rebuilds a heterogeneous batch from a tuple produced by
// Flatten with the same layout. Every type declared in l is present in the
// result.
func HeteroFromTensors(l *Layout, values []tensor.Tensor) (*HeteroBatchGraph, error) {
	if err := checkTuple(l, values); err != nil {
		return nil, err
	}
	g := &HeteroBatchGraph{
		EdgeIndex:        map[string]tensor.Tensor{},
		Nodes:            map[string]*data.Data{},
		GraphNodeOffsets: map[string]tensor.Tensor{},
		nodeTypes:        l.NodeTypes(),
		edgeTypes:        l.EdgeTypes(),
		additional:       map[string]tensor.Tensor{},
	}
	for _, nt := range g.nodeTypes {
		g.Nodes[nt] = &data.Data{}
	}
	for i, s := range l.slots {
		switch s.kind {
		case edgeSlot:
			g.EdgeIndex[s.typ] = values[i]
		case nodeSlot:
			g.Nodes[s.typ].Set(s.field, values[i])
		case offsetSlot:
			g.GraphNodeOffsets[s.typ] = values[i]
		case additionalSlot:
			g.additional[s.name] = values[i]
		}
	}
	offs := make([]tensor.Tensor, 0, len(g.GraphNodeOffsets))
	for _, nt := range g.nodeTypes {
		offs = append(offs, g.GraphNodeOffsets[nt])
	}
	g.numGraphs = countGraphs(offs...)
	return g, nil
}

// Decode rebuilds a batch from values, choosing the variant from l.
func Decode(l *Layout, values []tensor.Tensor) (Graph, error) {
	if l.Heterogeneous() {
		g, err := HeteroFromTensors(l, values)
		if err != nil {
			return nil, err
		}
		return g, nil
	}
	g, err := FromTensors(l, values)
	if err != nil {
		return nil, err
	}
	return g, nil
}
