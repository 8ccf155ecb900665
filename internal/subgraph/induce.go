package subgraph

import (
	"github.com/hanpama/graphtensor/internal/data"
	"github.com/hanpama/graphtensor/internal/mask"
	"github.com/hanpama/graphtensor/internal/tensor"
)

// EdgeInducer returns an edge-style inducer building a homogeneous subgraph.
// Nodes are the distinct ids of src, dst and both neighbor sets in first-seen
// order. Edges connect src to dst, src to each of its neighbors and dst to
// each of its neighbors.
func EdgeInducer() Inducer {
	return InduceWithEdge(func(src, dst, srcNbrs, dstNbrs *data.Data) (Induced, error) {
		b := newBuilder()
		if err := b.add(src, dst, srcNbrs, dstNbrs); err != nil {
			return Induced{}, err
		}
		b.link(src, dst)
		b.link(src, srcNbrs)
		b.link(dst, dstNbrs)
		return b.build()
	})
}

// NodeInducer returns a node-style inducer connecting src to each of its
// neighbors.
func NodeInducer() Inducer {
	return InduceWithNode(func(src, srcNbrs *data.Data) (Induced, error) {
		b := newBuilder()
		if err := b.add(src, srcNbrs); err != nil {
			return Induced{}, err
		}
		b.link(src, srcNbrs)
		return b.build()
	})
}

type builder struct {
	pos      map[int64]int32
	rows     []int
	all      *data.Data
	src, dst []int32
}

func newBuilder() *builder { return &builder{pos: map[int64]int32{}} }

// nodeView keeps the dense node fields of d. Sparse coordinates and edge
// destination ids do not describe nodes.
func nodeView(d *data.Data) *data.Data {
	out := &data.Data{}
	for _, f := range mask.AllFields() {
		if f == mask.DstIDs || f >= mask.Offsets {
			continue
		}
		out.Set(f, d.Get(f))
	}
	return out
}

func (b *builder) add(ds ...*data.Data) error {
	parts := make([]*data.Data, 0, len(ds))
	for _, d := range ds {
		if d != nil {
			parts = append(parts, nodeView(d))
		}
	}
	all, err := data.Concat(parts...)
	if err != nil {
		return err
	}
	b.all = all
	for row, id := range all.IDs.Int64s() {
		if _, ok := b.pos[id]; !ok {
			b.pos[id] = int32(len(b.rows))
			b.rows = append(b.rows, row)
		}
	}
	return nil
}

func (b *builder) link(from, to *data.Data) {
	if from == nil || to == nil {
		return
	}
	for _, s := range from.IDs.Int64s() {
		for _, d := range to.IDs.Int64s() {
			b.src = append(b.src, b.pos[s])
			b.dst = append(b.dst, b.pos[d])
		}
	}
}

func (b *builder) build() (Induced, error) {
	idx := append(append([]int32(nil), b.src...), b.dst...)
	return Homo(&SubGraph{
		EdgeIndex: tensor.FromInt32(idx, 2, len(b.src)),
		Nodes:     b.all.GatherRows(b.rows),
	}), nil
}
