package subgraph

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/hanpama/graphtensor/internal/data"
	"github.com/hanpama/graphtensor/internal/tensor"
)

func nodes(ids ...int64) *data.Data {
	f := make([]float32, len(ids))
	for i, id := range ids {
		f[i] = float32(id) / 10
	}
	return &data.Data{
		FloatAttrs: tensor.FromFloat32(f, len(ids), 1),
		IDs:        tensor.FromInt64(ids),
	}
}

func TestInducerArity(t *testing.T) {
	var zero Inducer
	if !zero.IsZero() || zero.Arity() != 0 {
		t.Fatalf("zero inducer: zero=%v arity=%d", zero.IsZero(), zero.Arity())
	}
	if got := EdgeInducer().Arity(); got != 4 {
		t.Fatalf("edge arity %d", got)
	}
	if got := NodeInducer().Arity(); got != 2 {
		t.Fatalf("node arity %d", got)
	}
	if _, err := NodeInducer().Induce(nodes(1)); err == nil {
		t.Fatalf("expected arity error")
	}
}

func TestInducerPropagatesError(t *testing.T) {
	boom := errors.New("boom")
	in := InduceWithNode(func(src, nbrs *data.Data) (Induced, error) { return Induced{}, boom })
	if _, err := in.Induce(nodes(1), nodes(2)); !errors.Is(err, boom) {
		t.Fatalf("want boom, got %v", err)
	}

	untagged := InduceWithNode(func(src, nbrs *data.Data) (Induced, error) { return Induced{}, nil })
	if _, err := untagged.Induce(nodes(1), nodes(2)); err == nil {
		t.Fatalf("expected untagged error")
	}
}

func TestEdgeInducer(t *testing.T) {
	got, err := EdgeInducer().Induce(nodes(1), nodes(2), nodes(3, 2), nodes(4))
	if err != nil {
		t.Fatalf("induce: %v", err)
	}
	if got.Kind() != Homogeneous || got.HeteroSubGraph() != nil {
		t.Fatalf("unexpected kind %s", got.Kind())
	}
	g := got.SubGraph()
	if diff := cmp.Diff([]int64{1, 2, 3, 4}, g.Nodes.IDs.Int64s()); diff != "" {
		t.Fatalf("node ids (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float32{0.1, 0.2, 0.3, 0.4}, g.Nodes.FloatAttrs.Float32s()); diff != "" {
		t.Fatalf("node attrs (-want +got):\n%s", diff)
	}
	// src->dst, src->3, src->2, dst->4
	want := []int32{0, 0, 0, 1, 1, 2, 1, 3}
	if diff := cmp.Diff(want, g.EdgeIndex.Int32s()); diff != "" {
		t.Fatalf("edge index (-want +got):\n%s", diff)
	}
	if !g.EdgeIndex.Shape().Equal(tensor.Shape{2, 4}) {
		t.Fatalf("edge index shape %s", g.EdgeIndex.Shape())
	}
}

func TestEdgeInducerRejectsMismatchedFields(t *testing.T) {
	src := &data.Data{
		Labels: tensor.FromInt32([]int32{1}),
		IDs:    tensor.FromInt64([]int64{1}),
	}
	dst := &data.Data{IDs: tensor.FromInt64([]int64{2})}
	_, err := EdgeInducer().Induce(src, dst, nil, nil)
	if !errors.Is(err, data.ErrRagged) {
		t.Fatalf("want ErrRagged, got %v", err)
	}
}

func TestNodeInducerWithoutNeighbors(t *testing.T) {
	got, err := NodeInducer().Induce(nodes(7), nil)
	if err != nil {
		t.Fatalf("induce: %v", err)
	}
	g := got.SubGraph()
	if g.NumNodes() != 1 || g.EdgeIndex.Dim(1) != 0 {
		t.Fatalf("nodes=%d edges=%d", g.NumNodes(), g.EdgeIndex.Dim(1))
	}
}
