package batchgraph

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/hanpama/graphtensor/internal/data"
	"github.com/hanpama/graphtensor/internal/graphschema"
	"github.com/hanpama/graphtensor/internal/subgraph"
	"github.com/hanpama/graphtensor/internal/tensor"
)

var (
	userDec = graphschema.NewCountDecoder(1, 0, 0, true, false)
	itemDec = graphschema.NewCountDecoder(0, 2, 0, false, false)
)

func users(ids ...int64) *data.Data {
	labels := make([]int32, len(ids))
	for i := range ids {
		labels[i] = int32(i % 2)
	}
	return &data.Data{
		IntAttrs: tensor.FromInt64(append([]int64(nil), ids...), len(ids), 1),
		Labels:   tensor.FromInt32(labels),
		IDs:      tensor.FromInt64(ids),
	}
}

func items(ids ...int64) *data.Data {
	f := make([]float32, 2*len(ids))
	return &data.Data{
		FloatAttrs: tensor.FromFloat32(f, len(ids), 2),
		IDs:        tensor.FromInt64(ids),
	}
}

func specStrings(specs []tensor.Spec) []string {
	out := make([]string, len(specs))
	for i, s := range specs {
		out[i] = s.String()
	}
	return out
}

func TestLayoutOrder(t *testing.T) {
	l, err := NewLayout(
		[]string{"Buy", "Like"},
		[]graphschema.NodeType{{Name: "User", Decoder: userDec}, {Name: "Item", Decoder: itemDec}},
		[]Field{{Name: "y", Spec: tensor.Spec{DType: tensor.Float32, Shape: tensor.Shape{tensor.Unknown}}}},
	)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		"int32[2, ?]", "int32[2, ?]", // Buy, Like
		"int64[?, 1]", "int32[?]", "int64[?]", "int64[?]", // User attrs, labels, ids, offsets
		"float32[?, 2]", "int64[?]", "int64[?]", // Item attrs, ids, offsets
		"float32[?]", // y
	}
	if diff := cmp.Diff(want, specStrings(l.Specs())); diff != "" {
		t.Fatalf("specs (-want +got):\n%s", diff)
	}
	if !l.Heterogeneous() || l.Len() != len(want) {
		t.Fatalf("hetero=%v len=%d", l.Heterogeneous(), l.Len())
	}

	if _, err := NewLayout([]string{"Buy", "Buy"}, nil, nil); !errors.Is(err, ErrLayout) {
		t.Fatalf("want ErrLayout, got %v", err)
	}
}

func homoLayout(t *testing.T) *Layout {
	t.Helper()
	l, err := NewLayout([]string{"Like"}, []graphschema.NodeType{{Name: "User", Decoder: userDec}},
		[]Field{{Name: "y", Spec: tensor.Spec{DType: tensor.Int64, Shape: tensor.Shape{tensor.Unknown}}}})
	if err != nil {
		t.Fatal(err)
	}
	return l
}

func TestHomogeneousRoundTrip(t *testing.T) {
	g1 := &subgraph.SubGraph{
		EdgeIndex:  tensor.FromInt32([]int32{0, 0, 1, 2}, 2, 2),
		Nodes:      users(1, 2, 3),
		Additional: map[string]tensor.Tensor{"y": tensor.FromInt64([]int64{7})},
	}
	g2 := &subgraph.SubGraph{
		EdgeIndex:  tensor.FromInt32([]int32{1, 0}, 2, 1),
		Nodes:      users(4, 5),
		Additional: map[string]tensor.Tensor{"y": tensor.FromInt64([]int64{8})},
	}
	built, err := Build([]subgraph.Induced{subgraph.Homo(g1), subgraph.Homo(g2)}, []string{"y"})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	bg := built.(*BatchGraph)
	if diff := cmp.Diff([]int32{0, 0, 4, 1, 2, 3}, bg.EdgeIndex.Int32s()); diff != "" {
		t.Fatalf("edge index (-want +got):\n%s", diff)
	}

	l := homoLayout(t)
	flat, err := bg.Flatten(l)
	if err != nil {
		t.Fatalf("flatten: %v", err)
	}
	specs := l.Specs()
	if len(flat) != len(specs) {
		t.Fatalf("flattened %d, declared %d", len(flat), len(specs))
	}

	back, err := FromTensors(l, flat)
	if err != nil {
		t.Fatalf("from tensors: %v", err)
	}
	if back.NumNodes() != bg.NumNodes() || back.NumEdges() != 3 || back.NumGraphs() != 2 {
		t.Fatalf("nodes=%d edges=%d graphs=%d", back.NumNodes(), back.NumEdges(), back.NumGraphs())
	}
	if diff := cmp.Diff(bg.EdgeIndex.Int32s(), back.EdgeIndex.Int32s()); diff != "" {
		t.Fatalf("edge index (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int64{0, 0, 0, 1, 1}, back.GraphNodeOffsets.Int64s()); diff != "" {
		t.Fatalf("offsets (-want +got):\n%s", diff)
	}
	y, ok := back.Additional("y")
	if !ok {
		t.Fatalf("missing additional y")
	}
	if diff := cmp.Diff([]int64{7, 8}, y.Int64s()); diff != "" {
		t.Fatalf("additional (-want +got):\n%s", diff)
	}
}

func TestMissingAdditional(t *testing.T) {
	g := &subgraph.SubGraph{EdgeIndex: tensor.FromInt32(nil, 2, 0), Nodes: users(1)}
	if _, err := FromGraphs([]*subgraph.SubGraph{g}, []string{"y"}); !errors.Is(err, ErrMissingAdditional) {
		t.Fatalf("want ErrMissingAdditional, got %v", err)
	}
}

func TestMixedKinds(t *testing.T) {
	homo := subgraph.Homo(&subgraph.SubGraph{Nodes: users(1)})
	hetero := subgraph.Hetero(&subgraph.HeteroSubGraph{Nodes: map[string]*data.Data{"User": users(1)}})
	if _, err := Build([]subgraph.Induced{homo, hetero}, nil); !errors.Is(err, ErrKind) {
		t.Fatalf("want ErrKind, got %v", err)
	}
	if _, err := Build(nil, nil); !errors.Is(err, ErrEmpty) {
		t.Fatalf("want ErrEmpty, got %v", err)
	}
}

func heteroLayout(t *testing.T, edgeTypes ...string) *Layout {
	t.Helper()
	l, err := NewLayout(edgeTypes,
		[]graphschema.NodeType{{Name: "User", Decoder: userDec}, {Name: "Item", Decoder: itemDec}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	return l
}

func heteroSample() []*subgraph.HeteroSubGraph {
	mk := func(u []int64, i []int64) *subgraph.HeteroSubGraph {
		return &subgraph.HeteroSubGraph{
			Nodes: map[string]*data.Data{"User": users(u...), "Item": items(i...)},
			Edges: map[string]subgraph.Edges{
				"Buy": {SrcType: "User", DstType: "Item", Index: tensor.FromInt32([]int32{0, 0}, 2, 1)},
			},
		}
	}
	return []*subgraph.HeteroSubGraph{mk([]int64{1}, []int64{10, 11}), mk([]int64{2, 3}, []int64{12})}
}

func TestHeteroRoundTripWithConfiguredOnlyEdgeType(t *testing.T) {
	bg, err := FromHeteroGraphs(heteroSample(), nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	// Item rows of the second subgraph start at 2, User rows at 1.
	if diff := cmp.Diff([]int32{0, 1, 0, 2}, bg.EdgeIndex["Buy"].Int32s()); diff != "" {
		t.Fatalf("edge index (-want +got):\n%s", diff)
	}

	l := heteroLayout(t, "Buy", "Like")
	flat, err := bg.Flatten(l)
	if err != nil {
		t.Fatalf("flatten: %v", err)
	}
	back, err := HeteroFromTensors(l, flat)
	if err != nil {
		t.Fatalf("from tensors: %v", err)
	}
	if diff := cmp.Diff([]string{"Buy", "Like"}, back.EdgeTypes()); diff != "" {
		t.Fatalf("edge types (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"User", "Item"}, back.NodeTypes()); diff != "" {
		t.Fatalf("node types (-want +got):\n%s", diff)
	}
	if got := back.EdgeIndex["Like"].Shape(); !got.Equal(tensor.Shape{2, 0}) {
		t.Fatalf("configured-only edge type shape %s", got)
	}
	if diff := cmp.Diff([]int64{0, 0, 1}, back.GraphNodeOffsets["Item"].Int64s()); diff != "" {
		t.Fatalf("item offsets (-want +got):\n%s", diff)
	}
	if back.NumGraphs() != 2 || back.Nodes["User"].Len() != 3 {
		t.Fatalf("graphs=%d users=%d", back.NumGraphs(), back.Nodes["User"].Len())
	}
}

func TestHeteroFlattenUnknownEdgeType(t *testing.T) {
	bg, err := FromHeteroGraphs(heteroSample(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := bg.Flatten(heteroLayout(t, "Like")); !errors.Is(err, ErrUnknownType) {
		t.Fatalf("want ErrUnknownType, got %v", err)
	}
}

func TestHeteroAbsentNodeTypeIsEmpty(t *testing.T) {
	only := &subgraph.HeteroSubGraph{Nodes: map[string]*data.Data{"User": users(1)}}
	bg, err := FromHeteroGraphs([]*subgraph.HeteroSubGraph{only}, nil)
	if err != nil {
		t.Fatal(err)
	}
	l := heteroLayout(t, "Buy")
	flat, err := bg.Flatten(l)
	if err != nil {
		t.Fatalf("flatten: %v", err)
	}
	for i, spec := range l.Specs() {
		if !spec.Accepts(flat[i]) {
			t.Fatalf("position %d: %s does not satisfy %s", i, flat[i], spec)
		}
	}
}

func TestDecodeRejectsWrongArity(t *testing.T) {
	if _, err := Decode(homoLayout(t), nil); !errors.Is(err, ErrLayout) {
		t.Fatalf("want ErrLayout, got %v", err)
	}
}

func TestEdgeShiftOverflow(t *testing.T) {
	var a edgeAccum
	index := tensor.FromInt32([]int32{0, 1}, 2, 1)
	if err := a.add(index, math.MaxInt32-1, 0); err != nil {
		t.Fatalf("in range: %v", err)
	}
	if err := a.add(index, 0, math.MaxInt32); !errors.Is(err, ErrOverflow) {
		t.Fatalf("want ErrOverflow, got %v", err)
	}
	if diff := cmp.Diff([]int32{math.MaxInt32 - 1}, a.src); diff != "" {
		t.Fatalf("src (-want +got):\n%s", diff)
	}
}
