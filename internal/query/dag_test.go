package query

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/hanpama/graphtensor/internal/graphschema"
	"github.com/hanpama/graphtensor/internal/tensor"
)

func testGraph(t *testing.T) *graphschema.Schema {
	t.Helper()
	g, err := graphschema.ParseSDL("g.graphql", `
type User @node { age: Int }
type Item @node { price: Float }
type Buy @edge(src: "User", dst: "Item") { w: Float @weight }
type Like @edge(src: "User", dst: "User") { x: Int }
`)
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	return g
}

func TestBuilderTypesAndOrder(t *testing.T) {
	q := NewDAG(testGraph(t))
	src := q.V(PosSrc, "User", 8)
	e := src.OutE("e1", "Like", 3)
	e.DstV("u1")
	src.OutV("i1", "Buy", 4)
	src.OutNeg(NegDst, "Buy", 2)
	if err := q.Err(); err != nil {
		t.Fatalf("build: %v", err)
	}

	if diff := cmp.Diff([]string{PosSrc, "e1", "u1", "i1", NegDst}, q.Aliases()); diff != "" {
		t.Fatalf("aliases (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"User", "Item"}, q.NodeTypes()); diff != "" {
		t.Fatalf("node types (-want +got):\n%s", diff)
	}
	// Buy is only traversed implicitly.
	if diff := cmp.Diff([]string{"Like"}, q.EdgeTypes()); diff != "" {
		t.Fatalf("edge types (-want +got):\n%s", diff)
	}

	i1, _ := q.Node("i1")
	if i1.Type() != "Item" || i1.NumNeighbors() != 4 || !i1.Shape().Equal(tensor.Shape{8, 4}) {
		t.Fatalf("unexpected hop: type=%s shape=%s", i1.Type(), i1.Shape())
	}
	neg, _ := q.Node(NegDst)
	if !src.IsDownstream(neg) || len(src.PosDownstreams()) != 2 || len(src.NegDownstreams()) != 1 {
		t.Fatalf("unexpected downstreams")
	}
	u1, _ := q.Node("u1")
	if src.IsDownstream(u1) {
		t.Fatalf("u1 is two hops away")
	}
}

func TestBuilderErrors(t *testing.T) {
	q := NewDAG(testGraph(t))
	src := q.V("a", "User", 1)
	src.OutV("a", "Buy", 1)
	if !errors.Is(q.Err(), ErrDuplicateAlias) {
		t.Fatalf("want ErrDuplicateAlias, got %v", q.Err())
	}

	q = NewDAG(testGraph(t))
	q.V("a", "Nope", 1)
	if !errors.Is(q.Err(), ErrUnknownType) {
		t.Fatalf("want ErrUnknownType, got %v", q.Err())
	}

	q = NewDAG(testGraph(t))
	q.V("a", "User", 1).SrcV("b")
	if !errors.Is(q.Err(), ErrWrongKind) {
		t.Fatalf("want ErrWrongKind, got %v", q.Err())
	}
}

func TestSparseStep(t *testing.T) {
	q := NewDAG(testGraph(t))
	n := q.V("a", "User", 2).OutV("b", "Like", 0, Sparse())
	if !n.Sparse() || n.NumNeighbors() != tensor.Unknown {
		t.Fatalf("sparse step: sparse=%v nbrs=%d", n.Sparse(), n.NumNeighbors())
	}
}

func TestBuildFromSpec(t *testing.T) {
	spec := Spec{Steps: []Step{
		{Alias: PosSrc, Op: "V", Type: "User", Batch: 4},
		{Alias: "hop1", From: PosSrc, Op: "outV", Edge: "Like", Count: 2},
		{Alias: NegDst, From: PosSrc, Op: "outNeg", Edge: "Buy", Count: 3},
	}}
	q, err := Build(spec, testGraph(t))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !q.HasAlias(NegDst) {
		t.Fatalf("missing neg_dst")
	}

	_, err = Build(Spec{Steps: []Step{{Alias: "x", From: "missing", Op: "outV"}}}, testGraph(t))
	if err == nil {
		t.Fatalf("expected unknown upstream error")
	}
}
