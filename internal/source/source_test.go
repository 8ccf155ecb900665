package source

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/hanpama/graphtensor/internal/data"
	"github.com/hanpama/graphtensor/internal/graphschema"
	"github.com/hanpama/graphtensor/internal/query"
	"github.com/hanpama/graphtensor/internal/subgraph"
	"github.com/stretchr/testify/require"
)

func testGraph(t *testing.T) *graphschema.Schema {
	t.Helper()
	g, err := graphschema.ParseSDL("g.graphql", `
type User @node { age: Int  score: Float  y: Int @label }
type Like @edge(src: "User", dst: "User") { w: Float @weight }
`)
	require.NoError(t, err)
	return g
}

func pairQuery(t *testing.T) *query.DAG {
	t.Helper()
	q := query.NewDAG(testGraph(t))
	src := q.V(query.PosSrc, "User", 4)
	src.OutV("src_hop", "Like", 2)
	dst := src.OutV(query.PosDst, "Like", 1)
	dst.OutV("dst_hop", "Like", 2)
	src.OutNeg(query.NegDst, "Like", 3)
	require.NoError(t, q.Err())
	return q
}

func TestBufferedSubgraphs(t *testing.T) {
	ctx := context.Background()
	q := pairQuery(t)
	syn, err := NewSynthetic(q, SyntheticOptions{Batches: 2, Seed: 1})
	require.NoError(t, err)
	b := NewBuffered(q, syn, 5)
	defer b.Close()

	require.Equal(t, q.Aliases(), b.Aliases())
	for i := 0; i < 2; i++ {
		pos, neg, err := b.Subgraphs(ctx, subgraph.EdgeInducer())
		require.NoError(t, err)
		require.Len(t, pos, 4)
		require.Len(t, neg, 4)
		for _, g := range pos {
			require.Equal(t, subgraph.Homogeneous, g.Kind())
			// src->dst, src->2 neighbors, dst->2 neighbors
			require.Equal(t, 5, g.SubGraph().EdgeIndex.Dim(1))
		}
		for _, g := range neg {
			// src->3 negatives, src->2 neighbors
			require.Equal(t, 5, g.SubGraph().EdgeIndex.Dim(1))
		}
	}
	_, _, err = b.Subgraphs(ctx, subgraph.EdgeInducer())
	require.True(t, errors.Is(err, io.EOF), "want io.EOF, got %v", err)
}

func TestBufferedClosed(t *testing.T) {
	q := pairQuery(t)
	syn, err := NewSynthetic(q, SyntheticOptions{Seed: 1})
	require.NoError(t, err)
	b := NewBuffered(q, syn, 1)
	require.NoError(t, b.Close())
	_, err = b.Next(context.Background())
	require.True(t, errors.Is(err, io.EOF))
}

type countingProducer struct {
	Producer
	calls atomic.Int64
}

func (c *countingProducer) Produce(ctx context.Context) (map[string]*data.Data, error) {
	c.calls.Add(1)
	return c.Producer.Produce(ctx)
}

func TestBufferedCloseStopsProducer(t *testing.T) {
	q := pairQuery(t)
	syn, err := NewSynthetic(q, SyntheticOptions{Seed: 1})
	require.NoError(t, err)
	p := &countingProducer{Producer: syn}
	b := NewBuffered(q, p, 2)

	_, err = b.Next(context.Background())
	require.NoError(t, err)
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	// The prefetcher has exited: no further Produce calls happen.
	n := p.calls.Load()
	require.LessOrEqual(t, n, int64(1+2+1))
	_, err = b.Next(context.Background())
	require.ErrorIs(t, err, io.EOF)
	require.Equal(t, n, p.calls.Load())
}

func TestInduceMissingRole(t *testing.T) {
	q := query.NewDAG(testGraph(t))
	q.V(query.PosSrc, "User", 2).OutV("hop", "Like", 1)
	require.NoError(t, q.Err())
	syn, err := NewSynthetic(q, SyntheticOptions{Seed: 1})
	require.NoError(t, err)
	unit, err := syn.Produce(context.Background())
	require.NoError(t, err)

	_, _, err = Induce(q, unit, subgraph.EdgeInducer())
	require.True(t, errors.Is(err, ErrRole))

	pos, neg, err := Induce(q, unit, subgraph.NodeInducer())
	require.NoError(t, err)
	require.Len(t, pos, 2)
	require.Nil(t, neg)
}

func TestInduceSparseNeighbors(t *testing.T) {
	q := query.NewDAG(testGraph(t))
	q.V(query.PosSrc, "User", 3).OutV("hop", "Like", 0, query.Sparse())
	require.NoError(t, q.Err())
	syn, err := NewSynthetic(q, SyntheticOptions{Seed: 7, MaxSparse: 4})
	require.NoError(t, err)
	unit, err := syn.Produce(context.Background())
	require.NoError(t, err)

	hop := unit["hop"]
	require.True(t, hop.Sparse())
	counts := hop.Offsets.Int64s()
	require.Len(t, counts, 3)

	pos, _, err := Induce(q, unit, subgraph.NodeInducer())
	require.NoError(t, err)
	for i, g := range pos {
		require.Equal(t, int(counts[i]), g.SubGraph().EdgeIndex.Dim(1), "sample %d", i)
	}
}

func TestSyntheticRejectsStepsBelowSparse(t *testing.T) {
	q := query.NewDAG(testGraph(t))
	q.V(query.PosSrc, "User", 3).OutV("hop", "Like", 0, query.Sparse()).OutV("hop2", "Like", 2)
	require.NoError(t, q.Err())
	_, err := NewSynthetic(q, SyntheticOptions{})
	require.Error(t, err)
}

func TestMockSourceRecordsCalls(t *testing.T) {
	ctx := context.Background()
	m := NewMockSource([]string{"a"}, nil).WithBatches(MockBatch{})
	_, err := m.Open(5)
	require.NoError(t, err)
	require.Equal(t, 5, m.Window())

	_, err = m.Next(ctx)
	require.NoError(t, err)
	_, err = m.Next(ctx)
	require.ErrorIs(t, err, io.EOF)
	_, _, err = m.Subgraphs(ctx, subgraph.NodeInducer())
	require.NoError(t, err)

	want := []Call{
		{Kind: CallNext},
		{Kind: CallNext, EOF: true},
		{Kind: CallSubgraphs, Arity: 2},
	}
	if diff := cmp.Diff(want, m.Calls()); diff != "" {
		t.Fatalf("calls (-want +got):\n%s", diff)
	}
}
