// Package source provides raw traversal sources for datasets: a buffered
// source that prefetches units from a Producer and induces subgraphs from
// them, a synthetic producer for tooling and tests, and a recording mock.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/hanpama/graphtensor/internal/data"
	"github.com/hanpama/graphtensor/internal/mask"
	"github.com/hanpama/graphtensor/internal/query"
	"github.com/hanpama/graphtensor/internal/subgraph"
)

// Producer yields raw traversal units, one Data bundle per alias, until it
// returns io.EOF.
type Producer interface {
	Aliases() []string
	Produce(ctx context.Context) (map[string]*data.Data, error)
}

type result struct {
	unit map[string]*data.Data
	err  error
}

// Buffered prefetches up to window units from a Producer in the background.
// It implements dataset.Source. Close stops prefetching.
type Buffered struct {
	q      *query.DAG
	p      Producer
	window int

	once   sync.Once
	ch     chan result
	cancel context.CancelFunc
	done   chan struct{}
	closed atomic.Bool
}

// NewBuffered wraps p. q supplies the roles used by Subgraphs.
func NewBuffered(q *query.DAG, p Producer, window int) *Buffered {
	if window <= 0 {
		window = 1
	}
	return &Buffered{q: q, p: p, window: window}
}

func (b *Buffered) start() {
	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.ch = make(chan result, b.window)
	b.done = make(chan struct{})
	go b.fill(ctx)
}

func (b *Buffered) fill(ctx context.Context) {
	defer close(b.done)
	defer close(b.ch)
	for {
		unit, err := b.p.Produce(ctx)
		select {
		case b.ch <- result{unit: unit, err: err}:
		case <-ctx.Done():
			return
		}
		if err != nil {
			return
		}
	}
}

// Close stops the prefetcher and waits for it to exit. Units already
// buffered are dropped and later calls to Next return io.EOF. The producer
// must honor ctx for Close to return while a Produce call is in flight.
func (b *Buffered) Close() error {
	b.closed.Store(true)
	b.once.Do(func() {})
	if b.cancel != nil {
		b.cancel()
		<-b.done
	}
	return nil
}

func (b *Buffered) Aliases() []string { return b.p.Aliases() }

// Next returns the next prefetched unit, or io.EOF once the producer is
// exhausted or the source is closed.
func (b *Buffered) Next(ctx context.Context) (map[string]*data.Data, error) {
	b.once.Do(b.start)
	if b.ch == nil || b.closed.Load() {
		return nil, io.EOF
	}
	select {
	case r, ok := <-b.ch:
		if !ok {
			return nil, io.EOF
		}
		return r.unit, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Subgraphs pulls the next unit and induces one subgraph per sample.
func (b *Buffered) Subgraphs(ctx context.Context, in subgraph.Inducer) (pos, neg []subgraph.Induced, err error) {
	unit, err := b.Next(ctx)
	if err != nil {
		return nil, nil, err
	}
	return Induce(b.q, unit, in)
}

var ErrRole = errors.New("source: query lacks a role required by the inducer")

// Induce splits unit into samples along the pos_src batch and calls in once
// per sample. Neighbors of a role are the data of its first positive
// downstream vertex step. Edge induction pairs pos_src with pos_dst; when
// the query has neg_dst, a negative subgraph pairs each pos_src sample with
// its negative destinations.
func Induce(q *query.DAG, unit map[string]*data.Data, in subgraph.Inducer) (pos, neg []subgraph.Induced, err error) {
	src, ok := q.Node(query.PosSrc)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrRole, query.PosSrc)
	}
	srcData := unit[query.PosSrc]
	batch := srcData.Len()

	var dst *query.Node
	if in.Arity() == 4 {
		if dst, ok = q.Node(query.PosDst); !ok {
			return nil, nil, fmt.Errorf("%w: %s", ErrRole, query.PosDst)
		}
	}
	negDst, hasNeg := q.Node(query.NegDst)

	for i := 0; i < batch; i++ {
		s, err := sample(unit, src, i, batch)
		if err != nil {
			return nil, nil, err
		}
		sn, err := neighbors(unit, src, i, batch)
		if err != nil {
			return nil, nil, err
		}
		var args []*data.Data
		if dst != nil {
			d, err := sample(unit, dst, i, batch)
			if err != nil {
				return nil, nil, err
			}
			dn, err := neighbors(unit, dst, i, batch)
			if err != nil {
				return nil, nil, err
			}
			args = []*data.Data{s, d, sn, dn}
		} else {
			args = []*data.Data{s, sn}
		}
		g, err := in.Induce(args...)
		if err != nil {
			return nil, nil, fmt.Errorf("source: induce sample %d: %w", i, err)
		}
		pos = append(pos, g)

		if !hasNeg {
			continue
		}
		nd, err := sample(unit, negDst, i, batch)
		if err != nil {
			return nil, nil, err
		}
		if dst != nil {
			ndn, err := neighbors(unit, negDst, i, batch)
			if err != nil {
				return nil, nil, err
			}
			args = []*data.Data{s, nd, sn, ndn}
		} else {
			args = []*data.Data{s, nd}
		}
		ng, err := in.Induce(args...)
		if err != nil {
			return nil, nil, fmt.Errorf("source: induce negative sample %d: %w", i, err)
		}
		neg = append(neg, ng)
	}
	return pos, neg, nil
}

// sample returns the rows of n belonging to sample i of a batch.
func sample(unit map[string]*data.Data, n *query.Node, i, batch int) (*data.Data, error) {
	d, ok := unit[n.Alias()]
	if !ok || d == nil {
		return nil, fmt.Errorf("source: unit has no data for %q", n.Alias())
	}
	if d.Sparse() {
		offs := d.Offsets.Int64s()
		per := len(offs) / batch
		start := 0
		for _, c := range offs[:i*per] {
			start += int(c)
		}
		end := start
		for _, c := range offs[i*per : (i+1)*per] {
			end += int(c)
		}
		return dense(d).SliceRows(start, end)
	}
	per := d.Len() / batch
	return dense(d).SliceRows(i*per, (i+1)*per)
}

// neighbors returns the rows of the first positive downstream vertex step
// of n for sample i, or nil when n has none. Role aliases are not
// neighbors.
func neighbors(unit map[string]*data.Data, n *query.Node, i, batch int) (*data.Data, error) {
	for _, d := range n.PosDownstreams() {
		if a := d.Alias(); a == query.PosDst || a == query.NegDst {
			continue
		}
		if !d.IsEdge() {
			return sample(unit, d, i, batch)
		}
	}
	return nil, nil
}

// dense drops sparse coordinates so rows can be sliced.
func dense(d *data.Data) *data.Data {
	out := &data.Data{}
	for _, f := range mask.AllFields() {
		if f < mask.Offsets {
			out.Set(f, d.Get(f))
		}
	}
	return out
}
