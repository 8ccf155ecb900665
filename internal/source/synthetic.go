package source

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"sync"

	"github.com/hanpama/graphtensor/internal/data"
	"github.com/hanpama/graphtensor/internal/mask"
	"github.com/hanpama/graphtensor/internal/query"
	"github.com/hanpama/graphtensor/internal/tensor"
)

// SyntheticOptions configures a Synthetic producer.
type SyntheticOptions struct {
	// Batches is the number of units produced before io.EOF. Zero means
	// unlimited.
	Batches int
	Seed    int64
	// IDRange bounds generated ids to [0, IDRange). Defaults to 100.
	IDRange int64
	// MaxSparse bounds the neighbor count of a sparse step row. Defaults to 3.
	MaxSparse int
}

// Synthetic produces random units shaped after a query. Every alias gets
// the fields its mask selects, with the row counts its shape implies.
type Synthetic struct {
	q    *query.DAG
	opts SyntheticOptions

	mu       sync.Mutex
	rng      *rand.Rand
	produced int
}

// NewSynthetic validates q for generation and returns the producer.
func NewSynthetic(q *query.DAG, opts SyntheticOptions) (*Synthetic, error) {
	if opts.IDRange <= 0 {
		opts.IDRange = 100
	}
	if opts.MaxSparse <= 0 {
		opts.MaxSparse = 3
	}
	for _, alias := range q.Aliases() {
		n, _ := q.Node(alias)
		if _, ok := leadingRows(n); !ok {
			return nil, fmt.Errorf("source: synthetic data for %q: steps below a sparse step are not supported", alias)
		}
	}
	return &Synthetic{q: q, opts: opts, rng: rand.New(rand.NewSource(opts.Seed))}, nil
}

// leadingRows returns the number of rows a step holds, not counting the
// last dimension of a sparse step.
func leadingRows(n *query.Node) (int, bool) {
	shape := n.Shape()
	if n.Sparse() {
		shape = shape[:len(shape)-1]
	}
	rows := shape.NumElements()
	return rows, rows != tensor.Unknown
}

func (s *Synthetic) Aliases() []string { return s.q.Aliases() }

func (s *Synthetic) Produce(ctx context.Context) (map[string]*data.Data, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.opts.Batches > 0 && s.produced >= s.opts.Batches {
		return nil, io.EOF
	}
	s.produced++
	unit := make(map[string]*data.Data)
	for _, alias := range s.q.Aliases() {
		n, _ := s.q.Node(alias)
		unit[alias] = s.generate(n)
	}
	return unit, nil
}

func (s *Synthetic) generate(n *query.Node) *data.Data {
	rows, _ := leadingRows(n)
	d := &data.Data{}
	if n.Sparse() {
		counts := make([]int64, rows)
		var indices []int64
		width := 0
		for r := range counts {
			c := s.rng.Intn(s.opts.MaxSparse) + 1
			counts[r] = int64(c)
			for j := 0; j < c; j++ {
				indices = append(indices, int64(r), int64(j))
			}
			if c > width {
				width = c
			}
		}
		d.Offsets = tensor.FromInt64(counts)
		d.Indices = tensor.FromInt64(indices, len(indices)/2, 2)
		d.DenseShape = tensor.FromInt64([]int64{int64(rows), int64(width)})
		rows = len(indices) / 2
	}

	dec := n.Decoder()
	m := mask.Resolve(dec, n.IsEdge(), n.Sparse())
	for _, f := range m.Fields() {
		switch f {
		case mask.IntAttrs:
			d.IntAttrs = tensor.FromInt64(s.int64s(rows*dec.IntAttrNum(), 1000), rows, dec.IntAttrNum())
		case mask.FloatAttrs:
			d.FloatAttrs = tensor.FromFloat32(s.float32s(rows*dec.FloatAttrNum()), rows, dec.FloatAttrNum())
		case mask.StringAttrs:
			vals := make([]string, rows*dec.StringAttrNum())
			for i := range vals {
				vals[i] = fmt.Sprintf("s%d", s.rng.Intn(1000))
			}
			d.StringAttrs = tensor.FromString(vals, rows, dec.StringAttrNum())
		case mask.Labels:
			labels := make([]int32, rows)
			for i := range labels {
				labels[i] = int32(s.rng.Intn(2))
			}
			d.Labels = tensor.FromInt32(labels)
		case mask.Weights:
			d.Weights = tensor.FromFloat32(s.float32s(rows))
		case mask.IDs:
			d.IDs = tensor.FromInt64(s.int64s(rows, s.opts.IDRange))
		case mask.DstIDs:
			d.DstIDs = tensor.FromInt64(s.int64s(rows, s.opts.IDRange))
		}
	}
	return d
}

func (s *Synthetic) int64s(n int, bound int64) []int64 {
	out := make([]int64, n)
	for i := range out {
		out[i] = s.rng.Int63n(bound)
	}
	return out
}

func (s *Synthetic) float32s(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = s.rng.Float32()
	}
	return out
}
