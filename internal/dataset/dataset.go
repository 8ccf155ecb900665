// Package dataset converts graph query results into flat tensor tuples and
// rebuilds those tuples into ego graphs and batch graphs.
//
// A Dataset declares its tuple schema once, at construction, and then pulls
// tuples lazily from a Source:
//
//	ds, err := dataset.New(q, dataset.SourceOf(src), dataset.WithInducer(subgraph.EdgeInducer()))
//	it := ds.Iterator()
//	it.Initialize(ctx)
//	for {
//		el, err := ds.Next(ctx)
//		if errors.Is(err, io.EOF) {
//			break
//		}
//		bg, err := el.BatchGraph(query.PosSrc)
//		...
//	}
//
// Raw mode (no inducer) emits, for every alias of the source, the fields
// selected by its mask. Batch mode emits a batchgraph.Layout, twice when the
// query draws negative samples. Both modes walk one ordering routine for
// declaration and for generation, so produced tuples always line up with
// OutputSpecs.
package dataset

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/hanpama/graphtensor/internal/batchgraph"
	"github.com/hanpama/graphtensor/internal/pipeline"
	"github.com/hanpama/graphtensor/internal/tensor"
)

// Mode tells how tuples are laid out.
type Mode int

const (
	Raw Mode = iota
	Batch
)

func (m Mode) String() string {
	if m == Batch {
		return "batch"
	}
	return "raw"
}

// Opener creates the Source of a Dataset. window is the configured
// prefetch window.
type Opener func(window int) (Source, error)

// SourceOf returns an Opener for an already constructed source.
func SourceOf(src Source) Opener {
	return func(int) (Source, error) { return src, nil }
}

// Dataset is a declared tuple schema bound to a source.
//
// Declaration accessors are safe for concurrent use. Pulls go through the
// Iterator, which serializes them.
type Dataset struct {
	q    Query
	src  Source
	opts *Options
	log  *slog.Logger

	mode      Mode
	raw       []aliasMask
	layout    *batchgraph.Layout
	hasNeg    bool
	edgeTypes []string
	specs     []tensor.Spec
	posSize   int

	gen *Generator
	it  *pipeline.Iterator
}

// New declares the tuple schema of q and opens its source.
func New(q Query, open Opener, opts ...Option) (*Dataset, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.Window <= 0 {
		return nil, fmt.Errorf("%w: window must be positive, got %d", ErrConfig, o.Window)
	}
	if o.Logger == nil {
		o.Logger = defaultOptions().Logger
	}
	src, err := open(o.Window)
	if err != nil {
		return nil, err
	}
	ds := &Dataset{q: q, src: src, opts: o, log: o.Logger}
	if o.Inducer.IsZero() {
		err = ds.declareRaw()
	} else {
		ds.mode = Batch
		err = ds.declareBatch()
	}
	if err != nil {
		return nil, err
	}
	ds.gen = &Generator{ds: ds}
	ds.it = pipeline.FromGenerator(ds.specs, ds.gen)
	ds.log.Info("dataset declared",
		slog.String("mode", ds.mode.String()),
		slog.Int("tensors", len(ds.specs)),
		slog.Int("pos_size", ds.posSize),
		slog.Int("window", o.Window))
	return ds, nil
}

func (ds *Dataset) Mode() Mode { return ds.mode }

// OutputSpecs returns the declared tuple schema.
func (ds *Dataset) OutputSpecs() []tensor.Spec { return append([]tensor.Spec(nil), ds.specs...) }

// OutputNames returns a name for every declared tuple position. Raw mode
// names join alias and field; batch mode prefixes layout names with "pos_"
// or "neg_".
func (ds *Dataset) OutputNames() []string {
	var out []string
	if ds.mode == Raw {
		for _, am := range ds.raw {
			for _, f := range am.mask.Fields() {
				out = append(out, am.alias+"_"+f.String())
			}
		}
		return out
	}
	block := ds.layout.Names()
	for _, n := range block {
		out = append(out, "pos_"+n)
	}
	if ds.hasNeg {
		for _, n := range block {
			out = append(out, "neg_"+n)
		}
	}
	return out
}

// PosSize returns the length of the positive block of a batch-mode tuple.
// It is 0 in raw mode.
func (ds *Dataset) PosSize() int { return ds.posSize }

// EdgeTypes returns the edge types of batch mode: the configured list, or
// the query's.
func (ds *Dataset) EdgeTypes() []string { return append([]string(nil), ds.edgeTypes...) }

// Layout returns the batch layout, or nil in raw mode.
func (ds *Dataset) Layout() *batchgraph.Layout { return ds.layout }

// Generator returns the generator feeding the iterator. Pulling from it
// directly bypasses the iterator's schema check and consumes the same
// source.
func (ds *Dataset) Generator() *Generator { return ds.gen }

// Iterator returns the dataset iterator. It must be initialized before
// Next.
func (ds *Dataset) Iterator() *pipeline.Iterator { return ds.it }

// Next pulls the next tuple through the iterator. It returns io.EOF once
// the source is exhausted.
func (ds *Dataset) Next(ctx context.Context) (*Element, error) {
	values, err := ds.it.Next(ctx)
	if err != nil {
		return nil, err
	}
	return &Element{ds: ds, values: values, ctx: ctx}, nil
}

// Close releases the source when it implements io.Closer. Next returns
// io.EOF afterwards.
func (ds *Dataset) Close() error {
	if c, ok := ds.src.(io.Closer); ok {
		if err := c.Close(); err != nil {
			return fmt.Errorf("dataset: close source: %w", err)
		}
	}
	return nil
}

// Element wraps a tuple obtained elsewhere, for example from a record file
// or a remote tuple stream, after checking it against OutputSpecs.
func (ds *Dataset) Element(values []tensor.Tensor) (*Element, error) {
	if err := pipeline.Check(ds.specs, values); err != nil {
		return nil, err
	}
	return &Element{ds: ds, values: values, ctx: context.Background()}, nil
}
