package dataset

import (
	"io"
	"log/slog"

	"github.com/hanpama/graphtensor/internal/batchgraph"
	"github.com/hanpama/graphtensor/internal/subgraph"
	"github.com/hanpama/graphtensor/internal/tensor"
)

// Options configures a Dataset.
//
// Defaults:
// - Window:     5
// - Inducer:    none (raw mode)
// - Additional: none
// - EdgeTypes:  the query's edge types
// - Logger:     discards everything
type Options struct {
	Window     int
	Inducer    subgraph.Inducer
	Additional []batchgraph.Field
	EdgeTypes  []string
	Logger     *slog.Logger
}

// Option mutates Options.
type Option func(*Options)

func defaultOptions() *Options {
	return &Options{
		Window: 5,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// WithWindow sets the number of units a buffered source prefetches.
func WithWindow(n int) Option { return func(o *Options) { o.Window = n } }

// WithInducer switches the Dataset to batch mode.
func WithInducer(in subgraph.Inducer) Option { return func(o *Options) { o.Inducer = in } }

// WithAdditional declares an extra tensor every induced subgraph carries.
// Fields keep the order in which they are declared.
func WithAdditional(name string, spec tensor.Spec) Option {
	return func(o *Options) {
		o.Additional = append(o.Additional, batchgraph.Field{Name: name, Spec: spec})
	}
}

// WithEdgeTypes overrides the edge types of batch mode. Use it when an
// induced subgraph holds edges of a type the query only traverses
// implicitly.
func WithEdgeTypes(types ...string) Option {
	return func(o *Options) { o.EdgeTypes = append([]string(nil), types...) }
}

func WithLogger(l *slog.Logger) Option { return func(o *Options) { o.Logger = l } }
