// Package pipeline turns a tuple generator into an iterator bound to a
// declared tuple schema.
//
// Every tuple pulled through an Iterator is checked against the declared
// specs: arity, dtype, rank and every bound dimension. A disagreement is
// reported as ErrSchemaMismatch instead of handing misplaced tensors to the
// consumer.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/hanpama/graphtensor/internal/tensor"
)

var (
	ErrSchemaMismatch = errors.New("pipeline: tuple does not match declared schema")
	ErrNotInitialized = errors.New("pipeline: iterator not initialized")
)

// Generator produces tuples until it returns io.EOF.
type Generator interface {
	Next(ctx context.Context) ([]tensor.Tensor, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context) ([]tensor.Tensor, error)

func (f GeneratorFunc) Next(ctx context.Context) ([]tensor.Tensor, error) { return f(ctx) }

// Iterator pulls tuples from a Generator. It must be initialized before the
// first Next. Next is safe for concurrent use; pulls are serialized.
type Iterator struct {
	specs []tensor.Spec
	gen   Generator

	mu          sync.Mutex
	initialized bool
	done        bool
}

// FromGenerator binds gen to the declared specs.
func FromGenerator(specs []tensor.Spec, gen Generator) *Iterator {
	return &Iterator{specs: append([]tensor.Spec(nil), specs...), gen: gen}
}

// Specs returns the declared tuple schema.
func (it *Iterator) Specs() []tensor.Spec { return append([]tensor.Spec(nil), it.specs...) }

// Initialize makes the iterator ready. Calling it again has no effect; an
// exhausted iterator stays exhausted.
func (it *Iterator) Initialize(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	it.mu.Lock()
	it.initialized = true
	it.mu.Unlock()
	return nil
}

// Next returns the next tuple, or io.EOF once the generator is exhausted.
func (it *Iterator) Next(ctx context.Context) ([]tensor.Tensor, error) {
	it.mu.Lock()
	defer it.mu.Unlock()
	if !it.initialized {
		return nil, ErrNotInitialized
	}
	if it.done {
		return nil, io.EOF
	}
	values, err := it.gen.Next(ctx)
	if errors.Is(err, io.EOF) {
		it.done = true
		return nil, io.EOF
	}
	if err != nil {
		return nil, err
	}
	if err := Check(it.specs, values); err != nil {
		return nil, err
	}
	return values, nil
}

// Check reports whether values satisfy specs position by position.
func Check(specs []tensor.Spec, values []tensor.Tensor) error {
	if len(values) != len(specs) {
		return fmt.Errorf("%w: declared %d tensors, got %d", ErrSchemaMismatch, len(specs), len(values))
	}
	for i, s := range specs {
		if !s.Accepts(values[i]) {
			return fmt.Errorf("%w: position %d declared %s, got %s", ErrSchemaMismatch, i, s, values[i])
		}
	}
	return nil
}
