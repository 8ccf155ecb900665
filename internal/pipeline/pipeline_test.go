package pipeline

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/hanpama/graphtensor/internal/tensor"
)

var specs = []tensor.Spec{
	{DType: tensor.Int64, Shape: tensor.Shape{tensor.Unknown}},
	{DType: tensor.Float32, Shape: tensor.Shape{tensor.Unknown, 2}},
}

func countdown(n int, tuple func() []tensor.Tensor) (Generator, *int) {
	calls := 0
	return GeneratorFunc(func(ctx context.Context) ([]tensor.Tensor, error) {
		calls++
		if n == 0 {
			return nil, io.EOF
		}
		n--
		return tuple(), nil
	}), &calls
}

func good() []tensor.Tensor {
	return []tensor.Tensor{
		tensor.FromInt64([]int64{1, 2}),
		tensor.FromFloat32([]float32{1, 2, 3, 4}, 2, 2),
	}
}

func TestIteratorExhaustion(t *testing.T) {
	ctx := context.Background()
	gen, calls := countdown(3, good)
	it := FromGenerator(specs, gen)

	if _, err := it.Next(ctx); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("want ErrNotInitialized, got %v", err)
	}
	if err := it.Initialize(ctx); err != nil {
		t.Fatal(err)
	}
	n := 0
	for {
		_, err := it.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		n++
	}
	if n != 3 {
		t.Fatalf("pulled %d tuples, want 3", n)
	}
	if _, err := it.Next(ctx); !errors.Is(err, io.EOF) {
		t.Fatalf("want sticky io.EOF, got %v", err)
	}
	if *calls != 4 {
		t.Fatalf("generator called %d times after exhaustion, want 4", *calls)
	}
}

func TestIteratorSchemaMismatch(t *testing.T) {
	ctx := context.Background()
	cases := map[string]func() []tensor.Tensor{
		"arity": func() []tensor.Tensor { return good()[:1] },
		"dtype": func() []tensor.Tensor {
			return []tensor.Tensor{tensor.FromInt32([]int32{1}), good()[1]}
		},
		"bound dim": func() []tensor.Tensor {
			return []tensor.Tensor{good()[0], tensor.FromFloat32([]float32{1, 2, 3}, 1, 3)}
		},
	}
	for name, tuple := range cases {
		t.Run(name, func(t *testing.T) {
			gen, _ := countdown(1, tuple)
			it := FromGenerator(specs, gen)
			if err := it.Initialize(ctx); err != nil {
				t.Fatal(err)
			}
			if _, err := it.Next(ctx); !errors.Is(err, ErrSchemaMismatch) {
				t.Fatalf("want ErrSchemaMismatch, got %v", err)
			}
		})
	}
}
