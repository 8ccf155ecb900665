package data

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/hanpama/graphtensor/internal/graphschema"
	"github.com/hanpama/graphtensor/internal/mask"
	"github.com/hanpama/graphtensor/internal/tensor"
)

func sample() *Data {
	return &Data{
		IntAttrs:   tensor.FromInt64([]int64{1, 2, 3, 4, 5, 6}, 3, 2),
		FloatAttrs: tensor.FromFloat32([]float32{0.1, 0.2, 0.3}, 3, 1),
		Labels:     tensor.FromInt32([]int32{0, 1, 0}),
		IDs:        tensor.FromInt64([]int64{10, 11, 12}),
	}
}

func TestFlattenFollowsMaskOrder(t *testing.T) {
	dec := graphschema.NewCountDecoder(2, 1, 0, true, false)
	m := mask.Resolve(dec, false, false)
	d := sample()

	flat, err := d.Flatten(m)
	if err != nil {
		t.Fatalf("flatten: %v", err)
	}
	specs := mask.Specs(dec, m)
	if len(flat) != len(specs) {
		t.Fatalf("flattened %d tensors, declared %d", len(flat), len(specs))
	}
	for i := range flat {
		if !specs[i].Accepts(flat[i]) {
			t.Fatalf("position %d: %s does not satisfy %s", i, flat[i], specs[i])
		}
	}

	back, rest, err := FromFlat(m, append(flat, tensor.FromInt64([]int64{99})))
	if err != nil {
		t.Fatalf("from flat: %v", err)
	}
	if len(rest) != 1 {
		t.Fatalf("expected one leftover tensor, got %d", len(rest))
	}
	if diff := cmp.Diff(d.IDs.Int64s(), back.IDs.Int64s()); diff != "" {
		t.Fatalf("ids (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(d.Labels.Int32s(), back.Labels.Int32s()); diff != "" {
		t.Fatalf("labels (-want +got):\n%s", diff)
	}
}

func TestFlattenMissingField(t *testing.T) {
	m := mask.Resolve(nil, true, false)
	_, err := sample().Flatten(m)
	if !errors.Is(err, ErrMissingField) {
		t.Fatalf("want ErrMissingField, got %v", err)
	}
}

func TestSliceAndConcat(t *testing.T) {
	d := sample()
	a, err := d.SliceRows(0, 1)
	if err != nil {
		t.Fatal(err)
	}
	b, err := d.SliceRows(1, 3)
	if err != nil {
		t.Fatal(err)
	}
	if a.Len() != 1 || b.Len() != 2 {
		t.Fatalf("slice lengths %d %d", a.Len(), b.Len())
	}
	c, err := Concat(a, b)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(d.IntAttrs.Int64s(), c.IntAttrs.Int64s()); diff != "" {
		t.Fatalf("int attrs (-want +got):\n%s", diff)
	}
	if got := c.IntAttrs.Shape(); !got.Equal(tensor.Shape{3, 2}) {
		t.Fatalf("shape %s", got)
	}

	g := d.GatherRows([]int{2, 0})
	if diff := cmp.Diff([]int64{12, 10}, g.IDs.Int64s()); diff != "" {
		t.Fatalf("gather (-want +got):\n%s", diff)
	}
}

func TestConcatRagged(t *testing.T) {
	withLabels := &Data{Labels: tensor.FromInt32([]int32{1}), IDs: tensor.FromInt64([]int64{1})}
	bare := &Data{IDs: tensor.FromInt64([]int64{2})}
	if _, err := Concat(withLabels, bare); !errors.Is(err, ErrRagged) {
		t.Fatalf("missing field: want ErrRagged, got %v", err)
	}

	short := &Data{Labels: tensor.FromInt32([]int32{1}), IDs: tensor.FromInt64([]int64{3, 4})}
	if _, err := Concat(withLabels, short); !errors.Is(err, ErrRagged) {
		t.Fatalf("row count: want ErrRagged, got %v", err)
	}

	// Inputs without entities do not constrain the others.
	c, err := Concat(withLabels, &Data{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int32{1}, c.Labels.Int32s()); diff != "" {
		t.Fatalf("labels (-want +got):\n%s", diff)
	}
}

func TestSliceSparseFails(t *testing.T) {
	d := sample()
	d.Offsets = tensor.FromInt64([]int64{1, 1, 1})
	if _, err := d.SliceRows(0, 1); err == nil {
		t.Fatalf("expected error slicing sparse data")
	}
}
