package query

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "q.json")
	src := `{"steps": [
		{"alias": "pos_src", "op": "V", "type": "User", "batch": 8},
		{"alias": "likes", "from": "pos_src", "op": "outE", "edge": "Like", "count": 3},
		{"alias": "liked", "from": "likes", "op": "dstV"},
		{"alias": "items", "from": "pos_src", "op": "outV", "edge": "Buy", "count": 5, "sparse": true},
		{"alias": "neg_dst", "from": "pos_src", "op": "outNeg", "edge": "Buy", "count": 2}
	]}`
	if err := os.WriteFile(path, []byte(src), 0644); err != nil {
		t.Fatal(err)
	}
	q, err := LoadFile(path, testGraph(t))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if diff := cmp.Diff([]string{PosSrc, "likes", "liked", "items", NegDst}, q.Aliases()); diff != "" {
		t.Fatalf("aliases (-want +got):\n%s", diff)
	}
	items, _ := q.Node("items")
	if !items.Sparse() || items.Type() != "Item" {
		t.Fatalf("items: sparse=%v type=%s", items.Sparse(), items.Type())
	}
	likes, _ := q.Node("likes")
	if !likes.IsEdge() {
		t.Fatalf("likes should be an edge step")
	}
}

func TestLoadFileWithBatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "q.json")
	src := `{"steps": [
		{"alias": "pos_src", "op": "V", "type": "User", "batch": 8},
		{"alias": "liked", "from": "pos_src", "op": "outV", "edge": "Like", "count": 3}
	]}`
	if err := os.WriteFile(path, []byte(src), 0644); err != nil {
		t.Fatal(err)
	}
	for _, tc := range []struct {
		batch int
		want  []int
	}{
		{batch: 0, want: []int{8, 8, 3}},
		{batch: 2, want: []int{2, 2, 3}},
	} {
		q, err := LoadFile(path, testGraph(t), WithBatch(tc.batch))
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		var got []int
		for _, alias := range []string{PosSrc, "liked"} {
			n, _ := q.Node(alias)
			got = append(got, n.Shape()...)
		}
		if diff := cmp.Diff(tc.want, got); diff != "" {
			t.Fatalf("batch %d shapes (-want +got):\n%s", tc.batch, diff)
		}
	}
}

func TestBuildErrors(t *testing.T) {
	g := testGraph(t)
	for name, spec := range map[string]Spec{
		"unknown upstream": {Steps: []Step{{Alias: "a", From: "nope", Op: "outV", Edge: "Like", Count: 1}}},
		"unknown op":       {Steps: []Step{{Alias: PosSrc, Op: "V", Type: "User", Batch: 1}, {Alias: "a", From: PosSrc, Op: "sideways"}}},
	} {
		if _, err := Build(spec, g); err == nil {
			t.Fatalf("%s: expected error", name)
		} else if !strings.HasPrefix(err.Error(), "query:") {
			t.Fatalf("%s: unexpected error %v", name, err)
		}
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.json"), g); err == nil {
		t.Fatalf("expected error for a missing file")
	}
}
