package graphschema

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const testSDL = `
type Buy @edge(src: "User", dst: "Item") {
  weight: Float @weight
}

type User @node {
  age: Int
  score: Float
  city: String
  class: Int @label
}

type Item @node {
  price: Float
  brand: String
  tag: String
}

type Ignored {
  x: Int
}
`

func TestParseSDL(t *testing.T) {
	s, err := ParseSDL("test.graphql", testSDL)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if diff := cmp.Diff([]string{"User", "Item"}, s.NodeTypes()); diff != "" {
		t.Fatalf("node types (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Buy"}, s.EdgeTypes()); diff != "" {
		t.Fatalf("edge types (-want +got):\n%s", diff)
	}

	user := s.NodeDecoder("User")
	if user.IntAttrNum() != 1 || user.FloatAttrNum() != 1 || user.StringAttrNum() != 1 {
		t.Fatalf("user counts: %d %d %d", user.IntAttrNum(), user.FloatAttrNum(), user.StringAttrNum())
	}
	if !user.Labeled() || user.Weighted() {
		t.Fatalf("user labeled=%v weighted=%v", user.Labeled(), user.Weighted())
	}

	wantItem := FeatureSpec{Float: []string{"price"}, String: []string{"brand", "tag"}}
	if diff := cmp.Diff(wantItem, s.NodeDecoder("Item").FeatureSpec()); diff != "" {
		t.Fatalf("item feature spec (-want +got):\n%s", diff)
	}

	buy, ok := s.Edge("Buy")
	if !ok {
		t.Fatalf("missing edge Buy")
	}
	if buy.Src != "User" || buy.Dst != "Item" || !buy.Decoder.Weighted() || buy.Decoder.FeatureSpec().Dim() != 0 {
		t.Fatalf("unexpected edge: %+v", buy)
	}
}

func TestParseSDLErrors(t *testing.T) {
	cases := map[string]string{
		"unknown endpoint": `type E @edge(src: "A", dst: "B") { w: Float @weight }`,
		"bad label type":   `type A @node { c: String @label }`,
		"bad attr type":    `type A @node { c: Boolean }`,
		"list attr":        `type A @node { c: [Int] }`,
		"missing dst":      `type A @node { x: Int } type E @edge(src: "A") { x: Int }`,
		"syntax":           `type A @node {`,
	}
	for name, sdl := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseSDL(name, sdl); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestDuplicateType(t *testing.T) {
	s := New()
	if err := s.AddNode("A", nil); err != nil {
		t.Fatal(err)
	}
	if err := s.AddNode("A", nil); !errors.Is(err, ErrDuplicateType) {
		t.Fatalf("want ErrDuplicateType, got %v", err)
	}
}

func TestNilDecoderIsEmpty(t *testing.T) {
	var d *Decoder
	if d.IntAttrNum() != 0 || d.Labeled() || d.FeatureSpec().Dim() != 0 {
		t.Fatalf("nil decoder should describe no fields")
	}
}
