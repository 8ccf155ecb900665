package query

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/hanpama/graphtensor/internal/graphschema"
)

// Step is the JSON form of one query step.
//
//	{"alias": "pos_src", "op": "V", "type": "User", "batch": 64}
//	{"alias": "hop1", "from": "pos_src", "op": "outV", "edge": "Buy", "count": 10}
type Step struct {
	Alias  string `json:"alias"`
	From   string `json:"from,omitempty"`
	Op     string `json:"op"`
	Type   string `json:"type,omitempty"`
	Edge   string `json:"edge,omitempty"`
	Batch  int    `json:"batch,omitempty"`
	Count  int    `json:"count,omitempty"`
	Sparse bool   `json:"sparse,omitempty"`
}

// Spec is the JSON form of a query: steps in insertion order.
type Spec struct {
	Steps []Step `json:"steps"`
}

// LoadOption rewrites a decoded Spec before it is built.
type LoadOption func(*Spec)

// WithBatch overrides the batch size of every root step. n <= 0 keeps the
// sizes from the file.
func WithBatch(n int) LoadOption {
	return func(spec *Spec) {
		if n <= 0 {
			return
		}
		for i, s := range spec.Steps {
			if s.Op == "V" || s.Op == "E" {
				spec.Steps[i].Batch = n
			}
		}
	}
}

// LoadFile reads a JSON query spec and builds it against g.
func LoadFile(path string, g *graphschema.Schema, opts ...LoadOption) (*DAG, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var spec Spec
	if err := json.Unmarshal(b, &spec); err != nil {
		return nil, fmt.Errorf("query: decode %s: %w", path, err)
	}
	for _, o := range opts {
		o(&spec)
	}
	return Build(spec, g)
}

// Build constructs a DAG from spec. Every non-root step must reference an
// alias declared earlier.
func Build(spec Spec, g *graphschema.Schema) (*DAG, error) {
	q := NewDAG(g)
	for i, s := range spec.Steps {
		var opts []StepOption
		if s.Sparse {
			opts = append(opts, Sparse())
		}
		switch s.Op {
		case "V":
			q.V(s.Alias, s.Type, s.Batch)
			continue
		case "E":
			q.E(s.Alias, s.Type, s.Batch)
			continue
		}
		from, ok := q.Node(s.From)
		if !ok {
			return nil, fmt.Errorf("query: step %d (%s): unknown upstream %q", i, s.Alias, s.From)
		}
		switch s.Op {
		case "outV":
			from.OutV(s.Alias, s.Edge, s.Count, opts...)
		case "inV":
			from.InV(s.Alias, s.Edge, s.Count, opts...)
		case "outE":
			from.OutE(s.Alias, s.Edge, s.Count, opts...)
		case "inE":
			from.InE(s.Alias, s.Edge, s.Count, opts...)
		case "outNeg":
			from.OutNeg(s.Alias, s.Edge, s.Count)
		case "inNeg":
			from.InNeg(s.Alias, s.Edge, s.Count)
		case "srcV":
			from.SrcV(s.Alias)
		case "dstV":
			from.DstV(s.Alias)
		default:
			return nil, fmt.Errorf("query: step %d (%s): unknown op %q", i, s.Alias, s.Op)
		}
	}
	if err := q.Err(); err != nil {
		return nil, err
	}
	return q, nil
}
