package dataset

import (
	"fmt"

	"github.com/hanpama/graphtensor/internal/batchgraph"
	"github.com/hanpama/graphtensor/internal/graphschema"
	"github.com/hanpama/graphtensor/internal/mask"
	"github.com/hanpama/graphtensor/internal/query"
	"github.com/hanpama/graphtensor/internal/tensor"
)

type aliasMask struct {
	alias string
	node  *query.Node
	mask  mask.FieldMask
}

// declareRaw walks the source aliases and caches one mask per alias. The
// generator and DataDict reuse the cached masks in the same order.
func (ds *Dataset) declareRaw() error {
	for _, alias := range ds.src.Aliases() {
		node, ok := ds.q.Node(alias)
		if !ok {
			return fmt.Errorf("%w: source alias %q is not in the query", ErrConfig, alias)
		}
		m := mask.Resolve(node.Decoder(), node.IsEdge(), node.Sparse())
		ds.raw = append(ds.raw, aliasMask{alias: alias, node: node, mask: m})
		ds.specs = append(ds.specs, mask.Specs(node.Decoder(), m)...)
	}
	return nil
}

// declareBatch builds the batch layout from edge types, the query's node
// types and the additional fields.
func (ds *Dataset) declareBatch() error {
	ds.edgeTypes = ds.opts.EdgeTypes
	if ds.edgeTypes == nil {
		ds.edgeTypes = ds.q.EdgeTypes()
	}
	var nodeTypes []graphschema.NodeType
	for _, nt := range ds.q.NodeTypes() {
		nodeTypes = append(nodeTypes, graphschema.NodeType{Name: nt, Decoder: ds.q.NodeDecoder(nt)})
	}
	layout, err := batchgraph.NewLayout(ds.edgeTypes, nodeTypes, ds.opts.Additional)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConfig, err)
	}
	if !layout.Heterogeneous() {
		if len(ds.edgeTypes) == 0 {
			return fmt.Errorf("%w: batch mode needs an edge type; the query has no explicit edge step, use WithEdgeTypes", ErrConfig)
		}
		if len(nodeTypes) == 0 {
			return fmt.Errorf("%w: batch mode needs a node type", ErrConfig)
		}
	}
	ds.layout = layout
	_, ds.hasNeg = ds.q.Node(query.NegDst)

	block := layout.Specs()
	ds.posSize = len(block)
	ds.specs = append([]tensor.Spec(nil), block...)
	if ds.hasNeg {
		ds.specs = append(ds.specs, block...)
	}
	return nil
}

func (ds *Dataset) additionalNames() []string {
	fields := ds.layout.Additional()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	return names
}
