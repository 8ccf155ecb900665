// Package egograph holds a centric entity batch with its sampled multi-hop
// neighborhood.
package egograph

import (
	"fmt"

	"github.com/hanpama/graphtensor/internal/data"
	"github.com/hanpama/graphtensor/internal/graphschema"
)

// Schema names the type and attribute layout of one entity role.
type Schema struct {
	Type string
	Spec graphschema.FeatureSpec
}

// EgoGraph is a batch of centric entities and their neighborhoods.
//
// Nbrs[i] holds the neighbor nodes of node hop i, flattened to
// rows = previous rows * NbrNums[i]. Edges holds the data of edge hops in
// traversal order. NodeSchema describes Src followed by every Nbrs entry;
// EdgeSchema describes every Edges entry.
type EgoGraph struct {
	Src        *data.Data
	Nbrs       []*data.Data
	NbrNums    []int
	Edges      []*data.Data
	NodeSchema []Schema
	EdgeSchema []Schema
}

// New checks that schemas and hop counts line up with the data and returns
// the ego graph.
func New(src *data.Data, nbrs []*data.Data, nodeSchema []Schema, nbrNums []int, edges []*data.Data, edgeSchema []Schema) (*EgoGraph, error) {
	if len(nodeSchema) != len(nbrs)+1 {
		return nil, fmt.Errorf("egograph: %d node schemas for %d node roles", len(nodeSchema), len(nbrs)+1)
	}
	if len(nbrNums) != len(nbrs) {
		return nil, fmt.Errorf("egograph: %d neighbor counts for %d hops", len(nbrNums), len(nbrs))
	}
	if len(edgeSchema) != len(edges) {
		return nil, fmt.Errorf("egograph: %d edge schemas for %d edge roles", len(edgeSchema), len(edges))
	}
	return &EgoGraph{
		Src:        src,
		Nbrs:       nbrs,
		NbrNums:    nbrNums,
		Edges:      edges,
		NodeSchema: nodeSchema,
		EdgeSchema: edgeSchema,
	}, nil
}

// Hops returns the number of node hops.
func (g *EgoGraph) Hops() int { return len(g.Nbrs) }

// Nodes returns the centric data followed by every neighbor hop.
func (g *EgoGraph) Nodes() []*data.Data {
	return append([]*data.Data{g.Src}, g.Nbrs...)
}
