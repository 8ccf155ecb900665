package dataset

import (
	"fmt"

	"github.com/hanpama/graphtensor/internal/data"
	"github.com/hanpama/graphtensor/internal/egograph"
	"github.com/hanpama/graphtensor/internal/query"
)

// EgoGraph rebuilds the neighborhood of source.
//
// With neighbors, each alias must be a positive or negative downstream of
// the one before it (source for the first). Without neighbors the positive
// downstream chain of source is followed, and every step on it must have at
// most one positive downstream.
//
// An explicit hop is an edge hop when its predecessor is an edge step; an
// automatic hop is an edge hop when it is an edge step itself. Node hops
// record the last dimension of their alias shape as neighbor count.
func (e *Element) EgoGraph(source string, neighbors ...string) (*egograph.EgoGraph, error) {
	done := e.observe("egograph", source)
	g, err := e.egoGraph(source, neighbors)
	done(err)
	return g, err
}

// EgoGraphFrom is EgoGraph for dynamically typed callers. neighbors must be
// nil, a []string or a []any holding strings.
func (e *Element) EgoGraphFrom(source string, neighbors any) (*egograph.EgoGraph, error) {
	switch v := neighbors.(type) {
	case nil:
		return e.EgoGraph(source)
	case []string:
		return e.EgoGraph(source, v...)
	case []any:
		list := make([]string, len(v))
		for i, a := range v {
			s, ok := a.(string)
			if !ok {
				return nil, fmt.Errorf("%w: neighbor %d is %T, want alias string", ErrInvalidArgument, i, a)
			}
			list[i] = s
		}
		return e.EgoGraph(source, list...)
	}
	return nil, fmt.Errorf("%w: neighbors should be a list of aliases, got %T", ErrInvalidArgument, neighbors)
}

func (e *Element) lookup(alias string) (*query.Node, error) {
	n, ok := e.ds.q.Node(alias)
	if !ok {
		return nil, fmt.Errorf("%w: unknown alias %q", ErrInvalidArgument, alias)
	}
	return n, nil
}

func (e *Element) egoGraph(source string, neighbors []string) (*egograph.EgoGraph, error) {
	dict, err := e.dataDict()
	if err != nil {
		return nil, err
	}
	src, err := e.lookup(source)
	if err != nil {
		return nil, err
	}

	var nbrNodes, nbrEdges []*query.Node
	var nbrNums []int
	visit := func(cur *query.Node, edgeHop bool) {
		if edgeHop {
			nbrEdges = append(nbrEdges, cur)
		} else {
			nbrNodes = append(nbrNodes, cur)
			nbrNums = append(nbrNums, cur.NumNeighbors())
		}
	}

	pre := src
	if len(neighbors) > 0 {
		for _, alias := range neighbors {
			cur, err := e.lookup(alias)
			if err != nil {
				return nil, err
			}
			if !pre.IsDownstream(cur) {
				return nil, fmt.Errorf("%w: %q is not a downstream of %q", ErrInvalidArgument, cur.Alias(), pre.Alias())
			}
			visit(cur, pre.IsEdge())
			pre = cur
		}
	} else {
		for recepts := src.PosDownstreams(); len(recepts) > 0; {
			if len(recepts) > 1 {
				return nil, fmt.Errorf("%w: %q has %d positive downstreams; list the neighbors of %q explicitly",
					ErrInvalidArgument, pre.Alias(), len(recepts), source)
			}
			cur := recepts[0]
			visit(cur, cur.IsEdge())
			pre = cur
			recepts = cur.PosDownstreams()
		}
	}

	get := func(n *query.Node) (*data.Data, error) {
		d, ok := dict[n.Alias()]
		if !ok {
			return nil, fmt.Errorf("%w: alias %q has no data in this tuple", ErrInvalidArgument, n.Alias())
		}
		return d, nil
	}
	schemaOf := func(n *query.Node) egograph.Schema {
		return egograph.Schema{Type: n.Type(), Spec: n.Decoder().FeatureSpec()}
	}

	srcData, err := get(src)
	if err != nil {
		return nil, err
	}
	nodeSchema := []egograph.Schema{schemaOf(src)}
	nbrData := make([]*data.Data, len(nbrNodes))
	for i, n := range nbrNodes {
		if nbrData[i], err = get(n); err != nil {
			return nil, err
		}
		nodeSchema = append(nodeSchema, schemaOf(n))
	}
	edgeData := make([]*data.Data, len(nbrEdges))
	edgeSchema := make([]egograph.Schema, len(nbrEdges))
	for i, n := range nbrEdges {
		if edgeData[i], err = get(n); err != nil {
			return nil, err
		}
		edgeSchema[i] = schemaOf(n)
	}
	return egograph.New(srcData, nbrData, nodeSchema, nbrNums, edgeData, edgeSchema)
}
