package dataset

import (
	"context"

	"github.com/hanpama/graphtensor/internal/data"
	"github.com/hanpama/graphtensor/internal/graphschema"
	"github.com/hanpama/graphtensor/internal/query"
	"github.com/hanpama/graphtensor/internal/subgraph"
)

// Query describes the traversal whose results a Dataset converts. It is
// implemented by *query.DAG.
//
// Contract
//   - Node resolves an alias to its step: type, decoder, edge/vertex kind,
//     sparse flag, shape and positive/negative downstreams.
//   - Aliases, NodeTypes and EdgeTypes return stable orders. The Dataset
//     never reorders them; declaration and generation both follow them.
//   - NodeDecoder returns the decoder of a vertex type, or nil when the
//     type has no attributes.
//   - A Query must not change after it is handed to New.
type Query interface {
	Node(alias string) (*query.Node, bool)
	Aliases() []string
	NodeTypes() []string
	EdgeTypes() []string
	NodeDecoder(nodeType string) *graphschema.Decoder
}

// Source produces raw traversal results, one unit per pull.
//
// General contract
//   - Aliases enumerates the aliases Next returns data for. Its order fixes
//     the raw tuple order and must not change between calls.
//   - Next returns one unit: a Data bundle per alias. Every field selected by
//     the alias mask must be set. Fields outside the mask are ignored.
//   - Subgraphs pulls one unit and induces one subgraph per sample with in.
//     neg is nil when the query draws no negative samples.
//   - Both Next and Subgraphs return io.EOF once the source is exhausted.
//     The Dataset never calls a source again after io.EOF.
//
// Blocking and cancellation
//   - Calls may block on I/O or sampling. Implementations should respect ctx.
//   - The Dataset issues at most one call at a time.
type Source interface {
	Aliases() []string
	Next(ctx context.Context) (map[string]*data.Data, error)
	Subgraphs(ctx context.Context, in subgraph.Inducer) (pos, neg []subgraph.Induced, err error)
}
