package dataset

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hanpama/graphtensor/internal/batchgraph"
	"github.com/hanpama/graphtensor/internal/data"
	"github.com/hanpama/graphtensor/internal/eventbus"
	"github.com/hanpama/graphtensor/internal/events"
	"github.com/hanpama/graphtensor/internal/query"
	"github.com/hanpama/graphtensor/internal/tensor"
)

// Element is one pulled tuple. Reconstructions build fresh values on every
// call and never retain them.
type Element struct {
	ds     *Dataset
	values []tensor.Tensor
	ctx    context.Context
}

// WithContext returns a copy of e whose reconstruction events carry ctx.
func (e *Element) WithContext(ctx context.Context) *Element {
	c := *e
	c.ctx = ctx
	return &c
}

// Values returns the flat tuple.
func (e *Element) Values() []tensor.Tensor { return append([]tensor.Tensor(nil), e.values...) }

func (e *Element) observe(kind, alias string) func(error) {
	ctx := e.ctx
	eventbus.Publish(ctx, events.ReconstructStart{Kind: kind, Alias: alias})
	start := time.Now()
	return func(err error) {
		if err != nil {
			e.ds.log.Debug("reconstruction failed",
				slog.String("kind", kind), slog.String("alias", alias), slog.Any("err", err))
		}
		eventbus.Publish(ctx, events.ReconstructFinish{Kind: kind, Alias: alias, Err: err, Duration: time.Since(start)})
	}
}

// DataDict rebuilds one Data bundle per source alias. It is only available
// in raw mode.
func (e *Element) DataDict() (map[string]*data.Data, error) {
	done := e.observe("datadict", "")
	out, err := e.dataDict()
	done(err)
	return out, err
}

func (e *Element) dataDict() (map[string]*data.Data, error) {
	if e.ds.mode != Raw {
		return nil, fmt.Errorf("%w: data dict requires raw mode", ErrInvalidArgument)
	}
	out := make(map[string]*data.Data, len(e.ds.raw))
	rest := e.values
	for _, am := range e.ds.raw {
		var (
			d   *data.Data
			err error
		)
		d, rest, err = data.FromFlat(am.mask, rest)
		if err != nil {
			return nil, fmt.Errorf("dataset: alias %q: %w", am.alias, err)
		}
		out[am.alias] = d
	}
	return out, nil
}

// BatchGraph returns the batch graph for a role alias. query.PosSrc and
// query.PosDst both return the positive batch. query.NegDst returns the
// negative batch, or nil when the query draws no negative samples. Any
// other alias fails with ErrInvalidArgument.
func (e *Element) BatchGraph(alias string) (batchgraph.Graph, error) {
	done := e.observe("batchgraph", alias)
	g, err := e.batchGraph(alias)
	done(err)
	return g, err
}

func (e *Element) batchGraph(alias string) (batchgraph.Graph, error) {
	if e.ds.mode != Batch {
		return nil, fmt.Errorf("%w: batch graph requires an inducer", ErrInvalidArgument)
	}
	var block []tensor.Tensor
	switch alias {
	case query.PosSrc, query.PosDst:
		block = e.values[:e.ds.posSize]
	case query.NegDst:
		if !e.ds.hasNeg {
			return nil, nil
		}
		block = e.values[e.ds.posSize:]
	default:
		return nil, fmt.Errorf("%w: alias must be one of %q, %q, %q, got %q",
			ErrInvalidArgument, query.PosSrc, query.PosDst, query.NegDst, alias)
	}
	return batchgraph.Decode(e.ds.layout, block)
}
