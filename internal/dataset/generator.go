package dataset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/hanpama/graphtensor/internal/batchgraph"
	"github.com/hanpama/graphtensor/internal/data"
	"github.com/hanpama/graphtensor/internal/eventbus"
	"github.com/hanpama/graphtensor/internal/events"
	"github.com/hanpama/graphtensor/internal/reqid"
	"github.com/hanpama/graphtensor/internal/subgraph"
	"github.com/hanpama/graphtensor/internal/tensor"
)

// Generator pulls one unit from the source per Next and flattens it in
// declaration order. Once the source reports io.EOF, every later Next
// returns io.EOF without calling the source. Not safe for concurrent use.
type Generator struct {
	ds   *Dataset
	done bool
}

func (g *Generator) Next(ctx context.Context) ([]tensor.Tensor, error) {
	if g.done {
		return nil, io.EOF
	}
	mode := g.ds.mode.String()
	if eventbus.Active[events.PullStart]() {
		// Pulls made outside a request still get an id.
		ctx, _ = reqid.Ensure(ctx)
	}
	eventbus.Publish(ctx, events.PullStart{Mode: mode})
	start := time.Now()

	var (
		values []tensor.Tensor
		err    error
	)
	if g.ds.mode == Batch {
		values, err = g.nextBatch(ctx)
	} else {
		values, err = g.nextRaw(ctx)
	}
	eof := errors.Is(err, io.EOF)
	if eof {
		g.done = true
		g.ds.log.Debug("source exhausted", slog.String("mode", mode))
	}
	eventbus.Publish(ctx, events.PullFinish{
		Mode:     mode,
		Tensors:  len(values),
		EOF:      eof,
		Err:      err,
		Duration: time.Since(start),
	})
	if err != nil {
		return nil, err
	}
	return values, nil
}

func (g *Generator) nextRaw(ctx context.Context) ([]tensor.Tensor, error) {
	unit, err := g.ds.src.Next(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]tensor.Tensor, 0, len(g.ds.specs))
	for _, am := range g.ds.raw {
		d, ok := unit[am.alias]
		if !ok || d == nil {
			return nil, fmt.Errorf("dataset: source returned no data for alias %q", am.alias)
		}
		if out, err = d.AppendFlat(out, am.mask); err != nil {
			return nil, fmt.Errorf("dataset: alias %q: %w", am.alias, err)
		}
	}
	return out, nil
}

func (g *Generator) nextBatch(ctx context.Context) ([]tensor.Tensor, error) {
	pos, neg, err := g.ds.src.Subgraphs(ctx, g.ds.opts.Inducer)
	if errors.Is(err, data.ErrRagged) {
		return nil, fmt.Errorf("%w: inducer mixes roles with different fields: %w", ErrConfig, err)
	}
	if err != nil {
		return nil, err
	}
	out, err := g.flattenBlock(pos)
	if err != nil {
		return nil, fmt.Errorf("dataset: positive batch: %w", err)
	}
	if !g.ds.hasNeg {
		if neg != nil {
			g.ds.log.Debug("dropping negative subgraphs of a query without neg_dst")
		}
		return out, nil
	}
	if neg == nil {
		return nil, fmt.Errorf("%w: query declares negative samples but the source returned none", ErrConfig)
	}
	negOut, err := g.flattenBlock(neg)
	if err != nil {
		return nil, fmt.Errorf("dataset: negative batch: %w", err)
	}
	return append(out, negOut...), nil
}

// flattenBlock batches one block of subgraphs and flattens it with the
// dataset layout. Layout violations are configuration errors.
func (g *Generator) flattenBlock(gs []subgraph.Induced) ([]tensor.Tensor, error) {
	bg, err := batchgraph.Build(gs, g.ds.additionalNames())
	if err != nil {
		return nil, err
	}
	out, err := bg.Flatten(g.ds.layout)
	if errors.Is(err, batchgraph.ErrUnknownType) || errors.Is(err, batchgraph.ErrLayout) {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	return out, err
}
