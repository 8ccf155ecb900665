package reqid

import (
	"context"
	"math"
	"math/rand/v2"
)

// key is the context key for the request ID.
type key struct{}

// NewContext returns a copy of parent carrying a new positive random
// request ID, and the ID.
func NewContext(parent context.Context) (context.Context, int64) {
	id := rand.Int64N(math.MaxInt64) + 1
	return context.WithValue(parent, key{}, id), id
}

// Ensure returns ctx unchanged when it already carries an ID, and a child
// with a new ID otherwise.
func Ensure(ctx context.Context) (context.Context, int64) {
	if id, ok := FromContext(ctx); ok {
		return ctx, id
	}
	return NewContext(ctx)
}

// FromContext extracts the request ID from ctx.
// It returns the ID and whether it was present.
func FromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(key{}).(int64)
	return id, ok
}
