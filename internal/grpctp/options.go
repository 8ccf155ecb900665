package grpctp

import (
	"time"

	"google.golang.org/grpc"
)

// Options configures the tuple client.
//
// Defaults:
// - MaxConnsPerEndpoint: 2
// - DialTimeout:         3s (used only if the context has no deadline)
// - Window:              1 (tuples requested per Pull call; 0 streams until exhausted)
// - DialOptions:         insecure credentials
//
// Provider must be set (use StaticEndpoints or a custom implementation).
type Options struct {
	Provider EndpointProvider

	MaxConnsPerEndpoint int
	DialTimeout         time.Duration
	Window              int

	DialOptions []grpc.DialOption
}

// Option mutates Options
//
// Use WithX helpers below.
type Option func(*Options)

func defaultOptions() *Options {
	return &Options{
		MaxConnsPerEndpoint: 2,
		DialTimeout:         3 * time.Second,
		Window:              1,
	}
}

func WithProvider(p EndpointProvider) Option { return func(o *Options) { o.Provider = p } }
func WithMaxConnsPerEndpoint(n int) Option   { return func(o *Options) { o.MaxConnsPerEndpoint = n } }
func WithDialTimeout(d time.Duration) Option { return func(o *Options) { o.DialTimeout = d } }
func WithWindow(n int) Option                { return func(o *Options) { o.Window = n } }
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(o *Options) { o.DialOptions = opts }
}
