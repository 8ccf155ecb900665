package grpctp

import "errors"

var (
	// ErrNoProvider is returned when no EndpointProvider was configured.
	ErrNoProvider = errors.New("grpctp: provider not configured")
	// ErrNoEndpoints indicates the provider returned no endpoints for a service.
	ErrNoEndpoints = errors.New("grpctp: no endpoints available")
	// ErrClosed is returned by a closed transport or connection pool.
	ErrClosed = errors.New("grpctp: closed")
)
