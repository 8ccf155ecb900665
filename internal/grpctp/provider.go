package grpctp

import (
	"context"
	"sync"
)

// EndpointProvider returns reachable endpoints (host:port) serving a fully
// qualified gRPC service name (e.g. "graphtensor.TupleService").
// Implementations must be safe for concurrent use.
type EndpointProvider interface {
	Endpoints(ctx context.Context, service string) ([]string, error)
}

// StaticEndpoints is a provider backed by an in-memory map from service
// name to endpoints.
type StaticEndpoints struct {
	mu   sync.RWMutex
	data map[string][]string
}

func NewStaticEndpoints(m map[string][]string) *StaticEndpoints {
	cp := make(map[string][]string, len(m))
	for k, v := range m {
		cp[k] = append([]string(nil), v...)
	}
	return &StaticEndpoints{data: cp}
}

func (s *StaticEndpoints) Endpoints(ctx context.Context, service string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	arr := s.data[service]
	if len(arr) == 0 {
		return nil, ErrNoEndpoints
	}
	return append([]string(nil), arr...), nil
}

// AnyService serves the same endpoints for every service name.
type AnyService []string

func (a AnyService) Endpoints(ctx context.Context, service string) ([]string, error) {
	if len(a) == 0 {
		return nil, ErrNoEndpoints
	}
	return append([]string(nil), a...), nil
}
