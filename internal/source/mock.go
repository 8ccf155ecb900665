package source

import (
	"context"
	"io"
	"sync"

	"github.com/hanpama/graphtensor/internal/data"
	"github.com/hanpama/graphtensor/internal/subgraph"
)

// Call kinds recorded by MockSource.
const (
	CallNext      = "next"
	CallSubgraphs = "subgraphs"
)

// Call records one pull made against a MockSource.
type Call struct {
	Kind  string
	Arity int // inducer arity, for CallSubgraphs
	EOF   bool
}

// MockBatch is one scripted Subgraphs result.
type MockBatch struct {
	Pos []subgraph.Induced
	Neg []subgraph.Induced
	Err error
}

// MockSource implements dataset.Source from scripted units and batches and
// records every pull. It reports io.EOF once its script runs out.
type MockSource struct {
	mu      sync.Mutex
	aliases []string
	units   []map[string]*data.Data
	batches []MockBatch
	calls   []Call
	window  int
}

// NewMockSource returns a source yielding units in order from Next.
func NewMockSource(aliases []string, units ...map[string]*data.Data) *MockSource {
	return &MockSource{aliases: append([]string(nil), aliases...), units: units}
}

// WithBatches scripts the results of Subgraphs.
func (m *MockSource) WithBatches(batches ...MockBatch) *MockSource {
	m.mu.Lock()
	m.batches = append(m.batches, batches...)
	m.mu.Unlock()
	return m
}

// Open records the window a dataset opens the source with and returns m.
func (m *MockSource) Open(window int) (*MockSource, error) {
	m.mu.Lock()
	m.window = window
	m.mu.Unlock()
	return m, nil
}

// Window returns the window passed to Open.
func (m *MockSource) Window() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.window
}

func (m *MockSource) Aliases() []string { return append([]string(nil), m.aliases...) }

func (m *MockSource) Next(ctx context.Context) (map[string]*data.Data, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.units) == 0 {
		m.calls = append(m.calls, Call{Kind: CallNext, EOF: true})
		return nil, io.EOF
	}
	u := m.units[0]
	m.units = m.units[1:]
	m.calls = append(m.calls, Call{Kind: CallNext})
	return u, nil
}

func (m *MockSource) Subgraphs(ctx context.Context, in subgraph.Inducer) ([]subgraph.Induced, []subgraph.Induced, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.batches) == 0 {
		m.calls = append(m.calls, Call{Kind: CallSubgraphs, Arity: in.Arity(), EOF: true})
		return nil, nil, io.EOF
	}
	b := m.batches[0]
	m.batches = m.batches[1:]
	m.calls = append(m.calls, Call{Kind: CallSubgraphs, Arity: in.Arity()})
	return b.Pos, b.Neg, b.Err
}

// Calls returns a copy of the recorded calls.
func (m *MockSource) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}
