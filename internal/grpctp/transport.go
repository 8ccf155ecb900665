package grpctp

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	eventbus "github.com/hanpama/graphtensor/internal/eventbus"
	events "github.com/hanpama/graphtensor/internal/events"
	"github.com/hanpama/graphtensor/internal/pipeline"
	reqid "github.com/hanpama/graphtensor/internal/reqid"
	"github.com/hanpama/graphtensor/internal/tensor"
	"github.com/hanpama/graphtensor/internal/wire"
	"google.golang.org/grpc"
	"google.golang.org/grpc/backoff"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/dynamicpb"
)

// Transport pulls tuples from remote TupleService endpoints with connection
// pooling. It implements pipeline.Generator: each Pull call asks for Window
// tuples, and the stream of calls ends when a call returns no tuple.

type Transport struct {
	schema *wire.Schema
	opts   *Options

	mu     sync.RWMutex
	pools  map[string]*connPool // key: endpoint
	closed atomic.Bool

	pullMu sync.Mutex
	cur    *pullStream
	done   bool
}

var _ pipeline.Generator = (*Transport)(nil)

// New returns a transport decoding tuples of schema s.
func New(s *wire.Schema, opts ...Option) *Transport {
	o := defaultOptions()
	for _, f := range opts {
		f(o)
	}
	if len(o.DialOptions) == 0 {
		o.DialOptions = []grpc.DialOption{
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			grpc.WithConnectParams(grpc.ConnectParams{Backoff: backoff.DefaultConfig}),
		}
	}
	return &Transport{
		schema: s,
		opts:   o,
		pools:  make(map[string]*connPool),
	}
}

// Next returns the next remote tuple, or io.EOF once the remote generator is
// exhausted. Calls are serialized.
func (t *Transport) Next(ctx context.Context) ([]tensor.Tensor, error) {
	t.pullMu.Lock()
	defer t.pullMu.Unlock()
	for {
		if t.done {
			return nil, io.EOF
		}
		if t.cur == nil {
			st, err := t.open(ctx, t.opts.Window)
			if err != nil {
				return nil, err
			}
			t.cur = st
		}
		values, err := t.cur.recv()
		if err == nil {
			return values, nil
		}
		st := t.cur
		t.cur = nil
		if !errors.Is(err, io.EOF) {
			return nil, err
		}
		// An empty call, or an unbounded one, means the remote side ran dry.
		if st.received == 0 || t.opts.Window <= 0 {
			t.done = true
		}
	}
}

// Pull makes one Pull call and collects up to max tuples; 0 collects all.
func (t *Transport) Pull(ctx context.Context, max int) ([][]tensor.Tensor, error) {
	st, err := t.open(ctx, max)
	if err != nil {
		return nil, err
	}
	var out [][]tensor.Tensor
	for {
		values, err := st.recv()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, values)
	}
}

func (t *Transport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	t.pullMu.Lock()
	if t.cur != nil {
		t.cur.finish(context.Canceled)
		t.cur = nil
	}
	t.pullMu.Unlock()

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range t.pools {
		p.close()
	}
	t.pools = map[string]*connPool{}
	return nil
}

// ---------------- internals ----------------

type pullStream struct {
	t        *Transport
	ctx      context.Context
	cancel   context.CancelFunc
	cs       grpc.ClientStream
	cc       *grpc.ClientConn
	service  string
	method   string
	endpoint string
	start    time.Time
	received int
	finished bool
}

// open starts a Pull call. The call outlives ctx, which only bounds
// endpoint discovery and dialing.
func (t *Transport) open(ctx context.Context, max int) (*pullStream, error) {
	if t.closed.Load() {
		return nil, ErrClosed
	}
	if t.opts.Provider == nil {
		return nil, ErrNoProvider
	}
	method := t.schema.Pull()
	service := string(method.Parent().FullName())

	if _, ok := ctx.Deadline(); !ok && t.opts.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.opts.DialTimeout)
		defer cancel()
	}
	endpoints, err := t.opts.Provider.Endpoints(ctx, service)
	if err != nil {
		return nil, err
	}
	endpoint := endpoints[rand.Intn(len(endpoints))]
	cc, err := t.getConn(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	sctx, _ := reqid.NewContext(context.Background())
	sctx = metadata.AppendToOutgoingContext(sctx, "x-graphtensor-service", service)
	sctx, cancel := context.WithCancel(sctx)
	st := &pullStream{
		t:        t,
		ctx:      sctx,
		cancel:   cancel,
		cc:       cc,
		service:  service,
		method:   string(method.Name()),
		endpoint: endpoint,
		start:    time.Now(),
	}
	eventbus.Publish(sctx, events.GRPCClientStart{Service: service, Method: st.method, Target: endpoint, Max: max})

	desc := &grpc.StreamDesc{StreamName: st.method, ServerStreams: true}
	cs, err := cc.NewStream(sctx, desc, t.schema.PullPath())
	if err == nil {
		st.cs = cs
		if err = cs.SendMsg(t.schema.NewPullRequest(max)); err == nil {
			err = cs.CloseSend()
		}
	}
	if err != nil {
		st.finish(err)
		return nil, err
	}
	return st, nil
}

func (st *pullStream) recv() ([]tensor.Tensor, error) {
	msg := dynamicpb.NewMessage(st.t.schema.Tuple())
	if err := st.cs.RecvMsg(msg); err != nil {
		if errors.Is(err, io.EOF) {
			st.finish(nil)
			return nil, io.EOF
		}
		st.finish(err)
		return nil, err
	}
	values, err := st.t.schema.Decode(msg)
	if err != nil {
		st.finish(err)
		return nil, err
	}
	st.received++
	return values, nil
}

func (st *pullStream) finish(err error) {
	if st.finished {
		return
	}
	st.finished = true
	eventbus.Publish(st.ctx, events.GRPCClientFinish{
		Service:  st.service,
		Method:   st.method,
		Target:   st.endpoint,
		Received: st.received,
		Code:     status.Code(err),
		Err:      err,
		Duration: time.Since(st.start),
	})
	st.cancel()
	st.t.returnConn(st.endpoint, st.cc)
}

type connPool struct {
	endpoint string
	opts     *Options
	conns    chan *grpc.ClientConn
	closed   atomic.Bool
}

func newConnPool(endpoint string, opts *Options) *connPool {
	n := opts.MaxConnsPerEndpoint
	if n <= 0 {
		n = 2
	}
	return &connPool{
		endpoint: endpoint,
		opts:     opts,
		conns:    make(chan *grpc.ClientConn, n),
	}
}

func (p *connPool) get(ctx context.Context) (*grpc.ClientConn, error) {
	if p.closed.Load() {
		return nil, ErrClosed
	}
	select {
	case cc := <-p.conns:
		return cc, nil
	default:
		return grpc.DialContext(ctx, p.endpoint, p.opts.DialOptions...)
	}
}

func (p *connPool) put(cc *grpc.ClientConn) {
	if cc == nil || p.closed.Load() {
		if cc != nil {
			_ = cc.Close()
		}
		return
	}
	select {
	case p.conns <- cc:
	default:
		_ = cc.Close()
	}
}

func (p *connPool) close() {
	if p.closed.Swap(true) {
		return
	}
	close(p.conns)
	for cc := range p.conns {
		_ = cc.Close()
	}
}

func (t *Transport) getConn(ctx context.Context, endpoint string) (*grpc.ClientConn, error) {
	t.mu.RLock()
	pool := t.pools[endpoint]
	t.mu.RUnlock()
	if pool == nil {
		t.mu.Lock()
		pool = t.pools[endpoint]
		if pool == nil {
			pool = newConnPool(endpoint, t.opts)
			t.pools[endpoint] = pool
		}
		t.mu.Unlock()
	}
	return pool.get(ctx)
}

func (t *Transport) returnConn(endpoint string, cc *grpc.ClientConn) {
	t.mu.RLock()
	pool := t.pools[endpoint]
	t.mu.RUnlock()
	if pool != nil {
		pool.put(cc)
		return
	}
	_ = cc.Close()
}
