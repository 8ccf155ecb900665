// Package grpcsrv serves a tuple generator as the streaming
// TupleService.Pull method of a wire.Schema.
package grpcsrv

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	eventbus "github.com/hanpama/graphtensor/internal/eventbus"
	events "github.com/hanpama/graphtensor/internal/events"
	"github.com/hanpama/graphtensor/internal/pipeline"
	reqid "github.com/hanpama/graphtensor/internal/reqid"
	"github.com/hanpama/graphtensor/internal/tensor"
	"github.com/hanpama/graphtensor/internal/wire"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/dynamicpb"
)

type Options struct {
	// MaxTuples caps the tuples sent by one Pull call. 0 means no cap.
	MaxTuples int
	Logger    *slog.Logger
}

type Option func(*Options)

func WithMaxTuples(n int) Option       { return func(o *Options) { o.MaxTuples = n } }
func WithLogger(l *slog.Logger) Option { return func(o *Options) { o.Logger = l } }

// Server streams tuples pulled from one generator. Concurrent Pull calls
// share the generator; each tuple goes to exactly one caller.
type Server struct {
	schema *wire.Schema
	opts   Options

	mu  sync.Mutex
	gen pipeline.Generator
}

// New returns a server for tuples of schema s pulled from gen.
func New(s *wire.Schema, gen pipeline.Generator, opts ...Option) *Server {
	o := Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, f := range opts {
		f(&o)
	}
	return &Server{schema: s, gen: gen, opts: o}
}

type tupleService interface {
	pull(req *dynamicpb.Message, stream grpc.ServerStream) error
}

// ServiceDesc describes TupleService for grpc.Server.RegisterService.
func (s *Server) ServiceDesc() *grpc.ServiceDesc {
	pull := s.schema.Pull()
	return &grpc.ServiceDesc{
		ServiceName: string(pull.Parent().FullName()),
		HandlerType: (*tupleService)(nil),
		Streams: []grpc.StreamDesc{{
			StreamName:    string(pull.Name()),
			ServerStreams: true,
			Handler: func(srv any, stream grpc.ServerStream) error {
				req := dynamicpb.NewMessage(s.schema.PullRequest())
				if err := stream.RecvMsg(req); err != nil {
					return err
				}
				return srv.(tupleService).pull(req, stream)
			},
		}},
		Metadata: s.schema.File().Path(),
	}
}

// Register adds TupleService to gs.
func (s *Server) Register(gs *grpc.Server) { gs.RegisterService(s.ServiceDesc(), s) }

func (s *Server) pull(req *dynamicpb.Message, stream grpc.ServerStream) (err error) {
	ctx, _ := reqid.NewContext(stream.Context())
	method := s.schema.PullPath()
	sent := 0
	limit := s.schema.MaxTuples(req)
	if s.opts.MaxTuples > 0 && (limit <= 0 || limit > s.opts.MaxTuples) {
		limit = s.opts.MaxTuples
	}
	start := time.Now()
	eventbus.Publish(ctx, events.GRPCServerStart{Method: method, Max: limit})
	defer func() {
		eventbus.Publish(ctx, events.GRPCServerFinish{
			Method:   method,
			Sent:     sent,
			Code:     status.Code(err),
			Err:      err,
			Duration: time.Since(start),
		})
	}()

	for limit <= 0 || sent < limit {
		values, err := s.next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			s.opts.Logger.Error("pull failed", slog.String("method", method), slog.Int("sent", sent), slog.Any("error", err))
			return toStatus(err)
		}
		msg, err := s.schema.Encode(values)
		if err != nil {
			return toStatus(err)
		}
		if err := stream.SendMsg(msg); err != nil {
			return err
		}
		sent++
	}
	return nil
}

func (s *Server) next(ctx context.Context) ([]tensor.Tensor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen.Next(ctx)
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, pipeline.ErrSchemaMismatch):
		return status.Error(codes.DataLoss, err.Error())
	case errors.Is(err, pipeline.ErrNotInitialized):
		return status.Error(codes.FailedPrecondition, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}
