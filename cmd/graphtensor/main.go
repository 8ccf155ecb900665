package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hanpama/graphtensor/internal/dataset"
	"github.com/hanpama/graphtensor/internal/eventbus"
	"github.com/hanpama/graphtensor/internal/graphschema"
	"github.com/hanpama/graphtensor/internal/grpcsrv"
	"github.com/hanpama/graphtensor/internal/grpctp"
	"github.com/hanpama/graphtensor/internal/otel"
	"github.com/hanpama/graphtensor/internal/pipeline"
	"github.com/hanpama/graphtensor/internal/query"
	"github.com/hanpama/graphtensor/internal/record"
	"github.com/hanpama/graphtensor/internal/server"
	"github.com/hanpama/graphtensor/internal/source"
	"github.com/hanpama/graphtensor/internal/subgraph"
	"github.com/hanpama/graphtensor/internal/tensor"
	"github.com/hanpama/graphtensor/internal/wire"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

const rootUsage = `graphtensor: graph query results as typed tensor tuples

USAGE:
  graphtensor <command> [flags]

COMMANDS:
  describe         Print the declared tuple schema of a query
  compile-proto    Generate the Tuple .proto file of a query
  record           Write tuples to a zstd record file
  replay           Read a record file and summarize its tuples
  pull             Pull tuples from a remote TupleService
  serve            Serve tuples over HTTP and gRPC
  help             Show help for any command
`

const datasetUsage = `DATASET FLAGS (all commands except help):
  -graph.schema <file>      GraphQL SDL graph schema (required)
  -query <file>             JSON query steps (required)
  -induce <edge|node|none>  Subgraph inducer; none keeps raw tuples (default: none)
  -edge-type <name>         Batch graph edge type. Repeatable (default: query's)
  -window <n>               Units prefetched by the source (default: 5)
  -batches <n>              Synthetic units before exhaustion; 0 is unlimited (default: 10)
  -batch-size <n>           Override the batch size of root steps
  -seed <n>                 Synthetic data seed (default: 1)
  -proto.package <name>     Protobuf package of the tuple schema (default: graphtensor)
`

const describeUsage = `describe FLAGS:
` + datasetUsage

const compileProtoUsage = `compile-proto FLAGS:
  -out <dir>               Output directory for the generated .proto file (default: stdout)
` + datasetUsage

const recordUsage = `record FLAGS:
  -out <file>              Record file to write (required)
  -limit <n>               Maximum tuples; 0 writes until exhaustion (default: 0)
  -level <n>               zstd level (default: 3)
` + datasetUsage

const replayUsage = `replay FLAGS:
  -in <file>               Record file to read (required)
` + datasetUsage

const pullUsage = `pull FLAGS:
  -remote <host:port>      TupleService endpoint. Repeatable (required)
  -limit <n>               Maximum tuples; 0 pulls until exhaustion (default: 0)
  -out <file>              Write pulled tuples to a record file instead of summarizing
  -transport.window <n>    Tuples requested per Pull call (default: 1)
  -transport.max-conns-per-endpoint N Max TCP conns per endpoint (default: 2)
  -transport.dial-timeout <duration>  Endpoint dial timeout (default: 3s)
` + datasetUsage

const serveUsage = `serve FLAGS:
  -server.addr <addr>         HTTP listen address (default: :8080)
  -server.pretty              Pretty-print JSON responses
  -server.timeout <duration>  Per-request timeout, e.g. 10s (default: 10s)
  -server.cors <origin>       Allowed CORS origin. Repeatable
  -grpc.addr <addr>           gRPC listen address (default: :9090)
  -grpc.max-tuples <n>        Cap on tuples per Pull call; 0 is no cap (default: 0)
  -otel.endpoint <addr>       OTLP collector endpoint
  -otel.service <name>        OpenTelemetry service name (default: graphtensor)
` + datasetUsage

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}

func run(args []string) error {
	global := flag.NewFlagSet("graphtensor", flag.ContinueOnError)
	global.SetOutput(new(bytes.Buffer)) // silence automatic output
	if err := global.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, rootUsage)
		return err
	}
	remaining := global.Args()
	if len(remaining) == 0 {
		fmt.Fprint(os.Stderr, rootUsage)
		return fmt.Errorf("missing command")
	}

	cmd := remaining[0]
	cmdArgs := remaining[1:]
	switch cmd {
	case "describe":
		return cmdDescribe(cmdArgs)
	case "compile-proto":
		return cmdCompileProto(cmdArgs)
	case "record":
		return cmdRecord(cmdArgs)
	case "replay":
		return cmdReplay(cmdArgs)
	case "pull":
		return cmdPull(cmdArgs)
	case "serve":
		return cmdServe(cmdArgs)
	case "help":
		return cmdHelp(cmdArgs)
	default:
		fmt.Fprint(os.Stderr, rootUsage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func cmdHelp(args []string) error {
	if len(args) == 0 {
		fmt.Print(rootUsage)
		return nil
	}
	switch args[0] {
	case "describe":
		fmt.Print(describeUsage)
	case "compile-proto":
		fmt.Print(compileProtoUsage)
	case "record":
		fmt.Print(recordUsage)
	case "replay":
		fmt.Print(replayUsage)
	case "pull":
		fmt.Print(pullUsage)
	case "serve":
		fmt.Print(serveUsage)
	default:
		return fmt.Errorf("unknown help topic %q", args[0])
	}
	return nil
}

type stringListFlag []string

func (s *stringListFlag) String() string { return strings.Join(*s, ",") }

func (s *stringListFlag) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// datasetFlags are shared by every command that declares a tuple schema.
type datasetFlags struct {
	graphSchema string
	queryFile   string
	induce      string
	edgeTypes   stringListFlag
	window      int
	batches     int
	batchSize   int
	seed        int64
	protoPkg    string
}

func (d *datasetFlags) register(fs *flag.FlagSet) {
	d.induce = "none"
	d.window = 5
	d.batches = 10
	d.seed = 1
	d.protoPkg = wire.DefaultPackage
	fs.StringVar(&d.graphSchema, "graph.schema", d.graphSchema, "GraphQL SDL graph schema")
	fs.StringVar(&d.queryFile, "query", d.queryFile, "JSON query steps")
	fs.StringVar(&d.induce, "induce", d.induce, "Subgraph inducer: edge, node or none")
	fs.Var(&d.edgeTypes, "edge-type", "Batch graph edge type")
	fs.IntVar(&d.window, "window", d.window, "Units prefetched by the source")
	fs.IntVar(&d.batches, "batches", d.batches, "Synthetic units before exhaustion")
	fs.IntVar(&d.batchSize, "batch-size", d.batchSize, "Override the batch size of root steps")
	fs.Int64Var(&d.seed, "seed", d.seed, "Synthetic data seed")
	fs.StringVar(&d.protoPkg, "proto.package", d.protoPkg, "Protobuf package of the tuple schema")
}

func (d *datasetFlags) validate() error {
	if d.graphSchema == "" {
		return fmt.Errorf("-graph.schema is required")
	}
	if d.queryFile == "" {
		return fmt.Errorf("-query is required")
	}
	return nil
}

func (d *datasetFlags) inducer() (subgraph.Inducer, error) {
	switch d.induce {
	case "edge":
		return subgraph.EdgeInducer(), nil
	case "node":
		return subgraph.NodeInducer(), nil
	case "none", "":
		return subgraph.Inducer{}, nil
	}
	return subgraph.Inducer{}, fmt.Errorf("unknown inducer %q", d.induce)
}

func (d *datasetFlags) loadQuery() (*query.DAG, error) {
	g, err := graphschema.LoadFile(d.graphSchema)
	if err != nil {
		return nil, fmt.Errorf("load graph schema: %w", err)
	}
	return query.LoadFile(d.queryFile, g, query.WithBatch(d.batchSize))
}

// open builds the dataset over a synthetic source and the wire schema of
// its tuples.
func (d *datasetFlags) open() (*dataset.Dataset, *wire.Schema, error) {
	if err := d.validate(); err != nil {
		return nil, nil, err
	}
	q, err := d.loadQuery()
	if err != nil {
		return nil, nil, err
	}
	in, err := d.inducer()
	if err != nil {
		return nil, nil, err
	}
	syn, err := source.NewSynthetic(q, source.SyntheticOptions{Batches: d.batches, Seed: d.seed})
	if err != nil {
		return nil, nil, err
	}
	opts := []dataset.Option{
		dataset.WithWindow(d.window),
		dataset.WithLogger(slog.Default()),
	}
	if !in.IsZero() {
		opts = append(opts, dataset.WithInducer(in))
	}
	if len(d.edgeTypes) > 0 {
		opts = append(opts, dataset.WithEdgeTypes(d.edgeTypes...))
	}
	ds, err := dataset.New(q, func(window int) (dataset.Source, error) {
		return source.NewBuffered(q, syn, window), nil
	}, opts...)
	if err != nil {
		return nil, nil, err
	}
	s, err := wire.Build(d.protoPkg, ds.OutputNames(), ds.OutputSpecs())
	if err != nil {
		return nil, nil, fmt.Errorf("build tuple schema: %w", err)
	}
	return ds, s, nil
}

func cmdDescribe(args []string) error {
	var df datasetFlags
	fs := flag.NewFlagSet("describe", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	df.register(fs)
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, describeUsage)
		return err
	}
	ds, s, err := df.open()
	if err != nil {
		fmt.Fprint(os.Stderr, describeUsage)
		return err
	}
	defer ds.Close()
	describe(os.Stdout, ds, s)
	return nil
}

func describe(w io.Writer, ds *dataset.Dataset, s *wire.Schema) {
	fmt.Fprintf(w, "mode: %s\n", ds.Mode())
	if ds.Mode() == dataset.Batch {
		fmt.Fprintf(w, "pos size: %d\n", ds.PosSize())
		fmt.Fprintf(w, "edge types: %s\n", strings.Join(ds.EdgeTypes(), ", "))
	}
	names := s.Names()
	for i, spec := range s.Specs() {
		fmt.Fprintf(w, "%3d  %-32s %s\n", i, names[i], spec)
	}
}

func cmdCompileProto(args []string) error {
	var df datasetFlags
	outDir := ""
	fs := flag.NewFlagSet("compile-proto", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.StringVar(&outDir, "out", outDir, "Output directory for the generated .proto file")
	df.register(fs)
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, compileProtoUsage)
		return err
	}
	ds, s, err := df.open()
	if err != nil {
		fmt.Fprint(os.Stderr, compileProtoUsage)
		return err
	}
	defer ds.Close()
	if outDir == "" {
		return wire.Render(s, os.Stdout)
	}
	fp, err := wire.RenderDir(s, outDir)
	if err != nil {
		return fmt.Errorf("render proto: %w", err)
	}
	log.Printf("wrote %s", fp)
	return nil
}

func cmdRecord(args []string) error {
	var df datasetFlags
	out := ""
	limit := 0
	level := 3
	fs := flag.NewFlagSet("record", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.StringVar(&out, "out", out, "Record file to write")
	fs.IntVar(&limit, "limit", limit, "Maximum tuples")
	fs.IntVar(&level, "level", level, "zstd level")
	df.register(fs)
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, recordUsage)
		return err
	}
	if out == "" {
		fmt.Fprint(os.Stderr, recordUsage)
		return fmt.Errorf("-out is required")
	}
	ds, s, err := df.open()
	if err != nil {
		fmt.Fprint(os.Stderr, recordUsage)
		return err
	}
	defer ds.Close()
	ctx := context.Background()
	if err := ds.Iterator().Initialize(ctx); err != nil {
		return err
	}
	w, err := record.Create(out, s, record.WithLevel(level))
	if err != nil {
		return err
	}
	n, err := record.Copy(ctx, w, ds.Iterator(), limit)
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("record: %w", err)
	}
	log.Printf("wrote %d tuples to %s", n, out)
	return nil
}

func cmdReplay(args []string) error {
	var df datasetFlags
	in := ""
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.StringVar(&in, "in", in, "Record file to read")
	df.register(fs)
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, replayUsage)
		return err
	}
	if in == "" {
		fmt.Fprint(os.Stderr, replayUsage)
		return fmt.Errorf("-in is required")
	}
	ds, s, err := df.open()
	if err != nil {
		fmt.Fprint(os.Stderr, replayUsage)
		return err
	}
	defer ds.Close()
	r, err := record.Open(in, s)
	if err != nil {
		return err
	}
	defer r.Close()
	return summarize(context.Background(), os.Stdout, ds, r)
}

func cmdPull(args []string) error {
	var df datasetFlags
	var remotes stringListFlag
	limit := 0
	out := ""
	window := 1
	maxConns := 2
	dialTimeout := 3 * time.Second
	fs := flag.NewFlagSet("pull", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.Var(&remotes, "remote", "TupleService endpoint")
	fs.IntVar(&limit, "limit", limit, "Maximum tuples")
	fs.StringVar(&out, "out", out, "Record file to write")
	fs.IntVar(&window, "transport.window", window, "Tuples requested per Pull call")
	fs.IntVar(&maxConns, "transport.max-conns-per-endpoint", maxConns, "Max conns per endpoint")
	fs.DurationVar(&dialTimeout, "transport.dial-timeout", dialTimeout, "Endpoint dial timeout")
	df.register(fs)
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, pullUsage)
		return err
	}
	if len(remotes) == 0 {
		fmt.Fprint(os.Stderr, pullUsage)
		return fmt.Errorf("at least one -remote is required")
	}
	ds, s, err := df.open()
	if err != nil {
		fmt.Fprint(os.Stderr, pullUsage)
		return err
	}
	defer ds.Close()

	tp := grpctp.New(s,
		grpctp.WithProvider(grpctp.AnyService(remotes)),
		grpctp.WithMaxConnsPerEndpoint(maxConns),
		grpctp.WithDialTimeout(dialTimeout),
		grpctp.WithWindow(window),
	)
	defer tp.Close()

	ctx := context.Background()
	if out == "" {
		return summarize(ctx, os.Stdout, ds, take(tp, limit))
	}
	w, err := record.Create(out, s)
	if err != nil {
		return err
	}
	n, err := record.Copy(ctx, w, tp, limit)
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("pull: %w", err)
	}
	log.Printf("wrote %d tuples to %s", n, out)
	return nil
}

// take stops gen after n tuples; 0 means no limit.
func take(gen pipeline.Generator, n int) pipeline.Generator {
	seen := 0
	return pipeline.GeneratorFunc(func(ctx context.Context) ([]tensor.Tensor, error) {
		if n > 0 && seen >= n {
			return nil, io.EOF
		}
		values, err := gen.Next(ctx)
		if err == nil {
			seen++
		}
		return values, err
	})
}

// summarize prints one line per tuple: its tensor count, and the number of
// positive subgraphs in batch mode.
func summarize(ctx context.Context, w io.Writer, ds *dataset.Dataset, gen pipeline.Generator) error {
	for i := 0; ; i++ {
		values, err := gen.Next(ctx)
		if errors.Is(err, io.EOF) {
			fmt.Fprintf(w, "%d tuples\n", i)
			return nil
		}
		if err != nil {
			return err
		}
		el, err := ds.Element(values)
		if err != nil {
			return fmt.Errorf("tuple %d: %w", i, err)
		}
		if ds.Mode() != dataset.Batch {
			fmt.Fprintf(w, "tuple %d: %d tensors\n", i, len(values))
			continue
		}
		g, err := el.BatchGraph(query.PosSrc)
		if err != nil {
			return fmt.Errorf("tuple %d: %w", i, err)
		}
		fmt.Fprintf(w, "tuple %d: %d tensors, %d graphs\n", i, len(values), g.NumGraphs())
	}
}

func cmdServe(args []string) error {
	var df datasetFlags
	addr := ":8080"
	grpcAddr := ":9090"
	pretty := false
	timeout := 10 * time.Second
	maxTuples := 0
	otelEndpoint := ""
	otelService := "graphtensor"
	var origins stringListFlag

	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.StringVar(&addr, "server.addr", addr, "HTTP listen address")
	fs.BoolVar(&pretty, "server.pretty", pretty, "Pretty-print JSON responses")
	fs.DurationVar(&timeout, "server.timeout", timeout, "Per-request timeout")
	fs.Var(&origins, "server.cors", "Allowed CORS origin")
	fs.StringVar(&grpcAddr, "grpc.addr", grpcAddr, "gRPC listen address")
	fs.IntVar(&maxTuples, "grpc.max-tuples", maxTuples, "Cap on tuples per Pull call")
	fs.StringVar(&otelEndpoint, "otel.endpoint", otelEndpoint, "OTLP collector endpoint")
	fs.StringVar(&otelService, "otel.service", otelService, "OpenTelemetry service name")
	df.register(fs)
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, serveUsage)
		return err
	}

	eventbus.Use(eventbus.New())
	shutdown, err := otel.Setup(otelEndpoint, otelService)
	if err != nil {
		return fmt.Errorf("otel setup: %w", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	ds, s, err := df.open()
	if err != nil {
		fmt.Fprint(os.Stderr, serveUsage)
		return err
	}
	defer ds.Close()

	var sopts []server.Option
	if pretty {
		sopts = append(sopts, server.WithPretty())
	}
	if timeout > 0 {
		sopts = append(sopts, server.WithTimeout(timeout))
	}
	if len(origins) > 0 {
		sopts = append(sopts, server.WithCORS(origins...))
	}
	h, err := server.New(ds, s, sopts...)
	if err != nil {
		return fmt.Errorf("server init: %w", err)
	}
	hs := &http.Server{Addr: addr, Handler: h}

	gs := grpc.NewServer()
	grpcsrv.New(s, ds.Iterator(), grpcsrv.WithMaxTuples(maxTuples), grpcsrv.WithLogger(slog.Default())).Register(gs)
	lis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("HTTP tuple server listening on %s", addr)
		if err := hs.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		log.Printf("gRPC tuple server listening on %s", lis.Addr())
		return gs.Serve(lis)
	})
	g.Go(func() error {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		gs.GracefulStop()
		return hs.Shutdown(sctx)
	})
	return g.Wait()
}
