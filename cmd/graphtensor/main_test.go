package main

import (
	"bytes"
	"context"
	"flag"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/hanpama/graphtensor/internal/grpcsrv"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
)

const testSDL = `
type User @node { age: Int  score: Float  y: Int @label }
type Like @edge(src: "User", dst: "User") { w: Float @weight }
`

const testQuery = `{"steps": [
  {"alias": "pos_src", "op": "V", "type": "User", "batch": 4},
  {"alias": "src_hop", "from": "pos_src", "op": "outV", "edge": "Like", "count": 2},
  {"alias": "pos_dst", "from": "pos_src", "op": "outV", "edge": "Like", "count": 1},
  {"alias": "dst_hop", "from": "pos_dst", "op": "outV", "edge": "Like", "count": 2}
]}`

func captureOutput(t *testing.T, fn func() error) (stdout, stderr string, err error) {
	t.Helper()
	oldOut, oldErr := os.Stdout, os.Stderr
	defer func() {
		os.Stdout, os.Stderr = oldOut, oldErr
	}()

	outR, outW, _ := os.Pipe()
	errR, errW, _ := os.Pipe()
	os.Stdout, os.Stderr = outW, errW

	doneOut := make(chan struct{})
	var bufOut bytes.Buffer
	go func() { io.Copy(&bufOut, outR); close(doneOut) }()

	doneErr := make(chan struct{})
	var bufErr bytes.Buffer
	go func() { io.Copy(&bufErr, errR); close(doneErr) }()

	err = fn()
	outW.Close()
	errW.Close()
	<-doneOut
	<-doneErr
	stdout, stderr = bufOut.String(), bufErr.String()
	return
}

// inputs writes the graph schema and query files and returns the dataset
// flags pointing at them.
func inputs(t *testing.T) []string {
	t.Helper()
	dir := t.TempDir()
	sdl := filepath.Join(dir, "graph.graphql")
	q := filepath.Join(dir, "query.json")
	require.NoError(t, os.WriteFile(sdl, []byte(testSDL), 0644))
	require.NoError(t, os.WriteFile(q, []byte(testQuery), 0644))
	return []string{"-graph.schema", sdl, "-query", q}
}

func TestHelp(t *testing.T) {
	out, _, err := captureOutput(t, func() error {
		return run([]string{"help", "record"})
	})
	require.NoError(t, err)
	require.Contains(t, out, "record FLAGS")
	require.Contains(t, out, "-graph.schema")

	_, stderr, err := captureOutput(t, func() error { return run(nil) })
	require.Error(t, err)
	require.Contains(t, stderr, "COMMANDS")

	_, _, err = captureOutput(t, func() error { return run([]string{"nope"}) })
	require.Error(t, err)
}

func TestDescribe(t *testing.T) {
	flags := inputs(t)
	out, _, err := captureOutput(t, func() error {
		return run(append([]string{"describe"}, flags...))
	})
	require.NoError(t, err)
	require.Contains(t, out, "mode: raw")
	require.Contains(t, out, "pos_src_ids")

	explicit, _, err := captureOutput(t, func() error {
		return run(append([]string{"describe", "-induce", "none"}, flags...))
	})
	require.NoError(t, err)
	require.Equal(t, out, explicit)
	require.Contains(t, out, "dst_hop_float_attrs")

	out, _, err = captureOutput(t, func() error {
		return run(append([]string{"describe", "-induce", "edge"}, flags...))
	})
	require.NoError(t, err)
	require.Contains(t, out, "mode: batch")
	require.Contains(t, out, "pos size: 6")
	require.Contains(t, out, "edge types: Like")
	require.Contains(t, out, "pos_Like_edge_index")
}

func TestDescribeErrors(t *testing.T) {
	_, _, err := captureOutput(t, func() error { return run([]string{"describe"}) })
	require.ErrorContains(t, err, "-graph.schema is required")

	flags := inputs(t)
	_, _, err = captureOutput(t, func() error {
		return run(append([]string{"describe", "-induce", "star"}, flags...))
	})
	require.ErrorContains(t, err, "unknown inducer")

	_, _, err = captureOutput(t, func() error {
		return run(append([]string{"describe", "-induce", "edge", "-edge-type", "Like", "-edge-type", "Like"}, flags...))
	})
	require.ErrorContains(t, err, "duplicate edge type")
}

func TestCompileProto(t *testing.T) {
	flags := inputs(t)
	outDir := t.TempDir()
	_, _, err := captureOutput(t, func() error {
		return run(append([]string{"compile-proto", "-out", outDir, "-proto.package", "demo.v1"}, flags...))
	})
	require.NoError(t, err)
	b, err := os.ReadFile(filepath.Join(outDir, "demo", "v1", "tuple.proto"))
	require.NoError(t, err)
	require.Contains(t, string(b), "service TupleService")
	require.Contains(t, string(b), "pos_src_ids")
}

func TestRecordReplay(t *testing.T) {
	for _, tc := range []struct {
		induce string
		first  string
	}{
		{induce: "none", first: "tuple 0: 16 tensors\n"},
		{induce: "edge", first: "tuple 0: 6 tensors, 2 graphs"},
	} {
		t.Run(tc.induce, func(t *testing.T) {
			flags := append([]string{"-induce", tc.induce, "-batches", "3", "-batch-size", "2"}, inputs(t)...)
			file := filepath.Join(t.TempDir(), "tuples.gtrec")

			_, _, err := captureOutput(t, func() error {
				return run(append([]string{"record", "-out", file}, flags...))
			})
			require.NoError(t, err)

			out, _, err := captureOutput(t, func() error {
				return run(append([]string{"replay", "-in", file}, flags...))
			})
			require.NoError(t, err)
			require.Contains(t, out, tc.first)
			require.Contains(t, out, "3 tuples")
		})
	}
}

func TestRecordReplaySchemaMismatch(t *testing.T) {
	file := filepath.Join(t.TempDir(), "tuples.gtrec")
	_, _, err := captureOutput(t, func() error {
		return run(append([]string{"record", "-out", file, "-induce", "edge", "-batches", "1"}, inputs(t)...))
	})
	require.NoError(t, err)

	// A raw schema does not match batch tuples.
	_, _, err = captureOutput(t, func() error {
		return run(append([]string{"replay", "-in", file}, inputs(t)...))
	})
	require.Error(t, err)
}

// An endless source stops once the record limit is reached.
func TestRecordLimitEndlessSource(t *testing.T) {
	flags := append([]string{"-induce", "edge", "-batches", "0"}, inputs(t)...)
	file := filepath.Join(t.TempDir(), "tuples.gtrec")
	_, _, err := captureOutput(t, func() error {
		return run(append([]string{"record", "-out", file, "-limit", "2"}, flags...))
	})
	require.NoError(t, err)

	out, _, err := captureOutput(t, func() error {
		return run(append([]string{"replay", "-in", file}, flags...))
	})
	require.NoError(t, err)
	require.Contains(t, out, "2 tuples")
}

func TestPull(t *testing.T) {
	for _, tc := range []struct {
		induce string
		first  string
	}{
		{induce: "none", first: "tuple 1: 16 tensors\n"},
		{induce: "edge", first: "tuple 1: 6 tensors, 4 graphs"},
	} {
		t.Run(tc.induce, func(t *testing.T) {
			flags := append([]string{"-induce", tc.induce, "-batches", "5"}, inputs(t)...)

			var df datasetFlags
			fs := flag.NewFlagSet("pull-test", flag.ContinueOnError)
			df.register(fs)
			require.NoError(t, fs.Parse(flags))
			ds, s, err := df.open()
			require.NoError(t, err)
			t.Cleanup(func() { ds.Close() })
			require.NoError(t, ds.Iterator().Initialize(context.Background()))

			lis, err := net.Listen("tcp", "127.0.0.1:0")
			require.NoError(t, err)
			gs := grpc.NewServer()
			grpcsrv.New(s, ds.Iterator()).Register(gs)
			go func() { _ = gs.Serve(lis) }()
			t.Cleanup(gs.Stop)

			out, _, err := captureOutput(t, func() error {
				return run(append([]string{"pull", "-remote", lis.Addr().String(), "-limit", "2", "-transport.window", "2"}, flags...))
			})
			require.NoError(t, err)
			require.Contains(t, out, tc.first)
			require.Contains(t, out, "2 tuples")

			file := filepath.Join(t.TempDir(), "pulled.gtrec")
			_, _, err = captureOutput(t, func() error {
				return run(append([]string{"pull", "-remote", lis.Addr().String(), "-out", file}, flags...))
			})
			require.NoError(t, err)
			out, _, err = captureOutput(t, func() error {
				return run(append([]string{"replay", "-in", file}, flags...))
			})
			require.NoError(t, err)
			require.Contains(t, out, "3 tuples")
		})
	}
}
