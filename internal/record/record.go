// Package record stores tensor tuples in zstd-compressed record files and
// replays them as a tuple generator.
//
// A record file starts with an uncompressed magic header followed by one
// zstd stream of length-delimited Tuple messages. The tuple schema itself
// is not stored; readers decode with the wire.Schema of the dataset that
// wrote the file.
package record

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/hanpama/graphtensor/internal/pipeline"
	"github.com/hanpama/graphtensor/internal/tensor"
	"github.com/hanpama/graphtensor/internal/wire"
	"github.com/klauspost/compress/zstd"
	"google.golang.org/protobuf/encoding/protodelim"
	"google.golang.org/protobuf/types/dynamicpb"
)

var ErrFormat = errors.New("record: not a tuple record file")

var magic = []byte("GTREC\x00\x01\n")

type Options struct {
	// Level is the zstd compression level, 1 (fastest) to 22.
	Level int
}

type Option func(*Options)

func defaultOptions() *Options { return &Options{Level: 3} }

func WithLevel(level int) Option { return func(o *Options) { o.Level = level } }

// Writer appends tuples to a record stream. It is not safe for concurrent
// use.
type Writer struct {
	schema *wire.Schema
	enc    *zstd.Encoder
	buf    *bufio.Writer
	closer io.Closer
	count  int
}

// NewWriter writes the header to w and returns a writer encoding tuples of
// schema s. Close flushes the stream but leaves w open.
func NewWriter(w io.Writer, s *wire.Schema, opts ...Option) (*Writer, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if _, err := w.Write(magic); err != nil {
		return nil, fmt.Errorf("record: write header: %w", err)
	}
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(o.Level)))
	if err != nil {
		return nil, fmt.Errorf("record: create compressor: %w", err)
	}
	return &Writer{schema: s, enc: enc, buf: bufio.NewWriter(enc)}, nil
}

// Create creates the file at path and returns a writer owning it.
func Create(path string, s *wire.Schema, opts ...Option) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w, err := NewWriter(f, s, opts...)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	w.closer = f
	return w, nil
}

// Write appends one tuple.
func (w *Writer) Write(values []tensor.Tensor) error {
	msg, err := w.schema.Encode(values)
	if err != nil {
		return err
	}
	if _, err := protodelim.MarshalTo(w.buf, msg); err != nil {
		return fmt.Errorf("record: write tuple %d: %w", w.count, err)
	}
	w.count++
	return nil
}

// Count returns the number of tuples written.
func (w *Writer) Count() int { return w.count }

func (w *Writer) Close() error {
	err := w.buf.Flush()
	if cerr := w.enc.Close(); err == nil {
		err = cerr
	}
	if w.closer != nil {
		if cerr := w.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Copy pulls tuples from gen into w until gen is exhausted or limit tuples
// were written. A limit of 0 copies everything.
func Copy(ctx context.Context, w *Writer, gen pipeline.Generator, limit int) (int, error) {
	n := 0
	for limit <= 0 || n < limit {
		values, err := gen.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return n, err
		}
		if err := w.Write(values); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// Reader replays a record stream. It implements pipeline.Generator and is
// safe for concurrent use.
type Reader struct {
	schema *wire.Schema
	closer io.Closer

	mu   sync.Mutex
	dec  *zstd.Decoder
	buf  *bufio.Reader
	read int
	done bool
}

var _ pipeline.Generator = (*Reader)(nil)

// NewReader checks the header of r and returns a reader decoding tuples of
// schema s.
func NewReader(r io.Reader, s *wire.Schema) (*Reader, error) {
	head := make([]byte, len(magic))
	if _, err := io.ReadFull(r, head); err != nil || !bytes.Equal(head, magic) {
		return nil, ErrFormat
	}
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("record: create decompressor: %w", err)
	}
	return &Reader{schema: s, dec: dec, buf: bufio.NewReader(dec)}, nil
}

// Open opens the record file at path.
func Open(path string, s *wire.Schema) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r, err := NewReader(f, s)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	r.closer = f
	return r, nil
}

// Next returns the next stored tuple, or io.EOF after the last one.
func (r *Reader) Next(ctx context.Context) ([]tensor.Tensor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return nil, io.EOF
	}
	msg := dynamicpb.NewMessage(r.schema.Tuple())
	if err := protodelim.UnmarshalFrom(r.buf, msg); err != nil {
		if errors.Is(err, io.EOF) {
			r.done = true
			return nil, io.EOF
		}
		return nil, fmt.Errorf("record: read tuple %d: %w", r.read, err)
	}
	values, err := r.schema.Decode(msg)
	if err != nil {
		return nil, fmt.Errorf("record: tuple %d: %w", r.read, err)
	}
	r.read++
	return values, nil
}

func (r *Reader) Close() error {
	r.dec.Close()
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}
