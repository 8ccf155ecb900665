package wire

import (
	"errors"
	"fmt"

	"github.com/hanpama/graphtensor/internal/pipeline"
	"github.com/hanpama/graphtensor/internal/tensor"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"
)

var ErrMessage = errors.New("wire: malformed tuple message")

// Encode converts a tuple into a Tuple message. values must satisfy the
// schema specs.
func (s *Schema) Encode(values []tensor.Tensor) (*dynamicpb.Message, error) {
	if err := pipeline.Check(s.specs, values); err != nil {
		return nil, err
	}
	msg := dynamicpb.NewMessage(s.tuple)
	fields := s.tuple.Fields()
	for i, t := range values {
		msg.Set(fields.ByNumber(protoreflect.FieldNumber(i+1)), protoreflect.ValueOfMessage(s.encodeTensor(t)))
	}
	return msg, nil
}

func (s *Schema) encodeTensor(t tensor.Tensor) *dynamicpb.Message {
	m := dynamicpb.NewMessage(s.tensor)
	fields := s.tensor.Fields()
	m.Set(fields.ByName(dtypeField), protoreflect.ValueOfString(t.DType().String()))
	shape := m.Mutable(fields.ByName(shapeField)).List()
	for _, d := range t.Shape() {
		shape.Append(protoreflect.ValueOfInt64(int64(d)))
	}
	switch t.DType() {
	case tensor.Int64:
		l := m.Mutable(fields.ByName(int64Field)).List()
		for _, v := range t.Int64s() {
			l.Append(protoreflect.ValueOfInt64(v))
		}
	case tensor.Float32:
		l := m.Mutable(fields.ByName(floatField)).List()
		for _, v := range t.Float32s() {
			l.Append(protoreflect.ValueOfFloat32(v))
		}
	case tensor.String:
		l := m.Mutable(fields.ByName(stringField)).List()
		for _, v := range t.Strings() {
			l.Append(protoreflect.ValueOfString(v))
		}
	case tensor.Int32:
		l := m.Mutable(fields.ByName(int32Field)).List()
		for _, v := range t.Int32s() {
			l.Append(protoreflect.ValueOfInt32(v))
		}
	}
	return m
}

// Decode converts a Tuple message back into a tuple and checks it against
// the schema specs.
func (s *Schema) Decode(msg proto.Message) ([]tensor.Tensor, error) {
	m := msg.ProtoReflect()
	if m.Descriptor().FullName() != s.tuple.FullName() {
		return nil, fmt.Errorf("%w: got %s, want %s", ErrMessage, m.Descriptor().FullName(), s.tuple.FullName())
	}
	fields := m.Descriptor().Fields()
	values := make([]tensor.Tensor, len(s.specs))
	for i := range values {
		fd := fields.ByNumber(protoreflect.FieldNumber(i + 1))
		if fd == nil || !m.Has(fd) {
			return nil, fmt.Errorf("%w: position %d is missing", ErrMessage, i)
		}
		t, err := decodeTensor(m.Get(fd).Message())
		if err != nil {
			return nil, fmt.Errorf("%w: position %d: %w", ErrMessage, i, err)
		}
		values[i] = t
	}
	if err := pipeline.Check(s.specs, values); err != nil {
		return nil, err
	}
	return values, nil
}

func decodeTensor(m protoreflect.Message) (tensor.Tensor, error) {
	fields := m.Descriptor().Fields()
	dtype, err := tensor.ParseDType(m.Get(fields.ByName(dtypeField)).String())
	if err != nil {
		return tensor.Tensor{}, err
	}
	shapeList := m.Get(fields.ByName(shapeField)).List()
	shape := make([]int, shapeList.Len())
	for i := range shape {
		shape[i] = int(shapeList.Get(i).Int())
	}
	want := tensor.Shape(shape).NumElements()

	var list protoreflect.List
	switch dtype {
	case tensor.Int64:
		list = m.Get(fields.ByName(int64Field)).List()
	case tensor.Float32:
		list = m.Get(fields.ByName(floatField)).List()
	case tensor.String:
		list = m.Get(fields.ByName(stringField)).List()
	case tensor.Int32:
		list = m.Get(fields.ByName(int32Field)).List()
	}
	if list.Len() != want || len(shape) == 0 {
		return tensor.Tensor{}, fmt.Errorf("%d %s values for shape %s", list.Len(), dtype, tensor.Shape(shape))
	}

	switch dtype {
	case tensor.Int64:
		vals := make([]int64, list.Len())
		for i := range vals {
			vals[i] = list.Get(i).Int()
		}
		return tensor.FromInt64(vals, shape...), nil
	case tensor.Float32:
		vals := make([]float32, list.Len())
		for i := range vals {
			vals[i] = float32(list.Get(i).Float())
		}
		return tensor.FromFloat32(vals, shape...), nil
	case tensor.String:
		vals := make([]string, list.Len())
		for i := range vals {
			vals[i] = list.Get(i).String()
		}
		return tensor.FromString(vals, shape...), nil
	default:
		vals := make([]int32, list.Len())
		for i := range vals {
			vals[i] = int32(list.Get(i).Int())
		}
		return tensor.FromInt32(vals, shape...), nil
	}
}

// Marshal encodes a tuple to protobuf binary.
func (s *Schema) Marshal(values []tensor.Tensor) ([]byte, error) {
	msg, err := s.Encode(values)
	if err != nil {
		return nil, err
	}
	return proto.Marshal(msg)
}

// Unmarshal decodes protobuf binary produced by Marshal.
func (s *Schema) Unmarshal(b []byte) ([]tensor.Tensor, error) {
	msg := dynamicpb.NewMessage(s.tuple)
	if err := proto.Unmarshal(b, msg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMessage, err)
	}
	return s.Decode(msg)
}

// MarshalJSON encodes a tuple with protojson, keeping proto field names.
func (s *Schema) MarshalJSON(values []tensor.Tensor) ([]byte, error) {
	msg, err := s.Encode(values)
	if err != nil {
		return nil, err
	}
	return protojson.MarshalOptions{UseProtoNames: true}.Marshal(msg)
}

// UnmarshalJSON decodes protojson produced by MarshalJSON.
func (s *Schema) UnmarshalJSON(b []byte) ([]tensor.Tensor, error) {
	msg := dynamicpb.NewMessage(s.tuple)
	if err := protojson.Unmarshal(b, msg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMessage, err)
	}
	return s.Decode(msg)
}

// NewPullRequest returns a PullRequest asking for max tuples; 0 asks for all.
func (s *Schema) NewPullRequest(max int) *dynamicpb.Message {
	m := dynamicpb.NewMessage(s.pullRequest)
	if max > 0 {
		m.Set(s.pullRequest.Fields().ByName(maxTuplesField), protoreflect.ValueOfInt32(int32(max)))
	}
	return m
}

// MaxTuples reads the limit of a PullRequest.
func (s *Schema) MaxTuples(req proto.Message) int {
	m := req.ProtoReflect()
	fd := m.Descriptor().Fields().ByName(maxTuplesField)
	if fd == nil {
		return 0
	}
	return int(m.Get(fd).Int())
}
