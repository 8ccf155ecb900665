// Package wire describes declared tensor tuples as protobuf messages.
//
// Build turns a tuple schema into a file descriptor holding a generic Tensor
// message, a Tuple message with one Tensor field per position (field number
// = position + 1) and a TupleService streaming tuples to pullers. Tuples are
// encoded with dynamicpb, so no generated code is involved.
package wire

import (
	"fmt"
	"strings"

	"github.com/hanpama/graphtensor/internal/tensor"
	"github.com/jhump/protoreflect/v2/protobuilder"
	"google.golang.org/protobuf/reflect/protoreflect"
)

// DefaultPackage is the proto package used when Build gets an empty one.
const DefaultPackage = "graphtensor"

// Field numbers 19000-19999 are reserved by protobuf.
const maxPositions = 18999

// Schema is the protobuf rendering of one tuple schema.
type Schema struct {
	names []string
	specs []tensor.Spec

	file        protoreflect.FileDescriptor
	tuple       protoreflect.MessageDescriptor
	tensor      protoreflect.MessageDescriptor
	pullRequest protoreflect.MessageDescriptor
	pull        protoreflect.MethodDescriptor
}

// Build creates the descriptors of a tuple schema. names label the tuple
// positions and must be as many as specs.
func Build(pkg string, names []string, specs []tensor.Spec) (*Schema, error) {
	if len(names) != len(specs) {
		return nil, fmt.Errorf("wire: %d names for %d positions", len(names), len(specs))
	}
	if len(specs) > maxPositions {
		return nil, fmt.Errorf("wire: %d positions exceed the field number space", len(specs))
	}
	if pkg == "" {
		pkg = DefaultPackage
	}

	fb := protobuilder.NewFile(strings.ReplaceAll(pkg, ".", "/") + "/tuple.proto")
	fb.SetPackageName(protoreflect.FullName(pkg))
	fb.SetSyntax(protoreflect.Proto3)

	tensorMB := buildTensorMessage()
	fb.AddMessage(tensorMB)

	tupleMB := protobuilder.NewMessage(tupleMessage)
	tupleMB.SetComments(comment("One tuple. Field n holds tuple position n-1."))
	seen := map[protoreflect.Name]bool{}
	for i, spec := range specs {
		f := protobuilder.NewField(fieldName(names[i], i, seen), protobuilder.FieldTypeMessage(tensorMB))
		f.SetNumber(protoreflect.FieldNumber(i + 1))
		f.SetComments(comment(spec.String()))
		tupleMB.AddField(f)
	}
	fb.AddMessage(tupleMB)

	reqMB := protobuilder.NewMessage(pullRequestMessage)
	limit := protobuilder.NewField(maxTuplesField, protobuilder.FieldTypeScalar(protoreflect.Int32Kind))
	limit.SetNumber(1)
	limit.SetComments(comment("Number of tuples to stream. 0 streams until the source is exhausted."))
	reqMB.AddField(limit)
	fb.AddMessage(reqMB)

	sb := protobuilder.NewService(serviceName)
	sb.AddMethod(protobuilder.NewMethod(pullMethod,
		protobuilder.RpcTypeMessage(reqMB, false),
		protobuilder.RpcTypeMessage(tupleMB, true),
	))
	fb.AddService(sb)

	fd, err := fb.Build()
	if err != nil {
		return nil, fmt.Errorf("wire: build descriptors: %w", err)
	}
	s := &Schema{
		names:       append([]string(nil), names...),
		specs:       append([]tensor.Spec(nil), specs...),
		file:        fd,
		tuple:       fd.Messages().ByName(tupleMessage),
		tensor:      fd.Messages().ByName(tensorMessage),
		pullRequest: fd.Messages().ByName(pullRequestMessage),
		pull:        fd.Services().ByName(serviceName).Methods().ByName(pullMethod),
	}
	return s, nil
}

func buildTensorMessage() *protobuilder.MessageBuilder {
	mb := protobuilder.NewMessage(tensorMessage)
	mb.SetComments(comment("A dense row-major tensor. Exactly one value list matches dtype."))
	scalar := func(name protoreflect.Name, num int, kind protoreflect.Kind, repeated bool) {
		f := protobuilder.NewField(name, protobuilder.FieldTypeScalar(kind))
		f.SetNumber(protoreflect.FieldNumber(num))
		if repeated {
			f.SetRepeated()
		}
		mb.AddField(f)
	}
	scalar(dtypeField, 1, protoreflect.StringKind, false)
	scalar(shapeField, 2, protoreflect.Int64Kind, true)
	scalar(int64Field, 3, protoreflect.Int64Kind, true)
	scalar(floatField, 4, protoreflect.FloatKind, true)
	scalar(stringField, 5, protoreflect.StringKind, true)
	scalar(int32Field, 6, protoreflect.Int32Kind, true)
	return mb
}

// File returns the file descriptor holding every message and the service.
func (s *Schema) File() protoreflect.FileDescriptor { return s.file }

func (s *Schema) Tuple() protoreflect.MessageDescriptor       { return s.tuple }
func (s *Schema) Tensor() protoreflect.MessageDescriptor      { return s.tensor }
func (s *Schema) PullRequest() protoreflect.MessageDescriptor { return s.pullRequest }

// Pull returns the server-streaming TupleService.Pull method.
func (s *Schema) Pull() protoreflect.MethodDescriptor { return s.pull }

// PullPath returns the gRPC path of Pull, "/<pkg>.TupleService/Pull".
func (s *Schema) PullPath() string {
	return fmt.Sprintf("/%s/%s", s.pull.Parent().FullName(), s.pull.Name())
}

func (s *Schema) Names() []string       { return append([]string(nil), s.names...) }
func (s *Schema) Specs() []tensor.Spec { return append([]tensor.Spec(nil), s.specs...) }
