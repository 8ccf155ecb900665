// Package graphschema declares the node and edge types of a graph together
// with their attribute decoders.
//
// Schemas are usually written in GraphQL SDL:
//
//	type User @node {
//	  age: Int
//	  score: Float
//	  city: String
//	  class: Int @label
//	}
//
//	type Buy @edge(src: "User", dst: "Item") {
//	  weight: Float @weight
//	}
//
// Int, Float and String fields become int, float and string attribute
// columns in field order. A field marked @label makes the type labeled and a
// field marked @weight makes it weighted; neither counts as an attribute.
package graphschema

import (
	"fmt"
	"os"
	"strconv"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
)

const (
	directiveNode   = "node"
	directiveEdge   = "edge"
	directiveLabel  = "label"
	directiveWeight = "weight"
)

// LoadFile parses the SDL file at path.
func LoadFile(path string) (*Schema, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseSDL(path, string(b))
}

// ParseSDL parses a graph schema from GraphQL SDL. Node types are registered
// before edge types so edges may reference nodes declared later in the file.
func ParseSDL(name, source string) (*Schema, error) {
	doc, err := parser.ParseSchema(&ast.Source{Name: name, Input: source})
	if err != nil {
		return nil, fmt.Errorf("graphschema: parse %s: %w", name, err)
	}

	s := New()
	var edges []*ast.Definition
	for _, def := range doc.Definitions {
		if def.Kind != ast.Object {
			continue
		}
		switch {
		case def.Directives.ForName(directiveNode) != nil:
			dec, err := buildDecoder(def)
			if err != nil {
				return nil, err
			}
			if err := s.AddNode(def.Name, dec); err != nil {
				return nil, err
			}
		case def.Directives.ForName(directiveEdge) != nil:
			edges = append(edges, def)
		}
	}
	for _, def := range edges {
		d := def.Directives.ForName(directiveEdge)
		src, err := stringArg(d, "src")
		if err != nil {
			return nil, fmt.Errorf("graphschema: edge %s: %w", def.Name, err)
		}
		dst, err := stringArg(d, "dst")
		if err != nil {
			return nil, fmt.Errorf("graphschema: edge %s: %w", def.Name, err)
		}
		dec, err := buildDecoder(def)
		if err != nil {
			return nil, err
		}
		if err := s.AddEdge(def.Name, src, dst, dec); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func buildDecoder(def *ast.Definition) (*Decoder, error) {
	var (
		attrs             []Attr
		labeled, weighted bool
	)
	for _, f := range def.Fields {
		if f.Type == nil || f.Type.Elem != nil {
			return nil, fmt.Errorf("graphschema: %s.%s: list attributes are not supported", def.Name, f.Name)
		}
		named := f.Type.NamedType
		switch {
		case f.Directives.ForName(directiveLabel) != nil:
			if named != "Int" {
				return nil, fmt.Errorf("graphschema: %s.%s: @label requires Int, got %s", def.Name, f.Name, named)
			}
			labeled = true
			continue
		case f.Directives.ForName(directiveWeight) != nil:
			if named != "Float" {
				return nil, fmt.Errorf("graphschema: %s.%s: @weight requires Float, got %s", def.Name, f.Name, named)
			}
			weighted = true
			continue
		}
		var t AttrType
		switch named {
		case "Int":
			t = IntAttr
		case "Float":
			t = FloatAttr
		case "String":
			t = StringAttr
		default:
			return nil, fmt.Errorf("graphschema: %s.%s: unsupported attribute type %s", def.Name, f.Name, named)
		}
		attrs = append(attrs, Attr{Name: f.Name, Type: t})
	}
	return NewDecoder(attrs, labeled, weighted), nil
}

func stringArg(d *ast.Directive, name string) (string, error) {
	arg := d.Arguments.ForName(name)
	if arg == nil || arg.Value == nil {
		return "", fmt.Errorf("@%s requires argument %q", d.Name, name)
	}
	if arg.Value.Kind != ast.StringValue {
		return "", fmt.Errorf("@%s(%s:) must be a string, got %s", d.Name, name, strconv.Quote(arg.Value.Raw))
	}
	return arg.Value.Raw, nil
}
