package graphschema

import (
	"errors"
	"fmt"
)

// AttrType is the storage class of one attribute column.
type AttrType int

const (
	IntAttr AttrType = iota + 1
	FloatAttr
	StringAttr
)

func (t AttrType) String() string {
	switch t {
	case IntAttr:
		return "int"
	case FloatAttr:
		return "float"
	case StringAttr:
		return "string"
	}
	return "unknown"
}

// Attr names one attribute column of a node or edge type.
type Attr struct {
	Name string
	Type AttrType
}

// Decoder describes the attribute layout shared by every node or edge of a
// type. Decoders are immutable once built.
type Decoder struct {
	attrs    []Attr
	labeled  bool
	weighted bool

	intNum, floatNum, stringNum int
}

// NewDecoder builds a decoder from ordered attribute columns.
func NewDecoder(attrs []Attr, labeled, weighted bool) *Decoder {
	d := &Decoder{attrs: append([]Attr(nil), attrs...), labeled: labeled, weighted: weighted}
	for _, a := range attrs {
		switch a.Type {
		case IntAttr:
			d.intNum++
		case FloatAttr:
			d.floatNum++
		case StringAttr:
			d.stringNum++
		}
	}
	return d
}

// NewCountDecoder builds a decoder with anonymous attribute columns.
func NewCountDecoder(intNum, floatNum, stringNum int, labeled, weighted bool) *Decoder {
	attrs := make([]Attr, 0, intNum+floatNum+stringNum)
	for i := 0; i < intNum; i++ {
		attrs = append(attrs, Attr{Name: fmt.Sprintf("i%d", i), Type: IntAttr})
	}
	for i := 0; i < floatNum; i++ {
		attrs = append(attrs, Attr{Name: fmt.Sprintf("f%d", i), Type: FloatAttr})
	}
	for i := 0; i < stringNum; i++ {
		attrs = append(attrs, Attr{Name: fmt.Sprintf("s%d", i), Type: StringAttr})
	}
	return NewDecoder(attrs, labeled, weighted)
}

func (d *Decoder) IntAttrNum() int {
	if d == nil {
		return 0
	}
	return d.intNum
}

func (d *Decoder) FloatAttrNum() int {
	if d == nil {
		return 0
	}
	return d.floatNum
}

func (d *Decoder) StringAttrNum() int {
	if d == nil {
		return 0
	}
	return d.stringNum
}

func (d *Decoder) Labeled() bool  { return d != nil && d.labeled }
func (d *Decoder) Weighted() bool { return d != nil && d.weighted }

// Attrs returns the attribute columns in declaration order.
func (d *Decoder) Attrs() []Attr {
	if d == nil {
		return nil
	}
	return append([]Attr(nil), d.attrs...)
}

// FeatureSpec groups attribute names by storage class, in declaration order.
// Models use it to size embedding and dense input layers.
type FeatureSpec struct {
	Int      []string
	Float    []string
	String   []string
	Labeled  bool
	Weighted bool
}

// Dim returns the number of attribute columns.
func (f FeatureSpec) Dim() int { return len(f.Int) + len(f.Float) + len(f.String) }

func (d *Decoder) FeatureSpec() FeatureSpec {
	var fs FeatureSpec
	if d == nil {
		return fs
	}
	for _, a := range d.attrs {
		switch a.Type {
		case IntAttr:
			fs.Int = append(fs.Int, a.Name)
		case FloatAttr:
			fs.Float = append(fs.Float, a.Name)
		case StringAttr:
			fs.String = append(fs.String, a.Name)
		}
	}
	fs.Labeled, fs.Weighted = d.labeled, d.weighted
	return fs
}

// NodeType is a vertex type of the graph.
type NodeType struct {
	Name    string
	Decoder *Decoder
}

// EdgeType is a directed edge type between two node types.
type EdgeType struct {
	Name    string
	Src     string
	Dst     string
	Decoder *Decoder
}

var (
	ErrDuplicateType = errors.New("graphschema: duplicate type")
	ErrUnknownType   = errors.New("graphschema: unknown type")
)

// Schema is the ordered set of node and edge types of a graph.
type Schema struct {
	nodes     []*NodeType
	edges     []*EdgeType
	nodeIndex map[string]*NodeType
	edgeIndex map[string]*EdgeType
}

func New() *Schema {
	return &Schema{nodeIndex: map[string]*NodeType{}, edgeIndex: map[string]*EdgeType{}}
}

// AddNode registers a node type.
func (s *Schema) AddNode(name string, dec *Decoder) error {
	if _, ok := s.nodeIndex[name]; ok {
		return fmt.Errorf("%w: node %q", ErrDuplicateType, name)
	}
	nt := &NodeType{Name: name, Decoder: dec}
	s.nodes = append(s.nodes, nt)
	s.nodeIndex[name] = nt
	return nil
}

// AddEdge registers an edge type. Both endpoint node types must exist.
func (s *Schema) AddEdge(name, src, dst string, dec *Decoder) error {
	if _, ok := s.edgeIndex[name]; ok {
		return fmt.Errorf("%w: edge %q", ErrDuplicateType, name)
	}
	for _, end := range []string{src, dst} {
		if _, ok := s.nodeIndex[end]; !ok {
			return fmt.Errorf("%w: node %q referenced by edge %q", ErrUnknownType, end, name)
		}
	}
	et := &EdgeType{Name: name, Src: src, Dst: dst, Decoder: dec}
	s.edges = append(s.edges, et)
	s.edgeIndex[name] = et
	return nil
}

func (s *Schema) Node(name string) (*NodeType, bool) {
	nt, ok := s.nodeIndex[name]
	return nt, ok
}

func (s *Schema) Edge(name string) (*EdgeType, bool) {
	et, ok := s.edgeIndex[name]
	return et, ok
}

// NodeDecoder returns the decoder of a node type, or nil if unknown.
func (s *Schema) NodeDecoder(name string) *Decoder {
	if nt, ok := s.nodeIndex[name]; ok {
		return nt.Decoder
	}
	return nil
}

// EdgeDecoder returns the decoder of an edge type, or nil if unknown.
func (s *Schema) EdgeDecoder(name string) *Decoder {
	if et, ok := s.edgeIndex[name]; ok {
		return et.Decoder
	}
	return nil
}

// NodeTypes returns node type names in registration order.
func (s *Schema) NodeTypes() []string {
	out := make([]string, len(s.nodes))
	for i, n := range s.nodes {
		out[i] = n.Name
	}
	return out
}

// EdgeTypes returns edge type names in registration order.
func (s *Schema) EdgeTypes() []string {
	out := make([]string, len(s.edges))
	for i, e := range s.edges {
		out[i] = e.Name
	}
	return out
}
