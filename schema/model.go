// Package schema models the node graph a CodeGeneratorRequest describes
// (C10): files, structs, enums, interfaces, consts and annotations, each
// identified by a stable 64-bit id, plus the validator (C8) that walks a
// parsed message against that graph.
package schema

import "github.com/relaycore/capnp/internal/exc"

// NodeKind tags which variant of the Node union is populated.
type NodeKind uint8

const (
	FileNode NodeKind = iota
	StructNode
	EnumNode
	InterfaceNode
	ConstNode
	AnnotationNode
)

func (k NodeKind) String() string {
	switch k {
	case FileNode:
		return "file"
	case StructNode:
		return "struct"
	case EnumNode:
		return "enum"
	case InterfaceNode:
		return "interface"
	case ConstNode:
		return "const"
	case AnnotationNode:
		return "annotation"
	default:
		return "unknown"
	}
}

// A Node is one entry in the schema graph. Its stable Id is how fields,
// consts and interface methods refer to a type across schema versions.
type Node struct {
	Id          uint64
	ScopeId     uint64
	DisplayName string
	Kind        NodeKind

	Struct      *StructNode
	Enum        *EnumNode
	Interface   *InterfaceNode
	Const       *ConstNode
	Annotation  *AnnotationNode
	NestedNodes []NestedNode
}

// NestedNode names a Node declared lexically inside another (e.g. a group
// or a nested struct), keyed by its unqualified name.
type NestedNode struct {
	Name string
	Id   uint64
}

// StructNode is the struct/group variant of Node.
type StructNode struct {
	DataWordCount      uint16
	PointerCount       uint16
	DiscriminantCount  uint16
	DiscriminantOffset uint32
	IsGroup            bool
	Fields             []Field
}

// FieldKind tags which variant of the Field union is populated.
type FieldKind uint8

const (
	SlotField FieldKind = iota
	GroupField
)

// NoDiscriminant is the sentinel marking a field as not belonging to a
// union.
const NoDiscriminant = 0xFFFF

// A Field is either a slot (primitive/pointer data at a fixed offset) or a
// group (a nested struct sharing the enclosing struct's data).
type Field struct {
	Name            string
	Kind            FieldKind
	DiscriminantVal uint16

	Slot  *SlotField
	Group *GroupField
}

// IsUnionMember reports whether f belongs to a union discriminant, as
// opposed to being an always-present field.
func (f Field) IsUnionMember() bool { return f.DiscriminantVal != NoDiscriminant }

// SlotType enumerates the shapes a slot's value can take for validation
// and code generation purposes.
type SlotType uint8

const (
	VoidType SlotType = iota
	BoolType
	Int8Type
	Int16Type
	Int32Type
	Int64Type
	UInt8Type
	UInt16Type
	UInt32Type
	UInt64Type
	Float32Type
	Float64Type
	TextType
	DataType
	StructType
	ListType
	EnumType
	InterfaceType
	AnyPointerType
)

// IsPointer reports whether t occupies a pointer slot rather than the
// struct's flat data section.
func (t SlotType) IsPointer() bool {
	switch t {
	case TextType, DataType, StructType, ListType, InterfaceType, AnyPointerType:
		return true
	default:
		return false
	}
}

// DataWidth returns the number of bytes a non-pointer slot of type t
// occupies in the struct's data section. Bool is width 0 here; its bit
// offset is tracked separately, as in the wire format.
func (t SlotType) DataWidth() int {
	switch t {
	case VoidType, BoolType:
		return 0
	case Int8Type, UInt8Type:
		return 1
	case Int16Type, UInt16Type, EnumType:
		return 2
	case Int32Type, UInt32Type, Float32Type:
		return 4
	case Int64Type, UInt64Type, Float64Type:
		return 8
	default:
		return 0
	}
}

// SlotField is the leaf data/pointer-carrying variant of Field.
type SlotField struct {
	Offset    uint32 // element offset, in units of the type's own width
	Type      SlotType
	ElemType  SlotType // for ListType, the element type
	StructId  uint64   // for StructType/ListType-of-struct, the referenced struct node
	EnumId    uint64   // for EnumType, the referenced enum node
	InterfaceId uint64 // for InterfaceType, the referenced interface node
	HadExplicitDefault bool
	DefaultUint        uint64 // XOR default for primitive/enum slots
}

// GroupField is the group variant of Field: it names another StructNode
// (always IsGroup) that shares the enclosing struct's data section.
type GroupField struct {
	TypeId uint64
}

// EnumNode lists an enum's enumerants in declaration order; a field's
// ordinal is its index in this slice.
type EnumNode struct {
	Enumerants []string
}

// InterfaceNode lists method signatures by name; bodies are out of scope
// (RPC is a non-goal), so only enough is modeled to emit method stubs.
type InterfaceNode struct {
	Methods      []Method
	Superclasses []uint64
}

// Method names an interface method and its parameter/result struct nodes.
type Method struct {
	Name       string
	ParamsId   uint64
	ResultsId  uint64
}

// ConstNode is a named constant value.
type ConstNode struct {
	Type  SlotType
	Value uint64
}

// AnnotationNode marks the target kinds an annotation may be applied to;
// annotation values themselves are not modeled (consumed, not interpreted,
// by this implementation, matching spec.md's scope for C10).
type AnnotationNode struct {
	Type SlotType
}

// Graph is an immutable schema: once loaded, Graph is shared read-only
// across goroutines (spec.md §5 "Shared resources").
type Graph struct {
	nodes map[uint64]*Node
}

// NewGraph builds a Graph from a flat node list, as a CodeGeneratorRequest
// provides it.
func NewGraph(nodes []*Node) *Graph {
	g := &Graph{nodes: make(map[uint64]*Node, len(nodes))}
	for _, n := range nodes {
		g.nodes[n.Id] = n
	}
	return g
}

// Node looks up a node by id.
func (g *Graph) Node(id uint64) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// MustStruct looks up id and asserts it names a struct/group node.
func (g *Graph) MustStruct(id uint64) (*Node, error) {
	n, ok := g.nodes[id]
	if !ok || n.Kind != StructNode {
		return nil, exc.Raise(exc.InvalidSchema, "lookup struct node", "node %d is not a struct", id)
	}
	return n, nil
}

// MustEnum looks up id and asserts it names an enum node.
func (g *Graph) MustEnum(id uint64) (*Node, error) {
	n, ok := g.nodes[id]
	if !ok || n.Kind != EnumNode {
		return nil, exc.Raise(exc.InvalidSchema, "lookup enum node", "node %d is not an enum", id)
	}
	return n, nil
}
