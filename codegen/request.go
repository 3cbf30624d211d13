package codegen

import (
	capnp "github.com/relaycore/capnp"
	"github.com/relaycore/capnp/internal/exc"
	"github.com/relaycore/capnp/schema"
)

// Request is the parsed form of a CodeGeneratorRequest (C11): the flat
// node graph plus the list of files the driver must actually emit code
// for (a request may carry nodes from transitively imported files that
// were not directly requested).
type Request struct {
	Graph           *schema.Graph
	RequestedFiles  []RequestedFile
	CapnpVersion    string
}

// RequestedFile is one entry of the request's requested_files list.
type RequestedFile struct {
	Id          uint64
	DisplayName string
}

// Field offsets within the CodeGeneratorRequest's root struct, matching
// the layout described in spec.md §3 ("its root is a struct with fields
// nodes, requested_files, and capnp_version"). The parser is tolerant of
// additional trailing pointer fields per spec.md §6, since it only reads
// the three it understands.
const (
	reqNodesPtr          = 0
	reqRequestedFilesPtr = 1
	reqCapnpVersionPtr   = 2
)

// ParseRequest decodes an unpacked CodeGeneratorRequest message arriving
// on stdin into a Request.
func ParseRequest(msg *capnp.Message) (*Request, error) {
	root, err := msg.Root()
	if err != nil {
		return nil, exc.WrapError("parse request", err)
	}
	rs := root.Struct()
	if !rs.IsValid() {
		return nil, exc.New(exc.InvalidSchema, "parse request", "request root is not a struct")
	}

	nodesPtr, err := rs.Ptr(reqNodesPtr)
	if err != nil {
		return nil, exc.WrapError("parse request nodes", err)
	}
	nodeList := nodesPtr.List()
	nodes := make([]*schema.Node, 0, nodeList.Len())
	for i := 0; i < nodeList.Len(); i++ {
		n, err := parseNode(nodeList.Struct(i))
		if err != nil {
			return nil, exc.WrapError("parse node", err)
		}
		nodes = append(nodes, n)
	}

	filesPtr, err := rs.Ptr(reqRequestedFilesPtr)
	if err != nil {
		return nil, exc.WrapError("parse requested files", err)
	}
	fileList := filesPtr.List()
	files := make([]RequestedFile, 0, fileList.Len())
	for i := 0; i < fileList.Len(); i++ {
		fs := fileList.Struct(i)
		id := fs.Uint64(0)
		name, err := fs.TextAt(0)
		if err != nil {
			return nil, exc.WrapError("parse requested file name", err)
		}
		files = append(files, RequestedFile{Id: id, DisplayName: name})
	}

	version, err := rs.TextAt(reqCapnpVersionPtr)
	if err != nil {
		return nil, exc.WrapError("parse capnp_version", err)
	}

	return &Request{
		Graph:          schema.NewGraph(nodes),
		RequestedFiles: files,
		CapnpVersion:   version,
	}, nil
}

// Node struct layout: the data section starts with the 64-bit id, then
// the 64-bit scope id, then a u16 kind discriminant; pointer 0 is
// display_name, pointer 1 is nested_nodes, pointer 2 is the kind-specific
// body (struct/enum/interface/const/annotation info), encoded as its own
// sub-struct whose shape depends on the discriminant.
const (
	nodeIdOffset      = 0
	nodeScopeIdOffset = 8
	nodeKindOffset    = 16

	nodeDisplayNamePtr = 0
	nodeNestedNodesPtr = 1
	nodeBodyPtr        = 2
)

func parseNode(s capnp.Struct) (*schema.Node, error) {
	n := &schema.Node{
		Id:      s.Uint64(nodeIdOffset),
		ScopeId: s.Uint64(nodeScopeIdOffset),
		Kind:    schema.NodeKind(s.Uint16(nodeKindOffset)),
	}
	name, err := s.TextAt(nodeDisplayNamePtr)
	if err != nil {
		return nil, exc.WrapError("node display_name", err)
	}
	n.DisplayName = name

	nestedPtr, err := s.Ptr(nodeNestedNodesPtr)
	if err != nil {
		return nil, exc.WrapError("node nested_nodes", err)
	}
	nestedList := nestedPtr.List()
	for i := 0; i < nestedList.Len(); i++ {
		ns := nestedList.Struct(i)
		name, err := ns.TextAt(0)
		if err != nil {
			return nil, exc.WrapError("nested_node name", err)
		}
		n.NestedNodes = append(n.NestedNodes, schema.NestedNode{Name: name, Id: ns.Uint64(0)})
	}

	body, err := s.Ptr(nodeBodyPtr)
	if err != nil {
		return nil, exc.WrapError("node body", err)
	}
	bs := body.Struct()
	switch n.Kind {
	case schema.StructNode:
		sn, err := parseStructBody(bs)
		if err != nil {
			return nil, err
		}
		n.Struct = sn
	case schema.EnumNode:
		n.Enum = parseEnumBody(bs)
	case schema.InterfaceNode:
		n.Interface = parseInterfaceBody(bs)
	case schema.ConstNode:
		n.Const = parseConstBody(bs)
	case schema.AnnotationNode:
		n.Annotation = &schema.AnnotationNode{Type: schema.SlotType(bs.Uint16(0))}
	}
	return n, nil
}

const (
	structDataWordCountOffset      = 0
	structPointerCountOffset       = 2
	structDiscriminantCountOffset  = 4
	structDiscriminantOffsetOffset = 8
	structIsGroupOffset            = 12
	structFieldsPtr                = 0
)

func parseStructBody(s capnp.Struct) (*schema.StructNode, error) {
	sn := &schema.StructNode{
		DataWordCount:      s.Uint16(structDataWordCountOffset),
		PointerCount:       s.Uint16(structPointerCountOffset),
		DiscriminantCount:  s.Uint16(structDiscriminantCountOffset),
		DiscriminantOffset: s.Uint32(structDiscriminantOffsetOffset),
		IsGroup:            s.Uint8(structIsGroupOffset) != 0,
	}
	fieldsPtr, err := s.Ptr(structFieldsPtr)
	if err != nil {
		return nil, exc.WrapError("struct fields", err)
	}
	fl := fieldsPtr.List()
	for i := 0; i < fl.Len(); i++ {
		f, err := parseField(fl.Struct(i))
		if err != nil {
			return nil, err
		}
		sn.Fields = append(sn.Fields, f)
	}
	return sn, nil
}

const (
	fieldDiscriminantOffset = 0
	fieldKindOffset         = 2
	fieldNamePtr            = 0
	fieldSlotOrGroupPtr     = 1
)

func parseField(s capnp.Struct) (schema.Field, error) {
	f := schema.Field{
		DiscriminantVal: s.Uint16(fieldDiscriminantOffset),
		Kind:            schema.FieldKind(s.Uint16(fieldKindOffset)),
	}
	name, err := s.TextAt(fieldNamePtr)
	if err != nil {
		return f, exc.WrapError("field name", err)
	}
	f.Name = name

	bodyPtr, err := s.Ptr(fieldSlotOrGroupPtr)
	if err != nil {
		return f, exc.WrapError("field body", err)
	}
	body := bodyPtr.Struct()
	switch f.Kind {
	case schema.SlotField:
		f.Slot = &schema.SlotField{
			Offset:             body.Uint32(0),
			Type:               schema.SlotType(body.Uint16(4)),
			ElemType:           schema.SlotType(body.Uint16(6)),
			StructId:           body.Uint64(8),
			EnumId:             body.Uint64(16),
			InterfaceId:        body.Uint64(24),
			HadExplicitDefault: body.Uint8(32) != 0,
			DefaultUint:        body.Uint64(40),
		}
	case schema.GroupField:
		f.Group = &schema.GroupField{TypeId: body.Uint64(0)}
	}
	return f, nil
}

func parseEnumBody(s capnp.Struct) *schema.EnumNode {
	en := &schema.EnumNode{}
	listPtr, err := s.Ptr(0)
	if err != nil || !listPtr.IsValid() {
		return en
	}
	l := listPtr.List()
	for i := 0; i < l.Len(); i++ {
		name, err := l.Struct(i).TextAt(0)
		if err != nil {
			continue
		}
		en.Enumerants = append(en.Enumerants, name)
	}
	return en
}

func parseInterfaceBody(s capnp.Struct) *schema.InterfaceNode {
	iface := &schema.InterfaceNode{}
	methodsPtr, err := s.Ptr(0)
	if err != nil || !methodsPtr.IsValid() {
		return iface
	}
	ml := methodsPtr.List()
	for i := 0; i < ml.Len(); i++ {
		ms := ml.Struct(i)
		name, _ := ms.TextAt(0)
		iface.Methods = append(iface.Methods, schema.Method{
			Name:      name,
			ParamsId:  ms.Uint64(0),
			ResultsId: ms.Uint64(8),
		})
	}
	superPtr, err := s.Ptr(1)
	if err == nil && superPtr.IsValid() {
		sl := superPtr.List()
		for i := 0; i < sl.Len(); i++ {
			iface.Superclasses = append(iface.Superclasses, sl.UInt64(i))
		}
	}
	return iface
}

func parseConstBody(s capnp.Struct) *schema.ConstNode {
	return &schema.ConstNode{
		Type:  schema.SlotType(s.Uint16(0)),
		Value: s.Uint64(8),
	}
}
