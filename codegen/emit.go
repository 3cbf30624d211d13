package codegen

import (
	"fmt"
	"io"

	capnp "github.com/relaycore/capnp"
	"github.com/relaycore/capnp/internal/exc"
	"github.com/relaycore/capnp/schema"
)

// emitter walks a schema.Node tree and writes the corresponding Go source
// into w, dispatching per node kind the way a visitor-style code
// generator does.
type emitter struct {
	g           *schema.Graph
	w           *outputWriter
	packageName string

	// usesMath is set once a field with a floating-point XOR-encoded
	// default requires math.Float32bits/frombits, so the prelude can
	// import "math" only when the generated body actually calls it.
	usesMath bool
}

func newEmitter(g *schema.Graph, packageName string) *emitter {
	return &emitter{g: g, w: newOutputWriter(), packageName: packageName}
}

// prelude returns the package clause and import block for the file
// accumulated in e.w. It is built after the body so the import block can
// be tailored to what the body actually uses (see usesMath).
func (e *emitter) prelude() string {
	var p outputWriter
	p.writeln("// Code generated by capnpc-go-core. DO NOT EDIT.")
	p.writeln("")
	p.writelni("package " + e.packageName)
	p.writeln("")
	p.writelni(`import (`)
	p.indent()
	if e.usesMath {
		p.writelni(`"math"`)
		p.writeln("")
	}
	p.writelni(`capnp "github.com/relaycore/capnp"`)
	p.unindent()
	p.writelni(`)`)
	p.writeln("")
	return p.String()
}

func (e *emitter) visitNode(n *schema.Node) error {
	switch n.Kind {
	case schema.StructNode:
		return e.emitStruct(n)
	case schema.EnumNode:
		return e.emitEnum(n)
	case schema.InterfaceNode:
		return e.emitInterface(n)
	case schema.ConstNode:
		return e.emitConst(n)
	case schema.AnnotationNode:
		return e.emitAnnotation(n)
	default:
		return exc.Raise(exc.InvalidSchema, "emit", "unknown node kind %s for %s", n.Kind, n.DisplayName)
	}
}

// emitAnnotation writes a placeholder describing an annotation's
// declaration. Annotations have no runtime effect on generated types, but
// their declaration must still surface in the generated file rather than
// being silently dropped.
func (e *emitter) emitAnnotation(n *schema.Node) error {
	name := exportedName(lastSegment(n.DisplayName))
	target := "an unspecified target"
	if n.Annotation != nil {
		goType, _, _ := dataAccessors(n.Annotation.Type)
		target = "values of type " + goType
	}
	e.w.writeln(fmt.Sprintf("// %s is declared as an annotation (id %#x) applicable to %s.", name, n.Id, target))
	e.w.writeln("// It has no runtime representation; the value attached at each use site is not retained by codegen.")
	e.w.writeln(fmt.Sprintf("const %s_AnnotationId uint64 = %#x", name, n.Id))
	e.w.writeln("")
	return nil
}

// decodeRequestMessage reads all of r and parses it as an unpacked
// CodeGeneratorRequest stream.
func decodeRequestMessage(r io.Reader) (*capnp.Message, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, exc.WrapError("read request", err)
	}
	msg, err := capnp.Unmarshal(data)
	if err != nil {
		return nil, exc.WrapError("decode request", err)
	}
	return msg, nil
}
