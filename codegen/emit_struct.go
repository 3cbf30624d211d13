package codegen

import (
	"fmt"

	"github.com/relaycore/capnp/internal/exc"
	"github.com/relaycore/capnp/schema"
)

func (e *emitter) emitStruct(n *schema.Node) error {
	if n.Struct.IsGroup {
		// Groups are emitted inline by their enclosing struct/group's
		// field accessor, not as a standalone top-level type.
		return nil
	}
	name := exportedName(lastSegment(n.DisplayName))
	return e.emitStructBody(name, n)
}

// emitStructBody writes the Reader/Builder type for a struct or group
// node under the given Go type name.
func (e *emitter) emitStructBody(name string, n *schema.Node) error {
	sn := n.Struct

	e.w.writeln(fmt.Sprintf("type %s struct{ capnp.Struct }", name))
	e.w.writeln("")

	e.w.writeln(fmt.Sprintf("func New%s(s *capnp.Segment) (%s, error) {", name, name))
	e.w.indent()
	e.w.writelni(fmt.Sprintf("st, err := capnp.NewStruct(s, capnp.ObjectSize{DataSize: %d, PointerCount: %d})",
		int(sn.DataWordCount)*8, sn.PointerCount))
	e.w.writelni(fmt.Sprintf("return %s{st}, err", name))
	e.w.unindent()
	e.w.writeln("}")
	e.w.writeln("")

	e.w.writeln(fmt.Sprintf("func NewRoot%s(s *capnp.Segment) (%s, error) {", name, name))
	e.w.indent()
	e.w.writelni(fmt.Sprintf("st, err := capnp.NewRootStruct(s, capnp.ObjectSize{DataSize: %d, PointerCount: %d})",
		int(sn.DataWordCount)*8, sn.PointerCount))
	e.w.writelni(fmt.Sprintf("return %s{st}, err", name))
	e.w.unindent()
	e.w.writeln("}")
	e.w.writeln("")

	e.w.writeln(fmt.Sprintf("func ReadRoot%s(msg *capnp.Message) (%s, error) {", name, name))
	e.w.indent()
	e.w.writelni("p, err := msg.Root()")
	e.w.writelni("if err != nil {")
	e.w.indent()
	e.w.writelni(fmt.Sprintf("return %s{}, err", name))
	e.w.unindent()
	e.w.writelni("}")
	e.w.writelni(fmt.Sprintf("return %s{p.Struct()}, nil", name))
	e.w.unindent()
	e.w.writeln("}")
	e.w.writeln("")

	if sn.DiscriminantCount > 0 {
		if err := e.emitWhich(name, n); err != nil {
			return err
		}
	}

	for _, f := range sn.Fields {
		if err := e.emitField(name, n, f); err != nil {
			return exc.WrapError("field "+f.Name, err)
		}
	}

	for _, nested := range n.NestedNodes {
		child, ok := e.g.Node(nested.Id)
		if !ok || child.Kind != schema.StructNode || !child.Struct.IsGroup {
			continue
		}
		childName := name + "_" + exportedName(nested.Name)
		if err := e.emitStructBody(childName, child); err != nil {
			return err
		}
	}
	return nil
}

// emitWhich writes the Which() discriminant getter and the per-variant
// constants it returns. The setters that flip the discriminant (and, for
// text and data variants, first null the slot a previous variant left
// behind) are emitted alongside each field by
// emitField/emitDataField/emitPointerField, not here.
func (e *emitter) emitWhich(name string, n *schema.Node) error {
	whichType := name + "_Which"
	e.w.writeln(fmt.Sprintf("type %s uint16", whichType))
	e.w.writeln("")
	e.w.writelni("const (")
	e.w.indent()
	for _, f := range n.Struct.Fields {
		if !f.IsUnionMember() {
			continue
		}
		e.w.writelni(fmt.Sprintf("%s_%s %s = %d", name, exportedName(f.Name), whichType, f.DiscriminantVal))
	}
	e.w.unindent()
	e.w.writelni(")")
	e.w.writeln("")

	e.w.writeln(fmt.Sprintf("func (s %s) Which() %s {", name, whichType))
	e.w.indent()
	e.w.writelni(fmt.Sprintf("return %s(s.Struct.Uint16(capnp.DataOffset(%d)))", whichType, n.Struct.DiscriminantOffset*2))
	e.w.unindent()
	e.w.writeln("}")
	e.w.writeln("")
	return nil
}

func lastSegment(displayName string) string {
	for i := len(displayName) - 1; i >= 0; i-- {
		if displayName[i] == ':' || displayName[i] == '.' {
			return displayName[i+1:]
		}
	}
	return displayName
}
