package codegen

import (
	"fmt"

	"github.com/relaycore/capnp/schema"
)

func (e *emitter) emitEnum(n *schema.Node) error {
	name := exportedName(lastSegment(n.DisplayName))

	e.w.writeln(fmt.Sprintf("type %s uint16", name))
	e.w.writeln("")
	e.w.writelni("const (")
	e.w.indent()
	for i, enumerant := range n.Enum.Enumerants {
		e.w.writelni(fmt.Sprintf("%s_%s %s = %d", name, exportedName(enumerant), name, i))
	}
	e.w.unindent()
	e.w.writelni(")")
	e.w.writeln("")

	e.w.writeln(fmt.Sprintf("func (v %s) String() string {", name))
	e.w.indent()
	e.w.writelni("switch v {")
	for i, enumerant := range n.Enum.Enumerants {
		e.w.writelni(fmt.Sprintf("case %d:", i))
		e.w.indent()
		e.w.writelni(fmt.Sprintf("return %q", enumerant))
		e.w.unindent()
	}
	e.w.writelni("default:")
	e.w.indent()
	e.w.writelni(`return "unknown"`)
	e.w.unindent()
	e.w.writelni("}")
	e.w.unindent()
	e.w.writeln("}")
	e.w.writeln("")
	return nil
}
