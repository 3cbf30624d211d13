package codegen

import (
	"fmt"

	"github.com/relaycore/capnp/schema"
)

// emitInterface emits method ordinals and parameter/result type references
// for an interface node. RPC dispatch itself is out of scope, so no call
// machinery is generated, only the typed vocabulary a future RPC layer
// would need: which ordinal names which method, and which struct types
// carry its params and results.
func (e *emitter) emitInterface(n *schema.Node) error {
	name := exportedName(lastSegment(n.DisplayName))
	methodIDType := name + "_Method"

	e.w.writeln(fmt.Sprintf("type %s uint16", methodIDType))
	e.w.writeln("")
	e.w.writelni("const (")
	e.w.indent()
	for i, m := range n.Interface.Methods {
		e.w.writelni(fmt.Sprintf("%s_%s %s = %d", name, exportedName(m.Name), methodIDType, i))
	}
	e.w.unindent()
	e.w.writelni(")")
	e.w.writeln("")

	for _, m := range n.Interface.Methods {
		params := e.structTypeName(m.ParamsId)
		results := e.structTypeName(m.ResultsId)
		e.w.writeln(fmt.Sprintf("// %s_%s takes %s and returns %s.", name, exportedName(m.Name), params, results))
	}
	if len(n.Interface.Methods) > 0 {
		e.w.writeln("")
	}
	return nil
}
