package codegen

import (
	"fmt"
	"math"

	"github.com/relaycore/capnp/schema"
)

func (e *emitter) emitConst(n *schema.Node) error {
	name := exportedName(lastSegment(n.DisplayName))
	c := n.Const

	if c.Type.IsPointer() {
		// Pointer-valued consts (text, data, struct, list) would require
		// embedding a small constant message into the generated file;
		// not worth the complexity for a const that can just be read
		// from the schema file directly at the call site.
		e.w.writeln(fmt.Sprintf("// %s is a pointer-valued constant; its value is not embedded by codegen.", name))
		e.w.writeln("")
		return nil
	}

	goType, literal := constLiteral(c.Type, c.Value)
	e.w.writeln(fmt.Sprintf("const %s %s = %s", name, goType, literal))
	e.w.writeln("")
	return nil
}

func constLiteral(t schema.SlotType, bits uint64) (goType, literal string) {
	switch t {
	case schema.BoolType:
		if bits != 0 {
			return "bool", "true"
		}
		return "bool", "false"
	case schema.Int8Type:
		return "int8", fmt.Sprintf("%d", int8(bits))
	case schema.Int16Type:
		return "int16", fmt.Sprintf("%d", int16(bits))
	case schema.Int32Type:
		return "int32", fmt.Sprintf("%d", int32(bits))
	case schema.Int64Type:
		return "int64", fmt.Sprintf("%d", int64(bits))
	case schema.UInt8Type:
		return "uint8", fmt.Sprintf("%d", uint8(bits))
	case schema.UInt16Type:
		return "uint16", fmt.Sprintf("%d", uint16(bits))
	case schema.UInt32Type:
		return "uint32", fmt.Sprintf("%d", uint32(bits))
	case schema.UInt64Type:
		return "uint64", fmt.Sprintf("%d", bits)
	case schema.Float32Type:
		return "float32", fmt.Sprintf("%v", math.Float32frombits(uint32(bits)))
	case schema.Float64Type:
		return "float64", fmt.Sprintf("%v", math.Float64frombits(bits))
	case schema.EnumType:
		return "uint16", fmt.Sprintf("%d", uint16(bits))
	default:
		return "uint64", fmt.Sprintf("%d", bits)
	}
}
