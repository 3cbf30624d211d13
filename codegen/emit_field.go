package codegen

import (
	"fmt"

	"github.com/relaycore/capnp/schema"
)

// emitField writes the getter (and, for mutable slots, setter/init) pair
// for one field of the struct or group named by typeName.
func (e *emitter) emitField(typeName string, owner *schema.Node, f schema.Field) error {
	if f.Kind == schema.GroupField {
		return e.emitGroupField(typeName, owner, f)
	}
	return e.emitSlotField(typeName, owner, f)
}

func (e *emitter) emitGroupField(typeName string, owner *schema.Node, f schema.Field) error {
	childName := e.groupChildName(typeName, owner, f.Group.TypeId)
	accessor := exportedName(f.Name)
	e.w.writeln(fmt.Sprintf("func (s %s) %s() %s { return %s{s.Struct} }", typeName, accessor, childName, childName))
	e.w.writeln("")
	return nil
}

func (e *emitter) groupChildName(parent string, owner *schema.Node, typeId uint64) string {
	for _, nested := range owner.NestedNodes {
		if nested.Id == typeId {
			return parent + "_" + exportedName(nested.Name)
		}
	}
	if n, ok := e.g.Node(typeId); ok {
		return parent + "_" + exportedName(lastSegment(n.DisplayName))
	}
	return parent + "_Group"
}

func (e *emitter) emitSlotField(typeName string, owner *schema.Node, f schema.Field) error {
	slot := f.Slot
	accessor := exportedName(f.Name)
	disc := discriminantFor(owner, f)

	if slot.Type.IsPointer() {
		return e.emitPointerField(typeName, accessor, slot, disc)
	}
	return e.emitDataField(typeName, accessor, slot, disc)
}

// discInfo carries the information a union member's setter needs to write
// its discriminant alongside its value: which 16-bit word in the data
// section holds the discriminant, and the tag this variant writes there.
type discInfo struct {
	isUnion    bool
	byteOffset int
	value      uint16
}

func discriminantFor(owner *schema.Node, f schema.Field) discInfo {
	if !f.IsUnionMember() || owner == nil || owner.Struct == nil {
		return discInfo{}
	}
	return discInfo{isUnion: true, byteOffset: int(owner.Struct.DiscriminantOffset) * 2, value: f.DiscriminantVal}
}

// writeDiscriminantSet emits the line that tags this union variant as
// active. Callers write it before the field's own value so a reader
// checking Which() after a partially-applied setter never observes a
// contradiction between the tag and the slot it's paired with.
func (e *emitter) writeDiscriminantSet(d discInfo) {
	if !d.isUnion {
		return
	}
	e.w.writelni(fmt.Sprintf("s.Struct.SetUint16(capnp.DataOffset(%d), %d)", d.byteOffset, d.value))
}

// emitDataField emits a getter/setter pair for a primitive, enum, bool or
// void slot. Non-bool, non-void slots carry a schema-declared default that
// the wire format XOR-encodes: the bits stored are (logical value) XOR
// (default), so a field whose default is nonzero reads back wrong unless
// the same mask is applied on every read and write. Bool defaults are
// XOR-encoded at the bit level the same way, just with a one-bit mask.
//
// When the field is a union member, its setter first writes the
// discriminant (via disc) so a reader calling Which() never observes a
// variant tag that disagrees with the slot it's paired with. No separate
// zero step precedes the value write: every branch below stores only this
// field's own width at its own offset, so bytes that a wider, previously
// active sibling variant wrote beyond that width are left unchanged.
func (e *emitter) emitDataField(typeName, accessor string, slot *schema.SlotField, disc discInfo) error {
	width := slot.Type.DataWidth()
	byteOff := int(slot.Offset) * width

	if slot.Type == schema.VoidType {
		e.w.writeln(fmt.Sprintf("func (s %s) %s() {}", typeName, accessor))
		e.w.writeln("")
		return nil
	}

	if slot.Type == schema.BoolType {
		defaultBit := slot.DefaultUint != 0
		e.w.writeln(fmt.Sprintf("func (s %s) %s() bool {", typeName, accessor))
		e.w.indent()
		e.w.writelni(fmt.Sprintf("return s.Struct.Bool(0, %d) != %t", slot.Offset, defaultBit))
		e.w.unindent()
		e.w.writeln("}")
		e.w.writeln("")

		e.w.writeln(fmt.Sprintf("func (s %s) Set%s(v bool) {", typeName, accessor))
		e.w.indent()
		e.writeDiscriminantSet(disc)
		e.w.writelni(fmt.Sprintf("s.Struct.SetBool(0, %d, v != %t)", slot.Offset, defaultBit))
		e.w.unindent()
		e.w.writeln("}")
		e.w.writeln("")
		return nil
	}

	goType, rawRead, _ := dataAccessors(slot.Type)
	enumName := goType
	if slot.Type == schema.EnumType {
		if n, ok := e.g.Node(slot.EnumId); ok {
			enumName = exportedName(lastSegment(n.DisplayName))
		}
	}
	mask := maskFor(width, slot.DefaultUint)
	rawSet := read2setName(rawRead)
	getExpr := fmt.Sprintf("s.Struct.%s(capnp.DataOffset(%d)) ^ %s", rawRead, byteOff, mask)

	switch slot.Type {
	case schema.Float32Type:
		e.usesMath = true
		e.w.writeln(fmt.Sprintf("func (s %s) %s() float32 {", typeName, accessor))
		e.w.indent()
		e.w.writelni(fmt.Sprintf("return math.Float32frombits(%s)", getExpr))
		e.w.unindent()
		e.w.writeln("}")
		e.w.writeln("")

		e.w.writeln(fmt.Sprintf("func (s %s) Set%s(v float32) {", typeName, accessor))
		e.w.indent()
		e.writeDiscriminantSet(disc)
		e.w.writelni(fmt.Sprintf("s.Struct.%s(capnp.DataOffset(%d), math.Float32bits(v) ^ %s)", rawSet, byteOff, mask))
		e.w.unindent()
		e.w.writeln("}")
		e.w.writeln("")
	case schema.Float64Type:
		e.usesMath = true
		e.w.writeln(fmt.Sprintf("func (s %s) %s() float64 {", typeName, accessor))
		e.w.indent()
		e.w.writelni(fmt.Sprintf("return math.Float64frombits(%s)", getExpr))
		e.w.unindent()
		e.w.writeln("}")
		e.w.writeln("")

		e.w.writeln(fmt.Sprintf("func (s %s) Set%s(v float64) {", typeName, accessor))
		e.w.indent()
		e.writeDiscriminantSet(disc)
		e.w.writelni(fmt.Sprintf("s.Struct.%s(capnp.DataOffset(%d), math.Float64bits(v) ^ %s)", rawSet, byteOff, mask))
		e.w.unindent()
		e.w.writeln("}")
		e.w.writeln("")
	case schema.EnumType:
		e.w.writeln(fmt.Sprintf("func (s %s) %s() %s {", typeName, accessor, enumName))
		e.w.indent()
		e.w.writelni(fmt.Sprintf("return %s(%s)", enumName, getExpr))
		e.w.unindent()
		e.w.writeln("}")
		e.w.writeln("")

		e.w.writeln(fmt.Sprintf("func (s %s) Set%s(v %s) {", typeName, accessor, enumName))
		e.w.indent()
		e.writeDiscriminantSet(disc)
		e.w.writelni(fmt.Sprintf("s.Struct.%s(capnp.DataOffset(%d), uint16(v) ^ %s)", rawSet, byteOff, mask))
		e.w.unindent()
		e.w.writeln("}")
		e.w.writeln("")
	default:
		e.w.writeln(fmt.Sprintf("func (s %s) %s() %s {", typeName, accessor, goType))
		e.w.indent()
		e.w.writelni(fmt.Sprintf("return %s(%s)", goType, getExpr))
		e.w.unindent()
		e.w.writeln("}")
		e.w.writeln("")

		e.w.writeln(fmt.Sprintf("func (s %s) Set%s(v %s) {", typeName, accessor, goType))
		e.w.indent()
		e.writeDiscriminantSet(disc)
		e.w.writelni(fmt.Sprintf("s.Struct.%s(capnp.DataOffset(%d), %s(v) ^ %s)", rawSet, byteOff, rawTypeFor(rawRead), mask))
		e.w.unindent()
		e.w.writeln("}")
		e.w.writeln("")
	}
	return nil
}

// maskFor formats slot.DefaultUint narrowed to width bytes as a hex
// literal, for XOR-ing against the raw wire word on read and write.
func maskFor(width int, def uint64) string {
	switch width {
	case 1:
		return fmt.Sprintf("0x%x", uint8(def))
	case 2:
		return fmt.Sprintf("0x%x", uint16(def))
	case 4:
		return fmt.Sprintf("0x%x", uint32(def))
	case 8:
		return fmt.Sprintf("0x%x", def)
	default:
		return "0x0"
	}
}

// dataAccessors maps a non-pointer, non-void, non-bool SlotType to its Go
// type and the Struct raw reader method backing it. Floats read/write
// through the raw integer accessor of matching width so the generated
// code can XOR the schema default against the bit pattern before
// converting to/from float.
func dataAccessors(t schema.SlotType) (goType, rawRead, rawWrite string) {
	switch t {
	case schema.Int8Type:
		return "int8", "Uint8", "SetUint8"
	case schema.Int16Type:
		return "int16", "Uint16", "SetUint16"
	case schema.Int32Type:
		return "int32", "Uint32", "SetUint32"
	case schema.Int64Type:
		return "int64", "Uint64", "SetUint64"
	case schema.UInt8Type:
		return "uint8", "Uint8", "SetUint8"
	case schema.UInt16Type:
		return "uint16", "Uint16", "SetUint16"
	case schema.UInt32Type:
		return "uint32", "Uint32", "SetUint32"
	case schema.UInt64Type:
		return "uint64", "Uint64", "SetUint64"
	case schema.Float32Type:
		return "float32", "Uint32", "SetUint32"
	case schema.Float64Type:
		return "float64", "Uint64", "SetUint64"
	case schema.EnumType:
		return "uint16", "Uint16", "SetUint16"
	default:
		return "uint64", "Uint64", "SetUint64"
	}
}

func read2setName(read string) string { return "Set" + read }
func rawTypeFor(read string) string {
	switch read {
	case "Uint8":
		return "uint8"
	case "Uint16":
		return "uint16"
	case "Uint32":
		return "uint32"
	case "Uint64":
		return "uint64"
	default:
		return "uint64"
	}
}

// emitPointerField writes the getter/setter (or getter/allocator) pair for
// a pointer-typed slot. The text and data setters of a union member null
// the pointer word with a null capnp.Ptr before writing the new value; the
// any-pointer setter and the New<Field> struct initializer write the slot
// directly through SetPtr/NewStructAt, which overwrites the same word.
func (e *emitter) emitPointerField(typeName, accessor string, slot *schema.SlotField, disc discInfo) error {
	idx := slot.Offset
	switch slot.Type {
	case schema.TextType:
		e.w.writeln(fmt.Sprintf("func (s %s) %s() (string, error) { return s.Struct.TextAt(%d) }", typeName, accessor, idx))
		e.w.writeln(fmt.Sprintf("func (s %s) Set%s(v string) error {", typeName, accessor))
		e.w.indent()
		e.writeDiscriminantSet(disc)
		e.writeUnionPointerClear(disc, idx)
		e.w.writelni(fmt.Sprintf("return s.Struct.SetText(%d, v)", idx))
		e.w.unindent()
		e.w.writeln("}")
		e.w.writeln("")
	case schema.DataType:
		e.w.writeln(fmt.Sprintf("func (s %s) %s() ([]byte, error) { return s.Struct.DataAt(%d) }", typeName, accessor, idx))
		e.w.writeln(fmt.Sprintf("func (s %s) Set%s(v []byte) error {", typeName, accessor))
		e.w.indent()
		e.writeDiscriminantSet(disc)
		e.writeUnionPointerClear(disc, idx)
		e.w.writelni(fmt.Sprintf("return s.Struct.SetData(%d, v)", idx))
		e.w.unindent()
		e.w.writeln("}")
		e.w.writeln("")
	case schema.StructType:
		childType := e.structTypeName(slot.StructId)
		dataSize, ptrCount := e.structShape(slot.StructId)
		e.w.writeln(fmt.Sprintf("func (s %s) %s() (%s, error) {", typeName, accessor, childType))
		e.w.indent()
		e.w.writelni(fmt.Sprintf("p, err := s.Struct.Ptr(%d)", idx))
		e.w.writelni("if err != nil {")
		e.w.indent()
		e.w.writelni(fmt.Sprintf("return %s{}, err", childType))
		e.w.unindent()
		e.w.writelni("}")
		e.w.writelni(fmt.Sprintf("return %s{p.Struct()}, nil", childType))
		e.w.unindent()
		e.w.writeln("}")
		e.w.writeln("")
		e.w.writeln(fmt.Sprintf("func (s %s) New%s() (%s, error) {", typeName, accessor, childType))
		e.w.indent()
		e.writeDiscriminantSet(disc)
		e.w.writelni(fmt.Sprintf("st, err := s.Struct.NewStructAt(%d, capnp.ObjectSize{DataSize: %d, PointerCount: %d})", idx, dataSize, ptrCount))
		e.w.writelni(fmt.Sprintf("return %s{st}, err", childType))
		e.w.unindent()
		e.w.writeln("}")
		e.w.writeln("")
	case schema.InterfaceType:
		e.w.writeln(fmt.Sprintf("func (s %s) %s() (capnp.Client, error) {", typeName, accessor))
		e.w.indent()
		e.w.writelni(fmt.Sprintf("p, err := s.Struct.Ptr(%d)", idx))
		e.w.writelni("if err != nil || !p.IsValid() {")
		e.w.indent()
		e.w.writelni("return nil, err")
		e.w.unindent()
		e.w.writelni("}")
		e.w.writelni("return p.Interface().Client(), nil")
		e.w.unindent()
		e.w.writeln("}")
		e.w.writeln("")
	case schema.AnyPointerType:
		e.w.writeln(fmt.Sprintf("func (s %s) %s() (capnp.Ptr, error) { return s.Struct.Ptr(%d) }", typeName, accessor, idx))
		e.w.writeln(fmt.Sprintf("func (s %s) Set%s(v capnp.Ptr) error {", typeName, accessor))
		e.w.indent()
		e.writeDiscriminantSet(disc)
		e.w.writelni(fmt.Sprintf("return s.Struct.SetPtr(%d, v)", idx))
		e.w.unindent()
		e.w.writeln("}")
		e.w.writeln("")
	case schema.ListType:
		return e.emitListField(typeName, accessor, slot)
	}
	return nil
}

// writeUnionPointerClear nulls out a union member's pointer slot ahead of
// writing its new value, so a previous variant's far-pointer never lingers
// behind the tag switch even if the subsequent write fails partway.
func (e *emitter) writeUnionPointerClear(disc discInfo, idx uint32) {
	if !disc.isUnion {
		return
	}
	e.w.writelni(fmt.Sprintf("if err := s.Struct.SetPtr(%d, capnp.Ptr{}); err != nil {", idx))
	e.w.indent()
	e.w.writelni("return err")
	e.w.unindent()
	e.w.writelni("}")
}

func (e *emitter) emitListField(typeName, accessor string, slot *schema.SlotField) error {
	idx := slot.Offset
	switch slot.ElemType {
	case schema.StructType:
		elemType := e.structTypeName(slot.StructId)
		e.w.writeln(fmt.Sprintf("func (s %s) %s() (capnp.List, error) {", typeName, accessor))
		e.w.indent()
		e.w.writelni(fmt.Sprintf("p, err := s.Struct.Ptr(%d)", idx))
		e.w.writelni("if err != nil {")
		e.w.indent()
		e.w.writelni("return capnp.List{}, err")
		e.w.unindent()
		e.w.writelni("}")
		e.w.writelni("return p.List(), nil")
		e.w.unindent()
		e.w.writeln("}")
		e.w.writeln(fmt.Sprintf("// %sAt returns the i'th element of the %s list as a %s.", accessor, accessor, elemType))
		e.w.writeln(fmt.Sprintf("func (s %s) %sAt(l capnp.List, i int) %s { return %s{l.Struct(i)} }", typeName, accessor, elemType, elemType))
		e.w.writeln("")
	case schema.TextType, schema.DataType, schema.ListType, schema.InterfaceType, schema.AnyPointerType:
		e.w.writeln(fmt.Sprintf("func (s %s) %s() (capnp.PointerList, error) {", typeName, accessor))
		e.w.indent()
		e.w.writelni(fmt.Sprintf("p, err := s.Struct.Ptr(%d)", idx))
		e.w.writelni("if err != nil {")
		e.w.indent()
		e.w.writelni("return capnp.PointerList{}, err")
		e.w.unindent()
		e.w.writelni("}")
		e.w.writelni("return capnp.PointerList(p.List()), nil")
		e.w.unindent()
		e.w.writeln("}")
		e.w.writeln("")
	case schema.BoolType:
		e.w.writeln(fmt.Sprintf("func (s %s) %s() (capnp.List, error) {", typeName, accessor))
		e.w.indent()
		e.w.writelni(fmt.Sprintf("p, err := s.Struct.Ptr(%d)", idx))
		e.w.writelni("if err != nil {")
		e.w.indent()
		e.w.writelni("return capnp.List{}, err")
		e.w.unindent()
		e.w.writelni("}")
		e.w.writelni("return p.List(), nil")
		e.w.unindent()
		e.w.writeln("}")
		e.w.writeln("")
	default:
		e.w.writeln(fmt.Sprintf("func (s %s) %s() (capnp.List, error) {", typeName, accessor))
		e.w.indent()
		e.w.writelni(fmt.Sprintf("p, err := s.Struct.Ptr(%d)", idx))
		e.w.writelni("if err != nil {")
		e.w.indent()
		e.w.writelni("return capnp.List{}, err")
		e.w.unindent()
		e.w.writelni("}")
		e.w.writelni("return p.List(), nil")
		e.w.unindent()
		e.w.writeln("}")
		e.w.writeln("")
	}
	return nil
}

func (e *emitter) structTypeName(id uint64) string {
	if n, ok := e.g.Node(id); ok {
		return exportedName(lastSegment(n.DisplayName))
	}
	return "capnp.Struct"
}

func (e *emitter) structShape(id uint64) (dataSizeBytes int, pointerCount int) {
	if n, ok := e.g.Node(id); ok && n.Struct != nil {
		return int(n.Struct.DataWordCount) * 8, int(n.Struct.PointerCount)
	}
	return 0, 0
}
