package schema

import (
	"github.com/relaycore/capnp/internal/exc"
	"github.com/relaycore/capnp/internal/str"

	capnp "github.com/relaycore/capnp"
)

// Options configures a Validate run. TraversalLimitWords is the
// validator's own word budget; pointer reads made while validating also
// debit the message's read limiter, so the two limits apply independently
// (spec.md §4.8).
type Options struct {
	TraversalLimitWords  uint64
	NestingLimit         uint
	SegmentCountLimit    int64
	StrictTextTermination bool
	RequireStructSize    bool
}

// DefaultOptions mirrors the package-wide defaults from spec.md §6.
func DefaultOptions() Options {
	return Options{
		TraversalLimitWords: 8 * 1024 * 1024,
		NestingLimit:        128,
		SegmentCountLimit:   512,
	}
}

// Validate walks msg's root pointer, guided by the struct node rootId in
// g, checking every field against its declared schema type (C8).
func Validate(g *Graph, rootId uint64, msg *capnp.Message, opts Options) error {
	if opts.NestingLimit == 0 {
		opts = DefaultOptions()
	}
	if int64(msg.NumSegments()) > opts.SegmentCountLimit && opts.SegmentCountLimit > 0 {
		return exc.New(exc.SegmentCountLimitExceeded, "validate", "message exceeds segment count limit")
	}
	root, err := msg.Root()
	if err != nil {
		return exc.WrapError("validate", err)
	}
	v := &validator{
		g:         g,
		budget:    opts.TraversalLimitWords,
		maxDepth:  opts.NestingLimit,
		strict:    opts.StrictTextTermination,
		reqSize:   opts.RequireStructSize,
	}
	return v.checkStruct(rootId, root.Struct(), 0, nil)
}

type validator struct {
	g        *Graph
	budget   uint64
	maxDepth uint
	strict   bool
	reqSize  bool
}

func (v *validator) debit(words uint64) error {
	if v.budget < words {
		return exc.New(exc.TraversalLimitExceeded, "validate", "traversal limit exceeded")
	}
	v.budget -= words
	return nil
}

// checkStruct validates s against the schema struct nodeId, at the given
// depth, with groupChain tracking the group-node ids visited since the
// last pointer boundary (for the cycle guard).
func (v *validator) checkStruct(nodeId uint64, s capnp.Struct, depth uint, groupChain map[uint64]bool) error {
	if depth > v.maxDepth {
		return exc.New(exc.SchemaRecursionLimitExceeded, "validate", "schema nesting too deep")
	}
	node, err := v.g.MustStruct(nodeId)
	if err != nil {
		return err
	}
	sn := node.Struct
	if v.reqSize && s.IsValid() {
		if s.Size().DataSize < capnp.Size(sn.DataWordCount)*8 || s.Size().PointerCount < sn.PointerCount {
			return exc.New(exc.StructSizeTooSmall, "validate", "struct "+node.DisplayName+" smaller than schema declares")
		}
	}
	if err := v.debit(uint64(sn.DataWordCount) + uint64(sn.PointerCount)); err != nil {
		return err
	}

	var discriminant uint16
	if sn.DiscriminantCount > 0 {
		discriminant = s.Uint16(capnp.DataOffset(sn.DiscriminantOffset * 2))
	}

	for _, f := range sn.Fields {
		if f.IsUnionMember() && f.DiscriminantVal != discriminant {
			continue
		}
		if err := v.checkField(node, f, s, depth, groupChain); err != nil {
			return exc.WrapError("field "+f.Name, err)
		}
	}
	return nil
}

func (v *validator) checkField(owner *Node, f Field, s capnp.Struct, depth uint, groupChain map[uint64]bool) error {
	switch f.Kind {
	case GroupField:
		chain := groupChain
		if chain == nil {
			chain = map[uint64]bool{}
		} else {
			// copy so siblings don't see each other's visited groups
			cp := make(map[uint64]bool, len(chain))
			for k := range chain {
				cp[k] = true
			}
			chain = cp
		}
		if chain[f.Group.TypeId] {
			return exc.New(exc.SchemaCycleDetected, "validate", "group cycle detected")
		}
		chain[f.Group.TypeId] = true
		return v.checkStruct(f.Group.TypeId, s, depth, chain)
	case SlotField:
		return v.checkSlot(f.Slot, s, depth)
	default:
		return nil
	}
}

func (v *validator) checkSlot(slot *SlotField, s capnp.Struct, depth uint) error {
	switch slot.Type {
	case VoidType, BoolType, Int8Type, Int16Type, Int32Type, Int64Type,
		UInt8Type, UInt16Type, UInt32Type, UInt64Type, Float32Type, Float64Type:
		return nil
	case EnumType:
		raw := s.Uint16(capnp.DataOffset(slot.Offset * 2))
		ordinal := raw ^ uint16(slot.DefaultUint)
		en, err := v.g.MustEnum(slot.EnumId)
		if err != nil {
			return err
		}
		if int(ordinal) >= len(en.Enum.Enumerants) {
			return exc.Raise(exc.InvalidEnumValue, "validate", "enum ordinal %s out of range", str.Utod(uint64(ordinal)))
		}
		return nil
	case TextType:
		p, err := s.Ptr(uint16(slot.Offset))
		if err != nil {
			return exc.WrapError("resolve text pointer", err)
		}
		if !p.IsValid() {
			return nil
		}
		if v.strict {
			if _, err := p.TextStrict(); err != nil {
				return err
			}
		} else if _, err := p.Text(); err != nil {
			return err
		}
		return v.debit(uint64(p.List().Len()+7) / 8)
	case DataType:
		p, err := s.Ptr(uint16(slot.Offset))
		if err != nil {
			return exc.WrapError("resolve data pointer", err)
		}
		if !p.IsValid() {
			return nil
		}
		if _, err := p.Data(); err != nil {
			return err
		}
		return v.debit(uint64(p.List().Len()+7) / 8)
	case StructType:
		p, err := s.Ptr(uint16(slot.Offset))
		if err != nil {
			return exc.WrapError("resolve struct pointer", err)
		}
		if !p.IsValid() {
			return nil
		}
		return v.checkStruct(slot.StructId, p.Struct(), depth+1, nil)
	case ListType:
		p, err := s.Ptr(uint16(slot.Offset))
		if err != nil {
			return exc.WrapError("resolve list pointer", err)
		}
		if !p.IsValid() {
			return nil
		}
		return v.checkList(slot, p.List(), depth+1)
	case InterfaceType:
		p, err := s.Ptr(uint16(slot.Offset))
		if err != nil {
			return exc.WrapError("resolve interface pointer", err)
		}
		if p.IsValid() && !p.Interface().IsValid() {
			return exc.New(exc.InvalidPointer, "validate", "expected capability pointer")
		}
		return nil
	case AnyPointerType:
		return nil
	default:
		return nil
	}
}

func (v *validator) checkList(slot *SlotField, l capnp.List, depth uint) error {
	if err := v.debit(uint64(l.Len())); err != nil {
		return err
	}
	if slot.ElemType == StructType {
		for i := 0; i < l.Len(); i++ {
			if err := v.checkStruct(slot.StructId, l.Struct(i), depth+1, nil); err != nil {
				return exc.WrapError("list element "+str.Itod(int64(i)), err)
			}
		}
		return nil
	}
	if slot.ElemType == BoolType {
		if !l.IsBitList() {
			return exc.New(exc.InvalidListElementSize, "validate", "schema declares a bit list but the wire list is not one")
		}
		return nil
	}
	if l.IsBitList() || l.IsComposite() {
		return exc.New(exc.InvalidListElementSize, "validate", "wire list shape does not match schema element type")
	}
	if slot.ElemType.IsPointer() {
		return nil
	}
	if l.ElementDataBytes() != slot.ElemType.DataWidth() {
		return exc.New(exc.InvalidListElementSize, "validate", "list element width does not match schema")
	}
	return nil
}
