package capnp

import "github.com/relaycore/capnp/internal/exc"

// defaultCloneDepth bounds Clone's recursion, matching the canonicalizer
// and reader depth limits (spec.md §6 clone_depth).
const defaultCloneDepth = 64

// Clone deep-copies the subgraph rooted at src into dst's message,
// preserving pointer kinds: a struct clones into a struct of the same
// shape, a list clones into a list of the same element-size class, an
// inline-composite list keeps its per-element layout, and a capability
// pointer clones the raw handle value rather than resolving it. Depth is
// bounded by defaultCloneDepth; exceeding it yields RecursionLimitExceeded
// instead of overflowing the call stack on a maliciously deep input.
func Clone(dst *Segment, src Ptr) (Ptr, error) {
	return cloneDepth(dst, src, defaultCloneDepth)
}

func cloneDepth(dst *Segment, src Ptr, depth uint) (Ptr, error) {
	if !src.IsValid() {
		return Ptr{}, nil
	}
	if depth == 0 {
		return Ptr{}, exc.New(exc.RecursionLimitExceeded, "clone", "pointer graph too deep")
	}
	switch src.flags.ptrType() {
	case structPtrType:
		return cloneStruct(dst, src.Struct(), depth)
	case listPtrType:
		return cloneList(dst, src.List(), depth)
	case interfacePtrType:
		i := src.Interface()
		return NewInterface(dst, i.Capability()).ToPtr(), nil
	default:
		return Ptr{}, nil
	}
}

func cloneStruct(dst *Segment, s Struct, depth uint) (Ptr, error) {
	out, err := NewStruct(dst, s.size)
	if err != nil {
		return Ptr{}, exc.WrapError("clone struct", err)
	}
	copy(out.seg.slice(out.off, out.size.DataSize), s.seg.slice(s.off, s.size.DataSize))
	for i := uint16(0); i < s.size.PointerCount; i++ {
		p, err := s.Ptr(i)
		if err != nil {
			return Ptr{}, exc.WrapError("clone struct pointer", err)
		}
		cp, err := cloneDepth(dst, p, depth-1)
		if err != nil {
			return Ptr{}, err
		}
		if err := out.SetPtr(i, cp); err != nil {
			return Ptr{}, exc.WrapError("clone struct pointer", err)
		}
	}
	return out.ToPtr(), nil
}

func cloneList(dst *Segment, l List, depth uint) (Ptr, error) {
	if l.flags&isBitList != 0 {
		out, err := NewBitList(dst, l.length)
		if err != nil {
			return Ptr{}, exc.WrapError("clone bit list", err)
		}
		for i := 0; i < l.Len(); i++ {
			out.SetBit(i, l.Bit(i))
		}
		return out.ToPtr(), nil
	}
	if l.flags&isCompositeList != 0 {
		out, err := NewCompositeList(dst, l.size, l.length)
		if err != nil {
			return Ptr{}, exc.WrapError("clone composite list", err)
		}
		for i := 0; i < l.Len(); i++ {
			p, err := cloneStruct(dst, l.Struct(i), depth-1)
			if err != nil {
				return Ptr{}, err
			}
			if err := out.SetStruct(i, p.Struct()); err != nil {
				return Ptr{}, exc.WrapError("clone composite list element", err)
			}
		}
		return out.ToPtr(), nil
	}
	if l.size.PointerCount == 1 && l.size.DataSize == 0 {
		out, err := NewPointerList(dst, l.length)
		if err != nil {
			return Ptr{}, exc.WrapError("clone pointer list", err)
		}
		for i := 0; i < l.Len(); i++ {
			p, err := PointerList(l).At(i)
			if err != nil {
				return Ptr{}, exc.WrapError("clone pointer list element", err)
			}
			cp, err := cloneDepth(dst, p, depth-1)
			if err != nil {
				return Ptr{}, err
			}
			if err := out.Set(i, cp); err != nil {
				return Ptr{}, exc.WrapError("clone pointer list element", err)
			}
		}
		return out.ToPtr(), nil
	}
	// Fixed-width primitive list (void/1/2/4/8-byte elements): a flat copy.
	out, err := newPrimitiveListOfSize(dst, l.size, l.length)
	if err != nil {
		return Ptr{}, exc.WrapError("clone list", err)
	}
	sz, _ := l.size.totalSize().times(l.length)
	copy(out.seg.slice(out.off, sz), l.seg.slice(l.off, sz))
	return out.ToPtr(), nil
}
