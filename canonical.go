package capnp

import (
	"github.com/relaycore/capnp/internal/exc"
	"github.com/relaycore/capnp/internal/str"
)

// Canonicalize encodes a struct into its canonical form (C9): a single
// segment with no segment table, default-valued fields trimmed from the
// struct's data and pointer sections, and struct-list elements shrunk to
// the shape actually used by the widest element. Equivalent structs always
// canonicalize to identical bytes regardless of the writer's allocation
// choices, which is what makes the form usable for hashing or signing.
//
// Canonicalize is deliberately schema-unaware: it trims trailing
// all-zero data words and trailing null pointers the same way regardless
// of the field's declared default, which is enough because XOR-encoded
// defaults already reduce "equals the schema default" to "is the zero
// word" on the wire, and pointer-typed fields default to null in the
// overwhelming majority of schemas.
func Canonicalize(s Struct) ([]byte, error) {
	msg, seg := NewSingleSegmentMessage(nil)
	if !s.IsValid() {
		if _, err := msg.allocRootPointerSpace(); err != nil {
			return nil, exc.WrapError("canonicalize", err)
		}
		return seg.Data(), nil
	}
	root, err := NewRootStruct(seg, canonicalStructSize(s))
	if err != nil {
		return nil, exc.WrapError("canonicalize", err)
	}
	if err := msg.SetRoot(root.ToPtr()); err != nil {
		return nil, exc.WrapError("canonicalize", err)
	}
	if err := fillCanonicalStruct(root, s); err != nil {
		return nil, exc.WrapError("canonicalize", err)
	}
	return seg.Data(), nil
}

func canonicalPtr(dst *Segment, p Ptr) (Ptr, error) {
	if !p.IsValid() {
		return Ptr{}, nil
	}
	switch p.flags.ptrType() {
	case structPtrType:
		ss, err := NewStruct(dst, canonicalStructSize(p.Struct()))
		if err != nil {
			return Ptr{}, exc.WrapError("struct", err)
		}
		if err := fillCanonicalStruct(ss, p.Struct()); err != nil {
			return Ptr{}, err
		}
		return ss.ToPtr(), nil
	case listPtrType:
		ll, err := canonicalList(dst, p.List())
		if err != nil {
			return Ptr{}, err
		}
		return ll.ToPtr(), nil
	case interfacePtrType:
		iface := NewInterface(dst, p.Interface().Capability())
		return iface.ToPtr(), nil
	default:
		panic("capnp: canonicalPtr: unreachable pointer type")
	}
}

func fillCanonicalStruct(dst, s Struct) error {
	copy(dst.seg.slice(dst.off, dst.size.DataSize), s.seg.slice(s.off, s.size.DataSize))
	for i := uint16(0); i < dst.size.PointerCount; i++ {
		p, err := s.Ptr(i)
		if err != nil {
			return exc.WrapError("struct pointer "+str.Utod(uint64(i)), err)
		}
		cp, err := canonicalPtr(dst.seg, p)
		if err != nil {
			return exc.WrapError("struct pointer "+str.Utod(uint64(i)), err)
		}
		if err := dst.SetPtr(i, cp); err != nil {
			return exc.WrapError("struct pointer "+str.Utod(uint64(i)), err)
		}
	}
	return nil
}

// canonicalStructSize finds the smallest ObjectSize that still holds every
// non-zero data word and non-null pointer s carries, scanning from the
// tail inward.
func canonicalStructSize(s Struct) ObjectSize {
	if !s.IsValid() {
		return ObjectSize{}
	}
	var sz ObjectSize
	for off := int32(s.size.DataSize); off >= int32(wordSize); off -= int32(wordSize) {
		if s.Uint64(DataOffset(off - int32(wordSize))) != 0 {
			sz.DataSize = Size(off)
			break
		}
	}
	for i := int32(s.size.PointerCount) - 1; i >= 0; i-- {
		if s.rawPointerAt(uint16(i)) != 0 {
			sz.PointerCount = uint16(i + 1)
			break
		}
	}
	return sz
}

func canonicalList(dst *Segment, l List) (List, error) {
	if !l.IsValid() {
		return List{}, nil
	}
	if l.size.PointerCount == 0 && l.flags&isCompositeList == 0 {
		sz := l.allocSize()
		newSeg, newAddr, err := alloc(dst, sz)
		if err != nil {
			return List{}, exc.WrapError("list", err)
		}
		cl := List{
			seg:        newSeg,
			off:        newAddr,
			length:     l.length,
			size:       l.size,
			flags:      l.flags,
			depthLimit: maxDepth,
		}
		end, _ := l.off.addSize(sz)
		copy(newSeg.data[newAddr:], l.seg.data[l.off:end])
		return cl, nil
	}
	if l.flags&isCompositeList == 0 {
		cl, err := NewPointerList(dst, l.length)
		if err != nil {
			return List{}, exc.WrapError("list", err)
		}
		for i := 0; i < l.Len(); i++ {
			p, err := PointerList(l).At(i)
			if err != nil {
				return List{}, exc.WrapError("list element "+str.Itod(int64(i)), err)
			}
			cp, err := canonicalPtr(dst, p)
			if err != nil {
				return List{}, exc.WrapError("list element "+str.Itod(int64(i)), err)
			}
			if err := cl.Set(i, cp); err != nil {
				return List{}, exc.WrapError("list element "+str.Itod(int64(i)), err)
			}
		}
		return List(cl), nil
	}

	var elemSize ObjectSize
	for i := 0; i < l.Len(); i++ {
		sz := canonicalStructSize(l.Struct(i))
		if sz.DataSize > elemSize.DataSize {
			elemSize.DataSize = sz.DataSize
		}
		if sz.PointerCount > elemSize.PointerCount {
			elemSize.PointerCount = sz.PointerCount
		}
	}
	cl, err := NewCompositeList(dst, elemSize, l.length)
	if err != nil {
		return List{}, exc.WrapError("list", err)
	}
	for i := 0; i < cl.Len(); i++ {
		if err := fillCanonicalStruct(cl.Struct(i), l.Struct(i)); err != nil {
			return List{}, exc.WrapError("list element "+str.Itod(int64(i)), err)
		}
	}
	return cl, nil
}
