package capnp

import (
	"encoding/binary"

	"github.com/relaycore/capnp/internal/exc"
)

// A SegmentID is a numeric identifier for a Segment, unique within the
// owning Message.
type SegmentID uint32

// A Segment is an 8-byte-aligned, append-only byte buffer owned by a
// Message (C1). Readers treat it as immutable; only the allocator grows
// it during building.
type Segment struct {
	msg  *Message
	id   SegmentID
	data []byte
}

// Message returns the message that contains s.
func (s *Segment) Message() *Message { return s.msg }

// ID returns the segment's ID.
func (s *Segment) ID() SegmentID { return s.id }

// Data returns the raw byte slice backing the segment.
func (s *Segment) Data() []byte { return s.data }

func (s *Segment) inBounds(addr Address) bool {
	return addr < Address(len(s.data))
}

func (s *Segment) regionInBounds(base Address, sz Size) bool {
	return checkBounds(len(s.data), base, sz)
}

// slice returns s.data[base:base+sz]. Callers must have already bounds
// checked base/sz with regionInBounds; this is the one place that would
// panic instead of returning OutOfBounds if that invariant were violated.
func (s *Segment) slice(base Address, sz Size) []byte {
	return s.data[base : base+Address(sz)]
}

func (s *Segment) readUint8(addr Address) uint8  { return s.slice(addr, 1)[0] }
func (s *Segment) readUint16(addr Address) uint16 {
	return binary.LittleEndian.Uint16(s.slice(addr, 2))
}
func (s *Segment) readUint32(addr Address) uint32 {
	return binary.LittleEndian.Uint32(s.slice(addr, 4))
}
func (s *Segment) readUint64(addr Address) uint64 {
	return binary.LittleEndian.Uint64(s.slice(addr, 8))
}

func (s *Segment) readRawPointer(addr Address) rawPointer {
	return rawPointer(s.readUint64(addr))
}

func (s *Segment) writeUint8(addr Address, v uint8)   { s.slice(addr, 1)[0] = v }
func (s *Segment) writeUint16(addr Address, v uint16) { binary.LittleEndian.PutUint16(s.slice(addr, 2), v) }
func (s *Segment) writeUint32(addr Address, v uint32) { binary.LittleEndian.PutUint32(s.slice(addr, 4), v) }
func (s *Segment) writeUint64(addr Address, v uint64) { binary.LittleEndian.PutUint64(s.slice(addr, 8), v) }

func (s *Segment) writeRawPointer(addr Address, v rawPointer) {
	s.writeUint64(addr, uint64(v))
}

// root returns a one-element pointer list referencing the first word of
// the segment. Only meaningful on segment 0.
func (s *Segment) root() (PointerList, bool) {
	sz := ObjectSize{PointerCount: 1}
	if !s.regionInBounds(0, sz.totalSize()) {
		return PointerList{}, false
	}
	return PointerList(List{
		seg:        s,
		length:     1,
		size:       sz,
		depthLimit: s.msg.depthLimit(),
	}), true
}

func (s *Segment) lookupSegment(id SegmentID) (*Segment, error) {
	if s.id == id {
		return s, nil
	}
	return s.msg.Segment(id)
}

// readPtr resolves (possibly through one or two far-pointer hops) the
// pointer word at paddr and returns the Ptr it names.
func (s *Segment) readPtr(paddr Address, depthLimit uint) (Ptr, error) {
	dst, base, val, err := s.resolveFarPointer(paddr)
	if err != nil {
		return Ptr{}, err
	}
	if val == 0 {
		return Ptr{}, nil
	}
	if depthLimit == 0 {
		return Ptr{}, exc.New(exc.NestingLimitExceeded, "read pointer", "nesting limit reached")
	}
	switch val.pointerType() {
	case structPointer:
		sp, err := dst.readStructPtr(base, val)
		if err != nil {
			return Ptr{}, err
		}
		if !dst.msg.canRead(sp.readSize()) {
			return Ptr{}, exc.New(exc.TraversalLimitExceeded, "read pointer", "traversal limit reached")
		}
		sp.depthLimit = depthLimit - 1
		return sp.ToPtr(), nil
	case listPointer:
		lp, err := dst.readListPtr(base, val)
		if err != nil {
			return Ptr{}, err
		}
		if !dst.msg.canRead(lp.readSize()) {
			return Ptr{}, exc.New(exc.TraversalLimitExceeded, "read pointer", "traversal limit reached")
		}
		lp.depthLimit = depthLimit - 1
		return lp.ToPtr(), nil
	case otherPointer:
		if val.otherPointerType() != 0 {
			return Ptr{}, exc.New(exc.InvalidPointer, "read pointer", "unknown capability pointer variant")
		}
		return Interface{seg: dst, cap: val.capabilityIndex()}.ToPtr(), nil
	default:
		return Ptr{}, exc.New(exc.InvalidFarPointer, "read pointer", "landing pad did not resolve to struct/list/capability")
	}
}

func (s *Segment) readStructPtr(base Address, val rawPointer) (Struct, error) {
	addr, ok := val.offset().resolve(base)
	if !ok {
		return Struct{}, exc.New(exc.OffsetOverflow, "read struct pointer", "offset overflow")
	}
	sz := val.structSize()
	if !s.regionInBounds(addr, sz.totalSize()) {
		return Struct{}, exc.New(exc.OutOfBounds, "read struct pointer", "struct out of bounds")
	}
	return Struct{seg: s, off: addr, size: sz}, nil
}

func (s *Segment) readListPtr(base Address, val rawPointer) (List, error) {
	addr, ok := val.offset().resolve(base)
	if !ok {
		return List{}, exc.New(exc.OffsetOverflow, "read list pointer", "offset overflow")
	}
	lsize, ok := val.totalListSize()
	if !ok {
		return List{}, exc.New(exc.OffsetOverflow, "read list pointer", "list size overflow")
	}
	if !s.regionInBounds(addr, lsize) {
		return List{}, exc.New(exc.OutOfBounds, "read list pointer", "list out of bounds")
	}
	lt := val.listType()
	switch lt {
	case compositeList:
		hdr := s.readRawPointer(addr)
		addr, ok = addr.addSize(wordSize)
		if !ok {
			return List{}, exc.New(exc.OffsetOverflow, "read list pointer", "tag offset overflow")
		}
		if hdr.pointerType() != structPointer {
			return List{}, exc.New(exc.InvalidInlineCompositePointer, "read list pointer", "tag word is not a struct pointer")
		}
		sz := hdr.structSize()
		n := int32(hdr.offset())
		tsize, ok := sz.totalSize().times(n)
		if !ok {
			return List{}, exc.New(exc.OffsetOverflow, "read list pointer", "element size overflow")
		}
		if !s.regionInBounds(addr, tsize) {
			return List{}, exc.New(exc.OutOfBounds, "read list pointer", "inline composite elements out of bounds")
		}
		return List{seg: s, size: sz, off: addr, length: n, flags: isCompositeList}, nil
	case bit1List:
		return List{seg: s, off: addr, length: val.numListElements(), flags: isBitList}, nil
	default:
		return List{seg: s, size: val.elementSize(), off: addr, length: val.numListElements()}, nil
	}
}

// resolveFarPointer follows zero, one or two far-pointer hops starting at
// paddr and returns the segment/base/pointer-word triple for the real
// content (C3). A double-far landing pad's tag may be struct-pointer- or
// list-pointer-shaped, but its offset field must be zero: a struct-pointer
// tag carrying an embedded element count is rejected as InvalidFarPointer.
func (s *Segment) resolveFarPointer(paddr Address) (dst *Segment, base Address, resolved rawPointer, err error) {
	val := s.readRawPointer(paddr)
	switch val.pointerType() {
	case doubleFarPointer:
		padSeg, err := s.lookupSegment(val.farSegment())
		if err != nil {
			return nil, 0, 0, exc.WithKind(exc.InvalidFarPointer, "resolve far pointer", err)
		}
		padAddr := val.farAddress()
		if !padSeg.regionInBounds(padAddr, wordSize*2) {
			return nil, 0, 0, exc.New(exc.InvalidFarPointer, "resolve far pointer", "landing pad out of bounds")
		}
		far := padSeg.readRawPointer(padAddr)
		if far.pointerType() != farPointer {
			return nil, 0, 0, exc.New(exc.InvalidFarPointer, "resolve far pointer", "landing pad's first word is not a single far pointer")
		}
		tagAddr, ok := padAddr.addSize(wordSize)
		if !ok {
			return nil, 0, 0, exc.New(exc.OffsetOverflow, "resolve far pointer", "tag offset overflow")
		}
		tag := padSeg.readRawPointer(tagAddr)
		if pt := tag.pointerType(); (pt != structPointer && pt != listPointer) || tag.offset() != 0 {
			return nil, 0, 0, exc.New(exc.InvalidFarPointer, "resolve far pointer", "landing pad tag is not a zero-offset struct/list pointer")
		}
		dst, err = s.lookupSegment(far.farSegment())
		if err != nil {
			return nil, 0, 0, exc.WithKind(exc.InvalidFarPointer, "resolve far pointer", err)
		}
		return dst, 0, landingPadNearPointer(far, tag), nil
	case farPointer:
		dst, err := s.lookupSegment(val.farSegment())
		if err != nil {
			return nil, 0, 0, exc.WithKind(exc.InvalidFarPointer, "resolve far pointer", err)
		}
		padAddr := val.farAddress()
		if !dst.regionInBounds(padAddr, wordSize) {
			return nil, 0, 0, exc.New(exc.InvalidFarPointer, "resolve far pointer", "far pointer target out of bounds")
		}
		base, ok := padAddr.addSize(wordSize)
		if !ok {
			return nil, 0, 0, exc.New(exc.OffsetOverflow, "resolve far pointer", "base offset overflow")
		}
		return dst, base, dst.readRawPointer(padAddr), nil
	default:
		base, ok := paddr.addSize(wordSize)
		if !ok {
			return nil, 0, 0, exc.New(exc.OffsetOverflow, "resolve pointer", "base offset overflow")
		}
		return s, base, val, nil
	}
}

// writePtr encodes src into the pointer slot at off, emitting a near, far
// or double-far pointer as required by the cross-segment rule (C3/C6).
// forceCopy is set by the builder whenever a value must not alias its
// source (e.g. list-member structs, which cannot be independently
// relocated).
func (s *Segment) writePtr(off Address, src Ptr, forceCopy bool) error {
	if !src.IsValid() {
		s.writeRawPointer(off, 0)
		return nil
	}

	var srcAddr Address
	var srcRaw rawPointer
	switch src.flags.ptrType() {
	case structPtrType:
		st := src.Struct()
		if st.size.isZero() {
			s.writeRawPointer(off, rawStructPointer(-1, ObjectSize{}))
			return nil
		}
		if forceCopy || src.seg.msg != s.msg || st.flags&isListMember != 0 {
			newSeg, newAddr, err := alloc(s, st.size.totalSize())
			if err != nil {
				return err
			}
			dst := Struct{seg: newSeg, off: newAddr, size: st.size, depthLimit: maxDepth}
			if err := copyStruct(dst, st); err != nil {
				return err
			}
			st = dst
			src = dst.ToPtr()
		}
		srcAddr = st.off
		srcRaw = rawStructPointer(0, st.size)
	case listPtrType:
		l := src.List()
		if forceCopy || src.seg.msg != s.msg {
			sz := l.allocSize()
			newSeg, newAddr, err := alloc(s, sz)
			if err != nil {
				return err
			}
			dst := List{seg: newSeg, off: newAddr, length: l.length, size: l.size, flags: l.flags, depthLimit: maxDepth}
			if dst.flags&isCompositeList != 0 {
				newSeg.writeRawPointer(newAddr, l.seg.readRawPointer(l.off-Address(wordSize)))
				var ok bool
				dst.off, ok = dst.off.addSize(wordSize)
				if !ok {
					return exc.New(exc.OffsetOverflow, "write pointer", "composite list offset overflow")
				}
				sz -= wordSize
			}
			if dst.flags&isBitList != 0 || dst.size.PointerCount == 0 {
				end, _ := l.off.addSize(sz)
				copy(newSeg.data[dst.off:], l.seg.data[l.off:end])
			} else {
				for i := 0; i < l.Len(); i++ {
					if err := copyStruct(dst.Struct(i), l.Struct(i)); err != nil {
						return err
					}
				}
			}
			l = dst
			src = dst.ToPtr()
		}
		srcAddr = l.off
		if l.flags&isCompositeList != 0 {
			srcAddr -= Address(wordSize)
		}
		srcRaw = l.raw()
	case interfacePtrType:
		i := src.Interface()
		if src.seg.msg != s.msg {
			c := s.msg.CapTable().Add(i.Client())
			i = NewInterface(s, c)
		}
		s.writeRawPointer(off, i.value())
		return nil
	default:
		return exc.New(exc.InvalidPointer, "write pointer", "unknown pointer kind")
	}

	switch {
	case src.seg == s:
		s.writeRawPointer(off, srcRaw.withOffset(nearPointerOffset(off, srcAddr)))
		return nil
	case hasCapacity(src.seg.data, wordSize):
		_, padAddr, err := alloc(src.seg, wordSize)
		if err != nil {
			return err
		}
		src.seg.writeRawPointer(padAddr, srcRaw.withOffset(nearPointerOffset(padAddr, srcAddr)))
		s.writeRawPointer(off, rawFarPointer(src.seg.id, padAddr))
		return nil
	default:
		padSeg, padAddr, err := alloc(s, wordSize*2)
		if err != nil {
			return err
		}
		padSeg.writeRawPointer(padAddr, rawFarPointer(src.seg.id, srcAddr))
		padSeg.writeRawPointer(padAddr+Address(wordSize), srcRaw)
		s.writeRawPointer(off, rawDoubleFarPointer(padSeg.id, padAddr))
		return nil
	}
}

// hasCapacity reports whether b has room for sz more bytes without
// reallocating, used to decide between a single-hop and double-hop far
// pointer landing pad.
func hasCapacity(b []byte, sz Size) bool {
	return Size(cap(b)-len(b)) >= sz
}
