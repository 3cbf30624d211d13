package capnp

import (
	"math"

	"github.com/relaycore/capnp/internal/exc"
)

// structFlags records bits of context a Struct needs beyond its shape.
type structFlags uint8

const (
	// isListMember marks a Struct that is an element of a list: such
	// structs cannot be independently relocated (no landing pad of their
	// own to redirect), so writePtr always copies them instead of
	// aliasing.
	isListMember structFlags = 1 << iota
)

// A Struct is both the reader and the builder for a struct value: a flat
// data section of size.DataSize bytes followed by size.PointerCount
// pointer words, at a fixed offset inside a segment (C5/C6). Readers and
// builders share one representation because every accessor is bounds- and
// zero-tolerant in the same way regardless of whether the underlying
// message is being read or written.
type Struct struct {
	seg        *Segment
	off        Address
	size       ObjectSize
	flags      structFlags
	depthLimit uint
}

// IsValid reports whether s refers to an actual struct, as opposed to the
// zero value returned for a null pointer slot.
func (s Struct) IsValid() bool { return s.seg != nil }

// Segment returns the segment s is stored in.
func (s Struct) Segment() *Segment { return s.seg }

// Size returns s's data/pointer shape.
func (s Struct) Size() ObjectSize { return s.size }

// ToPtr converts s to a generic pointer.
func (s Struct) ToPtr() Ptr {
	return Ptr{
		seg:        s.seg,
		off:        s.off,
		size:       s.size,
		depthLimit: s.depthLimit,
		flags:      structPtrFlag(s.flags),
	}
}

// NewRootStruct allocates a struct of the given size as seg's message's
// root.
func NewRootStruct(seg *Segment, sz ObjectSize) (Struct, error) {
	seg, off, err := seg.msg.AllocateAsRoot(sz)
	if err != nil {
		return Struct{}, exc.WrapError("new root struct", err)
	}
	return Struct{seg: seg, off: off, size: sz, depthLimit: maxDepth}, nil
}

// NewStruct allocates a struct of the given size in seg's message,
// preferring seg.
func NewStruct(seg *Segment, sz ObjectSize) (Struct, error) {
	if !sz.isValid() {
		return Struct{}, exc.New(exc.InvalidMessageSize, "new struct", "invalid object size")
	}
	sz.DataSize = sz.DataSize.padToWord()
	seg, off, err := alloc(seg, sz.totalSize())
	if err != nil {
		return Struct{}, exc.WrapError("new struct", err)
	}
	return Struct{seg: seg, off: off, size: sz, depthLimit: maxDepth}, nil
}

func (s Struct) dataAddress(off DataOffset) (Address, bool) {
	addr, ok := s.off.addSize(Size(off))
	if !ok || Size(off) >= s.size.DataSize {
		return 0, false
	}
	return addr, true
}

// DataOffset is a byte offset into a struct's flat data section.
type DataOffset uint32

// Uint8/Uint16/Uint32/Uint64 read a little-endian primitive at off. Per
// spec.md §4.5, an offset at or beyond the struct's declared data size
// returns the zero value instead of an error: this is the schema-evolution
// tolerance that lets an old reader see a default for fields a newer
// writer never wrote, and a new reader see a default for fields an older
// writer's schema didn't have yet.
func (s Struct) Uint8(off DataOffset) uint8 {
	addr, ok := s.dataAddress(off)
	if !ok {
		return 0
	}
	return s.seg.readUint8(addr)
}

func (s Struct) Uint16(off DataOffset) uint16 {
	addr, ok := s.dataAddress(off)
	if !ok {
		return 0
	}
	return s.seg.readUint16(addr)
}

func (s Struct) Uint32(off DataOffset) uint32 {
	addr, ok := s.dataAddress(off)
	if !ok {
		return 0
	}
	return s.seg.readUint32(addr)
}

func (s Struct) Uint64(off DataOffset) uint64 {
	addr, ok := s.dataAddress(off)
	if !ok {
		return 0
	}
	return s.seg.readUint64(addr)
}

func (s Struct) Bool(off DataOffset, bit uint) bool {
	byteOff := DataOffset(uint(off) + bit/8)
	return s.Uint8(byteOff)&(1<<(bit%8)) != 0
}

func (s Struct) Float32(off DataOffset) float32 { return math.Float32frombits(s.Uint32(off)) }
func (s Struct) Float64(off DataOffset) float64 { return math.Float64frombits(s.Uint64(off)) }

// SetUint8/.../SetUint64 write a little-endian primitive at off. Writing
// past the struct's declared data size is a programmer error (the caller
// should have allocated the struct with the right shape); it panics the
// same way an out-of-range slice index would, since it can only happen
// from a bug in generated code, never from untrusted input.
func (s Struct) SetUint8(off DataOffset, v uint8) {
	addr, ok := s.dataAddress(off)
	if !ok {
		panic("capnp: SetUint8 offset out of bounds")
	}
	s.seg.writeUint8(addr, v)
}

func (s Struct) SetUint16(off DataOffset, v uint16) {
	addr, ok := s.dataAddress(off)
	if !ok {
		panic("capnp: SetUint16 offset out of bounds")
	}
	s.seg.writeUint16(addr, v)
}

func (s Struct) SetUint32(off DataOffset, v uint32) {
	addr, ok := s.dataAddress(off)
	if !ok {
		panic("capnp: SetUint32 offset out of bounds")
	}
	s.seg.writeUint32(addr, v)
}

func (s Struct) SetUint64(off DataOffset, v uint64) {
	addr, ok := s.dataAddress(off)
	if !ok {
		panic("capnp: SetUint64 offset out of bounds")
	}
	s.seg.writeUint64(addr, v)
}

func (s Struct) SetBool(off DataOffset, bit uint, v bool) {
	byteOff := DataOffset(uint(off) + bit/8)
	mask := uint8(1 << (bit % 8))
	cur := s.Uint8(byteOff)
	if v {
		cur |= mask
	} else {
		cur &^= mask
	}
	s.SetUint8(byteOff, cur)
}

func (s Struct) SetFloat32(off DataOffset, v float32) { s.SetUint32(off, math.Float32bits(v)) }
func (s Struct) SetFloat64(off DataOffset, v float64) { s.SetUint64(off, math.Float64bits(v)) }

func (s Struct) pointerAddress(i uint16) Address {
	return s.off + Address(s.size.DataSize) + Address(i)*Address(wordSize)
}

// Ptr returns the i'th pointer slot. An index beyond the struct's declared
// pointer count returns a null pointer, matching the primitive-accessor
// schema-evolution tolerance.
func (s Struct) Ptr(i uint16) (Ptr, error) {
	if !s.IsValid() || i >= s.size.PointerCount {
		return Ptr{}, nil
	}
	depthLimit := s.depthLimit
	if depthLimit == 0 {
		depthLimit = maxDepth
	}
	return s.seg.readPtr(s.pointerAddress(i), depthLimit)
}

// SetPtr writes p into the i'th pointer slot.
func (s Struct) SetPtr(i uint16, p Ptr) error {
	if i >= s.size.PointerCount {
		return exc.New(exc.IndexOutOfBounds, "set pointer", "pointer index out of bounds")
	}
	return s.seg.writePtr(s.pointerAddress(i), p, false)
}

// NewStructAt allocates a child struct of the given size and writes a
// pointer to it into slot i of s, returning the child (C6
// init_struct).
func (s Struct) NewStructAt(i uint16, sz ObjectSize) (Struct, error) {
	child, err := NewStruct(s.seg, sz)
	if err != nil {
		return Struct{}, err
	}
	if err := s.SetPtr(i, child.ToPtr()); err != nil {
		return Struct{}, err
	}
	return child, nil
}

// NewStructAtInSegment is NewStructAt but allocates the child preferring
// target, emitting a far (or double-far) pointer from s as needed. When
// target has no room, the child goes wherever the arena's Allocate puts
// it; allocation in target is not forced.
func (s Struct) NewStructAtInSegment(i uint16, sz ObjectSize, target *Segment) (Struct, error) {
	seg, off, err := alloc(target, sz.totalSize())
	if err != nil {
		return Struct{}, err
	}
	child := Struct{seg: seg, off: off, size: sz, depthLimit: maxDepth}
	if err := s.SetPtr(i, child.ToPtr()); err != nil {
		return Struct{}, err
	}
	return child, nil
}

// copyStruct copies src's data and pointer words into dst, following and
// relocating every pointer src holds.
func copyStruct(dst, src Struct) error {
	if !src.IsValid() {
		return nil
	}
	n := src.size.DataSize
	if dst.size.DataSize < n {
		n = dst.size.DataSize
	}
	copy(dst.seg.slice(dst.off, n), src.seg.slice(src.off, n))
	np := src.size.PointerCount
	if dst.size.PointerCount < np {
		np = dst.size.PointerCount
	}
	for i := uint16(0); i < np; i++ {
		p, err := src.Ptr(i)
		if err != nil {
			return exc.WrapError("copy struct", err)
		}
		if err := dst.seg.writePtr(dst.pointerAddress(i), p, true); err != nil {
			return exc.WrapError("copy struct", err)
		}
	}
	return nil
}

// HasPointer reports whether pointer slot i is non-null, without paying
// the cost of resolving it.
func (s Struct) HasPointer(i uint16) bool {
	if !s.IsValid() || i >= s.size.PointerCount {
		return false
	}
	return s.seg.readRawPointer(s.pointerAddress(i)) != 0
}

// rawPointerAt returns the unresolved pointer word at slot i, used by the
// canonicalizer to detect defaults without paying traversal cost.
func (s Struct) rawPointerAt(i uint16) rawPointer {
	return s.seg.readRawPointer(s.pointerAddress(i))
}
