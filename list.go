package capnp

import "github.com/relaycore/capnp/internal/exc"

// listFlags records how to interpret a List's size/shape fields.
type listFlags uint8

const (
	isBitList listFlags = 1 << iota
	isCompositeList
)

// A List is a reference to a sequence of values of uniform shape: one of
// the eight element-size classes from spec.md §3, or composite
// (inline-composite structs) when isCompositeList is set (C5/C6).
type List struct {
	seg        *Segment
	off        Address // start of elements (past the tag word for composite lists)
	length     int32
	size       ObjectSize
	depthLimit uint
	flags      listFlags
}

// IsValid reports whether l refers to an actual list.
func (l List) IsValid() bool { return l.seg != nil }

// Len returns the number of elements in l.
func (l List) Len() int {
	if l.seg == nil {
		return 0
	}
	return int(l.length)
}

// ToPtr converts l to a generic pointer.
func (l List) ToPtr() Ptr {
	return Ptr{
		seg:        l.seg,
		off:        l.off,
		lenOrCap:   uint32(l.length),
		size:       l.size,
		depthLimit: l.depthLimit,
		flags:      listPtrFlag(l.flags),
	}
}

// readSize returns l's size for traversal-limit accounting.
func (l List) readSize() Size {
	if l.seg == nil {
		return 0
	}
	e := l.size.totalSize()
	if e == 0 {
		e = wordSize
	}
	sz, ok := e.times(l.length)
	if !ok {
		return maxSize
	}
	return sz
}

// allocSize returns l's size for the purpose of copying it into another
// message.
func (l List) allocSize() Size {
	if l.seg == nil {
		return 0
	}
	if l.flags&isBitList != 0 {
		return Size((l.length + 7) / 8)
	}
	sz, _ := l.size.totalSize().times(l.length)
	if l.flags&isCompositeList == 0 {
		return sz
	}
	return sz + wordSize
}

// IsBitList reports whether l stores single-bit elements.
func (l List) IsBitList() bool { return l.flags&isBitList != 0 }

// IsComposite reports whether l stores inline-composite (struct) elements.
func (l List) IsComposite() bool { return l.flags&isCompositeList != 0 }

// ElementDataBytes returns the per-element data width in bytes for a
// non-bit, non-composite list (the flat primitive element-size classes).
// It is meaningless for bit lists (width is one bit, not a byte count)
// and for composite lists (width varies per the tag word's declared
// struct shape, not a single value).
func (l List) ElementDataBytes() int { return int(l.size.DataSize) }

// raw returns the zero-offset raw list pointer describing l's shape.
func (l List) raw() rawPointer {
	if l.seg == nil {
		return 0
	}
	if l.flags&isCompositeList != 0 {
		return rawListPointer(0, compositeList, l.length*l.size.totalWordCount())
	}
	if l.flags&isBitList != 0 {
		return rawListPointer(0, bit1List, l.length)
	}
	if l.size.PointerCount == 1 && l.size.DataSize == 0 {
		return rawListPointer(0, pointerList, l.length)
	}
	switch l.size.DataSize {
	case 0:
		return rawListPointer(0, voidList, l.length)
	case 1:
		return rawListPointer(0, byte1List, l.length)
	case 2:
		return rawListPointer(0, byte2List, l.length)
	case 4:
		return rawListPointer(0, byte4List, l.length)
	case 8:
		return rawListPointer(0, byte8List, l.length)
	default:
		panic("capnp: invalid list element size")
	}
}

func (l List) elementAddress(i int) (Address, bool) {
	if l.seg == nil || i < 0 || i >= int(l.length) {
		return 0, false
	}
	return l.off.element(int32(i), l.size.totalSize())
}

// Struct returns the i'th element as a struct. Panics on an out-of-range
// index: like a slice index, this is a programmer error, never an
// untrusted-input error (those are caught when the list pointer itself was
// first resolved).
func (l List) Struct(i int) Struct {
	if l.seg == nil || i < 0 || i >= int(l.length) {
		panic("capnp: list index out of bounds")
	}
	if l.flags&isBitList != 0 {
		return Struct{}
	}
	addr, ok := l.off.element(int32(i), l.size.totalSize())
	if !ok {
		return Struct{}
	}
	return Struct{seg: l.seg, off: addr, size: l.size, flags: isListMember, depthLimit: l.depthLimit - 1}
}

// SetStruct copies s into the i'th element.
func (l List) SetStruct(i int, s Struct) error {
	if l.flags&isBitList != 0 {
		return exc.New(exc.InvalidListElementSize, "set struct element", "cannot store a struct in a bit list")
	}
	return copyStruct(l.Struct(i), s)
}

// newPrimitiveList allocates a list of count elements of elemSize each,
// preferring placement in s.
func newPrimitiveList(s *Segment, elemSize Size, count int32) (List, error) {
	if err := checkElementCount(int64(count)); err != nil {
		return List{}, err
	}
	total, ok := elemSize.times(count)
	if !ok {
		return List{}, exc.New(exc.ElementCountTooLarge, "new list", "list size overflow")
	}
	s, addr, err := alloc(s, total)
	if err != nil {
		return List{}, exc.WrapError("new list", err)
	}
	return List{seg: s, off: addr, length: count, size: ObjectSize{DataSize: elemSize}, depthLimit: maxDepth}, nil
}

// NewBitList allocates a new list of n booleans, preferring placement in s.
func NewBitList(s *Segment, n int32) (List, error) {
	if err := checkElementCount(int64(n)); err != nil {
		return List{}, err
	}
	s, addr, err := alloc(s, Size((n+7)/8))
	if err != nil {
		return List{}, exc.WrapError("new bit list", err)
	}
	return List{seg: s, off: addr, length: n, flags: isBitList, depthLimit: maxDepth}, nil
}

// NewVoidList allocates a list of n void elements: no storage beyond the
// pointer itself is required.
func NewVoidList(s *Segment, n int32) (List, error) {
	if err := checkElementCount(int64(n)); err != nil {
		return List{}, err
	}
	return List{seg: s, length: n, depthLimit: maxDepth}, nil
}

// NewUInt8List, NewUInt16List, NewUInt32List, NewUInt64List allocate lists
// of fixed-width unsigned integers, the building blocks typed code-gen
// wrappers (enum lists, text, data) are built from.
func NewUInt8List(s *Segment, n int32) (List, error)  { return newPrimitiveList(s, 1, n) }
func NewUInt16List(s *Segment, n int32) (List, error) { return newPrimitiveList(s, 2, n) }
func NewUInt32List(s *Segment, n int32) (List, error) { return newPrimitiveList(s, 4, n) }
func NewUInt64List(s *Segment, n int32) (List, error) { return newPrimitiveList(s, 8, n) }

// NewPointerList allocates a list of n pointer slots, preferring placement
// in s.
func NewPointerList(s *Segment, n int32) (PointerList, error) {
	if err := checkElementCount(int64(n)); err != nil {
		return PointerList{}, err
	}
	l, err := newPrimitiveListOfSize(s, ObjectSize{PointerCount: 1}, n)
	return PointerList(l), err
}

func newPrimitiveListOfSize(s *Segment, sz ObjectSize, n int32) (List, error) {
	total, ok := sz.totalSize().times(n)
	if !ok {
		return List{}, exc.New(exc.ElementCountTooLarge, "new list", "list size overflow")
	}
	s, addr, err := alloc(s, total)
	if err != nil {
		return List{}, exc.WrapError("new list", err)
	}
	return List{seg: s, off: addr, length: n, size: sz, depthLimit: maxDepth}, nil
}

// NewCompositeList allocates an inline-composite list of n elements, each
// shaped sz, writing the tag word ahead of the element data (C6:
// init_list with element-size class 7).
func NewCompositeList(s *Segment, sz ObjectSize, n int32) (List, error) {
	if err := checkElementCount(int64(n)); err != nil {
		return List{}, err
	}
	if !sz.isValid() {
		return List{}, exc.New(exc.InvalidMessageSize, "new composite list", "invalid element size")
	}
	sz.DataSize = sz.DataSize.padToWord()
	total, ok := sz.totalSize().times(n)
	if !ok || total > maxSize-wordSize {
		return List{}, exc.New(exc.ElementCountTooLarge, "new composite list", "list size overflow")
	}
	s, addr, err := alloc(s, wordSize+total)
	if err != nil {
		return List{}, exc.WrapError("new composite list", err)
	}
	s.writeRawPointer(addr, rawStructPointer(pointerOffset(n), sz))
	return List{seg: s, off: addr + Address(wordSize), length: n, size: sz, flags: isCompositeList, depthLimit: maxDepth}, nil
}

// PointerList is a List specialized for pointer-sized (class 6) elements.
// It shares List's underlying representation so the two convert freely.
type PointerList List

// IsValid reports whether l refers to an actual list.
func (l PointerList) IsValid() bool { return List(l).IsValid() }

// Len returns the number of elements in l.
func (l PointerList) Len() int { return List(l).Len() }

// ToPtr converts l to a generic pointer.
func (l PointerList) ToPtr() Ptr { return List(l).ToPtr() }

// At returns the i'th pointer.
func (l PointerList) At(i int) (Ptr, error) {
	addr, ok := List(l).elementAddress(i)
	if !ok {
		return Ptr{}, exc.New(exc.IndexOutOfBounds, "pointer list", "index out of range")
	}
	depthLimit := l.depthLimit
	if depthLimit == 0 {
		depthLimit = maxDepth
	}
	return l.seg.readPtr(addr, depthLimit)
}

// Set writes p into the i'th slot.
func (l PointerList) Set(i int, p Ptr) error {
	addr, ok := List(l).elementAddress(i)
	if !ok {
		return exc.New(exc.IndexOutOfBounds, "pointer list", "index out of range")
	}
	return l.seg.writePtr(addr, p, true)
}

// Bit returns the i'th element of a bit list.
func (l List) Bit(i int) bool {
	if l.seg == nil || i < 0 || i >= int(l.length) {
		panic("capnp: list index out of bounds")
	}
	addr := l.off + Address(i/8)
	return l.seg.readUint8(addr)&(1<<(uint(i)%8)) != 0
}

// SetBit sets the i'th element of a bit list.
func (l List) SetBit(i int, v bool) {
	addr := l.off + Address(i/8)
	cur := l.seg.readUint8(addr)
	mask := uint8(1 << (uint(i) % 8))
	if v {
		cur |= mask
	} else {
		cur &^= mask
	}
	l.seg.writeUint8(addr, cur)
}

// UInt8/UInt16/UInt32/UInt64 read the i'th fixed-width element of a
// non-composite list, addressing it by the accessor's own width. The
// list's declared element size is not compared with that width; an index
// outside the list panics the same way List.Struct does on a bad index.
func (l List) UInt8(i int) uint8 {
	addr := l.primitiveElementAddress(i, 1)
	return l.seg.readUint8(addr)
}

func (l List) UInt16(i int) uint16 {
	addr := l.primitiveElementAddress(i, 2)
	return l.seg.readUint16(addr)
}

func (l List) UInt32(i int) uint32 {
	addr := l.primitiveElementAddress(i, 4)
	return l.seg.readUint32(addr)
}

func (l List) UInt64(i int) uint64 {
	addr := l.primitiveElementAddress(i, 8)
	return l.seg.readUint64(addr)
}

func (l List) SetUInt8(i int, v uint8) { l.seg.writeUint8(l.primitiveElementAddress(i, 1), v) }
func (l List) SetUInt16(i int, v uint16) { l.seg.writeUint16(l.primitiveElementAddress(i, 2), v) }
func (l List) SetUInt32(i int, v uint32) { l.seg.writeUint32(l.primitiveElementAddress(i, 4), v) }
func (l List) SetUInt64(i int, v uint64) { l.seg.writeUint64(l.primitiveElementAddress(i, 8), v) }

func (l List) primitiveElementAddress(i int, width Size) Address {
	if l.seg == nil || i < 0 || i >= int(l.length) {
		panic("capnp: list index out of bounds")
	}
	addr, ok := l.off.element(int32(i), width)
	if !ok {
		panic("capnp: list element address overflow")
	}
	return addr
}
