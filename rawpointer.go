package capnp

// pointerOffset is a signed word offset carried in a pointer word, relative
// to the word immediately following the pointer (near pointers) or to the
// start of a segment (far-pointer landing pads).
type pointerOffset int32

// resolve returns the absolute address a near-pointer offset names,
// relative to base (the address of the word after the pointer itself).
func (off pointerOffset) resolve(base Address) (_ Address, ok bool) {
	if off == 0 {
		return base, true
	}
	addr := base + Address(off*pointerOffset(wordSize))
	return addr, (addr > base || off < 0) && (addr < base || off > 0)
}

// nearPointerOffset computes the offset field for a pointer at paddr that
// should target addr.
func nearPointerOffset(paddr, addr Address) pointerOffset {
	return pointerOffset(addr/Address(wordSize) - paddr/Address(wordSize) - 1)
}

// rawPointer is a pointer word exactly as it appears on the wire.
type rawPointer uint64

type pointerType int

// Pointer kinds, keyed by the low bits of a rawPointer (spec.md §3's
// "kind" field; single- and double-hop far pointers share low bits 10 and
// are disambiguated by bit 2).
const (
	structPointer    pointerType = 0
	listPointer      pointerType = 1
	farPointer       pointerType = 2
	otherPointer     pointerType = 3 // capability pointer
	doubleFarPointer pointerType = 6
)

func (p rawPointer) pointerType() pointerType {
	t := pointerType(p & 3)
	if t == farPointer {
		return pointerType(p & 7)
	}
	return t
}

// rawStructPointer builds a struct pointer whose offset is measured from
// the word after the pointer to the start of the struct.
func rawStructPointer(off pointerOffset, sz ObjectSize) rawPointer {
	return rawPointer(structPointer) |
		rawPointer(uint32(off)<<2) |
		rawPointer(sz.dataWordCount())<<32 |
		rawPointer(sz.PointerCount)<<48
}

func (p rawPointer) structSize() ObjectSize {
	c := uint16(p >> 32)
	d := uint16(p >> 48)
	return ObjectSize{DataSize: Size(c) * wordSize, PointerCount: d}
}

type listType int

// Raw list-pointer element-size classes (spec.md §3).
const (
	voidList      listType = 0
	bit1List      listType = 1
	byte1List     listType = 2
	byte2List     listType = 3
	byte4List     listType = 4
	byte8List     listType = 5
	pointerList   listType = 6
	compositeList listType = 7
)

// rawListPointer builds a list pointer. length is the element count for
// every list type except compositeList, where it is the content word
// count (tag word excluded).
func rawListPointer(off pointerOffset, lt listType, length int32) rawPointer {
	return rawPointer(listPointer) | rawPointer(uint32(off)<<2) | rawPointer(lt)<<32 | rawPointer(length)<<35
}

func (p rawPointer) listType() listType { return listType((p >> 32) & 7) }

func (p rawPointer) numListElements() int32 { return int32(p >> 35) }

// elementSize returns the per-element shape named by p. Must not be called
// on a composite-list pointer, whose per-element shape lives in the tag
// word instead.
func (p rawPointer) elementSize() ObjectSize {
	switch p.listType() {
	case voidList, bit1List:
		return ObjectSize{}
	case byte1List:
		return ObjectSize{DataSize: 1}
	case byte2List:
		return ObjectSize{DataSize: 2}
	case byte4List:
		return ObjectSize{DataSize: 4}
	case byte8List:
		return ObjectSize{DataSize: 8}
	case pointerList:
		return ObjectSize{PointerCount: 1}
	default:
		panic("elementSize called on composite or unknown list type")
	}
}

// totalListSize returns the total byte size of the list's content (for
// compositeList, including the tag word).
func (p rawPointer) totalListSize() (Size, bool) {
	n := p.numListElements()
	switch p.listType() {
	case voidList:
		return 0, true
	case bit1List:
		return Size((n + 7) / 8), true
	case compositeList:
		return wordSize.times(n + 1)
	default:
		return p.elementSize().totalSize().times(n)
	}
}

// offset returns a struct- or list-pointer's offset field.
func (p rawPointer) offset() pointerOffset { return pointerOffset(int32(p) >> 2) }

// withOffset replaces a struct- or list-pointer's offset field.
func (p rawPointer) withOffset(off pointerOffset) rawPointer {
	return p&^0xfffffffc | rawPointer(uint32(off<<2))
}

// rawFarPointer builds a single-hop far pointer to off (word-aligned) in
// segment segID.
func rawFarPointer(segID SegmentID, off Address) rawPointer {
	return rawPointer(farPointer) | rawPointer(off&^7) | rawPointer(segID)<<32
}

// rawDoubleFarPointer builds a double-hop far pointer to a two-word
// landing pad at off in segment segID.
func rawDoubleFarPointer(segID SegmentID, off Address) rawPointer {
	return rawPointer(doubleFarPointer) | rawPointer(off&^7) | rawPointer(segID)<<32
}

// landingPadNearPointer folds a double-far landing pad's [far, tag] pair
// into the near pointer it is standing in for: tag's shape fields, far's
// target offset.
func landingPadNearPointer(far, tag rawPointer) rawPointer {
	return tag&^0xfffffffc | rawPointer(uint32(far&^3)>>1)
}

func (p rawPointer) farAddress() Address    { return Address(p) &^ 7 }
func (p rawPointer) farSegment() SegmentID  { return SegmentID(p >> 32) }
func (p rawPointer) otherPointerType() uint32 { return uint32(p) >> 2 }

// rawInterfacePointer builds a capability pointer referencing index cap in
// the message's cap table.
func rawInterfacePointer(cap CapabilityID) rawPointer {
	return rawPointer(otherPointer) | rawPointer(cap)<<32
}

func (p rawPointer) capabilityIndex() CapabilityID { return CapabilityID(p >> 32) }
