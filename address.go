package capnp

import "github.com/relaycore/capnp/internal/exc"

// wordSize is the size of a word in bytes, the unit every offset and size
// in a Cap'n Proto message is ultimately expressed in.
const wordSize Size = 8

// maxSize is the largest representable Size.
const maxSize = ^Size(0)

// maxInt is the largest value an int can hold on this platform, used to
// guard 64-bit-to-platform-word casts (C2).
const maxInt = int(^uint(0) >> 1)

// Address is a byte offset within a single segment.
type Address uint32

// addSize returns a+Address(sz), detecting overflow.
func (a Address) addSize(sz Size) (Address, bool) {
	v := a + Address(sz)
	return v, v >= a
}

// element returns the address of the i'th element of size sz starting at a.
func (a Address) element(i int32, sz Size) (Address, bool) {
	if i < 0 {
		return 0, false
	}
	offset, ok := sz.times(i)
	if !ok {
		return 0, false
	}
	return a.addSize(offset)
}

// Size is a size of a region of memory in bytes, word-granular at every
// API boundary that matters for the wire format.
type Size uint32

// isZero reports whether sz is zero.
func (sz Size) isZero() bool { return sz == 0 }

// padToWord rounds sz up to the next multiple of the word size.
func (sz Size) padToWord() Size {
	return (sz + (wordSize - 1)) &^ (wordSize - 1)
}

// times returns sz*n, detecting overflow (C2: checked multiplication).
func (sz Size) times(n int32) (Size, bool) {
	if n < 0 || sz == 0 {
		return 0, n >= 0
	}
	total := uint64(sz) * uint64(n)
	if total > uint64(maxSize) {
		return 0, false
	}
	return Size(total), true
}

// checkBounds centralizes the "offset+size <= len" predicate (C2) so every
// bounds-sensitive read/write routes through one audited helper.
func checkBounds(bufLen int, offset Address, size Size) bool {
	end, ok := offset.addSize(size)
	if !ok {
		return false
	}
	return int64(end) <= int64(bufLen)
}

// checkListBounds is the list-content variant of checkBounds: element size
// times count, plus a base offset, must stay in bounds.
func checkListBounds(bufLen int, base Address, elemSize Size, count int32) bool {
	total, ok := elemSize.times(count)
	if !ok {
		return false
	}
	return checkBounds(bufLen, base, total)
}

// ObjectSize records the shape of a struct: how many words of flat data it
// carries and how many pointer slots follow them. It is also used to
// describe the per-element shape of an inline-composite list.
type ObjectSize struct {
	DataSize     Size
	PointerCount uint16
}

// isValid reports whether sz could describe a real struct (data size must
// round-trip through a 16-bit word count).
func (sz ObjectSize) isValid() bool {
	return sz.DataSize%wordSize == 0 && sz.DataSize/wordSize <= 0xffff
}

func (sz ObjectSize) isZero() bool {
	return sz.DataSize == 0 && sz.PointerCount == 0
}

// dataWordCount returns the number of whole words DataSize occupies.
func (sz ObjectSize) dataWordCount() uint16 {
	return uint16(sz.DataSize / wordSize)
}

// totalWordCount returns the combined data+pointer word count of sz.
func (sz ObjectSize) totalWordCount() int32 {
	return int32(sz.DataSize/wordSize) + int32(sz.PointerCount)
}

// totalSize returns the total byte size (data plus pointers) of sz.
func (sz ObjectSize) totalSize() Size {
	return sz.DataSize + Size(sz.PointerCount)*wordSize
}

// checkElementCount rejects list allocations the platform cannot address
// (spec: ElementCountTooLarge), independent of the 30-bit wire field width.
func checkElementCount(n int64) error {
	const maxElementCount = 1<<31 - 1
	if n < 0 || n > maxElementCount {
		return exc.New(exc.ElementCountTooLarge, "list", "element count out of range")
	}
	return nil
}
