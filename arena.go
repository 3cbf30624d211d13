package capnp

import "github.com/relaycore/capnp/internal/exc"

// defaultSegmentWords is the size a fresh segment is given when neither
// the caller nor an existing segment can satisfy an allocation.
const defaultSegmentWords = 1024

// maxSegmentSize is the largest a single segment's byte length may be: the
// framing header stores word counts in 32 bits.
const maxSegmentSize = Size(0xfffffff8)

func maxAllocSize() Size {
	return maxSegmentSize
}

// An Arena loads and allocates segments for a Message (C1). Implementations
// choose their own growth and backing-storage strategy; the engine never
// assumes anything about Arena beyond this interface, which is how callers
// plug in arena, pool, or general-purpose allocators per spec.md §5.
type Arena interface {
	// NumSegments returns the number of segments currently allocated.
	NumSegments() int64

	// Segment returns the segment with the given ID, or nil if it has not
	// been allocated.
	Segment(id SegmentID) *Segment

	// Allocate reserves sz zero-filled bytes, preferring the segment hint
	// pref if it has room, and returns the segment and offset of the new
	// region. msg is the owning Message, attached to any newly created
	// segment.
	Allocate(sz Size, msg *Message, pref *Segment) (*Segment, Address, error)

	// Release returns any backing storage to the system. After Release,
	// the Arena must not be reused.
	Release()
}

// singleSegmentArena is an Arena that never creates more than one segment,
// growing its one backing slice as needed.
type singleSegmentArena struct {
	seg Segment
}

// SingleSegment returns an Arena that stores the message in a single
// segment backed by b. b may be nil or have existing data for reading.
func SingleSegment(b []byte) Arena {
	a := &singleSegmentArena{}
	a.seg.data = b
	return a
}

func (a *singleSegmentArena) NumSegments() int64 {
	if a.seg.data == nil && a.seg.msg == nil {
		return 0
	}
	return 1
}

func (a *singleSegmentArena) Segment(id SegmentID) *Segment {
	if id != 0 {
		return nil
	}
	return &a.seg
}

func (a *singleSegmentArena) Allocate(sz Size, msg *Message, pref *Segment) (*Segment, Address, error) {
	if pref != nil && pref != &a.seg {
		return nil, 0, exc.New(exc.OutOfBounds, "allocate", "single-segment arena cannot grow a foreign segment")
	}
	used := Size(len(a.seg.data))
	if hasCapacity(a.seg.data, sz) {
		a.seg.id = 0
		a.seg.msg = msg
		a.seg.data = a.seg.data[:used+sz]
		clearBytes(a.seg.data[used:])
		return &a.seg, Address(used), nil
	}
	grown := growSlice(a.seg.data, int(sz))
	a.seg.id = 0
	a.seg.msg = msg
	a.seg.data = grown[:used+sz]
	clearBytes(a.seg.data[used:])
	return &a.seg, Address(used), nil
}

func (a *singleSegmentArena) Release() {
	a.seg.data = nil
	a.seg.msg = nil
}

// multiSegmentArena is an Arena backed by a growable list of segments; once
// a segment is full, a new one is created rather than reallocating.
type multiSegmentArena struct {
	segs []*Segment
}

// MultiSegment returns an Arena that may spread the message across
// multiple segments, seeded with the segments in bs (each already framed
// content, or nil to start empty).
func MultiSegment(bs [][]byte) Arena {
	a := &multiSegmentArena{}
	for i, b := range bs {
		a.segs = append(a.segs, &Segment{id: SegmentID(i), data: b})
	}
	return a
}

func (a *multiSegmentArena) NumSegments() int64 { return int64(len(a.segs)) }

func (a *multiSegmentArena) Segment(id SegmentID) *Segment {
	if int64(id) >= int64(len(a.segs)) {
		return nil
	}
	return a.segs[id]
}

func (a *multiSegmentArena) Allocate(sz Size, msg *Message, pref *Segment) (*Segment, Address, error) {
	if pref != nil {
		if used := Size(len(pref.data)); hasCapacity(pref.data, sz) {
			pref.data = pref.data[:used+sz]
			clearBytes(pref.data[used:])
			return pref, Address(used), nil
		}
	}
	segSize := sz
	if segSize < defaultSegmentWords*wordSize {
		segSize = defaultSegmentWords * wordSize
	}
	seg := &Segment{
		id:   SegmentID(len(a.segs)),
		msg:  msg,
		data: make([]byte, sz, segSize),
	}
	a.segs = append(a.segs, seg)
	return seg, 0, nil
}

func (a *multiSegmentArena) Release() {
	a.segs = nil
}

func clearBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// growSlice returns a slice with the same contents as b but with room for
// at least extra more bytes of capacity.
func growSlice(b []byte, extra int) []byte {
	need := len(b) + extra
	newCap := cap(b) * 2
	if newCap < need {
		newCap = need
	}
	if newCap < int(defaultSegmentWords*wordSize) {
		newCap = int(defaultSegmentWords * wordSize)
	}
	grown := make([]byte, len(b), newCap)
	copy(grown, b)
	return grown
}
