package capnp

import (
	"bytes"
	"encoding/binary"
	"io"
	"sync"
	"sync/atomic"

	"github.com/relaycore/capnp/internal/exc"
	"github.com/relaycore/capnp/internal/str"
	"github.com/relaycore/capnp/packed"
)

// Default limits (spec.md §6), overridable per Message.
const (
	defaultTraverseLimit = 8 * 1024 * 1024 * 8 // 8 Mi words, expressed in bytes
	defaultDepthLimit    = 64

	maxStreamSegments = 512
	maxTotalWords     = 8 * 1024 * 1024
)

const maxDepth = ^uint(0)

// A Message is a tree of Cap'n Proto objects spread across one or more
// segments (C1). The zero value is not usable; construct one with
// NewMessage. A Message with a fully decoded Arena is safe to read from
// multiple goroutines; building must stay single-threaded per spec.md §5.
type Message struct {
	// rlimit must stay first for 64-bit alignment on 32-bit platforms, per
	// sync/atomic's rules.
	rlimit     atomic.Uint64
	rlimitInit sync.Once

	Arena Arena

	capTable CapTable

	// TraverseLimit caps the total bytes the decoder will credit to
	// pointer traversal, bounding amplification attacks. Zero means
	// defaultTraverseLimit.
	TraverseLimit uint64

	// DepthLimit caps how deeply nested pointers may be followed. Zero
	// means defaultDepthLimit.
	DepthLimit uint
}

// NewMessage creates a message with a fresh root over arena and returns
// its first segment.
func NewMessage(arena Arena) (*Message, *Segment, error) {
	var msg Message
	first, err := msg.Reset(arena)
	return &msg, first, err
}

// NewSingleSegmentMessage is NewMessage(SingleSegment(b)) but panics
// instead of returning an error, which can only happen if b is non-empty.
func NewSingleSegmentMessage(b []byte) (*Message, *Segment) {
	msg, first, err := NewMessage(SingleSegment(b))
	if err != nil {
		panic(err)
	}
	return msg, first
}

// NewMultiSegmentMessage is the MultiSegment analogue of
// NewSingleSegmentMessage.
func NewMultiSegmentMessage(bs [][]byte) (*Message, *Segment) {
	msg, first, err := NewMessage(MultiSegment(bs))
	if err != nil {
		panic(err)
	}
	return msg, first
}

// Release resets m to an empty instance of its current arena, releasing
// backing storage and cap table entries.
func (m *Message) Release() {
	m.Reset(m.Arena)
}

// Reset prepares m to build a new tree over arena, releasing the previous
// one. arena must be empty, or hold at most a single, empty segment: Reset
// exists for building fresh messages, not for re-reading.
func (m *Message) Reset(arena Arena) (first *Segment, err error) {
	m.capTable.Reset()
	if m.Arena != nil {
		m.Arena.Release()
	}

	*m = Message{
		Arena:         arena,
		TraverseLimit: m.TraverseLimit,
		DepthLimit:    m.DepthLimit,
		capTable:      m.capTable,
	}

	if arena.NumSegments() > 1 {
		return nil, exc.New(exc.InvalidMessageSize, "reset", "arena already has multiple segments")
	}
	first = m.Arena.Segment(0)
	if first != nil {
		if len(first.data) != 0 {
			return nil, exc.New(exc.InvalidMessageSize, "reset", "arena not empty")
		}
		first.msg = m
		if cap(first.data) == 0 {
			first.data = make([]byte, 0, defaultSegmentWords*wordSize)
		}
	}
	first, _, err = m.Arena.Allocate(wordSize, m, first)
	return
}

// ResetForRead prepares m to read a decoded arena, releasing the previous
// one and clearing the traversal budget so it reinitializes from
// TraverseLimit on first use.
func (m *Message) ResetForRead(arena Arena) {
	m.capTable.Reset()
	if m.Arena != nil {
		m.Arena.Release()
	}
	m.Arena = arena
	m.rlimit = atomic.Uint64{}
	m.rlimitInit = sync.Once{}
}

func (m *Message) initReadLimit() {
	if m.TraverseLimit == 0 {
		m.rlimit.Store(defaultTraverseLimit)
		return
	}
	m.rlimit.Store(m.TraverseLimit)
}

// canRead atomically debits sz from the traversal budget, reporting
// whether the debit succeeded. This is the sole defense against
// amplification attacks (spec.md §4.8).
func (m *Message) canRead(sz Size) (ok bool) {
	m.rlimitInit.Do(m.initReadLimit)
	for {
		curr := m.rlimit.Load()
		var next uint64
		if ok = curr >= uint64(sz); ok {
			next = curr - uint64(sz)
		} else {
			next = curr
		}
		if m.rlimit.CompareAndSwap(curr, next) {
			return ok
		}
	}
}

// ResetReadLimit sets the remaining traversal budget directly.
func (m *Message) ResetReadLimit(limit uint64) {
	m.rlimitInit.Do(func() {})
	m.rlimit.Store(limit)
}

// Unread credits sz back to the traversal budget, letting a caller that
// re-derives a value it already paid for (e.g. re-running validation)
// avoid an artificial limit trip.
func (m *Message) Unread(sz Size) {
	m.rlimitInit.Do(m.initReadLimit)
	m.rlimit.Add(uint64(sz))
}

// Root returns the message's root pointer.
func (m *Message) Root() (Ptr, error) {
	s, err := m.Segment(0)
	if err != nil {
		return Ptr{}, exc.WrapError("read root", err)
	}
	root, ok := s.root()
	if !ok {
		return Ptr{}, exc.New(exc.OutOfBounds, "read root", "root pointer not allocated")
	}
	p, err := root.At(0)
	if err != nil {
		return Ptr{}, exc.WrapError("read root", err)
	}
	return p, nil
}

// allocRootPointerSpace ensures segment 0 has room for the root pointer
// word, without assigning any value to it.
func (m *Message) allocRootPointerSpace() (*Segment, error) {
	s, err := m.Segment(0)
	if err != nil {
		return nil, err
	}
	if _, ok := s.root(); ok {
		return s, nil
	}
	_, _, err = m.alloc(wordSize, nil)
	if err != nil {
		return nil, err
	}
	return m.Segment(0)
}

// AllocateAsRoot allocates a struct of the given size on segment 0 and
// points the root pointer word (segment 0, offset 0) at it.
func (m *Message) AllocateAsRoot(size ObjectSize) (*Segment, Address, error) {
	first, err := m.allocRootPointerSpace()
	if err != nil {
		return nil, 0, err
	}
	if first.readRawPointer(0) != 0 {
		return nil, 0, exc.New(exc.InvalidMessageSize, "allocate root", "root struct already allocated")
	}
	s, srcAddr, err := m.alloc(size.totalSize(), first)
	if err != nil {
		return nil, 0, err
	}
	if s.ID() != 0 {
		return nil, 0, exc.New(exc.InvalidMessageSize, "allocate root", "root was not allocated on segment 0")
	}
	srcRaw := rawStructPointer(0, size)
	s.writeRawPointer(0, srcRaw.withOffset(nearPointerOffset(0, srcAddr)))
	return s, srcAddr, nil
}

// SetRoot sets the message's root object to p.
func (m *Message) SetRoot(p Ptr) error {
	s, err := m.Segment(0)
	if err != nil {
		return exc.WrapError("set root", err)
	}
	root, ok := s.root()
	if !ok {
		if _, _, err := m.alloc(wordSize, nil); err != nil {
			return exc.WrapError("set root", err)
		}
		root, ok = s.root()
		if !ok {
			return exc.New(exc.OutOfBounds, "set root", "unable to allocate root")
		}
	}
	if err := root.Set(0, p); err != nil {
		return exc.WrapError("set root", err)
	}
	return nil
}

// CapTable is the indexed list of capabilities referenced by this message.
// It is populated by the RPC runtime; the core only stores and copies
// handle indices (spec.md §3 "Capability").
func (m *Message) CapTable() *CapTable { return &m.capTable }

// TotalSize returns the number of bytes Marshal would produce.
func (m *Message) TotalSize() (uint64, error) {
	nsegs := uint64(m.NumSegments())
	total := streamHeaderSize(SegmentID(nsegs - 1))
	for i := uint64(0); i < nsegs; i++ {
		seg, err := m.Segment(SegmentID(i))
		if err != nil {
			return 0, err
		}
		total += uint64(len(seg.Data()))
	}
	return total, nil
}

func (m *Message) depthLimit() uint {
	if m.DepthLimit != 0 {
		return m.DepthLimit
	}
	return defaultDepthLimit
}

// NumSegments returns the number of segments currently allocated.
func (m *Message) NumSegments() int64 { return m.Arena.NumSegments() }

// Segment returns the segment with the given ID, verifying it belongs to m.
func (m *Message) Segment(id SegmentID) (*Segment, error) {
	seg := m.Arena.Segment(id)
	if seg == nil {
		return nil, exc.New(exc.OutOfBounds, "segment", "segment "+str.Utod(uint64(id))+" out of bounds")
	}
	if seg.msg == nil {
		seg.msg = m
	}
	if seg.msg != m {
		return nil, exc.New(exc.InvalidMessageSize, "segment", "segment "+str.Utod(uint64(id))+" associated with a different message")
	}
	return seg, nil
}

func (m *Message) alloc(sz Size, pref *Segment) (*Segment, Address, error) {
	if sz > maxAllocSize() {
		return nil, 0, exc.New(exc.MessageTooLarge, "allocate", "allocation too large")
	}
	sz = sz.padToWord()
	seg, addr, err := m.Arena.Allocate(sz, m, pref)
	if err != nil {
		return nil, 0, exc.WithKind(exc.OutOfMemory, "allocate", err)
	}
	if seg == nil {
		return nil, 0, exc.New(exc.OutOfMemory, "allocate", "arena returned no segment")
	}
	if seg.msg != nil && seg.msg != m {
		return nil, 0, exc.New(exc.InvalidMessageSize, "allocate", "arena returned segment owned by another message")
	}
	seg.msg = m
	return seg, addr, nil
}

// alloc is the package-level helper builders call: it prefers s but may
// fall back to a different segment of the same message.
func alloc(s *Segment, sz Size) (*Segment, Address, error) {
	return s.msg.alloc(sz, s)
}

// WriteTo streams the unpacked framing of m to w.
func (m *Message) WriteTo(w io.Writer) (int64, error) {
	wc := &writeCounter{Writer: w}
	err := NewEncoder(wc).Encode(m)
	return wc.N, err
}

// MarshalInto appends the unpacked framing of m to buf and returns the
// result.
func (m *Message) MarshalInto(buf []byte) ([]byte, error) {
	nsegs := m.NumSegments()
	if nsegs == 0 {
		return nil, exc.New(exc.InvalidMessageSize, "marshal", "message has no segments")
	}
	if nsegs > maxStreamSegments {
		return nil, exc.New(exc.SegmentCountLimitExceeded, "marshal", "too many segments")
	}
	hdrSize := streamHeaderSize(SegmentID(nsegs - 1))
	var dataSize uint64
	for i := int64(0); i < nsegs; i++ {
		s, err := m.Segment(SegmentID(i))
		if err != nil {
			return nil, exc.WrapError("marshal", err)
		}
		n := uint64(len(s.data))
		if n%uint64(wordSize) != 0 {
			return nil, exc.New(exc.InvalidMessageSize, "marshal", "segment "+str.Itod(i)+" not word-aligned")
		}
		if n > uint64(maxSegmentSize) {
			return nil, exc.New(exc.MessageTooLarge, "marshal", "segment "+str.Itod(i)+" too large")
		}
		dataSize += n
	}
	total := hdrSize + dataSize
	if buf == nil {
		buf = make([]byte, 0, int(total))
	}
	buf = binary.LittleEndian.AppendUint32(buf, uint32(nsegs-1))
	for i := int64(0); i < nsegs; i++ {
		s, err := m.Segment(SegmentID(i))
		if err != nil {
			return nil, exc.WrapError("marshal", err)
		}
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(s.data)/int(wordSize)))
	}
	if nsegs%2 == 0 {
		buf = binary.LittleEndian.AppendUint32(buf, 0)
	}
	for i := int64(0); i < nsegs; i++ {
		s, _ := m.Segment(SegmentID(i))
		buf = append(buf, s.data...)
	}
	return buf, nil
}

// Marshal is MarshalInto(nil).
func (m *Message) Marshal() ([]byte, error) {
	return m.MarshalInto(nil)
}

// MarshalPacked marshals m in the packed RLE format (C4).
func (m *Message) MarshalPacked() ([]byte, error) {
	data, err := m.Marshal()
	if err != nil {
		return nil, err
	}
	return packed.Pack(make([]byte, 0, len(data)), data), nil
}

// Unmarshal parses an unpacked stream, per the framing header format in
// §6, into a Message. The decoder copies each segment out of data, so
// the returned Message does not alias data.
func Unmarshal(data []byte) (*Message, error) {
	dec := NewDecoder(bytes.NewReader(data))
	msg, err := dec.Decode()
	if err != nil {
		return nil, exc.WrapError("unmarshal", err)
	}
	return msg, nil
}

// UnmarshalPacked unpacks data with the RLE codec and then parses the
// result as an unpacked stream.
func UnmarshalPacked(data []byte) (*Message, error) {
	unpacked, err := packed.Unpack(nil, data)
	if err != nil {
		return nil, exc.WrapError("unmarshal packed", err)
	}
	return Unmarshal(unpacked)
}

// streamHeaderSize returns the byte length of the unpacked stream header
// for a message with lastSeg+1 segments, including the padding word that
// keeps the header a multiple of 8 bytes.
func streamHeaderSize(lastSeg SegmentID) uint64 {
	n := uint64(lastSeg) + 1
	return (n/2 + 1) * 8
}

type writeCounter struct {
	N int64
	io.Writer
}

func (wc *writeCounter) Write(b []byte) (int, error) {
	n, err := wc.Writer.Write(b)
	wc.N += int64(n)
	return n, err
}
