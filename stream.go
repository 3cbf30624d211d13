package capnp

import (
	"encoding/binary"
	"io"

	"github.com/relaycore/capnp/internal/exc"
	"github.com/relaycore/capnp/internal/str"
)

// An Encoder writes the unpacked stream framing of C4 to an underlying
// writer: a segment-count/segment-size header followed by the segment
// payloads back to back.
type Encoder struct {
	w io.Writer
}

// NewEncoder returns an Encoder that writes to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode writes m's segments to e's writer.
func (e *Encoder) Encode(m *Message) error {
	data, err := m.Marshal()
	if err != nil {
		return exc.WrapError("encode", err)
	}
	if _, err := e.w.Write(data); err != nil {
		return exc.WrapError("encode", err)
	}
	return nil
}

// A Decoder reads the unpacked stream framing of C4 from an underlying
// reader.
type Decoder struct {
	r io.Reader

	// MaxSegments and MaxTotalSize cap the segment count and total byte
	// size a single Decode will accept, defaulting to the C4 limits
	// (512 segments, 8Mi words).
	MaxSegments  uint32
	MaxTotalSize uint64

	// TraverseLimit and DepthLimit are applied to every Message this
	// Decoder produces. Zero means the package defaults.
	TraverseLimit uint64
	DepthLimit    uint
}

// NewDecoder returns a Decoder that reads from r, applying the C4 default
// caps (512 segments, 8Mi words total).
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r, MaxSegments: maxStreamSegments, MaxTotalSize: maxTotalWords * uint64(wordSize)}
}

// Decode reads one message from d's reader.
func (d *Decoder) Decode() (*Message, error) {
	var first [4]byte
	if _, err := io.ReadFull(d.r, first[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, exc.New(exc.UnexpectedEOF, "decode", "reading segment count")
	}
	segCount := uint64(binary.LittleEndian.Uint32(first[:])) + 1
	maxSegs := uint64(d.MaxSegments)
	if maxSegs == 0 {
		maxSegs = maxStreamSegments
	}
	if segCount > maxSegs {
		return nil, exc.Raise(exc.SegmentCountLimitExceeded, "decode", "segment count %s exceeds limit %s", str.Utod(segCount), str.Utod(maxSegs))
	}
	sizeHdr := make([]byte, 4*segCount)
	if _, err := io.ReadFull(d.r, sizeHdr); err != nil {
		return nil, exc.New(exc.UnexpectedEOF, "decode", "reading segment size table")
	}
	if segCount%2 == 0 {
		var pad [4]byte
		if _, err := io.ReadFull(d.r, pad[:]); err != nil {
			return nil, exc.New(exc.UnexpectedEOF, "decode", "reading header padding")
		}
	}
	maxTotal := d.MaxTotalSize
	if maxTotal == 0 {
		maxTotal = maxTotalWords * uint64(wordSize)
	}
	sizes := make([]uint64, segCount)
	var totalBytes uint64
	for i := range sizes {
		sizes[i] = uint64(binary.LittleEndian.Uint32(sizeHdr[4*i:])) * uint64(wordSize)
		totalBytes += sizes[i]
		if totalBytes > maxTotal {
			return nil, exc.New(exc.MessageTooLarge, "decode", "total segment size exceeds limit")
		}
	}
	segs := make([][]byte, segCount)
	for i, n := range sizes {
		buf := make([]byte, n)
		if _, err := io.ReadFull(d.r, buf); err != nil {
			return nil, exc.New(exc.UnexpectedEOF, "decode", "reading segment payload")
		}
		segs[i] = buf
	}
	var msg Message
	msg.TraverseLimit = d.TraverseLimit
	msg.DepthLimit = d.DepthLimit
	msg.ResetForRead(MultiSegment(segs))
	return &msg, nil
}
