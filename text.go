package capnp

import (
	"unicode/utf8"

	"github.com/relaycore/capnp/internal/exc"
)

// Text returns p's text value. Per spec.md §3, text is stored as a 1-byte
// list with a trailing NUL included in the element count; Text strips
// that trailing NUL if present. A null pointer slot reads back as "".
func (p Ptr) Text() (string, error) {
	if !p.IsValid() {
		return "", nil
	}
	l := p.List()
	if !l.IsValid() {
		return "", exc.New(exc.InvalidTextPointer, "read text", "pointer is not a list")
	}
	if l.flags&(isBitList|isCompositeList) != 0 || l.size.PointerCount != 0 || l.size.DataSize != 1 {
		return "", exc.New(exc.InvalidTextPointer, "read text", "element size is not 1 byte")
	}
	data := l.regionBytes()
	if n := len(data); n > 0 && data[n-1] == 0 {
		data = data[:n-1]
	}
	return string(data), nil
}

// TextStrict is Text but additionally rejects malformed UTF-8.
func (p Ptr) TextStrict() (string, error) {
	s, err := p.Text()
	if err != nil {
		return "", err
	}
	if !utf8.ValidString(s) {
		return "", exc.New(exc.InvalidUTF8, "read text", "text is not valid utf-8")
	}
	return s, nil
}

// regionBytes returns the raw bytes of a non-composite list's content.
func (l List) regionBytes() []byte {
	if l.seg == nil {
		return nil
	}
	sz, _ := l.size.totalSize().times(l.length)
	return l.seg.slice(l.off, sz)
}

// Data returns p's data value: the raw bytes of a 1-byte list, with no
// trailing-NUL convention (unlike Text).
func (p Ptr) Data() ([]byte, error) {
	if !p.IsValid() {
		return nil, nil
	}
	l := p.List()
	if !l.IsValid() {
		return nil, exc.New(exc.InvalidTextPointer, "read data", "pointer is not a list")
	}
	if l.flags&(isBitList|isCompositeList) != 0 || l.size.PointerCount != 0 || l.size.DataSize != 1 {
		return nil, exc.New(exc.InvalidListElementSize, "read data", "element size is not 1 byte")
	}
	return l.regionBytes(), nil
}

// NewText allocates a text value equal to v, including the trailing NUL,
// in s.
func NewText(s *Segment, v string) (Ptr, error) {
	l, err := newPrimitiveList(s, 1, int32(len(v))+1)
	if err != nil {
		return Ptr{}, exc.WrapError("new text", err)
	}
	copy(l.regionBytes(), v)
	return l.ToPtr(), nil
}

// NewData allocates a data value equal to v in s.
func NewData(s *Segment, v []byte) (Ptr, error) {
	l, err := newPrimitiveList(s, 1, int32(len(v)))
	if err != nil {
		return Ptr{}, exc.WrapError("new data", err)
	}
	copy(l.regionBytes(), v)
	return l.ToPtr(), nil
}

// SetText allocates a text value and writes it into pointer slot i of s.
func (s Struct) SetText(i uint16, v string) error {
	p, err := NewText(s.seg, v)
	if err != nil {
		return err
	}
	return s.SetPtr(i, p)
}

// SetData allocates a data value and writes it into pointer slot i of s.
func (s Struct) SetData(i uint16, v []byte) error {
	p, err := NewData(s.seg, v)
	if err != nil {
		return err
	}
	return s.SetPtr(i, p)
}

// TextAt reads pointer slot i as text.
func (s Struct) TextAt(i uint16) (string, error) {
	p, err := s.Ptr(i)
	if err != nil {
		return "", err
	}
	return p.Text()
}

// DataAt reads pointer slot i as data.
func (s Struct) DataAt(i uint16) ([]byte, error) {
	p, err := s.Ptr(i)
	if err != nil {
		return nil, err
	}
	return p.Data()
}
