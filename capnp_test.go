package capnp_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	capnp "github.com/relaycore/capnp"
)

func TestStructPrimitiveRoundTrip(t *testing.T) {
	_, seg := capnp.NewSingleSegmentMessage(nil)
	s, err := capnp.NewRootStruct(seg, capnp.ObjectSize{DataSize: 16, PointerCount: 1})
	require.NoError(t, err)

	s.SetUint32(capnp.DataOffset(0), 42)
	s.SetUint64(capnp.DataOffset(8), 0xdeadbeef)
	s.SetBool(capnp.DataOffset(4), 0, true)

	assert.Equal(t, uint32(42), s.Uint32(capnp.DataOffset(0)))
	assert.Equal(t, uint64(0xdeadbeef), s.Uint64(capnp.DataOffset(8)))
	assert.True(t, s.Bool(capnp.DataOffset(4), 0))
}

func TestStructOutOfRangeReadsZero(t *testing.T) {
	_, seg := capnp.NewSingleSegmentMessage(nil)
	s, err := capnp.NewRootStruct(seg, capnp.ObjectSize{DataSize: 8})
	require.NoError(t, err)

	// Reading past the struct's declared data size must return the zero
	// value rather than erroring, so old readers tolerate newer writers.
	assert.Equal(t, uint64(0), s.Uint64(capnp.DataOffset(64)))
}

func TestStructNullPointerDefaults(t *testing.T) {
	_, seg := capnp.NewSingleSegmentMessage(nil)
	s, err := capnp.NewRootStruct(seg, capnp.ObjectSize{PointerCount: 1})
	require.NoError(t, err)

	text, err := s.TextAt(0)
	require.NoError(t, err)
	assert.Equal(t, "", text)

	data, err := s.DataAt(0)
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestTextRoundTripAcrossSegments(t *testing.T) {
	msg, seg := capnp.NewMultiSegmentMessage([][]byte{nil})
	root, err := capnp.NewRootStruct(seg, capnp.ObjectSize{PointerCount: 1})
	require.NoError(t, err)

	// Allocate more than the first segment's capacity so the arena spills
	// into a second segment, forcing the pointer below to be a far pointer.
	_, err = capnp.NewUInt8List(seg, 9000)
	require.NoError(t, err)
	require.Equal(t, int64(2), msg.NumSegments())

	other, err := msg.Segment(1)
	require.NoError(t, err)
	p, err := capnp.NewText(other, "hello, cap'n proto")
	require.NoError(t, err)
	require.NoError(t, root.SetPtr(0, p))

	got, err := root.TextAt(0)
	require.NoError(t, err)
	assert.Equal(t, "hello, cap'n proto", got)
}

func TestPointerListRoundTrip(t *testing.T) {
	_, seg := capnp.NewSingleSegmentMessage(nil)
	root, err := capnp.NewRootStruct(seg, capnp.ObjectSize{PointerCount: 1})
	require.NoError(t, err)

	pl, err := capnp.NewPointerList(seg, 3)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		p, err := capnp.NewText(seg, "item")
		require.NoError(t, err)
		require.NoError(t, pl.Set(i, p))
	}
	require.NoError(t, root.SetPtr(0, pl.ToPtr()))

	back, err := root.Ptr(0)
	require.NoError(t, err)
	backList := capnp.PointerList(back.List())
	require.Equal(t, 3, backList.Len())
	for i := 0; i < 3; i++ {
		p, err := backList.At(i)
		require.NoError(t, err)
		text, err := p.Text()
		require.NoError(t, err)
		assert.Equal(t, "item", text)
	}
}

func TestCompositeListElementRoundTrip(t *testing.T) {
	_, seg := capnp.NewSingleSegmentMessage(nil)
	l, err := capnp.NewCompositeList(seg, capnp.ObjectSize{DataSize: 8, PointerCount: 1}, 2)
	require.NoError(t, err)

	l.Struct(0).SetUint64(capnp.DataOffset(0), 7)
	l.Struct(1).SetUint64(capnp.DataOffset(0), 9)

	assert.Equal(t, uint64(7), l.Struct(0).Uint64(capnp.DataOffset(0)))
	assert.Equal(t, uint64(9), l.Struct(1).Uint64(capnp.DataOffset(0)))
}

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	msg, seg := capnp.NewSingleSegmentMessage(nil)
	root, err := capnp.NewRootStruct(seg, capnp.ObjectSize{DataSize: 8})
	require.NoError(t, err)
	root.SetUint64(capnp.DataOffset(0), 0x0102030405060708)

	data, err := msg.Marshal()
	require.NoError(t, err)

	back, err := capnp.Unmarshal(data)
	require.NoError(t, err)
	backRoot, err := back.Root()
	require.NoError(t, err)
	assert.Equal(t, uint64(0x0102030405060708), backRoot.Struct().Uint64(capnp.DataOffset(0)))
}

func TestMarshalPackedUnmarshalPackedRoundTrip(t *testing.T) {
	msg, seg := capnp.NewSingleSegmentMessage(nil)
	root, err := capnp.NewRootStruct(seg, capnp.ObjectSize{PointerCount: 1})
	require.NoError(t, err)
	require.NoError(t, root.SetText(0, "round trip me"))

	data, err := msg.MarshalPacked()
	require.NoError(t, err)

	back, err := capnp.UnmarshalPacked(data)
	require.NoError(t, err)
	backRoot, err := back.Root()
	require.NoError(t, err)
	text, err := backRoot.Struct().TextAt(0)
	require.NoError(t, err)
	assert.Equal(t, "round trip me", text)
}

func TestCanonicalizeIsIdempotent(t *testing.T) {
	_, seg := capnp.NewSingleSegmentMessage(nil)
	root, err := capnp.NewRootStruct(seg, capnp.ObjectSize{DataSize: 16, PointerCount: 1})
	require.NoError(t, err)
	root.SetUint64(capnp.DataOffset(0), 123)
	require.NoError(t, root.SetText(0, "canon"))

	first, err := capnp.Canonicalize(root)
	require.NoError(t, err)

	// Canonicalize returns bare segment bytes, so frame them as a
	// one-segment stream before Unmarshal.
	framed := append([]byte{0, 0, 0, 0, byte(len(first) / 8), 0, 0, 0}, first...)
	msg2, err := capnp.Unmarshal(framed)
	require.NoError(t, err)
	root2, err := msg2.Root()
	require.NoError(t, err)

	second, err := capnp.Canonicalize(root2.Struct())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestCloneProducesIndependentCopy(t *testing.T) {
	_, srcSeg := capnp.NewSingleSegmentMessage(nil)
	src, err := capnp.NewRootStruct(srcSeg, capnp.ObjectSize{PointerCount: 1})
	require.NoError(t, err)
	require.NoError(t, src.SetText(0, "cloned"))

	_, dstSeg := capnp.NewSingleSegmentMessage(nil)
	cloned, err := capnp.Clone(dstSeg, src.ToPtr())
	require.NoError(t, err)

	text, err := cloned.Struct().TextAt(0)
	require.NoError(t, err)
	assert.Equal(t, "cloned", text)

	require.NoError(t, src.SetText(0, "mutated"))
	text2, err := cloned.Struct().TextAt(0)
	require.NoError(t, err)
	assert.Equal(t, "cloned", text2, "clone must not alias the source segment")
}

func TestInvalidSegmentCountRejected(t *testing.T) {
	data := []byte{0xff, 0xff, 0xff, 0xff, 0, 0, 0, 0}
	_, err := capnp.Unmarshal(data)
	assert.Error(t, err)
}
