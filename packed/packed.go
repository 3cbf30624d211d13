// Package packed implements the packed RLE byte codec for Cap'n Proto
// streams (C4): runs of all-zero words collapse to a tag-and-count pair,
// and runs of words with no zero bytes are emitted as a literal tag
// followed by the words verbatim.
package packed

import "github.com/relaycore/capnp/internal/exc"

const wordSize = 8

// Pack appends the packed encoding of src to dst and returns the result.
// len(src) must be a multiple of 8; Pack panics otherwise, since a
// non-word-aligned buffer can only come from a bug in the caller, never
// from untrusted wire data.
func Pack(dst, src []byte) []byte {
	if len(src)%wordSize != 0 {
		panic("packed: input length is not a multiple of the word size")
	}
	for len(src) > 0 {
		word := src[:wordSize]
		src = src[wordSize:]
		if isZeroWord(word) {
			n := 0
			for len(src) > 0 && n < 255 && isZeroWord(src[:wordSize]) {
				src = src[wordSize:]
				n++
			}
			dst = append(dst, 0x00, byte(n))
			continue
		}
		if hasNoZeroByte(word) {
			run := src
			count := 0
			for len(run) > 0 && count < 255 && hasNoZeroByte(run[:wordSize]) {
				run = run[wordSize:]
				count++
			}
			dst = append(dst, 0xff)
			dst = append(dst, word...)
			dst = append(dst, byte(count))
			dst = append(dst, src[:count*wordSize]...)
			src = src[count*wordSize:]
			continue
		}
		var tag byte
		var lit [wordSize]byte
		n := 0
		for i, b := range word {
			if b != 0 {
				tag |= 1 << uint(i)
				lit[n] = b
				n++
			}
		}
		dst = append(dst, tag)
		dst = append(dst, lit[:n]...)
	}
	return dst
}

func isZeroWord(w []byte) bool {
	for _, b := range w {
		if b != 0 {
			return false
		}
	}
	return true
}

func hasNoZeroByte(w []byte) bool {
	for _, b := range w {
		if b == 0 {
			return false
		}
	}
	return true
}

// Unpack appends the unpacked form of src to dst and returns it.
func Unpack(dst, src []byte) ([]byte, error) {
	for len(src) > 0 {
		tag := src[0]
		src = src[1:]
		switch tag {
		case 0x00:
			if len(src) < 1 {
				return nil, exc.New(exc.UnexpectedEOF, "unpack", "truncated zero-run tag")
			}
			n := int(src[0]) + 1
			src = src[1:]
			for i := 0; i < n; i++ {
				dst = append(dst, 0, 0, 0, 0, 0, 0, 0, 0)
			}
		case 0xff:
			if len(src) < wordSize {
				return nil, exc.New(exc.UnexpectedEOF, "unpack", "truncated literal word")
			}
			dst = append(dst, src[:wordSize]...)
			src = src[wordSize:]
			if len(src) < 1 {
				return nil, exc.New(exc.UnexpectedEOF, "unpack", "truncated literal run count")
			}
			m := int(src[0])
			src = src[1:]
			need := m * wordSize
			if len(src) < need {
				return nil, exc.New(exc.UnexpectedEOF, "unpack", "truncated literal run")
			}
			dst = append(dst, src[:need]...)
			src = src[need:]
		default:
			var word [wordSize]byte
			for i := 0; i < wordSize; i++ {
				if tag&(1<<uint(i)) != 0 {
					if len(src) < 1 {
						return nil, exc.New(exc.UnexpectedEOF, "unpack", "truncated sparse word")
					}
					word[i] = src[0]
					src = src[1:]
				}
			}
			dst = append(dst, word[:]...)
		}
	}
	return dst, nil
}
