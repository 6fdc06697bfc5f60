package jpeg

import (
	"bufio"
	"context"
	"io"
)

// byteSource feeds raw entropy-segment bytes to a bitReader. Byte stuffing
// and marker detection are the bitReader's job; a source only hands out
// bytes. Two implementations exist: one over a resident byte slice and one
// over a buffered stream with cooperative cancellation. The scan decoder
// never sees which one is in use.
type byteSource interface {
	next() (byte, error)
}

// memSource reads from an in-memory slice.
type memSource struct {
	data []byte
	pos  int
}

func (s *memSource) next() (byte, error) {
	if s.pos >= len(s.data) {
		return 0, io.EOF
	}
	b := s.data[s.pos]
	s.pos++
	return b, nil
}

// streamSource reads from a buffered reader and checks the context at I/O
// refill points, so a caller can abandon a long decode.
type streamSource struct {
	br    *bufio.Reader
	ctx   context.Context
	count int
}

func (s *streamSource) next() (byte, error) {
	if s.ctx != nil {
		if s.count&0x0FFF == 0 {
			if err := s.ctx.Err(); err != nil {
				return 0, err
			}
		}
		s.count++
	}
	return s.br.ReadByte()
}

// maxPadBytes is the number of 0xFF bytes synthesized after end of data, so
// that trailing Huffman codes decode harmlessly past EOI (the libjpeg
// convention).
const maxPadBytes = 4

// bitReader is the entropy-coded-segment transport. It buffers bytes
// MSB-first, removes 0xFF00 stuffing, and freezes byte consumption once a
// non-stuffed marker is observed, reporting it through the pending marker
// field instead of erroring.
type bitReader struct {
	src   byteSource
	buf   uint64 // right-aligned valid bits
	nbits int

	consumed int64 // bytes taken from src
	markerAt int64 // value of consumed when the pending marker's 0xFF was read

	marker    byte // pending marker, 0 if none
	synthetic bool // marker is the terminal EOI reported after padding ran out
	eod       bool // src exhausted
	padded    int  // synthesized pad bytes so far
}

func newBitReader(src byteSource) *bitReader {
	return &bitReader{src: src}
}

// fill tops the bit buffer up to at least 56 bits or until a marker or the
// end of data stops it.
func (r *bitReader) fill() {
	for r.nbits <= 56 {
		if r.marker != 0 {
			return
		}
		if r.eod {
			if r.padded >= maxPadBytes {
				r.marker = eoiMarker
				r.synthetic = true
				return
			}
			r.buf = r.buf<<8 | 0xFF
			r.nbits += 8
			r.padded++
			continue
		}

		b, err := r.src.next()
		if err != nil {
			if err != io.EOF {
				panic(errDecode{err})
			}
			r.eod = true
			continue
		}
		r.consumed++

		if b == 0xFF {
			b2, err := r.src.next()
			if err != nil {
				if err != io.EOF {
					panic(errDecode{err})
				}
				// Lone 0xFF at end of data: treat as data.
				r.eod = true
			} else {
				r.consumed++
				if b2 != 0x00 {
					// A marker ends the entropy segment. The 0xFF is not
					// data; stop consuming and let the caller decide.
					r.marker = b2
					r.markerAt = r.consumed - 2
					return
				}
				// Stuffed 0xFF00: the 0xFF is a literal data byte.
			}
		}

		r.buf = r.buf<<8 | uint64(b)
		r.nbits += 8
	}
}

// bytesConsumed reports how many source bytes the reader has used up,
// excluding a pending marker's two bytes so the marker parser sees them
// again.
func (r *bitReader) bytesConsumed() int64 {
	if r.marker != 0 && !r.synthetic {
		return r.markerAt
	}
	return r.consumed
}

func (r *bitReader) pendingMarker() byte {
	if r.synthetic {
		return 0
	}
	return r.marker
}

func (r *bitReader) truncated() {
	panic(errDecode{&TruncationError{
		Offset:        r.bytesConsumed(),
		Bits:          r.nbits,
		PendingMarker: r.marker,
	}})
}

// peekBits returns the next n bits without consuming them. If fewer than n
// bits remain before a marker, the value is padded on the right with 1-bits
// (0xFF semantics), which at worst synthesizes a code the following read
// will then fail on.
func (r *bitReader) peekBits(n int) int {
	if r.nbits < n {
		r.fill()
	}
	if r.nbits >= n {
		return int(r.buf>>(r.nbits-n)) & (1<<n - 1)
	}
	short := n - r.nbits
	return (int(r.buf)<<short | (1<<short - 1)) & (1<<n - 1)
}

// readBits reads and consumes n bits. Requesting more bits than remain
// after a marker stop is a decode error carrying the reader diagnostics.
func (r *bitReader) readBits(n int) int32 {
	if n == 0 {
		return 0
	}
	if r.nbits < n {
		r.fill()
		if r.nbits < n {
			r.truncated()
		}
	}
	r.nbits -= n
	v := int32(r.buf>>r.nbits) & (1<<n - 1)
	r.buf &= 1<<r.nbits - 1
	return v
}

func (r *bitReader) readBit() int32 {
	return r.readBits(1)
}

func (r *bitReader) skipBits(n int) {
	if n == 0 {
		return
	}
	if r.nbits < n {
		r.fill()
		if r.nbits < n {
			r.truncated()
		}
	}
	r.nbits -= n
	r.buf &= 1<<r.nbits - 1
}

// receiveExtend reads a size-bit magnitude and applies the T.81 EXTEND
// sign remap: values below 2^(size-1) become negative.
func (r *bitReader) receiveExtend(size int) int32 {
	v := r.readBits(size)
	if v < 1<<(size-1) {
		v += (-1 << size) + 1
	}
	return v
}

// alignToByte drops any leftover sub-byte bits, used before consuming a
// restart marker.
func (r *bitReader) alignToByte() {
	r.nbits &^= 7
	r.buf &= 1<<r.nbits - 1
}

// restartMarker byte-aligns the stream and consumes a pending RST0..RST7
// marker borne by the reader. It reports failure when whole unconsumed data
// bytes remain (predictor desync) or when something other than a restart
// marker is pending.
func (r *bitReader) restartMarker() (byte, bool) {
	r.alignToByte()
	if r.marker == 0 && r.nbits == 0 {
		r.fill()
	}
	if r.nbits != 0 || r.synthetic {
		return 0, false
	}
	if r.marker < rst0Marker || r.marker > rst7Marker {
		return 0, false
	}
	m := r.marker
	r.marker = 0
	return m, true
}
