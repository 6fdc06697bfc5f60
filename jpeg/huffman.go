package jpeg

import "fmt"

const (
	// maxCodeLength is the longest Huffman code the format allows.
	maxCodeLength = 16
	// huffFastBits is the span of the direct lookup table. Codes no longer
	// than this decode with a single peek; longer ones fall back to the
	// canonical min/max-code walk.
	huffFastBits = 9
)

// huffTable is a decode-side Huffman table: a direct lookup table for short
// codes plus the canonical minCode/maxCode/valPtr structure for the rest.
type huffTable struct {
	defined bool
	// fast maps the next huffFastBits raw bits to length<<8|symbol for
	// every code of length <= huffFastBits. Zero means no short code has
	// that prefix.
	fast [1 << huffFastBits]uint16
	// minCode/maxCode/valPtr are indexed by code length 1..16. Unused
	// lengths carry maxCode == -1.
	minCode [maxCodeLength + 1]int32
	maxCode [maxCodeLength + 1]int32
	valPtr  [maxCodeLength + 1]int32
	// symbols, ordered by code value.
	symbols [256]uint8
	nsym    int
}

// build constructs the canonical code assignment from a DHT record: for each
// length in increasing order, assign count[length] sequential codes, then
// left-shift the running code when moving to the next length.
func (h *huffTable) build(counts *[16]byte, symbols []byte) error {
	nsym := 0
	for _, c := range counts {
		nsym += int(c)
	}
	if nsym == 0 || nsym > 256 || nsym != len(symbols) {
		return ErrSyntax
	}

	*h = huffTable{defined: true, nsym: nsym}
	copy(h.symbols[:], symbols)

	code := int32(0)
	k := int32(0)
	for length := 1; length <= maxCodeLength; length++ {
		n := int32(counts[length-1])
		if n == 0 {
			h.maxCode[length] = -1
			code <<= 1
			continue
		}
		if code+n > 1<<length {
			// More codes than the length can hold: not a prefix code.
			return ErrSyntax
		}
		h.minCode[length] = code
		h.valPtr[length] = k
		if length <= huffFastBits {
			for i := int32(0); i < n; i++ {
				entry := uint16(length)<<8 | uint16(h.symbols[k+i])
				base := (code + i) << (huffFastBits - length)
				span := int32(1) << (huffFastBits - length)
				for j := int32(0); j < span; j++ {
					h.fast[base+j] = entry
				}
			}
		}
		code += n
		k += n
		h.maxCode[length] = code - 1
		code <<= 1
	}
	return nil
}

// decodeHuffman reads one Huffman-coded symbol from r.
func decodeHuffman(r *bitReader, h *huffTable) uint8 {
	v := r.peekBits(huffFastBits)
	if e := h.fast[v]; e != 0 {
		r.skipBits(int(e >> 8))
		return uint8(e)
	}

	// The code is longer than the fast span: accumulate bit by bit and
	// compare against the canonical per-length code ranges.
	code := int32(0)
	for length := 1; length <= maxCodeLength; length++ {
		code = code<<1 | r.readBit()
		if h.maxCode[length] >= 0 && code <= h.maxCode[length] && code >= h.minCode[length] {
			return h.symbols[h.valPtr[length]+code-h.minCode[length]]
		}
	}
	panic(errDecode{fmt.Errorf("jpeg: invalid huffman code at byte %d (%d bits buffered, pending marker 0x%02x): %w",
		r.bytesConsumed(), r.nbits, r.marker, ErrSyntax)})
}

// huffmanLUT is the encode-side mirror: each symbol maps to a uint32 whose
// 8 most significant bits hold the code length and whose low bits hold the
// code itself.
type huffmanLUT []uint32

func (h *huffmanLUT) init(s huffmanSpec) {
	maxValue := 0
	for _, v := range s.value {
		if int(v) > maxValue {
			maxValue = int(v)
		}
	}
	*h = make([]uint32, maxValue+1)
	code, k := uint32(0), 0
	for i := 0; i < len(s.count); i++ {
		nBits := uint32(i+1) << 24
		for j := uint8(0); j < s.count[i]; j++ {
			(*h)[s.value[k]] = nBits | code
			code++
			k++
		}
		code <<= 1
	}
}

// theHuffmanLUT are compiled representations of theHuffmanSpec.
var theHuffmanLUT [nHuffIndex]huffmanLUT

func init() {
	for i, s := range theHuffmanSpec {
		theHuffmanLUT[i].init(s)
	}
}
