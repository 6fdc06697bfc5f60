package jpeg

// EXIF payloads embed a little TIFF file: a byte-order mark, the magic
// number 42, and a chain of IFDs whose entries are 12 bytes each. Only the
// orientation tag from the first IFD matters here.

const (
	exifTagOrientation = 0x0112
	exifTypeShort      = 3
)

var exifSignature = []byte("Exif\x00\x00")

// tiffReader reads 16/32-bit integers from a TIFF payload in its declared
// byte order. All offsets are relative to the TIFF header.
type tiffReader struct {
	data         []byte
	littleEndian bool
}

func (t *tiffReader) ok(offset, n int) bool {
	return offset >= 0 && offset+n <= len(t.data)
}

func (t *tiffReader) read16(offset int) uint16 {
	if t.littleEndian {
		return uint16(t.data[offset]) | uint16(t.data[offset+1])<<8
	}
	return uint16(t.data[offset])<<8 | uint16(t.data[offset+1])
}

func (t *tiffReader) read32(offset int) uint32 {
	if t.littleEndian {
		return uint32(t.data[offset]) | uint32(t.data[offset+1])<<8 |
			uint32(t.data[offset+2])<<16 | uint32(t.data[offset+3])<<24
	}
	return uint32(t.data[offset])<<24 | uint32(t.data[offset+1])<<16 |
		uint32(t.data[offset+2])<<8 | uint32(t.data[offset+3])
}

// exifOrientationEntry locates the orientation entry inside an APP1 payload
// (including the "Exif\x00\x00" signature). It returns the offset of the
// entry's value bytes relative to the payload start, the parsed reader, and
// whether the entry was found.
func exifOrientationEntry(payload []byte) (valueOffset int, t tiffReader, found bool) {
	if len(payload) < len(exifSignature)+8 || string(payload[:6]) != string(exifSignature) {
		return 0, tiffReader{}, false
	}
	t.data = payload[6:]
	switch {
	case t.data[0] == 'I' && t.data[1] == 'I':
		t.littleEndian = true
	case t.data[0] == 'M' && t.data[1] == 'M':
		t.littleEndian = false
	default:
		return 0, tiffReader{}, false
	}
	if t.read16(2) != 42 {
		return 0, tiffReader{}, false
	}

	ifdOffset := int(t.read32(4))
	if ifdOffset < 8 || !t.ok(ifdOffset, 2) {
		return 0, tiffReader{}, false
	}
	numEntries := int(t.read16(ifdOffset))
	entryOffset := ifdOffset + 2
	// Clamp the entry count to what the segment actually holds.
	if !t.ok(entryOffset, numEntries*12) {
		numEntries = (len(t.data) - entryOffset) / 12
	}

	for i := 0; i < numEntries; i++ {
		if t.read16(entryOffset) == exifTagOrientation {
			if t.read16(entryOffset+2) != exifTypeShort || t.read32(entryOffset+4) != 1 {
				return 0, tiffReader{}, false
			}
			return len(exifSignature) + entryOffset + 8, t, true
		}
		entryOffset += 12
	}
	return 0, tiffReader{}, false
}

// exifOrientation returns the orientation tag value from an APP1 payload,
// or 1 (top-left) when the payload carries none.
func exifOrientation(payload []byte) int {
	valueOffset, t, found := exifOrientationEntry(payload)
	if !found {
		return 1
	}
	v := t.read16(valueOffset - len(exifSignature))
	if v < 1 || v > 8 {
		return 1
	}
	return int(v)
}

// patchExifOrientation rewrites the orientation tag in place. Passing a
// decoded-then-rotated image's EXIF through unchanged would make viewers
// rotate it a second time, so a re-encoder resets the tag to 1.
func patchExifOrientation(payload []byte, orientation uint16) {
	valueOffset, t, found := exifOrientationEntry(payload)
	if !found {
		return
	}
	if t.littleEndian {
		payload[valueOffset] = byte(orientation)
		payload[valueOffset+1] = byte(orientation >> 8)
	} else {
		payload[valueOffset] = byte(orientation >> 8)
		payload[valueOffset+1] = byte(orientation)
	}
}
