package jpeg

import "io"

// writer is a buffered writer.
type writer interface {
	Flush() error
	io.Writer
	io.ByteWriter
}

// encoder encodes an image to the JPEG format.
type encoder struct {
	// w is the writer to write to. err is the first error encountered
	// during writing. All attempted writes after the first error become
	// no-ops.
	w   writer
	err error
	// buf is a scratch buffer.
	buf [16]byte
	// bits and nBits are accumulated bits to write to w.
	bits, nBits uint32
	// quant is the scaled quantization tables, in zigzag order.
	quant [nQuantIndex][blockSize]byte
}

func (e *encoder) flush() {
	if e.err != nil {
		return
	}
	e.err = e.w.Flush()
}

func (e *encoder) write(p []byte) {
	if e.err != nil {
		return
	}
	_, e.err = e.w.Write(p)
}

func (e *encoder) writeByte(b byte) {
	if e.err != nil {
		return
	}
	e.err = e.w.WriteByte(b)
}

// emit emits the least significant nBits bits of bits to the bit-stream.
// The precondition is bits < 1<<nBits && nBits <= 16. A 0xFF data byte is
// followed by a stuffing 0x00 so it cannot be mistaken for a marker.
func (e *encoder) emit(bits, nBits uint32) {
	nBits += e.nBits
	bits <<= 32 - nBits
	bits |= e.bits
	for nBits >= 8 {
		b := uint8(bits >> 24)
		e.writeByte(b)
		if b == 0xFF {
			e.writeByte(0x00)
		}
		bits <<= 8
		nBits -= 8
	}
	e.bits, e.nBits = bits, nBits
}

// emitHuff emits the given value with the given Huffman encoder.
func (e *encoder) emitHuff(h huffIndex, value int32) {
	x := theHuffmanLUT[h][value]
	e.emit(x&(1<<24-1), x>>24)
}

// emitHuffRLE emits a run of runLength copies of value encoded with the
// given Huffman encoder.
func (e *encoder) emitHuffRLE(h huffIndex, runLength, value int32) {
	a, b := value, value
	if a < 0 {
		a, b = -value, value-1
	}
	var nBits uint32
	if a < 0x100 {
		nBits = uint32(bitCount[a])
	} else {
		nBits = 8 + uint32(bitCount[a>>8])
	}
	e.emitHuff(h, runLength<<4|int32(nBits))
	if nBits > 0 {
		e.emit(uint32(b)&(1<<nBits-1), nBits)
	}
}

// emitEOBRun ends a run of all-zero bands. The fixed K.3 tables carry no
// EOBn symbols, so a run of n bands is coded as n plain EOBs rather than a
// single counted run.
func (e *encoder) emitEOBRun(h huffIndex, run int32) {
	for ; run > 0; run-- {
		e.emitHuff(h, 0x00)
	}
}

// flushBits pads the last partial byte with 1-bits and writes it out.
func (e *encoder) flushBits() {
	e.emit(0x7F, 7)
	e.bits, e.nBits = 0, 0
}

// writeMarkerHeader writes the header for a marker with the given length.
func (e *encoder) writeMarkerHeader(marker uint8, markerlen int) {
	e.buf[0] = 0xFF
	e.buf[1] = marker
	e.buf[2] = uint8(markerlen >> 8)
	e.buf[3] = uint8(markerlen & 0xFF)
	e.write(e.buf[:4])
}

// writeDQT writes the Define Quantization Table marker.
func (e *encoder) writeDQT(nQuant int) {
	markerlen := 2 + nQuant*(1+blockSize)
	e.writeMarkerHeader(dqtMarker, markerlen)
	for i := 0; i < nQuant; i++ {
		e.writeByte(uint8(i))
		e.write(e.quant[i][:])
	}
}

// writeSOF writes the Start Of Frame marker, baseline or progressive.
func (e *encoder) writeSOF(width, height, nComponent int, subsample420, progressive bool) {
	marker := uint8(sof0Marker)
	if progressive {
		marker = sof2Marker
	}
	markerlen := 8 + 3*nComponent
	e.writeMarkerHeader(marker, markerlen)
	e.buf[0] = 8 // 8-bit samples
	e.buf[1] = uint8(height >> 8)
	e.buf[2] = uint8(height & 0xFF)
	e.buf[3] = uint8(width >> 8)
	e.buf[4] = uint8(width & 0xFF)
	e.buf[5] = uint8(nComponent)
	if nComponent == 1 {
		e.buf[6] = 1
		e.buf[7] = 0x11
		e.buf[8] = 0x00
	} else {
		lumaHV := byte(0x11)
		if subsample420 {
			lumaHV = 0x22
		}
		for i := 0; i < nComponent; i++ {
			e.buf[3*i+6] = uint8(i + 1)
			if i == 0 {
				e.buf[3*i+7] = lumaHV
				e.buf[3*i+8] = 0x00
			} else {
				e.buf[3*i+7] = 0x11
				e.buf[3*i+8] = 0x01
			}
		}
	}
	e.write(e.buf[:3*(nComponent-1)+9])
}

// writeDHT writes the Define Huffman Table marker.
func (e *encoder) writeDHT(nComponent int) {
	markerlen := 2
	specs := theHuffmanSpec[:]
	if nComponent == 1 {
		// Drop the chrominance tables.
		specs = specs[:2]
	}
	for _, s := range specs {
		markerlen += 1 + 16 + len(s.value)
	}
	e.writeMarkerHeader(dhtMarker, markerlen)
	for i, s := range specs {
		e.writeByte("\x00\x10\x01\x11"[i])
		e.write(s.count[:])
		e.write(s.value)
	}
}

// writeDRI writes the Define Restart Interval marker.
func (e *encoder) writeDRI(interval int) {
	e.writeMarkerHeader(driMarker, 4)
	e.buf[0] = uint8(interval >> 8)
	e.buf[1] = uint8(interval & 0xFF)
	e.write(e.buf[:2])
}

// sosComponent describes one component entry of a scan header.
type sosComponent struct {
	id    uint8
	dcTab uint8
	acTab uint8
}

// writeSOS writes a Start Of Scan header. Baseline scans use
// Ss=0, Se=63, Ah=Al=0.
func (e *encoder) writeSOS(comps []sosComponent, ss, se, ah, al int) {
	markerlen := 6 + 2*len(comps)
	e.writeMarkerHeader(sosMarker, markerlen)
	e.buf[0] = uint8(len(comps))
	n := 1
	for _, c := range comps {
		e.buf[n] = c.id
		e.buf[n+1] = c.dcTab<<4 | c.acTab
		n += 2
	}
	e.buf[n] = uint8(ss)
	e.buf[n+1] = uint8(se)
	e.buf[n+2] = uint8(ah)<<4 | uint8(al)
	e.write(e.buf[:n+3])
}

// writeAPP0 writes the JFIF signature segment.
func (e *encoder) writeAPP0() {
	e.writeMarkerHeader(app0Marker, 16)
	e.write([]byte("JFIF\x00\x01\x01\x00\x00\x01\x00\x01\x00\x00"))
}

// writeAPP1 re-emits an EXIF payload, patching the orientation tag so it
// matches the pixel data being written.
func (e *encoder) writeAPP1(exifRaw []byte, orientation int) {
	if len(exifRaw) == 0 {
		return
	}
	if len(exifRaw)+2 > 0xFFFF {
		e.setErr(headerErr("EXIF payload of %d bytes does not fit an APP1 segment", len(exifRaw)))
		return
	}
	payload := make([]byte, len(exifRaw))
	copy(payload, exifRaw)
	if orientation < 1 || orientation > 8 {
		orientation = 1
	}
	patchExifOrientation(payload, uint16(orientation))
	e.writeMarkerHeader(app1Marker, 2+len(payload))
	e.write(payload)
}

// iccChunkSize is the largest ICC chunk payload an APP2 segment can carry:
// 65535 minus the length field, the signature and the seq/count bytes.
const iccChunkSize = 0xFFFF - 2 - len(iccSignature) - 2

// writeAPP2 emits an ICC profile across as many APP2 segments as needed.
func (e *encoder) writeAPP2(profile []byte) {
	if len(profile) == 0 {
		return
	}
	count := (len(profile) + iccChunkSize - 1) / iccChunkSize
	if count > 255 {
		e.setErr(headerErr("ICC profile of %d bytes exceeds 255 APP2 chunks", len(profile)))
		return
	}
	for seq := 1; seq <= count; seq++ {
		chunk := profile
		if len(chunk) > iccChunkSize {
			chunk = chunk[:iccChunkSize]
		}
		profile = profile[len(chunk):]
		e.writeMarkerHeader(app2Marker, 2+len(iccSignature)+2+len(chunk))
		e.write([]byte(iccSignature))
		e.writeByte(uint8(seq))
		e.writeByte(uint8(count))
		e.write(chunk)
	}
}

func (e *encoder) setErr(err error) {
	if e.err == nil {
		e.err = err
	}
}
