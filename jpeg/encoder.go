package jpeg

import (
	"bufio"
	"image"
	"image/color"
	"io"
)

// DefaultQuality is the quality encoding parameter used when none is given.
const DefaultQuality = 90

// EncoderOptions are the encoding parameters. A nil *EncoderOptions means
// quality DefaultQuality, 4:4:4 chroma, baseline, no restart markers and no
// metadata.
type EncoderOptions struct {
	// Quality ranges from 1 to 100 inclusive, higher is better.
	Quality int
	// Subsample420 halves the chroma resolution in both directions.
	Subsample420 bool
	// Progressive writes a spectral-selection progressive stream instead
	// of a baseline sequential one.
	Progressive bool
	// RestartInterval, when positive, inserts a restart marker every that
	// many MCUs (blocks, in non-interleaved progressive scans).
	RestartInterval int
	// Metadata, when non-nil, is re-emitted into the output: the EXIF
	// payload as an APP1 segment with its orientation tag patched, and
	// the ICC profile as a chain of APP2 segments.
	Metadata *Metadata
}

// writeBlock writes a block of pixel data using the given quantization
// table, returning the post-quantization DC value of the DCT-transformed
// block. b is in natural (row-major) order.
func (e *encoder) writeBlock(b *block, q quantIndex, prevDC int32) int32 {
	fdct(b)
	// Emit the DC delta.
	dc := div(b[0], 8*int32(e.quant[q][0]))
	e.emitHuffRLE(huffIndex(2*q+0), 0, dc-prevDC)
	// Emit the AC components.
	h, runLength := huffIndex(2*q+1), int32(0)
	for zig := 1; zig < blockSize; zig++ {
		ac := div(b[unzig[zig]], 8*int32(e.quant[q][zig]))
		if ac == 0 {
			runLength++
		} else {
			for runLength > 15 {
				e.emitHuff(h, 0xf0)
				runLength -= 16
			}
			e.emitHuffRLE(h, runLength, ac)
			runLength = 0
		}
	}
	if runLength > 0 {
		e.emitHuff(h, 0x00)
	}
	return dc
}

// toYCbCr converts the 8x8 region of m whose top-left corner is p to its
// YCbCr values.
func toYCbCr(m image.Image, p image.Point, yBlock, cbBlock, crBlock *block) {
	b := m.Bounds()
	xmax := b.Max.X - 1
	ymax := b.Max.Y - 1
	for j := 0; j < 8; j++ {
		for i := 0; i < 8; i++ {
			r, g, b, _ := m.At(min(p.X+i, xmax), min(p.Y+j, ymax)).RGBA()
			yy, cb, cr := color.RGBToYCbCr(uint8(r>>8), uint8(g>>8), uint8(b>>8))
			yBlock[8*j+i] = int32(yy)
			cbBlock[8*j+i] = int32(cb)
			crBlock[8*j+i] = int32(cr)
		}
	}
}

// grayToY stores the 8x8 region of m whose top-left corner is p in yBlock.
func grayToY(m *image.Gray, p image.Point, yBlock *block) {
	b := m.Bounds()
	xmax := b.Max.X - 1
	ymax := b.Max.Y - 1
	pix := m.Pix
	for j := 0; j < 8; j++ {
		for i := 0; i < 8; i++ {
			idx := m.PixOffset(min(p.X+i, xmax), min(p.Y+j, ymax))
			yBlock[8*j+i] = int32(pix[idx])
		}
	}
}

// rgbaToYCbCr is a specialized version of toYCbCr for image.RGBA.
func rgbaToYCbCr(m *image.RGBA, p image.Point, yBlock, cbBlock, crBlock *block) {
	b := m.Bounds()
	xmax := b.Max.X - 1
	ymax := b.Max.Y - 1
	for j := 0; j < 8; j++ {
		sj := p.Y + j
		if sj > ymax {
			sj = ymax
		}
		for i := 0; i < 8; i++ {
			sx := p.X + i
			if sx > xmax {
				sx = xmax
			}
			pix := m.Pix[m.PixOffset(sx, sj):]
			yy, cb, cr := color.RGBToYCbCr(pix[0], pix[1], pix[2])
			yBlock[8*j+i] = int32(yy)
			cbBlock[8*j+i] = int32(cb)
			crBlock[8*j+i] = int32(cr)
		}
	}
}

// scale scales the 16x16 region represented by the 4 src blocks to the 8x8
// dst block.
func scale(dst *block, src *[4]block) {
	for i := 0; i < 4; i++ {
		dstOff := (i&2)<<4 | (i&1)<<2
		for y := 0; y < 4; y++ {
			for x := 0; x < 4; x++ {
				j := 16*y + 2*x
				sum := src[i][j] + src[i][j+1] + src[i][j+8] + src[i][j+9]
				dst[8*y+x+dstOff] = (sum + 2) >> 2
			}
		}
	}
}

// writeRestart flushes the bit-stream and writes the numbered restart
// marker.
func (e *encoder) writeRestart(n int) {
	e.flushBits()
	e.writeByte(0xFF)
	e.writeByte(rst0Marker + uint8(n&7))
}

// sosComponents returns the scan header entries for an interleaved scan
// over all components.
func sosComponents(nComponent int) []sosComponent {
	if nComponent == 1 {
		return []sosComponent{{id: 1, dcTab: 0, acTab: 0}}
	}
	return []sosComponent{
		{id: 1, dcTab: 0, acTab: 0},
		{id: 2, dcTab: 1, acTab: 1},
		{id: 3, dcTab: 1, acTab: 1},
	}
}

// eachMCU calls f for the top-left corner of every MCU of the given
// geometry, in row-major order.
func eachMCU(bounds image.Rectangle, mcuSize int, f func(p image.Point)) {
	for y := bounds.Min.Y; y < bounds.Max.Y; y += mcuSize {
		for x := bounds.Min.X; x < bounds.Max.X; x += mcuSize {
			f(image.Pt(x, y))
		}
	}
}

// writeMCUs writes the entropy-coded data of the single interleaved scan of
// a baseline stream, inserting restart markers at the given interval.
func (e *encoder) writeMCUs(m image.Image, nComponent int, subsample420 bool, interval int) {
	bounds := m.Bounds()
	gray, _ := m.(*image.Gray)
	rgba, _ := m.(*image.RGBA)
	var (
		b      block
		cb, cr [4]block
	)
	prevDCY, prevDCCb, prevDCCr := int32(0), int32(0), int32(0)

	mcuSize := 8
	if nComponent == 3 && subsample420 {
		mcuSize = 16
	}
	mcuCols := (bounds.Dx() + mcuSize - 1) / mcuSize
	mcuRows := (bounds.Dy() + mcuSize - 1) / mcuSize
	nMCU := mcuCols * mcuRows

	n, rst := 0, 0
	eachMCU(bounds, mcuSize, func(p image.Point) {
		switch {
		case nComponent == 1:
			if gray != nil {
				grayToY(gray, p, &b)
			} else {
				toYCbCr(m, p, &b, &cb[0], &cr[0])
			}
			prevDCY = e.writeBlock(&b, quantIndexLuminance, prevDCY)
		case !subsample420:
			if rgba != nil {
				rgbaToYCbCr(rgba, p, &b, &cb[0], &cr[0])
			} else {
				toYCbCr(m, p, &b, &cb[0], &cr[0])
			}
			prevDCY = e.writeBlock(&b, quantIndexLuminance, prevDCY)
			prevDCCb = e.writeBlock(&cb[0], quantIndexChrominance, prevDCCb)
			prevDCCr = e.writeBlock(&cr[0], quantIndexChrominance, prevDCCr)
		default:
			for i := 0; i < 4; i++ {
				xOff := (i & 1) * 8
				yOff := (i & 2) * 4
				q := image.Pt(p.X+xOff, p.Y+yOff)
				if rgba != nil {
					rgbaToYCbCr(rgba, q, &b, &cb[i], &cr[i])
				} else {
					toYCbCr(m, q, &b, &cb[i], &cr[i])
				}
				prevDCY = e.writeBlock(&b, quantIndexLuminance, prevDCY)
			}
			scale(&b, &cb)
			prevDCCb = e.writeBlock(&b, quantIndexChrominance, prevDCCb)
			scale(&b, &cr)
			prevDCCr = e.writeBlock(&b, quantIndexChrominance, prevDCCr)
		}
		n++
		if interval > 0 && n%interval == 0 && n < nMCU {
			e.writeRestart(rst)
			rst++
			prevDCY, prevDCCb, prevDCCr = 0, 0, 0
		}
	})
	e.flushBits()
}

// encComp is one component of a progressive encode: its sampling factors
// and its quantized coefficient blocks, each stored in zigzag order on the
// MCU-padded block grid.
type encComp struct {
	h, v   int
	q      quantIndex
	bw, bh int
	blocks []block
}

// collectBlocks runs the DCT and quantization over the whole image and
// stores the coefficients, so they can be emitted one spectral band at a
// time.
func (e *encoder) collectBlocks(m image.Image, nComponent int, subsample420 bool) []encComp {
	bounds := m.Bounds()
	gray, _ := m.(*image.Gray)
	rgba, _ := m.(*image.RGBA)

	var comps []encComp
	if nComponent == 1 {
		comps = []encComp{{h: 1, v: 1, q: quantIndexLuminance}}
	} else if subsample420 {
		comps = []encComp{
			{h: 2, v: 2, q: quantIndexLuminance},
			{h: 1, v: 1, q: quantIndexChrominance},
			{h: 1, v: 1, q: quantIndexChrominance},
		}
	} else {
		comps = []encComp{
			{h: 1, v: 1, q: quantIndexLuminance},
			{h: 1, v: 1, q: quantIndexChrominance},
			{h: 1, v: 1, q: quantIndexChrominance},
		}
	}
	hMax := comps[0].h
	mcuSize := 8 * hMax
	mcuCols := (bounds.Dx() + mcuSize - 1) / mcuSize
	mcuRows := (bounds.Dy() + mcuSize - 1) / mcuSize
	for i := range comps {
		c := &comps[i]
		c.bw = mcuCols * c.h
		c.bh = mcuRows * c.v
		c.blocks = make([]block, c.bw*c.bh)
	}

	quantize := func(c *encComp, bx, by int, b *block) {
		fdct(b)
		zb := &c.blocks[by*c.bw+bx]
		for zig := 0; zig < blockSize; zig++ {
			zb[zig] = div(b[unzig[zig]], 8*int32(e.quant[c.q][zig]))
		}
	}

	var (
		b      block
		cb, cr [4]block
	)
	mx, my := 0, 0
	eachMCU(bounds, mcuSize, func(p image.Point) {
		if p.X == bounds.Min.X && p.Y > bounds.Min.Y {
			mx, my = 0, my+1
		}
		switch {
		case nComponent == 1:
			if gray != nil {
				grayToY(gray, p, &b)
			} else {
				toYCbCr(m, p, &b, &cb[0], &cr[0])
			}
			quantize(&comps[0], mx, my, &b)
		case !subsample420:
			if rgba != nil {
				rgbaToYCbCr(rgba, p, &b, &cb[0], &cr[0])
			} else {
				toYCbCr(m, p, &b, &cb[0], &cr[0])
			}
			quantize(&comps[0], mx, my, &b)
			quantize(&comps[1], mx, my, &cb[0])
			quantize(&comps[2], mx, my, &cr[0])
		default:
			for i := 0; i < 4; i++ {
				q := image.Pt(p.X+(i&1)*8, p.Y+(i&2)*4)
				if rgba != nil {
					rgbaToYCbCr(rgba, q, &b, &cb[i], &cr[i])
				} else {
					toYCbCr(m, q, &b, &cb[i], &cr[i])
				}
				quantize(&comps[0], 2*mx+i&1, 2*my+i>>1, &b)
			}
			scale(&b, &cb)
			quantize(&comps[1], mx, my, &b)
			scale(&b, &cr)
			quantize(&comps[2], mx, my, &b)
		}
		mx++
	})
	return comps
}

// writeProgressiveScans writes the scan script of a progressive stream: one
// interleaved DC scan, then one full-band AC scan per component.
func (e *encoder) writeProgressiveScans(comps []encComp, width, height, interval int) {
	e.writeDCScan(comps, interval)
	hMax, vMax := comps[0].h, comps[0].v
	acTabs := []uint8{0, 1, 1}
	for i := range comps {
		c := &comps[i]
		sw := (width*c.h + 8*hMax - 1) / (8 * hMax)
		sh := (height*c.v + 8*vMax - 1) / (8 * vMax)
		e.writeACScan(c, uint8(i+1), acTabs[i], sw, sh, interval)
	}
}

// writeDCScan writes the DC coefficients of every component, interleaved
// over MCUs.
func (e *encoder) writeDCScan(comps []encComp, interval int) {
	e.writeSOS(sosComponents(len(comps)), 0, 0, 0, 0)
	mcuCols := comps[0].bw / comps[0].h
	mcuRows := comps[0].bh / comps[0].v
	nMCU := mcuCols * mcuRows
	var prevDC [maxComponents]int32
	dcTabs := []huffIndex{huffIndexLuminanceDC, huffIndexChrominanceDC, huffIndexChrominanceDC}
	n, rst := 0, 0
	for my := 0; my < mcuRows; my++ {
		for mx := 0; mx < mcuCols; mx++ {
			for i := range comps {
				c := &comps[i]
				for sy := 0; sy < c.v; sy++ {
					for sx := 0; sx < c.h; sx++ {
						bx := mx*c.h + sx
						by := my*c.v + sy
						dc := c.blocks[by*c.bw+bx][0]
						e.emitHuffRLE(dcTabs[i], 0, dc-prevDC[i])
						prevDC[i] = dc
					}
				}
			}
			n++
			if interval > 0 && n%interval == 0 && n < nMCU {
				e.writeRestart(rst)
				rst++
				for i := range prevDC {
					prevDC[i] = 0
				}
			}
		}
	}
	e.flushBits()
}

// maxEOBRun is the longest end-of-block run an EOBn symbol can express.
const maxEOBRun = 1<<15 - 1

// writeACScan writes the full AC band of one component as a non-interleaved
// spectral-selection scan, folding runs of all-zero blocks into end-of-block
// runs.
func (e *encoder) writeACScan(c *encComp, id, acTab uint8, sw, sh, interval int) {
	h := huffIndexLuminanceAC
	if acTab != 0 {
		h = huffIndexChrominanceAC
	}
	e.writeSOS([]sosComponent{{id: id, dcTab: 0, acTab: acTab}}, 1, 63, 0, 0)
	eobRun := int32(0)
	n, rst := 0, 0
	for by := 0; by < sh; by++ {
		for bx := 0; bx < sw; bx++ {
			zb := &c.blocks[by*c.bw+bx]
			last := 0
			for zig := 63; zig > 0; zig-- {
				if zb[zig] != 0 {
					last = zig
					break
				}
			}
			if last == 0 {
				eobRun++
				if eobRun == maxEOBRun {
					e.emitEOBRun(h, eobRun)
					eobRun = 0
				}
			} else {
				e.emitEOBRun(h, eobRun)
				eobRun = 0
				runLength := int32(0)
				for zig := 1; zig <= last; zig++ {
					if zb[zig] == 0 {
						runLength++
						continue
					}
					for runLength > 15 {
						e.emitHuff(h, 0xf0)
						runLength -= 16
					}
					e.emitHuffRLE(h, runLength, zb[zig])
					runLength = 0
				}
				if last < 63 {
					eobRun = 1
				}
			}
			n++
			if interval > 0 && n%interval == 0 && n < sw*sh {
				e.emitEOBRun(h, eobRun)
				eobRun = 0
				e.writeRestart(rst)
				rst++
			}
		}
	}
	e.emitEOBRun(h, eobRun)
	e.flushBits()
}

// Encode writes the Image m to w in JPEG format with the given options.
func Encode(w io.Writer, m image.Image, o *EncoderOptions) error {
	b := m.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 || b.Dx() >= 1<<16 || b.Dy() >= 1<<16 {
		return headerErr("image size %dx%d is outside the encodable range", b.Dx(), b.Dy())
	}
	var e encoder
	if ww, ok := w.(writer); ok {
		e.w = ww
	} else {
		e.w = bufio.NewWriter(w)
	}

	quality := DefaultQuality
	var (
		subsample420 bool
		progressive  bool
		interval     int
		meta         *Metadata
	)
	if o != nil {
		if o.Quality != 0 {
			quality = o.Quality
		}
		subsample420 = o.Subsample420
		progressive = o.Progressive
		interval = o.RestartInterval
		meta = o.Metadata
	}
	for i := quantIndex(0); i < nQuantIndex; i++ {
		e.quant[i] = scaleQuantTable(i, quality)
	}

	nComponent := 3
	if _, ok := m.(*image.Gray); ok {
		nComponent = 1
	}
	if nComponent == 1 {
		subsample420 = false
	}
	if interval > 0 && interval >= 1<<16 {
		return headerErr("restart interval %d does not fit the DRI segment", interval)
	}

	e.buf[0] = 0xFF
	e.buf[1] = soiMarker
	e.write(e.buf[:2])
	e.writeAPP0()
	if meta != nil {
		e.writeAPP1(meta.ExifRaw, meta.Orientation)
		e.writeAPP2(meta.ICCProfile)
	}
	e.writeDQT(nQuantForComponents(nComponent))
	e.writeSOF(b.Dx(), b.Dy(), nComponent, subsample420, progressive)
	e.writeDHT(nComponent)
	if interval > 0 {
		e.writeDRI(interval)
	}
	if progressive {
		comps := e.collectBlocks(m, nComponent, subsample420)
		e.writeProgressiveScans(comps, b.Dx(), b.Dy(), interval)
	} else {
		e.writeSOS(sosComponents(nComponent), 0, 63, 0, 0)
		e.writeMCUs(m, nComponent, subsample420, interval)
	}
	e.buf[0] = 0xFF
	e.buf[1] = eoiMarker
	e.write(e.buf[:2])
	e.flush()
	return e.err
}

func nQuantForComponents(nComponent int) int {
	if nComponent == 1 {
		return 1
	}
	return int(nQuantIndex)
}
