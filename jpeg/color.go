package jpeg

import "image"

// clampLut maps x+256 to x clamped to [0,255], covering the overshoot range
// of the IDCT and of the fixed-point color transform.
var clampLut [768]byte

func init() {
	for i := range clampLut {
		x := i - 256
		switch {
		case x < 0:
			clampLut[i] = 0
		case x > 255:
			clampLut[i] = 255
		default:
			clampLut[i] = byte(x)
		}
	}
}

func clamp(x int32) byte {
	if uint32(x+256) < uint32(len(clampLut)) {
		return clampLut[x+256]
	}
	if x < 0 {
		return 0
	}
	return 255
}

// ycbcrToRGB applies the fixed-point BT.601 inverse transform with a half
// offset for round-to-nearest.
func ycbcrToRGB(yy, cb, cr int32) (byte, byte, byte) {
	y1 := yy<<16 + 1<<15
	cb -= 128
	cr -= 128
	r := (y1 + 91881*cr) >> 16
	g := (y1 - 22554*cb - 46802*cr) >> 16
	b := (y1 + 116130*cb) >> 16
	return clamp(r), clamp(g), clamp(b)
}

// makeImage assembles the decoded component planes into an image.
func (d *decoder) makeImage() (image.Image, error) {
	switch d.nComp {
	case 1:
		c := &d.comp[0]
		return &image.Gray{
			Pix:    c.data,
			Stride: c.stride,
			Rect:   image.Rect(0, 0, d.width, d.height),
		}, nil
	case 3:
		if d.isRGB() {
			return d.makeRGB(), nil
		}
		return d.makeYCbCr(), nil
	case 4:
		return d.makeCMYK(), nil
	}
	return nil, headerErr("component count %d", d.nComp)
}

// isRGB reports whether a 3-component frame carries RGB samples rather than
// YCbCr: either the Adobe marker says no transform, or the components use
// the 'R','G','B' ids some encoders write.
func (d *decoder) isRGB() bool {
	if d.adobe && d.adobeTransform == 0 {
		return true
	}
	return d.comp[0].id == 'R' && d.comp[1].id == 'G' && d.comp[2].id == 'B'
}

// sampleMap precomputes, for every output column, the nearest source column
// in a subsampled component plane.
func (d *decoder) sampleMap(c *component) []int {
	m := make([]int, d.width)
	limit := c.bw*8 - 1
	for x := range m {
		sx := x * c.h / d.hMax
		if sx > limit {
			sx = limit
		}
		m[x] = sx
	}
	return m
}

func (d *decoder) makeRGB() *image.RGBA {
	m := image.NewRGBA(image.Rect(0, 0, d.width, d.height))
	r, g, b := &d.comp[0], &d.comp[1], &d.comp[2]
	for y := 0; y < d.height; y++ {
		pr := r.data[y*r.stride:]
		pg := g.data[y*g.stride:]
		pb := b.data[y*b.stride:]
		row := m.Pix[y*m.Stride:]
		for x := 0; x < d.width; x++ {
			row[4*x+0] = pr[x]
			row[4*x+1] = pg[x]
			row[4*x+2] = pb[x]
			row[4*x+3] = 255
		}
	}
	return m
}

func (d *decoder) makeYCbCr() *image.RGBA {
	m := image.NewRGBA(image.Rect(0, 0, d.width, d.height))
	cy, ccb, ccr := &d.comp[0], &d.comp[1], &d.comp[2]

	full := cy.h == d.hMax && cy.v == d.vMax &&
		ccb.h == d.hMax && ccb.v == d.vMax && ccr.h == d.hMax && ccr.v == d.vMax
	is420 := cy.h == 2 && cy.v == 2 && d.hMax == 2 && d.vMax == 2 &&
		ccb.h == 1 && ccb.v == 1 && ccr.h == 1 && ccr.v == 1

	switch {
	case full:
		for y := 0; y < d.height; y++ {
			py := cy.data[y*cy.stride:]
			pcb := ccb.data[y*ccb.stride:]
			pcr := ccr.data[y*ccr.stride:]
			row := m.Pix[y*m.Stride:]
			for x := 0; x < d.width; x++ {
				r, g, b := ycbcrToRGB(int32(py[x]), int32(pcb[x]), int32(pcr[x]))
				row[4*x+0] = r
				row[4*x+1] = g
				row[4*x+2] = b
				row[4*x+3] = 255
			}
		}
	case is420:
		// 2x2 luma per chroma sample; nearest-neighbor upsample is a
		// shift in both directions.
		for y := 0; y < d.height; y++ {
			py := cy.data[y*cy.stride:]
			pcb := ccb.data[(y>>1)*ccb.stride:]
			pcr := ccr.data[(y>>1)*ccr.stride:]
			row := m.Pix[y*m.Stride:]
			for x := 0; x < d.width; x++ {
				r, g, b := ycbcrToRGB(int32(py[x]), int32(pcb[x>>1]), int32(pcr[x>>1]))
				row[4*x+0] = r
				row[4*x+1] = g
				row[4*x+2] = b
				row[4*x+3] = 255
			}
		}
	default:
		// Arbitrary sampling ratios via precomputed index tables.
		ymap := d.sampleMap(cy)
		cbmap := d.sampleMap(ccb)
		crmap := d.sampleMap(ccr)
		for y := 0; y < d.height; y++ {
			py := cy.data[(y*cy.v/d.vMax)*cy.stride:]
			pcb := ccb.data[(y*ccb.v/d.vMax)*ccb.stride:]
			pcr := ccr.data[(y*ccr.v/d.vMax)*ccr.stride:]
			row := m.Pix[y*m.Stride:]
			for x := 0; x < d.width; x++ {
				r, g, b := ycbcrToRGB(int32(py[ymap[x]]), int32(pcb[cbmap[x]]), int32(pcr[crmap[x]]))
				row[4*x+0] = r
				row[4*x+1] = g
				row[4*x+2] = b
				row[4*x+3] = 255
			}
		}
	}
	return m
}

// makeCMYK handles 4-component frames. Adobe encoders store the channels
// inverted; the K plane is inverted in both interpretations.
func (d *decoder) makeCMYK() *image.CMYK {
	ycck := false
	if d.adobe {
		ycck = d.adobeTransform == 2
	} else {
		ycck = d.looksLikeYCCK()
	}

	m := image.NewCMYK(image.Rect(0, 0, d.width, d.height))
	maps := make([][]int, 4)
	for i := 0; i < 4; i++ {
		maps[i] = d.sampleMap(&d.comp[i])
	}
	for y := 0; y < d.height; y++ {
		var p [4][]byte
		for i := 0; i < 4; i++ {
			c := &d.comp[i]
			p[i] = c.data[(y*c.v/d.vMax)*c.stride:]
		}
		row := m.Pix[y*m.Stride:]
		for x := 0; x < d.width; x++ {
			s0 := p[0][maps[0][x]]
			s1 := p[1][maps[1][x]]
			s2 := p[2][maps[2][x]]
			s3 := p[3][maps[3][x]]
			if ycck {
				r, g, b := ycbcrToRGB(int32(s0), int32(s1), int32(s2))
				s0, s1, s2 = 255-r, 255-g, 255-b
			} else {
				s0, s1, s2 = 255-s0, 255-s1, 255-s2
			}
			row[4*x+0] = s0
			row[4*x+1] = s1
			row[4*x+2] = s2
			row[4*x+3] = 255 - s3
		}
	}
	return m
}

// looksLikeYCCK guesses whether an untagged 4-component frame is YCCK
// rather than CMYK by sampling the two chroma-position planes: YCCK chroma
// clusters around 128, ink channels do not. Best effort only.
func (d *decoder) looksLikeYCCK() bool {
	var sum, n int64
	for i := 1; i <= 2; i++ {
		c := &d.comp[i]
		for y := 0; y < c.bh*8; y += 8 {
			row := c.data[y*c.stride:]
			for x := 0; x < c.bw*8; x += 8 {
				v := int64(row[x]) - 128
				if v < 0 {
					v = -v
				}
				sum += v
				n++
			}
		}
	}
	return n > 0 && sum/n < 32
}
