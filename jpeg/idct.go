package jpeg

// Fixed-point inverse DCT, AAN style. Constants are 2048*sqrt(2)*cos(k*pi/16).
const (
	w1 = 2841
	w2 = 2676
	w3 = 2408
	w5 = 1609
	w6 = 1108
	w7 = 565
)

// idct transforms one dequantized 8x8 block in natural order and writes the
// level-shifted samples into dst at offset with the given row stride.
func idct(blk *block, dst []byte, offset, stride int) {
	for i := 0; i < blockSize; i += 8 {
		idctRow(blk, i)
	}
	for i := 0; i < 8; i++ {
		idctCol(blk, i, dst, offset+i, stride)
	}
}

func idctRow(blk *block, offset int) {
	b := blk[offset : offset+8]
	_ = b[7]

	var x0, x1, x2, x3, x4, x5, x6, x7, x8 int32

	x1 = b[4] << 11
	x2 = b[6]
	x3 = b[2]
	x4 = b[1]
	x5 = b[7]
	x6 = b[5]
	x7 = b[3]

	if (x1 | x2 | x3 | x4 | x5 | x6 | x7) == 0 {
		// DC only. The row stays constant.
		val := b[0] << 3
		b[0] = val
		b[1] = val
		b[2] = val
		b[3] = val
		b[4] = val
		b[5] = val
		b[6] = val
		b[7] = val
		return
	}

	x0 = (b[0] << 11) + 128

	x8 = w7 * (x4 + x5)
	x4 = x8 + (w1-w7)*x4
	x5 = x8 - (w1+w7)*x5
	x8 = w3 * (x6 + x7)
	x6 = x8 - (w3-w5)*x6
	x7 = x8 - (w3+w5)*x7

	x8 = x0 + x1
	x0 -= x1
	x1 = w6 * (x3 + x2)
	x2 = x1 - (w2+w6)*x2
	x3 = x1 + (w2-w6)*x3

	x1 = x4 + x6
	x4 -= x6
	x6 = x5 + x7
	x5 -= x7

	x7 = x8 + x3
	x8 -= x3
	x3 = x0 + x2
	x0 -= x2

	x2 = (181*(x4+x5) + 128) >> 8
	x4 = (181*(x4-x5) + 128) >> 8

	b[0] = (x7 + x1) >> 8
	b[1] = (x3 + x2) >> 8
	b[2] = (x0 + x4) >> 8
	b[3] = (x8 + x6) >> 8
	b[4] = (x8 - x6) >> 8
	b[5] = (x0 - x4) >> 8
	b[6] = (x3 - x2) >> 8
	b[7] = (x7 - x1) >> 8
}

func idctCol(blk *block, offset int, out []byte, outOffset, stride int) {
	out = out[outOffset:]

	var x0, x1, x2, x3, x4, x5, x6, x7, x8 int32

	x1 = blk[offset+8*4] << 8
	x2 = blk[offset+8*6]
	x3 = blk[offset+8*2]
	x4 = blk[offset+8*1]
	x5 = blk[offset+8*7]
	x6 = blk[offset+8*5]
	x7 = blk[offset+8*3]

	if (x1 | x2 | x3 | x4 | x5 | x6 | x7) == 0 {
		// DC only. The column stays constant.
		_ = out[7*stride]
		b := clamp(((blk[offset] + 32) >> 6) + 128)
		o := 0
		for i := 0; i < 8; i++ {
			out[o] = b
			o += stride
		}
		return
	}

	x0 = (blk[offset] << 8) + 8192

	x8 = w7*(x4+x5) + 4
	x4 = (x8 + (w1-w7)*x4) >> 3
	x5 = (x8 - (w1+w7)*x5) >> 3
	x8 = w3*(x6+x7) + 4
	x6 = (x8 - (w3-w5)*x6) >> 3
	x7 = (x8 - (w3+w5)*x7) >> 3

	x8 = x0 + x1
	x0 -= x1
	x1 = w6*(x3+x2) + 4
	x2 = (x1 - (w2+w6)*x2) >> 3
	x3 = (x1 + (w2-w6)*x3) >> 3

	x1 = x4 + x6
	x4 -= x6
	x6 = x5 + x7
	x5 -= x7

	x7 = x8 + x3
	x8 -= x3
	x3 = x0 + x2
	x0 -= x2

	x2 = (181*(x4+x5) + 128) >> 8
	x4 = (181*(x4-x5) + 128) >> 8

	_ = out[7*stride]
	o := 0
	out[o] = clamp(((x7 + x1) >> 14) + 128)
	o += stride
	out[o] = clamp(((x3 + x2) >> 14) + 128)
	o += stride
	out[o] = clamp(((x0 + x4) >> 14) + 128)
	o += stride
	out[o] = clamp(((x8 + x6) >> 14) + 128)
	o += stride
	out[o] = clamp(((x8 - x6) >> 14) + 128)
	o += stride
	out[o] = clamp(((x0 - x4) >> 14) + 128)
	o += stride
	out[o] = clamp(((x3 - x2) >> 14) + 128)
	o += stride
	out[o] = clamp(((x7 - x1) >> 14) + 128)
}
