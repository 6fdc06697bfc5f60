package jpeg

import "math"

// idctCos holds cos((2x+1)*u*pi/16) scaled by the DCT normalization factor,
// indexed by [u][x].
var idctCos [8][8]float64

func init() {
	for u := 0; u < 8; u++ {
		c := 1.0
		if u == 0 {
			c = 1 / math.Sqrt2
		}
		for x := 0; x < 8; x++ {
			idctCos[u][x] = c * math.Cos(float64(2*x+1)*float64(u)*math.Pi/16) / 2
		}
	}
}

// idctFloat is the direct floating-point inverse transform. It is slower than
// idct but rounds per the textbook definition, which makes it the reference
// the fixed-point path is checked against.
func idctFloat(blk *block, dst []byte, offset, stride int) {
	var tmp [64]float64
	// Rows.
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			var s float64
			for u := 0; u < 8; u++ {
				s += float64(blk[y*8+u]) * idctCos[u][x]
			}
			tmp[y*8+x] = s
		}
	}
	// Columns, then level shift.
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			var s float64
			for v := 0; v < 8; v++ {
				s += tmp[v*8+x] * idctCos[v][y]
			}
			dst[offset+y*stride+x] = clamp(int32(math.Round(s)) + 128)
		}
	}
}
