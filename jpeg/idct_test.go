package jpeg

import (
	"math/rand"
	"testing"
)

func absDiff(a, b byte) int {
	d := int(a) - int(b)
	if d < 0 {
		return -d
	}
	return d
}

// TestIDCTDCOnly checks the constant-block fast path: a DC-only block must
// come out flat, at the same level the full float transform produces.
func TestIDCTDCOnly(t *testing.T) {
	for _, dc := range []int32{-1024, -513, -8, 0, 7, 100, 513, 1016} {
		var b, bf block
		b[0], bf[0] = dc, dc

		got := make([]byte, 64)
		want := make([]byte, 64)
		idct(&b, got, 0, 8)
		idctFloat(&bf, want, 0, 8)

		for i := 1; i < 64; i++ {
			if got[i] != got[0] {
				t.Fatalf("dc=%d: sample %d = %d, sample 0 = %d", dc, i, got[i], got[0])
			}
		}
		if d := absDiff(got[0], want[0]); d > 1 {
			t.Errorf("dc=%d: fixed %d, float %d", dc, got[0], want[0])
		}
	}
}

// TestIDCTMatchesFloat runs realistic coefficient blocks, produced by the
// forward transform, through both inverse transforms.
func TestIDCTMatchesFloat(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for iter := 0; iter < 200; iter++ {
		var src block
		for i := range src {
			src[i] = int32(rng.Intn(256))
		}
		coef := src
		fdct(&coef)
		// fdct output is scaled by 8.
		for i := range coef {
			coef[i] = div(coef[i], 8)
		}

		bi, bf := coef, coef
		got := make([]byte, 64)
		want := make([]byte, 64)
		idct(&bi, got, 0, 8)
		idctFloat(&bf, want, 0, 8)

		for i := range got {
			if d := absDiff(got[i], want[i]); d > 2 {
				t.Fatalf("iter %d sample %d: fixed %d, float %d", iter, i, got[i], want[i])
			}
		}
	}
}

// TestFDCTIDCTRoundTrip transforms sample blocks forward and back with unit
// quantization.
func TestFDCTIDCTRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	for iter := 0; iter < 100; iter++ {
		var src block
		for i := range src {
			// Smooth-ish content: a ramp with mild noise.
			src[i] = int32((i%8)*4 + (i/8)*4 + 64 + rng.Intn(9))
		}

		coef := src
		fdct(&coef)
		for i := range coef {
			coef[i] = div(coef[i], 8)
		}

		got := make([]byte, 64)
		idct(&coef, got, 0, 8)
		for i := range got {
			if d := absDiff(got[i], byte(src[i])); d > 2 {
				t.Fatalf("iter %d sample %d: in %d, out %d", iter, i, src[i], got[i])
			}
		}
	}
}

func TestIDCTStrideOffset(t *testing.T) {
	var b block
	b[0] = 256 // comes out as a flat 160
	stride := 16
	dst := make([]byte, 8*stride)
	idct(&b, dst, 4, stride)
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			if dst[y*stride+4+x] == 0 {
				t.Fatalf("sample %d,%d not written", x, y)
			}
		}
		// Bytes outside the 8-wide window stay untouched.
		if dst[y*stride] != 0 || dst[y*stride+12] != 0 {
			t.Fatalf("row %d wrote outside its window", y)
		}
	}
}
