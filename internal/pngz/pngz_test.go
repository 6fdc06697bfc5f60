package pngz

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeDecode(t *testing.T, img image.Image) image.Image {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, img))
	require.True(t, bytes.HasPrefix(buf.Bytes(), pngSignature))
	decoded, err := png.Decode(&buf)
	require.NoError(t, err)
	require.Equal(t, img.Bounds().Dx(), decoded.Bounds().Dx())
	require.Equal(t, img.Bounds().Dy(), decoded.Bounds().Dy())
	return decoded
}

func TestEncodeGray(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	src := image.NewGray(image.Rect(0, 0, 33, 21))
	for i := range src.Pix {
		src.Pix[i] = uint8(rng.Intn(256))
	}

	decoded := encodeDecode(t, src)
	gray, ok := decoded.(*image.Gray)
	require.True(t, ok, "decoded type %T", decoded)
	assert.Equal(t, src.Pix, gray.Pix)
}

func TestEncodeOpaqueRGBA(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	src := image.NewRGBA(image.Rect(0, 0, 17, 9))
	for y := 0; y < 9; y++ {
		for x := 0; x < 17; x++ {
			src.SetRGBA(x, y, color.RGBA{
				uint8(rng.Intn(256)), uint8(rng.Intn(256)), uint8(rng.Intn(256)), 255,
			})
		}
	}

	decoded := encodeDecode(t, src)
	for y := 0; y < 9; y++ {
		for x := 0; x < 17; x++ {
			require.Equal(t, src.At(x, y), color.RGBAModel.Convert(decoded.At(x, y)),
				"pixel %d,%d", x, y)
		}
	}
}

// TestEncodeAlpha: non-opaque input takes the RGBA color type and the
// stored samples are straight alpha.
func TestEncodeAlpha(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 3, 1))
	src.SetNRGBA(0, 0, color.NRGBA{200, 100, 50, 128})
	src.SetNRGBA(1, 0, color.NRGBA{200, 100, 50, 255})
	src.SetNRGBA(2, 0, color.NRGBA{200, 100, 50, 0})

	decoded := encodeDecode(t, src)
	nrgba, ok := decoded.(*image.NRGBA)
	require.True(t, ok, "decoded type %T", decoded)
	assert.Equal(t, color.NRGBA{200, 100, 50, 128}, nrgba.NRGBAAt(0, 0))
	assert.Equal(t, color.NRGBA{200, 100, 50, 255}, nrgba.NRGBAAt(1, 0))
	assert.Equal(t, color.NRGBA{0, 0, 0, 0}, nrgba.NRGBAAt(2, 0))
}

func TestEncodeGradient(t *testing.T) {
	// Smooth content exercises the Sub/Up/Average/Paeth filters.
	src := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			src.SetRGBA(x, y, color.RGBA{uint8(2 * x), uint8(2 * y), uint8(x + y), 255})
		}
	}
	decoded := encodeDecode(t, src)
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			require.Equal(t, src.At(x, y), color.RGBAModel.Convert(decoded.At(x, y)),
				"pixel %d,%d", x, y)
		}
	}
}

func TestEncodeSubImage(t *testing.T) {
	base := image.NewGray(image.Rect(0, 0, 10, 10))
	for i := range base.Pix {
		base.Pix[i] = uint8(i)
	}
	sub := base.SubImage(image.Rect(3, 2, 8, 7)).(*image.Gray)

	decoded := encodeDecode(t, sub)
	gray := decoded.(*image.Gray)
	for y := 0; y < 5; y++ {
		for x := 0; x < 5; x++ {
			require.Equal(t, sub.GrayAt(x+3, y+2), gray.GrayAt(x, y), "pixel %d,%d", x, y)
		}
	}
}

func TestEncodeEmpty(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, Encode(&buf, image.NewGray(image.Rectangle{})))
}

func TestPaethPredictor(t *testing.T) {
	// Reference predictor from the format's filtering section.
	ref := func(a, b, c uint8) uint8 {
		p := int(a) + int(b) - int(c)
		pa, pb, pc := abs8(p-int(a)), abs8(p-int(b)), abs8(p-int(c))
		switch {
		case pa <= pb && pa <= pc:
			return a
		case pb <= pc:
			return b
		}
		return c
	}
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 1000; i++ {
		a, b, c := uint8(rng.Intn(256)), uint8(rng.Intn(256)), uint8(rng.Intn(256))
		assert.Equal(t, ref(a, b, c), paeth(a, b, c))
	}
}

func TestFilterRowRoundTrip(t *testing.T) {
	// Whatever filter wins, the deltas must reconstruct the source row.
	const bpp = 3
	rng := rand.New(rand.NewSource(4))
	cur := make([]byte, 24)
	prev := make([]byte, 24)
	for i := range cur {
		cur[i] = uint8(rng.Intn(256))
		prev[i] = uint8(rng.Intn(256))
	}
	var cand [nFilter][]byte
	for i := range cand {
		cand[i] = make([]byte, len(cur))
	}
	f := filterRow(&cand, cur, prev, bpp)

	got := make([]byte, len(cur))
	for i := range got {
		var a, b, c byte
		if i >= bpp {
			a = got[i-bpp]
			c = prev[i-bpp]
		}
		b = prev[i]
		switch f {
		case ftNone:
			got[i] = cand[f][i]
		case ftSub:
			got[i] = cand[f][i] + a
		case ftUp:
			got[i] = cand[f][i] + b
		case ftAverage:
			got[i] = cand[f][i] + uint8((int(a)+int(b))/2)
		case ftPaeth:
			got[i] = cand[f][i] + paeth(a, b, c)
		}
	}
	assert.Equal(t, cur, got)
}
