package jpeg

import (
	"bytes"
	"context"
	"errors"
	"image"
	stdjpeg "image/jpeg"
	"math/rand"
	"testing"
)

func newGray(w, h int, f func(x, y int) uint8) *image.Gray {
	m := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			m.Pix[y*m.Stride+x] = f(x, y)
		}
	}
	return m
}

func newRGBA(w, h int, f func(x, y int) (uint8, uint8, uint8)) *image.RGBA {
	m := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b := f(x, y)
			i := y*m.Stride + 4*x
			m.Pix[i+0] = r
			m.Pix[i+1] = g
			m.Pix[i+2] = b
			m.Pix[i+3] = 255
		}
	}
	return m
}

func smoothRamp(x, y int) uint8 {
	return uint8(64 + 3*x + 3*y)
}

func encodeToBytes(t *testing.T, m image.Image, o *EncoderOptions) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := Encode(&buf, m, o); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func decodeBytes(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, _, err := DecodeBytes(data, nil)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return img
}

func maxPixelDiff(t *testing.T, a, b image.Image) int {
	t.Helper()
	if a.Bounds() != b.Bounds() {
		t.Fatalf("bounds differ: %v vs %v", a.Bounds(), b.Bounds())
	}
	max := 0
	bd := a.Bounds()
	for y := bd.Min.Y; y < bd.Max.Y; y++ {
		for x := bd.Min.X; x < bd.Max.X; x++ {
			ar, ag, ab, _ := a.At(x, y).RGBA()
			br, bg, bb, _ := b.At(x, y).RGBA()
			for _, d := range []int{
				int(ar>>8) - int(br>>8),
				int(ag>>8) - int(bg>>8),
				int(ab>>8) - int(bb>>8),
			} {
				if d < 0 {
					d = -d
				}
				if d > max {
					max = d
				}
			}
		}
	}
	return max
}

func TestRoundTripGrayQ100(t *testing.T) {
	src := newGray(32, 24, smoothRamp)
	data := encodeToBytes(t, src, &EncoderOptions{Quality: 100})
	got := decodeBytes(t, data)
	if d := maxPixelDiff(t, src, got); d > 2 {
		t.Errorf("max pixel diff %d, want <= 2", d)
	}
	if _, ok := got.(*image.Gray); !ok {
		t.Errorf("decoded type %T, want *image.Gray", got)
	}
}

func TestRoundTripColorQ100(t *testing.T) {
	src := newRGBA(40, 32, func(x, y int) (uint8, uint8, uint8) {
		return uint8(60 + 3*x), uint8(80 + 2*y), uint8(100 + x + y)
	})
	data := encodeToBytes(t, src, &EncoderOptions{Quality: 100})
	got := decodeBytes(t, data)
	if d := maxPixelDiff(t, src, got); d > 6 {
		t.Errorf("max pixel diff %d, want <= 6", d)
	}
}

// TestRoundTripGraySubsampled checks a 16x16 gray-content image through the
// 4:2:0 path at quality 75.
func TestRoundTripGraySubsampled(t *testing.T) {
	src := newRGBA(16, 16, func(x, y int) (uint8, uint8, uint8) {
		v := uint8(64 + 4*x + 4*y)
		return v, v, v
	})
	data := encodeToBytes(t, src, &EncoderOptions{Quality: 75, Subsample420: true})
	got := decodeBytes(t, data)
	if d := maxPixelDiff(t, src, got); d > 4 {
		t.Errorf("max pixel diff %d, want <= 4", d)
	}
}

func TestOddSizeRoundTrip(t *testing.T) {
	// Dimensions that do not fill whole MCUs in either direction.
	for _, sub := range []bool{false, true} {
		src := newRGBA(21, 13, func(x, y int) (uint8, uint8, uint8) {
			v := smoothRamp(x, y)
			return v, v / 2, 255 - v
		})
		data := encodeToBytes(t, src, &EncoderOptions{Quality: 95, Subsample420: sub})
		got := decodeBytes(t, data)
		if got.Bounds().Dx() != 21 || got.Bounds().Dy() != 13 {
			t.Fatalf("subsample420=%v: bounds %v", sub, got.Bounds())
		}
		tol := 8
		if sub {
			tol = 48 // nearest-neighbor chroma on a color gradient
		}
		if d := maxPixelDiff(t, src, got); d > tol {
			t.Errorf("subsample420=%v: max pixel diff %d, want <= %d", sub, d, tol)
		}
	}
}

// TestProgressiveMatchesBaseline: a progressive stream is a reordering of
// the same quantized coefficients, so both modes must decode to identical
// pixels.
func TestProgressiveMatchesBaseline(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	src := newRGBA(37, 29, func(x, y int) (uint8, uint8, uint8) {
		return uint8(rng.Intn(256)), uint8(rng.Intn(256)), uint8(rng.Intn(256))
	})
	for _, sub := range []bool{false, true} {
		baseline := decodeBytes(t, encodeToBytes(t, src, &EncoderOptions{Quality: 80, Subsample420: sub}))
		progressive := decodeBytes(t, encodeToBytes(t, src, &EncoderOptions{Quality: 80, Subsample420: sub, Progressive: true}))
		if d := maxPixelDiff(t, baseline, progressive); d != 0 {
			t.Errorf("subsample420=%v: progressive differs from baseline by %d", sub, d)
		}
	}

	gray := newGray(24, 17, smoothRamp)
	baseline := decodeBytes(t, encodeToBytes(t, gray, &EncoderOptions{Quality: 80}))
	progressive := decodeBytes(t, encodeToBytes(t, gray, &EncoderOptions{Quality: 80, Progressive: true}))
	if d := maxPixelDiff(t, baseline, progressive); d != 0 {
		t.Errorf("gray: progressive differs from baseline by %d", d)
	}
}

func TestTruncatedScanFails(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	src := newGray(64, 64, func(x, y int) uint8 { return uint8(rng.Intn(256)) })
	data := encodeToBytes(t, src, &EncoderOptions{Quality: 90})

	sos := bytes.Index(data, []byte{0xFF, sosMarker})
	if sos < 0 {
		t.Fatal("no SOS marker in encoder output")
	}
	cut := sos + 20 + (len(data)-sos)/2
	_, _, err := DecodeBytes(data[:cut], nil)
	if err == nil {
		t.Fatal("truncated stream decoded without error")
	}
	var se *ScanError
	if !errors.As(err, &se) {
		t.Fatalf("error %v (%T), want ScanError", err, err)
	}
	if !errors.Is(err, ErrSyntax) {
		t.Errorf("error %v does not wrap ErrSyntax", err)
	}
	var te *TruncationError
	if errors.As(err, &te) && te.Offset < 0 {
		t.Errorf("TruncationError offset %d", te.Offset)
	}
}

// TestTruncationAtMarkerIsBenign: when a real marker cuts a scan short the
// partial data stands and decoding succeeds.
func TestTruncationAtMarkerIsBenign(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	src := newGray(64, 64, func(x, y int) uint8 { return uint8(rng.Intn(256)) })
	data := encodeToBytes(t, src, &EncoderOptions{Quality: 90})

	sos := bytes.Index(data, []byte{0xFF, sosMarker})
	cut := sos + 20 + (len(data)-sos)/2
	patched := append(append([]byte{}, data[:cut]...), 0xFF, eoiMarker)

	img, _, err := DecodeBytes(patched, nil)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if img.Bounds().Dx() != 64 || img.Bounds().Dy() != 64 {
		t.Errorf("bounds %v", img.Bounds())
	}
}

// TestMissingDHTDrains: with the scan's Huffman tables gone and no later
// DHT to re-scan, the decoder skips the entropy data and still produces an
// image.
func TestMissingDHTDrains(t *testing.T) {
	src := newGray(16, 16, smoothRamp)
	data := encodeToBytes(t, src, &EncoderOptions{Quality: 90})

	dht := bytes.Index(data, []byte{0xFF, dhtMarker})
	if dht < 0 {
		t.Fatal("no DHT marker in encoder output")
	}
	segLen := int(data[dht+2])<<8 | int(data[dht+3])
	stripped := append(append([]byte{}, data[:dht]...), data[dht+2+segLen:]...)

	img, _, err := DecodeBytes(stripped, nil)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	gray, ok := img.(*image.Gray)
	if !ok {
		t.Fatalf("decoded type %T", img)
	}
	// The undecoded scan leaves all coefficients zero: a flat mid-gray.
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			if got := gray.GrayAt(x, y).Y; got != 128 {
				t.Fatalf("pixel %d,%d = %d, want 128", x, y, got)
			}
		}
	}
}

func TestRestartIntervalRoundTrip(t *testing.T) {
	src := newRGBA(48, 32, func(x, y int) (uint8, uint8, uint8) {
		v := smoothRamp(x, y)
		return v, 255 - v, v / 3
	})
	plain := encodeToBytes(t, src, &EncoderOptions{Quality: 85})
	restarts := encodeToBytes(t, src, &EncoderOptions{Quality: 85, RestartInterval: 2})

	if !bytes.Contains(restarts, []byte{0xFF, rst0Marker}) {
		t.Error("no RST0 marker in restart-interval output")
	}
	if d := maxPixelDiff(t, decodeBytes(t, plain), decodeBytes(t, restarts)); d != 0 {
		t.Errorf("restart intervals changed pixels by %d", d)
	}

	// Progressive scans insert restarts too.
	prog := encodeToBytes(t, src, &EncoderOptions{Quality: 85, Progressive: true, RestartInterval: 3})
	if d := maxPixelDiff(t, decodeBytes(t, plain), decodeBytes(t, prog)); d != 0 {
		t.Errorf("progressive restart intervals changed pixels by %d", d)
	}
}

func TestMetadataRoundTrip(t *testing.T) {
	src := newGray(16, 16, smoothRamp)

	icc := make([]byte, 100000) // spans two APP2 chunks
	for i := range icc {
		icc[i] = byte(i * 7)
	}
	meta := &Metadata{
		Orientation: 6,
		ExifRaw:     buildExif(true, 6),
		ICCProfile:  icc,
	}
	data := encodeToBytes(t, src, &EncoderOptions{Quality: 90, Metadata: meta})

	_, got, err := DecodeBytes(data, nil)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Orientation != 6 {
		t.Errorf("orientation %d, want 6", got.Orientation)
	}
	if !bytes.Equal(got.ICCProfile, icc) {
		t.Errorf("ICC profile mismatch: %d bytes, want %d", len(got.ICCProfile), len(icc))
	}
	if got.ExifRaw == nil {
		t.Error("no EXIF payload")
	}
}

// TestMetadataOrientationPatched: a caller that rotated the pixels passes
// Orientation 1, and the EXIF blob must be rewritten to agree.
func TestMetadataOrientationPatched(t *testing.T) {
	src := newGray(16, 16, smoothRamp)
	meta := &Metadata{
		Orientation: 1,
		ExifRaw:     buildExif(false, 6),
	}
	data := encodeToBytes(t, src, &EncoderOptions{Metadata: meta})
	_, got, err := DecodeBytes(data, nil)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Orientation != 1 {
		t.Errorf("orientation %d, want 1", got.Orientation)
	}
}

func TestDecodeConfig(t *testing.T) {
	gray := encodeToBytes(t, newGray(20, 10, smoothRamp), nil)
	cfg, err := DecodeConfig(bytes.NewReader(gray))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Width != 20 || cfg.Height != 10 {
		t.Errorf("config %dx%d", cfg.Width, cfg.Height)
	}

	color := encodeToBytes(t, newRGBA(33, 7, func(x, y int) (uint8, uint8, uint8) {
		return uint8(x), uint8(y), 0
	}), nil)
	cfg, err = DecodeConfig(bytes.NewReader(color))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Width != 33 || cfg.Height != 7 {
		t.Errorf("config %dx%d", cfg.Width, cfg.Height)
	}
}

func TestDecodeNotJPEG(t *testing.T) {
	for _, data := range [][]byte{nil, {0x89, 'P', 'N', 'G'}, {0xFF, 0xD9}} {
		_, _, err := DecodeBytes(data, nil)
		if !errors.Is(err, ErrNoJPEG) {
			t.Errorf("%v: got %v, want ErrNoJPEG", data, err)
		}
	}
}

func TestFloatIDCTOption(t *testing.T) {
	src := newRGBA(24, 24, func(x, y int) (uint8, uint8, uint8) {
		return smoothRamp(x, y), smoothRamp(y, x), 128
	})
	data := encodeToBytes(t, src, &EncoderOptions{Quality: 90})
	fixed, _, err := DecodeBytes(data, &DecodeOptions{})
	if err != nil {
		t.Fatal(err)
	}
	float, _, err := DecodeBytes(data, &DecodeOptions{FloatIDCT: true})
	if err != nil {
		t.Fatal(err)
	}
	if d := maxPixelDiff(t, fixed, float); d > 2 {
		t.Errorf("integer and float transforms differ by %d", d)
	}
}

func TestDecodeStreamMatchesBytes(t *testing.T) {
	src := newRGBA(31, 18, func(x, y int) (uint8, uint8, uint8) {
		return uint8(5 * x), uint8(9 * y), uint8(x * y)
	})
	data := encodeToBytes(t, src, &EncoderOptions{Quality: 92, Subsample420: true})

	fromBytes, _, err := DecodeBytes(data, nil)
	if err != nil {
		t.Fatal(err)
	}
	fromStream, err := Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if d := maxPixelDiff(t, fromBytes, fromStream); d != 0 {
		t.Errorf("stream and bytes decodes differ by %d", d)
	}
}

func TestDecodeContextCanceled(t *testing.T) {
	src := newGray(64, 64, smoothRamp)
	data := encodeToBytes(t, src, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := DecodeContext(ctx, bytes.NewReader(data), nil); err == nil {
		t.Fatal("canceled context decoded successfully")
	}
}

// TestStdlibDecodesOutput feeds this encoder's baseline output to the
// standard library decoder.
func TestStdlibDecodesOutput(t *testing.T) {
	src := newRGBA(32, 32, func(x, y int) (uint8, uint8, uint8) {
		return smoothRamp(x, y), 128, smoothRamp(y, x)
	})
	for _, sub := range []bool{false, true} {
		data := encodeToBytes(t, src, &EncoderOptions{Quality: 95, Subsample420: sub})
		stdImg, err := stdjpeg.Decode(bytes.NewReader(data))
		if err != nil {
			t.Fatalf("subsample420=%v: stdlib decode: %v", sub, err)
		}
		ownImg := decodeBytes(t, data)
		if d := maxPixelDiff(t, stdImg, ownImg); d > 2 {
			t.Errorf("subsample420=%v: stdlib and own decode differ by %d", sub, d)
		}
	}
}

// TestDecodeStdlibOutput decodes streams produced by the standard library
// encoder, baseline 4:2:0.
func TestDecodeStdlibOutput(t *testing.T) {
	src := newRGBA(29, 43, func(x, y int) (uint8, uint8, uint8) {
		return uint8(40 + 2*x + y), uint8(200 - 3*x), uint8(30 + 4*y)
	})
	var buf bytes.Buffer
	if err := stdjpeg.Encode(&buf, src, &stdjpeg.Options{Quality: 95}); err != nil {
		t.Fatal(err)
	}
	ownImg := decodeBytes(t, buf.Bytes())
	stdImg, err := stdjpeg.Decode(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	if d := maxPixelDiff(t, stdImg, ownImg); d > 2 {
		t.Errorf("decodes differ by %d", d)
	}
}
