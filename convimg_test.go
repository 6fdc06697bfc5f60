package convimg

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imgtools/convimg/jpeg"
)

func testImage(w, h int) *image.RGBA {
	m := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			m.SetRGBA(x, y, color.RGBA{uint8(40 + 3*x), uint8(60 + 2*y), uint8(80 + x + y), 255})
		}
	}
	return m
}

func TestSniffFormat(t *testing.T) {
	cases := []struct {
		name string
		data []byte
		want Format
	}{
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0}, FormatJPEG},
		{"png", []byte("\x89PNG\r\n\x1a\nXXXX"), FormatPNG},
		{"gif87", []byte("GIF87aXXXXXX"), FormatGIF},
		{"gif89", []byte("GIF89aXXXXXX"), FormatGIF},
		{"webp", []byte("RIFF\x00\x00\x00\x00WEBP"), FormatWebP},
		{"bmp", []byte("BMXXXXXXXXXX"), FormatBMP},
		{"riff-not-webp", []byte("RIFF\x00\x00\x00\x00WAVE"), FormatUnknown},
		{"short", []byte{0x89}, FormatUnknown},
		{"empty", nil, FormatUnknown},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, sniffFormat(tc.data), tc.name)
	}
}

func TestFormatFromPath(t *testing.T) {
	for path, want := range map[string]Format{
		"a.jpg":     FormatJPEG,
		"b.JPEG":    FormatJPEG,
		"c.jfif":    FormatJPEG,
		"dir/d.png": FormatPNG,
		"e.gif":     FormatGIF,
		"f.webp":    FormatWebP,
		"g.bmp":     FormatBMP,
		"h.DIB":     FormatBMP,
	} {
		got, err := FormatFromPath(path)
		require.NoError(t, err, path)
		assert.Equal(t, want, got, path)
	}

	for _, path := range []string{"a.tiff", "noext", "x.jpg.txt"} {
		_, err := FormatFromPath(path)
		assert.Error(t, err, path)
	}
}

func TestDecodeDispatch(t *testing.T) {
	src := testImage(24, 18)

	var jpegBuf bytes.Buffer
	require.NoError(t, Encode(&jpegBuf, src, FormatJPEG, &Options{Quality: 95}, nil))
	img, format, meta, err := Decode(&jpegBuf, nil)
	require.NoError(t, err)
	assert.Equal(t, FormatJPEG, format)
	assert.NotNil(t, meta)
	assert.Equal(t, src.Bounds(), img.Bounds())

	var pngBuf bytes.Buffer
	require.NoError(t, Encode(&pngBuf, src, FormatPNG, nil, nil))
	img, format, meta, err = Decode(&pngBuf, nil)
	require.NoError(t, err)
	assert.Equal(t, FormatPNG, format)
	assert.Nil(t, meta)
	assert.Equal(t, src.Bounds(), img.Bounds())

	var gifBuf bytes.Buffer
	require.NoError(t, Encode(&gifBuf, src, FormatGIF, nil, nil))
	img, format, _, err = Decode(&gifBuf, nil)
	require.NoError(t, err)
	assert.Equal(t, FormatGIF, format)
	assert.Equal(t, src.Bounds(), img.Bounds())

	var bmpBuf bytes.Buffer
	require.NoError(t, Encode(&bmpBuf, src, FormatBMP, nil, nil))
	img, format, _, err = Decode(&bmpBuf, nil)
	require.NoError(t, err)
	assert.Equal(t, FormatBMP, format)
	assert.Equal(t, src.Bounds(), img.Bounds())
}

func TestDecodeUnknownFormat(t *testing.T) {
	_, format, _, err := Decode(bytes.NewReader([]byte("not an image at all")), nil)
	assert.Error(t, err)
	assert.Equal(t, FormatUnknown, format)
}

func TestEncodeWebPUnsupported(t *testing.T) {
	var buf bytes.Buffer
	err := Encode(&buf, testImage(4, 4), FormatWebP, nil, nil)
	assert.ErrorIs(t, err, ErrWebPEncode)
	assert.Zero(t, buf.Len())
}

// TestPNGRoundTripLossless: converting through the PNG writer preserves
// pixels exactly.
func TestPNGRoundTripLossless(t *testing.T) {
	src := testImage(31, 13)
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, src, FormatPNG, nil, nil))
	decoded, err := png.Decode(&buf)
	require.NoError(t, err)
	for y := 0; y < 13; y++ {
		for x := 0; x < 31; x++ {
			require.Equal(t, src.At(x, y), color.RGBAModel.Convert(decoded.At(x, y)),
				"pixel %d,%d", x, y)
		}
	}
}

// exifWithOrientation builds a minimal big-endian EXIF payload holding a
// single orientation tag.
func exifWithOrientation(orientation byte) []byte {
	return []byte{
		'E', 'x', 'i', 'f', 0, 0,
		'M', 'M', 0, 42,
		0, 0, 0, 8, // IFD0 offset
		0, 1, // one entry
		0x01, 0x12, 0, 3, 0, 0, 0, 1, 0, orientation, 0, 0,
		0, 0, 0, 0, // no next IFD
	}
}

func TestAutoOrient(t *testing.T) {
	// A 6x2 image stored with orientation 6 displays as 2x6.
	src := testImage(6, 2)
	var buf bytes.Buffer
	meta := &jpeg.Metadata{Orientation: 6, ExifRaw: exifWithOrientation(6)}
	require.NoError(t, Encode(&buf, src, FormatJPEG, &Options{Quality: 95, KeepMetadata: true}, meta))

	img, _, gotMeta, err := Decode(bytes.NewReader(buf.Bytes()), &Options{AutoOrient: true})
	require.NoError(t, err)
	require.NotNil(t, gotMeta)
	assert.Equal(t, 1, gotMeta.Orientation)
	assert.Equal(t, 2, img.Bounds().Dx())
	assert.Equal(t, 6, img.Bounds().Dy())

	// Without AutoOrient the pixels and the tag are left alone.
	img, _, gotMeta, err = Decode(bytes.NewReader(buf.Bytes()), nil)
	require.NoError(t, err)
	require.NotNil(t, gotMeta)
	assert.Equal(t, 6, gotMeta.Orientation)
	assert.Equal(t, 6, img.Bounds().Dx())
}

func TestKeepMetadata(t *testing.T) {
	src := testImage(8, 8)
	icc := bytes.Repeat([]byte{0xAB}, 300)
	meta := &jpeg.Metadata{ICCProfile: icc}

	var kept bytes.Buffer
	require.NoError(t, Encode(&kept, src, FormatJPEG, &Options{KeepMetadata: true}, meta))
	_, _, gotMeta, err := Decode(&kept, nil)
	require.NoError(t, err)
	require.NotNil(t, gotMeta)
	assert.Equal(t, icc, gotMeta.ICCProfile)

	var dropped bytes.Buffer
	require.NoError(t, Encode(&dropped, src, FormatJPEG, nil, meta))
	_, _, gotMeta, err = Decode(&dropped, nil)
	require.NoError(t, err)
	require.NotNil(t, gotMeta)
	assert.Nil(t, gotMeta.ICCProfile)
}

func TestResizeAndGrayscale(t *testing.T) {
	src := testImage(40, 20)

	resized := Resize(src, 20, 0)
	assert.Equal(t, image.Rect(0, 0, 20, 10), resized.Bounds())

	gray := Grayscale(src)
	_, ok := gray.(*image.Gray)
	assert.True(t, ok)
	assert.Equal(t, src.Bounds(), gray.Bounds())
}

func TestOpenSave(t *testing.T) {
	dir := t.TempDir()
	src := testImage(16, 12)

	jpgPath := filepath.Join(dir, "out.jpg")
	require.NoError(t, Save(jpgPath, src, &Options{Quality: 90}, nil))
	img, format, meta, err := Open(jpgPath, nil)
	require.NoError(t, err)
	assert.Equal(t, FormatJPEG, format)
	assert.NotNil(t, meta)
	assert.Equal(t, src.Bounds(), img.Bounds())

	pngPath := filepath.Join(dir, "out.png")
	require.NoError(t, Save(pngPath, src, nil, nil))
	img, format, _, err = Open(pngPath, nil)
	require.NoError(t, err)
	assert.Equal(t, FormatPNG, format)
	assert.Equal(t, src.Bounds(), img.Bounds())

	assert.Error(t, Save(filepath.Join(dir, "out.tiff"), src, nil, nil))
	_, err = os.Stat(filepath.Join(dir, "out.tiff"))
	assert.True(t, os.IsNotExist(err))
}
