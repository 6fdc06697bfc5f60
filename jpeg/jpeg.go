// Package jpeg implements a baseline and progressive JPEG codec as
// specified in ITU-T T.81.
//
// The decoder accepts grayscale, YCbCr, RGB, CMYK and YCCK streams, keeps
// EXIF and ICC metadata, and recovers partial images from truncated
// entropy data when a real marker interrupts a scan. The encoder writes
// baseline or spectral-selection progressive streams with the usual
// quality-scaled K.1 quantization tables and K.3 Huffman tables.
package jpeg

import (
	"bufio"
	"context"
	"image"
	"image/color"
	"io"
)

// DecodeOptions are the decoding parameters. The zero value is a valid
// default configuration.
type DecodeOptions struct {
	// FloatIDCT selects the float64 inverse transform over the fixed-point
	// one. Slower, slightly more accurate.
	FloatIDCT bool
}

// Metadata is the non-pixel payload of a JPEG stream.
type Metadata struct {
	// Orientation is the EXIF orientation tag value, 1 through 8. It is 1
	// when absent. The decoder does not rotate pixels; callers that honor
	// orientation apply it themselves.
	Orientation int
	// ExifRaw is the APP1 EXIF payload after the "Exif\x00\x00" signature,
	// or nil.
	ExifRaw []byte
	// ICCProfile is the ICC color profile reassembled from its APP2
	// chunks, or nil.
	ICCProfile []byte
}

func decodeAll(src byteSource, opts DecodeOptions) (image.Image, *Metadata, error) {
	d := newDecoder(src, opts)
	if err := d.decode(false); err != nil {
		return nil, nil, err
	}
	d.render()
	img, err := d.makeImage()
	if err != nil {
		return nil, nil, err
	}
	meta := &Metadata{
		Orientation: d.orientation,
		ExifRaw:     d.exifRaw,
		ICCProfile:  d.iccProfile,
	}
	return img, meta, nil
}

func streamFor(ctx context.Context, r io.Reader) byteSource {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	return &streamSource{br: br, ctx: ctx}
}

// Decode reads a JPEG image from r and returns it as an image.Image.
func Decode(r io.Reader) (image.Image, error) {
	img, _, err := decodeAll(streamFor(nil, r), DecodeOptions{})
	return img, err
}

// DecodeWithMetadata reads a JPEG image from r and returns it together with
// its metadata. A nil opts selects the defaults.
func DecodeWithMetadata(r io.Reader, opts *DecodeOptions) (image.Image, *Metadata, error) {
	var o DecodeOptions
	if opts != nil {
		o = *opts
	}
	return decodeAll(streamFor(nil, r), o)
}

// DecodeContext is DecodeWithMetadata with cooperative cancellation: the
// context is checked at input refill points, so an abandoned decode stops
// soon after ctx is done.
func DecodeContext(ctx context.Context, r io.Reader, opts *DecodeOptions) (image.Image, *Metadata, error) {
	var o DecodeOptions
	if opts != nil {
		o = *opts
	}
	return decodeAll(streamFor(ctx, r), o)
}

// DecodeBytes decodes a JPEG image held in memory, avoiding the buffered
// reader layer.
func DecodeBytes(data []byte, opts *DecodeOptions) (image.Image, *Metadata, error) {
	var o DecodeOptions
	if opts != nil {
		o = *opts
	}
	return decodeAll(&memSource{data: data}, o)
}

// DecodeConfig returns the color model and dimensions of a JPEG image
// without decoding the entire image.
func DecodeConfig(r io.Reader) (image.Config, error) {
	d := newDecoder(streamFor(nil, r), DecodeOptions{})
	if err := d.decode(true); err != nil {
		return image.Config{}, err
	}
	cfg := image.Config{Width: d.width, Height: d.height}
	switch d.nComp {
	case 1:
		cfg.ColorModel = color.GrayModel
	case 4:
		cfg.ColorModel = color.CMYKModel
	default:
		cfg.ColorModel = color.RGBAModel
	}
	return cfg, nil
}

func init() {
	image.RegisterFormat("jpeg", "\xff\xd8", Decode, DecodeConfig)
}
