// Package convimg converts raster images between JPEG, PNG, GIF, WebP and
// BMP, with optional resizing and grayscale conversion. The JPEG codec is
// this module's own; the other containers are boundary-level delegations.
package convimg

import (
	"bufio"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/png"
	"io"
	"os"

	"golang.org/x/image/bmp"
	"golang.org/x/image/webp"

	"github.com/imgtools/convimg/internal/imaging"
	"github.com/imgtools/convimg/internal/pngz"
	"github.com/imgtools/convimg/jpeg"
)

// ErrWebPEncode is returned when a WebP output is requested. The WebP
// delegation is decode-only.
var ErrWebPEncode = errors.New("convimg: webp encoding is not supported")

// Options control encoding and the optional pixel operations applied
// between decode and encode.
type Options struct {
	// Quality is the JPEG quality, 1 to 100. Zero means the default.
	Quality int
	// Subsample420 selects 4:2:0 chroma for JPEG output.
	Subsample420 bool
	// Progressive selects progressive JPEG output.
	Progressive bool
	// FloatIDCT selects the float inverse transform for JPEG decoding.
	FloatIDCT bool
	// KeepMetadata carries EXIF and ICC data from a JPEG input to a JPEG
	// output.
	KeepMetadata bool
	// AutoOrient applies the EXIF orientation to the pixels after
	// decoding.
	AutoOrient bool
}

// Decode reads an image from r, identifying the container by its magic
// bytes. The returned metadata is non-nil only for JPEG input.
func Decode(r io.Reader, opts *Options) (image.Image, Format, *jpeg.Metadata, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(sniffLen)
	if err != nil && len(magic) < 2 {
		return nil, FormatUnknown, nil, fmt.Errorf("convimg: reading magic bytes: %w", err)
	}
	format := sniffFormat(magic)

	var (
		img  image.Image
		meta *jpeg.Metadata
	)
	switch format {
	case FormatJPEG:
		o := &jpeg.DecodeOptions{}
		if opts != nil {
			o.FloatIDCT = opts.FloatIDCT
		}
		img, meta, err = jpeg.DecodeWithMetadata(br, o)
	case FormatPNG:
		img, err = png.Decode(br)
	case FormatGIF:
		img, err = gif.Decode(br)
	case FormatWebP:
		img, err = webp.Decode(br)
	case FormatBMP:
		img, err = bmp.Decode(br)
	default:
		return nil, FormatUnknown, nil, fmt.Errorf("convimg: unrecognized image format")
	}
	if err != nil {
		return nil, format, nil, fmt.Errorf("convimg: decoding %s: %w", format, err)
	}

	if opts != nil && opts.AutoOrient && meta != nil && meta.Orientation > 1 {
		img = imaging.FixOrientation(img, meta.Orientation)
		meta.Orientation = 1
	}
	return img, format, meta, nil
}

// Encode writes img to w in the given format. meta may be nil; it is only
// consulted for JPEG output with KeepMetadata set.
func Encode(w io.Writer, img image.Image, format Format, opts *Options, meta *jpeg.Metadata) error {
	switch format {
	case FormatJPEG:
		o := &jpeg.EncoderOptions{}
		if opts != nil {
			o.Quality = opts.Quality
			o.Subsample420 = opts.Subsample420
			o.Progressive = opts.Progressive
			if opts.KeepMetadata {
				o.Metadata = meta
			}
		}
		return jpeg.Encode(w, img, o)
	case FormatPNG:
		return pngz.Encode(w, img)
	case FormatGIF:
		return gif.Encode(w, img, nil)
	case FormatBMP:
		return bmp.Encode(w, img)
	case FormatWebP:
		return ErrWebPEncode
	}
	return fmt.Errorf("convimg: cannot encode format %v", format)
}

// Open decodes the image file at path.
func Open(path string, opts *Options) (image.Image, Format, *jpeg.Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, FormatUnknown, nil, err
	}
	defer f.Close()
	return Decode(f, opts)
}

// Save encodes img to the file at path, inferring the format from the
// extension.
func Save(path string, img image.Image, opts *Options, meta *jpeg.Metadata) error {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Encode(f, img, format, opts, meta); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Resize resamples img to width x height with a Catmull-Rom filter. A zero
// width or height preserves the aspect ratio.
func Resize(img image.Image, width, height int) image.Image {
	return imaging.Resize(img, width, height, imaging.CatmullRom)
}

// Grayscale converts img to 8-bit grayscale.
func Grayscale(img image.Image) image.Image {
	return imaging.Grayscale(img)
}
