package imaging

import (
	"image"
	"image/color"
)

// scanner reads rectangular regions of any source image into premultiplied
// RGBA rows. Fast paths exist for the pixel formats the codecs in this
// module produce; everything else goes through At().
type scanner struct {
	image   image.Image
	w, h    int
	palette []color.RGBA
}

func newScanner(img image.Image) *scanner {
	s := &scanner{
		image: img,
		w:     img.Bounds().Dx(),
		h:     img.Bounds().Dy(),
	}
	if img, ok := img.(*image.Paletted); ok {
		s.palette = make([]color.RGBA, len(img.Palette))
		for i := 0; i < len(img.Palette); i++ {
			s.palette[i] = color.RGBAModel.Convert(img.Palette[i]).(color.RGBA)
		}
	}
	return s
}

// scan copies the region [x1,x2) x [y1,y2) of the image into dst as
// premultiplied RGBA. Region coordinates are relative to the image bounds.
func (s *scanner) scan(x1, y1, x2, y2 int, dst []uint8) {
	switch img := s.image.(type) {
	case *image.RGBA:
		size := (x2 - x1) * 4
		j := 0
		i := y1*img.Stride + x1*4
		for y := y1; y < y2; y++ {
			copy(dst[j:j+size], img.Pix[i:i+size])
			j += size
			i += img.Stride
		}

	case *image.NRGBA:
		j := 0
		for y := y1; y < y2; y++ {
			i := y*img.Stride + x1*4
			for x := x1; x < x2; x++ {
				p := img.Pix[i : i+4 : i+4]
				d := dst[j : j+4 : j+4]
				a := uint16(p[3])
				switch a {
				case 0:
					d[0], d[1], d[2], d[3] = 0, 0, 0, 0
				case 0xff:
					d[0], d[1], d[2], d[3] = p[0], p[1], p[2], 0xff
				default:
					d[0] = uint8(uint16(p[0]) * a / 0xff)
					d[1] = uint8(uint16(p[1]) * a / 0xff)
					d[2] = uint8(uint16(p[2]) * a / 0xff)
					d[3] = p[3]
				}
				j += 4
				i += 4
			}
		}

	case *image.Gray:
		j := 0
		for y := y1; y < y2; y++ {
			i := y*img.Stride + x1
			for x := x1; x < x2; x++ {
				c := img.Pix[i]
				d := dst[j : j+4 : j+4]
				d[0], d[1], d[2], d[3] = c, c, c, 0xff
				j += 4
				i++
			}
		}

	case *image.CMYK:
		j := 0
		for y := y1; y < y2; y++ {
			i := y*img.Stride + x1*4
			for x := x1; x < x2; x++ {
				p := img.Pix[i : i+4 : i+4]
				r, g, b := color.CMYKToRGB(p[0], p[1], p[2], p[3])
				d := dst[j : j+4 : j+4]
				d[0], d[1], d[2], d[3] = r, g, b, 0xff
				j += 4
				i += 4
			}
		}

	case *image.YCbCr:
		j := 0
		for y := y1; y < y2; y++ {
			for x := x1; x < x2; x++ {
				sx := x + img.Rect.Min.X
				sy := y + img.Rect.Min.Y
				r, g, b := color.YCbCrToRGB(
					img.Y[img.YOffset(sx, sy)],
					img.Cb[img.COffset(sx, sy)],
					img.Cr[img.COffset(sx, sy)],
				)
				d := dst[j : j+4 : j+4]
				d[0], d[1], d[2], d[3] = r, g, b, 0xff
				j += 4
			}
		}

	case *image.Paletted:
		j := 0
		for y := y1; y < y2; y++ {
			i := y*img.Stride + x1
			for x := x1; x < x2; x++ {
				c := s.palette[img.Pix[i]]
				d := dst[j : j+4 : j+4]
				d[0], d[1], d[2], d[3] = c.R, c.G, c.B, c.A
				j += 4
				i++
			}
		}

	default:
		j := 0
		b := s.image.Bounds()
		for y := y1; y < y2; y++ {
			for x := x1; x < x2; x++ {
				r16, g16, b16, a16 := s.image.At(b.Min.X+x, b.Min.Y+y).RGBA()
				d := dst[j : j+4 : j+4]
				d[0] = uint8(r16 >> 8)
				d[1] = uint8(g16 >> 8)
				d[2] = uint8(b16 >> 8)
				d[3] = uint8(a16 >> 8)
				j += 4
			}
		}
	}
}
