package imaging

import "image"

// EXIF orientation values describe the transform needed to display the
// stored pixels upright.
const (
	OrientationNormal     = 1
	OrientationFlipH      = 2
	OrientationRotate180  = 3
	OrientationFlipV      = 4
	OrientationTranspose  = 5
	OrientationRotate270  = 6
	OrientationTransverse = 7
	OrientationRotate90   = 8
)

// FixOrientation applies the pixel transform for the given EXIF orientation
// value. Values outside 2..8 return the image unchanged.
func FixOrientation(img image.Image, orientation int) image.Image {
	switch orientation {
	case OrientationFlipH:
		return FlipH(img)
	case OrientationRotate180:
		return Rotate180(img)
	case OrientationFlipV:
		return FlipV(img)
	case OrientationTranspose:
		return Transpose(img)
	case OrientationRotate270:
		return Rotate270(img)
	case OrientationTransverse:
		return Transverse(img)
	case OrientationRotate90:
		return Rotate90(img)
	}
	return img
}

// FlipH mirrors the image left to right.
func FlipH(img image.Image) *image.RGBA {
	src := newScanner(img)
	rowSize := src.w * 4
	dst := image.NewRGBA(image.Rect(0, 0, src.w, src.h))
	parallel(0, src.h, func(ys <-chan int) {
		for y := range ys {
			i := y * dst.Stride
			src.scan(0, y, src.w, y+1, dst.Pix[i:i+rowSize])
			reverseRow(dst.Pix[i : i+rowSize])
		}
	})
	return dst
}

// FlipV mirrors the image top to bottom.
func FlipV(img image.Image) *image.RGBA {
	src := newScanner(img)
	rowSize := src.w * 4
	dst := image.NewRGBA(image.Rect(0, 0, src.w, src.h))
	parallel(0, src.h, func(ys <-chan int) {
		for y := range ys {
			i := y * dst.Stride
			src.scan(0, src.h-y-1, src.w, src.h-y, dst.Pix[i:i+rowSize])
		}
	})
	return dst
}

// Transpose mirrors the image across the main diagonal.
func Transpose(img image.Image) *image.RGBA {
	src := newScanner(img)
	dstW, dstH := src.h, src.w
	rowSize := dstW * 4
	dst := image.NewRGBA(image.Rect(0, 0, dstW, dstH))
	parallel(0, dstH, func(ys <-chan int) {
		for y := range ys {
			i := y * dst.Stride
			src.scan(y, 0, y+1, src.h, dst.Pix[i:i+rowSize])
		}
	})
	return dst
}

// Transverse mirrors the image across the anti-diagonal.
func Transverse(img image.Image) *image.RGBA {
	src := newScanner(img)
	dstW, dstH := src.h, src.w
	rowSize := dstW * 4
	dst := image.NewRGBA(image.Rect(0, 0, dstW, dstH))
	parallel(0, dstH, func(ys <-chan int) {
		for y := range ys {
			i := y * dst.Stride
			src.scan(dstH-y-1, 0, dstH-y, src.h, dst.Pix[i:i+rowSize])
			reverseRow(dst.Pix[i : i+rowSize])
		}
	})
	return dst
}

// Rotate90 rotates the image 90 degrees counter-clockwise.
func Rotate90(img image.Image) *image.RGBA {
	src := newScanner(img)
	dstW, dstH := src.h, src.w
	rowSize := dstW * 4
	dst := image.NewRGBA(image.Rect(0, 0, dstW, dstH))
	parallel(0, dstH, func(ys <-chan int) {
		for y := range ys {
			i := y * dst.Stride
			src.scan(dstH-y-1, 0, dstH-y, src.h, dst.Pix[i:i+rowSize])
		}
	})
	return dst
}

// Rotate180 rotates the image 180 degrees.
func Rotate180(img image.Image) *image.RGBA {
	src := newScanner(img)
	rowSize := src.w * 4
	dst := image.NewRGBA(image.Rect(0, 0, src.w, src.h))
	parallel(0, src.h, func(ys <-chan int) {
		for y := range ys {
			i := y * dst.Stride
			src.scan(0, src.h-y-1, src.w, src.h-y, dst.Pix[i:i+rowSize])
			reverseRow(dst.Pix[i : i+rowSize])
		}
	})
	return dst
}

// Rotate270 rotates the image 270 degrees counter-clockwise.
func Rotate270(img image.Image) *image.RGBA {
	src := newScanner(img)
	dstW, dstH := src.h, src.w
	rowSize := dstW * 4
	dst := image.NewRGBA(image.Rect(0, 0, dstW, dstH))
	parallel(0, dstH, func(ys <-chan int) {
		for y := range ys {
			i := y * dst.Stride
			src.scan(y, 0, y+1, src.h, dst.Pix[i:i+rowSize])
			reverseRow(dst.Pix[i : i+rowSize])
		}
	})
	return dst
}

// Grayscale converts the image to 8-bit grayscale using BT.601 luma
// weights.
func Grayscale(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	src := newScanner(img)
	dst := image.NewGray(image.Rect(0, 0, src.w, src.h))
	parallel(0, src.h, func(ys <-chan int) {
		scanLine := make([]uint8, src.w*4)
		for y := range ys {
			src.scan(0, y, src.w, y+1, scanLine)
			i := y * dst.Stride
			for x := 0; x < src.w; x++ {
				s := scanLine[4*x : 4*x+3 : 4*x+3]
				dst.Pix[i+x] = uint8((19595*uint32(s[0]) + 38470*uint32(s[1]) + 7471*uint32(s[2]) + 1<<15) >> 16)
			}
		}
	})
	return dst
}
