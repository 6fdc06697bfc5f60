// Package imaging holds the pixel operators of the converter: separable
// resampling, grayscale conversion and EXIF orientation fixes. Everything
// works on premultiplied RGBA rows fed by a format-aware scanner.
package imaging

import (
	"image"
	"math"
)

// Filter is a separable resampling kernel. Support is the kernel radius in
// source pixels at scale 1.
type Filter struct {
	Support float64
	Kernel  func(float64) float64
}

// Box averages the covered source pixels. Best for strong downscaling.
var Box = Filter{
	Support: 0.5,
	Kernel: func(x float64) float64 {
		if x < 0 {
			x = -x
		}
		if x <= 0.5 {
			return 1
		}
		return 0
	},
}

// Linear is the bilinear tent kernel.
var Linear = Filter{
	Support: 1.0,
	Kernel: func(x float64) float64 {
		if x < 0 {
			x = -x
		}
		if x < 1 {
			return 1 - x
		}
		return 0
	},
}

// CatmullRom is a sharp cubic kernel, the default for photographic content.
var CatmullRom = Filter{
	Support: 2.0,
	Kernel: func(x float64) float64 {
		if x < 0 {
			x = -x
		}
		if x < 1 {
			return x*x*(1.5*x-2.5) + 1
		}
		if x < 2 {
			return x*(x*(2.5-0.5*x)-4) + 2
		}
		return 0
	},
}

type indexWeight struct {
	index  int
	weight float64
}

// precomputeWeights builds, for every destination coordinate, the list of
// contributing source coordinates and their normalized kernel weights.
func precomputeWeights(dstSize, srcSize int, filter Filter) [][]indexWeight {
	du := float64(srcSize) / float64(dstSize)
	scale := du
	if scale < 1.0 {
		scale = 1.0
	}
	ru := math.Ceil(scale * filter.Support)

	out := make([][]indexWeight, dstSize)
	tmp := make([]indexWeight, 0, dstSize*int(ru+2)*2)

	for v := 0; v < dstSize; v++ {
		fu := (float64(v)+0.5)*du - 0.5

		begin := int(math.Ceil(fu - ru))
		if begin < 0 {
			begin = 0
		}
		end := int(math.Floor(fu + ru))
		if end > srcSize-1 {
			end = srcSize - 1
		}

		var sum float64
		for u := begin; u <= end; u++ {
			w := filter.Kernel((float64(u) - fu) / scale)
			if w != 0 {
				sum += w
				tmp = append(tmp, indexWeight{index: u, weight: w})
			}
		}
		if sum != 0 {
			for i := range tmp {
				tmp[i].weight /= sum
			}
		}

		out[v] = tmp
		tmp = tmp[len(tmp):]
	}

	return out
}

// Resize resamples img to width x height with the given filter. A zero
// width or height preserves the aspect ratio along that axis (minimum one
// pixel). A nil-safe convenience: when the size already matches, the image
// is copied, not aliased.
func Resize(img image.Image, width, height int, filter Filter) *image.RGBA {
	dstW, dstH := width, height
	if dstW < 0 || dstH < 0 || (dstW == 0 && dstH == 0) {
		return &image.RGBA{}
	}
	srcW := img.Bounds().Dx()
	srcH := img.Bounds().Dy()
	if srcW <= 0 || srcH <= 0 {
		return &image.RGBA{}
	}
	if dstW == 0 {
		dstW = int(math.Max(1, math.Floor(float64(dstH)*float64(srcW)/float64(srcH)+0.5)))
	}
	if dstH == 0 {
		dstH = int(math.Max(1, math.Floor(float64(dstW)*float64(srcH)/float64(srcW)+0.5)))
	}

	if srcW == dstW && srcH == dstH {
		return Clone(img)
	}
	if srcW != dstW && srcH != dstH {
		return resizeVertical(resizeHorizontal(img, dstW, filter), dstH, filter)
	}
	if srcW != dstW {
		return resizeHorizontal(img, dstW, filter)
	}
	return resizeVertical(img, dstH, filter)
}

func resizeHorizontal(img image.Image, width int, filter Filter) *image.RGBA {
	src := newScanner(img)
	dst := image.NewRGBA(image.Rect(0, 0, width, src.h))
	weights := precomputeWeights(width, src.w, filter)
	parallel(0, src.h, func(ys <-chan int) {
		scanLine := make([]uint8, src.w*4)
		for y := range ys {
			src.scan(0, y, src.w, y+1, scanLine)
			j0 := y * dst.Stride
			for x := range weights {
				var r, g, b, a float64
				for _, w := range weights[x] {
					i := w.index * 4
					s := scanLine[i : i+4 : i+4]
					r += float64(s[0]) * w.weight
					g += float64(s[1]) * w.weight
					b += float64(s[2]) * w.weight
					a += float64(s[3]) * w.weight
				}
				j := j0 + x*4
				d := dst.Pix[j : j+4 : j+4]
				d[0] = clamp(r)
				d[1] = clamp(g)
				d[2] = clamp(b)
				d[3] = clamp(a)
			}
		}
	})
	return dst
}

func resizeVertical(img image.Image, height int, filter Filter) *image.RGBA {
	src := newScanner(img)
	dst := image.NewRGBA(image.Rect(0, 0, src.w, height))
	weights := precomputeWeights(height, src.h, filter)
	parallel(0, src.w, func(xs <-chan int) {
		scanLine := make([]uint8, src.h*4)
		for x := range xs {
			src.scan(x, 0, x+1, src.h, scanLine)
			for y := range weights {
				var r, g, b, a float64
				for _, w := range weights[y] {
					i := w.index * 4
					s := scanLine[i : i+4 : i+4]
					r += float64(s[0]) * w.weight
					g += float64(s[1]) * w.weight
					b += float64(s[2]) * w.weight
					a += float64(s[3]) * w.weight
				}
				j := y*dst.Stride + x*4
				d := dst.Pix[j : j+4 : j+4]
				d[0] = clamp(r)
				d[1] = clamp(g)
				d[2] = clamp(b)
				d[3] = clamp(a)
			}
		}
	})
	return dst
}

// Clone copies img into a fresh RGBA image with bounds anchored at the
// origin.
func Clone(img image.Image) *image.RGBA {
	src := newScanner(img)
	dst := image.NewRGBA(image.Rect(0, 0, src.w, src.h))
	size := src.w * 4
	parallel(0, src.h, func(ys <-chan int) {
		for y := range ys {
			i := y * dst.Stride
			src.scan(0, y, src.w, y+1, dst.Pix[i:i+size])
		}
	})
	return dst
}
