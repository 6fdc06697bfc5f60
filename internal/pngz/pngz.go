// Package pngz writes PNG images. It emits the three mandatory chunks for
// 8-bit grayscale, RGB and RGBA images, with per-row adaptive filtering.
// Compression is delegated to klauspost/compress.
package pngz

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"image"
	"io"

	"github.com/klauspost/compress/zlib"
)

var pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

// PNG color types for 8-bit depth.
const (
	colorGray = 0
	colorRGB  = 2
	colorRGBA = 6
)

// Row filter types from the PNG specification, section 9.
const (
	ftNone = iota
	ftSub
	ftUp
	ftAverage
	ftPaeth
	nFilter
)

type chunkWriter struct {
	w   io.Writer
	err error
}

func (cw *chunkWriter) writeChunk(name string, data []byte) {
	if cw.err != nil {
		return
	}
	var hdr [8]byte
	binary.BigEndian.PutUint32(hdr[:4], uint32(len(data)))
	copy(hdr[4:], name)
	crc := crc32.NewIEEE()
	crc.Write(hdr[4:])
	crc.Write(data)
	var tail [4]byte
	binary.BigEndian.PutUint32(tail[:], crc.Sum32())
	if _, cw.err = cw.w.Write(hdr[:]); cw.err != nil {
		return
	}
	if _, cw.err = cw.w.Write(data); cw.err != nil {
		return
	}
	_, cw.err = cw.w.Write(tail[:])
}

// rowSource yields the raw (unfiltered) bytes of each image row.
type rowSource struct {
	img       image.Image
	colorType byte
	bpp       int // bytes per pixel
	width     int
}

func newRowSource(img image.Image) *rowSource {
	s := &rowSource{img: img, width: img.Bounds().Dx()}
	switch {
	case isGray(img):
		s.colorType, s.bpp = colorGray, 1
	case opaque(img):
		s.colorType, s.bpp = colorRGB, 3
	default:
		s.colorType, s.bpp = colorRGBA, 4
	}
	return s
}

func isGray(img image.Image) bool {
	_, ok := img.(*image.Gray)
	return ok
}

func opaque(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return o.Opaque()
	}
	return false
}

// readRow fills dst with the raw bytes of row y. dst is width*bpp long.
func (s *rowSource) readRow(y int, dst []byte) {
	if img, ok := s.img.(*image.Gray); ok {
		copy(dst, img.Pix[y*img.Stride:y*img.Stride+s.width])
		return
	}
	if img, ok := s.img.(*image.RGBA); ok && s.bpp == 3 {
		i := y * img.Stride
		for x := 0; x < s.width; x++ {
			p := img.Pix[i+4*x : i+4*x+3]
			d := dst[3*x : 3*x+3 : 3*x+3]
			d[0], d[1], d[2] = p[0], p[1], p[2]
		}
		return
	}
	b := s.img.Bounds()
	for x := 0; x < s.width; x++ {
		r16, g16, b16, a16 := s.img.At(b.Min.X+x, b.Min.Y+y).RGBA()
		if s.bpp == 3 {
			d := dst[3*x : 3*x+3 : 3*x+3]
			d[0] = uint8(r16 >> 8)
			d[1] = uint8(g16 >> 8)
			d[2] = uint8(b16 >> 8)
		} else {
			// Un-premultiply; PNG stores straight alpha.
			d := dst[4*x : 4*x+4 : 4*x+4]
			if a16 == 0 {
				d[0], d[1], d[2], d[3] = 0, 0, 0, 0
			} else {
				d[0] = uint8((r16 * 0xffff / a16) >> 8)
				d[1] = uint8((g16 * 0xffff / a16) >> 8)
				d[2] = uint8((b16 * 0xffff / a16) >> 8)
				d[3] = uint8(a16 >> 8)
			}
		}
	}
}

func abs8(d int) int {
	if d < 0 {
		return -d
	}
	return d
}

func paeth(a, b, c uint8) uint8 {
	p := int(a) + int(b) - int(c)
	pa := abs8(p - int(a))
	pb := abs8(p - int(b))
	pc := abs8(p - int(c))
	if pa <= pb && pa <= pc {
		return a
	}
	if pb <= pc {
		return b
	}
	return c
}

// filterRow writes each candidate filter of cur into cand and returns the
// index of the one with the smallest absolute sum, the usual minimum-sum
// heuristic.
func filterRow(cand *[nFilter][]byte, cur, prev []byte, bpp int) int {
	n := len(cur)

	sum := func(row []byte) int {
		s := 0
		for _, v := range row {
			s += abs8(int(int8(v)))
		}
		return s
	}

	copy(cand[ftNone], cur)
	for i := 0; i < n; i++ {
		var a, b, c byte
		if i >= bpp {
			a = cur[i-bpp]
			c = prev[i-bpp]
		}
		b = prev[i]
		cand[ftSub][i] = cur[i] - a
		cand[ftUp][i] = cur[i] - b
		cand[ftAverage][i] = cur[i] - uint8((int(a)+int(b))/2)
		cand[ftPaeth][i] = cur[i] - paeth(a, b, c)
	}

	best, bestSum := ftNone, sum(cand[ftNone])
	for f := ftNone + 1; f < nFilter; f++ {
		if s := sum(cand[f]); s < bestSum {
			best, bestSum = f, s
		}
	}
	return best
}

// Encode writes img to w in PNG format.
func Encode(w io.Writer, img image.Image) error {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width <= 0 || height <= 0 {
		return fmt.Errorf("pngz: empty image %dx%d", width, height)
	}

	bw := bufio.NewWriter(w)
	if _, err := bw.Write(pngSignature); err != nil {
		return err
	}
	cw := &chunkWriter{w: bw}

	src := newRowSource(img)

	var ihdr [13]byte
	binary.BigEndian.PutUint32(ihdr[0:4], uint32(width))
	binary.BigEndian.PutUint32(ihdr[4:8], uint32(height))
	ihdr[8] = 8 // bit depth
	ihdr[9] = src.colorType
	cw.writeChunk("IHDR", ihdr[:])

	var idat bytesBuffer
	zw := zlib.NewWriter(&idat)
	rowLen := width * src.bpp
	cur := make([]byte, rowLen)
	prev := make([]byte, rowLen)
	var cand [nFilter][]byte
	for i := range cand {
		cand[i] = make([]byte, rowLen)
	}
	for y := 0; y < height; y++ {
		src.readRow(y, cur)
		f := filterRow(&cand, cur, prev, src.bpp)
		if _, err := zw.Write([]byte{byte(f)}); err != nil {
			return err
		}
		if _, err := zw.Write(cand[f]); err != nil {
			return err
		}
		cur, prev = prev, cur
	}
	if err := zw.Close(); err != nil {
		return err
	}
	cw.writeChunk("IDAT", idat)
	cw.writeChunk("IEND", nil)
	if cw.err != nil {
		return cw.err
	}
	return bw.Flush()
}

// bytesBuffer is a minimal append-based io.Writer.
type bytesBuffer []byte

func (b *bytesBuffer) Write(p []byte) (int, error) {
	*b = append(*b, p...)
	return len(p), nil
}
