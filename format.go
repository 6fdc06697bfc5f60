package convimg

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
)

// Format identifies an image container format.
type Format int

const (
	FormatUnknown Format = iota
	FormatJPEG
	FormatPNG
	FormatGIF
	FormatWebP
	FormatBMP
)

func (f Format) String() string {
	switch f {
	case FormatJPEG:
		return "jpeg"
	case FormatPNG:
		return "png"
	case FormatGIF:
		return "gif"
	case FormatWebP:
		return "webp"
	case FormatBMP:
		return "bmp"
	}
	return "unknown"
}

// sniffLen is the number of leading bytes needed to identify any supported
// format. WebP's RIFF header is the longest at 12 bytes.
const sniffLen = 12

// sniffFormat identifies a format from the leading bytes of a stream.
func sniffFormat(p []byte) Format {
	switch {
	case len(p) >= 2 && p[0] == 0xFF && p[1] == 0xD8:
		return FormatJPEG
	case bytes.HasPrefix(p, []byte("\x89PNG\r\n\x1a\n")):
		return FormatPNG
	case bytes.HasPrefix(p, []byte("GIF87a")) || bytes.HasPrefix(p, []byte("GIF89a")):
		return FormatGIF
	case len(p) >= 12 && bytes.Equal(p[0:4], []byte("RIFF")) && bytes.Equal(p[8:12], []byte("WEBP")):
		return FormatWebP
	case bytes.HasPrefix(p, []byte("BM")):
		return FormatBMP
	}
	return FormatUnknown
}

// FormatFromPath maps a file extension to a format.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg", ".jpe", ".jfif":
		return FormatJPEG, nil
	case ".png":
		return FormatPNG, nil
	case ".gif":
		return FormatGIF, nil
	case ".webp":
		return FormatWebP, nil
	case ".bmp", ".dib":
		return FormatBMP, nil
	}
	return FormatUnknown, fmt.Errorf("convimg: cannot infer format from %q", path)
}
