// Command convimg converts a raster image file between JPEG, PNG, GIF,
// WebP and BMP, with optional resizing and grayscale conversion.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/imgtools/convimg"
)

func main() {
	log.SetFlags(0)
	log.SetPrefix("convimg: ")

	var (
		in        = flag.String("in", "", "input image path")
		out       = flag.String("out", "", "output image path; format inferred from extension")
		quality   = flag.Int("quality", 0, "JPEG quality 1..100 (default 90)")
		subsample = flag.String("subsample", "444", "JPEG chroma subsampling: 420 or 444")
		idct      = flag.String("idct", "int", "JPEG inverse transform: int or float")
		progrsv   = flag.Bool("progressive", false, "write progressive JPEG output")
		keepMeta  = flag.Bool("keep-metadata", false, "carry EXIF and ICC data to JPEG output")
		resize    = flag.String("resize", "", "resize to WxH; 0 for either keeps the aspect ratio")
		grayscale = flag.Bool("grayscale", false, "convert to grayscale")
		orient    = flag.Bool("auto-orient", false, "apply the EXIF orientation to the pixels")
	)
	flag.Parse()

	if *in == "" || *out == "" {
		flag.Usage()
		os.Exit(2)
	}

	opts := &convimg.Options{
		Quality:      *quality,
		Progressive:  *progrsv,
		KeepMetadata: *keepMeta,
		AutoOrient:   *orient,
	}
	switch *subsample {
	case "420":
		opts.Subsample420 = true
	case "444":
	default:
		log.Fatalf("invalid -subsample %q: want 420 or 444", *subsample)
	}
	switch *idct {
	case "int":
	case "float":
		opts.FloatIDCT = true
	default:
		log.Fatalf("invalid -idct %q: want int or float", *idct)
	}

	img, _, meta, err := convimg.Open(*in, opts)
	if err != nil {
		log.Fatal(err)
	}

	if *resize != "" {
		w, h, err := parseSize(*resize)
		if err != nil {
			log.Fatal(err)
		}
		img = convimg.Resize(img, w, h)
	}
	if *grayscale {
		img = convimg.Grayscale(img)
	}

	if err := convimg.Save(*out, img, opts, meta); err != nil {
		log.Fatal(err)
	}
}

func parseSize(s string) (w, h int, err error) {
	a, b, ok := strings.Cut(strings.ToLower(s), "x")
	if !ok {
		return 0, 0, fmt.Errorf("invalid -resize %q: want WxH", s)
	}
	if w, err = strconv.Atoi(a); err != nil {
		return 0, 0, fmt.Errorf("invalid -resize width %q", a)
	}
	if h, err = strconv.Atoi(b); err != nil {
		return 0, 0, fmt.Errorf("invalid -resize height %q", b)
	}
	if w < 0 || h < 0 || (w == 0 && h == 0) {
		return 0, 0, fmt.Errorf("invalid -resize %q", s)
	}
	return w, h, nil
}
