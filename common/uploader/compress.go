package uploader

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"strings"

	"golang.org/x/image/draw"
)

// ImageOptions bounds pre-upload image compression
type ImageOptions struct {
	MaxWidth  int
	MaxHeight int
	Quality   int

	// Threshold is the size above which compression is attempted
	Threshold int64
}

// DefaultImageOptions fits images inside 1920x1080 at JPEG quality 80
var DefaultImageOptions = ImageOptions{
	MaxWidth:  1920,
	MaxHeight: 1080,
	Quality:   80,
	Threshold: 1 << 20,
}

// fitWithin scales w x h down to fit maxW x maxH keeping the aspect ratio
func fitWithin(w, h, maxW, maxH int) (int, int) {
	if w > maxW {
		h = h * maxW / w
		w = maxW
	}
	if h > maxH {
		w = w * maxH / h
		h = maxH
	}
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h
}

// CompressImage decodes data, downscales it to fit the bounds and re-encodes it as JPEG.
// The result is only used when it is smaller than the input.
func CompressImage(data []byte, opts ImageOptions) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	b := src.Bounds()
	w, h := fitWithin(b.Dx(), b.Dy(), opts.MaxWidth, opts.MaxHeight)

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: opts.Quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	if buf.Len() >= len(data) {
		return nil, fmt.Errorf("compressed image is not smaller (%d >= %d bytes)", buf.Len(), len(data))
	}
	return buf.Bytes(), nil
}

func compressible(f *File, opts ImageOptions) bool {
	return strings.HasPrefix(f.ContentType, "image/") &&
		f.ContentType != "image/svg+xml" &&
		f.Size() > opts.Threshold
}
