package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"

	xdraw "golang.org/x/image/draw"

	// Wide-format scanner output commonly arrives as TIFF or BMP.
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

// Normalizer downscales raster input into a bounded-size transport payload.
type Normalizer struct {
	MaxDimension int // longer edge cap; input is never up-scaled
	JPEGQuality  int // 1..100
}

func NewNormalizer(maxDimension, quality int) *Normalizer {
	if maxDimension <= 0 {
		maxDimension = 2048
	}
	if quality <= 0 || quality > 100 {
		quality = 80
	}
	return &Normalizer{MaxDimension: maxDimension, JPEGQuality: quality}
}

// NormalizeBytes decodes data (JPEG/PNG/TIFF/BMP), scales the longer edge
// down to MaxDimension preserving aspect ratio, and re-encodes as JPEG.
func (n *Normalizer) NormalizeBytes(data []byte) ([]byte, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	out, err := n.Normalize(img)
	if err != nil {
		return nil, fmt.Errorf("normalize %s image: %w", format, err)
	}
	return out, nil
}

// Normalize scales img and encodes it as JPEG at the configured quality.
func (n *Normalizer) Normalize(img image.Image) ([]byte, error) {
	scaled := n.scale(img)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, scaled, &jpeg.Options{Quality: n.JPEGQuality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

func (n *Normalizer) scale(img image.Image) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	longer := w
	if h > longer {
		longer = h
	}
	if longer <= n.MaxDimension {
		return img
	}

	var dw, dh int
	if w >= h {
		dw = n.MaxDimension
		dh = h * n.MaxDimension / w
	} else {
		dh = n.MaxDimension
		dw = w * n.MaxDimension / h
	}
	if dw < 1 {
		dw = 1
	}
	if dh < 1 {
		dh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Over, nil)
	return dst
}
