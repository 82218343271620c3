package extractor

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Prepare decodes any supported format, downscales so the longest side is at
// most maxSide and re-encodes as JPEG for the backend.
func Prepare(imageData []byte, maxSide int) ([]byte, error) {
	src, format, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("decode image: empty %s", format)
	}

	dstW, dstH := w, h
	if maxSide > 0 && max(w, h) > maxSide {
		if w >= h {
			dstW = maxSide
			dstH = max(1, h*maxSide/w)
		} else {
			dstH = maxSide
			dstW = max(1, w*maxSide/h)
		}
	}

	// Always redraw onto RGBA so palette and alpha images reach the backend as plain RGB.
	dst := image.NewRGBA(image.Rect(0, 0, dstW, dstH))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 92}); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	return buf.Bytes(), nil
}
