package vision

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // slips occasionally arrive as screenshots

	"golang.org/x/image/draw"
)

// Preprocess bounds the payload sent to the vision model: the image is
// decoded, downscaled to fit maxDim on its longest side preserving aspect
// ratio, flattened to a 3-channel representation, and re-encoded as JPEG at
// the given quality.
func Preprocess(img []byte, maxDim, quality int) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(img))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("image has empty bounds")
	}

	tw, th := w, h
	if w > maxDim || h > maxDim {
		if w >= h {
			tw = maxDim
			th = h * maxDim / w
		} else {
			th = maxDim
			tw = w * maxDim / h
		}
		if tw < 1 {
			tw = 1
		}
		if th < 1 {
			th = 1
		}
	}

	// RGBA target drops any alpha/palette model; JPEG encoding then yields
	// plain 3-channel output.
	dst := image.NewRGBA(image.Rect(0, 0, tw, th))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Src, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
