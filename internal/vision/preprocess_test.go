package vision

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/firstnattapon/24wash-backend/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	logger.IsTest = true
}

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func decodeJPEG(t *testing.T, b []byte) image.Image {
	t.Helper()
	img, err := jpeg.Decode(bytes.NewReader(b))
	require.NoError(t, err)
	return img
}

func TestPreprocess_DownscalesLargeImage(t *testing.T) {
	out, err := Preprocess(encodePNG(t, 2048, 1536), 1024, 85)
	require.NoError(t, err)

	img := decodeJPEG(t, out)
	assert.Equal(t, 1024, img.Bounds().Dx())
	assert.Equal(t, 768, img.Bounds().Dy())
}

func TestPreprocess_PortraitAspectPreserved(t *testing.T) {
	out, err := Preprocess(encodePNG(t, 600, 3000), 1024, 85)
	require.NoError(t, err)

	img := decodeJPEG(t, out)
	assert.Equal(t, 204, img.Bounds().Dx())
	assert.Equal(t, 1024, img.Bounds().Dy())
}

func TestPreprocess_SmallImageNotUpscaled(t *testing.T) {
	out, err := Preprocess(encodePNG(t, 640, 480), 1024, 85)
	require.NoError(t, err)

	img := decodeJPEG(t, out)
	assert.Equal(t, 640, img.Bounds().Dx())
	assert.Equal(t, 480, img.Bounds().Dy())
}

func TestPreprocess_ReencodesJPEGInput(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 100, 100))
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, src, nil))

	out, err := Preprocess(buf.Bytes(), 1024, 85)
	require.NoError(t, err)

	// grayscale input must come back decodable as a color JPEG
	img := decodeJPEG(t, out)
	assert.Equal(t, 100, img.Bounds().Dx())
}

func TestPreprocess_RejectsGarbage(t *testing.T) {
	_, err := Preprocess([]byte("definitely not an image"), 1024, 85)
	assert.Error(t, err)
}
