package images

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/chai2010/webp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 64, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestProcessor_EncodesWebP(t *testing.T) {
	p := NewProcessor(0)

	res, err := p.Process(pngBytes(t, 100, 60))
	require.NoError(t, err)
	assert.Equal(t, "image/webp", res.ContentType)
	assert.Equal(t, 100, res.Width)
	assert.Equal(t, 60, res.Height)

	decoded, err := webp.Decode(bytes.NewReader(res.Data))
	require.NoError(t, err)
	assert.Equal(t, 100, decoded.Bounds().Dx())
}

func TestProcessor_BoundsLongEdge(t *testing.T) {
	p := NewProcessor(128)

	res, err := p.Process(pngBytes(t, 512, 256))
	require.NoError(t, err)
	assert.Equal(t, 128, res.Width)
	assert.Equal(t, 64, res.Height)
}

func TestProcessor_RejectsGarbage(t *testing.T) {
	p := NewProcessor(0)

	_, err := p.Process(nil)
	assert.Error(t, err)

	_, err = p.Process([]byte("definitely not an image"))
	assert.Error(t, err)
}
