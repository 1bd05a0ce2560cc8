package imaging

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
			img.Set(x, y, color.RGBA{R: 200, G: 30, B: 30, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestAccept(t *testing.T) {
	blob := pngBytes(t, 4, 4)

	ct, ok := Accept("image/png", blob)
	assert.True(t, ok)
	assert.Equal(t, ContentTypePNG, ct)

	_, ok = Accept("image/gif", blob)
	assert.False(t, ok, "declared type must be jpeg or png")

	_, ok = Accept("image/jpeg", []byte("GIF89a not really"))
	assert.False(t, ok, "sniffed bytes must be jpeg or png")

	_, ok = Accept("image/png; charset=binary", blob)
	assert.True(t, ok)
}

func TestThumbnailFitsBounds(t *testing.T) {
	out, err := Thumbnail(pngBytes(t, 1280, 640), 320)
	require.NoError(t, err)

	cfg, err := webp.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 320, cfg.Width)
	assert.Equal(t, 160, cfg.Height)
}

func TestThumbnailKeepsSmallImages(t *testing.T) {
	out, err := Thumbnail(pngBytes(t, 10, 20), ThumbnailSize)
	require.NoError(t, err)

	cfg, err := webp.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Width)
	assert.Equal(t, 20, cfg.Height)
}

func TestThumbnailRejectsGarbage(t *testing.T) {
	_, err := Thumbnail([]byte("nope"), ThumbnailSize)
	assert.Error(t, err)
}
