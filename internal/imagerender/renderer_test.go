package imagerender

import (
	"bytes"
	"errors"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderPreview(t *testing.T) {
	prev, err := RenderPreview([]byte(probePDF), 1, 144, 80, ColorRGB)
	require.NoError(t, err)
	assert.Equal(t, 1, prev.Pages)
	assert.Equal(t, 144, prev.Width)
	assert.Equal(t, 144, prev.Height)

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(prev.JPEG))
	require.NoError(t, err)
	assert.Equal(t, prev.Width, cfg.Width)
}

func TestRenderPreviewPageOutOfRange(t *testing.T) {
	for _, page := range []int{0, 2} {
		_, err := RenderPreview([]byte(probePDF), page, 72, 80, ColorGray)
		assert.True(t, errors.Is(err, ErrPageOutOfRange), "page %d: %v", page, err)
	}
}

func TestRenderPreviewRejectsGarbage(t *testing.T) {
	_, err := RenderPreview([]byte("not a pdf"), 1, 72, 80, ColorRGB)
	assert.Error(t, err)
}

func TestSelfTest(t *testing.T) {
	assert.NoError(t, SelfTest())
}
