package imagerender

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"

	"github.com/gen2brain/go-fitz"
	"github.com/rs/zerolog/log"
)

// ColorMode defines the color mode for rendering
type ColorMode string

const (
	ColorRGB  ColorMode = "rgb"
	ColorGray ColorMode = "gray"
)

// ErrPageOutOfRange is returned when the requested page does not exist.
var ErrPageOutOfRange = errors.New("page out of range")

// Preview is a rendered page thumbnail.
type Preview struct {
	JPEG   []byte
	Width  int
	Height int
	Pages  int // page count of the source document
}

// RenderPreview renders page pageNum (1-based) of an in-memory PDF as JPEG.
func RenderPreview(pdf []byte, pageNum int, dpi float64, quality int, colorMode ColorMode) (*Preview, error) {
	doc, err := fitz.NewFromMemory(pdf)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	pages := doc.NumPage()
	if pageNum < 1 || pageNum > pages {
		return nil, fmt.Errorf("%w: %d of %d", ErrPageOutOfRange, pageNum, pages)
	}

	// go-fitz uses 0-based indexing
	img, err := doc.ImageDPI(pageNum-1, dpi)
	if err != nil {
		return nil, fmt.Errorf("failed to render page %d: %w", pageNum, err)
	}

	bounds := img.Bounds()
	var finalImg image.Image = img
	if colorMode == ColorGray {
		grayImg := image.NewGray(bounds)
		draw.Draw(grayImg, bounds, img, bounds.Min, draw.Src)
		finalImg = grayImg
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, finalImg, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode JPEG: %w", err)
	}

	log.Debug().
		Int("page", pageNum).
		Int("width", bounds.Dx()).
		Int("height", bounds.Dy()).
		Str("color", string(colorMode)).
		Float64("dpi", dpi).
		Int("jpeg_size", buf.Len()).
		Msg("rendered page preview")

	return &Preview{JPEG: buf.Bytes(), Width: bounds.Dx(), Height: bounds.Dy(), Pages: pages}, nil
}

// probePDF is a one-page blank document used to verify the renderer.
const probePDF = "%PDF-1.4\n" +
	"1 0 obj<</Type/Catalog/Pages 2 0 R>>endobj\n" +
	"2 0 obj<</Type/Pages/Kids[3 0 R]/Count 1>>endobj\n" +
	"3 0 obj<</Type/Page/Parent 2 0 R/MediaBox[0 0 72 72]>>endobj\n" +
	"trailer<</Root 1 0 R>>\n%%EOF\n"

// SelfTest renders a blank page to confirm the renderer works in this build.
func SelfTest() error {
	_, err := RenderPreview([]byte(probePDF), 1, 18, 50, ColorGray)
	return err
}
