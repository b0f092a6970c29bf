package assembly

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	"image/jpeg"
	"image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/local/pdfassembler/internal/filetype"
)

// DefaultJPEGQuality is used when re-encoding rasters that cannot be embedded
// natively.
const DefaultJPEGQuality = 92

// RasterImage is an uploaded image as the caller supplied it.
type RasterImage struct {
	Name string
	Data []byte
}

// PreparedImage is a decoded image whose bytes can be embedded in a page
// without further conversion.
type PreparedImage struct {
	Name   string
	Data   []byte
	Type   string // "PNG" or "JPG"
	Width  int
	Height int
}

var detector = filetype.New()

// prepareImage decodes img fully and returns it in an embeddable encoding.
// PNG and JPEG pass through; anything else is re-encoded to JPEG.
func prepareImage(img RasterImage, quality int) (PreparedImage, error) {
	info := detector.DetectBytes(img.Data)
	if !info.Kind.IsImage() {
		return PreparedImage{}, fmt.Errorf("not a supported image (%s)", info.MIMEType)
	}

	decoded, format, err := image.Decode(bytes.NewReader(img.Data))
	if err != nil {
		return PreparedImage{}, fmt.Errorf("decode %s: %w", info.Kind, err)
	}
	b := decoded.Bounds()
	if b.Dx() < 1 || b.Dy() < 1 {
		return PreparedImage{}, errors.New("image has no pixels")
	}

	out := PreparedImage{Name: img.Name, Width: b.Dx(), Height: b.Dy()}
	switch format {
	case "png":
		out.Type = "PNG"
		out.Data = img.Data
		if !embeddablePNG(img.Data) {
			if out.Data, err = encodePNG8(decoded); err != nil {
				return PreparedImage{}, err
			}
		}
	case "jpeg":
		out.Type = "JPG"
		out.Data = img.Data
	default:
		out.Type = "JPG"
		if out.Data, err = encodeJPEG(decoded, quality); err != nil {
			return PreparedImage{}, err
		}
	}
	return out, nil
}

// embeddablePNG reports whether the PNG header describes an 8-bit (or lower)
// non-interlaced image, which is what the page writer can embed directly.
func embeddablePNG(data []byte) bool {
	// signature(8) + length(4) + "IHDR"(4) + width(4) + height(4) + depth(1)
	// + colour(1) + compression(1) + filter(1) + interlace(1)
	if len(data) < 29 {
		return false
	}
	return data[24] <= 8 && data[28] == 0
}

func encodePNG8(img image.Image) ([]byte, error) {
	b := img.Bounds()
	dst := image.NewNRGBA(b)
	draw.Draw(dst, b, img, b.Min, draw.Src)
	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("re-encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// encodeJPEG flattens transparency onto white before encoding.
func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	if quality < 1 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	b := img.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(dst, b, img, b.Min, draw.Over)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("re-encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
