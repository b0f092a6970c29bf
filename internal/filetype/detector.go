package filetype

import (
	"fmt"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
)

// Kind is the coarse class the assembly engine cares about.
type Kind int

const (
	KindUnknown Kind = iota
	KindPDF
	KindPNG
	KindJPEG
	// KindRaster is any other decodable raster (WebP, GIF, BMP, TIFF) that
	// must be re-encoded before it can be embedded in a page.
	KindRaster
)

func (k Kind) String() string {
	switch k {
	case KindPDF:
		return "pdf"
	case KindPNG:
		return "png"
	case KindJPEG:
		return "jpeg"
	case KindRaster:
		return "raster"
	}
	return "unknown"
}

// IsImage reports whether k can become a page through image composition.
func (k Kind) IsImage() bool { return k == KindPNG || k == KindJPEG || k == KindRaster }

// FileTypeInfo contains detected file type information
type FileTypeInfo struct {
	MIMEType    string
	Extension   string
	Kind        Kind
	Supported   bool
	Description string
}

// Detector handles file type detection using magic bytes
type Detector struct{}

// New creates a new file type detector
func New() *Detector {
	return &Detector{}
}

// DetectBytes detects the file type from content, never from the filename.
func (d *Detector) DetectBytes(data []byte) *FileTypeInfo {
	mtype := mimetype.Detect(data)
	info := &FileTypeInfo{MIMEType: mtype.String(), Extension: mtype.Extension()}
	d.classify(info)
	log.Debug().Str("mime", info.MIMEType).Str("kind", info.Kind.String()).Msg("detected file type")
	return info
}

// DetectReader detects the file type from the head of r.
func (d *Detector) DetectReader(r io.Reader) (*FileTypeInfo, error) {
	mtype, err := mimetype.DetectReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to detect file type: %w", err)
	}
	info := &FileTypeInfo{MIMEType: mtype.String(), Extension: mtype.Extension()}
	d.classify(info)
	return info, nil
}

// classify maps the MIME type onto a Kind
func (d *Detector) classify(info *FileTypeInfo) {
	mimeType := info.MIMEType
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}

	switch mimeType {
	case "application/pdf":
		info.Kind = KindPDF
		info.Supported = true
		info.Description = "PDF document"

	case "image/png":
		info.Kind = KindPNG
		info.Supported = true
		info.Description = "PNG image"

	case "image/jpeg":
		info.Kind = KindJPEG
		info.Supported = true
		info.Description = "JPEG image"

	case "image/webp", "image/gif", "image/bmp", "image/x-ms-bmp", "image/tiff":
		info.Kind = KindRaster
		info.Supported = true
		info.Description = "Raster image (re-encoded to JPEG)"

	default:
		info.Kind = KindUnknown
		info.Supported = false
		info.Description = fmt.Sprintf("Unsupported file type: %s", mimeType)
	}
}
