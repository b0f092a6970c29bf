package assembly

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Backend is the boundary to the PDF object-model libraries. The Assembler
// never touches pdfcpu or fpdf directly.
type Backend interface {
	// Open parses and validates a PDF.
	Open(name string, data []byte) (*SourceDocument, error)
	// CopyPages extracts the 1-based pageNrs of doc, in order, into a new
	// PDF. pageNrs never contains a duplicate.
	CopyPages(doc *SourceDocument, pageNrs []int) ([]byte, error)
	// Concat joins PDFs into one, preserving order.
	Concat(parts [][]byte) ([]byte, error)
	// Compose builds one page per image according to layout.
	Compose(images []PreparedImage, layout LayoutPolicy) ([]byte, error)
}

// LibraryBackend implements Backend with pdfcpu for parsing and page copying
// and fpdf for building pages from images.
type LibraryBackend struct {
	relaxed bool
}

// NewLibraryBackend returns a backend. With relaxed set, pdfcpu tolerates the
// minor spec violations common in PDFs found in the wild.
func NewLibraryBackend(relaxed bool) *LibraryBackend {
	api.DisableConfigDir()
	return &LibraryBackend{relaxed: relaxed}
}

// pdfcpu mutates its configuration during an operation, so every call gets
// its own.
func (b *LibraryBackend) config() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	if b.relaxed {
		conf.ValidationMode = model.ValidationRelaxed
	} else {
		conf.ValidationMode = model.ValidationStrict
	}
	return conf
}

func (b *LibraryBackend) Open(name string, data []byte) (doc *SourceDocument, err error) {
	defer recoverPanic(&err, "open")

	if len(data) == 0 {
		return nil, errors.New("empty file")
	}
	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), b.config())
	if err != nil {
		return nil, err
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return nil, err
	}
	if ctx.PageCount < 1 {
		return nil, errors.New("document has no pages")
	}
	return &SourceDocument{Name: name, pages: ctx.PageCount, ctx: ctx}, nil
}

func (b *LibraryBackend) CopyPages(doc *SourceDocument, pageNrs []int) (out []byte, err error) {
	doc.mu.Lock()
	defer doc.mu.Unlock()
	defer recoverPanic(&err, "copy pages")

	dst, err := pdfcpu.ExtractPages(doc.ctx, pageNrs, false)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := api.WriteContext(dst, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (b *LibraryBackend) Concat(parts [][]byte) (out []byte, err error) {
	defer recoverPanic(&err, "concat")

	switch len(parts) {
	case 0:
		return nil, errors.New("nothing to concatenate")
	case 1:
		return parts[0], nil
	}
	rsc := make([]io.ReadSeeker, len(parts))
	for i, p := range parts {
		rsc[i] = bytes.NewReader(p)
	}
	var buf bytes.Buffer
	if err := api.MergeRaw(rsc, &buf, false, b.config()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func recoverPanic(err *error, op string) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("%s: recovered panic: %v", op, r)
	}
}
