package assembly

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/go-pdf/fpdf"
)

// Compose builds one page per image. Sizes are in points, so an
// OriginalSize page measures one point per image pixel.
func (b *LibraryBackend) Compose(images []PreparedImage, layout LayoutPolicy) (out []byte, err error) {
	defer recoverPanic(&err, "compose")

	if len(images) == 0 {
		return nil, errors.New("no images to compose")
	}

	pdf := fpdf.New("P", "pt", "A4", "")
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetCreator("pdfassembler", true)

	for i, img := range images {
		name := "img" + strconv.Itoa(i)
		opts := fpdf.ImageOptions{ImageType: img.Type}
		pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(img.Data))

		pl := layout.Place(float64(img.Width), float64(img.Height))
		pdf.AddPageFormat("P", fpdf.SizeType{Wd: pl.PageWidth, Ht: pl.PageHeight})
		pdf.ImageOptions(name, pl.X, pl.Y, pl.Width, pl.Height, false, opts, 0, "")
		if pdf.Err() {
			return nil, fmt.Errorf("image %d (%s): %w", i+1, img.Name, pdf.Error())
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ComposeImages builds one page per image in caller order. Every image is
// decoded before the first page is created, so a bad image fails the job
// without partial output.
func (a *Assembler) ComposeImages(ctx context.Context, images []RasterImage, layout LayoutPolicy) (*OutputArtifact, error) {
	if len(images) == 0 {
		return nil, invalid("files", "at least one image is required")
	}
	if !layout.valid() {
		return nil, invalid("layout", "a page layout is required for images")
	}

	prepared := make([]PreparedImage, len(images))
	idx, err := forEachOrdered(len(images), a.concurrency, func(i int) error {
		p, err := prepareImage(images[i], a.quality)
		if err != nil {
			return err
		}
		prepared[i] = p
		return nil
	})
	if err != nil {
		return nil, &ParseError{Index: idx, Name: images[idx].Name, Err: err}
	}

	for i, img := range images {
		a.progress.Track(ctx, i, img.Name, StateProcessing)
	}
	out, err := a.backend.Compose(prepared, layout)
	if err != nil {
		for i, img := range images {
			a.progress.Track(ctx, i, img.Name, StateReady)
		}
		return nil, &UnexpectedError{Op: "compose images", Err: err}
	}
	for i, img := range images {
		a.progress.Track(ctx, i, img.Name, StateCompleted)
	}
	return &OutputArtifact{Name: imagesName(a.now()), Data: out, Pages: len(images)}, nil
}
