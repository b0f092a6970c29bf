package assembly

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"

	"github.com/go-pdf/fpdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/stretchr/testify/require"
)

// makePDF builds a document whose page i is base+i points wide, so page
// order can be read back from the output.
func makePDF(t *testing.T, pages int, base float64) []byte {
	t.Helper()
	pdf := fpdf.New("P", "pt", "A4", "")
	pdf.SetFont("Helvetica", "", 12)
	for i := 0; i < pages; i++ {
		pdf.AddPageFormat("P", fpdf.SizeType{Wd: base + float64(i), Ht: 500})
		pdf.Text(10, 20, "page")
	}
	var buf bytes.Buffer
	require.NoError(t, pdf.Output(&buf))
	return buf.Bytes()
}

// widths returns the page widths of a PDF in page order.
func widths(t *testing.T, data []byte) []float64 {
	t.Helper()
	dims, err := api.PageDims(bytes.NewReader(data), model.NewDefaultConfiguration())
	require.NoError(t, err)
	out := make([]float64, len(dims))
	for i, d := range dims {
		out[i] = d.Width
	}
	return out
}

func dims(t *testing.T, data []byte) [][2]float64 {
	t.Helper()
	ds, err := api.PageDims(bytes.NewReader(data), model.NewDefaultConfiguration())
	require.NoError(t, err)
	out := make([][2]float64, len(ds))
	for i, d := range ds {
		out[i] = [2]float64{d.Width, d.Height}
	}
	return out
}

func seq(base float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = base + float64(i)
	}
	return out
}

func openPDF(t *testing.T, name string, pages int, base float64) *SourceDocument {
	t.Helper()
	doc, err := NewLibraryBackend(true).Open(name, makePDF(t, pages, base))
	require.NoError(t, err)
	return doc
}

func pngImage(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

var errInjected = errors.New("injected failure")

// spyBackend counts calls and can fail a chosen CopyPages call.
type spyBackend struct {
	Backend

	mu        sync.Mutex
	opens     int
	copies    int
	concats   int
	composes  int
	failCopy  int // 1-based call number to fail; 0 never
	failCompo bool
}

func newSpy() *spyBackend { return &spyBackend{Backend: NewLibraryBackend(true)} }

func (s *spyBackend) Open(name string, data []byte) (*SourceDocument, error) {
	s.mu.Lock()
	s.opens++
	s.mu.Unlock()
	return s.Backend.Open(name, data)
}

func (s *spyBackend) CopyPages(doc *SourceDocument, nrs []int) ([]byte, error) {
	s.mu.Lock()
	s.copies++
	n := s.copies
	s.mu.Unlock()
	if s.failCopy == n {
		return nil, errInjected
	}
	return s.Backend.CopyPages(doc, nrs)
}

func (s *spyBackend) Concat(parts [][]byte) ([]byte, error) {
	s.mu.Lock()
	s.concats++
	s.mu.Unlock()
	return s.Backend.Concat(parts)
}

func (s *spyBackend) Compose(images []PreparedImage, layout LayoutPolicy) ([]byte, error) {
	s.mu.Lock()
	s.composes++
	s.mu.Unlock()
	if s.failCompo {
		return nil, errInjected
	}
	return s.Backend.Compose(images, layout)
}

func (s *spyBackend) work() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opens + s.copies + s.concats + s.composes
}

type progressEvent struct {
	Index int
	State FileState
}

type recorder struct {
	mu     sync.Mutex
	events []progressEvent
}

func (r *recorder) Track(_ context.Context, index int, _ string, state FileState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, progressEvent{index, state})
}

// last returns the final state reported for each index.
func (r *recorder) last() map[int]FileState {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[int]FileState{}
	for _, e := range r.events {
		out[e.Index] = e.State
	}
	return out
}
