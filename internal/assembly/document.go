package assembly

import (
	"sync"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// SourceDocument is a parsed, read-only PDF. Pages are addressed 0-based
// internally and 1-based at the API surface.
type SourceDocument struct {
	Name string

	pages int
	mu    sync.Mutex // guards ctx; pdfcpu page extraction is not safe for concurrent readers
	ctx   *model.Context
}

// PageCount returns the number of pages in the document.
func (d *SourceDocument) PageCount() int { return d.pages }

func (d *SourceDocument) allPageNumbers() []int {
	nrs := make([]int, d.pages)
	for i := range nrs {
		nrs[i] = i + 1
	}
	return nrs
}

// PageRange is a validated 1-indexed inclusive page interval.
type PageRange struct {
	Start int
	End   int
}

// NewPageRange enforces 1 <= start <= end <= pageCount.
func NewPageRange(start, end, pageCount int) (PageRange, error) {
	switch {
	case start < 1:
		return PageRange{}, invalid("start", "must be at least 1, got %d", start)
	case end > pageCount:
		return PageRange{}, invalid("end", "must not exceed page count %d, got %d", pageCount, end)
	case start > end:
		return PageRange{}, invalid("start", "start %d is after end %d", start, end)
	}
	return PageRange{Start: start, End: end}, nil
}

// Len returns the number of pages covered.
func (r PageRange) Len() int { return r.End - r.Start + 1 }

// OutputArtifact is a finished PDF ready to hand to the caller.
type OutputArtifact struct {
	Name  string
	Data  []byte
	Pages int
}

func mergedName(t time.Time) string { return "merged_" + millis(t) + ".pdf" }
func imagesName(t time.Time) string { return "images_" + millis(t) + ".pdf" }
