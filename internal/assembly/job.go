package assembly

import (
	"fmt"
	"strconv"
	"time"
)

// PageRef points at one page of a source document (Index is 0-based).
type PageRef struct {
	Doc   *SourceDocument
	Index int
}

// AssemblyJob is an ordered list of pages to copy into one new document.
// Indices are validated when added so that a job never reaches execution
// holding a page its source does not have.
type AssemblyJob struct {
	Name  string
	pages []PageRef
}

// NewJob creates an empty job whose artifact will be called name.
func NewJob(name string) *AssemblyJob {
	return &AssemblyJob{Name: name}
}

// AddPage appends the 0-based page index of doc.
func (j *AssemblyJob) AddPage(doc *SourceDocument, index int) error {
	if doc == nil {
		return invalid("document", "missing source document")
	}
	if index < 0 || index >= doc.PageCount() {
		return invalid("page", "index %d out of range for %q (%d pages)", index, doc.Name, doc.PageCount())
	}
	j.pages = append(j.pages, PageRef{Doc: doc, Index: index})
	return nil
}

// AddRange appends the pages covered by r, in order.
func (j *AssemblyJob) AddRange(doc *SourceDocument, r PageRange) error {
	for p := r.Start; p <= r.End; p++ {
		if err := j.AddPage(doc, p-1); err != nil {
			return err
		}
	}
	return nil
}

// AddAll appends every page of doc in its internal order.
func (j *AssemblyJob) AddAll(doc *SourceDocument) error {
	if doc == nil {
		return invalid("document", "missing source document")
	}
	return j.AddRange(doc, PageRange{Start: 1, End: doc.PageCount()})
}

// Len returns the number of pages queued.
func (j *AssemblyJob) Len() int { return len(j.pages) }

// segment is a run of pages from one document that can be copied in a
// single extraction. A page never appears twice within a segment.
type segment struct {
	doc     *SourceDocument
	pageNrs []int
}

func (j *AssemblyJob) segments() []segment {
	var out []segment
	var seen map[int]bool
	for _, ref := range j.pages {
		nr := ref.Index + 1
		n := len(out)
		if n == 0 || out[n-1].doc != ref.Doc || seen[nr] {
			out = append(out, segment{doc: ref.Doc})
			seen = map[int]bool{}
			n++
		}
		out[n-1].pageNrs = append(out[n-1].pageNrs, nr)
		seen[nr] = true
	}
	return out
}

// distinctDocs lists the documents of the job in order of first appearance.
func (j *AssemblyJob) distinctDocs() []*SourceDocument {
	var docs []*SourceDocument
	seen := map[*SourceDocument]bool{}
	for _, ref := range j.pages {
		if !seen[ref.Doc] {
			seen[ref.Doc] = true
			docs = append(docs, ref.Doc)
		}
	}
	return docs
}

func docPosition(docs []*SourceDocument, d *SourceDocument) int {
	for i, x := range docs {
		if x == d {
			return i
		}
	}
	return 0
}

func millis(t time.Time) string { return strconv.FormatInt(t.UnixMilli(), 10) }

func rangeName(r PageRange) string { return fmt.Sprintf("pages_%d-%d.pdf", r.Start, r.End) }
func partName(n int) string        { return fmt.Sprintf("part_%d.pdf", n) }

func pageName(page, occurrence int) string {
	if occurrence <= 1 {
		return fmt.Sprintf("page_%d.pdf", page)
	}
	return fmt.Sprintf("page_%d_%d.pdf", page, occurrence)
}
