package assembly

import (
	"context"
	"strconv"
	"strings"
)

// SplitRange extracts pages start..end (1-based, inclusive) into one artifact.
func (a *Assembler) SplitRange(ctx context.Context, doc *SourceDocument, start, end int) (*OutputArtifact, error) {
	if doc == nil {
		return nil, invalid("file", "missing source document")
	}
	r, err := NewPageRange(start, end, doc.PageCount())
	if err != nil {
		return nil, err
	}
	job := NewJob(rangeName(r))
	if err := job.AddRange(doc, r); err != nil {
		return nil, err
	}
	return a.runBatch(ctx, doc, []*AssemblyJob{job})
}

// SplitSingles produces one single-page artifact per retained entry of
// pageNumbers, in listed order. Entries outside 1..PageCount are dropped;
// duplicates are kept.
func (a *Assembler) SplitSingles(ctx context.Context, doc *SourceDocument, pageNumbers []int) ([]*OutputArtifact, error) {
	if doc == nil {
		return nil, invalid("file", "missing source document")
	}
	kept := FilterPages(pageNumbers, doc.PageCount())
	if len(kept) == 0 {
		return nil, invalid("pages", "no valid page numbers")
	}

	seen := make(map[int]int, len(kept))
	jobs := make([]*AssemblyJob, 0, len(kept))
	for _, p := range kept {
		seen[p]++
		job := NewJob(pageName(p, seen[p]))
		if err := job.AddPage(doc, p-1); err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return a.runBatchAll(ctx, doc, jobs)
}

// SplitBulk cuts doc into consecutive chunks of chunkSize pages; the last
// chunk may be shorter.
func (a *Assembler) SplitBulk(ctx context.Context, doc *SourceDocument, chunkSize int) ([]*OutputArtifact, error) {
	if doc == nil {
		return nil, invalid("file", "missing source document")
	}
	n := doc.PageCount()
	if chunkSize < 1 || chunkSize > n {
		return nil, invalid("chunk_size", "must be between 1 and %d, got %d", n, chunkSize)
	}

	jobs := make([]*AssemblyJob, 0, (n+chunkSize-1)/chunkSize)
	for start := 1; start <= n; start += chunkSize {
		r := PageRange{Start: start, End: min(start+chunkSize-1, n)}
		job := NewJob(partName(len(jobs) + 1))
		if err := job.AddRange(doc, r); err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return a.runBatchAll(ctx, doc, jobs)
}

func (a *Assembler) runBatch(ctx context.Context, doc *SourceDocument, jobs []*AssemblyJob) (*OutputArtifact, error) {
	out, err := a.runBatchAll(ctx, doc, jobs)
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// runBatchAll executes every job or none: a failure discards artifacts
// already built.
func (a *Assembler) runBatchAll(ctx context.Context, doc *SourceDocument, jobs []*AssemblyJob) ([]*OutputArtifact, error) {
	a.progress.Track(ctx, 0, doc.Name, StateProcessing)
	out := make([]*OutputArtifact, 0, len(jobs))
	for _, job := range jobs {
		art, err := a.Execute(ctx, job)
		if err != nil {
			a.progress.Track(ctx, 0, doc.Name, StateReady)
			return nil, err
		}
		out = append(out, art)
	}
	a.progress.Track(ctx, 0, doc.Name, StateCompleted)
	return out, nil
}

// ParsePageList reads a free-form list such as "1, 3 5,,x 7" into page
// numbers, skipping tokens that are not integers.
func ParsePageList(text string) []int {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	pages := make([]int, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil {
			continue
		}
		pages = append(pages, n)
	}
	return pages
}

// FilterPages keeps entries within 1..pageCount, preserving order and
// duplicates.
func FilterPages(pages []int, pageCount int) []int {
	kept := make([]int, 0, len(pages))
	for _, p := range pages {
		if p >= 1 && p <= pageCount {
			kept = append(kept, p)
		}
	}
	return kept
}
