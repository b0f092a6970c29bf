package assembly

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// FileState is the per-source progress shown to the caller.
type FileState string

const (
	StateReady      FileState = "ready"
	StateProcessing FileState = "processing"
	StateCompleted  FileState = "completed"
)

// ProgressTracker receives per-source state changes during a job.
type ProgressTracker interface {
	Track(ctx context.Context, index int, name string, state FileState)
}

type noProgress struct{}

func (noProgress) Track(context.Context, int, string, FileState) {}

// Assembler performs page copying and composition without any usage gate.
// It holds no per-job state and is safe for concurrent use.
type Assembler struct {
	backend     Backend
	progress    ProgressTracker
	quality     int
	concurrency int
	now         func() time.Time
}

// NewAssembler returns an Assembler over backend.
func NewAssembler(backend Backend) *Assembler {
	return &Assembler{
		backend:     backend,
		progress:    noProgress{},
		quality:     DefaultJPEGQuality,
		concurrency: 1,
		now:         time.Now,
	}
}

// WithProgress returns a copy of a that reports to p.
func (a *Assembler) WithProgress(p ProgressTracker) *Assembler {
	c := *a
	if p == nil {
		p = noProgress{}
	}
	c.progress = p
	return &c
}

// WithJPEGQuality returns a copy of a that re-encodes rasters at quality.
func (a *Assembler) WithJPEGQuality(quality int) *Assembler {
	c := *a
	c.quality = quality
	return &c
}

// WithConcurrency returns a copy of a that decodes up to n sources at once.
func (a *Assembler) WithConcurrency(n int) *Assembler {
	c := *a
	c.concurrency = max(n, 1)
	return &c
}

// Execute copies the pages of job, in order, into one new document.
func (a *Assembler) Execute(ctx context.Context, job *AssemblyJob) (*OutputArtifact, error) {
	if job == nil || job.Len() == 0 {
		return nil, invalid("job", "no pages to assemble")
	}
	docs := job.distinctDocs()
	var parts [][]byte
	for _, seg := range job.segments() {
		data, err := a.backend.CopyPages(seg.doc, seg.pageNrs)
		if err != nil {
			return nil, &ParseError{Index: docPosition(docs, seg.doc), Name: seg.doc.Name, Err: err}
		}
		parts = append(parts, data)
	}
	out, err := a.backend.Concat(parts)
	if err != nil {
		return nil, &UnexpectedError{Op: "assemble " + job.Name, Err: err}
	}
	log.Debug().Str("artifact", job.Name).Int("pages", job.Len()).Int("segments", len(parts)).Msg("job assembled")
	return &OutputArtifact{Name: job.Name, Data: out, Pages: job.Len()}, nil
}
