package assembly

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/pdfassembler/internal/metrics"
	"github.com/local/pdfassembler/internal/usage"
)

// SourceFile is an uploaded input before parsing.
type SourceFile struct {
	Name string
	Data []byte
}

// Request carries the per-call context of a gated operation.
type Request struct {
	JobID    string
	Caller   usage.Caller
	Progress ProgressTracker
}

// EngineOptions configures an Engine.
type EngineOptions struct {
	Backend          Backend
	Ledger           usage.Ledger
	JPEGQuality      int
	ParseConcurrency int
	PDFSizeHint      int64 // bytes; 0 disables the hint
	ImageSizeHint    int64
}

// Engine runs assembly operations behind the usage gate. The gate is
// consulted before any parsing or copying; a successful operation is
// recorded exactly once and a failed one never.
type Engine struct {
	assembler     *Assembler
	backend       Backend
	ledger        usage.Ledger
	parseLimit    int
	pdfSizeHint   int64
	imageSizeHint int64
}

func NewEngine(opts EngineOptions) *Engine {
	if opts.Backend == nil {
		opts.Backend = NewLibraryBackend(true)
	}
	if opts.Ledger == nil {
		opts.Ledger = usage.NewQuotaLedger(usage.Options{})
	}
	if opts.JPEGQuality < 1 || opts.JPEGQuality > 100 {
		opts.JPEGQuality = DefaultJPEGQuality
	}
	if opts.ParseConcurrency < 1 {
		opts.ParseConcurrency = 1
	}
	a := NewAssembler(opts.Backend).
		WithJPEGQuality(opts.JPEGQuality).
		WithConcurrency(opts.ParseConcurrency)
	return &Engine{
		assembler:     a,
		backend:       opts.Backend,
		ledger:        opts.Ledger,
		parseLimit:    opts.ParseConcurrency,
		pdfSizeHint:   opts.PDFSizeHint,
		imageSizeHint: opts.ImageSizeHint,
	}
}

// Merge concatenates files in caller order.
func (e *Engine) Merge(ctx context.Context, req Request, files []SourceFile) (*OutputArtifact, error) {
	if len(files) < 2 {
		return nil, invalid("files", "merge needs at least 2 documents, got %d", len(files))
	}
	out, err := e.run(ctx, req, usage.ToolMerge, func(a *Assembler) ([]*OutputArtifact, error) {
		e.hintSizes("pdf", files, e.pdfSizeHint)
		docs, err := e.openAll(files)
		if err != nil {
			return nil, err
		}
		art, err := a.Merge(ctx, docs)
		if err != nil {
			return nil, err
		}
		return []*OutputArtifact{art}, nil
	})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// SplitRange extracts pages start..end of file.
func (e *Engine) SplitRange(ctx context.Context, req Request, file SourceFile, start, end int) (*OutputArtifact, error) {
	if start < 1 {
		return nil, invalid("start", "must be at least 1, got %d", start)
	}
	if start > end {
		return nil, invalid("start", "start %d is after end %d", start, end)
	}
	out, err := e.run(ctx, req, usage.ToolSplit, func(a *Assembler) ([]*OutputArtifact, error) {
		doc, err := e.openOne(file)
		if err != nil {
			return nil, err
		}
		art, err := a.SplitRange(ctx, doc, start, end)
		if err != nil {
			return nil, err
		}
		return []*OutputArtifact{art}, nil
	})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// SplitSingles produces one artifact per listed page.
func (e *Engine) SplitSingles(ctx context.Context, req Request, file SourceFile, pages []int) ([]*OutputArtifact, error) {
	if len(FilterPages(pages, math.MaxInt)) == 0 {
		return nil, invalid("pages", "no valid page numbers")
	}
	return e.run(ctx, req, usage.ToolSplit, func(a *Assembler) ([]*OutputArtifact, error) {
		doc, err := e.openOne(file)
		if err != nil {
			return nil, err
		}
		return a.SplitSingles(ctx, doc, pages)
	})
}

// SplitBulk cuts file into chunks of chunkSize pages.
func (e *Engine) SplitBulk(ctx context.Context, req Request, file SourceFile, chunkSize int) ([]*OutputArtifact, error) {
	if chunkSize < 1 {
		return nil, invalid("chunk_size", "must be at least 1, got %d", chunkSize)
	}
	return e.run(ctx, req, usage.ToolSplit, func(a *Assembler) ([]*OutputArtifact, error) {
		doc, err := e.openOne(file)
		if err != nil {
			return nil, err
		}
		return a.SplitBulk(ctx, doc, chunkSize)
	})
}

// ComposeImages builds one page per image file.
func (e *Engine) ComposeImages(ctx context.Context, req Request, files []SourceFile, layout LayoutPolicy) (*OutputArtifact, error) {
	if len(files) == 0 {
		return nil, invalid("files", "at least one image is required")
	}
	if !layout.valid() {
		return nil, invalid("layout", "a page layout is required for images")
	}
	out, err := e.run(ctx, req, usage.ToolImages, func(a *Assembler) ([]*OutputArtifact, error) {
		e.hintSizes("image", files, e.imageSizeHint)
		images := make([]RasterImage, len(files))
		for i, f := range files {
			images[i] = RasterImage{Name: f.Name, Data: f.Data}
		}
		art, err := a.ComposeImages(ctx, images, layout)
		if err != nil {
			return nil, err
		}
		return []*OutputArtifact{art}, nil
	})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// Check reports the caller's standing for tool without recording anything.
func (e *Engine) Check(ctx context.Context, tool usage.Tool, caller usage.Caller) (usage.Decision, error) {
	return e.ledger.Check(ctx, tool, caller)
}

func (e *Engine) run(ctx context.Context, req Request, tool usage.Tool, work func(a *Assembler) ([]*OutputArtifact, error)) ([]*OutputArtifact, error) {
	if req.Caller.ID == "" {
		return nil, invalid("caller", "caller identity is required")
	}
	logger := log.With().Str("job_id", req.JobID).Str("tool", tool.String()).Str("caller", req.Caller.ID).Logger()
	start := time.Now()

	decision, err := e.ledger.Check(ctx, tool, req.Caller)
	if err != nil {
		metrics.ObserveJob(tool.String(), "error", time.Since(start))
		return nil, &UnexpectedError{Op: "usage check", Err: err}
	}
	if !decision.Allowed {
		metrics.IncDenied(tool.String())
		logger.Info().Int64("used", decision.Used).Int64("quota", decision.Quota).Msg("usage limit reached")
		return nil, &LimitExceededError{Tool: tool.String(), Used: decision.Used, Quota: decision.Quota}
	}

	out, err := work(e.assembler.WithProgress(req.Progress))
	if err != nil {
		metrics.ObserveJob(tool.String(), resultLabel(err), time.Since(start))
		logger.Warn().Err(err).Dur("elapsed", time.Since(start)).Msg("job failed")
		return nil, err
	}

	// A failed record does not fail the job.
	if used, err := e.ledger.Record(ctx, tool, req.Caller); err != nil {
		logger.Error().Err(err).Msg("usage record failed")
	} else {
		logger.Debug().Int64("used", used).Msg("usage recorded")
	}

	pages := 0
	for _, art := range out {
		pages += art.Pages
	}
	metrics.ObserveJob(tool.String(), "success", time.Since(start))
	metrics.AddPages(tool.String(), pages)
	logger.Info().Int("artifacts", len(out)).Int("pages", pages).Dur("elapsed", time.Since(start)).Msg("job completed")
	return out, nil
}

func (e *Engine) openOne(file SourceFile) (*SourceDocument, error) {
	e.hintSizes("pdf", []SourceFile{file}, e.pdfSizeHint)
	docs, err := e.openAll([]SourceFile{file})
	if err != nil {
		return nil, err
	}
	return docs[0], nil
}

// openAll parses files concurrently; the reported failure is the first one
// in caller order.
func (e *Engine) openAll(files []SourceFile) ([]*SourceDocument, error) {
	docs := make([]*SourceDocument, len(files))
	idx, err := forEachOrdered(len(files), e.parseLimit, func(i int) error {
		d, err := e.backend.Open(files[i].Name, files[i].Data)
		if err != nil {
			return err
		}
		docs[i] = d
		return nil
	})
	if err != nil {
		return nil, &ParseError{Index: idx, Name: files[idx].Name, Err: err}
	}
	return docs, nil
}

// hintSizes flags inputs above the advisory size; they are still processed.
func (e *Engine) hintSizes(kind string, files []SourceFile, limit int64) {
	if limit <= 0 {
		return
	}
	for i, f := range files {
		if int64(len(f.Data)) > limit {
			metrics.IncOversize(kind)
			log.Warn().Str("kind", kind).Int("index", i).Str("name", f.Name).Int("bytes", len(f.Data)).Int64("hint", limit).Msg("input exceeds size hint")
		}
	}
}

func resultLabel(err error) string {
	switch {
	case IsValidation(err):
		return "invalid"
	case IsParse(err):
		return "parse_error"
	case IsLimitExceeded(err):
		return "denied"
	}
	return "error"
}
