package assembly

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/pdfassembler/internal/usage"
)

// countingLedger wraps a QuotaLedger and counts calls.
type countingLedger struct {
	*usage.QuotaLedger

	mu      sync.Mutex
	checks  int
	records int
	failRec bool
}

func (c *countingLedger) Check(ctx context.Context, tool usage.Tool, caller usage.Caller) (usage.Decision, error) {
	c.mu.Lock()
	c.checks++
	c.mu.Unlock()
	return c.QuotaLedger.Check(ctx, tool, caller)
}

func (c *countingLedger) Record(ctx context.Context, tool usage.Tool, caller usage.Caller) (int64, error) {
	c.mu.Lock()
	c.records++
	c.mu.Unlock()
	if c.failRec {
		return 0, errors.New("ledger offline")
	}
	return c.QuotaLedger.Record(ctx, tool, caller)
}

func newTestEngine(quota int64) (*Engine, *spyBackend, *countingLedger) {
	spy := newSpy()
	ledger := &countingLedger{QuotaLedger: usage.NewQuotaLedger(usage.Options{Quota: quota})}
	e := NewEngine(EngineOptions{Backend: spy, Ledger: ledger, ParseConcurrency: 3})
	return e, spy, ledger
}

var anon = Request{JobID: "job", Caller: usage.Caller{ID: "anon:test"}}

func pdfFile(t *testing.T, name string, pages int, base float64) SourceFile {
	return SourceFile{Name: name, Data: makePDF(t, pages, base)}
}

func used(t *testing.T, e *Engine, tool usage.Tool) int64 {
	t.Helper()
	d, err := e.Check(context.Background(), tool, anon.Caller)
	require.NoError(t, err)
	return d.Used
}

func TestEngineMergeRecordsOnce(t *testing.T) {
	e, _, ledger := newTestEngine(3)
	files := []SourceFile{pdfFile(t, "a.pdf", 2, 100), pdfFile(t, "b.pdf", 5, 200), pdfFile(t, "c.pdf", 1, 300)}

	art, err := e.Merge(context.Background(), anon, files)
	require.NoError(t, err)
	assert.Equal(t, 8, art.Pages)
	assert.Equal(t, 1, ledger.records)
	assert.Equal(t, int64(1), used(t, e, usage.ToolMerge))
	assert.Equal(t, int64(0), used(t, e, usage.ToolSplit))
}

func TestEngineSplitBatchRecordsOnce(t *testing.T) {
	e, _, _ := newTestEngine(3)
	arts, err := e.SplitBulk(context.Background(), anon, pdfFile(t, "ten.pdf", 10, 100), 2)
	require.NoError(t, err)
	assert.Len(t, arts, 5)
	assert.Equal(t, int64(1), used(t, e, usage.ToolSplit))
}

func TestEngineDenialPrecedesWork(t *testing.T) {
	ctx := context.Background()
	e, spy, ledger := newTestEngine(1)
	doc := pdfFile(t, "ten.pdf", 10, 100)
	img := SourceFile{Name: "a.png", Data: pngImage(t, 4, 4)}

	// Use up each tool's allowance.
	_, err := e.Merge(ctx, anon, []SourceFile{doc, doc})
	require.NoError(t, err)
	_, err = e.SplitRange(ctx, anon, doc, 1, 2)
	require.NoError(t, err)
	_, err = e.ComposeImages(ctx, anon, []SourceFile{img}, A4)
	require.NoError(t, err)

	before := spy.work()
	records := ledger.records

	calls := map[string]func() error{
		"merge": func() error { _, err := e.Merge(ctx, anon, []SourceFile{doc, doc}); return err },
		"range": func() error { _, err := e.SplitRange(ctx, anon, doc, 1, 3); return err },
		"pages": func() error { _, err := e.SplitSingles(ctx, anon, doc, []int{1, 2}); return err },
		"bulk":  func() error { _, err := e.SplitBulk(ctx, anon, doc, 3); return err },
		"images": func() error {
			_, err := e.ComposeImages(ctx, anon, []SourceFile{img}, A4)
			return err
		},
	}
	for name, call := range calls {
		err := call()
		var le *LimitExceededError
		require.True(t, errors.As(err, &le), "%s: %v", name, err)
		assert.Equal(t, int64(1), le.Used)
		assert.Equal(t, int64(1), le.Quota)
	}
	assert.Equal(t, before, spy.work(), "no parsing or copying after a denial")
	assert.Equal(t, records, ledger.records)
	assert.Equal(t, int64(1), used(t, e, usage.ToolSplit))
}

func TestEngineFailureNeverRecords(t *testing.T) {
	ctx := context.Background()
	e, spy, ledger := newTestEngine(3)
	files := []SourceFile{
		pdfFile(t, "a.pdf", 1, 100),
		{Name: "corrupt.pdf", Data: []byte("%PDF-1.4 garbage")},
		pdfFile(t, "c.pdf", 1, 300),
	}

	art, err := e.Merge(ctx, anon, files)
	assert.Nil(t, art)
	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 1, pe.Index)
	assert.Equal(t, "corrupt.pdf", pe.Name)
	assert.Zero(t, spy.copies)
	assert.Zero(t, ledger.records)
	assert.Equal(t, int64(0), used(t, e, usage.ToolMerge))

	// Out-of-range bounds are only known after parsing; still not recorded.
	_, err = e.SplitRange(ctx, anon, pdfFile(t, "ten.pdf", 10, 100), 1, 11)
	assert.True(t, IsValidation(err))
	assert.Zero(t, ledger.records)
}

func TestEngineShapeValidationBeforeGate(t *testing.T) {
	ctx := context.Background()
	e, spy, ledger := newTestEngine(3)
	doc := pdfFile(t, "a.pdf", 3, 100)

	errs := []error{}
	_, err := e.Merge(ctx, anon, []SourceFile{doc})
	errs = append(errs, err)
	_, err = e.Merge(ctx, anon, nil)
	errs = append(errs, err)
	_, err = e.SplitRange(ctx, anon, doc, 5, 3)
	errs = append(errs, err)
	_, err = e.SplitRange(ctx, anon, doc, 0, 5)
	errs = append(errs, err)
	_, err = e.SplitSingles(ctx, anon, doc, []int{0, -4})
	errs = append(errs, err)
	_, err = e.SplitBulk(ctx, anon, doc, 0)
	errs = append(errs, err)
	_, err = e.ComposeImages(ctx, anon, nil, A4)
	errs = append(errs, err)
	_, err = e.ComposeImages(ctx, anon, []SourceFile{doc}, LayoutPolicy{})
	errs = append(errs, err)
	_, err = e.Merge(ctx, Request{}, []SourceFile{doc, doc})
	errs = append(errs, err)

	for i, err := range errs {
		assert.True(t, IsValidation(err), "case %d: %v", i, err)
	}
	assert.Zero(t, ledger.checks)
	assert.Zero(t, spy.work())
}

func TestEngineRecordFailureDoesNotFailJob(t *testing.T) {
	e, _, ledger := newTestEngine(3)
	ledger.failRec = true
	art, err := e.SplitRange(context.Background(), anon, pdfFile(t, "a.pdf", 3, 100), 2, 3)
	require.NoError(t, err)
	assert.Equal(t, []float64{101, 102}, widths(t, art.Data))
}

func TestEngineUnlimitedCaller(t *testing.T) {
	e, _, _ := newTestEngine(1)
	req := Request{Caller: usage.Caller{ID: "user:vip", Unlimited: true}}
	img := SourceFile{Name: "a.png", Data: pngImage(t, 3, 3)}
	for i := 0; i < 3; i++ {
		_, err := e.ComposeImages(context.Background(), req, []SourceFile{img}, OriginalSize())
		require.NoError(t, err)
	}
	d, err := e.Check(context.Background(), usage.ToolImages, req.Caller)
	require.NoError(t, err)
	assert.Equal(t, int64(3), d.Used)
}

func TestEngineComposeReportsImageIndex(t *testing.T) {
	e, _, ledger := newTestEngine(3)
	files := []SourceFile{
		{Name: "a.png", Data: pngImage(t, 3, 3)},
		{Name: "b.png", Data: pngImage(t, 3, 3)},
		{Name: "c.bin", Data: []byte{0, 1, 2, 3}},
	}
	_, err := e.ComposeImages(context.Background(), anon, files, A4)
	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 2, pe.Index)
	assert.Zero(t, ledger.records)
}

func TestEngineProgressReported(t *testing.T) {
	e, _, _ := newTestEngine(3)
	rec := &recorder{}
	req := anon
	req.Progress = rec
	_, err := e.Merge(context.Background(), req, []SourceFile{pdfFile(t, "a.pdf", 1, 100), pdfFile(t, "b.pdf", 1, 200)})
	require.NoError(t, err)
	assert.Equal(t, map[int]FileState{0: StateCompleted, 1: StateCompleted}, rec.last())
}
