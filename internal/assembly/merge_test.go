package assembly

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeConcatenatesInCallerOrder(t *testing.T) {
	a := NewAssembler(NewLibraryBackend(true))
	docs := []*SourceDocument{
		openPDF(t, "a.pdf", 2, 100),
		openPDF(t, "b.pdf", 3, 200),
		openPDF(t, "c.pdf", 1, 300),
	}

	art, err := a.Merge(context.Background(), docs)
	require.NoError(t, err)
	assert.Equal(t, 6, art.Pages)
	assert.True(t, strings.HasPrefix(art.Name, "merged_"))
	assert.True(t, strings.HasSuffix(art.Name, ".pdf"))

	want := append(append(seq(100, 2), seq(200, 3)...), seq(300, 1)...)
	assert.Equal(t, want, widths(t, art.Data))
}

func TestMergeSameDocumentTwice(t *testing.T) {
	doc := openPDF(t, "a.pdf", 2, 100)
	art, err := NewAssembler(NewLibraryBackend(true)).Merge(context.Background(), []*SourceDocument{doc, doc})
	require.NoError(t, err)
	assert.Equal(t, []float64{100, 101, 100, 101}, widths(t, art.Data))
}

func TestMergeNeedsTwoDocuments(t *testing.T) {
	spy := newSpy()
	a := NewAssembler(spy)
	for _, docs := range [][]*SourceDocument{nil, {openPDF(t, "only.pdf", 1, 100)}} {
		art, err := a.Merge(context.Background(), docs)
		assert.Nil(t, art)
		assert.True(t, IsValidation(err), "got %v", err)
	}
	assert.Zero(t, spy.copies)

	_, err := a.Merge(context.Background(), []*SourceDocument{openPDF(t, "a.pdf", 1, 100), nil})
	assert.True(t, IsValidation(err))
}

func TestMergeFailureRevertsProgress(t *testing.T) {
	spy := newSpy()
	spy.failCopy = 2
	rec := &recorder{}
	a := NewAssembler(spy).WithProgress(rec)
	docs := []*SourceDocument{
		openPDF(t, "a.pdf", 1, 100),
		openPDF(t, "broken.pdf", 1, 200),
		openPDF(t, "c.pdf", 1, 300),
	}

	art, err := a.Merge(context.Background(), docs)
	assert.Nil(t, art)
	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 1, pe.Index)
	assert.Equal(t, "broken.pdf", pe.Name)
	assert.ErrorIs(t, err, errInjected)
	assert.Zero(t, spy.concats)

	assert.Equal(t, map[int]FileState{0: StateReady, 1: StateReady, 2: StateReady}, rec.last())
}

func TestMergeProgressCompletes(t *testing.T) {
	rec := &recorder{}
	a := NewAssembler(NewLibraryBackend(true)).WithProgress(rec)
	_, err := a.Merge(context.Background(), []*SourceDocument{openPDF(t, "a.pdf", 1, 100), openPDF(t, "b.pdf", 1, 200)})
	require.NoError(t, err)

	assert.Equal(t, []progressEvent{
		{0, StateProcessing}, {0, StateCompleted},
		{1, StateProcessing}, {1, StateCompleted},
	}, rec.events)
}

func TestExecuteMixedJob(t *testing.T) {
	a := openPDF(t, "a.pdf", 3, 100)
	b := openPDF(t, "b.pdf", 2, 200)
	job := NewJob("mixed.pdf")
	require.NoError(t, job.AddPage(a, 2))
	require.NoError(t, job.AddPage(b, 0))
	require.NoError(t, job.AddPage(a, 0))
	require.NoError(t, job.AddPage(a, 0))
	require.NoError(t, job.AddAll(b))

	assert.Len(t, job.segments(), 5)

	art, err := NewAssembler(NewLibraryBackend(true)).Execute(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, "mixed.pdf", art.Name)
	assert.Equal(t, 6, art.Pages)
	assert.Equal(t, []float64{102, 200, 100, 100, 200, 201}, widths(t, art.Data))
}

func TestJobValidatesIndices(t *testing.T) {
	doc := openPDF(t, "a.pdf", 2, 100)
	job := NewJob("x.pdf")
	assert.True(t, IsValidation(job.AddPage(doc, 2)))
	assert.True(t, IsValidation(job.AddPage(doc, -1)))
	assert.True(t, IsValidation(job.AddPage(nil, 0)))
	assert.Zero(t, job.Len())

	_, err := NewAssembler(NewLibraryBackend(true)).Execute(context.Background(), job)
	assert.True(t, IsValidation(err))
}

func TestOpenRejectsGarbage(t *testing.T) {
	b := NewLibraryBackend(true)
	_, err := b.Open("empty.pdf", nil)
	assert.Error(t, err)
	_, err = b.Open("junk.pdf", []byte("this is not a pdf at all"))
	assert.Error(t, err)
}
