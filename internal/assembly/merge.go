package assembly

import "context"

// Merge concatenates every page of docs in caller order. Each document moves
// ready → processing → completed; on failure every document is reported
// ready again and no artifact is produced.
func (a *Assembler) Merge(ctx context.Context, docs []*SourceDocument) (*OutputArtifact, error) {
	if len(docs) < 2 {
		return nil, invalid("files", "merge needs at least 2 documents, got %d", len(docs))
	}
	for i, d := range docs {
		if d == nil {
			return nil, invalid("files", "document #%d is missing", i+1)
		}
	}

	reset := func() {
		for i, d := range docs {
			a.progress.Track(ctx, i, d.Name, StateReady)
		}
	}

	total := 0
	parts := make([][]byte, 0, len(docs))
	for i, d := range docs {
		a.progress.Track(ctx, i, d.Name, StateProcessing)
		data, err := a.backend.CopyPages(d, d.allPageNumbers())
		if err != nil {
			reset()
			return nil, &ParseError{Index: i, Name: d.Name, Err: err}
		}
		parts = append(parts, data)
		total += d.PageCount()
		a.progress.Track(ctx, i, d.Name, StateCompleted)
	}

	out, err := a.backend.Concat(parts)
	if err != nil {
		reset()
		return nil, &UnexpectedError{Op: "merge", Err: err}
	}
	return &OutputArtifact{Name: mergedName(a.now()), Data: out, Pages: total}, nil
}
