package analyzer

import (
	"context"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"
)

// PreviewLength is how many characters of a log a BatchItem keeps.
const PreviewLength = 200

// BatchItem is the outcome of one log in a batch. Exactly one of Result and
// Error is set.
type BatchItem struct {
	// Index is the 1-based position of the log in the input.
	Index   int     `json:"index" yaml:"index"`
	Source  string  `json:"source,omitempty" yaml:"source,omitempty"`
	Preview string  `json:"log_preview" yaml:"log_preview"`
	Result  *Result `json:"result,omitempty" yaml:"result,omitempty"`
	Error   string  `json:"error,omitempty" yaml:"error,omitempty"`

	err error
}

// Err returns the error that failed this item, if any.
func (b BatchItem) Err() error { return b.err }

// Batch analyses every request, running at most concurrency analyses at a
// time. A failed item does not stop the others. Items are returned in input
// order. The returned error is non-nil only when ctx is canceled.
func (a *Analyzer) Batch(ctx context.Context, reqs []Request, concurrency int) ([]BatchItem, error) {
	if concurrency < 1 {
		concurrency = 1
	}

	items := make([]BatchItem, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, req := range reqs {
		items[i] = BatchItem{Index: i + 1, Source: req.Source, Preview: preview(req.Log)}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				items[i].err = err
				items[i].Error = err.Error()
				return err
			}
			res, err := a.Analyze(gctx, req)
			if err != nil {
				a.logger.Warn("batch item failed", "index", i+1, "source", req.Source, "error", err)
				items[i].err = err
				items[i].Error = err.Error()
				return nil
			}
			items[i].Result = res
			return nil
		})
	}

	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	a.logger.Info("batch complete", "items", len(reqs), "concurrency", concurrency)
	return items, err
}

// preview truncates s to PreviewLength runes, marking the cut with "...".
func preview(s string) string {
	if utf8.RuneCountInString(s) <= PreviewLength {
		return s
	}
	runes := []rune(s)
	return string(runes[:PreviewLength]) + "..."
}
