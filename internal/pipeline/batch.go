package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"
)

// BatchItem is one image of a batch. Load is called only when the item's
// turn comes so at most one image is decoded at a time.
type BatchItem struct {
	ID   string
	Name string
	Load func() (image.Image, error)
	// Done, if set, receives the decoded image and its result after a
	// successful run and before the next item loads. img must not be
	// retained.
	Done func(img image.Image, res *ImageResult)
}

// ImageItem wraps an already decoded image.
func ImageItem(id, name string, img image.Image) BatchItem {
	return BatchItem{ID: id, Name: name, Load: func() (image.Image, error) { return img, nil }}
}

// BatchItemResult is the outcome of one batch item. Exactly one of Result
// and Err is set for items that were attempted.
type BatchItemResult struct {
	ID     string
	Name   string
	Result *ImageResult
	Err    error
}

// BatchResult collects every attempted item in submission order.
type BatchResult struct {
	Items []BatchItemResult
	// Skipped counts items never started because the batch was cancelled.
	Skipped   int
	Cancelled bool
	Duration  time.Duration
}

// Succeeded returns the number of items with a result.
func (b *BatchResult) Succeeded() int {
	n := 0
	for _, it := range b.Items {
		if it.Err == nil {
			n++
		}
	}
	return n
}

// Failed returns the number of items that failed.
func (b *BatchResult) Failed() int { return len(b.Items) - b.Succeeded() }

// Results returns the successful image results in order.
func (b *BatchResult) Results() []*ImageResult {
	out := make([]*ImageResult, 0, len(b.Items))
	for _, it := range b.Items {
		if it.Result != nil {
			out = append(out, it.Result)
		}
	}
	return out
}

// ProcessBatch processes items strictly one after another in order. A
// failing item is recorded and the batch moves on. Cancelling ctx stops
// further items from starting; the item in flight runs to completion.
func (p *Pipeline) ProcessBatch(ctx context.Context, items []BatchItem, sink ProgressSink) *BatchResult {
	start := time.Now()
	cb := p.cfg.BatchProgress
	if cb == nil {
		cb = NoOpProgressCallback{}
	}
	res := &BatchResult{Items: make([]BatchItemResult, 0, len(items))}
	cb.OnStart(len(items))
	defer cb.OnComplete()

	// The in-flight image does not observe batch cancellation.
	imageCtx := context.WithoutCancel(ctx)

	for i, item := range items {
		if ctx.Err() != nil {
			res.Cancelled = true
			res.Skipped = len(items) - i
			slog.Info("batch cancelled", "processed", i, "skipped", res.Skipped)
			break
		}

		out := BatchItemResult{ID: item.ID, Name: item.Name}
		out.Result, out.Err = p.processItem(imageCtx, item, sink)
		if out.Err != nil {
			slog.Warn("batch item failed", "id", item.ID, "name", item.Name, "error", out.Err)
			cb.OnError(i+1, out.Err)
		}
		res.Items = append(res.Items, out)
		cb.OnProgress(i+1, len(items))
	}

	res.Duration = time.Since(start)
	return res
}

func (p *Pipeline) processItem(ctx context.Context, item BatchItem, sink ProgressSink) (*ImageResult, error) {
	if item.Load == nil {
		return nil, newError(KindPipeline, StageLoading, item.ID, errors.New("batch item has no loader"))
	}
	img, err := item.Load()
	if err != nil {
		return nil, newError(KindPipeline, StageLoading, item.ID, fmt.Errorf("load %s: %w", item.Name, err))
	}
	res, err := p.processImage(ctx, item.ID, img, sink)
	if err == nil && item.Done != nil {
		item.Done(img, res)
	}
	return res, err
}
