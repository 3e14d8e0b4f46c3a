package pdf

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MeKo-Tech/yomitori/internal/pipeline"
)

// ErrNoImages is returned for documents without embedded page images,
// such as born-digital PDFs with vector text only.
var ErrNoImages = errors.New("no page images found in PDF")

// PageResult is the OCR output of one page. A page that holds several
// images gets one result per image.
type PageResult struct {
	Page   int                     `json:"page"`
	Images []*pipeline.ImageResult `json:"images"`
	Errors []string                `json:"errors,omitempty"`
	Text   string                  `json:"text"`
}

// DocumentResult is the OCR output of a whole PDF.
type DocumentResult struct {
	File      string        `json:"file"`
	Pages     []PageResult  `json:"pages"`
	Text      string        `json:"text"`
	Cancelled bool          `json:"cancelled,omitempty"`
	Duration  time.Duration `json:"-"`
}

// Options select pages and carry the document password.
type Options struct {
	PageRange string
	Password  string
}

// Extractor pulls page images out of a document.
type Extractor func(filename, pageRange, password string) ([]PageImage, error)

// Processor runs pages through a pipeline in page order.
type Processor struct {
	pipeline *pipeline.Pipeline
	extract  Extractor
}

// NewProcessor returns a processor that extracts images with pdfcpu.
func NewProcessor(p *pipeline.Pipeline) *Processor {
	return &Processor{pipeline: p, extract: ExtractImages}
}

// WithExtractor replaces the image extractor.
func (p *Processor) WithExtractor(e Extractor) *Processor {
	p.extract = e
	return p
}

// ProcessFile extracts the selected pages of filename and recognizes each
// page image one at a time.
func (p *Processor) ProcessFile(ctx context.Context, filename string, opts Options, sink pipeline.ProgressSink) (*DocumentResult, error) {
	start := time.Now()
	images, err := p.extract(filename, opts.PageRange, opts.Password)
	if err != nil {
		return nil, err
	}
	if len(images) == 0 {
		return nil, fmt.Errorf("%s: %w", filename, ErrNoImages)
	}

	items := make([]pipeline.BatchItem, len(images))
	for i, pi := range images {
		id := fmt.Sprintf("page-%d-%d", pi.Page, pi.Index)
		items[i] = pipeline.ImageItem(id, fmt.Sprintf("%s#page=%d", filename, pi.Page), pi.Image)
	}
	batch := p.pipeline.ProcessBatch(ctx, items, sink)

	doc := &DocumentResult{File: filename, Cancelled: batch.Cancelled}
	for i, it := range batch.Items {
		page := images[i].Page
		if len(doc.Pages) == 0 || doc.Pages[len(doc.Pages)-1].Page != page {
			doc.Pages = append(doc.Pages, PageResult{Page: page})
		}
		pr := &doc.Pages[len(doc.Pages)-1]
		if it.Err != nil {
			pr.Errors = append(pr.Errors, it.Err.Error())
			continue
		}
		pr.Images = append(pr.Images, it.Result)
	}

	pageTexts := make([]string, 0, len(doc.Pages))
	for i := range doc.Pages {
		pr := &doc.Pages[i]
		var parts []string
		for _, r := range pr.Images {
			if r.FullText != "" {
				parts = append(parts, r.FullText)
			}
		}
		pr.Text = strings.Join(parts, "\n")
		if pr.Text != "" {
			pageTexts = append(pageTexts, pr.Text)
		}
	}
	// Pages are separated by a form feed.
	doc.Text = strings.Join(pageTexts, "\n\f\n")
	doc.Duration = time.Since(start)

	if batch.Cancelled {
		return doc, ctx.Err()
	}
	return doc, nil
}
