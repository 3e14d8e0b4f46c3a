package pipeline

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"strings"
	"time"

	"github.com/MeKo-Tech/yomitori/internal/detector"
	"github.com/MeKo-Tech/yomitori/internal/readingorder"
)

// ProcessImage runs detection, recognition and reading order
// reconstruction on one image. sink may be nil.
//
// A detector decode failure and per-region recognition failures degrade
// the result instead of failing it; both are recorded on the result. An
// error is returned only for failures that make the whole image
// unprocessable, and it is a *Error of KindPipeline.
func (p *Pipeline) ProcessImage(ctx context.Context, img image.Image, sink ProgressSink) (*ImageResult, error) {
	return p.processImage(ctx, "", img, sink)
}

// ProcessImageWithID is ProcessImage tagging progress and errors with id.
func (p *Pipeline) ProcessImageWithID(ctx context.Context, id string, img image.Image, sink ProgressSink) (*ImageResult, error) {
	return p.processImage(ctx, id, img, sink)
}

func (p *Pipeline) processImage(ctx context.Context, id string, img image.Image, sink ProgressSink) (*ImageResult, error) {
	if p == nil || p.Detector == nil || p.Dispatcher == nil {
		return nil, newError(KindPipeline, StageInitialization, id, errors.New("pipeline not initialized"))
	}
	if img == nil {
		return nil, newError(KindPipeline, StageLayoutDetection, id, errors.New("input image is nil"))
	}

	r := reporter{sink: sink, id: id}
	bounds := img.Bounds()
	res := &ImageResult{ID: id, Width: bounds.Dx(), Height: bounds.Dy()}
	totalStart := time.Now()
	slog.Debug("starting image processing", "id", id, "width", res.Width, "height", res.Height)

	// Stage 1: layout detection.
	r.report(StageLayoutDetection, 0.1, "Detecting text regions...")
	detStart := time.Now()
	regions, err := p.Detector.Detect(ctx, img, func(f float64) {
		r.report(StageLayoutDetection, 0.1+f*0.3, "Detecting regions... %d%%", int(f*100+0.5))
	})
	res.Processing.DetectionNs = time.Since(detStart).Nanoseconds()
	stageDuration.WithLabelValues(string(StageLayoutDetection)).Observe(time.Since(detStart).Seconds())
	if err != nil {
		if !errors.Is(err, detector.ErrMalformedOutput) {
			imagesProcessed.WithLabelValues("failed").Inc()
			return nil, newError(KindPipeline, StageLayoutDetection, id, err)
		}
		derr := newError(KindDecode, StageLayoutDetection, id, err)
		slog.Warn("detector output could not be decoded, continuing with no regions", "id", id, "error", derr)
		decodeFailures.Inc()
		res.DecodeError = err.Error()
		regions = nil
	} else if len(regions) == 0 {
		zeroDetectionImages.Inc()
	}
	res.RegionCount = len(regions)
	regionsDetected.Observe(float64(len(regions)))

	// Stage 2: recognition, one region at a time.
	r.report(StageTextRecognition, 0.4, "Recognizing text in %d regions...", len(regions))
	recStart := time.Now()
	blocks := make([]TextBlock, 0, len(regions))
	for i, region := range regions {
		if err := ctx.Err(); err != nil {
			imagesProcessed.WithLabelValues("failed").Inc()
			return nil, newError(KindPipeline, StageTextRecognition, id, err)
		}
		text, kind, err := p.Dispatcher.Recognize(ctx, img, region)
		if err != nil {
			rerr := newError(KindRecognition, StageTextRecognition, id, err)
			slog.Warn("region recognition failed, leaving text empty", "id", id, "region", i, "strategy", kind, "error", rerr)
			recognitionFailures.WithLabelValues(kind.String()).Inc()
			res.RecognitionFailures++
			text = ""
		}
		blocks = append(blocks, TextBlock{TextRegion: region, Text: text})
		r.report(StageTextRecognition, 0.4+float64(i+1)/float64(len(regions))*0.4,
			"Recognized %d/%d regions", i+1, len(regions))
	}
	res.Processing.RecognitionNs = time.Since(recStart).Nanoseconds()
	stageDuration.WithLabelValues(string(StageTextRecognition)).Observe(time.Since(recStart).Seconds())

	// Stage 3: reading order.
	r.report(StageReadingOrder, 0.8, "Processing reading order...")
	ordStart := time.Now()
	ordered, plan := readingorder.ReconstructWithPlan(blocks, p.order)
	res.Processing.OrderingNs = time.Since(ordStart).Nanoseconds()
	stageDuration.WithLabelValues(string(StageReadingOrder)).Observe(time.Since(ordStart).Seconds())
	if len(ordered) > 0 {
		if plan.Vertical {
			res.Direction = readingorder.Vertical.String()
		} else {
			res.Direction = readingorder.Horizontal.String()
		}
	}

	// Stage 4: output.
	r.report(StageGeneratingOutput, 0.9, "Generating output...")
	res.Blocks = ordered
	res.FullText = JoinText(ordered)

	elapsed := time.Since(totalStart)
	res.ProcessingTime = elapsed
	res.ProcessingTimeMs = elapsed.Milliseconds()
	res.Processing.TotalNs = elapsed.Nanoseconds()

	status := "ok"
	if res.Degraded() {
		status = "degraded"
	}
	imagesProcessed.WithLabelValues(status).Inc()
	slog.Debug("image processed",
		"id", id,
		"regions", res.RegionCount,
		"blocks", len(res.Blocks),
		"recognition_failures", res.RecognitionFailures,
		"decode_error", res.DecodeError != "",
		"duration_ms", res.ProcessingTimeMs)
	return res, nil
}

// JoinText joins the non-empty texts of blocks with newlines.
func JoinText(blocks []TextBlock) string {
	lines := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if b.Text != "" {
			lines = append(lines, b.Text)
		}
	}
	return strings.Join(lines, "\n")
}
