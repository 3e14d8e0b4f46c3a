package pipeline

import (
	"fmt"
	"log/slog"
	"sync/atomic"
)

// Stage identifies a progress step.
type Stage string

const (
	StageInitializing            Stage = "initializing"
	StageLoadingLayoutModel      Stage = "loading_layout_model"
	StageLoadingRecognitionModel Stage = "loading_recognition_model"
	StageInitialized             Stage = "initialized"
	StageInitialization          Stage = "initialization"
	StageLoading                 Stage = "loading"
	StageLayoutDetection         Stage = "layout_detection"
	StageTextRecognition         Stage = "text_recognition"
	StageReadingOrder            Stage = "reading_order"
	StageGeneratingOutput        Stage = "generating_output"
)

// Progress is one advisory progress update. Fraction is in [0,1].
type Progress struct {
	ImageID  string  `json:"id,omitempty"`
	Stage    Stage   `json:"stage"`
	Fraction float64 `json:"progress"`
	Message  string  `json:"message"`
}

// ProgressSink observes progress. Implementations must return quickly.
type ProgressSink interface {
	Report(Progress)
}

// ProgressFunc adapts a function to ProgressSink.
type ProgressFunc func(Progress)

// Report calls f.
func (f ProgressFunc) Report(p Progress) { f(p) }

// ChannelSink forwards progress to a channel without blocking. Updates
// that do not fit are dropped and counted.
type ChannelSink struct {
	ch      chan<- Progress
	dropped atomic.Int64
}

// NewChannelSink returns a sink writing to ch.
func NewChannelSink(ch chan<- Progress) *ChannelSink {
	return &ChannelSink{ch: ch}
}

// Report implements ProgressSink.
func (s *ChannelSink) Report(p Progress) {
	select {
	case s.ch <- p:
	default:
		s.dropped.Add(1)
	}
}

// Dropped returns the number of updates that were discarded.
func (s *ChannelSink) Dropped() int64 { return s.dropped.Load() }

// LogSink logs every update at debug level.
func LogSink(logger *slog.Logger) ProgressSink {
	if logger == nil {
		logger = slog.Default()
	}
	return ProgressFunc(func(p Progress) {
		logger.Debug("ocr progress", "id", p.ImageID, "stage", p.Stage, "progress", p.Fraction, "message", p.Message)
	})
}

// MultiSink fans updates out to every non-nil sink.
func MultiSink(sinks ...ProgressSink) ProgressSink {
	live := make([]ProgressSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			live = append(live, s)
		}
	}
	return ProgressFunc(func(p Progress) {
		for _, s := range live {
			s.Report(p)
		}
	})
}

// reporter stamps updates with an image id. A panicking sink is logged and
// ignored.
type reporter struct {
	sink ProgressSink
	id   string
}

func (r reporter) report(stage Stage, fraction float64, format string, args ...any) {
	if r.sink == nil {
		return
	}
	defer func() {
		if v := recover(); v != nil {
			slog.Warn("progress sink panicked", "stage", stage, "panic", v)
		}
	}()
	r.sink.Report(Progress{
		ImageID:  r.id,
		Stage:    stage,
		Fraction: min(max(fraction, 0), 1),
		Message:  fmt.Sprintf(format, args...),
	})
}
