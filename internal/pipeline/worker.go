package pipeline

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"sync"
)

// Requests accepted by a Worker.
type (
	// Request is one of InitializeRequest, ProcessRequest or TerminateRequest.
	Request interface{ isRequest() }

	// InitializeRequest loads the models. It is optional: the first
	// ProcessRequest initializes on demand.
	InitializeRequest struct{}

	// ProcessRequest runs OCR on one image.
	ProcessRequest struct {
		ID    string
		Image image.Image
	}

	// TerminateRequest releases the pipeline and stops the worker.
	TerminateRequest struct{}
)

func (InitializeRequest) isRequest() {}
func (ProcessRequest) isRequest()    {}
func (TerminateRequest) isRequest()  {}

// Events emitted by a Worker.
type (
	// Event is one of ProgressEvent, CompleteEvent or FailedEvent.
	Event interface{ isEvent() }

	// ProgressEvent is an advisory progress update.
	ProgressEvent struct{ Progress }

	// CompleteEvent carries the result of a ProcessRequest.
	CompleteEvent struct {
		ID     string
		Result *ImageResult
	}

	// FailedEvent reports a failed request. ID is empty for
	// initialization failures outside a ProcessRequest.
	FailedEvent struct {
		ID    string
		Stage Stage
		Err   error
	}
)

func (ProgressEvent) isEvent() {}
func (CompleteEvent) isEvent() {}
func (FailedEvent) isEvent()   {}

// Factory builds the pipeline, reporting load progress to sink.
type Factory func(sink ProgressSink) (*Pipeline, error)

// ErrWorkerStopped is returned by Submit after the worker has stopped.
var ErrWorkerStopped = errors.New("worker stopped")

// Worker owns a Pipeline on a single goroutine and serves requests one at
// a time in submission order. Progress events are dropped when the event
// buffer is full; completion and failure events are always delivered
// unless the worker is closed.
type Worker struct {
	factory  Factory
	pipeline *Pipeline

	requests chan Request
	events   chan Event
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// WorkerOption configures a Worker.
type WorkerOption func(*workerOptions)

type workerOptions struct {
	queue  int
	events int
}

// WithQueueSize sets how many requests may wait for the worker.
func WithQueueSize(n int) WorkerOption {
	return func(o *workerOptions) {
		if n >= 0 {
			o.queue = n
		}
	}
}

// WithEventBuffer sets the event channel capacity.
func WithEventBuffer(n int) WorkerOption {
	return func(o *workerOptions) {
		if n >= 0 {
			o.events = n
		}
	}
}

// NewWorker starts a worker that builds its pipeline with factory.
func NewWorker(factory Factory, opts ...WorkerOption) *Worker {
	o := workerOptions{queue: 16, events: 64}
	for _, opt := range opts {
		opt(&o)
	}
	w := &Worker{
		factory:  factory,
		requests: make(chan Request, o.queue),
		events:   make(chan Event, o.events),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go w.loop()
	return w
}

// NewWorkerWithPipeline starts a worker around an initialized pipeline.
func NewWorkerWithPipeline(p *Pipeline, opts ...WorkerOption) *Worker {
	return NewWorker(func(ProgressSink) (*Pipeline, error) { return p, nil }, opts...)
}

// Events returns the event stream. It is closed when the worker stops.
func (w *Worker) Events() <-chan Event { return w.events }

// Done is closed when the worker has stopped.
func (w *Worker) Done() <-chan struct{} { return w.done }

// Submit queues req. It blocks while the queue is full.
func (w *Worker) Submit(ctx context.Context, req Request) error {
	if req == nil {
		return errors.New("nil request")
	}
	select {
	case <-w.stop:
		return ErrWorkerStopped
	case <-w.done:
		return ErrWorkerStopped
	default:
	}
	select {
	case w.requests <- req:
		return nil
	case <-w.stop:
		return ErrWorkerStopped
	case <-w.done:
		return ErrWorkerStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the worker without waiting for queued requests and waits
// for the current one to finish.
func (w *Worker) Close() error {
	w.stopOnce.Do(func() { close(w.stop) })
	<-w.done
	return nil
}

func (w *Worker) loop() {
	defer close(w.done)
	defer close(w.events)
	defer w.shutdown()

	for {
		select {
		case <-w.stop:
			return
		case req := <-w.requests:
			switch r := req.(type) {
			case InitializeRequest:
				_ = w.ensurePipeline("")
			case ProcessRequest:
				w.process(r)
			case TerminateRequest:
				slog.Debug("worker terminating")
				return
			}
		}
	}
}

func (w *Worker) shutdown() {
	if w.pipeline == nil {
		return
	}
	if err := w.pipeline.Close(); err != nil {
		slog.Warn("worker pipeline close", "error", err)
	}
	w.pipeline = nil
}

// ensurePipeline initializes on first use. A failed initialization is
// reported and retried by the next request.
func (w *Worker) ensurePipeline(id string) error {
	if w.pipeline != nil {
		return nil
	}
	sink := ProgressFunc(func(p Progress) {
		p.ImageID = id
		w.progress(p)
	})
	p, err := w.factory(sink)
	if err == nil && p == nil {
		err = errors.New("factory returned no pipeline")
	}
	if err != nil {
		if KindOf(err) == 0 {
			err = newError(KindInitialization, StageInitialization, id, err)
		}
		slog.Error("worker initialization failed", "error", err)
		w.emit(FailedEvent{ID: id, Stage: StageInitialization, Err: err})
		return err
	}
	w.pipeline = p
	return nil
}

func (w *Worker) process(r ProcessRequest) {
	if err := w.ensurePipeline(r.ID); err != nil {
		return
	}
	sink := ProgressFunc(w.progress)
	// A worker request runs to completion once started.
	res, err := w.pipeline.ProcessImageWithID(context.Background(), r.ID, r.Image, sink)
	if err != nil {
		stage := StageLayoutDetection
		var pe *Error
		if errors.As(err, &pe) && pe.Stage != "" {
			stage = pe.Stage
		}
		w.emit(FailedEvent{ID: r.ID, Stage: stage, Err: err})
		return
	}
	w.emit(CompleteEvent{ID: r.ID, Result: res})
}

func (w *Worker) progress(p Progress) {
	select {
	case w.events <- ProgressEvent{Progress: p}:
	default:
	}
}

func (w *Worker) emit(ev Event) {
	select {
	case w.events <- ev:
	case <-w.stop:
	}
}
