// Package server exposes the OCR pipeline over HTTP and WebSocket.
//
// All OCR requests are funneled through one pipeline.Worker, which owns
// the inference engines exclusively. The server demultiplexes the
// worker's event stream back to the request that submitted each image.
package server

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MeKo-Tech/yomitori/internal/history"
	"github.com/MeKo-Tech/yomitori/internal/pipeline"
)

const subscriberBuffer = 32

// Config holds server configuration.
type Config struct {
	Host            string
	Port            int
	CORSOrigin      string
	MaxUploadMB     int64
	TimeoutSec      int
	ShutdownTimeout time.Duration
	// WebSocketIdle closes WebSocket connections without client traffic
	// for this long. Defaults to 60s.
	WebSocketIdle   time.Duration
	ModelsDir       string
	Version         string
	RateLimit       RateLimitConfig
}

// Server holds the HTTP server state and dependencies.
type Server struct {
	worker  *pipeline.Worker
	history history.Store

	modelsDir   string
	version     string
	corsOrigin  string
	maxUploadMB int64
	timeout     time.Duration
	shutdown    time.Duration
	wsIdle      time.Duration
	addr        string
	limiter     *RateLimiter

	mu   sync.Mutex
	subs map[string]*subscription
	// dispatched is closed once the worker event stream has ended.
	dispatched chan struct{}
}

type subscription struct {
	events chan pipeline.Event
	done   chan struct{}
}

// New creates a server around worker. store may be nil to disable
// history. The server takes ownership of both.
func New(cfg Config, worker *pipeline.Worker, store history.Store) (*Server, error) {
	if worker == nil {
		return nil, errors.New("server requires a pipeline worker")
	}
	if cfg.MaxUploadMB <= 0 {
		cfg.MaxUploadMB = 50
	}
	if cfg.TimeoutSec <= 0 {
		cfg.TimeoutSec = 60
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.WebSocketIdle <= 0 {
		cfg.WebSocketIdle = wsReadTimeout
	}
	if cfg.CORSOrigin == "" {
		cfg.CORSOrigin = "*"
	}
	s := &Server{
		worker:      worker,
		history:     store,
		modelsDir:   cfg.ModelsDir,
		version:     cfg.Version,
		corsOrigin:  cfg.CORSOrigin,
		maxUploadMB: cfg.MaxUploadMB,
		timeout:     time.Duration(cfg.TimeoutSec) * time.Second,
		shutdown:    cfg.ShutdownTimeout,
		wsIdle:      cfg.WebSocketIdle,
		addr:        net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		subs:        make(map[string]*subscription),
		dispatched:  make(chan struct{}),
	}
	if cfg.RateLimit.enabled() {
		s.limiter = NewRateLimiter(cfg.RateLimit)
	}
	go s.dispatch()
	return s, nil
}

// Close stops the worker and closes the history store.
func (s *Server) Close() error {
	errs := []error{s.worker.Close()}
	<-s.dispatched
	if s.history != nil {
		errs = append(errs, s.history.Close())
	}
	return errors.Join(errs...)
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	return mux
}

// SetupRoutes configures the HTTP routes.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.corsMiddleware(s.healthHandler))
	mux.HandleFunc("/models", s.corsMiddleware(s.modelsHandler))
	mux.HandleFunc("/ocr/image", s.corsMiddleware(s.rateLimitMiddleware(s.ocrImageHandler)))
	mux.HandleFunc("GET /history", s.corsMiddleware(s.listHistoryHandler))
	mux.HandleFunc("DELETE /history", s.corsMiddleware(s.clearHistoryHandler))
	mux.HandleFunc("GET /history/{id}", s.corsMiddleware(s.getHistoryHandler))
	mux.HandleFunc("DELETE /history/{id}", s.corsMiddleware(s.deleteHistoryHandler))
	mux.HandleFunc("/ws/ocr", s.rateLimitMiddleware(s.ocrWebSocketHandler))
	mux.Handle("/metrics", promhttp.Handler())
}

// ListenAndServe serves until ctx is cancelled, then shuts down
// gracefully within the configured shutdown timeout.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down HTTP server", "timeout", s.shutdown)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdown)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// recognize submits img to the worker and waits for its result. Progress
// for the request is passed to onProgress when it is non-nil. Cancelling
// ctx abandons the wait but does not interrupt the worker.
func (s *Server) recognize(ctx context.Context, img image.Image, onProgress func(pipeline.Progress)) (*pipeline.ImageResult, error) {
	id := uuid.NewString()
	sub := s.subscribe(id)
	defer s.unsubscribe(id)

	if err := s.worker.Submit(ctx, pipeline.ProcessRequest{ID: id, Image: img}); err != nil {
		return nil, err
	}
	for {
		select {
		case ev := <-sub.events:
			switch e := ev.(type) {
			case pipeline.ProgressEvent:
				if onProgress != nil {
					onProgress(e.Progress)
				}
			case pipeline.CompleteEvent:
				return e.Result, nil
			case pipeline.FailedEvent:
				return nil, e.Err
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.dispatched:
			return nil, pipeline.ErrWorkerStopped
		}
	}
}

func (s *Server) subscribe(id string) *subscription {
	sub := &subscription{
		events: make(chan pipeline.Event, subscriberBuffer),
		done:   make(chan struct{}),
	}
	s.mu.Lock()
	s.subs[id] = sub
	s.mu.Unlock()
	return sub
}

func (s *Server) unsubscribe(id string) {
	s.mu.Lock()
	sub, ok := s.subs[id]
	delete(s.subs, id)
	s.mu.Unlock()
	if ok {
		close(sub.done)
	}
}

// dispatch routes worker events to subscribers by request ID. Progress is
// dropped for slow subscribers; terminal events wait until the subscriber
// receives them or leaves.
func (s *Server) dispatch() {
	defer close(s.dispatched)
	for ev := range s.worker.Events() {
		id := eventID(ev)
		s.mu.Lock()
		sub := s.subs[id]
		s.mu.Unlock()
		if sub == nil {
			if f, ok := ev.(pipeline.FailedEvent); ok {
				slog.Warn("unclaimed worker failure", "id", f.ID, "stage", f.Stage, "error", f.Err)
			}
			continue
		}
		if _, ok := ev.(pipeline.ProgressEvent); ok {
			select {
			case sub.events <- ev:
			default:
			}
			continue
		}
		select {
		case sub.events <- ev:
		case <-sub.done:
		}
	}
}

func eventID(ev pipeline.Event) string {
	switch e := ev.(type) {
	case pipeline.ProgressEvent:
		return e.ImageID
	case pipeline.CompleteEvent:
		return e.ID
	case pipeline.FailedEvent:
		return e.ID
	default:
		return ""
	}
}
