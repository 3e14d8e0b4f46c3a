package server

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/MeKo-Tech/yomitori/internal/history"
	"github.com/MeKo-Tech/yomitori/internal/models"
	"github.com/MeKo-Tech/yomitori/internal/pipeline"
	"github.com/MeKo-Tech/yomitori/internal/utils"
)

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Time    string `json:"time"`
}

// ModelsResponse is returned by GET /models.
type ModelsResponse struct {
	Models []models.Status `json:"models"`
	Count  int             `json:"count"`
}

// OCRResponse is the JSON body of POST /ocr/image.
type OCRResponse struct {
	HistoryID string                `json:"history_id,omitempty"`
	OCR       *pipeline.ImageResult `json:"ocr"`
}

// HistoryResponse is returned by GET /history.
type HistoryResponse struct {
	Entries []history.Entry `json:"entries"`
	Count   int             `json:"count"`
}

// ErrorResponse is the body of every JSON error.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: s.version,
		Time:    time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) modelsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}
	st := models.Inspect(s.modelsDir)
	writeJSON(w, http.StatusOK, ModelsResponse{Models: st, Count: len(st)})
}

// ocrImageHandler runs OCR on the multipart "image" field. The "format"
// form or query value selects json (default), text, csv or overlay.
func (s *Server) ocrImageHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}

	limit := s.maxUploadMB * 1024 * 1024
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(limit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			writeError(w, http.StatusRequestEntityTooLarge, "file_too_large", "File too large")
		} else {
			writeError(w, http.StatusBadRequest, "bad_request", "Failed to parse form data")
		}
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing_image", "No image file provided")
		return
	}
	defer func() { _ = file.Close() }()
	uploadSizeBytes.Observe(float64(header.Size))

	format := r.FormValue("format")
	if format == "" {
		format = r.URL.Query().Get("format")
	}
	switch format {
	case "", "json", "text", "txt", "csv", "overlay":
	default:
		writeError(w, http.StatusBadRequest, "unsupported_format", fmt.Sprintf("unsupported format %q", format))
		return
	}

	img, _, err := utils.DecodeImage(file)
	if err == nil {
		err = utils.ValidateImage(img)
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_image", err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()
	start := time.Now()
	res, err := s.recognize(ctx, img, nil)
	ocrProcessingDuration.WithLabelValues("http").Observe(time.Since(start).Seconds())
	if err != nil {
		ocrRequestsTotal.WithLabelValues("http", "error").Inc()
		status, code := ocrErrorStatus(err)
		writeError(w, status, code, fmt.Sprintf("OCR processing failed: %v", err))
		return
	}
	ocrRequestsTotal.WithLabelValues("http", "success").Inc()
	ocrTextLength.Observe(float64(utf8.RuneCountInString(res.FullText)))

	entryID := s.record(r.Context(), header.Filename, img, res)

	switch format {
	case "overlay":
		writeOverlay(w, img, res)
	case "text", "txt", "csv":
		out, err := pipeline.Format(res, format)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "format_failed", err.Error())
			return
		}
		if format == "csv" {
			w.Header().Set("Content-Type", "text/csv")
		} else {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		}
		if entryID != "" {
			w.Header().Set("X-History-ID", entryID)
		}
		_, _ = w.Write([]byte(out))
	default:
		writeJSON(w, http.StatusOK, OCRResponse{HistoryID: entryID, OCR: res})
	}
}

// record saves res to history and returns the entry ID, or "" when
// history is disabled or the save failed.
func (s *Server) record(ctx context.Context, fileName string, img image.Image, res *pipeline.ImageResult) string {
	if s.history == nil {
		return ""
	}
	entry, err := history.NewEntry(fileName, img, res)
	if err == nil {
		err = s.history.Save(ctx, entry)
	}
	if err != nil {
		historyOperations.WithLabelValues("save", "error").Inc()
		slog.Warn("failed to save history entry", "file", fileName, "error", err)
		return ""
	}
	historyOperations.WithLabelValues("save", "success").Inc()
	return entry.ID
}

func writeOverlay(w http.ResponseWriter, img image.Image, res *pipeline.ImageResult) {
	boxes := make([]utils.OverlayBox, len(res.Blocks))
	for i, b := range res.Blocks {
		boxes[i] = utils.OverlayBox{Box: b.Box, Label: b.ReadingOrder}
	}
	ov := utils.RenderOverlay(img, boxes, utils.DefaultOverlayColor)
	w.Header().Set("Content-Type", "image/png")
	if err := png.Encode(w, ov); err != nil {
		slog.Error("failed to encode overlay", "error", err)
	}
}

func (s *Server) listHistoryHandler(w http.ResponseWriter, r *http.Request) {
	if !s.historyEnabled(w) {
		return
	}
	entries, err := s.history.List(r.Context())
	if err != nil {
		s.historyError(w, "list", err)
		return
	}
	historyOperations.WithLabelValues("list", "success").Inc()
	writeJSON(w, http.StatusOK, HistoryResponse{Entries: entries, Count: len(entries)})
}

func (s *Server) getHistoryHandler(w http.ResponseWriter, r *http.Request) {
	if !s.historyEnabled(w) {
		return
	}
	entry, err := s.history.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.historyError(w, "get", err)
		return
	}
	historyOperations.WithLabelValues("get", "success").Inc()
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) deleteHistoryHandler(w http.ResponseWriter, r *http.Request) {
	if !s.historyEnabled(w) {
		return
	}
	if err := s.history.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.historyError(w, "delete", err)
		return
	}
	historyOperations.WithLabelValues("delete", "success").Inc()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) clearHistoryHandler(w http.ResponseWriter, r *http.Request) {
	if !s.historyEnabled(w) {
		return
	}
	if err := s.history.Clear(r.Context()); err != nil {
		s.historyError(w, "clear", err)
		return
	}
	historyOperations.WithLabelValues("clear", "success").Inc()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) historyEnabled(w http.ResponseWriter) bool {
	if s.history == nil {
		writeError(w, http.StatusNotFound, "history_disabled", "History is disabled")
		return false
	}
	return true
}

func (s *Server) historyError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, history.ErrNotFound) {
		historyOperations.WithLabelValues(op, "not_found").Inc()
		writeError(w, http.StatusNotFound, "not_found", err.Error())
		return
	}
	historyOperations.WithLabelValues(op, "error").Inc()
	slog.Error("history operation failed", "op", op, "error", err)
	writeError(w, http.StatusInternalServerError, "history_error", err.Error())
}

// ocrErrorStatus maps a recognition failure to an HTTP status and code.
func ocrErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout, "cancelled"
	case errors.Is(err, pipeline.ErrWorkerStopped), errors.Is(err, pipeline.KindInitialization):
		return http.StatusServiceUnavailable, "pipeline_unavailable"
	default:
		return http.StatusInternalServerError, kindCode(pipeline.KindOf(err))
	}
}

func kindCode(k pipeline.Kind) string {
	if k == 0 {
		return "ocr_failed"
	}
	return strings.ReplaceAll(k.String(), " ", "_")
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: message, Code: code})
}
