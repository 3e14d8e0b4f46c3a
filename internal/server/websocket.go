package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MeKo-Tech/yomitori/internal/pipeline"
	"github.com/MeKo-Tech/yomitori/internal/utils"
)

const (
	wsReadTimeout  = 60 * time.Second
	wsPingInterval = 30 * time.Second
	wsWriteTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin policy is enforced by the CORS setting.
	CheckOrigin: func(*http.Request) bool { return true },
}

// WebSocket message types.
const (
	wsTypeOCR      = "ocr"
	wsTypePing     = "ping"
	wsTypePong     = "pong"
	wsTypeProgress = "progress"
	wsTypeComplete = "complete"
	wsTypeError    = "error"
)

// WSRequest is a client message on /ws/ocr. Image is base64 in JSON.
type WSRequest struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id,omitempty"`
	Filename  string `json:"filename,omitempty"`
	Format    string `json:"format,omitempty"`
	Image     []byte `json:"image,omitempty"`
}

// WSMessage is a server message on /ws/ocr.
type WSMessage struct {
	Type      string                `json:"type"`
	RequestID string                `json:"request_id,omitempty"`
	Progress  *pipeline.Progress    `json:"progress,omitempty"`
	Result    *pipeline.ImageResult `json:"result,omitempty"`
	Text      string                `json:"text,omitempty"`
	HistoryID string                `json:"history_id,omitempty"`
	Error     string                `json:"error,omitempty"`
	Code      string                `json:"code,omitempty"`
}

// ocrWebSocketHandler streams OCR progress and results. Requests on one
// connection are processed in the order they arrive.
func (s *Server) ocrWebSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("failed to upgrade connection to WebSocket", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	websocketConnections.Inc()
	defer websocketConnections.Dec()
	slog.Info("WebSocket connection established", "remote_addr", r.RemoteAddr)

	conn.SetReadLimit(s.maxUploadMB * 1024 * 1024 * 2)
	_ = conn.SetReadDeadline(time.Now().Add(s.wsIdle))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.wsIdle))
	})

	done := make(chan struct{})
	defer close(done)
	go keepAlive(conn, done)

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("WebSocket read failed", "error", err)
			}
			return
		}
		websocketMessagesTotal.WithLabelValues("received").Inc()
		if messageType != websocket.TextMessage {
			_ = conn.SetReadDeadline(time.Now().Add(s.wsIdle))
			continue
		}
		if err := s.handleWebSocketMessage(r.Context(), conn, data); err != nil {
			slog.Warn("WebSocket write failed", "error", err)
			return
		}
		// Pongs are not read while a request runs, so the idle clock
		// starts again once it is answered.
		_ = conn.SetReadDeadline(time.Now().Add(s.wsIdle))
	}
}

func keepAlive(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
		}
	}
}

// handleWebSocketMessage serves one request. It only returns write
// errors; request failures are reported to the client.
func (s *Server) handleWebSocketMessage(ctx context.Context, conn *websocket.Conn, data []byte) error {
	var req WSRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return sendWS(conn, WSMessage{Type: wsTypeError, Error: "invalid message: " + err.Error(), Code: "bad_request"})
	}

	switch req.Type {
	case wsTypePing:
		return sendWS(conn, WSMessage{Type: wsTypePong, RequestID: req.RequestID})
	case wsTypeOCR:
	default:
		return sendWS(conn, WSMessage{Type: wsTypeError, RequestID: req.RequestID, Error: "unknown message type: " + req.Type, Code: "bad_request"})
	}

	fail := func(code, msg string) error {
		return sendWS(conn, WSMessage{Type: wsTypeError, RequestID: req.RequestID, Error: msg, Code: code})
	}
	if len(req.Image) == 0 {
		return fail("missing_image", "no image provided")
	}
	switch req.Format {
	case "", "json", "text", "txt", "csv":
	default:
		return fail("unsupported_format", "unsupported format: "+req.Format)
	}
	img, _, err := utils.DecodeImageBytes(req.Image)
	if err == nil {
		err = utils.ValidateImage(img)
	}
	if err != nil {
		return fail("invalid_image", err.Error())
	}

	// A failed progress write surfaces on the next write.
	var writeErr error
	onProgress := func(p pipeline.Progress) {
		if writeErr != nil {
			return
		}
		p.ImageID = req.RequestID
		writeErr = sendWS(conn, WSMessage{Type: wsTypeProgress, RequestID: req.RequestID, Progress: &p})
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	start := time.Now()
	res, err := s.recognize(ctx, img, onProgress)
	ocrProcessingDuration.WithLabelValues("websocket").Observe(time.Since(start).Seconds())
	if writeErr != nil {
		return writeErr
	}
	if err != nil {
		ocrRequestsTotal.WithLabelValues("websocket", "error").Inc()
		_, code := ocrErrorStatus(err)
		return fail(code, err.Error())
	}
	ocrRequestsTotal.WithLabelValues("websocket", "success").Inc()

	msg := WSMessage{Type: wsTypeComplete, RequestID: req.RequestID, HistoryID: s.record(ctx, req.Filename, img, res)}
	if req.Format == "" || req.Format == "json" {
		msg.Result = res
	} else {
		text, err := pipeline.Format(res, req.Format)
		if err != nil {
			return fail("format_failed", err.Error())
		}
		msg.Text = text
	}
	return sendWS(conn, msg)
}

func sendWS(conn *websocket.Conn, msg WSMessage) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(msg); err != nil {
		return err
	}
	websocketMessagesTotal.WithLabelValues("sent").Inc()
	return nil
}
