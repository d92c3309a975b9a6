package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/capitalize-ai/interview-sim/internal/middleware"
	"github.com/capitalize-ai/interview-sim/internal/model"
	"github.com/capitalize-ai/interview-sim/pkg/logger"
	"github.com/capitalize-ai/interview-sim/pkg/metrics"
)

const (
	defaultEventLimit = 100
	maxEventLimit     = 1000
)

// EventSource replays and follows published session events.
type EventSource interface {
	SessionEvents(ctx context.Context, sessionID string, limit int) ([]model.SessionEvent, error)
	Follow(ctx context.Context, sessionID string) (<-chan model.SessionEvent, error)
}

// StreamHandler serves session events, as JSON or as a live SSE stream.
type StreamHandler struct {
	source    EventSource
	logger    *logger.Logger
	heartbeat time.Duration
}

// NewStreamHandler creates a stream handler. A nil source makes every
// endpoint report 503.
func NewStreamHandler(source EventSource, log *logger.Logger) *StreamHandler {
	return &StreamHandler{
		source:    source,
		logger:    log,
		heartbeat: 30 * time.Second,
	}
}

// ReplayCompleteEvent marks the end of the replayed backlog.
type ReplayCompleteEvent struct {
	EventCount int `json:"event_count"`
}

// HeartbeatEvent keeps idle SSE connections open.
type HeartbeatEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

// Events handles GET /api/v1/sessions/{id}/events
func (h *StreamHandler) Events(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	limit := middleware.ParseLimit(r.URL.Query().Get("limit"), defaultEventLimit, maxEventLimit)
	events, err := h.source.SessionEvents(r.Context(), sessionID, limit)
	if err != nil {
		h.logger.Error("failed to replay events", zap.String("session_id", sessionID), zap.Error(err))
		writeError(w, http.StatusBadGateway, "failed to read session events")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": sessionID,
		"events":     events,
	})
}

// Stream handles GET /api/v1/sessions/{id}/stream
// It replays the backlog, then follows live until the session finishes or
// the client disconnects.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Subscribe before replaying so nothing published in between is lost.
	live, err := h.source.Follow(ctx, sessionID)
	if err != nil {
		h.logger.Error("failed to follow session", zap.String("session_id", sessionID), zap.Error(err))
		writeError(w, http.StatusBadGateway, "failed to follow session")
		return
	}
	backlog, err := h.source.SessionEvents(ctx, sessionID, maxEventLimit)
	if err != nil {
		h.logger.Error("failed to replay events", zap.String("session_id", sessionID), zap.Error(err))
		writeError(w, http.StatusBadGateway, "failed to read session events")
		return
	}

	// Streams outlive the server's write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	_ = sendSSEEvent(w, flusher, "connected", map[string]string{"session_id": sessionID})

	seen := make(map[string]bool, len(backlog))
	for i := range backlog {
		ev := &backlog[i]
		seen[ev.ID] = true
		_ = sendSSEEvent(w, flusher, string(ev.Type), ev)
		if ev.Type == model.EventTypeSessionFinished {
			_ = sendSSEEvent(w, flusher, "done", &ReplayCompleteEvent{EventCount: len(backlog)})
			return
		}
	}
	_ = sendSSEEvent(w, flusher, "replay_complete", &ReplayCompleteEvent{EventCount: len(backlog)})

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("SSE client disconnected", zap.String("session_id", sessionID))
			return

		case ev, open := <-live:
			if !open {
				return
			}
			if seen[ev.ID] {
				continue
			}
			seen[ev.ID] = true
			if err := sendSSEEvent(w, flusher, string(ev.Type), &ev); err != nil {
				return
			}
			if ev.Type == model.EventTypeSessionFinished {
				_ = sendSSEEvent(w, flusher, "done", map[string]bool{"success": true})
				return
			}

		case <-heartbeat.C:
			_ = sendSSEEvent(w, flusher, "heartbeat", &HeartbeatEvent{Timestamp: time.Now()})
		}
	}
}

func (h *StreamHandler) sessionID(w http.ResponseWriter, r *http.Request) (string, bool) {
	if h.source == nil {
		writeError(w, http.StatusServiceUnavailable, "event stream not configured")
		return "", false
	}
	id := chi.URLParam(r, "id")
	if err := middleware.ValidateSessionID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return id, true
}
