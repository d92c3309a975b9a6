package handler

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/capitalize-ai/interview-sim/internal/middleware"
	"github.com/capitalize-ai/interview-sim/internal/model"
	"github.com/capitalize-ai/interview-sim/internal/transcript"
	"github.com/capitalize-ai/interview-sim/pkg/logger"
)

// TranscriptStore reads recorded interviews.
type TranscriptStore interface {
	List() ([]string, error)
	Load(identity string) ([]byte, error)
	LoadTime(identity string) ([]byte, error)
}

// TranscriptHandler serves recorded transcripts and timing records.
type TranscriptHandler struct {
	store  TranscriptStore
	logger *logger.Logger
}

// NewTranscriptHandler creates a new transcript handler.
func NewTranscriptHandler(store TranscriptStore, log *logger.Logger) *TranscriptHandler {
	return &TranscriptHandler{store: store, logger: log}
}

// TranscriptListResponse lists recorded identities.
type TranscriptListResponse struct {
	Identities []string `json:"identities"`
	Count      int      `json:"count"`
}

// TranscriptResponse is one recorded interview.
type TranscriptResponse struct {
	Identity string          `json:"identity"`
	Messages []model.Message `json:"messages"`
	Timing   string          `json:"timing,omitempty"`
}

// List handles GET /api/v1/transcripts
func (h *TranscriptHandler) List(w http.ResponseWriter, r *http.Request) {
	ids, err := h.store.List()
	if err != nil {
		h.logger.Error("failed to list transcripts", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list transcripts")
		return
	}

	writeJSON(w, http.StatusOK, &TranscriptListResponse{Identities: ids, Count: len(ids)})
}

// Get handles GET /api/v1/transcripts/{identity}
// ?format=text returns the file exactly as recorded.
func (h *TranscriptHandler) Get(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}

	data, err := h.store.Load(identity)
	if err != nil {
		h.loadFailed(w, identity, err)
		return
	}

	if r.URL.Query().Get("format") == "text" {
		writeText(w, http.StatusOK, data)
		return
	}

	resp := &TranscriptResponse{Identity: identity, Messages: transcript.Parse(data)}
	if resp.Messages == nil {
		resp.Messages = []model.Message{}
	}
	if timing, err := h.store.LoadTime(identity); err == nil {
		resp.Timing = string(timing)
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetTime handles GET /api/v1/transcripts/{identity}/time
func (h *TranscriptHandler) GetTime(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}

	data, err := h.store.LoadTime(identity)
	if err != nil {
		h.loadFailed(w, identity, err)
		return
	}
	writeText(w, http.StatusOK, data)
}

func (h *TranscriptHandler) identity(w http.ResponseWriter, r *http.Request) (string, bool) {
	identity, err := url.PathUnescape(chi.URLParam(r, "identity"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid identity encoding")
		return "", false
	}
	if err := middleware.ValidateIdentity(identity); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return identity, true
}

func (h *TranscriptHandler) loadFailed(w http.ResponseWriter, identity string, err error) {
	if errors.Is(err, transcript.ErrNotFound) {
		writeError(w, http.StatusNotFound, "transcript not found")
		return
	}
	h.logger.Error("failed to load transcript", zap.String("identity", identity), zap.Error(err))
	writeError(w, http.StatusInternalServerError, "failed to load transcript")
}
