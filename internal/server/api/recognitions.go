// Package api provides HTTP API handlers for sign recognitions.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ayusman/hasta/internal/app"
	"github.com/ayusman/hasta/internal/detector"
	"github.com/ayusman/hasta/internal/sequence"
	"github.com/ayusman/hasta/internal/store"
)

// TopScores is the number of ranked scores in a recognition response.
const TopScores = 5

// Recognizer captures and recognizes one sign.
type Recognizer interface {
	Recognize(ctx context.Context) (*app.Outcome, error)
}

// RecognitionHandler handles HTTP requests for recognition resources.
type RecognitionHandler struct {
	store      *store.Store
	recognizer Recognizer
	logger     *zap.Logger
}

// NewRecognitionHandler creates a RecognitionHandler. A nil recognizer
// makes POST requests fail with 503.
func NewRecognitionHandler(s *store.Store, recognizer Recognizer, logger *zap.Logger) *RecognitionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecognitionHandler{store: s, recognizer: recognizer, logger: logger}
}

// ServeHTTP routes requests to the appropriate method.
func (h *RecognitionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Expected paths: /api/recognitions, /api/recognitions/{id} or
	// /api/recognitions/{id}/frames
	path := strings.TrimPrefix(r.URL.Path, "/api/recognitions")
	path = strings.Trim(path, "/")

	if path == "" {
		switch r.Method {
		case http.MethodGet:
			h.list(w, r)
		case http.MethodPost:
			h.create(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	if id, ok := strings.CutSuffix(path, "/frames"); ok {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.frames(w, r, id)
		return
	}

	if strings.Contains(path, "/") {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.get(w, r, path)
	case http.MethodDelete:
		h.delete(w, r, path)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// Response types

type scoreResponse struct {
	Rank  int     `json:"rank"`
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

type recognitionResponse struct {
	ID         string          `json:"id"`
	Label      string          `json:"label"`
	Score      float64         `json:"score"`
	Source     string          `json:"source"`
	FrameCount int             `json:"frame_count"`
	Indices    []int           `json:"indices"`
	CreatedAt  string          `json:"created_at"`
	Top        []scoreResponse `json:"top,omitempty"`
}

type listRecognitionsResponse struct {
	Recognitions []recognitionResponse `json:"recognitions"`
}

type frameResponse struct {
	Step        int                      `json:"step"`
	SourceIndex int                      `json:"source_index"`
	Visibility  detector.Visibility      `json:"visibility"`
	Landmarks   *detector.FrameLandmarks `json:"landmarks,omitempty"`
}

type listFramesResponse struct {
	Frames []frameResponse `json:"frames"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func toResponse(rec *store.Recognition, top []store.ScoreEntry) recognitionResponse {
	resp := recognitionResponse{
		ID:         rec.ID,
		Label:      rec.Label,
		Score:      rec.Score,
		Source:     string(rec.Source),
		FrameCount: rec.FrameCount,
		Indices:    rec.Indices,
		CreatedAt:  rec.CreatedAt.Format(time.RFC3339),
	}
	if resp.Indices == nil {
		resp.Indices = []int{}
	}
	for _, s := range top {
		resp.Top = append(resp.Top, scoreResponse{Rank: s.Rank, Label: s.Label, Score: s.Score})
	}
	return resp
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// list handles GET /api/recognitions?limit=n, newest first.
func (h *RecognitionHandler) list(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}

	recs, err := h.store.Recognitions().List(limit)
	if err != nil {
		h.logger.Error("failed to list recognitions", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to list recognitions")
		return
	}

	response := listRecognitionsResponse{
		Recognitions: make([]recognitionResponse, 0, len(recs)),
	}
	for _, rec := range recs {
		response.Recognitions = append(response.Recognitions, toResponse(rec, nil))
	}

	writeJSON(w, http.StatusOK, response)
}

// get handles GET /api/recognitions/{id} with the top ranked scores.
func (h *RecognitionHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	rec, err := h.store.Recognitions().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Recognition not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get recognition")
		return
	}

	top, err := h.store.Recognitions().Scores(id, TopScores)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get scores")
		return
	}

	writeJSON(w, http.StatusOK, toResponse(rec, top))
}

// create handles POST /api/recognitions: it captures a burst, recognizes
// it and returns the stored recognition.
func (h *RecognitionHandler) create(w http.ResponseWriter, r *http.Request) {
	if h.recognizer == nil {
		writeError(w, http.StatusServiceUnavailable, "Recognition is not available")
		return
	}

	out, err := h.recognizer.Recognize(r.Context())
	if err != nil {
		h.logger.Warn("recognition failed", zap.Error(err))
		switch {
		case errors.Is(err, app.ErrBusy):
			writeError(w, http.StatusConflict, "Recognition already running")
		case errors.Is(err, app.ErrNoCamera), errors.Is(err, detector.ErrModelUnavailable):
			writeError(w, http.StatusServiceUnavailable, "Recognition is not available")
		case errors.Is(err, sequence.ErrInsufficientFrames):
			writeError(w, http.StatusUnprocessableEntity, "Not enough frames captured")
		default:
			writeError(w, http.StatusInternalServerError, "Recognition failed")
		}
		return
	}

	top := make([]store.ScoreEntry, len(out.Top))
	for i, s := range out.Top {
		top[i] = store.ScoreEntry{Rank: i + 1, Label: s.Label, Score: s.Score}
	}

	writeJSON(w, http.StatusCreated, toResponse(out.Recognition, top))
}

// frames handles GET /api/recognitions/{id}/frames. Landmarks are included
// with ?landmarks=true.
func (h *RecognitionHandler) frames(w http.ResponseWriter, r *http.Request, id string) {
	if _, err := h.store.Recognitions().GetByID(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Recognition not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get recognition")
		return
	}

	frames, err := h.store.Recognitions().Frames(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get frames")
		return
	}

	withLandmarks := r.URL.Query().Get("landmarks") == "true"
	response := listFramesResponse{
		Frames: make([]frameResponse, 0, len(frames)),
	}
	for i := range frames {
		f := &frames[i]
		fr := frameResponse{Step: f.Step, SourceIndex: f.SourceIndex, Visibility: f.Visibility}
		if withLandmarks {
			fr.Landmarks = &f.Landmarks
		}
		response.Frames = append(response.Frames, fr)
	}

	writeJSON(w, http.StatusOK, response)
}

// delete handles DELETE /api/recognitions/{id}.
func (h *RecognitionHandler) delete(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.store.Recognitions().Delete(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Recognition not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete recognition")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
