package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ayusman/hasta/internal/app"
	"github.com/ayusman/hasta/internal/detector"
	"github.com/ayusman/hasta/internal/sequence"
	"github.com/ayusman/hasta/internal/signs"
	"github.com/ayusman/hasta/internal/store"
)

// SignService records, matches and deletes custom signs.
type SignService interface {
	SignLabels() []signs.LabelCount
	RecordSign(ctx context.Context, label string) (*store.SignSample, error)
	MatchSign(ctx context.Context) (*app.SignOutcome, error)
	DeleteSign(label string) (int, error)
}

// SignHandler handles HTTP requests for custom sign resources.
type SignHandler struct {
	service SignService
	logger  *zap.Logger
}

// NewSignHandler creates a SignHandler.
func NewSignHandler(service SignService, logger *zap.Logger) *SignHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SignHandler{service: service, logger: logger}
}

// ServeHTTP routes requests to the appropriate method.
func (h *SignHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Expected paths: /api/signs, /api/signs/match, /api/signs/{label} or
	// /api/signs/{label}/samples
	path := strings.TrimPrefix(r.URL.Path, "/api/signs")
	path = strings.Trim(path, "/")

	switch {
	case path == "":
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.list(w, r)
	case path == "match":
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.match(w, r)
	case strings.HasSuffix(path, "/samples"):
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.record(w, r, strings.TrimSuffix(path, "/samples"))
	case !strings.Contains(path, "/"):
		if r.Method != http.MethodDelete {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.delete(w, r, path)
	default:
		writeError(w, http.StatusNotFound, "Not found")
	}
}

// Response types

type listSignsResponse struct {
	Signs []signs.LabelCount `json:"signs"`
}

type sampleResponse struct {
	ID         string `json:"id"`
	Label      string `json:"label"`
	Dimensions int    `json:"dimensions"`
	CreatedAt  string `json:"created_at"`
}

type neighborResponse struct {
	SampleID string  `json:"sample_id"`
	Label    string  `json:"label"`
	Distance float64 `json:"distance"`
}

type matchResponse struct {
	Label      string             `json:"label"`
	Votes      int                `json:"votes"`
	Neighbors  []neighborResponse `json:"neighbors"`
	Classifier scoreResponse      `json:"classifier"`
}

// list handles GET /api/signs.
func (h *SignHandler) list(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, listSignsResponse{Signs: h.service.SignLabels()})
}

// record handles POST /api/signs/{label}/samples: it captures a burst and
// keeps it as a sample of label.
func (h *SignHandler) record(w http.ResponseWriter, r *http.Request, label string) {
	sample, err := h.service.RecordSign(r.Context(), label)
	if err != nil {
		h.logger.Warn("sign sample failed", zap.String("label", label), zap.Error(err))
		writeSignError(w, err, "Recording sign sample failed")
		return
	}

	writeJSON(w, http.StatusCreated, sampleResponse{
		ID:         sample.ID,
		Label:      sample.Label,
		Dimensions: len(sample.Features),
		CreatedAt:  sample.CreatedAt.Format(time.RFC3339),
	})
}

// match handles POST /api/signs/match: it captures a burst and labels it by
// the nearest recorded samples.
func (h *SignHandler) match(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.MatchSign(r.Context())
	if err != nil {
		h.logger.Warn("sign match failed", zap.Error(err))
		writeSignError(w, err, "Matching sign failed")
		return
	}

	response := matchResponse{
		Label:     out.Match.Label,
		Votes:     out.Match.Votes,
		Neighbors: make([]neighborResponse, 0, len(out.Match.Neighbors)),
	}
	for _, n := range out.Match.Neighbors {
		response.Neighbors = append(response.Neighbors, neighborResponse{
			SampleID: n.Sample.ID,
			Label:    n.Sample.Label,
			Distance: n.Distance,
		})
	}
	if res := out.Result; res != nil {
		response.Classifier = scoreResponse{Rank: 1, Label: res.Label, Score: res.Scores[res.Index].Score}
	}

	writeJSON(w, http.StatusOK, response)
}

// delete handles DELETE /api/signs/{label}.
func (h *SignHandler) delete(w http.ResponseWriter, r *http.Request, label string) {
	n, err := h.service.DeleteSign(label)
	if err != nil {
		h.logger.Error("failed to delete sign", zap.String("label", label), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to delete sign")
		return
	}
	if n == 0 {
		writeError(w, http.StatusNotFound, "Sign not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func writeSignError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, signs.ErrInvalidLabel):
		writeError(w, http.StatusBadRequest, "Invalid sign label")
	case errors.Is(err, signs.ErrNoSamples):
		writeError(w, http.StatusConflict, "No custom signs recorded")
	case errors.Is(err, app.ErrBusy):
		writeError(w, http.StatusConflict, "Recognition already running")
	case errors.Is(err, app.ErrNoCamera), errors.Is(err, app.ErrNoFeatures), errors.Is(err, detector.ErrModelUnavailable):
		writeError(w, http.StatusServiceUnavailable, "Recognition is not available")
	case errors.Is(err, sequence.ErrInsufficientFrames):
		writeError(w, http.StatusUnprocessableEntity, "Not enough frames captured")
	case errors.Is(err, signs.ErrDimension):
		writeError(w, http.StatusConflict, "Sign samples do not match the classifier")
	default:
		writeError(w, http.StatusInternalServerError, fallback)
	}
}
