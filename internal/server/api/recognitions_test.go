package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/ayusman/hasta/internal/app"
	"github.com/ayusman/hasta/internal/classify"
	"github.com/ayusman/hasta/internal/detector"
	"github.com/ayusman/hasta/internal/sequence"
	"github.com/ayusman/hasta/internal/store"
)

// newTestStore creates a new Store with a temporary database for testing.
func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "hasta-api-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() {
		os.RemoveAll(tmpDir)
	})

	s, err := store.New(filepath.Join(tmpDir, "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
	})

	return s
}

// createRecognition stores a recognition with seven ranked scores and two
// frames.
func createRecognition(t *testing.T, s *store.Store, id, label string) {
	t.Helper()

	scores := make([]store.ScoreEntry, 7)
	for i := range scores {
		scores[i] = store.ScoreEntry{Rank: i + 1, Label: fmt.Sprintf("label_%d", i), Score: 0.5 / float64(i+1)}
	}
	scores[0].Label = label

	var lm detector.FrameLandmarks
	for i := range lm.Face {
		lm.Face[i] = detector.Point{X: 0.5, Y: 0.5}
	}
	lm.Pose[0] = detector.Point{X: 0.5, Y: 0.25}
	frames := []store.FrameRecord{
		{Step: 0, SourceIndex: 3, Landmarks: lm, Visibility: lm.Visibility()},
		{Step: 1, SourceIndex: 8},
	}

	rec := &store.Recognition{ID: id, Label: label, Score: 0.5, Source: store.SourceCamera, FrameCount: 90, Indices: []int{3, 8}}
	if err := s.Recognitions().Create(rec, scores, frames); err != nil {
		t.Fatalf("failed to create recognition: %v", err)
	}
}

type stubRecognizer struct {
	out   *app.Outcome
	err   error
	calls int
}

func (r *stubRecognizer) Recognize(ctx context.Context) (*app.Outcome, error) {
	r.calls++
	return r.out, r.err
}

func TestRecognitionHandler_List(t *testing.T) {
	s := newTestStore(t)
	createRecognition(t, s, "rec-1", "Jsl_hello")
	createRecognition(t, s, "rec-2", "Jsl_wine")
	handler := NewRecognitionHandler(s, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/recognitions", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type application/json, got %s", ct)
	}

	var response listRecognitionsResponse
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(response.Recognitions) != 2 {
		t.Fatalf("expected 2 recognitions, got %d", len(response.Recognitions))
	}
	if len(response.Recognitions[0].Top) != 0 {
		t.Error("list entries should not carry scores")
	}

	t.Run("limit", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/recognitions?limit=1", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		var response listRecognitionsResponse
		if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if len(response.Recognitions) != 1 {
			t.Errorf("expected 1 recognition, got %d", len(response.Recognitions))
		}
	})

	t.Run("invalid limit", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/recognitions?limit=abc", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
		}
	})
}

func TestRecognitionHandler_ListEmpty(t *testing.T) {
	handler := NewRecognitionHandler(newTestStore(t), nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/recognitions", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if body := rec.Body.String(); body != "{\"recognitions\":[]}\n" {
		t.Errorf("expected empty array, got %s", body)
	}
}

func TestRecognitionHandler_Get(t *testing.T) {
	s := newTestStore(t)
	createRecognition(t, s, "rec-1", "Jsl_hello")
	handler := NewRecognitionHandler(s, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/recognitions/rec-1", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	var response recognitionResponse
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Label != "Jsl_hello" {
		t.Errorf("expected label Jsl_hello, got %s", response.Label)
	}
	if len(response.Top) != TopScores {
		t.Fatalf("expected %d top scores, got %d", TopScores, len(response.Top))
	}
	if response.Top[0].Rank != 1 || response.Top[0].Label != "Jsl_hello" {
		t.Errorf("unexpected first score %+v", response.Top[0])
	}
	if response.FrameCount != 90 {
		t.Errorf("expected frame_count 90, got %d", response.FrameCount)
	}
}

func TestRecognitionHandler_GetNotFound(t *testing.T) {
	handler := NewRecognitionHandler(newTestStore(t), nil, nil)

	for _, path := range []string{"/api/recognitions/missing", "/api/recognitions/missing/frames", "/api/recognitions/a/b"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("%s: expected status %d, got %d", path, http.StatusNotFound, rec.Code)
		}
	}
}

func TestRecognitionHandler_Frames(t *testing.T) {
	s := newTestStore(t)
	createRecognition(t, s, "rec-1", "Jsl_hello")
	handler := NewRecognitionHandler(s, nil, nil)

	t.Run("visibility only", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/recognitions/rec-1/frames", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
		}

		var response listFramesResponse
		if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if len(response.Frames) != 2 {
			t.Fatalf("expected 2 frames, got %d", len(response.Frames))
		}
		if !response.Frames[0].Visibility.Face || response.Frames[0].Visibility.Pose {
			t.Errorf("unexpected visibility %+v", response.Frames[0].Visibility)
		}
		if response.Frames[0].Landmarks != nil {
			t.Error("landmarks should be omitted by default")
		}
		if response.Frames[1].SourceIndex != 8 {
			t.Errorf("expected source_index 8, got %d", response.Frames[1].SourceIndex)
		}
	})

	t.Run("with landmarks", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/recognitions/rec-1/frames?landmarks=true", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		var response listFramesResponse
		if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if response.Frames[0].Landmarks == nil {
			t.Fatal("expected landmarks")
		}
		if response.Frames[0].Landmarks.Face[0].X != 0.5 {
			t.Errorf("unexpected face point %+v", response.Frames[0].Landmarks.Face[0])
		}
	})

	t.Run("only GET", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/recognitions/rec-1/frames", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
		}
	})
}

func TestRecognitionHandler_Delete(t *testing.T) {
	s := newTestStore(t)
	createRecognition(t, s, "rec-1", "Jsl_hello")
	handler := NewRecognitionHandler(s, nil, nil)

	req := httptest.NewRequest(http.MethodDelete, "/api/recognitions/rec-1", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status %d, got %d", http.StatusNoContent, rec.Code)
	}

	if _, err := s.Recognitions().GetByID("rec-1"); err != store.ErrNotFound {
		t.Errorf("expected recognition to be deleted, got %v", err)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/recognitions/rec-1", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestRecognitionHandler_Create(t *testing.T) {
	t.Run("no recognizer", func(t *testing.T) {
		handler := NewRecognitionHandler(newTestStore(t), nil, nil)

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/recognitions", nil))

		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("expected status %d, got %d", http.StatusServiceUnavailable, rec.Code)
		}
	})

	t.Run("success", func(t *testing.T) {
		stub := &stubRecognizer{out: &app.Outcome{
			Recognition: &store.Recognition{ID: "new", Label: "Jsl_wine", Score: 0.7, Source: store.SourceCamera, FrameCount: 60},
			Top:         []classify.Score{{Label: "Jsl_wine", Score: 0.7}, {Label: "Jsl_yellow", Score: 0.2}},
		}}
		handler := NewRecognitionHandler(newTestStore(t), stub, nil)

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/recognitions", nil))

		if rec.Code != http.StatusCreated {
			t.Fatalf("expected status %d, got %d", http.StatusCreated, rec.Code)
		}
		var response recognitionResponse
		if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if response.ID != "new" || len(response.Top) != 2 || response.Top[1].Rank != 2 {
			t.Errorf("unexpected response %+v", response)
		}
		if stub.calls != 1 {
			t.Errorf("expected 1 recognize call, got %d", stub.calls)
		}
	})

	errorCases := []struct {
		name string
		err  error
		want int
	}{
		{"busy", app.ErrBusy, http.StatusConflict},
		{"no camera", app.ErrNoCamera, http.StatusServiceUnavailable},
		{"model unavailable", fmt.Errorf("classify: %w", detector.ErrModelUnavailable), http.StatusServiceUnavailable},
		{"short capture", fmt.Errorf("build sequence: %w", sequence.ErrInsufficientFrames), http.StatusUnprocessableEntity},
		{"other", fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range errorCases {
		t.Run(tc.name, func(t *testing.T) {
			handler := NewRecognitionHandler(newTestStore(t), &stubRecognizer{err: tc.err}, nil)

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/recognitions", nil))

			if rec.Code != tc.want {
				t.Errorf("expected status %d, got %d", tc.want, rec.Code)
			}
		})
	}
}

func TestRecognitionHandler_MethodNotAllowed(t *testing.T) {
	handler := NewRecognitionHandler(newTestStore(t), nil, nil)

	cases := []struct {
		method string
		path   string
	}{
		{http.MethodPut, "/api/recognitions"},
		{http.MethodPatch, "/api/recognitions/rec-1"},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s %s: expected status %d, got %d", tc.method, tc.path, http.StatusMethodNotAllowed, rec.Code)
		}
	}
}
