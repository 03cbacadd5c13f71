package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/hasta/internal/app"
	"github.com/ayusman/hasta/internal/capture"
	"github.com/ayusman/hasta/internal/fixture"
	"github.com/ayusman/hasta/internal/store"
)

func TestAPI_RecognitionWorkflow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	// Setup
	tmpDir := t.TempDir()
	s, err := store.New(filepath.Join(tmpDir, "test.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	defer s.Close()

	frames := fixture.CameraFrames(30, 640, 480)
	defer func() {
		for _, f := range frames {
			f.Close()
		}
	}()
	burst := capture.DefaultBurstConfig()
	burst.Countdown = 0

	dispatcher, _, err := fixture.Dispatcher(nil)
	if err != nil {
		t.Fatalf("fixture.Dispatcher() error = %v", err)
	}

	landmarks := NewLandmarksHandler(nil)
	application := app.New(app.Config{
		Recorder:   capture.NewRecorder(capture.NewMockCamera(frames, false), burst, nil),
		Builder:    fixture.Builder(nil),
		Dispatcher: dispatcher,
		Store:      s,
		Publisher:  landmarks,
	})

	srv := New(Config{Store: s, Recognizer: application, Landmarks: landmarks})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	client := ts.Client()

	// 1. Subscribe to the landmark feed
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/landmarks"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s error = %v", wsURL, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for landmarks.Clients() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("websocket client was not registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	received := make(chan []LandmarkMessage, 1)
	go func() {
		var msgs []LandmarkMessage
		conn.SetReadDeadline(time.Now().Add(10 * time.Second))
		for len(msgs) < 16 {
			var msg LandmarkMessage
			if err := conn.ReadJSON(&msg); err != nil {
				break
			}
			msgs = append(msgs, msg)
		}
		received <- msgs
	}()

	// 2. Trigger a recognition
	resp, err := client.Post(ts.URL+"/api/recognitions", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /api/recognitions error = %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("POST status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}

	var created struct {
		ID    string `json:"id"`
		Label string `json:"label"`
		Top   []struct {
			Rank  int    `json:"rank"`
			Label string `json:"label"`
		} `json:"top"`
	}
	json.NewDecoder(resp.Body).Decode(&created)
	resp.Body.Close()

	if created.Label != "Jsl_wine" {
		t.Errorf("created label = %s, want Jsl_wine", created.Label)
	}
	if len(created.Top) != 5 {
		t.Errorf("created top = %d scores, want 5", len(created.Top))
	}

	// 3. Every sampled frame reached the feed
	msgs := <-received
	if len(msgs) != 16 {
		t.Fatalf("received %d landmark messages, want 16", len(msgs))
	}
	for _, msg := range msgs {
		if !msg.Visibility.Pose || !msg.Visibility.LeftHand {
			t.Errorf("frame %d visibility = %+v, want pose and left hand", msg.Frame, msg.Visibility)
		}
	}

	// 4. List recognitions
	resp, _ = client.Get(ts.URL + "/api/recognitions")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /api/recognitions status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	var list struct {
		Recognitions []struct {
			ID string `json:"id"`
		} `json:"recognitions"`
	}
	json.NewDecoder(resp.Body).Decode(&list)
	resp.Body.Close()

	if len(list.Recognitions) != 1 || list.Recognitions[0].ID != created.ID {
		t.Errorf("list = %+v, want the created recognition", list.Recognitions)
	}

	// 5. Frames of the recognition
	resp, _ = client.Get(ts.URL + "/api/recognitions/" + created.ID + "/frames")
	var frameList struct {
		Frames []struct {
			SourceIndex int `json:"source_index"`
		} `json:"frames"`
	}
	json.NewDecoder(resp.Body).Decode(&frameList)
	resp.Body.Close()

	if len(frameList.Frames) != 16 {
		t.Errorf("frames = %d, want 16", len(frameList.Frames))
	}

	// 6. Delete the recognition
	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/recognitions/"+created.ID, nil)
	resp, _ = client.Do(req)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("DELETE status = %d, want %d", resp.StatusCode, http.StatusNoContent)
	}

	resp, _ = client.Get(ts.URL + "/api/recognitions/" + created.ID)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("GET after delete status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}

func TestLandmarksHandler_PublishWithoutClients(t *testing.T) {
	h := NewLandmarksHandler(nil)
	h.Publish(fixtureEvent())
	if h.Clients() != 0 {
		t.Errorf("Clients() = %d, want 0", h.Clients())
	}
}
