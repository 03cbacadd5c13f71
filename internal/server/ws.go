package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ayusman/hasta/internal/detector"
	"github.com/ayusman/hasta/internal/sequence"
)

// writeTimeout bounds a single frame write to one client.
const writeTimeout = time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// LandmarkMessage is the JSON message sent for every extracted frame.
type LandmarkMessage struct {
	Frame      int                     `json:"frame"`
	Source     int                     `json:"source"`
	Landmarks  detector.FrameLandmarks `json:"landmarks"`
	Visibility detector.Visibility     `json:"visibility"`
}

// LandmarksHandler broadcasts extracted frame landmarks via WebSocket.
type LandmarksHandler struct {
	clients map[*websocket.Conn]bool
	mu      sync.Mutex
	logger  *zap.Logger
}

// NewLandmarksHandler creates a LandmarksHandler with no clients.
func NewLandmarksHandler(logger *zap.Logger) *LandmarksHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LandmarksHandler{
		clients: make(map[*websocket.Conn]bool),
		logger:  logger,
	}
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *LandmarksHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade error", zap.Error(err))
		return
	}
	defer conn.Close()

	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
	}()

	// Keep connection alive by reading messages
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

// Clients returns the number of connected clients.
func (h *LandmarksHandler) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Publish sends one extracted frame to every connected client. Clients
// that fail to receive it are disconnected.
func (h *LandmarksHandler) Publish(ev sequence.FrameEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.clients) == 0 || ev.Result == nil {
		return
	}

	msg, err := json.Marshal(LandmarkMessage{
		Frame:      ev.Step,
		Source:     ev.Source,
		Landmarks:  ev.Result.Landmarks,
		Visibility: ev.Result.Landmarks.Visibility(),
	})
	if err != nil {
		h.logger.Error("failed to encode landmarks", zap.Error(err))
		return
	}

	for conn := range h.clients {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.logger.Debug("dropping landmark client", zap.Error(err))
			conn.Close()
			delete(h.clients, conn)
		}
	}
}
