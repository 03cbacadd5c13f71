// Package server provides the HTTP server for the Hasta sign recognizer.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ayusman/hasta/internal/server/api"
	"github.com/ayusman/hasta/internal/store"
)

// Config holds the server configuration.
type Config struct {
	StaticDir  string
	Store      *store.Store
	Recognizer api.Recognizer
	// Signs enables the custom sign endpoints when set.
	Signs     api.SignService
	Landmarks *LandmarksHandler
	Logger     *zap.Logger
}

// Server represents the HTTP server for the Hasta application.
type Server struct {
	config Config
	mux    *http.ServeMux
	start  time.Time
	logger *zap.Logger
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
		logger: config.Logger,
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	// Register recognition API handler if Store is configured
	if s.config.Store != nil {
		recognitions := api.NewRecognitionHandler(s.config.Store, s.config.Recognizer, s.logger)
		s.mux.Handle("/api/recognitions", recognitions)
		s.mux.Handle("/api/recognitions/", recognitions)
	}

	// Register custom sign API handler if a sign service is configured
	if s.config.Signs != nil {
		signs := api.NewSignHandler(s.config.Signs, s.logger)
		s.mux.Handle("/api/signs", signs)
		s.mux.Handle("/api/signs/", signs)
	}

	// Register landmarks WebSocket endpoint if a feed is configured
	if s.config.Landmarks != nil {
		s.mux.Handle("/api/landmarks", s.config.Landmarks)
	}

	// Serve static files if StaticDir is configured
	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/", fs)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]any{
		"status":     "ok",
		"uptime":     time.Since(s.start).String(),
		"recognizer": s.config.Recognizer != nil,
		"signs":      s.config.Signs != nil,
	}
	if s.config.Landmarks != nil {
		response["landmark_clients"] = s.config.Landmarks.Clients()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// ListenAndServe starts the HTTP server on the given address.
func (s *Server) ListenAndServe(addr string) error {
	return http.ListenAndServe(addr, s)
}
