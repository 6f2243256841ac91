// Package server provides the debug HTTP server: health, live state, the
// overlay stream, gesture push over websocket and recorded sessions.
package server

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"io/fs"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/sirupsen/logrus"

	"github.com/ayusman/gesturejump/internal/gesture"
	"github.com/ayusman/gesturejump/internal/server/api"
	"github.com/ayusman/gesturejump/internal/store"
)

//go:embed web
var webFS embed.FS

const shutdownTimeout = 5 * time.Second

// StateSource provides the recognition state.
type StateSource interface {
	Snapshot() gesture.Snapshot
}

// PlayerSource provides the controllable entity's motion.
type PlayerSource interface {
	PlayerPosition() mgl64.Vec2
	PlayerVelocity() mgl64.Vec2
}

// Config holds the server configuration. Routes whose source is nil are
// not registered.
type Config struct {
	Log            *logrus.Logger
	StaticDir      string
	Store          *store.Store
	State          StateSource
	Player         PlayerSource
	Frames         FrameSource
	Hub            *Hub
	SessionID      string
	AllowedOrigins []string
	StreamInterval time.Duration
}

// Server represents the debug HTTP server.
type Server struct {
	config Config
	router chi.Router
	hub    *Hub
	start  time.Time

	mu         sync.Mutex
	http       *http.Server
	cancelBase context.CancelFunc
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	if config.Log == nil {
		config.Log = logrus.StandardLogger()
	}
	hub := config.Hub
	if hub == nil {
		hub = NewHub(config.Log)
	}

	s := &Server{
		config: config,
		router: chi.NewRouter(),
		hub:    hub,
		start:  time.Now(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.router.Use(middleware.Recoverer)
	if len(s.config.AllowedOrigins) > 0 {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.config.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/state", s.handleState)
		r.Get("/gestures", s.hub.ServeHTTP)

		if s.config.Frames != nil {
			r.Method(http.MethodGet, "/stream", NewStreamHandler(s.config.Frames, s.config.StreamInterval))
		}
		if s.config.Store != nil {
			api.NewSessionHandler(s.config.Store).Routes(r)
		}
	})

	if s.config.StaticDir != "" {
		s.router.Handle("/*", http.FileServer(http.Dir(s.config.StaticDir)))
		return
	}
	web, _ := fs.Sub(webFS, "web")
	s.router.Handle("/*", http.FileServer(http.FS(web)))
}

// Hub returns the websocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(s.start)

	response := map[string]interface{}{
		"status": "ok",
		"uptime": uptime.String(),
	}

	writeJSON(w, http.StatusOK, response)
}

type vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type playerResponse struct {
	Position vec2 `json:"position"`
	Velocity vec2 `json:"velocity"`
}

type stateResponse struct {
	gesture.Snapshot
	Percent   string          `json:"percent"`
	SessionID string          `json:"session_id,omitempty"`
	Player    *playerResponse `json:"player,omitempty"`
}

// handleState handles GET requests to /api/state.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	var response stateResponse
	if s.config.State != nil {
		response.Snapshot = s.config.State.Snapshot()
	}
	response.Percent = gesture.FormatPercent(response.Confidence)
	response.SessionID = s.config.SessionID

	if s.config.Player != nil {
		pos, vel := s.config.Player.PlayerPosition(), s.config.Player.PlayerVelocity()
		response.Player = &playerResponse{
			Position: vec2{X: pos.X(), Y: pos.Y()},
			Velocity: vec2{X: vel.X(), Y: vel.Y()},
		}
	}

	writeJSON(w, http.StatusOK, response)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully. It returns nil after a clean shutdown.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	// Request contexts derive from base so Shutdown can end open streams.
	base, cancel := context.WithCancel(context.Background())
	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return base },
	}
	s.mu.Lock()
	s.http = srv
	s.cancelBase = cancel
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.config.Log.Infof("debug server listening on http://%s", ln.Addr())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	return s.Shutdown()
}

// Shutdown closes websocket clients and stops the HTTP server.
func (s *Server) Shutdown() error {
	s.hub.Close()

	s.mu.Lock()
	srv, cancelBase := s.http, s.cancelBase
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	cancelBase()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
