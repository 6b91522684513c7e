// Package server provides the HTTP and WebSocket API for vaultchat.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/vaultchat/vaultchat/internal/config"
	"github.com/vaultchat/vaultchat/internal/conversation"
	"github.com/vaultchat/vaultchat/internal/event"
	"github.com/vaultchat/vaultchat/internal/export"
	"github.com/vaultchat/vaultchat/internal/knowledge"
	"github.com/vaultchat/vaultchat/internal/mode"
	"github.com/vaultchat/vaultchat/internal/permission"
	"github.com/vaultchat/vaultchat/internal/provider"
	"github.com/vaultchat/vaultchat/internal/stream"
	"github.com/vaultchat/vaultchat/internal/token"
)

// Config holds server configuration.
type Config struct {
	Port         int
	EnableCORS   bool
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Port:         8080,
		EnableCORS:   true,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // no write timeout: SSE and WS connections are long-lived
	}
}

// Services bundles the application services the server exposes.
type Services struct {
	AppConfig     *config.Config
	Bus           *event.Bus
	Conversations *conversation.Service
	Knowledge     *knowledge.Service
	Permissions   *permission.Manager
	Tokens        *token.Estimator
	Modes         *mode.Registry
	Export        *export.Service
	Provider      provider.Provider
	Controller    *stream.Controller
}

// Server is the HTTP server.
type Server struct {
	config   *Config
	router   *chi.Mux
	httpSrv  *http.Server
	services *Services

	// active maps conversation ID to the stream session currently
	// answering it. Guarded by activeMu.
	activeMu sync.Mutex
	active   map[string]string
}

// New creates a new Server instance.
func New(cfg *Config, services *Services) *Server {
	s := &Server{
		config:   cfg,
		router:   chi.NewRouter(),
		services: services,
		active:   make(map[string]string),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// setupMiddleware configures middleware for the server.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RealIP)

	if s.config.EnableCORS {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"Link", "X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.services.Controller.CancelAll(ctx)
	return s.httpSrv.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// setActive records the stream session answering a conversation.
func (s *Server) setActive(conversationID, sessionID string) {
	s.activeMu.Lock()
	s.active[conversationID] = sessionID
	s.activeMu.Unlock()
}

// clearActive removes the active stream mapping if it still points at
// sessionID.
func (s *Server) clearActive(conversationID, sessionID string) {
	s.activeMu.Lock()
	if s.active[conversationID] == sessionID {
		delete(s.active, conversationID)
	}
	s.activeMu.Unlock()
}

// activeSession returns the stream session currently answering a
// conversation.
func (s *Server) activeSession(conversationID string) (string, bool) {
	s.activeMu.Lock()
	defer s.activeMu.Unlock()
	id, ok := s.active[conversationID]
	return id, ok
}
