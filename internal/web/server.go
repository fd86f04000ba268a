package web

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Config holds server configuration
type Config struct {
	Port           int
	AllowedOrigins []string
	Version        string
}

// Server represents the HTTP server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	config     *Config
	listener   net.Listener
	hub        *Hub // WebSocket Hub
}

// NewServer creates a new HTTP server. hub may be nil.
func NewServer(cfg *Config, hub *Hub) *Server {
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}

	srv := &Server{
		router: chi.NewRouter(),
		config: cfg,
		hub:    hub,
	}

	srv.setupMiddleware()
	srv.setupRoutes()

	return srv
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.config.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-User-ID", "X-Dispatch-Secret"},
		MaxAge:         300,
	}))
}

func (s *Server) setupRoutes() {
	// WebSocket
	if s.hub != nil {
		s.router.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
			ServeWs(s.hub, w, r)
		})
	}

	// Health endpoint
	s.router.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if _, err := fmt.Fprintf(w, `{"status":"ok","version":%q}`, s.config.Version); err != nil {
			_ = err // Client disconnected
		}
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	// Create listener
	addr := fmt.Sprintf(":%d", s.config.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.listener = listener

	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s.httpServer.Serve(listener)
}

// Stop gracefully stops the server
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// BaseURL returns the server's base URL
func (s *Server) BaseURL() string {
	if s.listener != nil {
		return fmt.Sprintf("http://%s", s.listener.Addr().String())
	}
	return fmt.Sprintf("http://localhost:%d", s.config.Port)
}

// RegisterTriggerHandler registers the dispatch trigger. The secret check
// runs before the handler, so rejected calls never touch the stores.
// The route has no request timeout: a batch is bounded by the handler itself.
func (s *Server) RegisterTriggerHandler(handler interface{}) {
	type triggerHandler interface {
		RequireSecret(next http.Handler) http.Handler
		Run(w http.ResponseWriter, r *http.Request)
	}

	if h, ok := handler.(triggerHandler); ok {
		s.router.With(h.RequireSecret).Post("/api/v1/dispatch/run", h.Run)
	}
}

// RegisterSendsHandler registers scheduled sends API handlers
func (s *Server) RegisterSendsHandler(handler interface{}) {
	type sendsHandler interface {
		Create(w http.ResponseWriter, r *http.Request)
		List(w http.ResponseWriter, r *http.Request)
		GetByID(w http.ResponseWriter, r *http.Request)
	}

	if h, ok := handler.(sendsHandler); ok {
		s.router.Route("/api/v1/sends", func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))
			r.Post("/", h.Create)
			r.Get("/", h.List)
			r.Get("/{id}", h.GetByID)
		})
	}
}

// RegisterDispatcherHandler registers dispatcher service status handler
func (s *Server) RegisterDispatcherHandler(handler interface{}) {
	type dispatcherHandler interface {
		Status(w http.ResponseWriter, r *http.Request)
	}

	if h, ok := handler.(dispatcherHandler); ok {
		s.router.Get("/api/v1/dispatch/status", h.Status)
	}
}

// RegisterMessengerHandler registers the sender account endpoints. guard, when
// set, protects the login route.
func (s *Server) RegisterMessengerHandler(handler interface{}, guard func(http.Handler) http.Handler) {
	type messengerHandler interface {
		GetStatus(w http.ResponseWriter, r *http.Request)
		StartLogin(w http.ResponseWriter, r *http.Request)
	}

	if h, ok := handler.(messengerHandler); ok {
		s.router.Route("/api/v1/messenger", func(r chi.Router) {
			r.Get("/status", h.GetStatus)
			if guard != nil {
				r.With(guard).Post("/login", h.StartLogin)
			} else {
				r.Post("/login", h.StartLogin)
			}
		})
	}
}

// Router returns the underlying Chi router for external route mounting.
func (s *Server) Router() *chi.Mux {
	return s.router
}
