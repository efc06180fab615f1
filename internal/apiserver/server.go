// Package apiserver wires the HTTP surface named in spec.md §6 onto a
// plain net/http.ServeMux — the teacher's own http_server.go never reaches
// for a third-party router, so neither do we.
package apiserver

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pedrow21/proxima/internal/auth"
	"github.com/pedrow21/proxima/internal/endpoint"
	"github.com/pedrow21/proxima/internal/store"
)

// Config bundles a Server's construction-time dependencies.
type Config struct {
	Store    *store.Actor
	Endpoint *endpoint.Actor
	Auth     *auth.Service
	Password auth.PasswordVerifier
	MediaDir string
	Now      func() int64
	Log      *slog.Logger
}

// Server exposes spec.md §6's HTTP surface over the Database Actor and AI
// Endpoint Actor it was built with.
type Server struct {
	store    *store.Actor
	endpoint *endpoint.Actor
	auth     *auth.Service
	password auth.PasswordVerifier
	mediaDir string
	now      func() int64
	log      *slog.Logger
}

// NewServer builds a Server. A nil Password defaults to
// auth.ConstantTimeVerifier, matching the teacher's constant-time API-key
// comparison.
func NewServer(cfg Config) *Server {
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = func() int64 { return time.Now().Unix() }
	}
	if cfg.Password == nil {
		cfg.Password = auth.ConstantTimeVerifier{}
	}
	return &Server{
		store:    cfg.Store,
		endpoint: cfg.Endpoint,
		auth:     cfg.Auth,
		password: cfg.Password,
		mediaDir: cfg.MediaDir,
		now:      cfg.Now,
		log:      cfg.Log,
	}
}

// Mux builds the http.Handler serving every endpoint in spec.md §6, plus
// /metrics for ambient Prometheus instrumentation.
func (s *Server) Mux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("GET /home", s.handleHome)
	mux.HandleFunc("POST /auth", s.handleAuth)
	mux.HandleFunc("POST /db", s.handleDB)
	mux.HandleFunc("POST /ai", s.handleAI)
	mux.HandleFunc("GET /media/{id}", s.handleMedia)
	return s.logging(mux)
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// logging wraps every request with a status-capturing slog.Debug line,
// matching the teacher's web.LoggingMiddleware.
func (s *Server) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		s.log.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}
