// Package api exposes the compiler's tooling output over HTTP: the same
// JSON the get_tokens / get_ast / get_resolved_ast commands print, for
// editors and build tooling that keep a canter process around.
package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ternarybob/canter/internal/config"
	"github.com/ternarybob/canter/internal/logger"
	"github.com/ternarybob/canter/pkg/compiler"
)

// version is set via -ldflags at build time.
var version = "dev"

// SetVersion sets the version string (called from main).
func SetVersion(v string) {
	version = v
}

// HealthResponse is the response for /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// VersionResponse is the response for /version.
type VersionResponse struct {
	Version string `json:"version"`
	Service string `json:"service"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// CompileRequest carries the source to analyze. FileURI is only used for
// diagnostics.
type CompileRequest struct {
	FileURI string `json:"file-uri"`
	Source  string `json:"source"`
}

// Server wires the inspection endpoints.
type Server struct {
	cfg *config.Config
}

// NewServer returns an inspection server for the given configuration.
func NewServer(cfg *config.Config) *Server {
	return &Server{cfg: cfg}
}

// Router builds the chi router with CORS and the API routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	allowed := s.cfg.Server.AllowedOrigins
	if len(allowed) == 0 {
		allowed = []string{"http://localhost:*", "http://127.0.0.1:*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowed,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/version", s.handleVersion)
	r.Route("/api", func(r chi.Router) {
		r.Post("/tokenize", s.handleTokenize)
		r.Post("/parse", s.handleParse)
		r.Post("/resolve", s.handleResolve)
	})
	return r
}

// ListenAndServe runs the server until the listener fails.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	logger.GetLogger().Info().
		Str("addr", addr).
		Msg("inspection server listening")
	return http.ListenAndServe(addr, s.Router())
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, VersionResponse{
		Version: version,
		Service: "canter",
	})
}

func (s *Server) readRequest(w http.ResponseWriter, r *http.Request) (*CompileRequest, bool) {
	body := http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxRequestSize)
	data, err := io.ReadAll(body)
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge,
			ErrorResponse{Error: "request too large"})
		return nil, false
	}
	var req CompileRequest
	if err := json.Unmarshal(data, &req); err != nil {
		writeJSON(w, http.StatusBadRequest,
			ErrorResponse{Error: "invalid JSON body"})
		return nil, false
	}
	if req.FileURI == "" {
		req.FileURI = "memory://request" + compiler.SourceFileSuffix
	}
	return &req, true
}

func (s *Server) newProject() *compiler.Project {
	pr := compiler.NewProject(".", s.cfg.WarnConfig(),
		compiler.Options{}, logger.GetLogger())
	pr.RegisterBuiltinNames()
	return pr
}

func (s *Server) handleTokenize(w http.ResponseWriter, r *http.Request) {
	req, ok := s.readRequest(w, r)
	if !ok {
		return
	}
	out := s.newProject().TokenizeToJSON(req.FileURI, []byte(req.Source))
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	req, ok := s.readRequest(w, r)
	if !ok {
		return
	}
	out := s.newProject().ParseASTToJSON(req.FileURI, []byte(req.Source), false)
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	req, ok := s.readRequest(w, r)
	if !ok {
		return
	}
	out := s.newProject().ParseASTToJSON(req.FileURI, []byte(req.Source), true)
	writeJSON(w, http.StatusOK, out)
}
