package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter wires HTTP routes to the server's handlers.
func NewRouter(s *Server) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Post("/upload", s.handleUpload)
	r.Post("/inspect", s.handleInspect)
	r.Post("/convert", s.handleConvert)
	r.Post("/report", s.handleReport)
	r.Get("/jobs", s.handleJobs)
	r.Get("/metrics", s.handleMetrics)
	r.Get("/rulepack", s.handleRulePack)
	r.Get("/artifacts/{id}", s.handleArtifactDownload)
	return r
}
