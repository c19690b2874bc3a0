// Package api exposes the verification intermediary and the supplier
// submission endpoints over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sells-group/supplier-verify/internal/flow"
	"github.com/sells-group/supplier-verify/internal/sat"
)

// Submissions is the part of the flow controller the endpoints drive.
type Submissions interface {
	Create() string
	Get(id string) (*flow.Submission, error)
	Submit(ctx context.Context, up flow.Upload) (*flow.Submission, error)
	Revalidate(id string) (*flow.Submission, error)
}

// Options configures a Server.
type Options struct {
	AllowedOrigins []string
	MaxUploadBytes int64
	// Gatherer backs GET /metrics; nil selects the default registry.
	Gatherer prometheus.Gatherer
}

// Server wires the HTTP endpoints to the verifier and the submission
// controller. Either collaborator may be nil, which leaves its routes out.
type Server struct {
	verifier    sat.Verifier
	submissions Submissions
	opts        Options
}

// New creates a Server.
func New(verifier sat.Verifier, submissions Submissions, opts Options) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = flow.DefaultMaxBytes
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	return &Server{verifier: verifier, submissions: submissions, opts: opts}
}

// Router builds the route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(logRequests)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Accept"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))

	if s.verifier != nil {
		r.Post("/sat/extract", s.handleExtract)
	}
	if s.submissions != nil {
		r.Route("/submissions", func(r chi.Router) {
			r.Post("/", s.handleCreate)
			r.Get("/{id}", s.handleGet)
			r.Post("/{id}/documents/{type}", s.handleUpload)
			r.Post("/{id}/revalidate", s.handleRevalidate)
		})
	}
	return r
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Duration("elapsed", time.Since(start)))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("api: write response", zap.Error(err))
	}
}

// errorBody is the envelope of the submission endpoints.
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorBody{Error: msg, Code: code})
}
