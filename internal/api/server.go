// Package api serves the HTTP surface of the validator: document uploads,
// stored records, validation runs, approvals and reports.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/contract-validator/internal/config"
	"github.com/sells-group/contract-validator/internal/extract"
	"github.com/sells-group/contract-validator/internal/model"
	"github.com/sells-group/contract-validator/internal/pipeline"
	"github.com/sells-group/contract-validator/internal/store"
)

const defaultMaxUploadMB = 25

// Server holds the handlers' collaborators.
type Server struct {
	pipeline       *pipeline.Pipeline
	uploadDir      string
	maxUploadBytes int64
	allowedOrigins []string
}

// New creates a Server backed by p. Uploads land in cfg.UploadDir.
func New(p *pipeline.Pipeline, cfg config.ServerConfig) *Server {
	maxMB := cfg.MaxUploadMB
	if maxMB <= 0 {
		maxMB = defaultMaxUploadMB
	}
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return &Server{
		pipeline:       p,
		uploadDir:      cfg.UploadDir,
		maxUploadBytes: int64(maxMB) << 20,
		allowedOrigins: origins,
	}
}

// Routes returns the router with every endpoint mounted.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)

	r.Route("/api", func(r chi.Router) {
		r.Post("/documents", s.uploadDocument)
		r.Get("/documents/{id}", s.getDocument)

		r.Get("/contracts", s.listContracts)
		r.Get("/invoices", s.listInvoices)

		r.Post("/validations", s.createValidation)
		r.Get("/validations", s.listValidations)
		r.Get("/validations/{id}", s.getValidation)

		r.Post("/compare", s.compare)
		r.Post("/evidence", s.evidence)

		r.Get("/approvals", s.listApprovals)
		r.Post("/approvals/{id}/decision", s.decideApproval)

		r.Get("/report", s.report)
		r.Get("/metrics", s.metrics)
	})
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Info("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// badRequestError marks client mistakes that map to 400.
type badRequestError struct{ msg string }

func (e *badRequestError) Error() string { return e.msg }

func badRequest(msg string) error { return &badRequestError{msg: msg} }

type errorBody struct {
	Error      string `json:"error"`
	DocumentID string `json:"documentId,omitempty"`
	Stage      string `json:"stage,omitempty"`
	Category   string `json:"category,omitempty"`
}

// statusFor maps an error to its HTTP status.
func statusFor(err error) int {
	var br *badRequestError
	var rejected *extract.RejectedError
	switch {
	case errors.As(err, &br):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrAlreadyDecided):
		return http.StatusConflict
	case extract.IsShapeError(err), errors.As(err, &rejected):
		return http.StatusUnprocessableEntity
	}
	if pe, ok := pipeline.AsProcessingError(err); ok && pe.Category == model.ErrorCategoryTransient {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	body := errorBody{Error: err.Error()}
	if pe, ok := pipeline.AsProcessingError(err); ok {
		body.DocumentID = pe.DocumentID
		body.Stage = pe.Stage
		body.Category = string(pe.Category)
	}
	if status >= http.StatusInternalServerError {
		zap.L().Error("api: request failed", zap.Int("status", status), zap.Error(err))
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return badRequest("invalid request body: " + err.Error())
	}
	return nil
}
