package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const maxRequestBodySize = 1 << 20 // 1 MB

// Error codes carried in the "error" field of the error envelope.
const (
	codeValidation   = "VALIDATION_ERROR"
	codeInternal     = "INTERNAL_ERROR"
	codeUnauthorized = "UNAUTHORIZED"
	codeNotFound     = "NOT_FOUND"
)

const internalErrorMessage = "An internal error occurred. Please try again later."

// HandlerOptions configures the outer HTTP surface.
type HandlerOptions struct {
	// Token enables bearer auth on /api routes when non-empty.
	Token string
	// StaticDir is served at / when non-empty.
	StaticDir string
}

// NewHandler builds the HTTP API around svc.
func NewHandler(svc *Service, opts HandlerOptions) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(CORS)

	r.Get("/health", handleHealth(svc))

	r.Route("/api", func(r chi.Router) {
		if opts.Token != "" {
			r.Use(BearerAuth(opts.Token))
		}
		r.Post("/query", handleQuery(svc))
		r.Post("/search", handleSearch(svc))
		r.Get("/categories", handleCategories(svc))
		r.Post("/feedback", handleFeedback(svc))
		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			httpError(w, http.StatusNotFound, codeNotFound, "no route for %s %s", r.Method, r.URL.Path)
		})
	})

	if opts.StaticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(opts.StaticDir)))
	}
	return r
}

func handleQuery(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req QueryRequest
		if !decodeBody(w, r, &req) {
			return
		}
		resp, err := svc.Query(r.Context(), req)
		if err != nil {
			writeServiceError(w, r, "query", err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleSearch(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SearchRequest
		if !decodeBody(w, r, &req) {
			return
		}
		resp, err := svc.Search(r.Context(), req)
		if err != nil {
			writeServiceError(w, r, "search", err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleCategories(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp, err := svc.Categories(r.Context())
		if err != nil {
			writeServiceError(w, r, "categories", err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleFeedback(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req FeedbackRequest
		if !decodeBody(w, r, &req) {
			return
		}
		resp, err := svc.SubmitFeedback(r.Context(), req)
		if err != nil {
			writeServiceError(w, r, "feedback", err)
			return
		}
		writeJSON(w, http.StatusCreated, resp)
	}
}

func handleHealth(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Health(r.Context()))
	}
}

// decodeBody reads a JSON request body into v. On failure it writes a 422
// response and returns false.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpError(w, http.StatusUnprocessableEntity, codeValidation, "invalid request body: %v", err)
		return false
	}
	return true
}

// writeServiceError maps validation failures to 422 and everything else to a
// generic 500. Internal detail is logged, never returned.
func writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		httpError(w, http.StatusUnprocessableEntity, codeValidation, "%s", verr.Error())
		return
	}
	slog.Error("request failed", "op", op, "request_id", middleware.GetReqID(r.Context()), "error", err)
	httpError(w, http.StatusInternalServerError, codeInternal, "%s", internalErrorMessage)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}

func httpError(w http.ResponseWriter, code int, errCode string, format string, args ...any) {
	writeJSON(w, code, map[string]string{
		"error":   errCode,
		"message": fmt.Sprintf(format, args...),
	})
}
