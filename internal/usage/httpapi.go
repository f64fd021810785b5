package usage

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"tark/pkg/types"
)

// NewHTTPHandler builds the read-only usage accounting API: summary,
// per-model, per-mode, and per-session breakdowns, plus a cleanup
// endpoint. It is mounted standalone or alongside the Channel Mirror's
// webhook routes under a shared chi.Router.
func (s *Store) NewHTTPHandler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/usage/summary", s.handleSummary)
	r.Get("/usage/by-model", s.handleByModel)
	r.Get("/usage/by-mode", s.handleByMode)
	r.Get("/usage/by-session", s.handleBySession)
	r.Get("/usage/storage", s.handleStorage)
	r.Post("/usage/cleanup", s.handleCleanup)

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("elapsed", time.Since(start)).
			Msg("usage api request")
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Store) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.Summary(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Store) handleByModel(w http.ResponseWriter, r *http.Request) {
	rows, err := s.ByModel(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Store) handleByMode(w http.ResponseWriter, r *http.Request) {
	rows, err := s.ByMode(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Store) handleBySession(w http.ResponseWriter, r *http.Request) {
	rows, err := s.BySession(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Store) handleStorage(w http.ResponseWriter, r *http.Request) {
	stats, err := s.Storage(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Store) handleCleanup(w http.ResponseWriter, r *http.Request) {
	var req types.CleanupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	outcome, err := s.Cleanup(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}
