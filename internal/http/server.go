package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/cartridge/evaluator/internal/actor"
	"github.com/cartridge/evaluator/internal/middleware"
	"github.com/cartridge/evaluator/internal/storage"
)

// StatusSource reports the live rollout status.
type StatusSource interface {
	Status() actor.Status
}

// Server exposes health, metrics and episode results over HTTP.
type Server struct {
	status   StatusSource
	store    storage.ResultStore
	registry *prometheus.Registry
	logger   zerolog.Logger
}

// NewServer constructs a Server instance.
func NewServer(status StatusSource, store storage.ResultStore, registry *prometheus.Registry, logger zerolog.Logger) *Server {
	return &Server{status: status, store: store, registry: registry, logger: logger}
}

// Routes builds the HTTP router for the evaluator.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.CorrelationID)
	r.Use(middleware.RequestLogger(s.logger, s.liveEpisode))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/episodes", s.handleListEpisodes)
		r.Get("/episodes/{episodeID}", s.handleGetEpisode)
	})
	return r
}

func (s *Server) liveEpisode() string {
	if st := s.status.Status(); st.Running {
		return st.EpisodeID
	}
	return ""
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.status.Status())
}

func (s *Server) handleListEpisodes(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	episodes, err := s.store.ListEpisodes(r.Context(), limit)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if episodes == nil {
		episodes = []storage.Episode{}
	}
	s.writeJSON(w, http.StatusOK, episodes)
}

func (s *Server) handleGetEpisode(w http.ResponseWriter, r *http.Request) {
	episode, err := s.store.GetEpisode(r.Context(), chi.URLParam(r, "episodeID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, episode)
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("request failed")
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode response")
	}
}
