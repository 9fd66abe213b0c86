package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartridge/evaluator/internal/actor"
	"github.com/cartridge/evaluator/internal/metrics"
	"github.com/cartridge/evaluator/internal/storage"
)

type staticStatus struct{ s actor.Status }

func (f staticStatus) Status() actor.Status { return f.s }

func newTestServer(t *testing.T) (*Server, *storage.SQLStore, *metrics.Collector) {
	t.Helper()
	store, err := storage.Open(context.Background(), filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	logger := zerolog.New(io.Discard)
	collector := metrics.NewCollector(logger)
	status := staticStatus{actor.Status{EpisodeID: "ep-live", Running: true, Step: 12}}
	return NewServer(status, store, collector.Registry(), logger), store, collector
}

func TestHealthAndStatus(t *testing.T) {
	server, _, _ := newTestServer(t)

	res := httptest.NewRecorder()
	server.Routes().ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, res.Code)
	assert.NotEmpty(t, res.Header().Get("X-Correlation-ID"))

	res = httptest.NewRecorder()
	server.Routes().ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))
	require.Equal(t, http.StatusOK, res.Code)
	var status actor.Status
	require.NoError(t, json.NewDecoder(res.Body).Decode(&status))
	assert.Equal(t, "ep-live", status.EpisodeID)
	assert.Equal(t, 12, status.Step)
}

func TestEpisodes(t *testing.T) {
	server, store, _ := newTestServer(t)
	now := time.Now().UTC()
	require.NoError(t, store.SaveEpisode(context.Background(), storage.Episode{
		ID: "ep-1", Policy: "CNN", GridSize: 5, NDrones: 3, Steps: 9, Done: true,
		StartedAt: now.Add(-time.Second), FinishedAt: now,
	}))

	res := httptest.NewRecorder()
	server.Routes().ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/api/v1/episodes?limit=5", nil))
	require.Equal(t, http.StatusOK, res.Code)
	var episodes []storage.Episode
	require.NoError(t, json.NewDecoder(res.Body).Decode(&episodes))
	require.Len(t, episodes, 1)
	assert.Equal(t, "CNN", episodes[0].Policy)

	res = httptest.NewRecorder()
	server.Routes().ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/api/v1/episodes/ep-1", nil))
	assert.Equal(t, http.StatusOK, res.Code)

	res = httptest.NewRecorder()
	server.Routes().ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/api/v1/episodes/nope", nil))
	assert.Equal(t, http.StatusNotFound, res.Code)

	res = httptest.NewRecorder()
	server.Routes().ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/api/v1/episodes?limit=-1", nil))
	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	server, _, collector := newTestServer(t)
	collector.StepTaken()

	res := httptest.NewRecorder()
	server.Routes().ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, res.Code)
	assert.True(t, strings.Contains(res.Body.String(), "a2c_eval_steps_total 1"))
}
