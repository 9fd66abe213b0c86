package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCorrelationID(t *testing.T) {
	var seen string
	h := CorrelationID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = CorrelationIDFrom(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(CorrelationHeader, "corr-1")
	res := httptest.NewRecorder()
	h.ServeHTTP(res, req)
	assert.Equal(t, "corr-1", seen)
	assert.Equal(t, "corr-1", res.Header().Get(CorrelationHeader))

	res = httptest.NewRecorder()
	h.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, res.Header().Get(CorrelationHeader))
}

func TestLevelForStatus(t *testing.T) {
	tests := []struct {
		status int
		want   zerolog.Level
	}{
		{http.StatusOK, zerolog.DebugLevel},
		{http.StatusNoContent, zerolog.DebugLevel},
		{http.StatusBadRequest, zerolog.WarnLevel},
		{http.StatusNotFound, zerolog.WarnLevel},
		{http.StatusInternalServerError, zerolog.ErrorLevel},
		{http.StatusServiceUnavailable, zerolog.ErrorLevel},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LevelForStatus(tt.status), "status %d", tt.status)
	}
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var lines []map[string]any
	dec := json.NewDecoder(buf)
	for dec.More() {
		var line map[string]any
		require.NoError(t, dec.Decode(&line))
		lines = append(lines, line)
	}
	return lines
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)
	h := CorrelationID(RequestLogger(base, func() string { return "ep-7" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			zerolog.Ctx(r.Context()).Info().Msg("handling")
			w.WriteHeader(http.StatusNotFound)
		}),
	))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/episodes/x", nil)
	req.Header.Set(CorrelationHeader, "corr-2")
	h.ServeHTTP(httptest.NewRecorder(), req)

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	for _, line := range lines {
		assert.Equal(t, "corr-2", line["correlation_id"])
		assert.Equal(t, "ep-7", line["episode_id"])
		assert.Equal(t, "/api/v1/episodes/x", line["path"])
	}
	assert.Equal(t, "handling", lines[0]["message"])
	assert.Equal(t, "warn", lines[1]["level"])
	assert.Equal(t, 404.0, lines[1]["status"])
}

func TestRequestLogger_IdleAndPanic(t *testing.T) {
	var buf bytes.Buffer
	h := RequestLogger(zerolog.New(&buf), func() string { return "" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("boom")
		}),
	)

	res := httptest.NewRecorder()
	h.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusInternalServerError, res.Code)

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "error", lines[0]["level"])
	assert.Equal(t, "request panic", lines[0]["message"])
	assert.NotContains(t, lines[0], "episode_id")
}
