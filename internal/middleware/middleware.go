package middleware

import (
	"context"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// CorrelationHeader carries the request's correlation id in both directions.
const CorrelationHeader = "X-Correlation-ID"

type correlationKey struct{}

// CorrelationID reuses the caller's correlation id or mints one, echoes it on
// the response and stores it in the request context.
func CorrelationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(CorrelationHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(CorrelationHeader, id)
		ctx := context.WithValue(r.Context(), correlationKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// CorrelationIDFrom returns the id stored by CorrelationID, or "".
func CorrelationIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}

// EpisodeFunc names the episode the evaluator is serving, "" when idle.
type EpisodeFunc func() string

// RequestLogger puts a request-scoped logger into the context, tagged with
// the correlation id and the live episode, so handlers can use
// zerolog.Ctx(r.Context()). The completed request is logged on it at
// LevelForStatus.
func RequestLogger(base zerolog.Logger, episode EpisodeFunc) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			lc := base.With().
				Str("correlation_id", CorrelationIDFrom(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path)
			if episode != nil {
				if id := episode(); id != "" {
					lc = lc.Str("episode_id", id)
				}
			}
			logger := lc.Logger()

			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error().Interface("panic", rec).Msg("request panic")
					if ww.Status() == 0 {
						ww.WriteHeader(http.StatusInternalServerError)
					}
					return
				}
				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}
				logger.WithLevel(LevelForStatus(status)).
					Int("status", status).
					Int("bytes", ww.BytesWritten()).
					Dur("elapsed", time.Since(start)).
					Msg("request served")
			}()

			next.ServeHTTP(ww, r.WithContext(logger.WithContext(r.Context())))
		})
	}
}

// LevelForStatus maps a response status to its log level.
func LevelForStatus(status int) zerolog.Level {
	switch {
	case status >= 500:
		return zerolog.ErrorLevel
	case status >= 400:
		return zerolog.WarnLevel
	default:
		return zerolog.DebugLevel
	}
}
