package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates the requested episode does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates an episode id that is already stored.
	ErrConflict = errors.New("conflict")
)

// ResultStore captures the persistence operations the evaluator relies on.
type ResultStore interface {
	SaveEpisode(ctx context.Context, episode Episode) error
	GetEpisode(ctx context.Context, id string) (Episode, error)
	// ListEpisodes returns the most recent episodes first.
	ListEpisodes(ctx context.Context, limit int) ([]Episode, error)
	Close() error
}

// Episode records the outcome of one rollout.
type Episode struct {
	ID             string    `json:"id"`
	Policy         string    `json:"policy"`
	EnableICM      bool      `json:"enable_icm"`
	GridSize       int       `json:"grid_size"`
	NDrones        int       `json:"n_drones"`
	NAnomalous     int       `json:"n_anamolous"`
	Steps          int       `json:"steps"`
	TotalReward    float64   `json:"total_reward"`
	AnomaliesFound int       `json:"anomalies_found"`
	Done           bool      `json:"done"`
	LastError      string    `json:"last_error,omitempty"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
}

// NoopStore discards everything; used when no results DSN is configured.
type NoopStore struct{}

func (NoopStore) SaveEpisode(context.Context, Episode) error { return nil }

func (NoopStore) GetEpisode(context.Context, string) (Episode, error) {
	return Episode{}, ErrNotFound
}

func (NoopStore) ListEpisodes(context.Context, int) ([]Episode, error) { return nil, nil }

func (NoopStore) Close() error { return nil }
