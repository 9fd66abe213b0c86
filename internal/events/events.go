package events

import "context"

// Publisher is implemented by downstream fan-out mechanisms.
type Publisher interface {
	PublishEpisode(ctx context.Context, payload EpisodeEvent) error
}

// EpisodeEvent is emitted once a rollout finishes or aborts.
type EpisodeEvent struct {
	EpisodeID      string  `json:"episode_id"`
	Policy         string  `json:"policy"`
	EnableICM      bool    `json:"enable_icm"`
	GridSize       int     `json:"grid_size"`
	NDrones        int     `json:"n_drones"`
	NAnomalous     int     `json:"n_anamolous"`
	Steps          int     `json:"steps"`
	TotalReward    float64 `json:"total_reward"`
	AnomaliesFound int     `json:"anomalies_found"`
	Done           bool    `json:"done"`
	LastError      string  `json:"last_error,omitempty"`
}

// NoopPublisher drops every event; useful for tests.
type NoopPublisher struct{}

// PublishEpisode satisfies Publisher.
func (NoopPublisher) PublishEpisode(context.Context, EpisodeEvent) error { return nil }
