package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// Collector records rollout metrics on a private Prometheus registry and
// mirrors episode-level ones as log lines.
type Collector struct {
	logger   zerolog.Logger
	registry *prometheus.Registry

	steps          prometheus.Counter
	episodes       *prometheus.CounterVec
	episodeReward  prometheus.Gauge
	episodeSteps   prometheus.Gauge
	inferenceTime  prometheus.Histogram
	anomaliesFound prometheus.Gauge
}

func NewCollector(logger zerolog.Logger) *Collector {
	c := &Collector{
		logger:   logger,
		registry: prometheus.NewRegistry(),
		steps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "a2c_eval_steps_total",
			Help: "Environment steps taken across all rollouts",
		}),
		episodes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "a2c_eval_episodes_total",
			Help: "Rollouts finished, by outcome",
		}, []string{"outcome"}),
		episodeReward: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "a2c_eval_episode_reward",
			Help: "Total reward of the most recent rollout",
		}),
		episodeSteps: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "a2c_eval_episode_steps",
			Help: "Length of the most recent rollout",
		}),
		inferenceTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "a2c_eval_inference_seconds",
			Help:    "Per-drone policy forward pass latency",
			Buckets: prometheus.ExponentialBuckets(1e-6, 4, 10),
		}),
		anomaliesFound: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "a2c_eval_anomalies_found",
			Help: "Anomalous cells found in the most recent rollout",
		}),
	}
	c.registry.MustRegister(c.steps, c.episodes, c.episodeReward, c.episodeSteps, c.inferenceTime, c.anomaliesFound)
	return c
}

// Registry exposes the collector's registry for the /metrics handler.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Track one environment step
func (c *Collector) StepTaken() {
	c.steps.Inc()
}

// Track a single forward pass
func (c *Collector) Inference(latency time.Duration) {
	c.inferenceTime.Observe(latency.Seconds())
}

// Track a finished rollout
func (c *Collector) EpisodeFinished(episodeID string, steps int, reward float64, anomalies int, err error) {
	outcome := "done"
	if err != nil {
		outcome = "error"
	}
	c.episodes.WithLabelValues(outcome).Inc()
	c.episodeReward.Set(reward)
	c.episodeSteps.Set(float64(steps))
	c.anomaliesFound.Set(float64(anomalies))

	c.logger.Info().
		Str("metric", "episode_finished").
		Str("episode_id", episodeID).
		Str("outcome", outcome).
		Int("steps", steps).
		Float64("total_reward", reward).
		Int("anomalies_found", anomalies).
		Msg("Episode metric")
}
