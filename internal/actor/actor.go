package actor

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cartridge/evaluator/internal/config"
	"github.com/cartridge/evaluator/internal/env"
	"github.com/cartridge/evaluator/internal/events"
	"github.com/cartridge/evaluator/internal/metrics"
	"github.com/cartridge/evaluator/internal/policy"
	"github.com/cartridge/evaluator/internal/storage"
)

// Deps are the optional collaborators of an Actor. Nil fields fall back to
// stdout, a disabled logger, no-op sinks and a time-seeded sampler.
type Deps struct {
	Out       io.Writer
	Logger    *zerolog.Logger
	Metrics   *metrics.Collector
	Publisher events.Publisher
	Store     storage.ResultStore
	Sampler   *policy.Sampler
}

// Result summarises one rollout.
type Result struct {
	EpisodeID      string
	Steps          int
	TotalReward    float64
	AnomaliesFound int
	Done           bool
}

// Status is a point-in-time view of the rollout, safe to read concurrently.
type Status struct {
	EpisodeID   string  `json:"episode_id"`
	Running     bool    `json:"running"`
	Step        int     `json:"step"`
	TotalReward float64 `json:"total_reward"`
	Done        bool    `json:"done"`
}

// Actor rolls one pre-trained network per drone out against an environment
type Actor struct {
	cfg  *config.Config
	arch policy.Architecture
	env  env.Environment
	nets []policy.Network

	out       io.Writer
	logger    zerolog.Logger
	metrics   *metrics.Collector
	publisher events.Publisher
	store     storage.ResultStore
	sampler   *policy.Sampler
	now       func() time.Time

	mu     sync.RWMutex
	status Status
}

// New creates an actor. nets must hold one network per drone.
func New(cfg *config.Config, environment env.Environment, nets []policy.Network, deps Deps) (*Actor, error) {
	arch, err := policy.ParseArchitecture(cfg.Policy)
	if err != nil {
		return nil, err
	}
	if len(nets) != environment.NumDrones() {
		return nil, fmt.Errorf("have %d networks for %d drones", len(nets), environment.NumDrones())
	}

	a := &Actor{
		cfg:       cfg,
		arch:      arch,
		env:       environment,
		nets:      nets,
		out:       deps.Out,
		metrics:   deps.Metrics,
		publisher: deps.Publisher,
		store:     deps.Store,
		sampler:   deps.Sampler,
		now:       time.Now,
	}
	if a.out == nil {
		a.out = os.Stdout
	}
	if deps.Logger != nil {
		a.logger = *deps.Logger
	} else {
		a.logger = zerolog.Nop()
	}
	if a.metrics == nil {
		a.metrics = metrics.NewCollector(a.logger)
	}
	if a.publisher == nil {
		a.publisher = events.NoopPublisher{}
	}
	if a.store == nil {
		a.store = storage.NoopStore{}
	}
	if a.sampler == nil {
		a.sampler = policy.NewSampler(uint64(time.Now().UnixNano()))
	}
	return a, nil
}

// WithNow allows tests to override the time source.
func (a *Actor) WithNow(now func() time.Time) {
	a.now = now
}

// Status returns the current rollout status.
func (a *Actor) Status() Status {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.status
}

// Run plays one episode from reset until the environment reports done.
// Errors from the networks or the environment abort the rollout.
func (a *Actor) Run(ctx context.Context) (Result, error) {
	res := Result{EpisodeID: uuid.NewString()}
	started := a.now()
	a.setStatus(Status{EpisodeID: res.EpisodeID, Running: true})

	logger := a.logger.With().Str("episode_id", res.EpisodeID).Logger()
	logger.Info().
		Str("policy", string(a.arch)).
		Int("n_drones", len(a.nets)).
		Msg("Starting rollout")

	err := a.rollout(ctx, &res, logger)
	a.setStatus(Status{EpisodeID: res.EpisodeID, Step: res.Steps, TotalReward: res.TotalReward, Done: res.Done})

	if found, ok := a.env.(interface{ AnomaliesFound() int }); ok {
		res.AnomaliesFound = found.AnomaliesFound()
	}
	a.record(ctx, res, started, err, logger)

	if err != nil {
		return res, err
	}
	logger.Info().
		Int("steps", res.Steps).
		Float64("total_reward", res.TotalReward).
		Msg("Rollout completed")
	return res, nil
}

func (a *Actor) rollout(ctx context.Context, res *Result, logger zerolog.Logger) error {
	obsSize := a.env.StateSize()
	nDrones := a.env.NumDrones()

	obs := a.env.Reset()
	positions := a.env.DronePositions()
	in, err := policy.PrepareInputs(a.arch, a.cfg.GridSize, obs, positions, nDrones, obsSize)
	if err != nil {
		return fmt.Errorf("failed to prepare inputs: %w", err)
	}

	writeSnapshot(a.out, 1, positions, nil, obs, a.cfg.GridSize)

	for step := 0; !res.Done; step++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		actions, err := a.selectActions(in)
		if err != nil {
			return fmt.Errorf("step %d: %w", step+1, err)
		}

		stepRes, err := a.env.Step(actions)
		if err != nil {
			return fmt.Errorf("failed to step environment at step %d: %w", step+1, err)
		}
		a.metrics.StepTaken()

		res.Steps = step + 1
		res.TotalReward += stepRes.Reward
		res.Done = stepRes.Done

		positions = a.env.DronePositions()
		in, err = policy.PrepareInputs(a.arch, a.cfg.GridSize, stepRes.Observation, positions, nDrones, obsSize)
		if err != nil {
			return fmt.Errorf("failed to prepare inputs at step %d: %w", step+1, err)
		}

		if (step+1)%a.cfg.PrintEvery == 0 {
			writeSnapshot(a.out, step+1, positions, actions, stepRes.Observation, a.cfg.GridSize)
		}

		logger.Trace().
			Int("step", step+1).
			Ints("actions", actions).
			Float64("reward", stepRes.Reward).
			Msg("Step")

		a.setStatus(Status{EpisodeID: res.EpisodeID, Running: true, Step: res.Steps, TotalReward: res.TotalReward})
	}
	return nil
}

// selectActions runs every drone's network on the shared inputs in order and
// samples one action each.
func (a *Actor) selectActions(in policy.Inputs) ([]int, error) {
	actions := make([]int, len(a.nets))
	for i, net := range a.nets {
		start := time.Now()
		logits, _, err := net.Forward(in)
		a.metrics.Inference(time.Since(start))
		if err != nil {
			return nil, fmt.Errorf("drone %d policy: %w", i, err)
		}
		actions[i] = a.sampler.Sample(logits)
	}
	return actions, nil
}

// record fans the episode summary out to the store, events and metrics.
// Sink failures are logged, never returned.
func (a *Actor) record(ctx context.Context, res Result, started time.Time, runErr error, logger zerolog.Logger) {
	lastError := ""
	if runErr != nil {
		lastError = runErr.Error()
	}
	a.metrics.EpisodeFinished(res.EpisodeID, res.Steps, res.TotalReward, res.AnomaliesFound, runErr)

	// The rollout context may already be cancelled; sinks still get a chance.
	sinkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	episode := storage.Episode{
		ID:             res.EpisodeID,
		Policy:         string(a.arch),
		EnableICM:      a.cfg.EnableICM,
		GridSize:       a.cfg.GridSize,
		NDrones:        len(a.nets),
		NAnomalous:     a.cfg.NAnomalous,
		Steps:          res.Steps,
		TotalReward:    res.TotalReward,
		AnomaliesFound: res.AnomaliesFound,
		Done:           res.Done,
		LastError:      lastError,
		StartedAt:      started,
		FinishedAt:     a.now(),
	}
	if err := a.store.SaveEpisode(sinkCtx, episode); err != nil {
		logger.Error().Err(err).Msg("Failed to save episode result")
	}

	event := events.EpisodeEvent{
		EpisodeID:      res.EpisodeID,
		Policy:         string(a.arch),
		EnableICM:      a.cfg.EnableICM,
		GridSize:       a.cfg.GridSize,
		NDrones:        len(a.nets),
		NAnomalous:     a.cfg.NAnomalous,
		Steps:          res.Steps,
		TotalReward:    res.TotalReward,
		AnomaliesFound: res.AnomaliesFound,
		Done:           res.Done,
		LastError:      lastError,
	}
	if err := a.publisher.PublishEpisode(sinkCtx, event); err != nil {
		logger.Error().Err(err).Msg("Failed to publish episode event")
	}
}

func (a *Actor) setStatus(s Status) {
	a.mu.Lock()
	a.status = s
	a.mu.Unlock()
}
