package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cartridge/evaluator/internal/actor"
	"github.com/cartridge/evaluator/internal/config"
	"github.com/cartridge/evaluator/internal/env"
	"github.com/cartridge/evaluator/internal/events"
	httpServer "github.com/cartridge/evaluator/internal/http"
	"github.com/cartridge/evaluator/internal/metrics"
	"github.com/cartridge/evaluator/internal/policy"
	"github.com/cartridge/evaluator/internal/storage"
)

var (
	v       = viper.New()
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "a2c-eval",
	Short: "A2C drone policy test",
	Long: `Evaluates pre-trained multi-agent A2C policies in the drone grid world.

One network per drone is loaded from
{model_dir}/{policy}_policy/A2C_drone_{ICM_}{i}.bin and the drones act until
the environment reports the episode done.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: readConfigFile,
	RunE:              runEval,
}

var initModelsCmd = &cobra.Command{
	Use:   "init-models",
	Short: "Write randomly initialised checkpoints for the configured policy",
	RunE:  runInitModels,
}

func init() {
	def := config.Default()
	flags := rootCmd.PersistentFlags()

	flags.StringVar(&cfgFile, "config", "", "Config file (yaml, toml, json)")

	// Policy settings
	flags.String("policy", def.Policy, "CNN, MLP, Attn policy")
	flags.String("model_dir", def.ModelDir, "Directory holding {policy}_policy checkpoints")
	flags.Var(config.NewBoolValue(def.EnableICM), "enable_icm",
		"use intrinsic curiosity module, one of `"+config.BoolUsageValues+"`")

	// Environment settings
	flags.Int("grid_size", def.GridSize, "Grid size, Default: 5x5")
	flags.Int("n_drones", def.NDrones, "number of drones")
	flags.Int("n_anamolous", def.NAnomalous, "number of anomalous cells in environment")
	flags.Float64("step_size", def.StepSize, "Cells a drone moves per step")
	flags.Int("max_steps", def.MaxSteps, "Episode step cap (0 derives it from the grid)")

	// Rollout settings
	flags.Int("print_every", def.PrintEvery, "Print a diagnostic snapshot every N steps")
	flags.Int64("seed", def.Seed, "Seed for environment and action sampling (0 for time-seeded)")

	// Sinks
	flags.String("results_dsn", def.ResultsDSN, "SQLite path or postgres:// URL for episode results")
	flags.String("nats_url", def.NATSURL, "NATS server URL for episode events")
	flags.String("nats_subject", def.NATSSubject, "NATS subject for episode events")
	flags.String("metrics_addr", def.MetricsAddr, "Listen address for /metrics and the status API")

	// Logging
	flags.String("log_level", def.LogLevel, "Log level (trace, debug, info, warn, error)")

	// Bind flags to viper for environment variable support
	v.BindPFlags(flags)
	v.SetEnvPrefix("A2C")
	v.AutomaticEnv()

	rootCmd.AddCommand(initModelsCmd)
}

func readConfigFile(cmd *cobra.Command, args []string) error {
	if cfgFile == "" {
		return nil
	}
	v.SetConfigFile(cfgFile)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config %s: %w", cfgFile, err)
	}
	return nil
}

func loadConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(v)
	if err != nil {
		return nil, zerolog.Logger{}, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, zerolog.Logger{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, newLogger(cfg.LogLevel), nil
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(lvl).
		With().Timestamp().Logger()
}

func newEnvironment(cfg *config.Config) (*env.DroneEnv, error) {
	return env.NewDroneEnv(env.Options{
		RowCount:   cfg.GridSize,
		ColCount:   cfg.GridSize,
		StepSize:   cfg.StepSize,
		NAnomalous: cfg.NAnomalous,
		NDrones:    cfg.NDrones,
		MaxSteps:   cfg.MaxSteps,
		Seed:       uint64(cfg.Seed),
	})
}

func modelSpec(cfg *config.Config, e env.Environment) (policy.ModelSpec, error) {
	arch, err := policy.ParseArchitecture(cfg.Policy)
	if err != nil {
		return policy.ModelSpec{}, err
	}
	return policy.ModelSpec{
		ModelDir:   cfg.ModelDir,
		Arch:       arch,
		ICM:        cfg.EnableICM,
		StateSize:  e.StateSize(),
		NDrones:    e.NumDrones(),
		ActionSize: e.ActionSize(),
	}, nil
}

func runEval(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	environment, err := newEnvironment(cfg)
	if err != nil {
		return fmt.Errorf("failed to create environment: %w", err)
	}
	spec, err := modelSpec(cfg, environment)
	if err != nil {
		return err
	}

	nets, err := policy.LoadModels(spec)
	if err != nil {
		return fmt.Errorf("failed to load models: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "models loaded")
	logger.Info().
		Str("policy", string(spec.Arch)).
		Bool("enable_icm", cfg.EnableICM).
		Int("n_drones", spec.NDrones).
		Str("model_dir", cfg.ModelDir).
		Msg("Models loaded")

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
			logger.Info().Msg("Shutdown signal received, stopping rollout")
			cancel()
		case <-ctx.Done():
		}
	}()

	var store storage.ResultStore = storage.NoopStore{}
	if cfg.ResultsDSN != "" {
		sqlStore, err := storage.Open(ctx, cfg.ResultsDSN)
		if err != nil {
			return err
		}
		store = sqlStore
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Msg("Error closing results store")
		}
	}()

	var publisher events.Publisher = events.NoopPublisher{}
	if cfg.NATSURL != "" {
		natsPub, err := events.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubject, logger)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATSURL, err)
		}
		defer natsPub.Close()
		publisher = natsPub
	}

	seed := uint64(cfg.Seed)
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	collector := metrics.NewCollector(logger)

	a, err := actor.New(cfg, environment, nets, actor.Deps{
		Out:       cmd.OutOrStdout(),
		Logger:    &logger,
		Metrics:   collector,
		Publisher: publisher,
		Store:     store,
		Sampler:   policy.NewSampler(seed),
	})
	if err != nil {
		return fmt.Errorf("failed to create actor: %w", err)
	}

	if cfg.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           httpServer.NewServer(a, store, collector.Registry(), logger).Routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info().Str("addr", cfg.MetricsAddr).Msg("metrics HTTP server starting")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("http server failed")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error().Err(err).Msg("graceful shutdown failed")
			}
		}()
	}

	res, err := a.Run(ctx)
	if err != nil {
		return fmt.Errorf("rollout failed after %d steps: %w", res.Steps, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Episode finished in %d steps, total reward %.2f\n", res.Steps, res.TotalReward)
	return nil
}

func runInitModels(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	environment, err := newEnvironment(cfg)
	if err != nil {
		return fmt.Errorf("failed to create environment: %w", err)
	}
	spec, err := modelSpec(cfg, environment)
	if err != nil {
		return err
	}

	seed := uint64(cfg.Seed)
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	paths, err := policy.InitModels(spec, seed)
	if err != nil {
		return err
	}
	for _, p := range paths {
		logger.Info().Str("path", p).Msg("Wrote checkpoint")
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
