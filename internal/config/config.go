package config

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// Config holds all evaluator configuration
type Config struct {
	// Policy settings
	Policy    string `mapstructure:"policy"`
	ModelDir  string `mapstructure:"model_dir"`
	EnableICM bool   `mapstructure:"enable_icm"`

	// Environment settings
	GridSize   int     `mapstructure:"grid_size"`
	NDrones    int     `mapstructure:"n_drones"`
	NAnomalous int     `mapstructure:"n_anamolous"`
	StepSize   float64 `mapstructure:"step_size"`
	MaxSteps   int     `mapstructure:"max_steps"`

	// Rollout settings
	PrintEvery int   `mapstructure:"print_every"`
	Seed       int64 `mapstructure:"seed"`

	// Sinks
	ResultsDSN  string `mapstructure:"results_dsn"`
	NATSURL     string `mapstructure:"nats_url"`
	NATSSubject string `mapstructure:"nats_subject"`
	MetricsAddr string `mapstructure:"metrics_addr"`

	// Logging
	LogLevel string `mapstructure:"log_level"`
}

// Default returns a config with the defaults of the evaluation script
func Default() *Config {
	return &Config{
		Policy:      "MLP",
		ModelDir:    "A2C_models",
		EnableICM:   false,
		GridSize:    5,
		NDrones:     3,
		NAnomalous:  5,
		StepSize:    1.0,
		MaxSteps:    0, // derived from the grid
		PrintEvery:  100,
		Seed:        0, // time-seeded
		NATSSubject: "a2c.episodes",
		LogLevel:    "info",
	}
}

// Load reads every key from v on top of the defaults. Keys are the flag
// names, so flags, A2C_* environment variables and config files all land
// in the same place.
func Load(v *viper.Viper) (*Config, error) {
	cfg := Default()

	if v.IsSet("policy") {
		cfg.Policy = v.GetString("policy")
	}
	if v.IsSet("model_dir") {
		cfg.ModelDir = v.GetString("model_dir")
	}
	if v.IsSet("enable_icm") {
		icm, err := ParseBool(v.GetString("enable_icm"))
		if err != nil {
			return nil, fmt.Errorf("enable_icm: %w", err)
		}
		cfg.EnableICM = icm
	}
	if v.IsSet("grid_size") {
		cfg.GridSize = v.GetInt("grid_size")
	}
	if v.IsSet("n_drones") {
		cfg.NDrones = v.GetInt("n_drones")
	}
	if v.IsSet("n_anamolous") {
		cfg.NAnomalous = v.GetInt("n_anamolous")
	}
	if v.IsSet("step_size") {
		cfg.StepSize = v.GetFloat64("step_size")
	}
	if v.IsSet("max_steps") {
		cfg.MaxSteps = v.GetInt("max_steps")
	}
	if v.IsSet("print_every") {
		cfg.PrintEvery = v.GetInt("print_every")
	}
	if v.IsSet("seed") {
		cfg.Seed = v.GetInt64("seed")
	}
	if v.IsSet("results_dsn") {
		cfg.ResultsDSN = v.GetString("results_dsn")
	}
	if v.IsSet("nats_url") {
		cfg.NATSURL = v.GetString("nats_url")
	}
	if v.IsSet("nats_subject") {
		cfg.NATSSubject = v.GetString("nats_subject")
	}
	if v.IsSet("metrics_addr") {
		cfg.MetricsAddr = v.GetString("metrics_addr")
	}
	if v.IsSet("log_level") {
		cfg.LogLevel = v.GetString("log_level")
	}

	return cfg, nil
}

// Validate checks the ambient settings. Grid size, drone count and anomaly
// count are passed through unchecked.
func (c *Config) Validate() error {
	if c.Policy == "" {
		return fmt.Errorf("policy is required")
	}
	if c.PrintEvery <= 0 {
		return fmt.Errorf("print_every must be positive")
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level %q: %w", c.LogLevel, err)
	}
	return nil
}

// ICMPrefix is the checkpoint filename prefix selected by the curiosity flag.
func (c *Config) ICMPrefix() string {
	if c.EnableICM {
		return "ICM_"
	}
	return ""
}
