package config

import (
	stderrors "errors"
	"io/fs"
	"log/slog"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"gocausal/domain/causal"
	"gocausal/domain/diagnostics"
	"gocausal/domain/estimation"
	"gocausal/internal/errors"
	"gocausal/internal/logging"
)

// Config represents the complete engine configuration
type Config struct {
	Estimation  EstimationConfig  `envPrefix:"CAUSAL_"`
	Diagnostics DiagnosticsConfig `envPrefix:"CAUSAL_"`
	Log         LogConfig         `envPrefix:"CAUSAL_LOG_"`
}

// EstimationConfig holds estimator settings
type EstimationConfig struct {
	Kind                string   `env:"ESTIMATOR"              envDefault:"aipw"`
	EffectTypes         []string `env:"EFFECT_TYPES"           envDefault:"diff" envSeparator:","`
	ClipLower           float64  `env:"CLIP_LOWER"             envDefault:"0"`
	ClipUpper           float64  `env:"CLIP_UPPER"             envDefault:"1"`
	Stabilized          bool     `env:"STABILIZED"`
	MinEffectiveSupport float64  `env:"MIN_EFFECTIVE_SUPPORT"  envDefault:"5"`
	Folds               int      `env:"FOLDS"                  envDefault:"5"`
	Seed                uint64   `env:"SEED"                   envDefault:"42"`
	MaxIterations       int      `env:"TMLE_MAX_ITERATIONS"    envDefault:"100"`
	Tolerance           float64  `env:"TMLE_TOLERANCE"         envDefault:"1e-8"`
	ConfidenceLevel     float64  `env:"CONFIDENCE_LEVEL"       envDefault:"0.95"`
}

// DiagnosticsConfig holds analyzer thresholds, shared by the weight checks
// that run during estimation
type DiagnosticsConfig struct {
	Epsilon            float64 `env:"EPSILON"             envDefault:"0.01"`
	OverlapThreshold   float64 `env:"OVERLAP_THRESHOLD"   envDefault:"0.5"`
	ExtremeWeightZ     float64 `env:"EXTREME_WEIGHT_Z"    envDefault:"3"`
	MaxWeight          float64 `env:"MAX_WEIGHT"          envDefault:"100"`
	DominanceThreshold float64 `env:"DOMINANCE_THRESHOLD" envDefault:"0.8"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string `env:"LEVEL"  envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"text"`
}

// Load reads the optional dotenv files (".env" when none are named), parses
// CAUSAL_* variables and validates the result. Variables already present in
// the environment win over dotenv values.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		if err := godotenv.Load(); err != nil && !stderrors.Is(err, fs.ErrNotExist) {
			return nil, errors.Wrap(errors.ConfigInvalid(err.Error()), "failed to read .env")
		}
	} else if err := godotenv.Load(files...); err != nil {
		return nil, errors.Wrap(errors.ConfigInvalid(err.Error()), "failed to read env files")
	}
	return FromEnv()
}

// FromEnv parses and validates the process environment only.
func FromEnv() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, errors.Wrap(errors.ConfigInvalid(err.Error()), "failed to parse environment")
	}
	if err := validateConfig(cfg); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return cfg, nil
}

// Default returns the configuration produced by an empty environment.
func Default() *Config {
	cfg := &Config{}
	// Defaults are all tag-declared, so parsing an empty environment cannot fail.
	_ = env.ParseWithOptions(cfg, env.Options{Environment: map[string]string{}})
	return cfg
}

func validateConfig(cfg *Config) error {
	if _, err := causal.ParseEstimatorKind(cfg.Estimation.Kind); err != nil {
		return errors.ConfigInvalidf("CAUSAL_ESTIMATOR: %v", err)
	}
	if len(cfg.Estimation.EffectTypes) == 0 {
		return errors.ConfigInvalid("CAUSAL_EFFECT_TYPES must name at least one effect type")
	}
	if _, err := cfg.EffectTypes(); err != nil {
		return errors.ConfigInvalidf("CAUSAL_EFFECT_TYPES: %v", err)
	}
	if cfg.Estimation.Folds < 2 {
		return errors.ConfigInvalid("CAUSAL_FOLDS must be at least 2")
	}
	if cfg.Estimation.MaxIterations < 1 {
		return errors.ConfigInvalid("CAUSAL_TMLE_MAX_ITERATIONS must be at least 1")
	}
	if err := cfg.EstimationOptions(nil).Validate(); err != nil {
		return errors.ConfigInvalidf("estimation: %v", err)
	}
	if err := cfg.DiagnosticsConfig().Validate(); err != nil {
		return errors.ConfigInvalidf("diagnostics: %v", err)
	}
	if _, err := logging.ParseLevel(cfg.Log.Level); err != nil {
		return err
	}
	if _, err := logging.ParseFormat(cfg.Log.Format); err != nil {
		return err
	}
	return nil
}

// EstimatorKind returns the validated estimator kind.
func (c *Config) EstimatorKind() causal.EstimatorKind {
	kind, _ := causal.ParseEstimatorKind(c.Estimation.Kind)
	return kind
}

// EffectTypes parses the configured effect type names.
func (c *Config) EffectTypes() ([]causal.EffectType, error) {
	out := make([]causal.EffectType, 0, len(c.Estimation.EffectTypes))
	for _, name := range c.Estimation.EffectTypes {
		et, err := causal.ParseEffectType(name)
		if err != nil {
			return nil, err
		}
		out = append(out, et)
	}
	return out, nil
}

// EstimationOptions converts to estimator options using logger.
func (c *Config) EstimationOptions(logger *slog.Logger) estimation.Options {
	e := c.Estimation
	return estimation.Options{
		ClipLower:           e.ClipLower,
		ClipUpper:           e.ClipUpper,
		Stabilized:          e.Stabilized,
		MinEffectiveSupport: e.MinEffectiveSupport,
		ExtremeWeightZ:      c.Diagnostics.ExtremeWeightZ,
		MaxWeight:           c.Diagnostics.MaxWeight,
		Folds:               e.Folds,
		Seed:                e.Seed,
		MaxIterations:       e.MaxIterations,
		Tolerance:           e.Tolerance,
		ConfidenceLevel:     e.ConfidenceLevel,
		Logger:              logger,
	}
}

// DiagnosticsConfig converts to analyzer thresholds.
func (c *Config) DiagnosticsConfig() diagnostics.Config {
	d := c.Diagnostics
	return diagnostics.Config{
		Epsilon:            d.Epsilon,
		OverlapThreshold:   d.OverlapThreshold,
		ExtremeWeightZ:     d.ExtremeWeightZ,
		MaxWeight:          d.MaxWeight,
		DominanceThreshold: d.DominanceThreshold,
	}
}
