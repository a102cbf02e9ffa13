package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gocausal/domain/causal"
	"gocausal/domain/diagnostics"
	"gocausal/domain/estimation"
	"gocausal/internal/errors"
)

func TestDefault_MatchesDomainDefaults(t *testing.T) {
	cfg := Default()
	require.NoError(t, validateConfig(cfg))

	assert.Equal(t, causal.KindAIPW, cfg.EstimatorKind())
	assert.Equal(t, diagnostics.DefaultConfig(), cfg.DiagnosticsConfig())

	opts := cfg.EstimationOptions(nil)
	want := estimation.DefaultOptions()
	assert.Equal(t, want, opts)

	types, err := cfg.EffectTypes()
	require.NoError(t, err)
	assert.Equal(t, []causal.EffectType{causal.Diff}, types)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("CAUSAL_ESTIMATOR", "r-learner")
	t.Setenv("CAUSAL_EFFECT_TYPES", "diff,ratio")
	t.Setenv("CAUSAL_CLIP_LOWER", "0.05")
	t.Setenv("CAUSAL_CLIP_UPPER", "0.95")
	t.Setenv("CAUSAL_FOLDS", "3")
	t.Setenv("CAUSAL_SEED", "7")
	t.Setenv("CAUSAL_OVERLAP_THRESHOLD", "0.7")
	t.Setenv("CAUSAL_LOG_FORMAT", "json")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, causal.KindRLearner, cfg.EstimatorKind())

	types, err := cfg.EffectTypes()
	require.NoError(t, err)
	assert.Equal(t, []causal.EffectType{causal.Diff, causal.Ratio}, types)

	opts := cfg.EstimationOptions(nil)
	assert.Equal(t, 0.05, opts.ClipLower)
	assert.Equal(t, 0.95, opts.ClipUpper)
	assert.Equal(t, 3, opts.Folds)
	assert.Equal(t, uint64(7), opts.Seed)
	assert.Equal(t, 0.7, cfg.DiagnosticsConfig().OverlapThreshold)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestFromEnv_Validation(t *testing.T) {
	tests := []struct {
		name, key, value string
	}{
		{"unknown estimator", "CAUSAL_ESTIMATOR", "matching"},
		{"unknown effect", "CAUSAL_EFFECT_TYPES", "diff,hazard"},
		{"single fold", "CAUSAL_FOLDS", "1"},
		{"no iterations", "CAUSAL_TMLE_MAX_ITERATIONS", "0"},
		{"inverted clip", "CAUSAL_CLIP_LOWER", "0.7"},
		{"epsilon too large", "CAUSAL_EPSILON", "0.5"},
		{"bad log level", "CAUSAL_LOG_LEVEL", "loud"},
		{"unparseable folds", "CAUSAL_FOLDS", "five"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := FromEnv()
			require.Error(t, err)
			assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
		})
	}
}

func TestLoad_DotenvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "causal.env")
	require.NoError(t, os.WriteFile(path, []byte("CAUSAL_ESTIMATOR=tmle\nCAUSAL_TMLE_MAX_ITERATIONS=25\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("CAUSAL_ESTIMATOR")
		os.Unsetenv("CAUSAL_TMLE_MAX_ITERATIONS")
	})

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, causal.KindTMLE, cfg.EstimatorKind())
	assert.Equal(t, 25, cfg.Estimation.MaxIterations)

	_, err = Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
}
