package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, logs bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&logs)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestScenarioCmd_JSON(t *testing.T) {
	out, err := execute(t, "scenario", "binary", "--estimator", "ipw", "--rows", "1000", "--json")
	require.NoError(t, err)

	require.True(t, gjson.Valid(out))
	assert.Equal(t, "ipw", gjson.Get(out, "estimator").String())
	assert.InDelta(t, 2.0, gjson.Get(out, "effects.0.value").Float(), 0.4)
	assert.Equal(t, "diff", gjson.Get(out, "effects.0.type").String())
	assert.Len(t, gjson.Get(out, "dataset_hash").String(), 64)
	assert.True(t, gjson.Get(out, `diagnostics.weights\.ess`).Exists())
}

func TestScenarioCmd_Text(t *testing.T) {
	out, err := execute(t, "scenario", "multi-arm", "--estimator", "stratified_standardization", "--treated", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "stratified_standardization")
	assert.Contains(t, out, "diff  2 vs 0")
}

func TestScenarioCmd_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dev.env")
	require.NoError(t, os.WriteFile(path, []byte("CAUSAL_ESTIMATOR=overlap_weights\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("CAUSAL_ESTIMATOR") })

	out, err := execute(t, "--env-file", path, "scenario", "binary", "--json")
	require.NoError(t, err)
	assert.Equal(t, "overlap_weights", gjson.Get(out, "estimator").String())
}

func TestScenarioCmd_Errors(t *testing.T) {
	_, err := execute(t, "scenario", "circular")
	assert.ErrorContains(t, err, "unknown scenario")

	_, err = execute(t, "scenario", "binary", "--estimator", "matching")
	assert.Error(t, err)
}

func TestSmokeCmd(t *testing.T) {
	out, err := execute(t, "smoke")
	require.NoError(t, err)
	assert.Contains(t, out, "Smoke tests: 8/8 passed")
}

func TestDeterminismCmd(t *testing.T) {
	out, err := execute(t, "determinism", "x_learner", "--seed", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "results identical")
}
