package estimation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gocausal/adapters/learners"
	"gocausal/domain/causal"
	"gocausal/domain/core"
)

func newTMLE(t *testing.T, outcomeModel func() *Standardization, opts Options) *TMLE {
	t.Helper()
	tmle, err := NewTMLE(logistic(), outcomeModel(), opts)
	require.NoError(t, err)
	return tmle
}

func TestTMLE_TargetsLinearOutcomeModel(t *testing.T) {
	d := binaryData()
	tmle := newTMLE(t, func() *Standardization {
		s, err := NewStandardization(linear(), DefaultOptions())
		require.NoError(t, err)
		return s
	}, DefaultOptions())
	require.NoError(t, tmle.Fit(d.X, d.A, d.Y))

	po, err := tmle.EstimatePopulationOutcome(d.X, d.A, d.Y)
	require.NoError(t, err)
	effect, err := EstimateEffect(tmle, po, 1, 0, causal.Diff)
	require.NoError(t, err)

	assert.InDelta(t, 2.0, effect.Value, 0.3)
	assert.True(t, effect.HasCI)
	assert.Greater(t, po.StdErrors[1], 0.0)
	require.Len(t, po.Individual[1], d.X.Len())
}

func TestTMLE_CorrectsConstantOutcomeModel(t *testing.T) {
	d := binaryData()
	tmle := newTMLE(t, func() *Standardization {
		s, err := NewStandardization(learners.NewConstantRegressor(), DefaultOptions())
		require.NoError(t, err)
		return s
	}, DefaultOptions())
	require.NoError(t, tmle.Fit(d.X, d.A, d.Y))

	po, err := tmle.EstimatePopulationOutcome(d.X, d.A, d.Y)
	require.NoError(t, err)
	effect, err := EstimateEffect(tmle, po, 1, 0, causal.Diff)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, effect.Value, 0.3)
}

func TestTMLE_ReportsNonConvergence(t *testing.T) {
	d := binaryData()
	opts := DefaultOptions()
	opts.MaxIterations = 0
	tmle := newTMLE(t, func() *Standardization {
		s, err := NewStandardization(learners.NewConstantRegressor(), DefaultOptions())
		require.NoError(t, err)
		return s
	}, opts)
	require.NoError(t, tmle.Fit(d.X, d.A, d.Y))

	_, err := tmle.EstimatePopulationOutcome(d.X, d.A, d.Y)
	assert.ErrorIs(t, err, core.ErrConvergence)
	assert.True(t, core.IsFatalAssumptionError(err))
}
