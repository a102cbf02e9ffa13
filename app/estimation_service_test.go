package app

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gocausal/adapters/learners"
	"gocausal/domain/causal"
	"gocausal/domain/core"
	"gocausal/internal/config"
	apperrors "gocausal/internal/errors"
	"gocausal/internal/logging"
	"gocausal/internal/testkit"
	"gocausal/ports"
)

func referenceLearners() Learners {
	return Learners{
		Propensity: func() ports.Learner { return learners.NewLogisticRegression() },
		Outcome:    func() ports.Learner { return learners.NewLinearRegression() },
	}
}

func newService(t *testing.T) *EstimationService {
	t.Helper()
	svc, err := NewEstimationService(config.Default(), referenceLearners(), nil)
	require.NoError(t, err)
	return svc
}

func TestRun_AIPWBinary(t *testing.T) {
	d := testkit.NewGenerator(testkit.DefaultScenarioConfig()).Binary()
	var logs bytes.Buffer
	logger, err := logging.New("info", "json", &logs)
	require.NoError(t, err)
	svc, err := NewEstimationService(config.Default(), referenceLearners(), logger)
	require.NoError(t, err)

	run, err := svc.Run(context.Background(), EstimationRequest{
		X: d.X, A: d.A, Y: d.Y, Treated: 1, Baseline: 0,
		EffectTypes: []causal.EffectType{causal.Diff},
		Individual:  true,
	})
	require.NoError(t, err)

	_, err = core.ParseRunID(run.RunID.String())
	assert.NoError(t, err)
	assert.Equal(t, causal.KindAIPW, run.Kind)
	effect := run.Effects[causal.Diff]
	assert.InDelta(t, 2.0, effect.Value, 0.3)
	assert.True(t, effect.HasCI)
	require.NotNil(t, run.IndividualEffect)
	assert.Len(t, run.IndividualEffect.Values, d.X.Len())
	require.NotNil(t, run.Report)
	assert.NotNil(t, run.Report.Overlap)
	assert.NotNil(t, run.Report.Weights)
	assert.Greater(t, run.Duration.Nanoseconds(), int64(0))
	assert.Contains(t, logs.String(), "estimation run complete")
}

func TestRun_DatasetHashIsStable(t *testing.T) {
	d := testkit.NewGenerator(testkit.DefaultScenarioConfig()).Binary()
	svc := newService(t)
	req := EstimationRequest{X: d.X, A: d.A, Y: d.Y, Treated: 1, Baseline: 0, Kind: causal.KindIPW}

	first, err := svc.Run(context.Background(), req)
	require.NoError(t, err)
	second, err := svc.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.DatasetHash, second.DatasetHash)
	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Equal(t, first.Effects[causal.Diff].Value, second.Effects[causal.Diff].Value)
}

func TestRun_MetaLearnerDiagnosesItsPair(t *testing.T) {
	d := testkit.NewGenerator(testkit.DefaultScenarioConfig()).MultiArm()
	svc := newService(t)

	run, err := svc.Run(context.Background(), EstimationRequest{
		X: d.X, A: d.A, Y: d.Y, Treated: 2, Baseline: 0, Kind: causal.KindXLearner,
	})
	require.NoError(t, err)
	assert.InDelta(t, 4.0, run.Effects[causal.Diff].Value, 0.4)

	counts := d.A.Counts()
	assert.Equal(t, counts[0]+counts[2], run.Report.SampleSize)
	require.NotNil(t, run.Report.Propensity)
	assert.Nil(t, run.Report.Weights)
}

func TestRun_Errors(t *testing.T) {
	d := testkit.NewGenerator(testkit.DefaultScenarioConfig()).Binary()
	svc := newService(t)
	ctx := context.Background()

	_, err := svc.Run(ctx, EstimationRequest{X: d.X, A: d.A, Y: d.Y, Treated: 1, Baseline: 1})
	assert.Equal(t, apperrors.CodeInvalidInput, apperrors.GetCode(err))

	short := causal.NewTreatmentVector(nil, d.A.Values[:10])
	_, err = svc.Run(ctx, EstimationRequest{X: d.X, A: short, Y: d.Y, Treated: 1, Baseline: 0})
	assert.Equal(t, apperrors.CodeInvalidInput, apperrors.GetCode(err))
	assert.ErrorIs(t, err, core.ErrAlignment)

	_, err = svc.Run(ctx, EstimationRequest{X: d.X, A: d.A, Y: d.Y, Treated: 1, Baseline: 0, Kind: "matching"})
	assert.Equal(t, apperrors.CodeConfigInvalid, apperrors.GetCode(err))

	_, err = svc.Run(ctx, EstimationRequest{X: d.X, A: d.A, Y: d.Y, Treated: 3, Baseline: 0, Kind: causal.KindIPW})
	assert.Equal(t, apperrors.CodeEstimation, apperrors.GetCode(err))
	assert.ErrorIs(t, err, core.ErrTreatmentValue)

	noPropensity, err := NewEstimationService(config.Default(), Learners{Outcome: referenceLearners().Outcome}, nil)
	require.NoError(t, err)
	_, err = noPropensity.Run(ctx, EstimationRequest{X: d.X, A: d.A, Y: d.Y, Treated: 1, Baseline: 0, Kind: causal.KindTMLE})
	assert.Equal(t, apperrors.CodeConfigInvalid, apperrors.GetCode(err))

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = svc.Run(canceled, EstimationRequest{X: d.X, A: d.A, Y: d.Y, Treated: 1, Baseline: 0, Kind: causal.KindIPW})
	assert.ErrorIs(t, err, context.Canceled)

	_, err = NewEstimationService(nil, Learners{}, nil)
	assert.Equal(t, apperrors.CodeConfigInvalid, apperrors.GetCode(err))
}
