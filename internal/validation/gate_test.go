package validation

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"gocausal/domain/causal"
	"gocausal/domain/core"
	"gocausal/ports"
)

type regressor struct{}

func (regressor) Fit(mat.Matrix, []float64) error       { return nil }
func (regressor) Predict(mat.Matrix) ([]float64, error) { return nil, nil }

type classifier struct{ regressor }

func (classifier) PredictProba(mat.Matrix) (*mat.Dense, error) { return nil, nil }

type estimatorStub struct{ fitted bool }

func (estimatorStub) Name() string     { return "stub" }
func (e estimatorStub) IsFitted() bool { return e.fitted }

func sample(t *testing.T) (*causal.Covariates, *causal.TreatmentVector, *causal.OutcomeVector) {
	t.Helper()
	X, err := causal.NewCovariates(nil, nil, [][]float64{{1}, {2}, {3}})
	require.NoError(t, err)
	return X, causal.NewTreatmentVector(nil, []causal.Treatment{0, 1, 0}), causal.NewOutcomeVector(nil, []float64{1, 2, 3})
}

func TestCheckAlignment(t *testing.T) {
	X, A, Y := sample(t)
	require.NoError(t, CheckAlignment(X, A, Y))
	require.NoError(t, CheckAlignment(X, A, nil))

	short := causal.NewTreatmentVector(nil, []causal.Treatment{0, 1})
	assert.ErrorIs(t, CheckAlignment(X, short, Y), core.ErrAlignment)

	shuffled := causal.NewOutcomeVector(causal.Index{"0", "2", "1"}, []float64{1, 2, 3})
	err := CheckAlignment(X, A, shuffled)
	assert.ErrorIs(t, err, core.ErrAlignment)
	assert.Contains(t, err.Error(), "1(1!=2)")

	assert.ErrorIs(t, CheckAlignment(nil, A, Y), core.ErrAlignment)
	assert.ErrorIs(t, CheckAlignment(X, nil, Y), core.ErrAlignment)
}

func TestCheckCovariates_NonFinite(t *testing.T) {
	X, err := causal.NewCovariates(nil, nil, [][]float64{{1}, {math.Inf(1)}})
	require.NoError(t, err)
	assert.ErrorIs(t, CheckCovariates(X), core.ErrInvalidValue)
}

func TestCheckTreatmentValues(t *testing.T) {
	A := causal.NewTreatmentVector(nil, []causal.Treatment{0, 3, 3, 1})
	err := CheckTreatmentValues(A, []causal.Treatment{0, 1})
	require.ErrorIs(t, err, core.ErrTreatmentValue)
	var ce *core.CausalError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, []string{"3"}, ce.Values)

	assert.NoError(t, CheckKnownTreatment(1, []causal.Treatment{0, 1}))
	assert.ErrorIs(t, CheckKnownTreatment(2, []causal.Treatment{0, 1}), core.ErrTreatmentValue)

	single := causal.NewTreatmentVector(nil, []causal.Treatment{1, 1})
	assert.ErrorIs(t, CheckTreatmentVector(single), core.ErrTreatmentValue)
}

func TestCheckOutcome(t *testing.T) {
	missing, err := CheckOutcome(causal.NewOutcomeVector(nil, []float64{1, math.NaN(), 2}))
	require.NoError(t, err)
	assert.Equal(t, 1, missing)

	_, err = CheckOutcome(causal.NewOutcomeVector(nil, []float64{math.NaN(), math.NaN(), 2}))
	assert.ErrorIs(t, err, core.ErrInvalidValue)
	_, err = CheckOutcome(causal.NewOutcomeVector(nil, []float64{math.Inf(-1)}))
	assert.ErrorIs(t, err, core.ErrInvalidValue)
	_, err = CheckOutcome(nil)
	assert.ErrorIs(t, err, core.ErrInvalidValue)
}

func TestCheckFitted(t *testing.T) {
	assert.NoError(t, CheckFitted(estimatorStub{fitted: true}))
	err := CheckFitted(estimatorStub{})
	assert.ErrorIs(t, err, core.ErrNotFitted)
	assert.Contains(t, err.Error(), "stub")
	assert.ErrorIs(t, CheckFitted(nil), core.ErrNotFitted)
}

func TestCheckModelInterface(t *testing.T) {
	assert.NoError(t, CheckModelInterface(classifier{}, ports.CapabilityFit, ports.CapabilityPredictProba))
	assert.ErrorIs(t, CheckModelInterface(regressor{}, ports.CapabilityPredictProba), core.ErrLearnerInterface)
	assert.ErrorIs(t, CheckModelInterface(regressor{}, ports.CapabilityFitWeighted), core.ErrLearnerInterface)
	assert.ErrorIs(t, CheckModelInterface(nil, ports.CapabilityFit), core.ErrLearnerInterface)
	assert.ErrorIs(t, CheckModelInterface(regressor{}, "teleport"), core.ErrInvalidValue)

	assert.NoError(t, CheckFactory(func() ports.Learner { return classifier{} }, ports.CapabilityPredictProba))
	assert.ErrorIs(t, CheckFactory(nil), core.ErrLearnerInterface)
}

func TestCheckBounds(t *testing.T) {
	assert.NoError(t, CheckClipBounds(0.01, 0.99))
	assert.NoError(t, CheckClipBounds(0, 1))
	assert.ErrorIs(t, CheckClipBounds(0.5, 0.9), core.ErrInvalidValue)
	assert.ErrorIs(t, CheckClipBounds(0.1, 0.5), core.ErrInvalidValue)

	assert.NoError(t, CheckProbability("p", 0.3))
	assert.ErrorIs(t, CheckProbability("p", math.NaN()), core.ErrInvalidValue)
}
