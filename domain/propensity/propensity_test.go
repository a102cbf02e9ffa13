package propensity

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"gocausal/domain/causal"
	"gocausal/domain/core"
)

// fixedClassifier returns a preset probability matrix.
type fixedClassifier struct {
	proba *mat.Dense
	err   error
}

func (f *fixedClassifier) Fit(mat.Matrix, []float64) error { return nil }
func (f *fixedClassifier) Predict(X mat.Matrix) ([]float64, error) {
	n, _ := X.Dims()
	return make([]float64, n), nil
}
func (f *fixedClassifier) PredictProba(mat.Matrix) (*mat.Dense, error) { return f.proba, f.err }

// labelledClassifier reports its class order.
type labelledClassifier struct {
	fixedClassifier
	classes []float64
}

func (l *labelledClassifier) Classes() []float64 { return l.classes }

// plainLearner has no probability output.
type plainLearner struct{}

func (plainLearner) Fit(mat.Matrix, []float64) error       { return nil }
func (plainLearner) Predict(mat.Matrix) ([]float64, error) { return nil, nil }

func covariates(t *testing.T, n int) *causal.Covariates {
	t.Helper()
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = []float64{float64(i)}
	}
	X, err := causal.NewCovariates(nil, nil, rows)
	require.NoError(t, err)
	return X
}

func TestExtractPropensityMatrix_AscendingColumns(t *testing.T) {
	model := &fixedClassifier{proba: mat.NewDense(2, 2, []float64{0.7, 0.3, 0.2, 0.8})}
	P, err := ExtractPropensityMatrix(model, covariates(t, 2), []causal.Treatment{0, 1})
	require.NoError(t, err)
	p1, err := P.For(1)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.3, 0.8}, p1)
}

func TestExtractPropensityMatrix_UsesClassOrder(t *testing.T) {
	model := &labelledClassifier{
		fixedClassifier: fixedClassifier{proba: mat.NewDense(1, 3, []float64{0.5, 0.2, 0.3})},
		classes:         []float64{2, 0, 1},
	}
	P, err := ExtractPropensityMatrix(model, covariates(t, 1), []causal.Treatment{0, 1, 2})
	require.NoError(t, err)
	assert.Equal(t, 0.2, P.Scores.At(0, 0))
	assert.Equal(t, 0.3, P.Scores.At(0, 1))
	assert.Equal(t, 0.5, P.Scores.At(0, 2))

	scores, err := ExtractPropensityScores(model, covariates(t, 1), 2, []causal.Treatment{0, 1, 2})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5}, scores)
}

func TestExtractPropensityMatrix_SingleColumnIsLargerLabel(t *testing.T) {
	model := &fixedClassifier{proba: mat.NewDense(2, 1, []float64{0.25, 0.6})}
	P, err := ExtractPropensityMatrix(model, covariates(t, 2), []causal.Treatment{0, 1})
	require.NoError(t, err)
	assert.InDelta(t, 0.75, P.Scores.At(0, 0), 1e-12)
	assert.InDelta(t, 0.25, P.Scores.At(0, 1), 1e-12)
}

func TestExtractPropensityMatrix_RenormalisesRows(t *testing.T) {
	model := &fixedClassifier{proba: mat.NewDense(1, 2, []float64{0.2, 0.6})}
	P, err := ExtractPropensityMatrix(model, covariates(t, 1), []causal.Treatment{0, 1})
	require.NoError(t, err)
	assert.InDelta(t, 0.25, P.Scores.At(0, 0), 1e-12)
	assert.InDelta(t, 0.75, P.Scores.At(0, 1), 1e-12)
}

func TestExtractPropensityMatrix_Errors(t *testing.T) {
	X := covariates(t, 2)
	_, err := ExtractPropensityMatrix(plainLearner{}, X, []causal.Treatment{0, 1})
	assert.ErrorIs(t, err, core.ErrLearnerInterface)

	boom := errors.New("boom")
	_, err = ExtractPropensityMatrix(&fixedClassifier{err: boom}, X, []causal.Treatment{0, 1})
	assert.ErrorIs(t, err, core.ErrLearnerInterface)
	assert.ErrorIs(t, err, boom)

	invalid := &fixedClassifier{proba: mat.NewDense(2, 2, []float64{1.5, -0.5, 0.5, 0.5})}
	_, err = ExtractPropensityMatrix(invalid, X, []causal.Treatment{0, 1})
	assert.ErrorIs(t, err, core.ErrInvalidValue)

	short := &fixedClassifier{proba: mat.NewDense(1, 2, []float64{0.5, 0.5})}
	_, err = ExtractPropensityMatrix(short, X, []causal.Treatment{0, 1})
	assert.ErrorIs(t, err, core.ErrAlignment)

	_, err = ExtractPropensityScores(short, X, 4, []causal.Treatment{0, 1})
	assert.ErrorIs(t, err, core.ErrTreatmentValue)
}

func TestClipPropensityScores(t *testing.T) {
	lower, upper := SymmetricBounds(0.05)
	clipped, stats, err := ClipPropensityScores([]float64{0.01, 0.5, 0.99, 0.05}, lower, upper)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.05, 0.5, 0.95, 0.05}, clipped)
	assert.Equal(t, 1, stats.NClippedLow)
	assert.Equal(t, 1, stats.NClippedHigh)
	assert.Equal(t, 2, stats.NClipped())
	assert.InDelta(t, 50.0, stats.PctClipped, 1e-12)

	w, ok := ClipWarning(stats)
	require.True(t, ok)
	assert.Equal(t, causal.PropensityClippingWarning, w.Kind)

	_, _, err = ClipPropensityScores([]float64{0.5}, 0.6, 0.9)
	assert.ErrorIs(t, err, core.ErrInvalidValue)
}

func TestWeights(t *testing.T) {
	P := &causal.PropensityMatrix{
		Index:      causal.RangeIndex(4),
		Treatments: []causal.Treatment{0, 1},
		Scores:     mat.NewDense(4, 2, []float64{0.8, 0.2, 0.5, 0.5, 0.25, 0.75, 0.5, 0.5}),
	}
	A := causal.NewTreatmentVector(nil, []causal.Treatment{0, 1, 1, 1})

	ipw, err := ComputePropensityWeights(P, A)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{1.25, 2, 4.0 / 3, 2}, ipw.Values, 1e-12)

	stable, err := StabilizeWeights(ipw, A)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.3125, 1.5, 1, 1.5}, stable.Values, 1e-12)

	overlap, err := ComputeOverlapWeights(P, A)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.2, 0.5, 0.25, 0.5}, overlap.Values, 1e-12)

	_, err = InverseWeights([]float64{0.5, 0}, causal.NewTreatmentVector(nil, []causal.Treatment{0, 1}))
	assert.ErrorIs(t, err, core.ErrPositivityViolation)
}
