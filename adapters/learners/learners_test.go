package learners

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestLinearRegression_RecoversExactLine(t *testing.T) {
	X := mat.NewDense(5, 1, []float64{0, 1, 2, 3, 4})
	y := []float64{1, 3, 5, 7, 9}

	lr := NewLinearRegression()
	require.NoError(t, lr.Fit(X, y))

	intercept, coef := lr.Coefficients()
	assert.InDelta(t, 1.0, intercept, 1e-9)
	require.Len(t, coef, 1)
	assert.InDelta(t, 2.0, coef[0], 1e-9)

	pred, err := lr.Predict(mat.NewDense(1, 1, []float64{10}))
	require.NoError(t, err)
	assert.InDelta(t, 21.0, pred[0], 1e-9)
}

func TestLinearRegression_WeightsSelectRows(t *testing.T) {
	// Zero weights remove the outlier at x=4.
	X := mat.NewDense(5, 1, []float64{0, 1, 2, 3, 4})
	y := []float64{0, 1, 2, 3, 100}
	w := []float64{1, 1, 1, 1, 0}

	lr := NewLinearRegression()
	require.NoError(t, lr.FitWeighted(X, y, w))
	intercept, coef := lr.Coefficients()
	assert.InDelta(t, 0.0, intercept, 1e-9)
	assert.InDelta(t, 1.0, coef[0], 1e-9)
}

func TestLinearRegression_Errors(t *testing.T) {
	lr := NewLinearRegression()
	_, err := lr.Predict(mat.NewDense(1, 1, nil))
	assert.ErrorIs(t, err, ErrNotTrained)

	err = lr.Fit(mat.NewDense(2, 1, []float64{1, 2}), []float64{1})
	assert.Error(t, err)
}

func TestLogisticRegression_Binary(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	n := 2000
	X := mat.NewDense(n, 1, nil)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		x := rng.NormFloat64()
		X.Set(i, 0, x)
		if rng.Float64() < sigmoid(0.5+1.5*x) {
			y[i] = 1
		}
	}

	lr := NewLogisticRegression()
	require.NoError(t, lr.Fit(X, y))
	assert.Equal(t, []float64{0, 1}, lr.Classes())

	require.Len(t, lr.models, 1)
	assert.InDelta(t, 0.5, lr.models[0][0], 0.2)
	assert.InDelta(t, 1.5, lr.models[0][1], 0.25)

	proba, err := lr.PredictProba(X)
	require.NoError(t, err)
	r, c := proba.Dims()
	assert.Equal(t, n, r)
	assert.Equal(t, 2, c)
	for i := 0; i < 10; i++ {
		assert.InDelta(t, 1.0, proba.At(i, 0)+proba.At(i, 1), 1e-12)
	}
}

func TestLogisticRegression_OneVsRest(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 5))
	n := 600
	X := mat.NewDense(n, 1, nil)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		label := float64(i % 3)
		y[i] = label
		X.Set(i, 0, 2*label+rng.NormFloat64())
	}

	lr := NewLogisticRegression()
	require.NoError(t, lr.Fit(X, y))
	assert.Equal(t, []float64{0, 1, 2}, lr.Classes())

	proba, err := lr.PredictProba(X)
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		sum := proba.At(i, 0) + proba.At(i, 1) + proba.At(i, 2)
		assert.InDelta(t, 1.0, sum, 1e-9)
	}

	pred, err := lr.Predict(mat.NewDense(2, 1, []float64{-3, 7}))
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 2}, pred)
}

func TestLogisticRegression_SeparableDataStaysFinite(t *testing.T) {
	X := mat.NewDense(4, 1, []float64{-2, -1, 1, 2})
	y := []float64{0, 0, 1, 1}

	lr := NewLogisticRegression()
	lr.Ridge = 1e-2
	require.NoError(t, lr.Fit(X, y))
	for _, b := range lr.models[0] {
		assert.False(t, math.IsNaN(b) || math.IsInf(b, 0))
	}
}

func TestLogisticRegression_RejectsSingleClass(t *testing.T) {
	lr := NewLogisticRegression()
	err := lr.Fit(mat.NewDense(3, 1, []float64{1, 2, 3}), []float64{1, 1, 1})
	assert.Error(t, err)
}

func TestProbabilityRegressor(t *testing.T) {
	X := mat.NewDense(6, 1, []float64{-2, -1, 0, 0, 1, 2})
	y := []float64{0, 0, 1, 0, 1, 1}

	pr := NewProbabilityRegressor()
	require.NoError(t, pr.Fit(X, y))
	pred, err := pr.Predict(X)
	require.NoError(t, err)
	for _, p := range pred {
		assert.True(t, p > 0 && p < 1)
	}
	assert.Less(t, pred[0], pred[5])

	assert.Error(t, pr.Fit(X, []float64{0, 1, 2, 0, 1, 1}))
}

func TestConstantModels(t *testing.T) {
	X := mat.NewDense(4, 1, []float64{1, 2, 3, 4})

	c := NewConstantRegressor()
	require.NoError(t, c.Fit(X, []float64{1, 2, 3, 6}))
	pred, err := c.Predict(X)
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 3, 3, 3}, pred)

	fixed := &ConstantRegressor{Value: -1, Fixed: true}
	require.NoError(t, fixed.Fit(X, []float64{1, 2, 3, 6}))
	pred, err = fixed.Predict(X)
	require.NoError(t, err)
	assert.Equal(t, -1.0, pred[0])

	pc := NewPriorClassifier()
	require.NoError(t, pc.Fit(X, []float64{0, 1, 1, 1}))
	proba, err := pc.PredictProba(X)
	require.NoError(t, err)
	assert.InDelta(t, 0.25, proba.At(2, 0), 1e-12)
	assert.InDelta(t, 0.75, proba.At(2, 1), 1e-12)
	labels, err := pc.Predict(X)
	require.NoError(t, err)
	assert.Equal(t, 1.0, labels[0])
}
