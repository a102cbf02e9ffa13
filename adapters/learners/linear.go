// Package learners provides small gonum-backed models that satisfy the
// ports learner contracts. They are reference collaborators for the
// estimators and their tests, not a modelling library.
package learners

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ErrNotTrained is returned when Predict runs before Fit.
var ErrNotTrained = errors.New("learner has not been trained")

// LinearRegression is (optionally ridge-penalised) weighted least squares.
type LinearRegression struct {
	// Ridge is the L2 penalty on the slopes; the intercept is never penalised.
	Ridge float64
	// NoIntercept drops the constant column.
	NoIntercept bool

	coef      []float64
	intercept float64
	trained   bool
}

// NewLinearRegression returns an OLS learner with an intercept.
func NewLinearRegression() *LinearRegression {
	return &LinearRegression{}
}

// Fit trains with unit weights.
func (lr *LinearRegression) Fit(X mat.Matrix, y []float64) error {
	return lr.FitWeighted(X, y, nil)
}

// FitWeighted minimises sum_i w_i (y_i - z_i'b)^2 + Ridge*|slopes|^2.
func (lr *LinearRegression) FitWeighted(X mat.Matrix, y, w []float64) error {
	n, _ := X.Dims()
	if n != len(y) {
		return fmt.Errorf("linear regression: %d rows but %d targets", n, len(y))
	}
	if w != nil && len(w) != n {
		return fmt.Errorf("linear regression: %d rows but %d weights", n, len(w))
	}
	if n == 0 {
		return fmt.Errorf("linear regression: no training rows")
	}

	Z := designMatrix(X, !lr.NoIntercept)
	_, q := Z.Dims()
	weights := w
	if weights == nil {
		weights = ones(n)
	}

	beta, err := solveWeightedNormal(Z, y, weights, lr.penalty(q))
	if err != nil {
		return fmt.Errorf("linear regression: %w", err)
	}

	if lr.NoIntercept {
		lr.intercept = 0
		lr.coef = beta
	} else {
		lr.intercept = beta[0]
		lr.coef = beta[1:]
	}
	lr.trained = true
	return nil
}

func (lr *LinearRegression) penalty(q int) []float64 {
	pen := make([]float64, q)
	start := 0
	if !lr.NoIntercept {
		start = 1
	}
	for j := start; j < q; j++ {
		pen[j] = lr.Ridge
	}
	return pen
}

// Predict returns z_i'b for each row.
func (lr *LinearRegression) Predict(X mat.Matrix) ([]float64, error) {
	if !lr.trained {
		return nil, ErrNotTrained
	}
	n, p := X.Dims()
	if p != len(lr.coef) {
		return nil, fmt.Errorf("linear regression: trained on %d features, got %d", len(lr.coef), p)
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		v := lr.intercept
		for j := 0; j < p; j++ {
			v += lr.coef[j] * X.At(i, j)
		}
		out[i] = v
	}
	return out, nil
}

// Coefficients returns the intercept and slopes.
func (lr *LinearRegression) Coefficients() (float64, []float64) {
	return lr.intercept, append([]float64(nil), lr.coef...)
}

// designMatrix prepends a constant column when intercept is set.
func designMatrix(X mat.Matrix, intercept bool) *mat.Dense {
	n, p := X.Dims()
	offset := 0
	if intercept {
		offset = 1
	}
	Z := mat.NewDense(n, p+offset, nil)
	for i := 0; i < n; i++ {
		if intercept {
			Z.Set(i, 0, 1)
		}
		for j := 0; j < p; j++ {
			Z.Set(i, j+offset, X.At(i, j))
		}
	}
	return Z
}

// solveWeightedNormal solves (Z'WZ + diag(pen)) b = Z'Wy.
func solveWeightedNormal(Z *mat.Dense, y, w, pen []float64) ([]float64, error) {
	n, q := Z.Dims()
	gram := mat.NewSymDense(q, nil)
	rhs := mat.NewVecDense(q, nil)
	for i := 0; i < n; i++ {
		wi := w[i]
		if wi == 0 {
			continue
		}
		row := Z.RawRowView(i)
		for a := 0; a < q; a++ {
			rhs.SetVec(a, rhs.AtVec(a)+wi*row[a]*y[i])
			for b := a; b < q; b++ {
				gram.SetSym(a, b, gram.At(a, b)+wi*row[a]*row[b])
			}
		}
	}
	for j := 0; j < q; j++ {
		gram.SetSym(j, j, gram.At(j, j)+pen[j])
	}

	var chol mat.Cholesky
	beta := mat.NewVecDense(q, nil)
	if chol.Factorize(gram) {
		if err := chol.SolveVecTo(beta, rhs); err == nil {
			return beta.RawVector().Data, nil
		}
	}
	// Fall back to a general solve for semi-definite systems.
	if err := beta.SolveVec(gram, rhs); err != nil {
		return nil, fmt.Errorf("singular normal equations: %w", err)
	}
	for _, v := range beta.RawVector().Data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("non-finite coefficients")
		}
	}
	return beta.RawVector().Data, nil
}

func ones(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 1
	}
	return out
}
