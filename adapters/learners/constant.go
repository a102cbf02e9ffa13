package learners

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ConstantRegressor ignores X and predicts a single value: the training
// mean, or Value when Fixed is set. It is a deliberately misspecified
// outcome model.
type ConstantRegressor struct {
	Value float64
	Fixed bool

	trained bool
}

// NewConstantRegressor predicts the training-target mean.
func NewConstantRegressor() *ConstantRegressor {
	return &ConstantRegressor{}
}

func (c *ConstantRegressor) Fit(X mat.Matrix, target []float64) error {
	return c.FitWeighted(X, target, nil)
}

// FitWeighted stores the weighted target mean.
func (c *ConstantRegressor) FitWeighted(X mat.Matrix, target, weights []float64) error {
	n, _ := X.Dims()
	if n != len(target) {
		return fmt.Errorf("constant regressor: %d rows but %d targets", n, len(target))
	}
	if !c.Fixed {
		if len(target) == 0 {
			return fmt.Errorf("constant regressor: no training rows")
		}
		if weights == nil {
			c.Value = floats.Sum(target) / float64(len(target))
		} else {
			total := floats.Sum(weights)
			if total <= 0 {
				return fmt.Errorf("constant regressor: weights sum to %g", total)
			}
			c.Value = floats.Dot(target, weights) / total
		}
	}
	c.trained = true
	return nil
}

func (c *ConstantRegressor) Predict(X mat.Matrix) ([]float64, error) {
	if !c.trained {
		return nil, ErrNotTrained
	}
	n, _ := X.Dims()
	out := make([]float64, n)
	for i := range out {
		out[i] = c.Value
	}
	return out, nil
}

// PriorClassifier predicts the marginal class frequencies for every row.
type PriorClassifier struct {
	classes []float64
	prior   []float64
}

func NewPriorClassifier() *PriorClassifier {
	return &PriorClassifier{}
}

func (pc *PriorClassifier) Fit(X mat.Matrix, target []float64) error {
	n, _ := X.Dims()
	if n != len(target) || n == 0 {
		return fmt.Errorf("prior classifier: %d rows but %d targets", n, len(target))
	}
	pc.classes = uniqueSorted(target)
	pc.prior = make([]float64, len(pc.classes))
	for _, v := range target {
		for j, c := range pc.classes {
			if v == c {
				pc.prior[j]++
				break
			}
		}
	}
	floats.Scale(1/float64(n), pc.prior)
	return nil
}

func (pc *PriorClassifier) PredictProba(X mat.Matrix) (*mat.Dense, error) {
	if pc.prior == nil {
		return nil, ErrNotTrained
	}
	n, _ := X.Dims()
	out := mat.NewDense(n, len(pc.prior), nil)
	for i := 0; i < n; i++ {
		out.SetRow(i, pc.prior)
	}
	return out, nil
}

// Predict returns the majority class.
func (pc *PriorClassifier) Predict(X mat.Matrix) ([]float64, error) {
	if pc.prior == nil {
		return nil, ErrNotTrained
	}
	label := pc.classes[floats.MaxIdx(pc.prior)]
	n, _ := X.Dims()
	out := make([]float64, n)
	for i := range out {
		out[i] = label
	}
	return out, nil
}

func (pc *PriorClassifier) Classes() []float64 {
	return append([]float64(nil), pc.classes...)
}
