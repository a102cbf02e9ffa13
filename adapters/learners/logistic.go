package learners

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// LogisticRegression is an IRLS-trained logistic classifier. With more than
// two classes it fits one-vs-rest models and normalises their probabilities.
type LogisticRegression struct {
	// Ridge is the L2 penalty on the slopes; a small default keeps separable
	// data finite.
	Ridge float64
	// MaxIter bounds the Newton iterations per binary model.
	MaxIter int
	// Tol is the coefficient-change stopping threshold.
	Tol float64

	classes []float64
	models  [][]float64
	trained bool
}

// NewLogisticRegression returns a classifier with conservative defaults.
func NewLogisticRegression() *LogisticRegression {
	return &LogisticRegression{Ridge: 1e-6, MaxIter: 100, Tol: 1e-10}
}

// Fit trains on class labels in target.
func (lr *LogisticRegression) Fit(X mat.Matrix, target []float64) error {
	n, _ := X.Dims()
	if n != len(target) {
		return fmt.Errorf("logistic regression: %d rows but %d targets", n, len(target))
	}
	classes := uniqueSorted(target)
	if len(classes) < 2 {
		return fmt.Errorf("logistic regression: need at least 2 classes, got %d", len(classes))
	}
	if lr.MaxIter == 0 {
		lr.MaxIter = 100
	}
	if lr.Tol == 0 {
		lr.Tol = 1e-10
	}

	Z := designMatrix(X, true)
	positives := classes[1:]
	if len(classes) > 2 {
		positives = classes
	}

	models := make([][]float64, 0, len(positives))
	for _, positive := range positives {
		y := make([]float64, n)
		for i, v := range target {
			if v == positive {
				y[i] = 1
			}
		}
		beta, err := lr.irls(Z, y)
		if err != nil {
			return fmt.Errorf("logistic regression (class %g): %w", positive, err)
		}
		models = append(models, beta)
	}

	lr.classes = classes
	lr.models = models
	lr.trained = true
	return nil
}

// irls runs Newton-Raphson on the penalised binomial log-likelihood.
func (lr *LogisticRegression) irls(Z *mat.Dense, y []float64) ([]float64, error) {
	n, q := Z.Dims()
	beta := make([]float64, q)
	pen := make([]float64, q)
	for j := 1; j < q; j++ {
		pen[j] = lr.Ridge
	}
	w := make([]float64, n)
	work := make([]float64, n)

	for iter := 0; iter < lr.MaxIter; iter++ {
		// Working response z = eta + (y - mu)/w with weights w = mu(1-mu).
		for i := 0; i < n; i++ {
			eta := dotRow(Z.RawRowView(i), beta)
			mu := sigmoid(eta)
			wi := math.Max(mu*(1-mu), 1e-10)
			w[i] = wi
			work[i] = eta + (y[i]-mu)/wi
		}
		next, err := solveWeightedNormal(Z, work, w, pen)
		if err != nil {
			return nil, err
		}
		delta := 0.0
		for j := range beta {
			delta = math.Max(delta, math.Abs(next[j]-beta[j]))
		}
		beta = next
		if delta < lr.Tol {
			break
		}
	}
	return beta, nil
}

// PredictProba returns one column per class in Classes() order.
func (lr *LogisticRegression) PredictProba(X mat.Matrix) (*mat.Dense, error) {
	if !lr.trained {
		return nil, ErrNotTrained
	}
	n, p := X.Dims()
	if p+1 != len(lr.models[0]) {
		return nil, fmt.Errorf("logistic regression: trained on %d features, got %d", len(lr.models[0])-1, p)
	}
	k := len(lr.classes)
	out := mat.NewDense(n, k, nil)
	row := make([]float64, p+1)
	row[0] = 1
	for i := 0; i < n; i++ {
		for j := 0; j < p; j++ {
			row[j+1] = X.At(i, j)
		}
		if k == 2 {
			p1 := sigmoid(dotRow(row, lr.models[0]))
			out.Set(i, 0, 1-p1)
			out.Set(i, 1, p1)
			continue
		}
		sum := 0.0
		for c := 0; c < k; c++ {
			v := sigmoid(dotRow(row, lr.models[c]))
			out.Set(i, c, v)
			sum += v
		}
		for c := 0; c < k; c++ {
			out.Set(i, c, out.At(i, c)/sum)
		}
	}
	return out, nil
}

// Predict returns the most probable class label per row.
func (lr *LogisticRegression) Predict(X mat.Matrix) ([]float64, error) {
	proba, err := lr.PredictProba(X)
	if err != nil {
		return nil, err
	}
	n, k := proba.Dims()
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		best := 0
		for c := 1; c < k; c++ {
			if proba.At(i, c) > proba.At(i, best) {
				best = c
			}
		}
		out[i] = lr.classes[best]
	}
	return out, nil
}

// Classes returns the labels behind each probability column.
func (lr *LogisticRegression) Classes() []float64 {
	return append([]float64(nil), lr.classes...)
}

// ProbabilityRegressor adapts a binary classifier into an outcome model whose
// Predict returns P(target = 1 | X).
type ProbabilityRegressor struct {
	Classifier *LogisticRegression
}

// NewProbabilityRegressor wraps a fresh logistic regression.
func NewProbabilityRegressor() *ProbabilityRegressor {
	return &ProbabilityRegressor{Classifier: NewLogisticRegression()}
}

// Fit trains the wrapped classifier on a 0/1 target.
func (pr *ProbabilityRegressor) Fit(X mat.Matrix, target []float64) error {
	for _, v := range target {
		if v != 0 && v != 1 {
			return fmt.Errorf("probability regressor: target must be 0/1, got %g", v)
		}
	}
	return pr.Classifier.Fit(X, target)
}

// Predict returns the probability of the positive class.
func (pr *ProbabilityRegressor) Predict(X mat.Matrix) ([]float64, error) {
	proba, err := pr.Classifier.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return mat.Col(nil, 1, proba), nil
}

func sigmoid(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}

func dotRow(row, beta []float64) float64 {
	s := 0.0
	for j, b := range beta {
		s += row[j] * b
	}
	return s
}

func uniqueSorted(values []float64) []float64 {
	seen := make(map[float64]struct{}, 4)
	for _, v := range values {
		seen[v] = struct{}{}
	}
	out := make([]float64, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Float64s(out)
	return out
}
