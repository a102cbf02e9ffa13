package ports

import "gonum.org/v1/gonum/mat"

// Learner is the minimal contract for a supplied predictive model.
type Learner interface {
	// Fit trains the model on X and target.
	Fit(X mat.Matrix, target []float64) error

	// Predict returns one prediction per row of X.
	Predict(X mat.Matrix) ([]float64, error)
}

// ProbabilisticLearner can emit class probabilities, one column per class.
type ProbabilisticLearner interface {
	Learner

	// PredictProba returns an n x k matrix whose rows sum to one.
	PredictProba(X mat.Matrix) (*mat.Dense, error)
}

// ClassReporter exposes the class label behind each PredictProba column.
// Learners without it are assumed to order columns by ascending label.
type ClassReporter interface {
	Classes() []float64
}

// WeightedLearner supports per-row sample weights during training.
type WeightedLearner interface {
	Learner

	FitWeighted(X mat.Matrix, target, weights []float64) error
}

// LearnerFactory returns a fresh, untrained learner. Cross-fitting needs one
// instance per fold.
type LearnerFactory func() Learner

// Capability names a method set checked by the validation gate.
type Capability string

const (
	CapabilityFit          Capability = "fit"
	CapabilityPredict      Capability = "predict"
	CapabilityPredictProba Capability = "predict_proba"
	CapabilityFitWeighted  Capability = "fit_weighted"
)
