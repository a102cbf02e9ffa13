package diagnostics

import (
	"gocausal/domain/causal"
	"gocausal/domain/core"
	"gocausal/internal/validation"
)

// Config holds the analyzer thresholds.
type Config struct {
	// Epsilon bounds the well-supported propensity region [Epsilon, 1-Epsilon].
	Epsilon float64
	// OverlapThreshold is the minimum per-arm coverage before LowOverlapWarning.
	OverlapThreshold float64
	// ExtremeWeightZ flags weights whose z-score exceeds it.
	ExtremeWeightZ float64
	// MaxWeight flags weights above an absolute value. Zero disables the check.
	MaxWeight float64
	// DominanceThreshold is the arm share above which one arm dominates.
	DominanceThreshold float64
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		Epsilon:            0.01,
		OverlapThreshold:   0.5,
		ExtremeWeightZ:     3,
		MaxWeight:          100,
		DominanceThreshold: 0.8,
	}
}

// Validate rejects thresholds outside their meaningful ranges.
func (c Config) Validate() error {
	if c.Epsilon < 0 || c.Epsilon >= 0.5 {
		return core.NewInvalidValueError("epsilon must be in [0, 0.5)")
	}
	if err := validation.CheckProbability("overlap threshold", c.OverlapThreshold); err != nil {
		return err
	}
	if err := validation.CheckProbability("dominance threshold", c.DominanceThreshold); err != nil {
		return err
	}
	if c.ExtremeWeightZ <= 0 {
		return core.NewInvalidValueError("extreme weight z-score threshold must be positive")
	}
	if c.MaxWeight < 0 {
		return core.NewInvalidValueError("max weight must not be negative")
	}
	return nil
}

// FittedEstimator is the read-only view every analyzer needs.
type FittedEstimator interface {
	Name() string
	Kind() causal.EstimatorKind
	IsFitted() bool
	TreatmentValues() []causal.Treatment
}

// PropensityProvider exposes the propensity matrix of a fitted estimator.
type PropensityProvider interface {
	FittedEstimator
	PropensityMatrix(X *causal.Covariates) (*causal.PropensityMatrix, error)
}

// WeightProvider exposes the balancing weights of a fitted estimator.
type WeightProvider interface {
	FittedEstimator
	ComputeWeights(X *causal.Covariates, A *causal.TreatmentVector) (causal.WeightVector, error)
}

// checkInputs runs the gate shared by every analyzer.
func checkInputs(est FittedEstimator, X *causal.Covariates, A *causal.TreatmentVector) error {
	if err := validation.CheckFitted(est); err != nil {
		return err
	}
	if err := validation.CheckAlignment(X, A, nil); err != nil {
		return err
	}
	return validation.CheckTreatmentValues(A, est.TreatmentValues())
}
