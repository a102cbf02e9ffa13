package estimation

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"gocausal/domain/causal"
	"gocausal/domain/core"
	"gocausal/internal/validation"
	"gocausal/ports"
)

// Estimator is the lifecycle every strategy exposes.
type Estimator interface {
	Name() string
	Kind() causal.EstimatorKind
	Status() Status
	IsFitted() bool
	TreatmentValues() []causal.Treatment
}

// PopulationOutcomeEstimator returns the mean outcome under every arm.
// Strategies that do not use Y accept nil.
type PopulationOutcomeEstimator interface {
	Estimator
	EstimatePopulationOutcome(X *causal.Covariates, A *causal.TreatmentVector, Y *causal.OutcomeVector) (*causal.PotentialOutcomes, error)
}

// IndividualOutcomeEstimator returns per-row outcomes under every arm.
type IndividualOutcomeEstimator interface {
	Estimator
	EstimateIndividualOutcome(X *causal.Covariates) (*causal.PotentialOutcomes, error)
}

// OutcomeModelCapable is an outcome model that composite strategies embed.
type OutcomeModelCapable interface {
	IndividualOutcomeEstimator
	Fit(X *causal.Covariates, A *causal.TreatmentVector, Y *causal.OutcomeVector) error
}

// WeightingCapable exposes the propensity matrix and balancing weights.
type WeightingCapable interface {
	Estimator
	PropensityMatrix(X *causal.Covariates) (*causal.PropensityMatrix, error)
	ComputeWeights(X *causal.Covariates, A *causal.TreatmentVector) (causal.WeightVector, error)
}

// IndividualEffectEstimator returns a per-row contrast directly.
type IndividualEffectEstimator interface {
	Estimator
	EstimateIndividualEffect(X *causal.Covariates, effectType causal.EffectType) (causal.EffectEstimate, error)
}

func learnerName(l any) string {
	return fmt.Sprintf("%T", l)
}

// checkFitInputs is the gate every Fit passes. Y may be nil.
func checkFitInputs(X *causal.Covariates, A *causal.TreatmentVector, Y *causal.OutcomeVector) error {
	if err := validation.CheckAlignment(X, A, Y); err != nil {
		return err
	}
	if err := validation.CheckCovariates(X); err != nil {
		return err
	}
	return validation.CheckTreatmentVector(A)
}

// checkEstimateInputs is the gate every estimate call passes. Y may be nil.
func checkEstimateInputs(X *causal.Covariates, A *causal.TreatmentVector, Y *causal.OutcomeVector, known []causal.Treatment) error {
	if err := validation.CheckAlignment(X, A, Y); err != nil {
		return err
	}
	if err := validation.CheckCovariates(X); err != nil {
		return err
	}
	return validation.CheckTreatmentValues(A, known)
}

// observedOutcomes returns the rows with a non-missing outcome and a
// MissingValuesWarning when some were dropped.
func observedOutcomes(Y *causal.OutcomeVector) ([]int, []causal.Warning, error) {
	missing, err := validation.CheckOutcome(Y)
	if err != nil {
		return nil, nil, err
	}
	rows := Y.ObservedRows()
	if missing == 0 {
		return rows, nil, nil
	}
	w := causal.NewWarning(causal.MissingValuesWarning, float64(missing),
		"%d of %d outcomes are missing; those rows are excluded", missing, Y.Len())
	return rows, []causal.Warning{w}, nil
}

func fitLearner(l ports.Learner, X mat.Matrix, target []float64) error {
	if err := l.Fit(X, target); err != nil {
		return core.WrapLearnerError(learnerName(l), "fit", err)
	}
	return nil
}

func fitLearnerWeighted(l ports.WeightedLearner, X mat.Matrix, target, weights []float64) error {
	if err := l.FitWeighted(X, target, weights); err != nil {
		return core.WrapLearnerError(learnerName(l), "fit_weighted", err)
	}
	return nil
}

// predictLearner wraps model failures and rejects wrong-length or
// non-finite predictions.
func predictLearner(l ports.Learner, X mat.Matrix) ([]float64, error) {
	name := learnerName(l)
	pred, err := l.Predict(X)
	if err != nil {
		return nil, core.WrapLearnerError(name, "predict", err)
	}
	n, _ := X.Dims()
	if len(pred) != n {
		return nil, core.NewAlignmentError(fmt.Sprintf("%s returned %d predictions for %d rows", name, len(pred), n), nil)
	}
	var bad []string
	for i, v := range pred {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			bad = append(bad, strconv.Itoa(i))
		}
	}
	if len(bad) > 0 {
		return nil, &core.CausalError{Kind: core.ErrInvalidValue, Message: name + " returned non-finite predictions", Indices: bad}
	}
	return pred, nil
}

func mean(x []float64) float64 {
	if len(x) == 0 {
		return math.NaN()
	}
	return floats.Sum(x) / float64(len(x))
}

func subsetFloats(x []float64, rows []int) []float64 {
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = x[r]
	}
	return out
}

// logWarnings emits every warning at WARN with the estimator name.
func logWarnings(logger *slog.Logger, estimator string, warnings []causal.Warning) {
	for _, w := range warnings {
		attrs := []any{"estimator", estimator, "kind", string(w.Kind), "metric", w.Metric}
		if w.Arm != nil {
			attrs = append(attrs, "arm", int(*w.Arm))
		}
		logger.Warn(w.Message, attrs...)
	}
}

func sortTreatments(ts []causal.Treatment) {
	sort.Slice(ts, func(i, j int) bool { return ts[i] < ts[j] })
}
