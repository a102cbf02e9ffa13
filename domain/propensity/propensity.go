// Package propensity turns a supplied probabilistic classifier into
// calibrated treatment probabilities and the weights derived from them.
package propensity

import (
	"fmt"
	"math"
	"strconv"

	"gonum.org/v1/gonum/mat"

	"gocausal/domain/causal"
	"gocausal/domain/core"
	"gocausal/internal/validation"
	"gocausal/ports"
)

// probabilityTolerance absorbs floating-point noise around [0, 1] and row sums.
const probabilityTolerance = 1e-6

// minPropensity keeps overlap-weight arithmetic finite.
const minPropensity = 1e-12

// ClipStats records how many scores truncation altered.
type ClipStats struct {
	Lower        float64
	Upper        float64
	NClippedLow  int
	NClippedHigh int
	NTotal       int
	PctClipped   float64
}

// NClipped returns the total number of altered entries.
func (s ClipStats) NClipped() int {
	return s.NClippedLow + s.NClippedHigh
}

// ExtractPropensityMatrix returns P(A=t|X) for every known treatment value.
// Column order comes from the learner's ClassReporter when it has one and
// from the ascending treatment values otherwise; a single probability column
// with two known arms is read as the probability of the larger label.
func ExtractPropensityMatrix(model ports.Learner, X *causal.Covariates, treatmentValues []causal.Treatment) (*causal.PropensityMatrix, error) {
	learnerName := fmt.Sprintf("%T", model)
	classifier, ok := model.(ports.ProbabilisticLearner)
	if !ok {
		return nil, core.NewLearnerInterfaceError(learnerName, string(ports.CapabilityPredictProba))
	}
	raw, err := classifier.PredictProba(X.Values)
	if err != nil {
		return nil, core.WrapLearnerError(learnerName, "predict_proba", err)
	}
	if raw == nil {
		return nil, core.NewLearnerInterfaceError(learnerName, "predict_proba returned no matrix")
	}
	n, c := raw.Dims()
	if n != X.Len() {
		return nil, core.NewAlignmentError(fmt.Sprintf("%s returned %d probability rows for %d covariate rows", learnerName, n, X.Len()), nil)
	}

	k := len(treatmentValues)
	columnOf, err := mapColumns(model, learnerName, treatmentValues, c)
	if err != nil {
		return nil, err
	}

	scores := mat.NewDense(n, k, nil)
	var invalid []string
	for i := 0; i < n; i++ {
		rowSum := 0.0
		bad := false
		for j := 0; j < k && !bad; j++ {
			var p float64
			switch col := columnOf[j]; {
			case col >= 0:
				p = raw.At(i, col)
			case col == complementColumn:
				p = 1 - raw.At(i, 0)
			}
			if math.IsNaN(p) || p < -probabilityTolerance || p > 1+probabilityTolerance {
				bad = true
				continue
			}
			p = math.Min(1, math.Max(0, p))
			scores.Set(i, j, p)
			rowSum += p
		}
		if bad || rowSum <= 0 {
			invalid = append(invalid, X.Index[i])
			continue
		}
		if math.Abs(rowSum-1) > probabilityTolerance {
			for j := 0; j < k; j++ {
				scores.Set(i, j, scores.At(i, j)/rowSum)
			}
		}
	}
	if len(invalid) > 0 {
		return nil, &core.CausalError{
			Kind:    core.ErrInvalidValue,
			Message: learnerName + " produced invalid probabilities",
			Indices: invalid,
		}
	}

	return &causal.PropensityMatrix{
		Index:      X.Index,
		Treatments: append([]causal.Treatment(nil), treatmentValues...),
		Scores:     scores,
	}, nil
}

// complementColumn marks a treatment read as 1 - p from a single-column output.
const complementColumn = -2

// missingColumn marks a treatment value the learner never saw as a class.
const missingColumn = -1

func mapColumns(model ports.Learner, learnerName string, treatmentValues []causal.Treatment, c int) ([]int, error) {
	k := len(treatmentValues)
	columnOf := make([]int, k)

	if reporter, ok := model.(ports.ClassReporter); ok {
		classes := reporter.Classes()
		if len(classes) != c {
			return nil, core.NewLearnerInterfaceError(learnerName, fmt.Sprintf("classes (%d) do not match probability columns (%d)", len(classes), c))
		}
		found := 0
		for j, t := range treatmentValues {
			columnOf[j] = missingColumn
			for col, label := range classes {
				if label == float64(t) {
					columnOf[j] = col
					found++
					break
				}
			}
		}
		if found == 0 {
			return nil, core.NewTreatmentValueError(learnerName+" classes share no value with the treatment", nil)
		}
		return columnOf, nil
	}

	switch {
	case c == k:
		for j := range columnOf {
			columnOf[j] = j
		}
	case c == 1 && k == 2:
		columnOf[0] = complementColumn
		columnOf[1] = 0
	default:
		return nil, core.NewLearnerInterfaceError(learnerName, fmt.Sprintf("%d probability columns for %d treatment values", c, k))
	}
	return columnOf, nil
}

// ExtractPropensityScores returns P(A = treatment | X) for one arm.
func ExtractPropensityScores(model ports.Learner, X *causal.Covariates, treatment causal.Treatment, treatmentValues []causal.Treatment) ([]float64, error) {
	if err := validation.CheckKnownTreatment(treatment, treatmentValues); err != nil {
		return nil, err
	}
	P, err := ExtractPropensityMatrix(model, X, treatmentValues)
	if err != nil {
		return nil, err
	}
	return P.For(treatment)
}

// SymmetricBounds returns [lower, 1-lower].
func SymmetricBounds(lower float64) (float64, float64) {
	return lower, 1 - lower
}

// ClipPropensityScores truncates scores to [lower, upper] and reports how
// many entries were altered.
func ClipPropensityScores(scores []float64, lower, upper float64) ([]float64, ClipStats, error) {
	if err := validation.CheckClipBounds(lower, upper); err != nil {
		return nil, ClipStats{}, err
	}
	out := make([]float64, len(scores))
	stats := ClipStats{Lower: lower, Upper: upper, NTotal: len(scores)}
	for i, p := range scores {
		switch {
		case p < lower:
			out[i] = lower
			stats.NClippedLow++
		case p > upper:
			out[i] = upper
			stats.NClippedHigh++
		default:
			out[i] = p
		}
	}
	if stats.NTotal > 0 {
		stats.PctClipped = 100 * float64(stats.NClipped()) / float64(stats.NTotal)
	}
	return out, stats, nil
}

// ComputePropensityWeights returns 1 / p(observed treatment | X) per row.
func ComputePropensityWeights(P *causal.PropensityMatrix, A *causal.TreatmentVector) (causal.WeightVector, error) {
	observed, err := P.Observed(A)
	if err != nil {
		return causal.WeightVector{}, err
	}
	return InverseWeights(observed, A)
}

// InverseWeights returns 1/p for already extracted (possibly clipped) scores.
func InverseWeights(observed []float64, A *causal.TreatmentVector) (causal.WeightVector, error) {
	weights := make([]float64, len(observed))
	var zero []string
	for i, p := range observed {
		if p <= 0 {
			zero = append(zero, A.Index[i])
			continue
		}
		weights[i] = 1 / p
	}
	if len(zero) > 0 {
		return causal.WeightVector{}, &core.CausalError{
			Kind:    core.ErrPositivityViolation,
			Message: "observed treatment has zero propensity",
			Indices: zero,
		}
	}
	return causal.WeightVector{Index: A.Index, Values: weights}, nil
}

// StabilizeWeights multiplies each weight by the marginal prevalence of the
// observed treatment.
func StabilizeWeights(weights causal.WeightVector, A *causal.TreatmentVector) (causal.WeightVector, error) {
	if len(weights.Values) != A.Len() {
		return causal.WeightVector{}, core.NewAlignmentError(
			fmt.Sprintf("%d weights for %d treatment rows", len(weights.Values), A.Len()), nil)
	}
	prevalence := A.Prevalence()
	out := make([]float64, len(weights.Values))
	for i, w := range weights.Values {
		out[i] = w * prevalence[A.Values[i]]
	}
	return causal.WeightVector{Index: weights.Index, Values: out}, nil
}

// ComputeOverlapWeights returns generalized overlap weights h(x)/p(observed|x)
// with h(x) = 1 / sum_t 1/p_t(x). For two arms this is 1 - p(observed|x).
func ComputeOverlapWeights(P *causal.PropensityMatrix, A *causal.TreatmentVector) (causal.WeightVector, error) {
	observed, err := P.Observed(A)
	if err != nil {
		return causal.WeightVector{}, err
	}
	n, k := P.Scores.Dims()
	weights := make([]float64, n)
	for i := 0; i < n; i++ {
		pa := math.Max(observed[i], minPropensity)
		denom := 0.0
		for j := 0; j < k; j++ {
			denom += pa / math.Max(P.Scores.At(i, j), minPropensity)
		}
		weights[i] = 1 / denom
	}
	return causal.WeightVector{Index: A.Index, Values: weights}, nil
}

// ClipWarning renders clip statistics into the diagnostic channel.
func ClipWarning(stats ClipStats) (causal.Warning, bool) {
	if stats.NClipped() == 0 {
		return causal.Warning{}, false
	}
	return causal.NewWarning(causal.PropensityClippingWarning, stats.PctClipped,
		"%d propensity scores clipped to %s and %d to %s (%.2f%% of scores)",
		stats.NClippedLow, strconv.FormatFloat(stats.Lower, 'g', 4, 64),
		stats.NClippedHigh, strconv.FormatFloat(stats.Upper, 'g', 4, 64), stats.PctClipped), true
}
