package estimation

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"gocausal/domain/causal"
	"gocausal/domain/core"
	"gocausal/domain/diagnostics"
	"gocausal/domain/propensity"
	"gocausal/internal/validation"
	"gocausal/ports"
)

// propensityModel is the treatment-model component shared by the
// weighting, doubly robust and targeted strategies.
type propensityModel struct {
	learner ports.Learner
}

func newPropensityModel(learner ports.Learner) (propensityModel, error) {
	err := validation.CheckModelInterface(learner,
		ports.CapabilityFit, ports.CapabilityPredict, ports.CapabilityPredictProba)
	return propensityModel{learner: learner}, err
}

func (p propensityModel) fit(X *causal.Covariates, A *causal.TreatmentVector) error {
	return fitLearner(p.learner, X.Values, A.Floats())
}

func (p propensityModel) matrix(X *causal.Covariates, values []causal.Treatment) (*causal.PropensityMatrix, error) {
	return propensity.ExtractPropensityMatrix(p.learner, X, values)
}

// clipMatrix truncates every entry of P when clipping is configured. Rows
// are not renormalised afterwards.
func clipMatrix(P *causal.PropensityMatrix, opts Options) (*causal.PropensityMatrix, []causal.Warning, error) {
	if !opts.clipping() {
		return P, nil, nil
	}
	n, k := P.Scores.Dims()
	clipped, stats, err := propensity.ClipPropensityScores(P.Scores.RawMatrix().Data, opts.ClipLower, opts.ClipUpper)
	if err != nil {
		return nil, nil, err
	}
	out := &causal.PropensityMatrix{
		Index:      P.Index,
		Treatments: P.Treatments,
		Scores:     mat.NewDense(n, k, clipped),
	}
	var warnings []causal.Warning
	if w, ok := propensity.ClipWarning(stats); ok {
		warnings = append(warnings, w)
	}
	return out, warnings, nil
}

// inverseWeights returns 1/p(observed) after optional clipping.
func inverseWeights(P *causal.PropensityMatrix, A *causal.TreatmentVector, opts Options) (causal.WeightVector, []causal.Warning, error) {
	observed, err := P.Observed(A)
	if err != nil {
		return causal.WeightVector{}, nil, err
	}
	var warnings []causal.Warning
	if opts.clipping() {
		var stats propensity.ClipStats
		observed, stats, err = propensity.ClipPropensityScores(observed, opts.ClipLower, opts.ClipUpper)
		if err != nil {
			return causal.WeightVector{}, nil, err
		}
		if w, ok := propensity.ClipWarning(stats); ok {
			warnings = append(warnings, w)
		}
	}
	weights, err := propensity.InverseWeights(observed, A)
	if err != nil {
		return causal.WeightVector{}, nil, err
	}
	if opts.Stabilized {
		if weights, err = propensity.StabilizeWeights(weights, A); err != nil {
			return causal.WeightVector{}, nil, err
		}
	}
	return weights, warnings, nil
}

// assessSupport raises ErrPositivityViolation when any requested arm's Kish
// ESS falls below the configured minimum and warns on extreme weights.
func assessSupport(w []float64, A *causal.TreatmentVector, arms []causal.Treatment, opts Options) ([]causal.Warning, error) {
	var collapsed []string
	var detail string
	for _, t := range arms {
		rows := A.Rows(t)
		ess := diagnostics.KishESS(subsetFloats(w, rows))
		if ess < opts.MinEffectiveSupport {
			collapsed = append(collapsed, t.String())
			detail = fmt.Sprintf("arm %s effective sample size %.2f below minimum %.2f", t, ess, opts.MinEffectiveSupport)
		}
	}
	if len(collapsed) > 0 {
		return nil, core.NewPositivityViolationError(detail, collapsed)
	}

	zOut, aboveMax := diagnostics.ExtremeWeights(w, opts.ExtremeWeightZ, opts.MaxWeight)
	if warning, ok := diagnostics.ExtremeWeightWarning(zOut, aboveMax, len(w), opts.ExtremeWeightZ, opts.MaxWeight); ok {
		return []causal.Warning{warning}, nil
	}
	return nil, nil
}

// weightedMeans returns sum w*Y*1[A=t] / sum w*1[A=t] per arm over rows.
func weightedMeans(w []float64, A *causal.TreatmentVector, Y *causal.OutcomeVector, rows []int, arms []causal.Treatment) (map[causal.Treatment]float64, error) {
	num := make(map[causal.Treatment]float64, len(arms))
	den := make(map[causal.Treatment]float64, len(arms))
	for _, r := range rows {
		t := A.Values[r]
		num[t] += w[r] * Y.Values[r]
		den[t] += w[r]
	}
	out := make(map[causal.Treatment]float64, len(arms))
	for _, t := range arms {
		if den[t] <= 0 {
			return nil, core.NewPositivityViolationError("arm carries no weight among observed outcomes", []string{t.String()})
		}
		out[t] = num[t] / den[t]
	}
	return out, nil
}
