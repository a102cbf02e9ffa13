package estimation

import (
	"gocausal/domain/causal"
	"gocausal/domain/propensity"
	"gocausal/ports"
)

// weightScheme turns a propensity matrix into balancing weights.
type weightScheme func(P *causal.PropensityMatrix, A *causal.TreatmentVector, opts Options) (causal.WeightVector, []causal.Warning, error)

func overlapScheme(P *causal.PropensityMatrix, A *causal.TreatmentVector, opts Options) (causal.WeightVector, []causal.Warning, error) {
	P, warnings, err := clipMatrix(P, opts)
	if err != nil {
		return causal.WeightVector{}, nil, err
	}
	w, err := propensity.ComputeOverlapWeights(P, A)
	return w, warnings, err
}

// weighting is the machinery shared by IPW and OverlapWeights: fit the
// propensity model, then take per-arm weighted outcome means.
type weighting struct {
	fitState
	kind       causal.EstimatorKind
	propensity propensityModel
	scheme     weightScheme
	opts       Options
}

func newWeighting(kind causal.EstimatorKind, model ports.Learner, scheme weightScheme, opts Options) (*weighting, error) {
	pm, err := newPropensityModel(model)
	if err != nil {
		return nil, err
	}
	if opts, err = prepare(opts); err != nil {
		return nil, err
	}
	return &weighting{kind: kind, propensity: pm, scheme: scheme, opts: opts}, nil
}

func (w *weighting) Name() string               { return string(w.kind) }
func (w *weighting) Kind() causal.EstimatorKind { return w.kind }

// Fit trains the propensity model on (X, A). Y is not needed.
func (w *weighting) Fit(X *causal.Covariates, A *causal.TreatmentVector) error {
	if err := checkFitInputs(X, A, nil); err != nil {
		return err
	}
	values := A.Unique()
	w.opts.Logger.Debug("fitting propensity model", "estimator", w.Name(), "rows", X.Len(), "arms", len(values))
	if err := w.propensity.fit(X, A); err != nil {
		return err
	}
	w.commit(values, X, func() {})
	return nil
}

// PropensityMatrix returns P(A=t|X) for every fitted arm, unclipped.
func (w *weighting) PropensityMatrix(X *causal.Covariates) (*causal.PropensityMatrix, error) {
	var P *causal.PropensityMatrix
	err := w.withFitted(w.Name(), func(values []causal.Treatment) error {
		if err := w.checkFeatures(X); err != nil {
			return err
		}
		var err error
		P, err = w.propensity.matrix(X, values)
		return err
	})
	return P, err
}

// ComputeWeights returns the balancing weight of every row.
func (w *weighting) ComputeWeights(X *causal.Covariates, A *causal.TreatmentVector) (causal.WeightVector, error) {
	var weights causal.WeightVector
	err := w.withFitted(w.Name(), func(values []causal.Treatment) error {
		if err := checkEstimateInputs(X, A, nil, values); err != nil {
			return err
		}
		var err error
		weights, _, err = w.weights(values, X, A)
		return err
	})
	return weights, err
}

// weights runs under the read lock after the input gate.
func (w *weighting) weights(values []causal.Treatment, X *causal.Covariates, A *causal.TreatmentVector) (causal.WeightVector, []causal.Warning, error) {
	if err := w.checkFeatures(X); err != nil {
		return causal.WeightVector{}, nil, err
	}
	P, err := w.propensity.matrix(X, values)
	if err != nil {
		return causal.WeightVector{}, nil, err
	}
	return w.scheme(P, A, w.opts)
}

// EstimatePopulationOutcome returns sum w*Y*1[A=t] / sum w*1[A=t] per arm.
func (w *weighting) EstimatePopulationOutcome(X *causal.Covariates, A *causal.TreatmentVector, Y *causal.OutcomeVector) (*causal.PotentialOutcomes, error) {
	var po *causal.PotentialOutcomes
	err := w.withFitted(w.Name(), func(values []causal.Treatment) error {
		if err := checkEstimateInputs(X, A, Y, values); err != nil {
			return err
		}
		rows, warnings, err := observedOutcomes(Y)
		if err != nil {
			return err
		}
		weights, clipWarnings, err := w.weights(values, X, A)
		if err != nil {
			return err
		}
		warnings = append(warnings, clipWarnings...)

		support, err := assessSupport(weights.Values, A, values, w.opts)
		if err != nil {
			return err
		}
		warnings = append(warnings, support...)

		means, err := weightedMeans(weights.Values, A, Y, rows, values)
		if err != nil {
			return err
		}
		po = causal.NewPotentialOutcomes(values)
		po.Means = means
		po.Warnings = warnings
		return nil
	})
	if err != nil {
		return nil, err
	}
	logWarnings(w.opts.Logger, w.Name(), po.Warnings)
	return po, nil
}

// IPW estimates arm means with inverse probability weights 1/p(A|X),
// optionally clipped and stabilized.
type IPW struct {
	*weighting
}

// NewIPW checks the propensity model's capabilities once, at construction.
func NewIPW(propensityModel ports.Learner, opts Options) (*IPW, error) {
	w, err := newWeighting(causal.KindIPW, propensityModel, inverseWeights, opts)
	if err != nil {
		return nil, err
	}
	return &IPW{weighting: w}, nil
}

// OverlapWeights estimates arm means with generalized overlap weights,
// which move the estimand toward the population with common support.
type OverlapWeights struct {
	*weighting
}

// NewOverlapWeights checks the propensity model's capabilities once.
func NewOverlapWeights(propensityModel ports.Learner, opts Options) (*OverlapWeights, error) {
	w, err := newWeighting(causal.KindOverlapWeights, propensityModel, overlapScheme, opts)
	if err != nil {
		return nil, err
	}
	return &OverlapWeights{weighting: w}, nil
}
