package estimation

import (
	"gocausal/domain/causal"
	"gocausal/domain/core"
	"gocausal/ports"
)

// AIPW is the augmented inverse probability weighting estimator. Per arm t
// it averages m_t(X) + 1[A=t]/p_t(X) * (Y - m_t(X)), which stays consistent
// when either the propensity model or the outcome model is correct.
type AIPW struct {
	fitState
	propensity propensityModel
	outcome    OutcomeModelCapable
	opts       Options
}

// NewAIPW composes a propensity classifier with an outcome strategy such as
// Standardization or StratifiedStandardization.
func NewAIPW(propensityModel ports.Learner, outcome OutcomeModelCapable, opts Options) (*AIPW, error) {
	pm, err := newPropensityModel(propensityModel)
	if err != nil {
		return nil, err
	}
	if outcome == nil {
		return nil, core.NewLearnerInterfaceError("<nil outcome model>", string(ports.CapabilityPredict))
	}
	if opts, err = prepare(opts); err != nil {
		return nil, err
	}
	return &AIPW{propensity: pm, outcome: outcome, opts: opts}, nil
}

func (e *AIPW) Name() string               { return string(causal.KindAIPW) }
func (e *AIPW) Kind() causal.EstimatorKind { return causal.KindAIPW }

// Fit trains the propensity model on (X, A) and the outcome model on (X, A, Y).
func (e *AIPW) Fit(X *causal.Covariates, A *causal.TreatmentVector, Y *causal.OutcomeVector) error {
	if err := checkFitInputs(X, A, Y); err != nil {
		return err
	}
	values := A.Unique()
	e.opts.Logger.Debug("fitting nuisance models", "estimator", e.Name(), "rows", X.Len(), "arms", len(values))
	if err := e.propensity.fit(X, A); err != nil {
		return err
	}
	if err := e.outcome.Fit(X, A, Y); err != nil {
		return err
	}
	e.commit(values, X, func() {})
	return nil
}

// PropensityMatrix returns the unclipped propensity scores.
func (e *AIPW) PropensityMatrix(X *causal.Covariates) (*causal.PropensityMatrix, error) {
	var P *causal.PropensityMatrix
	err := e.withFitted(e.Name(), func(values []causal.Treatment) error {
		if err := e.checkFeatures(X); err != nil {
			return err
		}
		var err error
		P, err = e.propensity.matrix(X, values)
		return err
	})
	return P, err
}

// ComputeWeights returns the inverse probability weights of the
// augmentation term.
func (e *AIPW) ComputeWeights(X *causal.Covariates, A *causal.TreatmentVector) (causal.WeightVector, error) {
	var w causal.WeightVector
	err := e.withFitted(e.Name(), func(values []causal.Treatment) error {
		if err := checkEstimateInputs(X, A, nil, values); err != nil {
			return err
		}
		if err := e.checkFeatures(X); err != nil {
			return err
		}
		P, err := e.propensity.matrix(X, values)
		if err != nil {
			return err
		}
		w, _, err = inverseWeights(P, A, e.opts)
		return err
	})
	return w, err
}

// EstimateIndividualOutcome delegates to the outcome model.
func (e *AIPW) EstimateIndividualOutcome(X *causal.Covariates) (*causal.PotentialOutcomes, error) {
	if err := e.withFitted(e.Name(), func([]causal.Treatment) error { return nil }); err != nil {
		return nil, err
	}
	return e.outcome.EstimateIndividualOutcome(X)
}

// EstimatePopulationOutcome returns the doubly robust arm means with
// influence-function standard errors.
func (e *AIPW) EstimatePopulationOutcome(X *causal.Covariates, A *causal.TreatmentVector, Y *causal.OutcomeVector) (*causal.PotentialOutcomes, error) {
	var po *causal.PotentialOutcomes
	err := e.withFitted(e.Name(), func(values []causal.Treatment) error {
		if err := checkEstimateInputs(X, A, Y, values); err != nil {
			return err
		}
		if err := e.checkFeatures(X); err != nil {
			return err
		}
		rows, warnings, err := observedOutcomes(Y)
		if err != nil {
			return err
		}
		raw, err := e.propensity.matrix(X, values)
		if err != nil {
			return err
		}
		P, clipWarnings, err := clipMatrix(raw, e.opts)
		if err != nil {
			return err
		}
		warnings = append(warnings, clipWarnings...)

		ipw, err := P.Observed(A)
		if err != nil {
			return err
		}
		for i, p := range ipw {
			if p <= 0 {
				return core.NewPositivityViolationError("observed treatment has zero propensity", []string{A.Index[i]})
			}
			ipw[i] = 1 / p
		}
		support, err := assessSupport(ipw, A, values, e.opts)
		if err != nil {
			return err
		}
		warnings = append(warnings, support...)

		m, err := e.outcome.EstimateIndividualOutcome(X)
		if err != nil {
			return err
		}

		po = causal.NewPotentialOutcomes(values)
		po.Influence = make(map[causal.Treatment][]float64, len(values))
		for _, t := range values {
			mt, err := m.Vector(t)
			if err != nil {
				return err
			}
			pt, err := P.For(t)
			if err != nil {
				return err
			}
			pseudo := make([]float64, len(rows))
			for i, r := range rows {
				pseudo[i] = mt[r]
				if A.Values[r] == t {
					pseudo[i] += (Y.Values[r] - mt[r]) / pt[r]
				}
			}
			mu := mean(pseudo)
			centred := make([]float64, len(pseudo))
			for i, v := range pseudo {
				centred[i] = v - mu
			}
			po.Means[t] = mu
			po.Influence[t] = centred
		}
		influenceSummary(po, e.opts.ConfidenceLevel)
		po.Warnings = append(warnings, m.Warnings...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	logWarnings(e.opts.Logger, e.Name(), po.Warnings)
	return po, nil
}
