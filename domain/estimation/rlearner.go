package estimation

import (
	"fmt"
	"math"

	"gocausal/domain/causal"
	"gocausal/domain/core"
	"gocausal/domain/propensity"
	"gocausal/internal/validation"
	"gocausal/ports"
)

// residualFloor drops units whose treatment residual is too small to carry
// information in the final stage.
const residualFloor = 1e-3

// RLearner minimises the residual-on-residual loss sum (Y~ - A~*tau(X))^2 by
// fitting the effect model on Y~/A~ with weights A~^2. Y~ and A~ are
// residuals against cross-fitted m(X) and e(X).
type RLearner struct {
	fitState
	contrast
	models MetaLearners
	opts   Options

	outcomeModels    []ports.Learner
	propensityModels []ports.Learner
	effect           ports.Learner
	fitWarnings      []causal.Warning
}

// NewRLearner checks every factory's capabilities once. The effect factory
// must produce weighted learners.
func NewRLearner(models MetaLearners, treated, baseline causal.Treatment, opts Options) (*RLearner, error) {
	pair, err := newContrast(treated, baseline)
	if err != nil {
		return nil, err
	}
	if err := models.check(ports.CapabilityFit, ports.CapabilityPredict, ports.CapabilityFitWeighted); err != nil {
		return nil, err
	}
	if opts, err = prepare(opts); err != nil {
		return nil, err
	}
	return &RLearner{contrast: pair, models: models, opts: opts}, nil
}

func (r *RLearner) Name() string               { return string(causal.KindRLearner) }
func (r *RLearner) Kind() causal.EstimatorKind { return causal.KindRLearner }

// Fit cross-fits m(X) = E[Y|X] and e(X) = P(treated|X) and trains the effect
// model on the out-of-fold residuals.
func (r *RLearner) Fit(X *causal.Covariates, A *causal.TreatmentVector, Y *causal.OutcomeVector) error {
	rows, warnings, err := r.checkFitData(X, A, Y)
	if err != nil {
		return err
	}
	sub := A.Subset(rows)
	folds, err := NewFolds(sub.Values, r.opts.Folds, r.opts.Seed)
	if err != nil {
		return err
	}
	r.opts.Logger.Debug("cross-fitting nuisance models", "estimator", r.Name(),
		"rows", len(rows), "folds", folds.K(), "seed", folds.Seed())

	labels := A.Floats()
	mHat := make([]float64, X.Len())
	eHat := make([]float64, X.Len())
	outcomeModels := make([]ports.Learner, 0, folds.K())
	propensityModels := make([]ports.Learner, 0, folds.K())
	for k := 0; k < folds.K(); k++ {
		train := make([]int, 0, len(rows))
		for _, j := range folds.Train(k) {
			train = append(train, rows[j])
		}
		test := make([]int, 0, len(rows)/folds.K()+1)
		for _, j := range folds.Test(k) {
			test = append(test, rows[j])
		}
		testX := X.Subset(test)

		m, pred, err := fitPredict(r.models.Outcome, X, Y.Values, train, testX.Values)
		if err != nil {
			return err
		}
		e, _, err := fitPredict(r.models.Propensity, X, labels, train, nil)
		if err != nil {
			return err
		}
		scores, err := propensity.ExtractPropensityScores(e, testX, r.treated, r.arms())
		if err != nil {
			return err
		}
		for i, row := range test {
			mHat[row] = pred[i]
			eHat[row] = scores[i]
		}
		outcomeModels = append(outcomeModels, m)
		propensityModels = append(propensityModels, e)
	}

	target := make([]float64, X.Len())
	weights := make([]float64, X.Len())
	keep := make([]int, 0, len(rows))
	for _, row := range rows {
		aRes := -eHat[row]
		if A.Values[row] == r.treated {
			aRes++
		}
		if math.Abs(aRes) < residualFloor {
			continue
		}
		target[row] = (Y.Values[row] - mHat[row]) / aRes
		weights[row] = aRes * aRes
		keep = append(keep, row)
	}
	if len(keep) == 0 {
		return core.NewPositivityViolationError("every treatment residual is below the floor", nil)
	}
	if dropped := len(rows) - len(keep); dropped > 0 {
		warnings = append(warnings, causal.NewWarning(causal.PositivityViolationWarning, float64(dropped),
			"%d units with |A - e(X)| below %g were dropped from the final stage", dropped, residualFloor))
	}

	effect := r.models.Effect()
	weighted, ok := effect.(ports.WeightedLearner)
	if !ok {
		return core.NewLearnerInterfaceError(learnerName(effect), string(ports.CapabilityFitWeighted))
	}
	if err := fitLearnerWeighted(weighted, X.Subset(keep).Values, subsetFloats(target, keep), subsetFloats(weights, keep)); err != nil {
		return err
	}

	logWarnings(r.opts.Logger, r.Name(), warnings)
	r.commit(A.Unique(), X, func() {
		r.outcomeModels = outcomeModels
		r.propensityModels = propensityModels
		r.effect = effect
		r.fitWarnings = warnings
	})
	return nil
}

// treatedScores averages P(treated|X) over the fold models.
func (r *RLearner) treatedScores(X *causal.Covariates) ([]float64, error) {
	avg := make([]float64, X.Len())
	for k, model := range r.propensityModels {
		scores, err := propensity.ExtractPropensityScores(model, X, r.treated, r.arms())
		if err != nil {
			return nil, fmt.Errorf("fold %d: %w", k, err)
		}
		for i, v := range scores {
			avg[i] += v
		}
	}
	for i := range avg {
		avg[i] /= float64(len(r.propensityModels))
	}
	return avg, nil
}

// predict runs under the read lock.
func (r *RLearner) predict(X *causal.Covariates) (*causal.PotentialOutcomes, error) {
	if err := r.checkFeatures(X); err != nil {
		return nil, err
	}
	if err := validation.CheckCovariates(X); err != nil {
		return nil, err
	}
	m, err := averagePredictions(r.outcomeModels, X.Values)
	if err != nil {
		return nil, err
	}
	e, err := r.treatedScores(X)
	if err != nil {
		return nil, err
	}
	tau, err := predictLearner(r.effect, X.Values)
	if err != nil {
		return nil, err
	}
	mu0 := make([]float64, len(m))
	for i := range mu0 {
		mu0[i] = m[i] - e[i]*tau[i]
	}
	return r.pairPotentialOutcomes(mu0, tau, r.fitWarnings), nil
}

// EstimateIndividualOutcome returns m - e*tau and m + (1-e)*tau per row.
func (r *RLearner) EstimateIndividualOutcome(X *causal.Covariates) (*causal.PotentialOutcomes, error) {
	var po *causal.PotentialOutcomes
	err := r.withFitted(r.Name(), func([]causal.Treatment) error {
		var err error
		po, err = r.predict(X)
		return err
	})
	return po, err
}

// EstimateIndividualEffect returns the final-stage CATE as a per-row effect.
func (r *RLearner) EstimateIndividualEffect(X *causal.Covariates, effectType causal.EffectType) (causal.EffectEstimate, error) {
	var est causal.EffectEstimate
	err := r.withFitted(r.Name(), func([]causal.Treatment) error {
		po, err := r.predict(X)
		if err != nil {
			return err
		}
		est, err = r.individualEffect(po, effectType)
		return err
	})
	return est, err
}

// EstimatePopulationOutcome averages the per-row outcomes over the contrast
// units of A; Y may be nil.
func (r *RLearner) EstimatePopulationOutcome(X *causal.Covariates, A *causal.TreatmentVector, _ *causal.OutcomeVector) (*causal.PotentialOutcomes, error) {
	var po *causal.PotentialOutcomes
	err := r.withFitted(r.Name(), func(values []causal.Treatment) error {
		if err := checkEstimateInputs(X, A, nil, values); err != nil {
			return err
		}
		individual, err := r.predict(X)
		if err != nil {
			return err
		}
		po, err = r.populationFrom(individual, A)
		return err
	})
	return po, err
}

// PropensityMatrix returns the fold-averaged two-column P(arm|X).
func (r *RLearner) PropensityMatrix(X *causal.Covariates) (*causal.PropensityMatrix, error) {
	var P *causal.PropensityMatrix
	err := r.withFitted(r.Name(), func([]causal.Treatment) error {
		if err := r.checkFeatures(X); err != nil {
			return err
		}
		e, err := r.treatedScores(X)
		if err != nil {
			return err
		}
		P = r.pairPropensity(X, e)
		return nil
	})
	return P, err
}
