package estimation

import (
	"math"

	"gocausal/domain/causal"
	"gocausal/domain/propensity"
	"gocausal/internal/validation"
	"gocausal/ports"
)

// XLearner imputes individual effects with cross-fitted per-arm outcome
// models, regresses them on X per arm, and blends the two effect models
// with the propensity score: tau = e*tau_c + (1-e)*tau_t.
type XLearner struct {
	fitState
	contrast
	models MetaLearners
	opts   Options

	baselineModels []ports.Learner
	tauTreated     ports.Learner
	tauBaseline    ports.Learner
	propensity     ports.Learner
	fitWarnings    []causal.Warning
}

// NewXLearner checks every factory's capabilities once.
func NewXLearner(models MetaLearners, treated, baseline causal.Treatment, opts Options) (*XLearner, error) {
	pair, err := newContrast(treated, baseline)
	if err != nil {
		return nil, err
	}
	if err := models.check(ports.CapabilityFit, ports.CapabilityPredict); err != nil {
		return nil, err
	}
	if opts, err = prepare(opts); err != nil {
		return nil, err
	}
	return &XLearner{contrast: pair, models: models, opts: opts}, nil
}

func (x *XLearner) Name() string               { return string(causal.KindXLearner) }
func (x *XLearner) Kind() causal.EstimatorKind { return causal.KindXLearner }

// Fit cross-fits the outcome models, imputes effects on held-out rows and
// trains the effect and propensity models on the contrast units.
func (x *XLearner) Fit(X *causal.Covariates, A *causal.TreatmentVector, Y *causal.OutcomeVector) error {
	rows, warnings, err := x.checkFitData(X, A, Y)
	if err != nil {
		return err
	}
	sub := A.Subset(rows)
	folds, err := NewFolds(sub.Values, x.opts.Folds, x.opts.Seed)
	if err != nil {
		return err
	}
	x.opts.Logger.Debug("cross-fitting outcome models", "estimator", x.Name(),
		"rows", len(rows), "folds", folds.K(), "seed", folds.Seed())

	imputed := make([]float64, X.Len())
	for i := range imputed {
		imputed[i] = math.NaN()
	}
	baselineModels := make([]ports.Learner, 0, folds.K())
	for k := 0; k < folds.K(); k++ {
		var trainTreated, trainBaseline []int
		for _, j := range folds.Train(k) {
			if r := rows[j]; A.Values[r] == x.treated {
				trainTreated = append(trainTreated, r)
			} else {
				trainBaseline = append(trainBaseline, r)
			}
		}
		test := make([]int, 0, len(folds.Test(k)))
		for _, j := range folds.Test(k) {
			test = append(test, rows[j])
		}
		testX := X.Subset(test).Values

		_, muTreated, err := fitPredict(x.models.Outcome, X, Y.Values, trainTreated, testX)
		if err != nil {
			return err
		}
		muBaselineModel, muBaseline, err := fitPredict(x.models.Outcome, X, Y.Values, trainBaseline, testX)
		if err != nil {
			return err
		}
		baselineModels = append(baselineModels, muBaselineModel)

		for i, r := range test {
			if A.Values[r] == x.treated {
				imputed[r] = Y.Values[r] - muBaseline[i]
			} else {
				imputed[r] = muTreated[i] - Y.Values[r]
			}
		}
	}

	var treatedRows, baselineRows []int
	for _, r := range rows {
		if A.Values[r] == x.treated {
			treatedRows = append(treatedRows, r)
		} else {
			baselineRows = append(baselineRows, r)
		}
	}
	tauTreated, _, err := fitPredict(x.models.Effect, X, imputed, treatedRows, nil)
	if err != nil {
		return err
	}
	tauBaseline, _, err := fitPredict(x.models.Effect, X, imputed, baselineRows, nil)
	if err != nil {
		return err
	}
	prop := x.models.Propensity()
	if err := fitLearner(prop, X.Subset(rows).Values, sub.Floats()); err != nil {
		return err
	}

	logWarnings(x.opts.Logger, x.Name(), warnings)
	x.commit(A.Unique(), X, func() {
		x.baselineModels = baselineModels
		x.tauTreated = tauTreated
		x.tauBaseline = tauBaseline
		x.propensity = prop
		x.fitWarnings = warnings
	})
	return nil
}

// predict runs under the read lock.
func (x *XLearner) predict(X *causal.Covariates) (*causal.PotentialOutcomes, error) {
	if err := x.checkFeatures(X); err != nil {
		return nil, err
	}
	if err := validation.CheckCovariates(X); err != nil {
		return nil, err
	}
	e, err := propensity.ExtractPropensityScores(x.propensity, X, x.treated, x.arms())
	if err != nil {
		return nil, err
	}
	tauT, err := predictLearner(x.tauTreated, X.Values)
	if err != nil {
		return nil, err
	}
	tauC, err := predictLearner(x.tauBaseline, X.Values)
	if err != nil {
		return nil, err
	}
	mu0, err := averagePredictions(x.baselineModels, X.Values)
	if err != nil {
		return nil, err
	}
	tau := make([]float64, len(mu0))
	for i := range tau {
		tau[i] = e[i]*tauC[i] + (1-e[i])*tauT[i]
	}
	return x.pairPotentialOutcomes(mu0, tau, x.fitWarnings), nil
}

// EstimateIndividualOutcome returns per-row outcomes under both arms of the
// contrast.
func (x *XLearner) EstimateIndividualOutcome(X *causal.Covariates) (*causal.PotentialOutcomes, error) {
	var po *causal.PotentialOutcomes
	err := x.withFitted(x.Name(), func([]causal.Treatment) error {
		var err error
		po, err = x.predict(X)
		return err
	})
	return po, err
}

// EstimateIndividualEffect returns the blended CATE as a per-row effect.
func (x *XLearner) EstimateIndividualEffect(X *causal.Covariates, effectType causal.EffectType) (causal.EffectEstimate, error) {
	var est causal.EffectEstimate
	err := x.withFitted(x.Name(), func([]causal.Treatment) error {
		po, err := x.predict(X)
		if err != nil {
			return err
		}
		est, err = x.individualEffect(po, effectType)
		return err
	})
	return est, err
}

// EstimatePopulationOutcome averages the per-row outcomes over the contrast
// units of A; Y may be nil.
func (x *XLearner) EstimatePopulationOutcome(X *causal.Covariates, A *causal.TreatmentVector, _ *causal.OutcomeVector) (*causal.PotentialOutcomes, error) {
	var po *causal.PotentialOutcomes
	err := x.withFitted(x.Name(), func(values []causal.Treatment) error {
		if err := checkEstimateInputs(X, A, nil, values); err != nil {
			return err
		}
		individual, err := x.predict(X)
		if err != nil {
			return err
		}
		po, err = x.populationFrom(individual, A)
		return err
	})
	return po, err
}

// PropensityMatrix returns the two-column P(arm|X) over the contrast.
func (x *XLearner) PropensityMatrix(X *causal.Covariates) (*causal.PropensityMatrix, error) {
	var P *causal.PropensityMatrix
	err := x.withFitted(x.Name(), func([]causal.Treatment) error {
		if err := x.checkFeatures(X); err != nil {
			return err
		}
		var err error
		P, err = propensity.ExtractPropensityMatrix(x.propensity, X, x.arms())
		return err
	})
	return P, err
}
