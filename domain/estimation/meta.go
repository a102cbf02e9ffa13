package estimation

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"gocausal/domain/causal"
	"gocausal/domain/core"
	"gocausal/domain/effects"
	"gocausal/internal/validation"
	"gocausal/ports"
)

// MetaLearners supplies the learner factories of a meta-learner. Each
// cross-fitting fold gets fresh instances.
type MetaLearners struct {
	// Propensity must produce probabilistic classifiers.
	Propensity ports.LearnerFactory
	// Outcome produces the regressors for E[Y|X] or the per-arm outcome models.
	Outcome ports.LearnerFactory
	// Effect produces the CATE regressors. The R-learner needs weighted fitting.
	Effect ports.LearnerFactory
}

func (m MetaLearners) check(effectCaps ...ports.Capability) error {
	if err := validation.CheckFactory(m.Propensity,
		ports.CapabilityFit, ports.CapabilityPredict, ports.CapabilityPredictProba); err != nil {
		return err
	}
	if err := validation.CheckFactory(m.Outcome, ports.CapabilityFit, ports.CapabilityPredict); err != nil {
		return err
	}
	return validation.CheckFactory(m.Effect, effectCaps...)
}

// contrast is the (treated, baseline) pair a meta-learner estimates. Units
// in other arms are excluded from fitting and from population averages.
type contrast struct {
	treated  causal.Treatment
	baseline causal.Treatment
}

func newContrast(treated, baseline causal.Treatment) (contrast, error) {
	if treated == baseline {
		return contrast{}, core.NewTreatmentValueError("treated and baseline arms must differ", []string{treated.String()})
	}
	return contrast{treated: treated, baseline: baseline}, nil
}

// Contrast returns the treated and baseline arms.
func (c contrast) Contrast() (treated, baseline causal.Treatment) {
	return c.treated, c.baseline
}

// arms returns the pair in ascending order, matching propensity columns.
func (c contrast) arms() []causal.Treatment {
	if c.treated < c.baseline {
		return []causal.Treatment{c.treated, c.baseline}
	}
	return []causal.Treatment{c.baseline, c.treated}
}

func (c contrast) includes(t causal.Treatment) bool {
	return t == c.treated || t == c.baseline
}

// rows returns the positions in the pair, restricted to observed outcomes
// when Y is given.
func (c contrast) rows(A *causal.TreatmentVector, Y *causal.OutcomeVector) []int {
	var observed map[int]bool
	if Y != nil {
		obs := Y.ObservedRows()
		observed = make(map[int]bool, len(obs))
		for _, r := range obs {
			observed[r] = true
		}
	}
	rows := make([]int, 0, A.Len())
	for i, t := range A.Values {
		if !c.includes(t) {
			continue
		}
		if observed != nil && !observed[i] {
			continue
		}
		rows = append(rows, i)
	}
	return rows
}

// checkFitData validates the inputs of a meta-learner fit and returns the
// contrast rows with an observed outcome plus any warnings.
func (c contrast) checkFitData(X *causal.Covariates, A *causal.TreatmentVector, Y *causal.OutcomeVector) ([]int, []causal.Warning, error) {
	if err := checkFitInputs(X, A, Y); err != nil {
		return nil, nil, err
	}
	if Y == nil {
		return nil, nil, core.NewInvalidValueError("meta-learners need an outcome vector")
	}
	seen := A.Unique()
	for _, t := range []causal.Treatment{c.treated, c.baseline} {
		if err := validation.CheckKnownTreatment(t, seen); err != nil {
			return nil, nil, err
		}
	}
	_, warnings, err := observedOutcomes(Y)
	if err != nil {
		return nil, nil, err
	}
	return c.rows(A, Y), warnings, nil
}

// pairPotentialOutcomes assembles per-row outcomes for the pair from the
// baseline prediction and the effect.
func (c contrast) pairPotentialOutcomes(mu0, tau []float64, warnings []causal.Warning) *causal.PotentialOutcomes {
	mu1 := make([]float64, len(mu0))
	for i := range mu0 {
		mu1[i] = mu0[i] + tau[i]
	}
	po := causal.NewPotentialOutcomes(c.arms())
	po.Individual = map[causal.Treatment][]float64{c.baseline: mu0, c.treated: mu1}
	po.Means[c.baseline] = mean(mu0)
	po.Means[c.treated] = mean(mu1)
	po.Warnings = append(po.Warnings, warnings...)
	return po
}

// populationFrom averages per-row outcomes over the pair's rows of A.
func (c contrast) populationFrom(individual *causal.PotentialOutcomes, A *causal.TreatmentVector) (*causal.PotentialOutcomes, error) {
	rows := c.rows(A, nil)
	if len(rows) == 0 {
		return nil, core.NewTreatmentValueError(
			fmt.Sprintf("no units in arms %s or %s", c.treated, c.baseline), nil)
	}
	po := causal.NewPotentialOutcomes(c.arms())
	po.Individual = make(map[causal.Treatment][]float64, 2)
	for _, t := range c.arms() {
		sub := subsetFloats(individual.Individual[t], rows)
		po.Individual[t] = sub
		po.Means[t] = mean(sub)
	}
	po.Warnings = individual.Warnings
	return po, nil
}

// individualEffect contrasts the per-row outcomes of the pair.
func (c contrast) individualEffect(po *causal.PotentialOutcomes, effectType causal.EffectType) (causal.EffectEstimate, error) {
	est, err := effects.CalculateVector(po.Individual[c.treated], po.Individual[c.baseline], effectType)
	if err != nil {
		return causal.EffectEstimate{}, err
	}
	est.Treated, est.Baseline = c.treated, c.baseline
	est.Warnings = append(append([]causal.Warning(nil), po.Warnings...), est.Warnings...)
	return est, nil
}

// pairPropensity builds a two-column matrix from P(treated|X).
func (c contrast) pairPropensity(X *causal.Covariates, treatedScores []float64) *causal.PropensityMatrix {
	n := len(treatedScores)
	scores := mat.NewDense(n, 2, nil)
	arms := c.arms()
	for i, e := range treatedScores {
		for j, t := range arms {
			if t == c.treated {
				scores.Set(i, j, e)
			} else {
				scores.Set(i, j, 1-e)
			}
		}
	}
	return &causal.PropensityMatrix{Index: X.Index, Treatments: arms, Scores: scores}
}

// fitPredict trains a fresh learner on rows and predicts on the given matrix.
func fitPredict(factory ports.LearnerFactory, X *causal.Covariates, target []float64, rows []int, predictOn mat.Matrix) (ports.Learner, []float64, error) {
	model := factory()
	if err := fitLearner(model, X.Subset(rows).Values, subsetFloats(target, rows)); err != nil {
		return nil, nil, err
	}
	if predictOn == nil {
		return model, nil, nil
	}
	pred, err := predictLearner(model, predictOn)
	return model, pred, err
}

// averagePredictions predicts with every model and averages per row.
func averagePredictions(models []ports.Learner, X mat.Matrix) ([]float64, error) {
	n, _ := X.Dims()
	avg := make([]float64, n)
	for _, m := range models {
		pred, err := predictLearner(m, X)
		if err != nil {
			return nil, err
		}
		for i, v := range pred {
			avg[i] += v
		}
	}
	for i := range avg {
		avg[i] /= float64(len(models))
	}
	return avg, nil
}
