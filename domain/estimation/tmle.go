package estimation

import (
	"fmt"
	"math"

	"gocausal/domain/causal"
	"gocausal/domain/core"
	"gocausal/ports"
)

// tmleBound keeps scaled outcome predictions inside (0, 1) for the logit.
const tmleBound = 1e-5

// TMLE is targeted maximum likelihood estimation. An initial outcome model is
// fluctuated per arm along the clever covariate H_t = 1[A=t]/p_t(X) until
// the efficient influence function's estimating equation is solved.
type TMLE struct {
	fitState
	propensity propensityModel
	outcome    OutcomeModelCapable
	opts       Options
}

// NewTMLE composes a propensity classifier with an initial outcome strategy.
func NewTMLE(propensityModel ports.Learner, outcome OutcomeModelCapable, opts Options) (*TMLE, error) {
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
	return &TMLE{propensity: pm, outcome: outcome, opts: opts}, nil
}

func (e *TMLE) Name() string               { return string(causal.KindTMLE) }
func (e *TMLE) Kind() causal.EstimatorKind { return causal.KindTMLE }

// Fit trains both nuisance models.
func (e *TMLE) Fit(X *causal.Covariates, A *causal.TreatmentVector, Y *causal.OutcomeVector) error {
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
func (e *TMLE) PropensityMatrix(X *causal.Covariates) (*causal.PropensityMatrix, error) {
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

// ComputeWeights returns the clever covariate of the observed arm, 1/p(A|X).
func (e *TMLE) ComputeWeights(X *causal.Covariates, A *causal.TreatmentVector) (causal.WeightVector, error) {
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

// EstimatePopulationOutcome returns the targeted arm means. It fails with
// ErrConvergence when any arm's fluctuation exceeds MaxIterations.
func (e *TMLE) EstimatePopulationOutcome(X *causal.Covariates, A *causal.TreatmentVector, Y *causal.OutcomeVector) (*causal.PotentialOutcomes, error) {
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

		initial, err := e.outcome.EstimateIndividualOutcome(X)
		if err != nil {
			return err
		}
		warnings = append(warnings, initial.Warnings...)

		sc := newOutcomeScale(Y, rows)
		po = causal.NewPotentialOutcomes(values)
		po.Individual = make(map[causal.Treatment][]float64, len(values))
		po.Influence = make(map[causal.Treatment][]float64, len(values))
		for _, t := range values {
			mt, err := initial.Vector(t)
			if err != nil {
				return err
			}
			pt, err := P.For(t)
			if err != nil {
				return err
			}
			target, err := e.target(t, A, Y, rows, mt, pt, sc)
			if err != nil {
				return err
			}
			po.Means[t] = target.mean
			po.Individual[t] = target.individual
			po.Influence[t] = target.influence
		}
		influenceSummary(po, e.opts.ConfidenceLevel)
		po.Warnings = warnings
		return nil
	})
	if err != nil {
		return nil, err
	}
	logWarnings(e.opts.Logger, e.Name(), po.Warnings)
	return po, nil
}

type targeted struct {
	mean       float64
	individual []float64
	influence  []float64
	iterations int
}

// target fluctuates the initial predictions for arm t. Each Newton step
// solves for epsilon in logit(Q*) = logit(Q) + epsilon*H on the
// quasi-binomial likelihood; the loop stops once |mean H(Y - Q*)| is within
// tolerance.
func (e *TMLE) target(t causal.Treatment, A *causal.TreatmentVector, Y *causal.OutcomeVector, rows []int, m, p []float64, sc outcomeScale) (targeted, error) {
	n := len(m)
	q := make([]float64, n)
	h := make([]float64, n)
	for i := range q {
		q[i] = sc.toUnit(m[i])
		h[i] = 1 / p[i]
	}
	ys := make([]float64, len(rows))
	for j, r := range rows {
		ys[j] = sc.clampUnit(sc.scaleObserved(Y.Values[r]))
	}

	score := func() (residual, information float64) {
		for j, r := range rows {
			if A.Values[r] != t {
				continue
			}
			residual += h[r] * (ys[j] - q[r])
			information += h[r] * h[r] * q[r] * (1 - q[r])
		}
		return residual / float64(len(rows)), information / float64(len(rows))
	}

	iter := 0
	for {
		residual, information := score()
		if math.Abs(residual) <= e.opts.Tolerance {
			break
		}
		if iter >= e.opts.MaxIterations {
			return targeted{}, core.NewConvergenceError(
				fmt.Sprintf("fluctuation for arm %s did not converge", t), iter, residual)
		}
		if information <= 0 || math.IsNaN(information) {
			return targeted{}, core.NewConvergenceError(
				fmt.Sprintf("fluctuation for arm %s has a singular information", t), iter, residual)
		}
		epsilon := residual / information
		for i := range q {
			q[i] = sc.clampUnit(expit(logit(q[i]) + epsilon*h[i]))
		}
		iter++
	}
	e.opts.Logger.Debug("fluctuation converged", "estimator", e.Name(), "arm", int(t), "iterations", iter)

	individual := make([]float64, n)
	for i, v := range q {
		individual[i] = sc.fromUnit(v)
	}
	psi := mean(individual)

	influence := make([]float64, len(rows))
	for j, r := range rows {
		v := individual[r] - psi
		if A.Values[r] == t {
			v += sc.span * h[r] * (ys[j] - q[r])
		}
		influence[j] = v
	}
	return targeted{mean: psi, individual: individual, influence: influence, iterations: iter}, nil
}

// outcomeScale maps outcomes to [0, 1] by the observed range.
type outcomeScale struct {
	min  float64
	span float64
}

func newOutcomeScale(Y *causal.OutcomeVector, rows []int) outcomeScale {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, r := range rows {
		lo = math.Min(lo, Y.Values[r])
		hi = math.Max(hi, Y.Values[r])
	}
	span := hi - lo
	if span <= 0 {
		span = 1
	}
	return outcomeScale{min: lo, span: span}
}

func (s outcomeScale) scaleObserved(y float64) float64 { return (y - s.min) / s.span }

func (s outcomeScale) toUnit(y float64) float64 { return s.clampUnit(s.scaleObserved(y)) }

func (s outcomeScale) fromUnit(q float64) float64 { return s.min + s.span*q }

func (s outcomeScale) clampUnit(q float64) float64 {
	return math.Min(1-tmleBound, math.Max(tmleBound, q))
}

func logit(p float64) float64 { return math.Log(p / (1 - p)) }

func expit(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	ex := math.Exp(x)
	return ex / (1 + ex)
}
