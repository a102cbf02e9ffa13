package estimation

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"gocausal/domain/causal"
	"gocausal/domain/core"
	"gocausal/internal/validation"
	"gocausal/ports"
)

// Standardization fits one outcome model on X augmented with treatment
// indicators, then predicts every row under every arm.
type Standardization struct {
	fitState
	learner     ports.Learner
	opts        Options
	fitWarnings []causal.Warning
}

// NewStandardization checks the outcome model's capabilities once.
func NewStandardization(outcomeModel ports.Learner, opts Options) (*Standardization, error) {
	if err := validation.CheckModelInterface(outcomeModel, ports.CapabilityFit, ports.CapabilityPredict); err != nil {
		return nil, err
	}
	opts, err := prepare(opts)
	if err != nil {
		return nil, err
	}
	return &Standardization{learner: outcomeModel, opts: opts}, nil
}

func (s *Standardization) Name() string               { return string(causal.KindStandardization) }
func (s *Standardization) Kind() causal.EstimatorKind { return causal.KindStandardization }

// Fit trains the outcome model on rows with an observed outcome.
func (s *Standardization) Fit(X *causal.Covariates, A *causal.TreatmentVector, Y *causal.OutcomeVector) error {
	if err := checkFitInputs(X, A, Y); err != nil {
		return err
	}
	rows, warnings, err := observedOutcomes(Y)
	if err != nil {
		return err
	}
	values := A.Unique()
	sub := A.Subset(rows)
	counts := sub.Counts()
	for _, t := range values {
		if counts[t] == 0 {
			return core.NewInvalidValueError(fmt.Sprintf("arm %s has no observed outcomes", t), t.String())
		}
	}
	design := treatmentDesign(X.Subset(rows).Values, values, func(i int) causal.Treatment { return sub.Values[i] })

	s.opts.Logger.Debug("fitting outcome model", "estimator", s.Name(), "rows", len(rows), "arms", len(values))
	if err := fitLearner(s.learner, design, Y.Subset(rows).Values); err != nil {
		return err
	}
	logWarnings(s.opts.Logger, s.Name(), warnings)
	s.commit(values, X, func() { s.fitWarnings = warnings })
	return nil
}

// EstimateIndividualOutcome predicts every row of X under every fitted arm.
func (s *Standardization) EstimateIndividualOutcome(X *causal.Covariates) (*causal.PotentialOutcomes, error) {
	var po *causal.PotentialOutcomes
	err := s.withFitted(s.Name(), func(values []causal.Treatment) error {
		if err := s.checkFeatures(X); err != nil {
			return err
		}
		if err := validation.CheckCovariates(X); err != nil {
			return err
		}
		po = causal.NewPotentialOutcomes(values)
		po.Individual = make(map[causal.Treatment][]float64, len(values))
		for _, t := range values {
			design := treatmentDesign(X.Values, values, func(int) causal.Treatment { return t })
			pred, err := predictLearner(s.learner, design)
			if err != nil {
				return err
			}
			po.Individual[t] = pred
			po.Means[t] = mean(pred)
		}
		po.Warnings = append(po.Warnings, s.fitWarnings...)
		return nil
	})
	return po, err
}

// EstimatePopulationOutcome averages the individual outcomes. A is checked
// against the fitted arms; Y is unused and may be nil.
func (s *Standardization) EstimatePopulationOutcome(X *causal.Covariates, A *causal.TreatmentVector, _ *causal.OutcomeVector) (*causal.PotentialOutcomes, error) {
	if err := s.checkPopulationInputs(X, A); err != nil {
		return nil, err
	}
	return s.EstimateIndividualOutcome(X)
}

func (s *Standardization) checkPopulationInputs(X *causal.Covariates, A *causal.TreatmentVector) error {
	return s.withFitted(s.Name(), func(values []causal.Treatment) error {
		return checkEstimateInputs(X, A, nil, values)
	})
}

// treatmentDesign appends one indicator column per arm after the first.
func treatmentDesign(X mat.Matrix, values []causal.Treatment, armOf func(i int) causal.Treatment) *mat.Dense {
	n, p := X.Dims()
	k := len(values) - 1
	design := mat.NewDense(n, p+k, nil)
	design.Slice(0, n, 0, p).(*mat.Dense).Copy(X)
	for i := 0; i < n; i++ {
		t := armOf(i)
		for j, v := range values[1:] {
			if t == v {
				design.Set(i, p+j, 1)
			}
		}
	}
	return design
}

// StratifiedStandardization fits one outcome model per arm, each on that
// arm's units only.
type StratifiedStandardization struct {
	fitState
	factory     ports.LearnerFactory
	opts        Options
	models      map[causal.Treatment]ports.Learner
	fitWarnings []causal.Warning
}

// NewStratifiedStandardization checks one factory product's capabilities.
func NewStratifiedStandardization(factory ports.LearnerFactory, opts Options) (*StratifiedStandardization, error) {
	if err := validation.CheckFactory(factory, ports.CapabilityFit, ports.CapabilityPredict); err != nil {
		return nil, err
	}
	opts, err := prepare(opts)
	if err != nil {
		return nil, err
	}
	return &StratifiedStandardization{factory: factory, opts: opts}, nil
}

func (s *StratifiedStandardization) Name() string {
	return string(causal.KindStratifiedStandardization)
}

func (s *StratifiedStandardization) Kind() causal.EstimatorKind {
	return causal.KindStratifiedStandardization
}

// Fit trains a fresh model per arm on rows with an observed outcome.
func (s *StratifiedStandardization) Fit(X *causal.Covariates, A *causal.TreatmentVector, Y *causal.OutcomeVector) error {
	if err := checkFitInputs(X, A, Y); err != nil {
		return err
	}
	observed, warnings, err := observedOutcomes(Y)
	if err != nil {
		return err
	}
	values := A.Unique()
	models := make(map[causal.Treatment]ports.Learner, len(values))
	for _, t := range values {
		var rows []int
		for _, r := range observed {
			if A.Values[r] == t {
				rows = append(rows, r)
			}
		}
		if len(rows) == 0 {
			return core.NewInvalidValueError(fmt.Sprintf("arm %s has no observed outcomes", t), t.String())
		}
		model := s.factory()
		s.opts.Logger.Debug("fitting arm outcome model", "estimator", s.Name(), "arm", int(t), "rows", len(rows))
		if err := fitLearner(model, X.Subset(rows).Values, subsetFloats(Y.Values, rows)); err != nil {
			return err
		}
		models[t] = model
	}
	logWarnings(s.opts.Logger, s.Name(), warnings)
	s.commit(values, X, func() {
		s.models = models
		s.fitWarnings = warnings
	})
	return nil
}

// EstimateIndividualOutcome predicts every row with every arm's model.
func (s *StratifiedStandardization) EstimateIndividualOutcome(X *causal.Covariates) (*causal.PotentialOutcomes, error) {
	var po *causal.PotentialOutcomes
	err := s.withFitted(s.Name(), func(values []causal.Treatment) error {
		if err := s.checkFeatures(X); err != nil {
			return err
		}
		if err := validation.CheckCovariates(X); err != nil {
			return err
		}
		po = causal.NewPotentialOutcomes(values)
		po.Individual = make(map[causal.Treatment][]float64, len(values))
		for _, t := range values {
			pred, err := predictLearner(s.models[t], X.Values)
			if err != nil {
				return err
			}
			po.Individual[t] = pred
			po.Means[t] = mean(pred)
		}
		po.Warnings = append(po.Warnings, s.fitWarnings...)
		return nil
	})
	return po, err
}

// EstimatePopulationOutcome averages the individual outcomes; Y may be nil.
func (s *StratifiedStandardization) EstimatePopulationOutcome(X *causal.Covariates, A *causal.TreatmentVector, _ *causal.OutcomeVector) (*causal.PotentialOutcomes, error) {
	err := s.withFitted(s.Name(), func(values []causal.Treatment) error {
		return checkEstimateInputs(X, A, nil, values)
	})
	if err != nil {
		return nil, err
	}
	return s.EstimateIndividualOutcome(X)
}
