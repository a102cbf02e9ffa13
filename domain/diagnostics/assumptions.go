package diagnostics

import "gocausal/domain/causal"

// AssumptionCategory groups identification assumptions.
type AssumptionCategory string

const (
	CategoryConsistency     AssumptionCategory = "consistency"
	CategoryNoConfounding   AssumptionCategory = "no_unmeasured_confounding"
	CategoryPositivity      AssumptionCategory = "positivity"
	CategoryFunctionalForm  AssumptionCategory = "functional_form"
	CategorySUTVA           AssumptionCategory = "sutva"
	CategorySampleSplitting AssumptionCategory = "sample_splitting"
	CategoryBoundedOutcome  AssumptionCategory = "bounded_outcome"
)

// Assumption is one condition an estimate relies on.
type Assumption struct {
	Name        string
	Category    AssumptionCategory
	Description string
	// Testable is true when data can speak to the assumption at all.
	Testable bool
	// Checked is true when the engine inspects it automatically.
	Checked bool
}

var (
	noConfounding = Assumption{
		Name:        "No unmeasured confounding",
		Category:    CategoryNoConfounding,
		Description: "every variable affecting both treatment and outcome is observed in X",
	}
	consistency = Assumption{
		Name:        "Consistency",
		Category:    CategoryConsistency,
		Description: "each treatment value is well defined and the observed outcome equals the potential outcome under the received arm",
	}
	sutva = Assumption{
		Name:        "SUTVA",
		Category:    CategorySUTVA,
		Description: "one unit's treatment does not affect another unit's outcome",
	}
	positivity = Assumption{
		Name:        "Positivity",
		Category:    CategoryPositivity,
		Description: "every arm has non-zero probability in every covariate stratum",
		Testable:    true,
		Checked:     true,
	}
	outcomeSpecification = Assumption{
		Name:        "Correct outcome model",
		Category:    CategoryFunctionalForm,
		Description: "the outcome model captures E[Y | X, A]",
		Testable:    true,
	}
	propensitySpecification = Assumption{
		Name:        "Correct propensity model",
		Category:    CategoryFunctionalForm,
		Description: "the propensity model captures P(A | X)",
		Testable:    true,
		Checked:     true,
	}
	eitherSpecification = Assumption{
		Name:        "Either nuisance model correct",
		Category:    CategoryFunctionalForm,
		Description: "consistency holds if the propensity model or the outcome model is correctly specified",
		Testable:    true,
	}
	crossFitting = Assumption{
		Name:        "Cross-fitting",
		Category:    CategorySampleSplitting,
		Description: "nuisance models never see the fold they predict for",
		Testable:    true,
		Checked:     true,
	}
	boundedOutcome = Assumption{
		Name:        "Bounded outcome",
		Category:    CategoryBoundedOutcome,
		Description: "the outcome range observed at estimation time bounds the targeted fluctuation",
	}
)

// Assumptions lists what an estimate of the given kind relies on.
func Assumptions(kind causal.EstimatorKind) []Assumption {
	base := []Assumption{noConfounding, consistency, sutva}
	switch kind {
	case causal.KindIPW, causal.KindOverlapWeights:
		return append(base, positivity, propensitySpecification)
	case causal.KindStandardization, causal.KindStratifiedStandardization:
		return append(base, outcomeSpecification)
	case causal.KindAIPW:
		return append(base, positivity, eitherSpecification)
	case causal.KindTMLE:
		return append(base, positivity, eitherSpecification, boundedOutcome)
	case causal.KindXLearner, causal.KindRLearner:
		return append(base, positivity, outcomeSpecification, crossFitting)
	default:
		return base
	}
}
