package diagnostics

import (
	"gocausal/domain/causal"
)

// EstimationReport combines every analyzer applicable to an estimator.
type EstimationReport struct {
	Estimator       string
	Kind            causal.EstimatorKind
	TreatmentValues []causal.Treatment
	SampleSize      int
	// OutcomeType is "binary", "continuous" or "unknown" when Y is absent.
	OutcomeType string
	Assumptions []Assumption
	Propensity  *PropensityScoreStats
	Weights     *WeightDistribution
	Overlap     *OverlapDiagnostic
	Balance     *TreatmentBalance
	Warnings    []causal.Warning
}

// BuildReport runs the treatment balance analyzer and, depending on the
// estimator's capabilities, the propensity, weight and overlap analyzers.
// Y may be nil.
func BuildReport(est FittedEstimator, X *causal.Covariates, A *causal.TreatmentVector, Y *causal.OutcomeVector, cfg Config) (*EstimationReport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := checkInputs(est, X, A); err != nil {
		return nil, err
	}

	r := &EstimationReport{
		Estimator:       est.Name(),
		Kind:            est.Kind(),
		TreatmentValues: est.TreatmentValues(),
		SampleSize:      X.Len(),
		OutcomeType:     "unknown",
		Assumptions:     Assumptions(est.Kind()),
	}
	if Y != nil {
		r.OutcomeType = "continuous"
		if Y.IsBinary() {
			r.OutcomeType = "binary"
		}
	}

	balance, err := AnalyzeTreatmentBalance(A, cfg.DominanceThreshold)
	if err != nil {
		return nil, err
	}
	r.Balance = balance
	r.Warnings = append(r.Warnings, balance.Warnings...)

	if pp, ok := est.(PropensityProvider); ok {
		P, err := pp.PropensityMatrix(X)
		if err != nil {
			return nil, err
		}
		if r.Propensity, err = DescribePropensity(P, A, cfg); err != nil {
			return nil, err
		}
		if r.Overlap, err = DescribeOverlap(P, A, cfg); err != nil {
			return nil, err
		}
		r.Warnings = append(r.Warnings, r.Overlap.Warnings...)
	}

	if wp, ok := est.(WeightProvider); ok {
		w, err := wp.ComputeWeights(X, A)
		if err != nil {
			return nil, err
		}
		if r.Weights, err = DescribeWeights(w.Values, A, cfg); err != nil {
			return nil, err
		}
		r.Warnings = append(r.Warnings, r.Weights.Warnings...)
	}
	return r, nil
}

type section struct {
	prefix string
	report *Report
}

// Report flattens every section under its own prefix.
func (r *EstimationReport) Report() *Report {
	b := newReportBuilder("")
	b.count("sample_size", r.SampleSize).
		count("n_treatments", len(r.TreatmentValues)).
		count("n_assumptions", len(r.Assumptions)).
		bool("binary_outcome", r.OutcomeType == "binary")

	sections := []section{{"balance", r.Balance.Report()}}
	if r.Propensity != nil {
		sections = append(sections, section{"propensity", r.Propensity.Report()})
	}
	if r.Overlap != nil {
		sections = append(sections, section{"overlap", r.Overlap.Report()})
	}
	if r.Weights != nil {
		sections = append(sections, section{"weights", r.Weights.Report()})
	}

	for _, s := range sections {
		sub := newReportBuilder(s.prefix).merge(s.report).build()
		for k, v := range sub.floats {
			b.floats[k] = v
		}
		for k, v := range sub.bools {
			b.bools[k] = v
		}
	}
	return b.warn(r.Warnings...).build()
}
