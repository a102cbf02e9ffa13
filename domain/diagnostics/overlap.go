package diagnostics

import (
	"math"

	"gocausal/domain/causal"
)

// OverlapDiagnostic reports how much of each arm lies in the common support
// of the propensity distributions.
type OverlapDiagnostic struct {
	Threshold float64
	Epsilon   float64
	// Lower and Upper bound the common support per propensity column,
	// already intersected with [Epsilon, 1-Epsilon].
	Lower map[causal.Treatment]float64
	Upper map[causal.Treatment]float64
	// Coverage is the share of each arm's units inside the support region.
	Coverage        map[causal.Treatment]float64
	OverallCoverage float64
	MinCoverage     float64
	Warnings        []causal.Warning
}

// LowOverlap reports whether any arm falls below the threshold.
func (o *OverlapDiagnostic) LowOverlap() bool {
	return o.MinCoverage < o.Threshold
}

// AnalyzeOverlap measures per-arm coverage of the region where every arm has
// propensity support.
func AnalyzeOverlap(est PropensityProvider, X *causal.Covariates, A *causal.TreatmentVector, cfg Config) (*OverlapDiagnostic, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := checkInputs(est, X, A); err != nil {
		return nil, err
	}
	P, err := est.PropensityMatrix(X)
	if err != nil {
		return nil, err
	}
	return DescribeOverlap(P, A, cfg)
}

// DescribeOverlap computes the overlap diagnostic from a propensity matrix.
func DescribeOverlap(P *causal.PropensityMatrix, A *causal.TreatmentVector, cfg Config) (*OverlapDiagnostic, error) {
	if _, err := P.Observed(A); err != nil {
		return nil, err
	}
	n, k := P.Scores.Dims()
	present := A.Unique()

	o := &OverlapDiagnostic{
		Threshold: cfg.OverlapThreshold,
		Epsilon:   cfg.Epsilon,
		Lower:     make(map[causal.Treatment]float64, k),
		Upper:     make(map[causal.Treatment]float64, k),
		Coverage:  make(map[causal.Treatment]float64, len(present)),
	}

	lower := make([]float64, k)
	upper := make([]float64, k)
	for j, col := range P.Treatments {
		lo, hi := cfg.Epsilon, 1-cfg.Epsilon
		for _, arm := range present {
			armMin, armMax := math.Inf(1), math.Inf(-1)
			for _, r := range A.Rows(arm) {
				p := P.Scores.At(r, j)
				armMin = math.Min(armMin, p)
				armMax = math.Max(armMax, p)
			}
			lo = math.Max(lo, armMin)
			hi = math.Min(hi, armMax)
		}
		lower[j], upper[j] = lo, hi
		o.Lower[col], o.Upper[col] = lo, hi
	}

	inside := make([]bool, n)
	total := 0
	for i := 0; i < n; i++ {
		inside[i] = true
		for j := 0; j < k; j++ {
			p := P.Scores.At(i, j)
			if p < lower[j] || p > upper[j] {
				inside[i] = false
				break
			}
		}
		if inside[i] {
			total++
		}
	}
	o.OverallCoverage = float64(total) / float64(n)

	o.MinCoverage = 1
	for _, arm := range present {
		rows := A.Rows(arm)
		covered := 0
		for _, r := range rows {
			if inside[r] {
				covered++
			}
		}
		coverage := float64(covered) / float64(len(rows))
		o.Coverage[arm] = coverage
		o.MinCoverage = math.Min(o.MinCoverage, coverage)

		if coverage < cfg.OverlapThreshold {
			o.Warnings = append(o.Warnings, causal.NewArmWarning(causal.LowOverlapWarning, arm, coverage,
				"%.1f%% of units lie in the common support region (threshold %.1f%%)", 100*coverage, 100*cfg.OverlapThreshold))
		}
		if covered == 0 {
			o.Warnings = append(o.Warnings, causal.NewArmWarning(causal.PositivityViolationWarning, arm, 0,
				"no unit lies in the common support region"))
		}
	}
	return o, nil
}

// Report renders the diagnostic into the flat metric map.
func (o *OverlapDiagnostic) Report() *Report {
	b := newReportBuilder("")
	b.float("threshold", o.Threshold).
		float("epsilon", o.Epsilon).
		float("overall_coverage", o.OverallCoverage).
		float("min_coverage", o.MinCoverage).
		bool("low_overlap", o.LowOverlap())
	for t, c := range o.Coverage {
		b.float(armKey("coverage", t), c)
	}
	for t, v := range o.Lower {
		b.float(armKey("support_lower", t), v)
	}
	for t, v := range o.Upper {
		b.float(armKey("support_upper", t), v)
	}
	return b.warn(o.Warnings...).build()
}
