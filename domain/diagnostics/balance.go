package diagnostics

import (
	"gocausal/domain/causal"
	"gocausal/domain/core"
)

// TreatmentBalance describes how units split across arms.
type TreatmentBalance struct {
	N           int
	Counts      map[causal.Treatment]int
	Proportions map[causal.Treatment]float64
	Dominant    causal.Treatment
	Dominance   float64
	Dominated   bool
	Warnings    []causal.Warning
}

// AnalyzeTreatmentBalance flags an arm holding more than threshold of the sample.
func AnalyzeTreatmentBalance(A *causal.TreatmentVector, threshold float64) (*TreatmentBalance, error) {
	if A.Len() == 0 {
		return nil, core.NewInvalidValueError("treatment assignment is empty")
	}
	b := &TreatmentBalance{
		N:           A.Len(),
		Counts:      A.Counts(),
		Proportions: A.Prevalence(),
	}
	for _, t := range A.Unique() {
		if share := b.Proportions[t]; share > b.Dominance {
			b.Dominant, b.Dominance = t, share
		}
	}
	if b.Dominance > threshold {
		b.Dominated = true
		b.Warnings = append(b.Warnings, causal.NewArmWarning(causal.SingleTreatmentDominanceWarning, b.Dominant, b.Dominance,
			"%.1f%% of units received this arm; estimates for the other arms rest on few units", 100*b.Dominance))
	}
	return b, nil
}

// Report renders the balance into the flat metric map.
func (b *TreatmentBalance) Report() *Report {
	r := newReportBuilder("")
	r.count("n", b.N).
		float("dominance", b.Dominance).
		bool("dominated", b.Dominated)
	for t, c := range b.Counts {
		r.count(armKey("count", t), c)
	}
	for t, p := range b.Proportions {
		r.float(armKey("proportion", t), p)
	}
	return r.warn(b.Warnings...).build()
}
