package estimation

import (
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"gocausal/domain/causal"
	"gocausal/domain/core"
	"gocausal/domain/effects"
	"gocausal/internal/validation"
)

// EstimateEffect contrasts treated against baseline using potential outcomes
// produced by est. When po carries influence values for both arms the
// estimate gets a standard error and a normal confidence interval; ratio
// measures get theirs on the log scale.
func EstimateEffect(est Estimator, po *causal.PotentialOutcomes, treated, baseline causal.Treatment, effectType causal.EffectType) (causal.EffectEstimate, error) {
	if err := checkContrast(est, po, treated, baseline); err != nil {
		return causal.EffectEstimate{}, err
	}
	result, err := effects.Between(po, treated, baseline, effectType)
	if err != nil {
		return causal.EffectEstimate{}, err
	}
	result.Warnings = append(append([]causal.Warning(nil), po.Warnings...), result.Warnings...)
	if po.HasInfluence(treated, baseline) {
		attachInterval(&result, po, treated, baseline)
	}
	return result, nil
}

// EstimateIndividualEffect contrasts per-row potential outcomes.
func EstimateIndividualEffect(est Estimator, po *causal.PotentialOutcomes, treated, baseline causal.Treatment, effectType causal.EffectType) (causal.EffectEstimate, error) {
	if err := checkContrast(est, po, treated, baseline); err != nil {
		return causal.EffectEstimate{}, err
	}
	result, err := effects.BetweenIndividual(po, treated, baseline, effectType)
	if err != nil {
		return causal.EffectEstimate{}, err
	}
	result.Warnings = append(append([]causal.Warning(nil), po.Warnings...), result.Warnings...)
	return result, nil
}

func checkContrast(est Estimator, po *causal.PotentialOutcomes, treated, baseline causal.Treatment) error {
	if err := validation.CheckFitted(est); err != nil {
		return err
	}
	if po == nil {
		return core.NewInvalidValueError("potential outcomes are nil")
	}
	known := est.TreatmentValues()
	if err := validation.CheckKnownTreatment(treated, known); err != nil {
		return err
	}
	if err := validation.CheckKnownTreatment(baseline, known); err != nil {
		return err
	}
	if treated == baseline {
		return core.NewTreatmentValueError("treated and baseline arms must differ", []string{treated.String()})
	}
	return nil
}

// attachInterval applies the delta method to the per-row influence values.
func attachInterval(result *causal.EffectEstimate, po *causal.PotentialOutcomes, treated, baseline causal.Treatment) {
	m1, m0 := po.Means[treated], po.Means[baseline]
	if1, if0 := po.Influence[treated], po.Influence[baseline]

	// Gradients of the effect (or its log) with respect to each arm mean.
	var g1, g0 float64
	logScale := false
	switch result.Type {
	case causal.Diff:
		g1, g0 = 1, -1
	case causal.Ratio:
		if m1 <= 0 || m0 <= 0 {
			return
		}
		g1, g0, logScale = 1/m1, -1/m0, true
	case causal.OddsRatio:
		if m1 <= 0 || m1 >= 1 || m0 <= 0 || m0 >= 1 {
			return
		}
		g1, g0, logScale = 1/(m1*(1-m1)), -1/(m0*(1-m0)), true
	}
	if logScale && result.Value <= 0 {
		return
	}

	combined := make([]float64, len(if1))
	for i := range combined {
		combined[i] = g1*if1[i] + g0*if0[i]
	}
	n := float64(len(combined))
	se := math.Sqrt(stat.Variance(combined, nil) / n)
	if math.IsNaN(se) {
		return
	}

	level := po.ConfidenceLevel
	if level <= 0 || level >= 1 {
		level = 0.95
	}
	z := distuv.UnitNormal.Quantile(1 - (1-level)/2)

	if logScale {
		center := math.Log(result.Value)
		result.StdError = se * result.Value
		result.Lower = math.Exp(center - z*se)
		result.Upper = math.Exp(center + z*se)
	} else {
		result.StdError = se
		result.Lower = result.Value - z*se
		result.Upper = result.Value + z*se
	}
	result.HasCI = true
}

// influenceSummary fills the per-arm standard errors from influence values.
func influenceSummary(po *causal.PotentialOutcomes, level float64) {
	po.ConfidenceLevel = level
	if po.StdErrors == nil {
		po.StdErrors = make(map[causal.Treatment]float64, len(po.Influence))
	}
	for t, values := range po.Influence {
		if len(values) < 2 {
			continue
		}
		po.StdErrors[t] = math.Sqrt(stat.Variance(values, nil) / float64(len(values)))
	}
}
