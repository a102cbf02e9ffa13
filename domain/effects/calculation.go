// Package effects is the single place where two potential outcomes become a
// treatment effect. Every estimator delegates here.
package effects

import (
	"fmt"
	"strconv"

	"gocausal/domain/causal"
	"gocausal/domain/core"
)

// Calculate applies effectType elementwise to outcome1 and outcome0. Scalar
// (population) effects are the one-element case.
func Calculate(outcome1, outcome0 []float64, effectType causal.EffectType) ([]float64, []causal.Warning, error) {
	if !effectType.Valid() {
		return nil, nil, core.NewInvalidValueError("unsupported effect type", effectType.String())
	}
	if len(outcome1) != len(outcome0) {
		return nil, nil, core.NewAlignmentError(
			fmt.Sprintf("outcome vectors differ in length: %d vs %d", len(outcome1), len(outcome0)), nil)
	}

	out := make([]float64, len(outcome1))
	var warnings []causal.Warning

	switch effectType {
	case causal.Diff:
		for i := range outcome1 {
			out[i] = outcome1[i] - outcome0[i]
		}

	case causal.Ratio:
		zeros := 0
		for i := range outcome1 {
			if outcome0[i] == 0 {
				zeros++
			}
			out[i] = outcome1[i] / outcome0[i]
		}
		if zeros > 0 {
			warnings = append(warnings, causal.NewWarning(causal.ZeroDenominatorWarning, float64(zeros),
				"ratio denominator is zero for %d of %d entries; results contain Inf/NaN", zeros, len(outcome0)))
		}

	case causal.OddsRatio:
		for i := range outcome1 {
			if err := checkOpenUnit("outcome_1", outcome1[i]); err != nil {
				return nil, nil, err
			}
			if err := checkOpenUnit("outcome_0", outcome0[i]); err != nil {
				return nil, nil, err
			}
			odds1 := outcome1[i] / (1 - outcome1[i])
			odds0 := outcome0[i] / (1 - outcome0[i])
			out[i] = odds1 / odds0
		}
	}

	return out, warnings, nil
}

func checkOpenUnit(name string, v float64) error {
	if v > 0 && v < 1 {
		return nil
	}
	return core.NewInvalidValueError(
		fmt.Sprintf("odds ratio requires %s in the open interval (0, 1)", name),
		strconv.FormatFloat(v, 'g', -1, 64))
}

// CalculateScalar computes a population-level effect.
func CalculateScalar(outcome1, outcome0 float64, effectType causal.EffectType) (causal.EffectEstimate, error) {
	values, warnings, err := Calculate([]float64{outcome1}, []float64{outcome0}, effectType)
	if err != nil {
		return causal.EffectEstimate{}, err
	}
	return causal.EffectEstimate{Type: effectType, Value: values[0], Warnings: warnings}, nil
}

// CalculateVector computes an individual-level effect.
func CalculateVector(outcome1, outcome0 []float64, effectType causal.EffectType) (causal.EffectEstimate, error) {
	values, warnings, err := Calculate(outcome1, outcome0, effectType)
	if err != nil {
		return causal.EffectEstimate{}, err
	}
	return causal.EffectEstimate{Type: effectType, Values: values, Warnings: warnings}, nil
}

// CalculateAll computes several population-level effect types at once.
func CalculateAll(outcome1, outcome0 float64, effectTypes []causal.EffectType) (map[causal.EffectType]causal.EffectEstimate, error) {
	out := make(map[causal.EffectType]causal.EffectEstimate, len(effectTypes))
	for _, et := range effectTypes {
		est, err := CalculateScalar(outcome1, outcome0, et)
		if err != nil {
			return nil, fmt.Errorf("effect %s: %w", et, err)
		}
		out[et] = est
	}
	return out, nil
}

// Between computes the population effect of treated versus baseline from
// estimated potential outcomes.
func Between(po *causal.PotentialOutcomes, treated, baseline causal.Treatment, effectType causal.EffectType) (causal.EffectEstimate, error) {
	y1, err := po.Mean(treated)
	if err != nil {
		return causal.EffectEstimate{}, err
	}
	y0, err := po.Mean(baseline)
	if err != nil {
		return causal.EffectEstimate{}, err
	}
	est, err := CalculateScalar(y1, y0, effectType)
	if err != nil {
		return causal.EffectEstimate{}, err
	}
	est.Treated, est.Baseline = treated, baseline
	return est, nil
}

// BetweenIndividual computes the per-row effect of treated versus baseline.
func BetweenIndividual(po *causal.PotentialOutcomes, treated, baseline causal.Treatment, effectType causal.EffectType) (causal.EffectEstimate, error) {
	y1, err := po.Vector(treated)
	if err != nil {
		return causal.EffectEstimate{}, err
	}
	y0, err := po.Vector(baseline)
	if err != nil {
		return causal.EffectEstimate{}, err
	}
	est, err := CalculateVector(y1, y0, effectType)
	if err != nil {
		return causal.EffectEstimate{}, err
	}
	est.Treated, est.Baseline = treated, baseline
	return est, nil
}
