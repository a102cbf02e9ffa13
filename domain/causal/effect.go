package causal

import (
	"fmt"
	"sort"
	"strings"

	"gocausal/domain/core"
)

// EffectType is the closed set of supported effect measures.
type EffectType int

const (
	// Diff is outcome1 - outcome0.
	Diff EffectType = iota + 1
	// Ratio is outcome1 / outcome0.
	Ratio
	// OddsRatio is [o1/(1-o1)] / [o0/(1-o0)].
	OddsRatio
)

// ParseEffectType validates an effect type name once, at construction.
func ParseEffectType(name string) (EffectType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "diff", "difference":
		return Diff, nil
	case "ratio":
		return Ratio, nil
	case "or", "odds_ratio", "oddsratio":
		return OddsRatio, nil
	default:
		return 0, core.NewInvalidValueError("unsupported effect type (want diff, ratio or or)", name)
	}
}

// Valid reports whether e is one of the declared variants.
func (e EffectType) Valid() bool {
	return e == Diff || e == Ratio || e == OddsRatio
}

func (e EffectType) String() string {
	switch e {
	case Diff:
		return "diff"
	case Ratio:
		return "ratio"
	case OddsRatio:
		return "or"
	default:
		return fmt.Sprintf("EffectType(%d)", int(e))
	}
}

// PotentialOutcomes holds the estimated outcome under each arm.
type PotentialOutcomes struct {
	Treatments []Treatment
	// Means holds the population-level estimate per arm.
	Means map[Treatment]float64
	// Individual holds per-row estimates per arm when the strategy produces them.
	Individual map[Treatment][]float64
	// StdErrors holds influence-function standard errors when available.
	StdErrors map[Treatment]float64
	// Influence holds centred per-row influence values per arm, aligned
	// across arms, for strategies with an efficient influence function.
	Influence map[Treatment][]float64
	// ConfidenceLevel applies to intervals derived from Influence.
	ConfidenceLevel float64
	Warnings        []Warning
}

// NewPotentialOutcomes allocates an empty result for the given arms.
func NewPotentialOutcomes(treatments []Treatment) *PotentialOutcomes {
	ts := append([]Treatment(nil), treatments...)
	sort.Slice(ts, func(i, j int) bool { return ts[i] < ts[j] })
	return &PotentialOutcomes{
		Treatments: ts,
		Means:      make(map[Treatment]float64, len(ts)),
	}
}

// Mean returns the population estimate for t.
func (po *PotentialOutcomes) Mean(t Treatment) (float64, error) {
	v, ok := po.Means[t]
	if !ok {
		return 0, core.NewTreatmentValueError("no population outcome for treatment", []string{t.String()})
	}
	return v, nil
}

// Vector returns the individual-level estimate for t.
func (po *PotentialOutcomes) Vector(t Treatment) ([]float64, error) {
	v, ok := po.Individual[t]
	if !ok {
		return nil, core.NewTreatmentValueError("no individual outcome for treatment", []string{t.String()})
	}
	return v, nil
}

// HasInfluence reports whether both arms carry aligned influence values.
func (po *PotentialOutcomes) HasInfluence(a, b Treatment) bool {
	ia, okA := po.Influence[a]
	ib, okB := po.Influence[b]
	return okA && okB && len(ia) == len(ib) && len(ia) > 1
}

// AddWarning attaches a non-fatal diagnostic.
func (po *PotentialOutcomes) AddWarning(w Warning) {
	po.Warnings = append(po.Warnings, w)
}

// EffectEstimate is a scalar (population) or vector (individual) effect.
type EffectEstimate struct {
	Type     EffectType
	Treated  Treatment
	Baseline Treatment
	// Value is set for population-level effects.
	Value float64
	// Values is set for individual-level effects.
	Values []float64
	// StdError and the confidence bounds are set when the strategy provides them.
	StdError float64
	Lower    float64
	Upper    float64
	HasCI    bool
	Warnings []Warning
}

// IsIndividual reports whether the estimate is a per-row vector.
func (e EffectEstimate) IsIndividual() bool {
	return e.Values != nil
}

// Mean returns the scalar value, or the average of an individual effect.
func (e EffectEstimate) Mean() float64 {
	if !e.IsIndividual() {
		return e.Value
	}
	if len(e.Values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range e.Values {
		sum += v
	}
	return sum / float64(len(e.Values))
}
