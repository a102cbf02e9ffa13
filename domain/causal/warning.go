package causal

import "fmt"

// WarningKind names a class of non-fatal diagnostic.
type WarningKind string

const (
	ExtremeWeightWarning            WarningKind = "extreme_weight"
	LowOverlapWarning               WarningKind = "low_overlap"
	PositivityViolationWarning      WarningKind = "positivity_violation"
	PropensityClippingWarning       WarningKind = "propensity_clipping"
	ZeroDenominatorWarning          WarningKind = "zero_denominator"
	MissingValuesWarning            WarningKind = "missing_values"
	SingleTreatmentDominanceWarning WarningKind = "single_treatment_dominance"
)

// Warning is a non-fatal issue collected into the diagnostic channel.
type Warning struct {
	Kind    WarningKind
	Message string
	// Arm is set when the warning concerns a single treatment value.
	Arm    *Treatment
	Metric float64
}

func (w Warning) String() string {
	if w.Arm != nil {
		return fmt.Sprintf("[%s] arm %s: %s", w.Kind, w.Arm, w.Message)
	}
	return fmt.Sprintf("[%s] %s", w.Kind, w.Message)
}

// NewWarning builds a warning that is not tied to a single arm.
func NewWarning(kind WarningKind, metric float64, format string, args ...any) Warning {
	return Warning{Kind: kind, Message: fmt.Sprintf(format, args...), Metric: metric}
}

// NewArmWarning builds a warning about one treatment arm.
func NewArmWarning(kind WarningKind, arm Treatment, metric float64, format string, args ...any) Warning {
	t := arm
	return Warning{Kind: kind, Message: fmt.Sprintf(format, args...), Arm: &t, Metric: metric}
}

// HasWarning reports whether any warning of the given kind is present.
func HasWarning(warnings []Warning, kind WarningKind) bool {
	for _, w := range warnings {
		if w.Kind == kind {
			return true
		}
	}
	return false
}
