// Package validation is the gate every estimator passes through before any
// numeric work: alignment, treatment values, fitted state and learner
// capabilities. Checks are pure and fail eagerly with the core taxonomy.
package validation

import (
	"fmt"
	"math"
	"strconv"

	"gocausal/domain/causal"
	"gocausal/domain/core"
	"gocausal/ports"
)

// MaxMissingOutcomeFraction is the largest share of missing outcomes accepted.
const MaxMissingOutcomeFraction = 0.5

// Fittable is anything carrying the two-state fit lifecycle.
type Fittable interface {
	Name() string
	IsFitted() bool
}

// CheckAlignment verifies X, A and (optionally) Y share length and row identity.
func CheckAlignment(X *causal.Covariates, A *causal.TreatmentVector, Y *causal.OutcomeVector) error {
	if X == nil || X.Values == nil {
		return core.NewAlignmentError("covariates are nil", nil)
	}
	if A == nil {
		return core.NewAlignmentError("treatment assignment is nil", nil)
	}
	n := X.Len()
	if len(X.Index) != n {
		return core.NewAlignmentError(fmt.Sprintf("X index has %d entries for %d rows", len(X.Index), n), nil)
	}
	if A.Len() != n {
		return core.NewAlignmentError(fmt.Sprintf("X has %d rows, A has %d", n, A.Len()), nil)
	}
	if len(A.Index) != A.Len() {
		return core.NewAlignmentError(fmt.Sprintf("A index has %d entries for %d values", len(A.Index), A.Len()), nil)
	}
	if mismatched := mismatchedRows(X.Index, A.Index); len(mismatched) > 0 {
		return core.NewAlignmentError("X and A row identities differ", mismatched)
	}
	if Y == nil {
		return nil
	}
	if Y.Len() != n {
		return core.NewAlignmentError(fmt.Sprintf("X has %d rows, Y has %d", n, Y.Len()), nil)
	}
	if len(Y.Index) != Y.Len() {
		return core.NewAlignmentError(fmt.Sprintf("Y index has %d entries for %d values", len(Y.Index), Y.Len()), nil)
	}
	if mismatched := mismatchedRows(X.Index, Y.Index); len(mismatched) > 0 {
		return core.NewAlignmentError("X and Y row identities differ", mismatched)
	}
	return nil
}

func mismatchedRows(a, b causal.Index) []string {
	var out []string
	for i := range a {
		if a[i] != b[i] {
			out = append(out, fmt.Sprintf("%d(%s!=%s)", i, a[i], b[i]))
		}
	}
	return out
}

// CheckCovariates rejects non-finite covariate values.
func CheckCovariates(X *causal.Covariates) error {
	r, c := X.Values.Dims()
	var bad []string
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := X.Values.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				bad = append(bad, X.Index[i])
				break
			}
		}
	}
	if len(bad) > 0 {
		return &core.CausalError{Kind: core.ErrInvalidValue, Message: "covariates contain non-finite values", Indices: bad}
	}
	return nil
}

// CheckTreatmentValues verifies every value of A belongs to known.
func CheckTreatmentValues(A *causal.TreatmentVector, known []causal.Treatment) error {
	allowed := make(map[causal.Treatment]struct{}, len(known))
	for _, t := range known {
		allowed[t] = struct{}{}
	}
	var unseen []string
	reported := make(map[causal.Treatment]struct{})
	for _, v := range A.Values {
		if _, ok := allowed[v]; ok {
			continue
		}
		if _, done := reported[v]; done {
			continue
		}
		reported[v] = struct{}{}
		unseen = append(unseen, v.String())
	}
	if len(unseen) > 0 {
		return core.NewTreatmentValueError(fmt.Sprintf("values not seen at fit time (known: %v)", known), unseen)
	}
	return nil
}

// CheckKnownTreatment verifies a single referenced arm belongs to known.
func CheckKnownTreatment(t causal.Treatment, known []causal.Treatment) error {
	for _, k := range known {
		if k == t {
			return nil
		}
	}
	return core.NewTreatmentValueError(fmt.Sprintf("value not seen at fit time (known: %v)", known), []string{t.String()})
}

// CheckTreatmentVector requires at least two distinct arms for a contrast.
func CheckTreatmentVector(A *causal.TreatmentVector) error {
	unique := A.Unique()
	if len(unique) < 2 {
		vals := make([]string, len(unique))
		for i, t := range unique {
			vals[i] = t.String()
		}
		return core.NewTreatmentValueError(fmt.Sprintf("treatment must have at least 2 distinct values, found %d", len(unique)), vals)
	}
	return nil
}

// CheckOutcome rejects infinite outcomes and too many missing ones. It
// returns the number of missing (NaN) outcomes.
func CheckOutcome(Y *causal.OutcomeVector) (int, error) {
	if Y == nil {
		return 0, core.NewInvalidValueError("outcome is required")
	}
	missing := 0
	var infinite []string
	for i, v := range Y.Values {
		switch {
		case math.IsNaN(v):
			missing++
		case math.IsInf(v, 0):
			infinite = append(infinite, Y.Index[i])
		}
	}
	if len(infinite) > 0 {
		return missing, &core.CausalError{Kind: core.ErrInvalidValue, Message: "outcome contains infinite values", Indices: infinite}
	}
	if Y.Len() > 0 && float64(missing)/float64(Y.Len()) > MaxMissingOutcomeFraction {
		return missing, core.NewInvalidValueError(
			fmt.Sprintf("outcome has %d of %d values missing (more than %.0f%%)", missing, Y.Len(), MaxMissingOutcomeFraction*100))
	}
	return missing, nil
}

// CheckFitted fails with ErrNotFitted when the estimator is still Unfitted.
func CheckFitted(estimator Fittable) error {
	if estimator == nil || !estimator.IsFitted() {
		name := "estimator"
		if estimator != nil {
			name = estimator.Name()
		}
		return core.NewNotFittedError(name)
	}
	return nil
}

// CheckModelInterface verifies model exposes every requested capability.
func CheckModelInterface(model any, required ...ports.Capability) error {
	name := fmt.Sprintf("%T", model)
	if model == nil {
		return core.NewLearnerInterfaceError("<nil>", string(ports.CapabilityFit))
	}
	for _, capability := range required {
		var ok bool
		switch capability {
		case ports.CapabilityFit, ports.CapabilityPredict:
			_, ok = model.(ports.Learner)
		case ports.CapabilityPredictProba:
			_, ok = model.(ports.ProbabilisticLearner)
		case ports.CapabilityFitWeighted:
			_, ok = model.(ports.WeightedLearner)
		default:
			return core.NewInvalidValueError("unknown learner capability", string(capability))
		}
		if !ok {
			return core.NewLearnerInterfaceError(name, string(capability))
		}
	}
	return nil
}

// CheckFactory builds one learner from factory and checks its capabilities.
func CheckFactory(factory ports.LearnerFactory, required ...ports.Capability) error {
	if factory == nil {
		return core.NewLearnerInterfaceError("<nil factory>", string(ports.CapabilityFit))
	}
	return CheckModelInterface(factory(), required...)
}

// CheckClipBounds validates symmetric-style truncation bounds.
func CheckClipBounds(lower, upper float64) error {
	if lower < 0 || lower >= 0.5 {
		return core.NewInvalidValueError("lower clip bound must be in [0, 0.5)", strconv.FormatFloat(lower, 'g', -1, 64))
	}
	if upper <= 0.5 || upper > 1 {
		return core.NewInvalidValueError("upper clip bound must be in (0.5, 1]", strconv.FormatFloat(upper, 'g', -1, 64))
	}
	return nil
}

// CheckProbability rejects values outside [0, 1].
func CheckProbability(name string, p float64) error {
	if math.IsNaN(p) || p < 0 || p > 1 {
		return core.NewInvalidValueError(name+" must be in [0, 1]", strconv.FormatFloat(p, 'g', -1, 64))
	}
	return nil
}
