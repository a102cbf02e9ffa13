package causal

import (
	"strings"

	"gocausal/domain/core"
)

// EstimatorKind names an estimation strategy.
type EstimatorKind string

const (
	KindIPW                       EstimatorKind = "ipw"
	KindOverlapWeights            EstimatorKind = "overlap_weights"
	KindStandardization           EstimatorKind = "standardization"
	KindStratifiedStandardization EstimatorKind = "stratified_standardization"
	KindAIPW                      EstimatorKind = "aipw"
	KindXLearner                  EstimatorKind = "x_learner"
	KindRLearner                  EstimatorKind = "r_learner"
	KindTMLE                      EstimatorKind = "tmle"
)

// EstimatorKinds lists every supported strategy.
var EstimatorKinds = []EstimatorKind{
	KindIPW, KindOverlapWeights, KindStandardization, KindStratifiedStandardization,
	KindAIPW, KindXLearner, KindRLearner, KindTMLE,
}

// ParseEstimatorKind accepts the canonical names case-insensitively.
func ParseEstimatorKind(name string) (EstimatorKind, error) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_")
	for _, k := range EstimatorKinds {
		if string(k) == normalized {
			return k, nil
		}
	}
	return "", core.NewInvalidValueError("unknown estimator kind", name)
}

// UsesPropensity reports whether the strategy fits a treatment model.
func (k EstimatorKind) UsesPropensity() bool {
	return k != KindStandardization && k != KindStratifiedStandardization
}

// UsesOutcomeModel reports whether the strategy fits an outcome model.
func (k EstimatorKind) UsesOutcomeModel() bool {
	return k != KindIPW && k != KindOverlapWeights
}
