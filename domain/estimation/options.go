// Package estimation implements the estimator strategies: weighting (IPW,
// overlap weights), outcome modeling (standardization), doubly robust
// (AIPW), meta-learners (X-learner, R-learner) and targeted learning (TMLE).
// Each strategy composes the propensity adapter and the effect calculator
// and carries an explicit Unfitted/Fitted status.
package estimation

import (
	"io"
	"log/slog"

	"gocausal/domain/core"
	"gocausal/internal/validation"
)

// Options configures every strategy. Fields irrelevant to a strategy are
// ignored by it.
type Options struct {
	// ClipLower and ClipUpper truncate propensity scores before weighting.
	// The defaults 0 and 1 leave scores untouched.
	ClipLower float64
	ClipUpper float64
	// Stabilized multiplies IPW weights by the marginal arm prevalence.
	Stabilized bool
	// MinEffectiveSupport is the smallest per-arm Kish ESS accepted before
	// ErrPositivityViolation.
	MinEffectiveSupport float64
	// ExtremeWeightZ and MaxWeight drive ExtremeWeightWarning.
	ExtremeWeightZ float64
	MaxWeight      float64
	// Folds and Seed drive the cross-fitting arena of the meta-learners.
	Folds int
	Seed  uint64
	// MaxIterations and Tolerance bound the TMLE fluctuation.
	MaxIterations int
	Tolerance     float64
	// ConfidenceLevel applies to influence-function intervals.
	ConfidenceLevel float64
	Logger          *slog.Logger
}

// DefaultOptions returns the documented defaults.
func DefaultOptions() Options {
	return Options{
		ClipLower:           0,
		ClipUpper:           1,
		MinEffectiveSupport: 5,
		ExtremeWeightZ:      3,
		MaxWeight:           100,
		Folds:               5,
		Seed:                42,
		MaxIterations:       100,
		Tolerance:           1e-8,
		ConfidenceLevel:     0.95,
	}
}

// Validate rejects inconsistent options.
func (o Options) Validate() error {
	if err := validation.CheckClipBounds(o.ClipLower, o.ClipUpper); err != nil {
		return err
	}
	if o.MinEffectiveSupport < 0 {
		return core.NewInvalidValueError("minimum effective support must not be negative")
	}
	if o.ExtremeWeightZ <= 0 {
		return core.NewInvalidValueError("extreme weight z-score threshold must be positive")
	}
	if o.MaxWeight < 0 {
		return core.NewInvalidValueError("max weight must not be negative")
	}
	if o.Folds < 2 {
		return core.NewInvalidValueError("cross-fitting needs at least 2 folds")
	}
	if o.MaxIterations < 0 {
		return core.NewInvalidValueError("max iterations must not be negative")
	}
	if o.Tolerance <= 0 {
		return core.NewInvalidValueError("tolerance must be positive")
	}
	if o.ConfidenceLevel <= 0 || o.ConfidenceLevel >= 1 {
		return core.NewInvalidValueError("confidence level must be in (0, 1)")
	}
	return nil
}

func (o Options) clipping() bool {
	return o.ClipLower > 0 || o.ClipUpper < 1
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o.Logger
}

// prepare validates the options and fills the logger.
func prepare(o Options) (Options, error) {
	if err := o.Validate(); err != nil {
		return o, err
	}
	o.Logger = o.logger()
	return o, nil
}
