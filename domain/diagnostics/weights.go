package diagnostics

import (
	"math"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/floats"

	"gocausal/domain/causal"
	"gocausal/domain/core"
)

// WeightDistribution summarises balancing weights.
type WeightDistribution struct {
	N        int
	Sum      float64
	Min      float64
	Max      float64
	Mean     float64
	Std      float64
	P50      float64
	P90      float64
	P99      float64
	ESS      float64
	ESSRatio float64
	// ArmESS is the Kish effective sample size within each arm.
	ArmESS map[causal.Treatment]float64
	// ZOutliers counts weights whose z-score exceeds the configured threshold.
	ZOutliers int
	// AboveMax counts weights above the configured absolute maximum.
	AboveMax int
	Warnings []causal.Warning
}

// KishESS returns (sum w)^2 / sum w^2, or zero for an all-zero vector.
// The result never exceeds len(w), even when rounding would push equal
// weights past it.
func KishESS(w []float64) float64 {
	sum := floats.Sum(w)
	sq := floats.Dot(w, w)
	if sq == 0 {
		return 0
	}
	return math.Min(sum*sum/sq, float64(len(w)))
}

// ExtremeWeights counts weights with |z| > z and weights above maxWeight.
// A non-positive maxWeight disables the absolute check.
func ExtremeWeights(w []float64, z, maxWeight float64) (zOutliers, aboveMax int) {
	if len(w) == 0 {
		return 0, 0
	}
	mean := floats.Sum(w) / float64(len(w))
	std := 0.0
	if len(w) > 1 {
		std, _ = stats.StandardDeviationSample(w)
	}
	for _, v := range w {
		if std > 0 && math.Abs(v-mean)/std > z {
			zOutliers++
		}
		if maxWeight > 0 && v > maxWeight {
			aboveMax++
		}
	}
	return zOutliers, aboveMax
}

// ExtremeWeightWarning renders outlier counts, if any, as a warning.
func ExtremeWeightWarning(zOutliers, aboveMax, n int, z, maxWeight float64) (causal.Warning, bool) {
	if zOutliers == 0 && aboveMax == 0 {
		return causal.Warning{}, false
	}
	return causal.NewWarning(causal.ExtremeWeightWarning, float64(zOutliers+aboveMax),
		"%d of %d weights have |z| > %.1f and %d exceed %.4g", zOutliers, n, z, aboveMax, maxWeight), true
}

// AnalyzeWeights summarises the weights a fitted estimator assigns to (X, A).
func AnalyzeWeights(est WeightProvider, X *causal.Covariates, A *causal.TreatmentVector, cfg Config) (*WeightDistribution, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := checkInputs(est, X, A); err != nil {
		return nil, err
	}
	w, err := est.ComputeWeights(X, A)
	if err != nil {
		return nil, err
	}
	return DescribeWeights(w.Values, A, cfg)
}

// DescribeWeights summarises an already computed weight vector.
func DescribeWeights(w []float64, A *causal.TreatmentVector, cfg Config) (*WeightDistribution, error) {
	if len(w) != A.Len() {
		return nil, core.NewAlignmentError("weights and treatment differ in length", nil)
	}
	if len(w) == 0 {
		return nil, core.NewInvalidValueError("no weights to describe")
	}
	for _, v := range w {
		if v < 0 || math.IsNaN(v) {
			return nil, core.NewInvalidValueError("weights must be non-negative")
		}
	}

	d := &WeightDistribution{N: len(w), Sum: floats.Sum(w), ArmESS: make(map[causal.Treatment]float64)}
	var err error
	if d.Min, err = stats.Min(w); err != nil {
		return nil, err
	}
	if d.Max, err = stats.Max(w); err != nil {
		return nil, err
	}
	if d.Mean, err = stats.Mean(w); err != nil {
		return nil, err
	}
	d.P50, d.P90, d.P99 = d.Min, d.Min, d.Min
	if len(w) > 1 {
		if d.Std, err = stats.StandardDeviationSample(w); err != nil {
			return nil, err
		}
		if d.P50, err = stats.Percentile(w, 50); err != nil {
			return nil, err
		}
		if d.P90, err = stats.Percentile(w, 90); err != nil {
			return nil, err
		}
		if d.P99, err = stats.Percentile(w, 99); err != nil {
			return nil, err
		}
	}

	d.ESS = KishESS(w)
	d.ESSRatio = d.ESS / float64(d.N)
	for _, t := range A.Unique() {
		rows := A.Rows(t)
		armW := make([]float64, len(rows))
		for i, r := range rows {
			armW[i] = w[r]
		}
		d.ArmESS[t] = KishESS(armW)
	}

	d.ZOutliers, d.AboveMax = ExtremeWeights(w, cfg.ExtremeWeightZ, cfg.MaxWeight)
	if warning, ok := ExtremeWeightWarning(d.ZOutliers, d.AboveMax, d.N, cfg.ExtremeWeightZ, cfg.MaxWeight); ok {
		d.Warnings = append(d.Warnings, warning)
	}
	return d, nil
}

// Report renders the distribution into the flat metric map.
func (d *WeightDistribution) Report() *Report {
	b := newReportBuilder("")
	b.count("n", d.N).
		float("sum", d.Sum).
		float("min", d.Min).
		float("max", d.Max).
		float("mean", d.Mean).
		float("std", d.Std).
		float("p50", d.P50).
		float("p90", d.P90).
		float("p99", d.P99).
		float("ess", d.ESS).
		float("ess_ratio", d.ESSRatio).
		count("z_outliers", d.ZOutliers).
		count("above_max", d.AboveMax).
		bool("has_extreme_weights", d.ZOutliers+d.AboveMax > 0)
	for t, ess := range d.ArmESS {
		b.float(armKey("ess", t), ess)
	}
	return b.warn(d.Warnings...).build()
}
