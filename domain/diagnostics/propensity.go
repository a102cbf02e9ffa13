package diagnostics

import (
	"math"
	"sort"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/mat"

	"gocausal/domain/causal"
	"gocausal/domain/propensity"
)

// ArmPropensityStats describes P(A=t|X) for one arm.
type ArmPropensityStats struct {
	Min             float64
	Max             float64
	Mean            float64
	FractionOutside float64
	// SMD is the standardized mean difference of the score between units in
	// the arm and the rest.
	SMD float64
	// AUC is the one-vs-rest area under the ROC curve of the score.
	AUC float64
	// CalibrationGap is mean(score) minus the observed share of the arm.
	CalibrationGap float64
	Brier          float64
}

// PropensityScoreStats summarises the propensity model of a fitted estimator.
// Overall figures describe p(A_i | X_i), the score each unit's weight uses.
type PropensityScoreStats struct {
	N               int
	Epsilon         float64
	FractionOutside float64
	Min             float64
	Max             float64
	Mean            float64
	Median          float64
	Std             float64
	// Clip records what truncation to [Epsilon, 1-Epsilon] would alter.
	Clip   propensity.ClipStats
	Brier  float64
	PerArm map[causal.Treatment]ArmPropensityStats
}

// AnalyzePropensityScores computes extremity, separation and calibration of
// the estimator's propensity model on (X, A).
func AnalyzePropensityScores(est PropensityProvider, X *causal.Covariates, A *causal.TreatmentVector, cfg Config) (*PropensityScoreStats, error) {
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
	return DescribePropensity(P, A, cfg)
}

// DescribePropensity summarises an already extracted propensity matrix.
func DescribePropensity(P *causal.PropensityMatrix, A *causal.TreatmentVector, cfg Config) (*PropensityScoreStats, error) {
	observed, err := P.Observed(A)
	if err != nil {
		return nil, err
	}
	s := &PropensityScoreStats{
		N:       len(observed),
		Epsilon: cfg.Epsilon,
		PerArm:  make(map[causal.Treatment]ArmPropensityStats, len(P.Treatments)),
	}

	if s.Min, err = stats.Min(observed); err != nil {
		return nil, err
	}
	if s.Max, err = stats.Max(observed); err != nil {
		return nil, err
	}
	if s.Mean, err = stats.Mean(observed); err != nil {
		return nil, err
	}
	if s.Median, err = stats.Median(observed); err != nil {
		return nil, err
	}
	if len(observed) > 1 {
		if s.Std, err = stats.StandardDeviationSample(observed); err != nil {
			return nil, err
		}
	}

	if cfg.Epsilon > 0 {
		lower, upper := propensity.SymmetricBounds(cfg.Epsilon)
		_, s.Clip, err = propensity.ClipPropensityScores(observed, lower, upper)
		if err != nil {
			return nil, err
		}
	}
	s.FractionOutside = fractionOutside(observed, cfg.Epsilon)

	brierSum := 0.0
	for j, t := range P.Treatments {
		col := mat.Col(nil, j, P.Scores)
		member := A.Indicator(t)
		arm, err := describeArm(col, member, cfg.Epsilon)
		if err != nil {
			return nil, err
		}
		s.PerArm[t] = arm
		brierSum += arm.Brier
	}
	s.Brier = brierSum / float64(len(P.Treatments))
	return s, nil
}

func describeArm(score, member []float64, eps float64) (ArmPropensityStats, error) {
	var a ArmPropensityStats
	var err error
	if a.Min, err = stats.Min(score); err != nil {
		return a, err
	}
	if a.Max, err = stats.Max(score); err != nil {
		return a, err
	}
	if a.Mean, err = stats.Mean(score); err != nil {
		return a, err
	}
	a.FractionOutside = fractionOutside(score, eps)

	var in, out []float64
	share, brier := 0.0, 0.0
	for i, p := range score {
		if member[i] == 1 {
			in = append(in, p)
		} else {
			out = append(out, p)
		}
		share += member[i]
		brier += (p - member[i]) * (p - member[i])
	}
	n := float64(len(score))
	a.CalibrationGap = a.Mean - share/n
	a.Brier = brier / n
	a.SMD = standardizedMeanDifference(in, out)
	a.AUC = rocAUC(in, out)
	return a, nil
}

func fractionOutside(scores []float64, eps float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	outside := 0
	for _, p := range scores {
		if p < eps || p > 1-eps {
			outside++
		}
	}
	return float64(outside) / float64(len(scores))
}

// standardizedMeanDifference uses the pooled standard deviation
// sqrt((var_in + var_out)/2). Degenerate groups give zero.
func standardizedMeanDifference(in, out []float64) float64 {
	if len(in) < 2 || len(out) < 2 {
		return 0
	}
	m1, _ := stats.Mean(in)
	m0, _ := stats.Mean(out)
	v1, _ := stats.VarS(in)
	v0, _ := stats.VarS(out)
	pooled := math.Sqrt((v1 + v0) / 2)
	if pooled == 0 {
		return 0
	}
	return (m1 - m0) / pooled
}

// rocAUC is the Mann-Whitney estimate with midranks for ties.
func rocAUC(pos, neg []float64) float64 {
	if len(pos) == 0 || len(neg) == 0 {
		return math.NaN()
	}
	type scored struct {
		v   float64
		pos bool
	}
	all := make([]scored, 0, len(pos)+len(neg))
	for _, v := range pos {
		all = append(all, scored{v, true})
	}
	for _, v := range neg {
		all = append(all, scored{v, false})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].v < all[j].v })

	rankSum := 0.0
	for i := 0; i < len(all); {
		j := i
		for j < len(all) && all[j].v == all[i].v {
			j++
		}
		mid := float64(i+j+1) / 2
		for k := i; k < j; k++ {
			if all[k].pos {
				rankSum += mid
			}
		}
		i = j
	}
	np, nn := float64(len(pos)), float64(len(neg))
	return (rankSum - np*(np+1)/2) / (np * nn)
}

// Report renders the statistics into the flat metric map.
func (s *PropensityScoreStats) Report() *Report {
	b := newReportBuilder("")
	b.count("n", s.N).
		float("epsilon", s.Epsilon).
		float("fraction_outside", s.FractionOutside).
		float("min", s.Min).
		float("max", s.Max).
		float("mean", s.Mean).
		float("median", s.Median).
		float("std", s.Std).
		count("n_clipped_low", s.Clip.NClippedLow).
		count("n_clipped_high", s.Clip.NClippedHigh).
		float("pct_clipped", s.Clip.PctClipped).
		float("brier", s.Brier).
		bool("has_extreme_scores", s.FractionOutside > 0)
	for t, a := range s.PerArm {
		b.float(armKey("min", t), a.Min).
			float(armKey("max", t), a.Max).
			float(armKey("mean", t), a.Mean).
			float(armKey("fraction_outside", t), a.FractionOutside).
			float(armKey("smd", t), a.SMD).
			float(armKey("auc", t), a.AUC).
			float(armKey("calibration_gap", t), a.CalibrationGap).
			float(armKey("brier", t), a.Brier)
	}
	return b.build()
}
