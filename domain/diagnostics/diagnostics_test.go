package diagnostics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"gocausal/domain/causal"
	"gocausal/domain/core"
	"gocausal/internal/testkit"
)

// fixedEstimator serves a precomputed propensity matrix.
type fixedEstimator struct {
	P      *causal.PropensityMatrix
	fitted bool
}

func (f *fixedEstimator) Name() string                        { return "fixed" }
func (f *fixedEstimator) Kind() causal.EstimatorKind          { return causal.KindIPW }
func (f *fixedEstimator) IsFitted() bool                      { return f.fitted }
func (f *fixedEstimator) TreatmentValues() []causal.Treatment { return f.P.Treatments }

func (f *fixedEstimator) PropensityMatrix(*causal.Covariates) (*causal.PropensityMatrix, error) {
	return f.P, nil
}

func (f *fixedEstimator) ComputeWeights(_ *causal.Covariates, A *causal.TreatmentVector) (causal.WeightVector, error) {
	observed, err := f.P.Observed(A)
	if err != nil {
		return causal.WeightVector{}, err
	}
	w := make([]float64, len(observed))
	for i, p := range observed {
		w[i] = 1 / p
	}
	return causal.WeightVector{Index: A.Index, Values: w}, nil
}

func TestOverlap_LimitedSupportWarns(t *testing.T) {
	d := testkit.NewGenerator(testkit.DefaultScenarioConfig()).LimitedOverlap()
	est := &fixedEstimator{P: d.Propensity, fitted: true}

	o, err := AnalyzeOverlap(est, d.X, d.A, DefaultConfig())
	require.NoError(t, err)
	assert.Less(t, o.Coverage[1], 0.5)
	assert.Less(t, o.MinCoverage, 0.5)
	assert.True(t, o.LowOverlap())
	assert.True(t, causal.HasWarning(o.Warnings, causal.LowOverlapWarning))

	r := o.Report()
	assert.True(t, r.HasWarning(causal.LowOverlapWarning))
	low, ok := r.Bool("low_overlap")
	require.True(t, ok)
	assert.True(t, low)
}

func TestOverlap_GoodSupport(t *testing.T) {
	d := testkit.NewGenerator(testkit.DefaultScenarioConfig()).Binary()
	o, err := DescribeOverlap(d.Propensity, d.A, DefaultConfig())
	require.NoError(t, err)
	assert.Greater(t, o.MinCoverage, 0.5)
	assert.False(t, causal.HasWarning(o.Warnings, causal.LowOverlapWarning))
	for _, arm := range []causal.Treatment{0, 1} {
		assert.LessOrEqual(t, o.Lower[arm], o.Upper[arm])
	}
}

func TestAnalyzers_RequireFittedEstimator(t *testing.T) {
	d := testkit.NewGenerator(testkit.DefaultScenarioConfig()).Binary()
	est := &fixedEstimator{P: d.Propensity}

	_, err := AnalyzeOverlap(est, d.X, d.A, DefaultConfig())
	assert.ErrorIs(t, err, core.ErrNotFitted)
	_, err = AnalyzeWeights(est, d.X, d.A, DefaultConfig())
	assert.ErrorIs(t, err, core.ErrNotFitted)
	_, err = BuildReport(est, d.X, d.A, d.Y, DefaultConfig())
	assert.ErrorIs(t, err, core.ErrNotFitted)
}

func TestKishESS(t *testing.T) {
	assert.InDelta(t, 4.0, KishESS([]float64{2, 2, 2, 2}), 1e-12)
	assert.InDelta(t, 100.0/30.0, KishESS([]float64{1, 2, 3, 4}), 1e-12)
	assert.Equal(t, 0.0, KishESS([]float64{0, 0}))

	d := testkit.NewGenerator(testkit.DefaultScenarioConfig()).Binary()
	est := &fixedEstimator{P: d.Propensity, fitted: true}
	w, err := AnalyzeWeights(est, d.X, d.A, DefaultConfig())
	require.NoError(t, err)
	assert.LessOrEqual(t, w.ESS, float64(w.N))
	assert.Less(t, w.ESSRatio, 1.0)
	for arm, ess := range w.ArmESS {
		assert.LessOrEqual(t, ess, float64(d.A.Counts()[arm]))
	}
}

func TestKishESS_EqualWeightsNeverExceedN(t *testing.T) {
	assert.Equal(t, 3.0, KishESS([]float64{0.1, 0.1, 0.1}))

	for _, c := range []float64{0.1, 0.3, 1.0 / 3.0, 0.7, 1.1, 2.2, 1e-3, 7.77} {
		for n := 1; n <= 50; n++ {
			w := make([]float64, n)
			for i := range w {
				w[i] = c
			}
			ess := KishESS(w)
			assert.LessOrEqual(t, ess, float64(n), "w=%v n=%d", c, n)
			assert.InDelta(t, float64(n), ess, 1e-9, "w=%v n=%d", c, n)
		}
	}
}

func TestExtremeWeights(t *testing.T) {
	w := []float64{1, 1, 1, 1, 1, 1, 1, 1, 1, 10}
	z, above := ExtremeWeights(w, 2, 5)
	assert.Equal(t, 1, z)
	assert.Equal(t, 1, above)

	z, above = ExtremeWeights(w, 3, 0)
	assert.Equal(t, 0, z)
	assert.Equal(t, 0, above)

	z, above = ExtremeWeights([]float64{2, 2, 2, 2}, 0.5, 0)
	assert.Equal(t, 0, z)
	assert.Equal(t, 0, above)

	z, above = ExtremeWeights(nil, 3, 1)
	assert.Zero(t, z+above)
}

func TestDescribeWeights_FlagsExtremes(t *testing.T) {
	w := make([]float64, 100)
	for i := range w {
		w[i] = 1
	}
	w[0] = 500
	A := causal.NewTreatmentVector(nil, make([]causal.Treatment, 100))

	d, err := DescribeWeights(w, A, DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, 1, d.ZOutliers)
	assert.Equal(t, 1, d.AboveMax)
	assert.Equal(t, 500.0, d.Max)
	assert.True(t, causal.HasWarning(d.Warnings, causal.ExtremeWeightWarning))

	_, err = DescribeWeights([]float64{1, -1}, causal.NewTreatmentVector(nil, []causal.Treatment{0, 1}), DefaultConfig())
	assert.ErrorIs(t, err, core.ErrInvalidValue)
	_, err = DescribeWeights([]float64{1}, A, DefaultConfig())
	assert.ErrorIs(t, err, core.ErrAlignment)
}

func TestDescribePropensity_TrueScores(t *testing.T) {
	d := testkit.NewGenerator(testkit.DefaultScenarioConfig()).Binary()
	s, err := DescribePropensity(d.Propensity, d.A, DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, 2000, s.N)
	assert.GreaterOrEqual(t, s.Min, 0.0)
	assert.LessOrEqual(t, s.Max, 1.0)
	treated := s.PerArm[1]
	assert.Greater(t, treated.AUC, 0.6)
	assert.Greater(t, treated.SMD, 0.0)
	assert.InDelta(t, 0.0, treated.CalibrationGap, 0.05)
	assert.Less(t, s.Brier, 0.25)

	r := s.Report()
	auc, ok := r.Float("arm_1.auc")
	require.True(t, ok)
	assert.Equal(t, treated.AUC, auc)
}

func TestRocAUC(t *testing.T) {
	assert.Equal(t, 1.0, rocAUC([]float64{0.8, 0.9}, []float64{0.1, 0.2}))
	assert.Equal(t, 0.0, rocAUC([]float64{0.1}, []float64{0.9}))
	assert.Equal(t, 0.5, rocAUC([]float64{0.5, 0.5}, []float64{0.5, 0.5}))
}

func TestTreatmentBalance_Dominance(t *testing.T) {
	A := causal.NewTreatmentVector(nil, []causal.Treatment{0, 0, 0, 0, 0, 0, 0, 0, 0, 1})
	b, err := AnalyzeTreatmentBalance(A, 0.8)
	require.NoError(t, err)
	assert.True(t, b.Dominated)
	assert.Equal(t, causal.Treatment(0), b.Dominant)
	assert.InDelta(t, 0.9, b.Dominance, 1e-12)
	assert.True(t, causal.HasWarning(b.Warnings, causal.SingleTreatmentDominanceWarning))

	r := b.Report()
	count, ok := r.Float("arm_0.count")
	require.True(t, ok)
	assert.Equal(t, 9.0, count)
}

func TestReport_IsImmutable(t *testing.T) {
	b := newReportBuilder("weights")
	b.float("ess", 10).bool("ok", true).warn(causal.NewWarning(causal.ExtremeWeightWarning, 1, "x"))
	r := b.build()

	b.float("ess", 99)
	v, _ := r.Float("weights.ess")
	assert.Equal(t, 10.0, v)

	flat := r.Flatten()
	flat["weights.ess"] = 1.0
	v, _ = r.Float("weights.ess")
	assert.Equal(t, 10.0, v)

	ws := r.Warnings()
	ws[0].Kind = causal.LowOverlapWarning
	assert.True(t, r.HasWarning(causal.ExtremeWeightWarning))
	assert.Equal(t, []string{"weights.ess", "weights.ok"}, r.Keys())
	assert.Equal(t, 2, r.Len())
}

func TestBuildReport_CombinesSections(t *testing.T) {
	d := testkit.NewGenerator(testkit.DefaultScenarioConfig()).LimitedOverlap()
	est := &fixedEstimator{P: d.Propensity, fitted: true}

	report, err := BuildReport(est, d.X, d.A, d.Y, DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, "continuous", report.OutcomeType)
	assert.NotNil(t, report.Propensity)
	assert.NotNil(t, report.Overlap)
	assert.NotNil(t, report.Weights)
	assert.Equal(t, Assumptions(causal.KindIPW), report.Assumptions)

	flat := report.Report()
	assert.True(t, flat.HasWarning(causal.LowOverlapWarning))
	assert.True(t, flat.Has("overlap.min_coverage"))
	assert.True(t, flat.Has("weights.ess"))
	assert.True(t, flat.Has("balance.n"))
	assert.True(t, flat.Has("propensity.arm_1.auc"))
	assert.True(t, flat.Has("sample_size"))
}

func TestAssumptions_PerKind(t *testing.T) {
	names := func(as []Assumption) []AssumptionCategory {
		out := make([]AssumptionCategory, len(as))
		for i, a := range as {
			out[i] = a.Category
		}
		return out
	}
	assert.Contains(t, names(Assumptions(causal.KindIPW)), CategoryPositivity)
	assert.NotContains(t, names(Assumptions(causal.KindStandardization)), CategoryPositivity)
	assert.Contains(t, names(Assumptions(causal.KindRLearner)), CategorySampleSplitting)
	assert.Contains(t, names(Assumptions(causal.KindTMLE)), CategoryBoundedOutcome)
	for _, kind := range causal.EstimatorKinds {
		assert.Contains(t, names(Assumptions(kind)), CategoryNoConfounding)
	}
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
	cfg := DefaultConfig()
	cfg.Epsilon = 0.6
	assert.ErrorIs(t, cfg.Validate(), core.ErrInvalidValue)

	cfg = DefaultConfig()
	cfg.ExtremeWeightZ = 0
	assert.ErrorIs(t, cfg.Validate(), core.ErrInvalidValue)
}

func TestDescribePropensity_RejectsUnknownArm(t *testing.T) {
	P := &causal.PropensityMatrix{
		Index:      causal.RangeIndex(2),
		Treatments: []causal.Treatment{0, 1},
		Scores:     mat.NewDense(2, 2, []float64{0.5, 0.5, 0.4, 0.6}),
	}
	A := causal.NewTreatmentVector(nil, []causal.Treatment{0, 2})
	_, err := DescribePropensity(P, A, DefaultConfig())
	assert.ErrorIs(t, err, core.ErrTreatmentValue)
}
