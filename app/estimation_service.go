package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gonum.org/v1/gonum/mat"

	"gocausal/domain/causal"
	"gocausal/domain/core"
	"gocausal/domain/diagnostics"
	"gocausal/domain/estimation"
	"gocausal/internal/config"
	apperrors "gocausal/internal/errors"
	"gocausal/internal/logging"
	"gocausal/internal/validation"
	"gocausal/ports"
)

// Learners supplies fresh, unfitted models to the estimators a run builds
type Learners struct {
	Propensity ports.LearnerFactory
	Outcome    ports.LearnerFactory
	// Effect produces the CATE regressors of the meta-learners. Outcome is
	// used when nil.
	Effect ports.LearnerFactory
	// StratifiedOutcome makes AIPW and TMLE fit one outcome model per arm
	// instead of a single model with treatment indicators.
	StratifiedOutcome bool
}

// EstimationService builds, fits and diagnoses one estimator per run
type EstimationService struct {
	cfg      *config.Config
	learners Learners
	logger   *slog.Logger
}

// EstimationRequest defines the inputs of a single run
type EstimationRequest struct {
	X *causal.Covariates
	A *causal.TreatmentVector
	// Y may be nil for the weighting estimators.
	Y *causal.OutcomeVector

	Treated  causal.Treatment
	Baseline causal.Treatment

	// Kind and EffectTypes default to the configured values when empty.
	Kind        causal.EstimatorKind
	EffectTypes []causal.EffectType
	// Individual additionally computes the per-row effect of the first
	// effect type when the estimator supports it.
	Individual bool
	RunID      core.RunID // optional, will be generated if empty
}

// EstimationRun is the complete record of one run
type EstimationRun struct {
	RunID            core.RunID                                  `json:"run_id"`
	DatasetHash      core.DatasetHash                            `json:"dataset_hash"`
	Estimator        string                                      `json:"estimator"`
	Kind             causal.EstimatorKind                        `json:"kind"`
	Treated          causal.Treatment                            `json:"treated"`
	Baseline         causal.Treatment                            `json:"baseline"`
	Outcomes         *causal.PotentialOutcomes                   `json:"outcomes"`
	Effects          map[causal.EffectType]causal.EffectEstimate `json:"effects"`
	IndividualEffect *causal.EffectEstimate                      `json:"individual_effect,omitempty"`
	Report           *diagnostics.EstimationReport               `json:"report"`
	Warnings         []causal.Warning                            `json:"warnings"`
	StartedAt        time.Time                                   `json:"started_at"`
	Duration         time.Duration                               `json:"duration"`
}

// NewEstimationService creates an estimation service. A nil logger discards.
func NewEstimationService(cfg *config.Config, learners Learners, logger *slog.Logger) (*EstimationService, error) {
	if cfg == nil {
		return nil, apperrors.ConfigInvalid("config cannot be nil")
	}
	if logger == nil {
		logger = logging.Discard()
	}
	if learners.Effect == nil {
		learners.Effect = learners.Outcome
	}
	return &EstimationService{cfg: cfg, learners: learners, logger: logger}, nil
}

// Run executes build, fit, estimate and diagnose for one request. The
// context is checked between stages.
func (s *EstimationService) Run(ctx context.Context, req EstimationRequest) (*EstimationRun, error) {
	startTime := time.Now()

	kind := req.Kind
	if kind == "" {
		kind = s.cfg.EstimatorKind()
	}
	effectTypes := req.EffectTypes
	if len(effectTypes) == 0 {
		var err error
		if effectTypes, err = s.cfg.EffectTypes(); err != nil {
			return nil, apperrors.WithCode(apperrors.CodeConfigInvalid, err)
		}
	}
	if req.Treated == req.Baseline {
		return nil, apperrors.InvalidInput(fmt.Sprintf("treated and baseline are both %s", req.Treated))
	}
	if err := validation.CheckAlignment(req.X, req.A, req.Y); err != nil {
		return nil, apperrors.WithCode(apperrors.CodeInvalidInput, err)
	}

	runID := req.RunID
	if runID == "" {
		runID = core.NewRunID()
	}
	logger := s.logger.With("run_id", runID.String(), "estimator", string(kind))
	opts := s.cfg.EstimationOptions(logger)

	est, err := s.build(kind, req.Treated, req.Baseline, opts)
	if err != nil {
		return nil, apperrors.WithCode(apperrors.CodeConfigInvalid, fmt.Errorf("build %s: %w", kind, err))
	}

	run := &EstimationRun{
		RunID:       runID,
		DatasetHash: fingerprint(req.X, req.A, req.Y),
		Estimator:   est.Name(),
		Kind:        kind,
		Treated:     req.Treated,
		Baseline:    req.Baseline,
		Effects:     make(map[causal.EffectType]causal.EffectEstimate, len(effectTypes)),
		StartedAt:   startTime,
	}
	logger.Info("estimation run started", "rows", req.X.Len(), "dataset_hash", run.DatasetHash.String())

	if err := fit(est, req.X, req.A, req.Y); err != nil {
		return nil, estimationFailed(err, "fit")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	po, err := est.EstimatePopulationOutcome(req.X, req.A, req.Y)
	if err != nil {
		return nil, estimationFailed(err, "estimate population outcome")
	}
	run.Outcomes = po
	run.Warnings = append(run.Warnings, po.Warnings...)

	for _, et := range effectTypes {
		effect, err := estimation.EstimateEffect(est, po, req.Treated, req.Baseline, et)
		if err != nil {
			return nil, estimationFailed(err, "effect "+et.String())
		}
		run.Effects[et] = effect
		run.Warnings = append(run.Warnings, effect.Warnings[len(po.Warnings):]...)
	}

	if req.Individual {
		individual, err := individualEffect(est, req.X, req.Treated, req.Baseline, effectTypes[0])
		if err != nil {
			return nil, estimationFailed(err, "individual effect")
		}
		run.IndividualEffect = individual
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report, err := s.diagnose(est, req)
	if err != nil {
		return nil, estimationFailed(err, "diagnostics")
	}
	run.Report = report
	run.Warnings = append(run.Warnings, report.Warnings...)
	for _, w := range report.Warnings {
		attrs := []any{"kind", string(w.Kind), "metric", w.Metric}
		if w.Arm != nil {
			attrs = append(attrs, "arm", int(*w.Arm))
		}
		logger.Warn(w.Message, attrs...)
	}

	run.Duration = time.Since(startTime)
	logger.Info("estimation run complete",
		"duration", run.Duration,
		"warnings", len(run.Warnings),
		"effects", len(run.Effects))
	return run, nil
}

func (s *EstimationService) build(kind causal.EstimatorKind, treated, baseline causal.Treatment, opts estimation.Options) (estimation.PopulationOutcomeEstimator, error) {
	l := s.learners
	if kind.UsesPropensity() && l.Propensity == nil {
		return nil, apperrors.ConfigInvalidf("%s needs a propensity learner", kind)
	}
	if kind.UsesOutcomeModel() && l.Outcome == nil {
		return nil, apperrors.ConfigInvalidf("%s needs an outcome learner", kind)
	}

	switch kind {
	case causal.KindIPW:
		return estimation.NewIPW(l.Propensity(), opts)
	case causal.KindOverlapWeights:
		return estimation.NewOverlapWeights(l.Propensity(), opts)
	case causal.KindStandardization:
		return estimation.NewStandardization(l.Outcome(), opts)
	case causal.KindStratifiedStandardization:
		return estimation.NewStratifiedStandardization(l.Outcome, opts)
	case causal.KindAIPW, causal.KindTMLE:
		outcome, err := s.outcomeModel(opts)
		if err != nil {
			return nil, err
		}
		if kind == causal.KindAIPW {
			return estimation.NewAIPW(l.Propensity(), outcome, opts)
		}
		return estimation.NewTMLE(l.Propensity(), outcome, opts)
	case causal.KindXLearner, causal.KindRLearner:
		models := estimation.MetaLearners{Propensity: l.Propensity, Outcome: l.Outcome, Effect: l.Effect}
		if kind == causal.KindXLearner {
			return estimation.NewXLearner(models, treated, baseline, opts)
		}
		return estimation.NewRLearner(models, treated, baseline, opts)
	default:
		return nil, apperrors.ConfigInvalidf("unsupported estimator kind %q", kind)
	}
}

func (s *EstimationService) outcomeModel(opts estimation.Options) (estimation.OutcomeModelCapable, error) {
	if s.learners.StratifiedOutcome {
		return estimation.NewStratifiedStandardization(s.learners.Outcome, opts)
	}
	return estimation.NewStandardization(s.learners.Outcome(), opts)
}

// fit dispatches to the two Fit shapes: weighting strategies never see Y.
func fit(est estimation.PopulationOutcomeEstimator, X *causal.Covariates, A *causal.TreatmentVector, Y *causal.OutcomeVector) error {
	switch e := est.(type) {
	case interface {
		Fit(*causal.Covariates, *causal.TreatmentVector, *causal.OutcomeVector) error
	}:
		return e.Fit(X, A, Y)
	case interface {
		Fit(*causal.Covariates, *causal.TreatmentVector) error
	}:
		return e.Fit(X, A)
	default:
		return core.NewLearnerInterfaceError(est.Name(), "fit")
	}
}

func individualEffect(est estimation.PopulationOutcomeEstimator, X *causal.Covariates, treated, baseline causal.Treatment, et causal.EffectType) (*causal.EffectEstimate, error) {
	if direct, ok := est.(estimation.IndividualEffectEstimator); ok {
		effect, err := direct.EstimateIndividualEffect(X, et)
		if err != nil {
			return nil, err
		}
		return &effect, nil
	}
	outcomes, ok := est.(estimation.IndividualOutcomeEstimator)
	if !ok {
		return nil, apperrors.InvalidInput(est.Name() + " does not produce individual-level estimates")
	}
	po, err := outcomes.EstimateIndividualOutcome(X)
	if err != nil {
		return nil, err
	}
	effect, err := estimation.EstimateIndividualEffect(est, po, treated, baseline, et)
	if err != nil {
		return nil, err
	}
	return &effect, nil
}

// diagnose builds the report. Meta-learners only model their own pair, so
// their diagnostics run on the rows assigned to it.
func (s *EstimationService) diagnose(est estimation.PopulationOutcomeEstimator, req EstimationRequest) (*diagnostics.EstimationReport, error) {
	X, A, Y := req.X, req.A, req.Y
	if _, ok := est.(interface {
		Contrast() (causal.Treatment, causal.Treatment)
	}); ok {
		rows := make([]int, 0, A.Len())
		for i, t := range A.Values {
			if t == req.Treated || t == req.Baseline {
				rows = append(rows, i)
			}
		}
		X, A = X.Subset(rows), A.Subset(rows)
		if Y != nil {
			Y = Y.Subset(rows)
		}
	}
	return diagnostics.BuildReport(est, X, A, Y, s.cfg.DiagnosticsConfig())
}

func fingerprint(X *causal.Covariates, A *causal.TreatmentVector, Y *causal.OutcomeVector) core.DatasetHash {
	_, p := X.Values.Dims()
	columns := make([][]float64, 0, p+2)
	for j := 0; j < p; j++ {
		columns = append(columns, mat.Col(nil, j, X.Values))
	}
	columns = append(columns, A.Floats())
	if Y != nil {
		columns = append(columns, Y.Values)
	}
	return core.ComputeDatasetHash(X.Index, columns...)
}

func estimationFailed(err error, stage string) error {
	return apperrors.WithCode(apperrors.CodeEstimation, fmt.Errorf("%s: %w", stage, err))
}
