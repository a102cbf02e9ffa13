package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"

	"gocausal/adapters/learners"
	"gocausal/app"
	"gocausal/domain/causal"
	"gocausal/internal/config"
	"gocausal/internal/logging"
	"gocausal/internal/testkit"
	"gocausal/ports"
)

// harness wires configuration, logging and the estimation service with the
// reference learners.
type harness struct {
	service *app.EstimationService
}

func newHarness(envFile string, logOut io.Writer) (*harness, error) {
	var files []string
	if envFile != "" {
		files = append(files, envFile)
	}
	cfg, err := config.Load(files...)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, logOut)
	if err != nil {
		return nil, err
	}
	service, err := app.NewEstimationService(cfg, app.Learners{
		Propensity: func() ports.Learner { return learners.NewLogisticRegression() },
		Outcome:    func() ports.Learner { return learners.NewLinearRegression() },
	}, logger)
	if err != nil {
		return nil, err
	}
	return &harness{service: service}, nil
}

type scenarioOptions struct {
	scenario string
	kind     string
	treated  int
	baseline int
	rows     int
	seed     uint64
	json     bool
}

func generate(name string, rows int, seed uint64) (*testkit.Dataset, error) {
	cfg := testkit.DefaultScenarioConfig()
	cfg.Rows, cfg.Seed = rows, seed
	g := testkit.NewGenerator(cfg)
	switch name {
	case "binary":
		return g.Binary(), nil
	case "multi-arm":
		return g.MultiArm(), nil
	case "limited-overlap":
		return g.LimitedOverlap(), nil
	default:
		return nil, fmt.Errorf("unknown scenario %q (want binary, multi-arm or limited-overlap)", name)
	}
}

func (h *harness) run(ctx context.Context, d *testkit.Dataset, kind string, treated, baseline int) (*app.EstimationRun, error) {
	req := app.EstimationRequest{
		X: d.X, A: d.A, Y: d.Y,
		Treated:  causal.Treatment(treated),
		Baseline: causal.Treatment(baseline),
	}
	if kind != "" {
		k, err := causal.ParseEstimatorKind(kind)
		if err != nil {
			return nil, err
		}
		req.Kind = k
	}
	return h.service.Run(ctx, req)
}

func (h *harness) runScenario(ctx context.Context, out io.Writer, opts scenarioOptions) error {
	d, err := generate(opts.scenario, opts.rows, opts.seed)
	if err != nil {
		return err
	}
	run, err := h.run(ctx, d, opts.kind, opts.treated, opts.baseline)
	if err != nil {
		return err
	}
	summary := summarize(run)
	if opts.json {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}

	fmt.Fprintf(out, "run %s (%s) on %s, %d rows\n", summary.RunID, summary.Estimator, opts.scenario, opts.rows)
	for _, e := range summary.Effects {
		fmt.Fprintf(out, "  %-5s %d vs %d: %s", e.Type, opts.treated, opts.baseline, formatFloat(e.Value))
		if e.Lower != nil && e.Upper != nil {
			fmt.Fprintf(out, " [%s, %s]", formatFloat(e.Lower), formatFloat(e.Upper))
		}
		fmt.Fprintln(out)
	}
	for _, w := range summary.Warnings {
		fmt.Fprintf(out, "  warning: %s\n", w)
	}
	return nil
}

func (h *harness) runSmokeTests(ctx context.Context, out io.Writer) error {
	fmt.Fprintln(out, "Running smoke tests...")

	d, err := generate("binary", 1000, 42)
	if err != nil {
		return err
	}
	passed := 0
	for _, kind := range causal.EstimatorKinds {
		fmt.Fprintf(out, "  Running %s...", kind)
		run, err := h.run(ctx, d, string(kind), 1, 0)
		switch {
		case err != nil:
			fmt.Fprintf(out, " FAILED: %v\n", err)
		case math.IsNaN(run.Effects[causal.Diff].Value):
			fmt.Fprintln(out, " FAILED: effect is NaN")
		default:
			fmt.Fprintf(out, " PASSED (%.3f)\n", run.Effects[causal.Diff].Value)
			passed++
		}
	}

	fmt.Fprintf(out, "\nSmoke tests: %d/%d passed\n", passed, len(causal.EstimatorKinds))
	if passed < len(causal.EstimatorKinds) {
		return fmt.Errorf("some smoke tests failed")
	}
	return nil
}

func (h *harness) testDeterminism(ctx context.Context, out io.Writer, kind string, seed uint64) error {
	fmt.Fprintf(out, "Testing determinism of %s with seed %d...\n", kind, seed)

	runs := make([]*app.EstimationRun, 2)
	for i := range runs {
		d, err := generate("binary", 1000, seed)
		if err != nil {
			return err
		}
		if runs[i], err = h.run(ctx, d, kind, 1, 0); err != nil {
			return err
		}
	}
	if err := compareRuns(runs[0], runs[1]); err != nil {
		return fmt.Errorf("determinism test failed: %w", err)
	}
	fmt.Fprintln(out, "Determinism test passed - results identical")
	return nil
}

func compareRuns(original, replay *app.EstimationRun) error {
	if original.DatasetHash != replay.DatasetHash {
		return fmt.Errorf("dataset hashes differ")
	}
	if len(original.Effects) != len(replay.Effects) {
		return fmt.Errorf("effect counts differ: %d vs %d", len(original.Effects), len(replay.Effects))
	}
	for et, e := range original.Effects {
		r, ok := replay.Effects[et]
		if !ok {
			return fmt.Errorf("effect %s missing from replay", et)
		}
		if math.Float64bits(e.Value) != math.Float64bits(r.Value) {
			return fmt.Errorf("effect %s differs: %v vs %v", et, e.Value, r.Value)
		}
	}
	if len(original.Warnings) != len(replay.Warnings) {
		return fmt.Errorf("warning counts differ: %d vs %d", len(original.Warnings), len(replay.Warnings))
	}
	return nil
}

// runSummary is the JSON-safe view of a run; non-finite numbers become null.
type runSummary struct {
	RunID       string          `json:"run_id"`
	DatasetHash string          `json:"dataset_hash"`
	Estimator   string          `json:"estimator"`
	Effects     []effectSummary `json:"effects"`
	Diagnostics map[string]any  `json:"diagnostics"`
	Warnings    []string        `json:"warnings"`
	DurationMs  int64           `json:"duration_ms"`
}

type effectSummary struct {
	Type     string   `json:"type"`
	Value    *float64 `json:"value"`
	StdError *float64 `json:"std_error,omitempty"`
	Lower    *float64 `json:"lower,omitempty"`
	Upper    *float64 `json:"upper,omitempty"`
}

func summarize(run *app.EstimationRun) runSummary {
	s := runSummary{
		RunID:       run.RunID.String(),
		DatasetHash: run.DatasetHash.String(),
		Estimator:   run.Estimator,
		Diagnostics: make(map[string]any),
		DurationMs:  run.Duration.Milliseconds(),
	}

	types := make([]causal.EffectType, 0, len(run.Effects))
	for et := range run.Effects {
		types = append(types, et)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	for _, et := range types {
		e := run.Effects[et]
		es := effectSummary{Type: et.String(), Value: finite(e.Value)}
		if e.HasCI {
			es.StdError, es.Lower, es.Upper = finite(e.StdError), finite(e.Lower), finite(e.Upper)
		}
		s.Effects = append(s.Effects, es)
	}

	if run.Report != nil {
		for k, v := range run.Report.Report().Flatten() {
			if f, ok := v.(float64); ok {
				s.Diagnostics[k] = finite(f)
				continue
			}
			s.Diagnostics[k] = v
		}
	}
	for _, w := range run.Warnings {
		s.Warnings = append(s.Warnings, w.String())
	}
	return s
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func formatFloat(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.4f", *v)
}
