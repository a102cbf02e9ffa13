// Package testkit generates seeded synthetic datasets with known causal
// structure for tests.
package testkit

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"gocausal/domain/causal"
)

// ScenarioConfig configures the synthetic data generators
type ScenarioConfig struct {
	Rows   int     `json:"rows"`
	Seed   uint64  `json:"seed"`
	Effect float64 `json:"effect"`
	Noise  float64 `json:"noise"`
}

// DefaultScenarioConfig returns the configuration of the binary-treatment
// reference scenario: 2000 rows, effect 2, noise sd 0.5.
func DefaultScenarioConfig() ScenarioConfig {
	return ScenarioConfig{
		Rows:   2000,
		Seed:   42,
		Effect: 2,
		Noise:  0.5,
	}
}

// Dataset bundles aligned inputs with the true propensity matrix that
// generated A.
type Dataset struct {
	X          *causal.Covariates
	A          *causal.TreatmentVector
	Y          *causal.OutcomeVector
	Propensity *causal.PropensityMatrix
}

// Generator produces datasets from a fixed seed.
type Generator struct {
	config ScenarioConfig
	rng    *rand.Rand
}

// NewGenerator creates a generator; equal configs yield equal datasets.
func NewGenerator(config ScenarioConfig) *Generator {
	return &Generator{
		config: config,
		rng:    rand.New(rand.NewPCG(config.Seed, config.Seed+1)),
	}
}

// Binary draws X ~ N(0,1), A ~ Bernoulli(sigmoid(X)) and
// Y = Effect*A + X + N(0, Noise).
func (g *Generator) Binary() *Dataset {
	n := g.config.Rows
	x := make([]float64, n)
	a := make([]causal.Treatment, n)
	y := make([]float64, n)
	scores := mat.NewDense(n, 2, nil)
	for i := 0; i < n; i++ {
		x[i] = g.rng.NormFloat64()
		p := sigmoid(x[i])
		scores.Set(i, 0, 1-p)
		scores.Set(i, 1, p)
		if g.rng.Float64() < p {
			a[i] = 1
		}
		y[i] = g.config.Effect*float64(a[i]) + x[i] + g.config.Noise*g.rng.NormFloat64()
	}
	return assemble(mat.NewDense(n, 1, x), []string{"x"}, a, y, []causal.Treatment{0, 1}, scores)
}

// MultiArm draws two covariates and a three-level treatment from a
// multinomial logit; arm t shifts the outcome by t*Effect.
func (g *Generator) MultiArm() *Dataset {
	n := g.config.Rows
	X := mat.NewDense(n, 2, nil)
	a := make([]causal.Treatment, n)
	y := make([]float64, n)
	scores := mat.NewDense(n, 3, nil)
	for i := 0; i < n; i++ {
		x1, x2 := g.rng.NormFloat64(), g.rng.NormFloat64()
		X.Set(i, 0, x1)
		X.Set(i, 1, x2)

		probs := softmax([]float64{0, 0.5 * x1, -0.5*x1 + 0.5*x2})
		for t, p := range probs {
			scores.Set(i, t, p)
		}
		a[i] = draw(probs, g.rng.Float64())
		y[i] = g.config.Effect*float64(a[i]) + x1 - x2 + g.config.Noise*g.rng.NormFloat64()
	}
	return assemble(X, []string{"x1", "x2"}, a, y, []causal.Treatment{0, 1, 2}, scores)
}

// LimitedOverlap builds a binary dataset where every unit's propensity for
// arm 1 lies in [0.001, 0.009]. One in ten units is treated regardless, so
// both arms are present while arm 1 has almost no support.
func (g *Generator) LimitedOverlap() *Dataset {
	n := g.config.Rows
	x := make([]float64, n)
	a := make([]causal.Treatment, n)
	y := make([]float64, n)
	scores := mat.NewDense(n, 2, nil)
	for i := 0; i < n; i++ {
		p := 0.001 + 0.008*g.rng.Float64()
		x[i] = p
		scores.Set(i, 0, 1-p)
		scores.Set(i, 1, p)
		if i%10 == 0 {
			a[i] = 1
		}
		y[i] = g.config.Effect*float64(a[i]) + g.config.Noise*g.rng.NormFloat64()
	}
	return assemble(mat.NewDense(n, 1, x), []string{"p1"}, a, y, []causal.Treatment{0, 1}, scores)
}

// WithMissingOutcomes returns a copy of d whose every k-th outcome is NaN.
func (d *Dataset) WithMissingOutcomes(k int) *Dataset {
	y := append([]float64(nil), d.Y.Values...)
	for i := 0; i < len(y); i += k {
		y[i] = math.NaN()
	}
	out := *d
	out.Y = causal.NewOutcomeVector(d.Y.Index, y)
	return &out
}

func assemble(X *mat.Dense, columns []string, a []causal.Treatment, y []float64, arms []causal.Treatment, scores *mat.Dense) *Dataset {
	n, _ := X.Dims()
	index := causal.RangeIndex(n)
	return &Dataset{
		X: causal.CovariatesFromDense(index, columns, X),
		A: causal.NewTreatmentVector(index, a),
		Y: causal.NewOutcomeVector(index, y),
		Propensity: &causal.PropensityMatrix{
			Index:      index,
			Treatments: arms,
			Scores:     scores,
		},
	}
}

func softmax(logits []float64) []float64 {
	out := make([]float64, len(logits))
	total := 0.0
	for i, l := range logits {
		out[i] = math.Exp(l)
		total += out[i]
	}
	for i := range out {
		out[i] /= total
	}
	return out
}

// draw returns the arm whose cumulative probability first exceeds u.
func draw(probs []float64, u float64) causal.Treatment {
	cum := 0.0
	for t, p := range probs {
		cum += p
		if u < cum {
			return causal.Treatment(t)
		}
	}
	return causal.Treatment(len(probs) - 1)
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
