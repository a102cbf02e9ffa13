package causal

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"gocausal/domain/core"
)

// PropensityMatrix holds P(A = t | X) for every row and treatment value.
// Columns follow Treatments, which is sorted ascending.
type PropensityMatrix struct {
	Index      Index
	Treatments []Treatment
	Scores     *mat.Dense
}

// Column returns the position of t among the matrix columns.
func (p *PropensityMatrix) Column(t Treatment) (int, error) {
	for j, v := range p.Treatments {
		if v == t {
			return j, nil
		}
	}
	return -1, core.NewTreatmentValueError("treatment value has no propensity column", []string{t.String()})
}

// Scores for a single arm, copied.
func (p *PropensityMatrix) For(t Treatment) ([]float64, error) {
	j, err := p.Column(t)
	if err != nil {
		return nil, err
	}
	return mat.Col(nil, j, p.Scores), nil
}

// Observed returns p(A_i | X_i) for the assignment a.
func (p *PropensityMatrix) Observed(a *TreatmentVector) ([]float64, error) {
	n, _ := p.Scores.Dims()
	if a.Len() != n {
		return nil, core.NewAlignmentError(fmt.Sprintf("propensity matrix has %d rows, treatment has %d", n, a.Len()), nil)
	}
	cols := make(map[Treatment]int, len(p.Treatments))
	for j, t := range p.Treatments {
		cols[t] = j
	}
	out := make([]float64, n)
	for i, t := range a.Values {
		j, ok := cols[t]
		if !ok {
			return nil, core.NewTreatmentValueError("treatment value has no propensity column", []string{t.String()})
		}
		out[i] = p.Scores.At(i, j)
	}
	return out, nil
}

// Len returns the number of rows.
func (p *PropensityMatrix) Len() int {
	r, _ := p.Scores.Dims()
	return r
}

// WeightVector is a non-negative per-row weight.
type WeightVector struct {
	Index  Index
	Values []float64
}
