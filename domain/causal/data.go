// Package causal holds the data model shared by the estimation engine:
// covariates, treatment and outcome vectors, propensity matrices, weights,
// potential outcomes and effect estimates.
package causal

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"gonum.org/v1/gonum/mat"

	"gocausal/domain/core"
)

// Index carries row identity shared by X, A and Y.
type Index []string

// RangeIndex builds the default 0..n-1 index.
func RangeIndex(n int) Index {
	idx := make(Index, n)
	for i := range idx {
		idx[i] = strconv.Itoa(i)
	}
	return idx
}

// Equal reports whether both indices carry the same identifiers in the same order.
func (idx Index) Equal(other Index) bool {
	if len(idx) != len(other) {
		return false
	}
	for i := range idx {
		if idx[i] != other[i] {
			return false
		}
	}
	return true
}

// Subset returns the identifiers at the given row positions.
func (idx Index) Subset(rows []int) Index {
	out := make(Index, len(rows))
	for i, r := range rows {
		out[i] = idx[r]
	}
	return out
}

// Covariates is the n x p covariate matrix X.
type Covariates struct {
	Index   Index
	Columns []string
	Values  *mat.Dense
}

// NewCovariates copies row-major data into a dense covariate matrix.
func NewCovariates(index Index, columns []string, rows [][]float64) (*Covariates, error) {
	if len(rows) == 0 {
		return nil, core.NewInvalidValueError("covariate matrix has no rows")
	}
	p := len(rows[0])
	if p == 0 {
		return nil, core.NewInvalidValueError("covariate matrix has no columns")
	}
	if columns != nil && len(columns) != p {
		return nil, core.NewInvalidValueError(fmt.Sprintf("got %d column names for %d columns", len(columns), p))
	}
	data := make([]float64, 0, len(rows)*p)
	for i, row := range rows {
		if len(row) != p {
			return nil, core.NewAlignmentError(fmt.Sprintf("row %d has %d columns, expected %d", i, len(row), p), []string{strconv.Itoa(i)})
		}
		data = append(data, row...)
	}
	if index == nil {
		index = RangeIndex(len(rows))
	}
	if columns == nil {
		columns = defaultColumns(p)
	}
	return &Covariates{Index: index, Columns: columns, Values: mat.NewDense(len(rows), p, data)}, nil
}

// CovariatesFromDense wraps an existing matrix without copying it.
func CovariatesFromDense(index Index, columns []string, values *mat.Dense) *Covariates {
	r, c := values.Dims()
	if index == nil {
		index = RangeIndex(r)
	}
	if columns == nil {
		columns = defaultColumns(c)
	}
	return &Covariates{Index: index, Columns: columns, Values: values}
}

func defaultColumns(p int) []string {
	cols := make([]string, p)
	for j := range cols {
		cols[j] = "x" + strconv.Itoa(j)
	}
	return cols
}

// Len returns the number of rows.
func (x *Covariates) Len() int {
	if x == nil || x.Values == nil {
		return 0
	}
	r, _ := x.Values.Dims()
	return r
}

// Subset returns a copy holding only the given rows.
func (x *Covariates) Subset(rows []int) *Covariates {
	_, p := x.Values.Dims()
	sub := mat.NewDense(len(rows), p, nil)
	for i, r := range rows {
		sub.SetRow(i, x.Values.RawRowView(r))
	}
	return &Covariates{Index: x.Index.Subset(rows), Columns: x.Columns, Values: sub}
}

// Treatment is a discrete treatment label.
type Treatment int

func (t Treatment) String() string { return strconv.Itoa(int(t)) }

// TreatmentVector is the observed assignment A.
type TreatmentVector struct {
	Index  Index
	Values []Treatment
}

// NewTreatmentVector builds A with a default range index when index is nil.
func NewTreatmentVector(index Index, values []Treatment) *TreatmentVector {
	if index == nil {
		index = RangeIndex(len(values))
	}
	return &TreatmentVector{Index: index, Values: values}
}

// Len returns the number of rows.
func (a *TreatmentVector) Len() int {
	if a == nil {
		return 0
	}
	return len(a.Values)
}

// Unique returns the distinct treatment values in ascending order.
func (a *TreatmentVector) Unique() []Treatment {
	seen := make(map[Treatment]struct{}, 4)
	for _, v := range a.Values {
		seen[v] = struct{}{}
	}
	out := make([]Treatment, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Counts returns the number of rows per treatment value.
func (a *TreatmentVector) Counts() map[Treatment]int {
	counts := make(map[Treatment]int, 4)
	for _, v := range a.Values {
		counts[v]++
	}
	return counts
}

// Prevalence returns the marginal frequency of each treatment value.
func (a *TreatmentVector) Prevalence() map[Treatment]float64 {
	counts := a.Counts()
	out := make(map[Treatment]float64, len(counts))
	n := float64(len(a.Values))
	for t, c := range counts {
		out[t] = float64(c) / n
	}
	return out
}

// Indicator returns 1[A_i = t] as floats.
func (a *TreatmentVector) Indicator(t Treatment) []float64 {
	out := make([]float64, len(a.Values))
	for i, v := range a.Values {
		if v == t {
			out[i] = 1
		}
	}
	return out
}

// Rows returns the row positions assigned to t.
func (a *TreatmentVector) Rows(t Treatment) []int {
	rows := make([]int, 0, len(a.Values)/2)
	for i, v := range a.Values {
		if v == t {
			rows = append(rows, i)
		}
	}
	return rows
}

// Subset returns a copy holding only the given rows.
func (a *TreatmentVector) Subset(rows []int) *TreatmentVector {
	vals := make([]Treatment, len(rows))
	for i, r := range rows {
		vals[i] = a.Values[r]
	}
	return &TreatmentVector{Index: a.Index.Subset(rows), Values: vals}
}

// Floats returns the labels as float64 targets for classifiers.
func (a *TreatmentVector) Floats() []float64 {
	out := make([]float64, len(a.Values))
	for i, v := range a.Values {
		out[i] = float64(v)
	}
	return out
}

// OutcomeVector is the observed outcome Y. NaN marks a missing outcome.
type OutcomeVector struct {
	Index  Index
	Values []float64
}

// NewOutcomeVector builds Y with a default range index when index is nil.
func NewOutcomeVector(index Index, values []float64) *OutcomeVector {
	if index == nil {
		index = RangeIndex(len(values))
	}
	return &OutcomeVector{Index: index, Values: values}
}

// Len returns the number of rows.
func (y *OutcomeVector) Len() int {
	if y == nil {
		return 0
	}
	return len(y.Values)
}

// ObservedRows returns positions whose outcome is not missing.
func (y *OutcomeVector) ObservedRows() []int {
	rows := make([]int, 0, len(y.Values))
	for i, v := range y.Values {
		if !math.IsNaN(v) {
			rows = append(rows, i)
		}
	}
	return rows
}

// Subset returns a copy holding only the given rows.
func (y *OutcomeVector) Subset(rows []int) *OutcomeVector {
	vals := make([]float64, len(rows))
	for i, r := range rows {
		vals[i] = y.Values[r]
	}
	return &OutcomeVector{Index: y.Index.Subset(rows), Values: vals}
}

// IsBinary reports whether every observed outcome is 0 or 1.
func (y *OutcomeVector) IsBinary() bool {
	for _, v := range y.Values {
		if math.IsNaN(v) {
			continue
		}
		if v != 0 && v != 1 {
			return false
		}
	}
	return true
}
