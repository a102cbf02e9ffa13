package estimation

import (
	"fmt"
	"math/rand/v2"
	"strconv"

	"gocausal/domain/causal"
	"gocausal/domain/core"
)

// foldStream decorrelates the second PCG word from the seed.
const foldStream = 0x9e3779b97f4a7c15

// Folds is a fixed fold-assignment arena for cross-fitting. Every row belongs
// to exactly one test fold; Train(k) is the complement of Test(k).
type Folds struct {
	k          int
	seed       uint64
	assignment []int
	test       [][]int
	train      [][]int
}

// NewFolds stratifies rows by arm and deals each arm's shuffled rows
// round-robin over k folds. Each arm needs at least k rows.
func NewFolds(strata []causal.Treatment, k int, seed uint64) (*Folds, error) {
	if k < 2 {
		return nil, core.NewInvalidValueError("cross-fitting needs at least 2 folds", strconv.Itoa(k))
	}
	byArm := make(map[causal.Treatment][]int)
	var arms []causal.Treatment
	for i, t := range strata {
		if _, ok := byArm[t]; !ok {
			arms = append(arms, t)
		}
		byArm[t] = append(byArm[t], i)
	}
	sortTreatments(arms)

	rng := rand.New(rand.NewPCG(seed, seed^foldStream))
	f := &Folds{k: k, seed: seed, assignment: make([]int, len(strata))}
	next := 0
	for _, t := range arms {
		rows := byArm[t]
		if len(rows) < k {
			return nil, core.NewInvalidValueError(
				fmt.Sprintf("arm %s has %d rows, fewer than %d folds", t, len(rows), k), t.String())
		}
		rng.Shuffle(len(rows), func(i, j int) { rows[i], rows[j] = rows[j], rows[i] })
		for _, r := range rows {
			f.assignment[r] = next
			next = (next + 1) % k
		}
	}

	f.test = make([][]int, k)
	f.train = make([][]int, k)
	for i, fold := range f.assignment {
		f.test[fold] = append(f.test[fold], i)
		for other := 0; other < k; other++ {
			if other != fold {
				f.train[other] = append(f.train[other], i)
			}
		}
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// K returns the number of folds.
func (f *Folds) K() int { return f.k }

// Seed returns the shuffling seed.
func (f *Folds) Seed() uint64 { return f.seed }

// Len returns the number of rows partitioned.
func (f *Folds) Len() int { return len(f.assignment) }

// Of returns the test fold of row i.
func (f *Folds) Of(i int) int { return f.assignment[i] }

// Test returns the held-out rows of fold k, ascending.
func (f *Folds) Test(k int) []int { return append([]int(nil), f.test[k]...) }

// Train returns every row outside fold k, ascending.
func (f *Folds) Train(k int) []int { return append([]int(nil), f.train[k]...) }

// Validate checks that train and test sets are disjoint, that each fold's
// sets cover every row exactly once, and that no fold is empty.
func (f *Folds) Validate() error {
	n := len(f.assignment)
	covered := make([]int, n)
	for k := 0; k < f.k; k++ {
		if len(f.test[k]) == 0 {
			return core.NewInvalidValueError("empty test fold", strconv.Itoa(k))
		}
		seen := make([]bool, n)
		for _, r := range f.test[k] {
			seen[r] = true
			covered[r]++
		}
		for _, r := range f.train[k] {
			if seen[r] {
				return core.NewInvalidValueError(
					fmt.Sprintf("row %d is in both train and test of fold %d", r, k), strconv.Itoa(r))
			}
			seen[r] = true
		}
		for r, ok := range seen {
			if !ok {
				return core.NewInvalidValueError(
					fmt.Sprintf("row %d is missing from fold %d", r, k), strconv.Itoa(r))
			}
		}
	}
	for r, c := range covered {
		if c != 1 {
			return core.NewInvalidValueError(
				fmt.Sprintf("row %d is held out %d times", r, c), strconv.Itoa(r))
		}
	}
	return nil
}
