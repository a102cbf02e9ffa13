package estimation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gocausal/domain/causal"
	"gocausal/domain/core"
)

func strata(n int) []causal.Treatment {
	out := make([]causal.Treatment, n)
	for i := range out {
		if i%3 == 0 {
			out[i] = 1
		}
	}
	return out
}

func TestFolds_PartitionRows(t *testing.T) {
	s := strata(103)
	f, err := NewFolds(s, 5, 42)
	require.NoError(t, err)
	require.NoError(t, f.Validate())
	assert.Equal(t, 5, f.K())
	assert.Equal(t, 103, f.Len())

	held := make(map[int]int)
	for k := 0; k < f.K(); k++ {
		test := f.Test(k)
		train := f.Train(k)
		assert.Equal(t, f.Len(), len(test)+len(train))
		inTest := make(map[int]bool, len(test))
		for _, r := range test {
			inTest[r] = true
			held[r]++
			assert.Equal(t, k, f.Of(r))
		}
		for _, r := range train {
			assert.False(t, inTest[r], "row %d in train and test of fold %d", r, k)
		}
	}
	assert.Len(t, held, 103)
	for r, c := range held {
		assert.Equal(t, 1, c, "row %d", r)
	}
}

func TestFolds_StratifiedByArm(t *testing.T) {
	s := strata(100)
	f, err := NewFolds(s, 4, 7)
	require.NoError(t, err)

	for k := 0; k < f.K(); k++ {
		treated := 0
		for _, r := range f.Test(k) {
			if s[r] == 1 {
				treated++
			}
		}
		// 34 treated rows over 4 folds.
		assert.InDelta(t, 8.5, float64(treated), 1.0)
	}
}

func TestFolds_SeedDeterminesAssignment(t *testing.T) {
	s := strata(60)
	a, err := NewFolds(s, 3, 11)
	require.NoError(t, err)
	b, err := NewFolds(s, 3, 11)
	require.NoError(t, err)
	c, err := NewFolds(s, 3, 12)
	require.NoError(t, err)

	assert.Equal(t, a.assignment, b.assignment)
	assert.NotEqual(t, a.assignment, c.assignment)
}

func TestFolds_Errors(t *testing.T) {
	_, err := NewFolds(strata(30), 1, 0)
	assert.ErrorIs(t, err, core.ErrInvalidValue)

	// Arm 1 has only two rows.
	_, err = NewFolds([]causal.Treatment{0, 0, 0, 0, 1, 1}, 3, 0)
	assert.ErrorIs(t, err, core.ErrInvalidValue)

	f, err := NewFolds(strata(30), 3, 0)
	require.NoError(t, err)
	f.train[0] = append(f.train[0], f.test[0][0])
	assert.ErrorIs(t, f.Validate(), core.ErrInvalidValue)
}
