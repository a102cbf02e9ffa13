package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewIDUniqueness tests that NewID generates unique identifiers
func TestNewIDUniqueness(t *testing.T) {
	const numIDs = 10000

	ids := make(map[ID]bool, numIDs)
	for i := 0; i < numIDs; i++ {
		id := NewID()
		if id.IsEmpty() {
			t.Errorf("Generated empty ID at iteration %d", i)
		}
		if ids[id] {
			t.Errorf("Generated duplicate ID: %s", id)
		}
		ids[id] = true
	}

	if len(ids) != numIDs {
		t.Errorf("Expected %d unique IDs, got %d", numIDs, len(ids))
	}
}

// TestIDIsEmpty tests ID emptiness check
func TestIDIsEmpty(t *testing.T) {
	assert.True(t, ID("").IsEmpty())
	assert.False(t, ID("not-empty").IsEmpty())
}

// TestParseRunID tests run ID parsing
func TestParseRunID(t *testing.T) {
	valid := NewRunID()

	tests := []struct {
		input    string
		hasError bool
	}{
		{valid.String(), false},
		{"", true},
		{"   ", true},
		{"not-a-uuid", true},
	}

	for _, tt := range tests {
		result, err := ParseRunID(tt.input)
		if tt.hasError {
			assert.Error(t, err, "input %q", tt.input)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, RunID(tt.input), result)
	}
}

func TestComputeDatasetHash_Deterministic(t *testing.T) {
	index := []string{"a", "b", "c"}
	x := []float64{1, 2, 3}
	y := []float64{0.5, 0.25, 0.125}

	h1 := ComputeDatasetHash(index, x, y)
	h2 := ComputeDatasetHash(index, x, y)
	assert.Equal(t, h1, h2)
	assert.Len(t, h1.String(), 64)

	h3 := ComputeDatasetHash(index, x, []float64{0.5, 0.25, 0.126})
	assert.NotEqual(t, h1, h3)
}

func TestCausalError_UnwrapsKindAndCause(t *testing.T) {
	cause := errors.New("singular matrix")
	err := WrapLearnerError("LinearRegression", "fit", cause)

	assert.ErrorIs(t, err, ErrLearnerInterface)
	assert.ErrorIs(t, err, cause)

	var ce *CausalError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, ce.Error(), "LinearRegression failed during fit")
}

func TestCausalError_TruncatesLongDetailLists(t *testing.T) {
	values := make([]string, 25)
	for i := range values {
		values[i] = "v"
	}
	err := NewTreatmentValueError("unseen values", values)
	assert.Contains(t, err.Error(), "(15 more)")
	assert.True(t, IsValidationError(err))
	assert.False(t, IsFatalAssumptionError(err))
}
