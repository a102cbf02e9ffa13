package estimation

import (
	"strconv"
	"sync"

	"gocausal/domain/causal"
	"gocausal/domain/core"
)

// Status is the two-state fit lifecycle.
type Status int

const (
	Unfitted Status = iota
	Fitted
)

func (s Status) String() string {
	if s == Fitted {
		return "fitted"
	}
	return "unfitted"
}

// fitState guards learned state. Fit builds everything into locals and
// installs it under the write lock; estimate calls hold the read lock.
type fitState struct {
	mu              sync.RWMutex
	status          Status
	treatmentValues []causal.Treatment
	nFeatures       int
	nSamples        int
}

func (s *fitState) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *fitState) IsFitted() bool {
	return s.Status() == Fitted
}

// TreatmentValues returns the sorted arms seen at fit time.
func (s *fitState) TreatmentValues() []causal.Treatment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]causal.Treatment(nil), s.treatmentValues...)
}

// Dimensions returns the feature and sample counts seen at fit time.
func (s *fitState) Dimensions() (nFeatures, nSamples int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nFeatures, s.nSamples
}

// commit replaces the learned state atomically.
func (s *fitState) commit(values []causal.Treatment, X *causal.Covariates, install func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	install()
	s.treatmentValues = append([]causal.Treatment(nil), values...)
	_, s.nFeatures = X.Values.Dims()
	s.nSamples = X.Len()
	s.status = Fitted
}

// withFitted runs fn under the read lock once the status is Fitted.
func (s *fitState) withFitted(name string, fn func(values []causal.Treatment) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.status != Fitted {
		return core.NewNotFittedError(name)
	}
	return fn(s.treatmentValues)
}

// checkFeatures rejects covariates whose width differs from training.
func (s *fitState) checkFeatures(X *causal.Covariates) error {
	_, p := X.Values.Dims()
	if p != s.nFeatures {
		return core.NewAlignmentError("covariate columns differ from fit time", []string{
			"fit=" + strconv.Itoa(s.nFeatures), "got=" + strconv.Itoa(p),
		})
	}
	return nil
}
