package calibrate

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"sync"
	"time"
)

// MemoryStore is a Store that lives for the process.
type MemoryStore struct {
	mu      sync.Mutex
	factors map[string]Factor
	now     func() time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{factors: make(map[string]Factor), now: time.Now}
}

func (s *MemoryStore) Factor(_ context.Context, model string) (Factor, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.factors[model]
	return f, ok, nil
}

func (s *MemoryStore) RecordSample(_ context.Context, model string, ratio float64) (Factor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f := s.factors[model]
	f.Model = model
	f.Ratio = RunningMean(f.Ratio, f.Samples, ratio)
	f.Samples++
	f.UpdatedAt = s.now()
	s.factors[model] = f

	return f, nil
}

func (s *MemoryStore) Clear(_ context.Context, model string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if model == "" {
		clear(s.factors)
		return nil
	}
	delete(s.factors, model)
	return nil
}

func (s *MemoryStore) Factors(_ context.Context) ([]Factor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.SortedFunc(maps.Values(s.factors), func(a, b Factor) int {
		return cmp.Compare(a.Model, b.Model)
	}), nil
}

// RunningMean folds sample into mean, which averages n earlier samples.
func RunningMean(mean float64, n int, sample float64) float64 {
	return (mean*float64(n) + sample) / float64(n+1)
}
