package calibrate

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalibrator(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		samples [][2]int // estimated, actual
		want    func(t *testing.T, got int)
	}{
		{
			name:    "three samples above the estimate",
			samples: [][2]int{{10, 12}, {10, 13}, {10, 14}},
			want: func(t *testing.T, got int) {
				assert.Greater(t, got, 10)
				assert.Equal(t, 13, got)
			},
		},
		{
			name:    "single sample is not trusted",
			samples: [][2]int{{10, 15}},
			want: func(t *testing.T, got int) {
				assert.Equal(t, 10, got)
			},
		},
		{
			name:    "outlier ratio is ignored",
			samples: [][2]int{{10, 30}, {10, 30}, {10, 30}},
			want: func(t *testing.T, got int) {
				assert.Equal(t, 10, got)
			},
		},
		{
			name:    "outlier ratio below range is ignored",
			samples: [][2]int{{10, 2}, {10, 2}, {10, 2}},
			want: func(t *testing.T, got int) {
				assert.Equal(t, 10, got)
			},
		},
		{
			name:    "non-positive values are dropped",
			samples: [][2]int{{10, 14}, {0, 14}, {10, -1}, {10, 14}},
			want: func(t *testing.T, got int) {
				assert.Equal(t, 10, got)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(NewMemoryStore(), DefaultPolicy())
			for _, s := range tt.samples {
				require.NoError(t, c.Record(ctx, "m", s[0], s[1]))
			}
			tt.want(t, c.Apply(ctx, "m", 10))
		})
	}
}

func TestCalibrator_PerModel(t *testing.T) {
	ctx := context.Background()
	c := New(NewMemoryStore(), DefaultPolicy())

	for range 3 {
		require.NoError(t, c.Record(ctx, "a", 100, 150))
	}

	assert.Equal(t, 150, c.Apply(ctx, "a", 100))
	assert.Equal(t, 100, c.Apply(ctx, "b", 100))
}

func TestCalibrator_TunablePolicy(t *testing.T) {
	ctx := context.Background()
	c := New(NewMemoryStore(), Policy{MinSamples: 1, MinRatio: 0.1, MaxRatio: 10})

	require.NoError(t, c.Record(ctx, "m", 10, 30))
	assert.Equal(t, 30, c.Apply(ctx, "m", 10))
}

type failingStore struct{ Store }

func (failingStore) Factor(context.Context, string) (Factor, bool, error) {
	return Factor{}, false, errors.New("unavailable")
}

func TestCalibrator_StoreErrorKeepsEstimate(t *testing.T) {
	c := New(failingStore{NewMemoryStore()}, DefaultPolicy())
	assert.Equal(t, 42, c.Apply(context.Background(), "m", 42))
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, ok, err := s.Factor(ctx, "m")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.RecordSample(ctx, "m", 1.0)
	require.NoError(t, err)
	f, err := s.RecordSample(ctx, "m", 2.0)
	require.NoError(t, err)
	assert.Equal(t, 2, f.Samples)
	assert.InDelta(t, 1.5, f.Ratio, 1e-9)
	assert.False(t, f.UpdatedAt.IsZero())

	_, err = s.RecordSample(ctx, "a", 1.0)
	require.NoError(t, err)

	all, err := s.Factors(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].Model)
	assert.Equal(t, "m", all[1].Model)

	require.NoError(t, s.Clear(ctx, "m"))
	_, ok, err = s.Factor(ctx, "m")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Clear(ctx, ""))
	all, err = s.Factors(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestMemoryStore_ConcurrentSamples(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.RecordSample(ctx, "m", 1.0)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	f, ok, err := s.Factor(ctx, "m")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 50, f.Samples)
	assert.InDelta(t, 1.0, f.Ratio, 1e-9)
}

func TestRunningMean(t *testing.T) {
	assert.InDelta(t, 1.2, RunningMean(0, 0, 1.2), 1e-9)
	assert.InDelta(t, 1.25, RunningMean(1.2, 1, 1.3), 1e-9)
	assert.InDelta(t, 1.3, RunningMean(1.25, 2, 1.4), 1e-9)
}
