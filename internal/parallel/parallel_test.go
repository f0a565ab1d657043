package parallel

import (
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFor(t *testing.T) {
	cfg := DefaultConfig()

	var counter int64
	n := 1000

	For(n, func(_ int) {
		atomic.AddInt64(&counter, 1)
	}, cfg)

	assert.Equal(t, int64(n), counter)
}

func TestFor_Sequential(t *testing.T) {
	cfg := Config{Enabled: false}

	var order []int
	For(5, func(i int) {
		order = append(order, i)
	}, cfg)

	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestFor_SmallChunk(t *testing.T) {
	// Small work units fall back to sequential.
	cfg := DefaultConfig()

	var counter int64
	n := cfg.MinChunkSize - 1

	For(n, func(_ int) {
		atomic.AddInt64(&counter, 1)
	}, cfg)

	assert.Equal(t, int64(n), counter)
}

func TestFor_ZeroWorkers(t *testing.T) {
	cfg := Config{Enabled: true, NumWorkers: 0, MinChunkSize: 1}

	var counter int64
	For(10, func(_ int) {
		atomic.AddInt64(&counter, 1)
	}, cfg)

	assert.Equal(t, int64(10), counter)
}

func TestMap(t *testing.T) {
	items := make([]string, 200)
	for i := range items {
		items[i] = strings.Repeat("x", i)
	}

	cfg := Config{Enabled: true, NumWorkers: 4, MinChunkSize: 8}
	got := Map(items, func(s string) int { return len(s) }, cfg)

	assert.Len(t, got, len(items))
	for i, n := range got {
		assert.Equal(t, i, n)
	}
}

func TestMap_Empty(t *testing.T) {
	got := Map(nil, func(s string) int { return len(s) }, DefaultConfig())
	assert.Empty(t, got)
}

func BenchmarkFor(b *testing.B) {
	cfg := DefaultConfig()
	n := 10000

	b.Run("parallel", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			var sum int64
			For(n, func(i int) {
				atomic.AddInt64(&sum, int64(i))
			}, cfg)
		}
	})

	b.Run("sequential", func(b *testing.B) {
		cfgSeq := cfg
		cfgSeq.Enabled = false
		for i := 0; i < b.N; i++ {
			var sum int64
			For(n, func(i int) {
				atomic.AddInt64(&sum, int64(i))
			}, cfgSeq)
		}
	})
}
