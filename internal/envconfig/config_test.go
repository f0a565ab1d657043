package envconfig

import (
	"log/slog"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestLogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":      slog.LevelInfo,
		"false": slog.LevelInfo,
		"0":     slog.LevelInfo,
		"true":  slog.LevelDebug,
		"1":     slog.LevelDebug,
		"2":     slog.Level(-8),
	}

	for k, v := range cases {
		t.Run(k, func(t *testing.T) {
			t.Setenv("TOKENCODEC_DEBUG", k)
			if i := LogLevel(); i != v {
				t.Errorf("%s: expected %d, got %d", k, v, i)
			}
		})
	}
}

func TestCacheTTL(t *testing.T) {
	cases := map[string]time.Duration{
		"":       30 * time.Minute,
		"1h":     time.Hour,
		"90":     90 * time.Second,
		"\"5m\"": 5 * time.Minute,
		"bogus":  30 * time.Minute,
		"0":      time.Duration(math.MaxInt64),
		"-1s":    time.Duration(math.MaxInt64),
	}

	for k, v := range cases {
		t.Run(k, func(t *testing.T) {
			t.Setenv("TOKENCODEC_CACHE_TTL", k)
			if ttl := CacheTTL(); ttl != v {
				t.Errorf("%s: expected %s, got %s", k, v, ttl)
			}
		})
	}
}

func TestDBPath(t *testing.T) {
	t.Setenv("TOKENCODEC_DB", "/tmp/custom.db")
	if got := DBPath(); got != "/tmp/custom.db" {
		t.Errorf("expected /tmp/custom.db, got %s", got)
	}

	t.Setenv("TOKENCODEC_DB", "")
	if got := DBPath(); filepath.Base(got) != "calibration.db" {
		t.Errorf("expected default file name calibration.db, got %s", got)
	}
}

func TestFloat(t *testing.T) {
	cases := map[string]float64{
		"":     6.0,
		"4.5":  4.5,
		"-1":   6.0,
		"0":    6.0,
		"NaN":  6.0,
		"four": 6.0,
	}

	for k, v := range cases {
		t.Run(k, func(t *testing.T) {
			t.Setenv("TOKENCODEC_CHARS_PER_TOKEN", k)
			if f := CharsPerToken(); f != v {
				t.Errorf("%s: expected %v, got %v", k, v, f)
			}
		})
	}
}

func TestUint(t *testing.T) {
	cases := map[string]uint{
		"":   3,
		"5":  5,
		"-1": 3,
		"x":  3,
	}

	for k, v := range cases {
		t.Run(k, func(t *testing.T) {
			t.Setenv("TOKENCODEC_MIN_SAMPLES", k)
			if n := MinSamples(); n != v {
				t.Errorf("%s: expected %d, got %d", k, v, n)
			}
		})
	}
}

func TestValues(t *testing.T) {
	t.Setenv("TOKENCODEC_DB", "/tmp/custom.db")
	t.Setenv("TOKENCODEC_MIN_SAMPLES", "7")
	t.Setenv("TOKENCODEC_MAX_RATIO", "")

	got := Values()
	want := map[string]string{
		"TOKENCODEC_DB":          "/tmp/custom.db",
		"TOKENCODEC_MIN_SAMPLES": "7",
		"TOKENCODEC_MAX_RATIO":   "2",
	}
	for k, v := range want {
		if diff := cmp.Diff(v, got[k]); diff != "" {
			t.Errorf("%s mismatch (-want +got):\n%s", k, diff)
		}
	}
	if len(got) != len(AsMap()) {
		t.Errorf("expected %d values, got %d", len(AsMap()), len(got))
	}
}
