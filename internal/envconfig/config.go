// Package envconfig reads tokencodec settings from TOKENCODEC_* environment
// variables. Every getter reads the environment on each call; invalid values
// log a warning and fall back to the default.
package envconfig

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Var returns an environment variable stripped of surrounding whitespace and quotes.
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}

// LogLevel returns the log level set by TOKENCODEC_DEBUG.
// Values: 0 or false is INFO (default), 1 or true is DEBUG, 2 is TRACE.
func LogLevel() slog.Level {
	level := slog.LevelInfo
	if s := Var("TOKENCODEC_DEBUG"); s != "" {
		if b, _ := strconv.ParseBool(s); b {
			level = slog.LevelDebug
		} else if i, _ := strconv.ParseInt(s, 10, 64); i != 0 {
			level = slog.Level(i * -4)
		}
	}

	return level
}

// CacheTTL returns how long an unused tokenizer stays cached.
// Configurable via TOKENCODEC_CACHE_TTL as a duration or a number of seconds.
// Default: 30 minutes.
func CacheTTL() (ttl time.Duration) {
	ttl = 30 * time.Minute
	if s := Var("TOKENCODEC_CACHE_TTL"); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			ttl = d
		} else if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			ttl = time.Duration(n) * time.Second
		} else {
			slog.Warn("invalid environment variable, using default", "key", "TOKENCODEC_CACHE_TTL", "value", s, "default", ttl)
		}
	}

	if ttl <= 0 {
		return time.Duration(math.MaxInt64)
	}

	return ttl
}

// DBPath returns the location of the correction factor database.
// Configurable via TOKENCODEC_DB. Default: tokencodec/calibration.db in the
// user cache directory.
func DBPath() string {
	if s := Var("TOKENCODEC_DB"); s != "" {
		return s
	}

	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "tokencodec", "calibration.db")
}

var (
	// CharsPerToken is the heuristic estimator's global ratio.
	CharsPerToken = Float("TOKENCODEC_CHARS_PER_TOKEN", 6.0)
	// MinSamples is the number of samples before a correction factor applies.
	MinSamples = Uint("TOKENCODEC_MIN_SAMPLES", 3)
	// MaxRatio bounds accepted correction factors to [1/MaxRatio, MaxRatio].
	MaxRatio = Float("TOKENCODEC_MAX_RATIO", 2.0)
)

// Uint returns a function reading key as an unsigned integer.
func Uint(key string, defaultValue uint) func() uint {
	return func() uint {
		if s := Var(key); s != "" {
			if n, err := strconv.ParseUint(s, 10, 64); err != nil {
				slog.Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
			} else {
				return uint(n)
			}
		}
		return defaultValue
	}
}

// Float returns a function reading key as a positive float.
func Float(key string, defaultValue float64) func() float64 {
	return func() float64 {
		if s := Var(key); s != "" {
			if f, err := strconv.ParseFloat(s, 64); err != nil || f <= 0 || math.IsInf(f, 0) || math.IsNaN(f) {
				slog.Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
			} else {
				return f
			}
		}
		return defaultValue
	}
}

type EnvVar struct {
	Name        string
	Value       any
	Description string
}

func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"TOKENCODEC_DEBUG":           {"TOKENCODEC_DEBUG", LogLevel(), "Show additional debug information (e.g. TOKENCODEC_DEBUG=1)"},
		"TOKENCODEC_CACHE_TTL":       {"TOKENCODEC_CACHE_TTL", CacheTTL(), "How long an unused tokenizer stays cached (default \"30m\")"},
		"TOKENCODEC_DB":              {"TOKENCODEC_DB", DBPath(), "Path to the correction factor database"},
		"TOKENCODEC_CHARS_PER_TOKEN": {"TOKENCODEC_CHARS_PER_TOKEN", CharsPerToken(), "Default characters per token for estimates (default 6.0)"},
		"TOKENCODEC_MIN_SAMPLES":     {"TOKENCODEC_MIN_SAMPLES", MinSamples(), "Samples needed before a correction factor applies (default 3)"},
		"TOKENCODEC_MAX_RATIO":       {"TOKENCODEC_MAX_RATIO", MaxRatio(), "Largest accepted correction factor, and its inverse the smallest (default 2.0)"},
	}
}

func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}
	return vals
}
