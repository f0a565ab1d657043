// Package calibrate learns per-model multipliers that move heuristic token
// estimates toward the counts a model actually reports.
package calibrate

import (
	"context"
	"log/slog"
	"math"
	"time"
)

// Factor is the learned correction for one model: the running mean of
// actual/estimated over Samples observations.
type Factor struct {
	Model     string
	Samples   int
	Ratio     float64
	UpdatedAt time.Time
}

// Store persists factors. Implementations must make RecordSample an atomic
// read-modify-write per model so concurrent callers never lose a sample.
type Store interface {
	// Factor returns the factor for model and whether one exists.
	Factor(ctx context.Context, model string) (Factor, bool, error)
	// RecordSample folds ratio into the model's running mean.
	RecordSample(ctx context.Context, model string, ratio float64) (Factor, error)
	// Clear removes the factor for model, or every factor when model is empty.
	Clear(ctx context.Context, model string) error
	// Factors lists every stored factor ordered by model.
	Factors(ctx context.Context) ([]Factor, error)
}

// Policy decides when a stored factor is trusted.
type Policy struct {
	MinSamples int     // Samples needed before a factor is applied
	MinRatio   float64 // Ratios below this are treated as outliers
	MaxRatio   float64 // Ratios above this are treated as outliers
}

// DefaultPolicy requires three samples and a ratio within 2x either way.
func DefaultPolicy() Policy {
	return Policy{MinSamples: 3, MinRatio: 0.5, MaxRatio: 2.0}
}

// Accepts reports whether f is trusted under p.
func (p Policy) Accepts(f Factor) bool {
	return f.Samples >= p.MinSamples && f.Ratio >= p.MinRatio && f.Ratio <= p.MaxRatio
}

// Calibrator records samples and applies factors. It keeps no state of its
// own; every call goes to the store.
type Calibrator struct {
	store  Store
	policy Policy
}

// New returns a Calibrator over store.
func New(store Store, policy Policy) *Calibrator {
	return &Calibrator{store: store, policy: policy}
}

// Policy returns the trust policy.
func (c *Calibrator) Policy() Policy {
	return c.policy
}

// Store returns the underlying store.
func (c *Calibrator) Store() Store {
	return c.store
}

// Record adds the observation that text estimated at estimated tokens was
// actually actual tokens for model. Non-positive values are ignored.
func (c *Calibrator) Record(ctx context.Context, model string, estimated, actual int) error {
	if estimated <= 0 || actual <= 0 {
		slog.Debug("ignoring calibration sample", "model", model, "estimated", estimated, "actual", actual)
		return nil
	}

	f, err := c.store.RecordSample(ctx, model, float64(actual)/float64(estimated))
	if err != nil {
		return err
	}

	slog.Debug("recorded calibration sample", "model", model, "samples", f.Samples, "ratio", f.Ratio)
	return nil
}

// Apply returns estimated corrected by the model's factor, or estimated
// unchanged when there is no trusted factor. Store errors are logged and
// leave the estimate unchanged.
func (c *Calibrator) Apply(ctx context.Context, model string, estimated int) int {
	f, ok, err := c.store.Factor(ctx, model)
	if err != nil {
		slog.Warn("failed to read correction factor", "model", model, "error", err)
		return estimated
	}
	if !ok || !c.policy.Accepts(f) {
		return estimated
	}
	return int(math.Round(float64(estimated) * f.Ratio))
}
