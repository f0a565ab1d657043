// Package tokenizer is the public entry point of tokencodec.
//
// A Service bundles a tokenizer cache, the heuristic estimator and the
// correction-factor calibrator behind the operations callers need: train,
// encode, decode, estimate and count for a model.
//
// Example usage:
//
//	import "github.com/born-ml/tokencodec/tokenizer"
//
//	svc, err := tokenizer.New(tokenizer.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer svc.Close()
//
//	// Train the active tokenizer
//	res, err := svc.Train(corpus, 4096, false)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Encode and decode
//	ids, err := svc.Encode("Hello, world!")
//	text, err := svc.Decode(ids)
//
//	// Estimate for a model, corrected by what it reported before
//	n := svc.CountTokensForModel(ctx, "Hello, world!", "gpt-4o")
//	err = svc.RecordTokenCountCorrection(ctx, "gpt-4o", n, actual)
package tokenizer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/born-ml/tokencodec/internal/bpe"
	"github.com/born-ml/tokencodec/internal/cache"
	"github.com/born-ml/tokencodec/internal/calibrate"
	"github.com/born-ml/tokencodec/internal/envconfig"
	"github.com/born-ml/tokencodec/internal/estimate"
)

// Re-exported types callers need without importing internal packages.
type (
	Kind        = bpe.Kind
	Tokenizer   = bpe.Tokenizer
	Result      = bpe.Result
	Convergence = bpe.Convergence
	Factor      = calibrate.Factor
	Policy      = calibrate.Policy
	Store       = calibrate.Store

	Estimator       = estimate.Estimator
	EstimatorConfig = estimate.Config
)

// Tokenizer kinds.
const (
	KindByte      = bpe.KindByte
	KindRegex     = bpe.KindRegex
	KindGPT4      = bpe.KindGPT4
	KindHeuristic = bpe.KindHeuristic
)

// ParseKind maps a name such as "regex" to its Kind.
func ParseKind(s string) (Kind, error) {
	return bpe.ParseKind(s)
}

// Config configures a Service.
type Config struct {
	Kind      Kind   // Kind of the active tokenizer
	VocabFile string // Vocabulary, model or corpus file for the active tokenizer
	VocabSize int    // Target size when VocabFile is a corpus

	CacheTTL  time.Duration
	Estimator EstimatorConfig
	Policy    Policy
	Store     Store // Defaults to an in-memory store
}

// DefaultConfig returns a regex tokenizer configuration with ratios, TTL and
// calibration policy taken from the environment.
func DefaultConfig() Config {
	est := estimate.DefaultConfig()
	est.CharsPerToken = envconfig.CharsPerToken()

	maxRatio := envconfig.MaxRatio()
	return Config{
		Kind:      KindRegex,
		VocabSize: 4096,
		CacheTTL:  envconfig.CacheTTL(),
		Estimator: est,
		Policy: Policy{
			MinSamples: int(envconfig.MinSamples()),
			MinRatio:   1 / maxRatio,
			MaxRatio:   maxRatio,
		},
	}
}

// Service is safe for concurrent use.
type Service struct {
	cfg        Config
	cache      *cache.Cache
	estimator  *estimate.Estimator
	calibrator *calibrate.Calibrator

	mu     sync.Mutex
	active *bpe.Tokenizer
}

// New builds a Service from cfg.
func New(cfg Config) (*Service, error) {
	est, err := estimate.New(cfg.Estimator)
	if err != nil {
		return nil, fmt.Errorf("create estimator: %w", err)
	}

	store := cfg.Store
	if store == nil {
		store = calibrate.NewMemoryStore()
	}

	return &Service{
		cfg:        cfg,
		cache:      cache.New(cfg.CacheTTL, cache.DefaultBuilder(est)),
		estimator:  est,
		calibrator: calibrate.New(store, cfg.Policy),
	}, nil
}

// Close releases the calibration store when it holds resources.
func (s *Service) Close() error {
	if c, ok := s.calibrator.Store().(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Train learns vocabSize-256 merges from text with the optimized trainer and
// makes the result the active tokenizer. The active tokenizer is untouched
// when training fails.
func (s *Service) Train(text string, vocabSize int, verbose bool) (Result, error) {
	tok, err := bpe.New(s.cfg.Kind)
	if err != nil {
		return Result{}, err
	}

	res, err := tok.TrainFast(text, vocabSize, verbose)
	if err != nil {
		return Result{}, err
	}

	s.setActive(tok)
	slog.Info("trained tokenizer", "kind", s.cfg.Kind, "result", res.Summary())
	return res, nil
}

// TrainUntilConvergence is Train bounded by c instead of a fixed size.
func (s *Service) TrainUntilConvergence(text string, c Convergence, verbose bool) (Result, error) {
	tok, err := bpe.New(s.cfg.Kind)
	if err != nil {
		return Result{}, err
	}

	res, err := tok.TrainFastUntilConvergence(text, c, verbose)
	if err != nil {
		return Result{}, err
	}

	s.setActive(tok)
	slog.Info("trained tokenizer", "kind", s.cfg.Kind, "result", res.Summary())
	return res, nil
}

// Encode converts text to ids with the active tokenizer.
func (s *Service) Encode(text string) ([]int, error) {
	tok, err := s.Active()
	if err != nil {
		return nil, err
	}
	return tok.Encode(text), nil
}

// Decode converts ids back to text with the active tokenizer. Unknown ids
// decode to U+FFFD.
func (s *Service) Decode(ids []int) (string, error) {
	tok, err := s.Active()
	if err != nil {
		return "", err
	}
	return tok.Decode(ids), nil
}

// Active returns the tokenizer used by Encode and Decode: the last one
// trained, or the cached tokenizer for the configured kind and file.
func (s *Service) Active() (*bpe.Tokenizer, error) {
	s.mu.Lock()
	tok := s.active
	s.mu.Unlock()

	if tok != nil {
		return tok, nil
	}
	return s.cache.Get(s.cfg.Kind, s.cfg.VocabFile, s.cfg.VocabSize)
}

func (s *Service) setActive(tok *bpe.Tokenizer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.active = tok
}

// EstimateTokens approximates the number of tokens in text. It never fails:
// if the estimator errors, a quarter of the character count is returned.
func (s *Service) EstimateTokens(text string) int {
	n, err := s.estimator.Estimate(text)
	if err != nil {
		slog.Warn("token estimate failed, using character count", "error", err)
		return estimate.Fallback(text)
	}
	return n
}

// CountTokensForModel is EstimateTokens corrected by the factor learned for model.
func (s *Service) CountTokensForModel(ctx context.Context, text, model string) int {
	return s.calibrator.Apply(ctx, model, s.EstimateTokens(text))
}

// RecordTokenCountCorrection records that a text estimated at estimated
// tokens was reported by model as actual tokens.
func (s *Service) RecordTokenCountCorrection(ctx context.Context, model string, estimated, actual int) error {
	return s.calibrator.Record(ctx, model, estimated, actual)
}

// Factors lists the stored correction factors.
func (s *Service) Factors(ctx context.Context) ([]Factor, error) {
	return s.calibrator.Store().Factors(ctx)
}

// ClearFactors removes the correction factor for model, or all of them when
// model is empty.
func (s *Service) ClearFactors(ctx context.Context, model string) error {
	return s.calibrator.Store().Clear(ctx, model)
}

// Policy returns the calibration trust policy.
func (s *Service) Policy() Policy {
	return s.calibrator.Policy()
}

// Estimator returns the heuristic estimator.
func (s *Service) Estimator() *Estimator {
	return s.estimator
}

// Tokenizer returns the cached tokenizer for the given kind and file,
// building it on a miss.
func (s *Service) Tokenizer(kind Kind, vocabFile string, vocabSize int) (*bpe.Tokenizer, error) {
	return s.cache.Get(kind, vocabFile, vocabSize)
}

// ClearTokenizerCache drops every cached tokenizer. A trained active
// tokenizer is kept.
func (s *Service) ClearTokenizerCache() {
	s.cache.Clear()
}

// Cleanup evicts tokenizers unused for longer than the cache TTL and returns
// how many were removed. Callers schedule it themselves.
func (s *Service) Cleanup() int {
	return s.cache.Cleanup()
}
