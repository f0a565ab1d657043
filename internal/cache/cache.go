// Package cache keeps constructed tokenizers for reuse.
//
// Entries expire after a TTL measured from their last use. Expiry is only
// enforced by Get, which rebuilds stale entries, and by Cleanup, which the
// owner calls on its own schedule.
package cache

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/born-ml/tokencodec/internal/bpe"
	"github.com/born-ml/tokencodec/internal/estimate"
)

// Key identifies a cached tokenizer.
type Key struct {
	Kind      bpe.Kind
	VocabFile string
	VocabSize int
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%s:%d", k.Kind, k.VocabFile, k.VocabSize)
}

// Builder constructs the tokenizer for a key on a cache miss.
type Builder func(Key) (*bpe.Tokenizer, error)

type entry struct {
	tok      *bpe.Tokenizer
	lastUsed time.Time
}

// Cache maps keys to tokenizers. All operations take the same lock.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[Key]*entry
	build   Builder
	now     func() time.Time
}

// New returns an empty cache. A ttl of zero or less never expires entries.
// A nil build uses DefaultBuilder with the default estimator.
func New(ttl time.Duration, build Builder) *Cache {
	if build == nil {
		build = DefaultBuilder(estimate.Default())
	}
	if ttl <= 0 {
		ttl = time.Duration(math.MaxInt64)
	}
	return &Cache{
		ttl:     ttl,
		entries: make(map[Key]*entry),
		build:   build,
		now:     time.Now,
	}
}

// Get returns the tokenizer for the key, building it when it is missing or
// has not been used within the TTL.
func (c *Cache) Get(kind bpe.Kind, vocabFile string, vocabSize int) (*bpe.Tokenizer, error) {
	key := Key{Kind: kind, VocabFile: vocabFile, VocabSize: vocabSize}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if e, ok := c.entries[key]; ok {
		if now.Sub(e.lastUsed) < c.ttl {
			e.lastUsed = now
			slog.Debug("tokenizer cache hit", "key", key)
			return e.tok, nil
		}
		slog.Debug("tokenizer cache entry expired", "key", key)
		delete(c.entries, key)
	}

	tok, err := c.build(key)
	if err != nil {
		return nil, fmt.Errorf("build tokenizer %s: %w", key, err)
	}

	c.entries[key] = &entry{tok: tok, lastUsed: now}
	slog.Debug("tokenizer cache miss", "key", key, "entries", len(c.entries))
	return tok, nil
}

// Cleanup removes entries not used within the TTL and returns how many were removed.
func (c *Cache) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	var removed int
	for key, e := range c.entries {
		if now.Sub(e.lastUsed) >= c.ttl {
			delete(c.entries, key)
			removed++
		}
	}

	if removed > 0 {
		slog.Debug("tokenizer cache cleanup", "removed", removed, "remaining", len(c.entries))
	}
	return removed
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	clear(c.entries)
}

// Len returns the number of cached tokenizers, expired ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}

// DefaultBuilder builds tokenizers from files:
//   - gpt4 loads VocabFile; a missing or unreadable file logs a warning and
//     yields the default GPT-4 tokenizer without merges
//   - byte and regex load VocabFile when it is a .model file, otherwise they
//     train on it as a text corpus up to VocabSize; no file means untrained
//   - heuristic wraps est
func DefaultBuilder(est *estimate.Estimator) Builder {
	return func(key Key) (*bpe.Tokenizer, error) {
		switch key.Kind {
		case bpe.KindGPT4:
			return buildGPT4(key.VocabFile), nil
		case bpe.KindHeuristic:
			return bpe.NewHeuristic(est), nil
		case bpe.KindByte, bpe.KindRegex:
			return buildTrainable(key)
		default:
			return nil, fmt.Errorf("%w: %s", bpe.ErrUnknownKind, key.Kind)
		}
	}
}

func buildGPT4(path string) *bpe.Tokenizer {
	if path == "" {
		return bpe.NewGPT4()
	}

	tok, err := bpe.LoadGPT4(path)
	if err != nil {
		slog.Warn("failed to load GPT-4 vocabulary, using default", "path", path, "error", err)
		return bpe.NewGPT4()
	}
	return tok
}

func buildTrainable(key Key) (*bpe.Tokenizer, error) {
	if key.VocabFile == "" {
		return bpe.New(key.Kind)
	}

	if strings.EqualFold(filepath.Ext(key.VocabFile), ".model") {
		return bpe.LoadModel(key.Kind, key.VocabFile)
	}

	corpus, err := os.ReadFile(key.VocabFile)
	if err != nil {
		return nil, fmt.Errorf("read corpus: %w", err)
	}

	tok, err := bpe.New(key.Kind)
	if err != nil {
		return nil, err
	}

	res, err := tok.TrainFast(string(corpus), key.VocabSize, false)
	if err != nil {
		return nil, err
	}

	slog.Info("trained tokenizer for cache", "key", key, "result", res.Summary())
	return tok, nil
}
