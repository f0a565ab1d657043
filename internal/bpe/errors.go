package bpe

import (
	"errors"
	"fmt"
)

// Common errors.
var (
	ErrVocabSizeTooSmall   = errors.New("vocabulary size must be at least 256")
	ErrNotTrainable        = errors.New("tokenizer kind cannot be trained")
	ErrInvalidVersion      = errors.New("unsupported model version")
	ErrMalformedModel      = errors.New("malformed model file")
	ErrNonContiguousMerges = errors.New("merge ids are not contiguous from 256")
	ErrUnknownKind         = errors.New("unknown tokenizer kind")
)

// FormatError reports where a model or vocabulary file failed to parse.
type FormatError struct {
	Path    string // File being read
	Line    int    // 1-based line number, 0 when not line oriented
	Details string // What was wrong
}

// Error implements the error interface.
func (e *FormatError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.Path, e.Line, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Details)
}

// Unwrap lets errors.Is match ErrMalformedModel.
func (e *FormatError) Unwrap() error {
	return ErrMalformedModel
}
