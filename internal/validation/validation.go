// Package validation checks user input before it reaches the parser or the
// network, bounding sizes to keep the CLI and HTTP surfaces well behaved.
package validation

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	sefererrors "github.com/FocuswithJustin/sefer/core/errors"
)

// Input limits (CWE-400).
const (
	// MaxCitationLength is the maximum citation length in bytes.
	MaxCitationLength = 256
	// MaxQueryLength is the maximum search query length in bytes.
	MaxQueryLength = 1024
	// MaxBatch is the maximum number of citations in one request.
	MaxBatch = 32
	// MaxPathLength is the maximum allowed path length.
	MaxPathLength = 4096
)

// Common validation errors. Each wraps core/errors.ErrInvalidInput.
var (
	ErrEmpty            = fmt.Errorf("%w: value cannot be empty", sefererrors.ErrInvalidInput)
	ErrTooLong          = fmt.Errorf("%w: value too long", sefererrors.ErrInvalidInput)
	ErrInvalidCharacter = fmt.Errorf("%w: invalid character", sefererrors.ErrInvalidInput)
	ErrInvalidEncoding  = fmt.Errorf("%w: invalid UTF-8", sefererrors.ErrInvalidInput)
	ErrTooMany          = fmt.Errorf("%w: too many values", sefererrors.ErrInvalidInput)
)

// ValidateCitation checks a raw citation string: non-empty, valid UTF-8, at
// most MaxCitationLength bytes and free of control characters.
func ValidateCitation(s string) error {
	return checkText(s, MaxCitationLength)
}

// ValidateQuery checks a search query.
func ValidateQuery(s string) error {
	return checkText(s, MaxQueryLength)
}

// ValidateBatch checks a list of citations.
func ValidateBatch(items []string) error {
	if len(items) == 0 {
		return ErrEmpty
	}
	if len(items) > MaxBatch {
		return fmt.Errorf("%w: %d citations, limit %d", ErrTooMany, len(items), MaxBatch)
	}
	for i, s := range items {
		if err := ValidateCitation(s); err != nil {
			return fmt.Errorf("citation %d: %w", i+1, err)
		}
	}
	return nil
}

// ValidatePath performs path validation without requiring a base directory.
// It checks length limits and rejects null bytes and control characters.
func ValidatePath(path string) error {
	if path == "" {
		return ErrEmpty
	}
	if len(path) > MaxPathLength {
		return ErrTooLong
	}
	if strings.Contains(path, "\x00") {
		return fmt.Errorf("%w: null byte not allowed", ErrInvalidCharacter)
	}
	for _, r := range path {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: control character not allowed", ErrInvalidCharacter)
		}
	}
	return nil
}

// SplitCitations splits joined arguments on ';' and drops blank parts.
func SplitCitations(joined string) []string {
	var out []string
	for _, part := range strings.Split(joined, ";") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func checkText(s string, limit int) error {
	if strings.TrimSpace(s) == "" {
		return ErrEmpty
	}
	if len(s) > limit {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrTooLong, len(s), limit)
	}
	if !utf8.ValidString(s) {
		return ErrInvalidEncoding
	}
	for _, r := range s {
		// Tabs are whitespace the parser collapses; everything else is rejected.
		if unicode.IsControl(r) && r != '\t' {
			return fmt.Errorf("%w: control character %U", ErrInvalidCharacter, r)
		}
	}
	return nil
}

// Is reports whether err is a validation failure.
func Is(err error) bool {
	return errors.Is(err, sefererrors.ErrInvalidInput)
}
