package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

var (
	// ErrTransport covers network, auth and timeout failures. The user
	// may retry.
	ErrTransport = errors.New("transport error")
	// ErrNotFound means the identifier does not exist server-side.
	ErrNotFound = errors.New("not found")
	// ErrValidation means the input violates a field constraint. No
	// remote call was made.
	ErrValidation = errors.New("validation error")
	// ErrConflict means the issue changed server-side since it was read.
	ErrConflict = errors.New("conflict")
)

const (
	MinDescriptionLength = 10
	MaxDescriptionLength = 10000
	MaxTitleLength       = 255
	MaxCommentLength     = 10000
)

// NormalizeDescription trims s and checks its length in characters.
func NormalizeDescription(s string) (string, error) {
	s = strings.TrimSpace(s)
	n := utf8.RuneCountInString(s)
	switch {
	case n == 0:
		return "", fmt.Errorf("%w: description cannot be empty", ErrValidation)
	case n < MinDescriptionLength:
		return "", fmt.Errorf("%w: description must be at least %d characters", ErrValidation, MinDescriptionLength)
	case n > MaxDescriptionLength:
		return "", fmt.Errorf("%w: description cannot exceed %d characters", ErrValidation, MaxDescriptionLength)
	}
	return s, nil
}

// NormalizeTitle trims s. An empty title is allowed.
func NormalizeTitle(s string) (string, error) {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) > MaxTitleLength {
		return "", fmt.Errorf("%w: title cannot exceed %d characters", ErrValidation, MaxTitleLength)
	}
	return s, nil
}

// NormalizeComment trims s and rejects empty or oversized bodies.
func NormalizeComment(s string) (string, error) {
	s = strings.TrimSpace(s)
	n := utf8.RuneCountInString(s)
	switch {
	case n == 0:
		return "", fmt.Errorf("%w: comment cannot be empty", ErrValidation)
	case n > MaxCommentLength:
		return "", fmt.Errorf("%w: comment cannot exceed %d characters", ErrValidation, MaxCommentLength)
	}
	return s, nil
}

// CheckStatus rejects values outside the known status set.
func CheckStatus(s Status) error {
	if !s.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrValidation, s)
	}
	return nil
}

// CheckWorker rejects unknown worker identifiers.
func CheckWorker(w string) error {
	if !ValidWorker(w) {
		return fmt.Errorf("%w: unknown worker %q", ErrValidation, w)
	}
	return nil
}

// CheckWorkflow rejects values outside the known workflow set.
func CheckWorkflow(w Workflow) error {
	if !w.Valid() {
		return fmt.Errorf("%w: unknown workflow %q", ErrValidation, w)
	}
	return nil
}

// classify wraps err from a remote call. Caller cancellation passes
// through untouched; everything else is a transport failure.
func classify(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrTransport, err)
}
