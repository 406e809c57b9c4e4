package service

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrNotFound           = errors.New("not found")
	ErrInvalidContent     = errors.New("invalid content")
	ErrInvalidImage       = errors.New("invalid image")
	ErrInvalidReplyTarget = errors.New("invalid reply target")
	ErrInvalidEmoji       = errors.New("invalid emoji")
	ErrInvalidCursor      = errors.New("invalid cursor")
	ErrRateLimited        = errors.New("rate limited")
)

// RateLimitedError carries how long the caller must wait.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited: retry after %s", e.RetryAfter.Round(time.Second))
}

func (e *RateLimitedError) Unwrap() error {
	return ErrRateLimited
}

// IsValidation reports errors that are shown to the user verbatim.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidContent) ||
		errors.Is(err, ErrInvalidImage) ||
		errors.Is(err, ErrInvalidReplyTarget) ||
		errors.Is(err, ErrInvalidEmoji) ||
		errors.Is(err, ErrInvalidCursor)
}
