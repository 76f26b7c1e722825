package repository

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned by lookups when no row matches.
	ErrNotFound = errors.New("not found")
	// ErrRunFinalized is returned when finalizing a run that already has a terminal status.
	ErrRunFinalized = errors.New("collection run already finalized")

	// ErrSourceUnavailable covers timeouts, network errors and 5xx answers.
	ErrSourceUnavailable = errors.New("listing source unavailable")
	// ErrRateLimited means the source asked us to slow down (429, captcha wall).
	ErrRateLimited = errors.New("listing source rate limited")
	// ErrKeywordRejected means the source refused the query itself.
	ErrKeywordRejected = errors.New("listing source rejected keyword")
	// ErrMalformedResponse means the page could not be decoded.
	ErrMalformedResponse = errors.New("malformed listing source response")
)

// SourceError carries the HTTP status and an optional retry hint from a listing source.
type SourceError struct {
	Kind       error
	StatusCode int
	RetryAfter time.Duration
	Err        error
}

func (e *SourceError) Error() string {
	msg := e.Kind.Error()
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s: status %d", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *SourceError) Is(target error) bool { return target == e.Kind }

func (e *SourceError) Unwrap() error { return e.Err }

// IsTransient reports whether a failed page request is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrSourceUnavailable) || errors.Is(err, ErrRateLimited)
}

// RetryAfter extracts the source's back-off hint, if any.
func RetryAfter(err error) time.Duration {
	var se *SourceError
	if errors.As(err, &se) {
		return se.RetryAfter
	}
	return 0
}

// StoreError wraps a persistence-layer failure for a single operation.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }
