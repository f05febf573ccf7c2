package app

import "errors"

var (
	// ErrEmptyResult is a valid response without data points. Displayed state is kept.
	ErrEmptyResult = errors.New("empty result")
	// ErrStaleResponse is a response whose originating context is no longer current.
	ErrStaleResponse = errors.New("stale response")
	ErrUnknownTab    = errors.New("unknown tab")
)
